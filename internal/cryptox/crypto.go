// Package cryptox holds the content digests used on both sides of an
// upload: the base64 MD5 a client declares and S3 verifies.
package cryptox

import (
	"crypto/md5"
	"encoding/base64"
)

// ContentMD5 returns the base64-encoded MD5 digest of data, the form the
// Content-MD5 header expects.
func ContentMD5(data []byte) string {
	sum := md5.Sum(data)
	return base64.StdEncoding.EncodeToString(sum[:])
}

// IsContentMD5 reports whether s is a base64-encoded 16-byte digest.
func IsContentMD5(s string) bool {
	b, err := base64.StdEncoding.DecodeString(s)
	return err == nil && len(b) == md5.Size
}
