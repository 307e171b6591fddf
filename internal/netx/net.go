// Package netx performs the client side of a presigned upload.
package netx

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
)

// ServerSideEncryption is the SSE algorithm every presigned PUT must request.
const ServerSideEncryption = "AES256"

// UploadToPresignedURL PUTs body to url. The headers match the ones the URL
// was signed with, so S3 rejects a body whose MD5 differs from contentMD5.
func UploadToPresignedURL(ctx context.Context, client *http.Client, url string, body []byte, contentMD5, contentType string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Content-MD5", contentMD5)
	req.Header.Set("x-amz-server-side-encryption", ServerSideEncryption)

	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("upload failed: %s; body: %s", resp.Status, string(b))
	}
	return nil
}
