// Package filex reads a local file into the shape of an upload request.
package filex

import (
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"github.com/dmitrijs2005/bridgeupload/internal/cryptox"
)

// LocalFile is a file read fully into memory with its upload attributes.
type LocalFile struct {
	Name        string
	Data        []byte
	ContentMD5  string
	ContentType string
}

// ReadForUpload reads path and derives its name, MD5 and content type. The
// type comes from the extension and falls back to content sniffing.
func ReadForUpload(path string) (*LocalFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("read %s: file is empty", path)
	}

	contentType := mime.TypeByExtension(filepath.Ext(path))
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}

	return &LocalFile{
		Name:        filepath.Base(path),
		Data:        data,
		ContentMD5:  cryptox.ContentMD5(data),
		ContentType: contentType,
	}, nil
}
