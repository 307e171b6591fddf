// Package models defines the wire shapes the upload client exchanges with
// the server.
package models

import (
	"encoding/json"
	"time"
)

type UploadRequest struct {
	Name          string          `json:"name"`
	ContentLength int64           `json:"contentLength"`
	ContentMD5    string          `json:"contentMd5"`
	ContentType   string          `json:"contentType"`
	Metadata      json.RawMessage `json:"metadata,omitempty"`
}

type UploadSession struct {
	ID      string    `json:"id"`
	URL     string    `json:"url"`
	Expires time.Time `json:"expires"`
}

type ValidationStatus struct {
	ID       string   `json:"id"`
	Status   string   `json:"status"`
	Messages []string `json:"messageList"`
}
