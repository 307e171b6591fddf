// Package models defines the server-side data models of the upload pipeline.
package models

import (
	"encoding/json"
	"time"
)

// UploadStatus is the lifecycle state of an Upload.
type UploadStatus string

const (
	UploadStatusRequested            UploadStatus = "REQUESTED"
	UploadStatusValidationInProgress UploadStatus = "VALIDATION_IN_PROGRESS"
	UploadStatusSucceeded            UploadStatus = "SUCCEEDED"
	UploadStatusValidationFailed     UploadStatus = "VALIDATION_FAILED"
	UploadStatusDuplicate            UploadStatus = "DUPLICATE"
)

// IsTerminal reports whether no further transition is expected from s.
func (s UploadStatus) IsTerminal() bool {
	switch s {
	case UploadStatusSucceeded, UploadStatusValidationFailed, UploadStatusDuplicate:
		return true
	}
	return false
}

// UploadCompletedBy records which path acknowledged the write.
type UploadCompletedBy string

const (
	CompletedByApp          UploadCompletedBy = "APP"
	CompletedByStorageEvent UploadCompletedBy = "S3_WORKER"
)

// Upload is the durable record of one upload session. The upload id doubles
// as the object key in the upload bucket.
type Upload struct {
	ID            string
	AppID         string
	HealthCode    string
	Name          string
	ContentLength int64
	ContentMD5    string
	ContentType   string
	Status        UploadStatus
	// Metadata is the free-form JSON object supplied by the client.
	Metadata    json.RawMessage
	RequestedOn time.Time
	CompletedOn *time.Time
	CompletedBy UploadCompletedBy
	// OriginalUploadID is set when this upload repeats the content of an
	// earlier one that had already left REQUESTED.
	OriginalUploadID   string
	ValidationMessages []string
	// Version is the optimistic-lock counter compared on every write.
	Version int64
}

// CanBeValidated is true while the upload still waits for its completion call.
func (u *Upload) CanBeValidated() bool {
	return u.Status == UploadStatusRequested
}

// ObjectKey is the key of the uploaded bytes in the object store.
func (u *Upload) ObjectKey() string {
	return u.ID
}

// CompletionResult is the outcome of a versioned completion write.
type CompletionResult int

const (
	// CompletionApplied means this call performed the transition.
	CompletionApplied CompletionResult = iota + 1
	// CompletionAlreadyCompleted means a concurrent caller won the race.
	CompletionAlreadyCompleted
)

func (r CompletionResult) String() string {
	switch r {
	case CompletionApplied:
		return "applied"
	case CompletionAlreadyCompleted:
		return "already_completed"
	default:
		return "unknown"
	}
}

// UploadRequest is what a client declares when asking for an upload slot.
type UploadRequest struct {
	Name          string
	ContentLength int64
	ContentMD5    string
	ContentType   string
	Metadata      json.RawMessage
}

// UploadSession is returned to the client: where to PUT the bytes and until when.
type UploadSession struct {
	ID      string
	URL     string
	Expires time.Time
}

// UploadValidationStatus is the client-facing view of validation progress.
type UploadValidationStatus struct {
	ID       string
	Status   UploadStatus
	Messages []string
}

// ValidationStatusOf projects an upload onto its validation status.
func ValidationStatusOf(u *Upload) *UploadValidationStatus {
	msgs := u.ValidationMessages
	if msgs == nil {
		msgs = []string{}
	}
	return &UploadValidationStatus{ID: u.ID, Status: u.Status, Messages: msgs}
}
