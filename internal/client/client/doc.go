// Package client is the HTTP client of the upload API used by uploadctl.
//
// It requests upload sessions, completes uploads and reads validation
// status. Responses are mapped to sentinel errors that callers match with
// errors.Is: ErrUnavailable, ErrUnauthorized, ErrNotFound, ErrTimeout.
//
// All operations accept a context.Context and honor its cancellation.
package client
