package models

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across the status store, worker and HTTP handlers.
// Handlers pick the response code with errors.Is checks.
var (
	// ErrNotFound means the viewpoint record or its lookup key is absent.
	ErrNotFound = errors.New("viewpoint does not exist")

	// ErrAlreadyExists is returned by Insert when the id is taken. The create
	// handler treats it as "already requested" and answers 202.
	ErrAlreadyExists = errors.New("viewpoint already exists")

	// ErrNotReady rejects an operation because ingestion has not finished.
	// Clients should poll with backoff.
	ErrNotReady = errors.New("viewpoint has been requested and is not ready yet, try again later")

	// ErrAlreadyDeleted rejects an operation on a deleted viewpoint. Clients
	// should stop retrying.
	ErrAlreadyDeleted = errors.New("viewpoint has already been deleted")

	// ErrIngestFailed rejects pixel-serving operations on a viewpoint whose
	// ingestion ended in FAILED.
	ErrIngestFailed = errors.New("viewpoint ingestion failed")

	// ErrBucketNotFound and ErrAccessDenied classify terminal object-storage
	// failures; the worker surfaces them without retrying.
	ErrBucketNotFound = errors.New("bucket or object does not exist")
	ErrAccessDenied   = errors.New("permission denied")
)

// StatusError carries an HTTP-style status code for failures that originate
// in the durable store or object storage.
type StatusError struct {
	Code    int
	Message string
	Err     error
}

func (e *StatusError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *StatusError) Unwrap() error { return e.Err }

// StoreUnavailable marks a transient failure talking to the durable store.
func StoreUnavailable(msg string, err error) *StatusError {
	return &StatusError{Code: 503, Message: msg, Err: err}
}

// MalformedRecord marks a row that came back from the store missing expected
// fields. Reported distinctly from store-unavailable failures.
func MalformedRecord(msg string, err error) *StatusError {
	return &StatusError{Code: 500, Message: msg, Err: err}
}
