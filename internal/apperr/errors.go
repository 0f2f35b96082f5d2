// Package apperr holds the error taxonomy shared by the store, data access
// layer, summarization gateway and API.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrUnauthenticated = errors.New("user not authenticated")
	ErrInvalidInput    = errors.New("invalid input")
)

// RemoteStoreError reports a failure of the underlying data store.
// Partial results must not be used when it is returned.
type RemoteStoreError struct {
	Op  string
	Err error
}

func (e *RemoteStoreError) Error() string {
	return fmt.Sprintf("remote store: %s: %v", e.Op, e.Err)
}

func (e *RemoteStoreError) Unwrap() error { return e.Err }

// SummarizationError reports a transport or remote API failure during summarization.
// Status and Payload are set when the remote answered with a non-2xx response.
type SummarizationError struct {
	Status  int
	Payload string
	Err     error
}

func (e *SummarizationError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("gemini api error: %d %s", e.Status, e.Payload)
	}
	if e.Err != nil {
		return fmt.Sprintf("failed to generate summary: %v", e.Err)
	}
	return "failed to generate summary"
}

func (e *SummarizationError) Unwrap() error { return e.Err }

// SummaryPersistError is returned when a summary was generated but could not be
// written back to the note. Summary carries the generated text.
type SummaryPersistError struct {
	NoteID  string
	Summary string
	Err     error
}

func (e *SummaryPersistError) Error() string {
	return fmt.Sprintf("failed to save summary for note %s: %v", e.NoteID, e.Err)
}

func (e *SummaryPersistError) Unwrap() error { return e.Err }

// Store wraps err as a RemoteStoreError unless it is already a domain error
// (not found, conflict, invalid input). Wrapped errors stay matchable with errors.Is.
func Store(op string, err error) error {
	if err == nil {
		return nil
	}
	var rse *RemoteStoreError
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrConflict), errors.Is(err, ErrInvalidInput):
		return err
	case errors.As(err, &rse):
		return err
	}
	return &RemoteStoreError{Op: op, Err: err}
}
