package upload

import (
	"errors"
	"fmt"
)

// Common upload pipeline errors
var (
	// ErrEmptyQueue is returned by Submit when no file is queued.
	ErrEmptyQueue = errors.New("please select at least one file")

	// ErrUnsupportedType is reported for files outside the accepted set.
	ErrUnsupportedType = errors.New("unsupported file type")

	// ErrUploadInProgress is returned by Submit while another batch is in flight.
	ErrUploadInProgress = errors.New("an upload is already in progress")

	// ErrTaskNotFound is returned by Remove for an unknown task id.
	ErrTaskNotFound = errors.New("no queued file with that id")

	// ErrTaskNotQueued is returned by Remove for a task that is part of the
	// batch currently in flight.
	ErrTaskNotQueued = errors.New("file is already being uploaded")
)

// ValidationError is raised before any network call and leaves the
// pipeline unchanged.
type ValidationError struct {
	Err     error
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error for error unwrapping.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError creates a new ValidationError.
func NewValidationError(err error, message string) *ValidationError {
	return &ValidationError{Err: err, Message: message}
}

// TransportError means the batch got no usable answer from the backend.
// Every file of the batch is marked failed; nothing is inferred per file.
type TransportError struct {
	Files int
	Err   error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("upload failed for all %d file(s): %v", e.Files, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *TransportError) Unwrap() error {
	return e.Err
}
