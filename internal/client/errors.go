package client

import (
	"errors"
	"fmt"
)

// Common backend errors
var (
	// ErrNotFound is returned when the backend answers 404.
	ErrNotFound = errors.New("resource not found")

	// ErrNoResponse is returned when the request never produced an HTTP
	// response (connection refused, DNS failure, timeout, ...).
	ErrNoResponse = errors.New("no response from backend")

	// ErrUnexpectedStatus is returned for any non-2xx status other than 404.
	ErrUnexpectedStatus = errors.New("unexpected response status")

	// ErrInvalidResponse is returned when a 2xx body cannot be decoded or
	// does not have the documented shape.
	ErrInvalidResponse = errors.New("invalid response body")
)

// APIError wraps errors with the request that produced them.
type APIError struct {
	// Op is the client operation (e.g. "ListInvoices", "Upload").
	Op string

	// StatusCode is the HTTP status, or 0 when there was no response.
	StatusCode int

	// Err is the underlying error.
	Err error

	// Details holds a short excerpt of the response body, if any.
	Details string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Details != "":
		return fmt.Sprintf("client: %s failed (status %d): %s: %v", e.Op, e.StatusCode, e.Details, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("client: %s failed (status %d): %v", e.Op, e.StatusCode, e.Err)
	case e.Details != "":
		return fmt.Sprintf("client: %s failed: %s: %v", e.Op, e.Details, e.Err)
	}
	return fmt.Sprintf("client: %s failed: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *APIError) Unwrap() error {
	return e.Err
}

// Is implements error matching for Go 1.13+ error handling.
func (e *APIError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewAPIError creates a new APIError.
func NewAPIError(op string, status int, err error, details string) *APIError {
	return &APIError{
		Op:         op,
		StatusCode: status,
		Err:        err,
		Details:    details,
	}
}

// IsTransport reports whether err means the backend gave no usable answer:
// no response at all, an error status, or an undecodable body.
func IsTransport(err error) bool {
	return errors.Is(err, ErrNoResponse) ||
		errors.Is(err, ErrUnexpectedStatus) ||
		errors.Is(err, ErrInvalidResponse)
}
