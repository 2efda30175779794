package filter

import (
	"errors"
	"fmt"
)

// Common filter errors
var (
	// ErrInvalidPaymentStatus is returned for a payment status outside
	// paid, pending and unknown.
	ErrInvalidPaymentStatus = errors.New("invalid payment status filter")

	// ErrFetchFailed is returned when the invoice list could not be loaded.
	ErrFetchFailed = errors.New("failed to load invoices")
)

// ValidationError is returned before any request is made.
type ValidationError struct {
	Field string
	Value string
	Err   error
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("filter: %s=%q: %v", e.Field, e.Value, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// FetchError wraps a failed list query. The controller has already
// published an empty list when it is returned.
type FetchError struct {
	// Op is the controller operation ("Apply" or "Reset").
	Op string

	// Err is the client error.
	Err error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	return fmt.Sprintf("filter: %s failed: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// Is implements error matching for Go 1.13+ error handling.
func (e *FetchError) Is(target error) bool {
	return target == ErrFetchFailed || errors.Is(e.Err, target)
}
