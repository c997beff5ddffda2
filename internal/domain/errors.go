package domain

import (
	"errors"
)

// Common domain errors
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNoInputFiles = errors.New("no input files specified")

	// Reference errors
	ErrNoReference    = errors.New("no async download directories found")
	ErrTooFewSegments = errors.New("url has fewer than two path segments")

	// Destination errors
	ErrDestinationExists = errors.New("destination already exists")
)

// SkippableError represents an error that can be logged and skipped.
// Processing can continue with the next item when this error occurs.
type SkippableError struct {
	Err     error
	Context string
}

// Error returns the error message
func (e *SkippableError) Error() string {
	if e.Context != "" {
		if e.Err != nil {
			return e.Context + ": " + e.Err.Error()
		}
		return e.Context
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "skippable error"
}

// Unwrap returns the underlying error
func (e *SkippableError) Unwrap() error {
	return e.Err
}

// NewSkippableError creates a new skippable error
func NewSkippableError(err error, context string) *SkippableError {
	return &SkippableError{Err: err, Context: context}
}

// IsSkippable returns true if the error can be skipped
func IsSkippable(err error) bool {
	var se *SkippableError
	return errors.As(err, &se)
}

// UsageError marks errors caused by bad command-line input.
// These are the only errors that abort a run.
type UsageError struct {
	Err error
}

func (e *UsageError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return "usage error"
}

func (e *UsageError) Unwrap() error {
	return e.Err
}

// NewUsageError wraps err as a usage error
func NewUsageError(err error) *UsageError {
	return &UsageError{Err: err}
}

// IsUsageError returns true if err is or wraps a UsageError
func IsUsageError(err error) bool {
	var ue *UsageError
	return errors.As(err, &ue)
}
