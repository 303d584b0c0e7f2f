package core

import (
	"errors"
	"fmt"
)

// Domain sentinel errors
var (
	// ErrAlreadyRunning indicates a job submission conflict on an owner key.
	ErrAlreadyRunning = errors.New("a job for this owner key is already active")

	// ErrEmptySource indicates a record or task is missing its source name.
	ErrEmptySource = errors.New("source cannot be empty")

	// ErrEmptyDocumentID indicates a record is missing its document identifier.
	ErrEmptyDocumentID = errors.New("document id cannot be empty")

	// ErrEmptyVector indicates a record is missing its embedding vector.
	ErrEmptyVector = errors.New("embedding vector cannot be empty")

	// ErrDimensionMismatch indicates a vector does not match the configured
	// embedding dimension. Always permanent, never retried.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// TransientError wraps failures that are worth retrying with backoff:
// network timeouts, connection resets, 5xx-equivalent responses.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return "transient: " + e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError wraps failures that retrying cannot fix: validation
// failures, malformed input, configuration errors.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return "permanent: " + e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// ResourceError wraps local resource failures such as a full disk or a
// corrupted state file. Surfaced as a job failure; the process continues.
type ResourceError struct {
	Err error
}

func (e *ResourceError) Error() string { return "resource: " + e.Err.Error() }
func (e *ResourceError) Unwrap() error { return e.Err }

// Transient marks err as retryable. Returns nil for a nil err.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// Transientf formats and marks an error as retryable.
func Transientf(format string, args ...any) error {
	return &TransientError{Err: fmt.Errorf(format, args...)}
}

// Permanent marks err as non-retryable. Returns nil for a nil err.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// Permanentf formats and marks an error as non-retryable.
func Permanentf(format string, args ...any) error {
	return &PermanentError{Err: fmt.Errorf(format, args...)}
}

// Resource marks err as a local resource failure. Returns nil for a nil err.
func Resource(err error) error {
	if err == nil {
		return nil
	}
	return &ResourceError{Err: err}
}

// IsTransient reports whether err is classified as retryable.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// IsPermanent reports whether err is classified as non-retryable.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// IsResource reports whether err is classified as a resource failure.
func IsResource(err error) bool {
	var re *ResourceError
	return errors.As(err, &re)
}

// ClassifyHTTPStatus maps an HTTP response status to the retry taxonomy.
// 5xx and 429 are transient; other non-2xx codes are permanent.
func ClassifyHTTPStatus(status int, err error) error {
	if err == nil {
		return nil
	}
	if status >= 500 || status == 429 {
		return Transient(err)
	}
	return Permanent(err)
}
