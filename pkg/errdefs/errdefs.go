// Package errdefs defines the error taxonomy shared by the indexing and search
// packages. Callers wrap these sentinels with fmt.Errorf("...: %w") and test for
// them with errors.Is.
package errdefs

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is returned for missing or contradictory request parameters.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound is returned when an object, point or reference image is missing.
	ErrNotFound = errors.New("not found")

	// ErrEncoding is returned when an image or text cannot be embedded because
	// the input itself is malformed.
	ErrEncoding = errors.New("encoding failed")

	// ErrIndexUnavailable is returned when the vector index cannot be reached.
	ErrIndexUnavailable = errors.New("vector index unavailable")

	// ErrStoreUnavailable is returned when the object store cannot be reached.
	ErrStoreUnavailable = errors.New("object store unavailable")

	// ErrAlreadyRunning is returned when a bulk index run is already active.
	ErrAlreadyRunning = errors.New("index run already in progress")

	// ErrConfig is returned when required configuration is missing or invalid.
	ErrConfig = errors.New("invalid configuration")
)

// ValidationError describes a single invalid request field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrValidation, e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Invalid creates a ValidationError for field.
func Invalid(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// IsTransient reports whether err is an infrastructure failure that may succeed
// on a later attempt.
func IsTransient(err error) bool {
	return errors.Is(err, ErrIndexUnavailable) || errors.Is(err, ErrStoreUnavailable)
}
