package registry

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when an agent id is not in the registry.
	ErrNotFound = errors.New("agent not found")

	// ErrInvalidTransition is returned when a status change is rejected
	// by the state machine.
	ErrInvalidTransition = errors.New("invalid status transition")

	// errEntryDeleted signals that an entry handle lost a race with
	// Delete between lookup and lock. Auto-registering paths retry so a
	// fresh agent is created; plain lookups translate it to ErrNotFound.
	errEntryDeleted = errors.New("entry deleted concurrently")
)

// ValidationError wraps field-specific validation errors. The caller's
// input is at fault; the request is never retried.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

// NewValidationError creates a new validation error.
func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// IsValidationError checks if an error is a validation error.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// TransientError marks a backing-store failure. The in-memory mutation
// has already committed; only persistence failed. Callers surface it as
// 503 and the registry reconciles from the store on the next restart.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient store failure: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient checks if an error is a transient store failure.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
