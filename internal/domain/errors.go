package domain

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition is returned when a task is asked to move to a status
// its state machine does not permit.
var ErrInvalidTransition = errors.New("invalid task state transition")

// ErrForbidden is returned when the requester is neither the task owner nor
// an administrator.
var ErrForbidden = errors.New("requester not permitted")

// ValidationError rejects malformed input before any I/O happens.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
