// Package faults defines the error taxonomy shared across the engine.
// ValidationError and UnsupportedIntentError are recoverable at the dispatcher
// boundary; ExternalCallError drives reverting state transitions; an
// InvariantViolation signals a concurrency bug and is never swallowed.
package faults

import (
	"errors"
	"fmt"
)

// ValidationError rejects a malformed signal or request with no state change.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

// Validation creates a ValidationError for a field.
func Validation(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// UnsupportedIntentError is returned by the dispatcher for unknown intents.
type UnsupportedIntentError struct {
	Intent string
}

func (e *UnsupportedIntentError) Error() string {
	return fmt.Sprintf("unsupported intent: %s", e.Intent)
}

// ExternalCallError wraps a failed block/restore/notify call against an
// external collaborator.
type ExternalCallError struct {
	Op  string
	Err error
}

func (e *ExternalCallError) Error() string {
	return fmt.Sprintf("external call %s failed: %v", e.Op, e.Err)
}

func (e *ExternalCallError) Unwrap() error { return e.Err }

// External wraps err as an ExternalCallError for the named operation.
func External(op string, err error) error {
	return &ExternalCallError{Op: op, Err: err}
}

// InvariantViolation reports an attempted transition that would create a
// second open remediation case for a subject. It indicates a race or
// programming bug, not a normal operating condition.
type InvariantViolation struct {
	SubjectID string
	Detail    string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("invariant violation for subject %s: %s", e.SubjectID, e.Detail)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsUnsupportedIntent reports whether err is an UnsupportedIntentError.
func IsUnsupportedIntent(err error) bool {
	var ue *UnsupportedIntentError
	return errors.As(err, &ue)
}

// IsExternal reports whether err is an ExternalCallError.
func IsExternal(err error) bool {
	var ee *ExternalCallError
	return errors.As(err, &ee)
}

// IsInvariant reports whether err is an InvariantViolation.
func IsInvariant(err error) bool {
	var iv *InvariantViolation
	return errors.As(err, &iv)
}
