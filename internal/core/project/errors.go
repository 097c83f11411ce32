package project

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	ErrInvalidYAML          = errors.New("invalid YAML syntax")
	ErrMissingName          = errors.New("name is required")
	ErrDuplicateName        = errors.New("duplicate name")
	ErrIllegalSequence      = errors.New("illegal sequence declaration")
	ErrDefaultPackageParams = errors.New("the default package does not support attaching environment or parameters")
	ErrInvalidWebMode       = errors.New("invalid web value")
	ErrInvalidWebSecure     = errors.New("invalid webSecure value")
	ErrInvalidTrigger       = errors.New("invalid trigger")
	ErrConflictingSources   = errors.New("conflicting action sources")
	ErrConflictingWebTarget = errors.New("conflicting web deployment targets")
)

// ValidationError wraps a structural failure with the location that caused it.
type ValidationError struct {
	Field   string // e.g. "packages[admin].actions[hello]"
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field, message string, err error) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Err:     err,
	}
}
