package core

import (
	"errors"
	"fmt"
)

// Error kinds. Match with errors.Is against any typed error below.
var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrTransport  = errors.New("persistence unavailable")
)

// ValidationError reports bad input detected before any state change.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid input: %v", e.Err)
}

func (e *ValidationError) Unwrap() error        { return e.Err }
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// NotFoundError reports an unknown transaction or category id. When the
// persistence collaborator is the one reporting it, Op and Err carry the
// failed call and the store's error.
type NotFoundError struct {
	Entity string
	ID     string
	Op     string
	Err    error
}

func (e *NotFoundError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error        { return e.Err }
func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// ConflictError reports a category or transaction held by another in-flight mutation.
type ConflictError struct {
	Key string
	Err error
}

func (e *ConflictError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s is busy, retry later: %v", e.Key, e.Err)
	}
	return fmt.Sprintf("%s is busy, retry later", e.Key)
}

func (e *ConflictError) Unwrap() error        { return e.Err }
func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// TransportError reports a failed, timed out or cancelled persistence call.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error        { return e.Err }
func (e *TransportError) Is(target error) bool { return target == ErrTransport }

func NewValidationError(err error) error {
	return &ValidationError{Err: err}
}

func NewNotFoundError(entity, id string) error {
	return &NotFoundError{Entity: entity, ID: id}
}

// ErrorType returns a short label for logging.
func ErrorType(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "validation_error"
	case errors.Is(err, ErrNotFound):
		return "not_found_error"
	case errors.Is(err, ErrConflict):
		return "conflict_error"
	case errors.Is(err, ErrTransport):
		return "network_error"
	default:
		return "internal_error"
	}
}
