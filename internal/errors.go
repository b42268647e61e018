package internal

import (
	"errors"
	"fmt"
)

// AppError is the wire-level error shape used by the response envelope.
type AppError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *AppError) Error() string { return e.Message }

func NewAppError(code int, msg string) *AppError {
	return &AppError{Code: code, Message: msg}
}

// ValidationError rejects a request before any write happens.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Reason
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// ConflictError signals an attempt to open a second sleep session for a
// caregiver that already has one open.
type ConflictError struct {
	Reason string
}

func (e *ConflictError) Error() string { return "conflict: " + e.Reason }

func NewConflictError(reason string) *ConflictError {
	return &ConflictError{Reason: reason}
}

// ConfirmationRequiredError is not a failure: the computed sleep duration is
// plausible but unusual, and the caller must re-submit with confirmed=true
// to proceed. It round-trips to the caller instead of being retried.
type ConfirmationRequiredError struct {
	Minutes int
	Reason  string
}

func (e *ConfirmationRequiredError) Error() string {
	return fmt.Sprintf("confirmation required: %s (%d min)", e.Reason, e.Minutes)
}

func NewConfirmationRequired(minutes int, reason string) *ConfirmationRequiredError {
	return &ConfirmationRequiredError{Minutes: minutes, Reason: reason}
}

// ConcurrentUpdateError surfaces lock contention when the backend resolves
// it as a constraint violation instead of blocking.
type ConcurrentUpdateError struct {
	Reason string
}

func (e *ConcurrentUpdateError) Error() string { return "concurrent update: " + e.Reason }

// NotFoundError reports a mutate/delete against an unknown id or a missing
// open session.
type NotFoundError struct {
	What string
}

func (e *NotFoundError) Error() string { return "not found: " + e.What }

func NewNotFoundError(what string) *NotFoundError { return &NotFoundError{What: what} }

// StorageError wraps any underlying persistence failure. It always rolls
// back the enclosing transaction.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return fmt.Sprintf("storage: %s: %v", e.Op, e.Err) }

func (e *StorageError) Unwrap() error { return e.Err }

func WrapStorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

func IsConflict(err error) bool {
	var c *ConflictError
	return errors.As(err, &c)
}

func IsNotFound(err error) bool {
	var n *NotFoundError
	return errors.As(err, &n)
}

func IsConfirmationRequired(err error) bool {
	var c *ConfirmationRequiredError
	return errors.As(err, &c)
}

func IsConcurrentUpdate(err error) bool {
	var c *ConcurrentUpdateError
	return errors.As(err, &c)
}
