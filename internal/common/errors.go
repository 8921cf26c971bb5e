// Package common provides shared utilities and types used across the application.
package common

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
)

// Common application errors.
var (
	// Row-level errors.
	ErrValidationRejection     = errors.New("validation rejection")
	ErrUnknownKey              = errors.New("unknown key")
	ErrMultipleCurrentVersions = errors.New("multiple current versions")

	// Warehouse errors.
	ErrNotFound            = errors.New("not found")
	ErrTransientStore      = errors.New("transient store failure")
	ErrConstraintViolation = errors.New("constraint violation")

	// Configuration errors.
	ErrMissingConfig = errors.New("missing configuration")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// UserError represents an error that should be shown to the user.
type UserError struct {
	Err         error
	UserMessage string
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.UserMessage, e.Err)
	}
	return e.UserMessage
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// NewUserError creates a new user-friendly error.
func NewUserError(userMessage string, err error) error {
	return &UserError{
		UserMessage: userMessage,
		Err:         err,
	}
}

// IsRetryable determines if an error should trigger a retry.
// Constraint violations are never retryable, even when they also carry
// a transient marker.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, ErrConstraintViolation) || errors.Is(err, context.Canceled) {
		return false
	}

	var retryableErr *RetryableError
	if errors.As(err, &retryableErr) {
		return retryableErr.Retryable
	}

	return errors.Is(err, ErrTransientStore) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, driver.ErrBadConn)
}
