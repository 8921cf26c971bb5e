package common

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/creditflow-etl/internal/service"
)

// ErrMaxRetries indicates that all retry attempts have been exhausted.
var ErrMaxRetries = errors.New("max retries exceeded")

// RetryableError wraps an error with retry-specific metadata.
type RetryableError struct {
	Err       error
	Retryable bool
}

func (e *RetryableError) Error() string {
	return e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// WithRetry executes an operation with configurable retry behavior.
func WithRetry(ctx context.Context, operation func() error, opts service.RetryOptions) error {
	_, err := WithRetryCount(ctx, operation, opts)
	return err
}

// WithRetryCount executes an operation with exponential backoff and reports
// how many retries were needed. Only errors accepted by IsRetryable are
// retried; anything else is returned immediately with the retries so far.
func WithRetryCount(ctx context.Context, operation func() error, opts service.RetryOptions) (int, error) {
	opts = opts.WithDefaults()

	delay := opts.InitialDelay
	retries := 0

	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		err := operation()
		if err == nil {
			return retries, nil
		}

		if !IsRetryable(err) {
			return retries, err
		}

		if attempt == opts.MaxAttempts {
			return retries, fmt.Errorf("%w after %d attempts: %w", ErrMaxRetries, opts.MaxAttempts, err)
		}

		slog.Warn("Operation failed, retrying",
			"attempt", attempt,
			"max_attempts", opts.MaxAttempts,
			"delay", delay,
			"error", err)

		select {
		case <-ctx.Done():
			return retries, ctx.Err()
		case <-time.After(delay):
			delay = time.Duration(float64(delay) * opts.Multiplier)
			if delay > opts.MaxDelay {
				delay = opts.MaxDelay
			}
		}
		retries++
	}

	return retries, ErrMaxRetries
}
