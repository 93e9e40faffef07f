// Package errors provides structured error types for the maintenance agent.
//
// The taxonomy mirrors how remote failures are handled: retryable errors
// (rate limits, timeouts, 5xx) are retried with backoff by internal/retry,
// terminal errors (auth failures, malformed requests) fail immediately.
package errors

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors for common failure modes.
var (
	ErrTimeout         = errors.New("operation timed out")
	ErrAuthFailure     = errors.New("authentication failed")
	ErrRateLimit       = errors.New("rate limit exceeded")
	ErrNotFound        = errors.New("resource not found")
	ErrInvalidInput    = errors.New("invalid input")
	ErrUnavailable     = errors.New("service unavailable")
	ErrContextTooLarge = errors.New("request context too large")
)

// APIError represents an error from an external API call.
type APIError struct {
	Service    string
	StatusCode int
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s API error (status %d): %s: %v", e.Service, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("%s API error (status %d): %s", e.Service, e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error { return e.Err }

// NewAPIError creates a new API error.
func NewAPIError(service string, statusCode int, message string) *APIError {
	return &APIError{Service: service, StatusCode: statusCode, Message: message}
}

// IsRetryable returns true if the error is likely transient and worth retrying.
// A per-call deadline expiring counts as transient; cancellation of the parent
// context does not.
func IsRetryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 429, 500, 502, 503, 504:
			return true
		}
	}
	return errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrRateLimit) ||
		errors.Is(err, ErrUnavailable) ||
		errors.Is(err, context.DeadlineExceeded)
}

// IsTerminal returns true for errors that no amount of retrying will fix.
func IsTerminal(err error) bool {
	return errors.Is(err, ErrAuthFailure) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrContextTooLarge)
}
