package render

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrCancelled means the caller's context was cancelled mid-flight.
	// It is not a failure and must never be surfaced to the user.
	ErrCancelled = errors.New("render cancelled")

	// ErrNetworkFailure covers transport errors and non-success responses.
	ErrNetworkFailure = errors.New("render request failed")

	// ErrEmptyResult is a success response without any asset. It is treated as
	// a network failure: errors.Is(ErrEmptyResult, ErrNetworkFailure) is true.
	ErrEmptyResult = fmt.Errorf("%w: server response did not contain image data", ErrNetworkFailure)
)

// IsCancelled reports whether err is a cooperative cancellation rather than a failure.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled)
}

// StatusError carries the backend's status code and message for a rejected request.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend returned status %d: %s", e.StatusCode, e.Message)
}

// Unwrap lets errors.Is(err, ErrNetworkFailure) match status errors.
func (e *StatusError) Unwrap() error {
	return ErrNetworkFailure
}
