package dzero

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/jonwraymond/zerocache/resilience"
)

// Sentinel errors for dzero operations.
var (
	// ErrRequestFailed matches every failed call, including *APIError.
	ErrRequestFailed = errors.New("dzero: request failed")

	ErrMissingToken   = errors.New("dzero: token is required")
	ErrInvalidBaseURL = errors.New("dzero: invalid base URL")
)

// APIError is a non-2xx response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("dzero: status %d", e.Status)
	}
	return fmt.Sprintf("dzero: status %d: %s", e.Status, e.Message)
}

// Is makes errors.Is(err, ErrRequestFailed) hold for API errors.
func (e *APIError) Is(target error) bool {
	return target == ErrRequestFailed
}

// Temporary reports whether the status is worth retrying. 501 is a
// permanent answer from backends without /ask.
func (e *APIError) Temporary() bool {
	if e.Status == http.StatusNotImplemented {
		return false
	}
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// Retryable reports whether err is a transient transport failure: a
// network error, a 429, a 5xx other than 501, or a per-attempt timeout
// that fired while the caller's context was still live. Context
// cancellation and client errors are not retryable.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, resilience.ErrTimeout) {
		return true
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	var decodeErr *decodeError
	if errors.As(err, &decodeErr) {
		return false
	}
	return errors.Is(err, ErrRequestFailed)
}

type decodeError struct {
	err error
}

func (e *decodeError) Error() string { return "dzero: decode response: " + e.err.Error() }
func (e *decodeError) Unwrap() error { return e.err }
func (e *decodeError) Is(target error) bool {
	return target == ErrRequestFailed
}
