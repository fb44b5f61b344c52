package ncbi

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for classifying failures from NCBI APIs. Typed errors below
// unwrap to these so callers can branch with errors.Is.
var (
	// ErrRateLimited indicates a terminal 429 after retries were exhausted.
	ErrRateLimited = errors.New("rate limited")

	// ErrServiceUnavailable indicates a terminal 5xx after retries were exhausted.
	ErrServiceUnavailable = errors.New("service unavailable")

	// ErrBadQuery indicates a 400 response, usually malformed query syntax.
	ErrBadQuery = errors.New("bad query")

	// ErrUnauthorized indicates a 401 response, usually a bad API key.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNotFound indicates a 404 response or a lookup with no record.
	ErrNotFound = errors.New("not found")

	// ErrNetwork indicates a timeout or transport failure after retries.
	ErrNetwork = errors.New("network failure")

	// ErrNoSession indicates a history-session operation without an active session.
	ErrNoSession = errors.New("no active session")

	// ErrInvalidInput indicates caller-supplied input outside documented limits.
	ErrInvalidInput = errors.New("invalid input")
)

// maxErrorBodyLen bounds response bodies carried inside errors.
const maxErrorBodyLen = 500

// RateLimitError is returned when a 429 persists past the retry ceiling.
type RateLimitError struct {
	// RetryAfter is the server-suggested delay before trying again.
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded after retries, retry after %s", e.RetryAfter)
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }

// ServiceError is returned when a 5xx persists past the retry ceiling.
type ServiceError struct {
	StatusCode int
	// RetryAfter is the suggested delay before trying again.
	RetryAfter time.Duration
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("ncbi service unavailable (status %d), retry after %s", e.StatusCode, e.RetryAfter)
}

func (e *ServiceError) Unwrap() error { return ErrServiceUnavailable }

// APIError is returned for non-retryable 4xx responses. Body carries at most
// maxErrorBodyLen characters of the response for diagnostics.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("ncbi api error (status %d): %s", e.StatusCode, e.Body)
}

// Unwrap maps the status code onto the matching sentinel.
func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case 400:
		return ErrBadQuery
	case 401:
		return ErrUnauthorized
	case 404:
		return ErrNotFound
	}
	return nil
}

// NotFoundError reports a record that does not exist, with enough context for
// the caller to correct the identifier.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// NetworkError wraps a timeout or transport-level failure that persisted past
// the retry ceiling.
type NetworkError struct {
	Cause error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network request failed: %v", e.Cause)
}

func (e *NetworkError) Unwrap() error { return ErrNetwork }

// SessionError reports misuse of the history session manager: no active
// session, or a referenced step that does not exist. These are caller bugs
// and are never retried.
type SessionError struct {
	Message string
	Step    int
}

func (e *SessionError) Error() string { return e.Message }

func (e *SessionError) Unwrap() error { return ErrNoSession }

// BatchTooLargeError reports a batch exceeding a documented ceiling.
type BatchTooLargeError struct {
	Requested int
	Max       int
}

func (e *BatchTooLargeError) Error() string {
	return fmt.Sprintf("batch too large: %d ids, maximum is %d", e.Requested, e.Max)
}

func (e *BatchTooLargeError) Unwrap() error { return ErrInvalidInput }

// statusError maps a non-retryable HTTP status to a typed error, carrying a
// truncated response body for diagnostics.
func statusError(status int, body string) error {
	return &APIError{StatusCode: status, Body: truncate(body, maxErrorBodyLen)}
}

// suggestedRetryAfter returns the retry delay advertised for a given 5xx
// status. Gateways recover faster than the service itself.
func suggestedRetryAfter(status int) time.Duration {
	switch status {
	case 502, 504:
		return 30 * time.Second
	default:
		return 60 * time.Second
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
