package provider

import (
	"errors"
	"fmt"
)

var (
	// ErrUnavailable marks transient failures: network errors, throttling and 5xx responses.
	ErrUnavailable = errors.New("provider: unavailable")
	// ErrUnauthorized marks credential failures that must not be retried.
	ErrUnauthorized = errors.New("provider: unauthorized")
	// ErrNotFound is returned when the meeting or recording does not exist upstream.
	ErrNotFound = errors.New("provider: not found")
	// ErrRejected marks non-retryable client errors other than auth and not found.
	ErrRejected = errors.New("provider: request rejected")
)

// StatusError carries the HTTP status returned by the provider.
type StatusError struct {
	Operation  string
	StatusCode int
	Body       string
	kind       error
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("provider %s: status %d", e.Operation, e.StatusCode)
	}
	return fmt.Sprintf("provider %s: status %d: %s", e.Operation, e.StatusCode, e.Body)
}

func (e *StatusError) Unwrap() error {
	return e.kind
}

func classifyStatus(operation string, status int, body string) error {
	err := &StatusError{Operation: operation, StatusCode: status, Body: body}
	switch {
	case status == 401 || status == 403:
		err.kind = ErrUnauthorized
	case status == 404:
		err.kind = ErrNotFound
	case status == 429 || status >= 500:
		err.kind = ErrUnavailable
	default:
		err.kind = ErrRejected
	}
	return err
}
