package application

import (
	"errors"
	"fmt"
)

var (
	// ErrForbidden is returned when the acting principal lacks permission for an operation.
	ErrForbidden = errors.New("application: forbidden")
	// ErrArtifactMissing is returned when a requested session, recording, or stored file does not exist.
	ErrArtifactMissing = errors.New("application: artifact missing")
	// ErrAlreadyExists is returned when a unique attribute is already taken.
	ErrAlreadyExists = errors.New("application: already exists")
	// ErrInvalidTransition is returned when an operation is not allowed from the session's current state.
	ErrInvalidTransition = errors.New("application: invalid transition")
	// ErrConcurrentModification is returned when another writer changed a session between read and write.
	ErrConcurrentModification = errors.New("application: concurrent modification")
	// ErrHasRecordings is returned when deleting a session that still owns recordings without cascading.
	ErrHasRecordings = errors.New("application: session has recordings")
	// ErrProviderUnavailable is returned when the meeting provider could not complete a call.
	ErrProviderUnavailable = errors.New("application: provider unavailable")
	// ErrRepairFailed marks a recording whose container could not be made browser compatible.
	ErrRepairFailed = errors.New("application: repair failed")
	// ErrUnauthenticated is returned when no valid credentials accompany a request.
	ErrUnauthenticated = errors.New("application: unauthenticated")
	// ErrAuthExpired is returned when presented credentials were valid but have expired.
	ErrAuthExpired = errors.New("application: authentication expired")
	// ErrInvalidCredentials is returned when an email and password pair does not match.
	ErrInvalidCredentials = errors.New("application: invalid credentials")
	// ErrAccountDisabled is returned when a disabled account attempts to sign in.
	ErrAccountDisabled = errors.New("application: account disabled")
)

// ValidationError captures field level validation issues that callers can surface to users.
type ValidationError struct {
	FieldErrors map[string]string
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if v == nil {
		return ""
	}
	return "validation failed"
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

// add records a field level validation error.
func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	v.FieldErrors[field] = message
}

// merge copies entries from another validation error into the receiver.
func (v *ValidationError) merge(other *ValidationError) {
	if other == nil || len(other.FieldErrors) == 0 {
		return
	}
	for field, msg := range other.FieldErrors {
		v.add(field, msg)
	}
}

// TransitionError describes a lifecycle operation that was refused for a session.
// It unwraps to ErrInvalidTransition or ErrConcurrentModification.
type TransitionError struct {
	SessionID string
	Operation string
	From      SessionStatus
	Reason    string
	Err       error
}

func (e *TransitionError) Error() string {
	if e == nil {
		return ""
	}
	msg := fmt.Sprintf("session %s: cannot %s from %s", e.SessionID, e.Operation, e.From)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *TransitionError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func invalidTransition(session Session, operation, reason string) *TransitionError {
	return &TransitionError{
		SessionID: session.ID,
		Operation: operation,
		From:      session.Status,
		Reason:    reason,
		Err:       ErrInvalidTransition,
	}
}

func concurrentModification(session Session, operation string) *TransitionError {
	return &TransitionError{
		SessionID: session.ID,
		Operation: operation,
		From:      session.Status,
		Reason:    "session was modified by another request",
		Err:       ErrConcurrentModification,
	}
}

// ProviderError wraps a meeting provider failure. Session state is unchanged when it is returned.
type ProviderError struct {
	SessionID string
	Operation string
	Err       error
}

func (e *ProviderError) Error() string {
	if e == nil {
		return ""
	}
	if e.SessionID == "" {
		return fmt.Sprintf("provider %s: %v", e.Operation, e.Err)
	}
	return fmt.Sprintf("session %s: provider %s: %v", e.SessionID, e.Operation, e.Err)
}

// Unwrap exposes both ErrProviderUnavailable and the underlying provider cause.
func (e *ProviderError) Unwrap() []error {
	if e == nil {
		return nil
	}
	return []error{ErrProviderUnavailable, e.Err}
}
