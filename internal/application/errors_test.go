package application

import (
	"errors"
	"fmt"
	"testing"

	"github.com/example/live-sessions/internal/persistence"
)

func TestValidationError_Error(t *testing.T) {
	t.Parallel()

	var err *ValidationError
	if err.Error() != "" {
		t.Fatalf("expected empty string for nil error, got %q", err.Error())
	}

	empty := &ValidationError{}
	if got := empty.Error(); got != "validation failed" {
		t.Fatalf("expected generic message for empty error, got %q", got)
	}

	withFields := &ValidationError{FieldErrors: map[string]string{"field": "invalid"}}
	if got := withFields.Error(); got != "validation failed" {
		t.Fatalf("expected consistent message for populated error, got %q", got)
	}
}

func TestValidationError_HasErrors(t *testing.T) {
	t.Parallel()

	if err := (&ValidationError{}).HasErrors(); err {
		t.Fatalf("expected HasErrors to report false for empty error")
	}

	if err := (&ValidationError{FieldErrors: map[string]string{"field": "bad"}}).HasErrors(); !err {
		t.Fatalf("expected HasErrors to report true when fields are present")
	}
}

func TestValidationError_AddAndMerge(t *testing.T) {
	t.Parallel()

	base := &ValidationError{}
	base.add("first", "value")
	if got := base.FieldErrors["first"]; got != "value" {
		t.Fatalf("expected add to populate map, got %q", got)
	}

	other := &ValidationError{FieldErrors: map[string]string{"second": "another"}}
	base.merge(other)
	if got := base.FieldErrors["second"]; got != "another" {
		t.Fatalf("expected merge to copy field, got %q", got)
	}

	base.merge(nil)
	if len(base.FieldErrors) != 2 {
		t.Fatalf("expected merge with nil to leave fields unchanged")
	}
}

func TestTransitionError_Unwrap(t *testing.T) {
	t.Parallel()

	session := Session{ID: "s1", Status: SessionCompleted}
	err := invalidTransition(session, "cancel", "completed sessions cannot be cancelled")
	if !errors.Is(err, ErrInvalidTransition) || errors.Is(err, ErrConcurrentModification) {
		t.Fatalf("expected invalid transition only, got %v", err)
	}
	if got := err.Error(); got != "session s1: cannot cancel from completed: completed sessions cannot be cancelled" {
		t.Fatalf("unexpected message %q", got)
	}

	conflict := concurrentModification(session, "start")
	if !errors.Is(conflict, ErrConcurrentModification) {
		t.Fatalf("expected concurrent modification, got %v", conflict)
	}
	var tErr *TransitionError
	if !errors.As(fmt.Errorf("wrapped: %w", conflict), &tErr) || tErr.Operation != "start" {
		t.Fatalf("expected TransitionError to survive wrapping")
	}
}

func TestProviderError_Unwrap(t *testing.T) {
	t.Parallel()

	cause := errors.New("502 bad gateway")
	err := &ProviderError{SessionID: "s1", Operation: "create meeting", Err: cause}
	if !errors.Is(err, ErrProviderUnavailable) || !errors.Is(err, cause) {
		t.Fatalf("expected both sentinel and cause, got %v", err)
	}
	if got := err.Error(); got != "session s1: provider create meeting: 502 bad gateway" {
		t.Fatalf("unexpected message %q", got)
	}
}

func TestMapRepoError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   error
		want error
	}{
		{in: persistence.ErrNotFound, want: ErrArtifactMissing},
		{in: persistence.ErrConflict, want: ErrConcurrentModification},
		{in: persistence.ErrDuplicate, want: ErrAlreadyExists},
		{in: persistence.ErrForeignKeyViolation, want: ErrArtifactMissing},
		{in: persistence.ErrHasRecordings, want: ErrHasRecordings},
	}
	for _, tc := range tests {
		if got := mapRepoError(fmt.Errorf("sqlite: %w", tc.in)); !errors.Is(got, tc.want) {
			t.Fatalf("mapRepoError(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
	if mapRepoError(nil) != nil {
		t.Fatalf("expected nil to pass through")
	}
}
