package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/example/live-sessions/internal/persistence"
	"github.com/example/live-sessions/internal/persistence/sqlite/migration"
)

var baseTime = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func openTestStorage(t *testing.T) *Storage {
	t.Helper()

	config := migration.DefaultSQLiteConfig(filepath.Join(t.TempDir(), "test.db"))
	storage, err := Open(config, nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { storage.Close() })

	if err := storage.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	return storage
}

func seedSession(t *testing.T, storage *Storage, id, instructorID string, start time.Time, status string) persistence.LiveSession {
	t.Helper()

	session := persistence.LiveSession{
		ID:              id,
		CourseID:        "course-1",
		InstructorID:    instructorID,
		Title:           "Session " + id,
		StartTime:       start,
		DurationMinutes: 60,
		SessionType:     "live-class",
		Status:          status,
		Timezone:        "UTC",
		MeetingID:       "meeting-" + id,
		JoinURL:         "https://meet.example.com/" + id,
		CreatedAt:       baseTime,
		UpdatedAt:       baseTime,
	}
	if err := storage.Sessions.CreateLiveSession(context.Background(), session); err != nil {
		t.Fatalf("CreateLiveSession failed: %v", err)
	}
	return session
}

func TestStorage_MigrateIsIdempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	storage := openTestStorage(t)
	if err := storage.Migrate(ctx); err != nil {
		t.Fatalf("second Migrate failed: %v", err)
	}

	status, err := storage.SchemaStatus(ctx)
	if err != nil {
		t.Fatalf("SchemaStatus failed: %v", err)
	}
	if status.CurrentVersion != "001" || len(status.Pending) != 0 {
		t.Fatalf("unexpected schema status %#v", status)
	}
	if err := storage.Ping(ctx); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
}

func TestErrorMapper_MapsConstraintFailures(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	storage := openTestStorage(t)

	_, err := storage.pool.DB().ExecContext(ctx,
		`INSERT INTO live_sessions (id, course_id, instructor_id, title, start_time, duration_minutes, session_type, status, timezone, created_at, updated_at)
		VALUES ('bad', 'c', 'i', 't', ?, 0, 'quiz', 'scheduled', 'UTC', ?, ?)`,
		formatTime(baseTime), formatTime(baseTime), formatTime(baseTime),
	)
	if mapped := NewErrorMapper().MapError(err); !errors.Is(mapped, persistence.ErrConstraintViolation) {
		t.Fatalf("expected ErrConstraintViolation, got %v", mapped)
	}

	if mapped := NewErrorMapper().MapError(nil); mapped != nil {
		t.Fatalf("expected nil, got %v", mapped)
	}
}

func TestRetryHelper_StopsOnPermanentError(t *testing.T) {
	t.Parallel()

	calls := 0
	helper := NewRetryHelper(RetryConfig{MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffFactor: 2})
	err := helper.WithRetry(context.Background(), func() error {
		calls++
		if calls == 1 {
			return errors.New("database is locked")
		}
		return errors.New("UNIQUE constraint failed: users.email")
	})
	if !errors.Is(err, persistence.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", calls)
	}
}

func TestFormatTime_SortsLexically(t *testing.T) {
	t.Parallel()

	early := formatTime(baseTime)
	late := formatTime(baseTime.Add(1500 * time.Millisecond))
	if !(early < late) {
		t.Fatalf("expected %q < %q", early, late)
	}

	parsed, err := parseTime("t", late)
	if err != nil || !parsed.Equal(baseTime.Add(1500*time.Millisecond)) {
		t.Fatalf("round trip failed: %v %v", parsed, err)
	}
}
