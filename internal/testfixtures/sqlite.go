package testfixtures

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/example/live-sessions/internal/persistence/sqlite"
	"github.com/example/live-sessions/internal/persistence/sqlite/migration"
)

// SQLiteHarness provides migrated SQLite storage in a temporary directory for
// integration-style tests.
type SQLiteHarness struct {
	*sqlite.Storage

	Path string
}

// NewSQLiteHarness opens and migrates a temporary database. The storage is closed
// through tb.Cleanup.
func NewSQLiteHarness(tb testing.TB) *SQLiteHarness {
	tb.Helper()

	path := filepath.Join(tb.TempDir(), "livesessions.db")
	storage, err := sqlite.Open(migration.DefaultSQLiteConfig(path), nil)
	if err != nil {
		tb.Fatalf("failed to open storage: %v", err)
	}
	tb.Cleanup(func() { _ = storage.Close() })

	if err := storage.Migrate(context.Background()); err != nil {
		tb.Fatalf("failed to migrate storage: %v", err)
	}
	return &SQLiteHarness{Storage: storage, Path: path}
}

// SeedUsers inserts user fixtures.
func (h *SQLiteHarness) SeedUsers(tb testing.TB, users ...UserFixture) {
	tb.Helper()
	for _, u := range users {
		if err := h.Users.CreateUser(context.Background(), u.Persistence()); err != nil {
			tb.Fatalf("failed to seed user %s: %v", u.ID, err)
		}
	}
}

// SeedSessions inserts session fixtures.
func (h *SQLiteHarness) SeedSessions(tb testing.TB, sessions ...SessionFixture) {
	tb.Helper()
	for _, s := range sessions {
		if err := h.Sessions.CreateLiveSession(context.Background(), s.Persistence()); err != nil {
			tb.Fatalf("failed to seed session %s: %v", s.ID, err)
		}
	}
}

// SeedRecordings inserts recording fixtures. Their sessions must already exist.
func (h *SQLiteHarness) SeedRecordings(tb testing.TB, recordings ...RecordingFixture) {
	tb.Helper()
	for _, r := range recordings {
		if err := h.Recordings.CreateRecording(context.Background(), r.Persistence()); err != nil {
			tb.Fatalf("failed to seed recording %s: %v", r.ID, err)
		}
	}
}
