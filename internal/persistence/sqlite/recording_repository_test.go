package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/live-sessions/internal/persistence"
)

func testRecording(id, sessionID, providerID string) persistence.Recording {
	return persistence.Recording{
		ID:                  id,
		SessionID:           sessionID,
		ProviderRecordingID: providerID,
		Title:               "Recording " + id,
		FileName:            id + ".mp4",
		ContentType:         "video/mp4",
		StorageURL:          "/media/" + id + ".mp4",
		SizeBytes:           1024,
		DurationSeconds:     3600,
		RecordedAt:          baseTime,
		Visible:             true,
		RepairStatus:        "pending",
		CreatedAt:           baseTime,
		UpdatedAt:           baseTime,
	}
}

func TestRecordingRepository(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	storage := openTestStorage(t)
	repo := storage.Recordings
	seedSession(t, storage, "s1", "inst-1", baseTime, "completed")

	if err := repo.CreateRecording(ctx, testRecording("r1", "s1", "prov-1")); err != nil {
		t.Fatalf("CreateRecording failed: %v", err)
	}

	t.Run("provider id is unique per session", func(t *testing.T) {
		if err := repo.CreateRecording(ctx, testRecording("r2", "s1", "prov-1")); !errors.Is(err, persistence.ErrDuplicate) {
			t.Fatalf("expected ErrDuplicate, got %v", err)
		}
	})

	t.Run("uploads without provider id do not collide", func(t *testing.T) {
		for _, id := range []string{"u1", "u2"} {
			rec := testRecording(id, "s1", "")
			rec.RepairStatus = "not_needed"
			rec.RecordedAt = baseTime.Add(time.Minute)
			if err := repo.CreateRecording(ctx, rec); err != nil {
				t.Fatalf("CreateRecording %s failed: %v", id, err)
			}
		}
	})

	t.Run("session must exist", func(t *testing.T) {
		if err := repo.CreateRecording(ctx, testRecording("r9", "missing", "prov-9")); !errors.Is(err, persistence.ErrForeignKeyViolation) {
			t.Fatalf("expected ErrForeignKeyViolation, got %v", err)
		}
	})

	t.Run("update and views", func(t *testing.T) {
		rec, err := repo.GetRecording(ctx, "r1")
		if err != nil {
			t.Fatalf("GetRecording failed: %v", err)
		}
		rec.RepairStatus = "failed"
		rec.FallbackURL = "/media/r1.mp4.backup"
		rec.Visible = false
		if err := repo.UpdateRecording(ctx, rec); err != nil {
			t.Fatalf("UpdateRecording failed: %v", err)
		}
		if err := repo.IncrementViewCount(ctx, "r1"); err != nil {
			t.Fatalf("IncrementViewCount failed: %v", err)
		}

		got, err := repo.GetRecording(ctx, "r1")
		if err != nil {
			t.Fatalf("GetRecording failed: %v", err)
		}
		if got.RepairStatus != "failed" || got.FallbackURL == "" || got.Visible || got.ViewCount != 1 {
			t.Fatalf("unexpected recording %#v", got)
		}
		if err := repo.IncrementViewCount(ctx, "missing"); !errors.Is(err, persistence.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("listing", func(t *testing.T) {
		all, err := repo.ListRecordingsBySession(ctx, "s1")
		if err != nil || len(all) != 3 || all[0].ID != "r1" {
			t.Fatalf("unexpected session listing %v err=%v", all, err)
		}
		failed, err := repo.ListRecordingsByRepairStatus(ctx, "failed")
		if err != nil || len(failed) != 1 || failed[0].ID != "r1" {
			t.Fatalf("unexpected repair listing %v err=%v", failed, err)
		}
	})

	t.Run("invalid repair status", func(t *testing.T) {
		rec := testRecording("r3", "s1", "prov-3")
		rec.RepairStatus = "mangled"
		if err := repo.CreateRecording(ctx, rec); !errors.Is(err, persistence.ErrConstraintViolation) {
			t.Fatalf("expected ErrConstraintViolation, got %v", err)
		}
	})
}

func TestAttendanceRepository_FirstJoinWins(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	storage := openTestStorage(t)
	repo := storage.Attendance
	seedSession(t, storage, "s1", "inst-1", baseTime, "live")

	created, err := repo.InsertAttendance(ctx, persistence.Attendance{SessionID: "s1", UserID: "u1", JoinedAt: baseTime})
	if err != nil || !created {
		t.Fatalf("expected first insert to create, got %v err=%v", created, err)
	}
	created, err = repo.InsertAttendance(ctx, persistence.Attendance{SessionID: "s1", UserID: "u1", JoinedAt: baseTime.Add(time.Minute)})
	if err != nil || created {
		t.Fatalf("expected second insert to be ignored, got %v err=%v", created, err)
	}

	got, err := repo.GetAttendance(ctx, "s1", "u1")
	if err != nil || !got.JoinedAt.Equal(baseTime) {
		t.Fatalf("expected the first join time, got %#v err=%v", got, err)
	}

	left := baseTime.Add(30 * time.Minute)
	got.LeftAt = &left
	if err := repo.UpdateAttendance(ctx, got); err != nil {
		t.Fatalf("UpdateAttendance failed: %v", err)
	}
	records, err := repo.ListAttendance(ctx, "s1")
	if err != nil || len(records) != 1 || records[0].LeftAt == nil || !records[0].LeftAt.Equal(left) {
		t.Fatalf("unexpected attendance %v err=%v", records, err)
	}

	if err := repo.UpdateAttendance(ctx, persistence.Attendance{SessionID: "s1", UserID: "nobody"}); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := repo.InsertAttendance(ctx, persistence.Attendance{SessionID: "missing", UserID: "u1", JoinedAt: baseTime}); !errors.Is(err, persistence.ErrForeignKeyViolation) {
		t.Fatalf("expected ErrForeignKeyViolation, got %v", err)
	}
}
