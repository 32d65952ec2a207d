package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/example/live-sessions/internal/application"
)

type completerStub struct {
	calls     atomic.Int32
	completed int
	err       error
	block     chan struct{}
}

func (s *completerStub) CompleteOverdue(ctx context.Context) (int, error) {
	s.calls.Add(1)
	if s.block != nil {
		<-s.block
	}
	return s.completed, s.err
}

type syncerStub struct {
	principal application.Principal
	results   []application.SyncResult
	syncErr   error
	requeued  int
	order     []string
}

func (s *syncerStub) SyncAll(ctx context.Context, principal application.Principal) ([]application.SyncResult, error) {
	s.principal = principal
	s.order = append(s.order, "sync")
	return s.results, s.syncErr
}

func (s *syncerStub) RequeuePending(ctx context.Context) (int, error) {
	s.order = append(s.order, "requeue")
	return s.requeued, nil
}

type prunerStub struct {
	calls int
}

func (p *prunerStub) PruneExpiredSessions(ctx context.Context) error {
	p.calls++
	return nil
}

func TestReconciler_Run(t *testing.T) {
	t.Parallel()

	t.Run("runs every step and summarises results", func(t *testing.T) {
		t.Parallel()

		sessions := &completerStub{completed: 2}
		recordings := &syncerStub{
			results: []application.SyncResult{
				{SessionID: "a", Inserted: make([]application.Recording, 3)},
				{SessionID: "b", Failed: 1},
			},
			requeued: 4,
		}
		pruner := &prunerStub{}
		r, err := NewReconciler(Config{Sessions: sessions, Recordings: recordings, Pruner: pruner})
		if err != nil {
			t.Fatalf("NewReconciler failed: %v", err)
		}

		report, err := r.Run(context.Background())
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		want := Report{Completed: 2, Inserted: 3, Failed: 1, Requeued: 4}
		if report != want {
			t.Fatalf("expected %+v, got %+v", want, report)
		}
		if recordings.principal != application.SystemPrincipal {
			t.Fatalf("expected system principal, got %+v", recordings.principal)
		}
		if len(recordings.order) != 2 || recordings.order[0] != "sync" {
			t.Fatalf("unexpected step order %v", recordings.order)
		}
		if pruner.calls != 1 {
			t.Fatalf("expected one prune, got %d", pruner.calls)
		}
		if last, lastErr := r.Last(); last != want || lastErr != nil {
			t.Fatalf("expected last report to be recorded, got %+v %v", last, lastErr)
		}
	})

	t.Run("continues after a failing step", func(t *testing.T) {
		t.Parallel()

		sessions := &completerStub{err: application.ErrConcurrentModification}
		recordings := &syncerStub{syncErr: application.ErrProviderUnavailable}
		r, err := NewReconciler(Config{Sessions: sessions, Recordings: recordings})
		if err != nil {
			t.Fatalf("NewReconciler failed: %v", err)
		}

		_, err = r.Run(context.Background())
		if !errors.Is(err, application.ErrConcurrentModification) || !errors.Is(err, application.ErrProviderUnavailable) {
			t.Fatalf("expected joined errors, got %v", err)
		}
		if len(recordings.order) != 2 {
			t.Fatalf("expected sync and requeue to run, got %v", recordings.order)
		}
	})
}

func TestNewReconciler_Validation(t *testing.T) {
	t.Parallel()

	if _, err := NewReconciler(Config{}); err == nil {
		t.Fatal("expected error without a session completer")
	}
	if _, err := NewReconciler(Config{Sessions: &completerStub{}, Schedule: "every tuesday"}); err == nil {
		t.Fatal("expected error for an invalid schedule")
	}
}

func TestReconciler_SkipsOverlappingRuns(t *testing.T) {
	t.Parallel()

	sessions := &completerStub{block: make(chan struct{})}
	r, err := NewReconciler(Config{Sessions: sessions, Schedule: "@every 1s", Timeout: time.Minute})
	if err != nil {
		t.Fatalf("NewReconciler failed: %v", err)
	}
	r.Start()

	time.Sleep(2500 * time.Millisecond)
	close(sessions.block)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if got := sessions.calls.Load(); got != 1 {
		t.Fatalf("expected overlapping ticks to be skipped, got %d calls", got)
	}
}
