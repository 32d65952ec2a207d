// Package jobs runs periodic reconciliation of session and recording state.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/example/live-sessions/internal/application"
)

const (
	DefaultSchedule = "@every 10m"
	DefaultTimeout  = 5 * time.Minute
)

// OverdueCompleter persists completion of sessions past their end time.
type OverdueCompleter interface {
	CompleteOverdue(ctx context.Context) (int, error)
}

// RecordingSyncer pulls provider recordings and requeues unfinished repairs.
type RecordingSyncer interface {
	SyncAll(ctx context.Context, principal application.Principal) ([]application.SyncResult, error)
	RequeuePending(ctx context.Context) (int, error)
}

// SessionPruner removes expired refresh sessions.
type SessionPruner interface {
	PruneExpiredSessions(ctx context.Context) error
}

// Config wires the reconciler. Recordings and Pruner are optional.
type Config struct {
	Schedule   string
	Timeout    time.Duration
	Sessions   OverdueCompleter
	Recordings RecordingSyncer
	Pruner     SessionPruner
	Logger     *slog.Logger
}

// Report summarises one reconciliation run.
type Report struct {
	Completed int
	Inserted  int
	Failed    int
	Requeued  int
}

// Reconciler runs Run on a cron schedule. Overlapping runs are skipped.
type Reconciler struct {
	cfg    Config
	cron   *cron.Cron
	logger *slog.Logger

	mu      sync.Mutex
	last    Report
	lastErr error
}

func NewReconciler(cfg Config) (*Reconciler, error) {
	if cfg.Sessions == nil {
		return nil, errors.New("jobs: session completer is required")
	}
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultSchedule
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "reconciler")

	cronLogger := slogCronLogger{logger: logger}
	r := &Reconciler{
		cfg:    cfg,
		logger: logger,
		cron:   cron.New(cron.WithLogger(cronLogger), cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger))),
	}
	if _, err := r.cron.AddFunc(cfg.Schedule, r.tick); err != nil {
		return nil, fmt.Errorf("jobs: invalid schedule %q: %w", cfg.Schedule, err)
	}
	return r, nil
}

// Start begins scheduling in the background.
func (r *Reconciler) Start() {
	r.logger.Info("reconciler started", "schedule", r.cfg.Schedule, "timeout", r.cfg.Timeout)
	r.cron.Start()
}

// Stop halts scheduling and waits for a running pass until ctx is done.
func (r *Reconciler) Stop(ctx context.Context) error {
	done := r.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Last returns the outcome of the most recent run.
func (r *Reconciler) Last() (Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last, r.lastErr
}

func (r *Reconciler) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.Timeout)
	defer cancel()
	_, _ = r.Run(ctx)
}

// Run completes overdue sessions, then pulls recordings for every completed
// session, then requeues pending repairs. A failing step does not stop later ones.
func (r *Reconciler) Run(ctx context.Context) (report Report, err error) {
	start := time.Now()
	defer func() {
		r.mu.Lock()
		r.last, r.lastErr = report, err
		r.mu.Unlock()

		attrs := []any{
			"completed", report.Completed,
			"inserted", report.Inserted,
			"failed", report.Failed,
			"requeued", report.Requeued,
			"duration", time.Since(start),
		}
		if err != nil {
			r.logger.ErrorContext(ctx, "reconciliation finished with errors", append(attrs, "error", err, "error_kind", application.ErrorKind(err))...)
			return
		}
		r.logger.InfoContext(ctx, "reconciliation finished", attrs...)
	}()

	var errs []error

	completed, cErr := r.cfg.Sessions.CompleteOverdue(ctx)
	report.Completed = completed
	if cErr != nil {
		errs = append(errs, fmt.Errorf("complete overdue: %w", cErr))
	}

	if r.cfg.Recordings != nil {
		results, sErr := r.cfg.Recordings.SyncAll(ctx, application.SystemPrincipal)
		for _, res := range results {
			report.Inserted += len(res.Inserted)
			report.Failed += res.Failed
		}
		if sErr != nil {
			errs = append(errs, fmt.Errorf("sync recordings: %w", sErr))
		}

		requeued, qErr := r.cfg.Recordings.RequeuePending(ctx)
		report.Requeued = requeued
		if qErr != nil {
			errs = append(errs, fmt.Errorf("requeue repairs: %w", qErr))
		}
	}

	if r.cfg.Pruner != nil {
		if pErr := r.cfg.Pruner.PruneExpiredSessions(ctx); pErr != nil {
			errs = append(errs, fmt.Errorf("prune auth sessions: %w", pErr))
		}
	}

	err = errors.Join(errs...)
	return
}

// slogCronLogger adapts slog to cron.Logger.
type slogCronLogger struct {
	logger *slog.Logger
}

func (l slogCronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l slogCronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
