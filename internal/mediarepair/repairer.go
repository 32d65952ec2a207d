package mediarepair

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// BackupSuffix is appended to the original file name for the pre-repair copy.
const BackupSuffix = ".backup"

// ErrRepairFailed is returned when every strategy declined or failed.
var ErrRepairFailed = errors.New("mediarepair: repair failed")

// Report describes one repair run.
type Report struct {
	Path       string
	BackupPath string
	Outcome    Outcome
	Attempts   []Attempt
	Note       string
}

// Config wires the external tools used by the default chain.
type Config struct {
	MetadataCommand string
	MetadataArgs    []string
	RemuxCommand    string
	RemuxArgs       []string
	Timeout         time.Duration
	Runner          Runner
	Logger          *slog.Logger
}

// Repairer runs the strategy chain against artifacts on local disk.
type Repairer struct {
	strategies []Strategy
	logger     *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New returns a Repairer with the metadata tool, remux and inspection strategies in that order.
func New(cfg Config) *Repairer {
	runner := runnerOrDefault(cfg.Runner)
	return NewWithStrategies(cfg.Logger,
		MetadataTool{Command: cfg.MetadataCommand, Args: cfg.MetadataArgs, Timeout: cfg.Timeout, Runner: runner},
		Remux{Command: cfg.RemuxCommand, Args: cfg.RemuxArgs, Timeout: cfg.Timeout, Runner: runner},
		Inspection{Threshold: DefaultInspectionThreshold},
	)
}

// NewWithStrategies returns a Repairer running the given strategies in order.
func NewWithStrategies(logger *slog.Logger, strategies ...Strategy) *Repairer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repairer{
		strategies: strategies,
		logger:     logger,
		locks:      make(map[string]*sync.Mutex),
	}
}

// NeedsRepair reports whether the file is not already fast-start.
func (r *Repairer) NeedsRepair(path string) (bool, error) {
	layout, err := InspectFile(path)
	if err != nil {
		if errors.Is(err, ErrMalformedContainer) {
			return true, nil
		}
		return false, err
	}
	return !layout.FastStart(), nil
}

// Capability describes whether a tool-backed strategy can run on this host.
type Capability struct {
	Strategy  string
	Command   string
	Path      string
	Available bool
}

// Capabilities reports which external tools are available.
func (r *Repairer) Capabilities() []Capability {
	var caps []Capability
	for _, s := range r.strategies {
		p, ok := s.(Prober)
		if !ok {
			continue
		}
		command, path, available := p.Probe()
		caps = append(caps, Capability{Strategy: s.Name(), Command: command, Path: path, Available: available})
	}
	return caps
}

// Repair makes the file at path fast-start when possible. Files that already
// are fast-start are left untouched. A nil error with OutcomeAcceptable means
// the container was judged fine without rewriting. When every step fails the
// returned error wraps ErrRepairFailed and the original bytes remain available
// at the backup path.
func (r *Repairer) Repair(ctx context.Context, path string) (report Report, err error) {
	report = Report{Path: path}
	logger := r.logger.With("path", path)
	defer func() {
		if err != nil {
			logger.WarnContext(ctx, "container repair failed", "error", err, "outcome", report.Outcome)
			return
		}
		logger.InfoContext(ctx, "container repair finished", "outcome", report.Outcome)
	}()

	info, err := os.Stat(path)
	if err != nil {
		return report, err
	}
	if info.Size() == 0 {
		report.Outcome = OutcomeFailed
		return report, ErrEmptyArtifact
	}

	if layout, perr := InspectFile(path); perr == nil && layout.FastStart() {
		report.Outcome = OutcomeAlreadyFastStart
		report.Note = "movie box already precedes media data"
		return report, nil
	}

	target := Target{Path: path, Size: info.Size(), Lock: r.lockFor(path)}

	unlock := target.Lock()
	backup, err := ensureBackup(path)
	unlock()
	if err != nil {
		report.Outcome = OutcomeFailed
		return report, fmt.Errorf("create backup: %w", err)
	}
	report.BackupPath = backup

	for _, strategy := range r.strategies {
		if cerr := ctx.Err(); cerr != nil {
			report.Outcome = OutcomeFailed
			return report, cerr
		}
		attempt := strategy.Apply(ctx, target)
		report.Attempts = append(report.Attempts, attempt)
		logger.DebugContext(ctx, "repair strategy finished",
			"strategy", attempt.Strategy,
			"result", attempt.Result.String(),
			"detail", attempt.Detail,
		)
		if attempt.Result == ResultFixed {
			report.Outcome = attempt.Outcome
			if report.Outcome == "" {
				report.Outcome = OutcomeRepaired
			}
			report.Note = attempt.Detail
			return report, nil
		}
		report.Note = attempt.Detail
	}

	report.Outcome = OutcomeFailed
	return report, fmt.Errorf("%w: %s", ErrRepairFailed, report.Note)
}

func (r *Repairer) lockFor(path string) func() func() {
	key := filepath.Clean(path)
	return func() func() {
		r.mu.Lock()
		m, ok := r.locks[key]
		if !ok {
			m = &sync.Mutex{}
			r.locks[key] = m
		}
		r.mu.Unlock()
		m.Lock()
		return m.Unlock
	}
}

// BackupPath returns the sibling path holding the pre-repair copy of path.
func BackupPath(path string) string {
	return path + BackupSuffix
}

func ensureBackup(path string) (string, error) {
	backup := BackupPath(path)
	if _, err := os.Stat(backup); err == nil {
		return backup, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", err
	}

	src, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer src.Close()

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(backup)+".tmp-*")
	if err != nil {
		return "", err
	}
	tmpPath := tmp.Name()
	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", err
	}
	if err := os.Rename(tmpPath, backup); err != nil {
		os.Remove(tmpPath)
		return "", err
	}
	return backup, nil
}
