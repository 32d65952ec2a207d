package mediarepair

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Result is the tri-state outcome of one strategy.
type Result int

const (
	// ResultNotApplicable means the strategy could not run, usually because its tool is missing.
	ResultNotApplicable Result = iota
	// ResultFixed means the file is now acceptable and the chain stops.
	ResultFixed
	// ResultFailed means the strategy ran and did not fix the file.
	ResultFailed
)

func (r Result) String() string {
	switch r {
	case ResultFixed:
		return "fixed"
	case ResultFailed:
		return "failed"
	default:
		return "not_applicable"
	}
}

// Outcome summarises a whole repair run.
type Outcome string

const (
	OutcomeAlreadyFastStart Outcome = "not_needed"
	OutcomeRepaired         Outcome = "repaired"
	OutcomeAcceptable       Outcome = "acceptable"
	OutcomeFailed           Outcome = "failed"
)

// Target is the artifact handed to each strategy.
type Target struct {
	Path string
	Size int64
	// Lock serialises replacement of the file at Path across concurrent repairs.
	Lock func() (unlock func())
}

// Attempt records what one strategy did.
type Attempt struct {
	Strategy string
	Result   Result
	Outcome  Outcome
	Detail   string
	Err      error
}

// Strategy is one step of the repair chain.
type Strategy interface {
	Name() string
	Apply(ctx context.Context, target Target) Attempt
}

// Prober is implemented by strategies that depend on an external tool.
type Prober interface {
	Probe() (command string, path string, ok bool)
}

// MetadataTool rewrites box order in place with a metadata tagging tool.
type MetadataTool struct {
	Command string
	Args    []string
	Timeout time.Duration
	Runner  Runner
}

// DefaultMetadataArgs interleaves the file in place, which writes the movie box first.
var DefaultMetadataArgs = []string{"-inter", "500", "{input}"}

func (m MetadataTool) Name() string { return "metadata_tool" }

func (m MetadataTool) Probe() (string, string, bool) {
	path, err := runnerOrDefault(m.Runner).LookPath(m.Command)
	return m.Command, path, err == nil
}

func (m MetadataTool) Apply(ctx context.Context, target Target) Attempt {
	attempt := Attempt{Strategy: m.Name()}
	runner := runnerOrDefault(m.Runner)

	if strings.TrimSpace(m.Command) == "" {
		attempt.Result = ResultNotApplicable
		attempt.Detail = "no metadata tool configured"
		return attempt
	}
	if _, err := runner.LookPath(m.Command); err != nil {
		attempt.Result = ResultNotApplicable
		attempt.Detail = fmt.Sprintf("%s not available", m.Command)
		return attempt
	}

	args := m.Args
	if len(args) == 0 {
		args = DefaultMetadataArgs
	}

	runCtx, cancel := withTimeout(ctx, m.Timeout)
	defer cancel()

	unlock := target.Lock()
	_, err := runner.Run(runCtx, m.Command, expandArgs(args, target.Path, target.Path)...)
	unlock()
	if err != nil {
		attempt.Result = ResultFailed
		attempt.Err = err
		attempt.Detail = "metadata tool exited with an error"
		return attempt
	}

	layout, err := InspectFile(target.Path)
	if err != nil || !layout.FastStart() {
		attempt.Result = ResultFailed
		attempt.Err = err
		attempt.Detail = "metadata tool finished but the movie box still follows the media data"
		return attempt
	}

	attempt.Result = ResultFixed
	attempt.Outcome = OutcomeRepaired
	attempt.Detail = "movie box relocated in place"
	return attempt
}

// Remux performs a stream-copy remux into a temporary file and renames it over the original.
type Remux struct {
	Command string
	Args    []string
	Timeout time.Duration
	Runner  Runner
}

// DefaultRemuxArgs copies every stream without re-encoding and requests fast start.
var DefaultRemuxArgs = []string{"-y", "-v", "error", "-i", "{input}", "-map", "0", "-c", "copy", "-movflags", "+faststart", "{output}"}

func (r Remux) Name() string { return "remux" }

func (r Remux) Probe() (string, string, bool) {
	path, err := runnerOrDefault(r.Runner).LookPath(r.Command)
	return r.Command, path, err == nil
}

func (r Remux) Apply(ctx context.Context, target Target) Attempt {
	attempt := Attempt{Strategy: r.Name()}
	runner := runnerOrDefault(r.Runner)

	if strings.TrimSpace(r.Command) == "" {
		attempt.Result = ResultNotApplicable
		attempt.Detail = "no remux tool configured"
		return attempt
	}
	if _, err := runner.LookPath(r.Command); err != nil {
		attempt.Result = ResultNotApplicable
		attempt.Detail = fmt.Sprintf("%s not available", r.Command)
		return attempt
	}

	dir, base := filepath.Split(target.Path)
	ext := filepath.Ext(base)
	tmp, err := os.CreateTemp(dir, "."+strings.TrimSuffix(base, ext)+".remux-*"+ext)
	if err != nil {
		attempt.Result = ResultFailed
		attempt.Err = err
		attempt.Detail = "could not create temporary output"
		return attempt
	}
	tmpPath := tmp.Name()
	_ = tmp.Close()
	defer os.Remove(tmpPath)

	args := r.Args
	if len(args) == 0 {
		args = DefaultRemuxArgs
	}

	runCtx, cancel := withTimeout(ctx, r.Timeout)
	defer cancel()

	if _, err := runner.Run(runCtx, r.Command, expandArgs(args, target.Path, tmpPath)...); err != nil {
		attempt.Result = ResultFailed
		attempt.Err = err
		attempt.Detail = "remux exited with an error"
		return attempt
	}

	layout, err := InspectFile(tmpPath)
	if err != nil || !layout.FastStart() {
		attempt.Result = ResultFailed
		attempt.Err = err
		attempt.Detail = "remux output is not fast-start"
		return attempt
	}

	unlock := target.Lock()
	err = os.Rename(tmpPath, target.Path)
	unlock()
	if err != nil {
		attempt.Result = ResultFailed
		attempt.Err = err
		attempt.Detail = "could not replace original with remuxed file"
		return attempt
	}

	attempt.Result = ResultFixed
	attempt.Outcome = OutcomeRepaired
	attempt.Detail = "remuxed with movie box first"
	return attempt
}

// Inspection scans raw bytes for the movie box marker and never rewrites the file.
type Inspection struct {
	// Threshold is the fraction of the file within which the marker is accepted.
	Threshold float64
}

// DefaultInspectionThreshold accepts a marker within the first tenth of the file.
const DefaultInspectionThreshold = 0.10

func (i Inspection) Name() string { return "inspection" }

func (i Inspection) Apply(ctx context.Context, target Target) Attempt {
	attempt := Attempt{Strategy: i.Name()}
	if err := ctx.Err(); err != nil {
		attempt.Result = ResultFailed
		attempt.Err = err
		return attempt
	}

	threshold := i.Threshold
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultInspectionThreshold
	}

	f, err := os.Open(target.Path)
	if err != nil {
		attempt.Result = ResultFailed
		attempt.Err = err
		attempt.Detail = "could not open file for inspection"
		return attempt
	}
	defer f.Close()

	offset, found, err := ScanMarker(f)
	if err != nil {
		attempt.Result = ResultFailed
		attempt.Err = err
		attempt.Detail = "could not scan file"
		return attempt
	}
	if !found {
		attempt.Result = ResultFailed
		attempt.Detail = "movie box not found; file requires an external remux tool"
		return attempt
	}

	if target.Size > 0 && float64(offset) <= float64(target.Size)*threshold {
		attempt.Result = ResultFixed
		attempt.Outcome = OutcomeAcceptable
		attempt.Detail = fmt.Sprintf("movie box at offset %d is near the start; playback issues are likely codec related", offset)
		return attempt
	}

	attempt.Result = ResultFailed
	attempt.Detail = fmt.Sprintf("movie box at offset %d of %d; file requires an external remux tool", offset, target.Size)
	return attempt
}

func runnerOrDefault(r Runner) Runner {
	if r == nil {
		return ExecRunner{}
	}
	return r
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
