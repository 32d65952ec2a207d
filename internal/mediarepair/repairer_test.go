package mediarepair

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"
)

type fakeRunner struct {
	mu        sync.Mutex
	available map[string]bool
	calls     []string
	run       func(name string, args []string) error
}

func (f *fakeRunner) LookPath(file string) (string, error) {
	if f.available[file] {
		return "/usr/bin/" + file, nil
	}
	return "", exec.ErrNotFound
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, name)
	f.mu.Unlock()
	if f.run == nil {
		return nil, nil
	}
	return nil, f.run(name, args)
}

func (f *fakeRunner) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func writeArtifact(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "recording.mp4")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("failed to write artifact: %v", err)
	}
	return path
}

func remuxWritesFastStart(name string, args []string) error {
	if name != "ffmpeg" {
		return errors.New("unexpected tool " + name)
	}
	return os.WriteFile(args[len(args)-1], fastStartFile(), 0o644)
}

func TestRepairRemuxesTrailingIndexWhenMetadataToolMissing(t *testing.T) {
	t.Parallel()

	original := trailingIndexFile()
	path := writeArtifact(t, original)
	runner := &fakeRunner{available: map[string]bool{"ffmpeg": true}, run: remuxWritesFastStart}
	repairer := New(Config{MetadataCommand: "MP4Box", RemuxCommand: "ffmpeg", Runner: runner})

	report, err := repairer.Repair(context.Background(), path)
	if err != nil {
		t.Fatalf("expected repair to succeed, got %v", err)
	}
	if report.Outcome != OutcomeRepaired {
		t.Fatalf("expected repaired outcome, got %s", report.Outcome)
	}
	if len(report.Attempts) != 2 || report.Attempts[0].Result != ResultNotApplicable || report.Attempts[1].Result != ResultFixed {
		t.Fatalf("expected metadata tool skipped then remux fixed, got %+v", report.Attempts)
	}

	layout, err := InspectFile(path)
	if err != nil || !layout.FastStart() {
		t.Fatalf("expected replaced file to be fast start, got %+v (%v)", layout, err)
	}

	backup, err := os.ReadFile(BackupPath(path))
	if err != nil {
		t.Fatalf("expected backup to persist: %v", err)
	}
	if !bytes.Equal(backup, original) {
		t.Fatalf("expected backup to hold original bytes")
	}

	leftovers, _ := filepath.Glob(filepath.Join(filepath.Dir(path), ".recording.remux-*"))
	if len(leftovers) != 0 {
		t.Fatalf("expected temporary remux output to be gone, found %v", leftovers)
	}
}

func TestRepairIsNoOpOnSecondRun(t *testing.T) {
	t.Parallel()

	path := writeArtifact(t, trailingIndexFile())
	runner := &fakeRunner{available: map[string]bool{"ffmpeg": true}, run: remuxWritesFastStart}
	repairer := New(Config{MetadataCommand: "MP4Box", RemuxCommand: "ffmpeg", Runner: runner})

	if _, err := repairer.Repair(context.Background(), path); err != nil {
		t.Fatalf("first repair failed: %v", err)
	}
	calls := runner.callCount()

	report, err := repairer.Repair(context.Background(), path)
	if err != nil {
		t.Fatalf("second repair failed: %v", err)
	}
	if report.Outcome != OutcomeAlreadyFastStart {
		t.Fatalf("expected second run to be a no-op, got %s", report.Outcome)
	}
	if runner.callCount() != calls {
		t.Fatalf("expected no further tool invocations, got %d after %d", runner.callCount(), calls)
	}

	needs, err := repairer.NeedsRepair(path)
	if err != nil || needs {
		t.Fatalf("expected repaired file to need no repair, got %v (%v)", needs, err)
	}
}

func TestRepairPrefersMetadataTool(t *testing.T) {
	t.Parallel()

	path := writeArtifact(t, trailingIndexFile())
	runner := &fakeRunner{
		available: map[string]bool{"MP4Box": true, "ffmpeg": true},
		run: func(name string, args []string) error {
			if name != "MP4Box" {
				return errors.New("remux should not run")
			}
			return os.WriteFile(args[len(args)-1], fastStartFile(), 0o644)
		},
	}
	repairer := New(Config{MetadataCommand: "MP4Box", RemuxCommand: "ffmpeg", Runner: runner})

	report, err := repairer.Repair(context.Background(), path)
	if err != nil {
		t.Fatalf("expected repair to succeed, got %v", err)
	}
	if len(report.Attempts) != 1 || report.Attempts[0].Strategy != "metadata_tool" {
		t.Fatalf("expected chain to stop after metadata tool, got %+v", report.Attempts)
	}
}

func TestRepairFallsThroughFailedRemuxToInspection(t *testing.T) {
	t.Parallel()

	original := trailingIndexFile()
	path := writeArtifact(t, original)
	runner := &fakeRunner{
		available: map[string]bool{"ffmpeg": true},
		run:       func(string, []string) error { return errors.New("exit status 1") },
	}
	repairer := New(Config{MetadataCommand: "MP4Box", RemuxCommand: "ffmpeg", Runner: runner})

	report, err := repairer.Repair(context.Background(), path)
	if !errors.Is(err, ErrRepairFailed) {
		t.Fatalf("expected ErrRepairFailed, got %v", err)
	}
	if report.Outcome != OutcomeFailed || len(report.Attempts) != 3 {
		t.Fatalf("expected all three strategies to run, got %+v", report)
	}
	current, _ := os.ReadFile(path)
	if !bytes.Equal(current, original) {
		t.Fatalf("expected original file to stay untouched")
	}
	if _, err := os.Stat(report.BackupPath); err != nil {
		t.Fatalf("expected backup after failed repair: %v", err)
	}
}

func TestRepairAcceptsIndexNearStartWithoutTools(t *testing.T) {
	t.Parallel()

	data := concat(box("ftyp", 8), box("mdat", 0), box(boxMovie, 16), box("free", 4000))
	path := writeArtifact(t, data)
	repairer := New(Config{MetadataCommand: "MP4Box", RemuxCommand: "ffmpeg", Runner: &fakeRunner{}})

	report, err := repairer.Repair(context.Background(), path)
	if err != nil {
		t.Fatalf("expected inspection to accept file, got %v", err)
	}
	if report.Outcome != OutcomeAcceptable {
		t.Fatalf("expected acceptable outcome, got %s", report.Outcome)
	}
	current, _ := os.ReadFile(path)
	if !bytes.Equal(current, data) {
		t.Fatalf("expected inspection not to rewrite the file")
	}
}

func TestBackupIsNeverOverwritten(t *testing.T) {
	t.Parallel()

	path := writeArtifact(t, trailingIndexFile())
	if err := os.WriteFile(BackupPath(path), []byte("first"), 0o644); err != nil {
		t.Fatalf("failed to seed backup: %v", err)
	}
	repairer := New(Config{Runner: &fakeRunner{}})
	_, _ = repairer.Repair(context.Background(), path)

	backup, _ := os.ReadFile(BackupPath(path))
	if string(backup) != "first" {
		t.Fatalf("expected existing backup to be retained, got %q", backup)
	}
}

func TestCapabilitiesReportToolAvailability(t *testing.T) {
	t.Parallel()

	repairer := New(Config{MetadataCommand: "MP4Box", RemuxCommand: "ffmpeg", Runner: &fakeRunner{available: map[string]bool{"ffmpeg": true}}})
	caps := repairer.Capabilities()
	if len(caps) != 2 {
		t.Fatalf("expected two tool-backed strategies, got %d", len(caps))
	}
	if caps[0].Available || !caps[1].Available {
		t.Fatalf("expected only ffmpeg to be available, got %+v", caps)
	}
}
