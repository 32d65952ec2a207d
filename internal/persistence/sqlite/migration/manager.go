package migration

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"strconv"
)

// Manager applies pending migrations from a file system in version order.
type Manager struct {
	fsys     fs.FS
	dir      string
	executor Executor
	logger   *slog.Logger
}

// NewManager creates a Manager reading migrations from dir within fsys.
func NewManager(fsys fs.FS, dir string, executor Executor, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{fsys: fsys, dir: dir, executor: executor, logger: logger.With("component", "migration")}
}

// Run executes all pending migrations in sequential order.
func (m *Manager) Run(ctx context.Context) error {
	status, err := m.Status(ctx)
	if err != nil {
		return err
	}
	if len(status.Pending) == 0 {
		m.logger.InfoContext(ctx, "database schema up to date", "version", status.CurrentVersion)
		return nil
	}

	m.logger.InfoContext(ctx, "applying migrations", "from_version", status.CurrentVersion, "pending", len(status.Pending))
	for _, migration := range status.Pending {
		elapsed, err := m.executor.ExecuteMigration(ctx, migration)
		if err != nil {
			m.logger.ErrorContext(ctx, "migration failed", "version", migration.Version, "file", migration.FilePath, "error", err)
			return NewMigrationError(migration.Version, migration.FilePath, "execute migration",
				fmt.Errorf("%w: %v", ErrMigrationFailed, err))
		}
		m.logger.InfoContext(ctx, "migration applied", "version", migration.Version, "description", migration.Description, "elapsed", elapsed)
	}
	return nil
}

// Status compares the available migrations with the version table.
func (m *Manager) Status(ctx context.Context) (Status, error) {
	if err := m.executor.InitializeVersionTable(ctx); err != nil {
		return Status{}, fmt.Errorf("failed to initialize version table: %w", err)
	}

	available, err := Scan(m.fsys, m.dir)
	if err != nil {
		return Status{}, fmt.Errorf("failed to scan migrations: %w", err)
	}
	applied, err := m.executor.GetAppliedVersions(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("failed to get applied versions: %w", err)
	}

	byVersion := make(map[string]Migration, len(available))
	for _, migration := range available {
		byVersion[migration.Version] = migration
	}

	status := Status{Applied: applied}
	appliedSet := make(map[string]bool, len(applied))
	maxVersion := -1
	for _, a := range applied {
		file, ok := byVersion[a.Version]
		if !ok {
			return Status{}, fmt.Errorf("%w: applied migration %s not found in available migrations", ErrVersionConflict, a.Version)
		}
		if a.Checksum != "" && a.Checksum != file.Checksum {
			return Status{}, NewMigrationError(a.Version, file.FilePath, "verify checksum", ErrChecksumMismatch)
		}
		appliedSet[a.Version] = true
		if v, err := strconv.Atoi(a.Version); err == nil && v > maxVersion {
			maxVersion = v
			status.CurrentVersion = a.Version
		}
	}

	for _, migration := range available {
		if appliedSet[migration.Version] {
			continue
		}
		if v, _ := strconv.Atoi(migration.Version); v < maxVersion {
			return Status{}, fmt.Errorf("%w: migration %s is older than applied version %s", ErrVersionConflict, migration.Version, status.CurrentVersion)
		}
		status.Pending = append(status.Pending, migration)
	}
	return status, nil
}
