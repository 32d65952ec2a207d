package sqlite

import (
	"context"
	"embed"
	"fmt"
	"log/slog"

	"github.com/example/live-sessions/internal/persistence/sqlite/migration"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Storage bundles the SQLite repositories over one connection pool.
type Storage struct {
	pool   *ConnectionPool
	logger *slog.Logger

	Users        *UserRepository
	AuthSessions *AuthSessionRepository
	Sessions     *LiveSessionRepository
	Recordings   *RecordingRepository
	Attendance   *AttendanceRepository
}

// Open connects to the database described by config. Call Migrate before use.
func Open(config migration.SQLiteConfig, logger *slog.Logger) (*Storage, error) {
	if logger == nil {
		logger = slog.Default()
	}
	pool, err := NewConnectionPool(config)
	if err != nil {
		return nil, err
	}
	return &Storage{
		pool:         pool,
		logger:       logger,
		Users:        NewUserRepository(pool),
		AuthSessions: NewAuthSessionRepository(pool),
		Sessions:     NewLiveSessionRepository(pool),
		Recordings:   NewRecordingRepository(pool),
		Attendance:   NewAttendanceRepository(pool),
	}, nil
}

// Migrate applies the embedded schema migrations.
func (s *Storage) Migrate(ctx context.Context) error {
	manager := migration.NewManager(migrationFiles, "migrations", migration.NewSQLiteExecutor(s.pool.DB()), s.logger)
	if err := manager.Run(ctx); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	return nil
}

// SchemaStatus reports applied and pending migrations.
func (s *Storage) SchemaStatus(ctx context.Context) (migration.Status, error) {
	manager := migration.NewManager(migrationFiles, "migrations", migration.NewSQLiteExecutor(s.pool.DB()), s.logger)
	return manager.Status(ctx)
}

// Ping checks that the database is reachable.
func (s *Storage) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Storage) Close() error {
	return s.pool.Close()
}
