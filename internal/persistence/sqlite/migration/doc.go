// Package migration provides a versioned schema migration system for SQLite databases.
//
// Migrations are read from an fs.FS, usually an embedded directory, and follow the
// naming convention {version}_{description}.sql (e.g. "001_initial_schema.sql").
// Each migration runs in its own transaction together with its row in the
// schema_migrations table, so a failed migration leaves no trace.
//
// Example usage:
//
//	db, err := migration.Open(migration.DefaultSQLiteConfig("data/app.db"))
//	manager := migration.NewManager(files, "migrations", migration.NewSQLiteExecutor(db), logger)
//	if err := manager.Run(ctx); err != nil {
//		return err
//	}
package migration
