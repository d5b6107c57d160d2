package store

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// sqliteMigrations mirror the discovered_jobs and pipeline_runs tables of the
// Postgres migrations in SQLite types.
//
//go:embed migrations/sqlite/*.sql
var sqliteMigrations embed.FS

// RunMigrations applies every pending migration in dir to the database at dbURL.
func RunMigrations(dbURL, dir string) error {
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}

	m, err := migrate.New("file://"+dir, dbURL)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			slog.Debug("no pending migrations", "dir", dir)
			return nil
		}
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// runSQLiteMigrations applies the embedded SQLite migrations to db. db stays
// open: closing the migrate instance would close it too, so only the source
// is released.
func runSQLiteMigrations(db *sql.DB) error {
	src, err := iofs.New(sqliteMigrations, "migrations/sqlite")
	if err != nil {
		return fmt.Errorf("open sqlite migrations: %w", err)
	}
	defer src.Close()

	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("create sqlite migrate driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply sqlite migrations: %w", err)
	}
	return nil
}
