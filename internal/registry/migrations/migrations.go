// Package migrations holds the registry schema and applies it with
// golang-migrate.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed sql/*.sql
var migrationFiles embed.FS

// Migrator applies the embedded schema migrations to a registry database.
type Migrator struct {
	db  *sql.DB
	log *slog.Logger
}

// NewMigrator returns a Migrator for db. If logger is nil, slog.Default() is used.
func NewMigrator(db *sql.DB, logger *slog.Logger) (*Migrator, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Migrator{db: db, log: logger}, nil
}

// Up applies all pending migrations. The caller must hold the registry lock.
func (m *Migrator) Up(ctx context.Context) error {
	inst, closeSrc, err := m.instance(ctx)
	defer closeSrc()
	if err != nil {
		return err
	}

	if err := inst.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}
	m.log.Debug("registry migrations applied")
	return nil
}

// instance builds a migrate.Migrate over the embedded files. The returned
// migrate instance is never closed: closing it would close m.db as well.
func (m *Migrator) instance(ctx context.Context) (*migrate.Migrate, func(), error) {
	closeSrc := func() {}

	if err := ctx.Err(); err != nil {
		return nil, closeSrc, err
	}

	driver, err := sqlite.WithInstance(m.db, &sqlite.Config{})
	if err != nil {
		return nil, closeSrc, fmt.Errorf("could not create driver: %w", err)
	}

	src, err := iofs.New(migrationFiles, "sql")
	if err != nil {
		return nil, closeSrc, fmt.Errorf("could not create fs: %w", err)
	}
	closeSrc = func() {
		if err := src.Close(); err != nil {
			m.log.Error("could not close migration source", "error", err)
		}
	}

	inst, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return nil, closeSrc, fmt.Errorf("could not create migration instance: %w", err)
	}
	return inst, closeSrc, nil
}
