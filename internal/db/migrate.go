package db

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/banshee-data/celltower/internal/monitoring"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// MigrateUp runs all pending migrations. It is a no-op at the latest
// version.
func (db *DB) MigrateUp() error {
	m, err := db.newMigrate()
	if err != nil {
		return err
	}
	// m is not closed: closing it closes db.DB as well.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// MigrateDown rolls back the most recent migration.
func (db *DB) MigrateDown() error {
	m, err := db.newMigrate()
	if err != nil {
		return err
	}
	if err := m.Steps(-1); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration down failed: %w", err)
	}
	return nil
}

// MigrateVersion returns the applied version and dirty state; 0, false when
// nothing has been applied.
func (db *DB) MigrateVersion() (version uint, dirty bool, err error) {
	m, err := db.newMigrate()
	if err != nil {
		return 0, false, err
	}
	version, dirty, err = m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

func (db *DB) newMigrate() (*migrate.Migrate, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(db.DB, &sqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = migrateLogger{}
	return m, nil
}

type migrateLogger struct{}

func (migrateLogger) Printf(format string, v ...interface{}) {
	monitoring.Logf("[migrate] "+format, v...)
}

func (migrateLogger) Verbose() bool {
	return false
}
