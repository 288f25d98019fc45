package store

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratepostgres "github.com/golang-migrate/migrate/v4/database/postgres"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed all:migrations/sqlite
var sqliteMigrations embed.FS

//go:embed all:migrations/postgres
var postgresMigrations embed.FS

// runMigrations applies all pending schema migrations on the already-open
// connection before the gateway starts serving traffic.
func runMigrations(driver string, sqldb *sql.DB) error {
	m, err := newMigrator(sqldb, driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}

	return nil
}

// newMigrator builds a golang-migrate instance over the embedded SQL files
// for the given driver.
func newMigrator(conn *sql.DB, driver string) (*migrate.Migrate, error) {
	var migrationFS fs.FS
	var err error

	switch driver {
	case "sqlite":
		migrationFS, err = fs.Sub(sqliteMigrations, "migrations/sqlite")
	case "postgres":
		migrationFS, err = fs.Sub(postgresMigrations, "migrations/postgres")
	default:
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("sub filesystem: %w", err)
	}

	source, err := iofs.New(migrationFS, ".")
	if err != nil {
		return nil, fmt.Errorf("migration source: %w", err)
	}

	var dbDriver database.Driver
	switch driver {
	case "sqlite":
		dbDriver, err = migratesqlite.WithInstance(conn, &migratesqlite.Config{})
	case "postgres":
		dbDriver, err = migratepostgres.WithInstance(conn, &migratepostgres.Config{})
	}
	if err != nil {
		return nil, fmt.Errorf("database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, driver, dbDriver)
	if err != nil {
		return nil, fmt.Errorf("new migrator: %w", err)
	}

	return m, nil
}
