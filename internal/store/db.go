// Package store adapts the bun ORM (plus an S3-backed blob store for large
// snapshot payloads) into the narrow collaborator interfaces the gateway
// core consumes. The core never imports bun, sql, or aws-sdk-go-v2 directly.
package store

import (
	"database/sql"
	"fmt"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "github.com/uptrace/bun/driver/pgdriver"

	_ "modernc.org/sqlite"
)

// DB wraps a bun.DB for the gateway's persistence collaborators.
type DB struct {
	bun *bun.DB
}

// Open opens a bun connection for driver ("sqlite" or "postgres") and dsn,
// then runs pending migrations.
func Open(driver, dsn string) (*DB, error) {
	var sqldb *sql.DB
	var bunDB *bun.DB

	switch driver {
	case "sqlite":
		conn, err := sql.Open("sqlite", dsn)
		if err != nil {
			return nil, fmt.Errorf("store: open sqlite: %w", err)
		}
		sqldb = conn
		bunDB = bun.NewDB(sqldb, sqlitedialect.New())
	case "postgres":
		conn, err := sql.Open("pg", dsn)
		if err != nil {
			return nil, fmt.Errorf("store: open postgres: %w", err)
		}
		sqldb = conn
		bunDB = bun.NewDB(sqldb, pgdialect.New())
	default:
		return nil, fmt.Errorf("store: unsupported driver %q", driver)
	}

	if err := runMigrations(driver, sqldb); err != nil {
		return nil, fmt.Errorf("store: migrate: %w", err)
	}

	return &DB{bun: bunDB}, nil
}

// Close releases the underlying connection.
func (d *DB) Close() error {
	return d.bun.DB.Close()
}

// Ping verifies the underlying connection is reachable, for readiness checks.
func (d *DB) Ping() error {
	return d.bun.DB.Ping()
}
