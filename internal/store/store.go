// Package store provides the Postgres-backed persistence primitives shared
// by every runtime subsystem: a pooled connection, embedded schema
// migrations, and a LISTEN/NOTIFY bus (NotifyBus). The workpool and
// projection engine do not use the bus; they dispatch by polling.
//
// The ent schema package (ent/schema) documents the data model this package
// serves, but no ent client is generated here — Store talks to Postgres
// directly through database/sql (pgx/v5 stdlib driver) wrapped in sqlx for
// read-query scanning, and hand-written SQL for writes.
package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
	"github.com/jmoiron/sqlx"
)

//go:embed migrations
var migrationsFS embed.FS

// Store wraps the shared Postgres pool used by the event store, orchestrator,
// workpool, projection engine, and agent bounded context.
type Store struct {
	DB  *sqlx.DB
	raw *sql.DB
}

// Open connects to Postgres, configures the pool per cfg, and applies any
// pending embedded migrations.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	raw, err := sql.Open("pgx", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}

	raw.SetMaxOpenConns(cfg.MaxOpenConns)
	raw.SetMaxIdleConns(cfg.MaxIdleConns)
	raw.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	raw.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := raw.PingContext(ctx); err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}

	if err := runMigrations(raw, cfg.Database); err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}

	return &Store{
		DB:  sqlx.NewDb(raw, "pgx"),
		raw: raw,
	}, nil
}

// Close releases the underlying pool.
func (s *Store) Close() error {
	return s.raw.Close()
}

// Raw returns the underlying *sql.DB, for callers (health checks, the admin
// API) that need connection pool statistics rather than query helpers.
func (s *Store) Raw() *sql.DB {
	return s.raw
}

// runMigrations applies every embedded migration that has not yet run.
// Migration authorship workflow mirrors the ent-schema-driven flow this
// runtime's teacher used: edit ent/schema/*.go to describe the change, hand
// author the matching internal/store/migrations/NNNN_*.sql, and let this
// function apply it on next startup.
func runMigrations(db *sql.DB, databaseName string) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("postgres driver: %w", err)
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("migration source: %w", err)
	}
	defer sourceDriver.Close()

	m, err := migrate.NewWithInstance("iofs", sourceDriver, databaseName, driver)
	if err != nil {
		return fmt.Errorf("migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}

	return nil
}
