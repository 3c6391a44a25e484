// Package store is the §4.B Persistence Gateway: CRUD on projects, chats,
// messages, agent_executions, pipeline_runs, token_usage, snapshots, and
// app_settings. The teacher drives this layer through an ent-generated
// client; ent requires `go generate` to produce that client, which is out of
// reach here (see DESIGN.md), so this package talks pgx/v5 directly and
// keeps the teacher's migration-on-startup shape via golang-migrate with
// embedded SQL files.
package store

import (
	"context"
	"embed"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"

	stdsql "database/sql"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver for golang-migrate
)

//go:embed migrations
var migrationsFS embed.FS

// Store wraps a pgx connection pool and exposes one file per table, in the
// teacher's one-service-per-aggregate style (pkg/services).
type Store struct {
	pool *pgxpool.Pool
}

// Pool returns the underlying pool, for health checks and advisory locks.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// Open connects to Postgres, applies pending migrations, and returns a ready
// Store. Mirrors the teacher's pkg/database.NewClient: connect, migrate,
// wrap.
func Open(ctx context.Context, dsn string) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("store: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("store: connect: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}

	if err := runMigrations(dsn); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Close releases the pool.
func (s *Store) Close() { s.pool.Close() }

// runMigrations applies embedded SQL migrations via golang-migrate. It opens
// a separate database/sql handle because golang-migrate's postgres driver
// does not speak pgxpool directly.
func runMigrations(dsn string) error {
	db, err := stdsql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("open migration connection: %w", err)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create postgres driver: %w", err)
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return sourceDriver.Close()
}
