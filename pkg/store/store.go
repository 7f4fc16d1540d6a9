// Package store is the governor's durable writer: a versioned Postgres
// schema, applied via embedded golang-migrate migrations, and a set of
// idempotent insert-if-not-exists / upsert operations over it.
package store

import (
	"context"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	stdsql "database/sql"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver used only to drive migrations

	"github.com/tarsy-labs/session-governor/pkg/config"
)

//go:embed migrations
var migrationsFS embed.FS

// Store wraps a pgx connection pool and exposes the Writer's
// idempotent operations. A zero Store is not usable; construct one
// with Connect.
type Store struct {
	pool *pgxpool.Pool
}

// Connect opens the pool, applies pending migrations, and runs the
// schema-evolution guard before returning a usable Store.
func Connect(ctx context.Context, cfg config.StoreConfig) (*Store, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	if err := runMigrations(dsn, cfg.Database); err != nil {
		return nil, fmt.Errorf("store: migrate: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("store: parse pool config: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxOpenConns)
	poolCfg.MinConns = int32(cfg.MaxIdleConns)
	poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime
	poolCfg.MaxConnIdleTime = cfg.ConnMaxIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("store: open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}

	s := &Store{pool: pool}
	if err := s.ensureOptionalColumns(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: schema evolution: %w", err)
	}
	return s, nil
}

// runMigrations applies embedded SQL migrations via golang-migrate,
// driving them through database/sql's pgx stdlib driver — golang-migrate's
// postgres driver requires a *sql.DB, not a pgx pool.
func runMigrations(dsn, databaseName string) error {
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

	m, err := migrate.NewWithInstance("iofs", sourceDriver, databaseName, driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}

	// Close only the source driver; db itself is closed by the deferred
	// db.Close above.
	if err := sourceDriver.Close(); err != nil {
		return fmt.Errorf("close migration source: %w", err)
	}
	return nil
}

// ensureOptionalColumns attempts to add columns that may be missing on
// a store created by an older version of this binary. Column-exists
// errors (SQLSTATE 42701) are swallowed; anything else is surfaced.
func (s *Store) ensureOptionalColumns(ctx context.Context) error {
	stmts := []string{
		"ALTER TABLE punches ADD COLUMN content_hash TEXT",
		"ALTER TABLE punches ADD COLUMN cost DOUBLE PRECISION",
		"ALTER TABLE punches ADD COLUMN tokens_input INTEGER",
		"ALTER TABLE punches ADD COLUMN tokens_output INTEGER",
		"ALTER TABLE punches ADD COLUMN tokens_reasoning INTEGER",
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "42701" { // duplicate_column
				continue
			}
			return err
		}
	}
	return nil
}

// Close releases the pool. Safe to call on an already-closed Store.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// connected reports whether Store has a usable pool, used to produce
// ErrNotConnected from operations invoked on a zero-value Store.
func (s *Store) connected() bool {
	return s != nil && s.pool != nil
}
