// Package store is the persistence layer: Postgres-backed stores for
// accounts, bots, configuration versions, droplets and the per-account
// quota counters, plus the embedded schema migrations.
package store

import (
	"context"
	"embed"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Store bundles every repository capability over one connection pool.
// It is safe for concurrent use; share one instance per process.
type Store struct {
	db  *sqlx.DB
	log *zap.Logger
}

// New wraps an existing pool. The caller keeps ownership of db.
func New(db *sqlx.DB, log *zap.Logger) *Store {
	return &Store{db: db, log: log}
}

// Open connects to Postgres via the pgx stdlib driver and verifies the
// connection. Pool sizing and timeouts stay at driver defaults.
func Open(ctx context.Context, databaseURL string, log *zap.Logger) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, "pgx", databaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to database")
	}
	return New(db, log), nil
}

// MigrateUp applies the embedded migrations. Safe to run on every
// start; goose skips versions already applied.
func (s *Store) MigrateUp(ctx context.Context) error {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return errors.Wrap(err, "failed to set goose dialect")
	}
	if err := goose.UpContext(ctx, s.db.DB, "migrations"); err != nil {
		return errors.Wrap(err, "failed to apply migrations")
	}
	return nil
}

// Ping verifies the database is reachable. The health endpoint calls
// this on every probe.
func (s *Store) Ping(ctx context.Context) error {
	var one int
	if err := s.db.GetContext(ctx, &one, "SELECT 1"); err != nil {
		return errors.Wrap(err, "database ping failed")
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
