// Package postgres provides a PostgreSQL-backed Store for featuregate.
//
// Records live in a single key/value table with upsert writes, so the
// store is safe for multi-instance deployments and durable across
// restarts.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pdfsmarttools/featuregate"
)

// Store is a PostgreSQL-backed featuregate.Store.
type Store struct {
	pool        *pgxpool.Pool
	tablePrefix string
}

var _ featuregate.Store = (*Store)(nil)

// Option configures Store.
type Option func(*Store)

// WithTablePrefix sets the table name prefix (default "featuregate_").
func WithTablePrefix(prefix string) Option {
	return func(s *Store) { s.tablePrefix = prefix }
}

// New creates a new PostgreSQL-backed Store.
func New(pool *pgxpool.Pool, opts ...Option) *Store {
	s := &Store{
		pool:        pool,
		tablePrefix: "featuregate_",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) blobsTable() string { return s.tablePrefix + "blobs" }

// EnsureSchema creates the required table if it doesn't exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	q := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			key TEXT PRIMARY KEY,
			value BYTEA NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, s.blobsTable())

	if _, err := s.pool.Exec(ctx, q); err != nil {
		return fmt.Errorf("featuregate/postgres: ensure schema: %w", err)
	}
	return nil
}

// Get returns the value for key, or featuregate.ErrNotFound.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	q := fmt.Sprintf(`SELECT value FROM %s WHERE key = $1`, s.blobsTable())

	var value []byte
	if err := s.pool.QueryRow(ctx, q, key).Scan(&value); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, featuregate.ErrNotFound
		}
		return nil, fmt.Errorf("featuregate/postgres: get %s: %w", key, err)
	}
	return value, nil
}

// Set writes the value for key, replacing any previous value.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	q := fmt.Sprintf(`
		INSERT INTO %s (key, value, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		s.blobsTable())

	if _, err := s.pool.Exec(ctx, q, key, value); err != nil {
		return fmt.Errorf("featuregate/postgres: set %s: %w", key, err)
	}
	return nil
}

// Delete removes key. Absent keys are not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	q := fmt.Sprintf(`DELETE FROM %s WHERE key = $1`, s.blobsTable())

	if _, err := s.pool.Exec(ctx, q, key); err != nil {
		return fmt.Errorf("featuregate/postgres: delete %s: %w", key, err)
	}
	return nil
}
