// Package ledger persists the append-only record of applied migrations.
// The API deliberately exposes only list and insert: rows are never
// updated or deleted once written, so the recorded history can always be
// trusted to describe what actually ran.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// sqlstateUniqueViolation is the SQLSTATE for a duplicate primary key insert.
const sqlstateUniqueViolation = "23505"

// Entry is one row of the schema_migrations table.
type Entry struct {
	Version     int64
	Description string
	Checksum    string
	AppliedAt   time.Time
	DurationMs  int
}

// Store reads and appends to the schema_migrations table.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a Store backed by the given connection pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// EnsureTable creates the schema_migrations table if it does not exist.
func (s *Store) EnsureTable(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, createSchemaSQL)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTableCreation, err)
	}

	return nil
}

// ListApplied returns all applied migrations ordered by version.
func (s *Store) ListApplied(ctx context.Context) ([]Entry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT version, description, checksum, applied_at, execution_duration_ms
		 FROM schema_migrations
		 ORDER BY version`,
	)
	if err != nil {
		return nil, fmt.Errorf("querying applied migrations: %w", err)
	}
	defer rows.Close()

	applied, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Entry, error) {
		var e Entry
		if scanErr := row.Scan(&e.Version, &e.Description, &e.Checksum, &e.AppliedAt, &e.DurationMs); scanErr != nil {
			return Entry{}, fmt.Errorf("scanning ledger row: %w", scanErr)
		}

		return e, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning applied migrations: %w", err)
	}

	return applied, nil
}

// RecordApplied inserts a ledger row inside the caller-supplied
// transaction, so the record commits or rolls back together with the
// script whose execution it describes. The insert is append-only: a
// version collision returns ErrWriteConflict instead of overwriting.
func (s *Store) RecordApplied(ctx context.Context, tx pgx.Tx, e Entry) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO schema_migrations (version, description, checksum, execution_duration_ms)
		 VALUES ($1, $2, $3, $4)`,
		e.Version, e.Description, e.Checksum, e.DurationMs,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == sqlstateUniqueViolation {
			return fmt.Errorf("%w: %d", ErrWriteConflict, e.Version)
		}

		return fmt.Errorf("recording migration %d as applied: %w", e.Version, err)
	}

	return nil
}
