package database

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// sqlstateLockNotAvailable is raised when lock_timeout expires while
// blocked inside pg_advisory_lock.
const sqlstateLockNotAvailable = "55P03"

// LockKeyForTarget derives the advisory lock key from the database and
// schema names. Every process migrating the same database/schema derives
// the same key and therefore contends for the same lock; process identity
// plays no part.
func LockKeyForTarget(database, schema string) int64 {
	h := fnv.New64a()
	h.Write([]byte(database))
	h.Write([]byte{'/'})
	h.Write([]byte(schema))

	return int64(h.Sum64())
}

// LockKey queries the connected database for its own identity and derives
// the advisory lock key from it.
func LockKey(ctx context.Context, pool *pgxpool.Pool) (int64, error) {
	var database, schema string

	err := pool.QueryRow(ctx, "SELECT current_database(), current_schema()").Scan(&database, &schema)
	if err != nil {
		return 0, fmt.Errorf("resolving lock key target: %w", err)
	}

	return LockKeyForTarget(database, schema), nil
}

// LockHandle wraps a dedicated pooled connection that holds a
// session-level advisory lock. The lock lives exactly as long as the
// session: if the connection drops, PostgreSQL releases it, so no
// heartbeat or lease renewal is needed. Call Release to unlock and
// return the connection to the pool.
type LockHandle struct {
	conn *pgxpool.Conn
	key  int64
}

// AcquireLock blocks until the session-level advisory lock for key is
// obtained or timeout elapses. The wait happens inside the database via
// lock_timeout, so the caller suspends rather than polls. Returns
// ErrLockTimeout when the timeout expires. The caller must call
// handle.Release() when done.
func AcquireLock(ctx context.Context, pool *pgxpool.Pool, key int64, timeout time.Duration) (*LockHandle, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring connection for advisory lock: %w", err)
	}

	if timeout > 0 {
		sql := fmt.Sprintf("SET lock_timeout = '%dms'", timeout.Milliseconds())
		if _, err := conn.Exec(ctx, sql); err != nil {
			conn.Release()

			return nil, fmt.Errorf("setting lock_timeout: %w", err)
		}
	}

	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", key); err != nil {
		conn.Release()

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == sqlstateLockNotAvailable {
			return nil, fmt.Errorf("%w: key %d after %s", ErrLockTimeout, key, timeout)
		}

		return nil, fmt.Errorf("executing pg_advisory_lock: %w", err)
	}

	// The timeout only guards lock acquisition, not the migration pass
	// that runs on this session afterwards.
	if timeout > 0 {
		if _, err := conn.Exec(ctx, "SET lock_timeout = '0'"); err != nil {
			unlockAndRelease(ctx, conn, key)

			return nil, fmt.Errorf("resetting lock_timeout: %w", err)
		}
	}

	return &LockHandle{conn: conn, key: key}, nil
}

// Release unlocks the advisory lock and returns the connection to the pool.
// Safe to call multiple times; subsequent calls are no-ops.
func (h *LockHandle) Release(ctx context.Context) error {
	if h == nil || h.conn == nil {
		return nil
	}

	_, err := h.conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", h.key)
	h.conn.Release()
	h.conn = nil

	if err != nil {
		return fmt.Errorf("releasing advisory lock: %w", err)
	}

	return nil
}

func unlockAndRelease(ctx context.Context, conn *pgxpool.Conn, key int64) {
	_, _ = conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", key)
	conn.Release()
}
