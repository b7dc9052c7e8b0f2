// Package runner orchestrates a migration pass: acquire the advisory
// lock, diff discovered scripts against the ledger, apply the pending
// scripts in order, and release the lock on every exit path.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/pgforge/migrate/internal/database"
	"github.com/pgforge/migrate/internal/ledger"
	"github.com/pgforge/migrate/internal/migration"
)

// State names the phase a run is in. A run moves through
// acquiring_lock → diffing → applying → done, or ends in failed.
type State string

// Run states.
const (
	StateIdle          State = "idle"
	StateAcquiringLock State = "acquiring_lock"
	StateDiffing       State = "diffing"
	StateApplying      State = "applying"
	StateDone          State = "done"
	StateFailed        State = "failed"
)

// Progress status constants reported via ProgressEvent.
const (
	StatusStarting = "starting"
	StatusApplied  = "applied"
	StatusFailed   = "failed"
	StatusPending  = "pending" // reported instead of applying during dry runs
)

// ProgressEvent is emitted for each script the runner processes.
type ProgressEvent struct {
	Script   *migration.Script
	Status   string
	Duration time.Duration
	Error    error
}

// Result describes one migration pass. A failed run always carries a
// non-nil Err and the versions that did commit before the failure.
type Result struct {
	RunID           uuid.UUID
	AppliedVersions []int64
	FinalState      State
	Err             error
}

// Ledger abstracts the schema_migrations store for testability.
// Only list and insert are exposed: the ledger is append-only.
type Ledger interface {
	EnsureTable(ctx context.Context) error
	ListApplied(ctx context.Context) ([]ledger.Entry, error)
	RecordApplied(ctx context.Context, tx pgx.Tx, e ledger.Entry) error
}

// lockReleaser is returned by lockFn and must be released when done.
type lockReleaser interface {
	Release(ctx context.Context) error
}

// lockFunc blocks until the migration lock is held and returns a releaser.
type lockFunc func(ctx context.Context) (lockReleaser, error)

// applyFunc executes one script plus its ledger write and returns the
// script's execution duration.
type applyFunc func(ctx context.Context, s *migration.Script) (time.Duration, error)

// Runner applies pending migrations exactly once, in version order,
// under a database-scoped advisory lock.
type Runner struct {
	pool             *pgxpool.Pool
	ledger           Ledger
	lockTimeout      time.Duration
	statementTimeout time.Duration
	dryRun           bool
	logger           *zap.Logger
	onProgress       func(ProgressEvent)
	acquireLock      lockFunc
	applyScript      applyFunc
}

// Option configures a Runner.
type Option func(*Runner)

// WithLockTimeout bounds how long Run blocks waiting for the migration lock.
func WithLockTimeout(d time.Duration) Option {
	return func(r *Runner) { r.lockTimeout = d }
}

// WithStatementTimeout sets the per-transaction statement_timeout.
func WithStatementTimeout(d time.Duration) Option {
	return func(r *Runner) { r.statementTimeout = d }
}

// WithDryRun enables dry-run mode where no SQL is executed.
func WithDryRun(b bool) Option {
	return func(r *Runner) { r.dryRun = b }
}

// WithLogger sets the structured logger. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// WithProgressCallback sets a function called for each script processed.
func WithProgressCallback(fn func(ProgressEvent)) Option {
	return func(r *Runner) { r.onProgress = fn }
}

// New creates a Runner with the given pool, ledger store, and options.
func New(pool *pgxpool.Pool, l Ledger, opts ...Option) *Runner {
	r := &Runner{
		pool:   pool,
		ledger: l,
		logger: zap.NewNop(),
	}

	for _, opt := range opts {
		opt(r)
	}

	// Set defaults for injectable functions after options are applied,
	// so tests can substitute them.
	if r.acquireLock == nil {
		r.acquireLock = func(ctx context.Context) (lockReleaser, error) {
			key, err := database.LockKey(ctx, r.pool)
			if err != nil {
				return nil, err
			}

			return database.AcquireLock(ctx, r.pool, key, r.lockTimeout)
		}
	}

	if r.applyScript == nil {
		r.applyScript = r.applyOne
	}

	return r
}

// Run executes a full migration pass over the given scripts, which must
// already be sorted ascending by version. The advisory lock is released
// on every path out of the function. Run is not safe for reuse across
// goroutines; create one Runner per pass.
func (r *Runner) Run(ctx context.Context, scripts []migration.Script) Result {
	res := Result{RunID: uuid.New(), FinalState: StateAcquiringLock}
	log := r.logger.With(zap.String("run_id", res.RunID.String()))

	lock, err := r.acquireLock(ctx)
	if err != nil {
		return r.fail(log, res, fmt.Errorf("acquiring migration lock: %w", err))
	}
	defer lock.Release(ctx) //nolint:errcheck // best-effort release on return

	res.FinalState = StateDiffing

	pending, err := r.diff(ctx, scripts)
	if err != nil {
		return r.fail(log, res, err)
	}

	log.Info("computed pending migrations",
		zap.Int("discovered", len(scripts)),
		zap.Int("pending", len(pending)))

	if r.dryRun {
		for i := range pending {
			r.fireProgress(ProgressEvent{Script: &pending[i], Status: StatusPending})
		}

		res.FinalState = StateDone

		return res
	}

	res.FinalState = StateApplying

	for i := range pending {
		s := &pending[i]

		if err := r.apply(ctx, log, s); err != nil {
			return r.fail(log, res, err)
		}

		res.AppliedVersions = append(res.AppliedVersions, s.Version)
	}

	res.FinalState = StateDone
	log.Info("migration pass complete", zap.Int64s("applied_versions", res.AppliedVersions))

	return res
}

// diff bootstraps the ledger table and computes the pending list.
func (r *Runner) diff(ctx context.Context, scripts []migration.Script) ([]migration.Script, error) {
	if err := r.ledger.EnsureTable(ctx); err != nil {
		return nil, err
	}

	applied, err := r.ledger.ListApplied(ctx)
	if err != nil {
		return nil, err
	}

	return Plan(applied, scripts)
}

// apply runs one pending script and fires progress events around it.
func (r *Runner) apply(ctx context.Context, log *zap.Logger, s *migration.Script) error {
	r.fireProgress(ProgressEvent{Script: s, Status: StatusStarting})
	log.Info("applying migration",
		zap.Int64("version", s.Version),
		zap.String("description", s.Description))

	duration, err := r.applyScript(ctx, s)
	if err != nil {
		r.fireProgress(ProgressEvent{Script: s, Status: StatusFailed, Duration: duration, Error: err})
		log.Error("migration failed",
			zap.Int64("version", s.Version),
			zap.Duration("duration", duration),
			zap.Error(err))

		if errors.Is(err, ledger.ErrWriteConflict) {
			return fmt.Errorf("migration %d (%s): %w", s.Version, s.Description, err)
		}

		return fmt.Errorf("%w: version %d (%s): %w", ErrExecution, s.Version, s.Description, err)
	}

	r.fireProgress(ProgressEvent{Script: s, Status: StatusApplied, Duration: duration})
	log.Info("migration applied",
		zap.Int64("version", s.Version),
		zap.Duration("duration", duration))

	return nil
}

// applyOne executes a script's SQL and its ledger insert in one
// transaction, so the ledger never records a script whose effects did
// not commit. Scripts containing CREATE INDEX CONCURRENTLY cannot run
// inside a transaction block; those execute directly on the pool and
// record their ledger row in a follow-up transaction.
func (r *Runner) applyOne(ctx context.Context, s *migration.Script) (time.Duration, error) {
	nonTx, err := requiresNonTransactional(s.SQL)
	if err != nil {
		return 0, err
	}

	start := time.Now()

	if nonTx {
		if err := ExecWithoutTransaction(ctx, r.pool, s.SQL); err != nil {
			return time.Since(start), err
		}

		duration := time.Since(start)

		err := ExecInTransaction(ctx, r.pool, func(tx pgx.Tx) error {
			return r.ledger.RecordApplied(ctx, tx, r.entryFor(s, duration))
		})

		return duration, err
	}

	err = ExecInTransaction(ctx, r.pool, func(tx pgx.Tx) error {
		if r.statementTimeout > 0 {
			if err := SetStatementTimeout(ctx, tx, r.statementTimeout); err != nil {
				return err
			}
		}

		if _, err := tx.Exec(ctx, s.SQL); err != nil {
			return fmt.Errorf("executing SQL: %w", err)
		}

		return r.ledger.RecordApplied(ctx, tx, r.entryFor(s, time.Since(start)))
	})

	return time.Since(start), err
}

func (r *Runner) entryFor(s *migration.Script, duration time.Duration) ledger.Entry {
	return ledger.Entry{
		Version:     s.Version,
		Description: s.Description,
		Checksum:    s.Checksum,
		DurationMs:  int(duration.Milliseconds()),
	}
}

func (r *Runner) fail(log *zap.Logger, res Result, err error) Result {
	res.FinalState = StateFailed
	res.Err = err
	log.Error("migration run failed",
		zap.String("state", string(StateFailed)),
		zap.Int64s("applied_versions", res.AppliedVersions),
		zap.Error(err))

	return res
}

func (r *Runner) fireProgress(event ProgressEvent) {
	if r.onProgress != nil {
		r.onProgress(event)
	}
}
