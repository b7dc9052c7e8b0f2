// Package migrate applies versioned SQL scripts to a PostgreSQL database
// in deterministic order, exactly once each, safely under concurrent
// application startup. Run is intended to be invoked once at startup,
// before the application accepts traffic: it acquires a database-scoped
// advisory lock, diffs the script directory against the schema_migrations
// ledger, applies whatever is pending, and refuses to proceed when the
// recorded history and the scripts on disk disagree.
package migrate

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pgforge/migrate/internal/database"
	"github.com/pgforge/migrate/internal/ledger"
	"github.com/pgforge/migrate/internal/migration"
	"github.com/pgforge/migrate/internal/runner"
)

// Result describes one migration pass.
type Result = runner.Result

// State names the phase a run ended in.
type State = runner.State

// ProgressEvent is emitted for each script processed during a run.
type ProgressEvent = runner.ProgressEvent

// Terminal and intermediate run states.
const (
	StateDone   = runner.StateDone
	StateFailed = runner.StateFailed
)

// Options configures a migration run.
type Options struct {
	// DatabaseURL is the PostgreSQL connection string.
	DatabaseURL string

	// MigrationsDir holds the v<ordinal>-<description>.sql scripts.
	MigrationsDir string

	// LockTimeout bounds how long the run blocks waiting for the
	// migration lock held by another process. Zero waits forever.
	LockTimeout time.Duration

	// StatementTimeout bounds each script's statements. Zero disables it.
	StatementTimeout time.Duration

	// DryRun reports the pending scripts without executing anything.
	DryRun bool

	// Logger receives structured run logs. Nil disables logging.
	Logger *zap.Logger

	// OnProgress, if set, is called for each script processed.
	OnProgress func(ProgressEvent)
}

// Run discovers scripts, connects, and executes one migration pass.
// The returned Result always carries a final state; a failed run also
// carries the error and the versions that committed before the failure.
func Run(ctx context.Context, opts Options) Result {
	scripts, err := migration.LoadFromDir(opts.MigrationsDir)
	if err != nil {
		return failedResult(err)
	}

	pool, err := database.NewPool(ctx, opts.DatabaseURL)
	if err != nil {
		return failedResult(err)
	}
	defer pool.Close()

	runnerOpts := []runner.Option{
		runner.WithLockTimeout(opts.LockTimeout),
		runner.WithStatementTimeout(opts.StatementTimeout),
		runner.WithDryRun(opts.DryRun),
	}

	if opts.Logger != nil {
		runnerOpts = append(runnerOpts, runner.WithLogger(opts.Logger))
	}

	if opts.OnProgress != nil {
		runnerOpts = append(runnerOpts, runner.WithProgressCallback(opts.OnProgress))
	}

	r := runner.New(pool, ledger.New(pool), runnerOpts...)

	return r.Run(ctx, scripts)
}

// failedResult covers failures before a Runner exists to produce one.
func failedResult(err error) Result {
	return Result{
		RunID:      uuid.New(),
		FinalState: StateFailed,
		Err:        err,
	}
}
