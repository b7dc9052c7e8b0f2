package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	migrate "github.com/pgforge/migrate"
	"github.com/pgforge/migrate/internal/config"
	"github.com/pgforge/migrate/internal/logging"
	"github.com/pgforge/migrate/internal/runner"
)

// errDatabaseURLRequired is returned when no database URL is configured.
var errDatabaseURLRequired = errors.New(
	"database URL is required (set --database-url, MIGRATE_DATABASE_URL, or database_url in config)",
)

var applyCmd = &cobra.Command{ //nolint:gochecknoglobals // standard Cobra pattern
	Use:   "apply",
	Short: "Apply pending migrations",
	Long: `Apply pending database migrations under the migration lock,
recording each applied script in the ledger. Supports dry-run mode.`,
	RunE: runApply,
}

func init() { //nolint:gochecknoinits // standard Cobra pattern for flag registration
	applyCmd.Flags().Bool("dry-run", false, "show what would be applied without executing")
	applyCmd.Flags().Duration("lock-timeout", 0, "override lock wait timeout (e.g., 10s, 1m)")
	applyCmd.Flags().Duration("statement-timeout", 0, "override statement timeout (e.g., 30s, 5m)")
	rootCmd.AddCommand(applyCmd)
}

func runApply(cmd *cobra.Command, _ []string) error {
	cfg := AppConfig

	if cfg.DatabaseURL == "" {
		return errDatabaseURLRequired
	}

	dryRun, _ := cmd.Flags().GetBool("dry-run")

	lockTimeout := cfg.LockTimeout
	if cmd.Flags().Changed("lock-timeout") {
		lockTimeout, _ = cmd.Flags().GetDuration("lock-timeout")
	}

	stmtTimeout := cfg.StatementTimeout
	if cmd.Flags().Changed("statement-timeout") {
		stmtTimeout, _ = cmd.Flags().GetDuration("statement-timeout")
	}

	logger, err := logging.New(cmd.ErrOrStderr(), cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck // best-effort flush

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Connecting to %s\n", config.RedactURL(cfg.DatabaseURL))

	if dryRun {
		fmt.Fprintln(out, "\n--- DRY RUN (no changes will be made) ---")
	}

	applied := 0
	pending := 0

	res := migrate.Run(ctx, migrate.Options{
		DatabaseURL:      cfg.DatabaseURL,
		MigrationsDir:    cfg.MigrationsDir,
		LockTimeout:      lockTimeout,
		StatementTimeout: stmtTimeout,
		DryRun:           dryRun,
		Logger:           logger,
		OnProgress: func(event migrate.ProgressEvent) {
			switch event.Status {
			case runner.StatusStarting:
				fmt.Fprintf(out, "  Applying v%d-%s ... ", event.Script.Version, event.Script.Description)
			case runner.StatusApplied:
				fmt.Fprintf(out, "done (%s)\n", event.Duration.Truncate(time.Millisecond))
				applied++
			case runner.StatusPending:
				fmt.Fprintf(out, "  Would apply v%d-%s\n", event.Script.Version, event.Script.Description)
				pending++
			case runner.StatusFailed:
				fmt.Fprintf(out, "FAILED\n")
				fmt.Fprintf(out, "    Error: %v\n", event.Error)
			}
		},
	})

	if res.Err != nil {
		return res.Err
	}

	if dryRun {
		fmt.Fprintf(out, "\nDry run complete: %d migration(s) pending.\n", pending)
	} else {
		fmt.Fprintf(out, "\nApply complete: %d applied.\n", applied)
	}

	return nil
}
