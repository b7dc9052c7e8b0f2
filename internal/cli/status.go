package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/pgforge/migrate/internal/database"
	"github.com/pgforge/migrate/internal/ledger"
	"github.com/pgforge/migrate/internal/migration"
	"github.com/pgforge/migrate/internal/runner"
)

var statusCmd = &cobra.Command{ //nolint:gochecknoglobals // standard Cobra pattern
	Use:   "status",
	Short: "Show migration status",
	Long: `Display applied migrations from the ledger and pending scripts
from the migrations directory.`,
	RunE: runStatus,
}

func init() { //nolint:gochecknoinits // standard Cobra pattern for flag registration
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cfg := AppConfig

	if cfg.DatabaseURL == "" {
		return errDatabaseURLRequired
	}

	scripts, err := migration.LoadFromDir(cfg.MigrationsDir)
	if err != nil {
		return fmt.Errorf("loading migrations: %w", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	pool, err := database.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	store := ledger.New(pool)
	if err := store.EnsureTable(ctx); err != nil {
		return err
	}

	applied, err := store.ListApplied(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	printApplied(out, applied)

	pending, err := runner.Plan(applied, scripts)
	if err != nil {
		return err
	}

	printPending(out, pending)

	return nil
}

func printApplied(out io.Writer, applied []ledger.Entry) {
	if len(applied) == 0 {
		fmt.Fprintln(out, "No migrations applied yet.")

		return
	}

	fmt.Fprintf(out, "Applied (%d):\n", len(applied))

	for _, e := range applied {
		fmt.Fprintf(out, "  v%d-%s  applied %s (%dms)\n",
			e.Version, e.Description, e.AppliedAt.UTC().Format(time.RFC3339), e.DurationMs)
	}
}

func printPending(out io.Writer, pending []migration.Script) {
	if len(pending) == 0 {
		fmt.Fprintln(out, "Database is up to date.")

		return
	}

	fmt.Fprintf(out, "Pending (%d):\n", len(pending))

	for _, s := range pending {
		fmt.Fprintf(out, "  v%d-%s\n", s.Version, s.Description)
	}
}
