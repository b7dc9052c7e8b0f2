package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pgforge/migrate/internal/database"
	"github.com/pgforge/migrate/internal/ledger"
	"github.com/pgforge/migrate/internal/migration"
	"github.com/pgforge/migrate/internal/parser"
	"github.com/pgforge/migrate/internal/runner"
)

var planCmd = &cobra.Command{ //nolint:gochecknoglobals // standard Cobra pattern
	Use:   "plan",
	Short: "Show execution plan for pending migrations",
	Long: `Display the pending migrations in execution order, with a summary
of the SQL statements each script contains.`,
	RunE: runPlan,
}

func init() { //nolint:gochecknoinits // standard Cobra pattern for flag registration
	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, _ []string) error {
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

	pending, err := runner.Plan(applied, scripts)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()

	if len(pending) == 0 {
		fmt.Fprintln(out, "Nothing to apply: database is up to date.")

		return nil
	}

	fmt.Fprintf(out, "Plan: %d migration(s) to apply in order.\n", len(pending))

	for _, s := range pending {
		summary := "unparseable SQL"

		if result, parseErr := parser.Parse(s.SQL); parseErr == nil {
			summary = strings.Join(parser.StatementKinds(result), ", ")
		}

		fmt.Fprintf(out, "  v%d-%s: %s\n", s.Version, s.Description, summary)
	}

	return nil
}
