package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"p2p-lending-engine/internal/app"
	"p2p-lending-engine/internal/config"
	"p2p-lending-engine/internal/infrastructure/db"
	"p2p-lending-engine/internal/infrastructure/migrate"
	"p2p-lending-engine/pkg/id"
	"p2p-lending-engine/pkg/logger"
)

var Version = "dev"

// opener builds the wired services for one command run.
type opener func(ctx context.Context) (*app.App, error)

func main() {
	cfg := config.Load()
	logger.Init(cfg.LogLevel)

	open := func(ctx context.Context) (*app.App, error) {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return app.New(ctx, cfg, false)
	}

	rootCmd := newRootCmd(open)
	rootCmd.AddCommand(migrateCmd(cfg))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(open opener) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "servicing",
		Short:         "Loan servicing jobs: collections, retries, reconciliation, restrictions and event dispatch",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(dailyCmd(open))
	rootCmd.AddCommand(retriesCmd(open))
	rootCmd.AddCommand(reconcileCmd(open))
	rootCmd.AddCommand(restrictionsCmd(open))
	rootCmd.AddCommand(dispatchCmd(open))
	return rootCmd
}

// run opens the app, tags the context with a fresh trace id, runs job and
// prints its report as JSON.
func run(cmd *cobra.Command, open opener, job func(ctx context.Context, a *app.App) (any, error)) error {
	ctx := logger.WithTraceID(cmd.Context(), id.NewID32())
	a, err := open(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	rep, err := job(ctx, a)
	if err != nil {
		logger.CtxError(ctx, "job failed", err)
		return err
	}
	return printJSON(cmd.OutOrStdout(), rep)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func atFlag(cmd *cobra.Command) (time.Time, error) {
	raw, _ := cmd.Flags().GetString("at")
	if raw == "" {
		return time.Now().UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("--at must be RFC3339: %w", err)
	}
	return t.UTC(), nil
}

func withAt(cmd *cobra.Command) *cobra.Command {
	cmd.Flags().String("at", "", "Run as of this RFC3339 instant (default now)")
	return cmd
}

func dailyCmd(open opener) *cobra.Command {
	return withAt(&cobra.Command{
		Use:   "daily",
		Short: "Send reminders and collect installments due today",
		RunE: func(cmd *cobra.Command, args []string) error {
			at, err := atFlag(cmd)
			if err != nil {
				return err
			}
			return run(cmd, open, func(ctx context.Context, a *app.App) (any, error) {
				return a.Payments.RunDaily(ctx, at)
			})
		},
	})
}

func retriesCmd(open opener) *cobra.Command {
	return withAt(&cobra.Command{
		Use:   "retries",
		Short: "Retry failed collections whose backoff has elapsed",
		RunE: func(cmd *cobra.Command, args []string) error {
			at, err := atFlag(cmd)
			if err != nil {
				return err
			}
			return run(cmd, open, func(ctx context.Context, a *app.App) (any, error) {
				return a.Payments.RunRetries(ctx, at)
			})
		},
	})
}

func reconcileCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Poll the payment rail for pending transfers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, open, func(ctx context.Context, a *app.App) (any, error) {
				return a.Transfers.Reconcile(ctx)
			})
		},
	}
}

func restrictionsCmd(open opener) *cobra.Command {
	return withAt(&cobra.Command{
		Use:   "restrictions",
		Short: "Lift borrower restrictions whose cooldown has ended",
		RunE: func(cmd *cobra.Command, args []string) error {
			at, err := atFlag(cmd)
			if err != nil {
				return err
			}
			return run(cmd, open, func(ctx context.Context, a *app.App) (any, error) {
				return a.Risk.SweepRestrictions(ctx, at)
			})
		},
	})
}

func dispatchCmd(open opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dispatch",
		Short: "Deliver pending domain events to their subscribers",
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			return run(cmd, open, func(ctx context.Context, a *app.App) (any, error) {
				return a.Dispatcher.Dispatch(ctx, limit)
			})
		},
	}
	cmd.Flags().IntP("limit", "n", 0, "Maximum events per run (0 uses the default batch)")
	return cmd
}

func migrateCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			gdb, err := db.OpenGorm(cfg.MySQLDSN())
			if err != nil {
				return fmt.Errorf("open mysql: %w", err)
			}
			sqlDB, err := gdb.DB()
			if err != nil {
				return err
			}
			defer sqlDB.Close()

			steps, _ := cmd.Flags().GetInt("steps")
			if steps == 0 {
				return migrate.Up(sqlDB)
			}
			return migrate.Steps(sqlDB, steps)
		},
	}
	cmd.Flags().Int("steps", 0, "Move this many migrations up (positive) or down (negative); 0 applies all")
	return cmd
}
