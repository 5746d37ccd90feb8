package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/carebill/internal/audit"
	"github.com/smallbiznis/carebill/internal/authorization"
	"github.com/smallbiznis/carebill/internal/backfill"
	"github.com/smallbiznis/carebill/internal/callercontext"
	"github.com/smallbiznis/carebill/internal/charge"
	"github.com/smallbiznis/carebill/internal/clock"
	"github.com/smallbiznis/carebill/internal/config"
	"github.com/smallbiznis/carebill/internal/encounter"
	"github.com/smallbiznis/carebill/internal/ledger"
	"github.com/smallbiznis/carebill/internal/migration"
	"github.com/smallbiznis/carebill/internal/observability"
	"github.com/smallbiznis/carebill/internal/seed"
	"github.com/smallbiznis/carebill/pkg/db"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	snowflakeNode = 2
	startTimeout  = 30 * time.Second
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "carebillctl",
		Short:         "Operational commands for the carebill billing service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(backfillCmd())
	rootCmd.AddCommand(seedCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				conn *gorm.DB
				cfg  config.Config
				log  *zap.Logger
			)
			return withApp(cmd.Context(), func(ctx context.Context) error {
				return migration.Apply(conn, cfg, log)
			}, fx.Populate(&conn, &cfg, &log))
		},
	}
}

func backfillCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Write explicit allocations for legacy payments matched by the heuristic",
		RunE: func(cmd *cobra.Command, args []string) error {
			dryRun, _ := cmd.Flags().GetBool("dry-run")

			var (
				runner *backfill.Backfill
				log    *zap.Logger
			)
			return withApp(cmd.Context(), func(ctx context.Context) error {
				report, err := runner.Run(ctx, callercontext.System(), backfill.Options{DryRun: dryRun})
				if err != nil {
					return err
				}
				log.Info("backfill finished",
					zap.Bool("dry_run", dryRun),
					zap.Int("patients", report.Patients),
					zap.Int("matched", report.Matched),
					zap.Int("written", report.Written),
				)
				for _, a := range report.Allocations {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d\t%s:%d\n", a.PaymentID, a.PatientID, a.SourceKind, a.SourceID)
				}
				return nil
			},
				authorization.Module,
				audit.Module,
				encounter.Module,
				charge.Module,
				ledger.Module,
				backfill.Module,
				fx.Populate(&runner, &log),
			)
		},
	}
	cmd.Flags().Bool("dry-run", false, "Report matches without writing allocations")
	return cmd
}

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load fixture data",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "demo",
		Short: "Insert the demo patient with one visit and one stay",
		RunE: func(cmd *cobra.Command, args []string) error {
			var conn *gorm.DB
			return withApp(cmd.Context(), func(ctx context.Context) error {
				return seed.Demo(ctx, conn)
			}, fx.Populate(&conn))
		},
	})
	return cmd
}

// withApp starts the shared infrastructure plus extra options, runs fn and
// stops the app again.
func withApp(ctx context.Context, fn func(ctx context.Context) error, opts ...fx.Option) error {
	if ctx == nil {
		ctx = context.Background()
	}

	base := []fx.Option{
		fx.NopLogger,
		config.Module,
		observability.Module,
		fx.Provide(registerSnowflake),
		db.Module,
		clock.Module,
	}
	app := fx.New(append(base, opts...)...)
	if err := app.Err(); err != nil {
		return err
	}

	startCtx, cancel := context.WithTimeout(ctx, startTimeout)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return err
	}

	runErr := fn(ctx)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), startTimeout)
	defer stopCancel()
	if err := app.Stop(stopCtx); err != nil && runErr == nil {
		return err
	}
	return runErr
}

func registerSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(snowflakeNode)
	if err != nil {
		panic(err)
	}
	return node
}
