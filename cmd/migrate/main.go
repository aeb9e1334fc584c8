package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hackgods/counseling-scheduler/internal/config"
	"github.com/hackgods/counseling-scheduler/internal/db"
	"github.com/hackgods/counseling-scheduler/internal/logger"
)

var timeout time.Duration

func main() {
	root := &cobra.Command{
		Use:          "migrate",
		Short:        "Manage the counseling scheduler database schema",
		SilenceUsage: true,
	}
	root.PersistentFlags().DurationVar(&timeout, "timeout", time.Minute, "deadline for the whole migration run")

	root.AddCommand(
		migrationCommand("up", "Apply all pending migrations", func(ctx context.Context, m *db.Migrator) error {
			return m.Up(ctx)
		}),
		migrationCommand("down", "Roll back the most recent migration", func(ctx context.Context, m *db.Migrator) error {
			return m.Down(ctx)
		}),
		migrationCommand("status", "Print the status of every migration", func(ctx context.Context, m *db.Migrator) error {
			return m.Status(ctx)
		}),
		migrationCommand("version", "Print the current schema version", func(ctx context.Context, m *db.Migrator) error {
			v, err := m.Version(ctx)
			if err != nil {
				return err
			}
			fmt.Println(v)
			return nil
		}),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func migrationCommand(use, short string, run func(ctx context.Context, m *db.Migrator) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cfg.PostgresDSN == "" {
				return fmt.Errorf("POSTGRES_DSN is required")
			}

			lg, err := logger.New(cfg.Env, cfg.LogLevel, logger.FileOptions{})
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			defer func() { _ = lg.Sync() }()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, db.PoolOptions{MaxConns: 2})
			if err != nil {
				return err
			}
			defer pool.Close()

			m, err := db.NewMigrator(pool, lg.Named("migrate"))
			if err != nil {
				return err
			}
			defer func() { _ = m.Close() }()

			if err := run(ctx, m); err != nil {
				return fmt.Errorf("migrate %s: %w", use, err)
			}
			lg.Info("migration command finished", zap.String("command", use))
			return nil
		},
	}
}
