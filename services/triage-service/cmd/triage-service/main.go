package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	libconfig "github.com/md-rashed-zaman/notifytriage/libs/config"
	"github.com/md-rashed-zaman/notifytriage/libs/db"
	"github.com/md-rashed-zaman/notifytriage/libs/runtime"
	"github.com/md-rashed-zaman/notifytriage/services/triage-service/internal/config"
	"github.com/md-rashed-zaman/notifytriage/services/triage-service/internal/consumer"
	"github.com/md-rashed-zaman/notifytriage/services/triage-service/internal/inbox"
	"github.com/md-rashed-zaman/notifytriage/services/triage-service/internal/workqueue"
	"github.com/md-rashed-zaman/notifytriage/services/triage-service/migrations"
)

var envFile string

func main() {
	rootCmd := &cobra.Command{
		Use:          config.ServiceName,
		Short:        "Triage of unnotified dental appointments",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Optional .env file; environment variables take precedence")

	rootCmd.AddCommand(processCmd())
	rootCmd.AddCommand(finalizeCmd())
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(ingestCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func processCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "process",
		Short: "Work through every new queue item",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), true, func(ctx context.Context, a *app) error {
				_, err := a.runner.Process(ctx)
				return err
			})
		},
	}
}

func finalizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "finalize",
		Short: "Send the manual list for the current period once the queue is drained",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), false, func(ctx context.Context, a *app) error {
				_, err := a.runner.Finalize(ctx, a.cfg.Period(time.Now()))
				return err
			})
		},
	}
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Process the queue, then finalize",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), true, func(ctx context.Context, a *app) error {
				if _, err := a.runner.Process(ctx); err != nil {
					return err
				}
				_, err := a.runner.Finalize(ctx, a.cfg.Period(time.Now()))
				return err
			})
		},
	}
}

func ingestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest",
		Short: "Consume queue items from Kafka into the work queue until stopped",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := runtime.SignalContext(cmd.Context())
			defer stop()

			cfg, err := config.Load(libconfig.New(envFile))
			if err != nil {
				return err
			}
			logger := runtime.NewLogger(config.ServiceName, cfg.LogLevel)
			if len(cfg.KafkaBrokers) == 0 {
				return fmt.Errorf("KAFKA_BROKERS is required for ingest")
			}

			shutdown := setupTracing(ctx, logger)
			defer shutdown()

			pool, err := db.Open(ctx, cfg.DatabaseURL, db.PoolConfig{MaxConns: int32(cfg.MaxConns)})
			if err != nil {
				logger.Error("db connection failed", "err", err)
				return err
			}
			defer pool.Close()

			queue := workqueue.NewRepository(pool)
			c := consumer.New(logger, pool, inbox.NewRepository(), consumer.Config{
				Brokers: strings.Join(cfg.KafkaBrokers, ","),
				GroupID: cfg.IngestGroup,
				Topic:   cfg.IngestTopic,
			}, consumer.IngestHandler(queue, logger))

			logger.Info("ingest consumer starting", "topic", cfg.IngestTopic, "group", cfg.IngestGroup)
			c.Run(ctx)
			logger.Info("ingest consumer stopped")
			return nil
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			src := libconfig.New(envFile)
			logger := runtime.NewLogger(config.ServiceName, src.String("LOG_LEVEL", "info"))
			dbURL, err := src.RequiredString("DATABASE_URL")
			if err != nil {
				return err
			}
			if err := db.Migrate(dbURL, migrations.FS, "."); err != nil {
				logger.Error("migration failed", "err", err)
				return err
			}
			logger.Info("migrations applied")
			return nil
		},
	}
}
