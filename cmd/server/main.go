package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"meetings-backend/internal/config"
	"meetings-backend/internal/directory"
	"meetings-backend/internal/logging"
	"meetings-backend/internal/storage"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	serve := newServeCmd()
	root := &cobra.Command{
		Use:           "meetings-server",
		Short:         "Investor directory with token-gated contact reveals",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          serve.RunE,
	}
	root.AddCommand(serve, newMigrateCmd(), newCheckDatasetCmd())
	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.Logging)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logger)
		},
	}
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Read()
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.Logging)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			db, err := connectDB(cmd.Context(), cfg.Database, logger)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := storage.Migrate(cmd.Context(), db.DB); err != nil {
				return err
			}
			logger.Info("migrations applied")
			return nil
		},
	}
}

func newCheckDatasetCmd() *cobra.Command {
	var url string
	cmd := &cobra.Command{
		Use:   "check-dataset",
		Short: "Load the dataset and print its row count",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Read()
			if err != nil {
				return err
			}
			if url == "" {
				url = cfg.Dataset.URL
			}
			src, err := directory.NewSource(cmd.Context(), url, cfg.Dataset.S3)
			if err != nil {
				return err
			}
			ds, err := directory.Load(cmd.Context(), src)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d rows, %d columns\n", src, len(ds.Rows), len(ds.Columns))
			return nil
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "dataset location (defaults to DATASET_URL)")
	return cmd
}

// connectDB opens Postgres, retrying while the database comes up.
func connectDB(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*sqlx.DB, error) {
	retries := max(cfg.ConnectRetries, 1)
	var err error
	for i := 0; i < retries; i++ {
		var db *sqlx.DB
		db, err = sqlx.ConnectContext(ctx, "postgres", cfg.DSN())
		if err == nil {
			logger.Info("connected to database", zap.String("host", cfg.Host), zap.String("name", cfg.Name))
			return db, nil
		}
		logger.Warn("database connection failed", zap.Int("attempt", i+1), zap.Error(err))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
	return nil, fmt.Errorf("connect to database: %w", err)
}
