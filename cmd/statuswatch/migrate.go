package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"statuswatch/internal/config"
	"statuswatch/internal/infra/db"
	"statuswatch/internal/observability/logging"
)

var migrateDown bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or drop the seen-posts schema",
	Long: `Migrate creates the seen_posts table in the database named by
DATABASE_URL. run migrates on start as well, so this is only needed to
prepare a database ahead of time or to drop it with --down.`,
	Args: cobra.NoArgs,
	RunE: runMigrate,
}

func init() {
	migrateCmd.Flags().BoolVar(&migrateDown, "down", false, "drop the schema instead of creating it")
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	if err := config.ApplySources(loadOptions(nil)); err != nil {
		return err
	}
	cfg := config.FromEnv(logging.NewLogger(), nil)
	if cfg.DatabaseURL == "" {
		return &config.Error{Problems: []string{"DATABASE_URL is required"}}
	}
	logger := setupLogger(cfg)
	ctx := cmd.Context()

	database, driver, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() {
		if err := database.Close(); err != nil {
			logger.Error("failed to close database", slog.Any("error", err))
		}
	}()

	if migrateDown {
		if err := db.MigrateDown(ctx, database); err != nil {
			return fmt.Errorf("migrate down: %w", err)
		}
		logger.Info("schema dropped", slog.String("driver", string(driver)))
		return nil
	}

	if err := db.MigrateUp(ctx, database, driver); err != nil {
		return fmt.Errorf("migrate up: %w", err)
	}
	logger.Info("migrations completed successfully", slog.String("driver", string(driver)))
	return nil
}
