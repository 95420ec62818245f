package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"retailpos/backend/internal/alerts"
	"retailpos/backend/internal/config"
	"retailpos/backend/internal/metrics"
	pgstore "retailpos/backend/internal/store/postgres"
)

// retailpos migrate: apply the embedded postgres schema.
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the postgres schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		if cfg.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for migrate")
		}
		logger := newLogger(cfg)

		ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
		defer cancel()
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer pg.Close()

		if err := pg.Migrate(ctx); err != nil {
			return err
		}
		logger.Info("schema applied")
		return nil
	},
}

// retailpos scan: run the low-rotation scan once, for cron-driven deployments.
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run the low-rotation alert scan once",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		logger := newLogger(cfg)
		if cfg.DatabaseURL == "" {
			logger.Warn("DATABASE_URL is empty; scanning the seeded in-memory store")
		}

		repo, closeRepo, err := openRepository(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer closeRepo()

		created, err := alerts.NewScanner(repo, logger, metrics.New(nil), cfg.LowRotationWindow).
			RunOnce(cmd.Context(), time.Now().UTC())
		if err != nil {
			return err
		}
		logger.Info("low rotation scan finished", slog.Int("created", created))
		return nil
	},
}
