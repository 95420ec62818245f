package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"retailpos/backend/internal/broadcast"
	"retailpos/backend/internal/config"
	"retailpos/backend/internal/store"
	"retailpos/backend/internal/store/memory"
	pgstore "retailpos/backend/internal/store/postgres"
)

var errInMemoryProduction = errors.New("DATABASE_URL must be set in production; the in-memory store loses every sale on restart")

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if cfg.IsProduction() && cfg.DatabaseURL == "" {
		return errInMemoryProduction
	}
	if cfg.IsProduction() && cfg.AllowedOrigin == "*" {
		return fmt.Errorf("ALLOWED_ORIGIN must name a concrete origin in production")
	}
	return nil
}

func newLogger(cfg config.Config) *slog.Logger {
	if cfg.IsProduction() {
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// openRepository returns postgres when DATABASE_URL is set and the seeded
// in-memory store otherwise. The returned closer is never nil.
func openRepository(ctx context.Context, cfg config.Config, logger *slog.Logger) (store.Repository, func() error, error) {
	if cfg.DatabaseURL == "" {
		logger.Info("repository: in-memory")
		return memory.NewSeeded(), func() error { return nil }, nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	pg, err := pgstore.New(connectCtx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres unavailable and DATABASE_URL is set; refusing to start with in-memory fallback: %w", err)
	}
	logger.Info("repository: postgres")
	return pg, pg.Close, nil
}

// openBroadcaster falls back to logging events when Redis is not configured or unreachable.
func openBroadcaster(ctx context.Context, cfg config.Config, logger *slog.Logger) (broadcast.Broadcaster, func() error) {
	if cfg.RedisAddr == "" {
		logger.Info("broadcaster: log")
		return broadcast.NewLog(logger), func() error { return nil }
	}

	rb := broadcast.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rb.Ping(pingCtx); err != nil {
		logger.Warn("redis unavailable, broadcasting to log", slog.Any("error", err))
		_ = rb.Close()
		return broadcast.NewLog(logger), func() error { return nil }
	}
	logger.Info("broadcaster: redis", slog.String("addr", cfg.RedisAddr))
	return rb, rb.Close
}
