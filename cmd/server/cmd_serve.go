package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"retailpos/backend/internal/alerts"
	"retailpos/backend/internal/config"
	"retailpos/backend/internal/dispatch"
	"retailpos/backend/internal/httpapi"
	"retailpos/backend/internal/metrics"
	"retailpos/backend/internal/service"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and the background alert scanner",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		if err := validateSecurityConfig(cfg); err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg, newLogger(cfg))
	},
}

func serve(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	repo, closeRepo, err := openRepository(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeRepo(); err != nil {
			logger.Warn("close repository", slog.Any("error", err))
		}
	}()

	broadcaster, closeBroadcaster := openBroadcaster(ctx, cfg, logger)
	defer func() {
		if err := closeBroadcaster(); err != nil {
			logger.Warn("close broadcaster", slog.Any("error", err))
		}
	}()

	m := metrics.New(nil)
	effects := dispatch.New(dispatch.Options{
		Workers: cfg.SideEffectWorkers,
		Queue:   cfg.SideEffectQueue,
		Timeout: cfg.SideEffectTimeout,
		Logger:  logger,
		Metrics: m,
	})

	svc := service.New(repo, service.Options{
		Retry:       service.RetryPolicy{MaxRetries: cfg.StockRetryMax, Backoff: cfg.StockRetryBackoff},
		Broadcaster: broadcaster,
		SideEffects: effects,
		Notifier:    alerts.NewNotifier(repo, broadcaster, logger, m, cfg.LowStockAlertWindow),
		Logger:      logger,
		Metrics:     m,
	})

	api := httpapi.New(svc, httpapi.NewIdentityVerifier(cfg.AuthSecret), httpapi.Options{
		AllowedOrigin:      cfg.AllowedOrigin,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		Logger:             logger,
		Metrics:            m,
	})

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	scanCtx, stopScan := context.WithCancel(ctx)
	scanDone := make(chan struct{})
	go func() {
		defer close(scanDone)
		alerts.NewScanner(repo, logger, m, cfg.LowRotationWindow).Run(scanCtx, cfg.AlertScanInterval)
	}()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("POS backend listening", slog.String("addr", cfg.Address()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
		logger.Error("server error", slog.Any("error", serveErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", slog.Any("error", err))
	}
	stopScan()
	<-scanDone
	if err := effects.Close(shutdownCtx); err != nil {
		logger.Warn("side effects not drained", slog.Any("error", err))
	}

	logger.Info("server stopped")
	return serveErr
}
