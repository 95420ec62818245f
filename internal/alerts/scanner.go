package alerts

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/metrics"
	"retailpos/backend/internal/store"
)

// Scanner flags stock that has not moved at its location within the window.
// It only reads core tables and writes notification rows.
type Scanner struct {
	repo    store.Repository
	logger  *slog.Logger
	metrics *metrics.Metrics
	window  time.Duration
}

func NewScanner(repo store.Repository, logger *slog.Logger, m *metrics.Metrics, window time.Duration) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	if window <= 0 {
		window = 7 * 24 * time.Hour
	}
	return &Scanner{repo: repo, logger: logger, metrics: m, window: window}
}

// RunOnce performs one scan at now and returns how many notifications it created.
func (s *Scanner) RunOnce(ctx context.Context, now time.Time) (int, error) {
	rows, err := s.repo.ListLowRotation(ctx, now.Add(-s.window))
	if err != nil {
		return 0, fmt.Errorf("list low rotation: %w", err)
	}

	created := 0
	for _, row := range rows {
		inserted, err := s.repo.CreateNotificationIfAbsent(ctx, domain.Notification{
			Kind:       domain.NotificationLowRotation,
			LocationID: row.LocationID,
			ProductID:  row.ProductID,
			Message:    fmt.Sprintf("%s has %d units at %s and no sales in %s", row.ProductID, row.Quantity, row.LocationID, s.window),
			CreatedAt:  now,
		}, s.window)
		if err != nil {
			return created, fmt.Errorf("low rotation notification: %w", err)
		}
		if inserted {
			created++
			if s.metrics != nil {
				s.metrics.AlertsCreated.WithLabelValues(string(domain.NotificationLowRotation)).Inc()
			}
		}
	}
	return created, nil
}

// Run scans every interval until ctx is done. Scan errors are logged and the loop continues.
func (s *Scanner) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case tick := <-ticker.C:
			created, err := s.RunOnce(ctx, tick.UTC())
			if err != nil {
				s.logger.Warn("low rotation scan failed", slog.Any("error", err))
				continue
			}
			s.logger.Info("low rotation scan finished", slog.Int("created", created))
		}
	}
}
