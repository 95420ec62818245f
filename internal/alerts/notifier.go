// Package alerts creates notification rows for stock events and runs the
// periodic low-rotation scan. Every row is deduplicated by a time window.
package alerts

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"retailpos/backend/internal/broadcast"
	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/metrics"
	"retailpos/backend/internal/store"
)

type Notifier struct {
	repo           store.Repository
	broadcaster    broadcast.Broadcaster
	logger         *slog.Logger
	metrics        *metrics.Metrics
	lowStockWindow time.Duration
	now            func() time.Time
}

func NewNotifier(repo store.Repository, b broadcast.Broadcaster, logger *slog.Logger, m *metrics.Metrics, lowStockWindow time.Duration) *Notifier {
	if b == nil {
		b = broadcast.Noop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if lowStockWindow <= 0 {
		lowStockWindow = 24 * time.Hour
	}
	return &Notifier{
		repo:           repo,
		broadcaster:    b,
		logger:         logger,
		metrics:        m,
		lowStockWindow: lowStockWindow,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

type lowStockPayload struct {
	ProductID   string `json:"productId"`
	LocationID  string `json:"locationId"`
	Quantity    int    `json:"quantity"`
	MinQuantity int    `json:"minQuantity"`
}

// LowStock broadcasts on every signal; the notification row is written once per window.
func (n *Notifier) LowStock(ctx context.Context, row domain.LocationStock) error {
	payload := lowStockPayload{
		ProductID:   row.ProductID,
		LocationID:  row.LocationID,
		Quantity:    row.Quantity,
		MinQuantity: row.MinQuantity,
	}
	for _, channel := range []string{domain.LocationChannel(row.LocationID), domain.AdminChannel} {
		if err := n.broadcaster.Publish(ctx, channel, domain.EventLowStock, payload); err != nil {
			n.logger.Warn("low stock broadcast failed", slog.String("channel", channel), slog.Any("error", err))
		}
	}

	inserted, err := n.repo.CreateNotificationIfAbsent(ctx, domain.Notification{
		Kind:       domain.NotificationLowStock,
		LocationID: row.LocationID,
		ProductID:  row.ProductID,
		Message:    fmt.Sprintf("stock of %s at %s is %d (minimum %d)", row.ProductID, row.LocationID, row.Quantity, row.MinQuantity),
		CreatedAt:  n.now(),
	}, n.lowStockWindow)
	if err != nil {
		return fmt.Errorf("low stock notification: %w", err)
	}
	if inserted {
		n.count(domain.NotificationLowStock)
	}
	return nil
}

// RemoteSale tells the stock-origin location that a seller elsewhere drew on its stock.
func (n *Notifier) RemoteSale(ctx context.Context, sale domain.Sale) error {
	if !sale.IsRemote {
		return nil
	}
	if err := n.broadcaster.Publish(ctx, domain.LocationChannel(sale.SaleLocationID), domain.EventRemoteSale, sale); err != nil {
		n.logger.Warn("remote sale broadcast failed", slog.String("sale_id", sale.ID), slog.Any("error", err))
	}

	inserted, err := n.repo.CreateNotificationIfAbsent(ctx, domain.Notification{
		Kind:       domain.NotificationRemoteSale,
		LocationID: sale.SaleLocationID,
		SaleID:     sale.ID,
		Message:    fmt.Sprintf("seller %s at %s sold %s from this location's stock", sale.SellerID, sale.SellerLocationID, sale.Total.StringFixed(2)),
		CreatedAt:  n.now(),
	}, n.lowStockWindow)
	if err != nil {
		return fmt.Errorf("remote sale notification: %w", err)
	}
	if inserted {
		n.count(domain.NotificationRemoteSale)
	}
	return nil
}

func (n *Notifier) count(kind domain.NotificationKind) {
	if n.metrics != nil {
		n.metrics.AlertsCreated.WithLabelValues(string(kind)).Inc()
	}
}
