package store

import (
	"context"
	"errors"
	"time"

	"retailpos/backend/internal/domain"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrStockConflict means a conditional stock update matched no row, or the
	// database aborted the transaction on a serialization conflict.
	ErrStockConflict = errors.New("stock conflict")
	ErrDuplicate     = errors.New("duplicate")
)

// Repository is the persistence boundary. Everything that must be atomic runs
// inside RunInTx; a non-nil error from fn discards all of its effects.
type Repository interface {
	RunInTx(ctx context.Context, fn func(tx Tx) error) error

	GetSale(ctx context.Context, id string) (*domain.Sale, error)
	CreateAuditLog(ctx context.Context, entry domain.AuditEntry) error
	// CreateNotificationIfAbsent inserts n unless a notification of the same kind,
	// location and product exists within window. It reports whether it inserted.
	CreateNotificationIfAbsent(ctx context.Context, n domain.Notification, window time.Duration) (bool, error)
	// ListLowRotation returns stock rows with quantity > 0 that saw no completed
	// sale at their location since the given time.
	ListLowRotation(ctx context.Context, since time.Time) ([]domain.LocationStock, error)
	Ping(ctx context.Context) error
}

type Tx interface {
	GetActiveProduct(ctx context.Context, productID string) (*domain.Product, error)
	GetPriceOverride(ctx context.Context, productID, locationID string) (*domain.LocationPriceOverride, error)
	ListActiveTierPrices(ctx context.Context, productID string) ([]domain.QuantityTierPrice, error)
	GetActiveLocation(ctx context.Context, locationID string) (*domain.Location, error)

	// AvailableStock is 0 when no row exists.
	AvailableStock(ctx context.Context, productID, locationID string) (int, error)
	// AvailabilityAcrossLocations lists active locations other than exclude holding at least minQty.
	AvailabilityAcrossLocations(ctx context.Context, productID, exclude string, minQty int) ([]domain.LocationAvailability, error)
	// ReserveStock decrements only when quantity >= qty and returns the row after the update.
	ReserveStock(ctx context.Context, productID, locationID string, qty int) (domain.LocationStock, error)
	ReleaseStock(ctx context.Context, productID, locationID string, qty int) error

	GetActiveClient(ctx context.Context, clientID string) (*domain.Client, error)
	// AdjustLoyaltyPoints adds delta and clamps the balance at zero.
	AdjustLoyaltyPoints(ctx context.Context, clientID string, delta int) error

	GetOpenSession(ctx context.Context, sellerID, locationID string) (*domain.CashSession, error)
	LockSession(ctx context.Context, sessionID string) (*domain.CashSession, error)
	CreateSession(ctx context.Context, session domain.CashSession) error
	CloseSession(ctx context.Context, session domain.CashSession) error
	SessionPaymentTotals(ctx context.Context, sessionID string) ([]domain.PaymentTotal, error)

	InsertSale(ctx context.Context, sale domain.Sale) error
	LockSale(ctx context.Context, saleID string) (*domain.Sale, error)
	// MarkSaleCancelled only transitions a COMPLETED sale; otherwise ErrNotFound.
	MarkSaleCancelled(ctx context.Context, saleID, by string, at time.Time) error
}
