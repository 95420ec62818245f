package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/store"
)

func newTestStore() *Store {
	s := New()
	s.PutLocation(domain.Location{ID: "l1", Name: "One", Status: domain.StatusActive})
	s.PutLocation(domain.Location{ID: "l2", Name: "Two", Status: domain.StatusActive})
	s.PutLocation(domain.Location{ID: "l3", Name: "Closed", Status: domain.StatusInactive})
	s.PutProduct(domain.Product{ID: "p1", Status: domain.StatusActive})
	s.PutStock(domain.LocationStock{ProductID: "p1", LocationID: "l1", Quantity: 5, MinQuantity: 2})
	s.PutStock(domain.LocationStock{ProductID: "p1", LocationID: "l2", Quantity: 8})
	s.PutStock(domain.LocationStock{ProductID: "p1", LocationID: "l3", Quantity: 50})
	s.PutClient(domain.Client{ID: "c1", LoyaltyPoints: 3, Status: domain.StatusActive})
	return s
}

func TestReserveIsConditional(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	err := s.RunInTx(ctx, func(tx store.Tx) error {
		row, err := tx.ReserveStock(ctx, "p1", "l1", 3)
		require.NoError(t, err)
		assert.Equal(t, 2, row.Quantity)
		assert.True(t, row.IsLow())

		_, err = tx.ReserveStock(ctx, "p1", "l1", 3)
		assert.ErrorIs(t, err, store.ErrStockConflict)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, s.Stock("p1", "l1"))
}

func TestFailedTxRollsBackEveryEffect(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	boom := errors.New("line 2 failed")

	err := s.RunInTx(ctx, func(tx store.Tx) error {
		if _, err := tx.ReserveStock(ctx, "p1", "l1", 4); err != nil {
			return err
		}
		if err := tx.ReleaseStock(ctx, "p1", "l9", 2); err != nil {
			return err
		}
		if err := tx.AdjustLoyaltyPoints(ctx, "c1", 10); err != nil {
			return err
		}
		if err := tx.InsertSale(ctx, domain.Sale{ID: "s1", State: domain.SaleCompleted}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	assert.Equal(t, 5, s.Stock("p1", "l1"))
	assert.Equal(t, 0, s.Stock("p1", "l9"))
	assert.Equal(t, 3, s.Client("c1").LoyaltyPoints)
	_, err = s.GetSale(ctx, "s1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestAvailabilityAcrossLocationsSkipsInactiveAndExcluded(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	_ = s.RunInTx(ctx, func(tx store.Tx) error {
		got, err := tx.AvailabilityAcrossLocations(ctx, "p1", "l1", 6)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "l2", got[0].LocationID)
		assert.Equal(t, "Two", got[0].LocationName)

		got, err = tx.AvailabilityAcrossLocations(ctx, "p1", "l1", 9)
		require.NoError(t, err)
		assert.Empty(t, got)
		return nil
	})
}

func TestLoyaltyClampedAtZero(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	require.NoError(t, s.RunInTx(ctx, func(tx store.Tx) error {
		return tx.AdjustLoyaltyPoints(ctx, "c1", -10)
	}))
	assert.Equal(t, 0, s.Client("c1").LoyaltyPoints)
}

func TestOnlyOneOpenSessionPerSellerAndLocation(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	open := func(id string) error {
		return s.RunInTx(ctx, func(tx store.Tx) error {
			return tx.CreateSession(ctx, domain.CashSession{ID: id, SellerID: "u1", LocationID: "l1", State: domain.SessionOpen})
		})
	}
	require.NoError(t, open("cs1"))
	assert.ErrorIs(t, open("cs2"), store.ErrDuplicate)
	assert.Equal(t, 1, s.SessionCount())
}

func TestMarkSaleCancelledOnlyOnce(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	require.NoError(t, s.RunInTx(ctx, func(tx store.Tx) error {
		return tx.InsertSale(ctx, domain.Sale{ID: "s1", State: domain.SaleCompleted})
	}))

	at := time.Now().UTC()
	cancel := func() error {
		return s.RunInTx(ctx, func(tx store.Tx) error { return tx.MarkSaleCancelled(ctx, "s1", "u1", at) })
	}
	require.NoError(t, cancel())
	assert.ErrorIs(t, cancel(), store.ErrNotFound)

	sale, err := s.GetSale(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, domain.SaleCancelled, sale.State)
	assert.Equal(t, "u1", sale.CancelledBy)
}

func TestNotificationDedupeWindow(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	now := time.Now().UTC()
	n := domain.Notification{Kind: domain.NotificationLowStock, LocationID: "l1", ProductID: "p1", CreatedAt: now}

	inserted, err := s.CreateNotificationIfAbsent(ctx, n, 24*time.Hour)
	require.NoError(t, err)
	assert.True(t, inserted)

	n.CreatedAt = now.Add(23 * time.Hour)
	inserted, _ = s.CreateNotificationIfAbsent(ctx, n, 24*time.Hour)
	assert.False(t, inserted)

	n.CreatedAt = now.Add(25 * time.Hour)
	inserted, _ = s.CreateNotificationIfAbsent(ctx, n, 24*time.Hour)
	assert.True(t, inserted)
	assert.Len(t, s.Notifications(), 2)
}

func TestListLowRotation(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	now := time.Now().UTC()
	require.NoError(t, s.RunInTx(ctx, func(tx store.Tx) error {
		return tx.InsertSale(ctx, domain.Sale{
			ID: "s1", SaleLocationID: "l1", State: domain.SaleCompleted, CreatedAt: now,
			Lines: []domain.SaleLine{{ProductID: "p1", Quantity: 1}},
		})
	}))

	rows, err := s.ListLowRotation(ctx, now.Add(-7*24*time.Hour))
	require.NoError(t, err)
	locations := make([]string, 0, len(rows))
	for _, r := range rows {
		locations = append(locations, r.LocationID)
	}
	assert.Equal(t, []string{"l2"}, locations)
}
