package memory

import (
	"context"
	"sort"
	"time"

	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/store"
)

type memTx struct {
	s    *Store
	undo []func()
}

func (t *memTx) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

func (t *memTx) GetActiveProduct(_ context.Context, productID string) (*domain.Product, error) {
	p, ok := t.s.products[productID]
	if !ok || p.Status != domain.StatusActive {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (t *memTx) GetPriceOverride(_ context.Context, productID, locationID string) (*domain.LocationPriceOverride, error) {
	o, ok := t.s.overrides[stockKey{productID, locationID}]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &o, nil
}

func (t *memTx) ListActiveTierPrices(_ context.Context, productID string) ([]domain.QuantityTierPrice, error) {
	out := make([]domain.QuantityTierPrice, 0, len(t.s.tiers[productID]))
	for _, tier := range t.s.tiers[productID] {
		if tier.Active {
			out = append(out, tier)
		}
	}
	return out, nil
}

func (t *memTx) GetActiveLocation(_ context.Context, locationID string) (*domain.Location, error) {
	l, ok := t.s.locations[locationID]
	if !ok || l.Status != domain.StatusActive {
		return nil, store.ErrNotFound
	}
	return &l, nil
}

func (t *memTx) AvailableStock(_ context.Context, productID, locationID string) (int, error) {
	return t.s.stock[stockKey{productID, locationID}].Quantity, nil
}

func (t *memTx) AvailabilityAcrossLocations(_ context.Context, productID, exclude string, minQty int) ([]domain.LocationAvailability, error) {
	out := make([]domain.LocationAvailability, 0)
	for key, row := range t.s.stock {
		if key.productID != productID || key.locationID == exclude || row.Quantity < minQty {
			continue
		}
		loc, ok := t.s.locations[key.locationID]
		if !ok || loc.Status != domain.StatusActive {
			continue
		}
		out = append(out, domain.LocationAvailability{LocationID: loc.ID, LocationName: loc.Name, Quantity: row.Quantity})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Quantity != out[j].Quantity {
			return out[i].Quantity > out[j].Quantity
		}
		return out[i].LocationID < out[j].LocationID
	})
	return out, nil
}

func (t *memTx) ReserveStock(_ context.Context, productID, locationID string, qty int) (domain.LocationStock, error) {
	key := stockKey{productID, locationID}
	row, ok := t.s.stock[key]
	if !ok || row.Quantity < qty {
		return domain.LocationStock{}, store.ErrStockConflict
	}
	prev := row
	row.Quantity -= qty
	t.s.stock[key] = row
	t.undo = append(t.undo, func() { t.s.stock[key] = prev })
	return row, nil
}

func (t *memTx) ReleaseStock(_ context.Context, productID, locationID string, qty int) error {
	key := stockKey{productID, locationID}
	prev, existed := t.s.stock[key]
	row := prev
	if !existed {
		row = domain.LocationStock{ProductID: productID, LocationID: locationID}
	}
	row.Quantity += qty
	t.s.stock[key] = row
	t.undo = append(t.undo, func() {
		if existed {
			t.s.stock[key] = prev
			return
		}
		delete(t.s.stock, key)
	})
	return nil
}

func (t *memTx) GetActiveClient(_ context.Context, clientID string) (*domain.Client, error) {
	c, ok := t.s.clients[clientID]
	if !ok || c.Status != domain.StatusActive {
		return nil, store.ErrNotFound
	}
	return &c, nil
}

func (t *memTx) AdjustLoyaltyPoints(_ context.Context, clientID string, delta int) error {
	c, ok := t.s.clients[clientID]
	if !ok {
		return store.ErrNotFound
	}
	prev := c
	c.LoyaltyPoints = max(0, c.LoyaltyPoints+delta)
	t.s.clients[clientID] = c
	t.undo = append(t.undo, func() { t.s.clients[clientID] = prev })
	return nil
}

func (t *memTx) GetOpenSession(_ context.Context, sellerID, locationID string) (*domain.CashSession, error) {
	for _, cs := range t.s.sessions {
		if cs.SellerID == sellerID && cs.LocationID == locationID && cs.State == domain.SessionOpen {
			out := cs
			return &out, nil
		}
	}
	return nil, store.ErrNotFound
}

func (t *memTx) LockSession(_ context.Context, sessionID string) (*domain.CashSession, error) {
	cs, ok := t.s.sessions[sessionID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &cs, nil
}

func (t *memTx) CreateSession(ctx context.Context, session domain.CashSession) error {
	if _, err := t.GetOpenSession(ctx, session.SellerID, session.LocationID); err == nil {
		return store.ErrDuplicate
	}
	if _, exists := t.s.sessions[session.ID]; exists {
		return store.ErrDuplicate
	}
	t.s.sessions[session.ID] = session
	t.undo = append(t.undo, func() { delete(t.s.sessions, session.ID) })
	return nil
}

func (t *memTx) CloseSession(_ context.Context, session domain.CashSession) error {
	prev, ok := t.s.sessions[session.ID]
	if !ok || prev.State != domain.SessionOpen {
		return store.ErrNotFound
	}
	t.s.sessions[session.ID] = session
	t.undo = append(t.undo, func() { t.s.sessions[session.ID] = prev })
	return nil
}

func (t *memTx) SessionPaymentTotals(_ context.Context, sessionID string) ([]domain.PaymentTotal, error) {
	byMethod := make(map[domain.PaymentMethod]*domain.PaymentTotal)
	for _, sale := range t.s.sales {
		if sale.CashSessionID != sessionID || sale.State != domain.SaleCompleted {
			continue
		}
		agg, ok := byMethod[sale.PaymentMethod]
		if !ok {
			agg = &domain.PaymentTotal{Method: sale.PaymentMethod}
			byMethod[sale.PaymentMethod] = agg
		}
		agg.Count++
		agg.Total = agg.Total.Add(sale.Total)
		agg.CashLeg = agg.CashLeg.Add(sale.CashLeg)
	}

	out := make([]domain.PaymentTotal, 0, len(byMethod))
	for _, agg := range byMethod {
		out = append(out, *agg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Method < out[j].Method })
	return out, nil
}

func (t *memTx) InsertSale(_ context.Context, sale domain.Sale) error {
	if _, exists := t.s.sales[sale.ID]; exists {
		return store.ErrDuplicate
	}
	t.s.sales[sale.ID] = cloneSale(sale)
	t.undo = append(t.undo, func() { delete(t.s.sales, sale.ID) })
	return nil
}

func (t *memTx) LockSale(_ context.Context, saleID string) (*domain.Sale, error) {
	sale, ok := t.s.sales[saleID]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := cloneSale(sale)
	return &out, nil
}

func (t *memTx) MarkSaleCancelled(_ context.Context, saleID, by string, at time.Time) error {
	sale, ok := t.s.sales[saleID]
	if !ok || sale.State != domain.SaleCompleted {
		return store.ErrNotFound
	}
	prev := sale
	sale.State = domain.SaleCancelled
	sale.CancelledAt = &at
	sale.CancelledBy = by
	t.s.sales[saleID] = sale
	t.undo = append(t.undo, func() { t.s.sales[saleID] = prev })
	return nil
}
