package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/store"
)

type pgTx struct {
	tx *sql.Tx
}

func (t *pgTx) GetActiveProduct(ctx context.Context, productID string) (*domain.Product, error) {
	var p domain.Product
	err := t.tx.QueryRowContext(ctx, `
		SELECT id, name, cost, vat_pct, default_margin_pct, base_price, price_approved, status
		FROM products
		WHERE id = $1 AND status = 'ACTIVE'
	`, productID).Scan(&p.ID, &p.Name, &p.Cost, &p.VATPct, &p.DefaultMarginPct, &p.BasePrice, &p.PriceApproved, &p.Status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (t *pgTx) GetPriceOverride(ctx context.Context, productID, locationID string) (*domain.LocationPriceOverride, error) {
	o := domain.LocationPriceOverride{ProductID: productID, LocationID: locationID}
	err := t.tx.QueryRowContext(ctx, `
		SELECT price, margin_pct, approved
		FROM location_price_overrides
		WHERE product_id = $1 AND location_id = $2
	`, productID, locationID).Scan(&o.Price, &o.MarginPct, &o.Approved)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &o, nil
}

func (t *pgTx) ListActiveTierPrices(ctx context.Context, productID string) ([]domain.QuantityTierPrice, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT min_qty, price
		FROM quantity_tier_prices
		WHERE product_id = $1 AND active = true
		ORDER BY min_qty
	`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tiers := make([]domain.QuantityTierPrice, 0, 4)
	for rows.Next() {
		tier := domain.QuantityTierPrice{ProductID: productID, Active: true}
		if err := rows.Scan(&tier.MinQty, &tier.Price); err != nil {
			return nil, err
		}
		tiers = append(tiers, tier)
	}
	return tiers, rows.Err()
}

func (t *pgTx) GetActiveLocation(ctx context.Context, locationID string) (*domain.Location, error) {
	var l domain.Location
	err := t.tx.QueryRowContext(ctx, `
		SELECT id, name, status FROM locations WHERE id = $1 AND status = 'ACTIVE'
	`, locationID).Scan(&l.ID, &l.Name, &l.Status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &l, nil
}

func (t *pgTx) AvailableStock(ctx context.Context, productID, locationID string) (int, error) {
	var qty int
	err := t.tx.QueryRowContext(ctx, `
		SELECT quantity FROM location_stock WHERE product_id = $1 AND location_id = $2
	`, productID, locationID).Scan(&qty)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return qty, nil
}

func (t *pgTx) AvailabilityAcrossLocations(ctx context.Context, productID, exclude string, minQty int) ([]domain.LocationAvailability, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT l.id, l.name, ls.quantity
		FROM location_stock ls
		JOIN locations l ON l.id = ls.location_id
		WHERE ls.product_id = $1 AND ls.location_id <> $2 AND ls.quantity >= $3
			AND l.status = 'ACTIVE'
		ORDER BY ls.quantity DESC, l.id
	`, productID, exclude, minQty)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.LocationAvailability, 0, 4)
	for rows.Next() {
		var a domain.LocationAvailability
		if err := rows.Scan(&a.LocationID, &a.LocationName, &a.Quantity); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (t *pgTx) ReserveStock(ctx context.Context, productID, locationID string, qty int) (domain.LocationStock, error) {
	row := domain.LocationStock{ProductID: productID, LocationID: locationID}
	err := t.tx.QueryRowContext(ctx, `
		UPDATE location_stock
		SET quantity = quantity - $3
		WHERE product_id = $1 AND location_id = $2 AND quantity >= $3
		RETURNING quantity, min_quantity
	`, productID, locationID, qty).Scan(&row.Quantity, &row.MinQuantity)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.LocationStock{}, store.ErrStockConflict
		}
		return domain.LocationStock{}, translate(err)
	}
	return row, nil
}

func (t *pgTx) ReleaseStock(ctx context.Context, productID, locationID string, qty int) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO location_stock (product_id, location_id, quantity)
		VALUES ($1,$2,$3)
		ON CONFLICT (product_id, location_id)
		DO UPDATE SET quantity = location_stock.quantity + EXCLUDED.quantity
	`, productID, locationID, qty)
	return err
}

func (t *pgTx) GetActiveClient(ctx context.Context, clientID string) (*domain.Client, error) {
	var c domain.Client
	err := t.tx.QueryRowContext(ctx, `
		SELECT id, name, loyalty_points, status FROM clients WHERE id = $1 AND status = 'ACTIVE'
	`, clientID).Scan(&c.ID, &c.Name, &c.LoyaltyPoints, &c.Status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (t *pgTx) AdjustLoyaltyPoints(ctx context.Context, clientID string, delta int) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE clients SET loyalty_points = GREATEST(0, loyalty_points + $2) WHERE id = $1
	`, clientID, delta)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

const sessionColumns = `id, seller_id, location_id, state, opening_float, closing_amount,
	expected_amount, variance, opening_notes, closing_notes, opened_at, closed_at`

func scanSession(row *sql.Row) (*domain.CashSession, error) {
	var cs domain.CashSession
	var closedAt sql.NullTime
	err := row.Scan(
		&cs.ID,
		&cs.SellerID,
		&cs.LocationID,
		&cs.State,
		&cs.OpeningFloat,
		&cs.ClosingAmount,
		&cs.ExpectedAmount,
		&cs.Variance,
		&cs.OpeningNotes,
		&cs.ClosingNotes,
		&cs.OpenedAt,
		&closedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	cs.OpenedAt = cs.OpenedAt.UTC()
	if closedAt.Valid {
		at := closedAt.Time.UTC()
		cs.ClosedAt = &at
	}
	return &cs, nil
}

// GetOpenSession takes a share lock so a concurrent close waits for in-flight sales.
func (t *pgTx) GetOpenSession(ctx context.Context, sellerID, locationID string) (*domain.CashSession, error) {
	return scanSession(t.tx.QueryRowContext(ctx, `
		SELECT `+sessionColumns+`
		FROM cash_sessions
		WHERE seller_id = $1 AND location_id = $2 AND state = 'OPEN'
		FOR SHARE
	`, sellerID, locationID))
}

func (t *pgTx) LockSession(ctx context.Context, sessionID string) (*domain.CashSession, error) {
	return scanSession(t.tx.QueryRowContext(ctx, `
		SELECT `+sessionColumns+`
		FROM cash_sessions
		WHERE id = $1
		FOR UPDATE
	`, sessionID))
}

func (t *pgTx) CreateSession(ctx context.Context, session domain.CashSession) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO cash_sessions (id, seller_id, location_id, state, opening_float, opening_notes, opened_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, session.ID, session.SellerID, session.LocationID, string(session.State), session.OpeningFloat,
		session.OpeningNotes, session.OpenedAt)
	if err != nil {
		return translate(err)
	}
	return nil
}

func (t *pgTx) CloseSession(ctx context.Context, session domain.CashSession) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE cash_sessions
		SET state = 'CLOSED', closing_amount = $2, expected_amount = $3, variance = $4,
			closing_notes = $5, closed_at = $6
		WHERE id = $1 AND state = 'OPEN'
	`, session.ID, session.ClosingAmount, session.ExpectedAmount, session.Variance,
		session.ClosingNotes, session.ClosedAt)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (t *pgTx) SessionPaymentTotals(ctx context.Context, sessionID string) ([]domain.PaymentTotal, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT payment_method, COUNT(*), COALESCE(SUM(total), 0), COALESCE(SUM(cash_leg), 0)
		FROM sales
		WHERE cash_session_id = $1 AND state = 'COMPLETED'
		GROUP BY payment_method
		ORDER BY payment_method
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.PaymentTotal, 0, 6)
	for rows.Next() {
		var pt domain.PaymentTotal
		if err := rows.Scan(&pt.Method, &pt.Count, &pt.Total, &pt.CashLeg); err != nil {
			return nil, err
		}
		out = append(out, pt)
	}
	return out, rows.Err()
}

func (t *pgTx) InsertSale(ctx context.Context, sale domain.Sale) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO sales (
			id, seller_location_id, sale_location_id, seller_id, client_id, buyer_name,
			cash_session_id, payment_method, cash_tendered, other_tendered, cash_leg,
			change_given, total, loyalty_points, state, is_remote, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
	`, sale.ID, sale.SellerLocationID, sale.SaleLocationID, sale.SellerID, nullIfEmpty(sale.ClientID),
		sale.BuyerName, sale.CashSessionID, string(sale.PaymentMethod), sale.CashTendered, sale.OtherTendered,
		sale.CashLeg, sale.Change, sale.Total, sale.LoyaltyPoints, string(sale.State), sale.IsRemote, sale.CreatedAt)
	if err != nil {
		return translate(err)
	}

	for i, line := range sale.Lines {
		_, err := t.tx.ExecContext(ctx, `
			INSERT INTO sale_lines (sale_id, line_no, product_id, quantity, unit_price, subtotal)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, sale.ID, i+1, line.ProductID, line.Quantity, line.UnitPrice, line.Subtotal)
		if err != nil {
			return err
		}
	}
	return nil
}

func (t *pgTx) LockSale(ctx context.Context, saleID string) (*domain.Sale, error) {
	return loadSale(ctx, t.tx, saleID, " FOR UPDATE")
}

func (t *pgTx) MarkSaleCancelled(ctx context.Context, saleID, by string, at time.Time) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE sales
		SET state = 'CANCELLED', cancelled_at = $2, cancelled_by = $3
		WHERE id = $1 AND state = 'COMPLETED'
	`, saleID, at, by)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}
