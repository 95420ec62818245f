package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/store"
	"retailpos/backend/internal/xid"
)

//go:embed schema.sql
var schemaSQL string

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Migrate applies the embedded schema. Every statement is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// RunInTx runs fn in a READ COMMITTED transaction. Stock safety comes from the
// conditional UPDATE in ReserveStock, not from the isolation level.
func (s *Store) RunInTx(ctx context.Context, fn func(tx store.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = sqlTx.Rollback() }()

	if err := fn(&pgTx{tx: sqlTx}); err != nil {
		return translate(err)
	}
	if err := sqlTx.Commit(); err != nil {
		return translate(err)
	}
	return nil
}

func (s *Store) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	return loadSale(ctx, s.db, id, "")
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditEntry) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, user_id, action, entity, entity_id, before, after, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.UserID, entry.Action, entry.Entity, entry.EntityID,
		nullJSON(entry.Before), nullJSON(entry.After), entry.CreatedAt)
	return err
}

// CreateNotificationIfAbsent checks the window and inserts in a single statement.
func (s *Store) CreateNotificationIfAbsent(ctx context.Context, n domain.Notification, window time.Duration) (bool, error) {
	if n.ID == "" {
		n.ID = xid.New("ntf")
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, kind, location_id, product_id, sale_id, message, created_at)
		SELECT $1,$2,$3,$4,$5,$6,$7
		WHERE NOT EXISTS (
			SELECT 1 FROM notifications
			WHERE kind = $2 AND location_id = $3 AND product_id = $4 AND sale_id = $5
				AND created_at >= $8
		)
	`, n.ID, string(n.Kind), n.LocationID, n.ProductID, n.SaleID, n.Message, n.CreatedAt, n.CreatedAt.Add(-window))
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (s *Store) ListLowRotation(ctx context.Context, since time.Time) ([]domain.LocationStock, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ls.product_id, ls.location_id, ls.quantity, ls.min_quantity
		FROM location_stock ls
		JOIN products p ON p.id = ls.product_id AND p.status = 'ACTIVE'
		JOIN locations l ON l.id = ls.location_id AND l.status = 'ACTIVE'
		WHERE ls.quantity > 0
			AND NOT EXISTS (
				SELECT 1
				FROM sale_lines sl
				JOIN sales s ON s.id = sl.sale_id
				WHERE sl.product_id = ls.product_id
					AND s.sale_location_id = ls.location_id
					AND s.state = 'COMPLETED'
					AND s.created_at >= $1
			)
		ORDER BY ls.location_id, ls.product_id
	`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.LocationStock, 0, 32)
	for rows.Next() {
		var row domain.LocationStock
		if err := rows.Scan(&row.ProductID, &row.LocationID, &row.Quantity, &row.MinQuantity); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// loadSale reads a sale with its lines. lock is appended to the header query.
func loadSale(ctx context.Context, q queryer, id string, lock string) (*domain.Sale, error) {
	var sale domain.Sale
	var clientID sql.NullString
	var cancelledAt sql.NullTime
	var cancelledBy sql.NullString
	err := q.QueryRowContext(ctx, `
		SELECT id, seller_location_id, sale_location_id, seller_id, client_id, buyer_name,
			cash_session_id, payment_method, cash_tendered, other_tendered, cash_leg,
			change_given, total, loyalty_points, state, is_remote, created_at,
			cancelled_at, cancelled_by
		FROM sales
		WHERE id = $1
	`+lock, id).Scan(
		&sale.ID,
		&sale.SellerLocationID,
		&sale.SaleLocationID,
		&sale.SellerID,
		&clientID,
		&sale.BuyerName,
		&sale.CashSessionID,
		&sale.PaymentMethod,
		&sale.CashTendered,
		&sale.OtherTendered,
		&sale.CashLeg,
		&sale.Change,
		&sale.Total,
		&sale.LoyaltyPoints,
		&sale.State,
		&sale.IsRemote,
		&sale.CreatedAt,
		&cancelledAt,
		&cancelledBy,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	sale.ClientID = clientID.String
	sale.CancelledBy = cancelledBy.String
	sale.CreatedAt = sale.CreatedAt.UTC()
	if cancelledAt.Valid {
		at := cancelledAt.Time.UTC()
		sale.CancelledAt = &at
	}

	rows, err := q.QueryContext(ctx, `
		SELECT product_id, quantity, unit_price, subtotal
		FROM sale_lines
		WHERE sale_id = $1
		ORDER BY line_no
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		line := domain.SaleLine{SaleID: id}
		if err := rows.Scan(&line.ProductID, &line.Quantity, &line.UnitPrice, &line.Subtotal); err != nil {
			return nil, err
		}
		sale.Lines = append(sale.Lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &sale, nil
}

// translate maps driver errors the service cares about onto store sentinels.
func translate(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case "40001", "40P01":
		return fmt.Errorf("%w: %s", store.ErrStockConflict, pgErr.Message)
	case "23505":
		return fmt.Errorf("%w: %s", store.ErrDuplicate, pgErr.ConstraintName)
	case "23514":
		// quantity >= 0 check tripped; only reachable when a conditional update raced.
		if pgErr.ConstraintName == "location_stock_quantity_check" {
			return fmt.Errorf("%w: %s", store.ErrStockConflict, pgErr.ConstraintName)
		}
	}
	return err
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
