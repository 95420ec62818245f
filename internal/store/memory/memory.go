package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/pricing"
	"retailpos/backend/internal/store"
	"retailpos/backend/internal/xid"
)

type stockKey struct {
	productID  string
	locationID string
}

// Store keeps everything in maps behind one mutex. RunInTx holds the lock for
// the whole callback, so transactions are serial and an undo log rolls back
// a failed attempt.
type Store struct {
	mu            sync.Mutex
	locations     map[string]domain.Location
	products      map[string]domain.Product
	overrides     map[stockKey]domain.LocationPriceOverride
	tiers         map[string][]domain.QuantityTierPrice
	stock         map[stockKey]domain.LocationStock
	clients       map[string]domain.Client
	sessions      map[string]domain.CashSession
	sales         map[string]domain.Sale
	notifications []domain.Notification
	auditLogs     []domain.AuditEntry
}

func New() *Store {
	return &Store{
		locations: make(map[string]domain.Location),
		products:  make(map[string]domain.Product),
		overrides: make(map[stockKey]domain.LocationPriceOverride),
		tiers:     make(map[string][]domain.QuantityTierPrice),
		stock:     make(map[stockKey]domain.LocationStock),
		clients:   make(map[string]domain.Client),
		sessions:  make(map[string]domain.CashSession),
		sales:     make(map[string]domain.Sale),
	}
}

// NewSeeded returns a store with two locations and a small catalog for local runs.
func NewSeeded() *Store {
	s := New()
	s.PutLocation(domain.Location{ID: "loc-centro", Name: "Centro", Status: domain.StatusActive})
	s.PutLocation(domain.Location{ID: "loc-norte", Name: "Norte", Status: domain.StatusActive})

	products := []domain.Product{
		{ID: "prod-yerba", Name: "Yerba 1kg", Cost: dec("2800"), VATPct: dec("21"), DefaultMarginPct: dec("30")},
		{ID: "prod-cafe", Name: "Cafe molido 500g", Cost: dec("4500"), VATPct: dec("21"), DefaultMarginPct: dec("35")},
		{ID: "prod-azucar", Name: "Azucar 1kg", Cost: dec("900"), VATPct: dec("10.5"), DefaultMarginPct: dec("25")},
		{ID: "prod-galletas", Name: "Galletas surtidas", Cost: dec("1200"), VATPct: dec("21"), DefaultMarginPct: dec("40")},
	}
	for _, p := range products {
		p.Status = domain.StatusActive
		p.BasePrice = pricing.SuggestedPrice(p.Cost, p.VATPct, p.DefaultMarginPct)
		s.PutProduct(p)
		s.PutStock(domain.LocationStock{ProductID: p.ID, LocationID: "loc-centro", Quantity: 40, MinQuantity: 5})
		s.PutStock(domain.LocationStock{ProductID: p.ID, LocationID: "loc-norte", Quantity: 15, MinQuantity: 5})
	}
	s.PutTier(domain.QuantityTierPrice{ProductID: "prod-galletas", MinQty: 6, Price: dec("10000"), Active: true})
	s.PutClient(domain.Client{ID: "client-demo", Name: "Cliente frecuente", Status: domain.StatusActive})
	return s
}

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func (s *Store) PutLocation(l domain.Location) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locations[l.ID] = l
}

func (s *Store) PutProduct(p domain.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = p
}

func (s *Store) PutOverride(o domain.LocationPriceOverride) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overrides[stockKey{o.ProductID, o.LocationID}] = o
}

func (s *Store) PutTier(t domain.QuantityTierPrice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tiers[t.ProductID] = append(s.tiers[t.ProductID], t)
}

func (s *Store) PutStock(row domain.LocationStock) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stock[stockKey{row.ProductID, row.LocationID}] = row
}

func (s *Store) PutClient(c domain.Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[c.ID] = c
}

func (s *Store) Stock(productID, locationID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stock[stockKey{productID, locationID}].Quantity
}

func (s *Store) Client(id string) domain.Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clients[id]
}

func (s *Store) Notifications() []domain.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Notification(nil), s.notifications...)
}

func (s *Store) AuditLogs() []domain.AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.AuditEntry(nil), s.auditLogs...)
}

func (s *Store) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Store) Ping(context.Context) error {
	return nil
}

func (s *Store) RunInTx(ctx context.Context, fn func(tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{s: s}
	if err := fn(tx); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

func (s *Store) GetSale(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sale, ok := s.sales[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := cloneSale(sale)
	return &out, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) CreateNotificationIfAbsent(_ context.Context, n domain.Notification, window time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	cutoff := n.CreatedAt.Add(-window)
	for _, existing := range s.notifications {
		if existing.Kind == n.Kind && existing.LocationID == n.LocationID &&
			existing.ProductID == n.ProductID && existing.SaleID == n.SaleID &&
			!existing.CreatedAt.Before(cutoff) {
			return false, nil
		}
	}
	if n.ID == "" {
		n.ID = xid.New("ntf")
	}
	s.notifications = append(s.notifications, n)
	return true, nil
}

func (s *Store) ListLowRotation(_ context.Context, since time.Time) ([]domain.LocationStock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sold := make(map[stockKey]struct{})
	for _, sale := range s.sales {
		if sale.State != domain.SaleCompleted || sale.CreatedAt.Before(since) {
			continue
		}
		for _, line := range sale.Lines {
			sold[stockKey{line.ProductID, sale.SaleLocationID}] = struct{}{}
		}
	}

	out := make([]domain.LocationStock, 0)
	for key, row := range s.stock {
		if row.Quantity <= 0 {
			continue
		}
		if p, ok := s.products[key.productID]; !ok || p.Status != domain.StatusActive {
			continue
		}
		if l, ok := s.locations[key.locationID]; !ok || l.Status != domain.StatusActive {
			continue
		}
		if _, ok := sold[key]; ok {
			continue
		}
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LocationID != out[j].LocationID {
			return out[i].LocationID < out[j].LocationID
		}
		return out[i].ProductID < out[j].ProductID
	})
	return out, nil
}

func cloneSale(sale domain.Sale) domain.Sale {
	sale.Lines = append([]domain.SaleLine(nil), sale.Lines...)
	return sale
}
