package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Role string

const (
	RoleAdmin  Role = "admin"
	RoleSeller Role = "seller"
)

// Identity is supplied by the identity middleware for every authenticated request.
type Identity struct {
	UserID     string `json:"userId"`
	Role       Role   `json:"role"`
	LocationID string `json:"locationId"`
}

func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

// CatalogStatus replaces soft-delete flags on catalog entities.
type CatalogStatus string

const (
	StatusActive   CatalogStatus = "ACTIVE"
	StatusInactive CatalogStatus = "INACTIVE"
)

type Location struct {
	ID     string        `json:"id"`
	Name   string        `json:"name"`
	Status CatalogStatus `json:"status"`
}

type Product struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	Cost             decimal.Decimal `json:"cost"`
	VATPct           decimal.Decimal `json:"vatPct"`
	DefaultMarginPct decimal.Decimal `json:"defaultMarginPct"`
	BasePrice        decimal.Decimal `json:"basePrice"`
	PriceApproved    bool            `json:"priceApproved"`
	Status           CatalogStatus   `json:"status"`
}

type LocationPriceOverride struct {
	ProductID  string              `json:"productId"`
	LocationID string              `json:"locationId"`
	Price      decimal.NullDecimal `json:"price"`
	MarginPct  decimal.NullDecimal `json:"marginPct"`
	Approved   bool                `json:"approved"`
}

// QuantityTierPrice is a fixed total charged for MinQty or more units.
type QuantityTierPrice struct {
	ProductID string          `json:"productId"`
	MinQty    int             `json:"minQty"`
	Price     decimal.Decimal `json:"price"`
	Active    bool            `json:"active"`
}

type LocationStock struct {
	ProductID   string `json:"productId"`
	LocationID  string `json:"locationId"`
	Quantity    int    `json:"quantity"`
	MinQuantity int    `json:"minQuantity"`
}

// IsLow reports whether the row is at or below its reorder threshold.
func (s LocationStock) IsLow() bool {
	return s.Quantity <= s.MinQuantity
}

type LocationAvailability struct {
	LocationID   string `json:"locationId"`
	LocationName string `json:"locationName,omitempty"`
	Quantity     int    `json:"quantity"`
}

type Client struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	LoyaltyPoints int           `json:"loyaltyPoints"`
	Status        CatalogStatus `json:"status"`
}

type CashSessionState string

const (
	SessionOpen   CashSessionState = "OPEN"
	SessionClosed CashSessionState = "CLOSED"
)

type CashSession struct {
	ID             string              `json:"id"`
	SellerID       string              `json:"sellerId"`
	LocationID     string              `json:"locationId"`
	State          CashSessionState    `json:"state"`
	OpeningFloat   decimal.Decimal     `json:"openingFloat"`
	ClosingAmount  decimal.NullDecimal `json:"closingAmount"`
	ExpectedAmount decimal.NullDecimal `json:"expectedAmount"`
	Variance       decimal.NullDecimal `json:"variance"`
	OpeningNotes   string              `json:"openingNotes,omitempty"`
	ClosingNotes   string              `json:"closingNotes,omitempty"`
	OpenedAt       time.Time           `json:"openedAt"`
	ClosedAt       *time.Time          `json:"closedAt,omitempty"`
}

// PaymentTotal aggregates completed sales of one payment method inside a session.
type PaymentTotal struct {
	Method  PaymentMethod   `json:"method"`
	Count   int             `json:"count"`
	Total   decimal.Decimal `json:"total"`
	CashLeg decimal.Decimal `json:"cashLeg"`
}

type SessionTotals struct {
	SalesCount   int                               `json:"salesCount"`
	Total        decimal.Decimal                   `json:"total"`
	Cash         decimal.Decimal                   `json:"cash"`
	ByMethod     map[PaymentMethod]decimal.Decimal `json:"byMethod"`
	ExpectedCash decimal.Decimal                   `json:"expectedCash"`
}

type CashSessionStatus struct {
	Open    bool           `json:"open"`
	Session *CashSession   `json:"session,omitempty"`
	Totals  *SessionTotals `json:"totals,omitempty"`
}

type OpenCashSessionRequest struct {
	OpeningFloat decimal.Decimal `json:"openingFloat"`
	Notes        string          `json:"notes,omitempty" validate:"max=500"`
}

type CloseCashSessionRequest struct {
	ClosingAmount decimal.Decimal `json:"closingAmount"`
	Notes         string          `json:"notes,omitempty" validate:"max=500"`
}

type SaleState string

const (
	SaleCompleted SaleState = "COMPLETED"
	SaleCancelled SaleState = "CANCELLED"
)

type Sale struct {
	ID               string              `json:"id"`
	SellerLocationID string              `json:"sellerLocationId"`
	SaleLocationID   string              `json:"saleLocationId"`
	SellerID         string              `json:"sellerId"`
	ClientID         string              `json:"clientId,omitempty"`
	BuyerName        string              `json:"buyerName,omitempty"`
	CashSessionID    string              `json:"cashSessionId"`
	PaymentMethod    PaymentMethod       `json:"paymentMethod"`
	CashTendered     decimal.NullDecimal `json:"cashTendered"`
	OtherTendered    decimal.NullDecimal `json:"otherTendered"`
	CashLeg          decimal.Decimal     `json:"cashLeg"`
	Change           decimal.Decimal     `json:"change"`
	Total            decimal.Decimal     `json:"total"`
	LoyaltyPoints    int                 `json:"loyaltyPoints"`
	State            SaleState           `json:"state"`
	IsRemote         bool                `json:"isRemote"`
	CreatedAt        time.Time           `json:"createdAt"`
	CancelledAt      *time.Time          `json:"cancelledAt,omitempty"`
	CancelledBy      string              `json:"cancelledBy,omitempty"`
	Lines            []SaleLine          `json:"lines"`
}

type SaleLine struct {
	SaleID    string          `json:"saleId"`
	ProductID string          `json:"productId"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

type SaleLineRequest struct {
	ProductID string `json:"productId" validate:"required"`
	Quantity  int    `json:"quantity" validate:"gt=0"`
}

type CreateSaleRequest struct {
	ClientID         string            `json:"clientId,omitempty"`
	BuyerName        string            `json:"buyerName,omitempty" validate:"max=200"`
	OriginLocationID string            `json:"originLocationId,omitempty"`
	PaymentMethod    PaymentMethod     `json:"paymentMethod" validate:"required,oneof=CASH DEBIT CREDIT QR TRANSFER MIXED"`
	CashTendered     *decimal.Decimal  `json:"cashTendered,omitempty"`
	OtherTendered    *decimal.Decimal  `json:"otherTendered,omitempty"`
	Lines            []SaleLineRequest `json:"lines" validate:"required,min=1,dive"`
}

type NotificationKind string

const (
	NotificationLowStock    NotificationKind = "LOW_STOCK"
	NotificationLowRotation NotificationKind = "LOW_ROTATION"
	NotificationRemoteSale  NotificationKind = "REMOTE_SALE"
)

type Notification struct {
	ID         string           `json:"id"`
	Kind       NotificationKind `json:"kind"`
	LocationID string           `json:"locationId"`
	ProductID  string           `json:"productId,omitempty"`
	SaleID     string           `json:"saleId,omitempty"`
	Message    string           `json:"message"`
	CreatedAt  time.Time        `json:"createdAt"`
}

// AuditEntry is handed to the audit sink; Before and After are JSON snapshots.
type AuditEntry struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Action    string    `json:"action"`
	Entity    string    `json:"entity"`
	EntityID  string    `json:"entityId"`
	Before    []byte    `json:"before,omitempty"`
	After     []byte    `json:"after,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

const (
	EventSaleCompleted = "SaleCompleted"
	EventSaleCancelled = "SaleCancelled"
	EventRemoteSale    = "RemoteSaleNotification"
	EventLowStock      = "LowStockAlert"
)

const AdminChannel = "admin"

func LocationChannel(locationID string) string {
	return "location:" + locationID
}
