package domain

import "time"

type Item struct {
	ID                 string    `json:"id"`
	SKU                string    `json:"sku"`
	Name               string    `json:"name"`
	BuyPriceCents      int64     `json:"buy_price_cents"`
	SellPriceCents     int64     `json:"sell_price_cents"`
	Quantity           int       `json:"quantity"`
	MinStock           int       `json:"min_stock"`
	MaxStock           int       `json:"max_stock"`
	AllowNegativeStock bool      `json:"allow_negative_stock"`
	Active             bool      `json:"active"`
	CreatedAt          time.Time `json:"created_at"`
}

type ItemCreateRequest struct {
	SKU                string `json:"sku"`
	Name               string `json:"name"`
	BuyPriceCents      int64  `json:"buy_price_cents"`
	SellPriceCents     int64  `json:"sell_price_cents"`
	MinStock           int    `json:"min_stock"`
	MaxStock           int    `json:"max_stock"`
	AllowNegativeStock bool   `json:"allow_negative_stock"`
	OpeningStock       int    `json:"opening_stock"`
	OpeningLocationID  string `json:"opening_location_id,omitempty"`
}

type ItemUpdateRequest struct {
	Name               *string `json:"name,omitempty"`
	BuyPriceCents      *int64  `json:"buy_price_cents,omitempty"`
	SellPriceCents     *int64  `json:"sell_price_cents,omitempty"`
	MinStock           *int    `json:"min_stock,omitempty"`
	MaxStock           *int    `json:"max_stock,omitempty"`
	AllowNegativeStock *bool   `json:"allow_negative_stock,omitempty"`
	Active             *bool   `json:"active,omitempty"`
}

type Location struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Address   string    `json:"address,omitempty"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type LocationCreateRequest struct {
	Name    string `json:"name"`
	Address string `json:"address,omitempty"`
}

// LocationStock is one (location, item) quantity row. The sum of these rows
// over all locations is the source of truth for Item.Quantity.
type LocationStock struct {
	LocationID string    `json:"location_id"`
	ItemID     string    `json:"item_id"`
	Quantity   int       `json:"quantity"`
	MinStock   int       `json:"min_stock"`
	MaxStock   int       `json:"max_stock"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type StockAdjustRequest struct {
	ItemID     string `json:"item_id"`
	LocationID string `json:"location_id"`
	Operation  string `json:"operation"`
	Quantity   int    `json:"quantity"`
	Notes      string `json:"notes,omitempty"`
}

type TransferRequest struct {
	ItemID         string `json:"item_id"`
	FromLocationID string `json:"from_location_id"`
	ToLocationID   string `json:"to_location_id"`
	Quantity       int    `json:"quantity"`
	Notes          string `json:"notes,omitempty"`
}

// TransferRecord is the append-only audit row of a completed transfer.
type TransferRecord struct {
	ID             string    `json:"id"`
	ItemID         string    `json:"item_id"`
	FromLocationID string    `json:"from_location_id"`
	ToLocationID   string    `json:"to_location_id"`
	Quantity       int       `json:"quantity"`
	TransferredBy  string    `json:"transferred_by"`
	Notes          string    `json:"notes,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

type Customer struct {
	ID              string    `json:"id"`
	Phone           string    `json:"phone"`
	Name            string    `json:"name,omitempty"`
	LoyaltyPoints   int64     `json:"loyalty_points"`
	TotalSpentCents int64     `json:"total_spent_cents"`
	DiscountPercent float64   `json:"discount_percent"`
	CreatedAt       time.Time `json:"created_at"`
}

type SaleLine struct {
	ItemID         string `json:"item_id"`
	SKU            string `json:"sku"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	LineTotalCents int64  `json:"line_total_cents"`
}

type Sale struct {
	ID              string     `json:"id"`
	Invoice         string     `json:"invoice"`
	LocationID      string     `json:"location_id"`
	CustomerID      string     `json:"customer_id,omitempty"`
	CashierUsername string     `json:"cashier_username"`
	PaymentMethod   string     `json:"payment_method"`
	SubtotalCents   int64      `json:"subtotal_cents"`
	TaxRatePercent  float64    `json:"tax_rate_percent"`
	TaxCents        int64      `json:"tax_cents"`
	DiscountCents   int64      `json:"discount_cents"`
	TotalCents      int64      `json:"total_cents"`
	PaidCents       int64      `json:"paid_cents"`
	Status          string     `json:"status"`
	VoidReason      string     `json:"void_reason,omitempty"`
	VoidedAt        *time.Time `json:"voided_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	Items           []SaleLine `json:"items"`
}

type SaleLineInput struct {
	ItemID         string `json:"item_id"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents,omitempty"`
}

type SaleCreateRequest struct {
	LocationID     string          `json:"location_id"`
	Items          []SaleLineInput `json:"items"`
	CustomerPhone  string          `json:"customer_phone"`
	CustomerName   string          `json:"customer_name,omitempty"`
	PaymentMethod  string          `json:"payment_method"`
	TaxRatePercent float64         `json:"tax_rate_percent"`
	DiscountCents  int64           `json:"discount_cents"`
	PaidCents      int64           `json:"paid_cents"`
}

// SaleDraft is the validated commit input handed to the repository. Unit
// prices of zero are resolved to the catalog sell price inside the commit
// transaction; totals are always recomputed there.
type SaleDraft struct {
	Invoice         string
	LocationID      string
	CashierUsername string
	PaymentMethod   string
	CustomerPhone   string
	CustomerName    string
	TaxRatePercent  float64
	DiscountCents   int64
	PaidCents       int64
	LoyaltyRate     float64
	Lines           []SaleLineInput
	CreatedAt       time.Time
}

type Payment struct {
	ID          string    `json:"id"`
	SaleID      string    `json:"sale_id"`
	AmountCents int64     `json:"amount_cents"`
	Method      string    `json:"method"`
	Reference   string    `json:"reference,omitempty"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

type PaymentUpdateRequest struct {
	PaidCents int64  `json:"paid_cents"`
	Method    string `json:"method,omitempty"`
	Reference string `json:"reference,omitempty"`
}

// DriftReport records one reconciliation pass over an item aggregate.
type DriftReport struct {
	ItemID    string    `json:"item_id"`
	SKU       string    `json:"sku"`
	Before    int       `json:"before"`
	After     int       `json:"after"`
	Drifted   bool      `json:"drifted"`
	CheckedAt time.Time `json:"checked_at"`
}

// StockSnapshot is the cached per-item view of all location rows.
type StockSnapshot struct {
	ItemID   string          `json:"item_id"`
	Rows     []LocationStock `json:"rows"`
	Total    int             `json:"total"`
	CachedAt time.Time       `json:"cached_at"`
}

type LowStockEntry struct {
	LocationID string `json:"location_id"`
	ItemID     string `json:"item_id"`
	SKU        string `json:"sku"`
	Name       string `json:"name"`
	Quantity   int    `json:"quantity"`
	MinStock   int    `json:"min_stock"`
	Severity   string `json:"severity"`
}

type LowStockReport struct {
	LocationID  string          `json:"location_id"`
	GeneratedAt string          `json:"generated_at"`
	Entries     []LowStockEntry `json:"entries"`
}

type AuditLog struct {
	ID            string    `json:"id"`
	LocationID    string    `json:"location_id,omitempty"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

type CashierCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type CashierUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

const (
	StockOpAdd      = "add"
	StockOpSubtract = "subtract"
	StockOpSet      = "set"
)

const (
	SaleStatusUnpaid    = "unpaid"
	SaleStatusPartial   = "partial"
	SaleStatusPaid      = "paid"
	SaleStatusCancelled = "cancelled"
	SaleStatusRefunded  = "refunded"
)

const (
	PaymentStatusCompleted = "completed"
	PaymentStatusFailed    = "failed"
)

// SaleStatusFor derives a sale status from the paid amount against the frozen
// total. Cancelled and refunded sales keep their overriding status.
func SaleStatusFor(paidCents int64, totalCents int64) string {
	switch {
	case paidCents <= 0:
		return SaleStatusUnpaid
	case paidCents < totalCents:
		return SaleStatusPartial
	default:
		return SaleStatusPaid
	}
}
