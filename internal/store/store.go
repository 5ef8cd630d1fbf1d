package store

import (
	"context"
	"errors"
	"time"

	"gudangpos/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidDiscount   = errors.New("discount exceeds payable amount")
	// ErrConflict marks lock-timeout and serialization failures. It is the only
	// error class safe to retry: a rolled-back operation leaves no partial state.
	ErrConflict = errors.New("concurrent update conflict")
)

type Repository interface {
	CreateItem(ctx context.Context, item domain.Item) (*domain.Item, error)
	GetItemByID(ctx context.Context, id string) (*domain.Item, error)
	GetItemBySKU(ctx context.Context, sku string) (*domain.Item, error)
	ListItems(ctx context.Context, includeInactive bool) ([]domain.Item, error)
	UpdateItem(ctx context.Context, item domain.Item) (*domain.Item, error)

	CreateLocation(ctx context.Context, location domain.Location) (*domain.Location, error)
	GetLocation(ctx context.Context, id string) (*domain.Location, error)
	ListLocations(ctx context.Context) ([]domain.Location, error)

	AdjustLocationStock(ctx context.Context, itemID string, locationID string, operation string, quantity int) (*domain.LocationStock, error)
	GetLocationStock(ctx context.Context, itemID string, locationID string) (*domain.LocationStock, error)
	ListItemLocations(ctx context.Context, itemID string) ([]domain.LocationStock, error)
	ListLocationStock(ctx context.Context, locationID string) ([]domain.LocationStock, error)

	TransferStock(ctx context.Context, transfer domain.TransferRecord) (*domain.TransferRecord, error)
	ListTransfers(ctx context.Context, itemID string, limit int) ([]domain.TransferRecord, error)

	ReconcileItem(ctx context.Context, itemID string) (*domain.DriftReport, error)

	CreateSale(ctx context.Context, draft domain.SaleDraft) (*domain.Sale, error)
	GetSaleByID(ctx context.Context, id string) (*domain.Sale, error)
	GetSaleByInvoice(ctx context.Context, invoice string) (*domain.Sale, error)
	ListSales(ctx context.Context, locationID string, limit int) ([]domain.Sale, error)
	UpdateSalePayment(ctx context.Context, saleID string, paidCents int64, method string, reference string) (*domain.Sale, error)
	ListPayments(ctx context.Context, saleID string) ([]domain.Payment, error)

	GetCustomerByPhone(ctx context.Context, phone string) (*domain.Customer, error)
	ListCustomers(ctx context.Context, limit int) ([]domain.Customer, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
