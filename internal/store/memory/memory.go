// Package memory provides an in-process Repository used by tests and by local
// development when no database is configured. Mutating operations stage their
// writes and apply them only after every check passes, mirroring the
// transactional all-or-nothing behavior of the postgres store.
package memory

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"gudangpos/backend/internal/domain"
	"gudangpos/backend/internal/store"
	"gudangpos/backend/internal/xid"
)

type inventoryKey struct {
	LocationID string
	ItemID     string
}

type Store struct {
	mu        sync.RWMutex
	items     map[string]domain.Item
	skuIndex  map[string]string
	locations map[string]domain.Location
	inventory map[inventoryKey]domain.LocationStock
	transfers []domain.TransferRecord
	customers map[string]domain.Customer
	phones    map[string]string
	sales     map[string]domain.Sale
	invoices  map[string]string
	saleOrder []string
	payments  map[string][]domain.Payment
	audits    []domain.AuditLog
	users     map[string]domain.UserAccount
}

func New() *Store {
	return &Store{
		items:     make(map[string]domain.Item),
		skuIndex:  make(map[string]string),
		locations: make(map[string]domain.Location),
		inventory: make(map[inventoryKey]domain.LocationStock),
		customers: make(map[string]domain.Customer),
		phones:    make(map[string]string),
		sales:     make(map[string]domain.Sale),
		invoices:  make(map[string]string),
		payments:  make(map[string][]domain.Payment),
		users:     make(map[string]domain.UserAccount),
	}
}

// NewSeeded returns a store preloaded with two locations, a small catalog, and
// the default admin/cashier accounts so the API is usable immediately.
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()

	locations := []domain.Location{
		{ID: "loc-pusat", Name: "Toko Pusat", Address: "Jl. Merdeka 1", Active: true, CreatedAt: now},
		{ID: "loc-gudang", Name: "Gudang Belakang", Address: "Jl. Merdeka 1B", Active: true, CreatedAt: now},
	}
	for _, location := range locations {
		s.locations[location.ID] = location
	}

	items := []struct {
		item  domain.Item
		stock map[string]int
	}{
		{
			item:  domain.Item{ID: "itm-kopi", SKU: "KOPI-250", Name: "Kopi Bubuk 250g", BuyPriceCents: 1800000, SellPriceCents: 2500000, MinStock: 5, Active: true, CreatedAt: now},
			stock: map[string]int{"loc-pusat": 20, "loc-gudang": 40},
		},
		{
			item:  domain.Item{ID: "itm-gula", SKU: "GULA-1KG", Name: "Gula Pasir 1kg", BuyPriceCents: 1200000, SellPriceCents: 1600000, MinStock: 10, Active: true, CreatedAt: now},
			stock: map[string]int{"loc-pusat": 15},
		},
		{
			item:  domain.Item{ID: "itm-teh", SKU: "TEH-CELUP", Name: "Teh Celup isi 25", BuyPriceCents: 700000, SellPriceCents: 1100000, MinStock: 8, Active: true, CreatedAt: now},
			stock: map[string]int{"loc-pusat": 6, "loc-gudang": 12},
		},
	}
	for _, seed := range items {
		item := seed.item
		total := 0
		for locationID, qty := range seed.stock {
			s.inventory[inventoryKey{locationID, item.ID}] = domain.LocationStock{
				LocationID: locationID, ItemID: item.ID, Quantity: qty, MinStock: item.MinStock, UpdatedAt: now,
			}
			total += qty
		}
		item.Quantity = total
		s.items[item.ID] = item
		s.skuIndex[item.SKU] = item.ID
	}

	s.seedUsers(now)
	return s
}

func (s *Store) seedUsers(now time.Time) {
	adminPassword := os.Getenv("SEED_ADMIN_PASSWORD")
	if adminPassword == "" {
		adminPassword = "admin12345"
	}
	cashierPassword := os.Getenv("SEED_CASHIER_PASSWORD")
	if cashierPassword == "" {
		cashierPassword = "kasir12345"
	}

	for _, seed := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPassword, "admin"},
		{"kasir1", cashierPassword, "cashier"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(seed.password), bcrypt.DefaultCost)
		if err != nil {
			log.Printf("[memory] seed user %s: %v", seed.username, err)
			continue
		}
		s.users[seed.username] = domain.UserAccount{
			Username: seed.username, Password: string(hash), Role: seed.role, Active: true, CreatedAt: now,
		}
	}
}

func (s *Store) CreateItem(_ context.Context, item domain.Item) (*domain.Item, error) {
	if item.SKU == "" || item.Name == "" || item.SellPriceCents < 1 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.skuIndex[item.SKU]; exists {
		return nil, fmt.Errorf("sku %s already exists: %w", item.SKU, store.ErrInvalidInput)
	}
	if item.ID == "" {
		item.ID = xid.New("itm")
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	item.Active = true
	item.Quantity = 0

	s.items[item.ID] = item
	s.skuIndex[item.SKU] = item.ID
	created := item
	return &created, nil
}

func (s *Store) GetItemByID(_ context.Context, id string) (*domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, exists := s.items[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	found := item
	return &found, nil
}

func (s *Store) GetItemBySKU(_ context.Context, sku string) (*domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.skuIndex[sku]
	if !exists {
		return nil, store.ErrNotFound
	}
	item := s.items[id]
	return &item, nil
}

func (s *Store) ListItems(_ context.Context, includeInactive bool) ([]domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]domain.Item, 0, len(s.items))
	for _, item := range s.items {
		if !includeInactive && !item.Active {
			continue
		}
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].SKU < items[j].SKU })
	return items, nil
}

func (s *Store) UpdateItem(_ context.Context, item domain.Item) (*domain.Item, error) {
	if item.ID == "" || item.Name == "" || item.SellPriceCents < 1 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.items[item.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	current.Name = item.Name
	current.BuyPriceCents = item.BuyPriceCents
	current.SellPriceCents = item.SellPriceCents
	current.MinStock = item.MinStock
	current.MaxStock = item.MaxStock
	current.AllowNegativeStock = item.AllowNegativeStock
	current.Active = item.Active
	s.items[item.ID] = current

	updated := current
	return &updated, nil
}

func (s *Store) CreateLocation(_ context.Context, location domain.Location) (*domain.Location, error) {
	if location.Name == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if location.ID == "" {
		location.ID = xid.New("loc")
	}
	if location.CreatedAt.IsZero() {
		location.CreatedAt = time.Now().UTC()
	}
	location.Active = true
	s.locations[location.ID] = location

	created := location
	return &created, nil
}

func (s *Store) GetLocation(_ context.Context, id string) (*domain.Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	location, exists := s.locations[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	found := location
	return &found, nil
}

func (s *Store) ListLocations(_ context.Context) ([]domain.Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	locations := make([]domain.Location, 0, len(s.locations))
	for _, location := range s.locations {
		locations = append(locations, location)
	}
	sort.Slice(locations, func(i, j int) bool { return locations[i].Name < locations[j].Name })
	return locations, nil
}

func (s *Store) AdjustLocationStock(_ context.Context, itemID string, locationID string, operation string, quantity int) (*domain.LocationStock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, exists := s.items[itemID]
	if !exists {
		return nil, store.ErrNotFound
	}

	row := s.locationRowLocked(locationID, itemID)
	next := row.Quantity
	switch operation {
	case domain.StockOpAdd:
		next += quantity
	case domain.StockOpSubtract:
		next -= quantity
	case domain.StockOpSet:
		next = quantity
	default:
		return nil, store.ErrInvalidInput
	}
	if next < 0 && !item.AllowNegativeStock {
		return nil, store.ErrInsufficientStock
	}

	row.Quantity = next
	row.UpdatedAt = time.Now().UTC()
	s.inventory[inventoryKey{locationID, itemID}] = row
	s.refreshAggregateLocked(itemID)

	updated := row
	return &updated, nil
}

func (s *Store) GetLocationStock(_ context.Context, itemID string, locationID string) (*domain.LocationStock, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row, exists := s.inventory[inventoryKey{locationID, itemID}]
	if !exists {
		return nil, store.ErrNotFound
	}
	found := row
	return &found, nil
}

func (s *Store) ListItemLocations(_ context.Context, itemID string) ([]domain.LocationStock, error) {
	return s.listInventory(func(row domain.LocationStock) bool { return row.ItemID == itemID }), nil
}

func (s *Store) ListLocationStock(_ context.Context, locationID string) ([]domain.LocationStock, error) {
	return s.listInventory(func(row domain.LocationStock) bool { return row.LocationID == locationID }), nil
}

func (s *Store) listInventory(keep func(domain.LocationStock) bool) []domain.LocationStock {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := make([]domain.LocationStock, 0, 16)
	for _, row := range s.inventory {
		if keep(row) {
			rows = append(rows, row)
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].LocationID != rows[j].LocationID {
			return rows[i].LocationID < rows[j].LocationID
		}
		return rows[i].ItemID < rows[j].ItemID
	})
	return rows
}

func (s *Store) TransferStock(_ context.Context, transfer domain.TransferRecord) (*domain.TransferRecord, error) {
	if transfer.Quantity < 1 || transfer.FromLocationID == transfer.ToLocationID {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	item, exists := s.items[transfer.ItemID]
	if !exists {
		return nil, store.ErrNotFound
	}

	source := s.locationRowLocked(transfer.FromLocationID, transfer.ItemID)
	dest := s.locationRowLocked(transfer.ToLocationID, transfer.ItemID)
	if source.Quantity-transfer.Quantity < 0 && !item.AllowNegativeStock {
		return nil, store.ErrInsufficientStock
	}

	now := time.Now().UTC()
	source.Quantity -= transfer.Quantity
	source.UpdatedAt = now
	dest.Quantity += transfer.Quantity
	dest.UpdatedAt = now
	s.inventory[inventoryKey{transfer.FromLocationID, transfer.ItemID}] = source
	s.inventory[inventoryKey{transfer.ToLocationID, transfer.ItemID}] = dest

	if transfer.ID == "" {
		transfer.ID = xid.New("trf")
	}
	if transfer.CreatedAt.IsZero() {
		transfer.CreatedAt = now
	}
	s.transfers = append(s.transfers, transfer)

	created := transfer
	return &created, nil
}

func (s *Store) ListTransfers(_ context.Context, itemID string, limit int) ([]domain.TransferRecord, error) {
	if limit < 1 {
		limit = 100
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	transfers := make([]domain.TransferRecord, 0, limit)
	for i := len(s.transfers) - 1; i >= 0 && len(transfers) < limit; i-- {
		if itemID != "" && s.transfers[i].ItemID != itemID {
			continue
		}
		transfers = append(transfers, s.transfers[i])
	}
	return transfers, nil
}

func (s *Store) ReconcileItem(_ context.Context, itemID string) (*domain.DriftReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, exists := s.items[itemID]
	if !exists {
		return nil, store.ErrNotFound
	}

	actual := 0
	for key, row := range s.inventory {
		if key.ItemID == itemID {
			actual += row.Quantity
		}
	}

	report := domain.DriftReport{
		ItemID:    itemID,
		SKU:       item.SKU,
		Before:    item.Quantity,
		After:     actual,
		Drifted:   item.Quantity != actual,
		CheckedAt: time.Now().UTC(),
	}
	if report.Drifted {
		item.Quantity = actual
		s.items[itemID] = item
	}
	return &report, nil
}

func (s *Store) CreateSale(_ context.Context, draft domain.SaleDraft) (*domain.Sale, error) {
	if draft.Invoice == "" || draft.LocationID == "" || len(draft.Lines) == 0 || draft.CustomerPhone == "" {
		return nil, store.ErrInvalidInput
	}
	if draft.TaxRatePercent < 0 || draft.TaxRatePercent > 100 || draft.DiscountCents < 0 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.invoices[draft.Invoice]; exists {
		return nil, fmt.Errorf("invoice %s already exists: %w", draft.Invoice, store.ErrInvalidInput)
	}

	// Stage every decrement first; nothing is applied until all lines pass.
	required := make(map[string]int, len(draft.Lines))
	for _, line := range draft.Lines {
		if line.Quantity < 1 {
			return nil, store.ErrInvalidInput
		}
		item, exists := s.items[line.ItemID]
		if !exists || !item.Active {
			return nil, fmt.Errorf("item %s unavailable: %w", line.ItemID, store.ErrNotFound)
		}
		required[line.ItemID] += line.Quantity
	}

	itemIDs := make([]string, 0, len(required))
	for id := range required {
		itemIDs = append(itemIDs, id)
	}
	sort.Strings(itemIDs)

	staged := make(map[string]domain.LocationStock, len(itemIDs))
	for _, itemID := range itemIDs {
		item := s.items[itemID]
		row := s.locationRowLocked(draft.LocationID, itemID)
		row.Quantity -= required[itemID]
		if row.Quantity < 0 && !item.AllowNegativeStock {
			return nil, store.ErrInsufficientStock
		}
		staged[itemID] = row
	}

	subtotalCents := int64(0)
	lines := make([]domain.SaleLine, 0, len(draft.Lines))
	for _, input := range draft.Lines {
		item := s.items[input.ItemID]
		unitPrice := input.UnitPriceCents
		if unitPrice <= 0 {
			unitPrice = item.SellPriceCents
		}
		lineTotal := unitPrice * int64(input.Quantity)
		subtotalCents += lineTotal
		lines = append(lines, domain.SaleLine{
			ItemID: input.ItemID, SKU: item.SKU, Quantity: input.Quantity,
			UnitPriceCents: unitPrice, LineTotalCents: lineTotal,
		})
	}

	taxCents := roundCents(float64(subtotalCents) * draft.TaxRatePercent / 100)
	payableCents := subtotalCents + taxCents
	if draft.DiscountCents > payableCents {
		return nil, store.ErrInvalidDiscount
	}
	totalCents := payableCents - draft.DiscountCents

	now := draft.CreatedAt
	if now.IsZero() {
		now = time.Now().UTC()
	}

	// All checks passed; apply the staged writes.
	for itemID, row := range staged {
		row.UpdatedAt = now
		s.inventory[inventoryKey{draft.LocationID, itemID}] = row
		s.refreshAggregateLocked(itemID)
	}

	customerID := s.phones[draft.CustomerPhone]
	if customerID == "" {
		customerID = xid.New("cus")
		s.customers[customerID] = domain.Customer{
			ID: customerID, Phone: draft.CustomerPhone, Name: strings.TrimSpace(draft.CustomerName), CreatedAt: now,
		}
		s.phones[draft.CustomerPhone] = customerID
	}

	sale := domain.Sale{
		ID:              xid.New("sale"),
		Invoice:         draft.Invoice,
		LocationID:      draft.LocationID,
		CustomerID:      customerID,
		CashierUsername: draft.CashierUsername,
		PaymentMethod:   draft.PaymentMethod,
		SubtotalCents:   subtotalCents,
		TaxRatePercent:  draft.TaxRatePercent,
		TaxCents:        taxCents,
		DiscountCents:   draft.DiscountCents,
		TotalCents:      totalCents,
		PaidCents:       draft.PaidCents,
		Status:          domain.SaleStatusFor(draft.PaidCents, totalCents),
		CreatedAt:       now,
		Items:           lines,
	}
	s.sales[sale.ID] = sale
	s.invoices[sale.Invoice] = sale.ID
	s.saleOrder = append(s.saleOrder, sale.ID)

	if sale.PaidCents > 0 {
		s.payments[sale.ID] = append(s.payments[sale.ID], domain.Payment{
			ID: xid.New("pay"), SaleID: sale.ID, AmountCents: sale.PaidCents,
			Method: sale.PaymentMethod, Status: domain.PaymentStatusCompleted, CreatedAt: now,
		})
	}

	customer := s.customers[customerID]
	customer.TotalSpentCents += totalCents
	customer.LoyaltyPoints += int64(float64(totalCents) * draft.LoyaltyRate)
	s.customers[customerID] = customer

	created := sale
	created.Items = append([]domain.SaleLine(nil), lines...)
	return &created, nil
}

func (s *Store) GetSaleByID(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findSaleLocked(id)
}

func (s *Store) GetSaleByInvoice(_ context.Context, invoice string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.invoices[invoice]
	if !exists {
		return nil, store.ErrNotFound
	}
	return s.findSaleLocked(id)
}

func (s *Store) findSaleLocked(id string) (*domain.Sale, error) {
	sale, exists := s.sales[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	found := sale
	found.Items = append([]domain.SaleLine(nil), sale.Items...)
	return &found, nil
}

func (s *Store) ListSales(_ context.Context, locationID string, limit int) ([]domain.Sale, error) {
	if limit < 1 {
		limit = 100
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	sales := make([]domain.Sale, 0, limit)
	for i := len(s.saleOrder) - 1; i >= 0 && len(sales) < limit; i-- {
		sale := s.sales[s.saleOrder[i]]
		if locationID != "" && sale.LocationID != locationID {
			continue
		}
		sale.Items = append([]domain.SaleLine(nil), sale.Items...)
		sales = append(sales, sale)
	}
	return sales, nil
}

func (s *Store) UpdateSalePayment(_ context.Context, saleID string, paidCents int64, method string, reference string) (*domain.Sale, error) {
	if paidCents < 0 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sale, exists := s.sales[saleID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if sale.Status == domain.SaleStatusCancelled || sale.Status == domain.SaleStatusRefunded {
		return nil, store.ErrInvalidInput
	}

	if paidCents > sale.PaidCents {
		if method == "" {
			method = "cash"
		}
		s.payments[saleID] = append(s.payments[saleID], domain.Payment{
			ID: xid.New("pay"), SaleID: saleID, AmountCents: paidCents - sale.PaidCents,
			Method: method, Reference: reference, Status: domain.PaymentStatusCompleted,
			CreatedAt: time.Now().UTC(),
		})
	}

	sale.PaidCents = paidCents
	sale.Status = domain.SaleStatusFor(paidCents, sale.TotalCents)
	s.sales[saleID] = sale

	updated := sale
	updated.Items = append([]domain.SaleLine(nil), sale.Items...)
	return &updated, nil
}

func (s *Store) ListPayments(_ context.Context, saleID string) ([]domain.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Payment(nil), s.payments[saleID]...), nil
}

func (s *Store) GetCustomerByPhone(_ context.Context, phone string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.phones[phone]
	if !exists {
		return nil, store.ErrNotFound
	}
	customer := s.customers[id]
	return &customer, nil
}

func (s *Store) ListCustomers(_ context.Context, limit int) ([]domain.Customer, error) {
	if limit < 1 {
		limit = 200
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	customers := make([]domain.Customer, 0, len(s.customers))
	for _, customer := range s.customers {
		customers = append(customers, customer)
	}
	sort.Slice(customers, func(i, j int) bool {
		return customers[i].CreatedAt.After(customers[j].CreatedAt)
	})
	if len(customers) > limit {
		customers = customers[:limit]
	}
	return customers, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.audits = append(s.audits, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 200
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	logs := make([]domain.AuditLog, 0, limit)
	for i := len(s.audits) - 1; i >= 0 && len(logs) < limit; i-- {
		entry := s.audits[i]
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		logs = append(logs, entry)
	}
	return logs, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || user.Password == "" {
		return store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[username]; exists {
		return store.ErrInvalidInput
	}
	user.Username = username
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.users[username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.users))
	for _, user := range s.users {
		users = append(users, user)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.users[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.users[username] = user
	return nil
}

// locationRowLocked returns the (location, item) row, synthesizing a
// zero-quantity row on first touch. The synthesized row is NOT stored; callers
// write it back only when the whole operation succeeds, so a failed operation
// leaves no trace, matching the transactional rollback of the postgres store.
// Caller must hold the write lock.
func (s *Store) locationRowLocked(locationID string, itemID string) domain.LocationStock {
	key := inventoryKey{locationID, itemID}
	row, exists := s.inventory[key]
	if !exists {
		minStock := 0
		if item, ok := s.items[itemID]; ok {
			minStock = item.MinStock
		}
		row = domain.LocationStock{
			LocationID: locationID, ItemID: itemID, Quantity: 0,
			MinStock: minStock, UpdatedAt: time.Now().UTC(),
		}
	}
	return row
}

// refreshAggregateLocked re-derives the item aggregate from the location rows.
// Caller must hold the write lock.
func (s *Store) refreshAggregateLocked(itemID string) {
	total := 0
	for key, row := range s.inventory {
		if key.ItemID == itemID {
			total += row.Quantity
		}
	}
	item, exists := s.items[itemID]
	if !exists {
		return
	}
	item.Quantity = total
	s.items[itemID] = item
}

func roundCents(v float64) int64 {
	if v < 0 {
		return int64(v - 0.5)
	}
	return int64(v + 0.5)
}
