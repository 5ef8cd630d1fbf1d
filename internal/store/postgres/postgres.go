package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"gudangpos/backend/internal/domain"
	"gudangpos/backend/internal/store"
	"gudangpos/backend/internal/xid"
)

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

	if err := applyMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) CreateItem(ctx context.Context, item domain.Item) (*domain.Item, error) {
	if item.SKU == "" || item.Name == "" || item.SellPriceCents < 1 {
		return nil, store.ErrInvalidInput
	}
	if item.ID == "" {
		item.ID = xid.New("itm")
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	item.Active = true
	item.Quantity = 0

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO items (id, sku, name, buy_price_cents, sell_price_cents, quantity,
			min_stock, max_stock, allow_negative_stock, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,0,$6,$7,$8,TRUE,$9,now())
	`, item.ID, item.SKU, item.Name, item.BuyPriceCents, item.SellPriceCents,
		item.MinStock, item.MaxStock, item.AllowNegativeStock, item.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("sku %s already exists: %w", item.SKU, store.ErrInvalidInput)
		}
		return nil, err
	}

	created := item
	return &created, nil
}

func (s *Store) GetItemByID(ctx context.Context, id string) (*domain.Item, error) {
	return s.findItem(ctx, "id", id)
}

func (s *Store) GetItemBySKU(ctx context.Context, sku string) (*domain.Item, error) {
	return s.findItem(ctx, "sku", sku)
}

func (s *Store) findItem(ctx context.Context, column string, value string) (*domain.Item, error) {
	if column != "id" && column != "sku" {
		return nil, fmt.Errorf("unsupported lookup column")
	}

	query := fmt.Sprintf(`
		SELECT id, sku, name, buy_price_cents, sell_price_cents, quantity,
			min_stock, max_stock, allow_negative_stock, active, created_at
		FROM items
		WHERE %s = $1
	`, column)

	var item domain.Item
	err := s.db.QueryRowContext(ctx, query, value).Scan(
		&item.ID, &item.SKU, &item.Name, &item.BuyPriceCents, &item.SellPriceCents,
		&item.Quantity, &item.MinStock, &item.MaxStock, &item.AllowNegativeStock,
		&item.Active, &item.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	item.CreatedAt = item.CreatedAt.UTC()
	return &item, nil
}

func (s *Store) ListItems(ctx context.Context, includeInactive bool) ([]domain.Item, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sku, name, buy_price_cents, sell_price_cents, quantity,
			min_stock, max_stock, allow_negative_stock, active, created_at
		FROM items
		WHERE ($1 OR active = TRUE)
		ORDER BY sku ASC
	`, includeInactive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.Item, 0, 128)
	for rows.Next() {
		var item domain.Item
		if err := rows.Scan(&item.ID, &item.SKU, &item.Name, &item.BuyPriceCents,
			&item.SellPriceCents, &item.Quantity, &item.MinStock, &item.MaxStock,
			&item.AllowNegativeStock, &item.Active, &item.CreatedAt); err != nil {
			return nil, err
		}
		item.CreatedAt = item.CreatedAt.UTC()
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) UpdateItem(ctx context.Context, item domain.Item) (*domain.Item, error) {
	if item.ID == "" || item.Name == "" || item.SellPriceCents < 1 {
		return nil, store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE items
		SET name = $2, buy_price_cents = $3, sell_price_cents = $4, min_stock = $5,
			max_stock = $6, allow_negative_stock = $7, active = $8, updated_at = now()
		WHERE id = $1
	`, item.ID, item.Name, item.BuyPriceCents, item.SellPriceCents, item.MinStock,
		item.MaxStock, item.AllowNegativeStock, item.Active)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	return s.findItem(ctx, "id", item.ID)
}

func (s *Store) CreateLocation(ctx context.Context, location domain.Location) (*domain.Location, error) {
	if location.Name == "" {
		return nil, store.ErrInvalidInput
	}
	if location.ID == "" {
		location.ID = xid.New("loc")
	}
	if location.CreatedAt.IsZero() {
		location.CreatedAt = time.Now().UTC()
	}
	location.Active = true

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO locations (id, name, address, active, created_at)
		VALUES ($1,$2,$3,TRUE,$4)
	`, location.ID, location.Name, location.Address, location.CreatedAt)
	if err != nil {
		return nil, err
	}

	created := location
	return &created, nil
}

func (s *Store) GetLocation(ctx context.Context, id string) (*domain.Location, error) {
	var location domain.Location
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, address, active, created_at
		FROM locations
		WHERE id = $1
	`, id).Scan(&location.ID, &location.Name, &location.Address, &location.Active, &location.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	location.CreatedAt = location.CreatedAt.UTC()
	return &location, nil
}

func (s *Store) ListLocations(ctx context.Context) ([]domain.Location, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, address, active, created_at
		FROM locations
		ORDER BY name ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	locations := make([]domain.Location, 0, 16)
	for rows.Next() {
		var location domain.Location
		if err := rows.Scan(&location.ID, &location.Name, &location.Address, &location.Active, &location.CreatedAt); err != nil {
			return nil, err
		}
		location.CreatedAt = location.CreatedAt.UTC()
		locations = append(locations, location)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return locations, nil
}

// AdjustLocationStock mutates one (location, item) row and recomputes the item
// aggregate inside the same transaction. The row is created lazily with
// quantity 0 on first touch.
func (s *Store) AdjustLocationStock(ctx context.Context, itemID string, locationID string, operation string, quantity int) (*domain.LocationStock, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	allowNegative, err := itemAllowsNegative(ctx, tx, itemID)
	if err != nil {
		return nil, mapTxError(err)
	}

	current, err := lockLocationRow(ctx, tx, locationID, itemID)
	if err != nil {
		return nil, mapTxError(err)
	}

	next := current
	switch operation {
	case domain.StockOpAdd:
		next = current + quantity
	case domain.StockOpSubtract:
		next = current - quantity
	case domain.StockOpSet:
		next = quantity
	default:
		return nil, store.ErrInvalidInput
	}
	if next < 0 && !allowNegative {
		return nil, store.ErrInsufficientStock
	}

	if err := setLocationQuantity(ctx, tx, locationID, itemID, next); err != nil {
		return nil, mapTxError(err)
	}
	if err := refreshItemAggregate(ctx, tx, itemID); err != nil {
		return nil, mapTxError(err)
	}

	updated := domain.LocationStock{LocationID: locationID, ItemID: itemID, Quantity: next}
	err = tx.QueryRowContext(ctx, `
		SELECT min_stock, max_stock, updated_at
		FROM location_inventory
		WHERE location_id = $1 AND item_id = $2
	`, locationID, itemID).Scan(&updated.MinStock, &updated.MaxStock, &updated.UpdatedAt)
	if err != nil {
		return nil, mapTxError(err)
	}
	updated.UpdatedAt = updated.UpdatedAt.UTC()

	if err := tx.Commit(); err != nil {
		return nil, mapTxError(err)
	}
	return &updated, nil
}

func (s *Store) GetLocationStock(ctx context.Context, itemID string, locationID string) (*domain.LocationStock, error) {
	var row domain.LocationStock
	err := s.db.QueryRowContext(ctx, `
		SELECT location_id, item_id, quantity, min_stock, max_stock, updated_at
		FROM location_inventory
		WHERE location_id = $1 AND item_id = $2
	`, locationID, itemID).Scan(&row.LocationID, &row.ItemID, &row.Quantity, &row.MinStock, &row.MaxStock, &row.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	row.UpdatedAt = row.UpdatedAt.UTC()
	return &row, nil
}

func (s *Store) ListItemLocations(ctx context.Context, itemID string) ([]domain.LocationStock, error) {
	return s.listInventory(ctx, `WHERE item_id = $1`, itemID)
}

func (s *Store) ListLocationStock(ctx context.Context, locationID string) ([]domain.LocationStock, error) {
	return s.listInventory(ctx, `WHERE location_id = $1`, locationID)
}

func (s *Store) listInventory(ctx context.Context, where string, arg string) ([]domain.LocationStock, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT location_id, item_id, quantity, min_stock, max_stock, updated_at
		FROM location_inventory
	`+where+`
		ORDER BY location_id ASC, item_id ASC
	`, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.LocationStock, 0, 16)
	for rows.Next() {
		var row domain.LocationStock
		if err := rows.Scan(&row.LocationID, &row.ItemID, &row.Quantity, &row.MinStock, &row.MaxStock, &row.UpdatedAt); err != nil {
			return nil, err
		}
		row.UpdatedAt = row.UpdatedAt.UTC()
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// TransferStock moves quantity between two location rows of the same item as
// one atomic step. Rows are locked in ascending (location_id, item_id) order so
// concurrent opposite-direction transfers cannot deadlock. The item aggregate
// is unchanged by a transfer.
func (s *Store) TransferStock(ctx context.Context, transfer domain.TransferRecord) (*domain.TransferRecord, error) {
	if transfer.Quantity < 1 || transfer.FromLocationID == transfer.ToLocationID {
		return nil, store.ErrInvalidInput
	}
	if transfer.ID == "" {
		transfer.ID = xid.New("trf")
	}
	if transfer.CreatedAt.IsZero() {
		transfer.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	allowNegative, err := itemAllowsNegative(ctx, tx, transfer.ItemID)
	if err != nil {
		return nil, mapTxError(err)
	}

	first, second := transfer.FromLocationID, transfer.ToLocationID
	if second < first {
		first, second = second, first
	}

	quantities := make(map[string]int, 2)
	for _, locationID := range []string{first, second} {
		qty, err := lockLocationRow(ctx, tx, locationID, transfer.ItemID)
		if err != nil {
			return nil, mapTxError(err)
		}
		quantities[locationID] = qty
	}

	sourceQty := quantities[transfer.FromLocationID]
	if sourceQty-transfer.Quantity < 0 && !allowNegative {
		return nil, store.ErrInsufficientStock
	}

	if err := setLocationQuantity(ctx, tx, transfer.FromLocationID, transfer.ItemID, sourceQty-transfer.Quantity); err != nil {
		return nil, mapTxError(err)
	}
	if err := setLocationQuantity(ctx, tx, transfer.ToLocationID, transfer.ItemID, quantities[transfer.ToLocationID]+transfer.Quantity); err != nil {
		return nil, mapTxError(err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO inventory_transfers (id, item_id, from_location, to_location, quantity, transferred_by, notes, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, transfer.ID, transfer.ItemID, transfer.FromLocationID, transfer.ToLocationID,
		transfer.Quantity, transfer.TransferredBy, strings.TrimSpace(transfer.Notes), transfer.CreatedAt)
	if err != nil {
		return nil, mapTxError(err)
	}

	if err := tx.Commit(); err != nil {
		return nil, mapTxError(err)
	}

	created := transfer
	return &created, nil
}

func (s *Store) ListTransfers(ctx context.Context, itemID string, limit int) ([]domain.TransferRecord, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, item_id, from_location, to_location, quantity, transferred_by, notes, created_at
		FROM inventory_transfers
		WHERE ($1 = '' OR item_id = $1)
		ORDER BY created_at DESC
		LIMIT $2
	`, itemID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	transfers := make([]domain.TransferRecord, 0, limit)
	for rows.Next() {
		var record domain.TransferRecord
		if err := rows.Scan(&record.ID, &record.ItemID, &record.FromLocationID, &record.ToLocationID,
			&record.Quantity, &record.TransferredBy, &record.Notes, &record.CreatedAt); err != nil {
			return nil, err
		}
		record.CreatedAt = record.CreatedAt.UTC()
		transfers = append(transfers, record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return transfers, nil
}

// ReconcileItem recomputes the aggregate from the location rows and repairs it
// when drifted. Location rows themselves are never touched, so running it
// twice without intervening mutation is a no-op the second time.
func (s *Store) ReconcileItem(ctx context.Context, itemID string) (*domain.DriftReport, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var sku string
	var before int
	err = tx.QueryRowContext(ctx, `
		SELECT sku, quantity FROM items WHERE id = $1 FOR UPDATE
	`, itemID).Scan(&sku, &before)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, mapTxError(err)
	}

	var actual int
	err = tx.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(quantity), 0)::int FROM location_inventory WHERE item_id = $1
	`, itemID).Scan(&actual)
	if err != nil {
		return nil, mapTxError(err)
	}

	report := domain.DriftReport{
		ItemID:    itemID,
		SKU:       sku,
		Before:    before,
		After:     actual,
		Drifted:   before != actual,
		CheckedAt: time.Now().UTC(),
	}

	if report.Drifted {
		_, err = tx.ExecContext(ctx, `
			UPDATE items SET quantity = $2, updated_at = now() WHERE id = $1
		`, itemID, actual)
		if err != nil {
			return nil, mapTxError(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, mapTxError(err)
	}
	return &report, nil
}

// CreateSale is the sale-commit coordinator: stock decrement, totals, customer
// provisioning, invoice header, line items, payment, and loyalty accrual all
// commit or roll back together. Decrements run per distinct item in ascending
// item id order so concurrent multi-line sales cannot form a lock cycle.
func (s *Store) CreateSale(ctx context.Context, draft domain.SaleDraft) (*domain.Sale, error) {
	if draft.Invoice == "" || draft.LocationID == "" || len(draft.Lines) == 0 {
		return nil, store.ErrInvalidInput
	}
	if draft.CustomerPhone == "" {
		return nil, store.ErrInvalidInput
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	itemIDs := distinctItemIDs(draft.Lines)
	itemRows, err := tx.QueryContext(ctx, `
		SELECT id, sku, sell_price_cents, allow_negative_stock, active
		FROM items
		WHERE id = ANY($1)
	`, itemIDs)
	if err != nil {
		return nil, mapTxError(err)
	}
	type saleItem struct {
		sku           string
		priceCents    int64
		allowNegative bool
		active        bool
	}
	itemMap := make(map[string]saleItem, len(itemIDs))
	for itemRows.Next() {
		var id string
		var item saleItem
		if err := itemRows.Scan(&id, &item.sku, &item.priceCents, &item.allowNegative, &item.active); err != nil {
			_ = itemRows.Close()
			return nil, err
		}
		itemMap[id] = item
	}
	if err := itemRows.Err(); err != nil {
		_ = itemRows.Close()
		return nil, err
	}
	_ = itemRows.Close()

	required := make(map[string]int, len(itemIDs))
	for _, line := range draft.Lines {
		if line.Quantity < 1 {
			return nil, store.ErrInvalidInput
		}
		item, exists := itemMap[line.ItemID]
		if !exists || !item.active {
			return nil, fmt.Errorf("item %s unavailable: %w", line.ItemID, store.ErrNotFound)
		}
		required[line.ItemID] += line.Quantity
	}

	for _, itemID := range itemIDs {
		item := itemMap[itemID]
		if _, err := reserveAndDecrement(ctx, tx, itemID, draft.LocationID, required[itemID], item.allowNegative); err != nil {
			return nil, err
		}
		if err := refreshItemAggregate(ctx, tx, itemID); err != nil {
			return nil, mapTxError(err)
		}
	}

	subtotalCents := int64(0)
	lines := make([]domain.SaleLine, 0, len(draft.Lines))
	for _, input := range draft.Lines {
		item := itemMap[input.ItemID]
		unitPrice := input.UnitPriceCents
		if unitPrice <= 0 {
			unitPrice = item.priceCents
		}
		lineTotal := unitPrice * int64(input.Quantity)
		subtotalCents += lineTotal
		lines = append(lines, domain.SaleLine{
			ItemID:         input.ItemID,
			SKU:            item.sku,
			Quantity:       input.Quantity,
			UnitPriceCents: unitPrice,
			LineTotalCents: lineTotal,
		})
	}

	if draft.TaxRatePercent < 0 || draft.TaxRatePercent > 100 || draft.DiscountCents < 0 {
		return nil, store.ErrInvalidInput
	}
	taxCents := int64(math.Round(float64(subtotalCents) * draft.TaxRatePercent / 100))
	payableCents := subtotalCents + taxCents
	if draft.DiscountCents > payableCents {
		return nil, store.ErrInvalidDiscount
	}
	totalCents := payableCents - draft.DiscountCents

	customerID, err := upsertCustomer(ctx, tx, draft.CustomerPhone, draft.CustomerName)
	if err != nil {
		return nil, mapTxError(err)
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
		CreatedAt:       draft.CreatedAt,
		Items:           lines,
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sales (id, invoice, location_id, customer_id, cashier_username, payment_method,
			subtotal_cents, tax_rate_percent, tax_cents, discount_cents, total_cents, paid_cents,
			status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`, sale.ID, sale.Invoice, sale.LocationID, nullIfEmpty(sale.CustomerID), sale.CashierUsername,
		sale.PaymentMethod, sale.SubtotalCents, sale.TaxRatePercent, sale.TaxCents,
		sale.DiscountCents, sale.TotalCents, sale.PaidCents, sale.Status, sale.CreatedAt)
	if err != nil {
		return nil, mapTxError(err)
	}

	for _, line := range lines {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sales_items (sale_id, item_id, quantity, unit_price_cents, line_total_cents)
			VALUES ($1,$2,$3,$4,$5)
		`, sale.ID, line.ItemID, line.Quantity, line.UnitPriceCents, line.LineTotalCents)
		if err != nil {
			return nil, mapTxError(err)
		}
	}

	if sale.PaidCents > 0 {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO payments (id, sale_id, amount_cents, payment_method, reference, status, created_at)
			VALUES ($1,$2,$3,$4,'',$5,$6)
		`, xid.New("pay"), sale.ID, sale.PaidCents, sale.PaymentMethod, domain.PaymentStatusCompleted, sale.CreatedAt)
		if err != nil {
			return nil, mapTxError(err)
		}
	}

	loyaltyEarned := int64(math.Floor(float64(totalCents) * draft.LoyaltyRate))
	_, err = tx.ExecContext(ctx, `
		UPDATE customers
		SET total_spent_cents = total_spent_cents + $2, loyalty_points = loyalty_points + $3
		WHERE id = $1
	`, customerID, totalCents, loyaltyEarned)
	if err != nil {
		return nil, mapTxError(err)
	}

	if err := tx.Commit(); err != nil {
		return nil, mapTxError(err)
	}
	return &sale, nil
}

func (s *Store) GetSaleByID(ctx context.Context, id string) (*domain.Sale, error) {
	return s.findSale(ctx, "id", id)
}

func (s *Store) GetSaleByInvoice(ctx context.Context, invoice string) (*domain.Sale, error) {
	return s.findSale(ctx, "invoice", invoice)
}

func (s *Store) findSale(ctx context.Context, column string, value string) (*domain.Sale, error) {
	if column != "id" && column != "invoice" {
		return nil, fmt.Errorf("unsupported lookup column")
	}

	query := fmt.Sprintf(`
		SELECT id, invoice, location_id, COALESCE(customer_id,''), cashier_username, payment_method,
			subtotal_cents, tax_rate_percent, tax_cents, discount_cents, total_cents, paid_cents,
			status, COALESCE(void_reason,''), voided_at, created_at
		FROM sales
		WHERE %s = $1
	`, column)

	var sale domain.Sale
	var voidedAt sql.NullTime
	err := s.db.QueryRowContext(ctx, query, value).Scan(
		&sale.ID, &sale.Invoice, &sale.LocationID, &sale.CustomerID, &sale.CashierUsername,
		&sale.PaymentMethod, &sale.SubtotalCents, &sale.TaxRatePercent, &sale.TaxCents,
		&sale.DiscountCents, &sale.TotalCents, &sale.PaidCents, &sale.Status,
		&sale.VoidReason, &voidedAt, &sale.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if voidedAt.Valid {
		at := voidedAt.Time.UTC()
		sale.VoidedAt = &at
	}
	sale.CreatedAt = sale.CreatedAt.UTC()

	rows, err := s.db.QueryContext(ctx, `
		SELECT si.item_id, i.sku, si.quantity, si.unit_price_cents, si.line_total_cents
		FROM sales_items si
		JOIN items i ON i.id = si.item_id
		WHERE si.sale_id = $1
		ORDER BY si.id ASC
	`, sale.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lines := make([]domain.SaleLine, 0, 8)
	for rows.Next() {
		var line domain.SaleLine
		if err := rows.Scan(&line.ItemID, &line.SKU, &line.Quantity, &line.UnitPriceCents, &line.LineTotalCents); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sale.Items = lines

	return &sale, nil
}

func (s *Store) ListSales(ctx context.Context, locationID string, limit int) ([]domain.Sale, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, invoice, location_id, COALESCE(customer_id,''), cashier_username, payment_method,
			subtotal_cents, tax_rate_percent, tax_cents, discount_cents, total_cents, paid_cents,
			status, COALESCE(void_reason,''), voided_at, created_at
		FROM sales
		WHERE ($1 = '' OR location_id = $1)
		ORDER BY created_at DESC
		LIMIT $2
	`, locationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, limit)
	for rows.Next() {
		var sale domain.Sale
		var voidedAt sql.NullTime
		if err := rows.Scan(&sale.ID, &sale.Invoice, &sale.LocationID, &sale.CustomerID,
			&sale.CashierUsername, &sale.PaymentMethod, &sale.SubtotalCents, &sale.TaxRatePercent,
			&sale.TaxCents, &sale.DiscountCents, &sale.TotalCents, &sale.PaidCents,
			&sale.Status, &sale.VoidReason, &voidedAt, &sale.CreatedAt); err != nil {
			return nil, err
		}
		if voidedAt.Valid {
			at := voidedAt.Time.UTC()
			sale.VoidedAt = &at
		}
		sale.CreatedAt = sale.CreatedAt.UTC()
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sales, nil
}

// UpdateSalePayment sets the paid amount and re-derives the status against the
// frozen total. Stock is never touched here.
func (s *Store) UpdateSalePayment(ctx context.Context, saleID string, paidCents int64, method string, reference string) (*domain.Sale, error) {
	if paidCents < 0 {
		return nil, store.ErrInvalidInput
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var totalCents, currentPaid int64
	var status string
	err = tx.QueryRowContext(ctx, `
		SELECT total_cents, paid_cents, status
		FROM sales
		WHERE id = $1
		FOR UPDATE
	`, saleID).Scan(&totalCents, &currentPaid, &status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, mapTxError(err)
	}
	if status == domain.SaleStatusCancelled || status == domain.SaleStatusRefunded {
		return nil, store.ErrInvalidInput
	}

	if paidCents > currentPaid {
		if method == "" {
			method = "cash"
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO payments (id, sale_id, amount_cents, payment_method, reference, status, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,now())
		`, xid.New("pay"), saleID, paidCents-currentPaid, method, reference, domain.PaymentStatusCompleted)
		if err != nil {
			return nil, mapTxError(err)
		}
	}

	nextStatus := domain.SaleStatusFor(paidCents, totalCents)
	_, err = tx.ExecContext(ctx, `
		UPDATE sales SET paid_cents = $2, status = $3 WHERE id = $1
	`, saleID, paidCents, nextStatus)
	if err != nil {
		return nil, mapTxError(err)
	}

	if err := tx.Commit(); err != nil {
		return nil, mapTxError(err)
	}
	return s.findSale(ctx, "id", saleID)
}

func (s *Store) ListPayments(ctx context.Context, saleID string) ([]domain.Payment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sale_id, amount_cents, payment_method, reference, status, created_at
		FROM payments
		WHERE sale_id = $1
		ORDER BY created_at ASC
	`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payments := make([]domain.Payment, 0, 4)
	for rows.Next() {
		var payment domain.Payment
		if err := rows.Scan(&payment.ID, &payment.SaleID, &payment.AmountCents, &payment.Method,
			&payment.Reference, &payment.Status, &payment.CreatedAt); err != nil {
			return nil, err
		}
		payment.CreatedAt = payment.CreatedAt.UTC()
		payments = append(payments, payment)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return payments, nil
}

func (s *Store) GetCustomerByPhone(ctx context.Context, phone string) (*domain.Customer, error) {
	var customer domain.Customer
	err := s.db.QueryRowContext(ctx, `
		SELECT id, phone, name, loyalty_points, total_spent_cents, discount_percent, created_at
		FROM customers
		WHERE phone = $1
	`, phone).Scan(&customer.ID, &customer.Phone, &customer.Name, &customer.LoyaltyPoints,
		&customer.TotalSpentCents, &customer.DiscountPercent, &customer.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	customer.CreatedAt = customer.CreatedAt.UTC()
	return &customer, nil
}

func (s *Store) ListCustomers(ctx context.Context, limit int) ([]domain.Customer, error) {
	if limit < 1 {
		limit = 200
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, phone, name, loyalty_points, total_spent_cents, discount_percent, created_at
		FROM customers
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers := make([]domain.Customer, 0, limit)
	for rows.Next() {
		var customer domain.Customer
		if err := rows.Scan(&customer.ID, &customer.Phone, &customer.Name, &customer.LoyaltyPoints,
			&customer.TotalSpentCents, &customer.DiscountPercent, &customer.CreatedAt); err != nil {
			return nil, err
		}
		customer.CreatedAt = customer.CreatedAt.UTC()
		customers = append(customers, customer)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return customers, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, location_id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, entry.ID, entry.LocationID, entry.ActorUsername, entry.ActorRole, entry.Action,
		entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 200
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, location_id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at DESC
		LIMIT $3
	`, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.LocationID, &entry.ActorUsername, &entry.ActorRole,
			&entry.Action, &entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || user.Password == "" {
		return store.ErrInvalidInput
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,now())
	`, username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrInvalidInput
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
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

// itemAllowsNegative reads the negative-stock flag; missing item maps to
// ErrNotFound before any row lock is taken.
func itemAllowsNegative(ctx context.Context, tx *sql.Tx, itemID string) (bool, error) {
	var allowNegative bool
	err := tx.QueryRowContext(ctx, `
		SELECT allow_negative_stock FROM items WHERE id = $1
	`, itemID).Scan(&allowNegative)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, store.ErrNotFound
		}
		return false, err
	}
	return allowNegative, nil
}

// lockLocationRow creates the (location, item) row on first touch and then
// takes the pessimistic row lock for the remainder of the transaction,
// returning the current quantity.
func lockLocationRow(ctx context.Context, tx *sql.Tx, locationID string, itemID string) (int, error) {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO location_inventory (location_id, item_id, quantity, updated_at)
		VALUES ($1,$2,0,now())
		ON CONFLICT (location_id, item_id) DO NOTHING
	`, locationID, itemID)
	if err != nil {
		return 0, err
	}

	var quantity int
	err = tx.QueryRowContext(ctx, `
		SELECT quantity
		FROM location_inventory
		WHERE location_id = $1 AND item_id = $2
		FOR UPDATE
	`, locationID, itemID).Scan(&quantity)
	if err != nil {
		return 0, err
	}
	return quantity, nil
}

// reserveAndDecrement locks the (item, location) row, checks sufficiency, and
// decrements within the caller's transaction. It never commits on its own.
func reserveAndDecrement(ctx context.Context, tx *sql.Tx, itemID string, locationID string, quantity int, allowNegative bool) (int, error) {
	current, err := lockLocationRow(ctx, tx, locationID, itemID)
	if err != nil {
		return 0, mapTxError(err)
	}
	next := current - quantity
	if next < 0 && !allowNegative {
		return 0, store.ErrInsufficientStock
	}
	if err := setLocationQuantity(ctx, tx, locationID, itemID, next); err != nil {
		return 0, mapTxError(err)
	}
	return next, nil
}

func setLocationQuantity(ctx context.Context, tx *sql.Tx, locationID string, itemID string, quantity int) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE location_inventory
		SET quantity = $3, updated_at = now()
		WHERE location_id = $1 AND item_id = $2
	`, locationID, itemID, quantity)
	return err
}

// refreshItemAggregate re-derives items.quantity from the location rows. Must
// run inside the same transaction as the location mutation to keep the
// aggregate invariant observable at every commit point.
func refreshItemAggregate(ctx context.Context, tx *sql.Tx, itemID string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE items
		SET quantity = (SELECT COALESCE(SUM(quantity), 0) FROM location_inventory WHERE item_id = $1),
			updated_at = now()
		WHERE id = $1
	`, itemID)
	return err
}

func upsertCustomer(ctx context.Context, tx *sql.Tx, phone string, name string) (string, error) {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO customers (id, phone, name, created_at)
		VALUES ($1,$2,$3,now())
		ON CONFLICT (phone) DO NOTHING
	`, xid.New("cus"), phone, strings.TrimSpace(name))
	if err != nil {
		return "", err
	}

	var id string
	err = tx.QueryRowContext(ctx, `
		SELECT id FROM customers WHERE phone = $1 FOR UPDATE
	`, phone).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, nil
}

func distinctItemIDs(lines []domain.SaleLineInput) []string {
	set := make(map[string]struct{}, len(lines))
	for _, line := range lines {
		if line.ItemID == "" {
			continue
		}
		set[line.ItemID] = struct{}{}
	}

	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// mapTxError converts lock-timeout, deadlock, and serialization failures into
// ErrConflict so callers can distinguish the retryable class. Everything else
// passes through untouched.
func mapTxError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "55P03":
			return fmt.Errorf("%w: %s", store.ErrConflict, pgErr.Code)
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
