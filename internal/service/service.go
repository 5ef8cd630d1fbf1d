package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"gudangpos/backend/internal/cache"
	"gudangpos/backend/internal/domain"
	"gudangpos/backend/internal/stockalert"
	"gudangpos/backend/internal/store"
	"gudangpos/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo              store.Repository
	stockCache        cache.StockCache
	alerts            *stockalert.Engine
	defaultLocationID string
	loyaltyRate       float64
	stockCacheTTL     time.Duration
	retryAttempts     int
}

func New(
	repo store.Repository,
	stockCache cache.StockCache,
	alerts *stockalert.Engine,
	defaultLocationID string,
	loyaltyRate float64,
	stockCacheTTL time.Duration,
	retryAttempts int,
) *Service {
	if stockCache == nil {
		stockCache = cache.NoopStockCache{}
	}
	if defaultLocationID == "" {
		defaultLocationID = "loc-pusat"
	}
	if loyaltyRate < 0 {
		loyaltyRate = 0
	}
	if stockCacheTTL <= 0 {
		stockCacheTTL = 15 * time.Second
	}
	if retryAttempts < 1 {
		retryAttempts = 3
	}

	return &Service{
		repo:              repo,
		stockCache:        stockCache,
		alerts:            alerts,
		defaultLocationID: defaultLocationID,
		loyaltyRate:       loyaltyRate,
		stockCacheTTL:     stockCacheTTL,
		retryAttempts:     retryAttempts,
	}
}

func (s *Service) CreateItem(ctx context.Context, req domain.ItemCreateRequest) (domain.Item, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Item{}, fmt.Errorf("admin role required")
	}

	req.SKU = strings.ToUpper(strings.TrimSpace(req.SKU))
	req.Name = strings.TrimSpace(req.Name)
	if req.SKU == "" || req.Name == "" {
		return domain.Item{}, store.ErrInvalidInput
	}
	if req.SellPriceCents < 1 || req.BuyPriceCents < 0 || req.MinStock < 0 || req.MaxStock < 0 || req.OpeningStock < 0 {
		return domain.Item{}, store.ErrInvalidInput
	}

	// Resolve the opening-stock location before the item exists so a bad
	// location cannot leave a half-created item behind.
	openingLocationID := ""
	if req.OpeningStock > 0 {
		openingLocationID = req.OpeningLocationID
		if openingLocationID == "" {
			openingLocationID = s.defaultLocationID
		}
		location, err := s.repo.GetLocation(ctx, openingLocationID)
		if err != nil {
			return domain.Item{}, err
		}
		if !location.Active {
			return domain.Item{}, fmt.Errorf("location %s is inactive: %w", location.ID, store.ErrInvalidInput)
		}
	}

	created, err := s.repo.CreateItem(ctx, domain.Item{
		SKU:                req.SKU,
		Name:               req.Name,
		BuyPriceCents:      req.BuyPriceCents,
		SellPriceCents:     req.SellPriceCents,
		MinStock:           req.MinStock,
		MaxStock:           req.MaxStock,
		AllowNegativeStock: req.AllowNegativeStock,
	})
	if err != nil {
		return domain.Item{}, err
	}

	if req.OpeningStock > 0 {
		if _, err := s.repo.AdjustLocationStock(ctx, created.ID, openingLocationID, domain.StockOpAdd, req.OpeningStock); err != nil {
			return domain.Item{}, fmt.Errorf("item %s created but opening stock failed: %w", created.ID, err)
		}
		s.invalidateStock(ctx, created.ID, openingLocationID)
		created.Quantity = req.OpeningStock
	}

	s.logAudit(ctx, "", "item_create", "item", created.ID, fmt.Sprintf("sku=%s,price=%d,opening=%d", created.SKU, created.SellPriceCents, req.OpeningStock))
	return *created, nil
}

func (s *Service) UpdateItem(ctx context.Context, itemID string, req domain.ItemUpdateRequest) (domain.Item, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Item{}, fmt.Errorf("admin role required")
	}

	existing, err := s.repo.GetItemByID(ctx, itemID)
	if err != nil {
		return domain.Item{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Item{}, store.ErrInvalidInput
		}
		updated.Name = name
	}
	if req.BuyPriceCents != nil {
		if *req.BuyPriceCents < 0 {
			return domain.Item{}, store.ErrInvalidInput
		}
		updated.BuyPriceCents = *req.BuyPriceCents
	}
	if req.SellPriceCents != nil {
		if *req.SellPriceCents < 1 {
			return domain.Item{}, store.ErrInvalidInput
		}
		updated.SellPriceCents = *req.SellPriceCents
	}
	if req.MinStock != nil {
		if *req.MinStock < 0 {
			return domain.Item{}, store.ErrInvalidInput
		}
		updated.MinStock = *req.MinStock
	}
	if req.MaxStock != nil {
		if *req.MaxStock < 0 {
			return domain.Item{}, store.ErrInvalidInput
		}
		updated.MaxStock = *req.MaxStock
	}
	if req.AllowNegativeStock != nil {
		updated.AllowNegativeStock = *req.AllowNegativeStock
	}
	if req.Active != nil {
		updated.Active = *req.Active
	}

	saved, err := s.repo.UpdateItem(ctx, updated)
	if err != nil {
		return domain.Item{}, err
	}

	s.logAudit(ctx, "", "item_update", "item", saved.ID, fmt.Sprintf("active=%t,price=%d,min_stock=%d", saved.Active, saved.SellPriceCents, saved.MinStock))
	return *saved, nil
}

func (s *Service) GetItem(ctx context.Context, itemID string) (domain.Item, error) {
	item, err := s.repo.GetItemByID(ctx, itemID)
	if err != nil {
		return domain.Item{}, err
	}
	return *item, nil
}

func (s *Service) GetItemBySKU(ctx context.Context, sku string) (domain.Item, error) {
	sku = strings.ToUpper(strings.TrimSpace(sku))
	if sku == "" {
		return domain.Item{}, store.ErrInvalidInput
	}
	item, err := s.repo.GetItemBySKU(ctx, sku)
	if err != nil {
		return domain.Item{}, err
	}
	return *item, nil
}

func (s *Service) ListItems(ctx context.Context, includeInactive bool) ([]domain.Item, error) {
	return s.repo.ListItems(ctx, includeInactive)
}

// ItemStock returns all location rows of an item plus the aggregate, serving
// from the snapshot cache when the entry is still fresh.
func (s *Service) ItemStock(ctx context.Context, itemID string) (domain.StockSnapshot, error) {
	if cached, ok, err := s.stockCache.Get(ctx, itemID); err == nil && ok {
		return *cached, nil
	}

	item, err := s.repo.GetItemByID(ctx, itemID)
	if err != nil {
		return domain.StockSnapshot{}, err
	}
	rows, err := s.repo.ListItemLocations(ctx, itemID)
	if err != nil {
		return domain.StockSnapshot{}, err
	}

	snapshot := domain.StockSnapshot{
		ItemID:   itemID,
		Rows:     rows,
		Total:    item.Quantity,
		CachedAt: time.Now().UTC(),
	}
	if err := s.stockCache.Set(ctx, itemID, &snapshot, s.stockCacheTTL); err != nil {
		log.Printf("[service] WARN: failed to cache stock snapshot item=%s: %v", itemID, err)
	}
	return snapshot, nil
}

func (s *Service) CreateLocation(ctx context.Context, req domain.LocationCreateRequest) (domain.Location, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Location{}, fmt.Errorf("admin role required")
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.Location{}, store.ErrInvalidInput
	}

	created, err := s.repo.CreateLocation(ctx, domain.Location{
		Name:    req.Name,
		Address: strings.TrimSpace(req.Address),
	})
	if err != nil {
		return domain.Location{}, err
	}

	s.logAudit(ctx, created.ID, "location_create", "location", created.ID, fmt.Sprintf("name=%s", created.Name))
	return *created, nil
}

func (s *Service) ListLocations(ctx context.Context) ([]domain.Location, error) {
	return s.repo.ListLocations(ctx)
}

func (s *Service) LocationStock(ctx context.Context, locationID string) ([]domain.LocationStock, error) {
	if locationID == "" {
		locationID = s.defaultLocationID
	}
	if _, err := s.repo.GetLocation(ctx, locationID); err != nil {
		return nil, err
	}
	return s.repo.ListLocationStock(ctx, locationID)
}

func (s *Service) AdjustStock(ctx context.Context, req domain.StockAdjustRequest) (domain.LocationStock, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.LocationStock{}, fmt.Errorf("admin role required")
	}

	if req.LocationID == "" {
		req.LocationID = s.defaultLocationID
	}
	switch req.Operation {
	case domain.StockOpAdd, domain.StockOpSubtract:
		if req.Quantity < 1 {
			return domain.LocationStock{}, store.ErrInvalidInput
		}
	case domain.StockOpSet:
		// Any value, including negative; the repository enforces the
		// allow-negative rule per item.
	default:
		return domain.LocationStock{}, store.ErrInvalidInput
	}

	location, err := s.repo.GetLocation(ctx, req.LocationID)
	if err != nil {
		return domain.LocationStock{}, err
	}
	if !location.Active {
		return domain.LocationStock{}, fmt.Errorf("location %s is inactive: %w", location.ID, store.ErrInvalidInput)
	}

	var row *domain.LocationStock
	err = s.withRetry(ctx, func() error {
		var innerErr error
		row, innerErr = s.repo.AdjustLocationStock(ctx, req.ItemID, req.LocationID, req.Operation, req.Quantity)
		return innerErr
	})
	if err != nil {
		return domain.LocationStock{}, err
	}

	s.invalidateStock(ctx, req.ItemID, req.LocationID)
	s.logAudit(ctx, req.LocationID, "stock_adjust", "item", req.ItemID, fmt.Sprintf("op=%s,qty=%d,result=%d,notes=%s", req.Operation, req.Quantity, row.Quantity, strings.TrimSpace(req.Notes)))
	return *row, nil
}

func (s *Service) Transfer(ctx context.Context, req domain.TransferRequest) (domain.TransferRecord, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.TransferRecord{}, fmt.Errorf("authentication required")
	}

	if req.Quantity < 1 || req.ItemID == "" {
		return domain.TransferRecord{}, store.ErrInvalidInput
	}
	if req.FromLocationID == "" || req.ToLocationID == "" || req.FromLocationID == req.ToLocationID {
		return domain.TransferRecord{}, store.ErrInvalidInput
	}

	for _, locationID := range []string{req.FromLocationID, req.ToLocationID} {
		location, err := s.repo.GetLocation(ctx, locationID)
		if err != nil {
			return domain.TransferRecord{}, err
		}
		if !location.Active {
			return domain.TransferRecord{}, fmt.Errorf("location %s is inactive: %w", location.ID, store.ErrInvalidInput)
		}
	}

	var record *domain.TransferRecord
	err := s.withRetry(ctx, func() error {
		var innerErr error
		record, innerErr = s.repo.TransferStock(ctx, domain.TransferRecord{
			ItemID:         req.ItemID,
			FromLocationID: req.FromLocationID,
			ToLocationID:   req.ToLocationID,
			Quantity:       req.Quantity,
			TransferredBy:  actor.Username,
			Notes:          strings.TrimSpace(req.Notes),
		})
		return innerErr
	})
	if err != nil {
		return domain.TransferRecord{}, err
	}

	s.invalidateStock(ctx, req.ItemID, req.FromLocationID)
	s.invalidateStock(ctx, req.ItemID, req.ToLocationID)
	s.logAudit(ctx, req.FromLocationID, "stock_transfer", "item", req.ItemID, fmt.Sprintf("to=%s,qty=%d", req.ToLocationID, req.Quantity))
	return *record, nil
}

func (s *Service) ListTransfers(ctx context.Context, itemID string, limit int) ([]domain.TransferRecord, error) {
	if limit < 1 {
		limit = 100
	}
	return s.repo.ListTransfers(ctx, itemID, limit)
}

func (s *Service) CreateSale(ctx context.Context, req domain.SaleCreateRequest) (domain.Sale, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.Sale{}, fmt.Errorf("authentication required")
	}

	if req.LocationID == "" {
		req.LocationID = s.defaultLocationID
	}
	if req.PaymentMethod == "" {
		req.PaymentMethod = "cash"
	}
	if !isSupportedPaymentMethod(req.PaymentMethod) {
		return domain.Sale{}, store.ErrInvalidInput
	}
	if req.TaxRatePercent < 0 || req.TaxRatePercent > 100 {
		return domain.Sale{}, store.ErrInvalidInput
	}
	if req.DiscountCents < 0 || req.PaidCents < 0 {
		return domain.Sale{}, store.ErrInvalidInput
	}
	if len(req.Items) == 0 {
		return domain.Sale{}, store.ErrInvalidInput
	}

	req.CustomerPhone = strings.TrimSpace(req.CustomerPhone)
	if req.CustomerPhone == "" {
		return domain.Sale{}, fmt.Errorf("customer phone is required: %w", store.ErrInvalidInput)
	}

	location, err := s.repo.GetLocation(ctx, req.LocationID)
	if err != nil {
		return domain.Sale{}, err
	}
	if !location.Active {
		return domain.Sale{}, fmt.Errorf("location %s is inactive: %w", location.ID, store.ErrInvalidInput)
	}

	draft := domain.SaleDraft{
		Invoice:         xid.New("inv"),
		LocationID:      req.LocationID,
		CashierUsername: actor.Username,
		PaymentMethod:   req.PaymentMethod,
		CustomerPhone:   req.CustomerPhone,
		CustomerName:    strings.TrimSpace(req.CustomerName),
		TaxRatePercent:  req.TaxRatePercent,
		DiscountCents:   req.DiscountCents,
		PaidCents:       req.PaidCents,
		LoyaltyRate:     s.loyaltyRate,
		Lines:           req.Items,
		CreatedAt:       time.Now().UTC(),
	}

	var sale *domain.Sale
	err = s.withRetry(ctx, func() error {
		var innerErr error
		sale, innerErr = s.repo.CreateSale(ctx, draft)
		return innerErr
	})
	if err != nil {
		return domain.Sale{}, err
	}

	for _, line := range sale.Items {
		s.invalidateStock(ctx, line.ItemID, sale.LocationID)
	}
	s.logAudit(ctx, sale.LocationID, "sale_commit", "sale", sale.ID, fmt.Sprintf("invoice=%s,total=%d,paid=%d,status=%s,lines=%d", sale.Invoice, sale.TotalCents, sale.PaidCents, sale.Status, len(sale.Items)))
	return *sale, nil
}

func (s *Service) GetSale(ctx context.Context, idOrInvoice string) (domain.Sale, error) {
	idOrInvoice = strings.TrimSpace(idOrInvoice)
	if idOrInvoice == "" {
		return domain.Sale{}, store.ErrInvalidInput
	}

	sale, err := s.repo.GetSaleByID(ctx, idOrInvoice)
	if errors.Is(err, store.ErrNotFound) {
		sale, err = s.repo.GetSaleByInvoice(ctx, idOrInvoice)
	}
	if err != nil {
		return domain.Sale{}, err
	}
	return *sale, nil
}

func (s *Service) ListSales(ctx context.Context, locationID string, limit int) ([]domain.Sale, error) {
	if limit < 1 {
		limit = 100
	}
	return s.repo.ListSales(ctx, locationID, limit)
}

func (s *Service) UpdatePayment(ctx context.Context, saleID string, req domain.PaymentUpdateRequest) (domain.Sale, error) {
	if _, ok := ActorFromContext(ctx); !ok {
		return domain.Sale{}, fmt.Errorf("authentication required")
	}
	if saleID == "" || req.PaidCents < 0 {
		return domain.Sale{}, store.ErrInvalidInput
	}

	sale, err := s.repo.UpdateSalePayment(ctx, saleID, req.PaidCents, strings.TrimSpace(req.Method), strings.TrimSpace(req.Reference))
	if err != nil {
		return domain.Sale{}, err
	}

	s.logAudit(ctx, sale.LocationID, "sale_payment_update", "sale", sale.ID, fmt.Sprintf("paid=%d,status=%s", sale.PaidCents, sale.Status))
	return *sale, nil
}

func (s *Service) ListPayments(ctx context.Context, saleID string) ([]domain.Payment, error) {
	if saleID == "" {
		return nil, store.ErrInvalidInput
	}
	if _, err := s.repo.GetSaleByID(ctx, saleID); err != nil {
		return nil, err
	}
	return s.repo.ListPayments(ctx, saleID)
}

func (s *Service) Reconcile(ctx context.Context, itemID string) (domain.DriftReport, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.DriftReport{}, fmt.Errorf("admin role required")
	}
	if itemID == "" {
		return domain.DriftReport{}, store.ErrInvalidInput
	}

	report, err := s.repo.ReconcileItem(ctx, itemID)
	if err != nil {
		return domain.DriftReport{}, err
	}

	if report.Drifted {
		s.invalidateStock(ctx, itemID, "")
		s.logAudit(ctx, "", "stock_reconcile", "item", itemID, fmt.Sprintf("before=%d,after=%d", report.Before, report.After))
	}
	return *report, nil
}

// ReconcileAll sweeps every item, including inactive ones. Items that fail are
// logged and skipped so one bad row cannot stall the sweep.
func (s *Service) ReconcileAll(ctx context.Context) ([]domain.DriftReport, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return nil, fmt.Errorf("admin role required")
	}

	items, err := s.repo.ListItems(ctx, true)
	if err != nil {
		return nil, err
	}

	reports := make([]domain.DriftReport, 0, len(items))
	for _, item := range items {
		report, err := s.repo.ReconcileItem(ctx, item.ID)
		if err != nil {
			log.Printf("[service] WARN: reconcile failed item=%s: %v", item.ID, err)
			continue
		}
		if report.Drifted {
			s.invalidateStock(ctx, item.ID, "")
			s.logAudit(ctx, "", "stock_reconcile", "item", item.ID, fmt.Sprintf("before=%d,after=%d", report.Before, report.After))
		}
		reports = append(reports, *report)
	}
	return reports, nil
}

func (s *Service) LowStockReport(ctx context.Context, locationID string) (domain.LowStockReport, error) {
	if locationID == "" {
		locationID = s.defaultLocationID
	}
	if _, err := s.repo.GetLocation(ctx, locationID); err != nil {
		return domain.LowStockReport{}, err
	}

	items, err := s.repo.ListItems(ctx, false)
	if err != nil {
		return domain.LowStockReport{}, err
	}
	itemMap := make(map[string]domain.Item, len(items))
	for _, item := range items {
		itemMap[item.ID] = item
	}

	rows, err := s.repo.ListLocationStock(ctx, locationID)
	if err != nil {
		return domain.LowStockReport{}, err
	}

	return s.alerts.Build(ctx, locationID, itemMap, rows), nil
}

func (s *Service) GetCustomer(ctx context.Context, phone string) (domain.Customer, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return domain.Customer{}, store.ErrInvalidInput
	}
	customer, err := s.repo.GetCustomerByPhone(ctx, phone)
	if err != nil {
		return domain.Customer{}, err
	}
	return *customer, nil
}

func (s *Service) ListCustomers(ctx context.Context, limit int) ([]domain.Customer, error) {
	if limit < 1 {
		limit = 200
	}
	return s.repo.ListCustomers(ctx, limit)
}

func (s *Service) ListAuditLogs(ctx context.Context, date string, limit int) ([]domain.AuditLog, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return nil, fmt.Errorf("admin role required")
	}
	if limit < 1 {
		limit = 200
	}

	var from time.Time
	if strings.TrimSpace(date) == "" {
		from = time.Now().UTC().Add(-24 * time.Hour)
	} else {
		parsed, err := time.Parse("2006-01-02", date)
		if err != nil {
			return nil, store.ErrInvalidInput
		}
		from = parsed.UTC()
	}
	to := from.Add(24 * time.Hour)

	return s.repo.ListAuditLogs(ctx, from, to, limit)
}

// withRetry re-runs fn on ErrConflict only. A conflicted transaction rolled
// back cleanly, so re-running it is safe; any other error is final.
func (s *Service) withRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt < s.retryAttempts; attempt++ {
		err = fn()
		if err == nil || !errors.Is(err, store.ErrConflict) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt+1) * 25 * time.Millisecond):
		}
	}
	return err
}

func (s *Service) invalidateStock(ctx context.Context, itemID string, locationID string) {
	if err := s.stockCache.Invalidate(ctx, itemID); err != nil {
		log.Printf("[service] WARN: failed to invalidate stock cache item=%s: %v", itemID, err)
	}
	if s.alerts != nil && locationID != "" {
		s.alerts.Invalidate(ctx, locationID)
	}
}

func (s *Service) logAudit(ctx context.Context, locationID string, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		LocationID:    locationID,
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     time.Now().UTC(),
	}); err != nil {
		log.Printf("[audit] WARN: failed to write audit log action=%s entity=%s/%s: %v", action, entityType, entityID, err)
	}
}

func isSupportedPaymentMethod(method string) bool {
	switch method {
	case "cash", "card", "qris", "ewallet":
		return true
	default:
		return false
	}
}
