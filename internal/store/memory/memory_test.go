package memory

import (
	"context"
	"errors"
	"testing"

	"gudangpos/backend/internal/domain"
	"gudangpos/backend/internal/store"
)

func TestReconcileRepairsDrift(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	// Corrupt the aggregate directly; location rows stay at 20+40=60.
	item := s.items["itm-kopi"]
	item.Quantity = 999
	s.items["itm-kopi"] = item

	report, err := s.ReconcileItem(ctx, "itm-kopi")
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if !report.Drifted || report.Before != 999 || report.After != 60 {
		t.Fatalf("unexpected report %+v", report)
	}
	if got := s.items["itm-kopi"].Quantity; got != 60 {
		t.Fatalf("aggregate not repaired: %d", got)
	}

	// Location rows are never touched by reconciliation.
	if got := s.inventory[inventoryKey{"loc-pusat", "itm-kopi"}].Quantity; got != 20 {
		t.Fatalf("loc-pusat row changed: %d", got)
	}
	if got := s.inventory[inventoryKey{"loc-gudang", "itm-kopi"}].Quantity; got != 40 {
		t.Fatalf("loc-gudang row changed: %d", got)
	}

	again, err := s.ReconcileItem(ctx, "itm-kopi")
	if err != nil {
		t.Fatalf("second reconcile: %v", err)
	}
	if again.Drifted || again.Before != 60 || again.After != 60 {
		t.Fatalf("reconcile not idempotent: %+v", again)
	}
}

func TestAdjustCreatesRowLazily(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	// itm-gula has no row at loc-gudang yet.
	if _, err := s.GetLocationStock(ctx, "itm-gula", "loc-gudang"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound before first touch, got %v", err)
	}

	row, err := s.AdjustLocationStock(ctx, "itm-gula", "loc-gudang", domain.StockOpAdd, 3)
	if err != nil {
		t.Fatalf("adjust: %v", err)
	}
	if row.Quantity != 3 {
		t.Fatalf("expected quantity 3, got %d", row.Quantity)
	}
	if row.MinStock != 10 {
		t.Fatalf("expected min_stock inherited from item, got %d", row.MinStock)
	}
	if got := s.items["itm-gula"].Quantity; got != 18 {
		t.Fatalf("expected aggregate 18, got %d", got)
	}
}

func TestFailedOperationsCreateNoRows(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	// itm-gula only has a row at loc-pusat. A failed transfer must not leave
	// a zero-quantity row behind at the destination.
	_, err := s.TransferStock(ctx, domain.TransferRecord{
		ItemID: "itm-gula", FromLocationID: "loc-pusat", ToLocationID: "loc-gudang", Quantity: 999,
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
	if _, err := s.GetLocationStock(ctx, "itm-gula", "loc-gudang"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("failed transfer created a destination row: %v", err)
	}

	// Same for a failed subtract against a location with no row yet.
	if _, err := s.AdjustLocationStock(ctx, "itm-gula", "loc-gudang", domain.StockOpSubtract, 1); !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
	if _, err := s.GetLocationStock(ctx, "itm-gula", "loc-gudang"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("failed adjust created a row: %v", err)
	}

	// And for a sale that fails on insufficient stock at a fresh location.
	if _, err := s.CreateSale(ctx, domain.SaleDraft{
		Invoice:       "inv-norow",
		LocationID:    "loc-gudang",
		CustomerPhone: "0812111666",
		Lines:         []domain.SaleLineInput{{ItemID: "itm-gula", Quantity: 1}},
	}); !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
	if _, err := s.GetLocationStock(ctx, "itm-gula", "loc-gudang"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("failed sale created a row: %v", err)
	}
}

func TestCreateSaleRejectsDuplicateInvoice(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	draft := domain.SaleDraft{
		Invoice:       "inv-dup",
		LocationID:    "loc-pusat",
		CustomerPhone: "0812111222",
		Lines:         []domain.SaleLineInput{{ItemID: "itm-kopi", Quantity: 1}},
	}
	if _, err := s.CreateSale(ctx, draft); err != nil {
		t.Fatalf("first sale: %v", err)
	}
	if _, err := s.CreateSale(ctx, draft); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for duplicate invoice, got %v", err)
	}
	if got := s.inventory[inventoryKey{"loc-pusat", "itm-kopi"}].Quantity; got != 19 {
		t.Fatalf("duplicate invoice must not decrement stock again: %d", got)
	}
}

func TestCreateSaleDuplicateLineItems(t *testing.T) {
	s := NewSeeded()

	sale, err := s.CreateSale(context.Background(), domain.SaleDraft{
		Invoice:       "inv-lines",
		LocationID:    "loc-pusat",
		CustomerPhone: "0812111333",
		Lines: []domain.SaleLineInput{
			{ItemID: "itm-kopi", Quantity: 2},
			{ItemID: "itm-kopi", Quantity: 3, UnitPriceCents: 2000000},
		},
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}

	if len(sale.Items) != 2 {
		t.Fatalf("expected both lines preserved, got %d", len(sale.Items))
	}
	if sale.SubtotalCents != 2*2500000+3*2000000 {
		t.Fatalf("unexpected subtotal %d", sale.SubtotalCents)
	}
	if got := s.inventory[inventoryKey{"loc-pusat", "itm-kopi"}].Quantity; got != 15 {
		t.Fatalf("expected combined decrement to 15, got %d", got)
	}
	if got := s.items["itm-kopi"].Quantity; got != 55 {
		t.Fatalf("expected aggregate 55, got %d", got)
	}
}

func TestCreateSaleTaxRounding(t *testing.T) {
	s := NewSeeded()

	// 1100000 * 11% = 121000 exactly; 1100000 * 7.5% = 82500.
	sale, err := s.CreateSale(context.Background(), domain.SaleDraft{
		Invoice:        "inv-tax",
		LocationID:     "loc-pusat",
		CustomerPhone:  "0812111444",
		TaxRatePercent: 7.5,
		Lines:          []domain.SaleLineInput{{ItemID: "itm-teh", Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	if sale.TaxCents != 82500 {
		t.Fatalf("expected tax 82500, got %d", sale.TaxCents)
	}
	if sale.TotalCents != 1182500 {
		t.Fatalf("expected total 1182500, got %d", sale.TotalCents)
	}
}

func TestUpdateSalePaymentRejectsCancelled(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	sale, err := s.CreateSale(ctx, domain.SaleDraft{
		Invoice:       "inv-void",
		LocationID:    "loc-pusat",
		CustomerPhone: "0812111555",
		Lines:         []domain.SaleLineInput{{ItemID: "itm-gula", Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}

	stored := s.sales[sale.ID]
	stored.Status = domain.SaleStatusCancelled
	s.sales[sale.ID] = stored

	if _, err := s.UpdateSalePayment(ctx, sale.ID, 100, "cash", ""); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for cancelled sale, got %v", err)
	}
}

func TestSeededUsersHaveHashedPasswords(t *testing.T) {
	s := NewSeeded()

	users, err := s.ListUsers(context.Background())
	if err != nil {
		t.Fatalf("list users: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("expected 2 seeded users, got %d", len(users))
	}
	for _, user := range users {
		if len(user.Password) < 4 || user.Password[:4] != "$2a$" {
			t.Fatalf("user %s password is not a bcrypt hash", user.Username)
		}
	}
}
