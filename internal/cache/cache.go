package cache

import (
	"context"
	"time"

	"gudangpos/backend/internal/domain"
)

// StockCache holds per-item snapshots of all location rows. Entries carry a
// short TTL and are invalidated after every ledger mutation, so a hit is at
// worst one TTL window stale.
type StockCache interface {
	Get(ctx context.Context, itemID string) (*domain.StockSnapshot, bool, error)
	Set(ctx context.Context, itemID string, value *domain.StockSnapshot, ttl time.Duration) error
	Invalidate(ctx context.Context, itemID string) error
}

// ReportCache holds generated low-stock reports keyed by location.
type ReportCache interface {
	Get(ctx context.Context, locationID string) (*domain.LowStockReport, bool, error)
	Set(ctx context.Context, locationID string, value *domain.LowStockReport, ttl time.Duration) error
	Invalidate(ctx context.Context, locationID string) error
}

type NoopStockCache struct{}

func (NoopStockCache) Get(_ context.Context, _ string) (*domain.StockSnapshot, bool, error) {
	return nil, false, nil
}

func (NoopStockCache) Set(_ context.Context, _ string, _ *domain.StockSnapshot, _ time.Duration) error {
	return nil
}

func (NoopStockCache) Invalidate(_ context.Context, _ string) error {
	return nil
}

type NoopReportCache struct{}

func (NoopReportCache) Get(_ context.Context, _ string) (*domain.LowStockReport, bool, error) {
	return nil, false, nil
}

func (NoopReportCache) Set(_ context.Context, _ string, _ *domain.LowStockReport, _ time.Duration) error {
	return nil
}

func (NoopReportCache) Invalidate(_ context.Context, _ string) error {
	return nil
}
