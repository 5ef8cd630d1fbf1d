// Package stockalert turns raw ledger rows into a ranked low-stock report.
// The engine is pure over the data handed to it; callers load the catalog and
// inventory, the engine scores and caches.
package stockalert

import (
	"context"
	"sort"
	"time"

	"gudangpos/backend/internal/cache"
	"gudangpos/backend/internal/domain"
)

const (
	SeverityCritical = "critical"
	SeverityWarning  = "warning"
)

type Engine struct {
	cache    cache.ReportCache
	cacheTTL time.Duration
}

func NewEngine(reportCache cache.ReportCache, cacheTTL time.Duration) *Engine {
	if reportCache == nil {
		reportCache = cache.NoopReportCache{}
	}
	if cacheTTL <= 0 {
		cacheTTL = 30 * time.Second
	}

	return &Engine{
		cache:    reportCache,
		cacheTTL: cacheTTL,
	}
}

// Build generates the low-stock report for one location. A row is reported
// when its quantity has fallen to the effective minimum; the item-level
// min_stock applies wherever the row carries no threshold of its own. Cached
// reports are served as-is until the TTL lapses or a mutation invalidates them.
func (e *Engine) Build(
	ctx context.Context,
	locationID string,
	items map[string]domain.Item,
	rows []domain.LocationStock,
) domain.LowStockReport {
	if cached, ok, err := e.cache.Get(ctx, locationID); err == nil && ok {
		return *cached
	}

	entries := make([]domain.LowStockEntry, 0, len(rows))
	for _, row := range rows {
		item, exists := items[row.ItemID]
		if !exists || !item.Active {
			continue
		}

		minStock := row.MinStock
		if minStock == 0 {
			minStock = item.MinStock
		}
		if minStock == 0 || row.Quantity > minStock {
			continue
		}

		severity := SeverityWarning
		if row.Quantity <= 0 || row.Quantity*2 <= minStock {
			severity = SeverityCritical
		}

		entries = append(entries, domain.LowStockEntry{
			LocationID: row.LocationID,
			ItemID:     row.ItemID,
			SKU:        item.SKU,
			Name:       item.Name,
			Quantity:   row.Quantity,
			MinStock:   minStock,
			Severity:   severity,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Severity != entries[j].Severity {
			return entries[i].Severity == SeverityCritical
		}
		deficitI := entries[i].MinStock - entries[i].Quantity
		deficitJ := entries[j].MinStock - entries[j].Quantity
		if deficitI != deficitJ {
			return deficitI > deficitJ
		}
		return entries[i].SKU < entries[j].SKU
	})

	report := domain.LowStockReport{
		LocationID:  locationID,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Entries:     entries,
	}

	_ = e.cache.Set(ctx, locationID, &report, e.cacheTTL)
	return report
}

// Invalidate drops the cached report for a location after a ledger mutation.
func (e *Engine) Invalidate(ctx context.Context, locationID string) {
	_ = e.cache.Invalidate(ctx, locationID)
}
