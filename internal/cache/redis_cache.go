package cache

import (
	"context"
	"encoding/json"
	"time"

	redis "github.com/redis/go-redis/v9"

	"gudangpos/backend/internal/domain"
)

// NewRedisClient builds the shared client used by both typed caches.
func NewRedisClient(addr string, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

type RedisStockCache struct {
	client *redis.Client
}

func NewRedisStockCache(client *redis.Client) *RedisStockCache {
	return &RedisStockCache{client: client}
}

func (c *RedisStockCache) Get(ctx context.Context, itemID string) (*domain.StockSnapshot, bool, error) {
	val, err := c.client.Get(ctx, stockKey(itemID)).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var snapshot domain.StockSnapshot
	if err := json.Unmarshal([]byte(val), &snapshot); err != nil {
		return nil, false, err
	}
	return &snapshot, true, nil
}

func (c *RedisStockCache) Set(ctx context.Context, itemID string, value *domain.StockSnapshot, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, stockKey(itemID), payload, ttl).Err()
}

func (c *RedisStockCache) Invalidate(ctx context.Context, itemID string) error {
	return c.client.Del(ctx, stockKey(itemID)).Err()
}

type RedisReportCache struct {
	client *redis.Client
}

func NewRedisReportCache(client *redis.Client) *RedisReportCache {
	return &RedisReportCache{client: client}
}

func (c *RedisReportCache) Get(ctx context.Context, locationID string) (*domain.LowStockReport, bool, error) {
	val, err := c.client.Get(ctx, reportKey(locationID)).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var report domain.LowStockReport
	if err := json.Unmarshal([]byte(val), &report); err != nil {
		return nil, false, err
	}
	return &report, true, nil
}

func (c *RedisReportCache) Set(ctx context.Context, locationID string, value *domain.LowStockReport, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, reportKey(locationID), payload, ttl).Err()
}

func (c *RedisReportCache) Invalidate(ctx context.Context, locationID string) error {
	return c.client.Del(ctx, reportKey(locationID)).Err()
}

func stockKey(itemID string) string {
	return "stock:item:" + itemID
}

func reportKey(locationID string) string {
	return "lowstock:location:" + locationID
}
