package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"PORT", "ALLOWED_ORIGIN", "DATABASE_URL", "REDIS_ADDR",
		"DEFAULT_LOCATION_ID", "LOYALTY_RATE", "STOCK_CACHE_TTL_SECONDS",
		"AUTH_SECRET", "ACCESS_TOKEN_TTL_MINUTES", "MANAGER_PIN", "SALE_RETRY_ATTEMPTS",
	} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port 8080, got %s", cfg.Port)
	}
	if cfg.Address() != ":8080" {
		t.Fatalf("unexpected address %s", cfg.Address())
	}
	if cfg.DefaultLocationID != "loc-pusat" {
		t.Fatalf("unexpected default location %s", cfg.DefaultLocationID)
	}
	if cfg.LoyaltyRate != 0.0001 {
		t.Fatalf("unexpected loyalty rate %f", cfg.LoyaltyRate)
	}
	if cfg.StockCacheTTLSeconds != 15 {
		t.Fatalf("unexpected cache ttl %d", cfg.StockCacheTTLSeconds)
	}
	if cfg.AccessTokenTTLMinutes != 480 {
		t.Fatalf("unexpected token ttl %d", cfg.AccessTokenTTLMinutes)
	}
	if cfg.SaleRetryAttempts != 3 {
		t.Fatalf("unexpected retry attempts %d", cfg.SaleRetryAttempts)
	}
	if cfg.DatabaseURL != "" || cfg.RedisAddr != "" {
		t.Fatalf("expected empty database/redis config, got %q / %q", cfg.DatabaseURL, cfg.RedisAddr)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("DEFAULT_LOCATION_ID", "loc-cabang")
	t.Setenv("LOYALTY_RATE", "0.005")
	t.Setenv("STOCK_CACHE_TTL_SECONDS", "60")
	t.Setenv("SALE_RETRY_ATTEMPTS", "5")
	t.Setenv("AUTH_SECRET", "  super-secret-value  ")

	cfg := Load()
	if cfg.Port != "9090" {
		t.Fatalf("unexpected port %s", cfg.Port)
	}
	if cfg.DefaultLocationID != "loc-cabang" {
		t.Fatalf("unexpected location %s", cfg.DefaultLocationID)
	}
	if cfg.LoyaltyRate != 0.005 {
		t.Fatalf("unexpected loyalty rate %f", cfg.LoyaltyRate)
	}
	if cfg.StockCacheTTLSeconds != 60 {
		t.Fatalf("unexpected ttl %d", cfg.StockCacheTTLSeconds)
	}
	if cfg.SaleRetryAttempts != 5 {
		t.Fatalf("unexpected retries %d", cfg.SaleRetryAttempts)
	}
	if cfg.AuthSecret != "super-secret-value" {
		t.Fatalf("secret not trimmed: %q", cfg.AuthSecret)
	}
}

func TestLoadRejectsBadNumbers(t *testing.T) {
	t.Setenv("STOCK_CACHE_TTL_SECONDS", "not-a-number")
	t.Setenv("SALE_RETRY_ATTEMPTS", "0")
	t.Setenv("LOYALTY_RATE", "-1")

	cfg := Load()
	if cfg.StockCacheTTLSeconds != 15 {
		t.Fatalf("expected fallback ttl 15, got %d", cfg.StockCacheTTLSeconds)
	}
	if cfg.SaleRetryAttempts != 3 {
		t.Fatalf("expected fallback retries 3, got %d", cfg.SaleRetryAttempts)
	}
	if cfg.LoyaltyRate != 0.0001 {
		t.Fatalf("expected fallback loyalty rate, got %f", cfg.LoyaltyRate)
	}
}
