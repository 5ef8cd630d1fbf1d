package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Port                  string
	AllowedOrigin         string
	DatabaseURL           string
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	DefaultLocationID     string
	LoyaltyRate           float64
	StockCacheTTLSeconds  int
	AuthSecret            string
	AccessTokenTTLMinutes int
	ManagerPIN            string
	SaleRetryAttempts     int
}

func Load() Config {
	// Missing .env is fine; the environment may be set by the supervisor.
	_ = godotenv.Load()

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	ttl, err := strconv.Atoi(getEnv("STOCK_CACHE_TTL_SECONDS", "15"))
	if err != nil || ttl < 1 {
		ttl = 15
	}
	tokenTTL, err := strconv.Atoi(getEnv("ACCESS_TOKEN_TTL_MINUTES", "480"))
	if err != nil || tokenTTL < 1 {
		tokenTTL = 480
	}
	retries, err := strconv.Atoi(getEnv("SALE_RETRY_ATTEMPTS", "3"))
	if err != nil || retries < 1 {
		retries = 3
	}
	loyaltyRate, err := strconv.ParseFloat(getEnv("LOYALTY_RATE", "0.0001"), 64)
	if err != nil || loyaltyRate < 0 {
		loyaltyRate = 0.0001
	}

	cfg := Config{
		Port:                  getEnv("PORT", "8080"),
		AllowedOrigin:         getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		RedisAddr:             os.Getenv("REDIS_ADDR"),
		RedisPassword:         os.Getenv("REDIS_PASSWORD"),
		RedisDB:               redisDB,
		DefaultLocationID:     getEnv("DEFAULT_LOCATION_ID", "loc-pusat"),
		LoyaltyRate:           loyaltyRate,
		StockCacheTTLSeconds:  ttl,
		AuthSecret:            strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes: tokenTTL,
		ManagerPIN:            strings.TrimSpace(os.Getenv("MANAGER_PIN")),
		SaleRetryAttempts:     retries,
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}
