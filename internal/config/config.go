package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	CORSAllowedOrigins []string
	PublicBaseURL      string

	StripeSecretKey     string
	StripeWebhookSecret string
	StripeBaseURL       string
	CurrencyCode        string

	TaxRegionCode string
	TaxRegionName string
	TaxRateBPS    int

	LegacyFlatShipping    int64
	LegacyFreeShippingMin int64

	OrderNumberPrefix      string
	OrderNumberMin         int
	OrderNumberMax         int
	OrderNumberMaxAttempts int

	IngestTimeout        time.Duration
	WebhookReplayTTL     time.Duration
	WebhookTimestampSkew time.Duration
	IdempotencyTTL       time.Duration
	CatalogCacheTTL      time.Duration

	QuoteRateLimitMax       int
	QuoteRateLimitWindow    time.Duration
	CheckoutRateLimitMax    int
	CheckoutRateLimitWindow time.Duration
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL:        k.String("DATABASE_URL"),
		RedisURL:           k.String("REDIS_URL"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		PublicBaseURL:      valueOrDefault(k.String("PUBLIC_BASE_URL"), "http://localhost:3000"),

		StripeSecretKey:     k.String("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: k.String("STRIPE_WEBHOOK_SECRET"),
		StripeBaseURL:       k.String("STRIPE_BASE_URL"),
		CurrencyCode:        valueOrDefault(k.String("CURRENCY_CODE"), "usd"),

		TaxRegionCode: strings.ToUpper(valueOrDefault(k.String("TAX_REGION_CODE"), "MD")),
		TaxRegionName: strings.ToUpper(valueOrDefault(k.String("TAX_REGION_NAME"), "MARYLAND")),
		TaxRateBPS:    parseInt(k.String("TAX_RATE_BPS"), 600),

		LegacyFlatShipping:    parseInt64(k.String("SHIPPING_LEGACY_FLAT_CENTS"), 500),
		LegacyFreeShippingMin: parseInt64(k.String("SHIPPING_LEGACY_FREE_MIN_CENTS"), 5000),

		OrderNumberPrefix:      valueOrDefault(k.String("ORDER_NUMBER_PREFIX"), "GC-"),
		OrderNumberMin:         parseInt(k.String("ORDER_NUMBER_MIN"), 10000),
		OrderNumberMax:         parseInt(k.String("ORDER_NUMBER_MAX"), 99999),
		OrderNumberMaxAttempts: parseInt(k.String("ORDER_NUMBER_MAX_ATTEMPTS"), 50),

		IngestTimeout:        parseDuration(k.String("INGEST_TIMEOUT"), "10s"),
		WebhookReplayTTL:     parseDuration(k.String("WEBHOOK_REPLAY_TTL"), "24h"),
		WebhookTimestampSkew: parseDuration(k.String("WEBHOOK_TIMESTAMP_SKEW"), "5m"),
		IdempotencyTTL:       parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		CatalogCacheTTL:      parseDuration(k.String("CATALOG_CACHE_TTL"), "30s"),

		QuoteRateLimitMax:       parseInt(k.String("RATELIMIT_QUOTE_MAX"), 60),
		QuoteRateLimitWindow:    parseDuration(k.String("RATELIMIT_QUOTE_WINDOW"), "1m"),
		CheckoutRateLimitMax:    parseInt(k.String("RATELIMIT_CHECKOUT_MAX"), 10),
		CheckoutRateLimitWindow: parseDuration(k.String("RATELIMIT_CHECKOUT_WINDOW"), "1m"),
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.TaxRateBPS < 0 {
		return nil, errors.New("TAX_RATE_BPS must not be negative")
	}
	if cfg.OrderNumberMin >= cfg.OrderNumberMax {
		return nil, errors.New("ORDER_NUMBER_MIN must be below ORDER_NUMBER_MAX")
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseInt(value string, fallback int) int {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(trimmed)
	if err != nil {
		return fallback
	}
	return parsed
}

func parseInt64(value string, fallback int64) int64 {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
