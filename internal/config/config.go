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
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-cart/internal/money"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	JWTSecret          string
	JWTIssuer          string
	CORSAllowedOrigins []string

	CartTTL              time.Duration
	CartLockTTL          time.Duration
	Currencies           []money.Currency
	Country              string
	BulkAcrossVariations bool
	PricesLoginOnly      bool
	CatalogCacheTTL      time.Duration
	CouponAttemptsPerMin int64
	CSRFMaxAge           time.Duration
	DefaultTaxRate       decimal.Decimal
	AsynqConcurrency     int
	IdempotencyTTL       time.Duration
	MutationRateWindow   time.Duration
	MutationRateMax      int
	DBBreakerOpenFor     time.Duration
	ObsTracingSampling   float64
	CheckoutOptionsFile  string
	ObsLogFormat         string
	ObsLogLevel          string
	ObsMetricsNamespace  string
	ObsEnableTracing     bool
	ObsOTLPEndpoint      string
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	currencies, err := money.ParseCurrencies(valueOrDefault(k.String("CART_CURRENCIES"), "EUR:de-DE"), k.String("CART_DEFAULT_CURRENCY"))
	if err != nil {
		return nil, fmt.Errorf("CART_CURRENCIES: %w", err)
	}
	precision := parseInt(k.String("CART_DISPLAY_PRECISION"), int64(money.DefaultPrecision))
	for i := range currencies {
		currencies[i].Precision = int32(precision)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL:        k.String("DATABASE_URL"),
		RedisURL:           k.String("REDIS_URL"),
		JWTSecret:          k.String("JWT_SECRET"),
		JWTIssuer:          k.String("JWT_ISSUER"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),

		CartTTL:              parseDuration(k.String("CART_TTL"), "168h"),
		CartLockTTL:          parseDuration(k.String("CART_LOCK_TTL"), "10s"),
		Currencies:           currencies,
		Country:              strings.ToUpper(valueOrDefault(k.String("CART_COUNTRY"), "DE")),
		BulkAcrossVariations: parseBool(k.String("CART_BULK_PRICE_ACROSS_VARIATIONS")),
		PricesLoginOnly:      parseBool(k.String("CART_PRICES_LOGIN_ONLY")),
		CatalogCacheTTL:      parseDuration(k.String("CATALOG_CACHE_TTL"), "5m"),
		CouponAttemptsPerMin: parseInt(k.String("COUPON_ATTEMPTS_PER_MINUTE"), 10),
		CSRFMaxAge:           parseDuration(k.String("CSRF_MAX_AGE"), "2h"),
		DefaultTaxRate:       parseDecimal(k.String("CART_DEFAULT_TAX_RATE"), "19"),
		AsynqConcurrency:     int(parseInt(k.String("ASYNQ_CONCURRENCY"), 10)),
		IdempotencyTTL:       parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		MutationRateWindow:   parseDuration(k.String("CART_RATE_WINDOW"), "1m"),
		MutationRateMax:      int(parseInt(k.String("CART_RATE_MAX"), 120)),
		DBBreakerOpenFor:     parseDuration(k.String("DB_BREAKER_OPEN_FOR"), "15s"),
		CheckoutOptionsFile:  k.String("CART_CHECKOUT_OPTIONS_FILE"),
		ObsTracingSampling:   parseDecimal(k.String("OBS_TRACING_SAMPLING_RATIO"), "1").InexactFloat64(),
		ObsLogFormat:         valueOrDefault(k.String("OBS_LOG_FORMAT"), "json"),
		ObsLogLevel:          valueOrDefault(k.String("OBS_LOG_LEVEL"), "info"),
		ObsMetricsNamespace:  valueOrDefault(k.String("OBS_METRICS_NAMESPACE"), "toko_cart"),
		ObsEnableTracing:     parseBool(k.String("OBS_ENABLE_TRACING")),
		ObsOTLPEndpoint:      k.String("OBS_OTLP_ENDPOINT"),
	}

	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if precision < 0 || precision > 4 {
		return nil, fmt.Errorf("CART_DISPLAY_PRECISION must be between 0 and 4, got %d", precision)
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

// IsProduction reports whether the service runs with production defaults.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.AppEnv, "production")
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

func parseInt(value string, fallback int64) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func parseDecimal(value, fallback string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return decimal.RequireFromString(fallback)
	}
	return d
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
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
