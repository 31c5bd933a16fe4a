// Package app builds the shared runtime dependencies of the cart binaries.
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	limiter "github.com/ulule/limiter/v3"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"

	"github.com/noah-isme/toko-cart/internal/cart"
	"github.com/noah-isme/toko-cart/internal/catalog"
	"github.com/noah-isme/toko-cart/internal/config"
	"github.com/noah-isme/toko-cart/internal/coupon"
	"github.com/noah-isme/toko-cart/internal/obs"
	"github.com/noah-isme/toko-cart/internal/pricing"
	"github.com/noah-isme/toko-cart/internal/repo"
	"github.com/noah-isme/toko-cart/internal/resilience"
	"github.com/noah-isme/toko-cart/internal/stock"
)

// Backends are the lookups the cart engines depend on.
type Backends struct {
	Catalog    catalog.Service
	Stock      stock.Source
	Tax        pricing.TaxService
	Currencies pricing.CurrencyService
	Coupons    coupon.Repository
	Store      *repo.Store
}

// Connect opens the Postgres pool with query tracing.
func Connect(ctx context.Context, cfg *config.Config, service string) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	poolConfig.ConnConfig.Tracer = obs.NewPGXTracer(cfg.ObsMetricsNamespace, nil)
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = service
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// Redis opens the Redis client with tracing and metrics instrumentation.
func Redis(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := redisotel.InstrumentTracing(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if err := redisotel.InstrumentMetrics(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis metrics")
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// NewBackends serves every lookup from Postgres when pool is set and from
// process memory otherwise. The catalog is fronted by the Redis cache.
func NewBackends(cfg *config.Config, pool *pgxpool.Pool, rdb *redis.Client, logger zerolog.Logger) Backends {
	var b Backends
	if pool != nil {
		breaker := resilience.NewBreaker("postgres", 10, 0.5, cfg.DBBreakerOpenFor).WithLogger(logger)
		store := repo.New(pool, breaker, logger)
		b = Backends{Catalog: store, Stock: store, Tax: store, Currencies: store, Coupons: store, Store: store}
	} else {
		rate := cfg.DefaultTaxRate
		b = Backends{
			Catalog:    catalog.NewMemory(),
			Stock:      stock.NewMemory(),
			Tax:        &pricing.StaticTax{Default: &rate},
			Currencies: pricing.StaticCurrencies(cfg.Currencies),
			Coupons:    coupon.NewMemory(),
		}
	}
	if rdb != nil {
		b.Catalog = &catalog.CachedService{
			Next:   b.Catalog,
			Cache:  catalog.NewCache(rdb, cfg.CatalogCacheTTL),
			Logger: logger.With().Str("component", "catalog_cache").Logger(),
		}
	}
	return b
}

// NewCouponLimiter counts coupon attempts per cart in Redis.
func NewCouponLimiter(rdb *redis.Client, perMinute int64) (*limiter.Limiter, error) {
	store, err := limiterredis.NewStoreWithOptions(rdb, limiter.StoreOptions{Prefix: "limiter:coupon"})
	if err != nil {
		return nil, fmt.Errorf("coupon limiter store: %w", err)
	}
	if perMinute <= 0 {
		perMinute = 10
	}
	return limiter.New(store, limiter.Rate{Period: time.Minute, Limit: perMinute}), nil
}

// CheckoutOptions are the shipping, payment and packaging choices offered to shoppers.
type CheckoutOptions struct {
	ShippingMethods []cart.ShippingMethod `json:"shippingMethods"`
	PaymentMethods  []cart.PaymentMethod  `json:"paymentMethods"`
	Packagings      []cart.Packaging      `json:"packagings"`
}

// LoadCheckoutOptions reads the options from a JSON file. An empty path yields
// one standard shipping method and prepayment.
func LoadCheckoutOptions(path string) (CheckoutOptions, error) {
	if path == "" {
		return CheckoutOptions{
			ShippingMethods: []cart.ShippingMethod{{ID: 1, Name: "Standard", NetPrice: decimal.RequireFromString("4.95"), FreeAbove: decimal.NewFromInt(50)}},
			PaymentMethods:  []cart.PaymentMethod{{ID: 1, Name: "Prepayment"}},
		}, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return CheckoutOptions{}, fmt.Errorf("read checkout options: %w", err)
	}
	var opts CheckoutOptions
	if err := json.Unmarshal(raw, &opts); err != nil {
		return CheckoutOptions{}, fmt.Errorf("decode checkout options: %w", err)
	}
	return opts, nil
}

// CartSettings assembles the cart settings from configuration and options.
func CartSettings(cfg *config.Config, opts CheckoutOptions) cart.Settings {
	return cart.Settings{
		Currencies:           cfg.Currencies,
		Country:              cfg.Country,
		BulkAcrossVariations: cfg.BulkAcrossVariations,
		PricesLoginOnly:      cfg.PricesLoginOnly,
		ShippingMethods:      opts.ShippingMethods,
		PaymentMethods:       opts.PaymentMethods,
		Packagings:           opts.Packagings,
	}
}
