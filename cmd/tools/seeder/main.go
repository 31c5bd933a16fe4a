package main

import (
	"context"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-cart/internal/app"
	"github.com/noah-isme/toko-cart/internal/catalog"
	"github.com/noah-isme/toko-cart/internal/config"
	"github.com/noah-isme/toko-cart/internal/coupon"
	"github.com/noah-isme/toko-cart/internal/obs"
	"github.com/noah-isme/toko-cart/internal/repo"
	"github.com/noah-isme/toko-cart/internal/resilience"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger := obs.NewLogger(cfg.ObsLogFormat, cfg.ObsLogLevel).With().Str("component", "seeder").Logger()
	if cfg.DatabaseURL == "" {
		logger.Fatal().Msg("DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := repo.Migrate(ctx, cfg.DatabaseURL); err != nil {
		logger.Fatal().Err(err).Msg("migrate")
	}
	pool, err := app.Connect(ctx, cfg, "toko-cart-seeder")
	if err != nil {
		logger.Fatal().Err(err).Msg("database")
	}
	defer pool.Close()

	store := repo.New(pool, resilience.NewBreaker("postgres", 10, 0.5, cfg.DBBreakerOpenFor), logger)

	seedTax(ctx, store, logger)
	seedCatalog(ctx, store, logger)
	seedCoupons(ctx, store, logger)

	logger.Info().Msg("seeding completed")
}

func seedTax(ctx context.Context, store *repo.Store, logger zerolog.Logger) {
	rates := []struct {
		class   int64
		country string
		rate    string
	}{
		{1, "", "19"},
		{2, "", "7"},
		{1, "AT", "20"},
		{2, "AT", "10"},
	}
	for _, r := range rates {
		if err := store.SetTaxRate(ctx, r.class, r.country, decimal.RequireFromString(r.rate)); err != nil {
			logger.Fatal().Err(err).Int64("tax_class_id", r.class).Msg("seed tax rate")
		}
	}
	for code, factor := range map[string]string{"EUR": "1", "USD": "1.08", "CHF": "0.95"} {
		if err := store.SetCurrency(ctx, code, decimal.RequireFromString(factor)); err != nil {
			logger.Fatal().Err(err).Str("currency", code).Msg("seed currency")
		}
	}
}

func seedCatalog(ctx context.Context, store *repo.Store, logger zerolog.Logger) {
	one := decimal.NewFromInt(1)
	products := []catalog.Product{
		{
			ID: 100, Number: "TSHIRT", Name: "T-Shirt", TaxClassID: 1, ManufacturerID: 1,
			CategoryIDs: []int64{10}, DeliveryDays: 2, Weight: decimal.RequireFromString("0.2"),
			TrackStock: true, PerVariantStock: true, RequiredProperties: []int64{1},
			MinOrderQuantity: one, PurchaseInterval: one,
			Tiers: []catalog.Tier{
				{MinQuantity: one, NetPrice: decimal.RequireFromString("15.00")},
				{MinQuantity: decimal.NewFromInt(10), NetPrice: decimal.RequireFromString("12.50")},
				{MinQuantity: one, NetPrice: decimal.RequireFromString("13.00"), CustomerGroupID: 2},
			},
			Surcharges: map[int64]decimal.Decimal{12: decimal.RequireFromString("2.00")},
		},
		{
			ID: 200, Number: "MUG", Name: "Coffee Mug", TaxClassID: 1, ManufacturerID: 2,
			CategoryIDs: []int64{20}, DeliveryDays: 3, Weight: decimal.RequireFromString("0.4"),
			TrackStock: true, MinOrderQuantity: one, PurchaseInterval: one,
			MaxOrderQuantity: decimal.NewFromInt(20),
			Tiers:            []catalog.Tier{{MinQuantity: one, NetPrice: decimal.RequireFromString("8.40")}},
			Components:       []catalog.Component{{ComponentID: 200, StockFactor: one, PackSize: one}},
		},
		{
			ID: 300, Number: "COFFEE", Name: "Coffee Beans", TaxClassID: 2, ManufacturerID: 2,
			CategoryIDs: []int64{20, 30}, DeliveryDays: 1, Weight: one, Divisible: true,
			MinOrderQuantity: decimal.RequireFromString("0.25"), PurchaseInterval: decimal.RequireFromString("0.25"),
			Tiers: []catalog.Tier{{MinQuantity: decimal.Zero, NetPrice: decimal.RequireFromString("18.00")}},
		},
		{
			ID: 400, Number: "GIFT", Name: "Sticker Set", TaxClassID: 1,
			GiftThreshold: decimal.NewFromInt(40), MinOrderQuantity: one, PurchaseInterval: one,
		},
	}
	for _, p := range products {
		if err := store.SaveProduct(ctx, p); err != nil {
			logger.Fatal().Err(err).Int64("product_id", p.ID).Msg("seed product")
		}
	}

	if err := store.SetStock(ctx, 200, decimal.NewFromInt(25)); err != nil {
		logger.Fatal().Err(err).Msg("seed stock")
	}
	for valueID, qty := range map[int64]int64{11: 5, 12: 3} {
		if err := store.SetVariantStock(ctx, 100, 1, valueID, decimal.NewFromInt(qty)); err != nil {
			logger.Fatal().Err(err).Int64("value_id", valueID).Msg("seed variant stock")
		}
	}
	logger.Info().Int("products", len(products)).Msg("catalog seeded")
}

func seedCoupons(ctx context.Context, store *repo.Store, logger zerolog.Logger) {
	validTo := time.Now().AddDate(1, 0, 0)
	coupons := []coupon.Coupon{
		{
			ID: 1001, Code: "WELCOME10", Name: "10% off", Kind: coupon.KindNewCustomer,
			ValueType: coupon.ValuePercent, Scope: coupon.ScopeEntireCart,
			Value: decimal.NewFromInt(10), Active: true, ValidTo: &validTo,
		},
		{
			ID: 1002, Code: "MUGS5", Name: "5 off mugs", Kind: coupon.KindStandard,
			ValueType: coupon.ValueFixed, Scope: coupon.ScopeMatchingLines,
			Value: decimal.NewFromInt(5), Active: true, UsageLimit: 100,
			ProductNumbers: []string{"MUG"}, MinOrderValue: decimal.NewFromInt(10),
		},
		{
			ID: 1003, Code: "FREESHIP", Name: "Free shipping", Kind: coupon.KindShippingOnly,
			ValueType: coupon.ValuePercent, Scope: coupon.ScopeEntireCart,
			Value: decimal.NewFromInt(100), Active: true,
		},
	}
	for _, c := range coupons {
		id, err := store.SaveCoupon(ctx, c)
		if err != nil {
			logger.Fatal().Err(err).Str("code", c.Code).Msg("seed coupon")
		}
		logger.Info().Int64("coupon_id", id).Str("code", c.Code).Msg("coupon seeded")
	}
}
