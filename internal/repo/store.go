// Package repo is the Postgres backing of the catalog, stock, tax, currency
// and coupon lookups the cart engines depend on.
package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-cart/internal/catalog"
	"github.com/noah-isme/toko-cart/internal/lineitem"
	"github.com/noah-isme/toko-cart/internal/pricing"
	"github.com/noah-isme/toko-cart/internal/resilience"
)

// Store implements catalog.Service, stock.Source, pricing.TaxService,
// pricing.CurrencyService and coupon.Repository on one pool.
// Reads go through Guard so a failing database trips the breaker instead of
// stalling every cart request.
type Store struct {
	Pool   *pgxpool.Pool
	Guard  resilience.Guard
	Logger zerolog.Logger
}

// New returns a store on pool guarded by breaker.
func New(pool *pgxpool.Pool, breaker *resilience.Breaker, logger zerolog.Logger) *Store {
	return &Store{
		Pool: pool,
		Guard: resilience.Guard{
			Breaker:     breaker,
			BaseBackoff: 25 * time.Millisecond,
			MaxAttempts: 2,
			Jitter:      0.2,
			Expected:    func(err error) bool { return errors.Is(err, pgx.ErrNoRows) },
		},
		Logger: logger.With().Str("component", "repo").Logger(),
	}
}

// queryRow scans one row under the guard.
func (s *Store) queryRow(ctx context.Context, q string, args []any, dest ...any) error {
	return s.Guard.Do(ctx, func(ctx context.Context) error {
		return s.Pool.QueryRow(ctx, q, args...).Scan(dest...)
	})
}

// queryRows runs q under the guard, calling scan once per row. A retried
// attempt starts from reset.
func (s *Store) queryRows(ctx context.Context, q string, args []any, reset func(), scan func(pgx.Rows) error) error {
	return s.Guard.Do(ctx, func(ctx context.Context) error {
		reset()
		rows, err := s.Pool.Query(ctx, q, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			if err := scan(rows); err != nil {
				return err
			}
		}
		return rows.Err()
	})
}

const productColumns = `
id, parent_id, number, name, manufacturer_id, category_ids, tax_class_id,
shipping_class_id, delivery_days, weight::text, track_stock, allow_negative_stock,
per_variant_stock, divisible, min_order_quantity::text, purchase_interval::text,
max_order_quantity::text, price_on_request, required_properties, gift_threshold::text`

// Product implements catalog.Service.
func (s *Store) Product(ctx context.Context, productID int64) (catalog.Product, error) {
	var p catalog.Product
	err := s.queryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, []any{productID},
		&p.ID, &p.ParentID, &p.Number, &p.Name, &p.ManufacturerID, &p.CategoryIDs, &p.TaxClassID,
		&p.ShippingClassID, &p.DeliveryDays, &p.Weight, &p.TrackStock, &p.AllowNegativeStock,
		&p.PerVariantStock, &p.Divisible, &p.MinOrderQuantity, &p.PurchaseInterval,
		&p.MaxOrderQuantity, &p.PriceOnRequest, &p.RequiredProperties, &p.GiftThreshold,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return catalog.Product{}, fmt.Errorf("product %d: %w", productID, catalog.ErrProductNotFound)
		}
		s.Logger.Error().Err(err).Int64("product_id", productID).Msg("load product")
		return catalog.Product{}, err
	}

	if p.Tiers, err = s.tiers(ctx, productID); err != nil {
		return catalog.Product{}, err
	}
	if p.Surcharges, err = s.surcharges(ctx, productID); err != nil {
		return catalog.Product{}, err
	}
	if p.Components, err = s.BackingComponents(ctx, productID); err != nil {
		return catalog.Product{}, err
	}
	return p, nil
}

func (s *Store) tiers(ctx context.Context, productID int64) ([]catalog.Tier, error) {
	var out []catalog.Tier
	err := s.queryRows(ctx, `
SELECT min_quantity::text, net_price::text, customer_group_id
FROM product_tiers
WHERE product_id = $1
ORDER BY customer_group_id, min_quantity`, []any{productID},
		func() { out = nil },
		func(rows pgx.Rows) error {
			var t catalog.Tier
			if err := rows.Scan(&t.MinQuantity, &t.NetPrice, &t.CustomerGroupID); err != nil {
				return err
			}
			out = append(out, t)
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("query tiers: %w", err)
	}
	return out, nil
}

func (s *Store) surcharges(ctx context.Context, productID int64) (map[int64]decimal.Decimal, error) {
	var out map[int64]decimal.Decimal
	err := s.queryRows(ctx, `SELECT value_id, net_surcharge::text FROM product_surcharges WHERE product_id = $1`, []any{productID},
		func() { out = make(map[int64]decimal.Decimal) },
		func(rows pgx.Rows) error {
			var (
				valueID int64
				amount  decimal.Decimal
			)
			if err := rows.Scan(&valueID, &amount); err != nil {
				return err
			}
			out[valueID] = amount
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("query surcharges: %w", err)
	}
	return out, nil
}

// TieredNetPrice implements catalog.Service.
func (s *Store) TieredNetPrice(ctx context.Context, productID int64, qty decimal.Decimal, attrs lineitem.Attributes, customerGroupID int64) (decimal.Decimal, error) {
	p, err := s.Product(ctx, productID)
	if err != nil {
		return decimal.Zero, err
	}
	return p.PriceFor(qty, attrs, customerGroupID), nil
}

// BackingComponents implements catalog.Service.
func (s *Store) BackingComponents(ctx context.Context, productID int64) ([]catalog.Component, error) {
	var out []catalog.Component
	err := s.queryRows(ctx, `
SELECT component_id, stock_factor::text, pack_size::text
FROM product_components
WHERE product_id = $1
ORDER BY component_id`, []any{productID},
		func() { out = nil },
		func(rows pgx.Rows) error {
			var c catalog.Component
			if err := rows.Scan(&c.ComponentID, &c.StockFactor, &c.PackSize); err != nil {
				return err
			}
			out = append(out, c)
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("query components: %w", err)
	}
	return out, nil
}

// OnHand implements stock.Source. Unknown components report zero.
func (s *Store) OnHand(ctx context.Context, componentID int64) (decimal.Decimal, error) {
	return s.onHand(ctx, `SELECT on_hand::text FROM stock_levels WHERE component_id = $1`, componentID)
}

// VariantOnHand implements stock.Source.
func (s *Store) VariantOnHand(ctx context.Context, productID, propertyID, valueID int64) (decimal.Decimal, error) {
	return s.onHand(ctx, `
SELECT on_hand::text FROM variant_stock_levels
WHERE product_id = $1 AND property_id = $2 AND value_id = $3`, productID, propertyID, valueID)
}

func (s *Store) onHand(ctx context.Context, q string, args ...any) (decimal.Decimal, error) {
	var qty decimal.Decimal
	if err := s.queryRow(ctx, q, args, &qty); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, nil
		}
		return decimal.Zero, fmt.Errorf("query stock: %w", err)
	}
	return qty, nil
}

// RateForClass implements pricing.TaxService. A country specific rate wins
// over the rate stored for the empty country.
func (s *Store) RateForClass(ctx context.Context, taxClassID int64, country string) (decimal.Decimal, error) {
	var rate decimal.Decimal
	err := s.queryRow(ctx, `
SELECT rate::text FROM tax_rates
WHERE tax_class_id = $1 AND country IN ($2, '')
ORDER BY country DESC
LIMIT 1`, []any{taxClassID, strings.ToUpper(country)}, &rate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, fmt.Errorf("class %d in %q: %w", taxClassID, country, pricing.ErrTaxClassUnknown)
		}
		return decimal.Zero, fmt.Errorf("query tax rate: %w", err)
	}
	return rate, nil
}

// ConversionFactor implements pricing.CurrencyService.
func (s *Store) ConversionFactor(ctx context.Context, code string) (decimal.Decimal, error) {
	var factor decimal.Decimal
	err := s.queryRow(ctx, `SELECT factor::text FROM currencies WHERE code = $1`, []any{strings.ToUpper(code)}, &factor)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, fmt.Errorf("%s: %w", code, pricing.ErrCurrencyUnknown)
		}
		return decimal.Zero, fmt.Errorf("query currency: %w", err)
	}
	if factor.IsZero() {
		return decimal.NewFromInt(1), nil
	}
	return factor, nil
}
