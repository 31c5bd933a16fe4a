package repo

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-cart/internal/catalog"
	"github.com/noah-isme/toko-cart/internal/coupon"
)

// SaveProduct upserts a product and replaces its tiers, surcharges and components.
func (s *Store) SaveProduct(ctx context.Context, p catalog.Product) error {
	return pgx.BeginFunc(ctx, s.Pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
INSERT INTO products (id, parent_id, number, name, manufacturer_id, category_ids, tax_class_id,
    shipping_class_id, delivery_days, weight, track_stock, allow_negative_stock, per_variant_stock,
    divisible, min_order_quantity, purchase_interval, max_order_quantity, price_on_request,
    required_properties, gift_threshold)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
ON CONFLICT (id) DO UPDATE SET
    parent_id = EXCLUDED.parent_id,
    number = EXCLUDED.number,
    name = EXCLUDED.name,
    manufacturer_id = EXCLUDED.manufacturer_id,
    category_ids = EXCLUDED.category_ids,
    tax_class_id = EXCLUDED.tax_class_id,
    shipping_class_id = EXCLUDED.shipping_class_id,
    delivery_days = EXCLUDED.delivery_days,
    weight = EXCLUDED.weight,
    track_stock = EXCLUDED.track_stock,
    allow_negative_stock = EXCLUDED.allow_negative_stock,
    per_variant_stock = EXCLUDED.per_variant_stock,
    divisible = EXCLUDED.divisible,
    min_order_quantity = EXCLUDED.min_order_quantity,
    purchase_interval = EXCLUDED.purchase_interval,
    max_order_quantity = EXCLUDED.max_order_quantity,
    price_on_request = EXCLUDED.price_on_request,
    required_properties = EXCLUDED.required_properties,
    gift_threshold = EXCLUDED.gift_threshold`,
			p.ID, p.ParentID, p.Number, p.Name, p.ManufacturerID, int64s(p.CategoryIDs), p.TaxClassID,
			p.ShippingClassID, p.DeliveryDays, p.Weight, p.TrackStock, p.AllowNegativeStock, p.PerVariantStock,
			p.Divisible, p.MinOrderQuantity, p.PurchaseInterval, p.MaxOrderQuantity, p.PriceOnRequest,
			int64s(p.RequiredProperties), p.GiftThreshold,
		)
		if err != nil {
			return fmt.Errorf("upsert product %d: %w", p.ID, err)
		}

		for _, table := range []string{"product_tiers", "product_surcharges", "product_components"} {
			if _, err := tx.Exec(ctx, `DELETE FROM `+table+` WHERE product_id = $1`, p.ID); err != nil {
				return fmt.Errorf("clear %s: %w", table, err)
			}
		}

		batch := &pgx.Batch{}
		for _, t := range p.Tiers {
			batch.Queue(`INSERT INTO product_tiers (product_id, customer_group_id, min_quantity, net_price) VALUES ($1, $2, $3, $4)`,
				p.ID, t.CustomerGroupID, t.MinQuantity, t.NetPrice)
		}
		for valueID, amount := range p.Surcharges {
			batch.Queue(`INSERT INTO product_surcharges (product_id, value_id, net_surcharge) VALUES ($1, $2, $3)`,
				p.ID, valueID, amount)
		}
		for _, c := range p.Components {
			batch.Queue(`INSERT INTO product_components (product_id, component_id, stock_factor, pack_size) VALUES ($1, $2, $3, $4)`,
				p.ID, c.ComponentID, orOne(c.StockFactor), orOne(c.PackSize))
		}
		if batch.Len() == 0 {
			return nil
		}
		return tx.SendBatch(ctx, batch).Close()
	})
}

// SetStock records the on-hand amount of a component.
func (s *Store) SetStock(ctx context.Context, componentID int64, qty decimal.Decimal) error {
	_, err := s.Pool.Exec(ctx, `
INSERT INTO stock_levels (component_id, on_hand) VALUES ($1, $2)
ON CONFLICT (component_id) DO UPDATE SET on_hand = EXCLUDED.on_hand`, componentID, qty)
	return err
}

// SetVariantStock records the on-hand amount of a variant value.
func (s *Store) SetVariantStock(ctx context.Context, productID, propertyID, valueID int64, qty decimal.Decimal) error {
	_, err := s.Pool.Exec(ctx, `
INSERT INTO variant_stock_levels (product_id, property_id, value_id, on_hand) VALUES ($1, $2, $3, $4)
ON CONFLICT (product_id, property_id, value_id) DO UPDATE SET on_hand = EXCLUDED.on_hand`,
		productID, propertyID, valueID, qty)
	return err
}

// SetTaxRate stores the rate of a tax class. An empty country applies everywhere.
func (s *Store) SetTaxRate(ctx context.Context, taxClassID int64, country string, rate decimal.Decimal) error {
	_, err := s.Pool.Exec(ctx, `
INSERT INTO tax_rates (tax_class_id, country, rate) VALUES ($1, $2, $3)
ON CONFLICT (tax_class_id, country) DO UPDATE SET rate = EXCLUDED.rate`,
		taxClassID, strings.ToUpper(country), rate)
	return err
}

// SetCurrency stores the conversion factor of a currency.
func (s *Store) SetCurrency(ctx context.Context, code string, factor decimal.Decimal) error {
	_, err := s.Pool.Exec(ctx, `
INSERT INTO currencies (code, factor) VALUES ($1, $2)
ON CONFLICT (code) DO UPDATE SET factor = EXCLUDED.factor`, strings.ToUpper(code), orOne(factor))
	return err
}

// SaveCoupon upserts a coupon keyed by its id and returns the stored id.
func (s *Store) SaveCoupon(ctx context.Context, c coupon.Coupon) (int64, error) {
	var id int64
	err := s.Pool.QueryRow(ctx, `
INSERT INTO coupons (id, code, name, kind, value_type, scope, value, active, valid_from, valid_to,
    usage_limit, used_count, min_order_value, product_numbers, manufacturer_ids, category_ids, customer_ids)
VALUES (COALESCE(NULLIF($1::bigint, 0), nextval('coupons_id_seq')), $2, $3, $4, $5, $6, $7, $8, $9, $10,
    $11, $12, $13, $14, $15, $16, $17)
ON CONFLICT (id) DO UPDATE SET
    code = EXCLUDED.code,
    name = EXCLUDED.name,
    kind = EXCLUDED.kind,
    value_type = EXCLUDED.value_type,
    scope = EXCLUDED.scope,
    value = EXCLUDED.value,
    active = EXCLUDED.active,
    valid_from = EXCLUDED.valid_from,
    valid_to = EXCLUDED.valid_to,
    usage_limit = EXCLUDED.usage_limit,
    min_order_value = EXCLUDED.min_order_value,
    product_numbers = EXCLUDED.product_numbers,
    manufacturer_ids = EXCLUDED.manufacturer_ids,
    category_ids = EXCLUDED.category_ids,
    customer_ids = EXCLUDED.customer_ids
RETURNING id`,
		c.ID, c.Code, c.Name, string(c.Kind), string(c.ValueType), string(c.Scope), c.Value, c.Active, c.ValidFrom, c.ValidTo,
		c.UsageLimit, c.UsedCount, c.MinOrderValue, strs(c.ProductNumbers), int64s(c.ManufacturerIDs), int64s(c.CategoryIDs), int64s(c.CustomerIDs),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("save coupon %q: %w", c.Code, err)
	}
	return id, nil
}

// int64s keeps NOT NULL array columns from receiving NULL.
func int64s(v []int64) []int64 {
	if v == nil {
		return []int64{}
	}
	return v
}

func strs(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

func orOne(d decimal.Decimal) decimal.Decimal {
	if d.IsZero() {
		return decimal.NewFromInt(1)
	}
	return d
}
