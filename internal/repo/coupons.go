package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/noah-isme/toko-cart/internal/coupon"
)

const couponColumns = `
id, code, name, kind, value_type, scope, value::text, active, valid_from, valid_to,
usage_limit, used_count, min_order_value::text, product_numbers, manufacturer_ids,
category_ids, customer_ids`

func (s *Store) loadCoupon(ctx context.Context, where string, arg any) (coupon.Coupon, error) {
	var (
		c                      coupon.Coupon
		kind, valueType, scope string
	)
	err := s.queryRow(ctx, `SELECT `+couponColumns+` FROM coupons WHERE `+where, []any{arg},
		&c.ID, &c.Code, &c.Name, &kind, &valueType, &scope, &c.Value, &c.Active, &c.ValidFrom, &c.ValidTo,
		&c.UsageLimit, &c.UsedCount, &c.MinOrderValue, &c.ProductNumbers, &c.ManufacturerIDs,
		&c.CategoryIDs, &c.CustomerIDs,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return coupon.Coupon{}, coupon.ErrNotFound
		}
		return coupon.Coupon{}, err
	}
	c.Kind = coupon.Kind(kind)
	c.ValueType = coupon.ValueType(valueType)
	c.Scope = coupon.Scope(scope)
	return c, nil
}

// Find implements coupon.Repository.
func (s *Store) Find(ctx context.Context, id int64) (coupon.Coupon, error) {
	c, err := s.loadCoupon(ctx, `id = $1`, id)
	if err != nil && !errors.Is(err, coupon.ErrNotFound) {
		return coupon.Coupon{}, fmt.Errorf("find coupon %d: %w", id, err)
	}
	return c, err
}

// FindByCode implements coupon.Repository. Codes compare case-insensitively.
func (s *Store) FindByCode(ctx context.Context, code string) (coupon.Coupon, error) {
	c, err := s.loadCoupon(ctx, `LOWER(code) = LOWER($1)`, strings.TrimSpace(code))
	if err != nil && !errors.Is(err, coupon.ErrNotFound) {
		return coupon.Coupon{}, fmt.Errorf("find coupon by code: %w", err)
	}
	return c, err
}

// IncrementUsage implements coupon.Repository.
func (s *Store) IncrementUsage(ctx context.Context, id int64) error {
	tag, err := s.Pool.Exec(ctx, `UPDATE coupons SET used_count = used_count + 1 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("increment coupon usage: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrNotFound
	}
	return nil
}
