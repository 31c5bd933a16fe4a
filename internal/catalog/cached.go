package catalog

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-cart/internal/lineitem"
)

// CachedService serves product master data from Redis and falls back to the
// wrapped catalog. Prices are evaluated from the cached tier table, so a cart
// recompute costs one Redis round trip per distinct product.
type CachedService struct {
	Next   Service
	Cache  *Cache
	Logger zerolog.Logger
}

// Product implements Service.
func (s *CachedService) Product(ctx context.Context, productID int64) (Product, error) {
	p, hit, err := s.Cache.Get(ctx, productID)
	if err != nil {
		s.Logger.Warn().Err(err).Int64("product_id", productID).Msg("catalog cache read failed")
	}
	if hit {
		return p, nil
	}
	p, err = s.Next.Product(ctx, productID)
	if err != nil {
		return Product{}, err
	}
	if err := s.Cache.Put(ctx, p); err != nil {
		s.Logger.Warn().Err(err).Int64("product_id", productID).Msg("catalog cache write failed")
	}
	return p, nil
}

// TieredNetPrice implements Service.
func (s *CachedService) TieredNetPrice(ctx context.Context, productID int64, qty decimal.Decimal, attrs lineitem.Attributes, customerGroupID int64) (decimal.Decimal, error) {
	p, err := s.Product(ctx, productID)
	if err != nil {
		return decimal.Zero, err
	}
	return p.PriceFor(qty, attrs, customerGroupID), nil
}

// BackingComponents implements Service.
func (s *CachedService) BackingComponents(ctx context.Context, productID int64) ([]Component, error) {
	p, err := s.Product(ctx, productID)
	if err != nil {
		return nil, err
	}
	return append([]Component(nil), p.Components...), nil
}
