package catalog

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-cart/internal/lineitem"
)

// Memory is an in-process catalog used by tests, the seeder and single-node setups.
type Memory struct {
	mu       sync.RWMutex
	products map[int64]Product
}

// NewMemory returns a catalog preloaded with products.
func NewMemory(products ...Product) *Memory {
	m := &Memory{products: make(map[int64]Product, len(products))}
	for _, p := range products {
		m.products[p.ID] = p
	}
	return m
}

// Put inserts or replaces a product.
func (m *Memory) Put(p Product) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[p.ID] = p
}

// Product implements Service.
func (m *Memory) Product(_ context.Context, productID int64) (Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.products[productID]
	if !ok {
		return Product{}, fmt.Errorf("product %d: %w", productID, ErrProductNotFound)
	}
	return p, nil
}

// TieredNetPrice implements Service.
func (m *Memory) TieredNetPrice(ctx context.Context, productID int64, qty decimal.Decimal, attrs lineitem.Attributes, customerGroupID int64) (decimal.Decimal, error) {
	p, err := m.Product(ctx, productID)
	if err != nil {
		return decimal.Zero, err
	}
	return p.PriceFor(qty, attrs, customerGroupID), nil
}

// BackingComponents implements Service.
func (m *Memory) BackingComponents(ctx context.Context, productID int64) ([]Component, error) {
	p, err := m.Product(ctx, productID)
	if err != nil {
		return nil, err
	}
	return append([]Component(nil), p.Components...), nil
}
