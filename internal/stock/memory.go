package stock

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"
)

type variantRef struct {
	productID, propertyID, valueID int64
}

// Memory is an in-process stock snapshot.
type Memory struct {
	mu       sync.RWMutex
	onHand   map[int64]decimal.Decimal
	variants map[variantRef]decimal.Decimal
}

// NewMemory returns an empty snapshot. Unknown components report zero stock.
func NewMemory() *Memory {
	return &Memory{
		onHand:   make(map[int64]decimal.Decimal),
		variants: make(map[variantRef]decimal.Decimal),
	}
}

// Set records the on-hand amount of a component.
func (m *Memory) Set(componentID int64, qty decimal.Decimal) *Memory {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onHand[componentID] = qty
	return m
}

// SetVariant records the on-hand amount of a variant value.
func (m *Memory) SetVariant(productID, propertyID, valueID int64, qty decimal.Decimal) *Memory {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.variants[variantRef{productID, propertyID, valueID}] = qty
	return m
}

// OnHand implements Source.
func (m *Memory) OnHand(_ context.Context, componentID int64) (decimal.Decimal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.onHand[componentID], nil
}

// VariantOnHand implements Source.
func (m *Memory) VariantOnHand(_ context.Context, productID, propertyID, valueID int64) (decimal.Decimal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.variants[variantRef{productID, propertyID, valueID}], nil
}
