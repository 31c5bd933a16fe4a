package coupon

import (
	"context"
	"strings"
	"sync"
)

// Memory is an in-process Repository.
type Memory struct {
	mu      sync.RWMutex
	coupons map[int64]Coupon
}

// NewMemory returns a repository holding coupons.
func NewMemory(coupons ...Coupon) *Memory {
	m := &Memory{coupons: make(map[int64]Coupon, len(coupons))}
	for _, c := range coupons {
		m.coupons[c.ID] = c
	}
	return m
}

// Find implements Repository.
func (m *Memory) Find(_ context.Context, id int64) (Coupon, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.coupons[id]
	if !ok {
		return Coupon{}, ErrNotFound
	}
	return c, nil
}

// FindByCode implements Repository. Codes compare case-insensitively.
func (m *Memory) FindByCode(_ context.Context, code string) (Coupon, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.coupons {
		if strings.EqualFold(c.Code, strings.TrimSpace(code)) {
			return c, nil
		}
	}
	return Coupon{}, ErrNotFound
}

// IncrementUsage implements Repository.
func (m *Memory) IncrementUsage(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.coupons[id]
	if !ok {
		return ErrNotFound
	}
	c.UsedCount++
	m.coupons[id] = c
	return nil
}
