package cart_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-cart/internal/cart"
	"github.com/noah-isme/toko-cart/internal/catalog"
	"github.com/noah-isme/toko-cart/internal/coupon"
	"github.com/noah-isme/toko-cart/internal/money"
	"github.com/noah-isme/toko-cart/internal/pricing"
	"github.com/noah-isme/toko-cart/internal/stock"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

var eur = money.Currency{Code: "EUR", Locale: "de-DE", Symbol: "€", Factor: dec("1"), Precision: 2, Default: true}

const (
	shirtID    = 1
	mugID      = 2
	posterID   = 3
	strapID    = 4
	sizeProp   = 9
	sizeSmall  = 100
	sizeLarge  = 101
	welcome    = 50
	welcomeStr = "WELCOME5"
	bigID      = 51
	springID   = 52
)

func products() []catalog.Product {
	return []catalog.Product{
		{
			ID: shirtID, Number: "SHIRT", Name: "Shirt", TaxClassID: 1,
			Tiers:      []catalog.Tier{{MinQuantity: dec("1"), NetPrice: dec("10")}},
			Surcharges: map[int64]decimal.Decimal{sizeLarge: dec("2")},
		},
		{
			ID: mugID, Number: "MUG", Name: "Mug", TaxClassID: 1, TrackStock: true,
			Tiers: []catalog.Tier{{MinQuantity: dec("1"), NetPrice: dec("5")}},
		},
		{
			ID: posterID, Number: "POSTER", Name: "Poster", TaxClassID: 2,
			RequiredProperties: []int64{sizeProp},
			Tiers:              []catalog.Tier{{MinQuantity: dec("1"), NetPrice: dec("20")}},
		},
		{
			ID: strapID, Number: "STRAP", Name: "Strap", TaxClassID: 1,
			Tiers: []catalog.Tier{{MinQuantity: dec("1"), NetPrice: dec("1")}},
		},
	}
}

func welcomeCoupon() coupon.Coupon {
	return coupon.Coupon{
		ID: welcome, Code: welcomeStr, Name: "Welcome", Active: true,
		ValueType: coupon.ValueFixed, Scope: coupon.ScopeEntireCart,
		Value: dec("5"), MinOrderValue: dec("50"),
	}
}

func extraCoupons() []coupon.Coupon {
	return []coupon.Coupon{
		{
			ID: bigID, Code: "BIG", Name: "Big", Active: true,
			ValueType: coupon.ValueFixed, Scope: coupon.ScopeEntireCart, Value: dec("50"),
		},
		{
			ID: springID, Code: "SPRING", Name: "Spring", Active: true,
			ValueType: coupon.ValuePercent, Scope: coupon.ScopeEntireCart, Value: dec("20"),
		},
	}
}

type fixture struct {
	svc     *cart.Service
	catalog *catalog.Memory
	store   *memStore
	coupons *coupon.Memory
	stock   *stock.Memory
}

func newFixture(opts ...func(*cart.Settings)) *fixture {
	cat := catalog.NewMemory(products()...)
	onHand := stock.NewMemory().Set(mugID, dec("5"))
	coupons := coupon.NewMemory(append(extraCoupons(), welcomeCoupon())...)
	store := newMemStore()
	settings := cart.Settings{Currencies: []money.Currency{eur}, Country: "DE"}
	for _, opt := range opts {
		opt(&settings)
	}
	return &fixture{
		svc: &cart.Service{
			Catalog: cat,
			Stock:   &stock.Engine{Catalog: cat, Stock: onHand},
			Pricing: &pricing.Engine{
				Catalog: cat,
				Tax:     pricing.NewStaticTax(map[int64]decimal.Decimal{1: dec("19"), 2: dec("7")}),
			},
			Coupons:  &coupon.Engine{Repo: coupons, Clock: func() time.Time { return fixedNow }},
			Store:    store,
			Settings: settings,
			Now:      func() time.Time { return fixedNow },
		},
		catalog: cat,
		store:   store,
		coupons: coupons,
		stock:   onHand,
	}
}

type memStore struct {
	mu    sync.Mutex
	carts map[string]*cart.Cart
	fail  error
}

func newMemStore() *memStore {
	return &memStore{carts: make(map[string]*cart.Cart)}
}

func (m *memStore) Load(_ context.Context, id string) (*cart.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.carts[id]
	if !ok {
		return nil, cart.ErrNotFound
	}
	return c.Clone(), nil
}

func (m *memStore) Save(_ context.Context, c *cart.Cart) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.carts[c.ID] = c.Clone()
	return nil
}

func (m *memStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.carts, id)
	return nil
}

var errStoreDown = errors.New("store down")

type usageRecorder struct {
	calls []int64
}

func (u *usageRecorder) RecordCouponUsage(_ context.Context, couponID int64, _ string) error {
	u.calls = append(u.calls, couponID)
	return nil
}
