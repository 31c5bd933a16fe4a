// Package cart owns the ordered line collection of a shopping cart and
// sequences the stock, pricing and coupon engines on every mutation.
package cart

import (
	"errors"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-cart/internal/lineitem"
	"github.com/noah-isme/toko-cart/internal/pricing"
)

var (
	// ErrNotFound indicates the requested cart could not be located.
	ErrNotFound = errors.New("cart not found")
	// ErrInvalidInput is returned when the provided payload is invalid.
	ErrInvalidInput = errors.New("invalid input")
	// ErrLineNotFound indicates a line id that is not part of the cart.
	ErrLineNotFound = errors.New("cart line not found")
)

// ShippingMethod is a selectable delivery option.
type ShippingMethod struct {
	ID           int64           `json:"id"`
	Name         string          `json:"name"`
	NetPrice     decimal.Decimal `json:"netPrice"`
	FreeAbove    decimal.Decimal `json:"freeAbove"`
	Surcharge    decimal.Decimal `json:"surcharge"`
	TaxClassID   int64           `json:"taxClassId,omitempty"`
	Countries    []string        `json:"countries,omitempty"`
	DeliveryDays int             `json:"deliveryDays,omitempty"`
}

// PaymentMethod is a selectable payment option.
type PaymentMethod struct {
	ID               int64           `json:"id"`
	Name             string          `json:"name"`
	Surcharge        decimal.Decimal `json:"surcharge"`
	SurchargePercent decimal.Decimal `json:"surchargePercent"`
	Fee              decimal.Decimal `json:"fee"`
	CashOnDelivery   bool            `json:"cashOnDelivery"`
	CODFee           decimal.Decimal `json:"codFee"`
	TaxClassID       int64           `json:"taxClassId,omitempty"`
}

// Packaging is an optional gift wrap.
type Packaging struct {
	ID         int64           `json:"id"`
	Name       string          `json:"name"`
	NetPrice   decimal.Decimal `json:"netPrice"`
	FreeAbove  decimal.Decimal `json:"freeAbove"`
	TaxClassID int64           `json:"taxClassId,omitempty"`
}

// FreeGift is a zero priced product granted above a goods threshold.
type FreeGift struct {
	ProductID int64           `json:"productId"`
	Name      string          `json:"name"`
	Threshold decimal.Decimal `json:"threshold"`
}

// Context replaces session state: everything the engines need besides the lines.
type Context struct {
	CustomerID      int64           `json:"customerId,omitempty"`
	CustomerGroupID int64           `json:"customerGroupId,omitempty"`
	Country         string          `json:"country,omitempty"`
	NewCustomer     bool            `json:"newCustomer,omitempty"`
	CouponID        int64           `json:"couponId,omitempty"`
	Shipping        *ShippingMethod `json:"shipping,omitempty"`
	Payment         *PaymentMethod  `json:"payment,omitempty"`
	Packaging       *Packaging      `json:"packaging,omitempty"`
	FreeGift        *FreeGift       `json:"freeGift,omitempty"`
	VoucherCredit   decimal.Decimal `json:"voucherCredit"`
}

// Cart is the aggregate root.
type Cart struct {
	ID                 string                     `json:"id"`
	Currency           string                     `json:"currency"`
	Lines              lineitem.Lines             `json:"lines"`
	Context            Context                    `json:"context"`
	Checksum           string                     `json:"checksum"`
	FavourableShipping *ShippingMethod            `json:"favourableShipping,omitempty"`
	Totals             map[string]pricing.Summary `json:"totals,omitempty"`
	Clock              int64                      `json:"clock"`
	UpdatedAt          time.Time                  `json:"updatedAt"`
}

// New returns an empty cart.
func New(id, currency string, customerID int64) *Cart {
	return &Cart{ID: id, Currency: currency, Context: Context{CustomerID: customerID}}
}

// Clone deep copies the cart so rejected mutations leave the original intact.
func (c *Cart) Clone() *Cart {
	out := *c
	out.Lines = c.Lines.Clone()
	if c.FavourableShipping != nil {
		fav := *c.FavourableShipping
		out.FavourableShipping = &fav
	}
	if c.Totals != nil {
		out.Totals = make(map[string]pricing.Summary, len(c.Totals))
		for k, v := range c.Totals {
			out.Totals[k] = v
		}
	}
	return &out
}

// Weight sums the weights of product and bundle lines.
func (c *Cart) Weight() decimal.Decimal {
	return c.Lines.Weight()
}

// HasProducts reports whether at least one Product line remains.
func (c *Cart) HasProducts() bool {
	return c.Lines.HasProducts()
}

func (c *Cart) tick() int64 {
	c.Clock++
	return c.Clock
}

// reset turns the cart into a fresh instance. Only the owner identity survives.
func (c *Cart) reset() {
	owner := c.Context
	*c = Cart{
		ID:       c.ID,
		Currency: c.Currency,
		Clock:    c.Clock,
		Context: Context{
			CustomerID:      owner.CustomerID,
			CustomerGroupID: owner.CustomerGroupID,
			Country:         owner.Country,
			NewCustomer:     owner.NewCustomer,
		},
	}
}

// SortShippingLast moves shipping-class lines behind every other line, keeping
// the relative order inside both partitions.
func SortShippingLast(lines lineitem.Lines) lineitem.Lines {
	out := append(lineitem.Lines(nil), lines...)
	sort.SliceStable(out, func(i, j int) bool {
		return !out[i].Kind.IsShippingClass() && out[j].Kind.IsShippingClass()
	})
	return out
}

// mergeTarget returns the index of the line a new product request merges into, or -1.
func mergeTarget(lines lineitem.Lines, candidate lineitem.Line) int {
	for i, l := range lines {
		if l.Kind != candidate.Kind || l.ProductID != candidate.ProductID {
			continue
		}
		if l.GroupToken != "" || candidate.GroupToken != "" {
			continue
		}
		if l.Attributes.Equal(candidate.Attributes) {
			return i
		}
	}
	return -1
}
