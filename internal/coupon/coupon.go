// Package coupon decides whether a promotional coupon applies to a cart and
// rewrites the cart lines accordingly.
package coupon

import (
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-cart/internal/lineitem"
	"github.com/noah-isme/toko-cart/internal/money"
)

var (
	// ErrNotFound is returned when the coupon does not exist.
	ErrNotFound = errors.New("coupon not found")
	// ErrInactive is returned when the coupon is switched off.
	ErrInactive = errors.New("coupon not active")
	// ErrNotStarted is returned before the validity window opens.
	ErrNotStarted = errors.New("coupon not yet valid")
	// ErrExpired is returned after the validity window closed.
	ErrExpired = errors.New("coupon expired")
	// ErrUsageLimitReached indicates the coupon has exhausted its usage quota.
	ErrUsageLimitReached = errors.New("coupon usage limit reached")
	// ErrMinimumOrderUnmet indicates the eligible subtotal is below the minimum order value.
	ErrMinimumOrderUnmet = errors.New("coupon minimum order value not met")
	// ErrNoMatchingLine indicates an allow-list is not matched by any cart line.
	ErrNoMatchingLine = errors.New("coupon matches no cart line")
	// ErrCustomerNotAllowed indicates the customer is not on the allow-list.
	ErrCustomerNotAllowed = errors.New("coupon not allowed for customer")
	// ErrNewCustomersOnly indicates a new-customer coupon used by a returning customer.
	ErrNewCustomersOnly = errors.New("coupon reserved for new customers")
)

// ValueType selects how Value is interpreted.
type ValueType string

const (
	ValuePercent ValueType = "percent"
	ValueFixed   ValueType = "fixed"
)

// Scope selects which lines the value is measured against.
type Scope string

const (
	ScopeEntireCart    Scope = "entire_cart"
	ScopeMatchingLines Scope = "matching_lines"
)

// Kind distinguishes value coupons from shipping coupons.
type Kind string

const (
	KindStandard     Kind = "standard"
	KindShippingOnly Kind = "shipping_only"
	KindNewCustomer  Kind = "new_customer"
)

// Coupon is the promotional rule as stored by the repository. Value is a
// percentage for ValuePercent and a net amount in the default currency otherwise.
type Coupon struct {
	ID              int64           `json:"id"`
	Code            string          `json:"code"`
	Name            string          `json:"name"`
	Kind            Kind            `json:"kind"`
	ValueType       ValueType       `json:"valueType"`
	Scope           Scope           `json:"scope"`
	Value           decimal.Decimal `json:"value"`
	Active          bool            `json:"active"`
	ValidFrom       *time.Time      `json:"validFrom,omitempty"`
	ValidTo         *time.Time      `json:"validTo,omitempty"`
	UsageLimit      int             `json:"usageLimit"`
	UsedCount       int             `json:"usedCount"`
	MinOrderValue   decimal.Decimal `json:"minOrderValue"`
	ProductNumbers  []string        `json:"productNumbers,omitempty"`
	ManufacturerIDs []int64         `json:"manufacturerIds,omitempty"`
	CategoryIDs     []int64         `json:"categoryIds,omitempty"`
	CustomerIDs     []int64         `json:"customerIds,omitempty"`
}

// Customer is the part of the cart owner the eligibility rules look at.
type Customer struct {
	ID          int64
	NewCustomer bool
}

// Validate checks the rule state at now, independent of any cart.
func (c Coupon) Validate(now time.Time) error {
	if !c.Active {
		return ErrInactive
	}
	if c.ValidFrom != nil && now.Before(*c.ValidFrom) {
		return ErrNotStarted
	}
	if c.ValidTo != nil && now.After(*c.ValidTo) {
		return ErrExpired
	}
	if c.UsageLimit > 0 && c.UsedCount >= c.UsageLimit {
		return ErrUsageLimitReached
	}
	return nil
}

// Eligible is the conjunction of every rule of the coupon against the cart.
func (c Coupon) Eligible(now time.Time, lines lineitem.Lines, customer Customer) error {
	if err := c.Validate(now); err != nil {
		return err
	}
	if c.Kind == KindNewCustomer && !customer.NewCustomer {
		return ErrNewCustomersOnly
	}
	if len(c.CustomerIDs) > 0 && !slices.Contains(c.CustomerIDs, customer.ID) {
		return ErrCustomerNotAllowed
	}
	products := productLines(lines)
	if len(c.ProductNumbers) > 0 && !anyLine(products, c.matchesNumber) {
		return ErrNoMatchingLine
	}
	if len(c.ManufacturerIDs) > 0 && !anyLine(products, c.matchesManufacturer) {
		return ErrNoMatchingLine
	}
	if len(c.CategoryIDs) > 0 && !anyLine(products, c.matchesCategory) {
		return ErrNoMatchingLine
	}
	if c.MinOrderValue.IsPositive() && c.EligibleSubtotal(lines).LessThan(c.MinOrderValue) {
		return ErrMinimumOrderUnmet
	}
	return nil
}

// MatchesLine reports whether the line passes every line level allow-list.
func (c Coupon) MatchesLine(l lineitem.Line) bool {
	if l.Kind.IsSpecial() {
		return false
	}
	return (len(c.ProductNumbers) == 0 || c.matchesNumber(l)) &&
		(len(c.ManufacturerIDs) == 0 || c.matchesManufacturer(l)) &&
		(len(c.CategoryIDs) == 0 || c.matchesCategory(l))
}

// EligibleSubtotal is the net subtotal the coupon value is measured against.
func (c Coupon) EligibleSubtotal(lines lineitem.Lines) decimal.Decimal {
	total := decimal.Zero
	for _, l := range productLines(lines) {
		if c.Scope == ScopeMatchingLines && !c.MatchesLine(l) {
			continue
		}
		total = total.Add(l.NetTotal())
	}
	return total
}

// CappedValue is min(nominal value, eligible subtotal), never negative.
func (c Coupon) CappedValue(lines lineitem.Lines) decimal.Decimal {
	eligible := money.NonNegative(c.EligibleSubtotal(lines))
	nominal := c.Value
	if c.ValueType == ValuePercent {
		nominal = money.Percentage(eligible, c.Value)
	}
	return money.NonNegative(money.Min(nominal, eligible))
}

func (c Coupon) matchesNumber(l lineitem.Line) bool {
	for _, n := range c.ProductNumbers {
		if n == "*" || strings.EqualFold(n, l.ProductNumber) {
			return true
		}
	}
	return false
}

func (c Coupon) matchesManufacturer(l lineitem.Line) bool {
	return slices.Contains(c.ManufacturerIDs, l.ManufacturerID)
}

func (c Coupon) matchesCategory(l lineitem.Line) bool {
	for _, id := range l.CategoryIDs {
		if slices.Contains(c.CategoryIDs, id) {
			return true
		}
	}
	return false
}

func productLines(lines lineitem.Lines) lineitem.Lines {
	return lines.Filter(func(l lineitem.Line) bool { return !l.Kind.IsSpecial() })
}

func anyLine(lines lineitem.Lines, match func(lineitem.Line) bool) bool {
	for _, l := range lines {
		if match(l) {
			return true
		}
	}
	return false
}
