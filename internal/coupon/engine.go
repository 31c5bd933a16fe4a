package coupon

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-cart/internal/lineitem"
	"github.com/noah-isme/toko-cart/internal/money"
	"github.com/noah-isme/toko-cart/internal/notice"
)

// Repository loads coupons and records their usage.
type Repository interface {
	Find(ctx context.Context, id int64) (Coupon, error)
	FindByCode(ctx context.Context, code string) (Coupon, error)
	IncrementUsage(ctx context.Context, id int64) error
}

// Engine applies and re-validates coupons.
type Engine struct {
	Repo   Repository
	Clock  func() time.Time
	Logger zerolog.Logger
}

func (e *Engine) now() time.Time {
	if e.Clock != nil {
		return e.Clock()
	}
	return time.Now()
}

// Active loads the coupon and re-tests it against lines. valid is false when
// no coupon is set or when it stopped being eligible, in which case the
// returned notice carries the reason.
func (e *Engine) Active(ctx context.Context, lines lineitem.Lines, couponID int64, customer Customer) (Coupon, bool, notice.List, error) {
	if couponID == 0 {
		return Coupon{}, false, nil, nil
	}
	c, err := e.Repo.Find(ctx, couponID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return Coupon{}, false, nil, fmt.Errorf("load coupon %d: %w", couponID, err)
	}
	if err == nil {
		err = c.Eligible(e.now(), Strip(lines), customer)
	}
	if err != nil {
		e.Logger.Warn().Int64("coupon_id", couponID).Err(err).Msg("coupon invalidated")
		var notices notice.List
		notices.Add(notice.Notice{Code: notice.CodeCouponInvalidated, Detail: err.Error()})
		return Coupon{}, false, notices, nil
	}
	return c, true, nil, nil
}

// Apply rewrites lines with the coupon effect. The coupon must have been
// checked for eligibility.
func Apply(lines lineitem.Lines, c Coupon) lineitem.Lines {
	out := Strip(lines.Clone())
	switch {
	case c.Kind == KindShippingOnly:
		return ApplyToShipping(out, c)
	case c.ValueType == ValuePercent && c.Scope == ScopeEntireCart:
		return discountInPlace(out, c)
	default:
		return append(out, couponLine(out, c))
	}
}

// ApplyToShipping zeroes the shipping lines when c is a shipping coupon.
// Every other coupon leaves the lines as they are.
func ApplyToShipping(lines lineitem.Lines, c Coupon) lineitem.Lines {
	out := lines.Clone()
	if c.Kind != KindShippingOnly {
		return out
	}
	for i := range out {
		if out[i].Kind == lineitem.KindShippingCost || out[i].Kind == lineitem.KindShippingSurcharge {
			out[i].UnitNetPrice = decimal.Zero
			out[i].Hint = c.Code
		}
	}
	return out
}

// discountInPlace lowers the net price of every matching line by the coupon percentage.
func discountInPlace(lines lineitem.Lines, c Coupon) lineitem.Lines {
	for i := range lines {
		l := &lines[i]
		if !c.MatchesLine(*l) {
			continue
		}
		l.UnitNetPrice = l.UnitNetPrice.Sub(money.Percentage(l.UnitNetPrice, c.Value))
		for j := range l.Attributes {
			a := &l.Attributes[j]
			a.Surcharge = a.Surcharge.Sub(money.Percentage(a.Surcharge, c.Value))
		}
		l.CouponCode = c.Code
	}
	return lines
}

// couponLine builds the discount line. It is taxed at the highest rate of the
// lines it discounts.
func couponLine(lines lineitem.Lines, c Coupon) lineitem.Line {
	kind := lineitem.KindCoupon
	if c.Kind == KindNewCustomer {
		kind = lineitem.KindNewCustomerCoupon
	}
	rate := decimal.Zero
	for _, l := range lines {
		if c.Scope == ScopeMatchingLines && !c.MatchesLine(l) {
			continue
		}
		if !l.Kind.IsSpecial() && l.TaxRate.GreaterThan(rate) {
			rate = l.TaxRate
		}
	}
	line := lineitem.New(kind, c.Name, decimal.NewFromInt(1), c.CappedValue(lines).Neg())
	line.TaxRateOverride = &rate
	line.TaxRate = rate
	line.CouponCode = c.Code
	if line.Name == "" {
		line.Name = c.Code
	}
	return line
}

// Strip removes coupon lines and the marks left by an in-place discount.
func Strip(lines lineitem.Lines) lineitem.Lines {
	out := lines.Filter(func(l lineitem.Line) bool { return !l.Kind.IsCoupon() })
	for i := range out {
		out[i].CouponCode = ""
	}
	return out
}
