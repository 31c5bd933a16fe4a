package cart

import (
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-cart/internal/lineitem"
	"github.com/noah-isme/toko-cart/internal/money"
	"github.com/noah-isme/toko-cart/internal/notice"
	"github.com/noah-isme/toko-cart/internal/pricing"
)

var one = decimal.NewFromInt(1)

// DeriveSpecialLines builds the derived fee and gift lines from the repriced
// goods and the cart context. goods must already carry the coupon effect:
// thresholds and percentage surcharges are measured against the discounted
// goods. Coupon lines are left to the coupon engine and the voucher credit to
// VoucherLine. The function is pure: the same inputs always give the same
// lines, apart from their fresh ids.
func DeriveSpecialLines(base lineitem.Lines, cc Context) (lineitem.Lines, notice.List) {
	var (
		out     lineitem.Lines
		notices notice.List
	)
	goodsNet, goodsGross := goods(base)
	highest := highestRate(base)

	if m := cc.Shipping; m != nil {
		price := m.NetPrice
		if m.FreeAbove.IsPositive() && goodsGross.GreaterThanOrEqual(m.FreeAbove) {
			price = decimal.Zero
		}
		ship := special(lineitem.KindShippingCost, m.Name, price, m.TaxClassID, highest)
		ship.DeliveryDays = m.DeliveryDays
		out = append(out, ship)
		if m.Surcharge.IsPositive() {
			out = append(out, special(lineitem.KindShippingSurcharge, m.Name+" surcharge", m.Surcharge, m.TaxClassID, highest))
		}
	}
	if p := cc.Packaging; p != nil {
		price := p.NetPrice
		if p.FreeAbove.IsPositive() && goodsGross.GreaterThanOrEqual(p.FreeAbove) {
			price = decimal.Zero
		}
		out = append(out, special(lineitem.KindPackaging, p.Name, price, p.TaxClassID, highest))
	}
	if p := cc.Payment; p != nil {
		surcharge := p.Surcharge.Add(money.Percentage(goodsNet, p.SurchargePercent))
		if !surcharge.IsZero() {
			out = append(out, special(lineitem.KindPaymentSurcharge, p.Name, surcharge, p.TaxClassID, highest))
		}
		if p.Fee.IsPositive() {
			out = append(out, special(lineitem.KindPaymentFee, p.Name, p.Fee, p.TaxClassID, highest))
		}
		if p.CashOnDelivery && p.CODFee.IsPositive() {
			out = append(out, special(lineitem.KindCashOnDeliveryFee, p.Name, p.CODFee, p.TaxClassID, highest))
		}
	}
	if g := cc.FreeGift; g != nil {
		if goodsGross.GreaterThanOrEqual(g.Threshold) {
			gift := special(lineitem.KindFreeGift, g.Name, decimal.Zero, 0, decimal.Zero)
			gift.ProductID = g.ProductID
			out = append(out, gift)
		} else {
			notices.Add(notice.Notice{Code: notice.CodeFreeGiftRemoved, ProductID: g.ProductID})
		}
	}
	return out, notices
}

// VoucherLine redeems up to credit against the payable gross of lines. lines
// must hold every other line with its final tax rate and coupon effect, so the
// redeemed amount never takes the grand total below zero.
func VoucherLine(lines lineitem.Lines, credit decimal.Decimal) (lineitem.Line, bool) {
	if !credit.IsPositive() {
		return lineitem.Line{}, false
	}
	payable := money.NonNegative(pricing.PayableGross(lines))
	redeem := money.Min(credit, payable).RoundFloor(money.DefaultPrecision)
	if !redeem.IsPositive() {
		return lineitem.Line{}, false
	}
	return special(lineitem.KindVoucherRedeem, "Voucher", redeem.Neg(), 0, decimal.Zero), true
}

// special builds a fee line. Without a tax class it is taxed at rate, the
// highest rate of the goods.
func special(kind lineitem.Kind, name string, net decimal.Decimal, taxClassID int64, rate decimal.Decimal) lineitem.Line {
	l := lineitem.New(kind, name, one, net)
	if taxClassID > 0 {
		l.TaxClassID = taxClassID
		return l
	}
	override := rate
	l.TaxRateOverride = &override
	l.TaxRate = rate
	return l
}

// goods sums the product and bundle lines together with the coupon lines
// discounting them.
func goods(base lineitem.Lines) (net, gross decimal.Decimal) {
	net, gross = decimal.Zero, decimal.Zero
	for _, l := range base {
		if l.Kind.IsSpecial() && !l.Kind.IsCoupon() {
			continue
		}
		net = net.Add(l.NetTotal())
		gross = gross.Add(l.GrossTotal())
	}
	return net, gross
}

func highestRate(base lineitem.Lines) decimal.Decimal {
	rate := decimal.Zero
	for _, l := range base {
		if !l.Kind.IsSpecial() && l.TaxRate.GreaterThan(rate) {
			rate = l.TaxRate
		}
	}
	return rate
}

// FavourableShipping picks the cheapest method that delivers to country,
// taking free shipping thresholds into account.
func FavourableShipping(methods []ShippingMethod, country string, goodsGross decimal.Decimal) *ShippingMethod {
	var best *ShippingMethod
	var bestPrice decimal.Decimal
	for i := range methods {
		m := methods[i]
		if len(m.Countries) > 0 && !slices.ContainsFunc(m.Countries, func(c string) bool { return strings.EqualFold(c, country) }) {
			continue
		}
		price := m.NetPrice.Add(m.Surcharge)
		if m.FreeAbove.IsPositive() && goodsGross.GreaterThanOrEqual(m.FreeAbove) {
			price = m.Surcharge
		}
		if best == nil || price.LessThan(bestPrice) {
			best, bestPrice = &m, price
		}
	}
	return best
}
