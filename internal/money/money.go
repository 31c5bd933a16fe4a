// Package money holds the gross/net conversion and rounding helpers shared by
// every pricing component. All arithmetic uses shopspring/decimal so that
// amounts never pass through binary floating point before display.
package money

import "github.com/shopspring/decimal"

// DefaultPrecision is the number of decimal places shown for amounts.
const DefaultPrecision int32 = 2

const (
	unitGrossPrecision = 4
	lineGrossPrecision = 3
)

var hundred = decimal.NewFromInt(100)

// TaxFactor returns 1 + rate/100.
func TaxFactor(rate decimal.Decimal) decimal.Decimal {
	return decimal.NewFromInt(1).Add(rate.Div(hundred))
}

// Gross converts a net amount to gross at rate percent, rounded to places.
func Gross(net, rate decimal.Decimal, places int32) decimal.Decimal {
	return net.Mul(TaxFactor(rate)).Round(places)
}

// Net converts a gross amount to net at rate percent, rounded to places.
func Net(gross, rate decimal.Decimal, places int32) decimal.Decimal {
	return gross.Div(TaxFactor(rate)).Round(places)
}

// UnitGross is the per-unit gross price. Four places are kept so the figure can
// be multiplied by a quantity without compounding the rounding error.
func UnitGross(net, rate decimal.Decimal) decimal.Decimal {
	return Gross(net, rate, unitGrossPrecision)
}

// LineNet is the exact extended net amount of a line.
func LineNet(unitNet, qty decimal.Decimal) decimal.Decimal {
	return unitNet.Mul(qty)
}

// LineGrossExact is the extended gross amount rounded to three places. It is the
// value the summation rounding pass distributes residuals over.
func LineGrossExact(unitNet, qty, rate decimal.Decimal) decimal.Decimal {
	return Gross(unitNet.Mul(qty), rate, lineGrossPrecision)
}

// LineGross is round(round(net*qty*(1+rate/100), 3), 2).
func LineGross(unitNet, qty, rate decimal.Decimal) decimal.Decimal {
	return LineGrossExact(unitNet, qty, rate).Round(DefaultPrecision)
}

// Percentage returns amount*percent/100 without rounding.
func Percentage(amount, percent decimal.Decimal) decimal.Decimal {
	return amount.Mul(percent).Div(hundred)
}

// Min returns the smaller of a and b.
func Min(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}

// NonNegative clamps negative amounts to zero.
func NonNegative(a decimal.Decimal) decimal.Decimal {
	if a.IsNegative() {
		return decimal.Zero
	}
	return a
}
