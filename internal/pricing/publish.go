package pricing

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-cart/internal/lineitem"
	"github.com/noah-isme/toko-cart/internal/money"
	"github.com/noah-isme/toko-cart/internal/notice"
)

// Publish rebuilds the localized totals of every line, the bundle parent
// aggregates and the summation rounding. A changed unit gross price of a
// product line known in previous yields a price_changed notice.
func (e *Engine) Publish(ctx context.Context, lines, previous lineitem.Lines, s Settings) (lineitem.Lines, notice.List, error) {
	currencies, err := e.resolve(ctx, s)
	if err != nil {
		return nil, nil, err
	}
	out := lines.Clone()
	for i := range out {
		out[i].Localized = make(lineitem.Localized, len(currencies))
		out[i].BundleTotals = nil
		out[i].DisplayQuantity = out[i].Quantity
	}
	for _, c := range currencies {
		publishCurrency(out, c)
	}
	aggregateBundles(out, currencies)
	return out, priceChanges(out, previous, currencies), nil
}

// publishCurrency is the summation rounding pass for one currency. The running
// deltas always hold sum(unrounded) - sum(displayed) of the lines seen so far.
// Product lines absorb the delta, except the first line of the cart which
// anchors the sequence. Derived lines are quoted at display precision and add
// nothing to the delta.
func publishCurrency(lines lineitem.Lines, c money.Currency) {
	places := c.Places()
	deltaNet, deltaGross := decimal.Zero, decimal.Zero
	for i := range lines {
		l := &lines[i]
		unitNet, exactNet, exactGross := lineAmounts(*l, c)

		var netTotal, grossTotal decimal.Decimal
		if l.Kind == lineitem.KindProduct && i != 0 {
			netTotal = exactNet.Add(deltaNet).Round(places)
			grossTotal = exactGross.Add(deltaGross).Round(places)
		} else {
			netTotal = exactNet.Round(places)
			grossTotal = exactGross.Round(places)
		}
		deltaNet = deltaNet.Add(exactNet).Sub(netTotal)
		deltaGross = deltaGross.Add(exactGross).Sub(grossTotal)

		l.Localized[c.Code] = totals(c, unitNet, money.UnitGross(unitNet, l.TaxRate), netTotal, grossTotal)
	}
}

// lineAmounts returns the converted unit net and the unrounded net and gross
// totals of l in c. Fee, coupon and credit lines are quoted amounts: their net
// is rounded to the currency precision after conversion and their gross is
// taken from that rounded net, so they never leave a rounding residual.
func lineAmounts(l lineitem.Line, c money.Currency) (unitNet, net, gross decimal.Decimal) {
	unitNet = c.Convert(l.UnitNetPrice)
	if l.Kind.IsSpecial() {
		net = c.Round(money.LineNet(unitNet, l.Quantity))
		return unitNet, net, money.Gross(net, l.TaxRate, c.Places())
	}
	return unitNet, money.LineNet(unitNet, l.Quantity), money.LineGrossExact(unitNet, l.Quantity, l.TaxRate)
}

// PayableGross is the unrounded gross of lines in the default currency.
func PayableGross(lines lineitem.Lines) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		_, _, gross := lineAmounts(l, money.Currency{})
		total = total.Add(gross)
	}
	return total
}

func totals(c money.Currency, netSingle, grossSingle, netTotal, grossTotal decimal.Decimal) lineitem.Totals {
	return lineitem.Totals{
		NetSingle:       netSingle,
		GrossSingle:     grossSingle,
		NetTotal:        netTotal,
		GrossTotal:      grossTotal,
		NetSingleText:   c.Format(netSingle),
		GrossSingleText: c.Format(grossSingle),
		NetTotalText:    c.Format(netTotal),
		GrossTotalText:  c.Format(grossTotal),
	}
}

// aggregateBundles sums the children of every bundle onto the parent. Each
// child converts to gross at its own tax rate.
func aggregateBundles(lines lineitem.Lines, currencies []money.Currency) {
	for _, g := range lines.Groups() {
		if g.Parent < 0 || len(g.Children) == 0 {
			continue
		}
		parent := &lines[g.Parent]
		parentQty := parent.Quantity
		for _, ci := range g.Children {
			child := &lines[ci]
			if !child.IgnoreMultiplier && parentQty.IsPositive() {
				child.DisplayQuantity = child.Quantity.Div(parentQty)
			}
		}
		parent.BundleTotals = make(lineitem.Localized, len(currencies))
		for _, c := range currencies {
			net, gross := decimal.Zero, decimal.Zero
			for _, ci := range g.Children {
				child := lines[ci]
				unitNet := c.Convert(child.UnitNetPrice)
				net = net.Add(money.LineNet(unitNet, child.Quantity))
				gross = gross.Add(money.LineGrossExact(unitNet, child.Quantity, child.TaxRate))
			}
			netSingle, grossSingle := net, gross
			if parentQty.IsPositive() {
				netSingle = net.Div(parentQty)
				grossSingle = gross.Div(parentQty)
			}
			parent.BundleTotals[c.Code] = totals(c,
				c.Round(netSingle), c.Round(grossSingle), c.Round(net), c.Round(gross))
		}
	}
}

func priceChanges(lines, previous lineitem.Lines, currencies []money.Currency) notice.List {
	def, ok := money.DefaultOf(currencies)
	if !ok || len(previous) == 0 {
		return nil
	}
	var notices notice.List
	for _, l := range lines {
		if l.Kind != lineitem.KindProduct {
			continue
		}
		i := previous.Index(l.ID)
		if i < 0 {
			continue
		}
		// quantity and coupon changes move the price on purpose
		if previous[i].CouponCode != l.CouponCode || !previous[i].Quantity.Equal(l.Quantity) {
			continue
		}
		before, ok := previous[i].Localized[def.Code]
		if !ok {
			continue
		}
		now := l.Localized[def.Code]
		if !before.GrossSingle.Equal(now.GrossSingle) {
			notices.Add(notice.Notice{
				Code:      notice.CodePriceChanged,
				LineID:    l.ID,
				ProductID: l.ProductID,
				Detail:    before.GrossSingleText + " -> " + now.GrossSingleText,
			})
		}
	}
	return notices
}
