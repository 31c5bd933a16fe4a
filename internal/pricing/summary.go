package pricing

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-cart/internal/lineitem"
	"github.com/noah-isme/toko-cart/internal/money"
)

// Summary aggregates the grand totals of a cart in one currency.
type Summary struct {
	Currency  string                     `json:"currency"`
	Net       decimal.Decimal            `json:"net"`
	Gross     decimal.Decimal            `json:"gross"`
	Goods     decimal.Decimal            `json:"goods"`
	Tax       map[string]decimal.Decimal `json:"tax"`
	NetText   string                     `json:"netText"`
	GrossText string                     `json:"grossText"`
}

// Summarize computes the grand totals per currency. Gross and net are rounded
// once over the exact line amounts, independently of the displayed line totals.
func (e *Engine) Summarize(ctx context.Context, lines lineitem.Lines, s Settings) (map[string]Summary, error) {
	currencies, err := e.resolve(ctx, s)
	if err != nil {
		return nil, err
	}
	out := make(map[string]Summary, len(currencies))
	for _, c := range currencies {
		out[c.Code] = summarize(lines, c)
	}
	return out, nil
}

func summarize(lines lineitem.Lines, c money.Currency) Summary {
	net, gross, goods := decimal.Zero, decimal.Zero, decimal.Zero
	taxByRate := make(map[string]decimal.Decimal)
	for _, l := range lines {
		_, lineNet, lineGross := lineAmounts(l, c)
		net = net.Add(lineNet)
		gross = gross.Add(lineGross)
		if !l.Kind.IsSpecial() {
			goods = goods.Add(lineGross)
		}
		key := l.TaxRate.String()
		taxByRate[key] = taxByRate[key].Add(lineGross.Sub(lineNet))
	}
	tax := make(map[string]decimal.Decimal, len(taxByRate))
	for rate, amount := range taxByRate {
		tax[rate] = c.Round(amount)
	}
	return Summary{
		Currency:  c.Code,
		Net:       c.Round(net),
		Gross:     c.Round(gross),
		Goods:     c.Round(goods),
		Tax:       tax,
		NetText:   c.Format(c.Round(net)),
		GrossText: c.Format(c.Round(gross)),
	}
}
