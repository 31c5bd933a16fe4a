// Package pricing recomputes line prices from the catalog, rebuilds bundle
// aggregates and publishes localized totals in every configured currency.
package pricing

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-cart/internal/catalog"
	"github.com/noah-isme/toko-cart/internal/lineitem"
	"github.com/noah-isme/toko-cart/internal/money"
	"github.com/noah-isme/toko-cart/internal/notice"
)

// Settings carries the request scoped pricing inputs.
type Settings struct {
	Country              string
	CustomerGroupID      int64
	Currencies           []money.Currency
	BulkAcrossVariations bool
}

// Engine is the pricing engine.
type Engine struct {
	Catalog    catalog.Service
	Tax        TaxService
	Currencies CurrencyService
	Logger     zerolog.Logger
}

// RecomputeAll reprices every line and republishes the display figures.
// previous is the state before the mutation and is only used to detect price changes.
func (e *Engine) RecomputeAll(ctx context.Context, lines, previous lineitem.Lines, s Settings) (lineitem.Lines, notice.List, error) {
	repriced, notices, err := e.Reprice(ctx, lines, s)
	if err != nil {
		return nil, nil, err
	}
	published, changed, err := e.Publish(ctx, repriced, previous, s)
	if err != nil {
		return nil, nil, err
	}
	return published, append(notices, changed...), nil
}

// Reprice sets the unit net price of every priced line from the catalog tier
// table and resolves the tax rate of every line. Bundle children whose parent
// is missing and lines whose product vanished are dropped.
func (e *Engine) Reprice(ctx context.Context, lines lineitem.Lines, s Settings) (lineitem.Lines, notice.List, error) {
	var notices notice.List
	src := lines.Clone()
	groups := src.Groups()
	out := make(lineitem.Lines, 0, len(src))
	for _, l := range src {
		if l.IsBundleChild() && groups[l.GroupToken].Parent < 0 {
			e.Logger.Warn().Str("line_id", l.ID).Str("group", l.GroupToken).Msg("bundle child without parent dropped")
			notices.Add(notice.Notice{Code: notice.CodeCorruptLineDropped, LineID: l.ID, ProductID: l.ProductID})
			continue
		}
		if l.IsPriced() {
			product, err := e.Catalog.Product(ctx, l.ProductID)
			if errors.Is(err, catalog.ErrProductNotFound) {
				e.Logger.Warn().Str("line_id", l.ID).Int64("product_id", l.ProductID).Msg("product vanished from catalog")
				notices.Add(notice.Notice{Code: notice.CodeLineRemoved, LineID: l.ID, ProductID: l.ProductID})
				continue
			}
			if err != nil {
				return nil, nil, fmt.Errorf("load product %d: %w", l.ProductID, err)
			}
			product.Decorate(&l)
			price, err := e.Catalog.TieredNetPrice(ctx, l.ProductID, tierQuantity(src, l, s), l.Attributes, s.CustomerGroupID)
			if err != nil {
				return nil, nil, fmt.Errorf("price product %d: %w", l.ProductID, err)
			}
			l.UnitNetPrice = price
		}
		rate, err := e.taxRate(ctx, l, s.Country)
		if err != nil {
			return nil, nil, err
		}
		l.TaxRate = rate
		out = append(out, l)
	}
	return dropOrphans(out, &notices, e.Logger), notices, nil
}

// dropOrphans removes children of parents removed during repricing.
func dropOrphans(lines lineitem.Lines, notices *notice.List, logger zerolog.Logger) lineitem.Lines {
	groups := lines.Groups()
	return lines.Filter(func(l lineitem.Line) bool {
		if l.IsBundleChild() && groups[l.GroupToken].Parent < 0 {
			logger.Warn().Str("line_id", l.ID).Msg("bundle child orphaned by repricing")
			notices.Add(notice.Notice{Code: notice.CodeLineRemoved, LineID: l.ID, ProductID: l.ProductID})
			return false
		}
		return true
	})
}

func tierQuantity(lines lineitem.Lines, l lineitem.Line, s Settings) decimal.Decimal {
	if l.Kind != lineitem.KindProduct {
		return l.Quantity
	}
	if s.BulkAcrossVariations {
		family := l.ParentProductID
		if family == 0 {
			family = l.ProductID
		}
		return lines.FamilyQuantity(family)
	}
	return lines.ProductQuantity(l.ProductID)
}

// ApplyTax resolves the tax rate of every line, typically the derived special
// lines that were added after Reprice.
func (e *Engine) ApplyTax(ctx context.Context, lines lineitem.Lines, country string) (lineitem.Lines, error) {
	out := lines.Clone()
	for i := range out {
		rate, err := e.taxRate(ctx, out[i], country)
		if err != nil {
			return nil, err
		}
		out[i].TaxRate = rate
	}
	return out, nil
}

func (e *Engine) taxRate(ctx context.Context, l lineitem.Line, country string) (decimal.Decimal, error) {
	if l.TaxRateOverride != nil {
		return *l.TaxRateOverride, nil
	}
	if l.TaxClassID == 0 || e.Tax == nil {
		return l.TaxRate, nil
	}
	rate, err := e.Tax.RateForClass(ctx, l.TaxClassID, country)
	if err != nil {
		return decimal.Zero, fmt.Errorf("tax for line %s: %w", l.ID, err)
	}
	return rate, nil
}

// resolve fills the conversion factor of every configured currency.
func (e *Engine) resolve(ctx context.Context, s Settings) ([]money.Currency, error) {
	out := make([]money.Currency, len(s.Currencies))
	copy(out, s.Currencies)
	if e.Currencies == nil {
		return out, nil
	}
	for i := range out {
		factor, err := e.Currencies.ConversionFactor(ctx, out[i].Code)
		if err != nil {
			return nil, err
		}
		out[i].Factor = factor
	}
	return out, nil
}
