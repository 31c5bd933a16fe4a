// Package stock implements dependent-amount accounting: it decides how much of
// each cart line can be granted without exceeding the on-hand stock of the
// components the line shares with other lines.
//
// Reservations are advisory. Every call rebuilds them from scratch and nothing
// is held between calls; the authoritative decrement happens at order
// placement.
package stock

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-cart/internal/catalog"
	"github.com/noah-isme/toko-cart/internal/lineitem"
	"github.com/noah-isme/toko-cart/internal/notice"
)

// Source reads physical stock.
type Source interface {
	OnHand(ctx context.Context, componentID int64) (decimal.Decimal, error)
	VariantOnHand(ctx context.Context, productID, propertyID, valueID int64) (decimal.Decimal, error)
}

// Engine computes grantable quantities.
type Engine struct {
	Catalog catalog.Service
	Stock   Source
	Logger  zerolog.Logger
}

// Grant is the outcome of one line in an allocation pass.
type Grant struct {
	LineID    string
	ProductID int64
	Requested decimal.Decimal
	Granted   decimal.Decimal
}

// Capped reports whether the line received less than it asked for.
func (g Grant) Capped() bool {
	return g.Granted.LessThan(g.Requested)
}

// Allocation is the ephemeral context of one pass: claimed and on-hand amounts per key.
type Allocation struct {
	reserved map[string]decimal.Decimal
	onHand   map[string]decimal.Decimal
}

func newAllocation() *Allocation {
	return &Allocation{
		reserved: make(map[string]decimal.Decimal),
		onHand:   make(map[string]decimal.Decimal),
	}
}

// Reserved returns the amount of a component claimed so far in the pass.
func (a *Allocation) Reserved(componentID int64) decimal.Decimal {
	return a.reserved[componentKey(componentID)]
}

// ReservedVariant returns the amount of a variant value claimed so far in the pass.
func (a *Allocation) ReservedVariant(productID, propertyID, valueID int64) decimal.Decimal {
	return a.reserved[variantKey(productID, propertyID, valueID)]
}

type claim struct {
	key   string
	units decimal.Decimal
	load  func(context.Context) (decimal.Decimal, error)
}

func componentKey(id int64) string {
	return "c:" + strconv.FormatInt(id, 10)
}

func variantKey(productID, propertyID, valueID int64) string {
	return "v:" + strconv.FormatInt(productID, 10) + ":" + strconv.FormatInt(propertyID, 10) + ":" + strconv.FormatInt(valueID, 10)
}

// Allocate processes the lines in cart order and returns one Grant per stock
// relevant line. override replaces the requested quantity for a line id.
func (e *Engine) Allocate(ctx context.Context, lines lineitem.Lines, override map[string]decimal.Decimal) ([]Grant, *Allocation, error) {
	alloc := newAllocation()
	grants := make([]Grant, 0, len(lines))
	for _, l := range lines {
		if !l.IsPriced() {
			continue
		}
		requested := l.Quantity
		if q, ok := override[l.ID]; ok {
			requested = q
		}
		granted, err := e.claim(ctx, alloc, l, requested)
		if err != nil {
			return nil, nil, err
		}
		grants = append(grants, Grant{LineID: l.ID, ProductID: l.ProductID, Requested: requested, Granted: granted})
	}
	return grants, alloc, nil
}

// Grantable returns the maximum quantity candidate may claim after every other
// line of the cart has claimed its own quantity. An existing line with the
// candidate's id is left out of the base pass.
func (e *Engine) Grantable(ctx context.Context, lines lineitem.Lines, candidate lineitem.Line, requested decimal.Decimal) (decimal.Decimal, error) {
	others := lines.Filter(func(l lineitem.Line) bool { return l.ID != candidate.ID })
	_, alloc, err := e.Allocate(ctx, others, nil)
	if err != nil {
		return decimal.Zero, err
	}
	return e.claim(ctx, alloc, candidate, requested)
}

// CheckAdd is the pre-add check. It yields CodeOutOfStock instead of capping.
func (e *Engine) CheckAdd(ctx context.Context, lines lineitem.Lines, candidate lineitem.Line, requested decimal.Decimal) (notice.Code, error) {
	granted, err := e.Grantable(ctx, lines, candidate, requested)
	if err != nil {
		return "", err
	}
	if granted.LessThan(requested) {
		return notice.CodeOutOfStock, nil
	}
	return "", nil
}

// Sweep caps every line to its grantable quantity. Lines capped to zero are
// removed, together with the children of a removed bundle parent.
func (e *Engine) Sweep(ctx context.Context, lines lineitem.Lines) (lineitem.Lines, notice.List, error) {
	grants, _, err := e.Allocate(ctx, lines, nil)
	if err != nil {
		return nil, nil, err
	}
	var notices notice.List
	byID := make(map[string]Grant, len(grants))
	for _, g := range grants {
		byID[g.LineID] = g
	}
	removedGroups := make(map[string]bool)
	out := make(lineitem.Lines, 0, len(lines))
	for _, l := range lines {
		g, ok := byID[l.ID]
		if !ok || !g.Capped() {
			out = append(out, l)
			continue
		}
		e.Logger.Warn().Str("line_id", l.ID).Int64("product_id", l.ProductID).
			Str("requested", g.Requested.String()).Str("granted", g.Granted.String()).Msg("stock cap applied")
		if g.Granted.Sign() <= 0 {
			notices.Add(notice.Notice{Code: notice.CodeLineRemoved, LineID: l.ID, ProductID: l.ProductID})
			if l.IsBundleParent() {
				removedGroups[l.GroupToken] = true
			}
			continue
		}
		l.Quantity = g.Granted
		notices.Add(notice.Notice{Code: notice.CodeQuantityAdjusted, LineID: l.ID, ProductID: l.ProductID, Detail: g.Granted.String()})
		out = append(out, l)
	}
	if len(removedGroups) > 0 {
		out = out.Filter(func(l lineitem.Line) bool { return !(l.IsBundleChild() && removedGroups[l.GroupToken]) })
	}
	return out, notices, nil
}

func (e *Engine) claim(ctx context.Context, alloc *Allocation, l lineitem.Line, requested decimal.Decimal) (decimal.Decimal, error) {
	if requested.Sign() <= 0 {
		return decimal.Zero, nil
	}
	claims, err := e.claimsFor(ctx, l)
	if err != nil {
		if errors.Is(err, catalog.ErrProductNotFound) {
			return decimal.Zero, nil
		}
		return decimal.Zero, err
	}
	granted := requested
	for _, c := range claims {
		onHand, ok := alloc.onHand[c.key]
		if !ok {
			onHand, err = c.load(ctx)
			if err != nil {
				return decimal.Zero, fmt.Errorf("stock: load %s: %w", c.key, err)
			}
			alloc.onHand[c.key] = onHand
		}
		available := onHand.Sub(alloc.reserved[c.key])
		if requested.Mul(c.units).GreaterThan(available) {
			capped := available.Div(c.units).Floor()
			if capped.IsNegative() {
				capped = decimal.Zero
			}
			if capped.LessThan(granted) {
				granted = capped
			}
		}
	}
	for _, c := range claims {
		alloc.reserved[c.key] = alloc.reserved[c.key].Add(granted.Mul(c.units))
	}
	return granted, nil
}

// claimsFor expands a line into its backing claims. Untracked products and
// products allowing negative stock expand to nothing.
func (e *Engine) claimsFor(ctx context.Context, l lineitem.Line) ([]claim, error) {
	product, err := e.Catalog.Product(ctx, l.ProductID)
	if err != nil {
		return nil, err
	}
	if !product.TrackStock || product.AllowNegativeStock {
		return nil, nil
	}
	if product.PerVariantStock {
		claims := make([]claim, 0, len(l.Attributes))
		for _, attr := range l.Attributes {
			if attr.IsFreeText() {
				continue
			}
			productID, propertyID, valueID := l.ProductID, attr.PropertyID, attr.ValueID
			claims = append(claims, claim{
				key:   variantKey(productID, propertyID, valueID),
				units: decimal.NewFromInt(1),
				load: func(ctx context.Context) (decimal.Decimal, error) {
					return e.Stock.VariantOnHand(ctx, productID, propertyID, valueID)
				},
			})
		}
		return claims, nil
	}
	components, err := e.Catalog.BackingComponents(ctx, l.ProductID)
	if err != nil {
		return nil, err
	}
	if len(components) == 0 {
		components = []catalog.Component{{ComponentID: l.ProductID}}
	}
	claims := make([]claim, 0, len(components))
	for _, c := range components {
		componentID := c.ComponentID
		claims = append(claims, claim{
			key:   componentKey(componentID),
			units: c.Units(),
			load: func(ctx context.Context) (decimal.Decimal, error) {
				return e.Stock.OnHand(ctx, componentID)
			},
		})
	}
	return claims, nil
}
