package cart

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/toko-cart/internal/catalog"
	"github.com/noah-isme/toko-cart/internal/coupon"
	"github.com/noah-isme/toko-cart/internal/lineitem"
	"github.com/noah-isme/toko-cart/internal/money"
	"github.com/noah-isme/toko-cart/internal/notice"
	"github.com/noah-isme/toko-cart/internal/obs"
	"github.com/noah-isme/toko-cart/internal/pricing"
	"github.com/noah-isme/toko-cart/internal/stock"
)

var tracer = otel.Tracer("cart")

// Settings are the storefront wide cart options.
type Settings struct {
	Currencies           []money.Currency
	Country              string
	BulkAcrossVariations bool
	PricesLoginOnly      bool
	ShippingMethods      []ShippingMethod
	PaymentMethods       []PaymentMethod
	Packagings           []Packaging
}

// UsageRecorder hands the coupon usage increment to the order pipeline.
type UsageRecorder interface {
	RecordCouponUsage(ctx context.Context, couponID int64, cartID string) error
}

// Service encapsulates cart domain operations.
type Service struct {
	Catalog  catalog.Service
	Stock    *stock.Engine
	Pricing  *pricing.Engine
	Coupons  *coupon.Engine
	Store    Store
	Usage    UsageRecorder
	Settings Settings
	Logger   zerolog.Logger
	Now      func() time.Time
}

// Result is the outcome of a mutation. When Rejections is not empty Cart is the
// unchanged input.
type Result struct {
	Cart       *Cart             `json:"cart"`
	Rejections notice.Rejections `json:"rejections,omitempty"`
	Notices    notice.List       `json:"notices,omitempty"`
	HandedOff  bool              `json:"handedOff,omitempty"`
}

// Rejected reports whether the mutation was refused.
func (r Result) Rejected() bool {
	return !r.Rejections.Empty()
}

// AddRequest asks for a product line.
type AddRequest struct {
	ProductID  int64
	Quantity   decimal.Decimal
	Attributes lineitem.Attributes
	// Unique lines never merge with other lines of the same product.
	Unique bool
}

// ComponentRequest is one part of a bundle. Quantity is per bundle unit.
type ComponentRequest struct {
	ComponentID      int64
	ProductID        int64
	Quantity         decimal.Decimal
	IgnoreMultiplier bool
}

// BundleRequest asks for a bundle parent with its components.
type BundleRequest struct {
	AddRequest
	Components []ComponentRequest
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Load returns the stored cart or a fresh one.
func (s *Service) Load(ctx context.Context, id string, customerID int64) (*Cart, error) {
	if s.Store != nil {
		c, err := s.Store.Load(ctx, id)
		if err == nil {
			return c, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	def, _ := money.DefaultOf(s.Settings.Currencies)
	c := New(id, def.Code, customerID)
	c.Context.Country = s.Settings.Country
	return c, nil
}

// AddLine validates and merges or inserts a product line.
func (s *Service) AddLine(ctx context.Context, c *Cart, req AddRequest) (Result, error) {
	return s.mutate(ctx, "add_line", c, func(ctx context.Context, next *Cart) (notice.Rejections, notice.List, error) {
		line, rej, err := s.prepare(ctx, next, req)
		if err != nil || !rej.Empty() {
			return rej, nil, err
		}
		code, err := s.Stock.CheckAdd(ctx, next.Lines, line, line.Quantity)
		if err != nil {
			return nil, nil, err
		}
		if code != "" {
			rej.Add(code)
			return rej, nil, nil
		}
		place(next, line)
		return nil, nil, nil
	})
}

// AddBundle inserts a bundle parent and its component lines.
func (s *Service) AddBundle(ctx context.Context, c *Cart, req BundleRequest) (Result, error) {
	return s.mutate(ctx, "add_bundle", c, func(ctx context.Context, next *Cart) (notice.Rejections, notice.List, error) {
		req.Unique = true
		parent, rej, err := s.prepare(ctx, next, req.AddRequest)
		if err != nil {
			return nil, nil, err
		}
		if len(req.Components) == 0 {
			rej.Add(notice.CodeBundleComponentInvalid)
		}
		added := lineitem.Lines{parent}
		for _, comp := range req.Components {
			child, ok, err := s.component(ctx, parent, comp)
			if err != nil {
				return nil, nil, err
			}
			if !ok {
				rej.Add(notice.CodeBundleComponentInvalid)
				continue
			}
			added = append(added, child)
		}
		if !rej.Empty() {
			return rej, nil, nil
		}
		capped, err := s.capped(ctx, append(next.Lines.Clone(), added...), added)
		if err != nil {
			return nil, nil, err
		}
		if capped {
			rej.Add(notice.CodeOutOfStock)
			return rej, nil, nil
		}
		for _, l := range added {
			place(next, l)
		}
		return nil, nil, nil
	})
}

// AddVariantBox adds several variations of one product at once. Rows with a
// zero quantity are skipped; any rejection refuses the whole box.
func (s *Service) AddVariantBox(ctx context.Context, c *Cart, items []AddRequest) (Result, error) {
	return s.mutate(ctx, "add_variant_box", c, func(ctx context.Context, next *Cart) (notice.Rejections, notice.List, error) {
		var rej notice.Rejections
		added := 0
		for _, item := range items {
			if item.Quantity.IsZero() {
				continue
			}
			added++
			line, itemRej, err := s.prepare(ctx, next, item)
			if err != nil {
				return nil, nil, err
			}
			if itemRej.Empty() {
				code, err := s.Stock.CheckAdd(ctx, next.Lines, line, line.Quantity)
				if err != nil {
					return nil, nil, err
				}
				if code != "" {
					itemRej.Add(code)
				}
			}
			if !itemRej.Empty() {
				merge(&rej, itemRej)
				continue
			}
			place(next, line)
		}
		if added == 0 {
			rej.Add(notice.CodeInvalidQuantity)
		}
		return rej, nil, nil
	})
}

// UpdateQuantities sets new quantities per line id. Zero removes the line.
// Stock is re-allocated for the whole cart afterwards.
func (s *Service) UpdateQuantities(ctx context.Context, c *Cart, updates map[string]decimal.Decimal) (Result, error) {
	return s.mutate(ctx, "update_quantities", c, func(ctx context.Context, next *Cart) (notice.Rejections, notice.List, error) {
		ids := make([]string, 0, len(updates))
		for id := range updates {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		var rej notice.Rejections
		remove := make(map[string]bool)
		for _, id := range ids {
			qty := updates[id]
			i := next.Lines.Index(id)
			if i < 0 {
				return nil, nil, fmt.Errorf("line %s: %w", id, ErrLineNotFound)
			}
			line := next.Lines[i]
			if line.Kind != lineitem.KindProduct {
				return nil, nil, fmt.Errorf("line %s is not a product line: %w", id, ErrInvalidInput)
			}
			if qty.IsNegative() {
				rej.Add(notice.CodeInvalidQuantity)
				continue
			}
			if qty.IsZero() {
				remove[id] = true
				continue
			}
			product, err := s.Catalog.Product(ctx, line.ProductID)
			if err != nil && !errors.Is(err, catalog.ErrProductNotFound) {
				return nil, nil, err
			}
			if err == nil {
				productQty := next.Lines.ProductQuantity(line.ProductID).Sub(line.Quantity).Add(qty)
				merge(&rej, checkLimits(product, qty, productQty, line.Attributes))
			}
			rescaleChildren(next.Lines, line, qty)
			next.Lines[i].Quantity = qty
			next.Lines[i].ModifiedAt = next.tick()
		}
		if !rej.Empty() {
			return rej, nil, nil
		}
		next.Lines = removeWithChildren(next.Lines, remove)
		lines, notices, err := s.Stock.Sweep(ctx, next.Lines)
		if err != nil {
			return nil, nil, err
		}
		obs.RecordStockCaps(len(notices))
		next.Lines = lines
		return nil, notices, nil
	})
}

// RemoveLines deletes product lines. Removing a bundle parent removes its components.
func (s *Service) RemoveLines(ctx context.Context, c *Cart, ids []string) (Result, error) {
	return s.mutate(ctx, "remove_lines", c, func(_ context.Context, next *Cart) (notice.Rejections, notice.List, error) {
		remove := make(map[string]bool, len(ids))
		for _, id := range ids {
			i := next.Lines.Index(id)
			if i < 0 {
				return nil, nil, fmt.Errorf("line %s: %w", id, ErrLineNotFound)
			}
			if next.Lines[i].Kind != lineitem.KindProduct {
				return nil, nil, fmt.Errorf("line %s cannot be removed directly: %w", id, ErrInvalidInput)
			}
			remove[id] = true
		}
		next.Lines = removeWithChildren(next.Lines, remove)
		return nil, nil, nil
	})
}

// Reorder arranges the lines in the given order. Lines not listed keep their
// relative order behind the listed ones; shipping lines always end up last.
func (s *Service) Reorder(ctx context.Context, c *Cart, ids []string) (Result, error) {
	return s.mutate(ctx, "reorder", c, func(_ context.Context, next *Cart) (notice.Rejections, notice.List, error) {
		seen := make(map[string]bool, len(ids))
		ordered := make(lineitem.Lines, 0, len(next.Lines))
		for _, id := range ids {
			i := next.Lines.Index(id)
			if i < 0 {
				return nil, nil, fmt.Errorf("line %s: %w", id, ErrLineNotFound)
			}
			if seen[id] {
				continue
			}
			seen[id] = true
			ordered = append(ordered, next.Lines[i])
		}
		for _, l := range next.Lines {
			if !seen[l.ID] {
				ordered = append(ordered, l)
			}
		}
		next.Lines = ordered
		return nil, nil, nil
	})
}

// RecomputeAll reprices the cart from the catalog.
func (s *Service) RecomputeAll(ctx context.Context, c *Cart) (Result, error) {
	return s.mutate(ctx, "recompute", c, nil)
}

// RevalidateSpecialLines re-derives every special line and re-checks the coupon.
func (s *Service) RevalidateSpecialLines(ctx context.Context, c *Cart) (Result, error) {
	return s.mutate(ctx, "revalidate", c, nil)
}

// ApplyCoupon activates the coupon with code. An unknown or ineligible code is
// rejected and the cart, including a previously active coupon, stays as it was.
func (s *Service) ApplyCoupon(ctx context.Context, c *Cart, code string) (Result, error) {
	ctx, span := tracer.Start(ctx, "cart.apply_coupon")
	defer span.End()

	cp, err := s.Coupons.Repo.FindByCode(ctx, code)
	if errors.Is(err, coupon.ErrNotFound) {
		return s.reject("apply_coupon", c, notice.CodeCouponNotFound), nil
	}
	if err != nil {
		return s.fail(span, "apply_coupon", fmt.Errorf("find coupon: %w", err))
	}
	next := c.Clone()
	next.Context.CouponID = cp.ID
	notices, err := s.refresh(ctx, next, c.Lines)
	if err != nil {
		return s.fail(span, "apply_coupon", err)
	}
	if next.Context.CouponID != cp.ID {
		return s.reject("apply_coupon", c, notice.CodeCouponNotEligible), nil
	}
	s.commit(ctx, next, &notices)
	obs.RecordCartMutation("apply_coupon", "ok")
	return Result{Cart: next, Notices: notices}, nil
}

// RemoveCoupon clears the active coupon.
func (s *Service) RemoveCoupon(ctx context.Context, c *Cart) (Result, error) {
	return s.mutate(ctx, "remove_coupon", c, func(_ context.Context, next *Cart) (notice.Rejections, notice.List, error) {
		next.Context.CouponID = 0
		return nil, nil, nil
	})
}

// SetShipping selects a configured shipping method delivering to the cart country.
func (s *Service) SetShipping(ctx context.Context, c *Cart, methodID int64) (Result, error) {
	return s.mutate(ctx, "set_shipping", c, func(_ context.Context, next *Cart) (notice.Rejections, notice.List, error) {
		if methodID == 0 {
			next.Context.Shipping = nil
			return nil, nil, nil
		}
		for _, m := range s.Settings.ShippingMethods {
			if m.ID != methodID {
				continue
			}
			if FavourableShipping([]ShippingMethod{m}, next.Context.Country, decimal.Zero) == nil {
				return nil, nil, fmt.Errorf("shipping method %d does not deliver to %s: %w", methodID, next.Context.Country, ErrInvalidInput)
			}
			next.Context.Shipping = &m
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("shipping method %d: %w", methodID, ErrInvalidInput)
	})
}

// SetPayment selects a configured payment method.
func (s *Service) SetPayment(ctx context.Context, c *Cart, methodID int64) (Result, error) {
	return s.mutate(ctx, "set_payment", c, func(_ context.Context, next *Cart) (notice.Rejections, notice.List, error) {
		if methodID == 0 {
			next.Context.Payment = nil
			return nil, nil, nil
		}
		for _, m := range s.Settings.PaymentMethods {
			if m.ID == methodID {
				next.Context.Payment = &m
				return nil, nil, nil
			}
		}
		return nil, nil, fmt.Errorf("payment method %d: %w", methodID, ErrInvalidInput)
	})
}

// SetPackaging selects a gift wrap, zero clears it.
func (s *Service) SetPackaging(ctx context.Context, c *Cart, packagingID int64) (Result, error) {
	return s.mutate(ctx, "set_packaging", c, func(_ context.Context, next *Cart) (notice.Rejections, notice.List, error) {
		if packagingID == 0 {
			next.Context.Packaging = nil
			return nil, nil, nil
		}
		for _, p := range s.Settings.Packagings {
			if p.ID == packagingID {
				next.Context.Packaging = &p
				return nil, nil, nil
			}
		}
		return nil, nil, fmt.Errorf("packaging %d: %w", packagingID, ErrInvalidInput)
	})
}

// SelectFreeGift chooses a gift product. It is only granted while the goods
// total reaches the product's gift threshold.
func (s *Service) SelectFreeGift(ctx context.Context, c *Cart, productID int64) (Result, error) {
	return s.mutate(ctx, "select_free_gift", c, func(ctx context.Context, next *Cart) (notice.Rejections, notice.List, error) {
		if productID == 0 {
			next.Context.FreeGift = nil
			return nil, nil, nil
		}
		product, err := s.Catalog.Product(ctx, productID)
		if errors.Is(err, catalog.ErrProductNotFound) {
			return notice.Rejections{notice.CodeProductNotFound}, nil, nil
		}
		if err != nil {
			return nil, nil, err
		}
		if !product.GiftThreshold.IsPositive() {
			return nil, nil, fmt.Errorf("product %d is not a gift: %w", productID, ErrInvalidInput)
		}
		next.Context.FreeGift = &FreeGift{ProductID: product.ID, Name: product.Name, Threshold: product.GiftThreshold}
		return nil, nil, nil
	})
}

// SetVoucherCredit redeems a gift voucher credit (gross, default currency).
func (s *Service) SetVoucherCredit(ctx context.Context, c *Cart, credit decimal.Decimal) (Result, error) {
	return s.mutate(ctx, "set_voucher_credit", c, func(_ context.Context, next *Cart) (notice.Rejections, notice.List, error) {
		if credit.IsNegative() {
			return nil, nil, fmt.Errorf("negative voucher credit: %w", ErrInvalidInput)
		}
		next.Context.VoucherCredit = credit
		return nil, nil, nil
	})
}

// AssignCustomer binds the cart to an identified customer, which may change
// group prices and coupon eligibility.
func (s *Service) AssignCustomer(ctx context.Context, c *Cart, customerID, groupID int64, newCustomer bool) (Result, error) {
	return s.mutate(ctx, "assign_customer", c, func(_ context.Context, next *Cart) (notice.Rejections, notice.List, error) {
		next.Context.CustomerID = customerID
		next.Context.CustomerGroupID = groupID
		next.Context.NewCustomer = newCustomer
		return nil, nil, nil
	})
}

// CheckoutSweep runs the final stock allocation before order placement.
// Capped lines are adjusted or removed and the result asks for a review.
func (s *Service) CheckoutSweep(ctx context.Context, c *Cart) (Result, error) {
	return s.mutate(ctx, "checkout_sweep", c, func(ctx context.Context, next *Cart) (notice.Rejections, notice.List, error) {
		lines, notices, err := s.Stock.Sweep(ctx, next.Lines)
		if err != nil {
			return nil, nil, err
		}
		if len(notices) > 0 {
			obs.RecordStockCaps(len(notices))
			notices.Add(notice.Notice{Code: notice.CodeCheckoutNeedsReview})
		}
		next.Lines = lines
		return nil, notices, nil
	})
}

// Handoff passes a clean cart to the order pipeline: the coupon usage is
// recorded and the stored cart is dropped. A cart needing review is returned
// without hand-off.
func (s *Service) Handoff(ctx context.Context, c *Cart) (Result, error) {
	if !c.HasProducts() {
		return Result{}, fmt.Errorf("cart %s is empty: %w", c.ID, ErrInvalidInput)
	}
	res, err := s.CheckoutSweep(ctx, c)
	if err != nil || res.Notices.Has(notice.CodeCheckoutNeedsReview) || !res.Cart.HasProducts() {
		return res, err
	}
	if id := res.Cart.Context.CouponID; id != 0 && s.Usage != nil {
		if err := s.Usage.RecordCouponUsage(ctx, id, res.Cart.ID); err != nil {
			return Result{}, fmt.Errorf("record coupon usage: %w", err)
		}
	}
	if s.Store != nil {
		if err := s.Store.Delete(ctx, res.Cart.ID); err != nil {
			s.Logger.Warn().Err(err).Str("cart_id", res.Cart.ID).Msg("drop handed off cart")
		}
	}
	res.HandedOff = true
	return res, nil
}

type mutation func(ctx context.Context, next *Cart) (notice.Rejections, notice.List, error)

// mutate applies fn to a copy of c, recomputes and stores it. Rejections leave c untouched.
func (s *Service) mutate(ctx context.Context, op string, c *Cart, fn mutation) (Result, error) {
	ctx, span := tracer.Start(ctx, "cart."+op)
	defer span.End()
	span.SetAttributes(attribute.String("cart.id", c.ID))

	next := c.Clone()
	var notices notice.List
	if fn != nil {
		rej, ns, err := fn(ctx, next)
		if err != nil {
			return s.fail(span, op, err)
		}
		if !rej.Empty() {
			return s.reject(op, c, rej...), nil
		}
		notices = ns
	}
	more, err := s.refresh(ctx, next, c.Lines)
	if err != nil {
		return s.fail(span, op, err)
	}
	notices = append(notices, more...)
	s.commit(ctx, next, &notices)
	obs.RecordCartMutation(op, "ok")
	return Result{Cart: next, Notices: notices}, nil
}

func (s *Service) reject(op string, c *Cart, rejected ...notice.Code) Result {
	obs.RecordCartMutation(op, "rejected")
	for _, code := range rejected {
		obs.RecordCartRejection(string(code))
	}
	s.Logger.Debug().Str("cart_id", c.ID).Str("op", op).Interface("codes", rejected).Msg("cart mutation rejected")
	return Result{Cart: c, Rejections: notice.Rejections(rejected)}
}

func (s *Service) fail(span trace.Span, op string, err error) (Result, error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	obs.RecordCartMutation(op, "error")
	return Result{}, err
}

// refresh is the full recompute pipeline: reprice, re-validate the coupon,
// derive the fee lines from the discounted goods, redeem the voucher credit,
// then publish totals and the checksum.
func (s *Service) refresh(ctx context.Context, c *Cart, previous lineitem.Lines) (notice.List, error) {
	start := time.Now()
	defer func() { obs.ObserveCartRecompute(time.Since(start)) }()

	settings := s.pricingSettings(c)
	base, notices, err := s.Pricing.Reprice(ctx, c.Lines.Base(), settings)
	if err != nil {
		return nil, err
	}
	if !base.HasProducts() {
		c.reset()
		return notices, s.finish(ctx, c)
	}

	active, valid, couponNotices, err := s.Coupons.Active(ctx, base, c.Context.CouponID, s.customer(c))
	if err != nil {
		return nil, err
	}
	if valid {
		base = coupon.Apply(base, active)
	} else {
		base = coupon.Strip(base)
		if c.Context.CouponID != 0 {
			s.Logger.Warn().Str("cart_id", c.ID).Int64("coupon_id", c.Context.CouponID).Str("code", string(notice.CodeCouponInvalidated)).Msg("coupon dropped")
			obs.RecordCouponInvalidation("ineligible")
			c.Context.CouponID = 0
		}
	}
	notices = append(notices, couponNotices...)

	specials, derived := DeriveSpecialLines(base, c.Context)
	if derived.Has(notice.CodeFreeGiftRemoved) {
		s.Logger.Warn().Str("cart_id", c.ID).Str("code", string(notice.CodeFreeGiftRemoved)).Msg("free gift threshold no longer met")
		c.Context.FreeGift = nil
	}
	notices = append(notices, derived...)

	specials, err = s.Pricing.ApplyTax(ctx, specials, settings.Country)
	if err != nil {
		return nil, err
	}
	if valid {
		specials = coupon.ApplyToShipping(specials, active)
	}
	lines := append(base, specials...)
	if voucher, ok := VoucherLine(lines, c.Context.VoucherCredit); ok {
		lines = append(lines, voucher)
	}

	lines, changed, err := s.Pricing.Publish(ctx, SortShippingLast(lines), previous, settings)
	if err != nil {
		return nil, err
	}
	c.Lines = lines
	return append(notices, changed...), s.finish(ctx, c)
}

func (s *Service) finish(ctx context.Context, c *Cart) error {
	totals, err := s.Pricing.Summarize(ctx, c.Lines, s.pricingSettings(c))
	if err != nil {
		return err
	}
	sum, err := Checksum(c.Lines)
	if err != nil {
		return err
	}
	_, goodsGross := goods(c.Lines)
	c.Totals = totals
	c.Checksum = sum
	c.FavourableShipping = FavourableShipping(s.Settings.ShippingMethods, c.Context.Country, goodsGross)
	c.UpdatedAt = s.now()
	return nil
}

// commit persists the cart. A failed write is a soft notice, the mutation still succeeds.
func (s *Service) commit(ctx context.Context, c *Cart, notices *notice.List) {
	if s.Store == nil {
		return
	}
	if err := s.Store.Save(ctx, c); err != nil {
		s.Logger.Warn().Err(err).Str("cart_id", c.ID).Str("code", string(notice.CodePersistFailed)).Msg("cart persist failed")
		notices.Add(notice.Notice{Code: notice.CodePersistFailed})
	}
}

func (s *Service) pricingSettings(c *Cart) pricing.Settings {
	country := c.Context.Country
	if country == "" {
		country = s.Settings.Country
	}
	return pricing.Settings{
		Country:              country,
		CustomerGroupID:      c.Context.CustomerGroupID,
		Currencies:           s.Settings.Currencies,
		BulkAcrossVariations: s.Settings.BulkAcrossVariations,
	}
}

func (s *Service) customer(c *Cart) coupon.Customer {
	return coupon.Customer{ID: c.Context.CustomerID, NewCustomer: c.Context.NewCustomer}
}

// prepare validates a product request against the cart and returns the line
// to place: either a fresh line or the merge target with the summed quantity.
func (s *Service) prepare(ctx context.Context, c *Cart, req AddRequest) (lineitem.Line, notice.Rejections, error) {
	var rej notice.Rejections
	if !req.Quantity.IsPositive() {
		rej.Add(notice.CodeInvalidQuantity)
		return lineitem.Line{}, rej, nil
	}
	if s.Settings.PricesLoginOnly && c.Context.CustomerID == 0 {
		rej.Add(notice.CodeLoginRequired)
	}
	product, err := s.Catalog.Product(ctx, req.ProductID)
	if errors.Is(err, catalog.ErrProductNotFound) {
		rej.Add(notice.CodeProductNotFound)
		return lineitem.Line{}, rej, nil
	}
	if err != nil {
		return lineitem.Line{}, nil, err
	}

	line := lineitem.New(lineitem.KindProduct, "", req.Quantity, decimal.Zero)
	line.Attributes = append(lineitem.Attributes(nil), req.Attributes...)
	product.Decorate(&line)
	if req.Unique {
		line.GroupToken = uuid.NewString()
	}
	if i := mergeTarget(c.Lines, line); i >= 0 {
		merged := c.Lines[i].Clone()
		merged.Quantity = merged.Quantity.Add(req.Quantity)
		line = merged
	}
	productQty := c.Lines.ProductQuantity(product.ID).Add(req.Quantity)
	merge(&rej, checkLimits(product, line.Quantity, productQty, line.Attributes))
	return line, rej, nil
}

// component builds a bundle child. ok is false for an invalid component.
func (s *Service) component(ctx context.Context, parent lineitem.Line, req ComponentRequest) (lineitem.Line, bool, error) {
	if req.ComponentID <= 0 || !req.Quantity.IsPositive() {
		return lineitem.Line{}, false, nil
	}
	product, err := s.Catalog.Product(ctx, req.ProductID)
	if errors.Is(err, catalog.ErrProductNotFound) {
		return lineitem.Line{}, false, nil
	}
	if err != nil {
		return lineitem.Line{}, false, err
	}
	if product.PriceOnRequest {
		return lineitem.Line{}, false, nil
	}
	qty := req.Quantity
	if !req.IgnoreMultiplier {
		qty = qty.Mul(parent.Quantity)
	}
	child := lineitem.New(lineitem.KindBundleComponent, "", qty, decimal.Zero)
	product.Decorate(&child)
	child.GroupToken = parent.GroupToken
	child.BundleComponentID = req.ComponentID
	child.IgnoreMultiplier = req.IgnoreMultiplier
	return child, true, nil
}

// capped allocates the prospective cart and reports whether any added line
// would receive less than it asked for.
func (s *Service) capped(ctx context.Context, prospective, added lineitem.Lines) (bool, error) {
	grants, _, err := s.Stock.Allocate(ctx, prospective, nil)
	if err != nil {
		return false, err
	}
	for _, g := range grants {
		if g.Capped() && added.Index(g.LineID) >= 0 {
			return true, nil
		}
	}
	return false, nil
}

// place replaces the line with the same id or appends it.
func place(c *Cart, l lineitem.Line) {
	l.ModifiedAt = c.tick()
	if i := c.Lines.Index(l.ID); i >= 0 {
		c.Lines[i] = l
		return
	}
	c.Lines = append(c.Lines, l)
}

// rescaleChildren keeps bundle component quantities proportional to the parent.
func rescaleChildren(lines lineitem.Lines, parent lineitem.Line, qty decimal.Decimal) {
	if !parent.IsBundleParent() || !parent.Quantity.IsPositive() {
		return
	}
	for i := range lines {
		l := &lines[i]
		if l.GroupToken != parent.GroupToken || !l.IsBundleChild() || l.IgnoreMultiplier {
			continue
		}
		l.Quantity = l.Quantity.Div(parent.Quantity).Mul(qty)
	}
}

func removeWithChildren(lines lineitem.Lines, remove map[string]bool) lineitem.Lines {
	if len(remove) == 0 {
		return lines
	}
	groups := make(map[string]bool)
	for _, l := range lines {
		if remove[l.ID] && l.IsBundleParent() {
			groups[l.GroupToken] = true
		}
	}
	return lines.Filter(func(l lineitem.Line) bool {
		return !remove[l.ID] && !(l.IsBundleChild() && groups[l.GroupToken])
	})
}
