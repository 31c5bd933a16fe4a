package cart

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	limiter "github.com/ulule/limiter/v3"

	"github.com/noah-isme/toko-cart/internal/common"
	"github.com/noah-isme/toko-cart/internal/lineitem"
	"github.com/noah-isme/toko-cart/internal/notice"
)

// Locker serialises mutations of one cart across API instances.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// Handler wires cart services to HTTP.
type Handler struct {
	Svc           *Service
	Locker        Locker
	LockTTL       time.Duration
	CouponLimiter *limiter.Limiter
	Validate      *validator.Validate
	Logger        zerolog.Logger
	// Checkout wraps the checkout route only, e.g. with idempotency keys.
	Checkout []func(http.Handler) http.Handler
}

type attributeRequest struct {
	PropertyID int64  `json:"propertyId" validate:"required,gt=0"`
	ValueID    int64  `json:"valueId" validate:"gte=0"`
	FreeText   string `json:"freeText" validate:"max=255"`
}

type addLineRequest struct {
	ProductID  int64              `json:"productId" validate:"required,gt=0"`
	Quantity   decimal.Decimal    `json:"quantity"`
	Attributes []attributeRequest `json:"attributes" validate:"dive"`
	Unique     bool               `json:"unique"`
}

type componentRequest struct {
	ComponentID      int64           `json:"componentId" validate:"required,gt=0"`
	ProductID        int64           `json:"productId" validate:"required,gt=0"`
	Quantity         decimal.Decimal `json:"quantity"`
	IgnoreMultiplier bool            `json:"ignoreMultiplier"`
}

type addBundleRequest struct {
	addLineRequest
	Components []componentRequest `json:"components" validate:"required,min=1,dive"`
}

type variantBoxRequest struct {
	Items []addLineRequest `json:"items" validate:"required,min=1,dive"`
}

type quantitiesRequest struct {
	Quantities map[string]decimal.Decimal `json:"quantities" validate:"required,min=1"`
}

type idsRequest struct {
	LineIDs []string `json:"lineIds" validate:"required,min=1,dive,required"`
}

type selectRequest struct {
	ID int64 `json:"id" validate:"gte=0"`
}

type couponRequest struct {
	Code string `json:"code" validate:"required,max=64"`
}

type creditRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// Routes mounts the cart endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/carts/{id}", h.Get)
	r.Post("/carts/{id}/lines", h.AddLine)
	r.Patch("/carts/{id}/lines", h.UpdateQuantities)
	r.Delete("/carts/{id}/lines", h.RemoveLines)
	r.Post("/carts/{id}/bundles", h.AddBundle)
	r.Post("/carts/{id}/variant-box", h.AddVariantBox)
	r.Put("/carts/{id}/order", h.Reorder)
	r.Post("/carts/{id}/recompute", h.Recompute)
	r.Post("/carts/{id}/coupon", h.ApplyCoupon)
	r.Delete("/carts/{id}/coupon", h.RemoveCoupon)
	r.Put("/carts/{id}/shipping", h.SetShipping)
	r.Put("/carts/{id}/payment", h.SetPayment)
	r.Put("/carts/{id}/packaging", h.SetPackaging)
	r.Put("/carts/{id}/free-gift", h.SelectFreeGift)
	r.Put("/carts/{id}/voucher-credit", h.SetVoucherCredit)
	r.With(h.Checkout...).Post("/carts/{id}/checkout", h.CheckoutCart)
}

// Get returns the cart with its lines and totals.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	c, err := h.load(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": c})
}

// AddLine adds or merges a product line.
func (h *Handler) AddLine(w http.ResponseWriter, r *http.Request) {
	var payload addLineRequest
	if !h.decode(w, r, &payload) {
		return
	}
	h.run(w, r, func(ctx context.Context, c *Cart) (Result, error) {
		return h.Svc.AddLine(ctx, c, payload.toRequest())
	})
}

// AddBundle adds a bundle parent with its components.
func (h *Handler) AddBundle(w http.ResponseWriter, r *http.Request) {
	var payload addBundleRequest
	if !h.decode(w, r, &payload) {
		return
	}
	req := BundleRequest{AddRequest: payload.toRequest()}
	for _, comp := range payload.Components {
		req.Components = append(req.Components, ComponentRequest{
			ComponentID:      comp.ComponentID,
			ProductID:        comp.ProductID,
			Quantity:         comp.Quantity,
			IgnoreMultiplier: comp.IgnoreMultiplier,
		})
	}
	h.run(w, r, func(ctx context.Context, c *Cart) (Result, error) {
		return h.Svc.AddBundle(ctx, c, req)
	})
}

// AddVariantBox adds several variations at once.
func (h *Handler) AddVariantBox(w http.ResponseWriter, r *http.Request) {
	var payload variantBoxRequest
	if !h.decode(w, r, &payload) {
		return
	}
	items := make([]AddRequest, 0, len(payload.Items))
	for _, item := range payload.Items {
		items = append(items, item.toRequest())
	}
	h.run(w, r, func(ctx context.Context, c *Cart) (Result, error) {
		return h.Svc.AddVariantBox(ctx, c, items)
	})
}

// UpdateQuantities changes line quantities.
func (h *Handler) UpdateQuantities(w http.ResponseWriter, r *http.Request) {
	var payload quantitiesRequest
	if !h.decode(w, r, &payload) {
		return
	}
	h.run(w, r, func(ctx context.Context, c *Cart) (Result, error) {
		return h.Svc.UpdateQuantities(ctx, c, payload.Quantities)
	})
}

// RemoveLines deletes product lines.
func (h *Handler) RemoveLines(w http.ResponseWriter, r *http.Request) {
	var payload idsRequest
	if !h.decode(w, r, &payload) {
		return
	}
	h.run(w, r, func(ctx context.Context, c *Cart) (Result, error) {
		return h.Svc.RemoveLines(ctx, c, payload.LineIDs)
	})
}

// Reorder changes the display order of the lines.
func (h *Handler) Reorder(w http.ResponseWriter, r *http.Request) {
	var payload idsRequest
	if !h.decode(w, r, &payload) {
		return
	}
	h.run(w, r, func(ctx context.Context, c *Cart) (Result, error) {
		return h.Svc.Reorder(ctx, c, payload.LineIDs)
	})
}

// Recompute reprices the cart and re-derives the special lines.
func (h *Handler) Recompute(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, h.Svc.RecomputeAll)
}

// ApplyCoupon activates a coupon code. Attempts are limited per cart.
func (h *Handler) ApplyCoupon(w http.ResponseWriter, r *http.Request) {
	var payload couponRequest
	if !h.decode(w, r, &payload) {
		return
	}
	if h.CouponLimiter != nil {
		lctx, err := h.CouponLimiter.Get(r.Context(), "coupon:"+chi.URLParam(r, "id"))
		if err != nil {
			h.Logger.Warn().Err(err).Msg("coupon limiter unavailable")
		} else if lctx.Reached {
			common.JSONError(w, http.StatusTooManyRequests, "REJECTED", "too many coupon attempts",
				notice.Rejections{notice.CodeCouponAttemptsExceeded})
			return
		}
	}
	h.run(w, r, func(ctx context.Context, c *Cart) (Result, error) {
		return h.Svc.ApplyCoupon(ctx, c, strings.TrimSpace(payload.Code))
	})
}

// RemoveCoupon clears the active coupon.
func (h *Handler) RemoveCoupon(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, h.Svc.RemoveCoupon)
}

// SetShipping selects a shipping method.
func (h *Handler) SetShipping(w http.ResponseWriter, r *http.Request) {
	h.selectBy(w, r, h.Svc.SetShipping)
}

// SetPayment selects a payment method.
func (h *Handler) SetPayment(w http.ResponseWriter, r *http.Request) {
	h.selectBy(w, r, h.Svc.SetPayment)
}

// SetPackaging selects a gift wrap.
func (h *Handler) SetPackaging(w http.ResponseWriter, r *http.Request) {
	h.selectBy(w, r, h.Svc.SetPackaging)
}

// SelectFreeGift chooses the free gift product.
func (h *Handler) SelectFreeGift(w http.ResponseWriter, r *http.Request) {
	h.selectBy(w, r, h.Svc.SelectFreeGift)
}

// SetVoucherCredit redeems a gift voucher credit.
func (h *Handler) SetVoucherCredit(w http.ResponseWriter, r *http.Request) {
	var payload creditRequest
	if !h.decode(w, r, &payload) {
		return
	}
	h.run(w, r, func(ctx context.Context, c *Cart) (Result, error) {
		return h.Svc.SetVoucherCredit(ctx, c, payload.Amount)
	})
}

// CheckoutCart runs the final stock sweep and hands a clean cart to the order pipeline.
func (h *Handler) CheckoutCart(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, h.Svc.Handoff)
}

func (h *Handler) selectBy(w http.ResponseWriter, r *http.Request, fn func(context.Context, *Cart, int64) (Result, error)) {
	var payload selectRequest
	if !h.decode(w, r, &payload) {
		return
	}
	h.run(w, r, func(ctx context.Context, c *Cart) (Result, error) {
		return fn(ctx, c, payload.ID)
	})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return false
	}
	if h.Validate != nil {
		if err := h.Validate.Struct(v); err != nil {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "validation failed", validationDetails(err))
			return false
		}
	}
	return true
}

// run loads the cart under its lock, applies fn and writes the result.
func (h *Handler) run(w http.ResponseWriter, r *http.Request, fn func(context.Context, *Cart) (Result, error)) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart service not configured", nil)
		return
	}
	var res Result
	err := h.withLock(r.Context(), chi.URLParam(r, "id"), func(ctx context.Context) error {
		c, err := h.load(r.WithContext(ctx))
		if err != nil {
			return err
		}
		res, err = fn(ctx, c)
		return err
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	if res.Rejected() {
		common.JSONError(w, http.StatusUnprocessableEntity, "REJECTED", "request rejected", res.Rejections)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data":      res.Cart,
		"notices":   res.Notices,
		"handedOff": res.HandedOff,
	})
}

func (h *Handler) withLock(ctx context.Context, id string, fn func(context.Context) error) error {
	if h.Locker == nil {
		return fn(ctx)
	}
	ttl := h.LockTTL
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	lockCtx, cancel := context.WithTimeout(ctx, ttl)
	defer cancel()
	return h.Locker.WithLock(lockCtx, "lock:cart:"+id, ttl, fn)
}

// load fetches the cart and binds it to the authenticated customer.
func (h *Handler) load(r *http.Request) (*Cart, error) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		return nil, ErrInvalidInput
	}
	customer, identified := common.CustomerFrom(r.Context())
	c, err := h.Svc.Load(r.Context(), id, customer.ID)
	if err != nil {
		return nil, err
	}
	if identified && (c.Context.CustomerID != customer.ID || c.Context.CustomerGroupID != customer.GroupID) {
		res, err := h.Svc.AssignCustomer(r.Context(), c, customer.ID, customer.GroupID, customer.NewCustomer)
		if err != nil {
			return nil, err
		}
		c = res.Cart
	}
	return c, nil
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	appErr := classify(err)
	if appErr == nil {
		h.Logger.Error().Err(err).Msg("cart request failed")
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unable to process cart", nil)
		return
	}
	common.WriteAppError(w, appErr)
}

// classify maps service errors onto API errors. Nil means unexpected.
func classify(err error) *common.AppError {
	var appErr *common.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	switch {
	case errors.Is(err, ErrLineNotFound):
		return common.NotFound(err)
	case errors.Is(err, ErrInvalidInput):
		return common.BadRequest(err.Error(), err)
	case errors.Is(err, context.DeadlineExceeded):
		return common.Conflict("cart is busy", err)
	}
	return nil
}

func (p addLineRequest) toRequest() AddRequest {
	attrs := make(lineitem.Attributes, 0, len(p.Attributes))
	for _, a := range p.Attributes {
		attrs = append(attrs, lineitem.Attribute{PropertyID: a.PropertyID, ValueID: a.ValueID, FreeText: a.FreeText})
	}
	return AddRequest{ProductID: p.ProductID, Quantity: p.Quantity, Attributes: attrs, Unique: p.Unique}
}

func validationDetails(err error) map[string]string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		out[fe.Namespace()] = fe.Tag()
	}
	return out
}
