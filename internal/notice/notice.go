// Package notice defines the user-correctable rejection codes and the soft
// notices the cart engines report instead of returning errors.
package notice

// Code identifies a rejection or notice.
type Code string

// Rejection codes returned by add/update flows. They are user correctable and
// never surfaced as errors.
const (
	CodeInvalidQuantity        Code = "invalid_quantity"
	CodeNotDivisible           Code = "not_divisible"
	CodeProductNotFound        Code = "product_not_found"
	CodeOutOfStock             Code = "out_of_stock"
	CodeBelowMinimumQuantity   Code = "below_minimum_quantity"
	CodeNotPurchaseInterval    Code = "not_purchase_interval"
	CodeMaxQuantityExceeded    Code = "max_quantity_exceeded"
	CodeMissingVariation       Code = "missing_variation"
	CodePriceOnRequest         Code = "price_on_request"
	CodeLoginRequired          Code = "login_required"
	CodeTokenMissing           Code = "token_missing"
	CodeTokenInvalid           Code = "token_invalid"
	CodeBundleComponentInvalid Code = "bundle_component_invalid"
	CodeCouponNotFound         Code = "coupon_not_found"
	CodeCouponNotEligible      Code = "coupon_not_eligible"
	CodeCouponAttemptsExceeded Code = "coupon_attempts_exceeded"
)

// Soft notices. The offending derived state has already been healed when one
// of these is reported.
const (
	CodeQuantityAdjusted    Code = "quantity_adjusted"
	CodeLineRemoved         Code = "line_removed"
	CodePriceChanged        Code = "price_changed"
	CodeCouponInvalidated   Code = "coupon_invalidated"
	CodeFreeGiftRemoved     Code = "free_gift_removed"
	CodePersistFailed       Code = "persist_failed"
	CodeCorruptLineDropped  Code = "corrupt_line_dropped"
	CodeCheckoutNeedsReview Code = "checkout_needs_review"
)

// Notice is a side-channel message attached to a cart mutation.
type Notice struct {
	Code      Code   `json:"code"`
	LineID    string `json:"lineId,omitempty"`
	ProductID int64  `json:"productId,omitempty"`
	Detail    string `json:"detail,omitempty"`
}

// List collects notices in the order they were raised.
type List []Notice

// Add appends a notice.
func (l *List) Add(n Notice) {
	*l = append(*l, n)
}

// Has reports whether a notice with the code was raised.
func (l List) Has(code Code) bool {
	for _, n := range l {
		if n.Code == code {
			return true
		}
	}
	return false
}

// Rejections is an ordered list of rejection codes without duplicates.
type Rejections []Code

// Add appends code unless it is already present.
func (r *Rejections) Add(code Code) {
	for _, existing := range *r {
		if existing == code {
			return
		}
	}
	*r = append(*r, code)
}

// Empty reports whether no rejection was recorded.
func (r Rejections) Empty() bool {
	return len(r) == 0
}
