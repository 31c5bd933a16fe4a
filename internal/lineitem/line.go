// Package lineitem describes one row of a cart: a product, a fee, a discount
// or a bundle component.
package lineitem

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-cart/internal/money"
)

// Kind tags the variant of a line. The numeric values are part of the cart
// checksum and must stay stable.
type Kind int

const (
	KindProduct           Kind = 1
	KindShippingCost      Kind = 2
	KindCoupon            Kind = 3
	KindVoucherRedeem     Kind = 4
	KindPaymentSurcharge  Kind = 5
	KindShippingSurcharge Kind = 6
	KindNewCustomerCoupon Kind = 7
	KindCashOnDeliveryFee Kind = 8
	KindPackaging         Kind = 10
	KindFreeGift          Kind = 11
	KindPaymentFee        Kind = 14
	KindBundleComponent   Kind = 15
)

func (k Kind) String() string {
	switch k {
	case KindProduct:
		return "product"
	case KindShippingCost:
		return "shipping_cost"
	case KindCoupon:
		return "coupon"
	case KindVoucherRedeem:
		return "voucher_redeem"
	case KindPaymentSurcharge:
		return "payment_surcharge"
	case KindShippingSurcharge:
		return "shipping_surcharge"
	case KindNewCustomerCoupon:
		return "new_customer_coupon"
	case KindCashOnDeliveryFee:
		return "cash_on_delivery_fee"
	case KindPackaging:
		return "packaging"
	case KindFreeGift:
		return "free_gift"
	case KindPaymentFee:
		return "payment_fee"
	case KindBundleComponent:
		return "bundle_component"
	default:
		return "unknown"
	}
}

// IsShippingClass reports whether lines of this kind are sorted to the end of the cart.
func (k Kind) IsShippingClass() bool {
	return k == KindShippingCost || k == KindShippingSurcharge || k == KindPackaging
}

// IsSpecial reports whether lines of this kind are derived and regenerated on every mutation.
func (k Kind) IsSpecial() bool {
	return k != KindProduct && k != KindBundleComponent
}

// IsCoupon reports whether the kind is produced by the coupon engine.
func (k Kind) IsCoupon() bool {
	return k == KindCoupon || k == KindNewCustomerCoupon
}

// Totals holds the display figures of a line in one currency.
type Totals struct {
	NetSingle   decimal.Decimal `json:"netSingle"`
	GrossSingle decimal.Decimal `json:"grossSingle"`
	NetTotal    decimal.Decimal `json:"netTotal"`
	GrossTotal  decimal.Decimal `json:"grossTotal"`

	NetSingleText   string `json:"netSingleText"`
	GrossSingleText string `json:"grossSingleText"`
	NetTotalText    string `json:"netTotalText"`
	GrossTotalText  string `json:"grossTotalText"`
}

// Localized caches Totals per currency code. It is derived, never authoritative.
type Localized map[string]Totals

// Line is one cart row.
type Line struct {
	ID                string           `json:"id"`
	Kind              Kind             `json:"kind"`
	ProductID         int64            `json:"productId,omitempty"`
	ParentProductID   int64            `json:"parentProductId,omitempty"`
	ProductNumber     string           `json:"productNumber,omitempty"`
	ManufacturerID    int64            `json:"manufacturerId,omitempty"`
	CategoryIDs       []int64          `json:"categoryIds,omitempty"`
	Name              string           `json:"name"`
	Quantity          decimal.Decimal  `json:"quantity"`
	UnitNetPrice      decimal.Decimal  `json:"unitNetPrice"`
	TaxClassID        int64            `json:"taxClassId,omitempty"`
	TaxRateOverride   *decimal.Decimal `json:"taxRateOverride,omitempty"`
	TaxRate           decimal.Decimal  `json:"taxRate"`
	GroupToken        string           `json:"groupToken,omitempty"`
	BundleComponentID int64            `json:"bundleComponentId,omitempty"`
	IgnoreMultiplier  bool             `json:"ignoreMultiplier,omitempty"`
	Attributes        Attributes       `json:"attributes,omitempty"`
	ShippingClassID   int64            `json:"shippingClassId,omitempty"`
	DeliveryDays      int              `json:"deliveryDays,omitempty"`
	UnitWeight        decimal.Decimal  `json:"unitWeight"`
	Hint              string           `json:"hint,omitempty"`
	CouponCode        string           `json:"couponCode,omitempty"`
	Localized         Localized        `json:"localized,omitempty"`
	BundleTotals      Localized        `json:"bundleTotals,omitempty"`
	DisplayQuantity   decimal.Decimal  `json:"displayQuantity"`
	ModifiedAt        int64            `json:"modifiedAt"`
}

// New returns a line with a fresh identifier.
func New(kind Kind, name string, qty, unitNet decimal.Decimal) Line {
	return Line{
		ID:           uuid.NewString(),
		Kind:         kind,
		Name:         name,
		Quantity:     qty,
		UnitNetPrice: unitNet,
	}
}

// IsBundleParent reports whether the line anchors a bundle group.
func (l Line) IsBundleParent() bool {
	return l.GroupToken != "" && l.BundleComponentID == 0
}

// IsBundleChild reports whether the line is a component of a bundle group.
func (l Line) IsBundleChild() bool {
	return l.GroupToken != "" && l.BundleComponentID > 0
}

// IsPriced reports whether the pricing engine looks the line up in the catalog.
func (l Line) IsPriced() bool {
	return (l.Kind == KindProduct || l.Kind == KindBundleComponent) && l.ProductID > 0
}

// NetTotal is the exact extended net amount.
func (l Line) NetTotal() decimal.Decimal {
	return money.LineNet(l.UnitNetPrice, l.Quantity)
}

// GrossTotal is the extended gross amount rounded to display precision.
func (l Line) GrossTotal() decimal.Decimal {
	return money.LineGross(l.UnitNetPrice, l.Quantity, l.TaxRate)
}

// UnitGross is the per-unit gross price.
func (l Line) UnitGross() decimal.Decimal {
	return money.UnitGross(l.UnitNetPrice, l.TaxRate)
}

// TotalWeight is quantity times unit weight.
func (l Line) TotalWeight() decimal.Decimal {
	return l.UnitWeight.Mul(l.Quantity)
}

// Clone returns a deep copy so derived-line rebuilding never aliases slices or maps.
func (l Line) Clone() Line {
	out := l
	if l.CategoryIDs != nil {
		out.CategoryIDs = append([]int64(nil), l.CategoryIDs...)
	}
	if l.Attributes != nil {
		out.Attributes = append(Attributes(nil), l.Attributes...)
	}
	if l.TaxRateOverride != nil {
		rate := *l.TaxRateOverride
		out.TaxRateOverride = &rate
	}
	out.Localized = cloneLocalized(l.Localized)
	out.BundleTotals = cloneLocalized(l.BundleTotals)
	return out
}

func cloneLocalized(in Localized) Localized {
	if in == nil {
		return nil
	}
	out := make(Localized, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
