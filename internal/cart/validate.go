package cart

import (
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-cart/internal/catalog"
	"github.com/noah-isme/toko-cart/internal/lineitem"
	"github.com/noah-isme/toko-cart/internal/notice"
)

// checkLimits applies the per-product order rules. lineQty is the quantity
// the line ends up with, productQty the quantity of the product across the cart.
func checkLimits(p catalog.Product, lineQty, productQty decimal.Decimal, attrs lineitem.Attributes) notice.Rejections {
	var rej notice.Rejections
	if p.PriceOnRequest {
		rej.Add(notice.CodePriceOnRequest)
	}
	if !p.Divisible && !lineQty.IsInteger() {
		rej.Add(notice.CodeNotDivisible)
	}
	for _, propertyID := range p.RequiredProperties {
		if !attrs.Has(propertyID) {
			rej.Add(notice.CodeMissingVariation)
			break
		}
	}
	if p.MaxOrderQuantity.IsPositive() && productQty.GreaterThan(p.MaxOrderQuantity) {
		rej.Add(notice.CodeMaxQuantityExceeded)
	}
	if p.MinOrderQuantity.IsPositive() && lineQty.LessThan(p.MinOrderQuantity) {
		rej.Add(notice.CodeBelowMinimumQuantity)
	}
	if p.PurchaseInterval.IsPositive() && !lineQty.Mod(p.PurchaseInterval).IsZero() {
		rej.Add(notice.CodeNotPurchaseInterval)
	}
	return rej
}

func merge(dst *notice.Rejections, src notice.Rejections) {
	for _, code := range src {
		dst.Add(code)
	}
}
