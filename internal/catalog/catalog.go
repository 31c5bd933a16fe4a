package catalog

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-cart/internal/lineitem"
)

// ErrProductNotFound indicates the catalog does not know the product.
var ErrProductNotFound = errors.New("catalog: product not found")

// Tier is one step of a tiered price. CustomerGroupID 0 applies to every group.
type Tier struct {
	MinQuantity     decimal.Decimal `json:"minQuantity"`
	NetPrice        decimal.Decimal `json:"netPrice"`
	CustomerGroupID int64           `json:"customerGroupId,omitempty"`
}

// Component is a backing stock item consumed when the product is sold.
type Component struct {
	ComponentID int64           `json:"componentId"`
	StockFactor decimal.Decimal `json:"stockFactor"`
	PackSize    decimal.Decimal `json:"packSize"`
}

// Units is stockFactor*packSize with both defaulting to 1.
func (c Component) Units() decimal.Decimal {
	factor := c.StockFactor
	if factor.IsZero() {
		factor = decimal.NewFromInt(1)
	}
	pack := c.PackSize
	if pack.IsZero() {
		pack = decimal.NewFromInt(1)
	}
	return factor.Mul(pack)
}

// Product is the catalog snapshot the cart engines rely on.
type Product struct {
	ID                 int64                     `json:"id"`
	ParentID           int64                     `json:"parentId,omitempty"`
	Number             string                    `json:"number"`
	Name               string                    `json:"name"`
	ManufacturerID     int64                     `json:"manufacturerId,omitempty"`
	CategoryIDs        []int64                   `json:"categoryIds,omitempty"`
	TaxClassID         int64                     `json:"taxClassId"`
	ShippingClassID    int64                     `json:"shippingClassId,omitempty"`
	DeliveryDays       int                       `json:"deliveryDays,omitempty"`
	Weight             decimal.Decimal           `json:"weight"`
	TrackStock         bool                      `json:"trackStock"`
	AllowNegativeStock bool                      `json:"allowNegativeStock"`
	PerVariantStock    bool                      `json:"perVariantStock"`
	Divisible          bool                      `json:"divisible"`
	MinOrderQuantity   decimal.Decimal           `json:"minOrderQuantity"`
	PurchaseInterval   decimal.Decimal           `json:"purchaseInterval"`
	MaxOrderQuantity   decimal.Decimal           `json:"maxOrderQuantity"`
	PriceOnRequest     bool                      `json:"priceOnRequest"`
	RequiredProperties []int64                   `json:"requiredProperties,omitempty"`
	Tiers              []Tier                    `json:"tiers,omitempty"`
	Surcharges         map[int64]decimal.Decimal `json:"surcharges,omitempty"`
	Components         []Component               `json:"components,omitempty"`
	GiftThreshold      decimal.Decimal           `json:"giftThreshold"`
}

// Service answers the catalog questions the cart engines ask.
type Service interface {
	Product(ctx context.Context, productID int64) (Product, error)
	TieredNetPrice(ctx context.Context, productID int64, qty decimal.Decimal, attrs lineitem.Attributes, customerGroupID int64) (decimal.Decimal, error)
	BackingComponents(ctx context.Context, productID int64) ([]Component, error)
}

// PriceFor evaluates the tier table for qty and group and adds the variation surcharges.
func (p Product) PriceFor(qty decimal.Decimal, attrs lineitem.Attributes, customerGroupID int64) decimal.Decimal {
	best, found := p.bestTier(qty, customerGroupID)
	if !found {
		best, found = p.bestTier(qty, 0)
	}
	price := decimal.Zero
	if found {
		price = best.NetPrice
	}
	for _, attr := range attrs {
		if attr.ValueID == 0 {
			continue
		}
		if s, ok := p.Surcharges[attr.ValueID]; ok {
			price = price.Add(s)
		}
	}
	return price
}

// bestTier picks the highest tier reached by qty among tiers of exactly group.
func (p Product) bestTier(qty decimal.Decimal, group int64) (Tier, bool) {
	var (
		best  Tier
		found bool
	)
	for _, tier := range p.Tiers {
		if tier.CustomerGroupID != group || tier.MinQuantity.GreaterThan(qty) {
			continue
		}
		if !found || tier.MinQuantity.GreaterThan(best.MinQuantity) {
			best, found = tier, true
		}
	}
	return best, found
}

// Decorate copies product master data onto a line.
func (p Product) Decorate(l *lineitem.Line) {
	l.ProductID = p.ID
	l.ParentProductID = p.ParentID
	l.ProductNumber = p.Number
	l.ManufacturerID = p.ManufacturerID
	l.CategoryIDs = append([]int64(nil), p.CategoryIDs...)
	l.TaxClassID = p.TaxClassID
	l.ShippingClassID = p.ShippingClassID
	l.DeliveryDays = p.DeliveryDays
	l.UnitWeight = p.Weight
	if l.Name == "" {
		l.Name = p.Name
	}
	for i := range l.Attributes {
		l.Attributes[i].Surcharge = decimal.Zero
		if l.Attributes[i].ValueID != 0 {
			l.Attributes[i].Surcharge = p.Surcharges[l.Attributes[i].ValueID]
		}
	}
}
