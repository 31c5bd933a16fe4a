package lineitem

import (
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Attribute is one selected variation value. Free-text entries carry their
// literal text as part of the line identity.
type Attribute struct {
	PropertyID int64           `json:"propertyId"`
	ValueID    int64           `json:"valueId,omitempty"`
	FreeText   string          `json:"freeText,omitempty"`
	Name       string          `json:"name,omitempty"`
	Value      string          `json:"value,omitempty"`
	Surcharge  decimal.Decimal `json:"surcharge"`
}

// IsFreeText reports whether the attribute is compared by literal value.
func (a Attribute) IsFreeText() bool {
	return a.ValueID == 0
}

func (a Attribute) identity() string {
	if a.IsFreeText() {
		return strconv.FormatInt(a.PropertyID, 10) + "=t:" + a.FreeText
	}
	return strconv.FormatInt(a.PropertyID, 10) + "=v:" + strconv.FormatInt(a.ValueID, 10)
}

// Attributes is the set of selected variation values.
type Attributes []Attribute

// Key is an order-independent identity string of the selection.
func (a Attributes) Key() string {
	parts := make([]string, 0, len(a))
	for _, attr := range a {
		parts = append(parts, attr.identity())
	}
	sort.Strings(parts)
	return strings.Join(parts, "|")
}

// Equal reports whether both selections are exactly the same set.
func (a Attributes) Equal(b Attributes) bool {
	if len(a) != len(b) {
		return false
	}
	return a.Key() == b.Key()
}

// Has reports whether a value was chosen for the property.
func (a Attributes) Has(propertyID int64) bool {
	for _, attr := range a {
		if attr.PropertyID != propertyID {
			continue
		}
		if attr.ValueID > 0 || strings.TrimSpace(attr.FreeText) != "" {
			return true
		}
	}
	return false
}

// Surcharge sums the net surcharges of all selected values.
func (a Attributes) Surcharge() decimal.Decimal {
	total := decimal.Zero
	for _, attr := range a {
		total = total.Add(attr.Surcharge)
	}
	return total
}
