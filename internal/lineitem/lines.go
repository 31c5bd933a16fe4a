package lineitem

import "github.com/shopspring/decimal"

// Lines is the flat, ordered arena of cart rows. Bundle relations are resolved
// through GroupToken foreign keys, never pointers.
type Lines []Line

// Clone deep copies every line.
func (ls Lines) Clone() Lines {
	out := make(Lines, len(ls))
	for i, l := range ls {
		out[i] = l.Clone()
	}
	return out
}

// Index returns the position of the line with id, or -1.
func (ls Lines) Index(id string) int {
	for i := range ls {
		if ls[i].ID == id {
			return i
		}
	}
	return -1
}

// Filter returns the lines matching keep, preserving order.
func (ls Lines) Filter(keep func(Line) bool) Lines {
	out := make(Lines, 0, len(ls))
	for _, l := range ls {
		if keep(l) {
			out = append(out, l)
		}
	}
	return out
}

// Base returns product and bundle lines, dropping every derived special line.
func (ls Lines) Base() Lines {
	return ls.Filter(func(l Line) bool { return !l.Kind.IsSpecial() })
}

// HasProducts reports whether any Product-kind line is present.
func (ls Lines) HasProducts() bool {
	for _, l := range ls {
		if l.Kind == KindProduct {
			return true
		}
	}
	return false
}

// Group is a bundle parent index with its children positions.
type Group struct {
	Parent   int
	Children []int
}

// Groups builds the bundle index once per pass. Groups without a parent have Parent -1.
func (ls Lines) Groups() map[string]*Group {
	groups := make(map[string]*Group)
	for i, l := range ls {
		if l.GroupToken == "" {
			continue
		}
		g, ok := groups[l.GroupToken]
		if !ok {
			g = &Group{Parent: -1}
			groups[l.GroupToken] = g
		}
		if l.IsBundleParent() {
			g.Parent = i
		} else {
			g.Children = append(g.Children, i)
		}
	}
	return groups
}

// ProductQuantity sums quantities of all priced lines referencing the product.
func (ls Lines) ProductQuantity(productID int64) decimal.Decimal {
	total := decimal.Zero
	for _, l := range ls {
		if l.IsPriced() && l.ProductID == productID {
			total = total.Add(l.Quantity)
		}
	}
	return total
}

// FamilyQuantity sums quantities of all priced lines sharing the parent product.
// Lines without a parent count as their own family.
func (ls Lines) FamilyQuantity(parentID int64) decimal.Decimal {
	total := decimal.Zero
	for _, l := range ls {
		if !l.IsPriced() {
			continue
		}
		if l.ParentProductID == parentID || (l.ParentProductID == 0 && l.ProductID == parentID) {
			total = total.Add(l.Quantity)
		}
	}
	return total
}

// LatestFor returns the most recently modified line referencing the product.
func (ls Lines) LatestFor(productID int64) (Line, bool) {
	var (
		found Line
		ok    bool
	)
	for _, l := range ls {
		if l.ProductID != productID {
			continue
		}
		if !ok || l.ModifiedAt > found.ModifiedAt {
			found = l
			ok = true
		}
	}
	return found, ok
}

// Weight sums the weights of product and bundle lines.
func (ls Lines) Weight() decimal.Decimal {
	total := decimal.Zero
	for _, l := range ls {
		if !l.Kind.IsSpecial() {
			total = total.Add(l.TotalWeight())
		}
	}
	return total
}

// LongestDelivery returns the largest delivery window across lines.
func (ls Lines) LongestDelivery() int {
	longest := 0
	for _, l := range ls {
		if l.DeliveryDays > longest {
			longest = l.DeliveryDays
		}
	}
	return longest
}
