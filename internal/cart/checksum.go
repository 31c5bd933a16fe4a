package cart

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/gowebpki/jcs"

	"github.com/noah-isme/toko-cart/internal/lineitem"
)

type lineDigest struct {
	ProductID       int64  `json:"productId"`
	Quantity        string `json:"quantity"`
	ShippingClassID int64  `json:"shippingClassId"`
	Kind            int    `json:"kind"`
	UnitNetPrice    string `json:"unitNetPrice"`
	NetTotal        string `json:"netTotal"`
	Hint            string `json:"hint"`
}

type cartDigest struct {
	Lines           []string `json:"lines"`
	Count           int      `json:"count"`
	LongestDelivery int      `json:"longestDelivery"`
}

// Checksum is an order independent digest of the semantically relevant line
// fields. Line digests are sorted before the outer digest is taken.
func Checksum(lines lineitem.Lines) (string, error) {
	digests := make([]string, 0, len(lines))
	for _, l := range lines {
		d, err := digest(lineDigest{
			ProductID:       l.ProductID,
			Quantity:        l.Quantity.String(),
			ShippingClassID: l.ShippingClassID,
			Kind:            int(l.Kind),
			UnitNetPrice:    l.UnitNetPrice.String(),
			NetTotal:        l.NetTotal().String(),
			Hint:            l.Hint,
		})
		if err != nil {
			return "", fmt.Errorf("checksum line %s: %w", l.ID, err)
		}
		digests = append(digests, d)
	}
	sort.Strings(digests)
	return digest(cartDigest{Lines: digests, Count: len(lines), LongestDelivery: lines.LongestDelivery()})
}

func digest(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
