package cart_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-cart/internal/cart"
	"github.com/noah-isme/toko-cart/internal/catalog"
	"github.com/noah-isme/toko-cart/internal/lineitem"
	"github.com/noah-isme/toko-cart/internal/notice"
)

func add(t *testing.T, f *fixture, c *cart.Cart, req cart.AddRequest) *cart.Cart {
	t.Helper()
	res, err := f.svc.AddLine(context.Background(), c, req)
	require.NoError(t, err)
	require.Empty(t, res.Rejections)
	return res.Cart
}

func emptyCart(t *testing.T, f *fixture) *cart.Cart {
	t.Helper()
	c, err := f.svc.Load(context.Background(), "c1", 0)
	require.NoError(t, err)
	return c
}

func TestAddLineMergesIdenticalRequests(t *testing.T) {
	t.Parallel()

	f := newFixture()
	c := emptyCart(t, f)
	c = add(t, f, c, cart.AddRequest{ProductID: shirtID, Quantity: dec("2")})
	c = add(t, f, c, cart.AddRequest{ProductID: shirtID, Quantity: dec("3")})

	require.Len(t, c.Lines, 1)
	require.True(t, c.Lines[0].Quantity.Equal(dec("5")))
	require.True(t, c.Totals["EUR"].Gross.Equal(dec("59.5")))
	require.NotEmpty(t, c.Checksum)

	stored, err := f.store.Load(context.Background(), "c1")
	require.NoError(t, err)
	require.Equal(t, c.Checksum, stored.Checksum)
}

func TestAddLineKeepsFreeTextLinesApart(t *testing.T) {
	t.Parallel()

	f := newFixture()
	c := emptyCart(t, f)
	c = add(t, f, c, cart.AddRequest{ProductID: shirtID, Quantity: dec("1"), Attributes: lineitem.Attributes{{PropertyID: 7, FreeText: "Anna"}}})
	c = add(t, f, c, cart.AddRequest{ProductID: shirtID, Quantity: dec("1"), Attributes: lineitem.Attributes{{PropertyID: 7, FreeText: "Ben"}}})
	c = add(t, f, c, cart.AddRequest{ProductID: shirtID, Quantity: dec("1"), Attributes: lineitem.Attributes{{PropertyID: 7, FreeText: "Anna"}}})

	require.Len(t, c.Lines, 2)
	require.True(t, c.Lines[0].Quantity.Equal(dec("2")))
}

func TestRejectionLeavesCartUntouched(t *testing.T) {
	t.Parallel()

	f := newFixture()
	c := add(t, f, emptyCart(t, f), cart.AddRequest{ProductID: shirtID, Quantity: dec("1")})
	checksum := c.Checksum

	tests := []struct {
		name string
		req  cart.AddRequest
		code notice.Code
	}{
		{"fraction", cart.AddRequest{ProductID: shirtID, Quantity: dec("1.5")}, notice.CodeNotDivisible},
		{"zero", cart.AddRequest{ProductID: shirtID, Quantity: dec("0")}, notice.CodeInvalidQuantity},
		{"unknown", cart.AddRequest{ProductID: 99, Quantity: dec("1")}, notice.CodeProductNotFound},
		{"variation", cart.AddRequest{ProductID: posterID, Quantity: dec("1")}, notice.CodeMissingVariation},
		{"stock", cart.AddRequest{ProductID: mugID, Quantity: dec("6")}, notice.CodeOutOfStock},
	}
	for _, tc := range tests {
		res, err := f.svc.AddLine(context.Background(), c, tc.req)
		require.NoError(t, err, tc.name)
		require.True(t, res.Rejected(), tc.name)
		require.Contains(t, res.Rejections, tc.code, tc.name)
		require.Same(t, c, res.Cart, tc.name)
		require.Len(t, c.Lines, 1, tc.name)
		require.Equal(t, checksum, c.Checksum, tc.name)
	}
}

func TestPricesLoginOnlyRejectsGuests(t *testing.T) {
	t.Parallel()

	f := newFixture(func(s *cart.Settings) { s.PricesLoginOnly = true })
	res, err := f.svc.AddLine(context.Background(), emptyCart(t, f), cart.AddRequest{ProductID: shirtID, Quantity: dec("1")})
	require.NoError(t, err)
	require.Contains(t, res.Rejections, notice.CodeLoginRequired)

	c, err := f.svc.Load(context.Background(), "c2", 42)
	require.NoError(t, err)
	add(t, f, c, cart.AddRequest{ProductID: shirtID, Quantity: dec("1")})
}

func TestUpdateQuantitiesCapsToStock(t *testing.T) {
	t.Parallel()

	f := newFixture()
	c := add(t, f, emptyCart(t, f), cart.AddRequest{ProductID: mugID, Quantity: dec("3")})
	id := c.Lines[0].ID

	res, err := f.svc.UpdateQuantities(context.Background(), c, map[string]decimal.Decimal{id: dec("8")})
	require.NoError(t, err)
	require.True(t, res.Notices.Has(notice.CodeQuantityAdjusted))
	require.True(t, res.Cart.Lines[0].Quantity.Equal(dec("5")))

	res, err = f.svc.UpdateQuantities(context.Background(), res.Cart, map[string]decimal.Decimal{id: dec("0")})
	require.NoError(t, err)
	require.Empty(t, res.Cart.Lines)
	require.True(t, res.Cart.Totals["EUR"].Gross.IsZero())

	_, err = f.svc.UpdateQuantities(context.Background(), c, map[string]decimal.Decimal{"missing": dec("1")})
	require.ErrorIs(t, err, cart.ErrLineNotFound)
}

func TestCouponSelfHealsWhenCartShrinks(t *testing.T) {
	t.Parallel()

	f := newFixture()
	c := add(t, f, emptyCart(t, f), cart.AddRequest{ProductID: shirtID, Quantity: dec("6")})

	res, err := f.svc.ApplyCoupon(context.Background(), c, " welcome5 ")
	require.NoError(t, err)
	require.False(t, res.Rejected())
	require.Equal(t, int64(welcome), res.Cart.Context.CouponID)
	require.Len(t, res.Cart.Lines, 2)
	require.Equal(t, lineitem.KindCoupon, res.Cart.Lines[1].Kind)
	require.True(t, res.Cart.Lines[1].UnitNetPrice.Equal(dec("-5")))
	require.True(t, res.Cart.Totals["EUR"].Gross.Equal(dec("65.45")))

	shrunk, err := f.svc.UpdateQuantities(context.Background(), res.Cart, map[string]decimal.Decimal{res.Cart.Lines[0].ID: dec("1")})
	require.NoError(t, err)
	require.True(t, shrunk.Notices.Has(notice.CodeCouponInvalidated))
	require.Zero(t, shrunk.Cart.Context.CouponID)
	require.Len(t, shrunk.Cart.Lines, 1)
	require.True(t, shrunk.Cart.Totals["EUR"].Gross.Equal(dec("11.9")))
}

func TestApplyCouponRejectsWithoutSideEffects(t *testing.T) {
	t.Parallel()

	f := newFixture()
	c := add(t, f, emptyCart(t, f), cart.AddRequest{ProductID: shirtID, Quantity: dec("1")})

	res, err := f.svc.ApplyCoupon(context.Background(), c, "NOPE")
	require.NoError(t, err)
	require.Equal(t, notice.Rejections{notice.CodeCouponNotFound}, res.Rejections)

	res, err = f.svc.ApplyCoupon(context.Background(), c, welcomeStr)
	require.NoError(t, err)
	require.Equal(t, notice.Rejections{notice.CodeCouponNotEligible}, res.Rejections)
	require.Same(t, c, res.Cart)
	require.Zero(t, c.Context.CouponID)
	require.Len(t, c.Lines, 1)
}

func TestBundleLifecycle(t *testing.T) {
	t.Parallel()

	f := newFixture()
	res, err := f.svc.AddBundle(context.Background(), emptyCart(t, f), cart.BundleRequest{
		AddRequest: cart.AddRequest{ProductID: shirtID, Quantity: dec("2")},
		Components: []cart.ComponentRequest{{ComponentID: 1, ProductID: strapID, Quantity: dec("3")}},
	})
	require.NoError(t, err)
	require.False(t, res.Rejected())
	c := res.Cart
	require.Len(t, c.Lines, 2)
	parent, child := c.Lines[0], c.Lines[1]
	require.True(t, parent.IsBundleParent())
	require.True(t, child.IsBundleChild())
	require.Equal(t, parent.GroupToken, child.GroupToken)
	require.True(t, child.Quantity.Equal(dec("6")))
	require.True(t, child.DisplayQuantity.Equal(dec("3")))

	res, err = f.svc.UpdateQuantities(context.Background(), c, map[string]decimal.Decimal{parent.ID: dec("4")})
	require.NoError(t, err)
	require.True(t, res.Cart.Lines[1].Quantity.Equal(dec("12")))

	_, err = f.svc.RemoveLines(context.Background(), res.Cart, []string{child.ID})
	require.ErrorIs(t, err, cart.ErrInvalidInput)

	res, err = f.svc.RemoveLines(context.Background(), res.Cart, []string{parent.ID})
	require.NoError(t, err)
	require.Empty(t, res.Cart.Lines)
}

func TestAddBundleRejectsInvalidComponent(t *testing.T) {
	t.Parallel()

	f := newFixture()
	c := emptyCart(t, f)
	res, err := f.svc.AddBundle(context.Background(), c, cart.BundleRequest{
		AddRequest: cart.AddRequest{ProductID: shirtID, Quantity: dec("1")},
		Components: []cart.ComponentRequest{{ComponentID: 1, ProductID: 99, Quantity: dec("1")}},
	})
	require.NoError(t, err)
	require.Contains(t, res.Rejections, notice.CodeBundleComponentInvalid)
	require.Empty(t, c.Lines)
}

func TestAddVariantBox(t *testing.T) {
	t.Parallel()

	f := newFixture()
	size := func(v int64) lineitem.Attributes { return lineitem.Attributes{{PropertyID: sizeProp, ValueID: v}} }

	res, err := f.svc.AddVariantBox(context.Background(), emptyCart(t, f), []cart.AddRequest{
		{ProductID: shirtID, Quantity: dec("2"), Attributes: size(sizeSmall)},
		{ProductID: shirtID, Quantity: dec("0"), Attributes: size(sizeLarge)},
		{ProductID: shirtID, Quantity: dec("1"), Attributes: size(sizeLarge)},
	})
	require.NoError(t, err)
	require.False(t, res.Rejected())
	require.Len(t, res.Cart.Lines, 2)
	require.True(t, res.Cart.Lines[0].UnitNetPrice.Equal(dec("10")))
	require.True(t, res.Cart.Lines[1].UnitNetPrice.Equal(dec("12")))

	c := res.Cart
	res, err = f.svc.AddVariantBox(context.Background(), c, []cart.AddRequest{
		{ProductID: shirtID, Quantity: dec("1"), Attributes: size(sizeSmall)},
		{ProductID: 99, Quantity: dec("1")},
	})
	require.NoError(t, err)
	require.Contains(t, res.Rejections, notice.CodeProductNotFound)
	require.True(t, c.Lines[0].Quantity.Equal(dec("2")))

	res, err = f.svc.AddVariantBox(context.Background(), c, []cart.AddRequest{{ProductID: shirtID, Quantity: dec("0")}})
	require.NoError(t, err)
	require.Contains(t, res.Rejections, notice.CodeInvalidQuantity)
}

func TestShippingSortsLastAndTurnsFree(t *testing.T) {
	t.Parallel()

	f := newFixture(func(s *cart.Settings) {
		s.ShippingMethods = []cart.ShippingMethod{
			{ID: 1, Name: "Parcel", NetPrice: dec("4.90"), FreeAbove: dec("50"), Countries: []string{"DE"}},
			{ID: 2, Name: "Alpine", NetPrice: dec("9.90"), Countries: []string{"AT"}},
		}
	})
	c := add(t, f, emptyCart(t, f), cart.AddRequest{ProductID: shirtID, Quantity: dec("1")})

	_, err := f.svc.SetShipping(context.Background(), c, 2)
	require.ErrorIs(t, err, cart.ErrInvalidInput)

	res, err := f.svc.SetShipping(context.Background(), c, 1)
	require.NoError(t, err)
	c = add(t, f, res.Cart, cart.AddRequest{ProductID: strapID, Quantity: dec("1")})
	require.Len(t, c.Lines, 3)
	require.Equal(t, lineitem.KindShippingCost, c.Lines[2].Kind)
	require.True(t, c.Lines[2].UnitNetPrice.Equal(dec("4.90")))
	require.True(t, c.Lines[2].TaxRate.Equal(dec("19")))
	require.NotNil(t, c.FavourableShipping)
	require.Equal(t, int64(1), c.FavourableShipping.ID)

	res, err = f.svc.Reorder(context.Background(), c, []string{c.Lines[2].ID, c.Lines[1].ID, c.Lines[0].ID})
	require.NoError(t, err)
	require.Equal(t, int64(strapID), res.Cart.Lines[0].ProductID)
	require.Equal(t, lineitem.KindShippingCost, res.Cart.Lines[2].Kind)

	res, err = f.svc.UpdateQuantities(context.Background(), res.Cart, map[string]decimal.Decimal{c.Lines[0].ID: dec("5")})
	require.NoError(t, err)
	require.True(t, res.Cart.Lines[2].UnitNetPrice.IsZero())
}

func TestRecomputeReportsPriceChanges(t *testing.T) {
	t.Parallel()

	f := newFixture()
	c := add(t, f, emptyCart(t, f), cart.AddRequest{ProductID: shirtID, Quantity: dec("1")})

	changed := products()[0]
	changed.Tiers = []catalog.Tier{{MinQuantity: dec("1"), NetPrice: dec("12")}}
	f.catalog.Put(changed)

	res, err := f.svc.RecomputeAll(context.Background(), c)
	require.NoError(t, err)
	require.True(t, res.Notices.Has(notice.CodePriceChanged))
	require.True(t, res.Cart.Lines[0].UnitNetPrice.Equal(dec("12")))
}

func TestHandoffRecordsCouponUsageAndDropsCart(t *testing.T) {
	t.Parallel()

	f := newFixture()
	usage := &usageRecorder{}
	f.svc.Usage = usage

	_, err := f.svc.Handoff(context.Background(), emptyCart(t, f))
	require.ErrorIs(t, err, cart.ErrInvalidInput)

	c := add(t, f, emptyCart(t, f), cart.AddRequest{ProductID: shirtID, Quantity: dec("6")})
	res, err := f.svc.ApplyCoupon(context.Background(), c, welcomeStr)
	require.NoError(t, err)

	res, err = f.svc.Handoff(context.Background(), res.Cart)
	require.NoError(t, err)
	require.True(t, res.HandedOff)
	require.Equal(t, []int64{welcome}, usage.calls)
	_, err = f.store.Load(context.Background(), "c1")
	require.ErrorIs(t, err, cart.ErrNotFound)
}

func TestHandoffStopsForReviewWhenStockShrank(t *testing.T) {
	t.Parallel()

	f := newFixture()
	c := add(t, f, emptyCart(t, f), cart.AddRequest{ProductID: mugID, Quantity: dec("3")})
	f.stock.Set(mugID, dec("1"))

	res, err := f.svc.Handoff(context.Background(), c)
	require.NoError(t, err)
	require.False(t, res.HandedOff)
	require.True(t, res.Notices.Has(notice.CodeCheckoutNeedsReview))
	require.True(t, res.Cart.Lines[0].Quantity.Equal(dec("1")))
}

func TestPersistFailureIsSoft(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.store.fail = errStoreDown
	res, err := f.svc.AddLine(context.Background(), emptyCart(t, f), cart.AddRequest{ProductID: shirtID, Quantity: dec("1")})
	require.NoError(t, err)
	require.False(t, res.Rejected())
	require.True(t, res.Notices.Has(notice.CodePersistFailed))
	require.Len(t, res.Cart.Lines, 1)
}

func TestAssignCustomerKeepsOwnerOnReset(t *testing.T) {
	t.Parallel()

	f := newFixture()
	c := add(t, f, emptyCart(t, f), cart.AddRequest{ProductID: shirtID, Quantity: dec("1")})
	res, err := f.svc.AssignCustomer(context.Background(), c, 42, 3, true)
	require.NoError(t, err)

	res, err = f.svc.RemoveLines(context.Background(), res.Cart, []string{c.Lines[0].ID})
	require.NoError(t, err)
	require.Equal(t, int64(42), res.Cart.Context.CustomerID)
	require.Equal(t, int64(3), res.Cart.Context.CustomerGroupID)
	require.Empty(t, res.Cart.Lines)
}

func TestVoucherNeverTakesTheTotalBelowZero(t *testing.T) {
	t.Parallel()

	f := newFixture(func(s *cart.Settings) {
		s.PaymentMethods = []cart.PaymentMethod{{ID: 1, Name: "Invoice", Fee: dec("2"), TaxClassID: 1}}
	})
	c := add(t, f, emptyCart(t, f), cart.AddRequest{ProductID: shirtID, Quantity: dec("6")})
	res, err := f.svc.SetPayment(context.Background(), c, 1)
	require.NoError(t, err)

	couponFirst, err := f.svc.ApplyCoupon(context.Background(), res.Cart, "BIG")
	require.NoError(t, err)
	require.False(t, couponFirst.Rejected())
	couponFirst, err = f.svc.SetVoucherCredit(context.Background(), couponFirst.Cart, dec("100"))
	require.NoError(t, err)

	voucherFirst, err := f.svc.SetVoucherCredit(context.Background(), res.Cart, dec("100"))
	require.NoError(t, err)
	voucherFirst, err = f.svc.ApplyCoupon(context.Background(), voucherFirst.Cart, "BIG")
	require.NoError(t, err)
	require.False(t, voucherFirst.Rejected())

	for _, got := range []*cart.Cart{couponFirst.Cart, voucherFirst.Cart} {
		// 71.40 goods + 2.38 fee taxed by class - 59.50 coupon
		voucher, ok := byKind(got.Lines, lineitem.KindVoucherRedeem)
		require.True(t, ok)
		require.True(t, voucher.UnitNetPrice.Equal(dec("-14.28")), voucher.UnitNetPrice.String())
		require.True(t, got.Totals["EUR"].Gross.IsZero(), got.Totals["EUR"].Gross.String())
	}

	res, err = f.svc.SetVoucherCredit(context.Background(), couponFirst.Cart, dec("5"))
	require.NoError(t, err)
	voucher, _ := byKind(res.Cart.Lines, lineitem.KindVoucherRedeem)
	require.True(t, voucher.UnitNetPrice.Equal(dec("-5")))
	require.True(t, res.Cart.Totals["EUR"].Gross.Equal(dec("9.28")), res.Cart.Totals["EUR"].Gross.String())
}

func TestFreeShippingThresholdSeesCouponDiscount(t *testing.T) {
	t.Parallel()

	f := newFixture(func(s *cart.Settings) {
		s.ShippingMethods = []cart.ShippingMethod{{ID: 1, Name: "Parcel", NetPrice: dec("4.90"), FreeAbove: dec("50")}}
	})
	c := add(t, f, emptyCart(t, f), cart.AddRequest{ProductID: shirtID, Quantity: dec("5")})
	res, err := f.svc.SetShipping(context.Background(), c, 1)
	require.NoError(t, err)
	ship, ok := byKind(res.Cart.Lines, lineitem.KindShippingCost)
	require.True(t, ok)
	require.True(t, ship.UnitNetPrice.IsZero())

	// 20% off brings 59.50 of goods down to 47.60
	res, err = f.svc.ApplyCoupon(context.Background(), res.Cart, "spring")
	require.NoError(t, err)
	require.False(t, res.Rejected())
	require.Equal(t, "SPRING", res.Cart.Lines[0].CouponCode)
	ship, _ = byKind(res.Cart.Lines, lineitem.KindShippingCost)
	require.True(t, ship.UnitNetPrice.Equal(dec("4.90")), ship.UnitNetPrice.String())
	require.True(t, res.Cart.Totals["EUR"].Gross.Equal(dec("53.43")), res.Cart.Totals["EUR"].Gross.String())

	res, err = f.svc.RemoveCoupon(context.Background(), res.Cart)
	require.NoError(t, err)
	ship, _ = byKind(res.Cart.Lines, lineitem.KindShippingCost)
	require.True(t, ship.UnitNetPrice.IsZero())
}

func TestDisplayedLinesAddUpWithFeeLines(t *testing.T) {
	t.Parallel()

	f := newFixture(func(s *cart.Settings) {
		s.ShippingMethods = []cart.ShippingMethod{{ID: 1, Name: "Parcel", NetPrice: dec("0.753"), Surcharge: dec("0.753")}}
		s.PaymentMethods = []cart.PaymentMethod{{
			ID: 1, Name: "Cash", Surcharge: dec("0.753"), Fee: dec("0.753"), CashOnDelivery: true, CODFee: dec("0.753"),
		}}
		s.Packagings = []cart.Packaging{{ID: 1, Name: "Wrap", NetPrice: dec("0.753")}}
	})
	c := add(t, f, emptyCart(t, f), cart.AddRequest{ProductID: shirtID, Quantity: dec("1")})
	res, err := f.svc.SetShipping(context.Background(), c, 1)
	require.NoError(t, err)
	res, err = f.svc.SetPayment(context.Background(), res.Cart, 1)
	require.NoError(t, err)
	res, err = f.svc.SetPackaging(context.Background(), res.Cart, 1)
	require.NoError(t, err)
	require.Len(t, res.Cart.Lines, 7)

	gross, net := decimal.Zero, decimal.Zero
	for _, l := range res.Cart.Lines {
		gross = gross.Add(l.Localized["EUR"].GrossTotal)
		net = net.Add(l.Localized["EUR"].NetTotal)
	}
	require.True(t, gross.Equal(res.Cart.Totals["EUR"].Gross), "%s != %s", gross, res.Cart.Totals["EUR"].Gross)
	require.True(t, net.Equal(res.Cart.Totals["EUR"].Net), "%s != %s", net, res.Cart.Totals["EUR"].Net)
	require.True(t, gross.Equal(dec("17.24")), gross.String())
}
