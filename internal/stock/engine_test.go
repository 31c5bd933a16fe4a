package stock_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-cart/internal/catalog"
	"github.com/noah-isme/toko-cart/internal/lineitem"
	"github.com/noah-isme/toko-cart/internal/notice"
	"github.com/noah-isme/toko-cart/internal/stock"
)

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func productLine(id string, productID int64, qty int64) lineitem.Line {
	return lineitem.Line{ID: id, Kind: lineitem.KindProduct, ProductID: productID, Quantity: d(qty)}
}

func TestSharedStockFairness(t *testing.T) {
	t.Parallel()

	// X and Y both consume component 100.
	cat := catalog.NewMemory(
		catalog.Product{ID: 1, TrackStock: true, Components: []catalog.Component{{ComponentID: 100, StockFactor: d(1)}}},
		catalog.Product{ID: 2, TrackStock: true, Components: []catalog.Component{{ComponentID: 100, StockFactor: d(1)}}},
	)
	engine := &stock.Engine{Catalog: cat, Stock: stock.NewMemory().Set(100, d(5))}

	lines := lineitem.Lines{productLine("x", 1, 3), productLine("y", 2, 4)}
	grants, alloc, err := engine.Allocate(context.Background(), lines, nil)
	require.NoError(t, err)
	require.Len(t, grants, 2)
	require.True(t, grants[0].Granted.Equal(d(3)))
	require.False(t, grants[0].Capped())
	require.True(t, grants[1].Granted.Equal(d(2)))
	require.True(t, grants[1].Capped())
	require.True(t, alloc.Reserved(100).Equal(d(5)))
}

func TestAllocateIsRecomputedFromScratch(t *testing.T) {
	t.Parallel()

	cat := catalog.NewMemory(catalog.Product{ID: 1, TrackStock: true})
	engine := &stock.Engine{Catalog: cat, Stock: stock.NewMemory().Set(1, d(4))}
	lines := lineitem.Lines{productLine("a", 1, 2)}

	for i := 0; i < 3; i++ {
		grants, alloc, err := engine.Allocate(context.Background(), lines, nil)
		require.NoError(t, err)
		require.True(t, grants[0].Granted.Equal(d(2)))
		require.True(t, alloc.Reserved(1).Equal(d(2)))
	}
}

func TestKitProductUsesStockFactorAndPackSize(t *testing.T) {
	t.Parallel()

	cat := catalog.NewMemory(
		catalog.Product{ID: 10, TrackStock: true, Components: []catalog.Component{
			{ComponentID: 200, StockFactor: d(2), PackSize: d(3)},
			{ComponentID: 201, StockFactor: d(1)},
		}},
	)
	src := stock.NewMemory().Set(200, d(20)).Set(201, d(10))
	engine := &stock.Engine{Catalog: cat, Stock: src}

	granted, err := engine.Grantable(context.Background(), nil, productLine("k", 10, 5), d(5))
	require.NoError(t, err)
	// floor(20 / 6) = 3
	require.True(t, granted.Equal(d(3)))
}

func TestUntrackedAndNegativeStockAreUncapped(t *testing.T) {
	t.Parallel()

	cat := catalog.NewMemory(
		catalog.Product{ID: 1},
		catalog.Product{ID: 2, TrackStock: true, AllowNegativeStock: true},
	)
	engine := &stock.Engine{Catalog: cat, Stock: stock.NewMemory()}

	grants, alloc, err := engine.Allocate(context.Background(), lineitem.Lines{productLine("a", 1, 50), productLine("b", 2, 7)}, nil)
	require.NoError(t, err)
	require.True(t, grants[0].Granted.Equal(d(50)))
	require.True(t, grants[1].Granted.Equal(d(7)))
	require.True(t, alloc.Reserved(1).IsZero())
}

func TestPerVariantStockIsIndependent(t *testing.T) {
	t.Parallel()

	cat := catalog.NewMemory(catalog.Product{ID: 5, TrackStock: true, PerVariantStock: true})
	src := stock.NewMemory().SetVariant(5, 1, 11, d(2)).SetVariant(5, 1, 12, d(4))
	engine := &stock.Engine{Catalog: cat, Stock: src}

	red := productLine("red", 5, 3)
	red.Attributes = lineitem.Attributes{{PropertyID: 1, ValueID: 11}}
	blue := productLine("blue", 5, 3)
	blue.Attributes = lineitem.Attributes{{PropertyID: 1, ValueID: 12}}

	grants, alloc, err := engine.Allocate(context.Background(), lineitem.Lines{red, blue}, nil)
	require.NoError(t, err)
	require.True(t, grants[0].Granted.Equal(d(2)))
	require.True(t, grants[1].Granted.Equal(d(3)))
	require.True(t, alloc.ReservedVariant(5, 1, 12).Equal(d(3)))
}

func TestCheckAddRejectsInsteadOfCapping(t *testing.T) {
	t.Parallel()

	cat := catalog.NewMemory(catalog.Product{ID: 1, TrackStock: true})
	engine := &stock.Engine{Catalog: cat, Stock: stock.NewMemory().Set(1, d(3))}
	lines := lineitem.Lines{productLine("a", 1, 2)}

	code, err := engine.CheckAdd(context.Background(), lines, productLine("new", 1, 0), d(2))
	require.NoError(t, err)
	require.Equal(t, notice.CodeOutOfStock, code)

	code, err = engine.CheckAdd(context.Background(), lines, productLine("new", 1, 0), d(1))
	require.NoError(t, err)
	require.Empty(t, code)
}

func TestSweepRemovesZeroAndAdjustsCapped(t *testing.T) {
	t.Parallel()

	cat := catalog.NewMemory(
		catalog.Product{ID: 1, TrackStock: true},
		catalog.Product{ID: 2, TrackStock: true},
		catalog.Product{ID: 3},
	)
	engine := &stock.Engine{Catalog: cat, Stock: stock.NewMemory().Set(1, d(3))}

	parent := productLine("parent", 2, 1)
	parent.GroupToken = "g"
	child := lineitem.Line{ID: "child", Kind: lineitem.KindBundleComponent, ProductID: 3, GroupToken: "g", BundleComponentID: 9, Quantity: d(1)}
	lines := lineitem.Lines{productLine("a", 1, 5), parent, child}

	out, notices, err := engine.Sweep(context.Background(), lines)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, "a", out[0].ID)
	require.True(t, out[0].Quantity.Equal(d(3)))
	require.True(t, notices.Has(notice.CodeQuantityAdjusted))
	require.True(t, notices.Has(notice.CodeLineRemoved))
}
