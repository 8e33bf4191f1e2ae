package ledger

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/invoicing/internal/catalog"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func sampleCatalog() []catalog.Product {
	return []catalog.Product{
		{ID: "p1", Name: "Widget", PurchasePrice: dec("6.00"), SellingPrice: dec("10.00")},
		{ID: "p2", Name: "Gadget", PurchasePrice: dec("1.00"), SellingPrice: dec("2.50")},
		{ID: "p3", Name: "Half cent", PurchasePrice: dec("0"), SellingPrice: dec("0.005")},
	}
}

func assertMoney(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.Equal(t, want, got.StringFixed(2))
}

// ============================================================================
// ADD / REMOVE
// ============================================================================

func TestAddItem_SeedsFromSellingPrice(t *testing.T) {
	l := New(sampleCatalog())

	idx, err := l.AddItem("p2")
	require.NoError(t, err)
	assert.Equal(t, 0, idx)

	items := l.Snapshot()
	require.Len(t, items, 1)
	assert.Equal(t, "p2", items[0].ProductID)
	assert.Equal(t, "Gadget", items[0].ProductName)
	assert.Equal(t, 1, items[0].Quantity)
	assert.Empty(t, items[0].PurchaseOrderNumber)
	assertMoney(t, "2.50", items[0].UnitPrice)
	assertMoney(t, "2.50", items[0].TotalPrice)
}

func TestAddItem_EmptyRefUsesFirstProduct(t *testing.T) {
	l := New(sampleCatalog())
	_, err := l.AddItem("")
	require.NoError(t, err)
	assert.Equal(t, "p1", l.Snapshot()[0].ProductID)
}

func TestAddItem_EmptyCatalog(t *testing.T) {
	l := New(nil)
	_, err := l.AddItem("")
	assert.ErrorIs(t, err, ErrNoProductsAvailable)
	assert.Equal(t, 0, l.Len())
}

func TestAddItem_UnknownProduct(t *testing.T) {
	l := New(sampleCatalog())
	_, err := l.AddItem("missing")
	assert.ErrorIs(t, err, ErrProductNotFound)
	assert.Equal(t, 0, l.Len())
}

func TestRemoveItem_KeepsOrder(t *testing.T) {
	l := New(sampleCatalog())
	for _, id := range []string{"p1", "p2", "p3"} {
		_, err := l.AddItem(id)
		require.NoError(t, err)
	}

	require.NoError(t, l.RemoveItem(1))

	items := l.Snapshot()
	require.Len(t, items, 2)
	assert.Equal(t, "p1", items[0].ProductID)
	assert.Equal(t, "p3", items[1].ProductID)
}

func TestRemoveItem_OutOfRange(t *testing.T) {
	l := New(sampleCatalog())
	_, _ = l.AddItem("p1")

	for _, idx := range []int{-1, 1, 5} {
		err := l.RemoveItem(idx)
		assert.ErrorIs(t, err, ErrIndexOutOfRange, "index %d", idx)
	}
	assert.Equal(t, 1, l.Len())
}

func TestAddThenRemoveRestoresSequence(t *testing.T) {
	l := New(sampleCatalog())
	_, _ = l.AddItem("p1")
	_, _ = l.AddItem("p2")
	require.NoError(t, l.SetQuantity(1, 4))
	before := l.Snapshot()

	idx, err := l.AddItem("p3")
	require.NoError(t, err)
	require.NoError(t, l.RemoveItem(idx))

	assert.Equal(t, before, l.Snapshot())
}

// ============================================================================
// MUTATIONS
// ============================================================================

func TestSetQuantity_RecomputesTotal(t *testing.T) {
	l := New(sampleCatalog())
	_, _ = l.AddItem("p1")

	require.NoError(t, l.SetQuantity(0, 3))

	item := l.Snapshot()[0]
	assert.Equal(t, 3, item.Quantity)
	assertMoney(t, "30.00", item.TotalPrice)
	assertMoney(t, "30.00", l.TotalAmount())
}

func TestSetQuantity_RejectsBelowOne(t *testing.T) {
	l := New(sampleCatalog())
	_, _ = l.AddItem("p1")
	require.NoError(t, l.SetQuantity(0, 2))
	before := l.Snapshot()

	for _, q := range []int{0, -1} {
		err := l.SetQuantity(0, q)
		assert.ErrorIs(t, err, ErrInvalidQuantity, "quantity %d", q)
	}
	assert.Equal(t, before, l.Snapshot())
}

func TestSetQuantity_OutOfRange(t *testing.T) {
	l := New(sampleCatalog())
	assert.ErrorIs(t, l.SetQuantity(0, 1), ErrIndexOutOfRange)
}

func TestSetUnitPrice(t *testing.T) {
	l := New(sampleCatalog())
	_, _ = l.AddItem("p1")
	require.NoError(t, l.SetQuantity(0, 2))

	require.NoError(t, l.SetUnitPrice(0, dec("7.125")))
	item := l.Snapshot()[0]
	assertMoney(t, "14.25", item.TotalPrice)

	require.NoError(t, l.SetUnitPrice(0, decimal.Zero))
	assertMoney(t, "0.00", l.Snapshot()[0].TotalPrice)
}

func TestSetUnitPrice_RejectsNegative(t *testing.T) {
	l := New(sampleCatalog())
	_, _ = l.AddItem("p1")
	before := l.Snapshot()

	err := l.SetUnitPrice(0, dec("-0.01"))
	assert.ErrorIs(t, err, ErrInvalidPrice)
	assert.Equal(t, before, l.Snapshot())
}

func TestSetProduct_ResetsUnitPrice(t *testing.T) {
	l := New(sampleCatalog())
	_, _ = l.AddItem("p1")
	require.NoError(t, l.SetQuantity(0, 2))
	require.NoError(t, l.SetUnitPrice(0, dec("99")))

	require.NoError(t, l.SetProduct(0, "p2"))

	item := l.Snapshot()[0]
	assert.Equal(t, "p2", item.ProductID)
	assert.Equal(t, "Gadget", item.ProductName)
	assert.Equal(t, 2, item.Quantity)
	assertMoney(t, "2.50", item.UnitPrice)
	assertMoney(t, "5.00", item.TotalPrice)
}

func TestSetProduct_UnknownLeavesItemUnchanged(t *testing.T) {
	l := New(sampleCatalog())
	_, _ = l.AddItem("p1")
	before := l.Snapshot()

	err := l.SetProduct(0, "missing")
	assert.ErrorIs(t, err, ErrProductNotFound)
	assert.Equal(t, before, l.Snapshot())
}

func TestSetPurchaseOrderNumber(t *testing.T) {
	l := New(sampleCatalog())
	_, _ = l.AddItem("p1")

	require.NoError(t, l.SetPurchaseOrderNumber(0, "PO-7781"))
	item := l.Snapshot()[0]
	assert.Equal(t, "PO-7781", item.PurchaseOrderNumber)
	assertMoney(t, "10.00", item.TotalPrice)

	assert.ErrorIs(t, l.SetPurchaseOrderNumber(3, "x"), ErrIndexOutOfRange)
}

// ============================================================================
// TOTALS
// ============================================================================

func TestTotalAmount_Empty(t *testing.T) {
	assertMoney(t, "0.00", New(sampleCatalog()).TotalAmount())
}

func TestTotalAmount_HalfCentRoundsUpPerLine(t *testing.T) {
	l := New(sampleCatalog())
	_, _ = l.AddItem("p3")

	assertMoney(t, "0.01", l.Snapshot()[0].TotalPrice)

	_, _ = l.AddItem("p3")
	assertMoney(t, "0.02", l.TotalAmount())
}

func TestTotalAmount_SumsRoundedLines(t *testing.T) {
	l := New(sampleCatalog())
	_, _ = l.AddItem("p1")
	_, _ = l.AddItem("p1")
	require.NoError(t, l.SetUnitPrice(0, dec("0.333")))
	require.NoError(t, l.SetUnitPrice(1, dec("0.333")))
	require.NoError(t, l.SetQuantity(0, 3))
	require.NoError(t, l.SetQuantity(1, 3))

	// each line 0.999 -> 1.00, so the total is 2.00 rather than round(1.998)
	assertMoney(t, "2.00", l.TotalAmount())
}

func TestTotalPriceInvariantHoldsAfterEveryMutation(t *testing.T) {
	l := New(sampleCatalog())
	_, _ = l.AddItem("p1")
	_, _ = l.AddItem("p2")
	_ = l.SetQuantity(0, 7)
	_ = l.SetUnitPrice(1, dec("3.3333"))
	_ = l.SetQuantity(1, 3)
	_ = l.SetProduct(0, "p3")

	sum := decimal.Zero
	for _, item := range l.Snapshot() {
		want := decimal.NewFromInt(int64(item.Quantity)).Mul(item.UnitPrice).Round(2)
		assert.True(t, want.Equal(item.TotalPrice), "item %s: %s != %s", item.ProductID, want, item.TotalPrice)
		sum = sum.Add(item.TotalPrice)
	}
	assert.True(t, sum.Round(2).Equal(l.TotalAmount()))
}

func TestSnapshotIsACopy(t *testing.T) {
	l := New(sampleCatalog())
	_, _ = l.AddItem("p1")

	snap := l.Snapshot()
	snap[0].Quantity = 100

	assert.Equal(t, 1, l.Snapshot()[0].Quantity)
}

// ============================================================================
// RESTORE / HELPERS
// ============================================================================

func TestRestore_RecomputesTotals(t *testing.T) {
	l, err := Restore(sampleCatalog(), []Item{
		{ProductID: "p1", Quantity: 2, UnitPrice: dec("9.99"), PurchaseOrderNumber: "A", TotalPrice: dec("1")},
		{ProductID: "p2", Quantity: 1, UnitPrice: dec("2.50")},
	})
	require.NoError(t, err)

	items := l.Snapshot()
	assertMoney(t, "19.98", items[0].TotalPrice)
	assert.Equal(t, "Widget", items[0].ProductName)
	assert.Equal(t, "A", items[0].PurchaseOrderNumber)
	assertMoney(t, "22.48", l.TotalAmount())
}

func TestRestore_RejectsInvalidItems(t *testing.T) {
	cases := []struct {
		name string
		item Item
		want error
	}{
		{"unknown product", Item{ProductID: "nope", Quantity: 1}, ErrProductNotFound},
		{"zero quantity", Item{ProductID: "p1", Quantity: 0}, ErrInvalidQuantity},
		{"negative price", Item{ProductID: "p1", Quantity: 1, UnitPrice: dec("-1")}, ErrInvalidPrice},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Restore(sampleCatalog(), []Item{tc.item})
			assert.True(t, errors.Is(err, tc.want), "got %v", err)
			assert.Contains(t, err.Error(), "item 0")
		})
	}
}

func TestQuantityFromDecimal(t *testing.T) {
	q, err := QuantityFromDecimal(dec("3"))
	require.NoError(t, err)
	assert.Equal(t, 3, q)

	for _, in := range []string{"0", "-2", "1.5", "99999999999"} {
		_, err := QuantityFromDecimal(dec(in))
		assert.ErrorIs(t, err, ErrInvalidQuantity, in)
	}
}
