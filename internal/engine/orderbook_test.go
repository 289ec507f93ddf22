package engine

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Setup & Helpers --------------------------------------------------------

func restingOrder(side Side, price, quantity string) *Order {
	return NewOrder("AAPL", side, LimitOrder, dec(quantity), dec(price), decimal.Decimal{}, "test-user")
}

// --- Tests ------------------------------------------------------------------

func TestOrderBook_AddAndBest(t *testing.T) {
	book := NewOrderBook("AAPL")

	_, ok := book.BestBid()
	assert.False(t, ok)
	_, ok = book.BestAsk()
	assert.False(t, ok)

	book.AddOrder(restingOrder(Buy, "150.00", "100"))
	book.AddOrder(restingOrder(Sell, "151.00", "100"))

	bid, ok := book.BestBid()
	require.True(t, ok)
	assertDec(t, "150.00", bid)

	ask, ok := book.BestAsk()
	require.True(t, ok)
	assertDec(t, "151.00", ask)
}

func TestOrderBook_SpreadAndMid(t *testing.T) {
	book := NewOrderBook("AAPL")
	book.AddOrder(restingOrder(Buy, "150.00", "100"))
	book.AddOrder(restingOrder(Sell, "151.00", "100"))

	spread, ok := book.Spread()
	require.True(t, ok)
	assertDec(t, "1.00", spread)

	mid, ok := book.MidPrice()
	require.True(t, ok)
	assertDec(t, "150.50", mid)
}

func TestOrderBook_SpreadAbsentWhenOneSided(t *testing.T) {
	book := NewOrderBook("AAPL")
	book.AddOrder(restingOrder(Buy, "150.00", "100"))

	_, ok := book.Spread()
	assert.False(t, ok)
	_, ok = book.MidPrice()
	assert.False(t, ok)
}

func TestOrderBook_Depth(t *testing.T) {
	book := NewOrderBook("AAPL")
	book.AddOrder(restingOrder(Buy, "150.00", "100"))
	book.AddOrder(restingOrder(Buy, "149.00", "200"))
	book.AddOrder(restingOrder(Sell, "151.00", "150"))
	book.AddOrder(restingOrder(Sell, "152.00", "250"))

	bidDepth := book.Depth(Buy, 2)
	require.Len(t, bidDepth, 2)
	assertDec(t, "150.00", bidDepth[0].Price)
	assertDec(t, "100", bidDepth[0].Quantity)
	assertDec(t, "149.00", bidDepth[1].Price)
	assertDec(t, "200", bidDepth[1].Quantity)

	askDepth := book.Depth(Sell, 2)
	require.Len(t, askDepth, 2)
	assertDec(t, "151.00", askDepth[0].Price)
	assertDec(t, "150", askDepth[0].Quantity)
	assertDec(t, "152.00", askDepth[1].Price)
	assertDec(t, "250", askDepth[1].Quantity)

	// Truncation honours the requested number of levels.
	assert.Len(t, book.Depth(Buy, 1), 1)
	assert.Len(t, book.Depth(Sell, 10), 2)
}

func TestOrderBook_FIFOWithinLevel(t *testing.T) {
	book := NewOrderBook("AAPL")
	first := restingOrder(Buy, "150.00", "100")
	second := restingOrder(Buy, "150.00", "90")
	third := restingOrder(Buy, "150.00", "80")
	book.AddOrder(first)
	book.AddOrder(second)
	book.AddOrder(third)

	level, ok := book.Bids.Min()
	require.True(t, ok)
	require.Equal(t, []uuid.UUID{first.ID, second.ID, third.ID}, level.Orders)
	assertDec(t, "270", level.TotalQuantity)
	assert.Equal(t, 1, book.Bids.Len())
}

func TestOrderBook_RemoveEvictsEmptyLevel(t *testing.T) {
	book := NewOrderBook("AAPL")
	first := restingOrder(Sell, "151.00", "100")
	second := restingOrder(Sell, "151.00", "50")
	book.AddOrder(first)
	book.AddOrder(second)

	book.RemoveOrder(first)
	level, ok := book.Asks.Min()
	require.True(t, ok)
	assertDec(t, "50", level.TotalQuantity)
	assert.Len(t, level.Orders, 1)

	book.RemoveOrder(second)
	assert.Equal(t, 0, book.Asks.Len())
	_, ok = book.BestAsk()
	assert.False(t, ok)
}

func TestOrderBook_RemoveMissingIsNoop(t *testing.T) {
	book := NewOrderBook("AAPL")
	resting := restingOrder(Buy, "150.00", "100")
	stranger := restingOrder(Buy, "150.00", "40")
	book.AddOrder(resting)

	// Same price level, but the order was never added.
	book.RemoveOrder(stranger)
	level, ok := book.Bids.Min()
	require.True(t, ok)
	assertDec(t, "100", level.TotalQuantity)

	// No level at this price at all.
	book.RemoveOrder(restingOrder(Sell, "160.00", "10"))
	assert.Equal(t, 0, book.Asks.Len())
}

func TestOrderBook_ReduceKeepsTotalsHonest(t *testing.T) {
	book := NewOrderBook("AAPL")
	first := restingOrder(Sell, "151.00", "100")
	second := restingOrder(Sell, "151.00", "50")
	book.AddOrder(first)
	book.AddOrder(second)

	// A partial fill of the first resting order.
	first.Fill(dec("30"))
	book.Reduce(Sell, dec("151.00"), dec("30"))

	level, ok := book.Asks.Min()
	require.True(t, ok)
	assertDec(t, "120", level.TotalQuantity)
	assertDec(t, "120", first.RemainingQuantity().Add(second.RemainingQuantity()))

	// Removing the partially filled order subtracts what actually remains.
	book.RemoveOrder(first)
	level, ok = book.Asks.Min()
	require.True(t, ok)
	assertDec(t, "50", level.TotalQuantity)
}

func TestOrderBook_SnapshotIsIsolated(t *testing.T) {
	book := NewOrderBook("AAPL")
	book.AddOrder(restingOrder(Buy, "150.00", "100"))

	snapshot := book.Snapshot()
	snapshot.AddOrder(restingOrder(Buy, "150.00", "900"))
	snapshot.AddOrder(restingOrder(Sell, "152.00", "10"))

	level, ok := book.Bids.Min()
	require.True(t, ok)
	assertDec(t, "100", level.TotalQuantity)
	assert.Len(t, level.Orders, 1)
	assert.Equal(t, 0, book.Asks.Len())
}
