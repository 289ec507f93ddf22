package risk

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vidar/internal/engine"
)

// --- Setup & Helpers --------------------------------------------------------

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func buyLimit(quantity, price string) *engine.Order {
	return engine.NewOrder("AAPL", engine.Buy, engine.LimitOrder, dec(quantity), dec(price), decimal.Decimal{}, "user123")
}

func sellLimit(quantity, price string) *engine.Order {
	return engine.NewOrder("AAPL", engine.Sell, engine.LimitOrder, dec(quantity), dec(price), decimal.Decimal{}, "user123")
}

// --- Tests ------------------------------------------------------------------

func TestDefaultLimits(t *testing.T) {
	limits := DefaultLimits()
	assert.True(t, limits.MaxOrderSize.Equal(dec("10000")))
	assert.True(t, limits.MaxPositionSize.Equal(dec("100000")))
	assert.True(t, limits.MaxDailyLoss.Equal(dec("50000")))
	assert.True(t, limits.MaxOrderValue.Equal(dec("1000000")))
}

func TestCheckOrder_Passes(t *testing.T) {
	m := NewManager(DefaultLimits())

	check := m.CheckOrder(buyLimit("500", "150.00"))
	assert.True(t, check.Passed)
	assert.Empty(t, check.Reason)
}

func TestCheckOrder_OrderSize(t *testing.T) {
	limits := DefaultLimits()
	limits.MaxOrderSize = dec("1000")
	m := NewManager(limits)

	assert.True(t, m.CheckOrder(buyLimit("500", "150.00")).Passed)

	check := m.CheckOrder(buyLimit("2000", "150.00"))
	require.False(t, check.Passed)
	assert.Equal(t, "Order size 2000 exceeds maximum 1000", check.Reason)
}

func TestCheckOrder_OrderValue(t *testing.T) {
	limits := DefaultLimits()
	limits.MaxOrderValue = dec("100000")
	m := NewManager(limits)

	assert.True(t, m.CheckOrder(buyLimit("500", "150.00")).Passed)

	check := m.CheckOrder(buyLimit("1000", "1000.00"))
	require.False(t, check.Passed)
	assert.Equal(t, "Order value 1000000 exceeds maximum 100000", check.Reason)
}

func TestCheckOrder_MarketOrderSkipsValueCheck(t *testing.T) {
	limits := DefaultLimits()
	limits.MaxOrderValue = dec("1")
	m := NewManager(limits)

	order := engine.NewOrder("AAPL", engine.Buy, engine.MarketOrder, dec("100"), decimal.Decimal{}, decimal.Decimal{}, "user123")
	assert.True(t, m.CheckOrder(order).Passed)
}

func TestCheckOrder_PositionProjection(t *testing.T) {
	limits := DefaultLimits()
	limits.MaxPositionSize = dec("1000")
	m := NewManager(limits)

	m.AddPosition("user123", dec("900"))

	assert.True(t, m.CheckOrder(buyLimit("100", "10.00")).Passed)

	check := m.CheckOrder(buyLimit("200", "10.00"))
	require.False(t, check.Passed)
	assert.Equal(t, "New position 1100 would exceed maximum 1000", check.Reason)

	// Selling out of a long position shrinks exposure and passes.
	assert.True(t, m.CheckOrder(sellLimit("1800", "10.00")).Passed)

	// But selling deep through flat breaches on the short side.
	check = m.CheckOrder(sellLimit("2000", "10.00"))
	require.False(t, check.Passed)
	assert.Equal(t, "New position -1100 would exceed maximum 1000", check.Reason)
}

func TestCheckOrder_DailyLoss(t *testing.T) {
	limits := DefaultLimits()
	limits.MaxDailyLoss = dec("500")
	m := NewManager(limits)

	m.UpdatePnL("user123", dec("-600"))

	check := m.CheckOrder(buyLimit("10", "10.00"))
	require.False(t, check.Passed)
	assert.Equal(t, "Daily loss -600 exceeds maximum 500", check.Reason)
}

func TestUpdatePosition(t *testing.T) {
	m := NewManager(DefaultLimits())

	buy := buyLimit("100", "150.00")
	sell := sellLimit("100", "150.00")
	trade := engine.NewTrade("AAPL", buy.ID, sell.ID, dec("150.00"), dec("100"), engine.Buy)

	// Taker side: the aggressing buy adds to the position.
	m.UpdatePosition("taker", &trade)
	assert.True(t, m.GetPosition("taker").Equal(dec("100")))

	// Maker side gets the opposite sign.
	m.AddPosition("maker", trade.Quantity.Neg())
	assert.True(t, m.GetPosition("maker").Equal(dec("-100")))

	sellTrade := engine.NewTrade("AAPL", buy.ID, sell.ID, dec("150.00"), dec("40"), engine.Sell)
	m.UpdatePosition("taker", &sellTrade)
	assert.True(t, m.GetPosition("taker").Equal(dec("60")))
}

func TestPnLAccounting(t *testing.T) {
	m := NewManager(DefaultLimits())

	m.UpdatePnL("user123", dec("1000"))
	m.UpdatePnL("user123", dec("-500"))
	assert.True(t, m.GetDailyPnL("user123").Equal(dec("500")))

	m.ResetDailyPnL()
	assert.True(t, m.GetDailyPnL("user123").IsZero())
	// Positions survive the daily reset.
	m.AddPosition("user123", dec("10"))
	m.ResetDailyPnL()
	assert.True(t, m.GetPosition("user123").Equal(dec("10")))
}

func TestGetPositionUnknownUser(t *testing.T) {
	m := NewManager(DefaultLimits())
	assert.True(t, m.GetPosition("nobody").IsZero())
	assert.True(t, m.GetDailyPnL("nobody").IsZero())
}
