// Package risk screens orders against configured limits before they reach
// the matching engine and keeps per-user position and daily P&L tables.
// The engine never calls the gate itself; whoever drives the engine is
// responsible for refusing orders that fail the check.
package risk

import (
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"vidar/internal/engine"
)

// Limits are the hard per-order and per-user bounds enforced by CheckOrder.
type Limits struct {
	MaxOrderSize    decimal.Decimal
	MaxPositionSize decimal.Decimal
	MaxDailyLoss    decimal.Decimal
	MaxOrderValue   decimal.Decimal
}

// DefaultLimits returns the stock limit set.
func DefaultLimits() Limits {
	return Limits{
		MaxOrderSize:    decimal.NewFromInt(10000),
		MaxPositionSize: decimal.NewFromInt(100000),
		MaxDailyLoss:    decimal.NewFromInt(50000),
		MaxOrderValue:   decimal.NewFromInt(1000000),
	}
}

// Check is the outcome of a pre-trade screen. Reason is set on failure.
type Check struct {
	Passed bool
	Reason string
}

func pass() Check {
	return Check{Passed: true}
}

func fail(reason string) Check {
	return Check{Passed: false, Reason: reason}
}

// Manager holds the limits plus signed net positions (buys positive) and
// cumulative daily P&L per user.
type Manager struct {
	limits Limits

	mu        sync.RWMutex
	positions map[string]decimal.Decimal
	dailyPnL  map[string]decimal.Decimal
}

func NewManager(limits Limits) *Manager {
	return &Manager{
		limits:    limits,
		positions: make(map[string]decimal.Decimal),
		dailyPnL:  make(map[string]decimal.Decimal),
	}
}

// CheckOrder runs the limit checks in order and returns the first failure:
// order size, order value (when a limit price is present), projected
// position, then daily loss.
func (m *Manager) CheckOrder(order *engine.Order) Check {
	if order.Quantity.GreaterThan(m.limits.MaxOrderSize) {
		return fail(fmt.Sprintf("Order size %s exceeds maximum %s",
			order.Quantity, m.limits.MaxOrderSize))
	}

	if order.Price.IsPositive() {
		value := order.Price.Mul(order.Quantity)
		if value.GreaterThan(m.limits.MaxOrderValue) {
			return fail(fmt.Sprintf("Order value %s exceeds maximum %s",
				value, m.limits.MaxOrderValue))
		}
	}

	position := m.GetPosition(order.UserID)
	var projected decimal.Decimal
	switch order.Side {
	case engine.Buy:
		projected = position.Add(order.Quantity)
	case engine.Sell:
		projected = position.Sub(order.Quantity)
	}
	if projected.Abs().GreaterThan(m.limits.MaxPositionSize) {
		return fail(fmt.Sprintf("New position %s would exceed maximum %s",
			projected, m.limits.MaxPositionSize))
	}

	pnl := m.GetDailyPnL(order.UserID)
	if pnl.Abs().GreaterThan(m.limits.MaxDailyLoss) {
		return fail(fmt.Sprintf("Daily loss %s exceeds maximum %s",
			pnl, m.limits.MaxDailyLoss))
	}

	return pass()
}

// UpdatePosition moves the user's position by the trade quantity, signed by
// the trade's aggressing side. This attributes the trade to the taker; for
// the maker call AddPosition with the opposite sign.
func (m *Manager) UpdatePosition(userID string, trade *engine.Trade) {
	quantity := trade.Quantity
	if trade.AggressingSide == engine.Sell {
		quantity = quantity.Neg()
	}
	m.AddPosition(userID, quantity)
}

// AddPosition applies a signed quantity to the user's position.
func (m *Manager) AddPosition(userID string, quantity decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions[userID] = m.positions[userID].Add(quantity)
}

// UpdatePnL accumulates a realized P&L delta for the user.
func (m *Manager) UpdatePnL(userID string, delta decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dailyPnL[userID] = m.dailyPnL[userID].Add(delta)
}

func (m *Manager) GetPosition(userID string) decimal.Decimal {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.positions[userID]
}

func (m *Manager) GetDailyPnL(userID string) decimal.Decimal {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dailyPnL[userID]
}

// ResetDailyPnL clears every user's P&L counter at end of session.
func (m *Manager) ResetDailyPnL() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dailyPnL = make(map[string]decimal.Decimal)
}
