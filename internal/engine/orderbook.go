package engine

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tidwall/btree"
)

// PriceLevel holds the orders resting at one price on one side of the book.
// Orders is FIFO: ids are appended on arrival and consumed front-first.
// TotalQuantity tracks the sum of the remaining quantities of the listed
// orders and is kept current on every fill, not just on add/remove.
type PriceLevel struct {
	Price         decimal.Decimal
	TotalQuantity decimal.Decimal
	Orders        []uuid.UUID
}

func NewPriceLevel(price decimal.Decimal) *PriceLevel {
	return &PriceLevel{Price: price}
}

func (l *PriceLevel) addOrder(id uuid.UUID, quantity decimal.Decimal) {
	l.Orders = append(l.Orders, id)
	l.TotalQuantity = l.TotalQuantity.Add(quantity)
}

// removeOrder drops the first occurrence of id and returns whether it was
// listed. The level total is only decremented when the id was present, so
// removal of an order that was already consumed is a no-op.
func (l *PriceLevel) removeOrder(id uuid.UUID, quantity decimal.Decimal) bool {
	for i, listed := range l.Orders {
		if listed == id {
			l.Orders = append(l.Orders[:i], l.Orders[i+1:]...)
			l.TotalQuantity = l.TotalQuantity.Sub(quantity)
			return true
		}
	}
	return false
}

func (l *PriceLevel) reduce(quantity decimal.Decimal) {
	l.TotalQuantity = l.TotalQuantity.Sub(quantity)
}

func (l *PriceLevel) clone() *PriceLevel {
	return &PriceLevel{
		Price:         l.Price,
		TotalQuantity: l.TotalQuantity,
		Orders:        append([]uuid.UUID(nil), l.Orders...),
	}
}

type PriceLevels = btree.BTreeG[*PriceLevel]

// DepthEntry is one (price, resting quantity) rung of a depth ladder.
type DepthEntry struct {
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

// OrderBook is the two-sided book for a single symbol. Levels hold order ids
// only; the engine's order table is the source of truth for order state.
// Bids are sorted greatest price first and asks least first, so the minimum
// of either tree is always the most aggressive level.
type OrderBook struct {
	Symbol string
	Bids   *PriceLevels
	Asks   *PriceLevels
}

func NewOrderBook(symbol string) *OrderBook {
	bids := btree.NewBTreeG(func(a, b *PriceLevel) bool {
		return a.Price.GreaterThan(b.Price)
	})
	asks := btree.NewBTreeG(func(a, b *PriceLevel) bool {
		return a.Price.LessThan(b.Price)
	})
	return &OrderBook{
		Symbol: symbol,
		Bids:   bids,
		Asks:   asks,
	}
}

func (book *OrderBook) levels(side Side) *PriceLevels {
	if side == Buy {
		return book.Bids
	}
	return book.Asks
}

// AddOrder rests the order on its own side at its limit price, creating the
// level on first use. The quantity contributed is the order's remaining
// quantity at insertion.
func (book *OrderBook) AddOrder(order *Order) {
	levels := book.levels(order.Side)

	level, ok := levels.GetMut(&PriceLevel{Price: order.Price})
	if !ok {
		level = NewPriceLevel(order.Price)
		levels.Set(level)
	}
	level.addOrder(order.ID, order.RemainingQuantity())
}

// RemoveOrder unlinks the order from its level, decrementing the level total
// by the order's current remaining quantity, and evicts the level once its
// queue is empty. Removing an order that is no longer resting is a no-op.
func (book *OrderBook) RemoveOrder(order *Order) {
	levels := book.levels(order.Side)

	level, ok := levels.GetMut(&PriceLevel{Price: order.Price})
	if !ok {
		return
	}
	if level.removeOrder(order.ID, order.RemainingQuantity()) && len(level.Orders) == 0 {
		levels.Delete(level)
	}
}

// Reduce lowers the resting total at the given price by quantity. The engine
// calls this for every fill of a resting order so that level totals never
// drift from the sum of their orders' remaining quantities.
func (book *OrderBook) Reduce(side Side, price, quantity decimal.Decimal) {
	if level, ok := book.levels(side).GetMut(&PriceLevel{Price: price}); ok {
		level.reduce(quantity)
	}
}

func (book *OrderBook) BestBid() (decimal.Decimal, bool) {
	level, ok := book.Bids.Min()
	if !ok {
		return decimal.Decimal{}, false
	}
	return level.Price, true
}

func (book *OrderBook) BestAsk() (decimal.Decimal, bool) {
	level, ok := book.Asks.Min()
	if !ok {
		return decimal.Decimal{}, false
	}
	return level.Price, true
}

// Spread is best ask minus best bid, present only when both sides are.
func (book *OrderBook) Spread() (decimal.Decimal, bool) {
	bid, bidOk := book.BestBid()
	ask, askOk := book.BestAsk()
	if !bidOk || !askOk {
		return decimal.Decimal{}, false
	}
	return ask.Sub(bid), true
}

// MidPrice is the arithmetic mean of best bid and best ask.
func (book *OrderBook) MidPrice() (decimal.Decimal, bool) {
	bid, bidOk := book.BestBid()
	ask, askOk := book.BestAsk()
	if !bidOk || !askOk {
		return decimal.Decimal{}, false
	}
	return bid.Add(ask).Div(decimal.NewFromInt(2)), true
}

// Depth returns up to max levels of (price, total quantity) for the side,
// most aggressive price first.
func (book *OrderBook) Depth(side Side, max int) []DepthEntry {
	var entries []DepthEntry
	book.levels(side).Scan(func(level *PriceLevel) bool {
		if len(entries) >= max {
			return false
		}
		entries = append(entries, DepthEntry{Price: level.Price, Quantity: level.TotalQuantity})
		return true
	})
	return entries
}

// Snapshot deep-copies the book so callers can inspect it without racing
// engine mutation.
func (book *OrderBook) Snapshot() *OrderBook {
	snapshot := NewOrderBook(book.Symbol)
	book.Bids.Scan(func(level *PriceLevel) bool {
		snapshot.Bids.Set(level.clone())
		return true
	})
	book.Asks.Scan(func(level *PriceLevel) bool {
		snapshot.Asks.Set(level.clone())
		return true
	})
	return snapshot
}
