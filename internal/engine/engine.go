package engine

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

var (
	ErrMarketOrderUnfilled = errors.New("Market order could not be fully filled")
	ErrOrderNotFound       = errors.New("Order not found")
	ErrCancelFilledOrder   = errors.New("Cannot cancel filled order")
)

// bookHandle pairs a book with the lock serializing all activity on its
// symbol. Matching, rest-on-book and the resting orders' fill updates all
// happen inside this critical section, so the trades of one submission are
// atomic to any observer of the symbol.
type bookHandle struct {
	mu   sync.Mutex
	book *OrderBook
}

// MatchingEngine keeps one order book per symbol and a global table of every
// order ever submitted. Orders stay in the table after reaching a terminal
// state so they remain queryable; only their book linkage is dropped.
type MatchingEngine struct {
	mu         sync.RWMutex
	orderbooks map[string]*bookHandle

	ordersMu sync.RWMutex
	orders   map[uuid.UUID]*Order
}

func NewMatchingEngine() *MatchingEngine {
	return &MatchingEngine{
		orderbooks: make(map[string]*bookHandle),
		orders:     make(map[uuid.UUID]*Order),
	}
}

// SubmitOrder validates the order, matches it against the opposite side of
// its symbol's book and rests any unfilled remainder when the type allows.
// The emitted trades are returned in execution order. On market-order
// rejection the trades produced before liquidity ran out are returned
// together with ErrMarketOrderUnfilled; the order does not rest.
//
// The engine takes ownership of the order. Submissions for different symbols
// proceed independently; submissions for one symbol serialize on its book.
func (e *MatchingEngine) SubmitOrder(order *Order) ([]Trade, error) {
	if err := order.Validate(); err != nil {
		return nil, err
	}

	h := e.handleFor(order.Symbol)
	h.mu.Lock()
	defer h.mu.Unlock()

	var trades []Trade
	var err error
	switch order.Type {
	case MarketOrder:
		trades, err = e.matchMarket(h.book, order)
	case LimitOrder, StopLimitOrder:
		trades = e.matchLimit(h.book, order)
	case StopLossOrder:
		// Dormant until triggered; tracked in the order table only.
	}

	if e.shouldRest(order) {
		h.book.AddOrder(order)
	}
	e.storeOrder(order)

	return trades, err
}

// shouldRest decides whether the submitted order's remainder goes on the
// book. Rejected market orders never rest, and a stop-loss has no limit
// price to rest at.
func (e *MatchingEngine) shouldRest(order *Order) bool {
	if order.IsFullyFilled() || order.Status == Cancelled || order.Status == Rejected {
		return false
	}
	return order.Type == LimitOrder || order.Type == StopLimitOrder
}

// matchLimit sweeps the opposite side from the most aggressive level outward
// while prices remain compatible with the taker's limit.
func (e *MatchingEngine) matchLimit(book *OrderBook, order *Order) []Trade {
	var trades []Trade
	for !order.IsFullyFilled() {
		level, ok := book.levels(order.Side.Opposite()).Min()
		if !ok {
			break
		}
		if order.Side == Buy && level.Price.GreaterThan(order.Price) {
			break
		}
		if order.Side == Sell && level.Price.LessThan(order.Price) {
			break
		}

		step := e.consumeLevel(book, order, level)
		if len(step) == 0 {
			break
		}
		trades = append(trades, step...)
	}
	return trades
}

// matchMarket sweeps the opposite side with no price filter until the taker
// is filled or liquidity runs out. An unfilled remainder rejects the order;
// the fills already made stand.
func (e *MatchingEngine) matchMarket(book *OrderBook, order *Order) ([]Trade, error) {
	var trades []Trade
	for !order.IsFullyFilled() {
		level, ok := book.levels(order.Side.Opposite()).Min()
		if !ok {
			break
		}

		step := e.consumeLevel(book, order, level)
		if len(step) == 0 {
			break
		}
		trades = append(trades, step...)
	}

	if !order.IsFullyFilled() {
		order.Reject()
		return trades, ErrMarketOrderUnfilled
	}
	return trades, nil
}

// consumeLevel crosses the taker against the level's resting orders in FIFO
// order. Each trade prints at the level (maker) price. Fully consumed makers
// are unlinked from the book immediately, under the same book lock, so no
// other matching pass can observe the fill and the removal separately.
func (e *MatchingEngine) consumeLevel(book *OrderBook, taker *Order, level *PriceLevel) []Trade {
	var trades []Trade
	resting := append([]uuid.UUID(nil), level.Orders...)
	for _, id := range resting {
		if taker.IsFullyFilled() {
			break
		}

		maker, ok := e.lookupOrder(id)
		if !ok {
			continue
		}

		quantity := decimal.Min(taker.RemainingQuantity(), maker.RemainingQuantity())
		if !quantity.IsPositive() {
			continue
		}

		buyer, seller := taker.ID, maker.ID
		if taker.Side == Sell {
			buyer, seller = maker.ID, taker.ID
		}

		taker.Fill(quantity)
		maker.Fill(quantity)
		book.Reduce(maker.Side, level.Price, quantity)
		trades = append(trades, NewTrade(book.Symbol, buyer, seller, level.Price, quantity, taker.Side))

		if maker.IsFullyFilled() {
			book.RemoveOrder(maker)
		}
	}
	return trades
}

// CancelOrder cancels the order and unlinks it from its book. Filled orders
// cannot be cancelled; a partially filled order can, which pulls its
// remaining quantity.
func (e *MatchingEngine) CancelOrder(id uuid.UUID) error {
	order, ok := e.lookupOrder(id)
	if !ok {
		return ErrOrderNotFound
	}

	h := e.handleFor(order.Symbol)
	h.mu.Lock()
	defer h.mu.Unlock()

	if order.Status == Filled {
		return ErrCancelFilledOrder
	}

	h.book.RemoveOrder(order)
	order.Cancel()
	return nil
}

// GetOrder returns a snapshot copy of the order.
func (e *MatchingEngine) GetOrder(id uuid.UUID) (Order, bool) {
	order, ok := e.lookupOrder(id)
	if !ok {
		return Order{}, false
	}

	h := e.handleFor(order.Symbol)
	h.mu.Lock()
	defer h.mu.Unlock()
	return *order, true
}

// GetOrderBook returns a deep snapshot of the symbol's book, or false if the
// symbol has never traded. Mutating the snapshot does not touch the engine.
func (e *MatchingEngine) GetOrderBook(symbol string) (*OrderBook, bool) {
	e.mu.RLock()
	h, ok := e.orderbooks[symbol]
	e.mu.RUnlock()
	if !ok {
		return nil, false
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	return h.book.Snapshot(), true
}

// LogBook writes the symbol's top of book to the log.
func (e *MatchingEngine) LogBook(symbol string) {
	book, ok := e.GetOrderBook(symbol)
	if !ok {
		log.Info().Str("symbol", symbol).Msg("no book for symbol")
		return
	}

	event := log.Info().Str("symbol", symbol)
	if bid, ok := book.BestBid(); ok {
		event = event.Str("bestBid", bid.String())
	}
	if ask, ok := book.BestAsk(); ok {
		event = event.Str("bestAsk", ask.String())
	}
	if spread, ok := book.Spread(); ok {
		event = event.Str("spread", spread.String())
	}
	if mid, ok := book.MidPrice(); ok {
		event = event.Str("mid", mid.String())
	}
	event.Msg("book")
}

func (e *MatchingEngine) handleFor(symbol string) *bookHandle {
	e.mu.RLock()
	h, ok := e.orderbooks[symbol]
	e.mu.RUnlock()
	if ok {
		return h
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if h, ok := e.orderbooks[symbol]; ok {
		return h
	}
	h = &bookHandle{book: NewOrderBook(symbol)}
	e.orderbooks[symbol] = h
	return h
}

func (e *MatchingEngine) lookupOrder(id uuid.UUID) (*Order, bool) {
	e.ordersMu.RLock()
	defer e.ordersMu.RUnlock()
	order, ok := e.orders[id]
	return order, ok
}

func (e *MatchingEngine) storeOrder(order *Order) {
	e.ordersMu.Lock()
	defer e.ordersMu.Unlock()
	e.orders[order.ID] = order
}
