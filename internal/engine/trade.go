package engine

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Trade is the immutable record of one cross. AggressingSide is the side of
// the taker whose submission produced the trade; the price is always the
// resting (maker) order's level price.
type Trade struct {
	ID             uuid.UUID
	Symbol         string
	BuyerOrderID   uuid.UUID
	SellerOrderID  uuid.UUID
	Price          decimal.Decimal
	Quantity       decimal.Decimal
	AggressingSide Side
	Timestamp      time.Time
}

func NewTrade(symbol string, buyerOrderID, sellerOrderID uuid.UUID, price, quantity decimal.Decimal, aggressingSide Side) Trade {
	return Trade{
		ID:             uuid.New(),
		Symbol:         symbol,
		BuyerOrderID:   buyerOrderID,
		SellerOrderID:  sellerOrderID,
		Price:          price,
		Quantity:       quantity,
		AggressingSide: aggressingSide,
		Timestamp:      time.Now(),
	}
}

// Notional is the traded value, price times quantity.
func (t Trade) Notional() decimal.Decimal {
	return t.Price.Mul(t.Quantity)
}

func (t Trade) String() string {
	return fmt.Sprintf("%s %s %s@%s aggressor=%s buyer=%s seller=%s",
		t.ID,
		t.Symbol,
		t.Quantity,
		t.Price,
		t.AggressingSide,
		t.BuyerOrderID,
		t.SellerOrderID,
	)
}
