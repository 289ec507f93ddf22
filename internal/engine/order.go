package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrQuantityNotPositive   = errors.New("Quantity must be positive")
	ErrLimitPriceNotPositive = errors.New("Limit orders must have a positive price")
	ErrStopPriceNotPositive  = errors.New("Stop orders must have a positive stop price")
)

// Order is a client instruction to trade. Identity fields are set once at
// construction; FilledQuantity, Status and UpdatedAt mutate as the engine
// works the order. All mutation happens under the owning book's lock.
type Order struct {
	ID             uuid.UUID
	Symbol         string
	Side           Side
	Type           OrderType
	Quantity       decimal.Decimal
	FilledQuantity decimal.Decimal
	Price          decimal.Decimal // zero when the order carries no limit price
	StopPrice      decimal.Decimal // zero when the order carries no stop price
	Status         OrderStatus
	UserID         string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func NewOrder(symbol string, side Side, orderType OrderType, quantity, price, stopPrice decimal.Decimal, userID string) *Order {
	now := time.Now()
	return &Order{
		ID:        uuid.New(),
		Symbol:    symbol,
		Side:      side,
		Type:      orderType,
		Quantity:  quantity,
		Price:     price,
		StopPrice: stopPrice,
		Status:    Pending,
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Validate checks the order is well formed for its type.
func (o *Order) Validate() error {
	if !o.Quantity.IsPositive() {
		return ErrQuantityNotPositive
	}

	switch o.Type {
	case LimitOrder, StopLimitOrder:
		if !o.Price.IsPositive() {
			return ErrLimitPriceNotPositive
		}
	}

	switch o.Type {
	case StopLossOrder, StopLimitOrder:
		if !o.StopPrice.IsPositive() {
			return ErrStopPriceNotPositive
		}
	}

	return nil
}

func (o *Order) RemainingQuantity() decimal.Decimal {
	return o.Quantity.Sub(o.FilledQuantity)
}

func (o *Order) IsFullyFilled() bool {
	return o.FilledQuantity.GreaterThanOrEqual(o.Quantity)
}

// Fill records an execution of the given quantity against the order. The
// caller guarantees 0 < quantity <= RemainingQuantity().
func (o *Order) Fill(quantity decimal.Decimal) {
	o.FilledQuantity = o.FilledQuantity.Add(quantity)
	o.UpdatedAt = time.Now()

	if o.IsFullyFilled() {
		o.Status = Filled
	} else {
		o.Status = PartiallyFilled
	}
}

func (o *Order) Cancel() {
	o.Status = Cancelled
	o.UpdatedAt = time.Now()
}

func (o *Order) Reject() {
	o.Status = Rejected
	o.UpdatedAt = time.Now()
}

func (o *Order) String() string {
	return fmt.Sprintf("%s %s %s %s %s@%s filled=%s status=%s user=%s",
		o.ID,
		o.Symbol,
		o.Side,
		o.Type,
		o.Quantity,
		o.Price,
		o.FilledQuantity,
		o.Status,
		o.UserID,
	)
}
