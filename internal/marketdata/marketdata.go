// Package marketdata defines the value types handed to consumers at the
// boundary. The engine neither produces nor consumes them. A Quote is built
// from the gateway's wire quote report by net.Quote.MarketData; nothing in
// this module builds a Ticker.
package marketdata

import (
	"time"

	"github.com/shopspring/decimal"
)

// Ticker summarizes recent trading in one symbol.
type Ticker struct {
	Symbol    string
	LastPrice decimal.Decimal
	Volume    decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Open      decimal.Decimal
	Timestamp time.Time
}

// Quote is a top-of-book snapshot for one symbol.
type Quote struct {
	Symbol    string
	BidPrice  decimal.Decimal
	BidSize   decimal.Decimal
	AskPrice  decimal.Decimal
	AskSize   decimal.Decimal
	Timestamp time.Time
}

func (q Quote) Spread() decimal.Decimal {
	return q.AskPrice.Sub(q.BidPrice)
}

func (q Quote) MidPrice() decimal.Decimal {
	return q.BidPrice.Add(q.AskPrice).Div(decimal.NewFromInt(2))
}
