package marketdata

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestQuoteCalculations(t *testing.T) {
	quote := Quote{
		Symbol:    "AAPL",
		BidPrice:  dec("150.00"),
		BidSize:   dec("100"),
		AskPrice:  dec("151.00"),
		AskSize:   dec("100"),
		Timestamp: time.Now(),
	}

	assert.True(t, quote.Spread().Equal(dec("1.00")), "spread %s", quote.Spread())
	assert.True(t, quote.MidPrice().Equal(dec("150.50")), "mid %s", quote.MidPrice())
}
