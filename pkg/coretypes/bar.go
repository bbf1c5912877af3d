package coretypes

import (
	"time"

	"github.com/shopspring/decimal"
)

// Bar is one OHLCV candle, as supplied by a MarketDataSource. Timestamps
// are UTC.
type Bar struct {
	Symbol    string
	Timestamp time.Time
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    decimal.Decimal
}
