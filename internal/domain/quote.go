package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceLevel is one level of a quote's order book side.
type PriceLevel struct {
	Value decimal.Decimal `json:"value"`
	Size  decimal.Decimal `json:"size,omitempty"`
}

// Quote is the latest known bid/ask snapshot for one instrument.
// An empty Bid or Ask slice means "no current best" on that side, which is a
// different state from the symbol missing from the cache entirely.
type Quote struct {
	SymbolID  string       `json:"symbolId"`
	Timestamp int64        `json:"timestamp"` // milliseconds since epoch
	Bid       []PriceLevel `json:"bid"`
	Ask       []PriceLevel `json:"ask"`
}

// BestBid returns the top-of-book bid value, if any.
func (q Quote) BestBid() (decimal.Decimal, bool) {
	if len(q.Bid) == 0 {
		return decimal.Zero, false
	}
	return q.Bid[0].Value, true
}

// BestAsk returns the top-of-book ask value, if any.
func (q Quote) BestAsk() (decimal.Decimal, bool) {
	if len(q.Ask) == 0 {
		return decimal.Zero, false
	}
	return q.Ask[0].Value, true
}

// Time converts the quote's millisecond timestamp to UTC wall time.
func (q Quote) Time() time.Time {
	return time.UnixMilli(q.Timestamp).UTC()
}

// OHLCBar is one candle of a historical price series.
type OHLCBar struct {
	Timestamp int64           `json:"timestamp"` // milliseconds since epoch
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
}
