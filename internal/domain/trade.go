package domain

import (
	"fmt"
	"time"
)

// Limit holds the close thresholds supplied with a signal. Percent values,
// zero disables the corresponding trigger.
type Limit struct {
	Profit float64 // take-profit threshold
	Dump   float64 // drawdown-from-peak threshold
	Loss   float64 // stop-loss threshold
	Time   int     // maximum holding time in minutes
}

// Price is the running price snapshot of one trade.
type Price struct {
	Buy     float64 // realized average price of the opening order
	Current float64 // most recent sampled price
	Last    float64 // previous tick's Current
	Max     float64 // highest Current observed since open
}

// Metrics are the percent figures derived from Price on every tick.
type Metrics struct {
	Profit float64 // change from Price.Buy
	Dump   float64 // change from Price.Max
	Loss   float64 // same formula as Profit, read as the downside view
}

// Certainty holds the consecutive-tick confirmation counters, one per
// trigger kind. A counter increments while its condition holds and resets
// to zero the first tick it does not.
type Certainty struct {
	Profit int
	Dump   int
	Loss   int
}

// Trade is the aggregate state of one signal-initiated position.
type Trade struct {
	BasicToken string   // quote asset (e.g. USDT, ETH, BTC)
	Token      string   // base asset
	Exchange   Exchange // venue

	Amount float64 // quote-currency notional requested
	BuyQty float64 // base quantity actually bought

	State     TradeState
	Limit     Limit
	Price     Price
	Current   Metrics
	Certainty Certainty
	Filters   SymbolFilters

	OpenedAt time.Time
	Signal   *SignalEnvelope // originating signal, passed through for reporting
}

// NewTrade returns a pending trade stamped with the current time.
func NewTrade() *Trade {
	return &Trade{
		State:    StatePending,
		OpenedAt: time.Now().UTC(),
	}
}

// Pair formats the trading pair the way the venue expects it.
func (t *Trade) Pair() string {
	switch t.Exchange {
	case ExchangeBinance:
		return t.Token + t.BasicToken
	case ExchangeBittrex:
		return t.BasicToken + "-" + t.Token
	case ExchangeKucoin:
		return t.Token + "-" + t.BasicToken
	}
	return ""
}

// DisplayPair is the quote/base rendering used in logs and reports.
func (t *Trade) DisplayPair() string {
	return fmt.Sprintf("%s/%s", t.BasicToken, t.Token)
}

// IsOpen reports whether the trade is currently being monitored.
func (t *Trade) IsOpen() bool {
	return t.State == StateOpen
}

// IsDone reports whether the trade has reached a terminal state.
func (t *Trade) IsDone() bool {
	return t.State == StateClosed || t.State == StateError
}

// HoldingTime returns how long the trade has been open.
func (t *Trade) HoldingTime(now time.Time) time.Duration {
	return now.Sub(t.OpenedAt)
}
