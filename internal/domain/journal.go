package domain

import "time"

// JournalEntry is one row of the local trade history.
type JournalEntry struct {
	ID         int64
	BasicToken string
	Token      string
	Exchange   Exchange
	Amount     float64
	BuyQty     float64
	BuyPrice   float64
	SellPrice  float64
	ProfitPct  float64
	State      TradeState
	Reason     CloseReason
	OpenedAt   time.Time
	ClosedAt   time.Time
}
