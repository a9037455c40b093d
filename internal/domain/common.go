package domain

// OrderSide represents the side of an order (BUY or SELL).
type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

// Exchange identifies a trading venue.
type Exchange string

const (
	ExchangeBinance Exchange = "binance"
	ExchangeBittrex Exchange = "bittrex"
	ExchangeKucoin  Exchange = "kucoin"
)

// IsValid reports whether the exchange is one of the supported venues.
func (e Exchange) IsValid() bool {
	switch e {
	case ExchangeBinance, ExchangeBittrex, ExchangeKucoin:
		return true
	}
	return false
}

// TradeState represents the lifecycle state of a trade.
type TradeState string

const (
	StatePending TradeState = "pending"
	StateOpen    TradeState = "open"
	StateClosed  TradeState = "closed"
	StateError   TradeState = "error"
)

// CloseReason indicates why a trade was closed.
type CloseReason string

const (
	CloseReasonProfit  CloseReason = "PROFIT"
	CloseReasonDump    CloseReason = "DUMP"
	CloseReasonLoss    CloseReason = "LOSS"
	CloseReasonTime    CloseReason = "TIME"
	CloseReasonRequest CloseReason = "REQUEST"
	CloseReasonCancel  CloseReason = "CANCEL"
	CloseReasonUnknown CloseReason = "UNKNOWN"
)

// SymbolFilters holds the venue lot-size constraints for one trading pair.
type SymbolFilters struct {
	MinQty   float64
	MaxQty   float64
	StepSize float64
}

// BookLevel is a single (price, quantity) level of an order book side.
type BookLevel struct {
	Price    float64
	Quantity float64
}
