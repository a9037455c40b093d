package ports

import (
	"context"

	"jinktrader/internal/domain"
)

// FillResult reports the outcome of a confirmed market buy/sell.
type FillResult struct {
	AvgPrice  float64 // average execution price across fills
	FilledQty float64 // base quantity actually executed
	OrderID   string  // venue order identifier, diagnostic only
}

// ExchangeClient defines the per-venue operations the trading core needs.
// Venues without native market orders implement MarketBuy/MarketSell by
// walking the book, placing an aggressive limit order and confirming the
// fill within a bounded wait; a non-full fill after that wait is surfaced
// as ErrFillUnconfirmed, never silently retried.
type ExchangeClient interface {
	// Kind identifies the venue.
	Kind() domain.Exchange

	// GetPrice retrieves the best current trade price for a pair.
	GetPrice(ctx context.Context, pair string) (float64, error)

	// GetOrderBook retrieves one side of the order book, best level first.
	// Buy returns asks (what a buyer consumes), Sell returns bids.
	GetOrderBook(ctx context.Context, pair string, side domain.OrderSide) ([]domain.BookLevel, error)

	// MarketBuy executes (or emulates) a market buy for a base quantity.
	MarketBuy(ctx context.Context, pair string, qty float64) (*FillResult, error)

	// MarketSell executes (or emulates) a market sell for a base quantity.
	MarketSell(ctx context.Context, pair string, qty float64) (*FillResult, error)

	// GetBalances retrieves available balances keyed by asset.
	GetBalances(ctx context.Context) (map[string]float64, error)

	// GetTradingFilters lists the lot-size constraints for every tradable
	// pair on the venue, keyed by the venue's pair symbol.
	GetTradingFilters(ctx context.Context) (map[string]domain.SymbolFilters, error)
}
