package pricing

import (
	"errors"

	"jinktrader/internal/domain"
)

// ErrEmptyBook is returned when a walk is attempted over a book side with no
// levels at all.
var ErrEmptyBook = errors.New("order book side is empty")

// ReferencePrice walks a book side best-to-worst, accumulating base quantity
// until targetQty is covered, and returns the last consumed level's price
// adjusted by deviation to bound slippage: a buy allows a worse (higher)
// price, a sell a lower one. If the book runs out before the target is met
// the last level's price is used (best effort).
func ReferencePrice(levels []domain.BookLevel, targetQty, deviation float64, side domain.OrderSide) (float64, error) {
	if len(levels) == 0 {
		return 0, ErrEmptyBook
	}

	var sumQty float64
	price := levels[len(levels)-1].Price
	for _, lvl := range levels {
		sumQty += lvl.Quantity
		if sumQty >= targetQty {
			price = lvl.Price
			break
		}
	}

	if side == domain.Buy {
		return price * (1 + deviation), nil
	}
	return price * (1 - deviation), nil
}

// EstimatePrice walks a book side accumulating quote value until quoteAmount
// is covered and returns the volume-weighted average price over the consumed
// levels. This is the tick-time price sample: it answers "what would my
// notional actually execute at right now". If the book is exhausted first,
// the average over the whole side is returned.
func EstimatePrice(levels []domain.BookLevel, quoteAmount float64) (float64, error) {
	if len(levels) == 0 {
		return 0, ErrEmptyBook
	}

	var sumQty, sumQuote float64
	for _, lvl := range levels {
		sumQty += lvl.Quantity
		sumQuote += lvl.Price * lvl.Quantity
		if sumQuote >= quoteAmount {
			break
		}
	}
	if sumQty == 0 {
		return 0, ErrEmptyBook
	}
	return sumQuote / sumQty, nil
}
