// Package pricing holds the exchange-agnostic order sizing and order-book
// walking logic: rounding a raw quantity down to a venue-legal lot size and
// estimating slippage-bounded execution prices from book snapshots.
package pricing

import (
	"fmt"
	"math"

	"jinktrader/internal/domain"
)

// stepTolerance is the floating-point slack allowed when verifying that a
// rounded quantity is an exact multiple of the venue step size.
const stepTolerance = 1e-5

// QuantityError reports a quantity that cannot be made venue-legal. It
// carries both the requested quantity and what it rounded to so callers can
// log the rejection without recomputing it.
type QuantityError struct {
	Requested float64
	Rounded   float64
	Filters   domain.SymbolFilters
}

func (e *QuantityError) Error() string {
	return fmt.Sprintf("quantity %v rounds to %v, outside lot-size bounds [%v, %v] step %v",
		e.Requested, e.Rounded, e.Filters.MinQty, e.Filters.MaxQty, e.Filters.StepSize)
}

// RoundToStep rounds qty down to the nearest multiple of the step size and
// verifies the result lies within the venue's min/max bounds. On violation it
// returns a *QuantityError and the order must not be submitted.
func RoundToStep(qty float64, filters domain.SymbolFilters) (float64, error) {
	if filters.StepSize <= 0 {
		return 0, &QuantityError{Requested: qty, Rounded: 0, Filters: filters}
	}

	// The small epsilon keeps an exact multiple from flooring one step
	// down due to float division noise.
	steps := math.Floor(qty/filters.StepSize + 1e-9)
	rounded := steps * filters.StepSize

	// Renormalize to the step's decimal precision so 1234*0.01 style
	// products don't carry binary residue into the API call.
	if decimals := stepDecimals(filters.StepSize); decimals >= 0 {
		pow := math.Pow(10, float64(decimals))
		rounded = math.Round(rounded*pow) / pow
	}

	if rounded < filters.MinQty || rounded > filters.MaxQty {
		return 0, &QuantityError{Requested: qty, Rounded: rounded, Filters: filters}
	}
	if rem := math.Abs(rounded - math.Round(rounded/filters.StepSize)*filters.StepSize); rem > stepTolerance {
		return 0, &QuantityError{Requested: qty, Rounded: rounded, Filters: filters}
	}
	return rounded, nil
}

// stepDecimals counts the decimal places of a step size (0.001 -> 3).
// Returns -1 for steps that are not a power of ten below one, in which case
// no renormalization is applied.
func stepDecimals(step float64) int {
	if step >= 1 {
		return 0
	}
	for d := 1; d <= 12; d++ {
		scaled := step * math.Pow(10, float64(d))
		if math.Abs(scaled-math.Round(scaled)) < 1e-9 {
			return d
		}
	}
	return -1
}

// FilterSet is an immutable per-exchange snapshot of lot-size filters keyed
// by venue pair symbol. Refreshes replace the whole map, they never mutate
// a published one.
type FilterSet map[string]domain.SymbolFilters

// Lookup returns the filters for a pair and whether the venue lists it.
func (fs FilterSet) Lookup(pair string) (domain.SymbolFilters, bool) {
	f, ok := fs[pair]
	return f, ok
}
