// Package engine implements the per-trade decision core: the running
// profit/dump/loss metrics, the consecutive-tick certainty counters that
// filter price noise, and the state machine that executes buys and sells
// through an exchange client.
package engine

import (
	"math"
	"time"

	"jinktrader/internal/domain"
)

// UpdateMetrics folds a fresh price sample into the trade: shifts
// current -> last, advances the monotonic max, and recomputes the percent
// metrics against the buy price and the peak.
func UpdateMetrics(t *domain.Trade, sample float64) {
	t.Price.Last = t.Price.Current
	t.Price.Current = sample
	t.Price.Max = math.Max(t.Price.Current, t.Price.Max)

	t.Current.Profit = roundPct((t.Price.Current - t.Price.Buy) * 100 / t.Price.Buy)
	t.Current.Dump = roundPct((t.Price.Current - t.Price.Max) * 100 / t.Price.Max)
	// Loss reuses the profit formula; it is the same figure read from the
	// downside.
	t.Current.Loss = roundPct((t.Price.Current - t.Price.Buy) * 100 / t.Price.Buy)
}

// CheckLimits advances the certainty counters for every configured trigger
// kind. A counter increments when its condition holds on this tick and
// resets to zero otherwise; a single non-matching tick clears the whole run.
func CheckLimits(t *domain.Trade) {
	// sell as success
	if t.Limit.Profit > 0 {
		if t.Current.Profit >= t.Limit.Profit {
			t.Certainty.Profit++
		} else {
			t.Certainty.Profit = 0
		}
	}

	// sell as dump: only armed while the trade is still strictly net
	// profitable, so it locks in gains receding from the peak. Break-even
	// does not arm it.
	if t.Limit.Dump > 0 {
		if t.Current.Dump < 0 && t.Current.Loss > 0 && math.Abs(t.Current.Dump) >= t.Limit.Dump {
			t.Certainty.Dump++
		} else {
			t.Certainty.Dump = 0
		}
	}

	// sell as exit
	if t.Limit.Loss > 0 {
		if t.Current.Loss < 0 && math.Abs(t.Current.Loss) >= t.Limit.Loss {
			t.Certainty.Loss++
		} else {
			t.Certainty.Loss = 0
		}
	}
}

// TriggeredReason reports whether any certainty counter has reached the
// confirmation threshold, and which trigger kind fired first in the fixed
// profit, dump, loss evaluation order.
func TriggeredReason(t *domain.Trade, certaintyLimit int) (domain.CloseReason, bool) {
	switch {
	case t.Certainty.Profit >= certaintyLimit:
		return domain.CloseReasonProfit, true
	case t.Certainty.Dump >= certaintyLimit:
		return domain.CloseReasonDump, true
	case t.Certainty.Loss >= certaintyLimit:
		return domain.CloseReasonLoss, true
	}
	return "", false
}

// TimeExceeded reports whether the trade has outlived its maximum holding
// time. A zero time limit disables the check.
func TimeExceeded(t *domain.Trade, now time.Time) bool {
	if t.Limit.Time <= 0 {
		return false
	}
	return t.HoldingTime(now) > time.Duration(t.Limit.Time)*time.Minute
}

// roundPct rounds a percent figure to two decimals, matching what is
// reported outward so decisions and telemetry agree.
func roundPct(v float64) float64 {
	return math.Round(v*100) / 100
}
