// Package analytics computes summary statistics over recorded trades.
package analytics

import (
	"sort"
	"time"

	"jinktrader/internal/domain"
)

// PerformanceMetrics holds summary metrics over a set of journal entries.
// Profit figures are in percent of the position, matching the journal.
type PerformanceMetrics struct {
	TotalTrades    int
	WinningTrades  int
	LosingTrades   int
	ErroredTrades  int
	WinRate        float64
	TotalProfitPct float64
	AverageWin     float64
	AverageLoss    float64
	Expectancy     float64

	MaxConsecutiveWins   int
	MaxConsecutiveLosses int
	AverageHoldingTime   time.Duration
	CloseReasons         map[domain.CloseReason]int
	MonthlyReturns       map[string]float64
}

// AnalyzePerformance calculates performance metrics from journal entries.
// Errored trades count toward the total and the reason breakdown but are
// excluded from the win/loss statistics.
func AnalyzePerformance(entries []*domain.JournalEntry) *PerformanceMetrics {
	metrics := &PerformanceMetrics{
		CloseReasons:   make(map[domain.CloseReason]int),
		MonthlyReturns: make(map[string]float64),
	}
	if len(entries) == 0 {
		return metrics
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].OpenedAt.Before(entries[j].OpenedAt)
	})

	var consecutiveWins, consecutiveLosses int
	var totalHold time.Duration

	for _, e := range entries {
		metrics.TotalTrades++
		metrics.CloseReasons[e.Reason]++
		totalHold += e.ClosedAt.Sub(e.OpenedAt)

		if e.State == domain.StateError {
			metrics.ErroredTrades++
			continue
		}

		if e.ProfitPct > 0 {
			metrics.WinningTrades++
			consecutiveWins++
			consecutiveLosses = 0
			metrics.AverageWin = (metrics.AverageWin*float64(metrics.WinningTrades-1) + e.ProfitPct) / float64(metrics.WinningTrades)
		} else {
			metrics.LosingTrades++
			consecutiveLosses++
			consecutiveWins = 0
			metrics.AverageLoss = (metrics.AverageLoss*float64(metrics.LosingTrades-1) + e.ProfitPct) / float64(metrics.LosingTrades)
		}
		if consecutiveWins > metrics.MaxConsecutiveWins {
			metrics.MaxConsecutiveWins = consecutiveWins
		}
		if consecutiveLosses > metrics.MaxConsecutiveLosses {
			metrics.MaxConsecutiveLosses = consecutiveLosses
		}

		metrics.TotalProfitPct += e.ProfitPct
		metrics.MonthlyReturns[e.ClosedAt.Format("2006-01")] += e.ProfitPct
	}

	metrics.AverageHoldingTime = totalHold / time.Duration(len(entries))

	settled := metrics.WinningTrades + metrics.LosingTrades
	if settled > 0 {
		metrics.WinRate = float64(metrics.WinningTrades) / float64(settled)
		metrics.Expectancy = (metrics.WinRate * metrics.AverageWin) + ((1 - metrics.WinRate) * metrics.AverageLoss)
	}
	return metrics
}

// MonthlyReturn represents one month's aggregated return.
type MonthlyReturn struct {
	Month  time.Time
	Return float64
}

// GetMonthlyReturns returns the monthly returns as a sorted slice.
func (m *PerformanceMetrics) GetMonthlyReturns() []MonthlyReturn {
	returns := make([]MonthlyReturn, 0, len(m.MonthlyReturns))
	for month, profit := range m.MonthlyReturns {
		date, _ := time.Parse("2006-01", month)
		returns = append(returns, MonthlyReturn{Month: date, Return: profit})
	}
	sort.Slice(returns, func(i, j int) bool {
		return returns[i].Month.Before(returns[j].Month)
	})
	return returns
}
