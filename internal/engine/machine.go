package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"jinktrader/internal/domain"
	"jinktrader/internal/ports"
	"jinktrader/internal/pricing"
)

// Config holds the knobs of the trade state machine.
type Config struct {
	Production     bool    // false simulates fills instead of placing orders
	SellFee        float64 // fee haircut applied to the sell quantity (e.g. 0.001)
	CertaintyLimit int     // consecutive ticks required to trust a trigger
	Logger         ports.Logger
}

// Machine drives one trade through PENDING -> OPEN -> {CLOSED, ERROR}.
// It never retains the trade between calls; the caller owns it and is the
// single writer.
type Machine struct {
	production     bool
	sellFee        float64
	certaintyLimit int
	logger         ports.Logger
}

// New creates a trade state machine.
func New(cfg Config) (*Machine, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for the trade machine")
	}
	if cfg.CertaintyLimit <= 0 {
		return nil, fmt.Errorf("certainty limit must be positive, got %d", cfg.CertaintyLimit)
	}
	if cfg.SellFee < 0 || cfg.SellFee >= 1 {
		return nil, fmt.Errorf("sell fee must be in [0, 1), got %v", cfg.SellFee)
	}
	return &Machine{
		production:     cfg.Production,
		sellFee:        cfg.SellFee,
		certaintyLimit: cfg.CertaintyLimit,
		logger:         cfg.Logger,
	}, nil
}

// Open executes the opening buy. On a quantity rejection the trade stays
// PENDING and the error (a *pricing.QuantityError) is returned for the
// caller to log; the signal is dropped. On a confirmed full fill the trade
// records the realized average price and transitions to OPEN.
func (m *Machine) Open(ctx context.Context, t *domain.Trade, ex ports.ExchangeClient) error {
	op := "Open"
	if t.State != domain.StatePending {
		return fmt.Errorf("%s: trade %s is %s, not pending", op, t.DisplayPair(), t.State)
	}

	qty, err := pricing.RoundToStep(t.BuyQty, t.Filters)
	if err != nil {
		return fmt.Errorf("%s %s: %w", op, t.DisplayPair(), err)
	}

	if !m.production {
		return m.openSimulated(ctx, t, ex, qty)
	}

	fill, err := ex.MarketBuy(ctx, t.Pair(), qty)
	if err != nil {
		return fmt.Errorf("%s %s: buy failed: %w", op, t.DisplayPair(), err)
	}

	t.BuyQty = fill.FilledQty
	t.Price.Buy = fill.AvgPrice
	t.Price.Max = fill.AvgPrice
	t.State = domain.StateOpen
	t.OpenedAt = time.Now().UTC()

	m.logger.Info(ctx, op+": position opened", map[string]interface{}{
		"pair":     t.DisplayPair(),
		"exchange": t.Exchange,
		"qty":      t.BuyQty,
		"buyPrice": t.Price.Buy,
	})
	return nil
}

// openSimulated estimates the buy price from the ask side of the book and
// opens the trade without placing an order. Dev mode only.
func (m *Machine) openSimulated(ctx context.Context, t *domain.Trade, ex ports.ExchangeClient, qty float64) error {
	asks, err := ex.GetOrderBook(ctx, t.Pair(), domain.Buy)
	if err != nil {
		return fmt.Errorf("openSimulated %s: %w", t.DisplayPair(), err)
	}
	price, err := pricing.EstimatePrice(asks, t.Amount)
	if err != nil {
		return fmt.Errorf("openSimulated %s: %w", t.DisplayPair(), err)
	}

	t.BuyQty = qty
	t.Price.Buy = price
	t.Price.Max = price
	t.State = domain.StateOpen
	t.OpenedAt = time.Now().UTC()

	m.logger.Info(ctx, "openSimulated: position opened (dev)", map[string]interface{}{
		"pair":     t.DisplayPair(),
		"qty":      qty,
		"buyPrice": price,
	})
	return nil
}

// Tick advances one monitoring interval: it refreshes the price sample,
// recomputes the metrics, runs the certainty counters, and reports whether a
// close trigger is confirmed on this tick. It never places orders itself.
func (m *Machine) Tick(ctx context.Context, t *domain.Trade, ex ports.ExchangeClient, now time.Time) (domain.CloseReason, bool, error) {
	if !t.IsOpen() {
		return "", false, fmt.Errorf("tick on trade %s in state %s", t.DisplayPair(), t.State)
	}

	sample, err := m.samplePrice(ctx, t, ex)
	if err != nil {
		// Skip the tick: counters keep their runs, metrics stay stale.
		return "", false, err
	}

	UpdateMetrics(t, sample)
	CheckLimits(t)

	if reason, ok := TriggeredReason(t, m.certaintyLimit); ok {
		return reason, true, nil
	}
	if TimeExceeded(t, now) {
		return domain.CloseReasonTime, true, nil
	}
	return "", false, nil
}

// samplePrice estimates the current exit price by walking the bid side of
// the book for the trade's notional, falling back to the venue's last trade
// price when no usable book is available.
func (m *Machine) samplePrice(ctx context.Context, t *domain.Trade, ex ports.ExchangeClient) (float64, error) {
	bids, err := ex.GetOrderBook(ctx, t.Pair(), domain.Sell)
	if err == nil {
		if price, werr := pricing.EstimatePrice(bids, t.Amount); werr == nil {
			return price, nil
		}
	}
	price, perr := ex.GetPrice(ctx, t.Pair())
	if perr != nil {
		return 0, fmt.Errorf("price sample for %s: %w", t.DisplayPair(), perr)
	}
	return price, nil
}

// Close executes the closing sell for the given reason.
//
//   - CANCEL closes the trade without touching the exchange.
//   - A quantity rejection leaves the trade OPEN and returns a
//     *pricing.QuantityError; the caller retries on the next tick.
//   - An exchange failure (including an unconfirmed fill) is terminal: the
//     trade transitions to ERROR and is never retried automatically.
func (m *Machine) Close(ctx context.Context, t *domain.Trade, ex ports.ExchangeClient, reason domain.CloseReason) error {
	op := "Close"
	if !t.IsOpen() {
		return fmt.Errorf("%s: trade %s is %s, not open", op, t.DisplayPair(), t.State)
	}

	if reason == domain.CloseReasonCancel {
		t.State = domain.StateClosed
		m.logger.Info(ctx, op+": trade cancelled without sell order", map[string]interface{}{"pair": t.DisplayPair()})
		return nil
	}

	if !m.production {
		t.State = domain.StateClosed
		m.logger.Info(ctx, op+": position closed (dev)", map[string]interface{}{
			"pair":   t.DisplayPair(),
			"reason": reason,
			"profit": t.Current.Profit,
		})
		return nil
	}

	sellQty := t.BuyQty - t.BuyQty*m.sellFee
	qty, err := pricing.RoundToStep(sellQty, t.Filters)
	if err != nil {
		// Recoverable: stay OPEN, the monitor retries next tick.
		return fmt.Errorf("%s %s: %w", op, t.DisplayPair(), err)
	}

	fill, err := ex.MarketSell(ctx, t.Pair(), qty)
	if err != nil {
		t.State = domain.StateError
		return fmt.Errorf("%s %s: sell failed: %w", op, t.DisplayPair(), err)
	}

	// Realize the metrics at the actual execution price so the reported
	// profit matches what happened, not the last sample.
	UpdateMetrics(t, fill.AvgPrice)
	t.State = domain.StateClosed

	m.logger.Info(ctx, op+": position closed", map[string]interface{}{
		"pair":      t.DisplayPair(),
		"reason":    reason,
		"sellPrice": fill.AvgPrice,
		"profit":    t.Current.Profit,
	})
	return nil
}

// IsQuantityRejection reports whether err is a lot-size rejection, the one
// close failure that is retried.
func IsQuantityRejection(err error) bool {
	var qe *pricing.QuantityError
	return errors.As(err, &qe)
}
