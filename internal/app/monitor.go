package app

import (
	"context"
	"fmt"
	"time"

	"jinktrader/internal/domain"
	"jinktrader/internal/engine"
	"jinktrader/internal/metrics"
	"jinktrader/internal/ports"
)

// monitor owns the trade after the buy fills: it samples the price every
// interval, closes the position when a trigger is confirmed and records the
// outcome. It is the sole writer of the trade for its whole lifetime.
func (s *Service) monitor(ctx context.Context, t *domain.Trade, ex ports.ExchangeClient) {
	defer func() {
		s.openCount.Add(-1)
		metrics.OpenTrades.Dec()
		s.monitors.Done()
	}()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	// pending holds the close reason while a sell is being retried after a
	// quantity rejection.
	var pending domain.CloseReason
	finalReason := domain.CloseReasonUnknown
	tick := 0
	for !t.IsDone() {
		select {
		case <-ctx.Done():
			s.logger.Warn(ctx, "shutdown with open trade", map[string]interface{}{
				"pair": t.DisplayPair(), "exchange": string(t.Exchange),
			})
			return
		case now := <-ticker.C:
			started := time.Now()
			rep := newReporter(s.coord, s.logger)

			if pending == "" && tick%s.cfg.ActionPollTick == 0 {
				if reason, ok := s.userAction(ctx, t, rep); ok {
					pending = reason
				}
			}
			tick++

			if pending != "" {
				if s.closeTrade(ctx, t, ex, pending, rep) {
					finalReason = pending
					pending = ""
				}
			} else {
				reason, triggered, err := s.machine.Tick(ctx, t, ex, now)
				switch {
				case err != nil:
					s.logger.Warn(ctx, "price tick failed", map[string]interface{}{
						"pair": t.DisplayPair(), "error": err.Error(),
					})
				case triggered:
					if s.closeTrade(ctx, t, ex, reason, rep) {
						finalReason = reason
					} else {
						pending = reason
					}
				}
			}

			rep.flush(ctx)
			metrics.TickDuration.Observe(time.Since(started).Seconds())
		}
	}
	s.record(ctx, t, finalReason)
}

// userAction maps a coordinator-requested action onto a close reason.
func (s *Service) userAction(ctx context.Context, t *domain.Trade, rep *reporter) (domain.CloseReason, bool) {
	action, err := s.coord.RequestedAction(ctx, t)
	if err != nil {
		s.logger.Debug(ctx, "action poll failed", map[string]interface{}{
			"pair": t.DisplayPair(), "error": err.Error(),
		})
		return "", false
	}
	switch action {
	case ports.ActionCancel:
		rep.log(ctx, fmt.Sprintf("Cancelling trade %s on request", t.DisplayPair()), domain.LogLevelInfo)
		return domain.CloseReasonCancel, true
	case ports.ActionSell:
		rep.log(ctx, fmt.Sprintf("Selling trade %s on request", t.DisplayPair()), domain.LogLevelInfo)
		return domain.CloseReasonRequest, true
	}
	return "", false
}

// closeTrade attempts to close the position. It reports whether the trade
// reached a terminal state; a quantity rejection keeps it open for a retry on
// the next tick.
func (s *Service) closeTrade(ctx context.Context, t *domain.Trade, ex ports.ExchangeClient, reason domain.CloseReason, rep *reporter) bool {
	venue := string(ex.Kind())
	start := time.Now()
	err := s.machine.Close(ctx, t, ex, reason)
	switch {
	case err == nil:
		metrics.ClosesTotal.WithLabelValues(string(reason)).Inc()
		if reason == domain.CloseReasonCancel {
			rep.log(ctx, fmt.Sprintf("Cancelled trade %s without selling", t.DisplayPair()), domain.LogLevelInfo)
			return true
		}
		metrics.OrdersTotal.WithLabelValues(venue, "sell").Inc()
		metrics.OrderLatency.WithLabelValues(venue, "sell").Observe(time.Since(start).Seconds())
		rep.event(domain.EventSell, t)
		rep.log(ctx, fmt.Sprintf("Placed market sell for %s with %.2f%% profit [reason: %s, dump: %.2f%%]",
			t.DisplayPair(), t.Current.Profit, reason, t.Current.Dump), domain.LogLevelInfo)
		return true
	case engine.IsQuantityRejection(err):
		rep.log(ctx, fmt.Sprintf("Invalid amount to sell %s, retrying next tick: %v",
			t.DisplayPair(), err), domain.LogLevelError)
		return false
	default:
		metrics.ClosesTotal.WithLabelValues("error").Inc()
		rep.log(ctx, fmt.Sprintf("Error while selling %s: %v", t.DisplayPair(), err), domain.LogLevelError)
		return true
	}
}

func (s *Service) record(ctx context.Context, t *domain.Trade, reason domain.CloseReason) {
	if _, err := s.journal.RecordClosed(ctx, t, reason); err != nil {
		s.logger.Error(ctx, err, "recording closed trade failed", map[string]interface{}{
			"pair": t.DisplayPair(),
		})
	}
}
