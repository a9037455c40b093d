package app

import (
	"context"

	"jinktrader/internal/domain"
	"jinktrader/internal/ports"
)

// reporter batches the log entries and trade events produced during one tick
// and flushes them to the coordination service in one shot. Delivery is best
// effort: flush failures are logged locally and swallowed, telemetry never
// blocks trading.
type reporter struct {
	coord  ports.Coordinator
	logger ports.Logger
	logs   []domain.LogEntry
	events []domain.Event
}

func newReporter(coord ports.Coordinator, logger ports.Logger) *reporter {
	return &reporter{coord: coord, logger: logger}
}

// log records an outbound log entry and mirrors it to the local logger.
func (r *reporter) log(ctx context.Context, text string, level domain.LogLevel) {
	r.logs = append(r.logs, domain.NewLogEntry(text, level))
	switch level {
	case domain.LogLevelError:
		r.logger.Error(ctx, nil, text)
	case domain.LogLevelSystem:
		r.logger.Debug(ctx, text)
	default:
		r.logger.Info(ctx, text)
	}
}

// event records an outbound trade event.
func (r *reporter) event(action domain.EventAction, t *domain.Trade) {
	r.events = append(r.events, domain.NewEvent(action, t))
}

// flush posts the accumulated batches and resets the reporter.
func (r *reporter) flush(ctx context.Context) {
	if len(r.logs) > 0 {
		if err := r.coord.PostLogs(ctx, r.logs); err != nil {
			r.logger.Debug(ctx, "posting logs failed", map[string]interface{}{"error": err.Error()})
		}
		r.logs = nil
	}
	if len(r.events) > 0 {
		if err := r.coord.PostEvents(ctx, r.events); err != nil {
			r.logger.Debug(ctx, "posting events failed", map[string]interface{}{"error": err.Error()})
		}
		r.events = nil
	}
}
