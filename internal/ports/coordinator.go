package ports

import (
	"context"

	"jinktrader/internal/domain"
)

// RequestedAction is a user request recorded against a trade on the
// coordination service.
type RequestedAction int

const (
	ActionNone RequestedAction = iota
	ActionCancel
	ActionSell
)

// Coordinator is the remote coordination-service contract: it issues buy
// signals, accepts structured logs and trade events, and tracks per-trade
// user requests. PostLogs and PostEvents are best-effort telemetry: callers
// swallow their failures and never let them block trading.
type Coordinator interface {
	// Register announces this client to the service and syncs the last
	// seen signal id so old signals are not replayed.
	Register(ctx context.Context) error

	// PullSignal fetches the next unseen signal. Returns nil when the
	// service has nothing new (an envelope without settings counts as
	// nothing new).
	PullSignal(ctx context.Context) (*domain.SignalEnvelope, error)

	// PostLogs uploads a batch of log entries.
	PostLogs(ctx context.Context, logs []domain.LogEntry) error

	// PostEvents uploads a batch of trade events.
	PostEvents(ctx context.Context, events []domain.Event) error

	// RequestedAction polls the user-requested action for a trade.
	RequestedAction(ctx context.Context, trade *domain.Trade) (RequestedAction, error)
}

// TradeJournal records finished trades locally for inspection. It is an
// append-only history: live trade state is never restored from it.
type TradeJournal interface {
	// RecordClosed appends a terminal trade and returns its assigned ID.
	RecordClosed(ctx context.Context, trade *domain.Trade, reason domain.CloseReason) (int64, error)
	// FindRecent retrieves the most recent journal rows, newest first.
	FindRecent(ctx context.Context, limit int) ([]*domain.JournalEntry, error)
	// TotalProfitPct sums the realized profit percent of cleanly closed trades.
	TotalProfitPct(ctx context.Context) (float64, error)
}
