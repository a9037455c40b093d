package domain

import "time"

// LogLevel classifies outbound log entries for the coordination service.
type LogLevel string

const (
	LogLevelSystem LogLevel = "system"
	LogLevelInfo   LogLevel = "info"
	LogLevelError  LogLevel = "error"
)

// LogEntry is one structured log line reported outward.
type LogEntry struct {
	Text      string
	Level     LogLevel
	CreatedAt time.Time
}

// NewLogEntry stamps a log entry with the current time.
func NewLogEntry(text string, level LogLevel) LogEntry {
	return LogEntry{Text: text, Level: level, CreatedAt: time.Now().UTC()}
}

// EventAction identifies the trade action an event reports.
type EventAction string

const (
	EventBuy  EventAction = "buy"
	EventSell EventAction = "sell"
)

// Event is a buy/sell notification for the coordination service, carrying a
// snapshot of the trade it belongs to.
type Event struct {
	Action    EventAction
	Trade     *Trade
	CreatedAt time.Time
}

// NewEvent stamps an event with the current time.
func NewEvent(action EventAction, trade *Trade) Event {
	return Event{Action: action, Trade: trade, CreatedAt: time.Now().UTC()}
}

// Price returns the price the event reports: the realized buy price for a
// buy, the latest sampled price otherwise.
func (e Event) Price() float64 {
	if e.Action == EventBuy {
		return e.Trade.Price.Buy
	}
	return e.Trade.Price.Current
}
