package app

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jinktrader/config"
	"jinktrader/internal/domain"
	"jinktrader/internal/engine"
	"jinktrader/internal/ports"
)

// Mock implementations

type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

type mockCoordinator struct {
	mu     sync.Mutex
	signal *domain.SignalEnvelope
	action ports.RequestedAction

	registered bool
	logs       []domain.LogEntry
	events     []domain.Event
}

func (m *mockCoordinator) Register(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.registered = true
	return nil
}

func (m *mockCoordinator) PullSignal(ctx context.Context) (*domain.SignalEnvelope, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	env := m.signal
	m.signal = nil
	return env, nil
}

func (m *mockCoordinator) PostLogs(ctx context.Context, logs []domain.LogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, logs...)
	return nil
}

func (m *mockCoordinator) PostEvents(ctx context.Context, events []domain.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, events...)
	return nil
}

func (m *mockCoordinator) RequestedAction(ctx context.Context, trade *domain.Trade) (ports.RequestedAction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.action, nil
}

func (m *mockCoordinator) eventActions() []domain.EventAction {
	m.mu.Lock()
	defer m.mu.Unlock()
	actions := make([]domain.EventAction, 0, len(m.events))
	for _, e := range m.events {
		actions = append(actions, e.Action)
	}
	return actions
}

type recordedClose struct {
	trade  *domain.Trade
	reason domain.CloseReason
}

type mockJournal struct {
	mu       sync.Mutex
	recorded []recordedClose
}

func (m *mockJournal) RecordClosed(ctx context.Context, trade *domain.Trade, reason domain.CloseReason) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recorded = append(m.recorded, recordedClose{trade: trade, reason: reason})
	return int64(len(m.recorded)), nil
}

func (m *mockJournal) FindRecent(ctx context.Context, limit int) ([]*domain.JournalEntry, error) {
	return nil, nil
}

func (m *mockJournal) TotalProfitPct(ctx context.Context) (float64, error) {
	return 0, nil
}

func (m *mockJournal) closes() []recordedClose {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]recordedClose(nil), m.recorded...)
}

type mockExchange struct {
	kind domain.Exchange

	balances map[string]float64
	filters  map[string]domain.SymbolFilters

	asks []domain.BookLevel
	bids []domain.BookLevel

	buyCalls     int
	filtersCalls int
}

func (m *mockExchange) Kind() domain.Exchange { return m.kind }

func (m *mockExchange) GetPrice(ctx context.Context, pair string) (float64, error) {
	return 0, ports.ErrExchangeUnavailable
}

func (m *mockExchange) GetOrderBook(ctx context.Context, pair string, side domain.OrderSide) ([]domain.BookLevel, error) {
	if side == domain.Buy {
		return m.asks, nil
	}
	return m.bids, nil
}

func (m *mockExchange) MarketBuy(ctx context.Context, pair string, qty float64) (*ports.FillResult, error) {
	m.buyCalls++
	return &ports.FillResult{AvgPrice: 2000, FilledQty: qty, OrderID: "1"}, nil
}

func (m *mockExchange) MarketSell(ctx context.Context, pair string, qty float64) (*ports.FillResult, error) {
	return &ports.FillResult{AvgPrice: 2000, FilledQty: qty, OrderID: "2"}, nil
}

func (m *mockExchange) GetBalances(ctx context.Context) (map[string]float64, error) {
	return m.balances, nil
}

func (m *mockExchange) GetTradingFilters(ctx context.Context) (map[string]domain.SymbolFilters, error) {
	m.filtersCalls++
	return m.filters, nil
}

// Helpers

func testConfig() *config.Config {
	return &config.Config{
		Production:     false,
		Interval:       time.Millisecond,
		CertaintyLimit: 1,
		MaxTrades:      5,
		SellFee:        0.001,
		ActionPollTick: 1,
		HeartbeatTick:  100,
	}
}

func testExchange() *mockExchange {
	return &mockExchange{
		kind:     domain.ExchangeBinance,
		balances: map[string]float64{"USDT": 1000},
		filters: map[string]domain.SymbolFilters{
			"ETHUSDT": {MinQty: 0.001, MaxQty: 10000, StepSize: 0.001},
		},
		asks: []domain.BookLevel{{Price: 2000, Quantity: 10}},
		bids: []domain.BookLevel{{Price: 2000, Quantity: 10}},
	}
}

func testService(t *testing.T, cfg *config.Config, coord *mockCoordinator, journal *mockJournal, ex *mockExchange) *Service {
	t.Helper()
	machine, err := engine.New(engine.Config{
		Production:     cfg.Production,
		SellFee:        cfg.SellFee,
		CertaintyLimit: cfg.CertaintyLimit,
		Logger:         &mockLogger{},
	})
	require.NoError(t, err)

	s, err := NewService(cfg, &mockLogger{}, coord, journal, machine,
		map[domain.Exchange]ports.ExchangeClient{ex.kind: ex})
	require.NoError(t, err)
	require.NoError(t, s.enableVenues(context.Background()))
	return s
}

func signalEnv(exchange domain.Exchange) *domain.SignalEnvelope {
	return &domain.SignalEnvelope{
		Settings: &domain.SignalSettings{
			Limit: domain.SignalLimit{Profit: 5, Dump: 2, Loss: 3, Time: 30},
			Token: map[string]float64{"USDT": 100},
		},
		Signal: domain.Signal{ID: 1, Token: "ETH", Exchange: exchange, Strength: "strong"},
	}
}

func lastLogText(rep *reporter) string {
	if len(rep.logs) == 0 {
		return ""
	}
	return rep.logs[len(rep.logs)-1].Text
}

// Tests

func TestNewServiceValidation(t *testing.T) {
	cfg := testConfig()
	logger := &mockLogger{}
	coord := &mockCoordinator{}
	journal := &mockJournal{}
	machine, err := engine.New(engine.Config{Production: false, CertaintyLimit: 1, Logger: logger})
	require.NoError(t, err)
	venues := map[domain.Exchange]ports.ExchangeClient{domain.ExchangeBinance: testExchange()}

	_, err = NewService(nil, logger, coord, journal, machine, venues)
	assert.Error(t, err)
	_, err = NewService(cfg, nil, coord, journal, machine, venues)
	assert.Error(t, err)
	_, err = NewService(cfg, logger, nil, journal, machine, venues)
	assert.Error(t, err)
	_, err = NewService(cfg, logger, coord, nil, machine, venues)
	assert.Error(t, err)
	_, err = NewService(cfg, logger, coord, journal, nil, venues)
	assert.Error(t, err)
	_, err = NewService(cfg, logger, coord, journal, machine, nil)
	assert.Error(t, err)

	_, err = NewService(cfg, logger, coord, journal, machine, venues)
	assert.NoError(t, err)
}

func TestHandleSignalIgnoresUnconfiguredVenue(t *testing.T) {
	coord := &mockCoordinator{}
	ex := testExchange()
	s := testService(t, testConfig(), coord, &mockJournal{}, ex)

	rep := newReporter(coord, &mockLogger{})
	s.handleSignal(context.Background(), signalEnv(domain.ExchangeKucoin), rep)

	assert.Zero(t, ex.buyCalls)
	assert.Contains(t, lastLogText(rep), "venue is not configured")
}

func TestOpenTradeSkipsZeroAmount(t *testing.T) {
	coord := &mockCoordinator{}
	ex := testExchange()
	s := testService(t, testConfig(), coord, &mockJournal{}, ex)

	env := signalEnv(domain.ExchangeBinance)
	rep := newReporter(coord, &mockLogger{})
	s.openTrade(context.Background(), env, ex, "USDT", 0, rep)

	assert.Zero(t, ex.buyCalls)
	assert.Contains(t, lastLogText(rep), "according to settings")
}

func TestOpenTradeRespectsMaxTrades(t *testing.T) {
	coord := &mockCoordinator{}
	ex := testExchange()
	cfg := testConfig()
	s := testService(t, cfg, coord, &mockJournal{}, ex)
	s.openCount.Store(int32(cfg.MaxTrades))

	env := signalEnv(domain.ExchangeBinance)
	rep := newReporter(coord, &mockLogger{})
	s.openTrade(context.Background(), env, ex, "USDT", 100, rep)

	assert.Zero(t, ex.buyCalls)
	assert.Contains(t, lastLogText(rep), "too many running trades")
}

func TestOpenTradeSkipsForeignBasicToken(t *testing.T) {
	coord := &mockCoordinator{}
	ex := testExchange()
	s := testService(t, testConfig(), coord, &mockJournal{}, ex)

	env := signalEnv(domain.ExchangeBinance)
	env.Signal.BasicToken = "BTC"
	rep := newReporter(coord, &mockLogger{})
	s.openTrade(context.Background(), env, ex, "USDT", 100, rep)

	assert.Zero(t, ex.buyCalls)
	assert.Empty(t, rep.logs, "a restricted quote asset is skipped silently")
}

func TestOpenTradeRefreshesMissingFilters(t *testing.T) {
	coord := &mockCoordinator{}
	ex := testExchange()
	ex.filters = nil // venue comes up with an empty filter snapshot
	s := testService(t, testConfig(), coord, &mockJournal{}, ex)

	ex.filters = map[string]domain.SymbolFilters{
		"ETHUSDT": {MinQty: 0.001, MaxQty: 10000, StepSize: 0.001},
	}
	env := signalEnv(domain.ExchangeBinance)
	rep := newReporter(coord, &mockLogger{})
	s.openTrade(context.Background(), env, ex, "USDT", 100, rep)

	assert.Zero(t, ex.buyCalls, "the signal that hit the stale snapshot is dropped")
	assert.Contains(t, lastLogText(rep), "refreshing exchange info")
	assert.Equal(t, 2, ex.filtersCalls)

	// the refreshed snapshot serves the next signal
	_, ok := s.lookupFilters(domain.ExchangeBinance, "ETHUSDT")
	assert.True(t, ok)
}

func TestOpenTradeRejectsInsufficientBalance(t *testing.T) {
	coord := &mockCoordinator{}
	ex := testExchange()
	ex.balances = map[string]float64{"USDT": 50}
	s := testService(t, testConfig(), coord, &mockJournal{}, ex)

	env := signalEnv(domain.ExchangeBinance)
	rep := newReporter(coord, &mockLogger{})
	s.openTrade(context.Background(), env, ex, "USDT", 100, rep)

	assert.Zero(t, ex.buyCalls)
	assert.Contains(t, lastLogText(rep), "Insufficient USDT balance")
}

func TestMonitorClosesOnConfirmedProfit(t *testing.T) {
	coord := &mockCoordinator{}
	journal := &mockJournal{}
	ex := testExchange()
	ex.bids = []domain.BookLevel{{Price: 2200, Quantity: 10}} // 10% above the ask
	s := testService(t, testConfig(), coord, journal, ex)

	env := signalEnv(domain.ExchangeBinance)
	rep := newReporter(coord, &mockLogger{})
	s.openTrade(context.Background(), env, ex, "USDT", 100, rep)
	rep.flush(context.Background())
	s.monitors.Wait()

	closes := journal.closes()
	require.Len(t, closes, 1)
	assert.Equal(t, domain.CloseReasonProfit, closes[0].reason)
	assert.Equal(t, domain.StateClosed, closes[0].trade.State)
	assert.Equal(t, 10.0, closes[0].trade.Current.Profit)
	assert.Zero(t, s.openCount.Load())

	actions := coord.eventActions()
	require.Len(t, actions, 2)
	assert.Equal(t, domain.EventBuy, actions[0])
	assert.Equal(t, domain.EventSell, actions[1])
}

func TestMonitorCancelsOnUserRequest(t *testing.T) {
	coord := &mockCoordinator{action: ports.ActionCancel}
	journal := &mockJournal{}
	ex := testExchange() // flat book, no trigger fires on its own
	s := testService(t, testConfig(), coord, journal, ex)

	env := signalEnv(domain.ExchangeBinance)
	rep := newReporter(coord, &mockLogger{})
	s.openTrade(context.Background(), env, ex, "USDT", 100, rep)
	rep.flush(context.Background())
	s.monitors.Wait()

	closes := journal.closes()
	require.Len(t, closes, 1)
	assert.Equal(t, domain.CloseReasonCancel, closes[0].reason)
	assert.Equal(t, domain.StateClosed, closes[0].trade.State)

	for _, action := range coord.eventActions() {
		assert.NotEqual(t, domain.EventSell, action, "a cancelled trade must not report a sell")
	}
}

func TestMonitorStopsOnShutdown(t *testing.T) {
	coord := &mockCoordinator{}
	journal := &mockJournal{}
	ex := testExchange() // flat book keeps the trade open
	s := testService(t, testConfig(), coord, journal, ex)

	ctx, cancel := context.WithCancel(context.Background())
	env := signalEnv(domain.ExchangeBinance)
	rep := newReporter(coord, &mockLogger{})
	s.openTrade(ctx, env, ex, "USDT", 100, rep)
	require.Equal(t, int32(1), s.openCount.Load())

	cancel()
	s.monitors.Wait()

	assert.Zero(t, s.openCount.Load())
	assert.Empty(t, journal.closes(), "an interrupted trade is not journalled as closed")
}

func TestStartRegistersAndStops(t *testing.T) {
	coord := &mockCoordinator{signal: signalEnv(domain.ExchangeBinance)}
	journal := &mockJournal{}
	ex := testExchange()
	ex.bids = []domain.BookLevel{{Price: 2200, Quantity: 10}}
	s := testService(t, testConfig(), coord, journal, ex)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	require.Eventually(t, func() bool {
		return len(journal.closes()) == 1
	}, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancellation")
	}

	coord.mu.Lock()
	registered := coord.registered
	coord.mu.Unlock()
	assert.True(t, registered)

	var heartbeat bool
	coord.mu.Lock()
	for _, l := range coord.logs {
		if strings.Contains(l.Text, "Heartbeat") {
			heartbeat = true
		}
	}
	coord.mu.Unlock()
	assert.True(t, heartbeat, "the first tick posts a heartbeat")
}
