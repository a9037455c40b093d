package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jinktrader/internal/domain"
)

type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

func newTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := NewJournal(Config{
		DBPath: filepath.Join(t.TempDir(), "journal.db"),
		Logger: &mockLogger{},
	})
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func closedTrade(token string, profit float64) *domain.Trade {
	tr := domain.NewTrade()
	tr.BasicToken = "USDT"
	tr.Token = token
	tr.Exchange = domain.ExchangeBinance
	tr.Amount = 100
	tr.BuyQty = 0.05
	tr.Price.Buy = 2000
	tr.Price.Current = 2000 * (1 + profit/100)
	tr.Current.Profit = profit
	tr.State = domain.StateClosed
	tr.OpenedAt = time.Now().UTC().Add(-10 * time.Minute)
	return tr
}

func TestNewJournalRequiresLogger(t *testing.T) {
	_, err := NewJournal(Config{DBPath: filepath.Join(t.TempDir(), "j.db")})
	assert.Error(t, err)
}

func TestRecordClosedRoundtrip(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	tr := closedTrade("ETH", 5)
	id, err := j.RecordClosed(ctx, tr, domain.CloseReasonProfit)
	require.NoError(t, err)
	assert.Positive(t, id)

	entries, err := j.FindRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	e := entries[0]
	assert.Equal(t, id, e.ID)
	assert.Equal(t, "USDT", e.BasicToken)
	assert.Equal(t, "ETH", e.Token)
	assert.Equal(t, domain.ExchangeBinance, e.Exchange)
	assert.Equal(t, 100.0, e.Amount)
	assert.Equal(t, 0.05, e.BuyQty)
	assert.Equal(t, 2000.0, e.BuyPrice)
	assert.InDelta(t, 2100.0, e.SellPrice, 1e-9)
	assert.Equal(t, 5.0, e.ProfitPct)
	assert.Equal(t, domain.StateClosed, e.State)
	assert.Equal(t, domain.CloseReasonProfit, e.Reason)
	assert.False(t, e.ClosedAt.IsZero())
}

func TestRecordClosedErroredTradeHasNoSellPrice(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	tr := closedTrade("ETH", -3)
	tr.State = domain.StateError
	_, err := j.RecordClosed(ctx, tr, domain.CloseReasonLoss)
	require.NoError(t, err)

	entries, err := j.FindRecent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.StateError, entries[0].State)
	assert.Zero(t, entries[0].SellPrice, "an errored trade never realized a sell")
}

func TestFindRecentOrdersNewestFirst(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	for _, token := range []string{"ETH", "SOL", "ADA"} {
		_, err := j.RecordClosed(ctx, closedTrade(token, 1), domain.CloseReasonProfit)
		require.NoError(t, err)
		time.Sleep(5 * time.Millisecond) // distinct closed_at timestamps
	}

	entries, err := j.FindRecent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "ADA", entries[0].Token)
	assert.Equal(t, "SOL", entries[1].Token)
}

func TestTotalProfitPctSumsOnlyClosedTrades(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	_, err := j.RecordClosed(ctx, closedTrade("ETH", 5), domain.CloseReasonProfit)
	require.NoError(t, err)
	_, err = j.RecordClosed(ctx, closedTrade("SOL", -2), domain.CloseReasonLoss)
	require.NoError(t, err)

	errored := closedTrade("ADA", -10)
	errored.State = domain.StateError
	_, err = j.RecordClosed(ctx, errored, domain.CloseReasonLoss)
	require.NoError(t, err)

	total, err := j.TotalProfitPct(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 3.0, total, 1e-9)
}
