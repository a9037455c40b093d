package coordapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jinktrader/internal/domain"
	"jinktrader/internal/ports"
)

type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

func newTestClient(t *testing.T, serverURL string, production bool) *Client {
	t.Helper()
	c, err := New(Config{
		APIURL:     serverURL + "/",
		APIKey:     "test-key",
		ClientID:   "client-1",
		Production: production,
		HTTP:       &http.Client{Timeout: 5 * time.Second},
		Logger:     &mockLogger{},
	})
	require.NoError(t, err)
	return c
}

func TestNewValidation(t *testing.T) {
	httpClient := &http.Client{}
	logger := &mockLogger{}

	_, err := New(Config{APIKey: "k", HTTP: httpClient, Logger: logger})
	assert.Error(t, err, "missing API URL")
	_, err = New(Config{APIURL: "u", HTTP: httpClient, Logger: logger})
	assert.Error(t, err, "missing API key")
	_, err = New(Config{APIURL: "u", APIKey: "k", Logger: logger})
	assert.Error(t, err, "missing http client")
	_, err = New(Config{APIURL: "u", APIKey: "k", HTTP: httpClient})
	assert.Error(t, err, "missing logger")

	c, err := New(Config{APIURL: "u", APIKey: "k", HTTP: httpClient, Logger: logger})
	require.NoError(t, err)
	assert.NotEmpty(t, c.ClientID(), "an id is generated when none is given")
}

func TestRegisterSyncsLastSignalID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/client", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-AUTH-TOKEN"))
		assert.Equal(t, "1", r.Header.Get("production"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "client-1", body["client_id"])

		fmt.Fprint(w, `{"lastSignalId": 41}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, true)
	require.NoError(t, c.Register(context.Background()))
	assert.Equal(t, int64(41), c.lastSignalID)
}

func TestRegisterResyncsFreshClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/client":
			fmt.Fprint(w, `{"lastSignalId": 0}`)
		case "/signal/last":
			assert.Equal(t, "client-1", r.URL.Query().Get("client_id"))
			fmt.Fprint(w, `{"signal": {"id": 99}}`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, true)
	require.NoError(t, c.Register(context.Background()))
	assert.Equal(t, int64(99), c.lastSignalID)
}

func TestPullSignal(t *testing.T) {
	var served int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/signal", r.URL.Path)
		assert.Equal(t, "client-1", r.URL.Query().Get("client_id"))
		fmt.Fprintf(w, `{"signal": {"id": %d, "token": "ETH", "exchange": "binance", "strength": "strong"},
			"settings": {"limit": {"profit": 5, "dump": 2, "loss": 3, "time": 30}, "token": {"USDT": 100}}}`, served)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, true)

	// id 0 means the service has nothing new
	env, err := c.PullSignal(context.Background())
	require.NoError(t, err)
	assert.Nil(t, env)

	served = 7
	env, err = c.PullSignal(context.Background())
	require.NoError(t, err)
	require.NotNil(t, env)
	assert.Equal(t, int64(7), env.Signal.ID)
	assert.Equal(t, "ETH", env.Signal.Token)
	assert.Equal(t, domain.ExchangeBinance, env.Signal.Exchange)
	require.NotNil(t, env.Settings)
	assert.Equal(t, 100.0, env.Settings.Token["USDT"])
	assert.Equal(t, int64(7), c.lastSignalID)

	// the same id is not handed out twice
	env, err = c.PullSignal(context.Background())
	require.NoError(t, err)
	assert.Nil(t, env)
}

func TestPostLogsDevPrefix(t *testing.T) {
	var received []logPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/logs", r.URL.Path)
		assert.Equal(t, "0", r.Header.Get("production"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, false)
	created := time.Date(2024, 3, 1, 12, 30, 5, 0, time.UTC)
	err := c.PostLogs(context.Background(), []domain.LogEntry{
		{Text: "Heartbeat [0 running trades]", Level: domain.LogLevelSystem, CreatedAt: created},
	})
	require.NoError(t, err)

	require.Len(t, received, 1)
	assert.Equal(t, "[dev] Heartbeat [0 running trades]", received[0].Text)
	assert.Equal(t, "system", received[0].Level)
	assert.Equal(t, "2024-03-01 12:30:05", received[0].Timestamp)
}

func TestPostLogsProductionKeepsText(t *testing.T) {
	var received []logPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, true)
	err := c.PostLogs(context.Background(), []domain.LogEntry{domain.NewLogEntry("hello", domain.LogLevelInfo)})
	require.NoError(t, err)

	require.Len(t, received, 1)
	assert.Equal(t, "hello", received[0].Text)
}

func TestPostEvents(t *testing.T) {
	var received []eventPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/events", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
	}))
	defer srv.Close()

	tr := domain.NewTrade()
	tr.BasicToken = "USDT"
	tr.Token = "ETH"
	tr.Exchange = domain.ExchangeBinance
	tr.Amount = 100
	tr.Price.Buy = 2000
	tr.Price.Current = 2100
	tr.Current.Profit = 5

	c := newTestClient(t, srv.URL, true)
	err := c.PostEvents(context.Background(), []domain.Event{
		{Action: domain.EventBuy, Trade: tr, CreatedAt: time.Now().UTC()},
		{Action: domain.EventSell, Trade: tr, CreatedAt: time.Now().UTC()},
	})
	require.NoError(t, err)

	require.Len(t, received, 2)
	assert.Equal(t, "buy", received[0].Action)
	assert.Equal(t, 2000.0, received[0].Price, "a buy event reports the realized buy price")
	assert.Equal(t, "sell", received[1].Action)
	assert.Equal(t, 2100.0, received[1].Price, "a sell event reports the latest price")
	assert.Equal(t, 5.0, received[1].Profit)
}

func TestRequestedAction(t *testing.T) {
	state := ""
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/event/state", r.URL.Path)
		assert.Equal(t, "ETH", r.URL.Query().Get("token"))
		assert.Equal(t, "USDT", r.URL.Query().Get("basic_token"))
		assert.Equal(t, "9", r.URL.Query().Get("signal_id"))
		fmt.Fprintf(w, `{"state": %q}`, state)
	}))
	defer srv.Close()

	tr := domain.NewTrade()
	tr.BasicToken = "USDT"
	tr.Token = "ETH"
	tr.Signal = &domain.SignalEnvelope{Signal: domain.Signal{ID: 9}}

	c := newTestClient(t, srv.URL, true)

	cases := []struct {
		state string
		want  ports.RequestedAction
	}{
		{"", ports.ActionNone},
		{"to_sell", ports.ActionSell},
		{"to_cancel", ports.ActionCancel},
		{"something_else", ports.ActionNone},
	}
	for _, tc := range cases {
		state = tc.state
		action, err := c.RequestedAction(context.Background(), tr)
		require.NoError(t, err)
		assert.Equalf(t, tc.want, action, "state %q", tc.state)
	}
}

func TestErrorStatusIsSurfaced(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, true)
	assert.Error(t, c.Register(context.Background()))
	_, err := c.PullSignal(context.Background())
	assert.Error(t, err)
	assert.Error(t, c.PostLogs(context.Background(), []domain.LogEntry{domain.NewLogEntry("x", domain.LogLevelInfo)}))
}
