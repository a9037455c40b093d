// Package coordapi implements the ports.Coordinator interface against the
// JiNK coordination service REST API. The client authenticates with an
// X-AUTH-TOKEN header and tags every request with a production flag so the
// service can separate real trading from simulation runs.
package coordapi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"jinktrader/internal/domain"
	"jinktrader/internal/httpx"
	"jinktrader/internal/ports"

	"github.com/google/uuid"
)

const (
	authHeader = "X-AUTH-TOKEN"
	timeLayout = "2006-01-02 15:04:05"

	stateToSell   = "to_sell"
	stateToCancel = "to_cancel"
)

// Client talks to the coordination service.
type Client struct {
	apiURL     string
	apiKey     string
	clientID   string
	production bool
	http       *http.Client
	logger     ports.Logger

	mu           sync.Mutex
	lastSignalID int64
}

// Config holds configuration specific to the coordination service client.
type Config struct {
	APIURL     string
	APIKey     string
	ClientID   string // empty generates a fresh client id
	Production bool
	HTTP       *http.Client
	Logger     ports.Logger
}

// New creates a new coordination service client. When no client id is given a
// fresh one is generated; Register announces it to the service.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for coordination client")
	}
	if cfg.HTTP == nil {
		return nil, fmt.Errorf("http client is required for coordination client")
	}
	if cfg.APIURL == "" {
		return nil, fmt.Errorf("API URL is required for coordination client")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required for coordination client")
	}
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = uuid.NewString()
	}
	return &Client{
		apiURL:     cfg.APIURL,
		apiKey:     cfg.APIKey,
		clientID:   clientID,
		production: cfg.Production,
		http:       cfg.HTTP,
		logger:     cfg.Logger,
	}, nil
}

// ClientID returns the id this agent identifies itself with.
func (c *Client) ClientID() string { return c.clientID }

func (c *Client) headers() map[string]string {
	prod := "0"
	if c.production {
		prod = "1"
	}
	return map[string]string{
		authHeader:   c.apiKey,
		"production": prod,
	}
}

// Register announces the client id and picks up the id of the last signal the
// service has seen, so PullSignal only returns signals newer than that.
func (c *Client) Register(ctx context.Context) error {
	var resp struct {
		LastSignalID int64 `json:"lastSignalId"`
	}
	body := map[string]string{"client_id": c.clientID}
	status, err := c.do(ctx, http.MethodPost, c.apiURL+"client", body, &resp)
	if err != nil {
		return fmt.Errorf("coordapi.Register: %w", err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("coordapi.Register: unexpected status %d: %w", status, ports.ErrUnknown)
	}

	lastID := resp.LastSignalID
	if lastID == 0 {
		// A fresh registration carries no signal id; resync from the last
		// signal the service ever issued so old signals are not replayed.
		if id, err := c.lastIssuedSignal(ctx); err == nil {
			lastID = id
		} else {
			c.logger.Warn(ctx, "resyncing last signal failed", map[string]interface{}{"error": err.Error()})
		}
	}

	c.mu.Lock()
	c.lastSignalID = lastID
	c.mu.Unlock()
	c.logger.Info(ctx, "registered with coordination service", map[string]interface{}{
		"clientID": c.clientID, "lastSignalID": lastID,
	})
	return nil
}

// lastIssuedSignal fetches the id of the newest signal known to the service.
func (c *Client) lastIssuedSignal(ctx context.Context) (int64, error) {
	endpoint := c.apiURL + "signal/last?client_id=" + url.QueryEscape(c.clientID)
	var env domain.SignalEnvelope
	status, err := c.do(ctx, http.MethodGet, endpoint, nil, &env)
	if err != nil {
		return 0, err
	}
	if status != http.StatusOK {
		return 0, fmt.Errorf("unexpected status %d: %w", status, ports.ErrUnknown)
	}
	return env.Signal.ID, nil
}

// PullSignal returns the next unseen signal, or nil when there is none. The
// last seen signal id advances only when the service hands out a newer one.
func (c *Client) PullSignal(ctx context.Context) (*domain.SignalEnvelope, error) {
	c.mu.Lock()
	lastID := c.lastSignalID
	c.mu.Unlock()

	endpoint := fmt.Sprintf("%ssignal?client_id=%s&last_signal_id=%d", c.apiURL, url.QueryEscape(c.clientID), lastID)
	var env domain.SignalEnvelope
	status, err := c.do(ctx, http.MethodGet, endpoint, nil, &env)
	if err != nil {
		return nil, fmt.Errorf("coordapi.PullSignal: %w", err)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("coordapi.PullSignal: unexpected status %d: %w", status, ports.ErrUnknown)
	}
	if env.Signal.ID == 0 || env.Signal.ID <= lastID {
		return nil, nil
	}

	c.mu.Lock()
	c.lastSignalID = env.Signal.ID
	c.mu.Unlock()
	return &env, nil
}

type logPayload struct {
	Text      string `json:"text"`
	Level     string `json:"level"`
	Timestamp string `json:"timestamp"`
}

// PostLogs delivers a batch of log entries. In dev mode every line is
// prefixed with [dev] so the service can tell simulation output apart.
func (c *Client) PostLogs(ctx context.Context, logs []domain.LogEntry) error {
	if len(logs) == 0 {
		return nil
	}
	payload := make([]logPayload, 0, len(logs))
	for _, l := range logs {
		text := l.Text
		if !c.production {
			text = "[dev] " + text
		}
		payload = append(payload, logPayload{
			Text:      text,
			Level:     string(l.Level),
			Timestamp: l.CreatedAt.Format(timeLayout),
		})
	}

	endpoint := c.apiURL + "logs?client_id=" + url.QueryEscape(c.clientID)
	status, err := c.do(ctx, http.MethodPost, endpoint, payload, nil)
	if err != nil {
		return fmt.Errorf("coordapi.PostLogs: %w", err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("coordapi.PostLogs: unexpected status %d: %w", status, ports.ErrUnknown)
	}
	return nil
}

type eventPayload struct {
	Action     string                 `json:"action"`
	BasicToken string                 `json:"basic_token"`
	Amount     float64                `json:"amount"`
	Token      string                 `json:"token"`
	Price      float64                `json:"price"`
	Profit     float64                `json:"profit"`
	Signal     *domain.SignalEnvelope `json:"signal"`
	Timestamp  string                 `json:"timestamp"`
}

// PostEvents delivers a batch of trade events.
func (c *Client) PostEvents(ctx context.Context, events []domain.Event) error {
	if len(events) == 0 {
		return nil
	}
	payload := make([]eventPayload, 0, len(events))
	for _, e := range events {
		payload = append(payload, eventPayload{
			Action:     string(e.Action),
			BasicToken: e.Trade.BasicToken,
			Amount:     e.Trade.Amount,
			Token:      e.Trade.Token,
			Price:      e.Price(),
			Profit:     e.Trade.Current.Profit,
			Signal:     e.Trade.Signal,
			Timestamp:  e.CreatedAt.Format(timeLayout),
		})
	}

	endpoint := c.apiURL + "events?client_id=" + url.QueryEscape(c.clientID)
	status, err := c.do(ctx, http.MethodPost, endpoint, payload, nil)
	if err != nil {
		return fmt.Errorf("coordapi.PostEvents: %w", err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("coordapi.PostEvents: unexpected status %d: %w", status, ports.ErrUnknown)
	}
	return nil
}

// RequestedAction asks the service whether the user wants this trade sold or
// cancelled. An unknown or missing state means no action.
func (c *Client) RequestedAction(ctx context.Context, trade *domain.Trade) (ports.RequestedAction, error) {
	var signalID int64
	if trade.Signal != nil {
		signalID = trade.Signal.Signal.ID
	}
	endpoint := fmt.Sprintf("%sevent/state?client_id=%s&signal_id=%d&token=%s&basic_token=%s",
		c.apiURL, url.QueryEscape(c.clientID), signalID,
		url.QueryEscape(trade.Token), url.QueryEscape(trade.BasicToken))

	var resp struct {
		State string `json:"state"`
	}
	status, err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	if err != nil {
		return ports.ActionNone, fmt.Errorf("coordapi.RequestedAction: %w", err)
	}
	if status != http.StatusOK {
		return ports.ActionNone, fmt.Errorf("coordapi.RequestedAction: unexpected status %d: %w", status, ports.ErrUnknown)
	}

	switch resp.State {
	case stateToCancel:
		return ports.ActionCancel, nil
	case stateToSell:
		return ports.ActionSell, nil
	default:
		return ports.ActionNone, nil
	}
}

func (c *Client) do(ctx context.Context, method, endpoint string, body, out interface{}) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return httpx.DoJSON(ctx, c.http, method, endpoint, c.headers(), body, out)
}
