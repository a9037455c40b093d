// Package bittrex implements the ports.ExchangeClient interface against the
// Bittrex v3 REST API. Bittrex has no native market orders, so they are
// emulated with an aggressive limit order priced off the order book, followed
// by a poll-and-confirm after a short wait.
package bittrex

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"jinktrader/internal/domain"
	"jinktrader/internal/httpx"
	"jinktrader/internal/ports"
	"jinktrader/internal/pricing"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	baseURL    = "https://api.bittrex.com/v3"
	depthLimit = 25
)

// Client talks to the Bittrex v3 REST API.
type Client struct {
	apiKey    string
	apiSecret string
	deviation float64
	fillWait  time.Duration
	http      *http.Client
	logger    ports.Logger
}

// Config holds configuration specific to the Bittrex adapter.
type Config struct {
	APIKey    string
	APISecret string
	Deviation float64       // book-walk slippage bound for emulated market orders
	FillWait  time.Duration // wait before confirming the fill
	HTTP      *http.Client
	Logger    ports.Logger
}

// New creates a new Bittrex adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Bittrex client")
	}
	if cfg.HTTP == nil {
		return nil, fmt.Errorf("http client is required for Bittrex client")
	}
	if cfg.Deviation <= 0 {
		return nil, fmt.Errorf("deviation must be positive for Bittrex client")
	}
	if cfg.FillWait <= 0 {
		return nil, fmt.Errorf("fill wait must be positive for Bittrex client")
	}
	if cfg.APIKey == "" || cfg.APISecret == "" {
		cfg.Logger.Warn(context.Background(), "APIKey or APISecret is empty. Client will only work for public endpoints.")
	}
	return &Client{
		apiKey:    cfg.APIKey,
		apiSecret: cfg.APISecret,
		deviation: cfg.Deviation,
		fillWait:  cfg.FillWait,
		http:      cfg.HTTP,
		logger:    cfg.Logger,
	}, nil
}

// Kind reports the venue this client trades on.
func (c *Client) Kind() domain.Exchange { return domain.ExchangeBittrex }

// request signs and executes one API call. Bittrex signs the timestamp, full
// URI, method and SHA-512 hash of the body with the API secret.
func (c *Client) request(ctx context.Context, method, path string, body, out interface{}) error {
	uri := baseURL + path

	// the hash must cover the exact bytes on the wire; jsoniter marshals
	// structs deterministically, so hashing a second marshal is safe
	contentHash := sha512.Sum512(nil)
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		contentHash = sha512.Sum512(raw)
	}
	hashHex := hex.EncodeToString(contentHash[:])
	timestamp := strconv.FormatInt(time.Now().UnixMilli(), 10)

	mac := hmac.New(sha512.New, []byte(c.apiSecret))
	mac.Write([]byte(timestamp + uri + method + hashHex))

	headers := map[string]string{
		"Api-Key":          c.apiKey,
		"Api-Timestamp":    timestamp,
		"Api-Content-Hash": hashHex,
		"Api-Signature":    hex.EncodeToString(mac.Sum(nil)),
	}

	status, err := httpx.DoJSON(ctx, c.http, method, uri, headers, body, out)
	if err != nil {
		return err
	}
	if status >= 200 && status < 300 {
		return nil
	}
	return c.mapStatus(status, method, path)
}

func (c *Client) mapStatus(status int, method, path string) error {
	var mapped error
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		mapped = ports.ErrAuthenticationFailed
	case http.StatusNotFound:
		mapped = ports.ErrNotFound
	case http.StatusTooManyRequests:
		mapped = ports.ErrRateLimited
	case http.StatusConflict, http.StatusBadRequest:
		mapped = ports.ErrInvalidRequest
	case http.StatusServiceUnavailable:
		mapped = ports.ErrExchangeUnavailable
	default:
		mapped = ports.ErrUnknown
	}
	return fmt.Errorf("%s %s returned status %d: %w", method, path, status, mapped)
}

type tickerResponse struct {
	LastTradeRate string `json:"lastTradeRate"`
}

// GetPrice retrieves the last traded price for a pair.
func (c *Client) GetPrice(ctx context.Context, pair string) (float64, error) {
	var resp tickerResponse
	if err := c.request(ctx, http.MethodGet, "/markets/"+pair+"/ticker", nil, &resp); err != nil {
		return 0, fmt.Errorf("GetPrice: %w", err)
	}
	price, err := strconv.ParseFloat(resp.LastTradeRate, 64)
	if err != nil {
		return 0, fmt.Errorf("GetPrice: could not parse price '%s': %w", resp.LastTradeRate, err)
	}
	return price, nil
}

type bookEntry struct {
	Quantity string `json:"quantity"`
	Rate     string `json:"rate"`
}

type orderBookResponse struct {
	Bid []bookEntry `json:"bid"`
	Ask []bookEntry `json:"ask"`
}

// GetOrderBook retrieves one side of the order book, best price first.
func (c *Client) GetOrderBook(ctx context.Context, pair string, side domain.OrderSide) ([]domain.BookLevel, error) {
	var resp orderBookResponse
	path := fmt.Sprintf("/markets/%s/orderbook?depth=%d", pair, depthLimit)
	if err := c.request(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("GetOrderBook: %w", err)
	}

	raw := resp.Ask
	if side == domain.Sell {
		raw = resp.Bid
	}
	levels := make([]domain.BookLevel, 0, len(raw))
	for _, e := range raw {
		price, perr := strconv.ParseFloat(e.Rate, 64)
		qty, qerr := strconv.ParseFloat(e.Quantity, 64)
		if perr != nil || qerr != nil {
			return nil, fmt.Errorf("GetOrderBook: could not parse book level [%s, %s]", e.Rate, e.Quantity)
		}
		levels = append(levels, domain.BookLevel{Price: price, Quantity: qty})
	}
	return levels, nil
}

type orderRequest struct {
	MarketSymbol string `json:"marketSymbol"`
	Direction    string `json:"direction"`
	Type         string `json:"type"`
	Quantity     string `json:"quantity"`
	Limit        string `json:"limit"`
	TimeInForce  string `json:"timeInForce"`
}

type orderResponse struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	Quantity     string `json:"quantity"`
	FillQuantity string `json:"fillQuantity"`
	Proceeds     string `json:"proceeds"`
}

// MarketBuy emulates a market buy: an aggressive limit order priced off the
// ask book, confirmed after the fill wait.
func (c *Client) MarketBuy(ctx context.Context, pair string, qty float64) (*ports.FillResult, error) {
	return c.emulatedMarketOrder(ctx, pair, qty, domain.Buy, "MarketBuy")
}

// MarketSell emulates a market sell against the bid book.
func (c *Client) MarketSell(ctx context.Context, pair string, qty float64) (*ports.FillResult, error) {
	return c.emulatedMarketOrder(ctx, pair, qty, domain.Sell, "MarketSell")
}

func (c *Client) emulatedMarketOrder(ctx context.Context, pair string, qty float64, side domain.OrderSide, op string) (*ports.FillResult, error) {
	levels, err := c.GetOrderBook(ctx, pair, side)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	limitPrice, err := pricing.ReferencePrice(levels, qty, c.deviation, side)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	direction := "BUY"
	if side == domain.Sell {
		direction = "SELL"
	}
	req := orderRequest{
		MarketSymbol: pair,
		Direction:    direction,
		Type:         "LIMIT",
		Quantity:     strconv.FormatFloat(qty, 'f', -1, 64),
		Limit:        strconv.FormatFloat(limitPrice, 'f', -1, 64),
		TimeInForce:  "GOOD_TIL_CANCELLED",
	}
	var placed orderResponse
	if err := c.request(ctx, http.MethodPost, "/orders", req, &placed); err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ports.ErrOrderPlacementFailed, err)
	}
	c.logger.Debug(ctx, op+" order placed", map[string]interface{}{
		"pair": pair, "orderID": placed.ID, "limit": limitPrice, "quantity": qty,
	})

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w: %w", op, ports.ErrContextCanceled, ctx.Err())
	case <-time.After(c.fillWait):
	}

	return c.confirmFill(ctx, placed.ID, qty, op)
}

// confirmFill checks the order after the fill wait. Anything short of a full
// fill cancels the remainder and reports ErrFillUnconfirmed; the position is
// then in an unknown partial state that needs manual attention.
func (c *Client) confirmFill(ctx context.Context, orderID string, qty float64, op string) (*ports.FillResult, error) {
	var order orderResponse
	if err := c.request(ctx, http.MethodGet, "/orders/"+orderID, nil, &order); err != nil {
		return nil, fmt.Errorf("%s: checking order %s: %w", op, orderID, err)
	}

	filled, err := strconv.ParseFloat(order.FillQuantity, 64)
	if err != nil {
		return nil, fmt.Errorf("%s: could not parse fill quantity '%s': %w", op, order.FillQuantity, err)
	}
	if filled < qty {
		if cancelErr := c.request(ctx, http.MethodDelete, "/orders/"+orderID, nil, nil); cancelErr != nil {
			c.logger.Warn(ctx, op+" cancel of partially filled order failed", map[string]interface{}{
				"orderID": orderID, "error": cancelErr.Error(),
			})
		}
		return nil, fmt.Errorf("%s: order %s filled %.8f of %.8f: %w", op, orderID, filled, qty, ports.ErrFillUnconfirmed)
	}

	proceeds, err := strconv.ParseFloat(order.Proceeds, 64)
	if err != nil {
		return nil, fmt.Errorf("%s: could not parse proceeds '%s': %w", op, order.Proceeds, err)
	}
	fill := &ports.FillResult{
		AvgPrice:  proceeds / filled,
		FilledQty: filled,
		OrderID:   orderID,
	}
	c.logger.Info(ctx, op+" successful", map[string]interface{}{
		"orderID": orderID, "avgPrice": fill.AvgPrice, "quantity": filled,
	})
	return fill, nil
}

type balanceEntry struct {
	CurrencySymbol string `json:"currencySymbol"`
	Available      string `json:"available"`
}

// GetBalances retrieves the available balance of every asset in the account.
func (c *Client) GetBalances(ctx context.Context) (map[string]float64, error) {
	var resp []balanceEntry
	if err := c.request(ctx, http.MethodGet, "/balances", nil, &resp); err != nil {
		return nil, fmt.Errorf("GetBalances: %w", err)
	}
	balances := make(map[string]float64, len(resp))
	for _, b := range resp {
		available, err := strconv.ParseFloat(b.Available, 64)
		if err != nil {
			return nil, fmt.Errorf("GetBalances: could not parse balance '%s' for %s: %w", b.Available, b.CurrencySymbol, err)
		}
		if available > 0 {
			balances[b.CurrencySymbol] = available
		}
	}
	return balances, nil
}

type marketEntry struct {
	Symbol       string `json:"symbol"`
	Status       string `json:"status"`
	MinTradeSize string `json:"minTradeSize"`
	Precision    int    `json:"precision"`
}

// GetTradingFilters derives lot-size constraints from the market listing.
// Bittrex expresses the step as a decimal precision rather than a step size.
func (c *Client) GetTradingFilters(ctx context.Context) (map[string]domain.SymbolFilters, error) {
	var resp []marketEntry
	if err := c.request(ctx, http.MethodGet, "/markets", nil, &resp); err != nil {
		return nil, fmt.Errorf("GetTradingFilters: %w", err)
	}

	filters := make(map[string]domain.SymbolFilters, len(resp))
	for _, m := range resp {
		if m.Status != "ONLINE" {
			continue
		}
		minQty, err := strconv.ParseFloat(m.MinTradeSize, 64)
		if err != nil {
			c.logger.Warn(ctx, "skipping market with unparsable min trade size", map[string]interface{}{"pair": m.Symbol})
			continue
		}
		step := 1.0
		for i := 0; i < m.Precision; i++ {
			step /= 10
		}
		filters[m.Symbol] = domain.SymbolFilters{
			MinQty:   minQty,
			MaxQty:   1e9,
			StepSize: step,
		}
	}
	return filters, nil
}
