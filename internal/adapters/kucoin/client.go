// Package kucoin implements the ports.ExchangeClient interface against the
// KuCoin v1 REST API. Like Bittrex, KuCoin market orders are emulated with an
// aggressive limit order priced off the book plus a poll-and-confirm.
package kucoin

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"jinktrader/internal/domain"
	"jinktrader/internal/httpx"
	"jinktrader/internal/ports"
	"jinktrader/internal/pricing"

	"github.com/google/uuid"
)

const baseURL = "https://api.kucoin.com"

// Client talks to the KuCoin REST API.
type Client struct {
	apiKey     string
	apiSecret  string
	passphrase string
	deviation  float64
	fillWait   time.Duration
	http       *http.Client
	logger     ports.Logger
}

// Config holds configuration specific to the KuCoin adapter.
type Config struct {
	APIKey     string
	APISecret  string
	Passphrase string
	Deviation  float64       // book-walk slippage bound for emulated market orders
	FillWait   time.Duration // wait before confirming the fill
	HTTP       *http.Client
	Logger     ports.Logger
}

// New creates a new KuCoin adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for KuCoin client")
	}
	if cfg.HTTP == nil {
		return nil, fmt.Errorf("http client is required for KuCoin client")
	}
	if cfg.Deviation <= 0 {
		return nil, fmt.Errorf("deviation must be positive for KuCoin client")
	}
	if cfg.FillWait <= 0 {
		return nil, fmt.Errorf("fill wait must be positive for KuCoin client")
	}
	if cfg.APIKey == "" || cfg.APISecret == "" || cfg.Passphrase == "" {
		cfg.Logger.Warn(context.Background(), "APIKey, APISecret or Passphrase is empty. Client will only work for public endpoints.")
	}
	return &Client{
		apiKey:     cfg.APIKey,
		apiSecret:  cfg.APISecret,
		passphrase: cfg.Passphrase,
		deviation:  cfg.Deviation,
		fillWait:   cfg.FillWait,
		http:       cfg.HTTP,
		logger:     cfg.Logger,
	}, nil
}

// Kind reports the venue this client trades on.
func (c *Client) Kind() domain.Exchange { return domain.ExchangeKucoin }

// envelope is the standard KuCoin response wrapper. Code "200000" is success.
type envelope struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}

func (e envelope) ok() bool { return e.Code == "200000" }

func (c *Client) sign(payload string) string {
	mac := hmac.New(sha256.New, []byte(c.apiSecret))
	mac.Write([]byte(payload))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// request signs and executes one API call. KuCoin v2 signing covers the
// timestamp, method, endpoint (with query) and body; the passphrase itself is
// signed with the API secret.
func (c *Client) request(ctx context.Context, method, path, body string, out interface{}) error {
	timestamp := strconv.FormatInt(time.Now().UnixMilli(), 10)

	headers := map[string]string{
		"KC-API-KEY":         c.apiKey,
		"KC-API-SIGN":        c.sign(timestamp + method + path + body),
		"KC-API-TIMESTAMP":   timestamp,
		"KC-API-PASSPHRASE":  c.sign(c.passphrase),
		"KC-API-KEY-VERSION": "2",
	}

	var reqBody interface{}
	if body != "" {
		reqBody = rawBody(body)
	}
	status, err := httpx.DoJSON(ctx, c.http, method, baseURL+path, headers, reqBody, out)
	if err != nil {
		return err
	}
	if status == http.StatusTooManyRequests {
		return fmt.Errorf("%s %s: %w", method, path, ports.ErrRateLimited)
	}
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return fmt.Errorf("%s %s: %w", method, path, ports.ErrAuthenticationFailed)
	}
	return nil
}

// rawBody carries pre-marshaled JSON so the signed bytes match the wire bytes.
type rawBody string

func (r rawBody) MarshalJSON() ([]byte, error) { return []byte(r), nil }

func (c *Client) mapCode(env envelope, op string) error {
	var mapped error
	switch env.Code {
	case "429000":
		mapped = ports.ErrRateLimited
	case "400100", "400400":
		mapped = ports.ErrInvalidRequest
	case "400003", "400004", "400005", "400006", "400007":
		mapped = ports.ErrAuthenticationFailed
	case "200004":
		mapped = ports.ErrInsufficientFunds
	case "404000":
		mapped = ports.ErrOrderNotFound
	default:
		mapped = ports.ErrUnknown
	}
	return fmt.Errorf("%s: API code %s (%s): %w", op, env.Code, env.Msg, mapped)
}

// GetPrice retrieves the last traded price for a pair.
func (c *Client) GetPrice(ctx context.Context, pair string) (float64, error) {
	op := "GetPrice"
	var resp struct {
		envelope
		Data struct {
			Price string `json:"price"`
		} `json:"data"`
	}
	if err := c.request(ctx, http.MethodGet, "/api/v1/market/orderbook/level1?symbol="+pair, "", &resp); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	if !resp.ok() {
		return 0, c.mapCode(resp.envelope, op)
	}
	price, err := strconv.ParseFloat(resp.Data.Price, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: could not parse price '%s': %w", op, resp.Data.Price, err)
	}
	return price, nil
}

// GetOrderBook retrieves one side of the order book, best price first.
func (c *Client) GetOrderBook(ctx context.Context, pair string, side domain.OrderSide) ([]domain.BookLevel, error) {
	op := "GetOrderBook"
	var resp struct {
		envelope
		Data struct {
			Bids [][2]string `json:"bids"`
			Asks [][2]string `json:"asks"`
		} `json:"data"`
	}
	if err := c.request(ctx, http.MethodGet, "/api/v1/market/orderbook/level2_100?symbol="+pair, "", &resp); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !resp.ok() {
		return nil, c.mapCode(resp.envelope, op)
	}

	raw := resp.Data.Asks
	if side == domain.Sell {
		raw = resp.Data.Bids
	}
	levels := make([]domain.BookLevel, 0, len(raw))
	for _, e := range raw {
		price, perr := strconv.ParseFloat(e[0], 64)
		qty, qerr := strconv.ParseFloat(e[1], 64)
		if perr != nil || qerr != nil {
			return nil, fmt.Errorf("%s: could not parse book level [%s, %s]", op, e[0], e[1])
		}
		levels = append(levels, domain.BookLevel{Price: price, Quantity: qty})
	}
	return levels, nil
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

	orderSide := "buy"
	if side == domain.Sell {
		orderSide = "sell"
	}
	body := fmt.Sprintf(`{"clientOid":%q,"side":%q,"symbol":%q,"type":"limit","price":%q,"size":%q}`,
		uuid.NewString(), orderSide, pair,
		strconv.FormatFloat(limitPrice, 'f', -1, 64),
		strconv.FormatFloat(qty, 'f', -1, 64))

	var placed struct {
		envelope
		Data struct {
			OrderID string `json:"orderId"`
		} `json:"data"`
	}
	if err := c.request(ctx, http.MethodPost, "/api/v1/orders", body, &placed); err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ports.ErrOrderPlacementFailed, err)
	}
	if !placed.ok() {
		return nil, fmt.Errorf("%s: %w: %w", op, ports.ErrOrderPlacementFailed, c.mapCode(placed.envelope, op))
	}
	c.logger.Debug(ctx, op+" order placed", map[string]interface{}{
		"pair": pair, "orderID": placed.Data.OrderID, "limit": limitPrice, "quantity": qty,
	})

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w: %w", op, ports.ErrContextCanceled, ctx.Err())
	case <-time.After(c.fillWait):
	}

	return c.confirmFill(ctx, placed.Data.OrderID, qty, op)
}

// confirmFill checks the order after the fill wait. Anything short of a full
// fill cancels the remainder and reports ErrFillUnconfirmed.
func (c *Client) confirmFill(ctx context.Context, orderID string, qty float64, op string) (*ports.FillResult, error) {
	var resp struct {
		envelope
		Data struct {
			DealFunds string `json:"dealFunds"`
			DealSize  string `json:"dealSize"`
			IsActive  bool   `json:"isActive"`
		} `json:"data"`
	}
	if err := c.request(ctx, http.MethodGet, "/api/v1/orders/"+orderID, "", &resp); err != nil {
		return nil, fmt.Errorf("%s: checking order %s: %w", op, orderID, err)
	}
	if !resp.ok() {
		return nil, c.mapCode(resp.envelope, op)
	}

	filled, err := strconv.ParseFloat(resp.Data.DealSize, 64)
	if err != nil {
		return nil, fmt.Errorf("%s: could not parse deal size '%s': %w", op, resp.Data.DealSize, err)
	}
	if resp.Data.IsActive || filled < qty {
		var cancel envelope
		if cancelErr := c.request(ctx, http.MethodDelete, "/api/v1/orders/"+orderID, "", &cancel); cancelErr != nil || !cancel.ok() {
			c.logger.Warn(ctx, op+" cancel of partially filled order failed", map[string]interface{}{
				"orderID": orderID,
			})
		}
		return nil, fmt.Errorf("%s: order %s filled %.8f of %.8f: %w", op, orderID, filled, qty, ports.ErrFillUnconfirmed)
	}

	funds, err := strconv.ParseFloat(resp.Data.DealFunds, 64)
	if err != nil {
		return nil, fmt.Errorf("%s: could not parse deal funds '%s': %w", op, resp.Data.DealFunds, err)
	}
	fill := &ports.FillResult{
		AvgPrice:  funds / filled,
		FilledQty: filled,
		OrderID:   orderID,
	}
	c.logger.Info(ctx, op+" successful", map[string]interface{}{
		"orderID": orderID, "avgPrice": fill.AvgPrice, "quantity": filled,
	})
	return fill, nil
}

// GetBalances retrieves the available balance of every trade account asset.
func (c *Client) GetBalances(ctx context.Context) (map[string]float64, error) {
	op := "GetBalances"
	var resp struct {
		envelope
		Data []struct {
			Currency  string `json:"currency"`
			Available string `json:"available"`
		} `json:"data"`
	}
	if err := c.request(ctx, http.MethodGet, "/api/v1/accounts?type=trade", "", &resp); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !resp.ok() {
		return nil, c.mapCode(resp.envelope, op)
	}

	balances := make(map[string]float64, len(resp.Data))
	for _, b := range resp.Data {
		available, err := strconv.ParseFloat(b.Available, 64)
		if err != nil {
			return nil, fmt.Errorf("%s: could not parse balance '%s' for %s: %w", op, b.Available, b.Currency, err)
		}
		if available > 0 {
			balances[b.Currency] = available
		}
	}
	return balances, nil
}

// GetTradingFilters retrieves the base-size constraints for every pair that
// is enabled for trading.
func (c *Client) GetTradingFilters(ctx context.Context) (map[string]domain.SymbolFilters, error) {
	op := "GetTradingFilters"
	var resp struct {
		envelope
		Data []struct {
			Symbol        string `json:"symbol"`
			BaseMinSize   string `json:"baseMinSize"`
			BaseMaxSize   string `json:"baseMaxSize"`
			BaseIncrement string `json:"baseIncrement"`
			EnableTrading bool   `json:"enableTrading"`
		} `json:"data"`
	}
	if err := c.request(ctx, http.MethodGet, "/api/v1/symbols", "", &resp); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !resp.ok() {
		return nil, c.mapCode(resp.envelope, op)
	}

	filters := make(map[string]domain.SymbolFilters, len(resp.Data))
	for _, s := range resp.Data {
		if !s.EnableTrading {
			continue
		}
		minQty, err1 := strconv.ParseFloat(s.BaseMinSize, 64)
		maxQty, err2 := strconv.ParseFloat(s.BaseMaxSize, 64)
		step, err3 := strconv.ParseFloat(s.BaseIncrement, 64)
		if err1 != nil || err2 != nil || err3 != nil {
			c.logger.Warn(ctx, "skipping pair with unparsable size filters", map[string]interface{}{"pair": s.Symbol})
			continue
		}
		filters[s.Symbol] = domain.SymbolFilters{MinQty: minQty, MaxQty: maxQty, StepSize: step}
	}
	return filters, nil
}
