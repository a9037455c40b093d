// Package binance implements the ports.ExchangeClient interface for Binance
// spot markets using the go-binance library. Binance supports native market
// orders, so fills are confirmed synchronously from the order response.
package binance

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"jinktrader/internal/domain"
	"jinktrader/internal/ports"

	gobinance "github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
)

const depthLimit = 100

// Client talks to the Binance spot REST API.
type Client struct {
	api    *gobinance.Client
	logger ports.Logger
}

// Config holds configuration specific to the Binance adapter.
type Config struct {
	APIKey    string
	SecretKey string
	Logger    ports.Logger
}

// New creates a new Binance spot adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance client")
	}
	if cfg.APIKey == "" || cfg.SecretKey == "" {
		cfg.Logger.Warn(context.Background(), "APIKey or SecretKey is empty. Client will only work for public endpoints.")
	}
	return &Client{
		api:    gobinance.NewClient(cfg.APIKey, cfg.SecretKey),
		logger: cfg.Logger,
	}, nil
}

// Kind reports the venue this client trades on.
func (c *Client) Kind() domain.Exchange { return domain.ExchangeBinance }

// handleError translates common Binance API errors into standardized ports errors.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}

	fields := map[string]interface{}{"operation": operation, "originalError": err.Error()}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fields["apiErrorCode"] = apiErr.Code
		fields["apiErrorMessage"] = apiErr.Message

		var mappedErr error
		switch apiErr.Code {
		case -1003: // Too many requests
			mappedErr = ports.ErrRateLimited
		case -1021: // Timestamp outside of recvWindow
			mappedErr = ports.ErrTimeout
		case -1022: // Invalid signature
			mappedErr = ports.ErrAuthenticationFailed
		case -1121: // Invalid symbol
			mappedErr = ports.ErrPairNotFound
		case -1013, -1100, -1101, -1102, -1103, -1104, -1106, -1111: // Parameter/filter errors
			mappedErr = ports.ErrInvalidRequest
		case -2010: // New order rejected
			if strings.Contains(apiErr.Message, "insufficient balance") {
				mappedErr = ports.ErrInsufficientFunds
			} else {
				mappedErr = ports.ErrOrderPlacementFailed
			}
		case -2013: // Order does not exist
			mappedErr = ports.ErrOrderNotFound
		case -2014, -2015: // API key format / permissions
			mappedErr = ports.ErrAuthenticationFailed
		default:
			mappedErr = ports.ErrUnknown
		}
		finalErr := fmt.Errorf("%s failed: %w: %w", operation, mappedErr, err)
		c.logger.Error(ctx, err, fmt.Sprintf("%s failed with API error", operation), fields)
		return finalErr
	}

	var finalErr error
	if errors.Is(err, context.DeadlineExceeded) {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrTimeout, err)
	} else if errors.Is(err, context.Canceled) {
		finalErr = fmt.Errorf("%s operation canceled: %w: %w", operation, ports.ErrContextCanceled, err)
	} else if strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "connection reset by peer") ||
		strings.Contains(err.Error(), "use of closed network connection") {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrConnectionFailed, err)
	} else {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrUnknown, err)
	}

	c.logger.Error(ctx, err, fmt.Sprintf("%s failed", operation), fields)
	return finalErr
}

// GetPrice retrieves the last traded price for a pair.
func (c *Client) GetPrice(ctx context.Context, pair string) (float64, error) {
	op := "GetPrice"
	prices, err := c.api.NewListPricesService().Symbol(pair).Do(ctx)
	if err != nil {
		return 0, c.handleError(ctx, err, op)
	}
	if len(prices) == 0 {
		return 0, c.handleError(ctx, fmt.Errorf("no price data returned for pair %s", pair), op)
	}
	price, err := strconv.ParseFloat(prices[0].Price, 64)
	if err != nil {
		parseErr := fmt.Errorf("could not parse price '%s': %w", prices[0].Price, err)
		return 0, c.handleError(ctx, parseErr, op)
	}
	return price, nil
}

// GetOrderBook retrieves one side of the order book, best price first.
// The buy side returns asks, the sell side returns bids.
func (c *Client) GetOrderBook(ctx context.Context, pair string, side domain.OrderSide) ([]domain.BookLevel, error) {
	op := "GetOrderBook"
	depth, err := c.api.NewDepthService().Symbol(pair).Limit(depthLimit).Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	var levels []domain.BookLevel
	if side == domain.Buy {
		levels, err = parseLevels(depth.Asks)
	} else {
		levels, err = parseLevels(depth.Bids)
	}
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	return levels, nil
}

func parseLevels(raw []common.PriceLevel) ([]domain.BookLevel, error) {
	levels := make([]domain.BookLevel, 0, len(raw))
	for _, l := range raw {
		price, qty, err := l.Parse()
		if err != nil {
			return nil, fmt.Errorf("could not parse book level [%s, %s]: %w", l.Price, l.Quantity, err)
		}
		levels = append(levels, domain.BookLevel{Price: price, Quantity: qty})
	}
	return levels, nil
}

// MarketBuy places a native market buy order and returns the realized fill.
func (c *Client) MarketBuy(ctx context.Context, pair string, qty float64) (*ports.FillResult, error) {
	return c.marketOrder(ctx, pair, qty, gobinance.SideTypeBuy, "MarketBuy")
}

// MarketSell places a native market sell order and returns the realized fill.
func (c *Client) MarketSell(ctx context.Context, pair string, qty float64) (*ports.FillResult, error) {
	return c.marketOrder(ctx, pair, qty, gobinance.SideTypeSell, "MarketSell")
}

func (c *Client) marketOrder(ctx context.Context, pair string, qty float64, side gobinance.SideType, op string) (*ports.FillResult, error) {
	order, err := c.api.NewCreateOrderService().
		Symbol(pair).
		Side(side).
		Type(gobinance.OrderTypeMarket).
		Quantity(strconv.FormatFloat(qty, 'f', -1, 64)).
		Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	fill, err := translateFill(order)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	c.logger.Info(ctx, op+" successful", map[string]interface{}{
		"pair": pair, "quantity": qty, "orderID": fill.OrderID, "avgPrice": fill.AvgPrice,
	})
	return fill, nil
}

// translateFill derives the volume-weighted average price from the order's
// fill legs, falling back to the cumulative quote quantity when the legs are
// missing from the response.
func translateFill(order *gobinance.CreateOrderResponse) (*ports.FillResult, error) {
	executed, err := strconv.ParseFloat(order.ExecutedQuantity, 64)
	if err != nil {
		return nil, fmt.Errorf("could not parse executed quantity '%s': %w", order.ExecutedQuantity, err)
	}
	if executed <= 0 {
		return nil, fmt.Errorf("order %d executed zero quantity: %w", order.OrderID, ports.ErrFillUnconfirmed)
	}

	var quote float64
	for _, f := range order.Fills {
		price, perr := strconv.ParseFloat(f.Price, 64)
		fqty, qerr := strconv.ParseFloat(f.Quantity, 64)
		if perr != nil || qerr != nil {
			return nil, fmt.Errorf("could not parse fill leg [%s, %s]", f.Price, f.Quantity)
		}
		quote += price * fqty
	}
	if len(order.Fills) == 0 {
		quote, err = strconv.ParseFloat(order.CummulativeQuoteQuantity, 64)
		if err != nil {
			return nil, fmt.Errorf("could not parse cumulative quote quantity '%s': %w", order.CummulativeQuoteQuantity, err)
		}
	}

	return &ports.FillResult{
		AvgPrice:  quote / executed,
		FilledQty: executed,
		OrderID:   strconv.FormatInt(order.OrderID, 10),
	}, nil
}

// GetBalances retrieves the free balance of every asset in the account.
func (c *Client) GetBalances(ctx context.Context) (map[string]float64, error) {
	op := "GetBalances"
	account, err := c.api.NewGetAccountService().Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	balances := make(map[string]float64, len(account.Balances))
	for _, b := range account.Balances {
		free, err := strconv.ParseFloat(b.Free, 64)
		if err != nil {
			parseErr := fmt.Errorf("could not parse balance '%s' for asset %s: %w", b.Free, b.Asset, err)
			return nil, c.handleError(ctx, parseErr, op)
		}
		if free > 0 {
			balances[b.Asset] = free
		}
	}
	return balances, nil
}

// GetTradingFilters retrieves the lot-size constraints for every pair that is
// currently trading.
func (c *Client) GetTradingFilters(ctx context.Context) (map[string]domain.SymbolFilters, error) {
	op := "GetTradingFilters"
	info, err := c.api.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	filters := make(map[string]domain.SymbolFilters, len(info.Symbols))
	for _, s := range info.Symbols {
		if s.Status != "TRADING" {
			continue
		}
		lot := s.LotSizeFilter()
		if lot == nil {
			continue
		}
		minQty, err1 := strconv.ParseFloat(lot.MinQuantity, 64)
		maxQty, err2 := strconv.ParseFloat(lot.MaxQuantity, 64)
		step, err3 := strconv.ParseFloat(lot.StepSize, 64)
		if err1 != nil || err2 != nil || err3 != nil {
			c.logger.Warn(ctx, "skipping pair with unparsable lot size filter", map[string]interface{}{"pair": s.Symbol})
			continue
		}
		filters[s.Symbol] = domain.SymbolFilters{MinQty: minQty, MaxQty: maxQty, StepSize: step}
	}
	return filters, nil
}
