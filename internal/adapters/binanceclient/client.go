package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"gridBot/internal/domain"
	"gridBot/internal/ports"
)

const (
	// Base URLs
	baseURLProduction = "https://api.binance.com"
	baseURLTestnet    = "https://testnet.binance.vision"
)

// wsServeFunc matches binance.WsMarketStatServe.
type wsServeFunc func(symbol string, handler binance.WsMarketStatHandler, errHandler binance.ErrHandler) (doneC, stopC chan struct{}, err error)

// Client implements ports.ExchangeGateway on the Binance spot API.
type Client struct {
	spotClient           *binance.Client
	hasKeys              bool
	logger               ports.Logger
	limiter              *rate.Limiter
	reconnectDelay       time.Duration
	maxReconnectAttempts int
	wsServe              wsServeFunc

	mu        sync.Mutex
	stepSizes map[string]decimal.Decimal // LOT_SIZE step per exchange symbol
}

// Config holds configuration specific to the Binance client adapter.
type Config struct {
	APIKey               string
	SecretKey            string
	BaseURL              string // empty selects production
	Logger               ports.Logger
	RateLimitPerSecond   float64       // REST calls per second, 0 disables pacing
	ReconnectDelay       time.Duration // Reconnect delay (e.g., 1 * time.Second)
	MaxReconnectAttempts int           // Max attempts before giving up
}

// New creates a new Binance client adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance client")
	}
	hasKeys := cfg.APIKey != "" && cfg.SecretKey != ""
	if !hasKeys {
		cfg.Logger.Debug(context.Background(), "APIKey or SecretKey is empty. Client will only work for public endpoints.")
	}

	client := binance.NewClient(cfg.APIKey, cfg.SecretKey)
	client.BaseURL = cfg.BaseURL
	if client.BaseURL == "" {
		client.BaseURL = baseURLProduction
	}
	cfg.Logger.Debug(context.Background(), "Binance client configured", map[string]interface{}{"baseURL": client.BaseURL})

	// Default reconnect settings if not provided
	reconnectDelay := cfg.ReconnectDelay
	if reconnectDelay <= 0 {
		reconnectDelay = 1 * time.Second
	}
	maxAttempts := cfg.MaxReconnectAttempts
	if maxAttempts <= 0 {
		maxAttempts = 10
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RateLimitPerSecond > 0 {
		burst := int(cfg.RateLimitPerSecond)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitPerSecond), burst)
	}

	return &Client{
		spotClient:           client,
		hasKeys:              hasKeys,
		logger:               cfg.Logger,
		limiter:              limiter,
		reconnectDelay:       reconnectDelay,
		maxReconnectAttempts: maxAttempts,
		wsServe:              binance.WsMarketStatServe,
		stepSizes:            make(map[string]decimal.Decimal),
	}, nil
}

// exchangeSymbol converts "BTC/USDT" into Binance's "BTCUSDT".
func exchangeSymbol(symbol string) string {
	return strings.ToUpper(strings.ReplaceAll(symbol, "/", ""))
}

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

		// Map specific Binance error codes to custom errors
		var mappedErr error
		switch apiErr.Code {
		case -1003, -1015: // Too many requests / orders
			mappedErr = ports.ErrRateLimited
		case -1001, -1006, -1007: // Disconnected / unexpected response / backend timeout
			mappedErr = ports.ErrExchangeUnavailable
		case -1021: // Timestamp for this request is outside of the recvWindow
			mappedErr = ports.ErrTimeout
		case -1022: // Signature for this request is not valid
			mappedErr = ports.ErrAuthenticationFailed
		case -1013: // Filter failure (LOT_SIZE, NOTIONAL)
			mappedErr = ports.ErrTradeSizeTooSmall
		case -1100, -1101, -1102, -1103, -1104, -1105, -1106, -1111, -1115, -1116, -1117, -1121, -1125, -1127, -1128, -1130: // Parameter/Request format errors
			mappedErr = ports.ErrInvalidRequest
		case -2010: // New order rejected
			if strings.Contains(strings.ToLower(apiErr.Message), "insufficient balance") {
				mappedErr = ports.ErrInsufficientFunds
			} else {
				mappedErr = ports.ErrOrderPlacementFailed
			}
		case -2014, -2015: // API-key format invalid / invalid key, IP, or permissions
			mappedErr = ports.ErrInvalidAPIKeys
		default:
			mappedErr = ports.ErrUnknown
		}
		finalErr := fmt.Errorf("%s failed: %w: %w", operation, mappedErr, err)
		c.logger.Error(ctx, err, fmt.Sprintf("%s failed with API error", operation), fields)
		return finalErr
	}

	// Handle non-API errors (network, context cancellation, etc.)
	var finalErr error
	if errors.Is(err, context.DeadlineExceeded) {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrTimeout, err)
	} else if errors.Is(err, context.Canceled) {
		finalErr = fmt.Errorf("%s operation canceled: %w: %w", operation, ports.ErrContextCanceled, err)
	} else if strings.Contains(err.Error(), "use of closed network connection") ||
		strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "connection reset by peer") ||
		strings.Contains(err.Error(), "no such host") {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrConnectionFailed, err)
	} else {
		// Default for other errors (e.g., parsing errors within the adapter)
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrUnknown, err)
	}

	c.logger.Error(ctx, err, fmt.Sprintf("%s failed", operation), fields)
	return finalErr
}

// wait paces REST calls.
func (c *Client) wait(ctx context.Context, operation string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return c.handleError(ctx, err, operation)
	}
	return nil
}

// Ping checks the connectivity to the exchange API.
func (c *Client) Ping(ctx context.Context) error {
	op := "Ping"
	if err := c.wait(ctx, op); err != nil {
		return err
	}
	if err := c.spotClient.NewPingService().Do(ctx); err != nil {
		return c.handleError(ctx, err, op)
	}
	c.logger.Debug(ctx, op+" successful")
	return nil
}

// ValidateConnection pings the exchange and, when keys are configured, checks
// that the account endpoint accepts them.
func (c *Client) ValidateConnection(ctx context.Context) bool {
	if err := c.Ping(ctx); err != nil {
		return false
	}
	if !c.hasKeys {
		return true
	}
	_, err := c.GetBalance(ctx)
	return err == nil
}

// GetTicker retrieves the 24h ticker for a symbol.
func (c *Client) GetTicker(ctx context.Context, symbol string) (*ports.Ticker, error) {
	op := "GetTicker"
	if err := c.wait(ctx, op); err != nil {
		return nil, err
	}
	stats, err := c.spotClient.NewListPriceChangeStatsService().Symbol(exchangeSymbol(symbol)).Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	if len(stats) == 0 {
		return nil, c.handleError(ctx, fmt.Errorf("no ticker data returned for symbol %s", symbol), op)
	}

	last, err := strconv.ParseFloat(stats[0].LastPrice, 64)
	if err != nil {
		parseErr := fmt.Errorf("could not parse price '%s': %w", stats[0].LastPrice, err)
		return nil, c.handleError(ctx, parseErr, op)
	}
	high, _ := strconv.ParseFloat(stats[0].HighPrice, 64)
	low, _ := strconv.ParseFloat(stats[0].LowPrice, 64)
	volume, _ := strconv.ParseFloat(stats[0].Volume, 64)

	return &ports.Ticker{Symbol: symbol, Last: last, High: high, Low: low, Volume: volume}, nil
}

// GetBalance retrieves free/used/total per asset. Requires API keys.
func (c *Client) GetBalance(ctx context.Context) (map[string]ports.Balance, error) {
	op := "GetBalance"
	if !c.hasKeys {
		return nil, fmt.Errorf("%s failed: %w", op, ports.ErrAuthenticationFailed)
	}
	if err := c.wait(ctx, op); err != nil {
		return nil, err
	}
	account, err := c.spotClient.NewGetAccountService().Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	balances := make(map[string]ports.Balance, len(account.Balances))
	for _, bal := range account.Balances {
		free, err := strconv.ParseFloat(bal.Free, 64)
		if err != nil {
			parseErr := fmt.Errorf("could not parse free balance '%s' for asset %s: %w", bal.Free, bal.Asset, err)
			return nil, c.handleError(ctx, parseErr, op)
		}
		locked, _ := strconv.ParseFloat(bal.Locked, 64)
		balances[bal.Asset] = ports.Balance{Free: free, Used: locked, Total: free + locked}
	}
	return balances, nil
}

// CreateOrder places a market order. Only market orders are supported.
func (c *Client) CreateOrder(ctx context.Context, req ports.OrderRequest) (*ports.OrderResult, error) {
	op := "CreateOrder"
	if req.Type != ports.OrderTypeMarket {
		return nil, fmt.Errorf("%s failed: %w: unsupported order type %q", op, ports.ErrInvalidRequest, req.Type)
	}
	if req.Amount <= 0 {
		return nil, fmt.Errorf("%s failed: %w: amount must be positive", op, ports.ErrInvalidRequest)
	}
	if err := c.wait(ctx, op); err != nil {
		return nil, err
	}

	side := binance.SideTypeBuy
	if req.Side == domain.Sell {
		side = binance.SideTypeSell
	}
	quantity := decimal.NewFromFloat(req.Amount).String()

	order, err := c.spotClient.NewCreateOrderService().
		Symbol(exchangeSymbol(req.Symbol)).
		Side(side).
		Type(binance.OrderTypeMarket).
		Quantity(quantity).
		NewOrderRespType(binance.NewOrderRespTypeFULL).
		Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, fmt.Errorf("%w: %w", ports.ErrOrderPlacementFailed, err), op)
	}

	resp := translateOrderResponse(order)
	c.logger.Info(ctx, op+" successful", map[string]interface{}{
		"symbol":   req.Symbol,
		"side":     req.Side,
		"quantity": quantity,
		"orderID":  resp.ID,
		"avgPrice": resp.AveragePrice,
		"status":   resp.Status,
	})
	return resp, nil
}

// AmountToPrecision truncates amount down to the symbol's LOT_SIZE step.
func (c *Client) AmountToPrecision(ctx context.Context, symbol string, amount float64) (float64, error) {
	step, err := c.stepSize(ctx, exchangeSymbol(symbol))
	if err != nil {
		return 0, err
	}
	if step.IsZero() {
		return amount, nil
	}
	rounded := decimal.NewFromFloat(amount).Div(step).Floor().Mul(step)
	f, _ := rounded.Float64()
	return f, nil
}

func (c *Client) stepSize(ctx context.Context, symbol string) (decimal.Decimal, error) {
	op := "AmountToPrecision"
	c.mu.Lock()
	step, ok := c.stepSizes[symbol]
	c.mu.Unlock()
	if ok {
		return step, nil
	}

	if err := c.wait(ctx, op); err != nil {
		return decimal.Zero, err
	}
	info, err := c.spotClient.NewExchangeInfoService().Symbol(symbol).Do(ctx)
	if err != nil {
		return decimal.Zero, c.handleError(ctx, err, op)
	}
	for i := range info.Symbols {
		if info.Symbols[i].Symbol != symbol {
			continue
		}
		lot := info.Symbols[i].LotSizeFilter()
		if lot == nil {
			break
		}
		step, err = decimal.NewFromString(lot.StepSize)
		if err != nil {
			return decimal.Zero, c.handleError(ctx, fmt.Errorf("could not parse step size '%s': %w", lot.StepSize, err), op)
		}
		c.mu.Lock()
		c.stepSizes[symbol] = step
		c.mu.Unlock()
		return step, nil
	}
	return decimal.Zero, c.handleError(ctx, fmt.Errorf("%w: no LOT_SIZE filter for %s", ports.ErrInvalidRequest, symbol), op)
}

// --- Translation Helpers ---

func translateOrderResponse(order *binance.CreateOrderResponse) *ports.OrderResult {
	if order == nil {
		return nil
	}
	price, _ := strconv.ParseFloat(order.Price, 64)
	execQty, _ := decimal.NewFromString(order.ExecutedQuantity)
	quoteQty, _ := decimal.NewFromString(order.CummulativeQuoteQuantity)

	var avgPrice float64
	if execQty.IsPositive() && quoteQty.IsPositive() {
		avgPrice, _ = quoteQty.Div(execQty).Float64()
	} else if len(order.Fills) > 0 {
		avgPrice, _ = strconv.ParseFloat(order.Fills[0].Price, 64)
	}
	qty, _ := execQty.Float64()

	return &ports.OrderResult{
		ID:           strconv.FormatInt(order.OrderID, 10),
		AveragePrice: avgPrice,
		Price:        price,
		ExecutedQty:  qty,
		Status:       string(order.Status),
	}
}

var _ ports.ExchangeGateway = (*Client)(nil)
