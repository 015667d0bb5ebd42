package ports

import (
	"context"

	"gridBot/internal/domain"
)

// Ticker is a 24h market snapshot for one symbol.
type Ticker struct {
	Symbol string
	Last   float64
	High   float64
	Low    float64
	Volume float64
}

// Balance holds the account amounts of one asset.
type Balance struct {
	Free  float64
	Used  float64
	Total float64
}

// OrderType enumerates supported order types. Only market orders are placed.
type OrderType string

const OrderTypeMarket OrderType = "market"

// OrderRequest describes an order to submit.
type OrderRequest struct {
	Symbol string
	Type   OrderType
	Side   domain.OrderSide
	Amount float64
}

// OrderResult represents the essential details returned after placing an order.
type OrderResult struct {
	ID           string  // Exchange's order ID
	AveragePrice float64 // Average filled price, 0 if unknown
	Price        float64 // Order price, 0 for market orders
	ExecutedQty  float64 // Quantity filled, 0 if unknown
	Status       string
}

// FillPrice returns the best known execution price, falling back to ref.
func (r *OrderResult) FillPrice(ref float64) float64 {
	if r == nil {
		return ref
	}
	if r.AveragePrice > 0 {
		return r.AveragePrice
	}
	if r.Price > 0 {
		return r.Price
	}
	return ref
}

// PriceHandler receives every last-trade price pushed by a stream.
type PriceHandler func(price float64)

// Subscription is a live price stream. Close stops delivery before returning
// and is safe to call more than once.
type Subscription interface {
	Close() error
}

// ExchangeGateway defines the interface for interacting with a cryptocurrency exchange.
// Every blocking call honours the deadline of ctx.
type ExchangeGateway interface {
	// GetTicker retrieves the latest 24h ticker for symbol.
	GetTicker(ctx context.Context, symbol string) (*Ticker, error)

	// GetBalance retrieves account balances keyed by asset (e.g. "USDT").
	GetBalance(ctx context.Context) (map[string]Balance, error)

	// CreateOrder submits an order and returns once the exchange acknowledged it.
	CreateOrder(ctx context.Context, req OrderRequest) (*OrderResult, error)

	// AmountToPrecision rounds amount down to the symbol's quantity step.
	AmountToPrecision(ctx context.Context, symbol string, amount float64) (float64, error)

	// SubscribePriceStream starts pushing last prices for symbol to onPrice.
	SubscribePriceStream(ctx context.Context, symbol string, onPrice PriceHandler) (Subscription, error)

	// ValidateConnection checks connectivity (and authentication when keyed).
	ValidateConnection(ctx context.Context) bool
}

// ExchangeFactory builds a gateway for a bot: authenticated when the bot carries
// credentials, public otherwise.
type ExchangeFactory interface {
	NewGateway(ctx context.Context, bot *domain.Bot) (ExchangeGateway, error)
}
