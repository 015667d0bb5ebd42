package domain

import "time"

// Trade is an immutable execution record.
type Trade struct {
	ID        string
	BotID     string
	Symbol    string
	Side      OrderSide
	Amount    float64
	Price     float64
	Total     float64  // Amount * Price
	Profit    *float64 // SELL only
	OrderID   *string  // nil when no exchange order was placed
	Timestamp time.Time
}

// IsWin reports whether the trade realised a positive profit.
func (t *Trade) IsWin() bool {
	return t.Profit != nil && *t.Profit > 0
}
