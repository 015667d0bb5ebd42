package domain

import "time"

// Position represents one unit of exposure held by a bot.
type Position struct {
	ID           string
	BotID        string
	Symbol       string
	Amount       float64 // always > 0
	EntryPrice   float64
	Status       PositionStatus
	CurrentPrice *float64 // last observed price, set on close
	PNL          *float64 // set on close
	CreatedAt    time.Time

	// CloseRequested marks an OPEN position an operator asked to close manually.
	CloseRequested bool
}

// IsOpen checks if the position status is open.
func (p *Position) IsOpen() bool {
	return p.Status == StatusOpen
}

// UnrealizedPNL returns the profit the position would realise at price.
func (p *Position) UnrealizedPNL(price float64) float64 {
	return (price - p.EntryPrice) * p.Amount
}
