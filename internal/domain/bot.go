package domain

import "time"

// Bot is one trading configuration together with its running counters.
// The persisted row is authoritative; engines reload it on every tick.
type Bot struct {
	ID     string
	Name   string
	Symbol string // e.g. "BTC/USDT"
	Mode   BotMode
	Status BotStatus
	Active bool // external deactivation switch

	Capital           float64 // allocated quote currency amount
	BuyPercentage     float64 // capital % spent per buy
	BuyDropPercent    float64 // grid buy trigger
	SellProfitPercent float64 // grid sell trigger

	// Zero disables the corresponding guard.
	StopLossPercent     float64
	TakeProfitPercent   float64
	TrailingStopPercent float64
	MaxPositions        int
	MaxDailyLoss        float64

	HighestPriceSeen    float64
	LastPrice           float64
	TotalProfit         float64
	TotalBuys           int
	TotalSells          int
	TotalRuntimeSeconds int64
	StartedAt           *time.Time
	LastActivityAt      *time.Time

	// Credentials is the sealed API key blob. Empty means public data only.
	Credentials string

	CreatedAt time.Time
}

// HasCredentials reports whether the bot can authenticate against the exchange.
func (b *Bot) HasCredentials() bool {
	return b.Credentials != ""
}

// IsReal reports whether orders must be submitted to the exchange.
func (b *Bot) IsReal() bool {
	return b.Mode == ModeReal
}
