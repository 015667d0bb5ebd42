package ports

import (
	"context"
	"time"

	"gridBot/internal/domain"
)

// BotUpdate lists the Bot fields to change. Nil fields are left untouched.
type BotUpdate struct {
	Status            *domain.BotStatus
	HighestPriceSeen  *float64
	LastPrice         *float64
	LastActivityAt    *time.Time
	StartedAt         *time.Time
	ClearStartedAt    bool
	AddRuntimeSeconds int64
}

// BotCounters are increments applied to a bot's running totals.
type BotCounters struct {
	Buys   int
	Sells  int
	Profit float64
}

// Tx is the set of writes that may be grouped into one atomic unit.
type Tx interface {
	CreatePosition(ctx context.Context, pos *domain.Position) error
	CreateTrade(ctx context.Context, trade *domain.Trade) error
	// ClosePosition flips an OPEN position to CLOSED. Closing a position that is
	// not OPEN fails with ErrNotFound.
	ClosePosition(ctx context.Context, positionID string, price, pnl float64) error
	IncrementBotCounters(ctx context.Context, botID string, c BotCounters) error
}

// BotRepository defines the transactional store for bots and their positions/trades.
type BotRepository interface {
	// GetBot returns ErrNotFound when the bot does not exist.
	GetBot(ctx context.Context, id string) (*domain.Bot, error)
	// GetBotWithOpenPositions returns the bot and its OPEN positions, oldest first.
	GetBotWithOpenPositions(ctx context.Context, id string) (*domain.Bot, []*domain.Position, error)
	GetPosition(ctx context.Context, id string) (*domain.Position, error)
	UpdateBot(ctx context.Context, id string, upd BotUpdate) error
	ListBotsByStatus(ctx context.Context, status domain.BotStatus) ([]*domain.Bot, error)
	// RunInTransaction commits every write made through tx, or none of them.
	RunInTransaction(ctx context.Context, fn func(tx Tx) error) error
	// ListCloseRequests returns the OPEN positions flagged for a manual close.
	ListCloseRequests(ctx context.Context) ([]*domain.Position, error)
	ClearCloseRequest(ctx context.Context, positionID string) error
}

// JournalRepository stores the append-only Log and Alert streams.
type JournalRepository interface {
	AppendLog(ctx context.Context, entry *domain.LogEntry) error
	AppendAlert(ctx context.Context, alert *domain.Alert) error
}
