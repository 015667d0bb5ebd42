package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"gridBot/internal/domain"
	"gridBot/internal/ports"
)

const botColumns = `id, name, symbol, mode, status, active, capital, buy_percentage,
	buy_drop_percent, sell_profit_percent, stop_loss_percent, take_profit_percent,
	trailing_stop_percent, max_positions, max_daily_loss, highest_price_seen, last_price,
	total_profit, total_buys, total_sells, total_runtime_seconds, started_at,
	last_activity_at, credentials, created_at`

// CreateBot inserts a bot. An empty ID is replaced by a new UUID.
func (r *Repository) CreateBot(ctx context.Context, bot *domain.Bot) error {
	if bot.ID == "" {
		bot.ID = uuid.NewString()
	}
	if bot.CreatedAt.IsZero() {
		bot.CreatedAt = time.Now().UTC()
	}
	if bot.Status == "" {
		bot.Status = domain.BotIdle
	}

	const query = `
	INSERT INTO bots (` + botColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		bot.ID, bot.Name, bot.Symbol, bot.Mode, bot.Status, bot.Active, bot.Capital, bot.BuyPercentage,
		bot.BuyDropPercent, bot.SellProfitPercent, bot.StopLossPercent, bot.TakeProfitPercent,
		bot.TrailingStopPercent, bot.MaxPositions, bot.MaxDailyLoss, bot.HighestPriceSeen, bot.LastPrice,
		bot.TotalProfit, bot.TotalBuys, bot.TotalSells, bot.TotalRuntimeSeconds, nullTime(bot.StartedAt),
		nullTime(bot.LastActivityAt), bot.Credentials, bot.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert bot %s: %w", bot.ID, err)
	}
	r.logger.Debug(ctx, "Bot created", map[string]interface{}{"botID": bot.ID, "symbol": bot.Symbol})
	return nil
}

// GetBot retrieves a bot by ID. A missing bot yields ports.ErrNotFound.
func (r *Repository) GetBot(ctx context.Context, id string) (*domain.Bot, error) {
	return getBot(ctx, r.db, id)
}

func getBot(ctx context.Context, q querier, id string) (*domain.Bot, error) {
	row := q.QueryRowContext(ctx, `SELECT `+botColumns+` FROM bots WHERE id = ?`, id)
	bot, err := scanBot(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("bot %s: %w", id, ports.ErrNotFound)
		}
		return nil, fmt.Errorf("%w: bot %s: %w", ports.ErrQueryFailed, id, err)
	}
	return bot, nil
}

// GetBotWithOpenPositions retrieves a bot and its OPEN positions, oldest first.
// Both reads share one transaction, so no trade can land between them.
func (r *Repository) GetBotWithOpenPositions(ctx context.Context, id string) (*domain.Bot, []*domain.Position, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: failed to begin read transaction: %w", ports.ErrQueryFailed, err)
	}
	defer func() { _ = tx.Rollback() }()

	bot, err := getBot(ctx, tx, id)
	if err != nil {
		return nil, nil, err
	}
	positions, err := listPositions(ctx, tx, id, domain.StatusOpen)
	if err != nil {
		return nil, nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("%w: failed to end read transaction: %w", ports.ErrQueryFailed, err)
	}
	return bot, positions, nil
}

// ListBots retrieves all bots ordered by creation time.
func (r *Repository) ListBots(ctx context.Context) ([]*domain.Bot, error) {
	return r.queryBots(ctx, `SELECT `+botColumns+` FROM bots ORDER BY created_at, rowid`)
}

// ListBotsByStatus retrieves all bots with the given status.
func (r *Repository) ListBotsByStatus(ctx context.Context, status domain.BotStatus) ([]*domain.Bot, error) {
	return r.queryBots(ctx, `SELECT `+botColumns+` FROM bots WHERE status = ? ORDER BY created_at, rowid`, status)
}

func (r *Repository) queryBots(ctx context.Context, query string, args ...interface{}) ([]*domain.Bot, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: bots: %w", ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	bots := make([]*domain.Bot, 0)
	for rows.Next() {
		bot, err := scanBot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bot: %w", err)
		}
		bots = append(bots, bot)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating bot rows: %w", ports.ErrQueryFailed, err)
	}
	return bots, nil
}

// UpdateBot applies the non-nil fields of upd to the bot.
func (r *Repository) UpdateBot(ctx context.Context, id string, upd ports.BotUpdate) error {
	var sets []string
	var args []interface{}

	if upd.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, *upd.Status)
	}
	if upd.HighestPriceSeen != nil {
		sets = append(sets, "highest_price_seen = ?")
		args = append(args, *upd.HighestPriceSeen)
	}
	if upd.LastPrice != nil {
		sets = append(sets, "last_price = ?")
		args = append(args, *upd.LastPrice)
	}
	if upd.LastActivityAt != nil {
		sets = append(sets, "last_activity_at = ?")
		args = append(args, upd.LastActivityAt.UTC())
	}
	switch {
	case upd.ClearStartedAt:
		sets = append(sets, "started_at = NULL")
	case upd.StartedAt != nil:
		sets = append(sets, "started_at = ?")
		args = append(args, upd.StartedAt.UTC())
	}
	if upd.AddRuntimeSeconds != 0 {
		sets = append(sets, "total_runtime_seconds = total_runtime_seconds + ?")
		args = append(args, upd.AddRuntimeSeconds)
	}
	if len(sets) == 0 {
		return nil
	}

	query := "UPDATE bots SET " + strings.Join(sets, ", ") + " WHERE id = ?"
	args = append(args, id)
	if err := expectOneRow(ctx, r.db, "bot "+id, query, args...); err != nil {
		return err
	}
	r.logger.Debug(ctx, "Bot updated", map[string]interface{}{"botID": id, "fields": len(sets)})
	return nil
}

// SetBotActive flips the external activation switch of a bot.
func (r *Repository) SetBotActive(ctx context.Context, id string, active bool) error {
	return expectOneRow(ctx, r.db, "bot "+id, `UPDATE bots SET active = ? WHERE id = ?`, active, id)
}

// DeleteBot removes a bot together with its positions, trades, logs and alerts.
func (r *Repository) DeleteBot(ctx context.Context, id string) error {
	return expectOneRow(ctx, r.db, "bot "+id, `DELETE FROM bots WHERE id = ?`, id)
}

// expectOneRow executes query and maps "no row affected" to ports.ErrNotFound.
func expectOneRow(ctx context.Context, db execer, what, query string, args ...interface{}) error {
	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", what, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for %s: %w", what, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%s not found for update: %w", what, ports.ErrNotFound)
	}
	return nil
}

// scanBot scans a row into a domain.Bot struct.
func scanBot(s scanner) (*domain.Bot, error) {
	b := &domain.Bot{}
	var mode, status string
	var startedAt, lastActivityAt sql.NullTime
	err := s.Scan(
		&b.ID, &b.Name, &b.Symbol, &mode, &status, &b.Active, &b.Capital, &b.BuyPercentage,
		&b.BuyDropPercent, &b.SellProfitPercent, &b.StopLossPercent, &b.TakeProfitPercent,
		&b.TrailingStopPercent, &b.MaxPositions, &b.MaxDailyLoss, &b.HighestPriceSeen, &b.LastPrice,
		&b.TotalProfit, &b.TotalBuys, &b.TotalSells, &b.TotalRuntimeSeconds, &startedAt,
		&lastActivityAt, &b.Credentials, &b.CreatedAt)
	if err != nil {
		return nil, err // Handle sql.ErrNoRows in the caller
	}
	b.Mode = domain.BotMode(mode)
	b.Status = domain.BotStatus(status)
	b.StartedAt = timePtr(startedAt)
	b.LastActivityAt = timePtr(lastActivityAt)
	return b, nil
}
