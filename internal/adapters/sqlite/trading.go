package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"gridBot/internal/domain"
	"gridBot/internal/ports"
)

const (
	positionColumns = `id, bot_id, symbol, amount, entry_price, status, current_price, pnl, created_at, close_requested`
	tradeColumns    = `id, bot_id, symbol, side, amount, price, total, profit, order_id, timestamp`
)

// RunInTransaction runs fn inside one SQL transaction. Any error from fn, or
// from the commit, rolls back every write and is reported as ports.ErrPersistence.
func (r *Repository) RunInTransaction(ctx context.Context, fn func(tx ports.Tx) error) error {
	sqlTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: failed to begin transaction: %w", ports.ErrPersistence, err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
	}()

	if err := fn(&txWriter{tx: sqlTx}); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil {
			r.logger.Error(ctx, rbErr, "Failed to roll back transaction")
		}
		return fmt.Errorf("%w: %w", ports.ErrPersistence, err)
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("%w: failed to commit transaction: %w", ports.ErrPersistence, err)
	}
	return nil
}

// txWriter implements ports.Tx on top of *sql.Tx.
type txWriter struct {
	tx *sql.Tx
}

func (w *txWriter) CreatePosition(ctx context.Context, pos *domain.Position) error {
	if pos.ID == "" {
		pos.ID = uuid.NewString()
	}
	const query = `
	INSERT INTO positions (` + positionColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := w.tx.ExecContext(ctx, query,
		pos.ID, pos.BotID, pos.Symbol, pos.Amount, pos.EntryPrice, pos.Status,
		nullFloat(pos.CurrentPrice), nullFloat(pos.PNL), pos.CreatedAt.UTC(), pos.CloseRequested)
	if err != nil {
		return fmt.Errorf("failed to insert position for bot %s: %w", pos.BotID, err)
	}
	return nil
}

func (w *txWriter) CreateTrade(ctx context.Context, trade *domain.Trade) error {
	if trade.ID == "" {
		trade.ID = uuid.NewString()
	}
	const query = `
	INSERT INTO trades (` + tradeColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := w.tx.ExecContext(ctx, query,
		trade.ID, trade.BotID, trade.Symbol, trade.Side, trade.Amount, trade.Price, trade.Total,
		nullFloat(trade.Profit), nullString(trade.OrderID), trade.Timestamp.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert %s trade for bot %s: %w", trade.Side, trade.BotID, err)
	}
	return nil
}

func (w *txWriter) ClosePosition(ctx context.Context, positionID string, price, pnl float64) error {
	const query = `
	UPDATE positions SET status = ?, current_price = ?, pnl = ?, close_requested = 0
	WHERE id = ? AND status = ?`
	return expectOneRow(ctx, w.tx, "open position "+positionID, query,
		domain.StatusClosed, price, pnl, positionID, domain.StatusOpen)
}

func (w *txWriter) IncrementBotCounters(ctx context.Context, botID string, c ports.BotCounters) error {
	const query = `
	UPDATE bots
	SET total_buys = total_buys + ?, total_sells = total_sells + ?, total_profit = total_profit + ?
	WHERE id = ?`
	return expectOneRow(ctx, w.tx, "bot "+botID, query, c.Buys, c.Sells, c.Profit, botID)
}

// GetPosition retrieves a position by ID. A missing position yields ports.ErrNotFound.
func (r *Repository) GetPosition(ctx context.Context, id string) (*domain.Position, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+positionColumns+` FROM positions WHERE id = ?`, id)
	pos, err := scanPosition(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("position %s: %w", id, ports.ErrNotFound)
		}
		return nil, fmt.Errorf("%w: position %s: %w", ports.ErrQueryFailed, id, err)
	}
	return pos, nil
}

// ListPositions retrieves every position of a bot, oldest first.
func (r *Repository) ListPositions(ctx context.Context, botID string) ([]*domain.Position, error) {
	return listPositions(ctx, r.db, botID, "")
}

func listPositions(ctx context.Context, q querier, botID string, status domain.PositionStatus) ([]*domain.Position, error) {
	query := `SELECT ` + positionColumns + ` FROM positions WHERE bot_id = ?`
	args := []interface{}{botID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at, rowid`
	return queryPositions(ctx, q, query, args...)
}

func queryPositions(ctx context.Context, q querier, query string, args ...interface{}) ([]*domain.Position, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: positions: %w", ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	positions := make([]*domain.Position, 0)
	for rows.Next() {
		pos, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		positions = append(positions, pos)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating position rows: %w", ports.ErrQueryFailed, err)
	}
	return positions, nil
}

// RequestPositionClose flags an OPEN position of botID for a manual close by
// the running engine. Unknown or already closed positions yield ports.ErrNotFound.
func (r *Repository) RequestPositionClose(ctx context.Context, botID, positionID string) error {
	const query = `
	UPDATE positions SET close_requested = 1
	WHERE id = ? AND bot_id = ? AND status = ?`
	return expectOneRow(ctx, r.db, "open position "+positionID, query, positionID, botID, domain.StatusOpen)
}

// ListCloseRequests retrieves every OPEN position flagged for a manual close, oldest first.
func (r *Repository) ListCloseRequests(ctx context.Context) ([]*domain.Position, error) {
	query := `SELECT ` + positionColumns + ` FROM positions
	WHERE close_requested = 1 AND status = ? ORDER BY created_at, rowid`
	return queryPositions(ctx, r.db, query, domain.StatusOpen)
}

// ClearCloseRequest drops the manual close flag of a position.
func (r *Repository) ClearCloseRequest(ctx context.Context, positionID string) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE positions SET close_requested = 0 WHERE id = ?`, positionID); err != nil {
		return fmt.Errorf("failed to clear close request of position %s: %w", positionID, err)
	}
	return nil
}

// ListTrades retrieves the trades of a bot in execution order. A positive
// limit keeps only the most recent trades.
func (r *Repository) ListTrades(ctx context.Context, botID string, limit int) ([]*domain.Trade, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades WHERE bot_id = ?`
	args := []interface{}{botID}
	if limit > 0 {
		query += ` ORDER BY timestamp DESC, rowid DESC LIMIT ?`
		args = append(args, limit)
	} else {
		query += ` ORDER BY timestamp, rowid`
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: trades of bot %s: %w", ports.ErrQueryFailed, botID, err)
	}
	defer rows.Close()

	trades := make([]*domain.Trade, 0)
	for rows.Next() {
		trade, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		trades = append(trades, trade)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating trade rows: %w", ports.ErrQueryFailed, err)
	}
	if limit > 0 {
		slices.Reverse(trades)
	}
	return trades, nil
}

// scanPosition scans a row into a domain.Position struct.
func scanPosition(s scanner) (*domain.Position, error) {
	p := &domain.Position{}
	var status string
	var currentPrice, pnl sql.NullFloat64
	err := s.Scan(&p.ID, &p.BotID, &p.Symbol, &p.Amount, &p.EntryPrice, &status, &currentPrice, &pnl, &p.CreatedAt, &p.CloseRequested)
	if err != nil {
		return nil, err // Handle sql.ErrNoRows in the caller
	}
	p.Status = domain.PositionStatus(status)
	p.CurrentPrice = floatPtr(currentPrice)
	p.PNL = floatPtr(pnl)
	return p, nil
}

// scanTrade scans a row into a domain.Trade struct.
func scanTrade(s scanner) (*domain.Trade, error) {
	t := &domain.Trade{}
	var side string
	var profit sql.NullFloat64
	var orderID sql.NullString
	err := s.Scan(&t.ID, &t.BotID, &t.Symbol, &side, &t.Amount, &t.Price, &t.Total, &profit, &orderID, &t.Timestamp)
	if err != nil {
		return nil, err // Handle sql.ErrNoRows in the caller
	}
	t.Side = domain.OrderSide(side)
	t.Profit = floatPtr(profit)
	t.OrderID = stringPtr(orderID)
	return t, nil
}
