package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"gridBot/internal/domain"
	"gridBot/internal/ports"
)

// AppendLog stores one per-bot log row.
func (r *Repository) AppendLog(ctx context.Context, entry *domain.LogEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	const query = `INSERT INTO bot_logs (id, bot_id, level, message, timestamp) VALUES (?, ?, ?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, query, entry.ID, entry.BotID, entry.Level, entry.Message, entry.Timestamp.UTC()); err != nil {
		return fmt.Errorf("failed to insert log for bot %s: %w", entry.BotID, err)
	}
	return nil
}

// AppendAlert stores one per-bot alert row.
func (r *Repository) AppendAlert(ctx context.Context, alert *domain.Alert) error {
	if alert.ID == "" {
		alert.ID = uuid.NewString()
	}
	if alert.Timestamp.IsZero() {
		alert.Timestamp = time.Now().UTC()
	}
	const query = `INSERT INTO alerts (id, bot_id, type, message, timestamp) VALUES (?, ?, ?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, query, alert.ID, alert.BotID, alert.Type, alert.Message, alert.Timestamp.UTC()); err != nil {
		return fmt.Errorf("failed to insert alert for bot %s: %w", alert.BotID, err)
	}
	return nil
}

// ListLogs retrieves the most recent log rows of a bot, newest first.
func (r *Repository) ListLogs(ctx context.Context, botID string, limit int) ([]*domain.LogEntry, error) {
	const query = `
	SELECT id, bot_id, level, message, timestamp FROM bot_logs
	WHERE bot_id = ? ORDER BY timestamp DESC, rowid DESC LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, botID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: logs of bot %s: %w", ports.ErrQueryFailed, botID, err)
	}
	defer rows.Close()

	logs := make([]*domain.LogEntry, 0)
	for rows.Next() {
		e := &domain.LogEntry{}
		var level string
		if err := rows.Scan(&e.ID, &e.BotID, &level, &e.Message, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan log: %w", err)
		}
		e.Level = domain.LogLevel(level)
		logs = append(logs, e)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating log rows: %w", err)
	}
	return logs, nil
}

// ListAlerts retrieves the most recent alerts of a bot, newest first.
func (r *Repository) ListAlerts(ctx context.Context, botID string, limit int) ([]*domain.Alert, error) {
	const query = `
	SELECT id, bot_id, type, message, timestamp FROM alerts
	WHERE bot_id = ? ORDER BY timestamp DESC, rowid DESC LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, botID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: alerts of bot %s: %w", ports.ErrQueryFailed, botID, err)
	}
	defer rows.Close()

	alerts := make([]*domain.Alert, 0)
	for rows.Next() {
		a := &domain.Alert{}
		var alertType string
		if err := rows.Scan(&a.ID, &a.BotID, &alertType, &a.Message, &a.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		a.Type = domain.AlertType(alertType)
		alerts = append(alerts, a)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating alert rows: %w", err)
	}
	return alerts, nil
}
