package ports

import (
	"context"

	"gridBot/internal/domain"
)

// LogSink records per-bot diagnostics. Emit never fails from the caller's view.
type LogSink interface {
	Emit(ctx context.Context, botID string, level domain.LogLevel, msg string)
}

// AlertSink records per-bot notifications. Emit never fails from the caller's view.
type AlertSink interface {
	Emit(ctx context.Context, botID string, alertType domain.AlertType, msg string)
}
