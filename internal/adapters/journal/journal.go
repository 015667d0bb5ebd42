// Package journal records per-bot log lines and alerts.
package journal

import (
	"context"
	"time"

	"gridBot/internal/domain"
	"gridBot/internal/ports"
)

// Journal writes Log and Alert rows and mirrors them to the process logger.
// Persistence failures are reported to the process logger and swallowed.
type Journal struct {
	repo   ports.JournalRepository
	logger ports.Logger
	now    func() time.Time
}

// New creates a journal. It serves as both LogSink (Logs) and AlertSink (Alerts).
func New(repo ports.JournalRepository, logger ports.Logger) *Journal {
	return &Journal{repo: repo, logger: logger, now: time.Now}
}

// Logs returns the ports.LogSink view of the journal.
func (j *Journal) Logs() ports.LogSink { return logSink{j} }

// Alerts returns the ports.AlertSink view of the journal.
func (j *Journal) Alerts() ports.AlertSink { return alertSink{j} }

func (j *Journal) log(ctx context.Context, botID string, level domain.LogLevel, msg string) {
	fields := map[string]interface{}{"botID": botID}
	switch level {
	case domain.LogError:
		j.logger.Error(ctx, nil, msg, fields)
	case domain.LogWarning:
		j.logger.Warn(ctx, msg, fields)
	default:
		j.logger.Info(ctx, msg, fields)
	}

	entry := &domain.LogEntry{BotID: botID, Level: level, Message: msg, Timestamp: j.now().UTC()}
	if err := j.repo.AppendLog(ctx, entry); err != nil {
		j.logger.Error(ctx, err, "Failed to persist bot log", fields)
	}
}

func (j *Journal) alert(ctx context.Context, botID string, alertType domain.AlertType, msg string) {
	fields := map[string]interface{}{"botID": botID, "alertType": alertType}
	j.logger.Warn(ctx, "Alert: "+msg, fields)

	a := &domain.Alert{BotID: botID, Type: alertType, Message: msg, Timestamp: j.now().UTC()}
	if err := j.repo.AppendAlert(ctx, a); err != nil {
		j.logger.Error(ctx, err, "Failed to persist bot alert", fields)
	}
}

type logSink struct{ j *Journal }

func (s logSink) Emit(ctx context.Context, botID string, level domain.LogLevel, msg string) {
	s.j.log(ctx, botID, level, msg)
}

type alertSink struct{ j *Journal }

func (s alertSink) Emit(ctx context.Context, botID string, alertType domain.AlertType, msg string) {
	s.j.alert(ctx, botID, alertType, msg)
}
