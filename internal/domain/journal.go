package domain

import "time"

// LogLevel is the severity of a per-bot log row.
type LogLevel string

const (
	LogInfo    LogLevel = "INFO"
	LogWarning LogLevel = "WARNING"
	LogError   LogLevel = "ERROR"
)

// AlertType classifies user-facing notifications.
type AlertType string

const (
	AlertStopLoss       AlertType = "STOP_LOSS"
	AlertTakeProfit     AlertType = "TAKE_PROFIT"
	AlertTrailingStop   AlertType = "TRAILING_STOP"
	AlertPositionLimit  AlertType = "POSITION_LIMIT"
	AlertDailyLossLimit AlertType = "DAILY_LOSS_LIMIT"
	AlertError          AlertType = "ERROR"
)

// LogEntry is an append-only diagnostic record for a bot.
type LogEntry struct {
	ID        string
	BotID     string
	Level     LogLevel
	Message   string
	Timestamp time.Time
}

// Alert is an append-only notification record for a bot.
type Alert struct {
	ID        string
	BotID     string
	Type      AlertType
	Message   string
	Timestamp time.Time
}
