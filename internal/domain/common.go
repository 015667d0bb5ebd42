package domain

// OrderSide represents the side of an order (BUY or SELL).
type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

// BotMode selects paper trading or live order submission.
type BotMode string

const (
	ModeDemo BotMode = "DEMO"
	ModeReal BotMode = "REAL"
)

// BotStatus is the persisted lifecycle status of a bot.
type BotStatus string

const (
	BotIdle    BotStatus = "IDLE"
	BotRunning BotStatus = "RUNNING"
	BotStopped BotStatus = "STOPPED"
)

// PositionStatus represents the status of a trading position.
type PositionStatus string

const (
	StatusOpen   PositionStatus = "OPEN"
	StatusClosed PositionStatus = "CLOSED"
)

// CloseReason indicates why a position was closed.
type CloseReason string

const (
	CloseReasonStopLoss     CloseReason = "STOP_LOSS"
	CloseReasonTakeProfit   CloseReason = "TAKE_PROFIT"
	CloseReasonTrailingStop CloseReason = "TRAILING_STOP"
	CloseReasonGridSell     CloseReason = "GRID_SELL"
	CloseReasonManual       CloseReason = "MANUAL"
)
