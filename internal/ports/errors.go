package ports

import "errors"

// Standard application-level errors.
// Adapters should wrap underlying infrastructure errors with these standard errors.
var (
	// General Errors
	ErrUnknown            = errors.New("unknown error occurred")
	ErrInvalidRequest     = errors.New("invalid request parameters or format")
	ErrNotFound           = errors.New("resource not found")
	ErrTimeout            = errors.New("operation timed out")
	ErrContextCanceled    = errors.New("operation canceled via context")
	ErrConfigurationError = errors.New("invalid or missing configuration")

	// Exchange Specific Errors
	ErrExchangeUnavailable  = errors.New("exchange API is unavailable")
	ErrConnectionFailed     = errors.New("failed to connect to the exchange")
	ErrRateLimited          = errors.New("API rate limit exceeded")
	ErrAuthenticationFailed = errors.New("exchange authentication failed (check API keys)")
	ErrInvalidAPIKeys       = errors.New("invalid API keys or permissions")
	ErrInsufficientFunds    = errors.New("insufficient funds for operation")
	ErrOrderPlacementFailed = errors.New("failed to place order")
	ErrCredentials          = errors.New("bot credentials cannot be read")

	// Trading Errors
	ErrTradeSizeTooSmall = errors.New("trade size below exchange minimum")
	ErrRiskLimitBreach   = errors.New("risk limit breached")
	ErrEngineBusy        = errors.New("engine is evaluating a tick")
	ErrNotRunning        = errors.New("bot engine is not running")

	// Database Specific Errors
	ErrPersistence = errors.New("persistence operation failed")
	ErrQueryFailed = errors.New("database query failed")
)
