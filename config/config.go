package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Price feed transports.
const (
	PriceFeedStream = "stream"
	PriceFeedPoll   = "poll"
)

// Config holds all application configuration.
type Config struct {
	// Database
	DBPath string

	// Logging
	LogLevel      string
	LogOutput     string // console, file or both
	LogFile       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
	LogCompress   bool

	// Engine
	HeartbeatInterval time.Duration
	ExchangeTimeout   time.Duration
	MinTradeSize      float64 // minimum quote value per trade
	QuoteAsset        string

	// Exchange connection
	PriceFeed            string
	PricePollInterval    time.Duration
	ReconnectDelay       time.Duration
	MaxReconnectAttempts int
	RateLimitPerSecond   float64
	BinanceTestnetURL    string

	// Credentials
	CredentialsKey string // vault passphrase, empty disables keyed bots

	// Process
	MetricsAddr       string // empty disables the metrics endpoint
	ShutdownTimeout   time.Duration
	ReconcileInterval time.Duration // how often persisted statuses are applied to engines
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string // Collect validation errors

	// Database
	cfg.DBPath = getEnv("DB_PATH", "./data/grid_bot.db")

	// Logging
	cfg.LogLevel = getEnv("LOG_LEVEL", "INFO")
	cfg.LogOutput = strings.ToLower(getEnv("LOG_OUTPUT", "console"))
	switch cfg.LogOutput {
	case "console", "file", "both":
	default:
		errs = append(errs, "LOG_OUTPUT must be one of console, file, both")
	}
	cfg.LogFile = getEnv("LOG_FILE", "./logs/grid_bot.log")
	if cfg.LogOutput != "console" && cfg.LogFile == "" {
		errs = append(errs, "LOG_FILE must be set when logging to a file")
	}
	cfg.LogMaxSizeMB = getEnvAsInt("LOG_MAX_SIZE_MB", 100)
	cfg.LogMaxBackups = getEnvAsInt("LOG_MAX_BACKUPS", 5)
	cfg.LogMaxAgeDays = getEnvAsInt("LOG_MAX_AGE_DAYS", 30)
	cfg.LogCompress = getEnvAsBool("LOG_COMPRESS", true)

	// Engine
	heartbeatSeconds, err := getEnvAsIntRequired("HEARTBEAT_INTERVAL_SECONDS", 30)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid HEARTBEAT_INTERVAL_SECONDS: %v", err))
	} else if heartbeatSeconds <= 0 {
		errs = append(errs, "HEARTBEAT_INTERVAL_SECONDS must be positive")
	}
	cfg.HeartbeatInterval = time.Duration(heartbeatSeconds) * time.Second

	timeoutSeconds, err := getEnvAsIntRequired("EXCHANGE_TIMEOUT_SECONDS", 30)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid EXCHANGE_TIMEOUT_SECONDS: %v", err))
	} else if timeoutSeconds <= 0 {
		errs = append(errs, "EXCHANGE_TIMEOUT_SECONDS must be positive")
	}
	cfg.ExchangeTimeout = time.Duration(timeoutSeconds) * time.Second

	cfg.MinTradeSize, err = getEnvAsFloatRequired("MIN_TRADE_SIZE", 1.10)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MIN_TRADE_SIZE: %v", err))
	} else if cfg.MinTradeSize <= 0 {
		errs = append(errs, "MIN_TRADE_SIZE must be positive")
	}

	cfg.QuoteAsset = strings.ToUpper(getEnv("QUOTE_ASSET", "USDT"))

	// Exchange connection
	cfg.PriceFeed = strings.ToLower(getEnv("PRICE_FEED", PriceFeedStream))
	if cfg.PriceFeed != PriceFeedStream && cfg.PriceFeed != PriceFeedPoll {
		errs = append(errs, "PRICE_FEED must be 'stream' or 'poll'")
	}

	pollSeconds, err := getEnvAsIntRequired("PRICE_POLL_INTERVAL_SECONDS", 5)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid PRICE_POLL_INTERVAL_SECONDS: %v", err))
	} else if pollSeconds <= 0 {
		errs = append(errs, "PRICE_POLL_INTERVAL_SECONDS must be positive")
	}
	cfg.PricePollInterval = time.Duration(pollSeconds) * time.Second

	reconnectDelaySeconds := getEnvAsInt("RECONNECT_DELAY_SECONDS", 5)
	if reconnectDelaySeconds <= 0 {
		errs = append(errs, "RECONNECT_DELAY_SECONDS must be positive")
	}
	cfg.ReconnectDelay = time.Duration(reconnectDelaySeconds) * time.Second

	cfg.MaxReconnectAttempts = getEnvAsInt("MAX_RECONNECT_ATTEMPTS", 10)
	if cfg.MaxReconnectAttempts < 0 {
		errs = append(errs, "MAX_RECONNECT_ATTEMPTS cannot be negative")
	}

	cfg.RateLimitPerSecond, err = getEnvAsFloatRequired("EXCHANGE_RATE_LIMIT_PER_SECOND", 10)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid EXCHANGE_RATE_LIMIT_PER_SECOND: %v", err))
	} else if cfg.RateLimitPerSecond < 0 {
		errs = append(errs, "EXCHANGE_RATE_LIMIT_PER_SECOND cannot be negative")
	}

	cfg.BinanceTestnetURL = getEnv("BINANCE_TESTNET_URL", "https://testnet.binance.vision")

	// Credentials
	cfg.CredentialsKey = getEnv("CREDENTIALS_KEY", "")

	// Process
	cfg.MetricsAddr = getEnv("METRICS_ADDR", "")
	shutdownSeconds, err := getEnvAsIntRequired("SHUTDOWN_TIMEOUT_SECONDS", 30)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid SHUTDOWN_TIMEOUT_SECONDS: %v", err))
	} else if shutdownSeconds <= 0 {
		errs = append(errs, "SHUTDOWN_TIMEOUT_SECONDS must be positive")
	}
	cfg.ShutdownTimeout = time.Duration(shutdownSeconds) * time.Second

	reconcileSeconds, err := getEnvAsIntRequired("RECONCILE_INTERVAL_SECONDS", 5)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid RECONCILE_INTERVAL_SECONDS: %v", err))
	} else if reconcileSeconds <= 0 {
		errs = append(errs, "RECONCILE_INTERVAL_SECONDS must be positive")
	}
	cfg.ReconcileInterval = time.Duration(reconcileSeconds) * time.Second

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsIntRequired(key string, defaultValue int) (int, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		// Use default if env var is not set at all
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		// Return error if env var is set but invalid
		return 0, fmt.Errorf("invalid integer value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsFloatRequired(key string, defaultValue float64) (float64, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
