package binanceclient

import (
	"context"
	"fmt"
	"time"

	"gridBot/internal/adapters/pricefeed"
	"gridBot/internal/adapters/vault"
	"gridBot/internal/domain"
	"gridBot/internal/ports"
)

// FactoryConfig holds the process-wide settings applied to every gateway.
type FactoryConfig struct {
	ProductionURL        string // empty selects the public spot endpoint
	TestnetURL           string // empty selects the public spot testnet
	RateLimitPerSecond   float64
	ReconnectDelay       time.Duration
	MaxReconnectAttempts int
	PollInterval         time.Duration // > 0 replaces the WebSocket feed with polling
}

// Factory builds one gateway per bot, implementing ports.ExchangeFactory.
type Factory struct {
	vault  *vault.Vault // nil when no credentials passphrase is configured
	logger ports.Logger
	cfg    FactoryConfig
}

// NewFactory creates a gateway factory. v may be nil; bots with credentials
// then fail to start.
func NewFactory(v *vault.Vault, logger ports.Logger, cfg FactoryConfig) (*Factory, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required for Binance factory")
	}
	if cfg.ProductionURL == "" {
		cfg.ProductionURL = baseURLProduction
	}
	if cfg.TestnetURL == "" {
		cfg.TestnetURL = baseURLTestnet
	}
	return &Factory{vault: v, logger: logger, cfg: cfg}, nil
}

// NewGateway opens the bot credentials and selects the endpoint by mode: DEMO
// bots with keys talk to the testnet, everything else to production.
func (f *Factory) NewGateway(ctx context.Context, bot *domain.Bot) (ports.ExchangeGateway, error) {
	var creds vault.Credentials
	if bot.HasCredentials() {
		if f.vault == nil {
			return nil, fmt.Errorf("bot %s: %w: no credentials key configured", bot.ID, ports.ErrCredentials)
		}
		var err error
		creds, err = f.vault.Open(bot.Credentials)
		if err != nil {
			return nil, fmt.Errorf("bot %s: %w", bot.ID, err)
		}
	}

	baseURL := f.cfg.ProductionURL
	if bot.Mode == domain.ModeDemo && bot.HasCredentials() {
		baseURL = f.cfg.TestnetURL
	}

	client, err := New(Config{
		APIKey:               creds.APIKey,
		SecretKey:            creds.APISecret,
		BaseURL:              baseURL,
		Logger:               f.logger,
		RateLimitPerSecond:   f.cfg.RateLimitPerSecond,
		ReconnectDelay:       f.cfg.ReconnectDelay,
		MaxReconnectAttempts: f.cfg.MaxReconnectAttempts,
	})
	if err != nil {
		return nil, err
	}
	f.logger.Debug(ctx, "Exchange gateway created", map[string]interface{}{"botID": bot.ID, "mode": bot.Mode, "baseURL": baseURL})

	if f.cfg.PollInterval > 0 {
		return pricefeed.Wrap(client, f.cfg.PollInterval, f.logger), nil
	}
	return client, nil
}

var _ ports.ExchangeFactory = (*Factory)(nil)
