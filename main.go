package main

import (
	"context"
	"errors"
	"log" // Use standard log only for initial fatal errors before logger is set up
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gridBot/config"
	"gridBot/internal/adapters/binanceclient"
	"gridBot/internal/adapters/journal"
	"gridBot/internal/adapters/logger"
	"gridBot/internal/adapters/sqlite"
	"gridBot/internal/adapters/vault"
	"gridBot/internal/app"
	"gridBot/internal/ports"
	"gridBot/internal/strategy"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger := logger.New(logger.Config{
		Level:      cfg.LogLevel,
		Output:     cfg.LogOutput,
		File:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAgeDays: cfg.LogMaxAgeDays,
		Compress:   cfg.LogCompress,
	})
	defer appLogger.Sync()
	ctx := context.Background()
	appLogger.Info(ctx, "Logger initialized", map[string]interface{}{"level": cfg.LogLevel, "output": cfg.LogOutput})

	// 3. Initialize Repository (Database Adapter)
	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize database repository")
		log.Fatalf("FATAL: Failed to initialize database repository: %v", err) // Also log to stderr
	}
	defer func() {
		if err := repo.Close(); err != nil {
			appLogger.Error(ctx, err, "Error closing database repository")
		}
	}()

	// 4. Initialize Exchange Factory (Binance Adapter)
	var credentials *vault.Vault
	if cfg.CredentialsKey != "" {
		credentials, err = vault.New(cfg.CredentialsKey)
		if err != nil {
			appLogger.Error(ctx, err, "FATAL: Failed to initialize credentials vault")
			log.Fatalf("FATAL: Failed to initialize credentials vault: %v", err)
		}
	} else {
		appLogger.Warn(ctx, "CREDENTIALS_KEY is empty. Bots with API keys cannot start.")
	}

	factoryCfg := binanceclient.FactoryConfig{
		TestnetURL:           cfg.BinanceTestnetURL,
		RateLimitPerSecond:   cfg.RateLimitPerSecond,
		ReconnectDelay:       cfg.ReconnectDelay,
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
	}
	if cfg.PriceFeed == config.PriceFeedPoll {
		factoryCfg.PollInterval = cfg.PricePollInterval
	}
	exchanges, err := binanceclient.NewFactory(credentials, appLogger, factoryCfg)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize exchange factory")
		log.Fatalf("FATAL: Failed to initialize exchange factory: %v", err)
	}

	// 5. Initialize Supervisor
	botJournal := journal.New(repo, appLogger)
	supervisor, err := app.NewSupervisor(app.Dependencies{
		Repo:      repo,
		Exchanges: exchanges,
		Strategy:  strategy.NewGrid(),
		Logs:      botJournal.Logs(),
		Alerts:    botJournal.Alerts(),
		Logger:    appLogger,
	}, app.EngineConfig{
		HeartbeatInterval: cfg.HeartbeatInterval,
		ExchangeTimeout:   cfg.ExchangeTimeout,
		MinTradeSize:      cfg.MinTradeSize,
		QuoteAsset:        cfg.QuoteAsset,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize supervisor")
		log.Fatalf("FATAL: Failed to initialize supervisor: %v", err)
	}

	// 6. Metrics endpoint
	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			appLogger.Info(ctx, "Metrics server listening", map[string]interface{}{"addr": cfg.MetricsAddr})
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				appLogger.Error(ctx, err, "Metrics server failed")
			}
		}()
	}

	// 7. Restore bots that were running before the last shutdown
	if err := supervisor.Initialize(ctx); err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to restore running bots")
		log.Fatalf("FATAL: Failed to restore running bots: %v", err)
	}
	appLogger.Info(ctx, "Grid bot supervisor running", map[string]interface{}{"bots": supervisor.RunningCount()})

	// 8. Apply status changes and close requests written by botctl
	reconcileCtx, stopReconcile := context.WithCancel(ctx)
	reconcileDone := make(chan struct{})
	go func() {
		defer close(reconcileDone)
		runReconciler(reconcileCtx, supervisor, cfg.ReconcileInterval, appLogger)
	}()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	appLogger.Info(ctx, "Shutdown signal received", map[string]interface{}{"signal": sig.String()})
	stopReconcile()
	<-reconcileDone

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := supervisor.StopAll(shutdownCtx); err != nil {
		appLogger.Error(ctx, err, "Some bots did not stop cleanly")
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			appLogger.Error(ctx, err, "Metrics server shutdown failed")
		}
	}

	appLogger.Info(ctx, "Application finished gracefully.")
}

// runReconciler calls Reconcile every interval until ctx is canceled.
func runReconciler(ctx context.Context, supervisor *app.Supervisor, interval time.Duration, appLogger ports.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := supervisor.Reconcile(ctx); err != nil && ctx.Err() == nil {
				appLogger.Warn(ctx, "Reconcile pass failed", map[string]interface{}{"error": err.Error()})
			}
		}
	}
}
