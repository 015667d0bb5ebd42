package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"gridBot/internal/domain"
	"gridBot/internal/metrics"
	"gridBot/internal/ports"
	"gridBot/internal/risk"
)

const (
	defaultHeartbeatInterval = 30 * time.Second
	defaultExchangeTimeout   = 30 * time.Second
	defaultQuoteAsset        = "USDT"
)

// Dependencies are the collaborators shared by every engine of the process.
type Dependencies struct {
	Repo      ports.BotRepository
	Exchanges ports.ExchangeFactory
	Strategy  ports.Strategy
	Logs      ports.LogSink
	Alerts    ports.AlertSink
	Logger    ports.Logger
}

// EngineConfig tunes engine timing and trade sizing. Zero values take defaults.
type EngineConfig struct {
	HeartbeatInterval time.Duration
	ExchangeTimeout   time.Duration
	MinTradeSize      float64
	QuoteAsset        string // used when the symbol carries no "/QUOTE" suffix
	Clock             func() time.Time
}

func (c EngineConfig) withDefaults() EngineConfig {
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = defaultHeartbeatInterval
	}
	if c.ExchangeTimeout <= 0 {
		c.ExchangeTimeout = defaultExchangeTimeout
	}
	if c.MinTradeSize <= 0 {
		c.MinTradeSize = risk.DefaultMinTradeSize
	}
	if c.QuoteAsset == "" {
		c.QuoteAsset = defaultQuoteAsset
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	return c
}

// session is the runtime view of one RUNNING period of an engine.
type session struct {
	symbol  string
	gateway ports.ExchangeGateway
	risk    *risk.RiskManager
	sub     ports.Subscription

	cancel        context.CancelFunc
	heartbeatDone chan struct{}
}

// BotEngine drives one bot: it reacts to price ticks, evaluates exits and
// entries, submits orders and persists the outcome.
type BotEngine struct {
	botID  string
	deps   Dependencies
	cfg    EngineConfig
	logger ports.Logger

	lifecycle sync.Mutex // serialises Start and Stop
	session   atomic.Pointer[session]
	running   atomic.Bool
	executing atomic.Bool

	// onStop is invoked after every effective stop, including self-stops.
	onStop func(botID string, e *BotEngine)
}

// NewBotEngine creates an engine for botID. The engine is idle until Start.
func NewBotEngine(botID string, deps Dependencies, cfg EngineConfig) (*BotEngine, error) {
	if botID == "" {
		return nil, fmt.Errorf("bot id is required: %w", ports.ErrInvalidRequest)
	}
	if deps.Repo == nil || deps.Exchanges == nil || deps.Strategy == nil ||
		deps.Logs == nil || deps.Alerts == nil || deps.Logger == nil {
		return nil, fmt.Errorf("missing required dependencies for BotEngine")
	}

	return &BotEngine{
		botID:  botID,
		deps:   deps,
		cfg:    cfg.withDefaults(),
		logger: deps.Logger,
	}, nil
}

// BotID returns the id of the bot driven by this engine.
func (e *BotEngine) BotID() string {
	return e.botID
}

// IsRunning reports whether the engine accepts ticks.
func (e *BotEngine) IsRunning() bool {
	return e.running.Load()
}

// IsBusy reports whether a tick or manual close is being evaluated.
func (e *BotEngine) IsBusy() bool {
	return e.executing.Load()
}

// Start loads the bot, connects to the exchange, marks the bot RUNNING and
// subscribes to its price stream. Starting a running engine is a no-op.
func (e *BotEngine) Start(ctx context.Context) error {
	op := "Start"
	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()

	if e.running.Load() {
		return nil
	}

	bot, err := e.deps.Repo.GetBot(ctx, e.botID)
	if err != nil {
		e.logger.Error(ctx, err, op+": Failed to load bot", ports.Fields{"botID": e.botID})
		return fmt.Errorf("load bot %s: %w", e.botID, err)
	}

	rm := risk.NewRiskManagerWithClock(risk.RiskConfig{
		StopLossPercent:     bot.StopLossPercent,
		TakeProfitPercent:   bot.TakeProfitPercent,
		TrailingStopPercent: bot.TrailingStopPercent,
		MaxPositions:        bot.MaxPositions,
		MaxDailyLoss:        bot.MaxDailyLoss,
		MinTradeSize:        e.cfg.MinTradeSize,
	}, e.cfg.Clock)

	gateway, err := e.deps.Exchanges.NewGateway(ctx, bot)
	if err != nil {
		e.logError(ctx, "Failed to initialise exchange client: %v", err)
		return fmt.Errorf("create exchange gateway for bot %s: %w", e.botID, err)
	}

	if bot.HasCredentials() {
		vctx, cancel := e.exchangeContext(ctx)
		ok := gateway.ValidateConnection(vctx)
		cancel()
		if !ok {
			e.logError(ctx, "Failed to connect to exchange")
			return fmt.Errorf("validate connection for bot %s: %w", e.botID, ports.ErrConnectionFailed)
		}
		e.logInfo(ctx, "Connected to %s mode successfully", bot.Mode)
	} else {
		e.logWarning(ctx, "No API keys configured - public data only")
	}

	running := domain.BotRunning
	if err := e.deps.Repo.UpdateBot(ctx, e.botID, ports.BotUpdate{Status: &running}); err != nil {
		e.logger.Error(ctx, err, op+": Failed to persist RUNNING status", ports.Fields{"botID": e.botID})
		return fmt.Errorf("mark bot %s running: %w", e.botID, err)
	}

	sctx, cancel := context.WithCancel(context.Background())
	s := &session{
		symbol:        bot.Symbol,
		gateway:       gateway,
		risk:          rm,
		cancel:        cancel,
		heartbeatDone: make(chan struct{}),
	}
	e.session.Store(s)
	e.running.Store(true)

	sub, err := gateway.SubscribePriceStream(sctx, bot.Symbol, e.handlePrice)
	if err != nil {
		e.running.Store(false)
		e.session.Store(nil)
		cancel()
		close(s.heartbeatDone)

		stopped := domain.BotStopped
		if uerr := e.deps.Repo.UpdateBot(ctx, e.botID, ports.BotUpdate{Status: &stopped}); uerr != nil {
			e.logger.Error(ctx, uerr, op+": Failed to revert status after subscription failure", ports.Fields{"botID": e.botID})
		}
		e.logError(ctx, "Failed to subscribe to %s price stream: %v", bot.Symbol, err)
		if !errors.Is(err, ports.ErrConnectionFailed) {
			err = fmt.Errorf("%w: %w", ports.ErrConnectionFailed, err)
		}
		return fmt.Errorf("subscribe price stream for bot %s: %w", e.botID, err)
	}
	s.sub = sub

	go e.heartbeat(sctx, s.heartbeatDone)

	e.logInfo(ctx, "Bot starting in %s mode for %s", bot.Mode, bot.Symbol)
	e.logger.Info(ctx, op+": Engine started", ports.Fields{"botID": e.botID, "symbol": bot.Symbol, "mode": bot.Mode})
	return nil
}

// Stop closes the price subscription, ends the heartbeat and persists the
// session runtime with status STOPPED. Stopping an idle engine is a no-op.
// An in-flight tick is not interrupted.
func (e *BotEngine) Stop(ctx context.Context) error {
	op := "Stop"
	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()

	s := e.session.Load()
	if s == nil {
		return nil
	}
	e.running.Store(false)
	e.session.Store(nil)

	s.cancel()
	<-s.heartbeatDone
	if s.sub != nil {
		if err := s.sub.Close(); err != nil {
			e.logger.Warn(ctx, op+": Failed to close price subscription", ports.Fields{"botID": e.botID, "error": err.Error()})
		}
	}

	defer func() {
		if e.onStop != nil {
			e.onStop(e.botID, e)
		}
	}()

	stopped := domain.BotStopped
	upd := ports.BotUpdate{Status: &stopped, ClearStartedAt: true}
	bot, err := e.deps.Repo.GetBot(ctx, e.botID)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			e.logger.Warn(ctx, op+": Bot removed while running", ports.Fields{"botID": e.botID})
			return nil
		}
		e.logger.Error(ctx, err, op+": Failed to load bot for runtime accounting", ports.Fields{"botID": e.botID})
	} else if bot.StartedAt != nil {
		if elapsed := e.cfg.Clock().Sub(*bot.StartedAt); elapsed > 0 {
			upd.AddRuntimeSeconds = int64(elapsed / time.Second)
		}
	}

	if err := e.deps.Repo.UpdateBot(ctx, e.botID, upd); err != nil {
		e.logger.Error(ctx, err, op+": Failed to persist STOPPED status", ports.Fields{"botID": e.botID})
		return fmt.Errorf("mark bot %s stopped: %w", e.botID, err)
	}

	e.logInfo(ctx, "Bot stopped")
	e.logger.Info(ctx, op+": Engine stopped", ports.Fields{"botID": e.botID, "sessionSeconds": upd.AddRuntimeSeconds})
	return nil
}

// WaitIdle blocks until no tick is being evaluated or ctx is done.
func (e *BotEngine) WaitIdle(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for e.executing.Load() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// handlePrice is the stream callback. It never blocks the transport: the tick
// is evaluated on its own goroutine, or dropped if one is still in flight.
func (e *BotEngine) handlePrice(price float64) {
	if !e.running.Load() {
		return
	}
	s := e.session.Load()
	if s == nil {
		return
	}
	if !e.executing.CompareAndSwap(false, true) {
		metrics.TicksDropped.WithLabelValues(s.symbol).Inc()
		return
	}
	go func() {
		defer e.executing.Store(false)
		e.processTick(price)
	}()
}

// OnPriceUpdate evaluates one tick synchronously. It returns false when the
// tick was dropped because the engine is stopped or already busy.
func (e *BotEngine) OnPriceUpdate(price float64) bool {
	if !e.running.Load() {
		return false
	}
	if !e.executing.CompareAndSwap(false, true) {
		if s := e.session.Load(); s != nil {
			metrics.TicksDropped.WithLabelValues(s.symbol).Inc()
		}
		return false
	}
	defer e.executing.Store(false)
	e.processTick(price)
	return true
}

func (e *BotEngine) processTick(price float64) {
	op := "processTick"
	s := e.session.Load()
	if s == nil || !e.running.Load() {
		return
	}
	ctx := context.Background()
	started := time.Now()
	defer metrics.ObserveTick(s.symbol, started)

	bot, positions, err := e.deps.Repo.GetBotWithOpenPositions(ctx, e.botID)
	if err != nil && !errors.Is(err, ports.ErrNotFound) {
		e.logger.Error(ctx, err, op+": Failed to load bot state", ports.Fields{"botID": e.botID})
		e.logError(ctx, "Strategy execution error: %v", err)
		return
	}
	if bot == nil || !bot.Active {
		e.logWarning(ctx, "Bot is inactive or removed, stopping engine")
		if err := e.Stop(ctx); err != nil {
			e.logger.Error(ctx, err, op+": Self-stop failed", ports.Fields{"botID": e.botID})
		}
		return
	}

	if price > bot.HighestPriceSeen {
		bot.HighestPriceSeen = price
		if err := e.deps.Repo.UpdateBot(ctx, e.botID, ports.BotUpdate{HighestPriceSeen: &price}); err != nil {
			e.logger.Error(ctx, err, op+": Failed to persist highest price", ports.Fields{"botID": e.botID, "price": price})
		}
	}

	// Entry decisions use the positions open at tick start.
	openCount := len(positions)
	var lastEntry *float64
	if openCount > 0 {
		entry := positions[openCount-1].EntryPrice
		lastEntry = &entry
	}

	for _, pos := range positions {
		reason, triggered := e.exitReason(s, bot, pos, price)
		if !triggered {
			continue
		}
		e.announceExit(ctx, pos, price, reason)

		halted, err := e.sell(ctx, s, bot, pos, price, reason)
		if err != nil {
			e.logger.Warn(ctx, op+": Sell aborted", ports.Fields{"botID": e.botID, "positionID": pos.ID, "reason": reason, "error": err.Error()})
		}
		if halted {
			return
		}
	}

	if e.deps.Strategy.ShouldBuy(price, lastEntry, bot.BuyDropPercent) {
		if lastEntry == nil {
			e.logInfo(ctx, "Initial buy triggered for %s at market price to start trading session", bot.Symbol)
		}
		if err := e.buy(ctx, s, bot, openCount, price); err != nil {
			e.logger.Debug(ctx, op+": Buy skipped", ports.Fields{"botID": e.botID, "reason": err.Error()})
		}
	}

	if err := e.deps.Repo.UpdateBot(ctx, e.botID, ports.BotUpdate{LastPrice: &price}); err != nil {
		e.logger.Error(ctx, err, op+": Failed to persist last price", ports.Fields{"botID": e.botID, "price": price})
	}
}

// exitReason applies the exit checks in priority order.
func (e *BotEngine) exitReason(s *session, bot *domain.Bot, pos *domain.Position, price float64) (domain.CloseReason, bool) {
	switch {
	case s.risk.ShouldStopLoss(price, pos.EntryPrice):
		return domain.CloseReasonStopLoss, true
	case s.risk.ShouldTakeProfit(price, pos.EntryPrice):
		return domain.CloseReasonTakeProfit, true
	case s.risk.ShouldTrailingStop(price, bot.HighestPriceSeen):
		return domain.CloseReasonTrailingStop, true
	case e.deps.Strategy.ShouldSell(price, pos.EntryPrice, bot.SellProfitPercent):
		return domain.CloseReasonGridSell, true
	}
	return "", false
}

func (e *BotEngine) announceExit(ctx context.Context, pos *domain.Position, price float64, reason domain.CloseReason) {
	pnl := pos.UnrealizedPNL(price)
	switch reason {
	case domain.CloseReasonStopLoss:
		e.logWarning(ctx, "Stop loss triggered for position %s at %.2f", pos.ID, price)
		e.alert(ctx, domain.AlertStopLoss, "Stop loss triggered at $%.2f. Loss: $%.2f", price, pnl)
	case domain.CloseReasonTakeProfit:
		e.logInfo(ctx, "Take profit triggered for position %s at %.2f", pos.ID, price)
		e.alert(ctx, domain.AlertTakeProfit, "Take profit triggered at $%.2f. Profit: $%.2f", price, pnl)
	case domain.CloseReasonTrailingStop:
		e.logInfo(ctx, "Trailing stop triggered for position %s", pos.ID)
		e.alert(ctx, domain.AlertTrailingStop, "Trailing stop triggered at $%.2f", price)
	case domain.CloseReasonGridSell:
		e.logInfo(ctx, "Grid sell triggered for position %s at %.2f (Profit target reached)", pos.ID, price)
	}
}

// buy sizes, validates, executes (REAL only) and records one entry.
func (e *BotEngine) buy(ctx context.Context, s *session, bot *domain.Bot, openCount int, price float64) error {
	op := "buy"
	if !s.risk.CanOpenPosition(openCount) {
		e.logWarning(ctx, "Position limit reached (%d/%d)", openCount, bot.MaxPositions)
		e.alert(ctx, domain.AlertPositionLimit, "Maximum positions (%d) reached", bot.MaxPositions)
		return fmt.Errorf("position limit %d reached: %w", bot.MaxPositions, ports.ErrRiskLimitBreach)
	}
	if bot.IsReal() && !bot.HasCredentials() {
		e.logError(ctx, "Trade failed: REAL mode requires API credentials")
		e.alert(ctx, domain.AlertError, "Failed to execute buy order: no API credentials configured")
		return fmt.Errorf("real buy without credentials: %w", ports.ErrCredentials)
	}

	available := bot.Capital
	if bot.HasCredentials() {
		bctx, cancel := e.exchangeContext(ctx)
		balances, err := s.gateway.GetBalance(bctx)
		cancel()
		if err != nil {
			e.logError(ctx, "Failed to verify exchange balance: %v", err)
		} else if b, ok := balances[quoteAsset(bot.Symbol, e.cfg.QuoteAsset)]; ok {
			available = b.Free
		}
	}

	tradeValue := bot.Capital * bot.BuyPercentage / 100
	if tradeValue > available {
		if available < s.risk.MinTradeSize() {
			e.logError(ctx, "Insufficient balance ($%.2f) to open new position even at minimum size.", available)
			return fmt.Errorf("available $%.2f below minimum: %w", available, ports.ErrInsufficientFunds)
		}
		e.logWarning(ctx, "Available balance ($%.2f) is less than target trade size ($%.2f). Using remaining balance instead.", available, tradeValue)
		tradeValue = available
	}
	if err := s.risk.ValidateTradeSize(tradeValue, available); err != nil {
		e.logWarning(ctx, "Trade validation failed: %v", err)
		return err
	}

	amount := e.deps.Strategy.PositionSize(tradeValue/(bot.BuyPercentage/100), bot.BuyPercentage, price)

	pctx, cancel := e.exchangeContext(ctx)
	rounded, err := s.gateway.AmountToPrecision(pctx, bot.Symbol, amount)
	cancel()
	switch {
	case err != nil && bot.IsReal():
		e.logError(ctx, "Trade failed: cannot round amount to exchange precision: %v", err)
		e.alert(ctx, domain.AlertError, "Failed to execute buy order: %v", err)
		return fmt.Errorf("round amount: %w", err)
	case err != nil:
		e.logger.Warn(ctx, op+": Precision rounding failed, using raw amount", ports.Fields{"botID": e.botID, "amount": amount, "error": err.Error()})
	default:
		amount = rounded
	}
	if err := s.risk.ValidateTradeSize(amount*price, available); err != nil {
		e.logWarning(ctx, "Trade validation failed: %v", err)
		return err
	}

	execPrice := price
	var orderID *string
	if bot.IsReal() {
		e.logInfo(ctx, "Executing %s BUY order: %g %s (Value: $%.2f)", bot.Mode, amount, bot.Symbol, amount*price)
		octx, cancel := e.exchangeContext(ctx)
		res, err := s.gateway.CreateOrder(octx, ports.OrderRequest{
			Symbol: bot.Symbol,
			Type:   ports.OrderTypeMarket,
			Side:   domain.Buy,
			Amount: amount,
		})
		cancel()
		metrics.RecordOrder(string(domain.Buy), err)
		if err != nil {
			e.logger.Error(ctx, err, op+": Buy order failed", ports.Fields{"botID": e.botID, "amount": amount})
			e.logError(ctx, "Trade failed: %v", err)
			e.alert(ctx, domain.AlertError, "Failed to execute buy order: %v", err)
			return fmt.Errorf("buy order: %w", err)
		}
		id := res.ID
		orderID = &id
		execPrice = res.FillPrice(price)
		if res.ExecutedQty > 0 {
			amount = res.ExecutedQty
		}
		e.logInfo(ctx, "Order executed successfully. Order ID: %s", id)
	}

	now := e.cfg.Clock().UTC()
	total := amount * execPrice
	err = e.deps.Repo.RunInTransaction(ctx, func(tx ports.Tx) error {
		if err := tx.CreatePosition(ctx, &domain.Position{
			BotID:      bot.ID,
			Symbol:     bot.Symbol,
			Amount:     amount,
			EntryPrice: execPrice,
			Status:     domain.StatusOpen,
			CreatedAt:  now,
		}); err != nil {
			return err
		}
		if err := tx.CreateTrade(ctx, &domain.Trade{
			BotID:     bot.ID,
			Symbol:    bot.Symbol,
			Side:      domain.Buy,
			Amount:    amount,
			Price:     execPrice,
			Total:     total,
			OrderID:   orderID,
			Timestamp: now,
		}); err != nil {
			return err
		}
		return tx.IncrementBotCounters(ctx, bot.ID, ports.BotCounters{Buys: 1})
	})
	if err != nil {
		e.recordPersistenceFailure(ctx, domain.Buy, orderID, err)
		return fmt.Errorf("record buy: %w", err)
	}

	metrics.TradesRecorded.WithLabelValues(bot.Symbol, string(domain.Buy), string(bot.Mode)).Inc()
	e.logInfo(ctx, "[%s] Bought %.6f %s at $%.2f (Total: $%.2f)", bot.Mode, amount, bot.Symbol, execPrice, total)
	return nil
}

// sell closes pos. halted is true when the daily loss limit stopped the engine.
func (e *BotEngine) sell(ctx context.Context, s *session, bot *domain.Bot, pos *domain.Position, price float64, reason domain.CloseReason) (halted bool, err error) {
	op := "sell"
	if bot.IsReal() && !bot.HasCredentials() {
		e.logError(ctx, "Real sell order failed: no API credentials configured")
		e.alert(ctx, domain.AlertError, "Failed to execute sell order: no API credentials configured")
		return false, fmt.Errorf("real sell without credentials: %w", ports.ErrCredentials)
	}

	execPrice := price
	var orderID *string
	if bot.IsReal() {
		e.logInfo(ctx, "Executing REAL SELL order: %g %s at $%.2f (%s)", pos.Amount, bot.Symbol, price, reason)
		octx, cancel := e.exchangeContext(ctx)
		res, err := s.gateway.CreateOrder(octx, ports.OrderRequest{
			Symbol: bot.Symbol,
			Type:   ports.OrderTypeMarket,
			Side:   domain.Sell,
			Amount: pos.Amount,
		})
		cancel()
		metrics.RecordOrder(string(domain.Sell), err)
		if err != nil {
			e.logger.Error(ctx, err, op+": Sell order failed", ports.Fields{"botID": e.botID, "positionID": pos.ID, "reason": reason})
			e.logError(ctx, "Real sell order failed: %v", err)
			e.alert(ctx, domain.AlertError, "Failed to execute sell order: %v", err)
			return false, fmt.Errorf("sell order: %w", err)
		}
		id := res.ID
		orderID = &id
		execPrice = res.FillPrice(price)
		e.logInfo(ctx, "Real sell order executed successfully. Order ID: %s", id)
	}

	profit := (execPrice - pos.EntryPrice) * pos.Amount
	now := e.cfg.Clock().UTC()
	txErr := e.deps.Repo.RunInTransaction(ctx, func(tx ports.Tx) error {
		if err := tx.ClosePosition(ctx, pos.ID, execPrice, profit); err != nil {
			return err
		}
		if err := tx.CreateTrade(ctx, &domain.Trade{
			BotID:     bot.ID,
			Symbol:    bot.Symbol,
			Side:      domain.Sell,
			Amount:    pos.Amount,
			Price:     execPrice,
			Total:     pos.Amount * execPrice,
			Profit:    &profit,
			OrderID:   orderID,
			Timestamp: now,
		}); err != nil {
			return err
		}
		return tx.IncrementBotCounters(ctx, bot.ID, ports.BotCounters{Sells: 1, Profit: profit})
	})
	if txErr != nil {
		e.recordPersistenceFailure(ctx, domain.Sell, orderID, txErr)
		err = fmt.Errorf("record sell: %w", txErr)
	} else {
		metrics.TradesRecorded.WithLabelValues(bot.Symbol, string(domain.Sell), string(bot.Mode)).Inc()
		metrics.RealizedPnL.WithLabelValues(bot.Symbol).Add(profit)
		e.logInfo(ctx, "[%s] Sold %.6f %s at $%.2f (%s) - Profit: $%.2f", bot.Mode, pos.Amount, bot.Symbol, execPrice, reason, profit)
	}

	// A loss counts once it happened on the exchange or in the books.
	executed := orderID != nil || txErr == nil
	if profit < 0 && executed && !s.risk.RecordLoss(profit) {
		e.logError(ctx, "Daily loss limit reached - stopping bot")
		e.alert(ctx, domain.AlertDailyLossLimit, "Daily loss limit reached. Bot stopped. Loss: $%.2f", s.risk.DailyLoss())
		if stopErr := e.Stop(ctx); stopErr != nil {
			e.logger.Error(ctx, stopErr, op+": Failed to stop after daily loss limit", ports.Fields{"botID": e.botID})
		}
		return true, err
	}
	return false, err
}

// ClosePosition sells one OPEN position of this bot at the current ticker
// price. It fails with ErrEngineBusy while a tick is being evaluated.
func (e *BotEngine) ClosePosition(ctx context.Context, positionID string) error {
	s := e.session.Load()
	if s == nil || !e.running.Load() {
		return fmt.Errorf("close position %s: %w", positionID, ports.ErrNotRunning)
	}
	if !e.executing.CompareAndSwap(false, true) {
		return fmt.Errorf("close position %s: %w", positionID, ports.ErrEngineBusy)
	}
	defer e.executing.Store(false)

	bot, err := e.deps.Repo.GetBot(ctx, e.botID)
	if err != nil {
		return fmt.Errorf("load bot %s: %w", e.botID, err)
	}
	pos, err := e.deps.Repo.GetPosition(ctx, positionID)
	if err != nil {
		return fmt.Errorf("load position %s: %w", positionID, err)
	}
	if pos.BotID != e.botID || !pos.IsOpen() {
		return fmt.Errorf("open position %s of bot %s: %w", positionID, e.botID, ports.ErrNotFound)
	}

	tctx, cancel := e.exchangeContext(ctx)
	ticker, err := s.gateway.GetTicker(tctx, bot.Symbol)
	cancel()
	if err != nil {
		e.logError(ctx, "Manual close failed: cannot fetch price: %v", err)
		return fmt.Errorf("fetch ticker %s: %w", bot.Symbol, err)
	}

	e.logInfo(ctx, "Manual close requested for position %s at %.2f", positionID, ticker.Last)
	_, err = e.sell(ctx, s, bot, pos, ticker.Last, domain.CloseReasonManual)
	return err
}

func (e *BotEngine) heartbeat(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(e.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := e.cfg.Clock().UTC()
			hctx, cancel := context.WithTimeout(ctx, e.cfg.ExchangeTimeout)
			err := e.deps.Repo.UpdateBot(hctx, e.botID, ports.BotUpdate{LastActivityAt: &now})
			cancel()
			if err != nil && ctx.Err() == nil {
				e.logger.Warn(ctx, "heartbeat: Failed to update last activity", ports.Fields{"botID": e.botID, "error": err.Error()})
			}
		}
	}
}

// recordPersistenceFailure reports a transaction that failed after the trade
// decision. With an exchange order id the books now miss a real fill.
func (e *BotEngine) recordPersistenceFailure(ctx context.Context, side domain.OrderSide, orderID *string, err error) {
	metrics.PersistenceFailures.WithLabelValues(string(side)).Inc()
	fields := ports.Fields{"botID": e.botID, "side": side}
	if orderID != nil {
		fields["orderID"] = *orderID
	}
	e.logger.Error(ctx, err, "Failed to record trade in database", fields)
	e.logError(ctx, "Failed to record trade in database: %v", err)
	if orderID != nil {
		e.alert(ctx, domain.AlertError, "%s order %s executed but not recorded: %v", side, *orderID, err)
	}
}

func (e *BotEngine) exchangeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.cfg.ExchangeTimeout)
}

func (e *BotEngine) logInfo(ctx context.Context, format string, args ...any) {
	e.deps.Logs.Emit(ctx, e.botID, domain.LogInfo, fmt.Sprintf(format, args...))
}

func (e *BotEngine) logWarning(ctx context.Context, format string, args ...any) {
	e.deps.Logs.Emit(ctx, e.botID, domain.LogWarning, fmt.Sprintf(format, args...))
}

func (e *BotEngine) logError(ctx context.Context, format string, args ...any) {
	e.deps.Logs.Emit(ctx, e.botID, domain.LogError, fmt.Sprintf(format, args...))
}

func (e *BotEngine) alert(ctx context.Context, t domain.AlertType, format string, args ...any) {
	e.deps.Alerts.Emit(ctx, e.botID, t, fmt.Sprintf(format, args...))
}

// quoteAsset returns "USDT" for "BTC/USDT", or fallback when the symbol has no separator.
func quoteAsset(symbol, fallback string) string {
	if i := strings.LastIndex(symbol, "/"); i >= 0 && i < len(symbol)-1 {
		return symbol[i+1:]
	}
	return fallback
}
