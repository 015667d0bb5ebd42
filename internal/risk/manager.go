package risk

import (
	"fmt"
	"math"
	"time"

	"gridBot/internal/ports"
)

// DefaultMinTradeSize is the smallest order value (quote currency) the exchange accepts.
const DefaultMinTradeSize = 1.10

// RiskConfig holds configuration for risk management.
// A zero value disables the corresponding limit.
type RiskConfig struct {
	StopLossPercent     float64
	TakeProfitPercent   float64
	TrailingStopPercent float64
	MaxPositions        int
	MaxDailyLoss        float64
	MinTradeSize        float64
}

// RiskManager computes exit thresholds and keeps the daily loss tally of one bot.
// It is not safe for concurrent use; the owning engine serialises access.
type RiskManager struct {
	config RiskConfig
	now    func() time.Time

	dailyLoss  float64
	resetAfter time.Time
}

// NewRiskManager creates a new risk manager instance.
func NewRiskManager(config RiskConfig) *RiskManager {
	return NewRiskManagerWithClock(config, time.Now)
}

// NewRiskManagerWithClock is NewRiskManager with an injectable clock.
func NewRiskManagerWithClock(config RiskConfig, now func() time.Time) *RiskManager {
	if config.MinTradeSize <= 0 {
		config.MinTradeSize = DefaultMinTradeSize
	}
	r := &RiskManager{config: config, now: now}
	r.resetAfter = nextUTCMidnight(now())
	return r
}

// Config returns a copy of the active configuration.
func (r *RiskManager) Config() RiskConfig {
	return r.config
}

// StopLossPrice returns entry*(1-pct/100); ok is false when stop-loss is disabled.
func (r *RiskManager) StopLossPrice(entry float64) (price float64, ok bool) {
	if r.config.StopLossPercent <= 0 {
		return 0, false
	}
	return entry * (1 - r.config.StopLossPercent/100), true
}

// TakeProfitPrice returns entry*(1+pct/100); ok is false when take-profit is disabled.
func (r *RiskManager) TakeProfitPrice(entry float64) (price float64, ok bool) {
	if r.config.TakeProfitPercent <= 0 {
		return 0, false
	}
	return entry * (1 + r.config.TakeProfitPercent/100), true
}

// TrailingStopPrice returns highest*(1-pct/100); ok is false when the trailing stop is disabled.
func (r *RiskManager) TrailingStopPrice(highest float64) (price float64, ok bool) {
	if r.config.TrailingStopPercent <= 0 || highest <= 0 {
		return 0, false
	}
	return highest * (1 - r.config.TrailingStopPercent/100), true
}

// ShouldStopLoss reports whether current is at or below the stop-loss price.
func (r *RiskManager) ShouldStopLoss(current, entry float64) bool {
	stop, ok := r.StopLossPrice(entry)
	return ok && current <= stop
}

// ShouldTakeProfit reports whether current is at or above the take-profit price.
func (r *RiskManager) ShouldTakeProfit(current, entry float64) bool {
	target, ok := r.TakeProfitPrice(entry)
	return ok && current >= target
}

// ShouldTrailingStop reports whether current fell to the trailing stop below highest.
func (r *RiskManager) ShouldTrailingStop(current, highest float64) bool {
	stop, ok := r.TrailingStopPrice(highest)
	return ok && current <= stop
}

// CanOpenPosition checks the open position limit.
func (r *RiskManager) CanOpenPosition(currentCount int) bool {
	if r.config.MaxPositions <= 0 {
		return true
	}
	return currentCount < r.config.MaxPositions
}

// ValidateTradeSize rejects orders below the exchange minimum or above the available balance.
func (r *RiskManager) ValidateTradeSize(value, availableBalance float64) error {
	if value < r.config.MinTradeSize {
		return fmt.Errorf("trade size $%.2f below minimum $%.2f: %w", value, r.config.MinTradeSize, ports.ErrTradeSizeTooSmall)
	}
	if value > availableBalance {
		return fmt.Errorf("required $%.2f, available $%.2f: %w", value, availableBalance, ports.ErrInsufficientFunds)
	}
	return nil
}

// MinTradeSize returns the configured exchange minimum order value.
func (r *RiskManager) MinTradeSize() float64 {
	return r.config.MinTradeSize
}

// RecordLoss adds |amount| to today's loss and reports whether trading may continue.
func (r *RiskManager) RecordLoss(amount float64) bool {
	r.rollover()
	r.dailyLoss += math.Abs(amount)

	if r.config.MaxDailyLoss > 0 && r.dailyLoss >= r.config.MaxDailyLoss {
		return false
	}
	return true
}

// DailyLoss returns the loss accumulated since the last UTC midnight.
func (r *RiskManager) DailyLoss() float64 {
	r.rollover()
	return r.dailyLoss
}

func (r *RiskManager) rollover() {
	now := r.now()
	if !now.Before(r.resetAfter) {
		r.dailyLoss = 0
		r.resetAfter = nextUTCMidnight(now)
	}
}

func nextUTCMidnight(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, time.UTC)
}
