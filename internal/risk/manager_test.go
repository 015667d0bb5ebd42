package risk

import (
	"errors"
	"math"
	"testing"
	"time"

	"gridBot/internal/ports"
)

const eps = 1e-9

func TestRiskManagerThresholds(t *testing.T) {
	manager := NewRiskManager(RiskConfig{
		StopLossPercent:     5,
		TakeProfitPercent:   10,
		TrailingStopPercent: 3,
	})

	stop, ok := manager.StopLossPrice(200)
	if !ok || math.Abs(stop-190) > eps {
		t.Errorf("Expected stop loss 190, got %f (ok=%v)", stop, ok)
	}

	target, ok := manager.TakeProfitPrice(200)
	if !ok || math.Abs(target-220) > eps {
		t.Errorf("Expected take profit 220, got %f (ok=%v)", target, ok)
	}

	trail, ok := manager.TrailingStopPrice(300)
	if !ok || math.Abs(trail-291) > eps {
		t.Errorf("Expected trailing stop 291, got %f (ok=%v)", trail, ok)
	}

	if !manager.ShouldStopLoss(190, 200) {
		t.Error("Expected stop loss to trigger at the threshold")
	}
	if manager.ShouldStopLoss(190.01, 200) {
		t.Error("Expected stop loss not to trigger above the threshold")
	}
	if !manager.ShouldTakeProfit(220, 200) {
		t.Error("Expected take profit to trigger at the threshold")
	}
	if manager.ShouldTakeProfit(219.99, 200) {
		t.Error("Expected take profit not to trigger below the threshold")
	}
	if !manager.ShouldTrailingStop(291, 300) {
		t.Error("Expected trailing stop to trigger at the threshold")
	}
	if manager.ShouldTrailingStop(295, 300) {
		t.Error("Expected trailing stop not to trigger above the threshold")
	}
}

func TestRiskManagerStopLossProperty(t *testing.T) {
	for _, pct := range []float64{0.5, 1, 2.5, 5, 12, 50} {
		manager := NewRiskManager(RiskConfig{StopLossPercent: pct})
		for _, entry := range []float64{0.0001, 1, 99.5, 27000} {
			stop, ok := manager.StopLossPrice(entry)
			if !ok {
				t.Fatalf("stop loss disabled for pct=%f", pct)
			}
			want := entry * (1 - pct/100)
			if math.Abs(stop-want) > eps*entry {
				t.Errorf("pct=%f entry=%f: expected %f, got %f", pct, entry, want, stop)
			}
			if !manager.ShouldStopLoss(stop, entry) {
				t.Errorf("pct=%f entry=%f: expected trigger at stop price", pct, entry)
			}
			if manager.ShouldStopLoss(stop*1.0001+eps, entry) {
				t.Errorf("pct=%f entry=%f: expected no trigger above stop price", pct, entry)
			}
		}
	}
}

func TestRiskManagerDisabledThresholds(t *testing.T) {
	manager := NewRiskManager(RiskConfig{})

	if _, ok := manager.StopLossPrice(100); ok {
		t.Error("Expected stop loss to be disabled")
	}
	if _, ok := manager.TakeProfitPrice(100); ok {
		t.Error("Expected take profit to be disabled")
	}
	if _, ok := manager.TrailingStopPrice(100); ok {
		t.Error("Expected trailing stop to be disabled")
	}
	for _, price := range []float64{0, 0.01, 50, 100, 1e9} {
		if manager.ShouldStopLoss(price, 100) || manager.ShouldTakeProfit(price, 100) || manager.ShouldTrailingStop(price, 100) {
			t.Errorf("Disabled thresholds must never trigger (price %f)", price)
		}
	}
}

func TestRiskManagerCanOpenPosition(t *testing.T) {
	unlimited := NewRiskManager(RiskConfig{})
	if !unlimited.CanOpenPosition(1000) {
		t.Error("Expected no limit when MaxPositions is unset")
	}

	limited := NewRiskManager(RiskConfig{MaxPositions: 3})
	if !limited.CanOpenPosition(2) {
		t.Error("Expected position 3 of 3 to be allowed")
	}
	if limited.CanOpenPosition(3) {
		t.Error("Expected limit to block a fourth position")
	}
}

func TestRiskManagerValidateTradeSize(t *testing.T) {
	manager := NewRiskManager(RiskConfig{})

	if err := manager.ValidateTradeSize(10, 100); err != nil {
		t.Errorf("Expected valid trade, got %v", err)
	}
	if err := manager.ValidateTradeSize(1.0, 100); !errors.Is(err, ports.ErrTradeSizeTooSmall) {
		t.Errorf("Expected ErrTradeSizeTooSmall, got %v", err)
	}
	if err := manager.ValidateTradeSize(150, 100); !errors.Is(err, ports.ErrInsufficientFunds) {
		t.Errorf("Expected ErrInsufficientFunds, got %v", err)
	}
	if err := manager.ValidateTradeSize(DefaultMinTradeSize, DefaultMinTradeSize); err != nil {
		t.Errorf("Expected minimum size to be valid, got %v", err)
	}

	custom := NewRiskManager(RiskConfig{MinTradeSize: 5})
	if err := custom.ValidateTradeSize(4, 100); !errors.Is(err, ports.ErrTradeSizeTooSmall) {
		t.Errorf("Expected custom minimum to apply, got %v", err)
	}
}

func TestRiskManagerDailyLoss(t *testing.T) {
	now := time.Date(2024, 3, 10, 22, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	manager := NewRiskManagerWithClock(RiskConfig{MaxDailyLoss: 50}, clock)

	if !manager.RecordLoss(-30) {
		t.Error("Expected trading to continue after a loss of 30")
	}
	if math.Abs(manager.DailyLoss()-30) > eps {
		t.Errorf("Expected daily loss 30, got %f", manager.DailyLoss())
	}
	if manager.RecordLoss(-25) {
		t.Error("Expected daily loss limit to halt trading at 55")
	}

	// UTC midnight rollover
	now = time.Date(2024, 3, 11, 0, 0, 1, 0, time.UTC)
	if !manager.RecordLoss(-10) {
		t.Error("Expected trading to continue after the daily reset")
	}
	if math.Abs(manager.DailyLoss()-10) > eps {
		t.Errorf("Expected daily loss reset to 10, got %f", manager.DailyLoss())
	}
}

func TestRiskManagerDailyLossUnlimited(t *testing.T) {
	manager := NewRiskManager(RiskConfig{})
	for i := 0; i < 10; i++ {
		if !manager.RecordLoss(-1000) {
			t.Fatal("Expected no halt without MaxDailyLoss")
		}
	}
}

func TestNextUTCMidnight(t *testing.T) {
	loc := time.FixedZone("UTC+9", 9*3600)
	// 2024-03-10 23:30 UTC+9 is 14:30 UTC on the 10th.
	got := nextUTCMidnight(time.Date(2024, 3, 10, 23, 30, 0, 0, loc))
	want := time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}
