package analytics

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"gridBot/internal/domain"
)

// Stats summarises the recorded trading activity of one bot.
type Stats struct {
	TotalTrades int
	TotalBuys   int
	TotalSells  int

	WinningSells int
	LosingSells  int
	WinRate      float64 // percent of sells with positive profit

	TotalProfit   float64
	AverageProfit float64
	BestTrade     float64
	WorstTrade    float64

	MaxConsecutiveWins   int
	MaxConsecutiveLosses int
	// MaxDrawdown is the deepest fall of capital plus realized profit from its
	// running peak, as a fraction of that peak.
	MaxDrawdown    float64
	MonthlyProfits map[string]float64

	RunningSeconds int64
	RunningTime    string
}

// MonthlyProfit is the realized profit of one calendar month.
type MonthlyProfit struct {
	Month  time.Time
	Profit float64
}

// Compute derives statistics from the bot row and its trades. The running time
// includes the current session when the bot is RUNNING.
func Compute(bot *domain.Bot, trades []*domain.Trade, now time.Time) *Stats {
	stats := &Stats{MonthlyProfits: make(map[string]float64)}

	sorted := make([]*domain.Trade, len(trades))
	copy(sorted, trades)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	equity := bot.Capital
	peak := equity
	var profitCount, consecutiveWins, consecutiveLosses int
	var profitSum float64

	for _, trade := range sorted {
		stats.TotalTrades++
		switch trade.Side {
		case domain.Buy:
			stats.TotalBuys++
		case domain.Sell:
			stats.TotalSells++
		}
		if trade.Profit == nil {
			continue
		}

		profit := *trade.Profit
		if profitCount == 0 || profit > stats.BestTrade {
			stats.BestTrade = profit
		}
		if profitCount == 0 || profit < stats.WorstTrade {
			stats.WorstTrade = profit
		}
		profitCount++
		profitSum += profit

		if trade.IsWin() {
			stats.WinningSells++
			consecutiveWins++
			consecutiveLosses = 0
		} else {
			stats.LosingSells++
			consecutiveLosses++
			consecutiveWins = 0
		}
		stats.MaxConsecutiveWins = max(stats.MaxConsecutiveWins, consecutiveWins)
		stats.MaxConsecutiveLosses = max(stats.MaxConsecutiveLosses, consecutiveLosses)

		stats.MonthlyProfits[trade.Timestamp.UTC().Format("2006-01")] += profit

		equity += profit
		if equity > peak {
			peak = equity
		} else if peak > 0 {
			stats.MaxDrawdown = math.Max(stats.MaxDrawdown, (peak-equity)/peak)
		}
	}

	stats.TotalProfit = profitSum
	if profitCount > 0 {
		stats.AverageProfit = profitSum / float64(profitCount)
	}
	if stats.TotalSells > 0 {
		stats.WinRate = float64(stats.WinningSells) / float64(stats.TotalSells) * 100
	}

	stats.RunningSeconds = bot.TotalRuntimeSeconds
	if bot.Status == domain.BotRunning && bot.StartedAt != nil && now.After(*bot.StartedAt) {
		stats.RunningSeconds += int64(now.Sub(*bot.StartedAt) / time.Second)
	}
	stats.RunningTime = FormatRuntime(stats.RunningSeconds)

	return stats
}

// SortedMonthlyProfits returns the monthly profits in chronological order.
func (s *Stats) SortedMonthlyProfits() []MonthlyProfit {
	out := make([]MonthlyProfit, 0, len(s.MonthlyProfits))
	for month, profit := range s.MonthlyProfits {
		date, err := time.Parse("2006-01", month)
		if err != nil {
			continue
		}
		out = append(out, MonthlyProfit{Month: date, Profit: profit})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Month.Before(out[j].Month)
	})
	return out
}

// FormatRuntime renders seconds as "1d 2h 3m". Seconds are shown only for
// durations under one day.
func FormatRuntime(seconds int64) string {
	if seconds <= 0 {
		return "0s"
	}

	days := seconds / 86400
	hours := (seconds % 86400) / 3600
	minutes := (seconds % 3600) / 60
	secs := seconds % 60

	var parts []string
	if days > 0 {
		parts = append(parts, fmt.Sprintf("%dd", days))
	}
	if hours > 0 {
		parts = append(parts, fmt.Sprintf("%dh", hours))
	}
	if minutes > 0 {
		parts = append(parts, fmt.Sprintf("%dm", minutes))
	}
	if secs > 0 && days == 0 {
		parts = append(parts, fmt.Sprintf("%ds", secs))
	}
	if len(parts) == 0 {
		return "0s"
	}
	return strings.Join(parts, " ")
}
