package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"gridBot/internal/ports"
)

var _ ports.Strategy = (*Grid)(nil)

func ptr(f float64) *float64 { return &f }

func TestGrid_ShouldBuy(t *testing.T) {
	g := NewGrid()

	tests := []struct {
		name      string
		price     float64
		lastEntry *float64
		drop      float64
		want      bool
	}{
		{name: "first trade always buys", price: 100, lastEntry: nil, drop: 5, want: true},
		{name: "first trade ignores drop", price: 1e6, lastEntry: nil, drop: 99, want: true},
		{name: "no drop", price: 100, lastEntry: ptr(100), drop: 10, want: false},
		{name: "below threshold", price: 89, lastEntry: ptr(100), drop: 10, want: true},
		{name: "exactly at threshold", price: 95, lastEntry: ptr(100), drop: 5, want: true},
		{name: "just above threshold", price: 95.01, lastEntry: ptr(100), drop: 5, want: false},
		{name: "scenario second position", price: 94, lastEntry: ptr(100), drop: 5, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, g.ShouldBuy(tt.price, tt.lastEntry, tt.drop))
		})
	}
}

func TestGrid_ShouldSell(t *testing.T) {
	g := NewGrid()

	assert.True(t, g.ShouldSell(103, 100, 3), "target reached exactly")
	assert.True(t, g.ShouldSell(110, 100, 3))
	assert.False(t, g.ShouldSell(102.99, 100, 3))
	assert.True(t, g.ShouldSell(100, 100, 0), "zero target sells at entry")
}

func TestGrid_PositionSize(t *testing.T) {
	g := NewGrid()

	assert.InDelta(t, 1.0, g.PositionSize(1000, 10, 100), 1e-12)
	assert.Equal(t, 0.0, g.PositionSize(1000, 10, 0))

	for _, tc := range []struct{ capital, pct, price float64 }{
		{1000, 10, 100},
		{250, 33.3, 0.0473},
		{12345.67, 2.5, 27123.4},
		{50, 100, 3.3},
	} {
		amount := g.PositionSize(tc.capital, tc.pct, tc.price)
		assert.InDelta(t, tc.capital*tc.pct/100, amount*tc.price, 1e-9)
	}
}

func TestBuyTriggerAndSellTarget(t *testing.T) {
	assert.InDelta(t, 95.0, BuyTrigger(100, 5), 1e-12)
	assert.InDelta(t, 103.0, SellTarget(100, 3), 1e-12)
}
