package strategy

// Grid implements buy-on-drop / sell-on-rise rules relative to entry prices.
// It holds no state; every decision is a function of its arguments.
type Grid struct{}

// NewGrid creates a grid strategy.
func NewGrid() *Grid {
	return &Grid{}
}

// BuyTrigger is the price at or below which a new grid buy fires.
func BuyTrigger(lastEntry, dropPct float64) float64 {
	return lastEntry * (1 - dropPct/100)
}

// SellTarget is the price at or above which a position is sold for profit.
func SellTarget(entry, profitPct float64) float64 {
	return entry * (1 + profitPct/100)
}

// ShouldBuy returns true for the first entry (lastEntry == nil) or when price
// dropped dropPct below the most recent entry.
func (g *Grid) ShouldBuy(currentPrice float64, lastEntry *float64, dropPct float64) bool {
	if lastEntry == nil || *lastEntry <= 0 {
		return true
	}
	return currentPrice <= BuyTrigger(*lastEntry, dropPct)
}

// ShouldSell returns true once price reached the profit target of the entry.
func (g *Grid) ShouldSell(currentPrice, entryPrice, profitPct float64) bool {
	return currentPrice >= SellTarget(entryPrice, profitPct)
}

// PositionSize returns the base amount bought with buyPct of capital at price.
func (g *Grid) PositionSize(capital, buyPct, price float64) float64 {
	if price <= 0 {
		return 0
	}
	return capital * (buyPct / 100) / price
}
