package ports

// Strategy defines the entry/exit rules evaluated on every tick.
type Strategy interface {
	// ShouldBuy decides whether to open a new position. lastEntry is nil when no
	// position is open.
	ShouldBuy(currentPrice float64, lastEntry *float64, dropPct float64) bool

	// ShouldSell decides whether a position reached its profit target.
	ShouldSell(currentPrice, entryPrice, profitPct float64) bool

	// PositionSize converts a capital allocation into a base asset amount.
	PositionSize(capital, buyPct, price float64) float64
}
