package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ============ Tick processing ============

// TicksProcessed counts price ticks evaluated by an engine.
var TicksProcessed = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "gridbot",
		Subsystem: "engine",
		Name:      "ticks_processed_total",
		Help:      "Total number of price ticks evaluated",
	},
	[]string{"symbol"},
)

// TicksDropped counts ticks discarded because the previous tick was still in flight.
var TicksDropped = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "gridbot",
		Subsystem: "engine",
		Name:      "ticks_dropped_total",
		Help:      "Total number of price ticks dropped by the busy guard",
	},
	[]string{"symbol"},
)

// TickLatency is the wall time of one tick evaluation, exchange and database calls included.
var TickLatency = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "gridbot",
		Subsystem: "engine",
		Name:      "tick_duration_ms",
		Help:      "Time to evaluate a price tick in milliseconds",
		Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
	},
	[]string{"symbol"},
)

// ============ Orders and trades ============

// OrdersTotal counts exchange order submissions.
var OrdersTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "gridbot",
		Subsystem: "exchange",
		Name:      "orders_total",
		Help:      "Total number of market orders submitted",
	},
	[]string{"side", "result"}, // result: success, failed
)

// TradesRecorded counts trades committed to the store.
var TradesRecorded = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "gridbot",
		Subsystem: "engine",
		Name:      "trades_recorded_total",
		Help:      "Total number of trades persisted",
	},
	[]string{"symbol", "side", "mode"},
)

// PersistenceFailures counts transactions that failed after a trade decision.
var PersistenceFailures = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "gridbot",
		Subsystem: "engine",
		Name:      "persistence_failures_total",
		Help:      "Total number of failed trade transactions",
	},
	[]string{"side"},
)

// RealizedPnL tracks realized profit (negative for losses) per symbol.
var RealizedPnL = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "gridbot",
		Subsystem: "engine",
		Name:      "realized_pnl_quote",
		Help:      "Realized profit in quote currency since process start",
	},
	[]string{"symbol"},
)

// ============ Supervisor ============

// RunningEngines is the number of engines registered in the supervisor.
var RunningEngines = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "gridbot",
		Subsystem: "supervisor",
		Name:      "running_engines",
		Help:      "Current number of live bot engines",
	},
)

// ============ Helpers ============

// ObserveTick records one evaluated tick and its duration.
func ObserveTick(symbol string, started time.Time) {
	TicksProcessed.WithLabelValues(symbol).Inc()
	TickLatency.WithLabelValues(symbol).Observe(float64(time.Since(started).Microseconds()) / 1000)
}

// RecordOrder records the outcome of an order submission.
func RecordOrder(side string, err error) {
	result := "success"
	if err != nil {
		result = "failed"
	}
	OrdersTotal.WithLabelValues(side, result).Inc()
}
