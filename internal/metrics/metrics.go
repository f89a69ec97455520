// Package metrics exposes the prometheus instrumentation shared across
// components.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	tradesExecuted   *prometheus.CounterVec
	executionErrors  *prometheus.CounterVec
	portfolioHeat    prometheus.Gauge
	regimeState      *prometheus.GaugeVec
	analyzerDuration *prometheus.HistogramVec
	harvestedTicks   *prometheus.CounterVec
	signalsDropped   *prometheus.CounterVec
)

// Init registers the domain metrics. Safe to call from every component
// main; registration happens once per process.
func Init() {
	once.Do(func() {
		tradesExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "trades_executed_total",
			Help: "Executed trades by venue and action",
		}, []string{"venue", "action"})

		executionErrors = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "execution_errors_total",
			Help: "Failed order submissions by venue",
		}, []string{"venue"})

		portfolioHeat = promauto.NewGauge(prometheus.GaugeOpts{
			Name: "portfolio_heat",
			Help: "Deployed capital as a fraction of bankroll",
		})

		regimeState = promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "market_regime",
			Help: "Current regime, one-hot by color",
		}, []string{"regime"})

		analyzerDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "analyzer_duration_seconds",
			Help:    "Analyzer wall time per cycle",
			Buckets: prometheus.DefBuckets,
		}, []string{"analyzer"})

		harvestedTicks = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "harvested_ticks_total",
			Help: "Ticks written to the substrate by source",
		}, []string{"source"})

		signalsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "signals_dropped_total",
			Help: "Trade signals dropped before dispatch by reason",
		}, []string{"reason"})
	})
}

// RecordTrade counts one executed trade.
func RecordTrade(venue, action string) {
	Init()
	tradesExecuted.WithLabelValues(venue, action).Inc()
}

// RecordExecutionError counts one failed submission.
func RecordExecutionError(venue string) {
	Init()
	executionErrors.WithLabelValues(venue).Inc()
}

// SetPortfolioHeat updates the heat gauge.
func SetPortfolioHeat(heat float64) {
	Init()
	portfolioHeat.Set(heat)
}

// SetRegime sets the one-hot regime gauge.
func SetRegime(regime string) {
	Init()
	for _, r := range []string{"GREEN", "YELLOW", "RED"} {
		v := 0.0
		if r == regime {
			v = 1.0
		}
		regimeState.WithLabelValues(r).Set(v)
	}
}

// ObserveAnalyzer records one analyzer run duration in seconds.
func ObserveAnalyzer(name string, seconds float64) {
	Init()
	analyzerDuration.WithLabelValues(name).Observe(seconds)
}

// RecordTick counts one harvested tick.
func RecordTick(source string) {
	Init()
	harvestedTicks.WithLabelValues(source).Inc()
}

// RecordDroppedSignal counts one dropped trade signal.
func RecordDroppedSignal(reason string) {
	Init()
	signalsDropped.WithLabelValues(reason).Inc()
}
