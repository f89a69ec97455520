// Package killswitch watches execution health and fires a one-shot
// emergency stop when any monitor breaches its threshold. Individual
// strategies can also be quarantined without halting the whole book.
package killswitch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
)

// Default monitor thresholds.
const (
	DefaultPnLVelocityLimit    = -0.01 // fraction of nav lost per minute
	DefaultOrderRateLimit      = 100   // orders per 10-second window
	DefaultLatencyLimit        = 500 * time.Millisecond
	DefaultPriceDeviationLimit = 0.02

	pnlWindow       = 60 * time.Second
	orderRateWindow = 10 * time.Second
)

// Limits configures the health monitors. Zero values take defaults.
type Limits struct {
	PnLVelocityPerMin float64
	OrderRatePer10s   int
	MaxLatency        time.Duration
	MaxPriceDeviation float64
}

func (l Limits) withDefaults() Limits {
	if l.PnLVelocityPerMin == 0 {
		l.PnLVelocityPerMin = DefaultPnLVelocityLimit
	}
	if l.OrderRatePer10s == 0 {
		l.OrderRatePer10s = DefaultOrderRateLimit
	}
	if l.MaxLatency == 0 {
		l.MaxLatency = DefaultLatencyLimit
	}
	if l.MaxPriceDeviation == 0 {
		l.MaxPriceDeviation = DefaultPriceDeviationLimit
	}
	return l
}

// Broadcaster publishes CANCEL_ALL on the emergency channel.
type Broadcaster interface {
	BroadcastEmergencyStop(ctx context.Context, reason string) error
}

// Alerter delivers operator notifications.
type Alerter interface {
	Alert(ctx context.Context, message string)
}

var (
	metricsOnce     sync.Once
	triggeredGauge  prometheus.Gauge
	quarantineGauge prometheus.Gauge
	triggerCounter  *prometheus.CounterVec
)

func initMetrics() {
	metricsOnce.Do(func() {
		triggeredGauge = promauto.NewGauge(prometheus.GaugeOpts{
			Name: "killswitch_triggered",
			Help: "Whether the kill switch has fired (0 or 1)",
		})
		quarantineGauge = promauto.NewGauge(prometheus.GaugeOpts{
			Name: "killswitch_quarantined_strategies",
			Help: "Number of strategies currently quarantined",
		})
		triggerCounter = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "killswitch_triggers_total",
			Help: "Kill switch activations by monitor",
		}, []string{"monitor"})
	})
}

type pnlSample struct {
	at  time.Time
	pnl float64 // cumulative pnl as fraction of nav
}

// Switch is the process-wide kill switch.
type Switch struct {
	mu         sync.Mutex
	limits     Limits
	emergency  Broadcaster
	alerter    Alerter
	triggered  bool
	quarantine map[string]string

	pnlSamples  []pnlSample
	orderTimes  []time.Time
	lastLatency time.Duration

	now func() time.Time
}

// New creates a kill switch wired to the emergency channel. alerter may
// be nil.
func New(limits Limits, emergency Broadcaster, alerter Alerter) *Switch {
	initMetrics()
	return &Switch{
		limits:     limits.withDefaults(),
		emergency:  emergency,
		alerter:    alerter,
		quarantine: make(map[string]string),
		now:        time.Now,
	}
}

// RecordPnL records a cumulative PnL observation (fraction of nav).
func (s *Switch) RecordPnL(pnl float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.pnlSamples = append(s.pnlSamples, pnlSample{at: now, pnl: pnl})
	s.prunePnL(now)
}

// RecordOrder records one order submission for rate monitoring.
func (s *Switch) RecordOrder() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.orderTimes = append(s.orderTimes, now)
	s.pruneOrders(now)
}

// RecordLatency records the most recent venue API latency.
func (s *Switch) RecordLatency(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastLatency = d
}

func (s *Switch) prunePnL(now time.Time) {
	cutoff := now.Add(-pnlWindow)
	for len(s.pnlSamples) > 0 && s.pnlSamples[0].at.Before(cutoff) {
		s.pnlSamples = s.pnlSamples[1:]
	}
}

func (s *Switch) pruneOrders(now time.Time) {
	cutoff := now.Add(-orderRateWindow)
	for len(s.orderTimes) > 0 && s.orderTimes[0].Before(cutoff) {
		s.orderTimes = s.orderTimes[1:]
	}
}

// CheckPnLVelocity reports whether the loss rate over the window
// exceeds the per-minute limit.
func (s *Switch) CheckPnLVelocity() (bool, string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.pnlSamples) < 2 {
		return false, ""
	}

	first := s.pnlSamples[0]
	last := s.pnlSamples[len(s.pnlSamples)-1]
	elapsed := last.at.Sub(first.at).Minutes()
	if elapsed <= 0 {
		return false, ""
	}

	velocity := (last.pnl - first.pnl) / elapsed
	if velocity > s.limits.PnLVelocityPerMin {
		return false, ""
	}
	return true, fmt.Sprintf("pnl velocity %.4f/min breaches %.4f/min", velocity, s.limits.PnLVelocityPerMin)
}

// CheckOrderRate reports whether order submissions in the window exceed
// the limit.
func (s *Switch) CheckOrderRate() (bool, string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneOrders(s.now())
	if len(s.orderTimes) <= s.limits.OrderRatePer10s {
		return false, ""
	}
	return true, fmt.Sprintf("order rate %d/10s breaches %d/10s", len(s.orderTimes), s.limits.OrderRatePer10s)
}

// CheckLatency reports whether the last observed API latency exceeds
// the limit.
func (s *Switch) CheckLatency() (bool, string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lastLatency <= s.limits.MaxLatency {
		return false, ""
	}
	return true, fmt.Sprintf("api latency %s breaches %s", s.lastLatency, s.limits.MaxLatency)
}

// CheckPriceDeviation reports whether price deviates from fair value
// beyond the limit.
func (s *Switch) CheckPriceDeviation(price, fair float64) (bool, string) {
	if fair <= 0 {
		return false, ""
	}
	deviation := (price - fair) / fair
	if deviation < 0 {
		deviation = -deviation
	}
	if deviation <= s.limits.MaxPriceDeviation {
		return false, ""
	}
	return true, fmt.Sprintf("price %.4f deviates %.2f%% from fair %.4f", price, deviation*100, fair)
}

// RunAllChecks evaluates the stateful monitors and triggers on the
// first breach. Returns the breach reasons found this pass.
func (s *Switch) RunAllChecks(ctx context.Context) []string {
	var reasons []string

	if breached, reason := s.CheckPnLVelocity(); breached {
		triggerCounter.WithLabelValues("pnl_velocity").Inc()
		reasons = append(reasons, reason)
	}
	if breached, reason := s.CheckOrderRate(); breached {
		triggerCounter.WithLabelValues("order_rate").Inc()
		reasons = append(reasons, reason)
	}
	if breached, reason := s.CheckLatency(); breached {
		triggerCounter.WithLabelValues("latency").Inc()
		reasons = append(reasons, reason)
	}

	for _, reason := range reasons {
		s.Trigger(ctx, reason)
	}
	return reasons
}

// Trigger fires the kill switch. Idempotent: only the first call
// broadcasts CANCEL_ALL and alerts the operator.
func (s *Switch) Trigger(ctx context.Context, reason string) {
	s.mu.Lock()
	if s.triggered {
		s.mu.Unlock()
		return
	}
	s.triggered = true
	s.mu.Unlock()

	triggeredGauge.Set(1)
	log.Error().Str("reason", reason).Msg("KILL SWITCH TRIGGERED")

	if s.emergency != nil {
		if err := s.emergency.BroadcastEmergencyStop(ctx, reason); err != nil {
			log.Error().Err(err).Msg("Failed to broadcast emergency stop")
		}
	}
	if s.alerter != nil {
		s.alerter.Alert(ctx, fmt.Sprintf("🚨 Kill switch triggered: %s", reason))
	}
}

// IsTriggered reports whether the switch has fired.
func (s *Switch) IsTriggered() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.triggered
}

// Reset re-arms a triggered switch. Manual operator action only.
func (s *Switch) Reset() {
	s.mu.Lock()
	s.triggered = false
	s.pnlSamples = nil
	s.orderTimes = nil
	s.lastLatency = 0
	s.mu.Unlock()
	triggeredGauge.Set(0)
	log.Warn().Msg("Kill switch manually reset")
}

// HaltStrategy quarantines one strategy. The signal router consults the
// quarantine set before dispatching.
func (s *Switch) HaltStrategy(name, reason string) {
	s.mu.Lock()
	s.quarantine[name] = reason
	count := len(s.quarantine)
	s.mu.Unlock()
	quarantineGauge.Set(float64(count))
	log.Warn().Str("strategy", name).Str("reason", reason).Msg("Strategy quarantined")
}

// ResumeStrategy removes a strategy from quarantine.
func (s *Switch) ResumeStrategy(name string) {
	s.mu.Lock()
	delete(s.quarantine, name)
	count := len(s.quarantine)
	s.mu.Unlock()
	quarantineGauge.Set(float64(count))
	log.Info().Str("strategy", name).Msg("Strategy resumed")
}

// IsQuarantined reports whether a strategy is halted.
func (s *Switch) IsQuarantined(name string) (bool, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	reason, ok := s.quarantine[name]
	return ok, reason
}
