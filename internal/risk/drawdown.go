package risk

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

// DefaultDrawdownThreshold halts a strategy once it has given back this
// fraction of its peak equity.
const DefaultDrawdownThreshold = 0.15

// DrawdownMonitor tracks peak equity per strategy and for the whole
// portfolio.
type DrawdownMonitor struct {
	mu        sync.Mutex
	threshold float64
	peaks     map[string]float64
}

// NewDrawdownMonitor creates a monitor with the given halt threshold.
// A zero threshold uses the default.
func NewDrawdownMonitor(threshold float64) *DrawdownMonitor {
	if threshold <= 0 {
		threshold = DefaultDrawdownThreshold
	}
	return &DrawdownMonitor{
		threshold: threshold,
		peaks:     make(map[string]float64),
	}
}

// Update records an equity observation for a strategy (or "portfolio")
// and returns a halt reason when the drawdown from peak exceeds the
// threshold.
func (m *DrawdownMonitor) Update(name string, equity float64) (breached bool, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if equity > m.peaks[name] {
		m.peaks[name] = equity
		return false, ""
	}

	peak := m.peaks[name]
	if peak <= 0 {
		return false, ""
	}

	drawdown := (peak - equity) / peak
	if drawdown <= m.threshold {
		return false, ""
	}

	reason = fmt.Sprintf("%s drawdown %.1f%% exceeds %.1f%% limit (peak %.2f, current %.2f)",
		name, drawdown*100, m.threshold*100, peak, equity)
	log.Warn().
		Str("strategy", name).
		Float64("drawdown", drawdown).
		Float64("peak", peak).
		Float64("equity", equity).
		Msg("Drawdown threshold breached")
	return true, reason
}

// Drawdown returns the current drawdown fraction for a strategy.
func (m *DrawdownMonitor) Drawdown(name string, equity float64) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	peak := m.peaks[name]
	if peak <= 0 || equity >= peak {
		return 0
	}
	return (peak - equity) / peak
}
