package analyzer

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/marketpilot/internal/bus"
)

// MacroData supplies the macro readings the analyzer publishes.
// Implementations fail with an error when an upstream feed is down;
// they never fabricate values.
type MacroData interface {
	VIX(ctx context.Context) (float64, error)
	SPYCloses(ctx context.Context, limit int) ([]float64, error)
	TenYearYield(ctx context.Context) (float64, error)
	FearGreed(ctx context.Context) (float64, error)
}

// Macro publishes the rates-and-volatility context keys: fed bias, VIX,
// SPY trend, 10-year yield, and the fear/greed index.
type Macro struct {
	data  MacroData
	intel *bus.IntelBus
}

// NewMacro creates the macro analyzer.
func NewMacro(data MacroData, intel *bus.IntelBus) *Macro {
	return &Macro{data: data, intel: intel}
}

func (m *Macro) Name() string { return "macro" }

func (m *Macro) Analyze(ctx context.Context) Result {
	vix, err := m.data.VIX(ctx)
	if err != nil {
		return Failuref("vix feed: %v", err)
	}
	closes, err := m.data.SPYCloses(ctx, 30)
	if err != nil {
		return Failuref("spy feed: %v", err)
	}
	if len(closes) < 10 {
		return NoSignal("insufficient spy history")
	}

	m.intel.Publish(ctx, "intel:vix_level", vix, m.Name(), 0.9)

	trend := spyTrend(closes)
	m.intel.Publish(ctx, "intel:spy_trend", trend, m.Name(), 0.8)

	// Secondary feeds enrich the bus but their absence is tolerated
	if yield, err := m.data.TenYearYield(ctx); err == nil {
		m.intel.Publish(ctx, "macro:10y_yield", yield, m.Name(), 0.9)
	} else {
		log.Debug().Err(err).Msg("10y yield unavailable this cycle")
	}
	if fg, err := m.data.FearGreed(ctx); err == nil {
		m.intel.Publish(ctx, "macro:fear_greed", fg, m.Name(), 0.7)
	}

	bias, biasConfidence := fedBias(vix, trend)
	m.intel.Publish(ctx, "intel:fed_bias", map[string]interface{}{
		"bias":       bias,
		"confidence": biasConfidence,
	}, m.Name(), biasConfidence)

	// Macro is context, not an entry trigger
	result := NoSignal(fmt.Sprintf("context published: vix %.1f, spy %s, fed %s", vix, trend, bias))
	result.Extras = map[string]interface{}{"vix": vix, "spy_trend": trend}
	return result
}

// spyTrend labels the 10-bar direction of SPY closes.
func spyTrend(closes []float64) string {
	recent := closes[len(closes)-10:]
	change := (recent[len(recent)-1] - recent[0]) / recent[0]
	switch {
	case change > 0.01:
		return "bullish"
	case change < -0.01:
		return "bearish"
	default:
		return "neutral"
	}
}

// fedBias is a coarse policy read: high volatility with falling
// equities implies easing pressure, calm tape implies a hold.
func fedBias(vix float64, trend string) (string, float64) {
	switch {
	case vix > 30 && trend == "bearish":
		return "dovish", 0.75
	case vix < 15 && trend == "bullish":
		return "hawkish", 0.6
	default:
		return "neutral", 0.5
	}
}
