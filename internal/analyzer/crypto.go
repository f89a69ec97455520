package analyzer

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/marketpilot/internal/bus"
	"github.com/ajitpratap0/marketpilot/internal/indicators"
	"github.com/ajitpratap0/marketpilot/internal/signals"
)

// volumeSpikeMultiplier flags a bar whose volume exceeds the 20-bar
// average by this factor.
const volumeSpikeMultiplier = 3.0

// BarSource supplies recent OHLCV history, newest bar last.
type BarSource interface {
	RecentBars(ctx context.Context, symbol string, limit int) ([]signals.Bar, error)
}

// Crypto scores BTC momentum from RSI, MACD, and volume behavior, and
// publishes `intel:btc_sentiment` and `intel:btc_volume_spike`.
type Crypto struct {
	symbol string
	bars   BarSource
	intel  *bus.IntelBus
}

// NewCrypto creates the crypto TA analyzer.
func NewCrypto(symbol string, bars BarSource, intel *bus.IntelBus) *Crypto {
	return &Crypto{symbol: symbol, bars: bars, intel: intel}
}

func (c *Crypto) Name() string { return "crypto" }

func (c *Crypto) Analyze(ctx context.Context) Result {
	bars, err := c.bars.RecentBars(ctx, c.symbol, 100)
	if err != nil {
		return Failuref("fetch %s bars: %v", c.symbol, err)
	}
	if len(bars) < 40 {
		return NoSignal(fmt.Sprintf("only %d bars for %s", len(bars), c.symbol))
	}

	closes := make([]float64, len(bars))
	volumes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
		volumes[i] = b.Volume
	}

	rsi, ok := indicators.RSI(closes, 14)
	if !ok {
		return NoSignal("rsi unavailable")
	}
	macdValue, macdSignal, ok := indicators.MACD(closes)
	if !ok {
		return NoSignal("macd unavailable")
	}

	// Sentiment in [-1, 1]: RSI distance from midline plus MACD cross
	sentiment := (rsi - 50) / 50
	if macdValue > macdSignal {
		sentiment += 0.25
	} else {
		sentiment -= 0.25
	}
	if sentiment > 1 {
		sentiment = 1
	}
	if sentiment < -1 {
		sentiment = -1
	}

	c.intel.Publish(ctx, "intel:btc_sentiment", sentiment, c.Name(), 0.8)

	var avgVolume float64
	for _, v := range volumes[len(volumes)-21 : len(volumes)-1] {
		avgVolume += v
	}
	avgVolume /= 20

	lastVolume := volumes[len(volumes)-1]
	spike := avgVolume > 0 && lastVolume >= avgVolume*volumeSpikeMultiplier
	multiplier := 0.0
	if avgVolume > 0 {
		multiplier = lastVolume / avgVolume
	}
	c.intel.Publish(ctx, "intel:btc_volume_spike", map[string]interface{}{
		"detected":   spike,
		"multiplier": multiplier,
	}, c.Name(), 0.8)

	score := (sentiment + 1) * 50
	direction := "neutral"
	switch {
	case sentiment > 0.2:
		direction = "bullish"
	case sentiment < -0.2:
		direction = "bearish"
	}

	log.Debug().
		Float64("rsi", rsi).
		Float64("sentiment", sentiment).
		Bool("volume_spike", spike).
		Str("direction", direction).
		Msg("Crypto scan complete")

	if direction == "neutral" {
		return NoSignal(fmt.Sprintf("sentiment %.2f inside neutral band", sentiment))
	}

	result := Success(score, direction, c.symbol, 1.95)
	result.Reason = fmt.Sprintf("rsi %.1f, macd %s, volume x%.1f", rsi,
		map[bool]string{true: "above signal", false: "below signal"}[macdValue > macdSignal], multiplier)
	result.Extras = map[string]interface{}{"volume_spike": spike}
	return result
}
