// Package signals detects tactical entry patterns over OHLCV history.
// Each detector inspects the most recent bar in context and returns nil
// when the pattern is absent.
package signals

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/marketpilot/internal/indicators"
)

// Bar is one OHLCV candle.
type Bar struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// Signal is one detected tactical setup.
type Signal struct {
	Pattern    string                 `json:"pattern"`
	Symbol     string                 `json:"symbol"`
	Confidence float64                `json:"confidence"`
	EntryPrice float64                `json:"entry_price"`
	StopPrice  float64                `json:"stop_price"`
	Timestamp  string                 `json:"timestamp_iso"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// Detector inspects bars and returns a signal or nil.
type Detector func(bars []Bar, symbol string) *Signal

// Catalog is the detector registry in scan order.
var Catalog = map[string]Detector{
	"EpisodicPivot": EpisodicPivot,
	"MomentumBurst": MomentumBurst,
	"ElephantBar":   ElephantBar,
	"VCP":           VCP,
	"HighTightFlag": HighTightFlag,
	"InsideBar212":  InsideBar212,
}

// ScanSymbol runs every detector over the bars. A panicking detector is
// isolated and logged; the rest still run.
func ScanSymbol(bars []Bar, symbol string) []Signal {
	var found []Signal
	for name, detect := range Catalog {
		sig := runDetector(name, detect, bars, symbol)
		if sig != nil {
			found = append(found, *sig)
		}
	}
	return found
}

func runDetector(name string, detect Detector, bars []Bar, symbol string) (sig *Signal) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("detector", name).
				Str("symbol", symbol).
				Interface("panic", r).
				Msg("Detector panicked, skipping")
			sig = nil
		}
	}()
	return detect(bars, symbol)
}

func newSignal(pattern, symbol string, confidence, entry, stop float64, bars []Bar) *Signal {
	return &Signal{
		Pattern:    pattern,
		Symbol:     symbol,
		Confidence: confidence,
		EntryPrice: entry,
		StopPrice:  stop,
		Timestamp:  bars[len(bars)-1].Timestamp.UTC().Format(time.RFC3339),
	}
}

// EpisodicPivot finds a >4% gap-up on record volume over the trailing
// 252 bars.
func EpisodicPivot(bars []Bar, symbol string) *Signal {
	if len(bars) < 2 {
		return nil
	}
	today := bars[len(bars)-1]
	prior := bars[len(bars)-2]
	if prior.Close <= 0 {
		return nil
	}

	gap := (today.Open - prior.Close) / prior.Close
	if gap <= 0.04 {
		return nil
	}

	start := len(bars) - 252
	if start < 0 {
		start = 0
	}
	for _, b := range bars[start : len(bars)-1] {
		if b.Volume > today.Volume {
			return nil
		}
	}

	sig := newSignal("EpisodicPivot", symbol, 0.80, today.High, today.Low, bars)
	sig.Metadata = map[string]interface{}{"gap_pct": gap * 100}
	return sig
}

// MomentumBurst finds a breakout from a tight low-volume consolidation
// after a strong 20-bar advance.
func MomentumBurst(bars []Bar, symbol string) *Signal {
	if len(bars) < 21 {
		return nil
	}
	today := bars[len(bars)-1]

	base := bars[len(bars)-21].Close
	if base <= 0 || (today.Close-base)/base <= 0.05 {
		return nil
	}

	var avgVolume float64
	for _, b := range bars[len(bars)-21 : len(bars)-1] {
		avgVolume += b.Volume
	}
	avgVolume /= 20

	// Trailing 3 bars before today must be tight and quiet
	consolidation := bars[len(bars)-4 : len(bars)-1]
	consHigh, consLow := consolidation[0].High, consolidation[0].Low
	for _, b := range consolidation {
		if b.Close <= 0 || (b.High-b.Low)/b.Close >= 0.02 {
			return nil
		}
		if b.Volume >= avgVolume {
			return nil
		}
		if b.High > consHigh {
			consHigh = b.High
		}
		if b.Low < consLow {
			consLow = b.Low
		}
	}

	if today.Close <= consHigh || today.Volume <= avgVolume {
		return nil
	}

	return newSignal("MomentumBurst", symbol, 0.72, today.High*1.001, consLow, bars)
}

// ElephantBar finds an outsized green candle launching off the 20-SMA.
func ElephantBar(bars []Bar, symbol string) *Signal {
	if len(bars) < 21 {
		return nil
	}
	today := bars[len(bars)-1]
	if today.Close <= today.Open {
		return nil
	}

	var avgRange float64
	for _, b := range bars[len(bars)-21 : len(bars)-1] {
		avgRange += b.High - b.Low
	}
	avgRange /= 20

	if today.High-today.Low <= 2*avgRange {
		return nil
	}

	closes := make([]float64, 0, 20)
	for _, b := range bars[len(bars)-20:] {
		closes = append(closes, b.Close)
	}
	sma, ok := indicators.Last(indicators.SMA(closes, 20))
	if !ok || sma <= 0 {
		return nil
	}
	if today.Low < sma*0.97 || today.Low > sma*1.03 {
		return nil
	}

	return newSignal("ElephantBar", symbol, 0.75, today.High*1.001, today.Low, bars)
}

// vcpWave is one peak-to-trough pullback in a contraction sequence.
type vcpWave struct {
	peak, trough float64
}

// VCP finds a volatility contraction: successive pullbacks each no
// deeper than 70% of the previous, with price pressing the tightest
// pivot high.
func VCP(bars []Bar, symbol string) *Signal {
	if len(bars) < 60 {
		return nil
	}
	window := bars[len(bars)-60:]
	waves := findWaves(window)
	if len(waves) < 3 {
		return nil
	}

	for i := 1; i < len(waves); i++ {
		prevDD := drawdown(waves[i-1])
		currDD := drawdown(waves[i])
		if prevDD <= 0 || currDD > prevDD*0.70 {
			return nil
		}
	}

	tightest := waves[len(waves)-1]
	price := window[len(window)-1].Close
	if tightest.peak <= 0 || price < tightest.peak*0.97 || price > tightest.peak*1.03 {
		return nil
	}

	sig := newSignal("VCP", symbol, 0.78, tightest.peak*1.001, tightest.trough, bars)
	sig.Metadata = map[string]interface{}{"waves": len(waves)}
	return sig
}

func drawdown(w vcpWave) float64 {
	if w.peak <= 0 {
		return 0
	}
	return (w.peak - w.trough) / w.peak
}

// findWaves extracts peak-trough pullbacks using 1-bar swing pivots on
// closes.
func findWaves(bars []Bar) []vcpWave {
	var waves []vcpWave
	var peak float64
	havePeak := false

	for i := 1; i < len(bars)-1; i++ {
		c := bars[i].Close
		isHigh := c > bars[i-1].Close && c >= bars[i+1].Close
		isLow := c < bars[i-1].Close && c <= bars[i+1].Close

		if isHigh {
			peak = c
			havePeak = true
		} else if isLow && havePeak {
			waves = append(waves, vcpWave{peak: peak, trough: c})
			havePeak = false
		}
	}
	return waves
}

// HighTightFlag finds a tight 3-5 bar flag after a doubling move,
// breaking out on at least 3x average volume.
func HighTightFlag(bars []Bar, symbol string) *Signal {
	if len(bars) < 46 {
		return nil
	}
	today := bars[len(bars)-1]

	var avgVolume float64
	for _, b := range bars[len(bars)-21 : len(bars)-1] {
		avgVolume += b.Volume
	}
	avgVolume /= 20
	if today.Volume < 3*avgVolume {
		return nil
	}

	// Try each flag span; the pole is the 40 bars before the flag
	for span := 3; span <= 5; span++ {
		flag := bars[len(bars)-1-span : len(bars)-1]
		pole := bars[len(bars)-1-span-40 : len(bars)-1-span]

		poleStart := pole[0].Close
		poleEnd := pole[len(pole)-1].Close
		if poleStart <= 0 || (poleEnd-poleStart)/poleStart < 1.0 {
			continue
		}

		flagHigh, flagLow := flag[0].High, flag[0].Low
		for _, b := range flag {
			if b.High > flagHigh {
				flagHigh = b.High
			}
			if b.Low < flagLow {
				flagLow = b.Low
			}
		}

		// Retrace within the flag must hold 20% of the prior leg
		leg := poleEnd - poleStart
		if leg <= 0 || (poleEnd-flagLow) > 0.20*leg {
			continue
		}

		if today.Close > flagHigh {
			sig := newSignal("HighTightFlag", symbol, 0.82, flagHigh*1.001, flagLow, bars)
			sig.Metadata = map[string]interface{}{"flag_bars": span}
			return sig
		}
	}
	return nil
}

// InsideBar212 finds an inside bar following a strong up bar.
func InsideBar212(bars []Bar, symbol string) *Signal {
	if len(bars) < 3 {
		return nil
	}
	today := bars[len(bars)-1]
	mother := bars[len(bars)-2]
	prior := bars[len(bars)-3]

	if mother.Open <= 0 || prior.Close <= 0 {
		return nil
	}
	if (mother.Close-mother.Open)/mother.Open <= 0.01 {
		return nil
	}
	if (mother.Close-prior.Close)/prior.Close <= 0.01 {
		return nil
	}
	if today.High >= mother.High || today.Low <= mother.Low {
		return nil
	}

	return newSignal("InsideBar212", symbol, 0.68, today.High*1.001, today.Low*0.999, bars)
}
