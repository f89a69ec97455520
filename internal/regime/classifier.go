// Package regime classifies the macro market environment from SPY
// price history with a credit-market divergence check over JNK and TLT.
package regime

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/marketpilot/internal/indicators"
)

// Regime is the macro traffic light consumed by the signal gate.
type Regime string

const (
	Green  Regime = "GREEN"
	Yellow Regime = "YELLOW"
	Red    Regime = "RED"
)

const (
	minBars     = 50
	emaPeriod   = 21
	smaPeriod   = 50
	emaLookback = 3

	divergenceWindow  = 5
	divergencePenalty = 0.15
	confidenceFloor   = 0.45
)

// State is the classifier output published each observation cycle.
type State struct {
	Regime           Regime    `json:"regime"`
	SPY              float64   `json:"spy"`
	EMA21            float64   `json:"ema21"`
	SMA50            float64   `json:"sma50"`
	CreditDivergence bool      `json:"credit_divergence"`
	Confidence       float64   `json:"confidence"`
	Timestamp        time.Time `json:"timestamp"`
	Reason           string    `json:"reason"`
}

// Classify maps SPY closes plus JNK/TLT closes to a regime. All series
// are chronological with the most recent bar last.
func Classify(spyCloses, jnkCloses, tltCloses []float64) State {
	now := time.Now().UTC()

	if len(spyCloses) < minBars {
		return State{
			Regime:     Red,
			Confidence: 0.1,
			Timestamp:  now,
			Reason:     "insufficient data",
		}
	}

	price := spyCloses[len(spyCloses)-1]
	emaSeries := indicators.EMA(spyCloses, emaPeriod)
	smaSeries := indicators.SMA(spyCloses, smaPeriod)

	ema, _ := indicators.Last(emaSeries)
	sma, _ := indicators.Last(smaSeries)
	emaAgo, hasLookback := indicators.Ago(emaSeries, emaLookback)
	emaRising := hasLookback && ema > emaAgo

	state := State{
		SPY:       price,
		EMA21:     ema,
		SMA50:     sma,
		Timestamp: now,
	}

	switch {
	case price > ema && emaRising:
		state.Regime = Green
		state.Confidence = 0.85
		state.Reason = fmt.Sprintf("price %.2f above rising EMA21 %.2f", price, ema)
	case price > sma:
		state.Regime = Yellow
		state.Confidence = 0.70
		state.Reason = fmt.Sprintf("price %.2f above SMA50 %.2f but EMA21 not confirming", price, sma)
	default:
		state.Regime = Red
		state.Confidence = 0.80
		state.Reason = fmt.Sprintf("price %.2f below SMA50 %.2f", price, sma)
	}

	if price > ema && creditDiverging(jnkCloses, tltCloses) {
		state.CreditDivergence = true
		state.Confidence -= divergencePenalty
		if state.Confidence < confidenceFloor {
			state.Confidence = confidenceFloor
		}
		state.Reason += "; warning: credit divergence (JNK lagging TLT)"
	}

	log.Info().
		Str("regime", string(state.Regime)).
		Float64("confidence", state.Confidence).
		Bool("credit_divergence", state.CreditDivergence).
		Str("reason", state.Reason).
		Msg("Regime classified")

	return state
}

// creditDiverging reports whether JNK's 5-day return trails TLT's.
// Junk credit underperforming treasuries while equities rally is an
// early risk-off tell.
func creditDiverging(jnk, tlt []float64) bool {
	jnkRet, ok := trailingReturn(jnk, divergenceWindow)
	if !ok {
		return false
	}
	tltRet, ok := trailingReturn(tlt, divergenceWindow)
	if !ok {
		return false
	}
	return jnkRet < tltRet
}

func trailingReturn(closes []float64, window int) (float64, bool) {
	if len(closes) < window+1 {
		return 0, false
	}
	base := closes[len(closes)-1-window]
	if base == 0 {
		return 0, false
	}
	return (closes[len(closes)-1] - base) / base, true
}
