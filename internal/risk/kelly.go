// Package risk implements position sizing and the pre-trade safety
// rails: fractional Kelly, CVaR, drawdown monitoring, the wash-sale
// guard, the daily loss cap, and portfolio heat.
package risk

import (
	"github.com/rs/zerolog/log"
)

// Kelly fractions per configured risk level. Full Kelly is never used;
// drawdowns at full Kelly are intolerable for a live book.
const (
	FractionConservative = 0.25
	FractionModerate     = 0.40
	FractionAggressive   = 0.50
)

// FractionForLevel maps a risk level to its Kelly fraction. Unknown
// levels fall back to conservative.
func FractionForLevel(level string) float64 {
	switch level {
	case "MODERATE":
		return FractionModerate
	case "AGGRESSIVE":
		return FractionAggressive
	default:
		return FractionConservative
	}
}

// Kelly computes the raw Kelly percentage from win rate p, average win
// w, and average loss l (both positive magnitudes):
//
//	f* = (p*w - (1-p)*l) / w
//
// Negative expectancy clamps to zero.
func Kelly(winRate, avgWin, avgLoss float64) float64 {
	if avgWin <= 0 {
		return 0
	}
	f := (winRate*avgWin - (1-winRate)*avgLoss) / avgWin
	if f < 0 {
		return 0
	}
	return f
}

// KellyFromOdds computes the Kelly percentage for a binary-outcome
// venue from confidence p and decimal odds o:
//
//	f* = (p(o-1) - (1-p)) / (o-1)
func KellyFromOdds(confidence, odds float64) float64 {
	b := odds - 1
	if b <= 0 {
		return 0
	}
	f := (confidence*b - (1 - confidence)) / b
	if f < 0 {
		return 0
	}
	return f
}

// PositionFraction applies the configured Kelly fraction and the
// max-position cap to a raw Kelly percentage.
func PositionFraction(rawKelly, kellyFraction, maxPositionSize float64) float64 {
	adjusted := rawKelly * kellyFraction
	if adjusted > maxPositionSize {
		log.Debug().
			Float64("adjusted_kelly", adjusted).
			Float64("cap", maxPositionSize).
			Msg("Kelly size capped at max position size")
		adjusted = maxPositionSize
	}
	if adjusted < 0 {
		adjusted = 0
	}
	return adjusted
}

// SizeFromOdds computes a dollar position for a signal scored as
// confidence against analyzer-provided decimal odds.
func SizeFromOdds(confidence, odds, bankroll, kellyFraction, maxPositionSize float64) float64 {
	raw := KellyFromOdds(confidence, odds)
	fraction := PositionFraction(raw, kellyFraction, maxPositionSize)
	size := bankroll * fraction

	log.Debug().
		Float64("confidence", confidence).
		Float64("odds", odds).
		Float64("raw_kelly", raw).
		Float64("fraction", fraction).
		Float64("size", size).
		Msg("Kelly position sized")

	return size
}
