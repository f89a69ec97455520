// Package gate filters consensus decisions through regime-dependent
// confidence thresholds before they reach the trade-signal channel.
package gate

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/marketpilot/internal/regime"
	"github.com/ajitpratap0/marketpilot/internal/swarm"
)

// catalystBonus lifts high-conviction breakout patterns in defensive
// regimes. Trend-continuation patterns get no lift.
const catalystBonus = 0.10

// catalystPatterns are the patterns eligible for the bonus.
var catalystPatterns = map[string]bool{
	"EpisodicPivot": true,
	"InsideBar212":  true,
}

// thresholds maps regime and action to the minimum confidence that
// passes the gate. Buying gets harder as conditions worsen; reducing
// exposure gets easier.
var thresholds = map[regime.Regime]map[swarm.Action]float64{
	regime.Green: {
		swarm.ActionBuy:  0.55,
		swarm.ActionSell: 0.55,
		ActionShort:      0.55,
	},
	regime.Yellow: {
		swarm.ActionBuy:  0.75,
		swarm.ActionSell: 0.50,
		ActionShort:      0.50,
	},
	regime.Red: {
		swarm.ActionBuy:  0.85,
		swarm.ActionSell: 0.45,
		ActionShort:      0.45,
	},
}

// ActionShort extends the swarm action set for gate purposes.
const ActionShort swarm.Action = "SHORT"

// Verdict is the gate's ruling on one decision.
type Verdict struct {
	Blocked             bool
	EffectiveConfidence float64
	Reason              string
}

// Check evaluates confidence for an action under the given regime.
// Unknown or missing regimes fall back to GREEN. The pattern name, if
// any, earns the catalyst bonus in YELLOW and RED.
func Check(r regime.Regime, action swarm.Action, confidence float64, pattern string) Verdict {
	table, ok := thresholds[r]
	if !ok {
		r = regime.Green
		table = thresholds[regime.Green]
	}

	threshold, ok := table[action]
	if !ok {
		return Verdict{
			Blocked: true,
			Reason:  fmt.Sprintf("unknown action %q", action),
		}
	}

	effective := confidence
	if r != regime.Green && catalystPatterns[pattern] {
		effective += catalystBonus
		if effective > 1.0 {
			effective = 1.0
		}
	}

	if effective < threshold {
		reason := fmt.Sprintf("regime %s requires %.2f for %s, confidence %.2f", r, threshold, action, confidence)
		log.Debug().
			Str("regime", string(r)).
			Str("action", string(action)).
			Float64("confidence", confidence).
			Float64("effective", effective).
			Float64("threshold", threshold).
			Msg("Gate blocked decision")
		return Verdict{Blocked: true, EffectiveConfidence: effective, Reason: reason}
	}

	return Verdict{EffectiveConfidence: effective, Reason: "passed"}
}
