// Package swarm implements per-symbol analyst scoring and the CIO
// consensus decision. Three stateless scorers each issue a verdict;
// the CIO averages their numeric mappings and converts the result
// into a trade decision with a Kelly-derived size.
package swarm

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/marketpilot/internal/indicators"
	"github.com/ajitpratap0/marketpilot/internal/signals"
)

// Verdict is a scorer's stance on a symbol.
type Verdict string

const (
	Bullish Verdict = "BULLISH"
	Bearish Verdict = "BEARISH"
	Neutral Verdict = "NEUTRAL"
)

// Score maps a verdict to its consensus weight.
func (v Verdict) Score() float64 {
	switch v {
	case Bullish:
		return 1.0
	case Bearish:
		return 0.0
	default:
		return 0.5
	}
}

// Inputs bundles everything a scorer may consult for one symbol.
type Inputs struct {
	Symbol string
	Bars   []signals.Bar // newest last

	// Fundamental context, zero-valued when unknown
	PERatio       float64
	RevenueGrowth float64 // fractional, e.g. 0.15
	ProfitMargin  float64

	// Sentiment context
	SocialScore float64 // 0-100 hype composite
	NewsScore   float64 // -1..1 headline tone
}

// Scorer renders a verdict for one symbol from shared inputs.
type Scorer interface {
	Name() string
	Assess(ctx context.Context, in Inputs) Verdict
}

// Technical scores price action: trend via EMA21 posture and momentum
// via RSI14.
type Technical struct{}

func (Technical) Name() string { return "technical" }

func (Technical) Assess(ctx context.Context, in Inputs) Verdict {
	closes := make([]float64, len(in.Bars))
	for i, b := range in.Bars {
		closes[i] = b.Close
	}
	if len(closes) < 30 {
		return Neutral
	}

	ema := indicators.EMA(closes, 21)
	rsi, ok := indicators.RSI(closes, 14)
	if len(ema) == 0 || !ok {
		return Neutral
	}

	price := closes[len(closes)-1]
	trendLevel, _ := indicators.Last(ema)
	aboveTrend := price > trendLevel

	switch {
	case aboveTrend && rsi > 55 && rsi < 80:
		return Bullish
	case !aboveTrend && rsi < 45:
		return Bearish
	default:
		return Neutral
	}
}

// Fundamental scores the business: growth and margins against a
// valuation sanity check.
type Fundamental struct{}

func (Fundamental) Name() string { return "fundamental" }

func (Fundamental) Assess(ctx context.Context, in Inputs) Verdict {
	if in.PERatio == 0 && in.RevenueGrowth == 0 && in.ProfitMargin == 0 {
		return Neutral
	}

	overvalued := in.PERatio > 60
	growing := in.RevenueGrowth > 0.10 && in.ProfitMargin > 0.05
	shrinking := in.RevenueGrowth < 0 || in.ProfitMargin < 0

	switch {
	case growing && !overvalued:
		return Bullish
	case shrinking:
		return Bearish
	default:
		return Neutral
	}
}

// Sentiment scores crowd positioning: social hype and headline tone.
type Sentiment struct{}

func (Sentiment) Name() string { return "sentiment" }

func (Sentiment) Assess(ctx context.Context, in Inputs) Verdict {
	switch {
	case in.SocialScore >= 70 && in.NewsScore >= 0:
		return Bullish
	case in.SocialScore > 0 && in.SocialScore <= 30, in.NewsScore < -0.5:
		return Bearish
	default:
		return Neutral
	}
}

// Action is the CIO's trade direction.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// Decision is the CIO consensus output for one symbol.
type Decision struct {
	Symbol     string             `json:"symbol"`
	Action     Action             `json:"action"`
	Verdict    string             `json:"verdict"` // EXECUTE or PASS
	Confidence float64            `json:"confidence"`
	SizePct    float64            `json:"size_pct"` // 0-4.99 percent of bankroll
	Votes      map[string]Verdict `json:"votes"`
}

// Consensus cut-offs and the per-position size cap.
const (
	buyCutoff  = 0.7
	sellCutoff = 0.3
	maxSizePct = 4.99
)

// CIO aggregates scorer verdicts into a single decision.
type CIO struct {
	scorers []Scorer
}

// NewCIO builds the consensus desk with the standard three scorers.
func NewCIO() *CIO {
	return &CIO{scorers: []Scorer{Technical{}, Fundamental{}, Sentiment{}}}
}

// NewCIOWith builds a desk over custom scorers.
func NewCIOWith(scorers ...Scorer) *CIO {
	return &CIO{scorers: scorers}
}

// Decide runs every scorer and averages their verdicts. Above 0.7 the
// desk buys with the average as confidence; below 0.3 it sells with
// the inverted average; between, it holds and passes.
func (c *CIO) Decide(ctx context.Context, in Inputs) (Decision, error) {
	if len(c.scorers) == 0 {
		return Decision{}, fmt.Errorf("swarm: no scorers registered")
	}

	votes := make(map[string]Verdict, len(c.scorers))
	var sum float64
	for _, s := range c.scorers {
		v := s.Assess(ctx, in)
		votes[s.Name()] = v
		sum += v.Score()
	}
	avg := sum / float64(len(c.scorers))

	d := Decision{Symbol: in.Symbol, Votes: votes}
	switch {
	case avg > buyCutoff:
		d.Action = ActionBuy
		d.Verdict = "EXECUTE"
		d.Confidence = avg
	case avg < sellCutoff:
		d.Action = ActionSell
		d.Verdict = "EXECUTE"
		d.Confidence = 1 - avg
	default:
		d.Action = ActionHold
		d.Verdict = "PASS"
		d.Confidence = avg
	}
	d.SizePct = SizePct(d.Confidence)
	if d.Action == ActionHold {
		d.SizePct = 0
	}

	log.Debug().
		Str("symbol", in.Symbol).
		Str("action", string(d.Action)).
		Float64("avg", avg).
		Float64("size_pct", d.SizePct).
		Msg("CIO consensus")

	return d, nil
}

// SizePct converts consensus confidence into a position size in
// percent of a unit bankroll. Confidence at or below 0.5 sizes zero.
func SizePct(confidence float64) float64 {
	kellyFactor := 2*confidence - 1
	if kellyFactor < 0 {
		kellyFactor = 0
	}
	size := maxSizePct * kellyFactor
	if size > maxSizePct {
		size = maxSizePct
	}
	return size
}
