package swarm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/marketpilot/internal/signals"
)

type stubScorer struct {
	name    string
	verdict Verdict
}

func (s stubScorer) Name() string { return s.name }

func (s stubScorer) Assess(ctx context.Context, in Inputs) Verdict { return s.verdict }

func desk(verdicts ...Verdict) *CIO {
	scorers := make([]Scorer, len(verdicts))
	for i, v := range verdicts {
		scorers[i] = stubScorer{name: string(rune('a' + i)), verdict: v}
	}
	return NewCIOWith(scorers...)
}

func TestVerdictScores(t *testing.T) {
	assert.Equal(t, 1.0, Bullish.Score())
	assert.Equal(t, 0.0, Bearish.Score())
	assert.Equal(t, 0.5, Neutral.Score())
}

func TestUnanimousBullishBuys(t *testing.T) {
	d, err := desk(Bullish, Bullish, Bullish).Decide(context.Background(), Inputs{Symbol: "NVDA"})
	require.NoError(t, err)

	assert.Equal(t, ActionBuy, d.Action)
	assert.Equal(t, "EXECUTE", d.Verdict)
	assert.Equal(t, 1.0, d.Confidence)
	assert.InDelta(t, 4.99, d.SizePct, 1e-9)
}

func TestUnanimousBearishSells(t *testing.T) {
	d, err := desk(Bearish, Bearish, Bearish).Decide(context.Background(), Inputs{Symbol: "NVDA"})
	require.NoError(t, err)

	assert.Equal(t, ActionSell, d.Action)
	assert.Equal(t, "EXECUTE", d.Verdict)
	assert.Equal(t, 1.0, d.Confidence)
	assert.InDelta(t, 4.99, d.SizePct, 1e-9)
}

func TestSplitDeskHolds(t *testing.T) {
	// avg = (1 + 0 + 0.5)/3 = 0.5, between the cut-offs
	d, err := desk(Bullish, Bearish, Neutral).Decide(context.Background(), Inputs{Symbol: "NVDA"})
	require.NoError(t, err)

	assert.Equal(t, ActionHold, d.Action)
	assert.Equal(t, "PASS", d.Verdict)
	assert.Zero(t, d.SizePct)
}

func TestTwoBullishOneNeutralBuys(t *testing.T) {
	// avg = (1 + 1 + 0.5)/3 ≈ 0.833 > 0.7 buys
	d, err := desk(Bullish, Bullish, Neutral).Decide(context.Background(), Inputs{Symbol: "NVDA"})
	require.NoError(t, err)

	assert.Equal(t, ActionBuy, d.Action)
	assert.InDelta(t, 0.8333, d.Confidence, 0.001)
}

func TestConsensusNearCutoff(t *testing.T) {
	// (1 + 0.5 + 0.5)/3 ≈ 0.667 stays below the buy cut-off
	d, err := desk(Bullish, Neutral, Neutral).Decide(context.Background(), Inputs{})
	require.NoError(t, err)
	assert.Equal(t, ActionHold, d.Action)

	// exactly 0.7 from ten scorers is not strictly above the cut-off
	d, err = desk(Bullish, Bullish, Bullish, Bullish, Bullish, Bullish, Neutral, Neutral, Bearish, Bearish).
		Decide(context.Background(), Inputs{})
	require.NoError(t, err)
	assert.Equal(t, ActionHold, d.Action)
}

func TestSizePct(t *testing.T) {
	assert.Zero(t, SizePct(0.5))
	assert.Zero(t, SizePct(0.2))
	assert.InDelta(t, 4.99*0.44, SizePct(0.72), 1e-9)
	assert.InDelta(t, 4.99, SizePct(1.0), 1e-9)
}

func TestEmptyDeskErrors(t *testing.T) {
	_, err := NewCIOWith().Decide(context.Background(), Inputs{})
	assert.Error(t, err)
}

// zigzagBars alternates an up move and a down move so RSI lands in a
// mid band instead of pegging at an extreme.
func zigzagBars(n int, start, up, down float64) []signals.Bar {
	bars := make([]signals.Bar, n)
	price := start
	for i := range bars {
		if i%2 == 0 {
			price += up
		} else {
			price -= down
		}
		bars[i] = signals.Bar{Open: price, High: price + 1, Low: price - 1, Close: price, Volume: 1000}
	}
	return bars
}

func TestTechnicalScorer(t *testing.T) {
	up := Inputs{Bars: zigzagBars(60, 100, 2, 1)}
	assert.Equal(t, Bullish, Technical{}.Assess(context.Background(), up))

	down := Inputs{Bars: zigzagBars(60, 200, 1, 2)}
	assert.Equal(t, Bearish, Technical{}.Assess(context.Background(), down))

	thin := Inputs{Bars: zigzagBars(10, 100, 2, 1)}
	assert.Equal(t, Neutral, Technical{}.Assess(context.Background(), thin))
}

func TestFundamentalScorer(t *testing.T) {
	ctx := context.Background()

	assert.Equal(t, Bullish, Fundamental{}.Assess(ctx, Inputs{PERatio: 25, RevenueGrowth: 0.2, ProfitMargin: 0.15}))
	assert.Equal(t, Bearish, Fundamental{}.Assess(ctx, Inputs{PERatio: 25, RevenueGrowth: -0.05, ProfitMargin: 0.1}))
	// Great growth at an extreme multiple is not a buy
	assert.Equal(t, Neutral, Fundamental{}.Assess(ctx, Inputs{PERatio: 90, RevenueGrowth: 0.3, ProfitMargin: 0.2}))
	// No data renders no opinion
	assert.Equal(t, Neutral, Fundamental{}.Assess(ctx, Inputs{}))
}

func TestSentimentScorer(t *testing.T) {
	ctx := context.Background()

	assert.Equal(t, Bullish, Sentiment{}.Assess(ctx, Inputs{SocialScore: 85, NewsScore: 0.2}))
	assert.Equal(t, Bearish, Sentiment{}.Assess(ctx, Inputs{SocialScore: 20}))
	assert.Equal(t, Bearish, Sentiment{}.Assess(ctx, Inputs{SocialScore: 50, NewsScore: -0.8}))
	assert.Equal(t, Neutral, Sentiment{}.Assess(ctx, Inputs{SocialScore: 50, NewsScore: 0}))
}
