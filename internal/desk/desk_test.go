package desk

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/marketpilot/internal/bus"
	"github.com/ajitpratap0/marketpilot/internal/signals"
	"github.com/ajitpratap0/marketpilot/internal/swarm"
)

type stubScorer struct {
	name    string
	verdict swarm.Verdict
}

func (s stubScorer) Name() string { return s.name }

func (s stubScorer) Assess(ctx context.Context, in swarm.Inputs) swarm.Verdict { return s.verdict }

func scorers(bullish, neutral, bearish int) []swarm.Scorer {
	var out []swarm.Scorer
	for i := 0; i < bullish; i++ {
		out = append(out, stubScorer{fmt.Sprintf("bull%d", i), swarm.Bullish})
	}
	for i := 0; i < neutral; i++ {
		out = append(out, stubScorer{fmt.Sprintf("flat%d", i), swarm.Neutral})
	}
	for i := 0; i < bearish; i++ {
		out = append(out, stubScorer{fmt.Sprintf("bear%d", i), swarm.Bearish})
	}
	return out
}

type fakeData struct {
	bars map[string][]signals.Bar
	errs map[string]error
}

func (f fakeData) RecentBars(ctx context.Context, symbol string, limit int) ([]signals.Bar, error) {
	if err := f.errs[symbol]; err != nil {
		return nil, err
	}
	return f.bars[symbol], nil
}

type recordingPublisher struct {
	payloads []interface{}
}

func (r *recordingPublisher) PublishTradeSignal(ctx context.Context, payload interface{}) error {
	r.payloads = append(r.payloads, payload)
	return nil
}

func flatBars(n int) []signals.Bar {
	bars := make([]signals.Bar, n)
	at := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
	for i := range bars {
		bars[i] = signals.Bar{
			Timestamp: at.Add(time.Duration(i) * time.Minute),
			Open:      100, High: 101, Low: 99, Close: 100,
			Volume: 1000,
		}
	}
	return bars
}

func newTestIntel(t *testing.T) (*miniredis.Miniredis, *bus.IntelBus) {
	t.Helper()
	mr := miniredis.RunT(t)
	return mr, bus.NewIntelBus(bus.NewRedisClient(mr.Addr(), "", 0))
}

func publishSnapshot(t *testing.T, intel *bus.IntelBus, regimeName, symbol, pattern string) {
	t.Helper()
	snap := map[string]interface{}{
		"regime": map[string]interface{}{"regime": regimeName},
	}
	if pattern != "" {
		snap["signals"] = []map[string]interface{}{{"symbol": symbol, "pattern": pattern}}
	}
	intel.Publish(context.Background(), "intel:playbook_snapshot", snap, "playbook", 0.9)
}

func TestUnanimousBuyPublishes(t *testing.T) {
	_, intel := newTestIntel(t)
	pub := &recordingPublisher{}

	d := New(
		swarm.NewCIOWith(scorers(3, 0, 0)...),
		fakeData{bars: map[string][]signals.Bar{"NVDA": flatBars(60)}},
		intel, pub, []string{"NVDA"}, "alpaca", 0,
	)

	published := d.Scan(context.Background())
	require.Len(t, published, 1)
	require.Len(t, pub.payloads, 1)

	sig := published[0]
	assert.Equal(t, "buy", sig.Action)
	assert.Equal(t, "NVDA", sig.TickerOrEvent)
	assert.Equal(t, "alpaca", sig.TargetBrokerage)
	assert.Equal(t, StrategyName, sig.SourceStrategy)
	assert.InDelta(t, 0.0499, sig.ProposedAllocationPct, 1e-9)
	assert.NoError(t, sig.Validate())
}

func TestUnanimousSellPublishes(t *testing.T) {
	_, intel := newTestIntel(t)
	pub := &recordingPublisher{}

	d := New(
		swarm.NewCIOWith(scorers(0, 0, 3)...),
		fakeData{bars: map[string][]signals.Bar{"TSLA": flatBars(60)}},
		intel, pub, []string{"TSLA"}, "alpaca", 0,
	)

	published := d.Scan(context.Background())
	require.Len(t, published, 1)
	assert.Equal(t, "sell", published[0].Action)
	assert.InDelta(t, 1.0, published[0].ConfidenceScore, 1e-9)
}

func TestSplitVoteHolds(t *testing.T) {
	_, intel := newTestIntel(t)
	pub := &recordingPublisher{}

	d := New(
		swarm.NewCIOWith(scorers(1, 1, 1)...),
		fakeData{bars: map[string][]signals.Bar{"NVDA": flatBars(60)}},
		intel, pub, []string{"NVDA"}, "alpaca", 0,
	)

	assert.Empty(t, d.Scan(context.Background()))
	assert.Empty(t, pub.payloads)
}

// 13 bullish, 3 neutral, 4 bearish averages 0.725: an executable buy,
// but below the 0.75 a YELLOW regime demands.
func TestYellowRegimeBlocksMarginalBuy(t *testing.T) {
	_, intel := newTestIntel(t)
	pub := &recordingPublisher{}
	publishSnapshot(t, intel, "YELLOW", "NVDA", "")

	d := New(
		swarm.NewCIOWith(scorers(13, 3, 4)...),
		fakeData{bars: map[string][]signals.Bar{"NVDA": flatBars(60)}},
		intel, pub, []string{"NVDA"}, "alpaca", 0,
	)

	assert.Empty(t, d.Scan(context.Background()))
}

func TestCatalystPatternLiftsMarginalBuyInYellow(t *testing.T) {
	_, intel := newTestIntel(t)
	pub := &recordingPublisher{}
	publishSnapshot(t, intel, "YELLOW", "NVDA", "EpisodicPivot")

	d := New(
		swarm.NewCIOWith(scorers(13, 3, 4)...),
		fakeData{bars: map[string][]signals.Bar{"NVDA": flatBars(60)}},
		intel, pub, []string{"NVDA"}, "alpaca", 0,
	)

	published := d.Scan(context.Background())
	require.Len(t, published, 1)
	assert.InDelta(t, 0.825, published[0].ConfidenceScore, 1e-9)
}

func TestBarFailureSkipsOnlyThatSymbol(t *testing.T) {
	_, intel := newTestIntel(t)
	pub := &recordingPublisher{}

	d := New(
		swarm.NewCIOWith(scorers(3, 0, 0)...),
		fakeData{
			bars: map[string][]signals.Bar{"NVDA": flatBars(60)},
			errs: map[string]error{"TSLA": fmt.Errorf("substrate down")},
		},
		intel, pub, []string{"TSLA", "NVDA"}, "alpaca", 0,
	)

	published := d.Scan(context.Background())
	require.Len(t, published, 1)
	assert.Equal(t, "NVDA", published[0].TickerOrEvent)
}

func TestMissingSnapshotFallsBackPermissive(t *testing.T) {
	_, intel := newTestIntel(t)
	pub := &recordingPublisher{}

	// 13/3/4 averages 0.725, which GREEN (the fallback) lets through.
	d := New(
		swarm.NewCIOWith(scorers(13, 3, 4)...),
		fakeData{bars: map[string][]signals.Bar{"NVDA": flatBars(60)}},
		intel, pub, []string{"NVDA"}, "alpaca", 0,
	)

	assert.Len(t, d.Scan(context.Background()), 1)
}

func TestSocialScoreOnlyAppliesToTopTicker(t *testing.T) {
	_, intel := newTestIntel(t)
	intel.Publish(context.Background(), "intel:social_score", map[string]interface{}{
		"score": 85.0, "top_ticker": "NVDA",
	}, "social", 0.6)

	var captured []swarm.Inputs
	capture := capturingScorer{inputs: &captured}

	d := New(
		swarm.NewCIOWith(capture, capture, capture),
		fakeData{bars: map[string][]signals.Bar{"NVDA": flatBars(60), "TSLA": flatBars(60)}},
		intel, &recordingPublisher{}, []string{"NVDA", "TSLA"}, "alpaca", 0,
	)
	d.Scan(context.Background())

	require.NotEmpty(t, captured)
	for _, in := range captured {
		if in.Symbol == "NVDA" {
			assert.Equal(t, 85.0, in.SocialScore)
		} else {
			assert.Zero(t, in.SocialScore)
		}
	}
}

type capturingScorer struct {
	inputs *[]swarm.Inputs
}

func (c capturingScorer) Name() string { return "capture" }

func (c capturingScorer) Assess(ctx context.Context, in swarm.Inputs) swarm.Verdict {
	*c.inputs = append(*c.inputs, in)
	return swarm.Neutral
}
