package analyzer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/marketpilot/internal/bus"
	"github.com/ajitpratap0/marketpilot/internal/signals"
)

func newTestIntel(t *testing.T) (*bus.IntelBus, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return bus.NewIntelBus(client), mr
}

type fakeBars struct {
	bars []signals.Bar
	err  error
}

func (f *fakeBars) RecentBars(ctx context.Context, symbol string, limit int) ([]signals.Bar, error) {
	return f.bars, f.err
}

func trendBars(n int, start, step, volume float64) []signals.Bar {
	bars := make([]signals.Bar, n)
	for i := range bars {
		c := start + step*float64(i)
		bars[i] = signals.Bar{Open: c, High: c + 1, Low: c - 1, Close: c, Volume: volume}
	}
	return bars
}

func TestCryptoBullishTape(t *testing.T) {
	intel, _ := newTestIntel(t)
	ctx := context.Background()

	c := NewCrypto("BTC/USDT", &fakeBars{bars: trendBars(100, 50000, 100, 1000)}, intel)
	result := c.Analyze(ctx)

	assert.Equal(t, KindSuccess, result.Kind)
	assert.Equal(t, "bullish", result.Signal)
	assert.Greater(t, result.Score, 50.0)

	sentiment := intel.ReadFloat(ctx, "intel:btc_sentiment", 0)
	assert.Greater(t, sentiment, 0.2)
}

func TestCryptoVolumeSpikePublished(t *testing.T) {
	intel, _ := newTestIntel(t)
	ctx := context.Background()

	bars := trendBars(100, 50000, 100, 1000)
	bars[len(bars)-1].Volume = 5000

	c := NewCrypto("BTC/USDT", &fakeBars{bars: bars}, intel)
	c.Analyze(ctx)

	var spike struct {
		Detected   bool    `json:"detected"`
		Multiplier float64 `json:"multiplier"`
	}
	require.True(t, intel.ReadInto(ctx, "intel:btc_volume_spike", &spike))
	assert.True(t, spike.Detected)
	assert.InDelta(t, 5.0, spike.Multiplier, 0.01)
}

func TestCryptoFeedFailure(t *testing.T) {
	intel, _ := newTestIntel(t)
	c := NewCrypto("BTC/USDT", &fakeBars{err: errors.New("exchange down")}, intel)

	result := c.Analyze(context.Background())
	assert.Equal(t, KindFailure, result.Kind)
	assert.Contains(t, result.Reason, "exchange down")
}

func TestCryptoThinHistoryIsNoSignal(t *testing.T) {
	intel, _ := newTestIntel(t)
	c := NewCrypto("BTC/USDT", &fakeBars{bars: trendBars(10, 50000, 100, 1000)}, intel)

	result := c.Analyze(context.Background())
	assert.Equal(t, KindNoSignal, result.Kind)
}

type fakeMacroData struct {
	vix    float64
	closes []float64
	yield  float64
	fg     float64
	err    error
}

func (f *fakeMacroData) VIX(ctx context.Context) (float64, error) { return f.vix, f.err }
func (f *fakeMacroData) SPYCloses(ctx context.Context, limit int) ([]float64, error) {
	return f.closes, f.err
}
func (f *fakeMacroData) TenYearYield(ctx context.Context) (float64, error) { return f.yield, nil }
func (f *fakeMacroData) FearGreed(ctx context.Context) (float64, error)    { return f.fg, nil }

func TestMacroPublishesContext(t *testing.T) {
	intel, _ := newTestIntel(t)
	ctx := context.Background()

	closes := make([]float64, 30)
	for i := range closes {
		closes[i] = 500 + float64(i)
	}
	m := NewMacro(&fakeMacroData{vix: 32, closes: closes, yield: 4.2, fg: 55}, intel)

	result := m.Analyze(ctx)
	assert.Equal(t, KindNoSignal, result.Kind)

	assert.Equal(t, 32.0, intel.ReadFloat(ctx, "intel:vix_level", 0))
	assert.Equal(t, "bullish", intel.ReadString(ctx, "intel:spy_trend", ""))
	assert.Equal(t, 4.2, intel.ReadFloat(ctx, "macro:10y_yield", 0))

	var bias struct {
		Bias string `json:"bias"`
	}
	require.True(t, intel.ReadInto(ctx, "intel:fed_bias", &bias))
	assert.NotEmpty(t, bias.Bias)
}

func TestMacroFeedFailure(t *testing.T) {
	intel, _ := newTestIntel(t)
	m := NewMacro(&fakeMacroData{err: errors.New("quote feed down")}, intel)

	result := m.Analyze(context.Background())
	assert.Equal(t, KindFailure, result.Kind)
}

type fakeEvents struct {
	events []GeoEvent
	err    error
}

func (f *fakeEvents) RecentEvents(ctx context.Context) ([]GeoEvent, error) {
	return f.events, f.err
}

func TestGeoScoresConflictEvents(t *testing.T) {
	intel, _ := newTestIntel(t)
	ctx := context.Background()

	g := NewGeo(&fakeEvents{events: []GeoEvent{
		{CAMEOCode: 19, Headline: "border clash", Region: "EMEA", Goldstein: -9},
		{CAMEOCode: 14, Headline: "protests", Region: "APAC", Goldstein: -4},
		{CAMEOCode: 3, Headline: "trade talks", Region: "AMER", Goldstein: 5},
	}}, intel)

	result := g.Analyze(ctx)
	assert.Equal(t, KindNoSignal, result.Kind)

	var risk struct {
		Score    float64 `json:"score"`
		Level    string  `json:"level"`
		TopEvent string  `json:"top_event"`
	}
	require.True(t, intel.ReadInto(ctx, "intel:geopolitical_risk", &risk))
	assert.Greater(t, risk.Score, 0.0)
	assert.Equal(t, "border clash", risk.TopEvent)

	var events []GeoEvent
	require.True(t, intel.ReadInto(ctx, "intel:conflict_events", &events))
	// The cooperative CAMEO 3 event is excluded
	assert.Len(t, events, 2)

	var regional map[string]float64
	require.True(t, intel.ReadInto(ctx, "intel:regional_risk", &regional))
	assert.Contains(t, regional, "EMEA")
}

func TestGeoUnavailableFeedIsNoSignalNotFailure(t *testing.T) {
	intel, mr := newTestIntel(t)
	g := NewGeo(&fakeEvents{err: ErrFeedUnavailable}, intel)

	result := g.Analyze(context.Background())
	assert.Equal(t, KindNoSignal, result.Kind)

	// Nothing published when the feed is absent
	assert.Empty(t, mr.Keys())
}

type fakeSocial struct {
	scan  *SocialScan
	err   error
	calls int
}

func (f *fakeSocial) Scan(ctx context.Context) (*SocialScan, error) {
	f.calls++
	return f.scan, f.err
}

func TestSocialActionableScore(t *testing.T) {
	intel, _ := newTestIntel(t)
	budget := NewBudget(100, 0, time.Minute)
	src := &fakeSocial{scan: &SocialScan{Score: 88, TopTicker: "GME", Cost: 0.10}}

	s := NewSocial(src, intel, budget, 70)
	result := s.Analyze(context.Background())

	assert.Equal(t, KindSuccess, result.Kind)
	assert.Equal(t, "GME", result.Ticker)
	assert.Equal(t, 88.0, result.Score)
}

func TestSocialFrequencyWindowSkipsScan(t *testing.T) {
	intel, _ := newTestIntel(t)
	budget := NewBudget(100, 0, time.Hour)
	src := &fakeSocial{scan: &SocialScan{Score: 88, TopTicker: "GME"}}
	s := NewSocial(src, intel, budget, 70)

	s.Analyze(context.Background())
	result := s.Analyze(context.Background())

	assert.Equal(t, KindNoSignal, result.Kind)
	assert.Contains(t, result.Reason, "frequency window")
	assert.Equal(t, 1, src.calls)
}

func TestSocialBudgetExhausted(t *testing.T) {
	intel, _ := newTestIntel(t)
	budget := NewBudget(0.05, 0, time.Nanosecond)
	src := &fakeSocial{scan: &SocialScan{Score: 88, TopTicker: "GME"}}
	s := NewSocial(src, intel, budget, 70)

	result := s.Analyze(context.Background())
	assert.Equal(t, KindNoSignal, result.Kind)
	assert.Contains(t, result.Reason, "budget")
	assert.Zero(t, src.calls)
}

func TestBudgetTracksSpend(t *testing.T) {
	budget := NewBudget(1.0, 0.5, time.Nanosecond)

	ok, _ := budget.Allow(0.3)
	assert.True(t, ok)
	assert.InDelta(t, 0.8, budget.Spend(), 1e-9)

	time.Sleep(time.Millisecond)
	ok, reason := budget.Allow(0.3)
	assert.False(t, ok)
	assert.Contains(t, reason, "exceed budget")
}
