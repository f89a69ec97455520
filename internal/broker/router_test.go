package broker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T, routingEnabled bool) (*Router, *Paper, *Paper, *Paper) {
	t.Helper()

	primary := NewPaper(10000)
	crypto := NewPaper(10000)
	extended := NewPaper(10000)

	router, err := NewRouter(RouterConfig{
		RoutingEnabled: routingEnabled,
		Primary:        "primary",
		Crypto:         "crypto",
		ExtendedHours:  "extended",
	}, map[string]Adapter{
		"primary":  primary,
		"crypto":   crypto,
		"extended": extended,
	})
	require.NoError(t, err)
	return router, primary, crypto, extended
}

// easternTime builds a wall-clock in US eastern time.
func easternTime(t *testing.T, weekday time.Weekday, hour, minute int) time.Time {
	t.Helper()
	eastern, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	// 2026-08-17 is a Monday
	base := time.Date(2026, 8, 17, hour, minute, 0, 0, eastern)
	return base.AddDate(0, 0, int(weekday-time.Monday))
}

func TestRoutingDisabledAlwaysPrimary(t *testing.T) {
	router, primary, _, _ := newTestRouter(t, false)
	router.now = func() time.Time { return easternTime(t, time.Monday, 5, 0) }

	assert.Same(t, Adapter(primary), router.Route("BTC/USDT"))
	assert.Same(t, Adapter(primary), router.Route("NVDA"))
}

func TestCryptoSymbolRoutesToCryptoVenue(t *testing.T) {
	router, _, crypto, _ := newTestRouter(t, true)
	router.now = func() time.Time { return easternTime(t, time.Monday, 11, 0) }

	assert.Same(t, Adapter(crypto), router.Route("BTC/USDT"))
	assert.Same(t, Adapter(crypto), router.Route("ETHUSDT"))
	assert.Same(t, Adapter(crypto), router.Route("SOL-USD"))
}

func TestWeekendRoutesToPrimary(t *testing.T) {
	router, primary, _, _ := newTestRouter(t, true)
	router.now = func() time.Time { return easternTime(t, time.Saturday, 11, 0) }

	assert.Same(t, Adapter(primary), router.Route("NVDA"))
}

func TestPreMarketRoutesToExtendedHours(t *testing.T) {
	router, _, _, extended := newTestRouter(t, true)
	router.now = func() time.Time { return easternTime(t, time.Tuesday, 7, 30) }

	assert.Same(t, Adapter(extended), router.Route("NVDA"))
}

func TestAfterHoursRoutesToExtendedHours(t *testing.T) {
	router, _, _, extended := newTestRouter(t, true)
	router.now = func() time.Time { return easternTime(t, time.Wednesday, 17, 0) }

	assert.Same(t, Adapter(extended), router.Route("NVDA"))
}

func TestRegularHoursRoutesToPrimary(t *testing.T) {
	router, primary, _, _ := newTestRouter(t, true)
	router.now = func() time.Time { return easternTime(t, time.Thursday, 13, 0) }

	assert.Same(t, Adapter(primary), router.Route("NVDA"))
}

func TestOvernightRoutesToPrimary(t *testing.T) {
	router, primary, _, _ := newTestRouter(t, true)
	router.now = func() time.Time { return easternTime(t, time.Friday, 2, 0) }

	assert.Same(t, Adapter(primary), router.Route("NVDA"))
}

func TestCheckHealth(t *testing.T) {
	router, _, _, _ := newTestRouter(t, true)

	health := router.CheckHealth(context.Background())
	assert.Equal(t, map[string]bool{"primary": true, "crypto": true, "extended": true}, health)
}

func TestAggregatePositions(t *testing.T) {
	router, primary, crypto, _ := newTestRouter(t, true)
	ctx := context.Background()

	primary.SetPrice("NVDA", 180)
	_, err := primary.SubmitOrderByQuantity(ctx, OrderRequest{Symbol: "NVDA", Side: SideBuy, Quantity: 2})
	require.NoError(t, err)

	crypto.SetPrice("BTC/USDT", 65000)
	_, err = crypto.SubmitOrderByQuantity(ctx, OrderRequest{Symbol: "BTC/USDT", Side: SideBuy, Quantity: 0.1})
	require.NoError(t, err)

	positions, err := router.AggregatePositions(ctx)
	require.NoError(t, err)
	assert.Len(t, positions, 2)
}

func TestUnknownPrimaryRejected(t *testing.T) {
	_, err := NewRouter(RouterConfig{Primary: "ghost"}, map[string]Adapter{"paper": NewPaper(100)})
	require.Error(t, err)
}

func TestIsCryptoSymbol(t *testing.T) {
	assert.True(t, IsCryptoSymbol("BTC/USDT"))
	assert.True(t, IsCryptoSymbol("DOGEUSD"))
	assert.False(t, IsCryptoSymbol("NVDA"))
	assert.False(t, IsCryptoSymbol("RAIN-NYC-26AUG24"))
}
