package orderbook

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snapshotFixture(ticker string, seq int64) Snapshot {
	return Snapshot{
		Ticker: ticker,
		Seq:    seq,
		Yes: []Level{
			{PriceCents: 40, Quantity: 100},
			{PriceCents: 42, Quantity: 50},
		},
		No: []Level{
			{PriceCents: 55, Quantity: 80},
			{PriceCents: 57, Quantity: 30},
		},
	}
}

func TestBBOConvention(t *testing.T) {
	b := NewBook()
	b.ApplySnapshot(snapshotFixture("RAIN-NYC", 100))

	bid, ok := b.BestBid("RAIN-NYC")
	require.True(t, ok)
	assert.Equal(t, int64(42), bid)

	// Best ask is 100 minus the top of the no side (57)
	ask, ok := b.BestAsk("RAIN-NYC")
	require.True(t, ok)
	assert.Equal(t, int64(43), ask)
}

func TestApplyDeltaInOrder(t *testing.T) {
	b := NewBook()
	b.ApplySnapshot(snapshotFixture("RAIN-NYC", 100))

	require.True(t, b.ApplyDelta(Delta{Ticker: "RAIN-NYC", Seq: 101, Side: SideYes, PriceCents: 45, QuantityDelta: 20}))
	require.True(t, b.ApplyDelta(Delta{Ticker: "RAIN-NYC", Seq: 102, Side: SideYes, PriceCents: 42, QuantityDelta: -50}))

	bid, ok := b.BestBid("RAIN-NYC")
	require.True(t, ok)
	assert.Equal(t, int64(45), bid)

	// The 42c level was fully removed
	levels := b.Levels("RAIN-NYC", SideYes)
	for _, l := range levels {
		assert.NotEqual(t, int64(42), l.PriceCents)
	}
}

func TestSequenceGapInvalidatesState(t *testing.T) {
	b := NewBook()
	b.ApplySnapshot(snapshotFixture("RAIN-NYC", 100))

	// Delta seq=102 after snapshot seq=100 is a gap
	ok := b.ApplyDelta(Delta{Ticker: "RAIN-NYC", Seq: 102, Side: SideYes, PriceCents: 45, QuantityDelta: 20})
	assert.False(t, ok)
	assert.False(t, b.HasState("RAIN-NYC"))

	// Further deltas are rejected until a fresh snapshot arrives
	assert.False(t, b.ApplyDelta(Delta{Ticker: "RAIN-NYC", Seq: 103, Side: SideYes, PriceCents: 45, QuantityDelta: 20}))

	b.ApplySnapshot(snapshotFixture("RAIN-NYC", 200))
	assert.True(t, b.ApplyDelta(Delta{Ticker: "RAIN-NYC", Seq: 201, Side: SideNo, PriceCents: 55, QuantityDelta: 10}))
}

func TestSnapshotPlusDeltasMatchesFreshSnapshot(t *testing.T) {
	replayed := NewBook()
	replayed.ApplySnapshot(snapshotFixture("RAIN-NYC", 100))
	require.True(t, replayed.ApplyDelta(Delta{Ticker: "RAIN-NYC", Seq: 101, Side: SideYes, PriceCents: 40, QuantityDelta: -100}))
	require.True(t, replayed.ApplyDelta(Delta{Ticker: "RAIN-NYC", Seq: 102, Side: SideNo, PriceCents: 60, QuantityDelta: 25}))

	fresh := NewBook()
	fresh.ApplySnapshot(Snapshot{
		Ticker: "RAIN-NYC",
		Seq:    102,
		Yes:    []Level{{PriceCents: 42, Quantity: 50}},
		No: []Level{
			{PriceCents: 55, Quantity: 80},
			{PriceCents: 57, Quantity: 30},
			{PriceCents: 60, Quantity: 25},
		},
	})

	assert.Equal(t, fresh.Levels("RAIN-NYC", SideYes), replayed.Levels("RAIN-NYC", SideYes))
	assert.Equal(t, fresh.Levels("RAIN-NYC", SideNo), replayed.Levels("RAIN-NYC", SideNo))
}

func TestSummarize(t *testing.T) {
	b := NewBook()
	b.ApplySnapshot(snapshotFixture("RAIN-NYC", 100))

	s, ok := b.Summarize("RAIN-NYC")
	require.True(t, ok)
	assert.Equal(t, int64(42), s.BestBid)
	assert.Equal(t, int64(43), s.BestAsk)
	assert.Equal(t, int64(150), s.YesDepth)
	assert.Equal(t, int64(110), s.NoDepth)
	assert.Equal(t, int64(1), s.SpreadCents)

	_, ok = b.Summarize("UNKNOWN")
	assert.False(t, ok)
}
