package ledger

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buy(t time.Time, ticker string, price, qty float64) Entry {
	return Entry{Timestamp: t, Action: ActionBuy, Ticker: ticker, Price: price, Quantity: qty, Broker: "paper"}
}

func sell(t time.Time, ticker string, price, qty float64, reason string) Entry {
	return Entry{Timestamp: t, Action: ActionSell, Ticker: ticker, Price: price, Quantity: qty, Reason: reason, Broker: "paper"}
}

func TestFIFOPartialLotConsumption(t *testing.T) {
	now := time.Now().UTC()
	book := NewBook()

	require.NoError(t, book.Apply(buy(now, "XYZ", 5.0, 10)))
	require.NoError(t, book.Apply(buy(now.Add(time.Minute), "XYZ", 6.0, 20)))
	require.NoError(t, book.Apply(sell(now.Add(2*time.Minute), "XYZ", 7.0, 15, "take profit")))

	// The first lot is fully consumed, 5 shares come off the second,
	// leaving 15 shares at $6.
	assert.InDelta(t, 15.0, book.QuantityHeld("XYZ"), Epsilon)
	assert.InDelta(t, 6.0, book.AverageBuyPrice("XYZ"), Epsilon)

	// (7-5)*10 + (7-6)*5 = 25
	assert.InDelta(t, 25.0, book.RealizedPnL("XYZ"), Epsilon)
}

func TestReplayReproducesState(t *testing.T) {
	now := time.Now().UTC()
	entries := []Entry{
		buy(now, "AAA", 10.0, 4),
		buy(now.Add(time.Minute), "BBB", 2.0, 100),
		sell(now.Add(2*time.Minute), "AAA", 12.0, 4, "take profit"),
		sell(now.Add(3*time.Minute), "BBB", 1.5, 40, "stop loss"),
	}

	book, err := Replay(entries)
	require.NoError(t, err)

	assert.False(t, book.HasPosition("AAA"))
	assert.InDelta(t, 60.0, book.QuantityHeld("BBB"), Epsilon)
	assert.InDelta(t, 8.0, book.RealizedPnL("AAA"), Epsilon)
	assert.InDelta(t, -20.0, book.RealizedPnL("BBB"), Epsilon)

	// Replaying the same entries yields identical positions
	again, err := Replay(entries)
	require.NoError(t, err)
	assert.Equal(t, book.OpenPositions(), again.OpenPositions())
}

func TestOversellRejected(t *testing.T) {
	now := time.Now().UTC()
	book := NewBook()
	require.NoError(t, book.Apply(buy(now, "XYZ", 5.0, 10)))

	err := book.Apply(sell(now.Add(time.Minute), "XYZ", 6.0, 11, "take profit"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds held quantity")

	// Book is unchanged after the rejected entry
	assert.InDelta(t, 10.0, book.QuantityHeld("XYZ"), Epsilon)
}

func TestDustSellClosesPosition(t *testing.T) {
	now := time.Now().UTC()
	book := NewBook()
	require.NoError(t, book.Apply(buy(now, "BTC/USDT", 50000, 0.5)))

	// Selling within Epsilon of the held quantity must succeed and
	// leave no dust position behind.
	require.NoError(t, book.Apply(sell(now.Add(time.Minute), "BTC/USDT", 51000, 0.5+1e-7, "take profit")))
	assert.False(t, book.HasPosition("BTC/USDT"))
	assert.Equal(t, 0.0, book.QuantityHeld("BTC/USDT"))
}

func TestNegativeQuantityRejected(t *testing.T) {
	book := NewBook()
	err := book.Apply(Entry{Action: ActionBuy, Ticker: "XYZ", Price: 5, Quantity: -1})
	require.Error(t, err)
}

func TestUnknownActionRejected(t *testing.T) {
	book := NewBook()
	err := book.Apply(Entry{Action: "SHORT", Ticker: "XYZ", Price: 5, Quantity: 1})
	require.Error(t, err)
}

func TestOpenPositionsTracksOldestLot(t *testing.T) {
	now := time.Now().UTC()
	book := NewBook()
	require.NoError(t, book.Apply(buy(now, "NVDA", 100, 5)))
	require.NoError(t, book.Apply(buy(now.Add(time.Hour), "NVDA", 110, 5)))

	positions := book.OpenPositions()
	require.Contains(t, positions, "NVDA")
	pos := positions["NVDA"]
	assert.InDelta(t, 10.0, pos.SharesHeld, Epsilon)
	assert.InDelta(t, 105.0, pos.AvgPrice, Epsilon)
	assert.Equal(t, now, pos.OpenedAt)
}

func TestComputeStats(t *testing.T) {
	now := time.Now().UTC()
	entries := []Entry{
		buy(now, "AAA", 10, 10),
		sell(now.Add(time.Minute), "AAA", 12, 10, "take profit"), // +20
		buy(now.Add(2*time.Minute), "BBB", 10, 10),
		sell(now.Add(3*time.Minute), "BBB", 9, 10, "stop loss"), // -10
		buy(now.Add(4*time.Minute), "CCC", 5, 10),
		sell(now.Add(5*time.Minute), "CCC", 5, 10, "manual exit"), // break even
	}

	stats, err := ComputeStats(entries)
	require.NoError(t, err)

	assert.Equal(t, 3, stats.TotalTrades)
	assert.Equal(t, 1, stats.Wins)
	assert.Equal(t, 1, stats.Losses)
	assert.InDelta(t, 1.0/3.0, stats.WinRate, 1e-9)
	assert.InDelta(t, 20.0, stats.AvgWin, Epsilon)
	assert.InDelta(t, 10.0, stats.AvgLoss, Epsilon)
	assert.InDelta(t, 10.0, stats.TotalPnL, Epsilon)
}

func TestWriteCSV(t *testing.T) {
	ts := time.Date(2026, 8, 24, 14, 30, 0, 0, time.UTC)
	entries := []Entry{
		{Timestamp: ts, Action: ActionBuy, Ticker: "NVDA", Price: 181.5, Quantity: 2, Reason: "EpisodicPivot", EstTaxImpact: 0, Broker: "alpaca"},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, entries))

	out := buf.String()
	assert.Contains(t, out, "Date,Action,Ticker,Price,Quantity,Reason,Est_Tax_Impact,Broker")
	assert.Contains(t, out, "2026-08-24 14:30:00,BUY,NVDA,181.5,2,EpisodicPivot,0,alpaca")
}

func TestClosedTradeReturns(t *testing.T) {
	now := time.Now().UTC()
	entries := []Entry{
		buy(now, "AAA", 10, 10),
		sell(now.Add(time.Minute), "AAA", 12, 10, "take profit"), // +20%
		buy(now.Add(2*time.Minute), "BBB", 20, 5),
		sell(now.Add(3*time.Minute), "BBB", 19, 5, "stop loss"), // -5%
	}

	returns, err := ClosedTradeReturns(entries)
	require.NoError(t, err)
	require.Len(t, returns, 2)
	assert.InDelta(t, 0.20, returns[0], 1e-9)
	assert.InDelta(t, -0.05, returns[1], 1e-9)
}
