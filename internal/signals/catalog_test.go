package signals

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func flatBars(n int, price, volume float64) []Bar {
	bars := make([]Bar, n)
	ts := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	for i := range bars {
		bars[i] = Bar{
			Timestamp: ts.Add(time.Duration(i) * 24 * time.Hour),
			Open:      price,
			High:      price + 0.5,
			Low:       price - 0.5,
			Close:     price,
			Volume:    volume,
		}
	}
	return bars
}

func TestEpisodicPivot(t *testing.T) {
	bars := flatBars(10, 100, 1000)
	bars = append(bars, Bar{
		Timestamp: time.Now().UTC(),
		Open:      105, // 5% gap over the 100 close
		High:      106,
		Low:       104,
		Close:     105.5,
		Volume:    5000,
	})

	sig := EpisodicPivot(bars, "NVDA")
	require.NotNil(t, sig)
	assert.Equal(t, "EpisodicPivot", sig.Pattern)
	assert.Equal(t, 0.80, sig.Confidence)
	assert.Equal(t, 106.0, sig.EntryPrice)
	assert.Equal(t, 104.0, sig.StopPrice)
}

func TestEpisodicPivotRequiresRecordVolume(t *testing.T) {
	bars := flatBars(10, 100, 1000)
	bars[4].Volume = 9000
	bars = append(bars, Bar{Open: 105, High: 106, Low: 104, Close: 105.5, Volume: 5000})

	assert.Nil(t, EpisodicPivot(bars, "NVDA"))
}

func TestEpisodicPivotRequiresGap(t *testing.T) {
	bars := flatBars(10, 100, 1000)
	bars = append(bars, Bar{Open: 103, High: 106, Low: 102, Close: 105, Volume: 5000})

	assert.Nil(t, EpisodicPivot(bars, "NVDA"))
}

func TestMomentumBurst(t *testing.T) {
	ts := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	var bars []Bar

	// Pole: 26 bars rising 90 -> 108
	for i := 0; i < 26; i++ {
		c := 90 + 18.0*float64(i)/25.0
		bars = append(bars, Bar{Timestamp: ts.Add(time.Duration(i) * 24 * time.Hour), Open: c - 0.5, High: c + 1, Low: c - 1, Close: c, Volume: 1000})
	}
	// Tight, quiet consolidation
	for i := 0; i < 3; i++ {
		bars = append(bars, Bar{Open: 108, High: 108.5, Low: 107.7, Close: 108, Volume: 500})
	}
	// Breakout on volume
	bars = append(bars, Bar{Timestamp: time.Now().UTC(), Open: 108.4, High: 109.8, Low: 108.2, Close: 109.5, Volume: 2000})

	sig := MomentumBurst(bars, "PLTR")
	require.NotNil(t, sig)
	assert.Equal(t, 0.72, sig.Confidence)
	assert.InDelta(t, 109.8*1.001, sig.EntryPrice, 1e-9)
	assert.Equal(t, 107.7, sig.StopPrice)
}

func TestElephantBar(t *testing.T) {
	bars := flatBars(24, 100, 1000)
	bars = append(bars, Bar{
		Timestamp: time.Now().UTC(),
		Open:      100,
		High:      103.2,
		Low:       99.8, // within 3% of the 20-SMA
		Close:     103,
		Volume:    2000,
	})

	sig := ElephantBar(bars, "TSLA")
	require.NotNil(t, sig)
	assert.Equal(t, 0.75, sig.Confidence)
	assert.InDelta(t, 103.2*1.001, sig.EntryPrice, 1e-9)
	assert.Equal(t, 99.8, sig.StopPrice)
}

func TestElephantBarRejectsRedCandle(t *testing.T) {
	bars := flatBars(24, 100, 1000)
	bars = append(bars, Bar{Open: 103, High: 103.2, Low: 99.8, Close: 100, Volume: 2000})

	assert.Nil(t, ElephantBar(bars, "TSLA"))
}

func TestInsideBar212(t *testing.T) {
	bars := flatBars(5, 100, 1000)
	// Mother bar: up 1.49% from open, 2% above prior close
	bars = append(bars, Bar{Open: 100.5, High: 102.5, Low: 100.2, Close: 102, Volume: 1500})
	// Inside bar
	bars = append(bars, Bar{Timestamp: time.Now().UTC(), Open: 101.5, High: 102.0, Low: 100.5, Close: 101.8, Volume: 900})

	sig := InsideBar212(bars, "AMD")
	require.NotNil(t, sig)
	assert.Equal(t, 0.68, sig.Confidence)
	assert.InDelta(t, 102.0*1.001, sig.EntryPrice, 1e-9)
	assert.InDelta(t, 100.5*0.999, sig.StopPrice, 1e-9)
}

func TestInsideBar212RejectsRangeBreach(t *testing.T) {
	bars := flatBars(5, 100, 1000)
	bars = append(bars, Bar{Open: 100.5, High: 102.5, Low: 100.2, Close: 102, Volume: 1500})
	// High exceeds the mother bar
	bars = append(bars, Bar{Open: 101.5, High: 102.6, Low: 100.5, Close: 101.8, Volume: 900})

	assert.Nil(t, InsideBar212(bars, "AMD"))
}

func TestScanSymbolFlatDataFindsNothing(t *testing.T) {
	signals := ScanSymbol(flatBars(300, 100, 1000), "SPY")
	assert.Empty(t, signals)
}

func TestScanSymbolIsolatesPanickingDetector(t *testing.T) {
	Catalog["boom"] = func(bars []Bar, symbol string) *Signal {
		panic("detector bug")
	}
	defer delete(Catalog, "boom")

	bars := flatBars(10, 100, 1000)
	bars = append(bars, Bar{Open: 105, High: 106, Low: 104, Close: 105.5, Volume: 5000})

	signals := ScanSymbol(bars, "NVDA")
	require.Len(t, signals, 1)
	assert.Equal(t, "EpisodicPivot", signals[0].Pattern)
}

func TestScanSymbolEmptyBars(t *testing.T) {
	assert.Empty(t, ScanSymbol(nil, "SPY"))
}
