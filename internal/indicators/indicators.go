// Package indicators wraps cinar/indicator's channel pipelines with
// slice helpers for the regime classifier, pattern detectors, and
// crypto analyzer.
package indicators

import (
	"github.com/cinar/indicator/v2/momentum"
	"github.com/cinar/indicator/v2/trend"
)

func sliceToChan(values []float64) chan float64 {
	ch := make(chan float64, len(values))
	for _, v := range values {
		ch <- v
	}
	close(ch)
	return ch
}

func chanToSlice(ch <-chan float64) []float64 {
	var out []float64
	for v := range ch {
		out = append(out, v)
	}
	return out
}

// EMA returns the exponential moving average series. The output is
// shorter than the input by period-1 warmup bars.
func EMA(prices []float64, period int) []float64 {
	if period < 1 || len(prices) < period {
		return nil
	}
	ema := trend.NewEmaWithPeriod[float64](period)
	return chanToSlice(ema.Compute(sliceToChan(prices)))
}

// SMA returns the simple moving average series.
func SMA(prices []float64, period int) []float64 {
	if period < 1 || len(prices) < period {
		return nil
	}
	sma := trend.NewSmaWithPeriod[float64](period)
	return chanToSlice(sma.Compute(sliceToChan(prices)))
}

// RSI returns the latest relative strength index value.
func RSI(prices []float64, period int) (float64, bool) {
	if period < 1 || len(prices) <= period {
		return 0, false
	}
	rsi := momentum.NewRsiWithPeriod[float64](period)
	values := chanToSlice(rsi.Compute(sliceToChan(prices)))
	if len(values) == 0 {
		return 0, false
	}
	return values[len(values)-1], true
}

// MACD returns the latest MACD and signal line values.
func MACD(prices []float64) (macdValue, signalValue float64, ok bool) {
	if len(prices) < 35 {
		return 0, 0, false
	}
	macd := trend.NewMacd[float64]()
	macdChan, signalChan := macd.Compute(sliceToChan(prices))

	// Both branches share one duplicated input stream; drain them in
	// lockstep or the undrained side blocks the producer.
	var haveValues bool
	for {
		m, mok := <-macdChan
		s, sok := <-signalChan
		if !mok || !sok {
			break
		}
		macdValue, signalValue = m, s
		haveValues = true
	}
	if !haveValues {
		return 0, 0, false
	}
	return macdValue, signalValue, true
}

// Last returns the final value of a series.
func Last(values []float64) (float64, bool) {
	if len(values) == 0 {
		return 0, false
	}
	return values[len(values)-1], true
}

// Ago returns the value n positions before the end of a series.
func Ago(values []float64, n int) (float64, bool) {
	idx := len(values) - 1 - n
	if idx < 0 {
		return 0, false
	}
	return values[idx], true
}
