package risk

import (
	"math"
	"sort"
)

// CVaR computes the expected shortfall at the given confidence level:
// the mean of returns at or below the (1-level) percentile. Returns 0
// for an empty sample.
func CVaR(returns []float64, level float64) float64 {
	if len(returns) == 0 {
		return 0
	}

	sorted := make([]float64, len(returns))
	copy(sorted, returns)
	sort.Float64s(sorted)

	// Derived from level directly; computing 1-level first picks up a
	// float error that widens the tail (100 samples at 0.99 must keep 1).
	cutoff := len(sorted) - int(math.Floor(float64(len(sorted))*level))
	if cutoff < 1 {
		cutoff = 1
	}

	var sum float64
	for _, r := range sorted[:cutoff] {
		sum += r
	}
	return sum / float64(cutoff)
}

// CVaR99 is the expected shortfall beyond the 1st percentile.
func CVaR99(returns []float64) float64 {
	return CVaR(returns, 0.99)
}

// ExceedsLimit reports whether the expected tail loss on nav exceeds
// limitPct percent of nav.
func ExceedsLimit(returns []float64, nav, limitPct float64) bool {
	if nav <= 0 {
		return false
	}
	tailLoss := -CVaR99(returns) * nav
	return tailLoss > nav*limitPct/100
}
