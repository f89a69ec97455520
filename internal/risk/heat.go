package risk

import (
	"context"

	"github.com/ajitpratap0/marketpilot/internal/bus"
	"github.com/ajitpratap0/marketpilot/internal/ledger"
)

// HeatKey is the bus key carrying portfolio heat in [0,1].
const HeatKey = "intel:portfolio_heat"

// PortfolioHeat is open exposure at cost over bankroll, clamped to
// [0,1].
func PortfolioHeat(positions map[string]ledger.Position, bankroll float64) float64 {
	if bankroll <= 0 {
		return 1
	}
	var exposure float64
	for _, p := range positions {
		exposure += p.CostBasis
	}
	heat := exposure / bankroll
	if heat < 0 {
		return 0
	}
	if heat > 1 {
		return 1
	}
	return heat
}

// PublishHeat computes and publishes portfolio heat to the signal bus.
func PublishHeat(ctx context.Context, intel *bus.IntelBus, positions map[string]ledger.Position, bankroll float64) float64 {
	heat := PortfolioHeat(positions, bankroll)
	intel.Publish(ctx, HeatKey, heat, "risk", 1.0)
	return heat
}
