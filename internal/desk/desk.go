// Package desk runs the analyst swarm over a watchlist, gates each
// consensus decision against the current market regime, and publishes
// the survivors to the trade-signal channel for the signal router.
package desk

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/marketpilot/internal/bus"
	"github.com/ajitpratap0/marketpilot/internal/ems"
	"github.com/ajitpratap0/marketpilot/internal/gate"
	"github.com/ajitpratap0/marketpilot/internal/regime"
	"github.com/ajitpratap0/marketpilot/internal/signals"
	"github.com/ajitpratap0/marketpilot/internal/swarm"
)

const (
	barLookback     = 300
	defaultInterval = 5 * time.Minute

	// StrategyName tags emitted signals so the kill switch can
	// quarantine the desk without halting other producers.
	StrategyName = "swarm_desk"
)

// MarketData serves recent bars per symbol, newest last.
type MarketData interface {
	RecentBars(ctx context.Context, symbol string, limit int) ([]signals.Bar, error)
}

// Publisher pushes signed-off decisions onto the trade-signal channel.
type Publisher interface {
	PublishTradeSignal(ctx context.Context, payload interface{}) error
}

// Desk is the swarm scan loop.
type Desk struct {
	cio       *swarm.CIO
	data      MarketData
	intel     *bus.IntelBus
	publisher Publisher
	symbols   []string
	brokerage string
	interval  time.Duration
}

// New creates a desk. brokerage is the venue emitted signals target.
func New(cio *swarm.CIO, data MarketData, intel *bus.IntelBus, publisher Publisher, symbols []string, brokerage string, interval time.Duration) *Desk {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Desk{
		cio:       cio,
		data:      data,
		intel:     intel,
		publisher: publisher,
		symbols:   symbols,
		brokerage: brokerage,
		interval:  interval,
	}
}

// marketContext is the slice of the playbook snapshot the desk reads.
// A missing snapshot leaves the regime empty, which the gate treats as
// GREEN.
type marketContext struct {
	Regime  regime.State     `json:"regime"`
	Signals []signals.Signal `json:"signals"`
}

// Scan runs one pass over the watchlist and returns the signals it
// published. Per-symbol failures are logged and skipped; one bad feed
// never starves the rest of the list.
func (d *Desk) Scan(ctx context.Context) []ems.TradeSignal {
	var mkt marketContext
	d.intel.ReadInto(ctx, "intel:playbook_snapshot", &mkt)

	var social struct {
		Score     float64 `json:"score"`
		TopTicker string  `json:"top_ticker"`
	}
	d.intel.ReadInto(ctx, "intel:social_score", &social)

	patterns := make(map[string]string, len(mkt.Signals))
	for _, sig := range mkt.Signals {
		patterns[sig.Symbol] = sig.Pattern
	}

	var published []ems.TradeSignal
	for _, symbol := range d.symbols {
		bars, err := d.data.RecentBars(ctx, symbol, barLookback)
		if err != nil {
			log.Warn().Err(err).Str("symbol", symbol).Msg("Bar load failed - symbol skipped")
			continue
		}

		in := swarm.Inputs{Symbol: symbol, Bars: bars}
		if strings.EqualFold(social.TopTicker, symbol) {
			in.SocialScore = social.Score
		}

		decision, err := d.cio.Decide(ctx, in)
		if err != nil {
			log.Warn().Err(err).Str("symbol", symbol).Msg("Consensus failed - symbol skipped")
			continue
		}
		if decision.Verdict != "EXECUTE" {
			continue
		}

		verdict := gate.Check(mkt.Regime.Regime, decision.Action, decision.Confidence, patterns[symbol])
		if verdict.Blocked {
			log.Info().Str("symbol", symbol).Str("reason", verdict.Reason).Msg("Decision blocked by regime gate")
			continue
		}

		signal := d.toTradeSignal(decision, verdict.EffectiveConfidence)
		if err := d.publisher.PublishTradeSignal(ctx, signal); err != nil {
			log.Error().Err(err).Str("symbol", symbol).Msg("Signal publish failed")
			continue
		}
		published = append(published, signal)

		log.Info().
			Str("symbol", symbol).
			Str("action", string(decision.Action)).
			Float64("confidence", verdict.EffectiveConfidence).
			Float64("size_pct", decision.SizePct).
			Msg("Trade signal published")
	}
	return published
}

func (d *Desk) toTradeSignal(decision swarm.Decision, confidence float64) ems.TradeSignal {
	return ems.TradeSignal{
		TargetSystem:          ems.TargetEquityEngine,
		TargetBrokerage:       d.brokerage,
		AssetClass:            ems.AssetEquity,
		TickerOrEvent:         decision.Symbol,
		Action:                strings.ToLower(string(decision.Action)),
		ConfidenceScore:       confidence,
		ProposedAllocationPct: decision.SizePct / 100,
		AgentReasoning:        reasoning(decision),
		SourceStrategy:        StrategyName,
	}
}

// reasoning flattens the vote map into a stable, readable line.
func reasoning(decision swarm.Decision) string {
	names := make([]string, 0, len(decision.Votes))
	for name := range decision.Votes {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s=%s", name, decision.Votes[name]))
	}
	return fmt.Sprintf("%s consensus %.2f (%s)", decision.Action, decision.Confidence, strings.Join(parts, " "))
}

// Run scans on the desk cadence until the context is canceled.
func (d *Desk) Run(ctx context.Context) error {
	log.Info().
		Int("symbols", len(d.symbols)).
		Dur("interval", d.interval).
		Msg("Desk started")

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		d.Scan(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
