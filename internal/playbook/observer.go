// Package playbook is the read-only market observer. Every cycle it
// classifies the regime, scans the watchlist for patterns, computes a
// risk snapshot, and runs the kill-switch monitors. It records
// everything and places no orders.
package playbook

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/marketpilot/internal/bus"
	"github.com/ajitpratap0/marketpilot/internal/regime"
	"github.com/ajitpratap0/marketpilot/internal/risk"
	"github.com/ajitpratap0/marketpilot/internal/signals"
)

const defaultInterval = 300 * time.Second

// MarketData supplies the closes and bars the observer reads.
type MarketData interface {
	Closes(ctx context.Context, symbol string, limit int) ([]float64, error)
	Bars(ctx context.Context, symbol string, limit int) ([]signals.Bar, error)
}

// TradeReturns supplies recent closed-trade returns for the CVaR
// snapshot.
type TradeReturns interface {
	RecentReturns(ctx context.Context, limit int) ([]float64, error)
}

// Monitors is the kill-switch surface the observer exercises.
type Monitors interface {
	RunAllChecks(ctx context.Context) []string
}

// RiskSnapshot is the observer's per-cycle risk readout.
type RiskSnapshot struct {
	CVaR99        float64 `json:"cvar_99"`
	KellyBaseline float64 `json:"kelly_baseline"`
	Drawdown      float64 `json:"drawdown"`
	SampleSize    int     `json:"sample_size"`
}

// Observer runs the playbook loop.
type Observer struct {
	watchlist *Watchlist
	data      MarketData
	returns   TradeReturns
	monitors  Monitors
	archive   *Archive
	intel     *bus.IntelBus
	drawdown  *risk.DrawdownMonitor
	interval  time.Duration
}

// NewObserver assembles the observer. returns and monitors may be nil
// when the process runs without a ledger or kill switch.
func NewObserver(watchlist *Watchlist, data MarketData, returns TradeReturns, monitors Monitors, archive *Archive, intel *bus.IntelBus, interval time.Duration) *Observer {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Observer{
		watchlist: watchlist,
		data:      data,
		returns:   returns,
		monitors:  monitors,
		archive:   archive,
		intel:     intel,
		drawdown:  risk.NewDrawdownMonitor(0),
		interval:  interval,
	}
}

// Run observes until the context is canceled.
func (o *Observer) Run(ctx context.Context) error {
	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()

	o.Observe(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			o.Observe(ctx)
		}
	}
}

// Snapshot is the full output of one observation cycle, published to
// the bus and archived.
type Snapshot struct {
	Regime     regime.State     `json:"regime"`
	Signals    []signals.Signal `json:"signals"`
	Risk       RiskSnapshot     `json:"risk"`
	KillEvents []string         `json:"kill_events,omitempty"`
}

// Observe runs one cycle and returns the snapshot it recorded.
func (o *Observer) Observe(ctx context.Context) Snapshot {
	state := o.classify(ctx)
	found := o.scan(ctx)
	riskSnap := o.riskSnapshot(ctx)

	var killEvents []string
	if o.monitors != nil {
		killEvents = o.monitors.RunAllChecks(ctx)
	}

	snap := Snapshot{Regime: state, Signals: found, Risk: riskSnap, KillEvents: killEvents}

	log.Info().
		Str("regime", string(state.Regime)).
		Float64("confidence", state.Confidence).
		Int("signals", len(found)).
		Float64("cvar_99", riskSnap.CVaR99).
		Int("kill_events", len(killEvents)).
		Msg("Playbook observation")

	if o.archive != nil {
		regimeName := string(state.Regime)
		if err := o.archive.Write("regime", regimeName, state); err != nil {
			log.Warn().Err(err).Msg("Archive write failed")
		}
		for _, sig := range found {
			if err := o.archive.Write("signal", regimeName, sig); err != nil {
				log.Warn().Err(err).Msg("Archive write failed")
			}
		}
		if err := o.archive.Write("risk", regimeName, riskSnap); err != nil {
			log.Warn().Err(err).Msg("Archive write failed")
		}
		for _, event := range killEvents {
			if err := o.archive.Write("kill_switch", regimeName, event); err != nil {
				log.Warn().Err(err).Msg("Archive write failed")
			}
		}
	}

	o.intel.Publish(ctx, "intel:playbook_snapshot", snap, "playbook", state.Confidence)
	return snap
}

func (o *Observer) classify(ctx context.Context) regime.State {
	spy, err := o.data.Closes(ctx, o.watchlist.RegimeProxy, 60)
	if err != nil {
		log.Warn().Err(err).Str("symbol", o.watchlist.RegimeProxy).Msg("Regime proxy unavailable")
		return regime.Classify(nil, nil, nil)
	}
	jnk, err := o.data.Closes(ctx, o.watchlist.CreditProxy, 10)
	if err != nil {
		jnk = nil
	}
	tlt, err := o.data.Closes(ctx, o.watchlist.RatesProxy, 10)
	if err != nil {
		tlt = nil
	}
	return regime.Classify(spy, jnk, tlt)
}

func (o *Observer) scan(ctx context.Context) []signals.Signal {
	var found []signals.Signal
	for _, symbol := range o.watchlist.Symbols {
		bars, err := o.data.Bars(ctx, symbol, 300)
		if err != nil {
			log.Warn().Err(err).Str("symbol", symbol).Msg("Watchlist scan skipped")
			continue
		}
		found = append(found, signals.ScanSymbol(bars, symbol)...)
	}
	return found
}

func (o *Observer) riskSnapshot(ctx context.Context) RiskSnapshot {
	snap := RiskSnapshot{KellyBaseline: risk.FractionConservative}

	if o.returns == nil {
		return snap
	}
	returns, err := o.returns.RecentReturns(ctx, 100)
	if err != nil || len(returns) == 0 {
		return snap
	}

	snap.CVaR99 = risk.CVaR99(returns)
	snap.SampleSize = len(returns)

	equity := 1.0
	for _, r := range returns {
		equity *= 1 + r
	}
	breached, _ := o.drawdown.Update("portfolio", equity)
	snap.Drawdown = o.drawdown.Drawdown("portfolio", equity)
	if breached {
		log.Warn().Float64("drawdown", snap.Drawdown).Msg("Drawdown threshold breached in observation")
	}
	return snap
}
