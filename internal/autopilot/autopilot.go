// Package autopilot runs the central periodic trading loop: restore
// state, read bus context, manage exits, fan out analyzers, rank
// opportunities, gate, size, and execute.
package autopilot

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/ajitpratap0/marketpilot/internal/analyzer"
	"github.com/ajitpratap0/marketpilot/internal/broker"
	"github.com/ajitpratap0/marketpilot/internal/bus"
	"github.com/ajitpratap0/marketpilot/internal/config"
	"github.com/ajitpratap0/marketpilot/internal/ledger"
	"github.com/ajitpratap0/marketpilot/internal/metrics"
	"github.com/ajitpratap0/marketpilot/internal/risk"
)

// Bus keys for restart recovery. Persisted without TTL; owned
// exclusively by the autopilot process.
const (
	executedTradesKey = "executed_trades"
	blacklistKey      = "blacklist"
)

const (
	cycleInterval    = 30 * time.Second
	disabledInterval = 60 * time.Second
	heatSkipLimit    = 0.8
	macroPenalty     = 0.85
)

// Ledger is the subset of the ledger store the autopilot writes.
type Ledger interface {
	Append(ctx context.Context, e ledger.Entry) error
	GetOpenPositions(ctx context.Context) (map[string]ledger.Position, error)
}

// SettingsLoader reloads configuration at the top of each cycle.
type SettingsLoader func() (*config.Config, error)

// Opportunity is one ranked candidate produced from an analyzer result.
type Opportunity struct {
	Module string                 `json:"module"`
	Signal string                 `json:"signal"`
	Ticker string                 `json:"ticker"`
	Score  float64                `json:"score"`
	Odds   float64                `json:"odds"`
	Extras map[string]interface{} `json:"extras,omitempty"`
}

// tradeID is the synthetic idempotency key for one opportunity on one
// UTC day.
func (o Opportunity) tradeID(day time.Time) string {
	return fmt.Sprintf("%s:%s:%s:%s", o.Module, o.Ticker, o.Signal, day.UTC().Format("2006-01-02"))
}

// Autopilot owns the trading loop state.
type Autopilot struct {
	loadSettings SettingsLoader
	intel        *bus.IntelBus
	ledger       Ledger
	execRouter   *broker.Router
	analyzers    []analyzer.Analyzer
	exits        *ExitEngine
	blacklist    *Blacklist
	washSale     *risk.WashSaleGuard
	dailyLoss    *risk.DailyLossGuard

	mu       sync.Mutex
	executed map[string]bool // trade id -> done
	held     map[string]bool // ticker -> held at a venue

	bankroll float64
	now      func() time.Time
}

// New assembles an autopilot. The exec router may be nil in paper mode.
func New(loadSettings SettingsLoader, intel *bus.IntelBus, led Ledger, execRouter *broker.Router, analyzers []analyzer.Analyzer, exits *ExitEngine, blacklist *Blacklist, bankroll float64) *Autopilot {
	return &Autopilot{
		loadSettings: loadSettings,
		intel:        intel,
		ledger:       led,
		execRouter:   execRouter,
		analyzers:    analyzers,
		exits:        exits,
		blacklist:    blacklist,
		executed:     make(map[string]bool),
		held:         make(map[string]bool),
		bankroll:     bankroll,
		now:          time.Now,
	}
}

// WithGuards attaches the wash-sale and daily-loss guards. Either may
// be nil.
func (a *Autopilot) WithGuards(washSale *risk.WashSaleGuard, dailyLoss *risk.DailyLossGuard) *Autopilot {
	a.washSale = washSale
	a.dailyLoss = dailyLoss
	return a
}

// Restore pulls executed-trade and blacklist state back from the bus
// and seeds held tickers from current venue positions, so a restart
// never duplicates an open trade.
func (a *Autopilot) Restore(ctx context.Context) {
	var executed map[string]bool
	if a.intel.ReadInto(ctx, executedTradesKey, &executed) {
		a.mu.Lock()
		for id := range executed {
			a.executed[id] = true
		}
		a.mu.Unlock()
		log.Info().Int("trades", len(executed)).Msg("Executed-trades memory restored")
	}

	var cooldowns map[string]int64
	if a.intel.ReadInto(ctx, blacklistKey, &cooldowns) {
		a.blacklist.Restore(cooldowns)
		log.Info().Int("tickers", len(cooldowns)).Msg("Blacklist restored")
	}

	positions, err := a.ledger.GetOpenPositions(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Position seed failed - held set starts empty")
		return
	}
	a.mu.Lock()
	for _, p := range positions {
		a.held[p.Ticker] = true
	}
	a.mu.Unlock()
	log.Info().Int("positions", len(positions)).Msg("Held positions seeded")
}

// Run executes cycles until the context is canceled.
func (a *Autopilot) Run(ctx context.Context) error {
	a.Restore(ctx)

	for {
		sleep := a.Cycle(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}
	}
}

// Cycle runs one iteration and returns how long to sleep before the
// next one.
func (a *Autopilot) Cycle(ctx context.Context) time.Duration {
	cfg, err := a.loadSettings()
	if err != nil {
		log.Error().Err(err).Msg("Settings reload failed - skipping cycle")
		return cycleInterval
	}
	if !cfg.Trading.Enabled || cfg.Trading.BotPaused {
		log.Debug().Msg("Trading disabled")
		return disabledInterval
	}

	heat := a.intel.ReadFloat(ctx, risk.HeatKey, 0)
	spyTrend := a.intel.ReadString(ctx, "intel:spy_trend", "")
	btcSentiment := a.intel.ReadFloat(ctx, "intel:btc_sentiment", 0)

	if a.exits != nil {
		positions, err := a.ledger.GetOpenPositions(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("Open positions unavailable - exits skipped this cycle")
		} else {
			a.exits.ManageActiveExits(ctx, positions)
			a.syncHeld(positions)
			// An external publisher may have raised heat above what the
			// ledger alone implies; the stricter reading wins.
			if computed := risk.PublishHeat(ctx, a.intel, positions, a.bankroll); computed > heat {
				heat = computed
			}
			metrics.SetPortfolioHeat(heat)
		}
	}

	if heat > heatSkipLimit {
		log.Warn().Float64("heat", heat).Msg("Portfolio heat over limit - no new trades this cycle")
		return cycleInterval
	}

	if suppressed, reason := a.dailyLoss.Check(ctx); suppressed {
		log.Warn().Str("reason", reason).Msg("Daily loss cap active - no new trades this cycle")
		return cycleInterval
	}

	results := a.runAnalyzers(ctx)
	opportunities := a.buildOpportunities(cfg, results, spyTrend, btcSentiment)
	if len(opportunities) == 0 {
		log.Debug().Msg("No opportunities this cycle")
		return cycleInterval
	}

	sort.Slice(opportunities, func(i, j int) bool { return opportunities[i].Score > opportunities[j].Score })
	best := opportunities[0]

	if reason := a.gate(cfg, best); reason != "" {
		log.Info().
			Str("ticker", best.Ticker).
			Str("module", best.Module).
			Float64("score", best.Score).
			Str("reason", reason).
			Msg("Opportunity gated out")
		return cycleInterval
	}

	if blocked, reason := a.washSale.CheckBuy(ctx, best.Ticker); blocked {
		log.Info().Str("ticker", best.Ticker).Str("reason", reason).Msg("Opportunity gated out")
		return cycleInterval
	}

	a.execute(ctx, cfg, best)
	return cycleInterval
}

// runAnalyzers fans out every analyzer in parallel and collects their
// results. Analyzer failures are logged, never fatal to the cycle.
func (a *Autopilot) runAnalyzers(ctx context.Context) map[string]analyzer.Result {
	results := make(map[string]analyzer.Result, len(a.analyzers))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, an := range a.analyzers {
		g.Go(func() error {
			r := an.Analyze(gctx)
			mu.Lock()
			results[an.Name()] = r
			mu.Unlock()
			if r.Kind == analyzer.KindFailure {
				log.Warn().Str("analyzer", an.Name()).Str("reason", r.Reason).Msg("Analyzer failed")
			}
			return nil
		})
	}
	g.Wait()
	return results
}

// buildOpportunities filters successful results through per-module
// thresholds and applies the macro penalty to crypto longs in a
// bearish tape.
func (a *Autopilot) buildOpportunities(cfg *config.Config, results map[string]analyzer.Result, spyTrend string, btcSentiment float64) []Opportunity {
	var out []Opportunity
	for module, r := range results {
		if r.Kind != analyzer.KindSuccess {
			continue
		}
		score := r.Score
		if module == "crypto" {
			if score < float64(cfg.Trading.BTCThreshold) {
				continue
			}
			if spyTrend == "bearish" && btcSentiment < 0 {
				score *= macroPenalty
				log.Debug().Float64("score", score).Msg("Macro penalty applied to crypto opportunity")
			}
		}
		if module == "social" && score < cfg.Trading.SocialThreshold*100 {
			continue
		}
		out = append(out, Opportunity{
			Module: module,
			Signal: r.Signal,
			Ticker: r.Ticker,
			Score:  score,
			Odds:   r.Odds,
			Extras: r.Extras,
		})
	}
	return out
}

// gate applies the sequential pre-trade checks. An empty return means
// the opportunity may trade.
func (a *Autopilot) gate(cfg *config.Config, o Opportunity) string {
	if a.blacklist.Contains(o.Ticker) {
		return "ticker on blacklist cooldown"
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.held[o.Ticker] {
		return "position already held"
	}
	if a.executed[o.tradeID(a.now())] {
		return "trade already executed today"
	}
	if o.Score < float64(cfg.Trading.GlobalMinScore) {
		return fmt.Sprintf("score %.1f below global minimum %d", o.Score, cfg.Trading.GlobalMinScore)
	}
	return ""
}

// execute sizes the trade and either records it (paper) or submits it
// through the broker router.
func (a *Autopilot) execute(ctx context.Context, cfg *config.Config, o Opportunity) {
	confidence := o.Score / 100
	kellyFraction := risk.FractionForLevel(cfg.Risk.Level)
	size := risk.SizeFromOdds(confidence, o.Odds, a.bankroll, kellyFraction, cfg.Risk.MaxPositionSize)
	if size <= 0 {
		log.Info().Str("ticker", o.Ticker).Msg("Kelly sized to zero - skipping")
		return
	}
	if cfg.Trading.MaxBudget > 0 && size > cfg.Trading.MaxBudget {
		size = cfg.Trading.MaxBudget
	}

	entry := ledger.Entry{
		Timestamp: a.now(),
		Action:    ledger.ActionBuy,
		Ticker:    o.Ticker,
		Quantity:  0,
		Reason:    fmt.Sprintf("%s %s (score %.1f)", o.Module, o.Signal, o.Score),
		Broker:    "paper",
	}

	if cfg.Trading.PaperMode || a.execRouter == nil {
		log.Info().
			Str("ticker", o.Ticker).
			Float64("size", size).
			Str("module", o.Module).
			Msg("Paper trade recorded")
	} else {
		venue := a.execRouter.Route(o.Ticker).Name()
		result, err := a.execRouter.Submit(ctx, broker.OrderRequest{
			Symbol: o.Ticker,
			Side:   broker.SideBuy,
			Type:   broker.TypeLimit,
			Amount: size,
		}, cfg.Execution.MaxSlippagePct)
		if err != nil {
			metrics.RecordExecutionError(venue)
			log.Error().Err(err).Str("ticker", o.Ticker).Msg("Execution failed")
			return
		}
		entry.Price = result.FilledPrice
		entry.Quantity = result.FilledQty
		entry.Broker = venue
	}

	metrics.RecordTrade(entry.Broker, string(entry.Action))

	if err := a.ledger.Append(ctx, entry); err != nil {
		log.Error().Err(err).Str("ticker", o.Ticker).Msg("Ledger append failed after execution")
	}

	a.mu.Lock()
	a.executed[o.tradeID(a.now())] = true
	a.held[o.Ticker] = true
	executed := make(map[string]bool, len(a.executed))
	for id := range a.executed {
		executed[id] = true
	}
	a.mu.Unlock()

	a.intel.PublishPersistent(ctx, executedTradesKey, executed, "autopilot")
	a.intel.PublishPersistent(ctx, blacklistKey, a.blacklist.Snapshot(), "autopilot")
}

// syncHeld replaces the held set with the venue truth after an exit
// sweep, so closed tickers become eligible again after cooldown.
func (a *Autopilot) syncHeld(positions map[string]ledger.Position) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.held = make(map[string]bool, len(positions))
	for _, p := range positions {
		a.held[p.Ticker] = true
	}
}
