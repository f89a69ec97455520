package autopilot

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/marketpilot/internal/broker"
	"github.com/ajitpratap0/marketpilot/internal/ledger"
)

// Prediction-market contracts exit on absolute price; equities on
// percent moves from cost basis.
const (
	predictionTakeProfit = 0.90
	predictionStopLoss   = 0.10
)

// ExitRules parameterizes the exit engine per venue.
type ExitRules struct {
	MinHold       time.Duration
	TakeProfitPct float64 // equity: fraction above avg cost
	StopLossPct   float64 // equity: fraction below avg cost
	Prediction    bool    // venue quotes contracts in [0,1]
	BlacklistTTL  time.Duration
}

func (r ExitRules) withDefaults() ExitRules {
	if r.MinHold == 0 {
		r.MinHold = 300 * time.Second
	}
	if r.TakeProfitPct == 0 {
		r.TakeProfitPct = 0.10
	}
	if r.StopLossPct == 0 {
		r.StopLossPct = 0.05
	}
	if r.BlacklistTTL == 0 {
		r.BlacklistTTL = 4 * time.Hour
	}
	return r
}

// ExitEngine closes live positions that hit their profit or loss
// bands. Closed tickers go on the blacklist cooldown.
type ExitEngine struct {
	adapter   broker.Adapter
	rules     ExitRules
	ledger    Ledger
	blacklist *Blacklist
	now       func() time.Time
}

// NewExitEngine creates an exit engine over one venue adapter.
func NewExitEngine(adapter broker.Adapter, rules ExitRules, led Ledger, blacklist *Blacklist) *ExitEngine {
	return &ExitEngine{
		adapter:   adapter,
		rules:     rules.withDefaults(),
		ledger:    led,
		blacklist: blacklist,
		now:       time.Now,
	}
}

// ManageActiveExits sweeps open positions once. Positions inside the
// minimum hold are skipped; price fetch failures skip the position
// until the next cycle.
func (e *ExitEngine) ManageActiveExits(ctx context.Context, positions map[string]ledger.Position) {
	for _, pos := range positions {
		if e.now().Sub(pos.OpenedAt) < e.rules.MinHold {
			continue
		}

		bid, err := e.adapter.GetLatestPrice(ctx, pos.Ticker)
		if err != nil {
			log.Warn().Err(err).Str("ticker", pos.Ticker).Msg("Exit check skipped - price unavailable")
			continue
		}

		reason := e.exitReason(pos, bid)
		if reason == "" {
			continue
		}
		e.close(ctx, pos, bid, reason)
	}
}

func (e *ExitEngine) exitReason(pos ledger.Position, bid float64) string {
	if e.rules.Prediction {
		switch {
		case bid >= predictionTakeProfit:
			return "Take Profit"
		case bid <= predictionStopLoss:
			return "Stop Loss"
		}
		return ""
	}

	switch {
	case bid >= pos.AvgPrice*(1+e.rules.TakeProfitPct):
		return "Take Profit"
	case bid <= pos.AvgPrice*(1-e.rules.StopLossPct):
		return "Stop Loss"
	}
	return ""
}

func (e *ExitEngine) close(ctx context.Context, pos ledger.Position, bid float64, reason string) {
	result, err := e.adapter.SubmitOrderByQuantity(ctx, broker.OrderRequest{
		Symbol:   pos.Ticker,
		Side:     broker.SideSell,
		Type:     broker.TypeMarket,
		Quantity: pos.SharesHeld,
	})
	if err != nil {
		log.Error().Err(err).Str("ticker", pos.Ticker).Str("reason", reason).Msg("Exit order failed")
		return
	}

	log.Info().
		Str("ticker", pos.Ticker).
		Float64("bid", bid).
		Float64("quantity", pos.SharesHeld).
		Str("reason", reason).
		Msg("Position closed")

	if e.ledger != nil {
		entry := ledger.Entry{
			Timestamp: e.now(),
			Action:    ledger.ActionSell,
			Ticker:    pos.Ticker,
			Price:     result.FilledPrice,
			Quantity:  result.FilledQty,
			Reason:    reason,
			Broker:    e.adapter.Name(),
		}
		if err := e.ledger.Append(ctx, entry); err != nil {
			log.Error().Err(err).Str("ticker", pos.Ticker).Msg("Exit executed but ledger append failed")
		}
	}

	e.blacklist.Add(pos.Ticker, e.rules.BlacklistTTL)
}
