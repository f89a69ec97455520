package ems

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/marketpilot/internal/broker"
	"github.com/ajitpratap0/marketpilot/internal/bus"
	"github.com/ajitpratap0/marketpilot/internal/ledger"
	"github.com/ajitpratap0/marketpilot/internal/metrics"
)

// Ledger records execution outcomes.
type Ledger interface {
	Append(ctx context.Context, e ledger.Entry) error
}

// Quarantine is the strategy quarantine set maintained by the kill
// switch.
type Quarantine interface {
	IsQuarantined(strategy string) (bool, string)
}

// Router consumes trade signals and dispatches them to the adapter
// registered for the target venue. An emergency-stop broadcast latches
// the router halted until an operator clears it.
type Router struct {
	adapters   map[string]broker.Adapter
	ledger     Ledger
	quarantine Quarantine

	mu         sync.Mutex
	halted     bool
	haltReason string

	dispatchTimeout time.Duration
}

// NewRouter creates a signal router over the given venue adapters.
func NewRouter(adapters map[string]broker.Adapter, led Ledger, quarantine Quarantine) *Router {
	return &Router{
		adapters:        adapters,
		ledger:          led,
		quarantine:      quarantine,
		dispatchTimeout: 15 * time.Second,
	}
}

// Start subscribes the router to the trade-signal and emergency-stop
// channels. Returned subscriptions are owned by the caller.
func (r *Router) Start(ctx context.Context, channels *bus.Channels) ([]*nats.Subscription, error) {
	sigSub, err := channels.SubscribeTradeSignals(func(data []byte) {
		r.HandleSignal(ctx, data)
	})
	if err != nil {
		return nil, err
	}

	stopSub, err := channels.SubscribeEmergencyStop(func(reason string) {
		r.Halt(reason)
	})
	if err != nil {
		sigSub.Unsubscribe()
		return nil, err
	}

	return []*nats.Subscription{sigSub, stopSub}, nil
}

// Halt latches the router closed. Dispatch resumes only after Clear.
func (r *Router) Halt(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.halted {
		return
	}
	r.halted = true
	r.haltReason = reason
	log.Warn().Str("reason", reason).Msg("Signal router halted")
}

// Clear re-arms a halted router. Manual operator action only.
func (r *Router) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.halted = false
	r.haltReason = ""
	log.Info().Msg("Signal router cleared")
}

// Halted reports the latch state and the halting reason.
func (r *Router) Halted() (bool, string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.halted, r.haltReason
}

// HandleSignal decodes, validates, and dispatches one wire payload.
// Invalid signals are dropped with a log line; they never reach a venue.
func (r *Router) HandleSignal(ctx context.Context, data []byte) {
	if halted, reason := r.Halted(); halted {
		log.Warn().Str("halt_reason", reason).Msg("Signal dropped - router halted")
		return
	}

	signal, err := DecodeSignal(data)
	if err != nil {
		metrics.RecordDroppedSignal("validation")
		log.Error().Err(err).Msg("Signal rejected at contract boundary")
		return
	}

	if r.quarantine != nil && signal.SourceStrategy != "" {
		if quarantined, reason := r.quarantine.IsQuarantined(signal.SourceStrategy); quarantined {
			metrics.RecordDroppedSignal("quarantine")
			log.Warn().
				Str("strategy", signal.SourceStrategy).
				Str("ticker", signal.TickerOrEvent).
				Str("reason", reason).
				Msg("Signal dropped - strategy quarantined")
			return
		}
	}

	dispatchCtx, cancel := context.WithTimeout(ctx, r.dispatchTimeout)
	defer cancel()

	if err := r.Dispatch(dispatchCtx, signal); err != nil {
		log.Error().
			Err(err).
			Str("ticker", signal.TickerOrEvent).
			Str("brokerage", signal.TargetBrokerage).
			Msg("Signal dispatch failed")
	}
}

// Dispatch routes a validated signal to its venue adapter and records
// the execution outcome.
func (r *Router) Dispatch(ctx context.Context, signal *TradeSignal) error {
	adapter, ok := r.adapters[signal.TargetBrokerage]
	if !ok {
		return fmt.Errorf("no adapter registered for venue %q", signal.TargetBrokerage)
	}

	var side broker.OrderSide
	switch strings.ToLower(signal.Action) {
	case "buy", "cover":
		side = broker.SideBuy
	case "sell", "short":
		side = broker.SideSell
	case "hold":
		log.Debug().Str("ticker", signal.TickerOrEvent).Msg("Hold signal - nothing to dispatch")
		return nil
	default:
		return fmt.Errorf("undispatchable action %q", signal.Action)
	}

	buyingPower, err := adapter.GetBuyingPower(ctx)
	if err != nil {
		return fmt.Errorf("buying power for %s: %w", signal.TargetBrokerage, err)
	}
	amount := buyingPower * signal.ProposedAllocationPct
	if amount <= 0 {
		return fmt.Errorf("zero allocation for %s (buying power %.2f)", signal.TickerOrEvent, buyingPower)
	}

	result, err := broker.SubmitSmartLimit(ctx, adapter, broker.OrderRequest{
		Symbol: signal.TickerOrEvent,
		Side:   side,
		Type:   broker.TypeLimit,
		Amount: amount,
	}, broker.DefaultMaxSlippagePct)
	if err != nil {
		return fmt.Errorf("submit %s %s on %s: %w", side, signal.TickerOrEvent, signal.TargetBrokerage, err)
	}

	log.Info().
		Str("order_id", result.ID).
		Str("ticker", signal.TickerOrEvent).
		Str("side", string(side)).
		Float64("amount", amount).
		Str("status", string(result.Status)).
		Msg("Signal dispatched")

	entry := ledger.Entry{
		Timestamp: result.SubmittedAt,
		Action:    ledger.Action(side),
		Ticker:    signal.TickerOrEvent,
		Price:     result.FilledPrice,
		Quantity:  result.FilledQty,
		Reason:    signal.AgentReasoning,
		Broker:    signal.TargetBrokerage,
	}
	if r.ledger != nil {
		if err := r.ledger.Append(ctx, entry); err != nil {
			log.Error().Err(err).Str("ticker", signal.TickerOrEvent).Msg("Execution recorded to venue but ledger append failed")
			return err
		}
	}
	return nil
}
