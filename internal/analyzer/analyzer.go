// Package analyzer hosts the domain signal producers the autopilot
// polls each cycle. Analyzers publish enrichment keys to the intel bus
// and return a typed result; they never execute orders and never guess
// when an upstream API is unavailable.
package analyzer

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// Kind discriminates analyzer outcomes. Only Success results are
// considered for opportunity ranking; NoSignal and Failure are logged
// and ignored.
type Kind string

const (
	KindSuccess  Kind = "success"
	KindNoSignal Kind = "no_signal"
	KindFailure  Kind = "failure"
)

// Result is the universal analyzer output.
type Result struct {
	Kind   Kind    `json:"kind"`
	Score  float64 `json:"score"` // 0-100
	Signal string  `json:"signal"`
	Reason string  `json:"reason"`
	Odds   float64 `json:"odds,omitempty"` // decimal odds for Kelly sizing
	Ticker string  `json:"ticker,omitempty"`

	Extras map[string]interface{} `json:"extras,omitempty"`
}

// Success builds an actionable result.
func Success(score float64, signal, ticker string, odds float64) Result {
	return Result{Kind: KindSuccess, Score: score, Signal: signal, Ticker: ticker, Odds: odds}
}

// NoSignal builds an empty-scan result.
func NoSignal(reason string) Result {
	return Result{Kind: KindNoSignal, Reason: reason}
}

// Failure wraps an upstream error. The error text is carried as the
// reason; nothing else is inferred from a failed scan.
func Failure(err error) Result {
	return Result{Kind: KindFailure, Reason: err.Error()}
}

// Failuref formats a failure reason.
func Failuref(format string, args ...interface{}) Result {
	return Result{Kind: KindFailure, Reason: fmt.Sprintf(format, args...)}
}

// Analyzer is the contract the autopilot polls.
type Analyzer interface {
	Name() string
	Analyze(ctx context.Context) Result
}

// Loop drives one analyzer on a fixed cadence until the context is
// canceled. Results land on the intel bus; the loop only logs outcomes.
// Standalone agent processes run their analyzer through this.
func Loop(ctx context.Context, a Analyzer, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		result := a.Analyze(ctx)
		switch result.Kind {
		case KindFailure:
			log.Warn().Str("analyzer", a.Name()).Str("reason", result.Reason).Msg("Scan failed")
		case KindSuccess:
			log.Info().Str("analyzer", a.Name()).Float64("score", result.Score).Str("signal", result.Signal).Msg("Signal published")
		default:
			log.Debug().Str("analyzer", a.Name()).Str("reason", result.Reason).Msg("No signal")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
