package analyzer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/marketpilot/internal/bus"
)

// SocialScan is one paid-API sentiment sweep.
type SocialScan struct {
	Score     float64 // 0-100 composite hype score
	TopTicker string
	Cost      float64 // API spend in dollars
}

// SocialSource performs one sweep against the paid social API.
type SocialSource interface {
	Scan(ctx context.Context) (*SocialScan, error)
}

// Budget meters paid-API usage: scans are skipped inside the frequency
// window and once monthly spend reaches the limit.
type Budget struct {
	mu         sync.Mutex
	limit      float64
	spend      float64
	frequency  time.Duration
	lastScanAt time.Time
	now        func() time.Time
}

// NewBudget creates a spend meter. spend seeds the running total from
// persisted settings.
func NewBudget(limit, spend float64, frequency time.Duration) *Budget {
	return &Budget{limit: limit, spend: spend, frequency: frequency, now: time.Now}
}

// Allow reports whether a scan may run now, and records it if so.
func (b *Budget) Allow(cost float64) (ok bool, reason string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	if !b.lastScanAt.IsZero() && now.Sub(b.lastScanAt) < b.frequency {
		return false, fmt.Sprintf("inside %s frequency window", b.frequency)
	}
	if b.limit > 0 && b.spend+cost > b.limit {
		return false, fmt.Sprintf("spend %.2f + %.2f would exceed budget %.2f", b.spend, cost, b.limit)
	}

	b.lastScanAt = now
	b.spend += cost
	return true, ""
}

// Spend returns the running total for settings persistence.
func (b *Budget) Spend() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.spend
}

// Social publishes `intel:social_score` from budget-metered sweeps of a
// paid sentiment API.
type Social struct {
	source    SocialSource
	intel     *bus.IntelBus
	budget    *Budget
	threshold float64
	scanCost  float64
}

// NewSocial creates the social analyzer. threshold is the minimum hype
// score treated as actionable.
func NewSocial(source SocialSource, intel *bus.IntelBus, budget *Budget, threshold float64) *Social {
	return &Social{source: source, intel: intel, budget: budget, threshold: threshold, scanCost: 0.10}
}

func (s *Social) Name() string { return "social" }

func (s *Social) Analyze(ctx context.Context) Result {
	if ok, reason := s.budget.Allow(s.scanCost); !ok {
		log.Debug().Str("reason", reason).Msg("Social scan skipped")
		return NoSignal(reason)
	}

	scan, err := s.source.Scan(ctx)
	if err != nil {
		return Failuref("social api: %v", err)
	}

	s.intel.Publish(ctx, "intel:social_score", map[string]interface{}{
		"score":      scan.Score,
		"top_ticker": scan.TopTicker,
	}, s.Name(), 0.6)

	if scan.Score < s.threshold {
		return NoSignal(fmt.Sprintf("hype %.1f below threshold %.1f", scan.Score, s.threshold))
	}

	result := Success(scan.Score, "social_momentum", scan.TopTicker, 1.8)
	result.Reason = fmt.Sprintf("%s hype score %.1f", scan.TopTicker, scan.Score)
	return result
}
