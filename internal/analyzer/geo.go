package analyzer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/marketpilot/internal/bus"
)

// ErrFeedUnavailable marks an event feed that is down or unconfigured.
// Geo treats it as no-signal rather than failure: an absent feed is a
// normal operating condition, not an error to alarm on.
var ErrFeedUnavailable = errors.New("analyzer: event feed unavailable")

// GeoEvent is one coded geopolitical event.
type GeoEvent struct {
	CAMEOCode int       `json:"cameo_code"`
	Headline  string    `json:"headline"`
	Region    string    `json:"region"`
	Goldstein float64   `json:"goldstein"` // -10 (conflict) .. +10 (cooperation)
	At        time.Time `json:"at"`
}

// EventSource supplies recent coded events.
type EventSource interface {
	RecentEvents(ctx context.Context) ([]GeoEvent, error)
}

// Conflict-root CAMEO codes considered for risk scoring.
const (
	cameoConflictMin = 10
	cameoConflictMax = 20
)

// Geo scores geopolitical risk from conflict-coded events and publishes
// `intel:geopolitical_risk`, `intel:conflict_events`, and
// `intel:regional_risk`.
type Geo struct {
	source EventSource
	intel  *bus.IntelBus

	lastScore float64
	hasLast   bool
}

// NewGeo creates the geopolitical analyzer.
func NewGeo(source EventSource, intel *bus.IntelBus) *Geo {
	return &Geo{source: source, intel: intel}
}

func (g *Geo) Name() string { return "geo" }

func (g *Geo) Analyze(ctx context.Context) Result {
	events, err := g.source.RecentEvents(ctx)
	if errors.Is(err, ErrFeedUnavailable) {
		return NoSignal("event feed unavailable")
	}
	if err != nil {
		return Failuref("event feed: %v", err)
	}

	conflicts := make([]GeoEvent, 0, len(events))
	for _, e := range events {
		if e.CAMEOCode >= cameoConflictMin && e.CAMEOCode <= cameoConflictMax {
			conflicts = append(conflicts, e)
		}
	}
	if len(conflicts) == 0 {
		return NoSignal("no conflict-coded events in window")
	}

	// Risk per event scales with Goldstein severity; aggregate caps at 1
	var score float64
	regional := make(map[string]float64)
	for _, e := range conflicts {
		severity := -e.Goldstein / 10
		if severity < 0.1 {
			severity = 0.1
		}
		score += severity * 0.1
		regional[e.Region] += severity * 0.1
	}
	if score > 1 {
		score = 1
	}
	for region, r := range regional {
		if r > 1 {
			regional[region] = 1
		}
	}

	sort.Slice(conflicts, func(i, j int) bool { return conflicts[i].Goldstein < conflicts[j].Goldstein })
	top := conflicts[0]

	trend := "flat"
	if g.hasLast {
		switch {
		case score > g.lastScore+0.05:
			trend = "rising"
		case score < g.lastScore-0.05:
			trend = "falling"
		}
	}
	g.lastScore = score
	g.hasLast = true

	level := "low"
	switch {
	case score >= 0.7:
		level = "high"
	case score >= 0.4:
		level = "elevated"
	}

	g.intel.Publish(ctx, "intel:geopolitical_risk", map[string]interface{}{
		"score":     score,
		"level":     level,
		"top_event": top.Headline,
		"trend":     trend,
	}, g.Name(), 0.7)
	g.intel.Publish(ctx, "intel:conflict_events", conflicts, g.Name(), 0.7)
	g.intel.Publish(ctx, "intel:regional_risk", regional, g.Name(), 0.7)

	log.Debug().
		Float64("score", score).
		Str("level", level).
		Int("events", len(conflicts)).
		Msg("Geo scan complete")

	// Geo is enrichment context; it never proposes entries
	return NoSignal(fmt.Sprintf("risk %s (%.2f), %d conflict events", level, score, len(conflicts)))
}
