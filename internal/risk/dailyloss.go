package risk

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

// LossReader reports cumulative realized losses for the current day.
type LossReader interface {
	RealizedLossToday(ctx context.Context) (float64, error)
}

// EmergencyBroadcaster publishes CANCEL_ALL on the emergency channel.
type EmergencyBroadcaster interface {
	BroadcastEmergencyStop(ctx context.Context, reason string) error
}

// DailyLossGuard suppresses new entries once the day's realized losses
// reach the configured cap, and broadcasts the emergency stop exactly
// once per breach day.
type DailyLossGuard struct {
	mu        sync.Mutex
	limit     float64
	reader    LossReader
	emergency EmergencyBroadcaster
	tripped   bool
}

// NewDailyLossGuard creates the guard. A non-positive limit disables it.
func NewDailyLossGuard(limit float64, reader LossReader, emergency EmergencyBroadcaster) *DailyLossGuard {
	return &DailyLossGuard{limit: limit, reader: reader, emergency: emergency}
}

// Check returns true when new entries must be suppressed. The first
// breach broadcasts the emergency stop.
func (g *DailyLossGuard) Check(ctx context.Context) (suppressed bool, reason string) {
	if g == nil || g.limit <= 0 {
		return false, ""
	}

	loss, err := g.reader.RealizedLossToday(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Daily loss lookup failed")
		return false, ""
	}
	if loss < g.limit {
		return false, ""
	}

	reason = fmt.Sprintf("daily loss cap reached: %.2f >= %.2f", loss, g.limit)

	g.mu.Lock()
	alreadyTripped := g.tripped
	g.tripped = true
	g.mu.Unlock()

	if !alreadyTripped {
		log.Error().Float64("loss", loss).Float64("limit", g.limit).Msg("Daily loss cap breached")
		if g.emergency != nil {
			if err := g.emergency.BroadcastEmergencyStop(ctx, reason); err != nil {
				log.Error().Err(err).Msg("Failed to broadcast emergency stop")
			}
		}
	}

	return true, reason
}

// Reset re-arms the guard, typically at the UTC day boundary.
func (g *DailyLossGuard) Reset() {
	g.mu.Lock()
	g.tripped = false
	g.mu.Unlock()
}
