package harvester

import (
	"context"
	"time"

	"github.com/ajitpratap0/marketpilot/internal/broker"
)

// VenueSource harvests latest prices through a broker adapter. Every
// registered venue doubles as a quote feed.
type VenueSource struct {
	adapter broker.Adapter
	now     func() time.Time
}

// NewVenueSource wraps a broker adapter as a tick source.
func NewVenueSource(adapter broker.Adapter) *VenueSource {
	return &VenueSource{adapter: adapter, now: time.Now}
}

func (v *VenueSource) Name() string { return v.adapter.Name() }

func (v *VenueSource) Latest(ctx context.Context, symbol string) (Tick, error) {
	price, err := v.adapter.GetLatestPrice(ctx, symbol)
	if err != nil {
		return Tick{}, err
	}
	return Tick{
		Timestamp: v.now().UTC(),
		Symbol:    symbol,
		Price:     price,
	}, nil
}
