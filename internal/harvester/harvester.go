// Package harvester runs the polling loops that feed the tick
// substrate. Each source poller fetches the latest bar per symbol,
// inserts it into Postgres, and respects the source's rate limit.
// Stock polls pause outside market hours; crypto polls run around the
// clock.
package harvester

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/ajitpratap0/marketpilot/internal/bus"
	"github.com/ajitpratap0/marketpilot/internal/metrics"
	"github.com/ajitpratap0/marketpilot/internal/signals"
)

// PoolInterface is the database surface the harvester writes through.
type PoolInterface interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// Tick is one harvested observation.
type Tick struct {
	Timestamp time.Time
	Symbol    string
	Price     float64
	Volume    float64
}

// Source fetches the latest observation for a symbol.
type Source interface {
	Name() string
	Latest(ctx context.Context, symbol string) (Tick, error)
}

// BarSource additionally serves recent history, satisfying the
// analyzer and observer data interfaces.
type BarSource interface {
	RecentBars(ctx context.Context, symbol string, limit int) ([]signals.Bar, error)
}

// Store persists ticks and serves them back as bars and closes.
type Store struct {
	pool PoolInterface
}

// NewStore creates a tick store.
func NewStore(pool PoolInterface) *Store {
	return &Store{pool: pool}
}

// Insert appends one tick to the substrate.
func (s *Store) Insert(ctx context.Context, t Tick) error {
	if s.pool == nil {
		return fmt.Errorf("no database pool available")
	}
	if t.Timestamp.IsZero() {
		t.Timestamp = time.Now().UTC()
	}

	query := `
		INSERT INTO ticks (tick_time, symbol, price, volume)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := s.pool.Exec(ctx, query, t.Timestamp, t.Symbol, t.Price, t.Volume); err != nil {
		return fmt.Errorf("failed to insert tick: %w", err)
	}
	return nil
}

// Closes returns the most recent close prices for symbol, oldest first.
func (s *Store) Closes(ctx context.Context, symbol string, limit int) ([]float64, error) {
	if s.pool == nil {
		return nil, fmt.Errorf("no database pool available")
	}

	query := `
		SELECT price FROM (
			SELECT price, tick_time FROM ticks
			WHERE symbol = $1
			ORDER BY tick_time DESC
			LIMIT $2
		) recent ORDER BY tick_time ASC
	`
	rows, err := s.pool.Query(ctx, query, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load closes: %w", err)
	}
	defer rows.Close()

	var closes []float64
	for rows.Next() {
		var price float64
		if err := rows.Scan(&price); err != nil {
			return nil, fmt.Errorf("failed to scan close: %w", err)
		}
		closes = append(closes, price)
	}
	return closes, rows.Err()
}

// RecentBars synthesizes OHLCV bars from stored ticks, oldest first.
// One tick maps to one bar; harvesters that poll per minute produce
// minute bars.
func (s *Store) RecentBars(ctx context.Context, symbol string, limit int) ([]signals.Bar, error) {
	if s.pool == nil {
		return nil, fmt.Errorf("no database pool available")
	}

	query := `
		SELECT tick_time, price, volume FROM (
			SELECT tick_time, price, volume FROM ticks
			WHERE symbol = $1
			ORDER BY tick_time DESC
			LIMIT $2
		) recent ORDER BY tick_time ASC
	`
	rows, err := s.pool.Query(ctx, query, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load bars: %w", err)
	}
	defer rows.Close()

	var bars []signals.Bar
	for rows.Next() {
		var (
			at     time.Time
			price  float64
			volume float64
		)
		if err := rows.Scan(&at, &price, &volume); err != nil {
			return nil, fmt.Errorf("failed to scan bar: %w", err)
		}
		bars = append(bars, signals.Bar{
			Timestamp: at,
			Open:      price,
			High:      price,
			Low:       price,
			Close:     price,
			Volume:    volume,
		})
	}
	return bars, rows.Err()
}

// Bars is an alias for RecentBars matching the observer's MarketData.
func (s *Store) Bars(ctx context.Context, symbol string, limit int) ([]signals.Bar, error) {
	return s.RecentBars(ctx, symbol, limit)
}

// Poller drives one source across its symbols under a rate limit.
type Poller struct {
	source      Source
	store       *Store
	symbols     []string
	limiter     *rate.Limiter
	marketHours bool // pause outside regular+extended equity hours
	location    *time.Location
	intel       *bus.IntelBus
	now         func() time.Time
}

// NewPoller creates a poller. callsPerMinute caps the source request
// rate; 5 calls/min yields one call every 13 seconds with burst 1.
func NewPoller(source Source, store *Store, symbols []string, callsPerMinute int, marketHours bool) (*Poller, error) {
	if callsPerMinute <= 0 {
		return nil, fmt.Errorf("callsPerMinute must be positive")
	}
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return nil, fmt.Errorf("failed to load market timezone: %w", err)
	}

	interval := time.Minute / time.Duration(callsPerMinute)
	return &Poller{
		source:      source,
		store:       store,
		symbols:     symbols,
		limiter:     rate.NewLimiter(rate.Every(interval), 1),
		marketHours: marketHours,
		location:    loc,
		now:         time.Now,
	}, nil
}

// WithIntel attaches an intel bus. Each harvested tick is then also
// published under `price:<symbol>`, overwriting the previous value;
// downstream consumers always see the latest price, never a queue.
func (p *Poller) WithIntel(intel *bus.IntelBus) *Poller {
	p.intel = intel
	return p
}

// Run polls until the context is canceled.
func (p *Poller) Run(ctx context.Context) error {
	log.Info().
		Str("source", p.source.Name()).
		Int("symbols", len(p.symbols)).
		Bool("market_hours", p.marketHours).
		Msg("Poller started")

	for {
		if p.marketHours && !p.MarketOpen() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Minute):
			}
			continue
		}

		for _, symbol := range p.symbols {
			if err := p.limiter.Wait(ctx); err != nil {
				return err
			}
			p.pollOne(ctx, symbol)
		}
	}
}

func (p *Poller) pollOne(ctx context.Context, symbol string) {
	fetchCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	tick, err := p.source.Latest(fetchCtx, symbol)
	if err != nil {
		log.Warn().Err(err).Str("source", p.source.Name()).Str("symbol", symbol).Msg("Poll failed")
		return
	}

	if err := p.store.Insert(ctx, tick); err != nil {
		log.Error().Err(err).Str("symbol", symbol).Msg("Tick insert failed")
		return
	}
	metrics.RecordTick(p.source.Name())
	p.intel.Publish(ctx, "price:"+symbol, tick.Price, p.source.Name(), 1.0)

	log.Debug().
		Str("source", p.source.Name()).
		Str("symbol", symbol).
		Float64("price", tick.Price).
		Msg("Tick harvested")
}

// MarketOpen reports whether US equities trade now, including the
// extended sessions (04:00-20:00 ET, weekdays).
func (p *Poller) MarketOpen() bool {
	now := p.now().In(p.location)
	if now.Weekday() == time.Saturday || now.Weekday() == time.Sunday {
		return false
	}
	minutes := now.Hour()*60 + now.Minute()
	return minutes >= 240 && minutes < 1200
}
