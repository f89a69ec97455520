package broker

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
)

// cryptoPattern matches crypto pair notation (BTC/USDT, ETHUSDT, or a
// -USD suffix).
var cryptoPattern = regexp.MustCompile(`(?i)^[A-Z0-9]{2,10}(/|-)?(USDT|USDC|USD|BTC|ETH)$`)

// IsCryptoSymbol reports whether a symbol routes to the crypto venue.
func IsCryptoSymbol(symbol string) bool {
	return cryptoPattern.MatchString(symbol)
}

// RouterConfig names the adapters serving each routing role.
type RouterConfig struct {
	RoutingEnabled bool
	Primary        string
	Crypto         string
	ExtendedHours  string
}

// Router selects an adapter per request using symbol and wall-clock,
// and aggregates health and positions across venues. Each adapter call
// goes through a per-venue circuit breaker.
type Router struct {
	mu       sync.RWMutex
	cfg      RouterConfig
	adapters map[string]Adapter
	breakers map[string]*gobreaker.CircuitBreaker
	eastern  *time.Location
	now      func() time.Time
}

// NewRouter creates a router over the registered adapters.
func NewRouter(cfg RouterConfig, adapters map[string]Adapter) (*Router, error) {
	if _, ok := adapters[cfg.Primary]; !ok {
		return nil, fmt.Errorf("router: primary broker %q not registered", cfg.Primary)
	}

	eastern, err := time.LoadLocation("America/New_York")
	if err != nil {
		return nil, fmt.Errorf("router: load eastern timezone: %w", err)
	}

	breakers := make(map[string]*gobreaker.CircuitBreaker, len(adapters))
	for name := range adapters {
		breakers[name] = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "broker-" + name,
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.Requests >= 5 && float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("Broker circuit state changed")
			},
		})
	}

	return &Router{
		cfg:      cfg,
		adapters: adapters,
		breakers: breakers,
		eastern:  eastern,
		now:      time.Now,
	}, nil
}

// Adapter returns a registered adapter by name.
func (r *Router) Adapter(name string) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[name]
	return a, ok
}

// Route picks the adapter for a symbol at the current wall-clock.
func (r *Router) Route(symbol string) Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()

	name := r.routeName(symbol)
	adapter, ok := r.adapters[name]
	if !ok {
		adapter = r.adapters[r.cfg.Primary]
		name = r.cfg.Primary
	}

	log.Debug().Str("symbol", symbol).Str("broker", name).Msg("Order routed")
	return adapter
}

// routeName applies the routing rules in order. Caller holds the lock.
func (r *Router) routeName(symbol string) string {
	if !r.cfg.RoutingEnabled {
		return r.cfg.Primary
	}
	if IsCryptoSymbol(symbol) && r.cfg.Crypto != "" {
		return r.cfg.Crypto
	}

	now := r.now().In(r.eastern)
	if now.Weekday() == time.Saturday || now.Weekday() == time.Sunday {
		return r.cfg.Primary
	}

	minutes := now.Hour()*60 + now.Minute()
	const (
		preMarketOpen = 4 * 60
		regularOpen   = 9*60 + 30
		regularClose  = 16 * 60
		extendedClose = 20 * 60
	)

	switch {
	case minutes >= preMarketOpen && minutes < regularOpen:
		if r.cfg.ExtendedHours != "" {
			return r.cfg.ExtendedHours
		}
	case minutes >= regularClose && minutes < extendedClose:
		if r.cfg.ExtendedHours != "" {
			return r.cfg.ExtendedHours
		}
	}
	return r.cfg.Primary
}

// Execute runs an adapter call through the venue's circuit breaker.
func (r *Router) Execute(name string, fn func() (interface{}, error)) (interface{}, error) {
	r.mu.RLock()
	cb, ok := r.breakers[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("router: unknown broker %q", name)
	}
	return cb.Execute(fn)
}

// Submit routes and submits one order through the breaker.
func (r *Router) Submit(ctx context.Context, req OrderRequest, maxSlippagePct float64) (*OrderResult, error) {
	adapter := r.Route(req.Symbol)
	out, err := r.Execute(adapter.Name(), func() (interface{}, error) {
		return SubmitSmartLimit(ctx, adapter, req, maxSlippagePct)
	})
	if err != nil {
		return nil, err
	}
	return out.(*OrderResult), nil
}

// CheckHealth pings each adapter with a lightweight balance call.
func (r *Router) CheckHealth(ctx context.Context) map[string]bool {
	r.mu.RLock()
	adapters := make(map[string]Adapter, len(r.adapters))
	for name, a := range r.adapters {
		adapters[name] = a
	}
	r.mu.RUnlock()

	health := make(map[string]bool, len(adapters))
	for name, adapter := range adapters {
		_, err := r.Execute(name, func() (interface{}, error) {
			return adapter.GetBuyingPower(ctx)
		})
		health[name] = err == nil
		if err != nil {
			log.Warn().Str("broker", name).Err(err).Msg("Broker health check failed")
		}
	}
	return health
}

// AggregatePositions merges positions across all venues when routing is
// enabled, otherwise returns only the primary's.
func (r *Router) AggregatePositions(ctx context.Context) ([]Position, error) {
	r.mu.RLock()
	cfg := r.cfg
	adapters := make(map[string]Adapter, len(r.adapters))
	for name, a := range r.adapters {
		adapters[name] = a
	}
	r.mu.RUnlock()

	if !cfg.RoutingEnabled {
		return adapters[cfg.Primary].GetPositions(ctx)
	}

	var all []Position
	for name, adapter := range adapters {
		positions, err := adapter.GetPositions(ctx)
		if err != nil {
			log.Warn().Str("broker", name).Err(err).Msg("Skipping positions from unhealthy broker")
			continue
		}
		all = append(all, positions...)
	}
	return all, nil
}

// CancelAll fans the emergency cancel out to every venue.
func (r *Router) CancelAll(ctx context.Context) {
	r.mu.RLock()
	adapters := make(map[string]Adapter, len(r.adapters))
	for name, a := range r.adapters {
		adapters[name] = a
	}
	r.mu.RUnlock()

	for name, adapter := range adapters {
		if err := adapter.CancelAllOrders(ctx); err != nil {
			log.Error().Str("broker", name).Err(err).Msg("Cancel-all failed")
		}
	}
}
