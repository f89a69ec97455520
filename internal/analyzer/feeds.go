package analyzer

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// TickFeed reads close series from the tick substrate.
type TickFeed interface {
	Closes(ctx context.Context, symbol string, limit int) ([]float64, error)
}

// StoreMacroData reads the macro inputs from harvested index symbols.
// The fear/greed index has no tick symbol and reports unavailable;
// the macro analyzer tolerates its absence.
type StoreMacroData struct {
	feed      TickFeed
	spySymbol string
	vixSymbol string
	tnxSymbol string
}

// NewStoreMacroData creates a macro feed over the tick substrate.
// Empty symbols fall back to SPY, ^VIX, and ^TNX.
func NewStoreMacroData(feed TickFeed, spySymbol, vixSymbol, tnxSymbol string) *StoreMacroData {
	if spySymbol == "" {
		spySymbol = "SPY"
	}
	if vixSymbol == "" {
		vixSymbol = "^VIX"
	}
	if tnxSymbol == "" {
		tnxSymbol = "^TNX"
	}
	return &StoreMacroData{feed: feed, spySymbol: spySymbol, vixSymbol: vixSymbol, tnxSymbol: tnxSymbol}
}

func (d *StoreMacroData) latest(ctx context.Context, symbol string) (float64, error) {
	closes, err := d.feed.Closes(ctx, symbol, 1)
	if err != nil {
		return 0, err
	}
	if len(closes) == 0 {
		return 0, fmt.Errorf("no ticks for %s", symbol)
	}
	return closes[len(closes)-1], nil
}

func (d *StoreMacroData) VIX(ctx context.Context) (float64, error) {
	return d.latest(ctx, d.vixSymbol)
}

func (d *StoreMacroData) SPYCloses(ctx context.Context, limit int) ([]float64, error) {
	return d.feed.Closes(ctx, d.spySymbol, limit)
}

func (d *StoreMacroData) TenYearYield(ctx context.Context) (float64, error) {
	return d.latest(ctx, d.tnxSymbol)
}

func (d *StoreMacroData) FearGreed(ctx context.Context) (float64, error) {
	return 0, fmt.Errorf("fear/greed index not harvested")
}

// HTTPEventSource fetches coded geopolitical events from a JSON feed.
// An unreachable or unconfigured feed reports ErrFeedUnavailable,
// which the geo analyzer maps to no-signal.
type HTTPEventSource struct {
	client *resty.Client
	url    string
}

// NewHTTPEventSource creates an event feed client. An empty url yields
// a permanently unavailable source.
func NewHTTPEventSource(url string, timeout time.Duration) *HTTPEventSource {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPEventSource{
		client: resty.New().SetTimeout(timeout),
		url:    url,
	}
}

func (s *HTTPEventSource) RecentEvents(ctx context.Context) ([]GeoEvent, error) {
	if s.url == "" {
		return nil, ErrFeedUnavailable
	}

	var events []GeoEvent
	resp, err := s.client.R().
		SetContext(ctx).
		SetResult(&events).
		Get(s.url)
	if err != nil {
		return nil, ErrFeedUnavailable
	}
	if resp.IsError() {
		return nil, ErrFeedUnavailable
	}
	return events, nil
}

// HTTPSocialSource fetches the composite hype score from the paid
// social sentiment endpoint.
type HTTPSocialSource struct {
	client *resty.Client
	url    string
	apiKey string
}

// NewHTTPSocialSource creates a social feed client.
func NewHTTPSocialSource(url, apiKey string, timeout time.Duration) *HTTPSocialSource {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPSocialSource{
		client: resty.New().SetTimeout(timeout),
		url:    url,
		apiKey: apiKey,
	}
}

func (s *HTTPSocialSource) Scan(ctx context.Context) (*SocialScan, error) {
	if s.url == "" {
		return nil, fmt.Errorf("social endpoint not configured")
	}

	var out struct {
		Score     float64 `json:"score"`
		TopTicker string  `json:"top_ticker"`
		Cost      float64 `json:"cost"`
	}
	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+s.apiKey).
		SetResult(&out).
		Get(s.url)
	if err != nil {
		return nil, fmt.Errorf("social api request: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("social api status %d", resp.StatusCode())
	}
	return &SocialScan{Score: out.Score, TopTicker: out.TopTicker, Cost: out.Cost}, nil
}
