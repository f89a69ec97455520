package orderbook

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/marketpilot/internal/bus"
)

// liquiditySpikeRatio flags a book whose total resting depth jumped by
// this multiple since the previous summary.
const liquiditySpikeRatio = 3.0

// wsMessage is the envelope the venue sends on the market data feed.
type wsMessage struct {
	Type     string   `json:"type"`
	Snapshot Snapshot `json:"snapshot,omitempty"`
	Delta    Delta    `json:"delta,omitempty"`
}

// Stream maintains books for a set of markets from a websocket feed and
// publishes per-market summaries to the signal bus.
type Stream struct {
	url       string
	tickers   []string
	book      *Book
	intel     *bus.IntelBus
	lastDepth map[string]int64
}

// NewStream creates a market data stream for the given tickers.
func NewStream(url string, tickers []string, intel *bus.IntelBus) *Stream {
	return &Stream{
		url:       url,
		tickers:   tickers,
		book:      NewBook(),
		intel:     intel,
		lastDepth: make(map[string]int64),
	}
}

// Book exposes the underlying state for direct reads.
func (s *Stream) Book() *Book {
	return s.book
}

// Run connects and processes the feed until ctx is canceled. Sequence
// gaps and connection drops trigger a reconnect with fresh snapshots.
func (s *Stream) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := s.runOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Warn().Err(err).Msg("Orderbook stream interrupted, reconnecting")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
}

func (s *Stream) runOnce(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("failed to dial market data feed: %w", err)
	}
	defer conn.Close()

	sub := map[string]interface{}{
		"cmd":     "subscribe",
		"channel": "orderbook",
		"tickers": s.tickers,
	}
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	log.Info().Strs("tickers", s.tickers).Str("url", s.url).Msg("Orderbook stream connected")

	// Close the socket when ctx ends so ReadMessage unblocks
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("feed read failed: %w", err)
		}

		var msg wsMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Debug().Err(err).Msg("Skipping unparseable feed message")
			continue
		}

		switch msg.Type {
		case "snapshot":
			s.book.ApplySnapshot(msg.Snapshot)
			s.publishSummary(ctx, msg.Snapshot.Ticker)

		case "delta":
			if !s.book.ApplyDelta(msg.Delta) {
				// Local state invalidated; drop the connection and
				// resubscribe for fresh snapshots.
				return fmt.Errorf("sequence gap on %s", msg.Delta.Ticker)
			}
			s.publishSummary(ctx, msg.Delta.Ticker)
		}
	}
}

func (s *Stream) publishSummary(ctx context.Context, ticker string) {
	summary, ok := s.book.Summarize(ticker)
	if !ok {
		return
	}

	s.intel.Publish(ctx, "intel:kalshi_orderbook_summary", summary, "orderbook-stream", 0.9)

	depth := summary.YesDepth + summary.NoDepth
	s.intel.Publish(ctx, "intel:kalshi_oi", depth, "orderbook-stream", 0.9)

	if prev := s.lastDepth[ticker]; prev > 0 && float64(depth) >= float64(prev)*liquiditySpikeRatio {
		s.intel.Publish(ctx, "intel:kalshi_liquidity_spike", map[string]interface{}{
			"ticker":     ticker,
			"prev_depth": prev,
			"depth":      depth,
		}, "orderbook-stream", 0.8)
		log.Info().Str("ticker", ticker).Int64("depth", depth).Msg("Liquidity spike detected")
	}
	s.lastDepth[ticker] = depth
}
