// Package orderbook mirrors a prediction venue's per-market book from a
// snapshot plus sequenced deltas. Prices are integer cents in [1,99];
// by prediction-market convention the top of the yes side is the best
// bid and 100 minus the top of the no side is the best ask.
package orderbook

import (
	"sort"
	"sync"

	"github.com/rs/zerolog/log"
)

// Side identifies which half of the book a level belongs to.
type Side string

const (
	SideYes Side = "yes"
	SideNo  Side = "no"
)

// Level is one price level.
type Level struct {
	PriceCents int64 `json:"price_cents"`
	Quantity   int64 `json:"quantity"`
}

// Delta is one incremental book update.
type Delta struct {
	Ticker     string `json:"ticker"`
	Seq        int64  `json:"seq"`
	Side       Side   `json:"side"`
	PriceCents int64  `json:"price_cents"`
	// QuantityDelta adjusts the resting quantity at the level; the
	// level is removed when it reaches zero or below.
	QuantityDelta int64 `json:"quantity_delta"`
}

// Snapshot is a full book image at a sequence number.
type Snapshot struct {
	Ticker string  `json:"ticker"`
	Seq    int64   `json:"seq"`
	Yes    []Level `json:"yes"`
	No     []Level `json:"no"`
}

// Summary is the retained view of one market's book. Full books are
// not persisted; only this summary reaches the signal bus.
type Summary struct {
	Ticker      string `json:"ticker"`
	BestBid     int64  `json:"best_bid"`
	BestAsk     int64  `json:"best_ask"`
	YesDepth    int64  `json:"yes_depth"`
	NoDepth     int64  `json:"no_depth"`
	SpreadCents int64  `json:"spread_cents"`
}

// Book tracks per-ticker state for all subscribed markets.
type Book struct {
	mu          sync.RWMutex
	yes         map[string]map[int64]int64
	no          map[string]map[int64]int64
	expectedSeq map[string]int64
}

// NewBook creates an empty multi-market book.
func NewBook() *Book {
	return &Book{
		yes:         make(map[string]map[int64]int64),
		no:          make(map[string]map[int64]int64),
		expectedSeq: make(map[string]int64),
	}
}

// ApplySnapshot replaces the local state for a ticker and arms the
// sequence expectation at snapshot seq + 1.
func (b *Book) ApplySnapshot(s Snapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()

	yes := make(map[int64]int64, len(s.Yes))
	for _, l := range s.Yes {
		if l.Quantity > 0 {
			yes[l.PriceCents] = l.Quantity
		}
	}
	no := make(map[int64]int64, len(s.No))
	for _, l := range s.No {
		if l.Quantity > 0 {
			no[l.PriceCents] = l.Quantity
		}
	}

	b.yes[s.Ticker] = yes
	b.no[s.Ticker] = no
	b.expectedSeq[s.Ticker] = s.Seq + 1

	log.Debug().
		Str("ticker", s.Ticker).
		Int64("seq", s.Seq).
		Int("yes_levels", len(yes)).
		Int("no_levels", len(no)).
		Msg("Orderbook snapshot applied")
}

// ApplyDelta folds one delta into the ticker's book. A sequence gap
// invalidates local state and returns false; the caller must fetch a
// fresh snapshot before applying further deltas.
func (b *Book) ApplyDelta(d Delta) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	expected, ok := b.expectedSeq[d.Ticker]
	if !ok || d.Seq != expected {
		log.Warn().
			Str("ticker", d.Ticker).
			Int64("received_seq", d.Seq).
			Int64("expected_seq", expected).
			Msg("Orderbook sequence gap, invalidating local state")
		delete(b.yes, d.Ticker)
		delete(b.no, d.Ticker)
		delete(b.expectedSeq, d.Ticker)
		return false
	}

	var side map[int64]int64
	switch d.Side {
	case SideYes:
		side = b.yes[d.Ticker]
	case SideNo:
		side = b.no[d.Ticker]
	default:
		// Unknown side advances the seq but changes nothing
		b.expectedSeq[d.Ticker] = d.Seq + 1
		return true
	}

	qty := side[d.PriceCents] + d.QuantityDelta
	if qty <= 0 {
		delete(side, d.PriceCents)
	} else {
		side[d.PriceCents] = qty
	}

	b.expectedSeq[d.Ticker] = d.Seq + 1
	return true
}

// HasState reports whether a valid book exists for the ticker.
func (b *Book) HasState(ticker string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.expectedSeq[ticker]
	return ok
}

// BestBid returns the top of the yes side in cents.
func (b *Book) BestBid(ticker string) (int64, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return topOfSide(b.yes[ticker])
}

// BestAsk returns 100 minus the top of the no side in cents.
func (b *Book) BestAsk(ticker string) (int64, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	top, ok := topOfSide(b.no[ticker])
	if !ok {
		return 0, false
	}
	return 100 - top, true
}

func topOfSide(side map[int64]int64) (int64, bool) {
	var best int64
	var found bool
	for price := range side {
		if !found || price > best {
			best = price
			found = true
		}
	}
	return best, found
}

// Levels returns one side of the book sorted by descending price.
func (b *Book) Levels(ticker string, side Side) []Level {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var m map[int64]int64
	if side == SideYes {
		m = b.yes[ticker]
	} else {
		m = b.no[ticker]
	}

	levels := make([]Level, 0, len(m))
	for price, qty := range m {
		levels = append(levels, Level{PriceCents: price, Quantity: qty})
	}
	sort.Slice(levels, func(i, j int) bool { return levels[i].PriceCents > levels[j].PriceCents })
	return levels
}

// Summarize produces the retained summary for a ticker.
func (b *Book) Summarize(ticker string) (Summary, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if _, ok := b.expectedSeq[ticker]; !ok {
		return Summary{}, false
	}

	s := Summary{Ticker: ticker}
	for _, qty := range b.yes[ticker] {
		s.YesDepth += qty
	}
	for _, qty := range b.no[ticker] {
		s.NoDepth += qty
	}
	if bid, ok := topOfSide(b.yes[ticker]); ok {
		s.BestBid = bid
	}
	if noTop, ok := topOfSide(b.no[ticker]); ok {
		s.BestAsk = 100 - noTop
	}
	if s.BestBid > 0 && s.BestAsk > 0 {
		s.SpreadCents = s.BestAsk - s.BestBid
	}
	return s, true
}
