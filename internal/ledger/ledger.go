// Package ledger implements the append-only trade record with FIFO
// position reconstruction. The FIFO engine is pure and operates over
// in-memory entries; the pgx-backed Store persists entries and replays
// them through the engine, so a full replay always reproduces position
// state exactly.
package ledger

import (
	"fmt"
	"math"
	"time"
)

// Dust below this threshold is treated as zero to avoid floating-point
// ghosts after partial lot consumption.
const Epsilon = 1e-6

// Action is the side of a ledger entry.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
)

// Entry is one append-only execution record.
type Entry struct {
	Timestamp    time.Time `json:"timestamp"`
	Action       Action    `json:"action"`
	Ticker       string    `json:"ticker"`
	Price        float64   `json:"price"`
	Quantity     float64   `json:"quantity"`
	Reason       string    `json:"reason"`
	EstTaxImpact float64   `json:"est_tax_impact"`
	Broker       string    `json:"broker"`
}

// Position is the derived view over the ledger for one ticker.
type Position struct {
	Ticker     string    `json:"ticker"`
	SharesHeld float64   `json:"shares_held"`
	CostBasis  float64   `json:"cost_basis"`
	AvgPrice   float64   `json:"avg_price"`
	OpenedAt   time.Time `json:"opened_at"` // oldest unmatched lot
}

// lot is one unmatched BUY parcel in a ticker's FIFO queue.
type lot struct {
	qty   float64
	price float64
	at    time.Time
}

// Book reconstructs positions from entries with FIFO lot matching.
type Book struct {
	lots        map[string][]lot
	realizedPnL map[string]float64
}

// NewBook creates an empty position book.
func NewBook() *Book {
	return &Book{
		lots:        make(map[string][]lot),
		realizedPnL: make(map[string]float64),
	}
}

// Replay applies entries in chronological order to an empty book.
func Replay(entries []Entry) (*Book, error) {
	b := NewBook()
	for i, e := range entries {
		if err := b.Apply(e); err != nil {
			return nil, fmt.Errorf("replay failed at entry %d (%s %s): %w", i, e.Action, e.Ticker, err)
		}
	}
	return b, nil
}

// Apply folds one entry into the book. SELL quantities exceeding the
// unmatched BUY quantity for the ticker are rejected.
func (b *Book) Apply(e Entry) error {
	if e.Quantity < 0 {
		return fmt.Errorf("negative quantity %f", e.Quantity)
	}

	switch e.Action {
	case ActionBuy:
		b.lots[e.Ticker] = append(b.lots[e.Ticker], lot{qty: e.Quantity, price: e.Price, at: e.Timestamp})
		return nil

	case ActionSell:
		held := b.QuantityHeld(e.Ticker)
		if e.Quantity > held+Epsilon {
			return fmt.Errorf("sell of %f exceeds held quantity %f for %s", e.Quantity, held, e.Ticker)
		}

		remaining := e.Quantity
		queue := b.lots[e.Ticker]
		for remaining > Epsilon && len(queue) > 0 {
			head := &queue[0]
			consumed := math.Min(head.qty, remaining)
			b.realizedPnL[e.Ticker] += (e.Price - head.price) * consumed
			head.qty -= consumed
			remaining -= consumed
			if head.qty <= Epsilon {
				queue = queue[1:]
			}
		}
		b.lots[e.Ticker] = queue
		return nil

	default:
		return fmt.Errorf("unknown action %q", e.Action)
	}
}

// QuantityHeld returns the residual BUY quantity for a ticker.
func (b *Book) QuantityHeld(ticker string) float64 {
	var total float64
	for _, l := range b.lots[ticker] {
		total += l.qty
	}
	if total <= Epsilon {
		return 0
	}
	return total
}

// HasPosition reports whether the ticker is held above dust tolerance.
func (b *Book) HasPosition(ticker string) bool {
	return b.QuantityHeld(ticker) > Epsilon
}

// AverageBuyPrice returns the cost-weighted average of the open lots.
func (b *Book) AverageBuyPrice(ticker string) float64 {
	var qty, cost float64
	for _, l := range b.lots[ticker] {
		qty += l.qty
		cost += l.qty * l.price
	}
	if qty <= Epsilon {
		return 0
	}
	return cost / qty
}

// RealizedPnL returns the cumulative realized profit for a ticker.
func (b *Book) RealizedPnL(ticker string) float64 {
	return b.realizedPnL[ticker]
}

// OpenPositions returns the derived position per held ticker.
func (b *Book) OpenPositions() map[string]Position {
	positions := make(map[string]Position)
	for ticker, queue := range b.lots {
		var qty, cost float64
		var opened time.Time
		for _, l := range queue {
			qty += l.qty
			cost += l.qty * l.price
			if opened.IsZero() || l.at.Before(opened) {
				opened = l.at
			}
		}
		if qty <= Epsilon {
			continue
		}
		positions[ticker] = Position{
			Ticker:     ticker,
			SharesHeld: qty,
			CostBasis:  cost,
			AvgPrice:   cost / qty,
			OpenedAt:   opened,
		}
	}
	return positions
}
