package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog/log"
)

// PoolInterface defines the interface for database pool operations
type PoolInterface interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// Store is the durable append-only ledger backed by Postgres.
type Store struct {
	pool PoolInterface
}

// NewStore creates a ledger store with a database connection.
func NewStore(pool PoolInterface) *Store {
	return &Store{pool: pool}
}

// Append writes one entry to the ledger. Ledger write failure is fatal
// for the caller's correctness; the error is returned, not swallowed.
func (s *Store) Append(ctx context.Context, e Entry) error {
	if s.pool == nil {
		return fmt.Errorf("no database pool available")
	}
	if e.Quantity < 0 {
		return fmt.Errorf("negative quantity %f", e.Quantity)
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	query := `
		INSERT INTO trades (trade_time, action, ticker, price, quantity, reason, est_tax_impact, broker)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	if _, err := s.pool.Exec(ctx, query,
		e.Timestamp, string(e.Action), e.Ticker, e.Price, e.Quantity, e.Reason, e.EstTaxImpact, e.Broker,
	); err != nil {
		return fmt.Errorf("failed to append ledger entry: %w", err)
	}

	log.Info().
		Str("action", string(e.Action)).
		Str("ticker", e.Ticker).
		Float64("price", e.Price).
		Float64("quantity", e.Quantity).
		Str("reason", e.Reason).
		Str("broker", e.Broker).
		Msg("Ledger entry appended")

	return nil
}

// LoadAll reads the full ledger in chronological order.
func (s *Store) LoadAll(ctx context.Context) ([]Entry, error) {
	if s.pool == nil {
		return nil, fmt.Errorf("no database pool available")
	}

	query := `
		SELECT trade_time, action, ticker, price, quantity, reason, est_tax_impact, broker
		FROM trades
		ORDER BY trade_time ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var action string
		if err := rows.Scan(&e.Timestamp, &action, &e.Ticker, &e.Price, &e.Quantity, &e.Reason, &e.EstTaxImpact, &e.Broker); err != nil {
			return nil, fmt.Errorf("failed to scan ledger row: %w", err)
		}
		e.Action = Action(action)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ledger rows: %w", err)
	}

	return entries, nil
}

// GetOpenPositions replays the ledger and returns the derived positions.
func (s *Store) GetOpenPositions(ctx context.Context) (map[string]Position, error) {
	entries, err := s.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	book, err := Replay(entries)
	if err != nil {
		return nil, err
	}
	return book.OpenPositions(), nil
}

// HasPosition reports whether the ticker is currently held.
func (s *Store) HasPosition(ctx context.Context, ticker string) (bool, error) {
	qty, err := s.GetQuantityHeld(ctx, ticker)
	if err != nil {
		return false, err
	}
	return qty > Epsilon, nil
}

// GetQuantityHeld returns the FIFO residual quantity for a ticker.
func (s *Store) GetQuantityHeld(ctx context.Context, ticker string) (float64, error) {
	book, err := s.replayTicker(ctx, ticker)
	if err != nil {
		return 0, err
	}
	return book.QuantityHeld(ticker), nil
}

// GetAverageBuyPrice returns the cost-weighted open-lot average.
func (s *Store) GetAverageBuyPrice(ctx context.Context, ticker string) (float64, error) {
	book, err := s.replayTicker(ctx, ticker)
	if err != nil {
		return 0, err
	}
	return book.AverageBuyPrice(ticker), nil
}

func (s *Store) replayTicker(ctx context.Context, ticker string) (*Book, error) {
	if s.pool == nil {
		return nil, fmt.Errorf("no database pool available")
	}

	query := `
		SELECT trade_time, action, ticker, price, quantity, reason, est_tax_impact, broker
		FROM trades
		WHERE ticker = $1
		ORDER BY trade_time ASC
	`

	rows, err := s.pool.Query(ctx, query, ticker)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger for %s: %w", ticker, err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var action string
		if err := rows.Scan(&e.Timestamp, &action, &e.Ticker, &e.Price, &e.Quantity, &e.Reason, &e.EstTaxImpact, &e.Broker); err != nil {
			return nil, fmt.Errorf("failed to scan ledger row: %w", err)
		}
		e.Action = Action(action)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ledger rows: %w", err)
	}

	return Replay(entries)
}

// GetTradeHistory returns the most recent entries, newest first.
func (s *Store) GetTradeHistory(ctx context.Context, limit int) ([]Entry, error) {
	if s.pool == nil {
		return nil, fmt.Errorf("no database pool available")
	}

	query := `
		SELECT trade_time, action, ticker, price, quantity, reason, est_tax_impact, broker
		FROM trades
		ORDER BY trade_time DESC
		LIMIT $1
	`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query trade history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var action string
		if err := rows.Scan(&e.Timestamp, &action, &e.Ticker, &e.Price, &e.Quantity, &e.Reason, &e.EstTaxImpact, &e.Broker); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		e.Action = Action(action)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating history rows: %w", err)
	}

	return entries, nil
}

// LastLossSale returns the most recent SELL for ticker whose reason marks
// a stop-loss, within the lookback window. Used by the wash-sale guard.
func (s *Store) LastLossSale(ctx context.Context, ticker string, lookback time.Duration) (*Entry, error) {
	if s.pool == nil {
		return nil, fmt.Errorf("no database pool available")
	}

	query := `
		SELECT trade_time, action, ticker, price, quantity, reason, est_tax_impact, broker
		FROM trades
		WHERE ticker = $1
			AND action = 'SELL'
			AND reason ILIKE '%stop loss%'
			AND trade_time >= $2
		ORDER BY trade_time DESC
		LIMIT 1
	`

	var e Entry
	var action string
	err := s.pool.QueryRow(ctx, query, ticker, time.Now().UTC().Add(-lookback)).Scan(
		&e.Timestamp, &action, &e.Ticker, &e.Price, &e.Quantity, &e.Reason, &e.EstTaxImpact, &e.Broker,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query loss sales: %w", err)
	}
	e.Action = Action(action)
	return &e, nil
}

// RealizedLossToday returns the absolute sum of negative realized PnL
// within the current UTC calendar day. Feeds the daily loss cap.
func (s *Store) RealizedLossToday(ctx context.Context) (float64, error) {
	entries, err := s.LoadAll(ctx)
	if err != nil {
		return 0, err
	}

	dayStart := time.Now().UTC().Truncate(24 * time.Hour)

	book := NewBook()
	var loss float64
	for _, e := range entries {
		before := book.RealizedPnL(e.Ticker)
		if err := book.Apply(e); err != nil {
			return 0, err
		}
		delta := book.RealizedPnL(e.Ticker) - before
		if delta < 0 && !e.Timestamp.Before(dayStart) {
			loss += -delta
		}
	}

	return loss, nil
}

// RecentReturns yields the fractional returns of the most recent
// closed trades, oldest first, capped at limit.
func (s *Store) RecentReturns(ctx context.Context, limit int) ([]float64, error) {
	entries, err := s.LoadAll(ctx)
	if err != nil {
		return nil, err
	}

	returns, err := ClosedTradeReturns(entries)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(returns) > limit {
		returns = returns[len(returns)-limit:]
	}
	return returns, nil
}
