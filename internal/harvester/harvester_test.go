package harvester

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/marketpilot/internal/bus"
)

func TestInsertTick(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	at := time.Date(2026, 8, 24, 15, 0, 0, 0, time.UTC)
	mock.ExpectExec("INSERT INTO ticks").
		WithArgs(at, "NVDA", 181.5, 1200.0).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	store := NewStore(mock)
	err = store.Insert(context.Background(), Tick{Timestamp: at, Symbol: "NVDA", Price: 181.5, Volume: 1200})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClosesOldestFirst(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	rows := pgxmock.NewRows([]string{"price"}).
		AddRow(180.0).
		AddRow(181.0).
		AddRow(182.0)
	mock.ExpectQuery("SELECT price FROM").
		WithArgs("NVDA", 3).
		WillReturnRows(rows)

	store := NewStore(mock)
	closes, err := store.Closes(context.Background(), "NVDA", 3)
	require.NoError(t, err)
	assert.Equal(t, []float64{180, 181, 182}, closes)
}

func TestRecentBarsFromTicks(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	at := time.Date(2026, 8, 24, 15, 0, 0, 0, time.UTC)
	rows := pgxmock.NewRows([]string{"tick_time", "price", "volume"}).
		AddRow(at, 180.0, 1000.0).
		AddRow(at.Add(time.Minute), 181.0, 1100.0)
	mock.ExpectQuery("SELECT tick_time, price, volume FROM").
		WithArgs("NVDA", 2).
		WillReturnRows(rows)

	store := NewStore(mock)
	bars, err := store.RecentBars(context.Background(), "NVDA", 2)
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, 180.0, bars[0].Close)
	assert.Equal(t, 1100.0, bars[1].Volume)
}

func TestInsertWithoutPool(t *testing.T) {
	store := NewStore(nil)
	assert.Error(t, store.Insert(context.Background(), Tick{Symbol: "NVDA"}))
}

type stubSource struct {
	tick Tick
	err  error
}

func (s stubSource) Name() string { return "stub" }

func (s stubSource) Latest(ctx context.Context, symbol string) (Tick, error) {
	if s.err != nil {
		return Tick{}, s.err
	}
	t := s.tick
	t.Symbol = symbol
	return t, nil
}

func TestPollOneInsertsTick(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	at := time.Date(2026, 8, 24, 15, 0, 0, 0, time.UTC)
	mock.ExpectExec("INSERT INTO ticks").
		WithArgs(at, "BTC/USDT", 67000.0, 0.0).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	poller, err := NewPoller(stubSource{tick: Tick{Timestamp: at, Price: 67000}}, NewStore(mock), []string{"BTC/USDT"}, 5, false)
	require.NoError(t, err)

	poller.pollOne(context.Background(), "BTC/USDT")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPollOnePublishesLatestPrice(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mr := miniredis.RunT(t)
	intel := bus.NewIntelBus(bus.NewRedisClient(mr.Addr(), "", 0))

	at := time.Date(2026, 8, 24, 15, 0, 0, 0, time.UTC)
	mock.ExpectExec("INSERT INTO ticks").
		WithArgs(at, "BTC/USDT", 67000.0, 0.0).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	poller, err := NewPoller(stubSource{tick: Tick{Timestamp: at, Price: 67000}}, NewStore(mock), []string{"BTC/USDT"}, 5, false)
	require.NoError(t, err)

	poller.WithIntel(intel).pollOne(context.Background(), "BTC/USDT")

	assert.Equal(t, 67000.0, intel.ReadFloat(context.Background(), "price:BTC/USDT", 0))
}

func TestPollOneSourceFailureInsertsNothing(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	poller, err := NewPoller(stubSource{err: fmt.Errorf("feed down")}, NewStore(mock), []string{"NVDA"}, 5, true)
	require.NoError(t, err)

	poller.pollOne(context.Background(), "NVDA")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewPollerRejectsZeroRate(t *testing.T) {
	_, err := NewPoller(stubSource{}, NewStore(nil), nil, 0, false)
	assert.Error(t, err)
}

func TestMarketOpen(t *testing.T) {
	poller, err := NewPoller(stubSource{}, NewStore(nil), nil, 5, true)
	require.NoError(t, err)

	eastern := func(day time.Time, hour, minute int) time.Time {
		return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, poller.location)
	}
	monday := time.Date(2026, 8, 17, 0, 0, 0, 0, time.UTC)
	saturday := time.Date(2026, 8, 22, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name string
		at   time.Time
		open bool
	}{
		{"regular session", eastern(monday, 10, 30), true},
		{"pre-market", eastern(monday, 5, 0), true},
		{"after-hours", eastern(monday, 19, 0), true},
		{"overnight", eastern(monday, 2, 0), false},
		{"post-close", eastern(monday, 20, 30), false},
		{"weekend", eastern(saturday, 10, 30), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			poller.now = func() time.Time { return tc.at }
			assert.Equal(t, tc.open, poller.MarketOpen())
		})
	}
}
