package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/marketpilot/internal/alerts"
	"github.com/ajitpratap0/marketpilot/internal/bus"
	"github.com/ajitpratap0/marketpilot/internal/config"
	"github.com/ajitpratap0/marketpilot/internal/harvester"
	"github.com/ajitpratap0/marketpilot/internal/killswitch"
	"github.com/ajitpratap0/marketpilot/internal/ledger"
	"github.com/ajitpratap0/marketpilot/internal/metrics"
	"github.com/ajitpratap0/marketpilot/internal/playbook"
	"github.com/ajitpratap0/marketpilot/internal/supervisor"
)

// tradeReturns adapts the ledger to the observer's returns feed.
type tradeReturns struct {
	store *ledger.Store
}

func (t tradeReturns) RecentReturns(ctx context.Context, limit int) ([]float64, error) {
	return t.store.RecentReturns(ctx, limit)
}

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	config.InitLogger(cfg.App.LogLevel, cfg.App.LogFormat)
	metrics.Init()

	watchlist, err := playbook.LoadWatchlist(cfg.Playbook.WatchlistPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Watchlist load failed")
	}
	log.Info().
		Int("symbols", len(watchlist.Symbols)).
		Dur("interval", cfg.Playbook.Interval).
		Msg("Playbook observer starting")

	ctx := context.Background()

	pool, err := pgxpool.New(ctx, cfg.Database.GetDSN())
	if err != nil {
		log.Fatal().Err(err).Msg("Database connection failed")
	}
	defer pool.Close()

	tickStore := harvester.NewStore(pool)
	ledgerStore := ledger.NewStore(pool)
	intel := bus.NewIntelBus(bus.NewRedisClient(cfg.Redis.GetRedisAddr(), cfg.Redis.Password, cfg.Redis.DB))

	channels, err := bus.NewChannels(bus.ChannelsConfig{
		NATSURL:          cfg.NATS.URL,
		ClientName:       "playbook",
		TradeSignalTopic: cfg.NATS.TradeSignalTopic,
		EmergencyTopic:   cfg.NATS.EmergencyTopic,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Channel bus connection failed")
	}
	defer channels.Close()

	alertManager := alerts.NewManager(alerts.NewLogAlerter())
	if cfg.Telegram.Enabled {
		tg, err := alerts.NewTelegramAlerter(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
		if err != nil {
			log.Warn().Err(err).Msg("Telegram alerter unavailable")
		} else {
			alertManager = alerts.NewManager(alerts.NewLogAlerter(), tg)
		}
	}

	killSwitch := killswitch.New(killswitch.Limits{}, channels, alertManager)
	archive := playbook.NewArchive(cfg.Playbook.ArchiveDir)
	defer archive.Close()

	observer := playbook.NewObserver(
		watchlist,
		tickStore,
		tradeReturns{store: ledgerStore},
		killSwitch,
		archive,
		intel,
		cfg.Playbook.Interval,
	)

	sup := supervisor.New()
	sup.Add(supervisor.ComponentFunc{ComponentName: "observer", Fn: observer.Run})
	sup.Run(ctx)
}
