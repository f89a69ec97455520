package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/marketpilot/internal/bus"
	"github.com/ajitpratap0/marketpilot/internal/config"
	"github.com/ajitpratap0/marketpilot/internal/desk"
	"github.com/ajitpratap0/marketpilot/internal/harvester"
	"github.com/ajitpratap0/marketpilot/internal/playbook"
	"github.com/ajitpratap0/marketpilot/internal/supervisor"
	"github.com/ajitpratap0/marketpilot/internal/swarm"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	config.InitLogger(cfg.App.LogLevel, cfg.App.LogFormat)

	watchlist, err := playbook.LoadWatchlist(cfg.Playbook.WatchlistPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Watchlist load failed")
	}

	ctx := context.Background()

	pool, err := pgxpool.New(ctx, cfg.Database.GetDSN())
	if err != nil {
		log.Fatal().Err(err).Msg("Database connection failed")
	}
	defer pool.Close()

	tickStore := harvester.NewStore(pool)
	intel := bus.NewIntelBus(bus.NewRedisClient(cfg.Redis.GetRedisAddr(), cfg.Redis.Password, cfg.Redis.DB))

	channels, err := bus.NewChannels(bus.ChannelsConfig{
		NATSURL:          cfg.NATS.URL,
		ClientName:       "desk",
		TradeSignalTopic: cfg.NATS.TradeSignalTopic,
		EmergencyTopic:   cfg.NATS.EmergencyTopic,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Channel bus connection failed")
	}
	defer channels.Close()

	d := desk.New(
		swarm.NewCIO(),
		tickStore,
		intel,
		channels,
		watchlist.Symbols,
		cfg.Trading.ActiveBroker,
		cfg.Playbook.Interval,
	)

	sup := supervisor.New()
	sup.Add(supervisor.ComponentFunc{ComponentName: "desk", Fn: d.Run})
	sup.Run(ctx)
}
