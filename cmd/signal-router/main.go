package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/marketpilot/internal/alerts"
	"github.com/ajitpratap0/marketpilot/internal/broker"
	"github.com/ajitpratap0/marketpilot/internal/bus"
	"github.com/ajitpratap0/marketpilot/internal/config"
	"github.com/ajitpratap0/marketpilot/internal/ems"
	"github.com/ajitpratap0/marketpilot/internal/killswitch"
	"github.com/ajitpratap0/marketpilot/internal/ledger"
	"github.com/ajitpratap0/marketpilot/internal/metrics"
	"github.com/ajitpratap0/marketpilot/internal/supervisor"
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
	metrics.Init()

	log.Info().Msg("Signal router starting")

	ctx := context.Background()

	pool, err := pgxpool.New(ctx, cfg.Database.GetDSN())
	if err != nil {
		log.Fatal().Err(err).Msg("Database connection failed")
	}
	defer pool.Close()
	ledgerStore := ledger.NewStore(pool)

	channels, err := bus.NewChannels(bus.ChannelsConfig{
		NATSURL:          cfg.NATS.URL,
		ClientName:       "signal-router",
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

	adapters := buildAdapters(cfg)
	router := ems.NewRouter(adapters, ledgerStore, killSwitch)

	subs, err := router.Start(ctx, channels)
	if err != nil {
		log.Fatal().Err(err).Msg("Router subscriptions failed")
	}
	defer func() {
		for _, sub := range subs {
			sub.Unsubscribe()
		}
	}()

	sup := supervisor.New()
	if cfg.Metrics.Enabled {
		srv := metrics.NewServer(cfg.Metrics.Port)
		sup.Add(supervisor.ComponentFunc{ComponentName: "metrics", Fn: func(ctx context.Context) error {
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(shutdownCtx)
			}()
			return srv.Start()
		}})
	}
	sup.Add(supervisor.ComponentFunc{ComponentName: "router", Fn: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})
	sup.Run(ctx)
}

func buildAdapters(cfg *config.Config) map[string]broker.Adapter {
	adapters := map[string]broker.Adapter{
		"paper": broker.NewPaper(cfg.Trading.MaxBudget),
	}

	if bc, ok := cfg.Brokers["binance"]; ok && bc.APIKey != "" {
		adapters["binance"] = broker.NewBinance(bc.APIKey, bc.SecretKey, bc.Testnet)
	}
	if bc, ok := cfg.Brokers["alpaca"]; ok && bc.APIKey != "" {
		adapters["alpaca"] = broker.NewAlpaca(bc.BaseURL, "https://data.alpaca.markets", bc.APIKey, bc.SecretKey)
	}
	if bc, ok := cfg.Brokers["kalshi"]; ok && bc.PrivateKeyPEM != "" {
		auth, err := broker.NewKalshiAuth(bc.APIKey, bc.PrivateKeyPEM)
		if err != nil {
			log.Error().Err(err).Msg("Kalshi key unusable - venue skipped")
		} else {
			adapters["kalshi"] = broker.NewKalshi(bc.BaseURL, auth)
		}
	}
	return adapters
}
