package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/marketpilot/internal/analyzer"
	"github.com/ajitpratap0/marketpilot/internal/autopilot"
	"github.com/ajitpratap0/marketpilot/internal/broker"
	"github.com/ajitpratap0/marketpilot/internal/bus"
	"github.com/ajitpratap0/marketpilot/internal/config"
	"github.com/ajitpratap0/marketpilot/internal/harvester"
	"github.com/ajitpratap0/marketpilot/internal/ledger"
	"github.com/ajitpratap0/marketpilot/internal/metrics"
	"github.com/ajitpratap0/marketpilot/internal/risk"
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

	log.Info().
		Str("environment", cfg.App.Environment).
		Bool("paper_mode", cfg.Trading.PaperMode).
		Msg("Autopilot starting")

	ctx := context.Background()

	pool, err := pgxpool.New(ctx, cfg.Database.GetDSN())
	if err != nil {
		log.Fatal().Err(err).Msg("Database connection failed")
	}
	defer pool.Close()

	ledgerStore := ledger.NewStore(pool)
	tickStore := harvester.NewStore(pool)
	intel := bus.NewIntelBus(bus.NewRedisClient(cfg.Redis.GetRedisAddr(), cfg.Redis.Password, cfg.Redis.DB))

	channels, err := bus.NewChannels(bus.ChannelsConfig{
		NATSURL:          cfg.NATS.URL,
		ClientName:       "autopilot",
		TradeSignalTopic: cfg.NATS.TradeSignalTopic,
		EmergencyTopic:   cfg.NATS.EmergencyTopic,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Channel bus connection failed")
	}
	defer channels.Close()

	adapters := buildAdapters(cfg)
	execRouter, err := broker.NewRouter(broker.RouterConfig{
		RoutingEnabled: cfg.Trading.RoutingEnabled,
		Primary:        cfg.Trading.ActiveBroker,
		Crypto:         "binance",
		ExtendedHours:  "alpaca",
	}, adapters)
	if err != nil {
		log.Fatal().Err(err).Msg("Broker router init failed")
	}

	blacklist := autopilot.NewBlacklist()
	active := adapters[cfg.Trading.ActiveBroker]
	exits := autopilot.NewExitEngine(active, autopilot.ExitRules{
		MinHold:       cfg.Execution.MinHold,
		TakeProfitPct: cfg.Risk.TakeProfitPct,
		StopLossPct:   cfg.Risk.StopLossPct,
		Prediction:    cfg.Trading.ActiveBroker == "kalshi",
		BlacklistTTL:  cfg.Execution.BlacklistTTL,
	}, ledgerStore, blacklist)

	analyzers := []analyzer.Analyzer{
		analyzer.NewCrypto("BTC/USDT", tickStore, intel),
		analyzer.NewMacro(analyzer.NewStoreMacroData(tickStore, "", "", ""), intel),
		analyzer.NewSocial(
			analyzer.NewHTTPSocialSource(os.Getenv("MARKETPILOT_SOCIAL_API_URL"), os.Getenv("MARKETPILOT_SOCIAL_API_KEY"), 10*time.Second),
			intel,
			analyzer.NewBudget(cfg.Social.BudgetLimit, cfg.Social.TotalSpend, cfg.Social.ScanFrequency),
			cfg.Trading.SocialThreshold*100,
		),
	}

	loader := func() (*config.Config, error) { return config.Load(*configPath) }
	pilot := autopilot.New(loader, intel, ledgerStore, execRouter, analyzers, exits, blacklist, cfg.Trading.MaxBudget).
		WithGuards(
			risk.NewWashSaleGuard(ledgerStore, cfg.Risk.WashSaleGuard),
			risk.NewDailyLossGuard(cfg.Risk.MaxDailyLoss*cfg.Trading.MaxBudget, ledgerStore, channels),
		)

	sup := supervisor.New()
	sup.Add(supervisor.ComponentFunc{ComponentName: "autopilot", Fn: pilot.Run})
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
	sup.Run(ctx)
}

// buildAdapters registers every venue with credentials, plus the paper
// venue which needs none.
func buildAdapters(cfg *config.Config) map[string]broker.Adapter {
	adapters := map[string]broker.Adapter{
		"paper": broker.NewPaper(cfg.Trading.MaxBudget),
	}

	if bc, ok := cfg.Brokers["binance"]; ok && bc.APIKey != "" {
		adapters["binance"] = broker.NewBinance(bc.APIKey, bc.SecretKey, bc.Testnet)
	}
	if bc, ok := cfg.Brokers["alpaca"]; ok && bc.APIKey != "" {
		dataURL := "https://data.alpaca.markets"
		adapters["alpaca"] = broker.NewAlpaca(bc.BaseURL, dataURL, bc.APIKey, bc.SecretKey)
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
