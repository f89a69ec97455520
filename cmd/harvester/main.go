package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/marketpilot/internal/broker"
	"github.com/ajitpratap0/marketpilot/internal/bus"
	"github.com/ajitpratap0/marketpilot/internal/config"
	"github.com/ajitpratap0/marketpilot/internal/harvester"
	"github.com/ajitpratap0/marketpilot/internal/metrics"
	"github.com/ajitpratap0/marketpilot/internal/orderbook"
	"github.com/ajitpratap0/marketpilot/internal/playbook"
	"github.com/ajitpratap0/marketpilot/internal/supervisor"
)

const sourceRateLimit = 5 // calls per minute per source

var cryptoSymbols = []string{"BTC/USDT", "ETH/USDT"}

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

	// Stock pollers also track the regime proxies so the observer
	// always has fresh closes for classification.
	stockSymbols := append([]string{}, watchlist.Symbols...)
	stockSymbols = append(stockSymbols, watchlist.RegimeProxy, watchlist.CreditProxy, watchlist.RatesProxy)

	log.Info().
		Int("stocks", len(stockSymbols)).
		Int("crypto", len(cryptoSymbols)).
		Msg("Harvester starting")

	ctx := context.Background()

	pool, err := pgxpool.New(ctx, cfg.Database.GetDSN())
	if err != nil {
		log.Fatal().Err(err).Msg("Database connection failed")
	}
	defer pool.Close()
	store := harvester.NewStore(pool)
	intel := bus.NewIntelBus(bus.NewRedisClient(cfg.Redis.GetRedisAddr(), cfg.Redis.Password, cfg.Redis.DB))

	sup := supervisor.New()

	if bc, ok := cfg.Brokers["binance"]; ok && bc.APIKey != "" {
		src := harvester.NewVenueSource(broker.NewBinance(bc.APIKey, bc.SecretKey, bc.Testnet))
		poller, err := harvester.NewPoller(src, store, cryptoSymbols, sourceRateLimit, false)
		if err != nil {
			log.Fatal().Err(err).Msg("Crypto poller init failed")
		}
		sup.Add(supervisor.ComponentFunc{ComponentName: "binance-poller", Fn: poller.WithIntel(intel).Run})
	}

	if bc, ok := cfg.Brokers["alpaca"]; ok && bc.APIKey != "" {
		src := harvester.NewVenueSource(broker.NewAlpaca(bc.BaseURL, "https://data.alpaca.markets", bc.APIKey, bc.SecretKey))
		poller, err := harvester.NewPoller(src, store, stockSymbols, sourceRateLimit, true)
		if err != nil {
			log.Fatal().Err(err).Msg("Stock poller init failed")
		}
		sup.Add(supervisor.ComponentFunc{ComponentName: "alpaca-poller", Fn: poller.WithIntel(intel).Run})
	}

	if wsURL := os.Getenv("MARKETPILOT_KALSHI_WS_URL"); wsURL != "" && len(watchlist.PredictionMarkets) > 0 {
		stream := orderbook.NewStream(wsURL, watchlist.PredictionMarkets, intel)
		sup.Add(supervisor.ComponentFunc{ComponentName: "orderbook-stream", Fn: stream.Run})
	}

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
