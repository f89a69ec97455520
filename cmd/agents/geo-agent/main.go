package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/marketpilot/internal/analyzer"
	"github.com/ajitpratap0/marketpilot/internal/bus"
	"github.com/ajitpratap0/marketpilot/internal/config"
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

	feedURL := os.Getenv("MARKETPILOT_GEO_FEED_URL")
	if feedURL == "" {
		log.Warn().Msg("Geo feed URL not set - every scan will report no signal")
	}

	intel := bus.NewIntelBus(bus.NewRedisClient(cfg.Redis.GetRedisAddr(), cfg.Redis.Password, cfg.Redis.DB))
	geo := analyzer.NewGeo(analyzer.NewHTTPEventSource(feedURL, 10*time.Second), intel)

	interval := cfg.Trading.ScanInterval
	if interval <= 0 {
		interval = time.Minute
	}
	log.Info().Dur("interval", interval).Msg("Geo agent starting")

	sup := supervisor.New()
	sup.Add(supervisor.ComponentFunc{ComponentName: geo.Name(), Fn: func(ctx context.Context) error {
		return analyzer.Loop(ctx, geo, interval)
	}})
	sup.Run(context.Background())
}
