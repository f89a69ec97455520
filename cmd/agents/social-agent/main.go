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

	apiURL := os.Getenv("MARKETPILOT_SOCIAL_API_URL")
	if apiURL == "" {
		log.Warn().Msg("Social API URL not set - every scan will report no signal")
	}

	intel := bus.NewIntelBus(bus.NewRedisClient(cfg.Redis.GetRedisAddr(), cfg.Redis.Password, cfg.Redis.DB))
	social := analyzer.NewSocial(
		analyzer.NewHTTPSocialSource(apiURL, os.Getenv("MARKETPILOT_SOCIAL_API_KEY"), 10*time.Second),
		intel,
		analyzer.NewBudget(cfg.Social.BudgetLimit, cfg.Social.TotalSpend, cfg.Social.ScanFrequency),
		cfg.Trading.SocialThreshold*100,
	)

	interval := cfg.Trading.ScanInterval
	if interval <= 0 {
		interval = time.Minute
	}
	log.Info().Dur("interval", interval).Float64("budget", cfg.Social.BudgetLimit).Msg("Social agent starting")

	sup := supervisor.New()
	sup.Add(supervisor.ComponentFunc{ComponentName: social.Name(), Fn: func(ctx context.Context) error {
		return analyzer.Loop(ctx, social, interval)
	}})
	sup.Run(context.Background())
}
