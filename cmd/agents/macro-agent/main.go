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
	"github.com/ajitpratap0/marketpilot/internal/bus"
	"github.com/ajitpratap0/marketpilot/internal/config"
	"github.com/ajitpratap0/marketpilot/internal/harvester"
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

	ctx := context.Background()

	pool, err := pgxpool.New(ctx, cfg.Database.GetDSN())
	if err != nil {
		log.Fatal().Err(err).Msg("Database connection failed")
	}
	defer pool.Close()

	tickStore := harvester.NewStore(pool)
	intel := bus.NewIntelBus(bus.NewRedisClient(cfg.Redis.GetRedisAddr(), cfg.Redis.Password, cfg.Redis.DB))
	macro := analyzer.NewMacro(analyzer.NewStoreMacroData(tickStore, "", "", ""), intel)

	interval := cfg.Trading.ScanInterval
	if interval <= 0 {
		interval = time.Minute
	}
	log.Info().Dur("interval", interval).Msg("Macro agent starting")

	sup := supervisor.New()
	sup.Add(supervisor.ComponentFunc{ComponentName: macro.Name(), Fn: func(ctx context.Context) error {
		return analyzer.Loop(ctx, macro, interval)
	}})
	sup.Run(ctx)
}
