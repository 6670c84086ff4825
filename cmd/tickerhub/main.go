package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"tickerhub/internal/infrastructure/config"
	"tickerhub/internal/infrastructure/logger"
	"tickerhub/internal/infrastructure/svc"
)

func main() {
	configPath := flag.String("config", "configs/config.toml", "path to config.toml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Setup("info")
		log.Fatal().Err(err).Str("config", *configPath).Msg("load config failed")
	}
	logger.Setup(cfg.App.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sc, err := svc.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}
	defer sc.Close()

	log.Info().
		Str("config", *configPath).
		Strs("symbols", cfg.Symbols.List).
		Strs("feeds", cfg.GetEnabledFeeds()).
		Str("http_addr", cfg.App.HTTPAddr).
		Int("print_every_min", cfg.App.PrintEveryMin).
		Msg("tickerhub started")

	if err := sc.Run(ctx); err != nil {
		log.Error().Err(err).Msg("tickerhub exited")
	}
}
