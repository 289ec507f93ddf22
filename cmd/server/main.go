package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"vidar/internal/config"
	"vidar/internal/engine"
	"vidar/internal/net"
	"vidar/internal/risk"
)

func main() {
	configPath := flag.String("config", "", "path to config file (default: ./config.yaml, ./configs/config.yaml)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("unable to load config")
	}
	setupLogging(cfg.Logging)

	limits, err := cfg.Risk.Limits()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid risk limits")
	}

	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGTERM,
		syscall.SIGINT,
	)
	defer stop()

	// Wire the matching engine, the risk gate and the TCP gateway.
	eng := engine.NewMatchingEngine()
	gate := risk.NewManager(limits)
	srv := net.New(cfg.Server.Address, cfg.Server.Port, eng, gate, cfg.Server.Workers)

	go srv.Run(ctx)
	// Block on running the server.
	<-ctx.Done()
}

func setupLogging(cfg config.LoggingConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.Pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}
