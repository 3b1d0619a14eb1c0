// ragjenkins server: upload a codebase, index it, and let an agent search
// it and drive Jenkins builds.
//
// It serves:
//   - the web UI at /
//   - the JSON API under /api
//   - Prometheus metrics at /metrics
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/agentoven/ragjenkins/internal/config"
	"github.com/agentoven/ragjenkins/pkg/server"
)

func main() {
	cfg := config.Load()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	log.Info().Str("version", cfg.Version).Msg("🛠️  ragjenkins starting...")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv, err := server.NewWithConfig(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize server")
	}
	defer srv.ShutdownFunc(context.Background())

	if err := srv.ListenAndServe(ctx); err != nil {
		log.Error().Err(err).Msg("Server failed")
	}
}
