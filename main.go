package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/caterpillar/apps/go-server/internal/config"
	"github.com/robalobadob/caterpillar/apps/go-server/internal/httpserver"
	"github.com/robalobadob/caterpillar/apps/go-server/internal/store"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	zerolog.SetGlobalLevel(cfg.LogLevel)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
	if cfg.JWTSecret == config.DevSecret {
		log.Warn().Msg("JWT_SECRET not set, using development secret")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mem := store.NewMemoryStore()
	go store.RunSweeper(ctx, mem, cfg.SessionTTL, cfg.SweepInterval)

	srv := httpserver.New(mem, cfg)
	go func() {
		log.Info().Str("port", cfg.Port).Int("winScore", cfg.Tuning.Chain.WinScore).Msg("starting go-server")
		if err := srv.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server exited")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}
}
