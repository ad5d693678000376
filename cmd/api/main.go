package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/noah-isme/backend-impor/internal/app"
	"github.com/noah-isme/backend-impor/internal/config"
	"github.com/noah-isme/backend-impor/internal/obs"
)

func main() {
	cfg := config.MustLoad()
	logger := obs.NewLogger(cfg.Obs.LogFormat, cfg.Obs.LogLevel).With().Str("env", cfg.AppEnv).Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise api")
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		a.Close(closeCtx)
	}()

	if err := a.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("server exited unexpectedly")
		return
	}
	logger.Info().Msg("server stopped")
}
