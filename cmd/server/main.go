// Command server runs the business-verification HTTP API standalone.
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
	"github.com/rs/zerolog/log"

	"github.com/Avantemaps-pi/avante-verifier-internal/internal/config"
	"github.com/Avantemaps-pi/avante-verifier-internal/pkg/verifier"
)

func main() {
	// .env is optional: local dev convenience, absent in deployed environments
	// where the real env vars are already set.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("server.dotenv_load_failed")
	}

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatal().Err(err).Msg("server.config_load_failed")
	}

	app, err := verifier.NewApp(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("server.app_init_failed")
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("address", cfg.Server.Address).Msg("server.listening")
		if err := app.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		log.Fatal().Err(err).Msg("server.listen_failed")
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("server.shutting_down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server.http_shutdown_failed")
	}

	if err := app.Close(); err != nil {
		log.Error().Err(err).Msg("server.resource_close_failed")
	}

	log.Info().Msg("server.stopped")
}
