package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"fundingledger/internal/bootstrap"
	"fundingledger/internal/http/handlers"
	httpapi "fundingledger/internal/http/httpapi"
	"fundingledger/internal/idempotency"
	"fundingledger/internal/infra"
)

func main() {
	// optional .env
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, err := bootstrap.Open(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open store")
	}
	defer backend.Close()

	var idem idempotency.Store
	if cfg.RedisURL != "" {
		client, err := idempotency.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect redis")
		}
		defer client.Close()
		idem = idempotency.NewRedisStore(client, cfg.IdempotencyTTL)
	} else {
		logger.Warn().Msg("REDIS_URL not set, idempotency keys are process-local")
		idem = idempotency.NewMemoryStore(cfg.IdempotencyTTL)
	}

	app := handlers.NewApp(backend.NewLedger(cfg, logger), idem, cfg.ConfirmRoles, infra.Component(logger, "http"))
	app.Ping = backend.Ping

	router := httpapi.NewRouter(app, httpapi.Options{
		JWTSecret:       cfg.JWTSecret,
		AllowedOrigins:  cfg.CORSAllowedOrigins,
		RateLimitPerMin: cfg.RateLimitPerMin,
		DefaultLocale:   cfg.DefaultLocale,
		Logger:          logger,
	})
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on %s", server.Addr())
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
