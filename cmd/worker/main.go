package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/joho/godotenv"

	"fundingledger/internal/bootstrap"
	"fundingledger/internal/events"
	"fundingledger/internal/infra"
	"fundingledger/internal/ledger"
)

const reconcileTimeout = 5 * time.Minute

func main() {
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
		logger.Fatal().Err(err).Msg("worker: failed to open store")
	}
	defer backend.Close()

	var publisher events.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		publisher = events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, infra.Component(logger, "kafka"))
		logger.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.KafkaTopic).Msg("worker: publishing to kafka")
	} else {
		publisher = events.NewLogPublisher(infra.Component(logger, "events"))
		logger.Warn().Msg("worker: KAFKA_BROKERS not set, events are logged only")
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Error().Err(err).Msg("worker: publisher close failed")
		}
	}()

	scheduler, err := startReconciler(ctx, backend.NewLedger(cfg, logger), cfg.ReconcileInterval, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to schedule reconciliation")
	}
	defer func() {
		if err := scheduler.Shutdown(); err != nil {
			logger.Error().Err(err).Msg("worker: scheduler shutdown failed")
		}
	}()

	relay := events.NewRelay(backend.Stores.Events, backend.Stores.Tx, publisher, cfg.OutboxBatchSize, infra.Component(logger, "relay"))
	if err := relay.Run(ctx, cfg.OutboxPollInterval); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("worker: stopped with error")
	}
	logger.Info().Msg("worker: stopped")
}

func startReconciler(ctx context.Context, l *ledger.Ledger, every time.Duration, logger infra.Logger) (gocron.Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	_, err = s.NewJob(
		gocron.DurationJob(every),
		gocron.NewTask(func() {
			runCtx, cancel := context.WithTimeout(ctx, reconcileTimeout)
			defer cancel()
			if _, err := l.Reconcile(runCtx); err != nil {
				logger.Error().Err(err).Msg("worker: reconcile failed")
			}
		}),
		gocron.WithName("ledger-reconcile"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		_ = s.Shutdown()
		return nil, err
	}
	s.Start()
	logger.Info().Dur("every", every).Msg("worker: reconciliation scheduled")
	return s, nil
}
