package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"fundingledger/internal/domain"
)

var (
	relayedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_events_relayed_total",
			Help: "Ledger events handed to the publisher",
		},
		[]string{"type"},
	)

	relayErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ledger_events_relay_errors_total",
			Help: "Relay batches that failed and will be retried",
		},
	)
)

// Relay moves outbox events to a Publisher. Delivery is at-least-once: a batch
// is marked published only after the publisher accepted it.
type Relay struct {
	events    domain.EventRepository
	tx        domain.Transactor
	publisher Publisher
	batchSize int
	logger    zerolog.Logger
}

func NewRelay(events domain.EventRepository, tx domain.Transactor, publisher Publisher, batchSize int, logger zerolog.Logger) *Relay {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Relay{events: events, tx: tx, publisher: publisher, batchSize: batchSize, logger: logger}
}

// RelayOnce publishes one batch and reports how many events it moved.
func (r *Relay) RelayOnce(ctx context.Context) (int, error) {
	var moved int
	err := r.tx.WithinTx(ctx, func(ctx context.Context) error {
		batch, err := r.events.ClaimUnpublished(ctx, r.batchSize)
		if err != nil {
			return fmt.Errorf("claim events: %w", err)
		}
		if len(batch) == 0 {
			return nil
		}
		if err := r.publisher.Publish(ctx, batch); err != nil {
			return fmt.Errorf("publish events: %w", err)
		}
		ids := make([]string, len(batch))
		for i, e := range batch {
			ids[i] = e.ID
			relayedTotal.WithLabelValues(string(e.Type)).Inc()
		}
		if err := r.events.MarkPublished(ctx, ids); err != nil {
			return fmt.Errorf("mark published: %w", err)
		}
		moved = len(batch)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return moved, nil
}

// Run polls the outbox until ctx is done. A full batch is followed immediately
// by the next one.
func (r *Relay) Run(ctx context.Context, interval time.Duration) error {
	r.logger.Info().Dur("interval", interval).Msg("relay: started")
	for {
		n, err := r.RelayOnce(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			relayErrors.Inc()
			r.logger.Error().Err(err).Msg("relay: batch failed")
		}
		if n > 0 {
			r.logger.Debug().Int("count", n).Msg("relay: batch published")
		}
		if err == nil && n == r.batchSize {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}
