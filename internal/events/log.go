package events

import (
	"context"

	"github.com/rs/zerolog"

	"fundingledger/internal/domain"
)

// LogPublisher logs events instead of delivering them. Used when no broker is configured.
type LogPublisher struct {
	logger zerolog.Logger
}

func NewLogPublisher(logger zerolog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, events []domain.LedgerEvent) error {
	for _, e := range events {
		p.logger.Info().
			Int64("seq", e.Seq).
			Str("event_type", string(e.Type)).
			Str("need_id", e.NeedID).
			Str("donation_id", e.DonationID).
			Str("amount", e.Amount.StringFixed(2)).
			Str("need_amount", e.NeedAmount.StringFixed(2)).
			Msg("ledger event")
	}
	return nil
}

func (p *LogPublisher) Close() error { return nil }
