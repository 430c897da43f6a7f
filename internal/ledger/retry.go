package ledger

import (
	"context"
	"errors"
	"time"

	"fundingledger/internal/domain"
)

// inTx runs fn as one unit of work, retrying it from scratch while storage
// reports a conflict. The backoff doubles after each attempt.
func (l *Ledger) inTx(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	backoff := l.backoff
	var err error
	for attempt := 1; attempt <= l.maxAttempts; attempt++ {
		err = l.tx.WithinTx(ctx, fn)
		if !errors.Is(err, domain.ErrConflict) {
			return err
		}
		conflictRetries.WithLabelValues(op).Inc()
		l.log(ctx).Warn().Err(err).Str("op", op).Int("attempt", attempt).Msg("ledger conflict")
		if attempt == l.maxAttempts {
			break
		}
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		backoff *= 2
	}
	return err
}
