package repo

import (
	"context"

	"fundingledger/internal/domain"
	"fundingledger/internal/infra"
	"fundingledger/internal/sqlinline"
)

// EventRepositoryPG is the ledger_events outbox.
type EventRepositoryPG struct {
	sql infra.SQLExecutor
}

func NewEventRepository(sql infra.SQLExecutor) *EventRepositoryPG {
	return &EventRepositoryPG{sql: sql}
}

// Append writes event and fills in its sequence number.
func (r *EventRepositoryPG) Append(ctx context.Context, e *domain.LedgerEvent) error {
	err := r.sql.QueryRow(ctx, sqlinline.QInsertLedgerEvent,
		e.ID,
		string(e.Type),
		e.NeedID,
		e.DonationID,
		e.Amount,
		e.NeedAmount,
		string(e.NeedStatus),
		e.OccurredAt,
	).Scan(&e.Seq)
	return mapErr(err)
}

// ClaimUnpublished locks up to limit pending events, skipping rows another relay holds.
func (r *EventRepositoryPG) ClaimUnpublished(ctx context.Context, limit int) ([]domain.LedgerEvent, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QClaimLedgerEvents, limit)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []domain.LedgerEvent
	for rows.Next() {
		var (
			e          domain.LedgerEvent
			eventType  string
			needStatus string
		)
		if err := rows.Scan(&e.Seq, &e.ID, &eventType, &e.NeedID, &e.DonationID, &e.Amount, &e.NeedAmount, &needStatus, &e.OccurredAt); err != nil {
			return nil, err
		}
		e.Type = domain.EventType(eventType)
		e.NeedStatus = domain.NeedStatus(needStatus)
		out = append(out, e)
	}
	return out, rows.Err()
}

// MarkPublished stamps published_at on the given events.
func (r *EventRepositoryPG) MarkPublished(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.sql.Exec(ctx, sqlinline.QMarkLedgerEventsPublished, ids)
	return mapErr(err)
}

var _ domain.EventRepository = (*EventRepositoryPG)(nil)
