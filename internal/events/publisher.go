// Package events relays ledger events from the outbox to subscribers.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"fundingledger/internal/domain"
)

// Publisher delivers a batch of ledger events. Implementations must preserve
// the order of events that share a need.
type Publisher interface {
	Publish(ctx context.Context, events []domain.LedgerEvent) error
	Close() error
}

// Message is the wire shape of a ledger event.
type Message struct {
	ID         string          `json:"id"`
	Seq        int64           `json:"seq"`
	Type       string          `json:"type"`
	NeedID     string          `json:"need_id"`
	DonationID string          `json:"donation_id,omitempty"`
	Amount     decimal.Decimal `json:"amount"`
	NeedAmount decimal.Decimal `json:"need_amount"`
	NeedStatus string          `json:"need_status,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}

func toMessage(e domain.LedgerEvent) Message {
	return Message{
		ID:         e.ID,
		Seq:        e.Seq,
		Type:       string(e.Type),
		NeedID:     e.NeedID,
		DonationID: e.DonationID,
		Amount:     e.Amount,
		NeedAmount: e.NeedAmount,
		NeedStatus: string(e.NeedStatus),
		OccurredAt: e.OccurredAt,
	}
}

// Encode renders an event as JSON.
func Encode(e domain.LedgerEvent) ([]byte, error) {
	return json.Marshal(toMessage(e))
}
