package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventType names ledger events written to the outbox.
type EventType string

const (
	EventDonationCreated   EventType = "donation.created"
	EventDonationConfirmed EventType = "donation.confirmed"
	EventDonationFailed    EventType = "donation.failed"
	EventDonationDeleted   EventType = "donation.deleted"
	EventNeedFulfilled     EventType = "need.fulfilled"
)

// LedgerEvent is appended in the same unit of work as the ledger mutation it describes.
type LedgerEvent struct {
	ID          string
	Seq         int64
	Type        EventType
	NeedID      string
	DonationID  string
	Amount      decimal.Decimal
	NeedAmount  decimal.Decimal
	NeedStatus  NeedStatus
	OccurredAt  time.Time
	PublishedAt *time.Time
}
