package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// NeedRepository persists funding targets. ApplyDelta is the only way the
// accumulated amount changes and must be a single indivisible step.
type NeedRepository interface {
	GetByID(ctx context.Context, id string) (*Need, error)
	Insert(ctx context.Context, need *Need) error
	Delete(ctx context.Context, id string) error
	Query(ctx context.Context, filter NeedFilter, page Page) ([]Need, int, error)
	// ApplyDelta adds delta to currentAmount (floored at zero), recomputes the
	// status and returns the post-image. It fails ErrNotFound for an unknown id
	// and ErrPreconditionFailed when the status is not in allowed.
	ApplyDelta(ctx context.Context, id string, delta decimal.Decimal, allowed []NeedStatus) (*NeedBalance, error)
	SetStatus(ctx context.Context, id string, status NeedStatus, allowed []NeedStatus) (*Need, error)
	MarkVerified(ctx context.Context, id, verifierID string) (*Need, error)
}

// DonationRepository handles donation persistence.
type DonationRepository interface {
	GetByID(ctx context.Context, id string) (*Donation, error)
	Insert(ctx context.Context, donation *Donation) error
	// Delete removes the row and returns it as it was at deletion time.
	Delete(ctx context.Context, id string) (*Donation, error)
	Query(ctx context.Context, filter DonationFilter, page Page) ([]Donation, int, error)
	// UpdatePayment moves a donation from one payment status to another. It
	// fails ErrPreconditionFailed when the stored status is not from.
	UpdatePayment(ctx context.Context, id string, from, to PaymentStatus, transactionID *string) (*Donation, error)
	// SumActive totals the amounts of a need's donations that are not Failed.
	SumActive(ctx context.Context, needID string) (decimal.Decimal, error)
}

// EventRepository is the transactional outbox.
type EventRepository interface {
	Append(ctx context.Context, event *LedgerEvent) error
	// ClaimUnpublished returns the oldest unpublished events. Inside a
	// transaction the rows stay claimed until it ends.
	ClaimUnpublished(ctx context.Context, limit int) ([]LedgerEvent, error)
	MarkPublished(ctx context.Context, ids []string) error
}

// Transactor runs fn as one unit of work: every repository call made with the
// ctx passed to fn lands together or not at all.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}
