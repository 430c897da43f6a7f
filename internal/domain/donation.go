package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus is the settlement state of a donation. Completed and Failed are terminal.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "Pending"
	PaymentStatusCompleted PaymentStatus = "Completed"
	PaymentStatusFailed    PaymentStatus = "Failed"
)

// Counts reports whether a donation in this status contributes to its need's currentAmount.
func (s PaymentStatus) Counts() bool {
	return s != PaymentStatusFailed
}

// Donation represents a supporter contribution towards one need.
type Donation struct {
	ID            string
	DonorID       string
	NeedID        string
	Amount        decimal.Decimal
	Currency      string
	PaymentStatus PaymentStatus
	TransactionID *string
	IsAnonymous   bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// DonationFilter narrows donation queries. Empty fields are ignored.
type DonationFilter struct {
	DonorID string
	NeedID  string
}

// Page is a 1-based page request.
type Page struct {
	Page  int
	Limit int
}

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// Normalize clamps the page into the supported range.
func (p Page) Normalize() Page {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit <= 0 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	return p
}

// Offset returns the row offset for the page.
func (p Page) Offset() int {
	p = p.Normalize()
	return (p.Page - 1) * p.Limit
}

// Pages returns the number of pages needed for total rows.
func (p Page) Pages(total int) int {
	p = p.Normalize()
	if total <= 0 {
		return 0
	}
	return (total + p.Limit - 1) / p.Limit
}
