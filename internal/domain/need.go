package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// NeedStatus enumerates the funding lifecycle of a need.
type NeedStatus string

const (
	NeedStatusPending         NeedStatus = "Pending"
	NeedStatusPartiallyFunded NeedStatus = "PartiallyFunded"
	NeedStatusFulfilled       NeedStatus = "Fulfilled"
	NeedStatusCancelled       NeedStatus = "Cancelled"
)

// OpenNeedStatuses are the statuses in which a need still accepts donations.
var OpenNeedStatuses = []NeedStatus{NeedStatusPending, NeedStatusPartiallyFunded}

// AllNeedStatuses is used where a delta must apply regardless of lifecycle, e.g. reversals.
var AllNeedStatuses = []NeedStatus{
	NeedStatusPending,
	NeedStatusPartiallyFunded,
	NeedStatusFulfilled,
	NeedStatusCancelled,
}

// Valid reports whether s is a known status.
func (s NeedStatus) Valid() bool {
	switch s {
	case NeedStatusPending, NeedStatusPartiallyFunded, NeedStatusFulfilled, NeedStatusCancelled:
		return true
	}
	return false
}

// ParseNeedStatus accepts any casing of a known status.
func ParseNeedStatus(v string) (NeedStatus, bool) {
	for _, st := range AllNeedStatuses {
		if strings.EqualFold(strings.TrimSpace(v), string(st)) {
			return st, true
		}
	}
	return "", false
}

// Open reports whether a need in this status accepts donations.
func (s NeedStatus) Open() bool {
	return s == NeedStatusPending || s == NeedStatusPartiallyFunded
}

// NeedCategory mirrors the categories recipients pick when posting a need.
type NeedCategory string

const (
	NeedCategoryFood      NeedCategory = "Food"
	NeedCategoryEducation NeedCategory = "Education"
	NeedCategoryMedical   NeedCategory = "Medical"
	NeedCategoryOther     NeedCategory = "Other"
)

// NeedUrgency is display metadata only.
type NeedUrgency string

const (
	NeedUrgencyLow      NeedUrgency = "Low"
	NeedUrgencyMedium   NeedUrgency = "Medium"
	NeedUrgencyHigh     NeedUrgency = "High"
	NeedUrgencyCritical NeedUrgency = "Critical"
)

// ParseNeedCategory accepts any casing of a known category.
func ParseNeedCategory(v string) (NeedCategory, bool) {
	for _, c := range []NeedCategory{NeedCategoryFood, NeedCategoryEducation, NeedCategoryMedical, NeedCategoryOther} {
		if strings.EqualFold(strings.TrimSpace(v), string(c)) {
			return c, true
		}
	}
	return "", false
}

// ParseNeedUrgency accepts any casing of a known urgency.
func ParseNeedUrgency(v string) (NeedUrgency, bool) {
	for _, u := range []NeedUrgency{NeedUrgencyLow, NeedUrgencyMedium, NeedUrgencyHigh, NeedUrgencyCritical} {
		if strings.EqualFold(strings.TrimSpace(v), string(u)) {
			return u, true
		}
	}
	return "", false
}

// Need is a funding target posted by a recipient.
type Need struct {
	ID            string
	RecipientID   string
	Title         string
	Description   string
	Category      NeedCategory
	Urgency       NeedUrgency
	Location      string
	Currency      string
	GoalAmount    decimal.Decimal
	CurrentAmount decimal.Decimal
	Status        NeedStatus
	IsVerified    bool
	VerifiedBy    *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NeedBalance is the post-image of an atomic delta.
type NeedBalance struct {
	NeedID        string
	CurrentAmount decimal.Decimal
	GoalAmount    decimal.Decimal
	Status        NeedStatus
}

// Remaining returns how much is still missing to reach the goal, never negative.
func (n *Need) Remaining() decimal.Decimal {
	gap := n.GoalAmount.Sub(n.CurrentAmount)
	if gap.IsNegative() {
		return decimal.Zero
	}
	return gap
}

// StatusAfter derives the status a need should carry once its accumulated amount
// becomes amount. Cancelled is sticky: deltas never reopen a cancelled need.
func StatusAfter(current NeedStatus, amount, goal decimal.Decimal) NeedStatus {
	if current == NeedStatusCancelled {
		return current
	}
	switch {
	case amount.GreaterThanOrEqual(goal):
		return NeedStatusFulfilled
	case amount.IsPositive():
		return NeedStatusPartiallyFunded
	default:
		return NeedStatusPending
	}
}

// NeedFilter narrows need queries. Zero values are ignored.
type NeedFilter struct {
	RecipientID string
	Status      NeedStatus
	Category    NeedCategory
}
