package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"

	"fundingledger/internal/domain"
)

// NewNeedInput describes a need posted by a recipient.
type NewNeedInput struct {
	RecipientID string
	Title       string
	Description string
	Category    domain.NeedCategory
	Urgency     domain.NeedUrgency
	Location    string
	Currency    string
	GoalAmount  decimal.Decimal
}

// CreateNeed stores a Pending, unverified need with nothing raised.
func (l *Ledger) CreateNeed(ctx context.Context, in NewNeedInput) (*domain.Need, error) {
	if strings.TrimSpace(in.RecipientID) == "" || strings.TrimSpace(in.Title) == "" {
		return nil, fmt.Errorf("%w: recipient and title are required", domain.ErrInvalidInput)
	}
	if err := ValidateAmount(in.GoalAmount); err != nil {
		return nil, err
	}
	cur := strings.ToUpper(strings.TrimSpace(in.Currency))
	if _, err := currency.ParseISO(cur); err != nil {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidCurrency, in.Currency)
	}
	if in.Category == "" {
		in.Category = domain.NeedCategoryOther
	}
	if in.Urgency == "" {
		in.Urgency = domain.NeedUrgencyMedium
	}

	now := l.now()
	n := &domain.Need{
		ID:            l.newID(),
		RecipientID:   in.RecipientID,
		Title:         in.Title,
		Description:   in.Description,
		Category:      in.Category,
		Urgency:       in.Urgency,
		Location:      in.Location,
		Currency:      cur,
		GoalAmount:    in.GoalAmount,
		CurrentAmount: decimal.Zero,
		Status:        domain.NeedStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := l.needs.Insert(ctx, n); err != nil {
		return nil, fmt.Errorf("insert need: %w", err)
	}
	l.log(ctx).Info().Str("need_id", n.ID).Str("goal_amount", n.GoalAmount.StringFixed(2)).Msg("need created")
	return n, nil
}

// VerifyNeed records the verification workflow's approval.
func (l *Ledger) VerifyNeed(ctx context.Context, needID, verifierID string) (*domain.Need, error) {
	if strings.TrimSpace(verifierID) == "" {
		return nil, fmt.Errorf("%w: verifier is required", domain.ErrInvalidInput)
	}
	n, err := l.needs.MarkVerified(ctx, needID, verifierID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrNeedNotFound
		}
		return nil, fmt.Errorf("verify need: %w", err)
	}
	l.log(ctx).Info().Str("need_id", n.ID).Str("verified_by", verifierID).Msg("need verified")
	return n, nil
}

// CancelNeed closes a need to further donations. Its amount is left as is.
func (l *Ledger) CancelNeed(ctx context.Context, needID string) (*domain.Need, error) {
	allowed := []domain.NeedStatus{domain.NeedStatusPending, domain.NeedStatusPartiallyFunded, domain.NeedStatusFulfilled}
	n, err := l.needs.SetStatus(ctx, needID, domain.NeedStatusCancelled, allowed)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			return nil, domain.ErrNeedNotFound
		case errors.Is(err, domain.ErrPreconditionFailed):
			return nil, domain.ErrNeedClosed
		}
		return nil, fmt.Errorf("cancel need: %w", err)
	}
	l.log(ctx).Info().Str("need_id", n.ID).Msg("need cancelled")
	return n, nil
}

// NeedPage is one page of a need listing.
type NeedPage struct {
	Items []domain.Need
	Total int
	Page  int
	Pages int
}

// ListNeeds returns needs matching filter, newest first.
func (l *Ledger) ListNeeds(ctx context.Context, filter domain.NeedFilter, page domain.Page) (*NeedPage, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", domain.ErrInvalidInput, filter.Status)
	}
	page = page.Normalize()
	items, total, err := l.needs.Query(ctx, filter, page)
	if err != nil {
		return nil, fmt.Errorf("list needs: %w", err)
	}
	if items == nil {
		items = []domain.Need{}
	}
	return &NeedPage{Items: items, Total: total, Page: page.Page, Pages: page.Pages(total)}, nil
}
