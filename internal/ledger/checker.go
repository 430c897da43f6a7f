package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"fundingledger/internal/domain"
)

// Checker decides whether a donation may be applied to a need.
type Checker struct {
	needs domain.NeedRepository
}

func NewChecker(needs domain.NeedRepository) *Checker {
	return &Checker{needs: needs}
}

// CheckEligible returns the need snapshot when a donation of amount may be
// applied to it. The atomic delta re-checks the status at apply time.
func (c *Checker) CheckEligible(ctx context.Context, needID string, amount decimal.Decimal) (*domain.Need, error) {
	need, err := c.needs.GetByID(ctx, needID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrNeedNotFound
		}
		return nil, fmt.Errorf("load need: %w", err)
	}
	if !need.IsVerified {
		return nil, domain.ErrNeedNotVerified
	}
	if !need.Status.Open() {
		return nil, domain.ErrNeedClosed
	}
	if err := ValidateAmount(amount); err != nil {
		return nil, err
	}
	return need, nil
}

// ValidateAmount accepts strictly positive amounts with at most two decimals.
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return domain.ErrInvalidAmount
	}
	if !amount.Equal(amount.Truncate(2)) {
		return fmt.Errorf("%w: at most 2 decimal places", domain.ErrInvalidAmount)
	}
	return nil
}
