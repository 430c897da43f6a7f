package ledger

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"fundingledger/internal/domain"
)

// Drift is a need whose currentAmount disagrees with its active donations.
type Drift struct {
	NeedID        string
	CurrentAmount decimal.Decimal
	DonationSum   decimal.Decimal
}

// Difference is currentAmount minus the donation sum.
func (d Drift) Difference() decimal.Decimal {
	return d.CurrentAmount.Sub(d.DonationSum)
}

// ReconcileReport summarises one reconciliation pass.
type ReconcileReport struct {
	Checked int
	Drifts  []Drift
}

// Reconcile compares every need's currentAmount with the sum of its non-failed
// donations. It only reports; nothing is written.
func (l *Ledger) Reconcile(ctx context.Context) (*ReconcileReport, error) {
	report := &ReconcileReport{}
	page := domain.Page{Page: 1, Limit: domain.MaxPageLimit}
	for {
		needs, total, err := l.needs.Query(ctx, domain.NeedFilter{}, page)
		if err != nil {
			return nil, fmt.Errorf("list needs: %w", err)
		}
		for _, n := range needs {
			sum, err := l.donations.SumActive(ctx, n.ID)
			if err != nil {
				return nil, fmt.Errorf("sum donations of %s: %w", n.ID, err)
			}
			report.Checked++
			if !sum.Equal(n.CurrentAmount) {
				report.Drifts = append(report.Drifts, Drift{NeedID: n.ID, CurrentAmount: n.CurrentAmount, DonationSum: sum})
				l.log(ctx).Warn().
					Str("need_id", n.ID).
					Str("current_amount", n.CurrentAmount.String()).
					Str("donation_sum", sum.String()).
					Msg("ledger drift")
			}
		}
		if page.Page >= page.Pages(total) || len(needs) == 0 {
			break
		}
		page.Page++
	}
	driftedNeeds.Set(float64(len(report.Drifts)))
	l.log(ctx).Info().Int("checked", report.Checked).Int("drifted", len(report.Drifts)).Msg("reconcile finished")
	return report, nil
}
