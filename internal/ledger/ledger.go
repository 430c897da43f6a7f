// Package ledger keeps each need's accumulated amount and status consistent
// with its donations.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"

	"fundingledger/internal/domain"
)

// Stores groups the repositories the ledger writes through.
type Stores struct {
	Needs     domain.NeedRepository
	Donations domain.DonationRepository
	Events    domain.EventRepository
	Tx        domain.Transactor
}

// Options tunes conflict handling.
type Options struct {
	MaxAttempts int
	Backoff     time.Duration
}

// Ledger is the sole writer of a need's currentAmount and status.
type Ledger struct {
	needs     domain.NeedRepository
	donations domain.DonationRepository
	events    domain.EventRepository
	tx        domain.Transactor
	checker   *Checker
	logger    zerolog.Logger

	maxAttempts int
	backoff     time.Duration

	now   func() time.Time
	newID func() string
	txRef func() string
}

func New(stores Stores, opts Options, logger zerolog.Logger) *Ledger {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	return &Ledger{
		needs:       stores.Needs,
		donations:   stores.Donations,
		events:      stores.Events,
		tx:          stores.Tx,
		checker:     NewChecker(stores.Needs),
		logger:      logger,
		maxAttempts: opts.MaxAttempts,
		backoff:     opts.Backoff,
		now:         func() time.Time { return time.Now().UTC() },
		newID:       uuid.NewString,
		txRef:       func() string { return "txn_" + ulid.Make().String() },
	}
}

// CreateDonationInput carries a donor's request. Currency defaults to the need's.
type CreateDonationInput struct {
	DonorID     string
	NeedID      string
	Amount      decimal.Decimal
	Currency    string
	IsAnonymous bool
}

// CreateDonation records a Pending donation and applies its amount to the need
// in one unit of work.
func (l *Ledger) CreateDonation(ctx context.Context, in CreateDonationInput) (donation *domain.Donation, err error) {
	const op = "create_donation"
	timer := prometheus.NewTimer(operationDuration.WithLabelValues(op))
	defer func() {
		timer.ObserveDuration()
		observe(op, err)
	}()

	if strings.TrimSpace(in.DonorID) == "" || strings.TrimSpace(in.NeedID) == "" {
		return nil, fmt.Errorf("%w: donor and need are required", domain.ErrInvalidInput)
	}
	if err := ValidateAmount(in.Amount); err != nil {
		return nil, err
	}
	need, err := l.checker.CheckEligible(ctx, in.NeedID, in.Amount)
	if err != nil {
		return nil, err
	}
	cur, err := donationCurrency(in.Currency, need.Currency)
	if err != nil {
		return nil, err
	}

	now := l.now()
	d := &domain.Donation{
		ID:            l.newID(),
		DonorID:       in.DonorID,
		NeedID:        need.ID,
		Amount:        in.Amount,
		Currency:      cur,
		PaymentStatus: domain.PaymentStatusPending,
		IsAnonymous:   in.IsAnonymous,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err = l.inTx(ctx, op, func(ctx context.Context) error {
		if err := l.donations.Insert(ctx, d); err != nil {
			return fmt.Errorf("insert donation: %w", err)
		}
		bal, err := l.needs.ApplyDelta(ctx, d.NeedID, d.Amount, domain.OpenNeedStatuses)
		if err != nil {
			return needDeltaErr(err)
		}
		if err := l.emit(ctx, domain.EventDonationCreated, d, bal); err != nil {
			return err
		}
		if bal.Status == domain.NeedStatusFulfilled {
			return l.emit(ctx, domain.EventNeedFulfilled, d, bal)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	donatedAmount.Add(d.Amount.InexactFloat64())
	l.log(ctx).Info().
		Str("donation_id", d.ID).
		Str("need_id", d.NeedID).
		Str("amount", d.Amount.StringFixed(2)).
		Msg("donation created")
	return d, nil
}

// ConfirmDonation marks a Pending donation Completed. The amount already counts
// toward the need, so the need is not touched.
func (l *Ledger) ConfirmDonation(ctx context.Context, donationID, transactionID string) (donation *domain.Donation, err error) {
	const op = "confirm_donation"
	timer := prometheus.NewTimer(operationDuration.WithLabelValues(op))
	defer func() {
		timer.ObserveDuration()
		observe(op, err)
	}()

	current, err := l.GetDonation(ctx, donationID)
	if err != nil {
		return nil, err
	}
	if err := settledErr(current.PaymentStatus); err != nil {
		return nil, err
	}
	txID := strings.TrimSpace(transactionID)
	if txID == "" {
		txID = l.txRef()
	}

	var out *domain.Donation
	err = l.inTx(ctx, op, func(ctx context.Context) error {
		d, err := l.donations.UpdatePayment(ctx, donationID, domain.PaymentStatusPending, domain.PaymentStatusCompleted, &txID)
		if err != nil {
			return l.paymentErr(ctx, donationID, err)
		}
		out = d
		bal, err := l.balanceOf(ctx, d.NeedID)
		if err != nil {
			return err
		}
		return l.emit(ctx, domain.EventDonationConfirmed, d, bal)
	})
	if err != nil {
		return nil, err
	}
	l.log(ctx).Info().Str("donation_id", out.ID).Str("transaction_id", txID).Msg("donation confirmed")
	return out, nil
}

// FailDonation records a failed settlement and takes the amount back off the need.
func (l *Ledger) FailDonation(ctx context.Context, donationID string) (donation *domain.Donation, err error) {
	const op = "fail_donation"
	timer := prometheus.NewTimer(operationDuration.WithLabelValues(op))
	defer func() {
		timer.ObserveDuration()
		observe(op, err)
	}()

	var out *domain.Donation
	err = l.inTx(ctx, op, func(ctx context.Context) error {
		d, err := l.donations.UpdatePayment(ctx, donationID, domain.PaymentStatusPending, domain.PaymentStatusFailed, nil)
		if err != nil {
			return l.paymentErr(ctx, donationID, err)
		}
		out = d
		bal, err := l.reverse(ctx, d)
		if err != nil {
			return err
		}
		return l.emit(ctx, domain.EventDonationFailed, d, bal)
	})
	if err != nil {
		return nil, err
	}
	l.log(ctx).Info().Str("donation_id", out.ID).Str("need_id", out.NeedID).Msg("donation failed")
	return out, nil
}

// DeleteDonation removes a donation and reverses its effect on the need. The
// row is deleted first so concurrent deletes cannot reverse twice.
func (l *Ledger) DeleteDonation(ctx context.Context, donationID string) (donation *domain.Donation, err error) {
	const op = "delete_donation"
	timer := prometheus.NewTimer(operationDuration.WithLabelValues(op))
	defer func() {
		timer.ObserveDuration()
		observe(op, err)
	}()

	var out *domain.Donation
	err = l.inTx(ctx, op, func(ctx context.Context) error {
		d, err := l.donations.Delete(ctx, donationID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.ErrDonationNotFound
			}
			return fmt.Errorf("delete donation: %w", err)
		}
		out = d
		var bal *domain.NeedBalance
		if d.PaymentStatus.Counts() {
			if bal, err = l.reverse(ctx, d); err != nil {
				return err
			}
		}
		return l.emit(ctx, domain.EventDonationDeleted, d, bal)
	})
	if err != nil {
		return nil, err
	}
	l.log(ctx).Info().Str("donation_id", out.ID).Str("need_id", out.NeedID).Msg("donation deleted")
	return out, nil
}

// GetDonation loads one donation.
func (l *Ledger) GetDonation(ctx context.Context, donationID string) (*domain.Donation, error) {
	d, err := l.donations.GetByID(ctx, donationID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrDonationNotFound
		}
		return nil, fmt.Errorf("load donation: %w", err)
	}
	return d, nil
}

// DonationPage is one page of a donation listing.
type DonationPage struct {
	Items []domain.Donation
	Total int
	Page  int
	Pages int
}

// ListDonations returns donations matching filter, newest first.
func (l *Ledger) ListDonations(ctx context.Context, filter domain.DonationFilter, page domain.Page) (*DonationPage, error) {
	page = page.Normalize()
	items, total, err := l.donations.Query(ctx, filter, page)
	if err != nil {
		return nil, fmt.Errorf("list donations: %w", err)
	}
	if items == nil {
		items = []domain.Donation{}
	}
	return &DonationPage{Items: items, Total: total, Page: page.Page, Pages: page.Pages(total)}, nil
}

// GetNeed loads one need.
func (l *Ledger) GetNeed(ctx context.Context, needID string) (*domain.Need, error) {
	n, err := l.needs.GetByID(ctx, needID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrNeedNotFound
		}
		return nil, fmt.Errorf("load need: %w", err)
	}
	return n, nil
}

// ListNeedDonations lists the donations made to an existing need.
func (l *Ledger) ListNeedDonations(ctx context.Context, needID string, page domain.Page) (*DonationPage, error) {
	if _, err := l.GetNeed(ctx, needID); err != nil {
		return nil, err
	}
	return l.ListDonations(ctx, domain.DonationFilter{NeedID: needID}, page)
}

// reverse takes d's amount back off its need. A need that no longer exists
// has nothing to reverse.
func (l *Ledger) reverse(ctx context.Context, d *domain.Donation) (*domain.NeedBalance, error) {
	bal, err := l.needs.ApplyDelta(ctx, d.NeedID, d.Amount.Neg(), domain.AllNeedStatuses)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			l.log(ctx).Warn().Str("donation_id", d.ID).Str("need_id", d.NeedID).Msg("need missing, reversal skipped")
			return nil, nil
		}
		return nil, fmt.Errorf("reverse donation: %w", err)
	}
	return bal, nil
}

func (l *Ledger) emit(ctx context.Context, typ domain.EventType, d *domain.Donation, bal *domain.NeedBalance) error {
	e := &domain.LedgerEvent{
		ID:         l.newID(),
		Type:       typ,
		NeedID:     d.NeedID,
		DonationID: d.ID,
		Amount:     d.Amount,
		OccurredAt: l.now(),
	}
	if bal != nil {
		e.NeedAmount = bal.CurrentAmount
		e.NeedStatus = bal.Status
	}
	if err := l.events.Append(ctx, e); err != nil {
		return fmt.Errorf("append %s event: %w", typ, err)
	}
	return nil
}

// balanceOf reads the need's current balance for an event. A need that no
// longer exists yields a nil balance.
func (l *Ledger) balanceOf(ctx context.Context, needID string) (*domain.NeedBalance, error) {
	n, err := l.needs.GetByID(ctx, needID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			l.log(ctx).Warn().Str("need_id", needID).Msg("need missing, event carries no balance")
			return nil, nil
		}
		return nil, fmt.Errorf("load need balance: %w", err)
	}
	return &domain.NeedBalance{NeedID: n.ID, CurrentAmount: n.CurrentAmount, GoalAmount: n.GoalAmount, Status: n.Status}, nil
}

// log returns the request-scoped logger carried by ctx, or the ledger's own.
func (l *Ledger) log(ctx context.Context) *zerolog.Logger {
	if reqLogger := zerolog.Ctx(ctx); reqLogger.GetLevel() != zerolog.Disabled {
		scoped := reqLogger.With().Str("component", "ledger").Logger()
		return &scoped
	}
	return &l.logger
}

// paymentErr explains a failed compare-and-set on the payment status.
func (l *Ledger) paymentErr(ctx context.Context, donationID string, err error) error {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return domain.ErrDonationNotFound
	case errors.Is(err, domain.ErrPreconditionFailed):
		d, loadErr := l.GetDonation(ctx, donationID)
		if loadErr != nil {
			return loadErr
		}
		if settled := settledErr(d.PaymentStatus); settled != nil {
			return settled
		}
		return fmt.Errorf("%w: payment status changed concurrently", domain.ErrConflict)
	}
	return fmt.Errorf("update payment: %w", err)
}

func settledErr(status domain.PaymentStatus) error {
	switch status {
	case domain.PaymentStatusCompleted:
		return domain.ErrAlreadyConfirmed
	case domain.PaymentStatusFailed:
		return domain.ErrDonationFailed
	}
	return nil
}

func needDeltaErr(err error) error {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return domain.ErrNeedNotFound
	case errors.Is(err, domain.ErrPreconditionFailed):
		return domain.ErrNeedClosed
	}
	return fmt.Errorf("apply need delta: %w", err)
}

// donationCurrency resolves the currency of a donation against its need.
func donationCurrency(requested, needCurrency string) (string, error) {
	requested = strings.ToUpper(strings.TrimSpace(requested))
	if requested == "" {
		return needCurrency, nil
	}
	if _, err := currency.ParseISO(requested); err != nil {
		return "", fmt.Errorf("%w: %s", domain.ErrInvalidCurrency, requested)
	}
	if requested != needCurrency {
		return "", fmt.Errorf("%w: need is funded in %s", domain.ErrCurrencyMismatch, needCurrency)
	}
	return requested, nil
}

func errorKind(err error) string {
	kinds := []struct {
		err  error
		kind string
	}{
		{domain.ErrInvalidInput, "invalid_input"},
		{domain.ErrInvalidAmount, "invalid_amount"},
		{domain.ErrInvalidCurrency, "invalid_currency"},
		{domain.ErrCurrencyMismatch, "currency_mismatch"},
		{domain.ErrNeedNotFound, "need_not_found"},
		{domain.ErrNeedNotVerified, "need_not_verified"},
		{domain.ErrNeedClosed, "need_closed"},
		{domain.ErrDonationNotFound, "donation_not_found"},
		{domain.ErrAlreadyConfirmed, "already_confirmed"},
		{domain.ErrDonationFailed, "donation_failed"},
		{domain.ErrConflict, "conflict"},
		{context.Canceled, "canceled"},
		{context.DeadlineExceeded, "timeout"},
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return "error"
}
