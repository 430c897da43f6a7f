package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"fundingledger/internal/adapter/memstore"
	"fundingledger/internal/domain"
)

func newTestLedger(t *testing.T) (*Ledger, *memstore.Store) {
	t.Helper()
	store := memstore.New()
	l := New(Stores{
		Needs:     store.Needs(),
		Donations: store.Donations(),
		Events:    store.Events(),
		Tx:        store,
	}, Options{MaxAttempts: 3, Backoff: time.Millisecond}, zerolog.Nop())
	return l, store
}

func seedNeed(t *testing.T, l *Ledger, goal string, verified bool) *domain.Need {
	t.Helper()
	n, err := l.CreateNeed(context.Background(), NewNeedInput{
		RecipientID: "recipient-1",
		Title:       "School books",
		Currency:    "USD",
		GoalAmount:  decimal.RequireFromString(goal),
	})
	if err != nil {
		t.Fatalf("CreateNeed returned error: %v", err)
	}
	if verified {
		if n, err = l.VerifyNeed(context.Background(), n.ID, "admin-1"); err != nil {
			t.Fatalf("VerifyNeed returned error: %v", err)
		}
	}
	return n
}

func donate(t *testing.T, l *Ledger, needID, amount string) *domain.Donation {
	t.Helper()
	d, err := l.CreateDonation(context.Background(), CreateDonationInput{
		DonorID: "donor-1",
		NeedID:  needID,
		Amount:  decimal.RequireFromString(amount),
	})
	if err != nil {
		t.Fatalf("CreateDonation(%s) returned error: %v", amount, err)
	}
	return d
}

func assertNeed(t *testing.T, l *Ledger, needID, amount string, status domain.NeedStatus) {
	t.Helper()
	n, err := l.GetNeed(context.Background(), needID)
	if err != nil {
		t.Fatalf("GetNeed returned error: %v", err)
	}
	if !n.CurrentAmount.Equal(decimal.RequireFromString(amount)) || n.Status != status {
		t.Fatalf("need state mismatch: got %s/%s, want %s/%s", n.CurrentAmount, n.Status, amount, status)
	}
}

// assertBalanced checks that currentAmount equals the sum of active donations.
func assertBalanced(t *testing.T, l *Ledger) {
	t.Helper()
	report, err := l.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("Reconcile returned error: %v", err)
	}
	if len(report.Drifts) != 0 {
		t.Fatalf("ledger drift: %+v", report.Drifts)
	}
}

func TestFundingScenario(t *testing.T) {
	l, _ := newTestLedger(t)
	need := seedNeed(t, l, "1000", true)

	donate(t, l, need.ID, "400")
	assertNeed(t, l, need.ID, "400", domain.NeedStatusPartiallyFunded)

	big := donate(t, l, need.ID, "600")
	assertNeed(t, l, need.ID, "1000", domain.NeedStatusFulfilled)

	_, err := l.CreateDonation(context.Background(), CreateDonationInput{DonorID: "donor-2", NeedID: need.ID, Amount: decimal.NewFromInt(1)})
	if !errors.Is(err, domain.ErrNeedClosed) {
		t.Fatalf("expected ErrNeedClosed, got %v", err)
	}

	if _, err := l.DeleteDonation(context.Background(), big.ID); err != nil {
		t.Fatalf("DeleteDonation returned error: %v", err)
	}
	assertNeed(t, l, need.ID, "400", domain.NeedStatusPartiallyFunded)
	assertBalanced(t, l)
}

func TestUnverifiedNeedRejected(t *testing.T) {
	l, _ := newTestLedger(t)
	need := seedNeed(t, l, "1000", false)

	_, err := l.CreateDonation(context.Background(), CreateDonationInput{DonorID: "donor-1", NeedID: need.ID, Amount: decimal.NewFromInt(50)})
	if !errors.Is(err, domain.ErrNeedNotVerified) {
		t.Fatalf("expected ErrNeedNotVerified, got %v", err)
	}
	assertNeed(t, l, need.ID, "0", domain.NeedStatusPending)
}

func TestCreateDonationValidation(t *testing.T) {
	l, _ := newTestLedger(t)
	need := seedNeed(t, l, "100", true)

	cases := []struct {
		name string
		in   CreateDonationInput
		want error
	}{
		{name: "zero amount", in: CreateDonationInput{DonorID: "d", NeedID: need.ID, Amount: decimal.Zero}, want: domain.ErrInvalidAmount},
		{name: "negative amount", in: CreateDonationInput{DonorID: "d", NeedID: need.ID, Amount: decimal.NewFromInt(-5)}, want: domain.ErrInvalidAmount},
		{name: "sub-cent amount", in: CreateDonationInput{DonorID: "d", NeedID: need.ID, Amount: decimal.RequireFromString("1.005")}, want: domain.ErrInvalidAmount},
		{name: "missing donor", in: CreateDonationInput{NeedID: need.ID, Amount: decimal.NewFromInt(1)}, want: domain.ErrInvalidInput},
		{name: "unknown need", in: CreateDonationInput{DonorID: "d", NeedID: "missing", Amount: decimal.NewFromInt(1)}, want: domain.ErrNeedNotFound},
		{name: "bad currency", in: CreateDonationInput{DonorID: "d", NeedID: need.ID, Amount: decimal.NewFromInt(1), Currency: "XXQ"}, want: domain.ErrInvalidCurrency},
		{name: "other currency", in: CreateDonationInput{DonorID: "d", NeedID: need.ID, Amount: decimal.NewFromInt(1), Currency: "eur"}, want: domain.ErrCurrencyMismatch},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := l.CreateDonation(context.Background(), tc.in); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
	assertNeed(t, l, need.ID, "0", domain.NeedStatusPending)
}

func TestExactGapFulfillsNeed(t *testing.T) {
	l, _ := newTestLedger(t)
	need := seedNeed(t, l, "250.50", true)

	donate(t, l, need.ID, "100.25")
	donate(t, l, need.ID, "150.25")
	assertNeed(t, l, need.ID, "250.50", domain.NeedStatusFulfilled)

	_, err := l.CreateDonation(context.Background(), CreateDonationInput{DonorID: "donor-1", NeedID: need.ID, Amount: decimal.RequireFromString("0.01")})
	if !errors.Is(err, domain.ErrNeedClosed) {
		t.Fatalf("expected ErrNeedClosed, got %v", err)
	}
}

func TestConfirmDonationIsNotReentrant(t *testing.T) {
	l, _ := newTestLedger(t)
	need := seedNeed(t, l, "100", true)
	d := donate(t, l, need.ID, "40")

	first, err := l.ConfirmDonation(context.Background(), d.ID, "pg-ref-1")
	if err != nil {
		t.Fatalf("ConfirmDonation returned error: %v", err)
	}
	if first.PaymentStatus != domain.PaymentStatusCompleted || first.TransactionID == nil || *first.TransactionID != "pg-ref-1" {
		t.Fatalf("unexpected confirmed donation: %+v", first)
	}

	if _, err := l.ConfirmDonation(context.Background(), d.ID, "pg-ref-2"); !errors.Is(err, domain.ErrAlreadyConfirmed) {
		t.Fatalf("expected ErrAlreadyConfirmed, got %v", err)
	}
	again, _ := l.GetDonation(context.Background(), d.ID)
	if *again.TransactionID != "pg-ref-1" {
		t.Fatalf("transaction id changed to %s", *again.TransactionID)
	}
	assertNeed(t, l, need.ID, "40", domain.NeedStatusPartiallyFunded)
}

func TestConfirmDonationSynthesizesReference(t *testing.T) {
	l, _ := newTestLedger(t)
	need := seedNeed(t, l, "100", true)
	d := donate(t, l, need.ID, "10")

	confirmed, err := l.ConfirmDonation(context.Background(), d.ID, "  ")
	if err != nil {
		t.Fatalf("ConfirmDonation returned error: %v", err)
	}
	if confirmed.TransactionID == nil || len(*confirmed.TransactionID) != len("txn_")+26 {
		t.Fatalf("expected synthetic txn_<ULID> reference, got %v", confirmed.TransactionID)
	}
	if _, err := l.ConfirmDonation(context.Background(), "missing", ""); !errors.Is(err, domain.ErrDonationNotFound) {
		t.Fatalf("expected ErrDonationNotFound, got %v", err)
	}
}

func TestDeleteThenRecreateRestoresState(t *testing.T) {
	l, _ := newTestLedger(t)
	need := seedNeed(t, l, "500", true)
	donate(t, l, need.ID, "200")
	d := donate(t, l, need.ID, "300")
	assertNeed(t, l, need.ID, "500", domain.NeedStatusFulfilled)

	if _, err := l.DeleteDonation(context.Background(), d.ID); err != nil {
		t.Fatalf("DeleteDonation returned error: %v", err)
	}
	assertNeed(t, l, need.ID, "200", domain.NeedStatusPartiallyFunded)
	donate(t, l, need.ID, "300")
	assertNeed(t, l, need.ID, "500", domain.NeedStatusFulfilled)

	if _, err := l.DeleteDonation(context.Background(), d.ID); !errors.Is(err, domain.ErrDonationNotFound) {
		t.Fatalf("expected ErrDonationNotFound on second delete, got %v", err)
	}
	assertBalanced(t, l)
}

func TestFailDonationReversesOnce(t *testing.T) {
	l, _ := newTestLedger(t)
	need := seedNeed(t, l, "100", true)
	keep := donate(t, l, need.ID, "30")
	failing := donate(t, l, need.ID, "70")
	assertNeed(t, l, need.ID, "100", domain.NeedStatusFulfilled)

	failed, err := l.FailDonation(context.Background(), failing.ID)
	if err != nil {
		t.Fatalf("FailDonation returned error: %v", err)
	}
	if failed.PaymentStatus != domain.PaymentStatusFailed {
		t.Fatalf("expected Failed, got %s", failed.PaymentStatus)
	}
	assertNeed(t, l, need.ID, "30", domain.NeedStatusPartiallyFunded)

	if _, err := l.FailDonation(context.Background(), failing.ID); !errors.Is(err, domain.ErrDonationFailed) {
		t.Fatalf("expected ErrDonationFailed, got %v", err)
	}
	if _, err := l.ConfirmDonation(context.Background(), failing.ID, ""); !errors.Is(err, domain.ErrDonationFailed) {
		t.Fatalf("expected ErrDonationFailed on confirm, got %v", err)
	}
	if _, err := l.DeleteDonation(context.Background(), failing.ID); err != nil {
		t.Fatalf("DeleteDonation returned error: %v", err)
	}
	assertNeed(t, l, need.ID, "30", domain.NeedStatusPartiallyFunded)

	if _, err := l.ConfirmDonation(context.Background(), keep.ID, ""); err != nil {
		t.Fatalf("ConfirmDonation returned error: %v", err)
	}
	if _, err := l.FailDonation(context.Background(), keep.ID); !errors.Is(err, domain.ErrAlreadyConfirmed) {
		t.Fatalf("expected ErrAlreadyConfirmed, got %v", err)
	}
	assertBalanced(t, l)
}

func TestCancelledNeedStaysCancelledOnReversal(t *testing.T) {
	l, _ := newTestLedger(t)
	need := seedNeed(t, l, "100", true)
	d := donate(t, l, need.ID, "40")

	if _, err := l.CancelNeed(context.Background(), need.ID); err != nil {
		t.Fatalf("CancelNeed returned error: %v", err)
	}
	if _, err := l.CancelNeed(context.Background(), need.ID); !errors.Is(err, domain.ErrNeedClosed) {
		t.Fatalf("expected ErrNeedClosed on second cancel, got %v", err)
	}
	if _, err := l.DeleteDonation(context.Background(), d.ID); err != nil {
		t.Fatalf("DeleteDonation returned error: %v", err)
	}
	assertNeed(t, l, need.ID, "0", domain.NeedStatusCancelled)
}

func TestConcurrentDonationsLoseNothing(t *testing.T) {
	const n = 40
	l, _ := newTestLedger(t)
	need := seedNeed(t, l, fmt.Sprint(n*25), true)

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := l.CreateDonation(context.Background(), CreateDonationInput{
				DonorID: fmt.Sprintf("donor-%d", i),
				NeedID:  need.ID,
				Amount:  decimal.NewFromInt(25),
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent CreateDonation failed: %v", err)
		}
	}
	assertNeed(t, l, need.ID, fmt.Sprint(n*25), domain.NeedStatusFulfilled)
	assertBalanced(t, l)
}

func TestCancelledContextLeavesNoEffect(t *testing.T) {
	l, store := newTestLedger(t)
	need := seedNeed(t, l, "100", true)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := l.CreateDonation(ctx, CreateDonationInput{DonorID: "donor-1", NeedID: need.ID, Amount: decimal.NewFromInt(10)}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	assertNeed(t, l, need.ID, "0", domain.NeedStatusPending)
	_, total, _ := store.Donations().Query(context.Background(), domain.DonationFilter{}, domain.Page{})
	if total != 0 {
		t.Fatalf("expected no donations, got %d", total)
	}
}

func TestEventsWrittenWithMutation(t *testing.T) {
	l, store := newTestLedger(t)
	need := seedNeed(t, l, "50", true)
	d := donate(t, l, need.ID, "50")
	if _, err := l.ConfirmDonation(context.Background(), d.ID, ""); err != nil {
		t.Fatalf("ConfirmDonation returned error: %v", err)
	}

	events, err := store.Events().ClaimUnpublished(context.Background(), 10)
	if err != nil {
		t.Fatalf("ClaimUnpublished returned error: %v", err)
	}
	want := []domain.EventType{domain.EventDonationCreated, domain.EventNeedFulfilled, domain.EventDonationConfirmed}
	if len(events) != len(want) {
		t.Fatalf("expected %d events, got %d", len(want), len(events))
	}
	for i, typ := range want {
		if events[i].Type != typ || events[i].NeedID != need.ID {
			t.Fatalf("event %d: got %s for %s", i, events[i].Type, events[i].NeedID)
		}
	}
	if !events[1].NeedAmount.Equal(decimal.NewFromInt(50)) || events[1].NeedStatus != domain.NeedStatusFulfilled {
		t.Fatalf("need.fulfilled carries wrong balance: %+v", events[1])
	}
}

type conflictingTx struct {
	inner    domain.Transactor
	failures int
	calls    int
}

func (c *conflictingTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	c.calls++
	if c.calls <= c.failures {
		return fmt.Errorf("serialize: %w", domain.ErrConflict)
	}
	return c.inner.WithinTx(ctx, fn)
}

func TestConflictRetry(t *testing.T) {
	cases := []struct {
		name     string
		failures int
		wantErr  error
		calls    int
	}{
		{name: "recovers within budget", failures: 2, wantErr: nil, calls: 3},
		{name: "surfaces conflict after budget", failures: 5, wantErr: domain.ErrConflict, calls: 3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			l, store := newTestLedger(t)
			need := seedNeed(t, l, "100", true)
			tx := &conflictingTx{inner: store, failures: tc.failures}
			l.tx = tx

			_, err := l.CreateDonation(context.Background(), CreateDonationInput{DonorID: "donor-1", NeedID: need.ID, Amount: decimal.NewFromInt(10)})
			if tc.wantErr == nil && err != nil {
				t.Fatalf("CreateDonation returned error: %v", err)
			}
			if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
			if tx.calls != tc.calls {
				t.Fatalf("expected %d attempts, got %d", tc.calls, tx.calls)
			}
		})
	}
}

func TestReconcileReportsDrift(t *testing.T) {
	l, store := newTestLedger(t)
	need := seedNeed(t, l, "100", true)
	donate(t, l, need.ID, "20")

	// bypass the ledger to simulate an out-of-band write
	if _, err := store.Needs().ApplyDelta(context.Background(), need.ID, decimal.NewFromInt(5), domain.AllNeedStatuses); err != nil {
		t.Fatalf("ApplyDelta returned error: %v", err)
	}

	report, err := l.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("Reconcile returned error: %v", err)
	}
	if report.Checked != 1 || len(report.Drifts) != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if !report.Drifts[0].Difference().Equal(decimal.NewFromInt(5)) {
		t.Fatalf("expected drift of 5, got %s", report.Drifts[0].Difference())
	}
}

func TestListDonationsPages(t *testing.T) {
	l, _ := newTestLedger(t)
	need := seedNeed(t, l, "1000", true)
	for i := 0; i < 5; i++ {
		donate(t, l, need.ID, "1")
	}

	page, err := l.ListNeedDonations(context.Background(), need.ID, domain.Page{Page: 2, Limit: 2})
	if err != nil {
		t.Fatalf("ListNeedDonations returned error: %v", err)
	}
	if page.Total != 5 || page.Pages != 3 || page.Page != 2 || len(page.Items) != 2 {
		t.Fatalf("unexpected page: %+v", page)
	}
	if _, err := l.ListNeedDonations(context.Background(), "missing", domain.Page{}); !errors.Is(err, domain.ErrNeedNotFound) {
		t.Fatalf("expected ErrNeedNotFound, got %v", err)
	}
}

// staleNeeds serves need reads through getByID while writes reach the store.
type staleNeeds struct {
	domain.NeedRepository
	getByID func(ctx context.Context, id string) (*domain.Need, error)
}

func (s *staleNeeds) GetByID(ctx context.Context, id string) (*domain.Need, error) {
	return s.getByID(ctx, id)
}

func newLedgerWithNeeds(store *memstore.Store, needs domain.NeedRepository) *Ledger {
	return New(Stores{
		Needs:     needs,
		Donations: store.Donations(),
		Events:    store.Events(),
		Tx:        store,
	}, Options{MaxAttempts: 3, Backoff: time.Millisecond}, zerolog.Nop())
}

func TestNeedClosedAfterEligibilityCheckRollsBack(t *testing.T) {
	l, store := newTestLedger(t)
	need := seedNeed(t, l, "100", true)
	donate(t, l, need.ID, "30")
	if _, err := l.CancelNeed(context.Background(), need.ID); err != nil {
		t.Fatalf("CancelNeed returned error: %v", err)
	}

	// the checker sees the need as it was before the cancel landed
	snapshot := *need
	snapshot.Status = domain.NeedStatusPartiallyFunded
	stale := newLedgerWithNeeds(store, &staleNeeds{
		NeedRepository: store.Needs(),
		getByID: func(context.Context, string) (*domain.Need, error) {
			cp := snapshot
			return &cp, nil
		},
	})

	_, err := stale.CreateDonation(context.Background(), CreateDonationInput{DonorID: "donor-2", NeedID: need.ID, Amount: decimal.NewFromInt(10)})
	if !errors.Is(err, domain.ErrNeedClosed) {
		t.Fatalf("expected ErrNeedClosed, got %v", err)
	}

	_, total, err := store.Donations().Query(context.Background(), domain.DonationFilter{NeedID: need.ID}, domain.Page{})
	if err != nil {
		t.Fatalf("Query returned error: %v", err)
	}
	if total != 1 {
		t.Fatalf("rejected donation was not rolled back: %d donations", total)
	}
	assertNeed(t, l, need.ID, "30", domain.NeedStatusCancelled)
	assertBalanced(t, l)
}

func TestConcurrentOvershootClosesNeed(t *testing.T) {
	const donors = 30
	l, _ := newTestLedger(t)
	need := seedNeed(t, l, "100", true)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
		failures []error
	)
	for i := 0; i < donors; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := l.CreateDonation(context.Background(), CreateDonationInput{
				DonorID: fmt.Sprintf("donor-%d", i),
				NeedID:  need.ID,
				Amount:  decimal.NewFromInt(15),
			})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures = append(failures, err)
				return
			}
			accepted++
		}(i)
	}
	wg.Wait()

	for _, err := range failures {
		if !errors.Is(err, domain.ErrNeedClosed) {
			t.Fatalf("unexpected failure: %v", err)
		}
	}
	// 6 x 15 leaves the need open; the 7th crosses the goal and closes it
	if accepted != 7 || len(failures) != donors-7 {
		t.Fatalf("accepted %d, rejected %d", accepted, len(failures))
	}
	assertNeed(t, l, need.ID, "105", domain.NeedStatusFulfilled)
	assertBalanced(t, l)
}

func TestConfirmSurfacesNeedLoadFailure(t *testing.T) {
	l, store := newTestLedger(t)
	need := seedNeed(t, l, "100", true)
	d := donate(t, l, need.ID, "10")

	storageDown := errors.New("connection reset")
	broken := newLedgerWithNeeds(store, &staleNeeds{
		NeedRepository: store.Needs(),
		getByID: func(context.Context, string) (*domain.Need, error) {
			return nil, storageDown
		},
	})

	if _, err := broken.ConfirmDonation(context.Background(), d.ID, "gw-1"); !errors.Is(err, storageDown) {
		t.Fatalf("expected storage error, got %v", err)
	}
	got, err := l.GetDonation(context.Background(), d.ID)
	if err != nil {
		t.Fatalf("GetDonation returned error: %v", err)
	}
	if got.PaymentStatus != domain.PaymentStatusPending || got.TransactionID != nil {
		t.Fatalf("confirmation leaked past a failed event: %+v", got)
	}
	events, _ := store.Events().ClaimUnpublished(context.Background(), 10)
	for _, e := range events {
		if e.Type == domain.EventDonationConfirmed {
			t.Fatalf("confirmed event written without a balance")
		}
	}
}

func TestListNeedsFilters(t *testing.T) {
	l, _ := newTestLedger(t)
	open := seedNeed(t, l, "100", true)
	closed := seedNeed(t, l, "50", true)
	if _, err := l.CancelNeed(context.Background(), closed.ID); err != nil {
		t.Fatalf("CancelNeed returned error: %v", err)
	}

	page, err := l.ListNeeds(context.Background(), domain.NeedFilter{Status: domain.NeedStatusPending}, domain.Page{})
	if err != nil {
		t.Fatalf("ListNeeds returned error: %v", err)
	}
	if page.Total != 1 || page.Items[0].ID != open.ID || page.Pages != 1 {
		t.Fatalf("unexpected page: %+v", page)
	}

	page, err = l.ListNeeds(context.Background(), domain.NeedFilter{RecipientID: "someone-else"}, domain.Page{})
	if err != nil || page.Total != 0 || page.Items == nil {
		t.Fatalf("expected empty page, got %+v, %v", page, err)
	}

	if _, err := l.ListNeeds(context.Background(), domain.NeedFilter{Status: "Open"}, domain.Page{}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}
