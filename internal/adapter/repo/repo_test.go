package repo

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"fundingledger/internal/domain"
	"fundingledger/internal/sqlinline"
)

const testNeedID = "6f1c2b8e-2f44-4a9b-9a55-0d6c1d7f0a11"

type simpleRow struct {
	scan func(dest ...any) error
}

func (r simpleRow) Scan(dest ...any) error {
	if r.scan == nil {
		return pgx.ErrNoRows
	}
	return r.scan(dest...)
}

type call struct {
	query string
	args  []any
}

// scriptedSQL answers QueryRow by query constant and records every call.
type scriptedSQL struct {
	rows  map[string]simpleRow
	exec  map[string]error
	calls []call
}

func (s *scriptedSQL) Exec(_ context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	s.calls = append(s.calls, call{query: query, args: args})
	if err := s.exec[query]; err != nil {
		return pgconn.CommandTag{}, err
	}
	return pgconn.NewCommandTag("UPDATE 1"), nil
}

func (s *scriptedSQL) QueryRow(_ context.Context, query string, args ...any) pgx.Row {
	s.calls = append(s.calls, call{query: query, args: args})
	return s.rows[query]
}

func (s *scriptedSQL) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, fmt.Errorf("query not scripted")
}

func balanceRow(amount, goal, status string) simpleRow {
	return simpleRow{scan: func(dest ...any) error {
		if len(dest) != 4 {
			return fmt.Errorf("unexpected scan args: %d", len(dest))
		}
		*dest[0].(*string) = testNeedID
		*dest[1].(*decimal.Decimal) = decimal.RequireFromString(amount)
		*dest[2].(*decimal.Decimal) = decimal.RequireFromString(goal)
		*dest[3].(*string) = status
		return nil
	}}
}

func statusRow(status string) simpleRow {
	return simpleRow{scan: func(dest ...any) error {
		*dest[0].(*string) = status
		return nil
	}}
}

func TestApplyDeltaReturnsPostImage(t *testing.T) {
	sql := &scriptedSQL{rows: map[string]simpleRow{
		sqlinline.QApplyNeedDelta: balanceRow("500", "500", "Fulfilled"),
	}}
	repo := NewNeedRepository(sql)

	bal, err := repo.ApplyDelta(context.Background(), testNeedID, decimal.NewFromInt(200), domain.OpenNeedStatuses)
	if err != nil {
		t.Fatalf("ApplyDelta returned error: %v", err)
	}
	if bal.Status != domain.NeedStatusFulfilled || !bal.CurrentAmount.Equal(decimal.NewFromInt(500)) {
		t.Fatalf("unexpected balance: %+v", bal)
	}
	allowed, ok := sql.calls[0].args[2].([]string)
	if !ok || len(allowed) != 2 || allowed[0] != "Pending" || allowed[1] != "PartiallyFunded" {
		t.Fatalf("allowed statuses not passed as text array: %#v", sql.calls[0].args[2])
	}
}

func TestApplyDeltaExplainsMiss(t *testing.T) {
	cases := []struct {
		name   string
		status simpleRow
		want   error
	}{
		{name: "closed need", status: statusRow("Fulfilled"), want: domain.ErrPreconditionFailed},
		{name: "unknown need", status: simpleRow{}, want: domain.ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sql := &scriptedSQL{rows: map[string]simpleRow{
				sqlinline.QApplyNeedDelta:   {},
				sqlinline.QSelectNeedStatus: tc.status,
			}}
			_, err := NewNeedRepository(sql).ApplyDelta(context.Background(), testNeedID, decimal.NewFromInt(1), domain.OpenNeedStatuses)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestInvalidIDSkipsDatabase(t *testing.T) {
	sql := &scriptedSQL{}
	needs := NewNeedRepository(sql)
	donations := NewDonationRepository(sql)

	if _, err := needs.GetByID(context.Background(), "not-a-uuid"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := donations.Delete(context.Background(), "42"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if len(sql.calls) != 0 {
		t.Fatalf("expected no SQL calls, got %d", len(sql.calls))
	}
}

func TestMapErrTranslatesPgCodes(t *testing.T) {
	cases := []struct {
		code string
		want error
	}{
		{code: pgSerializationFailure, want: domain.ErrConflict},
		{code: pgDeadlockDetected, want: domain.ErrConflict},
		{code: pgUniqueViolation, want: domain.ErrDuplicateOperation},
		{code: pgCheckViolation, want: domain.ErrInvalidInput},
	}
	for _, tc := range cases {
		err := mapErr(fmt.Errorf("wrapped: %w", &pgconn.PgError{Code: tc.code}))
		if !errors.Is(err, tc.want) {
			t.Fatalf("code %s: expected %v, got %v", tc.code, tc.want, err)
		}
	}
	if !errors.Is(mapErr(pgx.ErrNoRows), domain.ErrNotFound) {
		t.Fatalf("ErrNoRows should map to ErrNotFound")
	}
	other := errors.New("boom")
	if mapErr(other) != other {
		t.Fatalf("unknown errors should pass through")
	}
}

func TestUpdatePaymentPreconditionFailed(t *testing.T) {
	created := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	sql := &scriptedSQL{rows: map[string]simpleRow{
		sqlinline.QUpdateDonationPayment: {},
		sqlinline.QSelectDonationByID: {scan: func(dest ...any) error {
			if len(dest) != 10 {
				return fmt.Errorf("unexpected scan args: %d", len(dest))
			}
			*dest[0].(*string) = testNeedID
			*dest[1].(*string) = "donor-1"
			*dest[2].(*string) = testNeedID
			*dest[3].(*decimal.Decimal) = decimal.NewFromInt(10)
			*dest[4].(*string) = "USD"
			*dest[5].(*string) = "Completed"
			*dest[7].(*bool) = false
			*dest[8].(*time.Time) = created
			*dest[9].(*time.Time) = created
			return nil
		}},
	}}
	repo := NewDonationRepository(sql)

	_, err := repo.UpdatePayment(context.Background(), testNeedID, domain.PaymentStatusPending, domain.PaymentStatusCompleted, nil)
	if !errors.Is(err, domain.ErrPreconditionFailed) {
		t.Fatalf("expected ErrPreconditionFailed, got %v", err)
	}
}

func TestMarkPublishedNoopOnEmpty(t *testing.T) {
	sql := &scriptedSQL{}
	if err := NewEventRepository(sql).MarkPublished(context.Background(), nil); err != nil {
		t.Fatalf("MarkPublished returned error: %v", err)
	}
	if len(sql.calls) != 0 {
		t.Fatalf("expected no SQL calls, got %d", len(sql.calls))
	}
}
