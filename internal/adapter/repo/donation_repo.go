package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"fundingledger/internal/domain"
	"fundingledger/internal/infra"
	"fundingledger/internal/sqlinline"
)

// DonationRepositoryPG implements DonationRepository using PostgreSQL.
type DonationRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewDonationRepository creates a new donation repo.
func NewDonationRepository(sql infra.SQLExecutor) *DonationRepositoryPG {
	return &DonationRepositoryPG{sql: sql}
}

func scanDonation(row scanner) (*domain.Donation, error) {
	var (
		d      domain.Donation
		status string
	)
	if err := row.Scan(
		&d.ID,
		&d.DonorID,
		&d.NeedID,
		&d.Amount,
		&d.Currency,
		&status,
		&d.TransactionID,
		&d.IsAnonymous,
		&d.CreatedAt,
		&d.UpdatedAt,
	); err != nil {
		return nil, err
	}
	d.PaymentStatus = domain.PaymentStatus(status)
	return &d, nil
}

// GetByID loads a donation.
func (r *DonationRepositoryPG) GetByID(ctx context.Context, id string) (*domain.Donation, error) {
	if !validID(id) {
		return nil, domain.ErrNotFound
	}
	d, err := scanDonation(r.sql.QueryRow(ctx, sqlinline.QSelectDonationByID, id))
	if err != nil {
		return nil, mapErr(err)
	}
	return d, nil
}

// Insert inserts a new donation record.
func (r *DonationRepositoryPG) Insert(ctx context.Context, d *domain.Donation) error {
	if !validID(d.NeedID) {
		return domain.ErrNotFound
	}
	_, err := r.sql.Exec(ctx, sqlinline.QInsertDonation,
		d.ID,
		d.DonorID,
		d.NeedID,
		d.Amount,
		d.Currency,
		string(d.PaymentStatus),
		d.TransactionID,
		d.IsAnonymous,
		d.CreatedAt,
	)
	return mapErr(err)
}

// Delete removes a donation and returns the deleted row.
func (r *DonationRepositoryPG) Delete(ctx context.Context, id string) (*domain.Donation, error) {
	if !validID(id) {
		return nil, domain.ErrNotFound
	}
	d, err := scanDonation(r.sql.QueryRow(ctx, sqlinline.QDeleteDonation, id))
	if err != nil {
		return nil, mapErr(err)
	}
	return d, nil
}

// Query lists donations newest first together with the unpaged total.
func (r *DonationRepositoryPG) Query(ctx context.Context, filter domain.DonationFilter, page domain.Page) ([]domain.Donation, int, error) {
	page = page.Normalize()
	var total int
	if err := r.sql.QueryRow(ctx, sqlinline.QCountDonations, filter.DonorID, filter.NeedID).Scan(&total); err != nil {
		return nil, 0, mapErr(err)
	}

	rows, err := r.sql.Query(ctx, sqlinline.QListDonations, filter.DonorID, filter.NeedID, page.Limit, page.Offset())
	if err != nil {
		return nil, 0, mapErr(err)
	}
	defer rows.Close()

	var items []domain.Donation
	for rows.Next() {
		d, err := scanDonation(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// UpdatePayment performs a compare-and-set on payment_status.
func (r *DonationRepositoryPG) UpdatePayment(ctx context.Context, id string, from, to domain.PaymentStatus, transactionID *string) (*domain.Donation, error) {
	if !validID(id) {
		return nil, domain.ErrNotFound
	}
	d, err := scanDonation(r.sql.QueryRow(ctx, sqlinline.QUpdateDonationPayment, id, string(from), string(to), transactionID))
	if err == nil {
		return d, nil
	}
	if !errors.Is(mapErr(err), domain.ErrNotFound) {
		return nil, mapErr(err)
	}
	current, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("%w: donation is %s", domain.ErrPreconditionFailed, current.PaymentStatus)
}

// SumActive totals the non-failed donations of a need.
func (r *DonationRepositoryPG) SumActive(ctx context.Context, needID string) (decimal.Decimal, error) {
	if !validID(needID) {
		return decimal.Zero, domain.ErrNotFound
	}
	var sum decimal.Decimal
	if err := r.sql.QueryRow(ctx, sqlinline.QSumActiveDonations, needID).Scan(&sum); err != nil {
		return decimal.Zero, mapErr(err)
	}
	return sum, nil
}

var _ domain.DonationRepository = (*DonationRepositoryPG)(nil)
