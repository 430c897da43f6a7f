package memstore

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"fundingledger/internal/domain"
)

type donationRepo struct {
	s *Store
}

func (r *donationRepo) GetByID(ctx context.Context, id string) (*domain.Donation, error) {
	var out *domain.Donation
	if err := r.s.read(ctx, func() {
		if d, ok := r.s.donations[id]; ok {
			cp := *d
			out = &cp
		}
	}); err != nil {
		return nil, err
	}
	if out == nil {
		return nil, domain.ErrNotFound
	}
	return out, nil
}

func (r *donationRepo) Insert(ctx context.Context, d *domain.Donation) error {
	return r.s.write(ctx, func(j *journal) error {
		if _, ok := r.s.donations[d.ID]; ok {
			return fmt.Errorf("%w: donation %s exists", domain.ErrDuplicateOperation, d.ID)
		}
		cp := *d
		if cp.UpdatedAt.IsZero() {
			cp.UpdatedAt = cp.CreatedAt
		}
		r.s.saveDonation(j, d.ID, &cp)
		return nil
	})
}

func (r *donationRepo) Delete(ctx context.Context, id string) (*domain.Donation, error) {
	var out domain.Donation
	err := r.s.write(ctx, func(j *journal) error {
		d, ok := r.s.donations[id]
		if !ok {
			return domain.ErrNotFound
		}
		out = *d
		r.s.saveDonation(j, id, nil)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *donationRepo) Query(ctx context.Context, filter domain.DonationFilter, page domain.Page) ([]domain.Donation, int, error) {
	var matched []domain.Donation
	if err := r.s.read(ctx, func() {
		for _, d := range r.s.donations {
			if filter.DonorID != "" && d.DonorID != filter.DonorID {
				continue
			}
			if filter.NeedID != "" && d.NeedID != filter.NeedID {
				continue
			}
			matched = append(matched, *d)
		}
	}); err != nil {
		return nil, 0, err
	}
	newestFirst(matched,
		func(d domain.Donation) time.Time { return d.CreatedAt },
		func(d domain.Donation) string { return d.ID })
	return paginate(matched, page), len(matched), nil
}

func (r *donationRepo) UpdatePayment(ctx context.Context, id string, from, to domain.PaymentStatus, transactionID *string) (*domain.Donation, error) {
	var out domain.Donation
	err := r.s.write(ctx, func(j *journal) error {
		d, ok := r.s.donations[id]
		if !ok {
			return domain.ErrNotFound
		}
		if d.PaymentStatus != from {
			return fmt.Errorf("%w: donation is %s", domain.ErrPreconditionFailed, d.PaymentStatus)
		}
		next := *d
		next.PaymentStatus = to
		if transactionID != nil {
			txid := *transactionID
			next.TransactionID = &txid
		}
		next.UpdatedAt = r.s.now()
		r.s.saveDonation(j, id, &next)
		out = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *donationRepo) SumActive(ctx context.Context, needID string) (decimal.Decimal, error) {
	sum := decimal.Zero
	err := r.s.read(ctx, func() {
		for _, d := range r.s.donations {
			if d.NeedID == needID && d.PaymentStatus.Counts() {
				sum = sum.Add(d.Amount)
			}
		}
	})
	return sum, err
}
