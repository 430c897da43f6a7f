package memstore

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"fundingledger/internal/domain"
)

type needRepo struct {
	s *Store
}

func (r *needRepo) GetByID(ctx context.Context, id string) (*domain.Need, error) {
	var out *domain.Need
	if err := r.s.read(ctx, func() {
		if n, ok := r.s.needs[id]; ok {
			cp := *n
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

func (r *needRepo) Insert(ctx context.Context, n *domain.Need) error {
	return r.s.write(ctx, func(j *journal) error {
		if _, ok := r.s.needs[n.ID]; ok {
			return fmt.Errorf("%w: need %s exists", domain.ErrDuplicateOperation, n.ID)
		}
		cp := *n
		if cp.UpdatedAt.IsZero() {
			cp.UpdatedAt = cp.CreatedAt
		}
		r.s.saveNeed(j, n.ID, &cp)
		return nil
	})
}

func (r *needRepo) Delete(ctx context.Context, id string) error {
	return r.s.write(ctx, func(j *journal) error {
		if _, ok := r.s.needs[id]; !ok {
			return domain.ErrNotFound
		}
		r.s.saveNeed(j, id, nil)
		return nil
	})
}

func (r *needRepo) Query(ctx context.Context, filter domain.NeedFilter, page domain.Page) ([]domain.Need, int, error) {
	var matched []domain.Need
	if err := r.s.read(ctx, func() {
		for _, n := range r.s.needs {
			if filter.RecipientID != "" && n.RecipientID != filter.RecipientID {
				continue
			}
			if filter.Status != "" && n.Status != filter.Status {
				continue
			}
			if filter.Category != "" && n.Category != filter.Category {
				continue
			}
			matched = append(matched, *n)
		}
	}); err != nil {
		return nil, 0, err
	}
	newestFirst(matched,
		func(n domain.Need) time.Time { return n.CreatedAt },
		func(n domain.Need) string { return n.ID })
	return paginate(matched, page), len(matched), nil
}

func (r *needRepo) ApplyDelta(ctx context.Context, id string, delta decimal.Decimal, allowed []domain.NeedStatus) (*domain.NeedBalance, error) {
	var bal *domain.NeedBalance
	err := r.s.write(ctx, func(j *journal) error {
		n, ok := r.s.needs[id]
		if !ok {
			return domain.ErrNotFound
		}
		if !slices.Contains(allowed, n.Status) {
			return fmt.Errorf("%w: need is %s", domain.ErrPreconditionFailed, n.Status)
		}
		next := *n
		next.CurrentAmount = decimal.Max(n.CurrentAmount.Add(delta), decimal.Zero)
		next.Status = domain.StatusAfter(n.Status, next.CurrentAmount, n.GoalAmount)
		next.UpdatedAt = r.s.now()
		r.s.saveNeed(j, id, &next)
		bal = &domain.NeedBalance{
			NeedID:        id,
			CurrentAmount: next.CurrentAmount,
			GoalAmount:    next.GoalAmount,
			Status:        next.Status,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return bal, nil
}

func (r *needRepo) SetStatus(ctx context.Context, id string, status domain.NeedStatus, allowed []domain.NeedStatus) (*domain.Need, error) {
	var out domain.Need
	err := r.s.write(ctx, func(j *journal) error {
		n, ok := r.s.needs[id]
		if !ok {
			return domain.ErrNotFound
		}
		if !slices.Contains(allowed, n.Status) {
			return fmt.Errorf("%w: need is %s", domain.ErrPreconditionFailed, n.Status)
		}
		next := *n
		next.Status = status
		next.UpdatedAt = r.s.now()
		r.s.saveNeed(j, id, &next)
		out = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *needRepo) MarkVerified(ctx context.Context, id, verifierID string) (*domain.Need, error) {
	var out domain.Need
	err := r.s.write(ctx, func(j *journal) error {
		n, ok := r.s.needs[id]
		if !ok {
			return domain.ErrNotFound
		}
		next := *n
		next.IsVerified = true
		next.VerifiedBy = &verifierID
		next.UpdatedAt = r.s.now()
		r.s.saveNeed(j, id, &next)
		out = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}
