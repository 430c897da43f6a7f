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

// NeedRepositoryPG implements domain.NeedRepository using PostgreSQL.
type NeedRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewNeedRepository creates a new need repo.
func NewNeedRepository(sql infra.SQLExecutor) *NeedRepositoryPG {
	return &NeedRepositoryPG{sql: sql}
}

func scanNeed(row scanner) (*domain.Need, error) {
	var (
		n        domain.Need
		category string
		urgency  string
		status   string
	)
	if err := row.Scan(
		&n.ID,
		&n.RecipientID,
		&n.Title,
		&n.Description,
		&category,
		&urgency,
		&n.Location,
		&n.Currency,
		&n.GoalAmount,
		&n.CurrentAmount,
		&status,
		&n.IsVerified,
		&n.VerifiedBy,
		&n.CreatedAt,
		&n.UpdatedAt,
	); err != nil {
		return nil, err
	}
	n.Category = domain.NeedCategory(category)
	n.Urgency = domain.NeedUrgency(urgency)
	n.Status = domain.NeedStatus(status)
	return &n, nil
}

// GetByID loads a need.
func (r *NeedRepositoryPG) GetByID(ctx context.Context, id string) (*domain.Need, error) {
	if !validID(id) {
		return nil, domain.ErrNotFound
	}
	n, err := scanNeed(r.sql.QueryRow(ctx, sqlinline.QSelectNeedByID, id))
	if err != nil {
		return nil, mapErr(err)
	}
	return n, nil
}

// Insert stores a new need.
func (r *NeedRepositoryPG) Insert(ctx context.Context, n *domain.Need) error {
	_, err := r.sql.Exec(ctx, sqlinline.QInsertNeed,
		n.ID,
		n.RecipientID,
		n.Title,
		n.Description,
		string(n.Category),
		string(n.Urgency),
		n.Location,
		n.Currency,
		n.GoalAmount,
		n.CurrentAmount,
		string(n.Status),
		n.IsVerified,
		n.VerifiedBy,
		n.CreatedAt,
	)
	return mapErr(err)
}

// Delete removes a need. Donations keep their weak reference.
func (r *NeedRepositoryPG) Delete(ctx context.Context, id string) error {
	if !validID(id) {
		return domain.ErrNotFound
	}
	tag, err := r.sql.Exec(ctx, sqlinline.QDeleteNeed, id)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Query lists needs matching filter, newest first, with the unpaged total.
func (r *NeedRepositoryPG) Query(ctx context.Context, filter domain.NeedFilter, page domain.Page) ([]domain.Need, int, error) {
	page = page.Normalize()
	var total int
	if err := r.sql.QueryRow(ctx, sqlinline.QCountNeeds,
		filter.RecipientID, string(filter.Status), string(filter.Category),
	).Scan(&total); err != nil {
		return nil, 0, mapErr(err)
	}

	rows, err := r.sql.Query(ctx, sqlinline.QListNeeds,
		filter.RecipientID, string(filter.Status), string(filter.Category), page.Limit, page.Offset(),
	)
	if err != nil {
		return nil, 0, mapErr(err)
	}
	defer rows.Close()

	var items []domain.Need
	for rows.Next() {
		n, err := scanNeed(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, *n)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// ApplyDelta performs the conditional increment in a single UPDATE statement.
func (r *NeedRepositoryPG) ApplyDelta(ctx context.Context, id string, delta decimal.Decimal, allowed []domain.NeedStatus) (*domain.NeedBalance, error) {
	if !validID(id) {
		return nil, domain.ErrNotFound
	}
	var (
		bal    domain.NeedBalance
		status string
	)
	err := r.sql.QueryRow(ctx, sqlinline.QApplyNeedDelta, id, delta, statusStrings(allowed)).
		Scan(&bal.NeedID, &bal.CurrentAmount, &bal.GoalAmount, &status)
	if err != nil {
		if errors.Is(mapErr(err), domain.ErrNotFound) {
			return nil, r.explainMiss(ctx, id)
		}
		return nil, mapErr(err)
	}
	bal.Status = domain.NeedStatus(status)
	return &bal, nil
}

// SetStatus moves a need into status when its current status is allowed.
func (r *NeedRepositoryPG) SetStatus(ctx context.Context, id string, status domain.NeedStatus, allowed []domain.NeedStatus) (*domain.Need, error) {
	if !validID(id) {
		return nil, domain.ErrNotFound
	}
	n, err := scanNeed(r.sql.QueryRow(ctx, sqlinline.QSetNeedStatus, id, string(status), statusStrings(allowed)))
	if err != nil {
		if errors.Is(mapErr(err), domain.ErrNotFound) {
			return nil, r.explainMiss(ctx, id)
		}
		return nil, mapErr(err)
	}
	return n, nil
}

// MarkVerified records the outcome of the external verification workflow.
func (r *NeedRepositoryPG) MarkVerified(ctx context.Context, id, verifierID string) (*domain.Need, error) {
	if !validID(id) {
		return nil, domain.ErrNotFound
	}
	n, err := scanNeed(r.sql.QueryRow(ctx, sqlinline.QMarkNeedVerified, id, verifierID))
	if err != nil {
		return nil, mapErr(err)
	}
	return n, nil
}

// explainMiss distinguishes an unknown need from a status guard that did not hold.
func (r *NeedRepositoryPG) explainMiss(ctx context.Context, id string) error {
	var status string
	if err := r.sql.QueryRow(ctx, sqlinline.QSelectNeedStatus, id).Scan(&status); err != nil {
		return mapErr(err)
	}
	return fmt.Errorf("%w: need is %s", domain.ErrPreconditionFailed, status)
}

var _ domain.NeedRepository = (*NeedRepositoryPG)(nil)
