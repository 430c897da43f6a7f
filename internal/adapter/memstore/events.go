package memstore

import (
	"context"

	"fundingledger/internal/domain"
)

type eventRepo struct {
	s *Store
}

func (r *eventRepo) Append(ctx context.Context, e *domain.LedgerEvent) error {
	return r.s.write(ctx, func(j *journal) error {
		prevLen, prevSeq := len(r.s.events), r.s.seq
		j.undo = append(j.undo, func() {
			r.s.events = r.s.events[:prevLen]
			r.s.seq = prevSeq
		})
		r.s.seq++
		e.Seq = r.s.seq
		r.s.events = append(r.s.events, *e)
		return nil
	})
}

func (r *eventRepo) ClaimUnpublished(ctx context.Context, limit int) ([]domain.LedgerEvent, error) {
	var out []domain.LedgerEvent
	err := r.s.read(ctx, func() {
		for _, e := range r.s.events {
			if len(out) >= limit {
				break
			}
			if e.PublishedAt == nil {
				out = append(out, e)
			}
		}
	})
	return out, err
}

func (r *eventRepo) MarkPublished(ctx context.Context, ids []string) error {
	return r.s.write(ctx, func(j *journal) error {
		want := make(map[string]struct{}, len(ids))
		for _, id := range ids {
			want[id] = struct{}{}
		}
		now := r.s.now()
		for i := range r.s.events {
			e := &r.s.events[i]
			if _, ok := want[e.ID]; !ok || e.PublishedAt != nil {
				continue
			}
			idx := i
			j.undo = append(j.undo, func() { r.s.events[idx].PublishedAt = nil })
			stamp := now
			e.PublishedAt = &stamp
		}
		return nil
	})
}
