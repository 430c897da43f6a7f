// Package memstore is an in-process implementation of the ledger repositories,
// used for local runs and tests. Write transactions are serialised and undone
// from a journal when they fail.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"fundingledger/internal/domain"
)

type txKey struct{}

type journal struct {
	undo []func()
}

// Store holds needs, donations and outbox events in memory.
type Store struct {
	txMu sync.Mutex // held for the lifetime of a write transaction
	mu   sync.RWMutex

	needs     map[string]*domain.Need
	donations map[string]*domain.Donation
	events    []domain.LedgerEvent
	seq       int64

	now func() time.Time
}

// New returns an empty store.
func New() *Store {
	return &Store{
		needs:     make(map[string]*domain.Need),
		donations: make(map[string]*domain.Donation),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Needs exposes the need repository backed by s.
func (s *Store) Needs() domain.NeedRepository { return &needRepo{s: s} }

// Donations exposes the donation repository backed by s.
func (s *Store) Donations() domain.DonationRepository { return &donationRepo{s: s} }

// Events exposes the outbox backed by s.
func (s *Store) Events() domain.EventRepository { return &eventRepo{s: s} }

// WithinTx runs fn with exclusive write access. Every change made through ctx
// is reverted when fn fails or ctx is cancelled before fn returns.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if _, ok := ctx.Value(txKey{}).(*journal); ok {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	j := &journal{}
	defer func() {
		if p := recover(); p != nil {
			s.rollback(j)
			panic(p)
		}
	}()

	err = fn(context.WithValue(ctx, txKey{}, j))
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		s.rollback(j)
	}
	return err
}

func (s *Store) rollback(j *journal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(j.undo) - 1; i >= 0; i-- {
		j.undo[i]()
	}
}

// write runs a mutation under the data lock. Outside a transaction it also
// takes the write-transaction lock so it cannot interleave with one.
func (s *Store) write(ctx context.Context, fn func(j *journal) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	j, inTx := ctx.Value(txKey{}).(*journal)
	if !inTx {
		s.txMu.Lock()
		defer s.txMu.Unlock()
		j = &journal{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(j)
}

func (s *Store) read(ctx context.Context, fn func()) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn()
	return nil
}

// saveNeed replaces the stored need and journals the previous value.
func (s *Store) saveNeed(j *journal, id string, n *domain.Need) {
	prev, existed := s.needs[id]
	j.undo = append(j.undo, func() {
		if existed {
			s.needs[id] = prev
		} else {
			delete(s.needs, id)
		}
	})
	if n == nil {
		delete(s.needs, id)
		return
	}
	s.needs[id] = n
}

func (s *Store) saveDonation(j *journal, id string, d *domain.Donation) {
	prev, existed := s.donations[id]
	j.undo = append(j.undo, func() {
		if existed {
			s.donations[id] = prev
		} else {
			delete(s.donations, id)
		}
	})
	if d == nil {
		delete(s.donations, id)
		return
	}
	s.donations[id] = d
}

func paginate[T any](items []T, page domain.Page) []T {
	page = page.Normalize()
	start := page.Offset()
	if start >= len(items) {
		return nil
	}
	end := start + page.Limit
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

func newestFirst[T any](items []T, created func(T) time.Time, id func(T) string) {
	sort.Slice(items, func(i, k int) bool {
		ci, ck := created(items[i]), created(items[k])
		if !ci.Equal(ck) {
			return ci.After(ck)
		}
		return id(items[i]) < id(items[k])
	})
}
