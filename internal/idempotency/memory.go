package idempotency

import (
	"context"
	"sync"
	"time"

	"fundingledger/internal/domain"
)

type memEntry struct {
	value   string
	expires time.Time
}

// MemoryStore is a process-local Store.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memEntry
	ttl     time.Duration
	now     func() time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memEntry),
		ttl:     ttlOrDefault(ttl),
		now:     time.Now,
	}
}

func (s *MemoryStore) Reserve(_ context.Context, key string) (Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if e, ok := s.entries[key]; ok && now.Before(e.expires) {
		if id, done := resultOf(e.value); done {
			return Reservation{ResultID: id}, nil
		}
		return Reservation{}, domain.ErrDuplicateOperation
	}
	s.entries[key] = memEntry{value: pendingValue, expires: now.Add(s.ttl)}
	return Reservation{Fresh: true}, nil
}

func (s *MemoryStore) Complete(_ context.Context, key, resultID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = memEntry{value: donePrefix + resultID, expires: s.now().Add(s.ttl)}
	return nil
}

func (s *MemoryStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[key]; ok && e.value == pendingValue {
		delete(s.entries, key)
	}
	return nil
}
