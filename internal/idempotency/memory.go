package idempotency

import (
	"context"
	"sync"

	"github.com/wakala/payments/internal/domain"
)

// MemoryStore keeps outcomes for the lifetime of the process.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[domain.IdempotencyKey][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[domain.IdempotencyKey][]byte)}
}

func (s *MemoryStore) Lookup(_ context.Context, key domain.IdempotencyKey) (*domain.Outcome, error) {
	s.mu.RLock()
	data, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return Decode(data)
}

func (s *MemoryStore) Put(_ context.Context, key domain.IdempotencyKey, outcome *domain.Outcome) error {
	data, err := Encode(outcome)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[key]; ok {
		return ErrExists
	}
	s.entries[key] = data
	return nil
}

func (s *MemoryStore) PendingReconciliation(_ context.Context) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := []Entry{}
	for key, data := range s.entries {
		o, err := Decode(data)
		if err != nil {
			return nil, err
		}
		if o.NeedsReconciliation {
			entries = append(entries, Entry{Key: key, Outcome: o})
		}
	}
	sortOldestFirst(entries)
	return entries, nil
}
