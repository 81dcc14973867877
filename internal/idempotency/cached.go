package idempotency

import (
	"context"
	"errors"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/wakala/payments/internal/domain"
)

// CachedStore fronts a backing store with an in-process LRU of encoded
// outcomes. Entries never change once written, so a cached copy can not go
// stale; eviction only drops the copy, never the stored outcome.
type CachedStore struct {
	backing Store
	cache   *lru.Cache[domain.IdempotencyKey, []byte]
}

func NewCachedStore(backing Store, size int) (*CachedStore, error) {
	cache, err := lru.New[domain.IdempotencyKey, []byte](size)
	if err != nil {
		return nil, err
	}
	return &CachedStore{backing: backing, cache: cache}, nil
}

func (s *CachedStore) Lookup(ctx context.Context, key domain.IdempotencyKey) (*domain.Outcome, error) {
	if data, ok := s.cache.Get(key); ok {
		return Decode(data)
	}
	o, err := s.backing.Lookup(ctx, key)
	if err != nil || o == nil {
		return o, err
	}
	s.remember(key, o)
	return o, nil
}

func (s *CachedStore) Put(ctx context.Context, key domain.IdempotencyKey, outcome *domain.Outcome) error {
	if err := s.backing.Put(ctx, key, outcome); err != nil {
		if errors.Is(err, ErrExists) {
			s.cache.Remove(key)
		}
		return err
	}
	s.remember(key, outcome)
	return nil
}

func (s *CachedStore) remember(key domain.IdempotencyKey, o *domain.Outcome) {
	if data, err := Encode(o); err == nil {
		s.cache.Add(key, data)
	}
}

// PendingReconciliation delegates to the backing store when it can list.
func (s *CachedStore) PendingReconciliation(ctx context.Context) ([]Entry, error) {
	lister, ok := s.backing.(ReconciliationLister)
	if !ok {
		return nil, ErrListingUnsupported
	}
	return lister.PendingReconciliation(ctx)
}
