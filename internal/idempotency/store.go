// Package idempotency maps idempotency keys to the single outcome of the
// orchestration they identify, and guarantees at most one orchestration in
// flight per key.
//
// Entries are write-once. There is no update, delete or expiry: once an
// outcome is stored for a key, every later request with that key is served
// the stored outcome without touching the processor.
package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/wakala/payments/internal/domain"
)

// ErrExists is returned by Put when the key already has an outcome.
var ErrExists = errors.New("idempotency key already has an outcome")

// ErrListingUnsupported is returned when a store cannot enumerate entries.
var ErrListingUnsupported = errors.New("store does not support listing")

// Store is the key-value abstraction the orchestrator writes outcomes to.
// Implementations must be safe for concurrent use.
type Store interface {
	// Lookup returns the stored outcome, or nil and no error when absent.
	Lookup(ctx context.Context, key domain.IdempotencyKey) (*domain.Outcome, error)
	// Put stores the outcome unless the key is already present, in which
	// case it returns ErrExists and leaves the stored value untouched.
	Put(ctx context.Context, key domain.IdempotencyKey, outcome *domain.Outcome) error
}

// Entry is a stored outcome together with its key.
type Entry struct {
	Key     domain.IdempotencyKey `json:"idempotency_key"`
	Outcome *domain.Outcome       `json:"outcome"`
}

// ReconciliationLister is implemented by stores that can enumerate outcomes
// flagged for external reconciliation (funds settled but not captured).
type ReconciliationLister interface {
	PendingReconciliation(ctx context.Context) ([]Entry, error)
}

// Encode is the canonical stored representation of an outcome. Every backend
// stores these bytes, so a replay serialises exactly like the original.
func Encode(o *domain.Outcome) ([]byte, error) {
	data, err := json.Marshal(o)
	if err != nil {
		return nil, fmt.Errorf("encode outcome: %w", err)
	}
	return data, nil
}

func Decode(data []byte) (*domain.Outcome, error) {
	var o domain.Outcome
	if err := json.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("decode outcome: %w", err)
	}
	return &o, nil
}

// sortOldestFirst orders entries by completion time.
func sortOldestFirst(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Outcome.CompletedAt.Before(entries[j].Outcome.CompletedAt)
	})
}
