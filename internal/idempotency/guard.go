package idempotency

import (
	"context"
	"errors"
	"fmt"
	"log"

	"golang.org/x/sync/singleflight"

	"github.com/wakala/payments/internal/domain"
)

// Result is what Execute hands back to the caller.
type Result struct {
	Outcome *domain.Outcome
	// Replayed is true when the outcome came from the store rather than from
	// an orchestration run on behalf of this call.
	Replayed bool
}

// RunFunc performs one orchestration and returns its terminal outcome.
type RunFunc func(ctx context.Context) (*domain.Outcome, error)

// OutcomeHook observes every outcome produced by a run, once per run.
type OutcomeHook func(ctx context.Context, key domain.IdempotencyKey, outcome *domain.Outcome)

// Guard serializes orchestrations per idempotency key. Callers that arrive
// while a run for their key is in flight wait for it and receive its
// outcome; callers that arrive afterwards are served from the store.
type Guard struct {
	store  Store
	policy Policy
	group  singleflight.Group
	hooks  []OutcomeHook
}

func NewGuard(store Store, policy Policy) *Guard {
	if policy == "" {
		policy = PolicyAll
	}
	return &Guard{store: store, policy: policy}
}

func (g *Guard) Store() Store {
	return g.store
}

// OnOutcome registers a hook that runs after a fresh outcome has been
// recorded. Replays and joined callers do not trigger it. Register hooks
// before the first Execute.
func (g *Guard) OnOutcome(hook OutcomeHook) {
	g.hooks = append(g.hooks, hook)
}

// Execute returns the stored outcome for key, or runs fn exactly once across
// all concurrent callers and stores what it returns (subject to the policy).
func (g *Guard) Execute(ctx context.Context, key domain.IdempotencyKey, fn RunFunc) (Result, error) {
	stored, err := g.store.Lookup(ctx, key)
	if err != nil {
		return Result{}, fmt.Errorf("lookup %s: %w", key, err)
	}
	if stored != nil {
		return Result{Outcome: stored, Replayed: true}, nil
	}

	v, err, shared := g.group.Do(string(key), func() (interface{}, error) {
		// A run for this key may have finished between the lookup above and
		// joining the group.
		stored, err := g.store.Lookup(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("lookup %s: %w", key, err)
		}
		if stored != nil {
			return Result{Outcome: stored, Replayed: true}, nil
		}

		outcome, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		res := g.record(ctx, key, outcome)
		if !res.Replayed {
			for _, hook := range g.hooks {
				hook(ctx, key, res.Outcome)
			}
		}
		return res, nil
	})
	if err != nil {
		return Result{}, err
	}
	if shared {
		log.Printf("[idempotency] key %s: joined in-flight orchestration", key)
	}
	return v.(Result), nil
}

func (g *Guard) record(ctx context.Context, key domain.IdempotencyKey, outcome *domain.Outcome) Result {
	if !g.policy.Caches(outcome) {
		log.Printf("[idempotency] key %s: %s outcome not cached under policy %s", key, outcome.Reason, g.policy)
		return Result{Outcome: outcome}
	}

	err := g.store.Put(ctx, key, outcome)
	if err == nil {
		return Result{Outcome: outcome}
	}
	if errors.Is(err, ErrExists) {
		if stored, lerr := g.store.Lookup(ctx, key); lerr == nil && stored != nil {
			log.Printf("[idempotency] key %s: lost write race, serving stored outcome", key)
			return Result{Outcome: stored, Replayed: true}
		}
	}
	// The remote side effects already happened; the caller still gets them.
	log.Printf("[idempotency] WARNING: failed to store outcome for %s: %v", key, err)
	return Result{Outcome: outcome}
}
