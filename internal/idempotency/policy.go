package idempotency

import (
	"fmt"

	"github.com/wakala/payments/internal/domain"
)

// Policy decides which terminal outcomes are frozen under their key.
type Policy string

const (
	// PolicyAll caches every terminal outcome, aborted ones included. A
	// retry after an abort replays the abort.
	PolicyAll Policy = "all"
	// PolicyRetrySafe caches everything except hold failures. A failed hold
	// reserved nothing, so re-running it cannot duplicate a side effect.
	PolicyRetrySafe Policy = "retry-safe"
)

func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", PolicyAll:
		return PolicyAll, nil
	case PolicyRetrySafe:
		return PolicyRetrySafe, nil
	default:
		return "", fmt.Errorf("unknown idempotency policy %q (want %q or %q)", s, PolicyAll, PolicyRetrySafe)
	}
}

// Caches reports whether the outcome should be written to the store.
func (p Policy) Caches(o *domain.Outcome) bool {
	if p == PolicyRetrySafe && o.Reason == domain.ReasonHoldFailure {
		return false
	}
	return true
}
