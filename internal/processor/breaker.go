package processor

import (
	"log"
	"time"

	"github.com/sony/gobreaker"
)

// NewBreaker returns a circuit breaker that opens after the given number of
// consecutive transient failures. Rejections (4xx) do not count.
func NewBreaker(name string, consecutiveFailures uint32, openFor time.Duration) *gobreaker.CircuitBreaker {
	if openFor <= 0 {
		openFor = 30 * time.Second
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     openFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= consecutiveFailures
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			if pe, ok := AsError(err); ok {
				return !pe.Transient()
			}
			return false
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Printf("[processor] breaker %s: %s -> %s", name, from, to)
		},
	})
}
