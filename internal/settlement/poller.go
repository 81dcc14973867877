// Package settlement polls the processor until a payment reaches a terminal
// status or the settlement deadline passes.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/wakala/payments/internal/domain"
)

const (
	DefaultInterval = 500 * time.Millisecond
	DefaultTimeout  = 10 * time.Second
)

// ErrTimeout is matched by every TimeoutError.
var ErrTimeout = errors.New("payment did not settle in time")

// TimeoutError reports that no terminal status was observed before the
// deadline. Last is the most recent non-terminal snapshot.
type TimeoutError struct {
	PaymentID domain.ResourceID
	Waited    time.Duration
	Polls     int
	Last      *domain.Payment
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("payment %s did not settle within %s (%d polls)", e.PaymentID, e.Waited, e.Polls)
}

func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// StatusChecker fetches the current payment snapshot.
type StatusChecker interface {
	GetPaymentStatus(ctx context.Context, id domain.ResourceID) (*domain.Payment, error)
}

// Observer is notified after every poll. It may be nil.
type Observer interface {
	ObservePoll(status domain.PaymentStatus, err error)
}

type Poller struct {
	checker  StatusChecker
	interval time.Duration
	timeout  time.Duration
	observer Observer
	now      func() time.Time
}

func NewPoller(checker StatusChecker, interval, timeout time.Duration, observer Observer) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Poller{
		checker:  checker,
		interval: interval,
		timeout:  timeout,
		observer: observer,
		now:      time.Now,
	}
}

// Await polls the payment until it is settled or failed. The first poll is
// immediate. A failing status check is returned as-is without further polls.
// Waits never extend past the deadline, so the call returns at most one
// in-flight status call after start+timeout.
func (p *Poller) Await(ctx context.Context, paymentID domain.ResourceID) (*domain.Payment, error) {
	start := p.now()
	deadline := start.Add(p.timeout)

	var (
		last  *domain.Payment
		polls int
	)

	for {
		if !p.now().Before(deadline) {
			log.Printf("[settlement] payment %s still %q after %d polls, giving up", paymentID, statusOf(last), polls)
			return nil, &TimeoutError{PaymentID: paymentID, Waited: p.now().Sub(start), Polls: polls, Last: last}
		}

		payment, err := p.checker.GetPaymentStatus(ctx, paymentID)
		polls++
		if err != nil {
			p.observe("", err)
			return nil, err
		}
		p.observe(payment.State(), nil)
		if payment.State().Terminal() {
			return payment, nil
		}
		last = payment

		wait := p.interval
		if remaining := deadline.Sub(p.now()); remaining < wait {
			wait = remaining
		}
		if wait <= 0 {
			continue
		}
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		}
	}
}

func (p *Poller) observe(status domain.PaymentStatus, err error) {
	if p.observer != nil {
		p.observer.ObservePoll(status, err)
	}
}

func statusOf(p *domain.Payment) domain.PaymentStatus {
	if p == nil {
		return ""
	}
	return p.State()
}
