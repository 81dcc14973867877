// Package orchestrator drives one card payment through hold, payment,
// settlement and capture, and records the terminal outcome under the
// caller's idempotency key.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/wakala/payments/internal/domain"
	"github.com/wakala/payments/internal/idempotency"
	"github.com/wakala/payments/internal/processor"
	"github.com/wakala/payments/internal/settlement"
)

// ErrKeyReused is returned when an idempotency key already belongs to a
// request for a different card or amount.
var ErrKeyReused = errors.New("idempotency key already used for a different request")

// Processor is the subset of the processor client the orchestrator calls.
type Processor interface {
	CreateHold(ctx context.Context, card domain.CardID, amount domain.Money) (*domain.Hold, error)
	CreatePayment(ctx context.Context, amount domain.Money) (*domain.Payment, error)
	CaptureHold(ctx context.Context, card domain.CardID, holdID domain.ResourceID, amount domain.Money) (*domain.Capture, error)
}

// Settler waits for a payment to reach a terminal status.
type Settler interface {
	Await(ctx context.Context, paymentID domain.ResourceID) (*domain.Payment, error)
}

// Recorder receives orchestration telemetry. *metrics.Metrics implements it.
type Recorder interface {
	ObserveTransition(state string)
	ObserveCall(op string, elapsed time.Duration, err error)
	ObserveOutcome(o *domain.Outcome, replayed bool)
}

type Service struct {
	processor Processor
	settler   Settler
	guard     *idempotency.Guard
	recorder  Recorder
	now       func() time.Time
}

// NewService wires the orchestrator. recorder may be nil.
func NewService(p Processor, settler Settler, guard *idempotency.Guard, recorder Recorder) *Service {
	s := &Service{
		processor: p,
		settler:   settler,
		guard:     guard,
		recorder:  recorder,
		now:       time.Now,
	}
	if recorder != nil {
		guard.OnOutcome(func(_ context.Context, _ domain.IdempotencyKey, o *domain.Outcome) {
			recorder.ObserveOutcome(o, false)
		})
	}
	return s
}

// Pay runs the payment flow for key at most once and returns its outcome.
// A key that already has an outcome is answered from the store with no
// remote calls. The flow runs detached from ctx cancellation: once started
// it always reaches a terminal outcome.
func (s *Service) Pay(ctx context.Context, key domain.IdempotencyKey, card domain.CardID, amount domain.Money) (idempotency.Result, error) {
	if err := key.Validate(); err != nil {
		return idempotency.Result{}, err
	}
	if err := amount.Validate(); err != nil {
		return idempotency.Result{}, err
	}

	ctx = context.WithoutCancel(ctx)
	res, err := s.guard.Execute(ctx, key, func(ctx context.Context) (*domain.Outcome, error) {
		return s.run(ctx, key, card, amount), nil
	})
	if err != nil {
		return idempotency.Result{}, fmt.Errorf("pay %s: %w", key, err)
	}
	if !res.Outcome.Matches(card, amount) {
		log.Printf("[orchestrator] %s: reused for card=%s amount=%d, stored card=%s amount=%d",
			key, card, amount, res.Outcome.CardID, res.Outcome.Amount)
		return idempotency.Result{}, ErrKeyReused
	}
	if res.Replayed && s.recorder != nil {
		s.recorder.ObserveOutcome(res.Outcome, true)
	}
	return res, nil
}

// Lookup returns the stored outcome for key, or nil.
func (s *Service) Lookup(ctx context.Context, key domain.IdempotencyKey) (*domain.Outcome, error) {
	return s.guard.Store().Lookup(ctx, key)
}

// PendingReconciliation lists capture failures when the store can list them.
func (s *Service) PendingReconciliation(ctx context.Context) ([]idempotency.Entry, error) {
	lister, ok := s.guard.Store().(idempotency.ReconciliationLister)
	if !ok {
		return nil, idempotency.ErrListingUnsupported
	}
	return lister.PendingReconciliation(ctx)
}

// flow is the state of one run.
type flow struct {
	svc     *Service
	key     domain.IdempotencyKey
	state   State
	outcome *domain.Outcome
}

func (f *flow) enter(next State) {
	if !CanTransition(f.state, next) {
		// unreachable
		panic(fmt.Sprintf("orchestrator: illegal transition %s -> %s", f.state, next))
	}
	log.Printf("[orchestrator] %s: %s -> %s", f.key, f.state, next)
	f.state = next
	if f.svc.recorder != nil {
		f.svc.recorder.ObserveTransition(string(next))
	}
}

func (f *flow) abort(reason domain.AbortReason, err error) *domain.Outcome {
	f.enter(StateAborted)
	o := f.outcome
	o.Status = domain.OutcomeError
	o.Reason = reason
	o.StatusCode, o.Detail = describe(err)
	if reason == domain.ReasonCaptureFailure {
		o.NeedsReconciliation = true
	}
	log.Printf("[orchestrator] %s: aborted with %s (%d): %s", f.key, reason, o.StatusCode, o.Detail)
	return f.finish()
}

func (f *flow) finish() *domain.Outcome {
	f.outcome.CompletedAt = f.svc.now().UTC()
	return f.outcome
}

// run executes the step sequence. Every path ends in a terminal outcome.
func (s *Service) run(ctx context.Context, key domain.IdempotencyKey, card domain.CardID, amount domain.Money) *domain.Outcome {
	f := &flow{
		svc:     s,
		key:     key,
		state:   StateIdle,
		outcome: &domain.Outcome{CardID: card, Amount: amount},
	}

	f.enter(StateHoldPending)
	hold, err := timed(s, processor.OpCreateHold, func() (*domain.Hold, error) {
		return s.processor.CreateHold(ctx, card, amount)
	})
	if err != nil {
		return f.abort(domain.ReasonHoldFailure, err)
	}
	f.outcome.Hold = hold
	f.enter(StateHoldPlaced)

	f.enter(StatePaymentPending)
	payment, err := timed(s, processor.OpCreatePayment, func() (*domain.Payment, error) {
		return s.processor.CreatePayment(ctx, amount)
	})
	if err != nil {
		return f.abort(domain.ReasonPaymentFailure, err)
	}
	f.outcome.Payment = payment
	f.enter(StatePaymentSettling)

	final, err := s.settler.Await(ctx, payment.ID)
	if errors.Is(err, settlement.ErrTimeout) {
		return f.abort(domain.ReasonSettlementTimeout, err)
	}
	if err != nil {
		return f.abort(domain.ReasonStatusCheckFailure, err)
	}
	f.outcome.Payment = final

	if final.State() == domain.PaymentFailed {
		f.enter(StateSettlementFailed)
		f.outcome.Status = domain.OutcomeFailed
		return f.finish()
	}

	capture, err := timed(s, processor.OpCaptureHold, func() (*domain.Capture, error) {
		return s.processor.CaptureHold(ctx, card, hold.ID, amount)
	})
	if err != nil {
		return f.abort(domain.ReasonCaptureFailure, err)
	}
	f.outcome.Capture = capture
	f.enter(StateSuccess)
	f.outcome.Status = domain.OutcomeSuccess
	return f.finish()
}

func timed[T any](s *Service, op processor.Op, call func() (T, error)) (T, error) {
	start := s.now()
	v, err := call()
	if s.recorder != nil {
		s.recorder.ObserveCall(string(op), s.now().Sub(start), err)
	}
	return v, err
}

const timeoutDetail = "Payment did not settle in time"

// describe turns a step failure into the status code and detail stored on
// an aborted outcome. A settlement timeout has no upstream code.
func describe(err error) (int, string) {
	if errors.Is(err, settlement.ErrTimeout) {
		return 0, timeoutDetail
	}
	if pe, ok := processor.AsError(err); ok {
		return pe.StatusCode, pe.Detail
	}
	return http.StatusBadGateway, err.Error()
}
