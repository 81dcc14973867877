package events

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/wakala/payments/internal/domain"
)

// Notifier publishes outcomes in the background. Close waits for pending
// publishes before closing the publisher.
type Notifier struct {
	publisher Publisher
	timeout   time.Duration
	wg        sync.WaitGroup
}

func NewNotifier(p Publisher, timeout time.Duration) *Notifier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Notifier{publisher: p, timeout: timeout}
}

// Notify has the shape of idempotency.OutcomeHook.
func (n *Notifier) Notify(ctx context.Context, key domain.IdempotencyKey, o *domain.Outcome) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.timeout)
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		defer cancel()
		if err := n.publisher.Publish(ctx, key, o); err != nil {
			log.Printf("[events] WARNING: %v", err)
		}
	}()
}

func (n *Notifier) Close() error {
	n.wg.Wait()
	return n.publisher.Close()
}
