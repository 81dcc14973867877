// Package events publishes terminal orchestration outcomes for downstream
// consumers such as reconciliation jobs.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/wakala/payments/internal/domain"
)

const DefaultTopic = "payment.outcomes"

// OutcomeEvent is the message body published for every new outcome.
type OutcomeEvent struct {
	IdempotencyKey      domain.IdempotencyKey `json:"idempotency_key"`
	Status              domain.OutcomeStatus  `json:"status"`
	Reason              domain.AbortReason    `json:"reason,omitempty"`
	CardID              domain.CardID         `json:"card_id"`
	Amount              domain.Money          `json:"amount"`
	HoldID              domain.ResourceID     `json:"hold_id,omitempty"`
	PaymentID           domain.ResourceID     `json:"payment_id,omitempty"`
	CaptureID           domain.ResourceID     `json:"capture_id,omitempty"`
	NeedsReconciliation bool                  `json:"needs_reconciliation,omitempty"`
	CompletedAt         time.Time             `json:"completed_at"`
}

func NewOutcomeEvent(key domain.IdempotencyKey, o *domain.Outcome) OutcomeEvent {
	ev := OutcomeEvent{
		IdempotencyKey:      key,
		Status:              o.Status,
		Reason:              o.Reason,
		CardID:              o.CardID,
		Amount:              o.Amount,
		NeedsReconciliation: o.NeedsReconciliation,
		CompletedAt:         o.CompletedAt,
	}
	if o.Hold != nil {
		ev.HoldID = o.Hold.ID
	}
	if o.Payment != nil {
		ev.PaymentID = o.Payment.ID
	}
	if o.Capture != nil {
		ev.CaptureID = o.Capture.ID
	}
	return ev
}

// Publisher delivers outcome events.
type Publisher interface {
	Publish(ctx context.Context, key domain.IdempotencyKey, o *domain.Outcome) error
	Close() error
}

// Nop drops every event. It is used when no broker is configured.
type Nop struct{}

func (Nop) Publish(context.Context, domain.IdempotencyKey, *domain.Outcome) error { return nil }
func (Nop) Close() error                                                           { return nil }

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events keyed by idempotency key, so every event for
// a key lands on the same partition.
type KafkaPublisher struct {
	writer messageWriter
}

// ParseBrokers splits a comma separated broker list, dropping blanks.
func ParseBrokers(csv string) []string {
	brokers := []string{}
	for _, b := range strings.Split(csv, ",") {
		b = strings.TrimSpace(b)
		if b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	if topic == "" {
		topic = DefaultTopic
	}
	return &KafkaPublisher{writer: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
	}}
}

func (p *KafkaPublisher) Publish(ctx context.Context, key domain.IdempotencyKey, o *domain.Outcome) error {
	data, err := json.Marshal(NewOutcomeEvent(key, o))
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	msg := kafka.Message{Key: []byte(key), Value: data, Time: time.Now().UTC()}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish outcome %s: %w", key, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
