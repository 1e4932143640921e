// Package events publishes and consumes order domain events over RabbitMQ
// or Kafka. Both transports carry the same JSON Envelope.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Event types double as AMQP routing keys and Kafka topics.
const (
	TypeOrderCreated = "order.created"
	TypeOrderPaid    = "order.paid"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

type OrderItem struct {
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

type OrderCreated struct {
	OrderID string          `json:"order_id"`
	UserID  string          `json:"user_id"`
	Items   []OrderItem     `json:"items"`
	Total   decimal.Decimal `json:"total"`
}

type OrderPaid struct {
	OrderID   string    `json:"order_id"`
	UserID    string    `json:"user_id"`
	PaymentID string    `json:"payment_id"`
	PaidAt    time.Time `json:"paid_at"`
}

// NewEnvelope wraps payload; correlationID is normally the order id.
func NewEnvelope(producer, eventType, correlationID string, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s payload: %w", eventType, err)
	}
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		CorrelationID: correlationID,
		Payload:       raw,
	}, nil
}

func DecodePayload[T any](env Envelope) (T, error) {
	var t T
	if err := json.Unmarshal(env.Payload, &t); err != nil {
		return t, fmt.Errorf("decode %s payload: %w", env.EventType, err)
	}
	return t, nil
}

type Publisher interface {
	Publish(ctx context.Context, env Envelope) error
	Close() error
}

// Handler processes one event. A nil return acknowledges it.
type Handler func(ctx context.Context, env Envelope) error

// Consumer delivers events to a Handler until ctx is cancelled.
type Consumer interface {
	Run(ctx context.Context, h Handler) error
	Close() error
}

// NopPublisher drops every event. It is used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Envelope) error { return nil }
func (NopPublisher) Close() error                            { return nil }

// LocalPublisher hands each event straight to an in-process Handler. It
// stands in for a broker so the same consumers still run without one.
type LocalPublisher struct {
	handler Handler
}

func NewLocalPublisher(h Handler) *LocalPublisher {
	return &LocalPublisher{handler: h}
}

func (p *LocalPublisher) Publish(ctx context.Context, env Envelope) error {
	return p.handler(ctx, env)
}

func (p *LocalPublisher) Close() error { return nil }
