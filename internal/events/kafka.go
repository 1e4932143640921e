package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaPublisher writes each envelope to the topic named by its event type,
// keyed by correlation id so one order's events stay in order.
type KafkaPublisher struct{ w *kafka.Writer }

func NewKafkaPublisher(brokers []string) *KafkaPublisher {
	return &KafkaPublisher{w: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}}
}

func (p *KafkaPublisher) Publish(ctx context.Context, env Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	err = p.w.WriteMessages(ctx, kafka.Message{
		Topic: env.EventType,
		Key:   []byte(env.CorrelationID),
		Value: body,
		Time:  env.OccurredAt,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", env.EventType, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error { return p.w.Close() }

const (
	kafkaHandleAttempts = 3
	kafkaRetryBackoff   = 200 * time.Millisecond
)

// KafkaConsumer commits offsets manually once a message has been handled.
type KafkaConsumer struct {
	r   *kafka.Reader
	log *slog.Logger
}

func NewKafkaConsumer(brokers []string, groupID, topic string, log *slog.Logger) *KafkaConsumer {
	return &KafkaConsumer{
		r: kafka.NewReader(kafka.ReaderConfig{
			Brokers:        brokers,
			GroupID:        groupID,
			Topic:          topic,
			MinBytes:       1,
			MaxBytes:       10e6,
			CommitInterval: 0,
		}),
		log: log,
	}
}

// Run retries a failing message a few times, then logs and skips it since
// Kafka has no dead-letter queue of its own.
func (c *KafkaConsumer) Run(ctx context.Context, h Handler) error {
	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("fetch message: %w", err)
		}

		var env Envelope
		if err := json.Unmarshal(m.Value, &env); err != nil {
			c.log.Error("unmarshal event", "error", err, "topic", m.Topic, "offset", m.Offset)
		} else if err := c.handle(ctx, env, h); err != nil {
			c.log.Error("dropping event after retries", "error", err, "event_id", env.EventID)
		}

		if err := c.r.CommitMessages(ctx, m); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("commit message: %w", err)
		}
	}
}

func (c *KafkaConsumer) handle(ctx context.Context, env Envelope, h Handler) error {
	var err error
	for attempt := 1; attempt <= kafkaHandleAttempts; attempt++ {
		if err = h(ctx, env); err == nil {
			return nil
		}
		c.log.Warn("handle event failed", "error", err, "event_id", env.EventID, "attempt", attempt)
		if attempt == kafkaHandleAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(kafkaRetryBackoff * time.Duration(attempt)):
		}
	}
	return err
}

func (c *KafkaConsumer) Close() error { return c.r.Close() }
