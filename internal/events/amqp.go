package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	ExchangeName  = "storefront.events"
	dlxExchange   = "storefront.dlx"
	SalesQueue    = "storefront.sales"
	salesDLQQueue = "storefront.sales.dlq"
)

// SetupAMQP declares the event exchange plus the sales queue and its
// dead-letter pair. Rejected sales messages land in the DLQ.
func SetupAMQP(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(ExchangeName, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}
	if err := ch.ExchangeDeclare(dlxExchange, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare DLX: %w", err)
	}
	if _, err := ch.QueueDeclare(salesDLQQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare DLQ: %w", err)
	}
	if err := ch.QueueBind(salesDLQQueue, SalesQueue, dlxExchange, false, nil); err != nil {
		return fmt.Errorf("bind DLQ: %w", err)
	}
	if _, err := ch.QueueDeclare(SalesQueue, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    dlxExchange,
		"x-dead-letter-routing-key": SalesQueue,
	}); err != nil {
		return fmt.Errorf("declare sales queue: %w", err)
	}
	if err := ch.QueueBind(SalesQueue, TypeOrderCreated, ExchangeName, false, nil); err != nil {
		return fmt.Errorf("bind sales queue: %w", err)
	}
	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("set QoS: %w", err)
	}
	return nil
}

type AMQPPublisher struct{ ch *amqp.Channel }

func NewAMQPPublisher(ch *amqp.Channel) *AMQPPublisher {
	return &AMQPPublisher{ch: ch}
}

func (p *AMQPPublisher) Publish(ctx context.Context, env Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	err = p.ch.PublishWithContext(ctx, ExchangeName, env.EventType, false, false, amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		MessageId:     env.EventID,
		CorrelationId: env.CorrelationID,
		Timestamp:     env.OccurredAt,
		Type:          env.EventType,
		Body:          body,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", env.EventType, err)
	}
	return nil
}

func (p *AMQPPublisher) Close() error { return p.ch.Close() }

type AMQPConsumer struct {
	ch    *amqp.Channel
	queue string
	log   *slog.Logger
}

func NewAMQPConsumer(ch *amqp.Channel, queue string, log *slog.Logger) *AMQPConsumer {
	return &AMQPConsumer{ch: ch, queue: queue, log: log}
}

// Run acks handled deliveries and dead-letters the ones that fail.
func (c *AMQPConsumer) Run(ctx context.Context, h Handler) error {
	msgs, err := c.ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	for {
		select {
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			c.handle(ctx, msg, h)
		case <-ctx.Done():
			return nil
		}
	}
}

func (c *AMQPConsumer) handle(ctx context.Context, msg amqp.Delivery, h Handler) {
	var env Envelope
	if err := json.Unmarshal(msg.Body, &env); err != nil {
		c.log.Error("unmarshal event", "error", err, "message_id", msg.MessageId)
		_ = msg.Nack(false, false)
		return
	}
	if err := h(ctx, env); err != nil {
		c.log.Error("handle event", "error", err, "event_id", env.EventID, "event_type", env.EventType)
		_ = msg.Nack(false, false)
		return
	}
	_ = msg.Ack(false)
}

func (c *AMQPConsumer) Close() error { return c.ch.Close() }
