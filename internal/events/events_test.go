package events

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEnvelope(t *testing.T) {
	orderID := uuid.NewString()
	env, err := NewEnvelope("storefront-api", TypeOrderCreated, orderID, OrderCreated{
		OrderID: orderID,
		Items:   []OrderItem{{ProductID: "p1", Quantity: 2, Price: decimal.NewFromInt(15)}},
		Total:   decimal.NewFromInt(30),
	})
	require.NoError(t, err)

	assert.NotEmpty(t, env.EventID)
	assert.Equal(t, TypeOrderCreated, env.EventType)
	assert.Equal(t, 1, env.EventVersion)
	assert.Equal(t, orderID, env.CorrelationID)
	assert.False(t, env.OccurredAt.IsZero())

	raw, err := json.Marshal(env)
	require.NoError(t, err)
	var decoded Envelope
	require.NoError(t, json.Unmarshal(raw, &decoded))

	payload, err := DecodePayload[OrderCreated](decoded)
	require.NoError(t, err)
	assert.Equal(t, orderID, payload.OrderID)
	require.Len(t, payload.Items, 1)
	assert.Equal(t, 2, payload.Items[0].Quantity)
	assert.True(t, payload.Total.Equal(decimal.NewFromInt(30)))
}

func TestDecodePayload_Invalid(t *testing.T) {
	_, err := DecodePayload[OrderPaid](Envelope{EventType: TypeOrderPaid, Payload: json.RawMessage(`"nope"`)})
	assert.Error(t, err)
}

func TestNopPublisher(t *testing.T) {
	var p Publisher = NopPublisher{}
	assert.NoError(t, p.Publish(context.Background(), Envelope{}))
	assert.NoError(t, p.Close())
}

func TestKafkaConsumer_HandleRetriesThenGivesUp(t *testing.T) {
	c := &KafkaConsumer{log: slog.New(slog.NewTextHandler(io.Discard, nil))}
	calls := 0
	err := c.handle(context.Background(), Envelope{EventID: "e1"}, func(context.Context, Envelope) error {
		calls++
		return errors.New("boom")
	})
	assert.Error(t, err)
	assert.Equal(t, kafkaHandleAttempts, calls)

	calls = 0
	err = c.handle(context.Background(), Envelope{EventID: "e2"}, func(context.Context, Envelope) error {
		calls++
		if calls < 2 {
			return errors.New("transient")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestLocalPublisher_DeliversInline(t *testing.T) {
	var got []string
	p := NewLocalPublisher(func(_ context.Context, env Envelope) error {
		got = append(got, env.EventType)
		return nil
	})
	require.NoError(t, p.Publish(context.Background(), Envelope{EventType: TypeOrderPaid}))
	assert.Equal(t, []string{TypeOrderPaid}, got)

	failing := NewLocalPublisher(func(context.Context, Envelope) error { return errors.New("down") })
	assert.Error(t, failing.Publish(context.Background(), Envelope{}))
}
