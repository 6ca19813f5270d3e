package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestEncode(t *testing.T) {
	e := New(PaymentSucceeded, 42)
	e.UserID = 7
	e.GatewayOrderID = "order_ABC"
	e.Amount = decimal.RequireFromString("300.00")
	e.Status = "SUCCESS"

	msg, err := encode(e)
	require.NoError(t, err)

	assert.Equal(t, "ORDER#42", string(msg.Key))
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, "payment.succeeded", string(msg.Headers[0].Value))

	var decoded Event
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, e.EventID, decoded.EventID)
	assert.Equal(t, PaymentSucceeded, decoded.Type)
	assert.Equal(t, int64(42), decoded.OrderID)
	assert.True(t, decoded.Amount.Equal(e.Amount))
}

func TestNewAssignsUniqueIDs(t *testing.T) {
	a, b := New(OrderCreated, 1), New(OrderCreated, 1)
	assert.NotEqual(t, a.EventID, b.EventID)
	assert.False(t, a.Timestamp.IsZero())
}

func TestMemoryPublisher(t *testing.T) {
	var p MemoryPublisher
	ctx := context.Background()

	require.NoError(t, p.Publish(ctx, New(OrderCreated, 1)))
	require.NoError(t, p.Publish(ctx, New(PaymentFailed, 1)))
	require.NoError(t, p.Publish(ctx, New(OrderCreated, 2)))

	assert.Len(t, p.Events(), 3)
	assert.Len(t, p.OfType(OrderCreated), 2)
	assert.Len(t, p.OfType(PaymentSucceeded), 0)
}

func TestKafkaPublisherIsAsync(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	p := NewKafkaPublisher([]string{"127.0.0.1:9092"}, "orders", zap.New(core))

	assert.True(t, p.writer.Async)
	require.NotNil(t, p.writer.Completion)

	msg, err := encode(New(OrderCreated, 9))
	require.NoError(t, err)

	p.writer.Completion([]kafka.Message{msg}, errors.New("broker unavailable"))
	failed := logs.FilterMessage("Failed to deliver event").All()
	require.Len(t, failed, 1)
	assert.Equal(t, "ORDER#9", failed[0].ContextMap()["key"])
	assert.Equal(t, string(OrderCreated), failed[0].ContextMap()["type"])

	p.writer.Completion([]kafka.Message{msg}, nil)
	assert.Equal(t, 1, logs.FilterMessage("Event published").Len())
}
