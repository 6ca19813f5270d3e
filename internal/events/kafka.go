package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type KafkaPublisher struct {
	writer *kafka.Writer
	logger *zap.Logger
}

// NewKafkaPublisher returns an asynchronous publisher: Publish only enqueues
// the message and delivery failures are logged from the writer's completion
// callback.
func NewKafkaPublisher(brokers []string, topic string, logger *zap.Logger) *KafkaPublisher {
	p := &KafkaPublisher{logger: logger}
	p.writer = &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		WriteTimeout: 10 * time.Second,
		Async:        true,
		Completion:   p.completed,
	}
	return p
}

func (p *KafkaPublisher) Publish(ctx context.Context, e Event) error {
	msg, err := encode(e)
	if err != nil {
		return err
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write %s event: %w", e.Type, err)
	}
	return nil
}

func (p *KafkaPublisher) completed(messages []kafka.Message, err error) {
	for _, msg := range messages {
		if err != nil {
			p.logger.Error("Failed to deliver event",
				zap.String("key", string(msg.Key)),
				zap.String("type", eventType(msg)),
				zap.Error(err))
			continue
		}
		p.logger.Debug("Event published",
			zap.String("key", string(msg.Key)),
			zap.String("type", eventType(msg)))
	}
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// encode keys messages by order so all events of one order land on the same
// partition in publish order.
func encode(e Event) (kafka.Message, error) {
	value, err := json.Marshal(e)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal %s event: %w", e.Type, err)
	}

	return kafka.Message{
		Key:   []byte("ORDER#" + strconv.FormatInt(e.OrderID, 10)),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(e.Type)},
		},
		Time: e.Timestamp,
	}, nil
}

func eventType(msg kafka.Message) string {
	for _, h := range msg.Headers {
		if h.Key == "event_type" {
			return string(h.Value)
		}
	}
	return ""
}
