// Package events publishes checkout domain events.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Type string

const (
	OrderCreated         Type = "order.created"
	PaymentIntentCreated Type = "payment.intent_created"
	PaymentSucceeded     Type = "payment.succeeded"
	PaymentFailed        Type = "payment.failed"
	OrderStatusChanged   Type = "order.status_changed"
)

type Event struct {
	EventID        string          `json:"event_id"`
	Type           Type            `json:"type"`
	OrderID        int64           `json:"order_id"`
	UserID         int64           `json:"user_id,omitempty"`
	GatewayOrderID string          `json:"gateway_order_id,omitempty"`
	Amount         decimal.Decimal `json:"amount"`
	Status         string          `json:"status"`
	Timestamp      time.Time       `json:"timestamp"`
}

// New stamps an event with a fresh id and the current time.
func New(t Type, orderID int64) Event {
	return Event{
		EventID:   uuid.NewString(),
		Type:      t,
		OrderID:   orderID,
		Timestamp: time.Now().UTC(),
	}
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
func (NopPublisher) Close() error                         { return nil }

// MemoryPublisher keeps published events in memory.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []Event
}

func (p *MemoryPublisher) Publish(_ context.Context, e Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *MemoryPublisher) Close() error { return nil }

func (p *MemoryPublisher) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Event(nil), p.events...)
}

// OfType returns the published events of type t.
func (p *MemoryPublisher) OfType(t Type) []Event {
	var out []Event
	for _, e := range p.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}
