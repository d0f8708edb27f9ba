package events

import (
	"context"
	"time"
)

const (
	MessageCreated      = "message.created"
	MessageDelivered    = "message.delivered"
	MessagesRead        = "messages.read"
	NotificationCreated = "notification.created"
)

// Event is a domain fact published for downstream consumers (push,
// analytics). The store stays the source of truth.
type Event struct {
	Type       string    `json:"type"`
	Key        string    `json:"key"`
	OccurredAt time.Time `json:"occurred_at"`
	Data       any       `json:"data"`
}

func New(typ, key string, data any) Event {
	return Event{Type: typ, Key: key, OccurredAt: time.Now().UTC(), Data: data}
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }
func (Noop) Close() error                         { return nil }
