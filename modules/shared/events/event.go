// Package events defines the in-process event model shared by modules.
// A module publishes facts about its own data; other modules subscribe by
// event type without importing the publisher.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventType names a kind of event, "<module>.<Fact>".
type EventType string

func (t EventType) String() string { return string(t) }

type Event interface {
	EventID() string
	EventType() EventType
	OccurredAt() time.Time
	// AggregateID identifies the entity the event is about.
	AggregateID() string
}

// BaseEvent carries the envelope fields; concrete events embed it.
type BaseEvent struct {
	ID          string    `json:"id"`
	Type        EventType `json:"type"`
	Timestamp   time.Time `json:"timestamp"`
	AggregateId string    `json:"aggregate_id"`
}

// NewBaseEvent stamps a fresh envelope with a random id and the current UTC time.
func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return BaseEvent{
		ID:          uuid.NewString(),
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
		AggregateId: aggregateID,
	}
}

func (e BaseEvent) EventID() string       { return e.ID }
func (e BaseEvent) EventType() EventType  { return e.Type }
func (e BaseEvent) OccurredAt() time.Time { return e.Timestamp }
func (e BaseEvent) AggregateID() string   { return e.AggregateId }

type Publisher interface {
	Publish(ctx context.Context, evts ...Event) error
}

type Handler interface {
	Handle(ctx context.Context, event Event) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, event Event) error

func (f HandlerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}

type Subscriber interface {
	Subscribe(eventType EventType, handler Handler) error
}
