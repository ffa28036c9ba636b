package eventbus

import (
	"errors"
	"log/slog"
	"slices"
	"sync"

	"github.com/rai/order-reporting/modules/shared/events"
)

var ErrNilHandler = errors.New("eventbus: nil handler")

// EventHandlerRegistry holds the handlers subscribed per event type.
// Modules subscribe once at start-up; lookups happen on every publish.
type EventHandlerRegistry struct {
	mu       sync.RWMutex
	handlers map[events.EventType][]events.Handler
	logger   *slog.Logger
}

func NewEventHandlerRegistry(logger *slog.Logger) *EventHandlerRegistry {
	return &EventHandlerRegistry{
		handlers: make(map[events.EventType][]events.Handler),
		logger:   logger,
	}
}

// Subscribe implements events.Subscriber.
func (r *EventHandlerRegistry) Subscribe(eventType events.EventType, handler events.Handler) error {
	if handler == nil {
		return ErrNilHandler
	}

	r.mu.Lock()
	r.handlers[eventType] = append(r.handlers[eventType], handler)
	count := len(r.handlers[eventType])
	r.mu.Unlock()

	r.logger.Debug("subscribed to event", slog.String("event_type", eventType.String()), slog.Int("handler_count", count))
	return nil
}

// HandlersFor returns a snapshot of the handlers for eventType.
func (r *EventHandlerRegistry) HandlersFor(eventType events.EventType) []events.Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.handlers[eventType])
}

var _ events.Subscriber = (*EventHandlerRegistry)(nil)
