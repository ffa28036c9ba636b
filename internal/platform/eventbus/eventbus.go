// Package eventbus provides an in-memory event bus for inter-module communication.
// For production, this would be replaced with Google Cloud Pub/Sub, RabbitMQ, Kafka, or a similar service by adopting the outbox pattern.
package eventbus

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/rai/order-reporting/modules/shared/events"
)

// InMemoryEventBus dispatches each event to every handler subscribed to its
// type. Handlers run concurrently and Publish returns once all of them are done.
// A failing handler is logged; it never fails the publisher or its siblings.
type InMemoryEventBus struct {
	*EventHandlerRegistry
	logger *slog.Logger
}

func New(logger *slog.Logger) *InMemoryEventBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &InMemoryEventBus{
		EventHandlerRegistry: NewEventHandlerRegistry(logger),
		logger:               logger,
	}
}

// Publish implements events.Publisher.
func (b *InMemoryEventBus) Publish(ctx context.Context, evts ...events.Event) error {
	for _, event := range evts {
		b.dispatch(ctx, event)
	}
	return nil
}

func (b *InMemoryEventBus) dispatch(ctx context.Context, event events.Event) {
	handlers := b.HandlersFor(event.EventType())

	b.logger.Debug("publishing event", slog.String("event_type", event.EventType().String()), slog.String("event_id", event.EventID()), slog.Int("handler_count", len(handlers)))

	var g errgroup.Group
	for _, handler := range handlers {
		g.Go(func() error {
			if err := handler.Handle(ctx, event); err != nil {
				b.logger.Error("event handler failed", slog.String("event_type", event.EventType().String()), slog.String("event_id", event.EventID()), slog.Any("error", err))
			}
			return nil
		})
	}
	_ = g.Wait()
}

// Compile-time interface checks.
var (
	_ events.Publisher  = (*InMemoryEventBus)(nil)
	_ events.Subscriber = (*InMemoryEventBus)(nil)
)
