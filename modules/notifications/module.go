package notifications

import (
	"log/slog"

	"github.com/rai/order-reporting/modules/notifications/application/eventhandlers"
	"github.com/rai/order-reporting/modules/shared/events"
	"github.com/rai/order-reporting/modules/shared/events/contracts"
)

// Module represents the notification module entry point.
type Module struct{}

type Config struct {
	EventSubscriber events.Subscriber
	Logger          *slog.Logger
}

// New initializes the notification module and subscribes to events.
func New(cfg Config) *Module {
	logger := cfg.Logger.With("module", "notifications")

	orderReadyHandler := eventhandlers.NewOrderReadyHandler(logger)

	if err := cfg.EventSubscriber.Subscribe(contracts.OrderUpdatedEventType, orderReadyHandler); err != nil {
		logger.Error("failed to subscribe to order updated event", slog.Any("error", err))
	}

	return &Module{}
}
