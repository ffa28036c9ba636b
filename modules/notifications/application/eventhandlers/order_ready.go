// Package eventhandlers turns order events into staff notifications.
package eventhandlers

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rai/order-reporting/modules/shared/events"
	"github.com/rai/order-reporting/modules/shared/events/contracts"
)

// OrderReadyHandler notifies staff when an order becomes ready for pickup.
//
// Delivery to a push channel is not implemented; the notification is logged.
// Redelivered events are filtered by the same transition guard the reporting
// module uses, so a repeated ready->ready update does not notify twice.
type OrderReadyHandler struct {
	logger *slog.Logger
}

func NewOrderReadyHandler(logger *slog.Logger) *OrderReadyHandler {
	return &OrderReadyHandler{logger: logger}
}

func (h *OrderReadyHandler) Handle(ctx context.Context, event events.Event) error {
	orderEvent, ok := event.(contracts.OrderUpdatedEvent)
	if !ok {
		return fmt.Errorf("unexpected event type: %T", event)
	}
	if !orderEvent.TransitionedTo(contracts.OrderStatusReady) {
		return nil
	}

	h.logger.Info("order ready",
		slog.String("order_id", orderEvent.OrderID),
		slog.String("table_number", orderEvent.After.TableNumber),
		slog.String("action", "ready_notification"),
	)
	return nil
}
