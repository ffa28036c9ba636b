package commands

import (
	"context"
	"fmt"

	"github.com/rai/order-reporting/modules/orders/domain"
	"github.com/rai/order-reporting/modules/shared/events"
	"github.com/rai/order-reporting/modules/shared/events/contracts"
)

// PublishOrderUpdateCommand carries one upstream order mutation.
// Before is nil when upstream delivered no prior state.
type PublishOrderUpdateCommand struct {
	OrderID string
	Before  *contracts.OrderSnapshot
	After   contracts.OrderSnapshot
}

// PublishOrderUpdateHandler is the boundary between the upstream event
// source and the modules that react to order transitions.
type PublishOrderUpdateHandler struct {
	publisher events.Publisher
	mirror    domain.OrderWriter
}

// NewPublishOrderUpdateHandler creates the handler. mirror may be nil; when
// set, every accepted snapshot is also stored in the live collection.
func NewPublishOrderUpdateHandler(publisher events.Publisher, mirror domain.OrderWriter) *PublishOrderUpdateHandler {
	return &PublishOrderUpdateHandler{
		publisher: publisher,
		mirror:    mirror,
	}
}

// Handle validates the snapshots and publishes an OrderUpdatedEvent.
// Downstream failures are not reported back to the caller.
func (h *PublishOrderUpdateHandler) Handle(ctx context.Context, cmd PublishOrderUpdateCommand) error {
	after, err := domain.FromSnapshot(cmd.After)
	if err != nil {
		return fmt.Errorf("invalid after snapshot: %w", err)
	}
	if cmd.OrderID != after.ID().String() {
		return fmt.Errorf("%w: %q vs %q", domain.ErrOrderIDMismatch, cmd.OrderID, cmd.After.ID)
	}
	if cmd.Before != nil {
		before, err := domain.FromSnapshot(*cmd.Before)
		if err != nil {
			return fmt.Errorf("invalid before snapshot: %w", err)
		}
		if before.ID() != after.ID() {
			return fmt.Errorf("%w: %q vs %q", domain.ErrOrderIDMismatch, cmd.Before.ID, cmd.After.ID)
		}
	}

	if h.mirror != nil {
		if err := h.mirror.Save(ctx, after); err != nil {
			return fmt.Errorf("mirroring order: %w", err)
		}
	}

	event := contracts.NewOrderUpdatedEvent(cmd.OrderID, cmd.Before, cmd.After)
	if err := h.publisher.Publish(ctx, event); err != nil {
		return fmt.Errorf("publishing order update: %w", err)
	}
	return nil
}
