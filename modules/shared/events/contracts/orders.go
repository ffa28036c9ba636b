// Package contracts defines public event contracts for inter-module communication.
// Modules should import event types from here, NOT from other module's domain packages.
package contracts

import (
	"time"

	"github.com/rai/order-reporting/modules/shared/events"
	"github.com/rai/order-reporting/modules/shared/types"
)

const (
	OrderUpdatedEventType events.EventType = "orders.OrderUpdated"
)

// Order statuses observed by downstream modules.
const (
	OrderStatusCompleted = "completed"
	OrderStatusReady     = "ready"
	OrderStatusCancelled = "cancelled"
)

// OrderSnapshot is a full copy of an order document at one point in time.
type OrderSnapshot struct {
	ID          string             `json:"id"`
	Status      string             `json:"status"`
	TotalAmount types.Money        `json:"total_amount"`
	TableNumber string             `json:"table_number,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
	Items       []LineItemSnapshot `json:"items"`
}

type LineItemSnapshot struct {
	ItemID   string      `json:"item_id"`
	Quantity int64       `json:"quantity"`
	Price    types.Money `json:"price"`
}

// OrderUpdatedEvent carries the before/after pair for one order mutation.
// Before is nil when the upstream delivered no prior state.
// Delivery is at-least-once and may be out of order for the same order.
type OrderUpdatedEvent struct {
	events.BaseEvent
	OrderID string         `json:"order_id"`
	Before  *OrderSnapshot `json:"before"`
	After   OrderSnapshot  `json:"after"`
}

func NewOrderUpdatedEvent(orderID string, before *OrderSnapshot, after OrderSnapshot) OrderUpdatedEvent {
	return OrderUpdatedEvent{
		BaseEvent: events.NewBaseEvent(OrderUpdatedEventType, orderID),
		OrderID:   orderID,
		Before:    before,
		After:     after,
	}
}

// PreviousStatus returns the prior status, or "" when no prior snapshot exists.
func (e OrderUpdatedEvent) PreviousStatus() string {
	if e.Before == nil {
		return ""
	}
	return e.Before.Status
}

// TransitionedTo reports whether this mutation moved the order into status.
func (e OrderUpdatedEvent) TransitionedTo(status string) bool {
	return e.PreviousStatus() != status && e.After.Status == status
}
