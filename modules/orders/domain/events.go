package domain

import (
	"fmt"

	"github.com/rai/order-reporting/modules/shared/events/contracts"
	"github.com/rai/order-reporting/modules/shared/types"
)

// FromSnapshot validates an upstream snapshot and converts it to an Order.
func FromSnapshot(s contracts.OrderSnapshot) (*Order, error) {
	id, err := types.ParseOrderID(s.ID)
	if err != nil {
		return nil, fmt.Errorf("order id %q: %w", s.ID, err)
	}
	status := Status(s.Status)
	if !status.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, s.Status)
	}
	if s.CreatedAt.IsZero() {
		return nil, ErrMissingCreatedAt
	}

	items := make([]OrderItem, 0, len(s.Items))
	for i, item := range s.Items {
		if _, err := types.ParseItemID(item.ItemID); err != nil {
			return nil, fmt.Errorf("line %d item id %q: %w", i, item.ItemID, err)
		}
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("%w: line %d has quantity %d", ErrInvalidQuantity, i, item.Quantity)
		}
		items = append(items, OrderItem{ItemID: item.ItemID, Quantity: item.Quantity, Price: item.Price})
	}

	return Reconstitute(id, status, s.TotalAmount, s.TableNumber, items, s.CreatedAt.UTC(), s.UpdatedAt.UTC()), nil
}

// Snapshot returns the order in its published form.
func (o *Order) Snapshot() contracts.OrderSnapshot {
	items := make([]contracts.LineItemSnapshot, len(o.items))
	for i, item := range o.items {
		items[i] = contracts.LineItemSnapshot{ItemID: item.ItemID, Quantity: item.Quantity, Price: item.Price}
	}
	return contracts.OrderSnapshot{
		ID:          o.id.String(),
		Status:      o.status.String(),
		TotalAmount: o.totalAmount,
		TableNumber: o.tableNumber,
		CreatedAt:   o.createdAt,
		UpdatedAt:   o.updatedAt,
		Items:       items,
	}
}
