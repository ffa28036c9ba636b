// Package domain contains the local read model of orders owned by the
// upstream ordering system, and the rules for archiving them.
package domain

import (
	"time"

	"github.com/rai/order-reporting/modules/shared/types"
)

// Order is a full copy of an upstream order document. The reporting service
// never changes an order; it only observes it and moves it to the archive.
type Order struct {
	id          types.OrderID
	status      Status
	totalAmount types.Money
	tableNumber string
	items       []OrderItem
	createdAt   time.Time
	updatedAt   time.Time
}

// OrderItem is one line of an order. ItemIDs may repeat.
type OrderItem struct {
	ItemID   string
	Quantity int64
	Price    types.Money
}

func (i OrderItem) Subtotal() types.Money {
	return i.Price.Multiply(i.Quantity)
}

// Reconstitute rebuilds an order from persistence or an upstream snapshot.
func Reconstitute(
	id types.OrderID,
	status Status,
	totalAmount types.Money,
	tableNumber string,
	items []OrderItem,
	createdAt, updatedAt time.Time,
) *Order {
	return &Order{
		id:          id,
		status:      status,
		totalAmount: totalAmount,
		tableNumber: tableNumber,
		items:       items,
		createdAt:   createdAt,
		updatedAt:   updatedAt,
	}
}

// Getters

func (o *Order) ID() types.OrderID        { return o.id }
func (o *Order) Status() Status           { return o.status }
func (o *Order) TotalAmount() types.Money { return o.totalAmount }
func (o *Order) TableNumber() string      { return o.tableNumber }
func (o *Order) Items() []OrderItem       { return o.items }
func (o *Order) CreatedAt() time.Time     { return o.createdAt }
func (o *Order) UpdatedAt() time.Time     { return o.updatedAt }

// Archivable reports whether the order may leave the live set at cutoff.
func (o *Order) Archivable(cutoff time.Time) bool {
	return o.status.IsTerminal() && o.createdAt.Before(cutoff)
}

// SupersededBy reports whether other is a newer version of this order.
func (o *Order) SupersededBy(other *Order) bool {
	return !other.updatedAt.Before(o.updatedAt)
}
