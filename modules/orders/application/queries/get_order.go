// Package queries contains read use cases for the orders module.
package queries

import (
	"context"
	"fmt"
	"time"

	"github.com/rai/order-reporting/modules/orders/domain"
	"github.com/rai/order-reporting/modules/shared/types"
)

// OrderDTO is a read model for order data.
type OrderDTO struct {
	ID          string         `json:"id"`
	Status      string         `json:"status"`
	TotalAmount types.Money    `json:"total_amount"`
	TableNumber string         `json:"table_number,omitempty"`
	Items       []OrderItemDTO `json:"items"`
	Archived    bool           `json:"archived"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

type OrderItemDTO struct {
	ItemID   string      `json:"item_id"`
	Quantity int64       `json:"quantity"`
	Price    types.Money `json:"price"`
	Subtotal types.Money `json:"subtotal"`
}

// GetOrderQuery retrieves an order by ID from the live or the archived collection.
type GetOrderQuery struct {
	OrderID  string
	Archived bool
}

type GetOrderHandler struct {
	repo domain.OrderRepository
}

func NewGetOrderHandler(repo domain.OrderRepository) *GetOrderHandler {
	return &GetOrderHandler{repo: repo}
}

func (h *GetOrderHandler) Handle(ctx context.Context, query GetOrderQuery) (*OrderDTO, error) {
	orderID, err := types.ParseOrderID(query.OrderID)
	if err != nil {
		return nil, fmt.Errorf("invalid order ID: %w", err)
	}

	var order *domain.Order
	if query.Archived {
		order, err = h.repo.FindArchivedByID(ctx, orderID)
	} else {
		order, err = h.repo.FindByID(ctx, orderID)
	}
	if err != nil {
		return nil, err
	}

	return toOrderDTO(order, query.Archived), nil
}

func toOrderDTO(order *domain.Order, archived bool) *OrderDTO {
	items := make([]OrderItemDTO, len(order.Items()))
	for i, item := range order.Items() {
		items[i] = OrderItemDTO{
			ItemID:   item.ItemID,
			Quantity: item.Quantity,
			Price:    item.Price,
			Subtotal: item.Subtotal(),
		}
	}

	return &OrderDTO{
		ID:          order.ID().String(),
		Status:      order.Status().String(),
		TotalAmount: order.TotalAmount(),
		TableNumber: order.TableNumber(),
		Items:       items,
		Archived:    archived,
		CreatedAt:   order.CreatedAt(),
		UpdatedAt:   order.UpdatedAt(),
	}
}
