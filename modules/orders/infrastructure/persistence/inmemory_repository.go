// Package persistence implements repository interfaces for orders.
package persistence

import (
	"context"
	"slices"
	"time"

	"github.com/rai/order-reporting/internal/platform/memstore"
	"github.com/rai/order-reporting/modules/orders/domain"
	"github.com/rai/order-reporting/modules/shared/types"
)

const (
	ordersCollection         = "Orders"
	archivedOrdersCollection = "ArchivedOrders"
)

// InMemoryRepository implements OrderRepository on memstore. Orders are stored
// as *domain.Order values, which have no mutators.
type InMemoryRepository struct {
	store *memstore.Store
}

func NewInMemoryRepository(store *memstore.Store) *InMemoryRepository {
	return &InMemoryRepository{store: store}
}

// Save upserts an order into the live collection. Older versions than the one
// stored and orders that were already archived are ignored, since upstream
// delivery may be out of order.
func (r *InMemoryRepository) Save(ctx context.Context, order *domain.Order) error {
	return r.store.Execute(ctx, func(ctx context.Context) error {
		txn, _ := memstore.TxnFromContext(ctx)
		id := order.ID().String()

		if _, archived := txn.Get(archivedOrdersCollection, id); archived {
			return nil
		}
		if current, ok := txn.Get(ordersCollection, id); ok && !current.(*domain.Order).SupersededBy(order) {
			return nil
		}
		txn.Set(ordersCollection, id, order)
		return nil
	})
}

func (r *InMemoryRepository) FindByID(ctx context.Context, id types.OrderID) (*domain.Order, error) {
	data, ok := r.store.Get(ordersCollection, id.String())
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return data.(*domain.Order), nil
}

func (r *InMemoryRepository) FindArchivedByID(ctx context.Context, id types.OrderID) (*domain.Order, error) {
	data, ok := r.store.Get(archivedOrdersCollection, id.String())
	if !ok {
		return nil, domain.ErrArchivedOrderNotFound
	}
	return data.(*domain.Order), nil
}

func (r *InMemoryRepository) FindArchivable(ctx context.Context, cutoff time.Time, statuses []domain.Status, limit int) ([]*domain.Order, error) {
	var orders []*domain.Order
	for _, doc := range r.store.List(ordersCollection) {
		order := doc.Data.(*domain.Order)
		if order.CreatedAt().Before(cutoff) && slices.Contains(statuses, order.Status()) {
			orders = append(orders, order)
		}
	}

	slices.SortStableFunc(orders, func(a, b *domain.Order) int {
		return a.CreatedAt().Compare(b.CreatedAt())
	})
	if limit > 0 && len(orders) > limit {
		orders = orders[:limit]
	}
	return orders, nil
}

// Archive commits one batch holding a copy and a delete per order.
func (r *InMemoryRepository) Archive(ctx context.Context, orders []*domain.Order) error {
	batch := r.store.Batch()
	for _, order := range orders {
		id := order.ID().String()
		batch.Set(archivedOrdersCollection, id, order)
		batch.Delete(ordersCollection, id)
	}
	return batch.Commit(ctx)
}

// Compile-time interface checks.
var (
	_ domain.OrderRepository = (*InMemoryRepository)(nil)
	_ domain.OrderWriter     = (*InMemoryRepository)(nil)
)
