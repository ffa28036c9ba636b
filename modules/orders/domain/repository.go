package domain

import (
	"context"
	"time"

	"github.com/rai/order-reporting/modules/shared/types"
)

// OrderRepository reads the live and archived order collections and moves
// orders between them.
type OrderRepository interface {
	FindByID(ctx context.Context, id types.OrderID) (*Order, error)
	FindArchivedByID(ctx context.Context, id types.OrderID) (*Order, error)
	// FindArchivable returns up to limit live orders created before cutoff
	// whose status is one of statuses, oldest first.
	FindArchivable(ctx context.Context, cutoff time.Time, statuses []Status, limit int) ([]*Order, error)
	// Archive copies every order into the archive and deletes it from the
	// live collection in one atomic batch.
	Archive(ctx context.Context, orders []*Order) error
}

// OrderWriter stores upstream snapshots in the live collection. Only the
// in-memory store, which stands in for the upstream database, implements it.
type OrderWriter interface {
	Save(ctx context.Context, order *Order) error
}
