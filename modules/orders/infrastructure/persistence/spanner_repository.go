package persistence

import (
	"cmp"
	"context"
	"fmt"
	"math/big"
	"slices"
	"time"

	"cloud.google.com/go/spanner"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"

	platformspanner "github.com/rai/order-reporting/internal/platform/spanner"
	"github.com/rai/order-reporting/modules/orders/domain"
	"github.com/rai/order-reporting/modules/shared/types"
)

var (
	orderColumns     = []string{"OrderID", "Status", "TotalAmount", "TableNumber", "CreatedAt", "UpdatedAt"}
	orderItemColumns = []string{"OrderID", "ItemIndex", "ItemID", "Quantity", "Price"}
)

// orderTables names a parent table and its interleaved items table.
type orderTables struct {
	orders string
	items  string
}

var (
	liveTables     = orderTables{orders: "Orders", items: "OrderItems"}
	archivedTables = orderTables{orders: "ArchivedOrders", items: "ArchivedOrderItems"}
)

// SpannerRepository reads Orders/OrderItems, written by the upstream ordering
// system, and owns ArchivedOrders/ArchivedOrderItems.
type SpannerRepository struct {
	client *spanner.Client
}

func NewSpannerRepository(client *spanner.Client) *SpannerRepository {
	return &SpannerRepository{client: client}
}

func (r *SpannerRepository) FindByID(ctx context.Context, id types.OrderID) (*domain.Order, error) {
	order, err := r.findIn(ctx, liveTables, id)
	if spanner.ErrCode(err) == codes.NotFound {
		return nil, domain.ErrOrderNotFound
	}
	return order, err
}

func (r *SpannerRepository) FindArchivedByID(ctx context.Context, id types.OrderID) (*domain.Order, error) {
	order, err := r.findIn(ctx, archivedTables, id)
	if spanner.ErrCode(err) == codes.NotFound {
		return nil, domain.ErrArchivedOrderNotFound
	}
	return order, err
}

func (r *SpannerRepository) findIn(ctx context.Context, tables orderTables, id types.OrderID) (*domain.Order, error) {
	reader, ok := platformspanner.ReadTransactionFromContext(ctx)
	if !ok {
		// Reads from the order and its items require ReadOnlyTransaction
		// for point-in-time consistency. Single() is only for one read.
		roTx := r.client.ReadOnlyTransaction()
		defer roTx.Close()
		reader = roTx
	}

	row, err := reader.ReadRow(ctx, tables.orders, spanner.Key{id.String()}, orderColumns)
	if err != nil {
		if spanner.ErrCode(err) == codes.NotFound {
			return nil, err
		}
		return nil, fmt.Errorf("failed to read order: %w", err)
	}

	items, err := readOrderItems(reader.Read(ctx, tables.items, spanner.Key{id.String()}.AsPrefix(), orderItemColumns))
	if err != nil {
		return nil, err
	}
	return scanOrder(row, items[id.String()])
}

// FindArchivable uses the OrdersByStatusCreatedAt index.
func (r *SpannerRepository) FindArchivable(ctx context.Context, cutoff time.Time, statuses []domain.Status, limit int) ([]*domain.Order, error) {
	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = s.String()
	}

	roTx := r.client.ReadOnlyTransaction()
	defer roTx.Close()

	iter := roTx.Query(ctx, spanner.Statement{
		SQL: `SELECT OrderID, Status, TotalAmount, TableNumber, CreatedAt, UpdatedAt
		      FROM Orders@{FORCE_INDEX=OrdersByStatusCreatedAt}
		      WHERE Status IN UNNEST(@statuses) AND CreatedAt < @cutoff
		      ORDER BY CreatedAt
		      LIMIT @limit`,
		Params: map[string]interface{}{
			"statuses": names,
			"cutoff":   cutoff,
			"limit":    int64(limit),
		},
	})
	defer iter.Stop()

	var rows []*spanner.Row
	var ids []string
	for {
		row, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to query archivable orders: %w", err)
		}
		var id string
		if err := row.Column(0, &id); err != nil {
			return nil, fmt.Errorf("failed to scan order id: %w", err)
		}
		rows = append(rows, row)
		ids = append(ids, id)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	items, err := readOrderItems(roTx.Query(ctx, spanner.Statement{
		SQL:    `SELECT OrderID, ItemIndex, ItemID, Quantity, Price FROM OrderItems WHERE OrderID IN UNNEST(@ids)`,
		Params: map[string]interface{}{"ids": ids},
	}))
	if err != nil {
		return nil, err
	}

	orders := make([]*domain.Order, 0, len(rows))
	for i, row := range rows {
		order, err := scanOrder(row, items[ids[i]])
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, nil
}

// Archive applies all copies and deletes as one commit. Deleting an Orders
// row cascades to its OrderItems.
func (r *SpannerRepository) Archive(ctx context.Context, orders []*domain.Order) error {
	var mutations []*spanner.Mutation
	for _, order := range orders {
		mutations = append(mutations, orderMutations(archivedTables, order)...)
		mutations = append(mutations, spanner.Delete(liveTables.orders, spanner.Key{order.ID().String()}))
	}

	if txn, ok := platformspanner.ReadWriteTxFromContext(ctx); ok {
		return txn.BufferWrite(mutations)
	}
	if _, err := r.client.Apply(ctx, mutations); err != nil {
		return fmt.Errorf("failed to apply archival batch: %w", err)
	}
	return nil
}

func orderMutations(tables orderTables, order *domain.Order) []*spanner.Mutation {
	orderID := order.ID().String()
	mutations := []*spanner.Mutation{
		spanner.InsertOrUpdate(tables.orders, orderColumns, []interface{}{
			orderID,
			order.Status().String(),
			order.TotalAmount().Rat(),
			order.TableNumber(),
			order.CreatedAt(),
			order.UpdatedAt(),
		}),
	}
	for i, item := range order.Items() {
		mutations = append(mutations, spanner.InsertOrUpdate(tables.items, orderItemColumns, []interface{}{
			orderID,
			int64(i),
			item.ItemID,
			item.Quantity,
			item.Price.Rat(),
		}))
	}
	return mutations
}

func scanOrder(row *spanner.Row, items []domain.OrderItem) (*domain.Order, error) {
	var orderID, status string
	var tableNumber spanner.NullString
	var totalAmount big.Rat
	var createdAt, updatedAt time.Time
	if err := row.Columns(&orderID, &status, &totalAmount, &tableNumber, &createdAt, &updatedAt); err != nil {
		return nil, fmt.Errorf("failed to scan order: %w", err)
	}

	id, err := types.ParseOrderID(orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to parse order id: %w", err)
	}
	total, err := types.MoneyFromRat(&totalAmount)
	if err != nil {
		return nil, fmt.Errorf("failed to parse order total: %w", err)
	}

	return domain.Reconstitute(id, domain.Status(status), total, tableNumber.StringVal, items, createdAt, updatedAt), nil
}

// readOrderItems groups item rows by order id, in ItemIndex order.
func readOrderItems(iter *spanner.RowIterator) (map[string][]domain.OrderItem, error) {
	defer iter.Stop()

	type indexed struct {
		index int64
		item  domain.OrderItem
	}
	grouped := make(map[string][]indexed)
	for {
		row, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read order items: %w", err)
		}

		var orderID, itemID string
		var index, quantity int64
		var price big.Rat
		if err := row.Columns(&orderID, &index, &itemID, &quantity, &price); err != nil {
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}
		amount, err := types.MoneyFromRat(&price)
		if err != nil {
			return nil, fmt.Errorf("failed to parse item price: %w", err)
		}
		grouped[orderID] = append(grouped[orderID], indexed{
			index: index,
			item:  domain.OrderItem{ItemID: itemID, Quantity: quantity, Price: amount},
		})
	}

	items := make(map[string][]domain.OrderItem, len(grouped))
	for orderID, rows := range grouped {
		slices.SortFunc(rows, func(a, b indexed) int { return cmp.Compare(a.index, b.index) })
		for _, row := range rows {
			items[orderID] = append(items[orderID], row.item)
		}
	}
	return items, nil
}

var _ domain.OrderRepository = (*SpannerRepository)(nil)
