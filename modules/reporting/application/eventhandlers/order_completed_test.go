package eventhandlers_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rai/order-reporting/internal/platform/memstore"
	"github.com/rai/order-reporting/modules/reporting/application/commands"
	"github.com/rai/order-reporting/modules/reporting/application/eventhandlers"
	"github.com/rai/order-reporting/modules/reporting/domain"
	"github.com/rai/order-reporting/modules/reporting/infrastructure/persistence"
	"github.com/rai/order-reporting/modules/reporting/infrastructure/retryqueue"
	"github.com/rai/order-reporting/modules/shared/events/contracts"
	"github.com/rai/order-reporting/modules/shared/types"
)

func hoChiMinh(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Ho_Chi_Minh")
	require.NoError(t, err)
	return loc
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// snapshotO1 was created 2024-03-15 14:22 local time.
func snapshotO1(t *testing.T, status string) contracts.OrderSnapshot {
	return contracts.OrderSnapshot{
		ID:          "O1",
		Status:      status,
		TotalAmount: types.MoneyFromInt(50000),
		TableNumber: "7",
		CreatedAt:   time.Date(2024, 3, 15, 14, 22, 0, 0, hoChiMinh(t)),
		Items: []contracts.LineItemSnapshot{
			{ItemID: "coffee", Quantity: 2, Price: types.MoneyFromInt(20000)},
			{ItemID: "cake", Quantity: 1, Price: types.MoneyFromInt(10000)},
		},
	}
}

func completion(t *testing.T, before string) contracts.OrderUpdatedEvent {
	prev := snapshotO1(t, before)
	return contracts.NewOrderUpdatedEvent("O1", &prev, snapshotO1(t, contracts.OrderStatusCompleted))
}

type reportingFixture struct {
	dailyRepo *persistence.InMemoryDailyReportRepository
	itemRepo  *persistence.InMemoryItemReportRepository
	daily     *commands.AggregateDailyReportHandler
	items     *commands.AggregateItemReportHandler
}

func newReportingFixture() *reportingFixture {
	store := memstore.New()
	ledger := persistence.NewInMemoryContributionLedger(store)
	dailyRepo := persistence.NewInMemoryDailyReportRepository(store)
	itemRepo := persistence.NewInMemoryItemReportRepository(store)
	return &reportingFixture{
		dailyRepo: dailyRepo,
		itemRepo:  itemRepo,
		daily:     commands.NewAggregateDailyReportHandler(dailyRepo, ledger, store),
		items:     commands.NewAggregateItemReportHandler(itemRepo, ledger, store),
	}
}

func (f *reportingFixture) handler(t *testing.T) *eventhandlers.OrderCompletedHandler {
	return eventhandlers.NewOrderCompletedHandler(f.daily, f.items, nil, eventhandlers.OrderCompletedConfig{
		Location:  hoChiMinh(t),
		TxTimeout: 5 * time.Second,
	}, discardLogger())
}

func TestProcess_CompletionAggregatesOrder(t *testing.T) {
	f := newReportingFixture()
	ctx := context.Background()

	result := f.handler(t).Process(ctx, completion(t, "ready"))

	require.True(t, result.Succeeded())
	assert.True(t, result.DailyApplied)
	assert.Equal(t, domain.DateKey("2024-03-15"), result.Date)
	require.Len(t, result.Items, 2)
	assert.Zero(t, result.FailedItems())

	daily, err := f.dailyRepo.FindByDate(ctx, "2024-03-15")
	require.NoError(t, err)
	assert.True(t, daily.TotalRevenue().Equals(types.MoneyFromInt(50000)))
	assert.True(t, daily.HourlyRevenue().Get("14").Equals(types.MoneyFromInt(50000)))

	cake, err := f.itemRepo.FindByID(ctx, result.Items[1].ItemID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), cake.TotalSoldAllTime())
}

func TestProcess_TransitionGuard(t *testing.T) {
	tests := []struct {
		name  string
		event func(t *testing.T) contracts.OrderUpdatedEvent
	}{
		{"completed to completed", func(t *testing.T) contracts.OrderUpdatedEvent {
			return completion(t, contracts.OrderStatusCompleted)
		}},
		{"not completed", func(t *testing.T) contracts.OrderUpdatedEvent {
			prev := snapshotO1(t, "preparing")
			return contracts.NewOrderUpdatedEvent("O1", &prev, snapshotO1(t, contracts.OrderStatusReady))
		}},
		{"completed to cancelled", func(t *testing.T) contracts.OrderUpdatedEvent {
			prev := snapshotO1(t, contracts.OrderStatusCompleted)
			return contracts.NewOrderUpdatedEvent("O1", &prev, snapshotO1(t, contracts.OrderStatusCancelled))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newReportingFixture()

			result := f.handler(t).Process(context.Background(), tt.event(t))

			assert.True(t, result.Skipped)
			_, err := f.dailyRepo.FindByDate(context.Background(), "2024-03-15")
			assert.ErrorIs(t, err, domain.ErrDailyReportNotFound)
		})
	}
}

func TestProcess_MissingBeforeCountsAsTransition(t *testing.T) {
	f := newReportingFixture()

	result := f.handler(t).Process(context.Background(), contracts.NewOrderUpdatedEvent("O1", nil, snapshotO1(t, contracts.OrderStatusCompleted)))

	assert.False(t, result.Skipped)
	assert.True(t, result.Succeeded())
}

func TestHandle_DuplicateDeliveryDoesNotDoubleCount(t *testing.T) {
	f := newReportingFixture()
	h := f.handler(t)
	ctx := context.Background()

	require.NoError(t, h.Handle(ctx, completion(t, "ready")))
	require.NoError(t, h.Handle(ctx, completion(t, contracts.OrderStatusCompleted)))
	// Same transition redelivered: the guard passes, the ledger absorbs it.
	require.NoError(t, h.Handle(ctx, completion(t, "ready")))

	daily, err := f.dailyRepo.FindByDate(ctx, "2024-03-15")
	require.NoError(t, err)
	assert.Equal(t, int64(1), daily.TotalOrders())
	assert.Equal(t, int64(2), daily.ItemSalesCount().Get(mustItem(t, "coffee")))
}

func TestHandle_RejectsUnexpectedEvent(t *testing.T) {
	f := newReportingFixture()
	err := f.handler(t).Handle(context.Background(), struct{ contracts.OrderUpdatedEvent }{})
	assert.Error(t, err)
}

func TestHandle_InvalidSnapshotIsSwallowed(t *testing.T) {
	f := newReportingFixture()
	after := snapshotO1(t, contracts.OrderStatusCompleted)
	after.Items[0].Quantity = 0

	h := f.handler(t)
	event := contracts.NewOrderUpdatedEvent("O1", nil, after)
	assert.NoError(t, h.Handle(context.Background(), event))

	result := h.Process(context.Background(), event)
	assert.ErrorIs(t, result.Invalid, domain.ErrInvalidQuantity)
}

func mustItem(t *testing.T, s string) types.ItemID {
	t.Helper()
	id, err := types.ParseItemID(s)
	require.NoError(t, err)
	return id
}

type flakyItems struct {
	inner commands.ItemAggregator
	fail  string
}

func (f *flakyItems) Handle(ctx context.Context, cmd commands.AggregateItemReportCommand) (bool, error) {
	if cmd.Item.ItemID.String() == f.fail {
		return false, &domain.AggregationError{
			Scope:   domain.ScopeItem,
			Key:     f.fail,
			OrderID: cmd.OrderID.String(),
			Err:     errors.New("commit failed"),
		}
	}
	return f.inner.Handle(ctx, cmd)
}

func TestProcess_ItemFailureDoesNotAffectSiblings(t *testing.T) {
	f := newReportingFixture()
	ctx := context.Background()
	h := eventhandlers.NewOrderCompletedHandler(f.daily, &flakyItems{inner: f.items, fail: "coffee"}, nil,
		eventhandlers.OrderCompletedConfig{Location: hoChiMinh(t)}, discardLogger())

	result := h.Process(ctx, completion(t, "ready"))

	assert.True(t, result.Succeeded())
	assert.Equal(t, 1, result.FailedItems())
	assert.Error(t, result.Items[0].Err)
	assert.NoError(t, result.Items[1].Err)

	_, err := f.itemRepo.FindByID(ctx, mustItem(t, "coffee"))
	assert.ErrorIs(t, err, domain.ErrItemReportNotFound)
	cake, err := f.itemRepo.FindByID(ctx, mustItem(t, "cake"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), cake.TotalSoldAllTime())
	daily, err := f.dailyRepo.FindByDate(ctx, "2024-03-15")
	require.NoError(t, err)
	assert.Equal(t, int64(1), daily.TotalOrders())
}

type failingDaily struct{}

func (failingDaily) Handle(ctx context.Context, cmd commands.AggregateDailyReportCommand) (bool, error) {
	return false, errors.New("daily commit failed")
}

func TestProcess_DailyFailureStillAttemptsItemsAndQueuesRetry(t *testing.T) {
	f := newReportingFixture()
	ctx := context.Background()
	queue := retryqueue.NewInMemoryQueue()
	h := eventhandlers.NewOrderCompletedHandler(failingDaily{}, f.items, queue, eventhandlers.OrderCompletedConfig{
		Location:      hoChiMinh(t),
		FailurePolicy: eventhandlers.FailurePolicyRetry,
	}, discardLogger())

	result := h.Process(ctx, completion(t, "ready"))

	assert.False(t, result.Succeeded())
	assert.Zero(t, result.FailedItems())

	queued, err := queue.Dequeue(ctx, 10)
	require.NoError(t, err)
	require.Len(t, queued, 1)
	assert.Equal(t, domain.ScopeDaily, queued[0].Scope)
	assert.Equal(t, 1, queued[0].Attempts)
	assert.Equal(t, "O1", queued[0].Contribution.OrderID.String())
	assert.Equal(t, "daily commit failed", queued[0].LastError)
}

func TestProcess_DropPolicyDoesNotQueue(t *testing.T) {
	f := newReportingFixture()
	queue := retryqueue.NewInMemoryQueue()
	h := eventhandlers.NewOrderCompletedHandler(failingDaily{}, f.items, queue, eventhandlers.OrderCompletedConfig{
		Location:      hoChiMinh(t),
		FailurePolicy: eventhandlers.FailurePolicyDrop,
	}, discardLogger())

	h.Process(context.Background(), completion(t, "ready"))

	n, err := queue.Len(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

type countingItems struct {
	inner   commands.ItemAggregator
	mu      sync.Mutex
	active  int
	maxSeen int
	calls   atomic.Int32
}

func (c *countingItems) Handle(ctx context.Context, cmd commands.AggregateItemReportCommand) (bool, error) {
	c.calls.Add(1)
	c.mu.Lock()
	c.active++
	c.maxSeen = max(c.maxSeen, c.active)
	c.mu.Unlock()

	time.Sleep(5 * time.Millisecond)

	c.mu.Lock()
	c.active--
	c.mu.Unlock()
	return c.inner.Handle(ctx, cmd)
}

func TestProcess_ItemConcurrencyLimit(t *testing.T) {
	f := newReportingFixture()
	items := &countingItems{inner: f.items}
	h := eventhandlers.NewOrderCompletedHandler(f.daily, items, nil, eventhandlers.OrderCompletedConfig{
		Location:        hoChiMinh(t),
		ItemConcurrency: 1,
	}, discardLogger())

	after := snapshotO1(t, contracts.OrderStatusCompleted)
	after.Items = append(after.Items, contracts.LineItemSnapshot{ItemID: "tea", Quantity: 1, Price: types.MoneyFromInt(15000)})

	result := h.Process(context.Background(), contracts.NewOrderUpdatedEvent("O1", nil, after))

	assert.Zero(t, result.FailedItems())
	assert.Equal(t, int32(3), items.calls.Load())
	assert.Equal(t, 1, items.maxSeen)
}

func TestProcess_DetachesFromCallerCancellation(t *testing.T) {
	f := newReportingFixture()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := f.handler(t).Process(ctx, completion(t, "ready"))

	assert.True(t, result.Succeeded())
	assert.Zero(t, result.FailedItems())
}
