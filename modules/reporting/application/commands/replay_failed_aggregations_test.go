package commands_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rai/order-reporting/modules/reporting/application/commands"
	"github.com/rai/order-reporting/modules/reporting/domain"
	"github.com/rai/order-reporting/modules/reporting/infrastructure/retryqueue"
)

type mockDailyAggregator struct {
	handleFn func(ctx context.Context, cmd commands.AggregateDailyReportCommand) (bool, error)
}

func (m *mockDailyAggregator) Handle(ctx context.Context, cmd commands.AggregateDailyReportCommand) (bool, error) {
	return m.handleFn(ctx, cmd)
}

type mockItemAggregator struct {
	handleFn func(ctx context.Context, cmd commands.AggregateItemReportCommand) (bool, error)
}

func (m *mockItemAggregator) Handle(ctx context.Context, cmd commands.AggregateItemReportCommand) (bool, error) {
	return m.handleFn(ctx, cmd)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestReplay_ReplaysDailyAndItemFailures(t *testing.T) {
	ctx := context.Background()
	queue := retryqueue.NewInMemoryQueue()
	c := orderO1(t)
	require.NoError(t, queue.Enqueue(ctx, domain.FailedAggregation{Scope: domain.ScopeDaily, Contribution: c, Attempts: 1}))
	require.NoError(t, queue.Enqueue(ctx, domain.FailedAggregation{Scope: domain.ScopeItem, Contribution: c, LineIndex: 1, Attempts: 1}))

	var dailyCalls int
	var replayedItem commands.AggregateItemReportCommand
	handler := commands.NewReplayFailedAggregationsHandler(queue,
		&mockDailyAggregator{handleFn: func(ctx context.Context, cmd commands.AggregateDailyReportCommand) (bool, error) {
			dailyCalls++
			assert.Equal(t, c.OrderID, cmd.Contribution.OrderID)
			return true, nil
		}},
		&mockItemAggregator{handleFn: func(ctx context.Context, cmd commands.AggregateItemReportCommand) (bool, error) {
			replayedItem = cmd
			return true, nil
		}},
		3, time.Second, discardLogger(),
	)

	result, err := handler.Handle(ctx, commands.ReplayFailedAggregationsCommand{Max: 10})

	require.NoError(t, err)
	assert.Equal(t, commands.ReplayResult{Replayed: 2}, result)
	assert.Equal(t, 1, dailyCalls)
	assert.Equal(t, 0, replayedItem.Occurrence)
	assert.Equal(t, "cake", replayedItem.Item.ItemID.String())

	n, err := queue.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestReplay_RequeuesUntilMaxAttemptsThenDeadLetters(t *testing.T) {
	ctx := context.Background()
	queue := retryqueue.NewInMemoryQueue()
	require.NoError(t, queue.Enqueue(ctx, domain.FailedAggregation{Scope: domain.ScopeDaily, Contribution: orderO1(t), Attempts: 1}))

	errStore := errors.New("store unavailable")
	handler := commands.NewReplayFailedAggregationsHandler(queue,
		&mockDailyAggregator{handleFn: func(ctx context.Context, cmd commands.AggregateDailyReportCommand) (bool, error) {
			return false, errStore
		}},
		nil, 3, 0, discardLogger(),
	)

	result, err := handler.Handle(ctx, commands.ReplayFailedAggregationsCommand{Max: 10})
	require.NoError(t, err)
	assert.Equal(t, commands.ReplayResult{Requeued: 1}, result)
	assert.Zero(t, queue.InFlight())

	pending, err := queue.Dequeue(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 2, pending[0].Attempts)
	assert.Equal(t, "store unavailable", pending[0].LastError)
	require.NoError(t, queue.Enqueue(ctx, pending[0].FailedAggregation))
	require.NoError(t, queue.Ack(ctx, pending[0]))

	result, err = handler.Handle(ctx, commands.ReplayFailedAggregationsCommand{Max: 10})
	require.NoError(t, err)
	assert.Equal(t, commands.ReplayResult{DeadLettered: 1}, result)
	require.Len(t, queue.DeadLetters(), 1)
	assert.Equal(t, 3, queue.DeadLetters()[0].Attempts)
}

func TestReplay_LineOutOfRangeIsNotReplayed(t *testing.T) {
	ctx := context.Background()
	queue := retryqueue.NewInMemoryQueue()
	require.NoError(t, queue.Enqueue(ctx, domain.FailedAggregation{Scope: domain.ScopeItem, Contribution: orderO1(t), LineIndex: 9, Attempts: 1}))

	handler := commands.NewReplayFailedAggregationsHandler(queue, nil,
		&mockItemAggregator{handleFn: func(ctx context.Context, cmd commands.AggregateItemReportCommand) (bool, error) {
			t.Fatal("item aggregator should not be called for a missing line")
			return false, nil
		}},
		1, 0, discardLogger(),
	)

	result, err := handler.Handle(ctx, commands.ReplayFailedAggregationsCommand{Max: 10})

	require.NoError(t, err)
	assert.Equal(t, commands.ReplayResult{DeadLettered: 1}, result)
}

func TestReplay_ZeroMaxDoesNothing(t *testing.T) {
	handler := commands.NewReplayFailedAggregationsHandler(nil, nil, nil, 1, 0, discardLogger())

	result, err := handler.Handle(context.Background(), commands.ReplayFailedAggregationsCommand{})

	require.NoError(t, err)
	assert.Equal(t, commands.ReplayResult{}, result)
}

// flakyQueue fails the first Enqueue call and delegates everything else.
type flakyQueue struct {
	*retryqueue.InMemoryQueue
	enqueueCalls int
}

func (q *flakyQueue) Enqueue(ctx context.Context, failure domain.FailedAggregation) error {
	q.enqueueCalls++
	if q.enqueueCalls == 1 {
		return errors.New("connection reset")
	}
	return q.InMemoryQueue.Enqueue(ctx, failure)
}

func TestReplay_RequeueFailureKeepsEntryInFlight(t *testing.T) {
	ctx := context.Background()
	inner := retryqueue.NewInMemoryQueue()
	for _, c := range []domain.OrderContribution{orderO1(t), orderO2(t), orderO1(t)} {
		require.NoError(t, inner.Enqueue(ctx, domain.FailedAggregation{Scope: domain.ScopeDaily, Contribution: c, Attempts: 1}))
	}
	queue := &flakyQueue{InMemoryQueue: inner}

	handler := commands.NewReplayFailedAggregationsHandler(queue,
		&mockDailyAggregator{handleFn: func(ctx context.Context, cmd commands.AggregateDailyReportCommand) (bool, error) {
			return false, errors.New("store unavailable")
		}},
		nil, 5, 0, discardLogger(),
	)

	result, err := handler.Handle(ctx, commands.ReplayFailedAggregationsCommand{Max: 10})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.Equal(t, commands.ReplayResult{Requeued: 2}, result)
	assert.Equal(t, 1, inner.InFlight())

	n, err := inner.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	recovered, err := inner.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, recovered)

	n, err = inner.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.Empty(t, inner.DeadLetters())
}

func TestReplay_RecoversEntriesLeftInFlight(t *testing.T) {
	ctx := context.Background()
	queue := retryqueue.NewInMemoryQueue()
	require.NoError(t, queue.Enqueue(ctx, domain.FailedAggregation{Scope: domain.ScopeDaily, Contribution: orderO1(t), Attempts: 1}))
	_, err := queue.Dequeue(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, 1, queue.InFlight())

	var calls int
	handler := commands.NewReplayFailedAggregationsHandler(queue,
		&mockDailyAggregator{handleFn: func(ctx context.Context, cmd commands.AggregateDailyReportCommand) (bool, error) {
			calls++
			return true, nil
		}},
		nil, 3, 0, discardLogger(),
	)

	result, err := handler.Handle(ctx, commands.ReplayFailedAggregationsCommand{Max: 10})

	require.NoError(t, err)
	assert.Equal(t, commands.ReplayResult{Replayed: 1, Recovered: 1}, result)
	assert.Equal(t, 1, calls)
	assert.Zero(t, queue.InFlight())
}

func TestReplay_CancellationLeavesEntriesInFlight(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	queue := retryqueue.NewInMemoryQueue()
	for _, c := range []domain.OrderContribution{orderO1(t), orderO2(t)} {
		require.NoError(t, queue.Enqueue(ctx, domain.FailedAggregation{Scope: domain.ScopeDaily, Contribution: c, Attempts: 1}))
	}

	handler := commands.NewReplayFailedAggregationsHandler(queue,
		&mockDailyAggregator{handleFn: func(ctx context.Context, cmd commands.AggregateDailyReportCommand) (bool, error) {
			cancel()
			return false, ctx.Err()
		}},
		nil, 3, 0, discardLogger(),
	)

	result, err := handler.Handle(ctx, commands.ReplayFailedAggregationsCommand{Max: 10})

	require.NoError(t, err)
	assert.Equal(t, commands.ReplayResult{}, result)
	assert.Equal(t, 2, queue.InFlight())

	recovered, err := queue.Recover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, recovered)

	pending, err := queue.Dequeue(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "O1", pending[0].Contribution.OrderID.String())
	for _, p := range pending {
		assert.Equal(t, 1, p.Attempts)
	}
}

func TestReplay_EachUnitRunsUnderTxTimeout(t *testing.T) {
	ctx := context.Background()
	queue := retryqueue.NewInMemoryQueue()
	require.NoError(t, queue.Enqueue(ctx, domain.FailedAggregation{Scope: domain.ScopeDaily, Contribution: orderO1(t), Attempts: 1}))
	require.NoError(t, queue.Enqueue(ctx, domain.FailedAggregation{Scope: domain.ScopeItem, Contribution: orderO1(t), LineIndex: 0, Attempts: 1}))

	assertDeadline := func(ctx context.Context) {
		deadline, ok := ctx.Deadline()
		require.True(t, ok)
		assert.WithinDuration(t, time.Now().Add(50*time.Millisecond), deadline, 50*time.Millisecond)
	}
	handler := commands.NewReplayFailedAggregationsHandler(queue,
		&mockDailyAggregator{handleFn: func(ctx context.Context, cmd commands.AggregateDailyReportCommand) (bool, error) {
			assertDeadline(ctx)
			return true, nil
		}},
		&mockItemAggregator{handleFn: func(ctx context.Context, cmd commands.AggregateItemReportCommand) (bool, error) {
			assertDeadline(ctx)
			return true, nil
		}},
		3, 50*time.Millisecond, discardLogger(),
	)

	result, err := handler.Handle(ctx, commands.ReplayFailedAggregationsCommand{Max: 10})

	require.NoError(t, err)
	assert.Equal(t, commands.ReplayResult{Replayed: 2}, result)
}

func TestReplay_TimedOutUnitIsRequeued(t *testing.T) {
	ctx := context.Background()
	queue := retryqueue.NewInMemoryQueue()
	require.NoError(t, queue.Enqueue(ctx, domain.FailedAggregation{Scope: domain.ScopeDaily, Contribution: orderO1(t), Attempts: 1}))

	handler := commands.NewReplayFailedAggregationsHandler(queue,
		&mockDailyAggregator{handleFn: func(ctx context.Context, cmd commands.AggregateDailyReportCommand) (bool, error) {
			<-ctx.Done()
			return false, ctx.Err()
		}},
		nil, 3, 10*time.Millisecond, discardLogger(),
	)

	result, err := handler.Handle(ctx, commands.ReplayFailedAggregationsCommand{Max: 10})

	require.NoError(t, err)
	assert.Equal(t, commands.ReplayResult{Requeued: 1}, result)

	pending, err := queue.Dequeue(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, context.DeadlineExceeded.Error(), pending[0].LastError)
}
