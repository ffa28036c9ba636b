package retryqueue

import (
	"context"
	"slices"
	"strconv"
	"sync"

	"github.com/rai/order-reporting/modules/reporting/domain"
)

// InMemoryQueue is a process-local queue. Its contents are lost on restart.
type InMemoryQueue struct {
	mu       sync.Mutex
	pending  []domain.FailedAggregation
	inFlight []domain.QueuedFailure
	dead     []domain.FailedAggregation
	seq      int
}

func NewInMemoryQueue() *InMemoryQueue {
	return &InMemoryQueue{}
}

func (q *InMemoryQueue) Enqueue(ctx context.Context, failure domain.FailedAggregation) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, failure)
	return nil
}

func (q *InMemoryQueue) Dequeue(ctx context.Context, max int) ([]domain.QueuedFailure, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := min(max, len(q.pending))
	if n <= 0 {
		return nil, nil
	}
	out := make([]domain.QueuedFailure, 0, n)
	for _, failure := range q.pending[:n] {
		q.seq++
		out = append(out, domain.QueuedFailure{FailedAggregation: failure, Receipt: strconv.Itoa(q.seq)})
	}
	q.pending = slices.Clone(q.pending[n:])
	q.inFlight = append(q.inFlight, out...)
	return out, nil
}

func (q *InMemoryQueue) Ack(ctx context.Context, entry domain.QueuedFailure) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.inFlight = slices.DeleteFunc(q.inFlight, func(e domain.QueuedFailure) bool {
		return e.Receipt == entry.Receipt
	})
	return nil
}

func (q *InMemoryQueue) DeadLetter(ctx context.Context, failure domain.FailedAggregation) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.dead = append(q.dead, failure)
	return nil
}

func (q *InMemoryQueue) Recover(ctx context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.inFlight)
	restored := make([]domain.FailedAggregation, 0, n+len(q.pending))
	for _, e := range q.inFlight {
		restored = append(restored, e.FailedAggregation)
	}
	q.pending = append(restored, q.pending...)
	q.inFlight = nil
	return n, nil
}

// Len reports the number of queued failures, not counting in-flight ones.
func (q *InMemoryQueue) Len(ctx context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.pending)), nil
}

// InFlight reports the number of dequeued, unacknowledged failures.
func (q *InMemoryQueue) InFlight() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.inFlight)
}

// DeadLetters returns a copy of the parked failures.
func (q *InMemoryQueue) DeadLetters() []domain.FailedAggregation {
	q.mu.Lock()
	defer q.mu.Unlock()
	return slices.Clone(q.dead)
}

var _ domain.RetryQueue = (*InMemoryQueue)(nil)
