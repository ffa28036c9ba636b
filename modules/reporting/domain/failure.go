package domain

import (
	"context"
	"time"
)

// FailedAggregation is a unit of aggregation work that did not commit.
// For ScopeItem, Contribution.Items[LineIndex] is the line to apply.
type FailedAggregation struct {
	Scope        ReportScope       `json:"scope"`
	Contribution OrderContribution `json:"contribution"`
	LineIndex    int               `json:"line_index"`
	Attempts     int               `json:"attempts"`
	LastError    string            `json:"last_error"`
	FailedAt     time.Time         `json:"failed_at"`
}

// Line returns the line item an item-scoped failure refers to.
func (f FailedAggregation) Line() (LineItem, bool) {
	if f.Scope != ScopeItem || f.LineIndex < 0 || f.LineIndex >= len(f.Contribution.Items) {
		return LineItem{}, false
	}
	return f.Contribution.Items[f.LineIndex], true
}

// QueuedFailure is a failure taken from the queue but not yet acknowledged.
// Receipt identifies the in-flight entry to the queue that issued it.
type QueuedFailure struct {
	FailedAggregation
	Receipt string
}

// RetryQueue durably holds failed aggregations until they are replayed.
//
// Dequeue moves entries to an in-flight list instead of deleting them. An
// entry leaves the in-flight list only through Ack, so a replay run that
// stops half way leaves its remaining entries for Recover.
type RetryQueue interface {
	Enqueue(ctx context.Context, failure FailedAggregation) error
	// Dequeue moves up to max failures, oldest first, to the in-flight list.
	// It may return entries together with an error.
	Dequeue(ctx context.Context, max int) ([]QueuedFailure, error)
	// Ack drops an in-flight entry once it was replayed, requeued or dead-lettered.
	Ack(ctx context.Context, entry QueuedFailure) error
	// DeadLetter parks a failure that will not be retried again.
	DeadLetter(ctx context.Context, failure FailedAggregation) error
	// Recover returns every in-flight entry to the head of the queue.
	Recover(ctx context.Context) (int, error)
}
