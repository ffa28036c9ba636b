package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rai/order-reporting/modules/reporting/domain"
)

// DailyAggregator is satisfied by *AggregateDailyReportHandler.
type DailyAggregator interface {
	Handle(ctx context.Context, cmd AggregateDailyReportCommand) (bool, error)
}

// ItemAggregator is satisfied by *AggregateItemReportHandler.
type ItemAggregator interface {
	Handle(ctx context.Context, cmd AggregateItemReportCommand) (bool, error)
}

type ReplayFailedAggregationsCommand struct {
	// Max bounds how many queued failures one run replays.
	Max int
}

type ReplayResult struct {
	Replayed     int
	Requeued     int
	DeadLettered int
	// Recovered counts entries a previous run left in flight.
	Recovered int
}

// ReplayFailedAggregationsHandler re-runs aggregations that failed earlier.
// The contribution ledger makes a replay of an already committed unit a no-op.
//
// An entry is acknowledged only after its outcome is durable: replayed,
// re-enqueued or dead-lettered. Anything else stays in flight and is moved
// back to the queue at the start of the next run.
type ReplayFailedAggregationsHandler struct {
	queue       domain.RetryQueue
	daily       DailyAggregator
	items       ItemAggregator
	maxAttempts int
	txTimeout   time.Duration
	logger      *slog.Logger
	now         func() time.Time
}

func NewReplayFailedAggregationsHandler(
	queue domain.RetryQueue,
	daily DailyAggregator,
	items ItemAggregator,
	maxAttempts int,
	txTimeout time.Duration,
	logger *slog.Logger,
) *ReplayFailedAggregationsHandler {
	return &ReplayFailedAggregationsHandler{
		queue:       queue,
		daily:       daily,
		items:       items,
		maxAttempts: maxAttempts,
		txTimeout:   txTimeout,
		logger:      logger,
		now:         time.Now,
	}
}

func (h *ReplayFailedAggregationsHandler) Handle(ctx context.Context, cmd ReplayFailedAggregationsCommand) (ReplayResult, error) {
	var result ReplayResult
	if cmd.Max <= 0 {
		return result, nil
	}

	recovered, err := h.queue.Recover(ctx)
	if err != nil {
		return result, fmt.Errorf("recovering in-flight aggregations: %w", err)
	}
	if recovered > 0 {
		h.logger.Warn("recovered unacknowledged aggregations", slog.Int("count", recovered))
	}
	result.Recovered = recovered

	var errs []error
	entries, err := h.queue.Dequeue(ctx, cmd.Max)
	if err != nil {
		errs = append(errs, fmt.Errorf("dequeuing failed aggregations: %w", err))
	}

	// Queue writes must land even when the run is being cancelled.
	writeCtx := context.WithoutCancel(ctx)

	for _, entry := range entries {
		if ctx.Err() != nil {
			break
		}

		replayErr := h.replay(ctx, entry.FailedAggregation)
		if replayErr != nil && ctx.Err() != nil {
			// Interrupted, not failed. The entry stays in flight untouched.
			break
		}

		if replayErr == nil {
			result.Replayed++
		} else {
			outcome, err := h.reschedule(writeCtx, entry.FailedAggregation, replayErr)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			switch outcome {
			case outcomeDeadLettered:
				result.DeadLettered++
			case outcomeRequeued:
				result.Requeued++
			}
		}

		if err := h.queue.Ack(writeCtx, entry); err != nil {
			errs = append(errs, fmt.Errorf("acknowledging aggregation for order %s: %w", entry.Contribution.OrderID, err))
		}
	}
	return result, errors.Join(errs...)
}

type outcome int

const (
	outcomeRequeued outcome = iota
	outcomeDeadLettered
)

func (h *ReplayFailedAggregationsHandler) reschedule(ctx context.Context, failure domain.FailedAggregation, replayErr error) (outcome, error) {
	failure.Attempts++
	failure.LastError = replayErr.Error()
	failure.FailedAt = h.now().UTC()

	if failure.Attempts >= h.maxAttempts {
		h.logger.Error("aggregation moved to dead letter",
			slog.String("scope", string(failure.Scope)),
			slog.String("order_id", failure.Contribution.OrderID.String()),
			slog.Int("attempts", failure.Attempts),
			slog.Any("error", replayErr),
		)
		if err := h.queue.DeadLetter(ctx, failure); err != nil {
			return outcomeDeadLettered, fmt.Errorf("dead-lettering aggregation for order %s: %w", failure.Contribution.OrderID, err)
		}
		return outcomeDeadLettered, nil
	}

	if err := h.queue.Enqueue(ctx, failure); err != nil {
		return outcomeRequeued, fmt.Errorf("re-enqueuing aggregation for order %s: %w", failure.Contribution.OrderID, err)
	}
	return outcomeRequeued, nil
}

func (h *ReplayFailedAggregationsHandler) replay(ctx context.Context, failure domain.FailedAggregation) error {
	if h.txTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.txTimeout)
		defer cancel()
	}

	switch failure.Scope {
	case domain.ScopeDaily:
		_, err := h.daily.Handle(ctx, AggregateDailyReportCommand{Contribution: failure.Contribution})
		return err
	case domain.ScopeItem:
		line, ok := failure.Line()
		if !ok {
			return fmt.Errorf("line %d out of range for order %s", failure.LineIndex, failure.Contribution.OrderID)
		}
		_, err := h.items.Handle(ctx, AggregateItemReportCommand{
			OrderID:    failure.Contribution.OrderID,
			Occurrence: failure.Contribution.Occurrence(failure.LineIndex),
			Item:       line,
		})
		return err
	default:
		return fmt.Errorf("unknown aggregation scope %q", failure.Scope)
	}
}
