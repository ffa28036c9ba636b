// Package eventhandlers reacts to order events published by the orders module.
package eventhandlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rai/order-reporting/modules/reporting/application/commands"
	"github.com/rai/order-reporting/modules/reporting/domain"
	"github.com/rai/order-reporting/modules/shared/events"
	"github.com/rai/order-reporting/modules/shared/events/contracts"
	"github.com/rai/order-reporting/modules/shared/types"
)

// FailurePolicy decides what happens to an aggregation that did not commit.
type FailurePolicy string

const (
	// FailurePolicyDrop logs the failure; the contribution is lost until redelivered.
	FailurePolicyDrop FailurePolicy = "drop"
	// FailurePolicyRetry parks the failure in the retry queue for the replay job.
	FailurePolicyRetry FailurePolicy = "retry"
)

type OrderCompletedConfig struct {
	Location        *time.Location
	TxTimeout       time.Duration
	ItemConcurrency int // 0 means unbounded
	FailurePolicy   FailurePolicy
}

// ItemResult is the outcome of one line item's aggregation.
type ItemResult struct {
	LineIndex int
	ItemID    types.ItemID
	Applied   bool
	Err       error
}

// CompletionResult is the outcome of one completion event.
// Daily and item outcomes are independent of each other.
type CompletionResult struct {
	OrderID      types.OrderID
	Skipped      bool
	Invalid      error
	Date         domain.DateKey
	DailyApplied bool
	Daily        error
	Items        []ItemResult
}

// Succeeded reports whether the daily report update committed.
func (r CompletionResult) Succeeded() bool {
	return !r.Skipped && r.Invalid == nil && r.Daily == nil
}

// FailedItems counts the line items whose aggregation failed.
func (r CompletionResult) FailedItems() int {
	n := 0
	for _, item := range r.Items {
		if item.Err != nil {
			n++
		}
	}
	return n
}

// OrderCompletedHandler folds an order into the daily and item reports when
// it transitions into the completed status.
type OrderCompletedHandler struct {
	daily  commands.DailyAggregator
	items  commands.ItemAggregator
	queue  domain.RetryQueue
	cfg    OrderCompletedConfig
	logger *slog.Logger
	now    func() time.Time
}

func NewOrderCompletedHandler(
	daily commands.DailyAggregator,
	items commands.ItemAggregator,
	queue domain.RetryQueue,
	cfg OrderCompletedConfig,
	logger *slog.Logger,
) *OrderCompletedHandler {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.FailurePolicy == "" {
		cfg.FailurePolicy = FailurePolicyDrop
	}
	return &OrderCompletedHandler{
		daily:  daily,
		items:  items,
		queue:  queue,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// Handle is the event bus entry point. Aggregation failures are logged and
// never returned to the publisher.
func (h *OrderCompletedHandler) Handle(ctx context.Context, event events.Event) error {
	orderEvent, ok := event.(contracts.OrderUpdatedEvent)
	if !ok {
		return fmt.Errorf("unexpected event type: %T", event)
	}

	result := h.Process(ctx, orderEvent)
	switch {
	case result.Skipped:
	case result.Invalid != nil:
		h.logger.Error("rejected completed order",
			slog.String("order_id", orderEvent.OrderID),
			slog.Any("error", result.Invalid),
		)
	default:
		h.logger.Info("aggregated completed order",
			slog.String("order_id", result.OrderID.String()),
			slog.String("date", result.Date.String()),
			slog.Bool("daily_ok", result.Daily == nil),
			slog.Int("items", len(result.Items)),
			slog.Int("items_failed", result.FailedItems()),
		)
	}
	return nil
}

// Process runs the aggregation pipeline for one order update and reports
// every unit's outcome. Only a transition into completed does any work.
func (h *OrderCompletedHandler) Process(ctx context.Context, event contracts.OrderUpdatedEvent) CompletionResult {
	if !event.TransitionedTo(contracts.OrderStatusCompleted) {
		return CompletionResult{Skipped: true}
	}

	contribution, err := h.contributionFrom(event.After)
	if err != nil {
		return CompletionResult{Invalid: err}
	}

	// Work continues after the publisher returns or gives up.
	ctx = context.WithoutCancel(ctx)

	result := CompletionResult{
		OrderID: contribution.OrderID,
		Date:    contribution.Date,
		Items:   make([]ItemResult, len(contribution.Items)),
	}

	result.DailyApplied, result.Daily = h.aggregateDaily(ctx, contribution)
	if result.Daily != nil {
		h.handleFailure(ctx, domain.FailedAggregation{
			Scope:        domain.ScopeDaily,
			Contribution: contribution,
		}, result.Daily)
	}

	var g errgroup.Group
	if h.cfg.ItemConcurrency > 0 {
		g.SetLimit(h.cfg.ItemConcurrency)
	}
	for i, item := range contribution.Items {
		g.Go(func() error {
			applied, err := h.aggregateItem(ctx, contribution.OrderID, contribution.Occurrence(i), item)
			result.Items[i] = ItemResult{LineIndex: i, ItemID: item.ItemID, Applied: applied, Err: err}
			if err != nil {
				h.handleFailure(ctx, domain.FailedAggregation{
					Scope:        domain.ScopeItem,
					Contribution: contribution,
					LineIndex:    i,
				}, err)
			}
			// Siblings keep running when one item fails.
			return nil
		})
	}
	_ = g.Wait()

	return result
}

func (h *OrderCompletedHandler) aggregateDaily(ctx context.Context, c domain.OrderContribution) (bool, error) {
	ctx, cancel := h.unitContext(ctx)
	defer cancel()
	return h.daily.Handle(ctx, commands.AggregateDailyReportCommand{Contribution: c})
}

func (h *OrderCompletedHandler) aggregateItem(ctx context.Context, orderID types.OrderID, occurrence int, item domain.LineItem) (bool, error) {
	ctx, cancel := h.unitContext(ctx)
	defer cancel()
	return h.items.Handle(ctx, commands.AggregateItemReportCommand{
		OrderID:    orderID,
		Occurrence: occurrence,
		Item:       item,
	})
}

func (h *OrderCompletedHandler) unitContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if h.cfg.TxTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, h.cfg.TxTimeout)
}

func (h *OrderCompletedHandler) handleFailure(ctx context.Context, failure domain.FailedAggregation, cause error) {
	attrs := []any{
		slog.String("scope", string(failure.Scope)),
		slog.String("order_id", failure.Contribution.OrderID.String()),
		slog.Any("error", cause),
	}
	var aggErr *domain.AggregationError
	if errors.As(cause, &aggErr) {
		attrs = append(attrs, slog.String("report_key", aggErr.Key), slog.Bool("conflict_exhausted", aggErr.ConflictExhausted()))
	}
	if failure.Scope == domain.ScopeItem {
		attrs = append(attrs, slog.Int("line_index", failure.LineIndex))
	}

	if h.cfg.FailurePolicy != FailurePolicyRetry || h.queue == nil {
		h.logger.Error("aggregation failed", append(attrs, slog.Bool("contribution_lost", true))...)
		return
	}

	failure.Attempts = 1
	failure.LastError = cause.Error()
	failure.FailedAt = h.now().UTC()
	if err := h.queue.Enqueue(ctx, failure); err != nil {
		h.logger.Error("aggregation failed and could not be queued for retry",
			append(attrs, slog.Any("queue_error", err), slog.Bool("contribution_lost", true))...)
		return
	}
	h.logger.Warn("aggregation failed, queued for retry", attrs...)
}

// contributionFrom derives the report contribution from the completed snapshot.
func (h *OrderCompletedHandler) contributionFrom(after contracts.OrderSnapshot) (domain.OrderContribution, error) {
	orderID, err := types.ParseOrderID(after.ID)
	if err != nil {
		return domain.OrderContribution{}, fmt.Errorf("order id %q: %w", after.ID, err)
	}

	items := make([]domain.LineItem, 0, len(after.Items))
	for i, snapshot := range after.Items {
		itemID, err := types.ParseItemID(snapshot.ItemID)
		if err != nil {
			return domain.OrderContribution{}, fmt.Errorf("line %d item id %q: %w", i, snapshot.ItemID, err)
		}
		items = append(items, domain.LineItem{
			ItemID:   itemID,
			Quantity: snapshot.Quantity,
			Price:    snapshot.Price,
		})
	}

	date, hour := domain.BucketOf(after.CreatedAt, h.cfg.Location)
	c := domain.OrderContribution{
		OrderID:     orderID,
		Date:        date,
		Hour:        hour,
		TotalAmount: after.TotalAmount,
		Items:       items,
	}
	if err := c.Validate(); err != nil {
		return domain.OrderContribution{}, err
	}
	return c, nil
}
