package commands

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/rai/order-reporting/modules/reporting/domain"
	"github.com/rai/order-reporting/modules/shared/transaction"
	"github.com/rai/order-reporting/modules/shared/types"
)

// AggregateItemReportCommand folds one line of a completed order into the
// item's all-time report. Occurrence is OrderContribution.Occurrence of the
// line: how many earlier lines of the order carry the same item.
type AggregateItemReportCommand struct {
	OrderID    types.OrderID
	Occurrence int
	Item       domain.LineItem
}

type AggregateItemReportHandler struct {
	repo    domain.ItemReportRepository
	ledger  domain.ContributionLedger
	txScope transaction.Scope
	tracer  trace.Tracer
}

func NewAggregateItemReportHandler(
	repo domain.ItemReportRepository,
	ledger domain.ContributionLedger,
	txScope transaction.Scope,
) *AggregateItemReportHandler {
	return &AggregateItemReportHandler{
		repo:    repo,
		ledger:  ledger,
		txScope: txScope,
		tracer:  otel.Tracer(tracerName),
	}
}

// Handle touches exactly one item report document.
// It returns false when this line had already been applied.
func (h *AggregateItemReportHandler) Handle(ctx context.Context, cmd AggregateItemReportCommand) (bool, error) {
	if cmd.OrderID.IsZero() {
		return false, fmt.Errorf("invalid order ID: %w", types.ErrInvalidID)
	}
	if err := cmd.Item.Validate(); err != nil {
		return false, fmt.Errorf("invalid line item: %w", err)
	}
	if cmd.Occurrence < 0 {
		return false, fmt.Errorf("invalid occurrence %d", cmd.Occurrence)
	}

	ctx, span := h.tracer.Start(ctx, "reporting.AggregateItemReport", trace.WithAttributes(
		attribute.String("item.id", cmd.Item.ItemID.String()),
		attribute.String("order.id", cmd.OrderID.String()),
		attribute.Int("item.occurrence", cmd.Occurrence),
	))
	defer span.End()

	reportKey := domain.ItemReportKey(cmd.Item.ItemID)
	contributionID := domain.ItemContributionID(cmd.OrderID, cmd.Item.ItemID, cmd.Occurrence)

	applied, err := transaction.ExecuteWithResult(ctx, h.txScope, func(ctx context.Context) (bool, error) {
		claimed, err := h.ledger.Claim(ctx, reportKey, contributionID)
		if err != nil {
			return false, fmt.Errorf("claiming contribution: %w", err)
		}
		if !claimed {
			return false, nil
		}

		report, err := h.repo.FindByID(ctx, cmd.Item.ItemID)
		switch {
		case errors.Is(err, domain.ErrItemReportNotFound):
			report = domain.NewItemReport(cmd.Item)
		case err != nil:
			return false, fmt.Errorf("finding item report: %w", err)
		default:
			if err := report.Apply(cmd.Item); err != nil {
				return false, err
			}
		}

		if err := h.repo.Save(ctx, report); err != nil {
			return false, fmt.Errorf("saving item report: %w", err)
		}
		return true, nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "item aggregation failed")
		return false, &domain.AggregationError{
			Scope:   domain.ScopeItem,
			Key:     cmd.Item.ItemID.String(),
			OrderID: cmd.OrderID.String(),
			Err:     err,
		}
	}
	span.SetAttributes(attribute.Bool("report.applied", applied))
	return applied, nil
}
