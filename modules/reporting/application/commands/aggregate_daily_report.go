// Package commands holds the write side of the reporting module: the
// aggregators that fold completed orders into report documents.
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
)

const tracerName = "github.com/rai/order-reporting/modules/reporting"

// AggregateDailyReportCommand folds one completed order into its daily report.
type AggregateDailyReportCommand struct {
	Contribution domain.OrderContribution
}

type AggregateDailyReportHandler struct {
	repo    domain.DailyReportRepository
	ledger  domain.ContributionLedger
	txScope transaction.Scope
	tracer  trace.Tracer
}

func NewAggregateDailyReportHandler(
	repo domain.DailyReportRepository,
	ledger domain.ContributionLedger,
	txScope transaction.Scope,
) *AggregateDailyReportHandler {
	return &AggregateDailyReportHandler{
		repo:    repo,
		ledger:  ledger,
		txScope: txScope,
		tracer:  otel.Tracer(tracerName),
	}
}

// Handle creates or updates the report in a single read-write transaction.
// It returns false when the order had already been folded into the report.
// Commit failures are returned as *domain.AggregationError.
func (h *AggregateDailyReportHandler) Handle(ctx context.Context, cmd AggregateDailyReportCommand) (bool, error) {
	c := cmd.Contribution
	if err := c.Validate(); err != nil {
		return false, fmt.Errorf("invalid contribution: %w", err)
	}

	ctx, span := h.tracer.Start(ctx, "reporting.AggregateDailyReport", trace.WithAttributes(
		attribute.String("report.date", c.Date.String()),
		attribute.String("order.id", c.OrderID.String()),
	))
	defer span.End()

	reportKey := domain.DailyReportKey(c.Date)
	applied, err := transaction.ExecuteWithResult(ctx, h.txScope, func(ctx context.Context) (bool, error) {
		claimed, err := h.ledger.Claim(ctx, reportKey, domain.DailyContributionID(c.OrderID))
		if err != nil {
			return false, fmt.Errorf("claiming contribution: %w", err)
		}
		if !claimed {
			return false, nil
		}

		report, err := h.repo.FindByDate(ctx, c.Date)
		switch {
		case errors.Is(err, domain.ErrDailyReportNotFound):
			report = domain.NewDailyReport(c)
		case err != nil:
			return false, fmt.Errorf("finding daily report: %w", err)
		default:
			if err := report.Apply(c); err != nil {
				return false, err
			}
		}

		if err := h.repo.Save(ctx, report); err != nil {
			return false, fmt.Errorf("saving daily report: %w", err)
		}
		return true, nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "daily aggregation failed")
		return false, &domain.AggregationError{
			Scope:   domain.ScopeDaily,
			Key:     c.Date.String(),
			OrderID: c.OrderID.String(),
			Err:     err,
		}
	}
	span.SetAttributes(attribute.Bool("report.applied", applied))
	return applied, nil
}
