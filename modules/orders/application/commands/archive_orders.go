// Package commands contains write use cases for the orders module.
package commands

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/rai/order-reporting/modules/orders/domain"
)

// ArchiveOrdersCommand runs one archival sweep as of Now.
type ArchiveOrdersCommand struct {
	Now time.Time
}

// ArchiveOrdersHandler moves old terminal orders from the live collection to
// the archive. One sweep handles at most one page of orders; the next sweep
// picks up whatever remains.
type ArchiveOrdersHandler struct {
	repo       domain.OrderRepository
	retention  time.Duration
	batchLimit int
	logger     *slog.Logger
	tracer     trace.Tracer
}

func NewArchiveOrdersHandler(repo domain.OrderRepository, retention time.Duration, batchLimit int, logger *slog.Logger) *ArchiveOrdersHandler {
	return &ArchiveOrdersHandler{
		repo:       repo,
		retention:  retention,
		batchLimit: batchLimit,
		logger:     logger,
		tracer:     otel.Tracer("github.com/rai/order-reporting/modules/orders"),
	}
}

// Handle returns the number of orders archived. An empty selection is a
// silent no-op. A failed batch returns *domain.ArchivalError and leaves every
// selected order live.
func (h *ArchiveOrdersHandler) Handle(ctx context.Context, cmd ArchiveOrdersCommand) (int, error) {
	cutoff := cmd.Now.Add(-h.retention)

	ctx, span := h.tracer.Start(ctx, "orders.ArchiveOrders", trace.WithAttributes(
		attribute.String("archival.cutoff", cutoff.UTC().Format(time.RFC3339)),
	))
	defer span.End()

	candidates, err := h.repo.FindArchivable(ctx, cutoff, domain.TerminalStatuses(), h.batchLimit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "selecting orders failed")
		return 0, fmt.Errorf("finding archivable orders: %w", err)
	}

	selected := make([]*domain.Order, 0, len(candidates))
	for _, order := range candidates {
		if order.Archivable(cutoff) {
			selected = append(selected, order)
		}
	}
	if len(selected) == 0 {
		return 0, nil
	}

	if err := h.repo.Archive(ctx, selected); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "archival batch failed")
		return 0, &domain.ArchivalError{Selected: len(selected), Err: err}
	}

	span.SetAttributes(attribute.Int("archival.count", len(selected)))
	h.logger.Info("archived orders",
		slog.Int("count", len(selected)),
		slog.Time("cutoff", cutoff),
	)
	return len(selected), nil
}
