// Package orders provides the local view of upstream orders: it accepts order
// mutation events, serves order reads and archives old terminal orders.
// This is the public API for the orders bounded context.
package orders

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/rai/order-reporting/modules/orders/application/commands"
	"github.com/rai/order-reporting/modules/orders/application/queries"
	"github.com/rai/order-reporting/modules/orders/domain"
	httphandler "github.com/rai/order-reporting/modules/orders/infrastructure/http"
	"github.com/rai/order-reporting/modules/shared/events"
)

// Module is the public API for the orders bounded context.
// External communication: HTTP API (RegisterRoutes)
// Cross-module communication: Domain Events (published on order mutation)
type Module interface {
	// RegisterRoutes registers the module's HTTP routes to the given mux.
	RegisterRoutes(mux *http.ServeMux)
	// Sweep runs one archival sweep; scheduled by the host.
	Sweep(ctx context.Context, now time.Time) (int, error)
}

// Config holds the module configuration.
type Config struct {
	Repository     domain.OrderRepository
	Mirror         domain.OrderWriter // optional
	EventPublisher events.Publisher
	Logger         *slog.Logger

	ArchivalRetention  time.Duration
	ArchivalBatchLimit int
}

type module struct {
	publishUpdateHandler *commands.PublishOrderUpdateHandler
	archiveOrdersHandler *commands.ArchiveOrdersHandler
	getOrderHandler      *queries.GetOrderHandler
}

// New creates a new orders module.
func New(cfg Config) Module {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("module", "orders")

	return &module{
		publishUpdateHandler: commands.NewPublishOrderUpdateHandler(cfg.EventPublisher, cfg.Mirror),
		archiveOrdersHandler: commands.NewArchiveOrdersHandler(cfg.Repository, cfg.ArchivalRetention, cfg.ArchivalBatchLimit, logger),
		getOrderHandler:      queries.NewGetOrderHandler(cfg.Repository),
	}
}

func (m *module) RegisterRoutes(mux *http.ServeMux) {
	httphandler.RegisterRoutes(mux, m.publishUpdateHandler, m.archiveOrdersHandler, m.getOrderHandler)
}

func (m *module) Sweep(ctx context.Context, now time.Time) (int, error) {
	return m.archiveOrdersHandler.Handle(ctx, commands.ArchiveOrdersCommand{Now: now})
}
