// Package reporting maintains the daily and per-item sales reports derived
// from completed orders.
package reporting

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/rai/order-reporting/modules/reporting/application/commands"
	"github.com/rai/order-reporting/modules/reporting/application/eventhandlers"
	"github.com/rai/order-reporting/modules/reporting/application/queries"
	"github.com/rai/order-reporting/modules/reporting/domain"
	httphandler "github.com/rai/order-reporting/modules/reporting/infrastructure/http"
	"github.com/rai/order-reporting/modules/shared/events"
	"github.com/rai/order-reporting/modules/shared/events/contracts"
	"github.com/rai/order-reporting/modules/shared/transaction"
)

// Module is the public API for the reporting bounded context.
// External communication: HTTP API (RegisterRoutes)
// Cross-module communication: Domain Events (subscribed internally)
type Module interface {
	RegisterRoutes(mux *http.ServeMux)
	// ReplayFailed re-runs queued aggregation failures; scheduled by the host.
	ReplayFailed(ctx context.Context) (commands.ReplayResult, error)
}

type Config struct {
	DailyRepository domain.DailyReportRepository
	ItemRepository  domain.ItemReportRepository
	Ledger          domain.ContributionLedger
	TxScope         transaction.Scope
	RetryQueue      domain.RetryQueue
	EventSubscriber events.Subscriber
	Logger          *slog.Logger

	Location         *time.Location
	TxTimeout        time.Duration
	ItemConcurrency  int
	FailurePolicy    eventhandlers.FailurePolicy
	RetryBatch       int
	RetryMaxAttempts int
}

type module struct {
	replay     *commands.ReplayFailedAggregationsHandler
	retryBatch int
	getDaily   *queries.GetDailyReportHandler
	listDaily  *queries.ListDailyReportsHandler
	getItem    *queries.GetItemReportHandler
	listTop    *queries.ListTopItemsHandler
}

// New creates the reporting module and subscribes it to order updates.
func New(cfg Config) Module {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("module", "reporting")

	dailyAggregator := commands.NewAggregateDailyReportHandler(cfg.DailyRepository, cfg.Ledger, cfg.TxScope)
	itemAggregator := commands.NewAggregateItemReportHandler(cfg.ItemRepository, cfg.Ledger, cfg.TxScope)

	if cfg.EventSubscriber != nil {
		completed := eventhandlers.NewOrderCompletedHandler(dailyAggregator, itemAggregator, cfg.RetryQueue, eventhandlers.OrderCompletedConfig{
			Location:        cfg.Location,
			TxTimeout:       cfg.TxTimeout,
			ItemConcurrency: cfg.ItemConcurrency,
			FailurePolicy:   cfg.FailurePolicy,
		}, logger)
		if err := cfg.EventSubscriber.Subscribe(contracts.OrderUpdatedEventType, completed); err != nil {
			logger.Error("failed to subscribe to order updated event", slog.Any("error", err))
		}
	}

	m := &module{
		retryBatch: cfg.RetryBatch,
		getDaily:   queries.NewGetDailyReportHandler(cfg.DailyRepository),
		listDaily:  queries.NewListDailyReportsHandler(cfg.DailyRepository),
		getItem:    queries.NewGetItemReportHandler(cfg.ItemRepository),
		listTop:    queries.NewListTopItemsHandler(cfg.ItemRepository),
	}
	if cfg.RetryQueue != nil {
		m.replay = commands.NewReplayFailedAggregationsHandler(cfg.RetryQueue, dailyAggregator, itemAggregator, cfg.RetryMaxAttempts, cfg.TxTimeout, logger)
	}
	return m
}

func (m *module) RegisterRoutes(mux *http.ServeMux) {
	httphandler.RegisterRoutes(mux, m.getDaily, m.listDaily, m.getItem, m.listTop)
}

func (m *module) ReplayFailed(ctx context.Context) (commands.ReplayResult, error) {
	if m.replay == nil {
		return commands.ReplayResult{}, nil
	}
	return m.replay.Handle(ctx, commands.ReplayFailedAggregationsCommand{Max: m.retryBatch})
}
