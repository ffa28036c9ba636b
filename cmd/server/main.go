// Package main is the entry point for the order reporting service.
// It wires together all modules, the scheduled jobs and the HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	goredis "github.com/redis/go-redis/v9"

	"github.com/rai/order-reporting/internal/config"
	"github.com/rai/order-reporting/internal/platform/eventbus"
	"github.com/rai/order-reporting/internal/platform/httpserver"
	"github.com/rai/order-reporting/internal/platform/memstore"
	"github.com/rai/order-reporting/internal/platform/scheduler"
	"github.com/rai/order-reporting/internal/platform/spanner"
	"github.com/rai/order-reporting/internal/platform/telemetry"
	"github.com/rai/order-reporting/modules/notifications"
	"github.com/rai/order-reporting/modules/orders"
	ordersdomain "github.com/rai/order-reporting/modules/orders/domain"
	orderspersistence "github.com/rai/order-reporting/modules/orders/infrastructure/persistence"
	"github.com/rai/order-reporting/modules/reporting"
	"github.com/rai/order-reporting/modules/reporting/application/eventhandlers"
	reportingdomain "github.com/rai/order-reporting/modules/reporting/domain"
	reportingpersistence "github.com/rai/order-reporting/modules/reporting/infrastructure/persistence"
	"github.com/rai/order-reporting/modules/reporting/infrastructure/retryqueue"
	"github.com/rai/order-reporting/modules/shared/transaction"
)

func main() {
	if err := run(); err != nil {
		slog.Error("application error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(".env")
	if err != nil {
		return err
	}

	level, _ := cfg.SlogLevel()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	logger.Info("starting order reporting service",
		slog.String("backend", cfg.Backend),
		slog.String("timezone", cfg.Reports.Location().String()),
		slog.String("failure_policy", cfg.Reports.FailurePolicy),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: cfg.Telemetry.ServiceName,
		Exporter:    cfg.Telemetry.Exporter,
	}, logger)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Error("failed to flush traces", slog.Any("error", err))
		}
	}()

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.close()

	queue, closeQueue, err := openRetryQueue(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeQueue()

	// Initialize event bus (for inter-module communication)
	eventBus := eventbus.New(logger)

	// Each module subscribes to events it cares about internally
	ordersModule := orders.New(orders.Config{
		Repository:         st.orders,
		Mirror:             st.mirror,
		EventPublisher:     eventBus,
		Logger:             logger,
		ArchivalRetention:  cfg.Archival.Retention,
		ArchivalBatchLimit: cfg.Archival.BatchLimit,
	})

	reportingModule := reporting.New(reporting.Config{
		DailyRepository:  st.dailyReports,
		ItemRepository:   st.itemReports,
		Ledger:           st.ledger,
		TxScope:          st.txScope,
		RetryQueue:       queue,
		EventSubscriber:  eventBus,
		Logger:           logger,
		Location:         cfg.Reports.Location(),
		TxTimeout:        cfg.Reports.TxTimeout,
		ItemConcurrency:  cfg.Reports.ItemConcurrency,
		FailurePolicy:    eventhandlers.FailurePolicy(cfg.Reports.FailurePolicy),
		RetryBatch:       cfg.Reports.RetryBatch,
		RetryMaxAttempts: cfg.Reports.RetryMaxAttempts,
	})

	_ = notifications.New(notifications.Config{
		EventSubscriber: eventBus,
		Logger:          logger,
	})

	jobs := scheduler.New(cfg.Reports.Location(), logger.With("component", "scheduler"))
	if err := jobs.Add("archival_sweep", cfg.Archival.Schedule, func(ctx context.Context) error {
		_, err := ordersModule.Sweep(ctx, time.Now())
		return err
	}); err != nil {
		return err
	}
	if cfg.Reports.FailurePolicy == config.FailurePolicyRetry {
		if err := jobs.Add("replay_failed_aggregations", cfg.Reports.RetrySchedule, func(ctx context.Context) error {
			_, err := reportingModule.ReplayFailed(ctx)
			return err
		}); err != nil {
			return err
		}
	}
	jobs.Start()
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), cfg.Reports.TxTimeout)
		defer cancel()
		if err := jobs.Stop(stopCtx); err != nil {
			logger.Error("scheduled jobs did not stop in time", slog.Any("error", err))
		}
	}()

	router := buildRouter(ordersModule, reportingModule)
	handler := httpserver.Middleware(router,
		httpserver.Recovery(logger),
		httpserver.Logging(logger),
		httpserver.CORS(cfg.HTTP.CORSOrigins),
	)

	serverCfg := httpserver.DefaultConfig()
	serverCfg.Host = cfg.HTTP.Host
	serverCfg.Port = cfg.HTTP.Port
	server := httpserver.New(serverCfg, handler, logger)

	err = server.Run(ctx)
	logger.Info("server stopped")
	return err
}

// stores holds the persistence adapters for the selected backend.
type stores struct {
	orders       ordersdomain.OrderRepository
	mirror       ordersdomain.OrderWriter
	dailyReports reportingdomain.DailyReportRepository
	itemReports  reportingdomain.ItemReportRepository
	ledger       reportingdomain.ContributionLedger
	txScope      transaction.Scope
	close        func()
}

func openStores(ctx context.Context, cfg config.Config, logger *slog.Logger) (*stores, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		// Orders arrive only through the event endpoint, so the in-memory order
		// repository mirrors every accepted snapshot.
		store := memstore.New()
		ordersRepo := orderspersistence.NewInMemoryRepository(store)
		logger.Warn("using in-memory store; data is lost on restart")
		return &stores{
			orders:       ordersRepo,
			mirror:       ordersRepo,
			dailyReports: reportingpersistence.NewInMemoryDailyReportRepository(store),
			itemReports:  reportingpersistence.NewInMemoryItemReportRepository(store),
			ledger:       reportingpersistence.NewInMemoryContributionLedger(store),
			txScope:      store,
			close:        func() {},
		}, nil

	case config.BackendSpanner:
		spannerCfg := spanner.Config{
			ProjectID:  cfg.Spanner.ProjectID,
			InstanceID: cfg.Spanner.InstanceID,
			DatabaseID: cfg.Spanner.DatabaseID,
		}
		client, err := spanner.NewClient(ctx, spannerCfg)
		if err != nil {
			return nil, err
		}
		logger.Info("connected to spanner", slog.String("dsn", spannerCfg.DSN()))
		return &stores{
			orders:       orderspersistence.NewSpannerRepository(client),
			dailyReports: reportingpersistence.NewSpannerDailyReportRepository(client),
			itemReports:  reportingpersistence.NewSpannerItemReportRepository(client),
			ledger:       reportingpersistence.NewSpannerContributionLedger(),
			txScope:      spanner.NewReadWriteTransactionScope(client, "reporting-aggregation"),
			close:        client.Close,
		}, nil
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
}

func openRetryQueue(ctx context.Context, cfg config.Config, logger *slog.Logger) (reportingdomain.RetryQueue, func(), error) {
	if cfg.Reports.FailurePolicy != config.FailurePolicyRetry {
		return nil, func() {}, nil
	}
	if cfg.Redis.Addr == "" {
		logger.Warn("REDIS_ADDR not set; failed aggregations are queued in memory")
		return retryqueue.NewInMemoryQueue(), func() {}, nil
	}

	rdb := goredis.NewClient(&goredis.Options{Addr: cfg.Redis.Addr})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.Addr, err)
	}
	logger.Info("connected to redis", slog.String("addr", cfg.Redis.Addr), slog.String("queue_key", cfg.Redis.QueueKey))

	closeFn := func() {
		if err := rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
			logger.Error("failed to close redis client", slog.Any("error", err))
		}
	}
	return retryqueue.NewRedisQueue(rdb, cfg.Redis.QueueKey), closeFn, nil
}

// buildRouter creates the main HTTP router with all module handlers.
func buildRouter(ordersModule orders.Module, reportingModule reporting.Module) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	// Each module registers its own routes (same pattern as event subscriptions)
	ordersModule.RegisterRoutes(mux)
	reportingModule.RegisterRoutes(mux)

	return mux
}
