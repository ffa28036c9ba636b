// Package persistence implements repository interfaces for reports.
package persistence

import (
	"cmp"
	"context"
	"errors"
	"maps"
	"net/url"
	"slices"

	"github.com/rai/order-reporting/internal/platform/memstore"
	"github.com/rai/order-reporting/modules/reporting/domain"
	"github.com/rai/order-reporting/modules/shared/types"
)

const (
	dailyReportsCollection  = "DailyReports"
	itemReportsCollection   = "ItemReports"
	contributionsCollection = "ReportContributions"
)

var errNoTransaction = errors.New("contribution ledger requires a read-write transaction")

// dailyReportDoc is the stored form; documents in the store are never mutated.
type dailyReportDoc struct {
	date           domain.DateKey
	totalRevenue   types.Money
	totalOrders    int64
	itemSalesCount domain.ItemSalesCount
	hourlyRevenue  domain.HourlyRevenue
}

func (d dailyReportDoc) toDomain() *domain.DailyReport {
	return domain.ReconstituteDailyReport(
		d.date,
		d.totalRevenue,
		d.totalOrders,
		maps.Clone(d.itemSalesCount),
		maps.Clone(d.hourlyRevenue),
	)
}

type itemReportDoc struct {
	itemID       types.ItemID
	totalSold    int64
	totalRevenue types.Money
}

func (d itemReportDoc) toDomain() *domain.ItemReport {
	return domain.ReconstituteItemReport(d.itemID, d.totalSold, d.totalRevenue)
}

// get reads through the active memstore transaction, or committed state
// when there is none.
func get(ctx context.Context, store *memstore.Store, collection, id string) (any, bool) {
	if txn, ok := memstore.TxnFromContext(ctx); ok {
		return txn.Get(collection, id)
	}
	return store.Get(collection, id)
}

// set writes through the active transaction, or commits a one-document
// transaction of its own.
func set(ctx context.Context, store *memstore.Store, collection, id string, data any) error {
	if txn, ok := memstore.TxnFromContext(ctx); ok {
		txn.Set(collection, id, data)
		return nil
	}
	return store.Execute(ctx, func(ctx context.Context) error {
		txn, _ := memstore.TxnFromContext(ctx)
		txn.Set(collection, id, data)
		return nil
	})
}

// InMemoryDailyReportRepository implements DailyReportRepository on memstore.
type InMemoryDailyReportRepository struct {
	store *memstore.Store
}

func NewInMemoryDailyReportRepository(store *memstore.Store) *InMemoryDailyReportRepository {
	return &InMemoryDailyReportRepository{store: store}
}

func (r *InMemoryDailyReportRepository) FindByDate(ctx context.Context, date domain.DateKey) (*domain.DailyReport, error) {
	data, ok := get(ctx, r.store, dailyReportsCollection, date.String())
	if !ok {
		return nil, domain.ErrDailyReportNotFound
	}
	return data.(dailyReportDoc).toDomain(), nil
}

func (r *InMemoryDailyReportRepository) FindRange(ctx context.Context, from, to domain.DateKey) ([]*domain.DailyReport, error) {
	if from > to {
		return nil, domain.ErrInvalidDateRange
	}
	var reports []*domain.DailyReport
	for _, doc := range r.store.List(dailyReportsCollection) {
		if doc.ID < from.String() || doc.ID > to.String() {
			continue
		}
		reports = append(reports, doc.Data.(dailyReportDoc).toDomain())
	}
	return reports, nil
}

func (r *InMemoryDailyReportRepository) Save(ctx context.Context, report *domain.DailyReport) error {
	doc := dailyReportDoc{
		date:           report.Date(),
		totalRevenue:   report.TotalRevenue(),
		totalOrders:    report.TotalOrders(),
		itemSalesCount: report.ItemSalesCount(),
		hourlyRevenue:  report.HourlyRevenue(),
	}
	return set(ctx, r.store, dailyReportsCollection, report.Date().String(), doc)
}

// InMemoryItemReportRepository implements ItemReportRepository on memstore.
type InMemoryItemReportRepository struct {
	store *memstore.Store
}

func NewInMemoryItemReportRepository(store *memstore.Store) *InMemoryItemReportRepository {
	return &InMemoryItemReportRepository{store: store}
}

func (r *InMemoryItemReportRepository) FindByID(ctx context.Context, id types.ItemID) (*domain.ItemReport, error) {
	data, ok := get(ctx, r.store, itemReportsCollection, id.String())
	if !ok {
		return nil, domain.ErrItemReportNotFound
	}
	return data.(itemReportDoc).toDomain(), nil
}

func (r *InMemoryItemReportRepository) FindTopSelling(ctx context.Context, limit int) ([]*domain.ItemReport, error) {
	docs := r.store.List(itemReportsCollection)
	items := make([]itemReportDoc, 0, len(docs))
	for _, doc := range docs {
		items = append(items, doc.Data.(itemReportDoc))
	}
	slices.SortStableFunc(items, func(a, b itemReportDoc) int {
		return cmp.Compare(b.totalSold, a.totalSold)
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}

	reports := make([]*domain.ItemReport, 0, len(items))
	for _, item := range items {
		reports = append(reports, item.toDomain())
	}
	return reports, nil
}

func (r *InMemoryItemReportRepository) Save(ctx context.Context, report *domain.ItemReport) error {
	doc := itemReportDoc{
		itemID:       report.ItemID(),
		totalSold:    report.TotalSoldAllTime(),
		totalRevenue: report.TotalRevenueAllTime(),
	}
	return set(ctx, r.store, itemReportsCollection, report.ItemID().String(), doc)
}

// InMemoryContributionLedger implements ContributionLedger on memstore.
type InMemoryContributionLedger struct {
	store *memstore.Store
}

func NewInMemoryContributionLedger(store *memstore.Store) *InMemoryContributionLedger {
	return &InMemoryContributionLedger{store: store}
}

func (l *InMemoryContributionLedger) Claim(ctx context.Context, reportKey, contributionID string) (bool, error) {
	txn, ok := memstore.TxnFromContext(ctx)
	if !ok {
		return false, errNoTransaction
	}
	id := url.PathEscape(reportKey) + "|" + url.PathEscape(contributionID)
	if _, exists := txn.Get(contributionsCollection, id); exists {
		return false, nil
	}
	txn.Set(contributionsCollection, id, struct{}{})
	return true, nil
}

// Compile-time interface checks.
var (
	_ domain.DailyReportRepository = (*InMemoryDailyReportRepository)(nil)
	_ domain.ItemReportRepository  = (*InMemoryItemReportRepository)(nil)
	_ domain.ContributionLedger    = (*InMemoryContributionLedger)(nil)
)
