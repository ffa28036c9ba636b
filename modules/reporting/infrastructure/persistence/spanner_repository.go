package persistence

import (
	"context"
	"fmt"
	"math/big"

	"cloud.google.com/go/spanner"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"

	platformspanner "github.com/rai/order-reporting/internal/platform/spanner"
	"github.com/rai/order-reporting/modules/reporting/domain"
	"github.com/rai/order-reporting/modules/shared/types"
)

var (
	dailyReportColumns = []string{"Date", "TotalRevenue", "TotalOrders", "UpdatedAt"}
	itemReportColumns  = []string{"ItemID", "TotalSold", "TotalRevenue", "UpdatedAt"}
)

// SpannerDailyReportRepository stores each daily report as a DailyReports row
// with interleaved DailyReportItemSales and DailyReportHourlyRevenue rows.
type SpannerDailyReportRepository struct {
	client *spanner.Client
}

func NewSpannerDailyReportRepository(client *spanner.Client) *SpannerDailyReportRepository {
	return &SpannerDailyReportRepository{client: client}
}

func (r *SpannerDailyReportRepository) FindByDate(ctx context.Context, date domain.DateKey) (*domain.DailyReport, error) {
	reader, ok := platformspanner.ReadTransactionFromContext(ctx)
	if !ok {
		roTx := r.client.ReadOnlyTransaction()
		defer roTx.Close()
		reader = roTx
	}

	row, err := reader.ReadRow(ctx, "DailyReports", spanner.Key{date.String()}, dailyReportColumns[:3])
	if err != nil {
		if spanner.ErrCode(err) == codes.NotFound {
			return nil, domain.ErrDailyReportNotFound
		}
		return nil, fmt.Errorf("failed to read daily report: %w", err)
	}

	var dateStr string
	var revenue big.Rat
	var totalOrders int64
	if err := row.Columns(&dateStr, &revenue, &totalOrders); err != nil {
		return nil, fmt.Errorf("failed to scan daily report: %w", err)
	}
	totalRevenue, err := types.MoneyFromRat(&revenue)
	if err != nil {
		return nil, fmt.Errorf("failed to parse daily revenue: %w", err)
	}

	keys := spanner.Key{dateStr}.AsPrefix()
	sales, err := readItemSales(reader.Read(ctx, "DailyReportItemSales", keys, []string{"Date", "ItemID", "Quantity"}))
	if err != nil {
		return nil, err
	}
	hourly, err := readHourlyRevenue(reader.Read(ctx, "DailyReportHourlyRevenue", keys, []string{"Date", "Hour", "Revenue"}))
	if err != nil {
		return nil, err
	}

	return domain.ReconstituteDailyReport(
		domain.DateKey(dateStr),
		totalRevenue,
		totalOrders,
		sales[dateStr],
		hourly[dateStr],
	), nil
}

func (r *SpannerDailyReportRepository) FindRange(ctx context.Context, from, to domain.DateKey) ([]*domain.DailyReport, error) {
	if from > to {
		return nil, domain.ErrInvalidDateRange
	}

	reader, ok := platformspanner.ReadTransactionFromContext(ctx)
	if !ok {
		// Three queries must observe the same snapshot.
		roTx := r.client.ReadOnlyTransaction()
		defer roTx.Close()
		reader = roTx
	}

	params := map[string]interface{}{"from": from.String(), "to": to.String()}

	sales, err := readItemSales(reader.Query(ctx, spanner.Statement{
		SQL:    `SELECT Date, ItemID, Quantity FROM DailyReportItemSales WHERE Date BETWEEN @from AND @to`,
		Params: params,
	}))
	if err != nil {
		return nil, err
	}
	hourly, err := readHourlyRevenue(reader.Query(ctx, spanner.Statement{
		SQL:    `SELECT Date, Hour, Revenue FROM DailyReportHourlyRevenue WHERE Date BETWEEN @from AND @to`,
		Params: params,
	}))
	if err != nil {
		return nil, err
	}

	iter := reader.Query(ctx, spanner.Statement{
		SQL: `SELECT Date, TotalRevenue, TotalOrders
		      FROM DailyReports
		      WHERE Date BETWEEN @from AND @to
		      ORDER BY Date`,
		Params: params,
	})
	defer iter.Stop()

	var reports []*domain.DailyReport
	for {
		row, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to query daily reports: %w", err)
		}

		var dateStr string
		var revenue big.Rat
		var totalOrders int64
		if err := row.Columns(&dateStr, &revenue, &totalOrders); err != nil {
			return nil, fmt.Errorf("failed to scan daily report: %w", err)
		}
		totalRevenue, err := types.MoneyFromRat(&revenue)
		if err != nil {
			return nil, fmt.Errorf("failed to parse daily revenue: %w", err)
		}

		reports = append(reports, domain.ReconstituteDailyReport(
			domain.DateKey(dateStr),
			totalRevenue,
			totalOrders,
			sales[dateStr],
			hourly[dateStr],
		))
	}
	return reports, nil
}

// Save writes the report and every map entry. Map keys are never removed
// from a report, so upserts alone keep the child rows in sync.
func (r *SpannerDailyReportRepository) Save(ctx context.Context, report *domain.DailyReport) error {
	if txn, ok := platformspanner.ReadWriteTxFromContext(ctx); ok {
		return txn.BufferWrite(dailyReportMutations(report))
	}

	_, err := r.client.ReadWriteTransaction(ctx, func(ctx context.Context, txn *spanner.ReadWriteTransaction) error {
		return txn.BufferWrite(dailyReportMutations(report))
	})
	if err != nil {
		return fmt.Errorf("failed to save daily report: %w", err)
	}
	return nil
}

func dailyReportMutations(report *domain.DailyReport) []*spanner.Mutation {
	date := report.Date().String()
	mutations := []*spanner.Mutation{
		spanner.InsertOrUpdate("DailyReports", dailyReportColumns, []interface{}{
			date,
			report.TotalRevenue().Rat(),
			report.TotalOrders(),
			spanner.CommitTimestamp,
		}),
	}
	for itemID, quantity := range report.ItemSalesCount() {
		mutations = append(mutations, spanner.InsertOrUpdate("DailyReportItemSales",
			[]string{"Date", "ItemID", "Quantity"},
			[]interface{}{date, itemID.String(), quantity},
		))
	}
	for hour, revenue := range report.HourlyRevenue() {
		mutations = append(mutations, spanner.InsertOrUpdate("DailyReportHourlyRevenue",
			[]string{"Date", "Hour", "Revenue"},
			[]interface{}{date, hour.String(), revenue.Rat()},
		))
	}
	return mutations
}

func readItemSales(iter *spanner.RowIterator) (map[string]domain.ItemSalesCount, error) {
	defer iter.Stop()

	sales := make(map[string]domain.ItemSalesCount)
	for {
		row, err := iter.Next()
		if err == iterator.Done {
			return sales, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read item sales: %w", err)
		}

		var date, rawItemID string
		var quantity int64
		if err := row.Columns(&date, &rawItemID, &quantity); err != nil {
			return nil, fmt.Errorf("failed to scan item sales: %w", err)
		}
		itemID, err := types.ParseItemID(rawItemID)
		if err != nil {
			return nil, fmt.Errorf("failed to parse item id %q: %w", rawItemID, err)
		}
		if sales[date] == nil {
			sales[date] = domain.ItemSalesCount{}
		}
		sales[date][itemID] = quantity
	}
}

func readHourlyRevenue(iter *spanner.RowIterator) (map[string]domain.HourlyRevenue, error) {
	defer iter.Stop()

	hourly := make(map[string]domain.HourlyRevenue)
	for {
		row, err := iter.Next()
		if err == iterator.Done {
			return hourly, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read hourly revenue: %w", err)
		}

		var date, hour string
		var revenue big.Rat
		if err := row.Columns(&date, &hour, &revenue); err != nil {
			return nil, fmt.Errorf("failed to scan hourly revenue: %w", err)
		}
		amount, err := types.MoneyFromRat(&revenue)
		if err != nil {
			return nil, fmt.Errorf("failed to parse hourly revenue: %w", err)
		}
		if hourly[date] == nil {
			hourly[date] = domain.HourlyRevenue{}
		}
		hourly[date][domain.HourKey(hour)] = amount
	}
}

// SpannerItemReportRepository stores item reports in the ItemReports table.
type SpannerItemReportRepository struct {
	client *spanner.Client
}

func NewSpannerItemReportRepository(client *spanner.Client) *SpannerItemReportRepository {
	return &SpannerItemReportRepository{client: client}
}

func (r *SpannerItemReportRepository) FindByID(ctx context.Context, id types.ItemID) (*domain.ItemReport, error) {
	var reader platformspanner.ReadTransaction
	if tx, ok := platformspanner.ReadTransactionFromContext(ctx); ok {
		reader = tx
	} else {
		single := r.client.Single()
		defer single.Close()
		reader = single
	}

	row, err := reader.ReadRow(ctx, "ItemReports", spanner.Key{id.String()}, itemReportColumns[:3])
	if err != nil {
		if spanner.ErrCode(err) == codes.NotFound {
			return nil, domain.ErrItemReportNotFound
		}
		return nil, fmt.Errorf("failed to read item report: %w", err)
	}
	return scanItemReport(row)
}

func (r *SpannerItemReportRepository) FindTopSelling(ctx context.Context, limit int) ([]*domain.ItemReport, error) {
	single := r.client.Single()
	defer single.Close()

	iter := single.Query(ctx, spanner.Statement{
		SQL: `SELECT ItemID, TotalSold, TotalRevenue
		      FROM ItemReports@{FORCE_INDEX=ItemReportsByTotalSold}
		      ORDER BY TotalSold DESC, ItemID
		      LIMIT @limit`,
		Params: map[string]interface{}{"limit": int64(limit)},
	})
	defer iter.Stop()

	var reports []*domain.ItemReport
	for {
		row, err := iter.Next()
		if err == iterator.Done {
			return reports, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to query item reports: %w", err)
		}
		report, err := scanItemReport(row)
		if err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}
}

func (r *SpannerItemReportRepository) Save(ctx context.Context, report *domain.ItemReport) error {
	mutations := []*spanner.Mutation{
		spanner.InsertOrUpdate("ItemReports", itemReportColumns, []interface{}{
			report.ItemID().String(),
			report.TotalSoldAllTime(),
			report.TotalRevenueAllTime().Rat(),
			spanner.CommitTimestamp,
		}),
	}

	if txn, ok := platformspanner.ReadWriteTxFromContext(ctx); ok {
		return txn.BufferWrite(mutations)
	}

	_, err := r.client.ReadWriteTransaction(ctx, func(ctx context.Context, txn *spanner.ReadWriteTransaction) error {
		return txn.BufferWrite(mutations)
	})
	if err != nil {
		return fmt.Errorf("failed to save item report: %w", err)
	}
	return nil
}

func scanItemReport(row *spanner.Row) (*domain.ItemReport, error) {
	var rawItemID string
	var totalSold int64
	var revenue big.Rat
	if err := row.Columns(&rawItemID, &totalSold, &revenue); err != nil {
		return nil, fmt.Errorf("failed to scan item report: %w", err)
	}
	itemID, err := types.ParseItemID(rawItemID)
	if err != nil {
		return nil, fmt.Errorf("failed to parse item id %q: %w", rawItemID, err)
	}
	totalRevenue, err := types.MoneyFromRat(&revenue)
	if err != nil {
		return nil, fmt.Errorf("failed to parse item revenue: %w", err)
	}
	return domain.ReconstituteItemReport(itemID, totalSold, totalRevenue), nil
}

// SpannerContributionLedger records claims in ReportContributions.
type SpannerContributionLedger struct{}

func NewSpannerContributionLedger() *SpannerContributionLedger {
	return &SpannerContributionLedger{}
}

// Claim reads the ledger row inside the caller's read-write transaction, so
// two concurrent claims for the same contribution cannot both commit.
func (l *SpannerContributionLedger) Claim(ctx context.Context, reportKey, contributionID string) (bool, error) {
	txn, ok := platformspanner.ReadWriteTxFromContext(ctx)
	if !ok {
		return false, errNoTransaction
	}

	_, err := txn.ReadRow(ctx, "ReportContributions", spanner.Key{reportKey, contributionID}, []string{"ReportKey"})
	switch {
	case err == nil:
		return false, nil
	case spanner.ErrCode(err) != codes.NotFound:
		return false, fmt.Errorf("failed to read contribution: %w", err)
	}

	if err := txn.BufferWrite([]*spanner.Mutation{
		spanner.Insert("ReportContributions",
			[]string{"ReportKey", "ContributionID", "ClaimedAt"},
			[]interface{}{reportKey, contributionID, spanner.CommitTimestamp},
		),
	}); err != nil {
		return false, fmt.Errorf("failed to buffer contribution: %w", err)
	}
	return true, nil
}

// Compile-time interface checks.
var (
	_ domain.DailyReportRepository = (*SpannerDailyReportRepository)(nil)
	_ domain.ItemReportRepository  = (*SpannerItemReportRepository)(nil)
	_ domain.ContributionLedger    = (*SpannerContributionLedger)(nil)
)
