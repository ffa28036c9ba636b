package domain

import (
	"context"

	"github.com/rai/order-reporting/modules/shared/types"
)

// DailyReportRepository persists daily reports.
// Inside a transaction scope, reads are part of the transaction's read set.
type DailyReportRepository interface {
	FindByDate(ctx context.Context, date DateKey) (*DailyReport, error)
	// FindRange returns the reports with from <= date <= to, ordered by date.
	FindRange(ctx context.Context, from, to DateKey) ([]*DailyReport, error)
	Save(ctx context.Context, report *DailyReport) error
}

// ItemReportRepository persists all-time item reports.
type ItemReportRepository interface {
	FindByID(ctx context.Context, id types.ItemID) (*ItemReport, error)
	// FindTopSelling returns up to limit reports ordered by quantity sold, highest first.
	FindTopSelling(ctx context.Context, limit int) ([]*ItemReport, error)
	Save(ctx context.Context, report *ItemReport) error
}

// ContributionLedger remembers which contributions each report already holds.
type ContributionLedger interface {
	// Claim records contributionID against reportKey in the current transaction.
	// It returns false when the contribution was recorded before.
	Claim(ctx context.Context, reportKey, contributionID string) (bool, error)
}

// DailyReportKey is the ledger key of a daily report.
func DailyReportKey(date DateKey) string { return "daily/" + string(date) }

// ItemReportKey is the ledger key of an item report.
func ItemReportKey(id types.ItemID) string { return "item/" + id.String() }
