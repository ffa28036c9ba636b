// Package queries contains read use cases for the reporting module.
package queries

import (
	"context"
	"fmt"
	"time"

	"github.com/rai/order-reporting/modules/reporting/domain"
	"github.com/rai/order-reporting/modules/shared/types"
)

// maxRangeDays bounds how many daily reports one range query may return.
const maxRangeDays = 366

// DailyReportDTO is the read model of a daily report. Map keys are item ids
// and two-digit hours.
type DailyReportDTO struct {
	Date           string                 `json:"date"`
	TotalRevenue   types.Money            `json:"total_revenue"`
	TotalOrders    int64                  `json:"total_orders"`
	ItemSalesCount map[string]int64       `json:"item_sales_count"`
	HourlyRevenue  map[string]types.Money `json:"hourly_revenue"`
}

type GetDailyReportQuery struct {
	Date string
}

type GetDailyReportHandler struct {
	repo domain.DailyReportRepository
}

func NewGetDailyReportHandler(repo domain.DailyReportRepository) *GetDailyReportHandler {
	return &GetDailyReportHandler{repo: repo}
}

func (h *GetDailyReportHandler) Handle(ctx context.Context, query GetDailyReportQuery) (*DailyReportDTO, error) {
	date, err := domain.ParseDateKey(query.Date)
	if err != nil {
		return nil, err
	}

	report, err := h.repo.FindByDate(ctx, date)
	if err != nil {
		return nil, err
	}
	return toDailyReportDTO(report), nil
}

// ListDailyReportsQuery selects the reports between From and To inclusive.
// Days without completed orders have no report and are omitted.
type ListDailyReportsQuery struct {
	From string
	To   string
}

type ListDailyReportsResult struct {
	From    string           `json:"from"`
	To      string           `json:"to"`
	Reports []DailyReportDTO `json:"reports"`
}

type ListDailyReportsHandler struct {
	repo domain.DailyReportRepository
}

func NewListDailyReportsHandler(repo domain.DailyReportRepository) *ListDailyReportsHandler {
	return &ListDailyReportsHandler{repo: repo}
}

func (h *ListDailyReportsHandler) Handle(ctx context.Context, query ListDailyReportsQuery) (*ListDailyReportsResult, error) {
	from, err := domain.ParseDateKey(query.From)
	if err != nil {
		return nil, err
	}
	to, err := domain.ParseDateKey(query.To)
	if err != nil {
		return nil, err
	}
	if err := validateRange(from, to); err != nil {
		return nil, err
	}

	reports, err := h.repo.FindRange(ctx, from, to)
	if err != nil {
		return nil, err
	}

	result := &ListDailyReportsResult{
		From:    from.String(),
		To:      to.String(),
		Reports: make([]DailyReportDTO, 0, len(reports)),
	}
	for _, report := range reports {
		result.Reports = append(result.Reports, *toDailyReportDTO(report))
	}
	return result, nil
}

func validateRange(from, to domain.DateKey) error {
	start, _ := time.Parse(time.DateOnly, from.String())
	end, _ := time.Parse(time.DateOnly, to.String())
	if end.Before(start) {
		return fmt.Errorf("%w: %s is after %s", domain.ErrInvalidDateRange, from, to)
	}
	if days := int(end.Sub(start).Hours()/24) + 1; days > maxRangeDays {
		return fmt.Errorf("%w: %d days exceeds %d", domain.ErrInvalidDateRange, days, maxRangeDays)
	}
	return nil
}

func toDailyReportDTO(report *domain.DailyReport) *DailyReportDTO {
	sales := report.ItemSalesCount()
	counts := make(map[string]int64, len(sales))
	for id, quantity := range sales {
		counts[id.String()] = quantity
	}

	hourly := make(map[string]types.Money, len(report.HourlyRevenue()))
	for hour, amount := range report.HourlyRevenue() {
		hourly[hour.String()] = amount
	}

	return &DailyReportDTO{
		Date:           report.Date().String(),
		TotalRevenue:   report.TotalRevenue(),
		TotalOrders:    report.TotalOrders(),
		ItemSalesCount: counts,
		HourlyRevenue:  hourly,
	}
}
