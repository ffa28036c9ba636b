package queries

import (
	"context"
	"fmt"

	"github.com/rai/order-reporting/modules/reporting/domain"
	"github.com/rai/order-reporting/modules/shared/types"
)

const (
	defaultTopItems = 10
	maxTopItems     = 100
)

type ItemReportDTO struct {
	ItemID              string      `json:"item_id"`
	TotalSoldAllTime    int64       `json:"total_sold_all_time"`
	TotalRevenueAllTime types.Money `json:"total_revenue_all_time"`
}

type GetItemReportQuery struct {
	ItemID string
}

type GetItemReportHandler struct {
	repo domain.ItemReportRepository
}

func NewGetItemReportHandler(repo domain.ItemReportRepository) *GetItemReportHandler {
	return &GetItemReportHandler{repo: repo}
}

func (h *GetItemReportHandler) Handle(ctx context.Context, query GetItemReportQuery) (*ItemReportDTO, error) {
	itemID, err := types.ParseItemID(query.ItemID)
	if err != nil {
		return nil, fmt.Errorf("invalid item ID: %w", err)
	}

	report, err := h.repo.FindByID(ctx, itemID)
	if err != nil {
		return nil, err
	}
	return toItemReportDTO(report), nil
}

// ListTopItemsQuery asks for the best sellers by quantity. Limit 0 means the default.
type ListTopItemsQuery struct {
	Limit int
}

type ListTopItemsHandler struct {
	repo domain.ItemReportRepository
}

func NewListTopItemsHandler(repo domain.ItemReportRepository) *ListTopItemsHandler {
	return &ListTopItemsHandler{repo: repo}
}

func (h *ListTopItemsHandler) Handle(ctx context.Context, query ListTopItemsQuery) ([]ItemReportDTO, error) {
	limit := query.Limit
	if limit <= 0 {
		limit = defaultTopItems
	}
	limit = min(limit, maxTopItems)

	reports, err := h.repo.FindTopSelling(ctx, limit)
	if err != nil {
		return nil, err
	}

	dtos := make([]ItemReportDTO, 0, len(reports))
	for _, report := range reports {
		dtos = append(dtos, *toItemReportDTO(report))
	}
	return dtos, nil
}

func toItemReportDTO(report *domain.ItemReport) *ItemReportDTO {
	return &ItemReportDTO{
		ItemID:              report.ItemID().String(),
		TotalSoldAllTime:    report.TotalSoldAllTime(),
		TotalRevenueAllTime: report.TotalRevenueAllTime(),
	}
}
