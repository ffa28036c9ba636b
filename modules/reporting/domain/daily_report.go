// Package domain contains the report read models and the rules for folding
// completed orders into them.
package domain

import (
	"maps"

	"github.com/rai/order-reporting/modules/shared/types"
)

// ItemSalesCount maps item id to quantity sold. Missing keys count as zero.
type ItemSalesCount map[types.ItemID]int64

func (c ItemSalesCount) Get(id types.ItemID) int64 { return c[id] }

// HourlyRevenue maps local hour to revenue. Missing keys count as zero.
type HourlyRevenue map[HourKey]types.Money

func (h HourlyRevenue) Get(hour HourKey) types.Money {
	if m, ok := h[hour]; ok {
		return m
	}
	return types.Zero
}

// DailyReport is the running rollup of every completed order whose local
// date equals Date. It is created on the first completion of the day and only
// ever grows afterwards.
type DailyReport struct {
	date           DateKey
	totalRevenue   types.Money
	totalOrders    int64
	itemSalesCount ItemSalesCount
	hourlyRevenue  HourlyRevenue
}

// NewDailyReport starts the report for c.Date with c as its only order.
func NewDailyReport(c OrderContribution) *DailyReport {
	r := &DailyReport{
		date:           c.Date,
		itemSalesCount: ItemSalesCount{},
		hourlyRevenue:  HourlyRevenue{},
	}
	r.fold(c)
	return r
}

// ReconstituteDailyReport rebuilds a report from persistence.
func ReconstituteDailyReport(
	date DateKey,
	totalRevenue types.Money,
	totalOrders int64,
	itemSalesCount ItemSalesCount,
	hourlyRevenue HourlyRevenue,
) *DailyReport {
	if itemSalesCount == nil {
		itemSalesCount = ItemSalesCount{}
	}
	if hourlyRevenue == nil {
		hourlyRevenue = HourlyRevenue{}
	}
	return &DailyReport{
		date:           date,
		totalRevenue:   totalRevenue,
		totalOrders:    totalOrders,
		itemSalesCount: itemSalesCount,
		hourlyRevenue:  hourlyRevenue,
	}
}

func (r *DailyReport) Date() DateKey                  { return r.date }
func (r *DailyReport) TotalRevenue() types.Money      { return r.totalRevenue }
func (r *DailyReport) TotalOrders() int64             { return r.totalOrders }
func (r *DailyReport) ItemSalesCount() ItemSalesCount { return maps.Clone(r.itemSalesCount) }
func (r *DailyReport) HourlyRevenue() HourlyRevenue   { return maps.Clone(r.hourlyRevenue) }

// Apply adds one more completed order to the report.
func (r *DailyReport) Apply(c OrderContribution) error {
	if c.Date != r.date {
		return ErrDateMismatch
	}
	r.fold(c)
	return nil
}

func (r *DailyReport) fold(c OrderContribution) {
	r.totalRevenue = r.totalRevenue.Add(c.TotalAmount)
	r.totalOrders++
	for _, item := range c.Items {
		r.itemSalesCount[item.ItemID] += item.Quantity
	}
	r.hourlyRevenue[c.Hour] = r.hourlyRevenue.Get(c.Hour).Add(c.TotalAmount)
}
