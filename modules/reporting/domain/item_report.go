package domain

import "github.com/rai/order-reporting/modules/shared/types"

// ItemReport is the all-time sales rollup for one item.
type ItemReport struct {
	itemID              types.ItemID
	totalSoldAllTime    int64
	totalRevenueAllTime types.Money
}

// NewItemReport starts the report for the item's first sale.
func NewItemReport(item LineItem) *ItemReport {
	r := &ItemReport{itemID: item.ItemID}
	r.fold(item)
	return r
}

// ReconstituteItemReport rebuilds a report from persistence.
func ReconstituteItemReport(itemID types.ItemID, totalSold int64, totalRevenue types.Money) *ItemReport {
	return &ItemReport{
		itemID:              itemID,
		totalSoldAllTime:    totalSold,
		totalRevenueAllTime: totalRevenue,
	}
}

func (r *ItemReport) ItemID() types.ItemID             { return r.itemID }
func (r *ItemReport) TotalSoldAllTime() int64          { return r.totalSoldAllTime }
func (r *ItemReport) TotalRevenueAllTime() types.Money { return r.totalRevenueAllTime }

// Apply adds one sold line item.
func (r *ItemReport) Apply(item LineItem) error {
	if item.ItemID != r.itemID {
		return ErrItemMismatch
	}
	r.fold(item)
	return nil
}

func (r *ItemReport) fold(item LineItem) {
	r.totalSoldAllTime += item.Quantity
	r.totalRevenueAllTime = r.totalRevenueAllTime.Add(item.Subtotal())
}
