package domain

import (
	"fmt"
	"net/url"

	"github.com/rai/order-reporting/modules/shared/types"
)

// LineItem is one entry of a completed order. ItemIDs may repeat within an order.
type LineItem struct {
	ItemID   types.ItemID `json:"item_id"`
	Quantity int64        `json:"quantity"`
	Price    types.Money  `json:"price"`
}

// Subtotal is price × quantity.
func (i LineItem) Subtotal() types.Money {
	return i.Price.Multiply(i.Quantity)
}

func (i LineItem) Validate() error {
	if i.ItemID.IsZero() {
		return types.ErrInvalidID
	}
	if i.Quantity <= 0 {
		return fmt.Errorf("%w: item %s has quantity %d", ErrInvalidQuantity, i.ItemID, i.Quantity)
	}
	return nil
}

// OrderContribution is what one completed order adds to the reports.
type OrderContribution struct {
	OrderID     types.OrderID `json:"order_id"`
	Date        DateKey       `json:"date"`
	Hour        HourKey       `json:"hour"`
	TotalAmount types.Money   `json:"total_amount"`
	Items       []LineItem    `json:"items"`
}

func (c OrderContribution) Validate() error {
	if c.OrderID.IsZero() {
		return types.ErrInvalidID
	}
	if _, err := ParseDateKey(string(c.Date)); err != nil {
		return err
	}
	if _, err := ParseHourKey(string(c.Hour)); err != nil {
		return err
	}
	for _, item := range c.Items {
		if err := item.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// DailyContributionID identifies an order's contribution to its daily report.
func DailyContributionID(orderID types.OrderID) string {
	return orderID.String()
}

// Occurrence counts the lines before lineIndex that carry the same item id.
// It is stable when a redelivered snapshot lists the lines in another order.
func (c OrderContribution) Occurrence(lineIndex int) int {
	if lineIndex < 0 || lineIndex >= len(c.Items) {
		return 0
	}
	n := 0
	for _, item := range c.Items[:lineIndex] {
		if item.ItemID == c.Items[lineIndex].ItemID {
			n++
		}
	}
	return n
}

// ItemContributionID identifies the n-th line of an item within an order, so
// repeated lines of one item stay additive. Ids are path-escaped, which keeps
// the separator out of them.
func ItemContributionID(orderID types.OrderID, itemID types.ItemID, occurrence int) string {
	return fmt.Sprintf("%s#%s#%d", url.PathEscape(orderID.String()), url.PathEscape(itemID.String()), occurrence)
}
