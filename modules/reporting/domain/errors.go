package domain

import (
	"errors"
	"fmt"

	"github.com/rai/order-reporting/modules/shared/transaction"
)

var (
	ErrDailyReportNotFound = errors.New("daily report not found")
	ErrItemReportNotFound  = errors.New("item report not found")
	ErrInvalidDateKey      = errors.New("invalid date key, want YYYY-MM-DD")
	ErrInvalidHourKey      = errors.New("invalid hour key, want 00-23")
	ErrInvalidQuantity     = errors.New("quantity must be positive")
	ErrInvalidDateRange    = errors.New("invalid date range")
	ErrDateMismatch        = errors.New("contribution belongs to a different date")
	ErrItemMismatch        = errors.New("line item belongs to a different item report")
)

// ReportScope names the kind of report document an aggregation touched.
type ReportScope string

const (
	ScopeDaily ReportScope = "daily"
	ScopeItem  ReportScope = "item"
)

// AggregationError reports that one order's contribution could not be
// committed to one report document.
type AggregationError struct {
	Scope   ReportScope
	Key     string
	OrderID string
	Err     error
}

func (e *AggregationError) Error() string {
	return fmt.Sprintf("aggregating %s report %q for order %s: %v", e.Scope, e.Key, e.OrderID, e.Err)
}

func (e *AggregationError) Unwrap() error { return e.Err }

// ConflictExhausted reports whether the store gave up after repeated
// conflicting concurrent commits.
func (e *AggregationError) ConflictExhausted() bool {
	return errors.Is(e.Err, transaction.ErrConflictExhausted)
}
