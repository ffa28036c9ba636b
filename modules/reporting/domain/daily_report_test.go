package domain_test

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rai/order-reporting/modules/reporting/domain"
	"github.com/rai/order-reporting/modules/shared/types"
)

func itemID(t *testing.T, s string) types.ItemID {
	t.Helper()
	id, err := types.ParseItemID(s)
	require.NoError(t, err)
	return id
}

func orderID(t *testing.T, s string) types.OrderID {
	t.Helper()
	id, err := types.ParseOrderID(s)
	require.NoError(t, err)
	return id
}

func firstOrder(t *testing.T) domain.OrderContribution {
	return domain.OrderContribution{
		OrderID:     orderID(t, "O1"),
		Date:        "2024-03-15",
		Hour:        "14",
		TotalAmount: types.MoneyFromInt(50000),
		Items: []domain.LineItem{
			{ItemID: itemID(t, "coffee"), Quantity: 2, Price: types.MoneyFromInt(20000)},
			{ItemID: itemID(t, "cake"), Quantity: 1, Price: types.MoneyFromInt(10000)},
		},
	}
}

func secondOrder(t *testing.T) domain.OrderContribution {
	return domain.OrderContribution{
		OrderID:     orderID(t, "O2"),
		Date:        "2024-03-15",
		Hour:        "15",
		TotalAmount: types.MoneyFromInt(30000),
		Items: []domain.LineItem{
			{ItemID: itemID(t, "coffee"), Quantity: 1, Price: types.MoneyFromInt(20000)},
		},
	}
}

func TestNewDailyReport_FirstOrderOfDay(t *testing.T) {
	report := domain.NewDailyReport(firstOrder(t))

	assert.Equal(t, domain.DateKey("2024-03-15"), report.Date())
	assert.True(t, report.TotalRevenue().Equals(types.MoneyFromInt(50000)))
	assert.Equal(t, int64(1), report.TotalOrders())
	assert.Equal(t, int64(2), report.ItemSalesCount().Get(itemID(t, "coffee")))
	assert.Equal(t, int64(1), report.ItemSalesCount().Get(itemID(t, "cake")))
	assert.True(t, report.HourlyRevenue().Get("14").Equals(types.MoneyFromInt(50000)))
	assert.Len(t, report.HourlyRevenue(), 1)
}

func TestDailyReport_Apply_SecondOrder(t *testing.T) {
	report := domain.NewDailyReport(firstOrder(t))

	require.NoError(t, report.Apply(secondOrder(t)))

	assert.True(t, report.TotalRevenue().Equals(types.MoneyFromInt(80000)))
	assert.Equal(t, int64(2), report.TotalOrders())
	assert.Equal(t, int64(3), report.ItemSalesCount().Get(itemID(t, "coffee")))
	assert.Equal(t, int64(1), report.ItemSalesCount().Get(itemID(t, "cake")))
	assert.True(t, report.HourlyRevenue().Get("14").Equals(types.MoneyFromInt(50000)))
	assert.True(t, report.HourlyRevenue().Get("15").Equals(types.MoneyFromInt(30000)))
}

func TestDailyReport_Apply_RepeatedItemInOneOrder(t *testing.T) {
	c := firstOrder(t)
	c.Items = append(c.Items, domain.LineItem{ItemID: itemID(t, "coffee"), Quantity: 3, Price: types.MoneyFromInt(20000)})

	report := domain.NewDailyReport(c)

	assert.Equal(t, int64(5), report.ItemSalesCount().Get(itemID(t, "coffee")))
}

func TestDailyReport_Apply_OrderWithoutItems(t *testing.T) {
	report := domain.NewDailyReport(firstOrder(t))
	empty := domain.OrderContribution{
		OrderID:     orderID(t, "O9"),
		Date:        "2024-03-15",
		Hour:        "09",
		TotalAmount: types.MoneyFromInt(1000),
	}

	require.NoError(t, report.Apply(empty))

	assert.Equal(t, int64(2), report.TotalOrders())
	assert.True(t, report.TotalRevenue().Equals(types.MoneyFromInt(51000)))
	assert.Len(t, report.ItemSalesCount(), 2)
}

func TestDailyReport_Apply_DateMismatch(t *testing.T) {
	report := domain.NewDailyReport(firstOrder(t))
	other := secondOrder(t)
	other.Date = "2024-03-16"

	err := report.Apply(other)

	assert.ErrorIs(t, err, domain.ErrDateMismatch)
	assert.Equal(t, int64(1), report.TotalOrders())
}

func TestDailyReport_MissingKeysReadAsZero(t *testing.T) {
	report := domain.ReconstituteDailyReport("2024-03-15", types.Zero, 0, nil, nil)

	assert.Equal(t, int64(0), report.ItemSalesCount().Get(itemID(t, "tea")))
	assert.True(t, report.HourlyRevenue().Get("03").IsZero())
}

func TestDailyReport_GettersReturnCopies(t *testing.T) {
	report := domain.NewDailyReport(firstOrder(t))

	counts := report.ItemSalesCount()
	counts[itemID(t, "coffee")] = 100

	assert.Equal(t, int64(2), report.ItemSalesCount().Get(itemID(t, "coffee")))
}

func TestItemReport_Apply(t *testing.T) {
	coffee := itemID(t, "coffee")
	report := domain.NewItemReport(domain.LineItem{ItemID: coffee, Quantity: 2, Price: types.MoneyFromInt(20000)})

	require.NoError(t, report.Apply(domain.LineItem{ItemID: coffee, Quantity: 1, Price: types.MoneyFromInt(20000)}))

	assert.Equal(t, int64(3), report.TotalSoldAllTime())
	assert.True(t, report.TotalRevenueAllTime().Equals(types.MoneyFromInt(60000)))
}

func TestItemReport_Apply_ItemMismatch(t *testing.T) {
	report := domain.NewItemReport(domain.LineItem{ItemID: itemID(t, "coffee"), Quantity: 1, Price: types.MoneyFromInt(1)})

	err := report.Apply(domain.LineItem{ItemID: itemID(t, "cake"), Quantity: 1, Price: types.MoneyFromInt(1)})

	assert.ErrorIs(t, err, domain.ErrItemMismatch)
}

func TestBucketOf(t *testing.T) {
	hcm, err := time.LoadLocation("Asia/Ho_Chi_Minh")
	require.NoError(t, err)

	tests := []struct {
		name     string
		at       time.Time
		wantDate domain.DateKey
		wantHour domain.HourKey
	}{
		{"afternoon", time.Date(2024, 3, 15, 7, 22, 0, 0, time.UTC), "2024-03-15", "14"},
		{"crosses midnight", time.Date(2024, 3, 15, 17, 30, 0, 0, time.UTC), "2024-03-16", "00"},
		{"single digit hour", time.Date(2024, 3, 15, 2, 0, 0, 0, time.UTC), "2024-03-15", "09"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			date, hour := domain.BucketOf(tt.at, hcm)
			assert.Equal(t, tt.wantDate, date)
			assert.Equal(t, tt.wantHour, hour)
		})
	}
}

func TestParseKeys(t *testing.T) {
	_, err := domain.ParseDateKey("2024-3-15")
	assert.ErrorIs(t, err, domain.ErrInvalidDateKey)
	_, err = domain.ParseDateKey("2024-02-30")
	assert.ErrorIs(t, err, domain.ErrInvalidDateKey)
	_, err = domain.ParseHourKey("24")
	assert.ErrorIs(t, err, domain.ErrInvalidHourKey)
	_, err = domain.ParseHourKey("7")
	assert.ErrorIs(t, err, domain.ErrInvalidHourKey)

	hour, err := domain.ParseHourKey("23")
	require.NoError(t, err)
	assert.Equal(t, domain.HourKey("23"), hour)
}

func TestOrderContribution_Validate(t *testing.T) {
	c := firstOrder(t)
	require.NoError(t, c.Validate())

	c.Items[0].Quantity = 0
	assert.ErrorIs(t, c.Validate(), domain.ErrInvalidQuantity)
}

func TestFailedAggregation_Line(t *testing.T) {
	f := domain.FailedAggregation{Scope: domain.ScopeItem, Contribution: firstOrder(t), LineIndex: 1}

	line, ok := f.Line()
	require.True(t, ok)
	assert.Equal(t, "cake", line.ItemID.String())

	f.LineIndex = 5
	_, ok = f.Line()
	assert.False(t, ok)
}

func TestOrderContribution_Occurrence(t *testing.T) {
	coffee := domain.LineItem{ItemID: itemID(t, "coffee"), Quantity: 1}
	cake := domain.LineItem{ItemID: itemID(t, "cake"), Quantity: 1}
	c := domain.OrderContribution{Items: []domain.LineItem{coffee, cake, coffee, coffee}}

	assert.Equal(t, 0, c.Occurrence(0))
	assert.Equal(t, 0, c.Occurrence(1))
	assert.Equal(t, 1, c.Occurrence(2))
	assert.Equal(t, 2, c.Occurrence(3))
	assert.Equal(t, 0, c.Occurrence(7))
}

func TestContributionIDs(t *testing.T) {
	id := orderID(t, "O1")

	assert.Equal(t, "O1", domain.DailyContributionID(id))
	assert.Equal(t, "O1#coffee#0", domain.ItemContributionID(id, itemID(t, "coffee"), 0))
	assert.Equal(t, "a%2Fb%23c#x%23y#1", domain.ItemContributionID(orderID(t, "a/b#c"), itemID(t, "x#y"), 1))
	assert.NotEqual(t,
		domain.ItemContributionID(orderID(t, "O1#x"), itemID(t, "y"), 0),
		domain.ItemContributionID(orderID(t, "O1"), itemID(t, "x#y"), 0),
	)
	assert.Equal(t, "daily/2024-03-15", domain.DailyReportKey("2024-03-15"))
	assert.Equal(t, "item/coffee", domain.ItemReportKey(itemID(t, "coffee")))
}
