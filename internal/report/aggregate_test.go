package report

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vansales/internal/core"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func sampleSales() []core.Record {
	return []core.Record{
		{"date": "2024-01-01", "total": "100", "route": "North", "salesperson": "ali"},
		{"date": "2024-01-01", "total": "50", "route": "South", "salesperson": "sara"},
		{"date": "2024-01-02", "total": "10", "route": "North", "salesperson": "ali"},
	}
}

func TestDailyTotal(t *testing.T) {
	sales := sampleSales()
	assert.True(t, DailyTotal(sales, "date", "total", core.NewDate(2024, 1, 1)).Equal(dec("150")))
	assert.True(t, DailyTotal(sales, "date", "total", core.NewDate(2024, 1, 3)).IsZero())
	assert.True(t, DailyTotal(nil, "date", "total", core.NewDate(2024, 1, 1)).IsZero())
}

func TestDailyTotalCoercesBadValuesToZero(t *testing.T) {
	recs := []core.Record{
		{"date": "2024-01-01", "total": "abc"},
		{"date": "2024-01-01", "total": nil},
		{"date": "2024-01-01"},
		{"date": "2024-01-01", "total": true},
		{"date": "2024-01-01", "total": 2.5},
		{"date": "2024-01-01T08:00:00Z", "total": "99"},
	}
	got := DailyTotal(recs, "date", "total", core.NewDate(2024, 1, 1))
	assert.True(t, got.Equal(dec("2.5")), "got %s", got)
}

func TestWeeklySeries(t *testing.T) {
	end := core.NewDate(2024, 1, 2)

	for _, tc := range []struct {
		name string
		recs []core.Record
	}{
		{"empty", nil},
		{"one", sampleSales()[:1]},
		{"many", sampleSales()},
	} {
		t.Run(tc.name, func(t *testing.T) {
			series := WeeklySeries(tc.recs, "date", "total", end, 7)
			require.Len(t, series, 7)
			assert.Equal(t, "2023-12-27", series[0].Date)
			assert.Equal(t, "2024-01-02", series[6].Date)
			for i := 1; i < len(series); i++ {
				assert.Less(t, series[i-1].Date, series[i].Date)
			}
		})
	}

	series := WeeklySeries(sampleSales(), "date", "total", end, 0)
	require.Len(t, series, DefaultSeriesDays)
	assert.Equal(t, "Mon", series[5].Label)
	assert.True(t, series[5].Total.Equal(dec("150")))
	assert.True(t, series[6].Total.Equal(dec("10")))
	assert.True(t, series[0].Total.IsZero())
}

func TestNetProfitIsNotClamped(t *testing.T) {
	assert.True(t, NetProfit(dec("100"), dec("30")).Equal(dec("70")))
	assert.True(t, NetProfit(dec("10"), dec("30")).Equal(dec("-20")))
}

func TestDistinctNonEmpty(t *testing.T) {
	recs := append(sampleSales(), core.Record{"route": ""}, core.Record{"route": "  "}, core.Record{})
	assert.Equal(t, 2, DistinctNonEmpty(recs, "route"))
	assert.Equal(t, 0, DistinctNonEmpty(nil, "route"))
}

func TestGroupedTotalsKeepsFirstOccurrenceOrder(t *testing.T) {
	recs := []core.Record{
		{"date": "2024-01-02", "salesperson": "sara", "total": "5"},
		{"date": "2024-01-01", "salesperson": "ali", "total": "100"},
		{"date": "2024-01-02", "salesperson": "sara", "total": "7"},
		{"date": "2024-01-01", "salesperson": "ali", "total": "oops"},
	}
	groups := GroupedTotals(recs, []string{"date", "salesperson"}, "total")
	require.Len(t, groups, 2)
	assert.Equal(t, "2024-01-02|sara", groups[0].Key)
	assert.Equal(t, []string{"2024-01-02", "sara"}, groups[0].Values)
	assert.True(t, groups[0].Total.Equal(dec("12")))
	assert.Equal(t, 2, groups[0].Count)
	assert.Equal(t, "2024-01-01|ali", groups[1].Key)
	assert.True(t, groups[1].Total.Equal(dec("100")))

	again := GroupedTotals(recs, []string{"date", "salesperson"}, "total")
	assert.Equal(t, groups, again)
}

func TestGrowthPercent(t *testing.T) {
	cases := []struct {
		base, current, want string
	}{
		{"0", "0", "0"},
		{"0", "50", "0"},
		{"100", "150", "50"},
		{"100", "50", "-50"},
		{"3", "4", "33.33"},
		{"-100", "-50", "50"},
	}
	for _, tc := range cases {
		got := GrowthPercent(dec(tc.base), dec(tc.current))
		assert.True(t, got.Equal(dec(tc.want)), "GrowthPercent(%s, %s) = %s, want %s", tc.base, tc.current, got, tc.want)
	}
}

func TestSum(t *testing.T) {
	assert.True(t, Sum(sampleSales(), "total").Equal(dec("160")))
}
