// Package report derives dashboard figures from record collections.
//
// Every function here is pure and total: missing, null or non-numeric values
// count as zero and nothing panics or returns an error.
package report

import (
	"strings"

	"github.com/shopspring/decimal"

	"vansales/internal/core"
)

// DefaultSeriesDays is the length of the dashboard sales series.
const DefaultSeriesDays = 7

// KeySeparator joins the key fields of a grouped total.
const KeySeparator = "|"

var hundred = decimal.NewFromInt(100)

// DayTotal is one point of a daily series.
type DayTotal struct {
	Date  string          `json:"date"`
	Label string          `json:"label"`
	Total decimal.Decimal `json:"total"`
}

// GroupTotal is the sum of one group produced by GroupedTotals.
type GroupTotal struct {
	Key    string          `json:"key"`
	Values []string        `json:"values"`
	Total  decimal.Decimal `json:"total"`
	Count  int             `json:"count"`
}

// DailyTotal sums valueField over records whose dateField is exactly day.
func DailyTotal(recs []core.Record, dateField, valueField string, day core.Date) decimal.Decimal {
	target := day.String()
	sum := decimal.Zero
	for _, r := range recs {
		if r.Text(dateField) != target {
			continue
		}
		sum = sum.Add(r.Number(valueField))
	}
	return sum
}

// WeeklySeries returns one DailyTotal per calendar day for the days ending at
// end, oldest first. The series always has exactly days entries; days <= 0
// means DefaultSeriesDays.
func WeeklySeries(recs []core.Record, dateField, valueField string, end core.Date, days int) []DayTotal {
	if days <= 0 {
		days = DefaultSeriesDays
	}
	totals := make(map[string]decimal.Decimal, days)
	first := end.AddDays(-(days - 1)).String()
	last := end.String()
	for _, r := range recs {
		d := r.Text(dateField)
		// Lexical order matches calendar order for YYYY-MM-DD strings.
		if d < first || d > last {
			continue
		}
		totals[d] = totals[d].Add(r.Number(valueField))
	}

	out := make([]DayTotal, 0, days)
	for i := days - 1; i >= 0; i-- {
		day := end.AddDays(-i)
		key := day.String()
		out = append(out, DayTotal{
			Date:  key,
			Label: day.ShortWeekday(),
			Total: totals[key],
		})
	}
	return out
}

// NetProfit is sales minus expenses. The value is not clamped.
func NetProfit(sales, expenses decimal.Decimal) decimal.Decimal {
	return sales.Sub(expenses)
}

// DistinctNonEmpty counts the distinct non-blank values of field.
func DistinctNonEmpty(recs []core.Record, field string) int {
	seen := make(map[string]struct{})
	for _, r := range recs {
		v := strings.TrimSpace(r.Text(field))
		if v == "" {
			continue
		}
		seen[v] = struct{}{}
	}
	return len(seen)
}

// GroupedTotals sums valueField per distinct combination of keyFields.
// Groups are returned in the order their first record appears.
func GroupedTotals(recs []core.Record, keyFields []string, valueField string) []GroupTotal {
	index := make(map[string]int)
	var out []GroupTotal
	for _, r := range recs {
		values := make([]string, len(keyFields))
		for i, f := range keyFields {
			values[i] = r.Text(f)
		}
		key := strings.Join(values, KeySeparator)
		i, ok := index[key]
		if !ok {
			i = len(out)
			index[key] = i
			out = append(out, GroupTotal{Key: key, Values: values, Total: decimal.Zero})
		}
		out[i].Total = out[i].Total.Add(r.Number(valueField))
		out[i].Count++
	}
	return out
}

// GrowthPercent is the change from base to current as a percentage rounded to
// two places. A zero base yields 0 instead of an infinite value.
func GrowthPercent(base, current decimal.Decimal) decimal.Decimal {
	if base.IsZero() {
		return decimal.Zero
	}
	return current.Sub(base).Div(base.Abs()).Mul(hundred).Round(2)
}

// Sum adds valueField over every record.
func Sum(recs []core.Record, valueField string) decimal.Decimal {
	sum := decimal.Zero
	for _, r := range recs {
		sum = sum.Add(r.Number(valueField))
	}
	return sum
}
