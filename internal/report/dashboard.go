package report

import (
	"time"

	"github.com/shopspring/decimal"

	"vansales/internal/core"
)

// Dashboard is the summary shown on the portal's landing page.
type Dashboard struct {
	Date           string          `json:"date"`
	TodaySales     decimal.Decimal `json:"todaySales"`
	TodayExpenses  decimal.Decimal `json:"todayExpenses"`
	NetProfit      decimal.Decimal `json:"netProfit"`
	ProfitPositive bool            `json:"profitPositive"`
	SalesGrowth    decimal.Decimal `json:"salesGrowth"`
	TotalCustomers int             `json:"totalCustomers"`
	TotalEntries   int             `json:"totalEntries"`
	StockMovements int             `json:"stockMovements"`
	ActiveRoutes   int             `json:"activeRoutes"`
	Weekly         []DayTotal      `json:"weekly"`
	BySalesperson  []GroupTotal    `json:"bySalesperson"`
	Display        Display         `json:"display"`
}

// Display carries the currency-formatted headline amounts.
type Display struct {
	TodaySales    string `json:"todaySales"`
	TodayExpenses string `json:"todayExpenses"`
	NetProfit     string `json:"netProfit"`
}

// Build computes the dashboard for day from a snapshot.
func Build(s core.State, day core.Date) Dashboard {
	sales := DailyTotal(s.Sales, core.FieldDate, core.FieldTotal, day)
	yesterday := DailyTotal(s.Sales, core.FieldDate, core.FieldTotal, day.AddDays(-1))
	expenses := DailyTotal(s.Expenses, core.FieldDate, core.FieldAmount, day)
	profit := NetProfit(sales, expenses)

	return Dashboard{
		Date:           day.String(),
		TodaySales:     sales,
		TodayExpenses:  expenses,
		NetProfit:      profit,
		ProfitPositive: !profit.IsNegative(),
		SalesGrowth:    GrowthPercent(yesterday, sales),
		TotalCustomers: len(s.Customers),
		TotalEntries:   len(s.Sales),
		StockMovements: len(s.StockMovements),
		ActiveRoutes:   DistinctNonEmpty(s.Sales, core.FieldRoute),
		Weekly:         WeeklySeries(s.Sales, core.FieldDate, core.FieldTotal, day, DefaultSeriesDays),
		BySalesperson:  GroupedTotals(s.Sales, []string{core.FieldDate, core.FieldSalesperson}, core.FieldTotal),
		Display: Display{
			TodaySales:    core.FormatQAR(sales),
			TodayExpenses: core.FormatQAR(expenses),
			NetProfit:     core.FormatQAR(profit),
		},
	}
}

// DailySummary is the end-of-day figure kept in the report archive.
type DailySummary struct {
	Date      string          `json:"date"`
	Sales     decimal.Decimal `json:"sales"`
	Expenses  decimal.Decimal `json:"expenses"`
	Profit    decimal.Decimal `json:"profit"`
	Entries   int             `json:"entries"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Summarize computes the archive summary for day.
func Summarize(s core.State, day core.Date, now time.Time) DailySummary {
	sales := DailyTotal(s.Sales, core.FieldDate, core.FieldTotal, day)
	expenses := DailyTotal(s.Expenses, core.FieldDate, core.FieldAmount, day)
	entries := 0
	target := day.String()
	for _, r := range s.Sales {
		if r.Text(core.FieldDate) == target {
			entries++
		}
	}
	return DailySummary{
		Date:      target,
		Sales:     sales,
		Expenses:  expenses,
		Profit:    NetProfit(sales, expenses),
		Entries:   entries,
		CreatedAt: now.UTC(),
	}
}

// PurchaseDrift is a customer whose running purchase total no longer
// matches the sales history.
type PurchaseDrift struct {
	CustomerID string          `json:"customerId"`
	Name       string          `json:"name"`
	Recorded   decimal.Decimal `json:"recorded"`
	Computed   decimal.Decimal `json:"computed"`
}

// RecomputePurchases sums each customer's sales (matched by customer id, or
// by exact name when the sale carries no id) and reports the customers whose
// stored totalPurchases differs.
func RecomputePurchases(customers, sales []core.Record) []PurchaseDrift {
	var out []PurchaseDrift
	for _, c := range customers {
		id, name := c.ID(), c.Text(core.FieldName)
		computed := decimal.Zero
		for _, s := range sales {
			if sid := s.Text(core.FieldCustomerID); sid != "" {
				if sid != id {
					continue
				}
			} else if name == "" || s.Text(core.FieldCustomer) != name {
				continue
			}
			computed = computed.Add(s.Number(core.FieldTotal))
		}
		recorded := c.Number(core.FieldTotalPurchases)
		if !recorded.Equal(computed) {
			out = append(out, PurchaseDrift{CustomerID: id, Name: name, Recorded: recorded, Computed: computed})
		}
	}
	return out
}
