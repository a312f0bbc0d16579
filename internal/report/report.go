// Package report computes derived views over ledger snapshots: per-category
// totals, time series and budget-versus-spend summaries. All functions are
// pure; nothing here is persisted or cached.
package report

import (
	"time"

	"kharcha/internal/core"
)

// TrailingMonths is the fixed width of the rolling month series.
const TrailingMonths = 6

// Point is one period of a time series.
type Point struct {
	Label string
	Total core.Money
}

// BudgetSummary compares spend in one month against the stored budget.
// Remaining goes negative when over budget; Percentage is capped at 100 for
// display while Remaining still reports the true overage.
type BudgetSummary struct {
	Budget     core.Money
	Spent      core.Money
	Remaining  core.Money
	Percentage float64
	Currency   string
}

// CategoryTotals groups records by canonical category and sums amounts.
// Categories absent from the input contribute no entry.
func CategoryTotals(records core.Snapshot) map[string]core.Money {
	totals := make(map[string]core.Money)
	for _, e := range records {
		t := totals[e.Category]
		t.Cents += e.Amount.Cents
		totals[e.Category] = t
	}
	return totals
}

// DailyTotals produces one point per calendar day of the given month,
// ordered 1..N and zero-filled for days without expenses. Labels are the
// day numbers.
func DailyTotals(records core.Snapshot, year int, month time.Month) []Point {
	days := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()

	points := make([]Point, days)
	for i := range points {
		points[i].Label = time.Date(year, month, i+1, 0, 0, 0, 0, time.UTC).Format("2")
	}
	for _, e := range records {
		if !e.OccurredOn.In(year, month) {
			continue
		}
		points[e.OccurredOn.Day()-1].Total.Cents += e.Amount.Cents
	}
	return points
}

// MonthlyTotals produces exactly TrailingMonths points covering the month of
// now and the preceding months, oldest first, labeled with short month names
// and zero-filled. The window is recomputed from now on every call.
func MonthlyTotals(records core.Snapshot, now time.Time) []Point {
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	type period struct {
		year  int
		month time.Month
	}
	index := make(map[period]int, TrailingMonths)
	points := make([]Point, TrailingMonths)
	for i := 0; i < TrailingMonths; i++ {
		m := first.AddDate(0, i-(TrailingMonths-1), 0)
		points[i].Label = m.Format("Jan")
		index[period{m.Year(), m.Month()}] = i
	}

	for _, e := range records {
		if i, ok := index[period{e.OccurredOn.Year(), e.OccurredOn.Time.Month()}]; ok {
			points[i].Total.Cents += e.Amount.Cents
		}
	}
	return points
}

// MonthSpend sums the amounts of records occurring in the given month.
func MonthSpend(records core.Snapshot, year int, month time.Month) core.Money {
	var spent core.Money
	for _, e := range records {
		if e.OccurredOn.In(year, month) {
			spent.Cents += e.Amount.Cents
		}
	}
	return spent
}

// Summary builds the budget-versus-spend view for one month. With a zero
// budget the percentage is 0 regardless of spend.
func Summary(records core.Snapshot, year int, month time.Month, profile core.BudgetProfile) BudgetSummary {
	spent := MonthSpend(records, year, month)
	budget := profile.MonthlyBudget

	s := BudgetSummary{
		Budget:    budget,
		Spent:     spent,
		Remaining: core.Money{Cents: budget.Cents - spent.Cents},
		Currency:  profile.Currency,
	}
	if budget.Cents > 0 {
		pct := float64(spent.Cents) / float64(budget.Cents) * 100
		if pct > 100 {
			pct = 100
		}
		s.Percentage = pct
	}
	return s
}
