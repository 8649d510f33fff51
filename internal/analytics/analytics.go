// Package analytics derives the dashboard aggregates from an expense view.
//
// Every function here is pure: the same inputs always produce the same
// output, nothing is cached between calls and inputs are never modified,
// so derivations may run concurrently without coordination.
package analytics

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"spendlens/internal/core"
	"spendlens/internal/currency"
)

// TrendWindow is the number of most recent months kept by MonthlyTrend.
const TrendWindow = 6

// NoCategory labels the TopCategory sentinel for an empty view.
const NoCategory = "N/A"

type (
	// Row is an expense as presented: its converted amount and a human date.
	// A slice of rows is also the export row-set.
	Row struct {
		core.Expense
		Converted  decimal.Decimal `json:"amountConverted"`
		DateString string          `json:"dateString"`
	}

	CategoryTotal struct {
		Category string          `json:"category"`
		Amount   decimal.Decimal `json:"amount"`
	}

	MonthBucket struct {
		Key   string          `json:"key"` // YYYY-MM
		Label string          `json:"label"`
		Value decimal.Decimal `json:"value"`
	}

	PriorityTotal struct {
		Priority core.Priority   `json:"priority"`
		Amount   decimal.Decimal `json:"amount"`
	}
)

// FormatDate renders a date the way rows display it, e.g. "Jan 10, 2024".
// Zero dates render as the empty string.
func FormatDate(d core.Date) string {
	if d.IsEmpty() {
		return ""
	}
	return d.Format("Jan 2, 2006")
}

// DisplayRows converts each expense into code, rounding each amount to the
// minor unit.
func DisplayRows(expenses []core.Expense, code currency.Code) []Row {
	rows := make([]Row, 0, len(expenses))
	for _, e := range expenses {
		rows = append(rows, Row{
			Expense:    e.Clone(),
			Converted:  currency.ConvertRounded(e.Amount, code),
			DateString: FormatDate(e.Date),
		})
	}
	return rows
}

// Total sums a collection converted into code, unrounded.
func Total(expenses []core.Expense, code currency.Code) decimal.Decimal {
	return currency.Convert(BaseTotal(expenses), code)
}

// BaseTotal sums a collection in the base currency.
func BaseTotal(expenses []core.Expense) decimal.Decimal {
	sum := decimal.Zero
	for _, e := range expenses {
		sum = sum.Add(e.Amount)
	}
	return sum
}

// RowsTotal sums the converted amounts of rows.
func RowsTotal(rows []Row) decimal.Decimal {
	sum := decimal.Zero
	for _, r := range rows {
		sum = sum.Add(r.Converted)
	}
	return sum
}

// CategoryTotals groups rows by category and sorts by descending total.
// Ties keep the order in which categories were first encountered.
func CategoryTotals(rows []Row) []CategoryTotal {
	index := make(map[core.Category]int)
	totals := make([]CategoryTotal, 0)
	for _, r := range rows {
		i, ok := index[r.Category]
		if !ok {
			i = len(totals)
			index[r.Category] = i
			totals = append(totals, CategoryTotal{Category: string(r.Category), Amount: decimal.Zero})
		}
		totals[i].Amount = totals[i].Amount.Add(r.Converted)
	}
	sort.SliceStable(totals, func(a, b int) bool {
		return totals[a].Amount.GreaterThan(totals[b].Amount)
	})
	for i := range totals {
		totals[i].Amount = totals[i].Amount.Round(2)
	}
	return totals
}

// TopCategory returns the most expensive category, or a zero-amount
// sentinel when totals is empty.
func TopCategory(totals []CategoryTotal) CategoryTotal {
	if len(totals) == 0 {
		return CategoryTotal{Category: NoCategory, Amount: decimal.Zero}
	}
	return totals[0]
}

// MonthlyTrend buckets expenses by year-month in the base currency, keeps the
// most recent TrendWindow months in ascending order and converts each
// bucket into code. Expenses with an unparsable (zero) date are skipped here
// only.
func MonthlyTrend(expenses []core.Expense, code currency.Code) []MonthBucket {
	sums := make(map[string]decimal.Decimal)
	for _, e := range expenses {
		if e.Date.IsEmpty() {
			continue
		}
		key := monthKey(e.Date.Year(), int(e.Date.Month()))
		sums[key] = sums[key].Add(e.Amount)
	}

	keys := make([]string, 0, len(sums))
	for k := range sums {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if len(keys) > TrendWindow {
		keys = keys[len(keys)-TrendWindow:]
	}

	buckets := make([]MonthBucket, 0, len(keys))
	for _, k := range keys {
		buckets = append(buckets, MonthBucket{
			Key:   k,
			Label: monthLabel(k),
			Value: currency.ConvertRounded(sums[k], code),
		})
	}
	return buckets
}

// PriorityBreakdown sums converted amounts for every priority level, in
// ascending priority order, reporting zero for absent levels.
func PriorityBreakdown(rows []Row) []PriorityTotal {
	sums := make(map[core.Priority]decimal.Decimal)
	for _, r := range rows {
		sums[r.Priority] = sums[r.Priority].Add(r.Converted)
	}
	out := make([]PriorityTotal, 0, len(core.Priorities()))
	for _, p := range core.Priorities() {
		out = append(out, PriorityTotal{Priority: p, Amount: sums[p].Round(2)})
	}
	return out
}

func monthKey(year, month int) string {
	return fmt.Sprintf("%04d-%02d", year, month)
}

func monthLabel(key string) string {
	d, err := core.ParseDate(key + "-01")
	if err != nil {
		return key
	}
	return d.Format("Jan 2006")
}
