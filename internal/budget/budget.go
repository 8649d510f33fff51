// Package budget measures spending against the user's monthly limit.
package budget

import (
	"fmt"

	"github.com/shopspring/decimal"

	"spendlens/internal/analytics"
	"spendlens/internal/core"
	"spendlens/internal/currency"
)

// Band classifies how close spending is to the limit.
type Band string

const (
	Normal   Band = "normal"
	Warning  Band = "warning"
	Critical Band = "critical"
)

var (
	hundred           = decimal.NewFromInt(100)
	warningThreshold  = decimal.NewFromInt(75)
	criticalThreshold = decimal.NewFromInt(90)
)

// Status is the budget utilization in the display currency.
type Status struct {
	Spent      decimal.Decimal `json:"spent"`
	Limit      decimal.Decimal `json:"limit"`
	Remaining  decimal.Decimal `json:"remaining"`
	Percentage decimal.Decimal `json:"percentage"`
	Band       Band            `json:"band"`
	Exceeded   bool            `json:"exceeded"`
}

// Track computes utilization of limit (base currency) by expenses, displayed
// in code. Callers pass the full ledger, not a filtered view.
func Track(expenses []core.Expense, limit decimal.Decimal, code currency.Code) Status {
	spent := analytics.Total(expenses, code)
	converted := currency.Convert(limit, code)

	remaining := converted.Sub(spent)
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}

	var pct decimal.Decimal
	switch {
	case converted.IsPositive():
		pct = decimal.Min(hundred, spent.Div(converted).Mul(hundred))
	case spent.IsPositive():
		pct = hundred
	default:
		pct = decimal.Zero
	}
	pct = pct.Round(2)

	return Status{
		Spent:      spent.Round(2),
		Limit:      converted.Round(2),
		Remaining:  remaining.Round(2),
		Percentage: pct,
		Band:       BandFor(pct),
		Exceeded:   spent.GreaterThan(converted),
	}
}

// BandFor maps a utilization percentage to its band:
// up to 75 is normal, up to 90 is warning, above 90 is critical.
func BandFor(pct decimal.Decimal) Band {
	switch {
	case pct.GreaterThan(criticalThreshold):
		return Critical
	case pct.GreaterThan(warningThreshold):
		return Warning
	default:
		return Normal
	}
}

// CheckLimit rejects a proposed limit below current spend. Both sides are in
// the base currency. The error wraps core.ErrBudgetBelowSpend; the caller
// may still apply the limit after the user confirms.
func CheckLimit(newLimit decimal.Decimal, expenses []core.Expense) error {
	if !newLimit.IsPositive() {
		return core.ErrInvalidBudget
	}
	spent := analytics.BaseTotal(expenses)
	if newLimit.LessThan(spent) {
		return fmt.Errorf("%w: limit %s, spent %s", core.ErrBudgetBelowSpend,
			newLimit.StringFixed(2), spent.StringFixed(2))
	}
	return nil
}
