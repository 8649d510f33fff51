// Package filter selects the expenses visible through the user's current
// search criteria.
package filter

import (
	"strings"

	"github.com/shopspring/decimal"

	"spendlens/internal/core"
)

// Criteria is the multi-field predicate. Zero values are wildcards:
// an empty Category or Priority matches everything, a null bound or zero
// date is unbounded, and empty Tags disables tag matching.
type Criteria struct {
	Search    string
	Category  core.Category
	Tags      []core.Tag
	Priority  core.Priority
	MinAmount decimal.NullDecimal
	MaxAmount decimal.NullDecimal
	StartDate core.Date
	EndDate   core.Date
}

// IsEmpty reports whether c matches every expense.
func (c Criteria) IsEmpty() bool {
	return strings.TrimSpace(c.Search) == "" &&
		c.wildcardCategory() && c.wildcardPriority() &&
		len(c.Tags) == 0 &&
		!c.MinAmount.Valid && !c.MaxAmount.Valid &&
		c.StartDate.IsEmpty() && c.EndDate.IsEmpty()
}

// Apply returns the expenses passing every clause of c, in their original
// order. The input slice is never modified.
func Apply(expenses []core.Expense, c Criteria) []core.Expense {
	search := strings.ToLower(c.Search)
	out := make([]core.Expense, 0, len(expenses))
	for _, e := range expenses {
		if c.matches(e, search) {
			out = append(out, e.Clone())
		}
	}
	return out
}

// Matches evaluates c against a single expense.
func (c Criteria) Matches(e core.Expense) bool {
	return c.matches(e, strings.ToLower(c.Search))
}

func (c Criteria) matches(e core.Expense, search string) bool {
	if search != "" &&
		!strings.Contains(strings.ToLower(e.Title), search) &&
		!strings.Contains(strings.ToLower(e.Description), search) {
		return false
	}
	if !c.wildcardCategory() && e.Category != c.Category {
		return false
	}
	if c.MinAmount.Valid && e.Amount.LessThan(c.MinAmount.Decimal) {
		return false
	}
	if c.MaxAmount.Valid && e.Amount.GreaterThan(c.MaxAmount.Decimal) {
		return false
	}
	if !c.StartDate.IsEmpty() && e.Date.Before(c.StartDate) {
		return false
	}
	if !c.EndDate.IsEmpty() && e.Date.After(c.EndDate) {
		return false
	}
	if len(c.Tags) > 0 && !anyTag(e, c.Tags) {
		return false
	}
	if !c.wildcardPriority() && e.Priority != c.Priority {
		return false
	}
	return true
}

func (c Criteria) wildcardCategory() bool {
	return c.Category == "" || string(c.Category) == core.Wildcard
}

func (c Criteria) wildcardPriority() bool {
	return c.Priority == "" || string(c.Priority) == core.Wildcard
}

func anyTag(e core.Expense, tags []core.Tag) bool {
	for _, t := range tags {
		if e.HasTag(t) {
			return true
		}
	}
	return false
}
