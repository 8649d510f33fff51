// Package goals derives savings goal progress. Nothing here is stored:
// progress is recomputed on every read from the goal and the current time.
package goals

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"spendlens/internal/core"
)

var hundred = decimal.NewFromInt(100)

// Progress is a goal with its derived completion figures.
type Progress struct {
	Goal          core.Goal       `json:"goal"`
	Percent       decimal.Decimal `json:"percent"`
	DaysRemaining int             `json:"daysRemaining"`
	Passed        bool            `json:"passed"`
}

// Track computes progress towards g at now. Percent is capped at 100 even
// when the saved amount exceeds the target. DaysRemaining is negative once
// the target date lies in the past.
func Track(g core.Goal, now time.Time) Progress {
	target := g.TargetAmount
	if !target.IsPositive() {
		target = decimal.NewFromInt(1)
	}
	pct := decimal.Min(hundred, g.CurrentAmount.Div(target).Mul(hundred))
	if pct.IsNegative() {
		pct = decimal.Zero
	}

	days := DaysUntil(g.TargetDate, now)
	return Progress{
		Goal:          g,
		Percent:       pct.Round(2),
		DaysRemaining: days,
		Passed:        days <= 0,
	}
}

// TrackAll tracks every goal in order.
func TrackAll(gs []core.Goal, now time.Time) []Progress {
	out := make([]Progress, 0, len(gs))
	for _, g := range gs {
		out = append(out, Track(g, now))
	}
	return out
}

// DaysUntil is the ceiling of the whole days between now and the start of
// date (UTC). An empty date counts as already passed.
func DaysUntil(date core.Date, now time.Time) int {
	if date.IsEmpty() {
		return 0
	}
	diff := date.Time.Sub(now.UTC())
	return int(math.Ceil(diff.Hours() / 24))
}
