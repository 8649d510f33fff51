// Package export renders a fully materialized dashboard snapshot into
// downloadable or remote artifacts. Exporters never read the ledger
// themselves: everything they print is in the Snapshot.
package export

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"spendlens/internal/analytics"
	"spendlens/internal/budget"
	"spendlens/internal/currency"
)

// Snapshot is the filtered, converted view at the moment of export.
type Snapshot struct {
	UserName    string
	Email       string
	Currency    currency.Code
	GeneratedAt time.Time
	Rows        []analytics.Row
	Total       decimal.Decimal
	Categories  []analytics.CategoryTotal
	Budget      budget.Status
}

// Artifact is the result of an export. Data is empty for remote exports,
// which set Ref to where the data went.
type Artifact struct {
	Name        string
	ContentType string
	Data        []byte
	Ref         string
}

type Exporter interface {
	Export(ctx context.Context, s Snapshot) (Artifact, error)
}

// Header is the column order shared by every tabular export.
var Header = []string{"Date", "Title", "Category", "Priority", "Frequency", "Tags", "Description", "Amount"}

// Records flattens the snapshot rows into string cells matching Header.
// Amounts are the converted, rounded values formatted with the currency
// symbol.
func Records(s Snapshot) [][]string {
	out := make([][]string, 0, len(s.Rows))
	for _, r := range s.Rows {
		tags := make([]string, 0, len(r.Tags))
		for _, t := range r.Tags {
			tags = append(tags, string(t))
		}
		out = append(out, []string{
			r.DateString,
			r.Title,
			string(r.Category),
			string(r.Priority),
			string(r.Frequency),
			strings.Join(tags, ", "),
			r.Description,
			currency.Format(r.Converted, s.Currency),
		})
	}
	return out
}
