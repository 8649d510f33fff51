// Package currency converts base-currency amounts into display currencies
// using static per-session rates and renders them for presentation.
//
// Stored amounts are always in the base currency; conversion happens only
// when deriving views, never on write.
package currency

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// Code identifies a supported currency.
type Code string

const (
	USD Code = "USD"
	EUR Code = "EUR"
	GBP Code = "GBP"

	// Base is the currency every amount is persisted in.
	Base = USD
)

// Currency describes a display currency with its fixed rate against Base.
type Currency struct {
	Code   Code            `json:"code"`
	Rate   decimal.Decimal `json:"rate"`
	Symbol string          `json:"symbol"`
}

var table = []Currency{
	{Code: USD, Rate: decimal.NewFromInt(1), Symbol: "$"},
	{Code: EUR, Rate: decimal.RequireFromString("0.9"), Symbol: "€"},
	{Code: GBP, Rate: decimal.RequireFromString("0.8"), Symbol: "£"},
}

var printer = message.NewPrinter(language.AmericanEnglish)

// All returns the supported currencies in display order.
func All() []Currency {
	return append([]Currency(nil), table...)
}

// Valid reports whether c is a supported currency code.
func (c Code) Valid() bool {
	_, ok := lookup(c)
	return ok
}

// String implements fmt.Stringer
func (c Code) String() string {
	return string(c)
}

// Lookup returns the descriptor for code, falling back to the base currency
// for unknown codes.
func Lookup(code Code) Currency {
	if cur, ok := lookup(code); ok {
		return cur
	}
	cur, _ := lookup(Base)
	return cur
}

func lookup(code Code) (Currency, bool) {
	for _, cur := range table {
		if cur.Code == code {
			return cur, true
		}
	}
	return Currency{}, false
}

// Convert multiplies a base amount by the target currency's rate.
// The result is not rounded; callers round at presentation time.
func Convert(amountInBase decimal.Decimal, target Code) decimal.Decimal {
	return amountInBase.Mul(Lookup(target).Rate)
}

// ConvertRounded converts and rounds to the minor unit (2 places).
func ConvertRounded(amountInBase decimal.Decimal, target Code) decimal.Decimal {
	return Convert(amountInBase, target).Round(2)
}

// Format renders an already-converted amount with the currency symbol,
// en-US digit grouping and two decimal places, e.g. "$1,234.50" or "-€3.00".
func Format(amount decimal.Decimal, code Code) string {
	cur := Lookup(code)
	rounded := amount.Round(2)
	sign := ""
	if rounded.IsNegative() {
		sign = "-"
		rounded = rounded.Abs()
	}
	digits := printer.Sprint(number.Decimal(rounded.InexactFloat64(),
		number.MinFractionDigits(2),
		number.MaxFractionDigits(2)))
	return sign + cur.Symbol + digits
}
