package core

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"spendlens/internal/currency"
)

// DateLayout is the canonical wire and storage layout for calendar dates.
const DateLayout = "2006-01-02"

// DefaultMonthlyBudget is assigned to newly registered users.
var DefaultMonthlyBudget = decimal.NewFromInt(1000)

type (
	Date struct {
		time.Time
	}

	User struct {
		ID            string          `json:"id"`
		Name          string          `json:"name"`
		Email         string          `json:"email"`
		PasswordHash  string          `json:"-"`
		MonthlyBudget decimal.Decimal `json:"monthlyBudget"`
		Currency      currency.Code   `json:"currency"`
		CreatedAt     time.Time       `json:"createdAt"`
	}

	Expense struct {
		ID          string          `json:"id"`
		Title       string          `json:"title"`
		Amount      decimal.Decimal `json:"amount"` // base currency
		Date        Date            `json:"date"`
		Category    Category        `json:"category"`
		Description string          `json:"description,omitempty"`
		Tags        []Tag           `json:"tags"`
		Frequency   Frequency       `json:"frequency"`
		Priority    Priority        `json:"priority"`
		UserID      string          `json:"userId"`
		CreatedAt   time.Time       `json:"createdAt"`
		UpdatedAt   time.Time       `json:"updatedAt"`
	}

	Goal struct {
		ID            string          `json:"id"`
		Title         string          `json:"title"`
		TargetAmount  decimal.Decimal `json:"targetAmount"`
		CurrentAmount decimal.Decimal `json:"currentAmount"`
		TargetDate    Date            `json:"targetDate"`
		Description   string          `json:"description,omitempty"`
		UserID        string          `json:"userId"`
		CreatedAt     time.Time       `json:"createdAt"`
		UpdatedAt     time.Time       `json:"updatedAt"`
	}
)

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar date in t's location, expressed in UTC.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), int(t.Month()), t.Day())
}

// ParseDate accepts YYYY-MM-DD or an RFC 3339 timestamp.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(DateLayout, s); err == nil {
		return DateOf(t), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return Date{}, err
	}
	return DateOf(t), nil
}

// IsEmpty returns true if the date is zero. Zero dates mark values that
// could not be parsed from storage.
func (d Date) IsEmpty() bool {
	return d.IsZero()
}

// Before reports whether d is an earlier calendar date than other.
func (d Date) Before(other Date) bool {
	return d.Time.Before(other.Time)
}

// After reports whether d is a later calendar date than other.
func (d Date) After(other Date) bool {
	return d.Time.After(other.Time)
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON is lenient: an unparsable value yields the zero Date
// rather than an error, so one bad record never blocks a whole load.
func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		*d = Date{}
		return nil
	}
	*d = parsed
	return nil
}

func (e Expense) Validate() error {
	if strings.TrimSpace(e.Title) == "" {
		return ErrEmptyTitle
	}
	if !e.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if e.Category != "" && !e.Category.Valid() {
		return ErrUnknownCategory
	}
	if e.Priority != "" && !e.Priority.Valid() {
		return ErrUnknownPriority
	}
	if e.Frequency != "" && !e.Frequency.Valid() {
		return ErrUnknownFrequency
	}
	for _, tag := range e.Tags {
		if !tag.Valid() {
			return ErrUnknownTag
		}
	}
	return nil
}

// HasTag reports whether the expense carries tag.
func (e Expense) HasTag(tag Tag) bool {
	for _, t := range e.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Clone returns a copy that shares no mutable state with e.
func (e Expense) Clone() Expense {
	if e.Tags != nil {
		e.Tags = append([]Tag(nil), e.Tags...)
	}
	return e
}

// WithDefaults fills the fields the entry form pre-selects.
func (e Expense) WithDefaults(today Date) Expense {
	if e.Date.IsZero() {
		e.Date = today
	}
	if e.Category == "" {
		e.Category = Categories()[0]
	}
	if e.Frequency == "" {
		e.Frequency = OneTime
	}
	if e.Priority == "" {
		e.Priority = Medium
	}
	if e.Tags == nil {
		e.Tags = []Tag{}
	}
	return e
}

func (g Goal) Validate() error {
	if strings.TrimSpace(g.Title) == "" {
		return ErrEmptyTitle
	}
	if !g.TargetAmount.IsPositive() {
		return ErrInvalidTarget
	}
	if g.CurrentAmount.IsNegative() {
		return ErrNegativeProgress
	}
	return nil
}

func (u User) Validate() error {
	if strings.TrimSpace(u.Email) == "" {
		return ErrEmptyEmail
	}
	if strings.TrimSpace(u.Name) == "" {
		return ErrEmptyName
	}
	if !u.MonthlyBudget.IsPositive() {
		return ErrInvalidBudget
	}
	return nil
}
