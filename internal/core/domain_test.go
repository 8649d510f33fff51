package core

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestExpenseValidate(t *testing.T) {
	good := Expense{
		Title:    "Coffee",
		Amount:   decimal.RequireFromString("4.50"),
		Date:     NewDate(2024, 1, 10),
		Category: FoodAndDining,
		Priority: Low,
		Tags:     []Tag{Essential},
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	tests := []struct {
		name   string
		mutate func(e *Expense)
		want   error
	}{
		{"blank title", func(e *Expense) { e.Title = "   " }, ErrEmptyTitle},
		{"zero amount", func(e *Expense) { e.Amount = decimal.Zero }, ErrInvalidAmount},
		{"negative amount", func(e *Expense) { e.Amount = decimal.NewFromInt(-1) }, ErrInvalidAmount},
		{"unknown category", func(e *Expense) { e.Category = "Pets" }, ErrUnknownCategory},
		{"unknown priority", func(e *Expense) { e.Priority = "Meh" }, ErrUnknownPriority},
		{"unknown frequency", func(e *Expense) { e.Frequency = "Hourly" }, ErrUnknownFrequency},
		{"unknown tag", func(e *Expense) { e.Tags = []Tag{"Shiny"} }, ErrUnknownTag},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := good.Clone()
			tt.mutate(&e)
			err := e.Validate()
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("expected error to be a validation error, got %v", err)
			}
		})
	}
}

func TestGoalValidate(t *testing.T) {
	good := Goal{Title: "Trip", TargetAmount: decimal.NewFromInt(1000)}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	over := good
	over.CurrentAmount = decimal.NewFromInt(5000)
	if err := over.Validate(); err != nil {
		t.Fatalf("over-achievement must be allowed, got %v", err)
	}

	bads := []Goal{
		{Title: "", TargetAmount: decimal.NewFromInt(1)},
		{Title: "x", TargetAmount: decimal.Zero},
		{Title: "x", TargetAmount: decimal.NewFromInt(1), CurrentAmount: decimal.NewFromInt(-1)},
	}
	for i, g := range bads {
		if err := g.Validate(); !errors.Is(err, ErrValidation) {
			t.Fatalf("case %d expected validation error, got %v", i, err)
		}
	}
}

func TestExpenseWithDefaults(t *testing.T) {
	today := NewDate(2024, 3, 1)
	e := Expense{Title: "x", Amount: decimal.NewFromInt(1)}.WithDefaults(today)

	if e.Date != today {
		t.Errorf("expected date %v, got %v", today, e.Date)
	}
	if e.Category != FoodAndDining {
		t.Errorf("expected first category, got %q", e.Category)
	}
	if e.Frequency != OneTime || e.Priority != Medium {
		t.Errorf("unexpected defaults: %q %q", e.Frequency, e.Priority)
	}
	if e.Tags == nil {
		t.Error("expected non-nil tags")
	}
}

func TestExpenseCloneIsolatesTags(t *testing.T) {
	e := Expense{Tags: []Tag{Essential}}
	c := e.Clone()
	c.Tags[0] = Luxury
	if e.Tags[0] != Essential {
		t.Fatal("clone shares tag storage with original")
	}
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2024-01-10")
	if err != nil || d != NewDate(2024, 1, 10) {
		t.Fatalf("unexpected: %v %v", d, err)
	}
	d, err = ParseDate("2024-01-10T15:04:05Z")
	if err != nil || d != NewDate(2024, 1, 10) {
		t.Fatalf("unexpected: %v %v", d, err)
	}
	if _, err := ParseDate("not a date"); err == nil {
		t.Fatal("expected error")
	}
}

func TestDateJSONIsLenient(t *testing.T) {
	var e struct {
		Date Date `json:"date"`
	}
	if err := json.Unmarshal([]byte(`{"date":"garbage"}`), &e); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !e.Date.IsEmpty() {
		t.Fatalf("expected zero date, got %v", e.Date)
	}

	out, err := json.Marshal(struct {
		Date Date `json:"date"`
	}{NewDate(2024, 2, 29)})
	if err != nil || string(out) != `{"date":"2024-02-29"}` {
		t.Fatalf("unexpected marshal: %s %v", out, err)
	}
}

func TestDateOf(t *testing.T) {
	d := DateOf(time.Date(2024, 5, 6, 23, 59, 0, 0, time.UTC))
	if d != NewDate(2024, 5, 6) {
		t.Fatalf("unexpected %v", d)
	}
}

func TestPriorityRank(t *testing.T) {
	prev := -1
	for _, p := range Priorities() {
		if p.Rank() <= prev {
			t.Fatalf("priorities not ascending at %q", p)
		}
		prev = p.Rank()
	}
	if Priority("nope").Valid() {
		t.Fatal("unknown priority reported valid")
	}
}
