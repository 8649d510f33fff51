package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"spendlens/internal/core"
	"spendlens/internal/persistence"
)

func TestExpensesRoundTripAndIsolation(t *testing.T) {
	ctx := context.Background()
	s := New()

	got, err := s.GetExpenses(ctx, "nobody")
	if err != nil || got == nil || len(got) != 0 {
		t.Fatalf("unknown user: got=%v err=%v", got, err)
	}

	in := []core.Expense{{ID: "1", Title: "Coffee", Amount: decimal.NewFromInt(4), Tags: []core.Tag{core.Essential}}}
	if err := s.PutExpenses(ctx, "u1", in); err != nil {
		t.Fatalf("put: %v", err)
	}
	in[0].Tags[0] = core.Luxury

	got, _ = s.GetExpenses(ctx, "u1")
	if len(got) != 1 || got[0].Tags[0] != core.Essential {
		t.Fatalf("store must copy on write: %+v", got)
	}
	got[0].Title = "mutated"
	again, _ := s.GetExpenses(ctx, "u1")
	if again[0].Title != "Coffee" {
		t.Fatalf("store must copy on read: %+v", again)
	}

	other, _ := s.GetExpenses(ctx, "u2")
	if len(other) != 0 {
		t.Fatalf("users must be isolated: %+v", other)
	}
}

func TestPutReplacesWholeCollection(t *testing.T) {
	ctx := context.Background()
	s := New()
	_ = s.PutGoals(ctx, "u1", []core.Goal{{ID: "a"}, {ID: "b"}})
	_ = s.PutGoals(ctx, "u1", []core.Goal{{ID: "c"}})

	got, _ := s.GetGoals(ctx, "u1")
	if len(got) != 1 || got[0].ID != "c" {
		t.Fatalf("unexpected goals: %+v", got)
	}
}

func TestUsers(t *testing.T) {
	ctx := context.Background()
	s := New()

	if _, err := s.GetUser(ctx, "a@b.c"); !errors.Is(err, persistence.ErrUserNotFound) {
		t.Fatalf("want ErrUserNotFound, got %v", err)
	}
	u := core.User{ID: "u1", Email: "Ann@Example.com", Name: "Ann"}
	if err := s.PutUser(ctx, u); err != nil {
		t.Fatalf("put user: %v", err)
	}
	got, err := s.GetUser(ctx, "ann@example.com")
	if err != nil || got.ID != "u1" {
		t.Fatalf("lookup by email: got=%+v err=%v", got, err)
	}

	u.Name = "Annie"
	_ = s.PutUser(ctx, u)
	got, _ = s.GetUser(ctx, u.Email)
	if got.Name != "Annie" {
		t.Fatalf("put must replace: %+v", got)
	}
}

func TestPutUserRejectsEmailOfAnotherID(t *testing.T) {
	ctx := context.Background()
	s := New()
	if err := s.PutUser(ctx, core.User{ID: "u1", Email: "ann@example.com"}); err != nil {
		t.Fatalf("put user: %v", err)
	}
	err := s.PutUser(ctx, core.User{ID: "u2", Email: " ANN@example.com"})
	if !errors.Is(err, core.ErrDuplicateUser) {
		t.Fatalf("want ErrDuplicateUser, got %v", err)
	}
	got, _ := s.GetUser(ctx, "ann@example.com")
	if got.ID != "u1" {
		t.Fatalf("first owner must win: %+v", got)
	}
}
