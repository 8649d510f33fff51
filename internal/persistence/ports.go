// Package persistence declares the outbound ports the ledger store writes
// through. Writes replace a user's whole collection; reads for an unknown
// user return empty slices rather than an error.
package persistence

import (
	"context"
	"errors"

	"spendlens/internal/core"
)

// ErrUserNotFound is returned by GetUser when no account has the email.
var ErrUserNotFound = errors.New("user not found")

type (
	ExpenseRepository interface {
		GetExpenses(ctx context.Context, userID string) ([]core.Expense, error)
		PutExpenses(ctx context.Context, userID string, expenses []core.Expense) error
	}

	GoalRepository interface {
		GetGoals(ctx context.Context, userID string) ([]core.Goal, error)
		PutGoals(ctx context.Context, userID string, goals []core.Goal) error
	}

	UserRepository interface {
		// GetUser looks an account up by email, case-insensitively.
		GetUser(ctx context.Context, email string) (core.User, error)
		// PutUser creates or replaces the account keyed by its ID.
		PutUser(ctx context.Context, u core.User) error
	}

	// Persistence is the full collaborator used by sessions and stores.
	Persistence interface {
		ExpenseRepository
		GoalRepository
		UserRepository
	}
)
