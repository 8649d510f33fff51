// Package memory is an in-process Persistence used for development and
// tests. Data does not survive a restart.
package memory

import (
	"context"
	"strings"
	"sync"

	"spendlens/internal/core"
	"spendlens/internal/persistence"
)

type Store struct {
	mu       sync.Mutex
	users    map[string]core.User // by ID
	expenses map[string][]core.Expense
	goals    map[string][]core.Goal
}

var _ persistence.Persistence = (*Store)(nil)

func New() *Store {
	return &Store{
		users:    make(map[string]core.User),
		expenses: make(map[string][]core.Expense),
		goals:    make(map[string][]core.Goal),
	}
}

func (s *Store) GetExpenses(_ context.Context, userID string) ([]core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneExpenses(s.expenses[userID]), nil
}

func (s *Store) PutExpenses(_ context.Context, userID string, expenses []core.Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expenses[userID] = cloneExpenses(expenses)
	return nil
}

func (s *Store) GetGoals(_ context.Context, userID string) ([]core.Goal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Goal{}, s.goals[userID]...), nil
}

func (s *Store) PutGoals(_ context.Context, userID string, goals []core.Goal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.goals[userID] = append([]core.Goal{}, goals...)
	return nil
}

func (s *Store) GetUser(_ context.Context, email string) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, strings.TrimSpace(email)) {
			return u, nil
		}
	}
	return core.User{}, persistence.ErrUserNotFound
}

// PutUser inserts or replaces u by ID. An email already held by another
// ID is rejected with core.ErrDuplicateUser, matching the unique index of
// the SQL backends.
func (s *Store) PutUser(_ context.Context, u core.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, other := range s.users {
		if id != u.ID && strings.EqualFold(other.Email, strings.TrimSpace(u.Email)) {
			return core.ErrDuplicateUser
		}
	}
	s.users[u.ID] = u
	return nil
}

func cloneExpenses(in []core.Expense) []core.Expense {
	out := make([]core.Expense, 0, len(in))
	for _, e := range in {
		out = append(out, e.Clone())
	}
	return out
}
