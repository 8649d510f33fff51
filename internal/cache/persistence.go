package cache

import (
	"context"
	"strings"
	"time"

	"spendlens/internal/core"
	"spendlens/internal/persistence"
)

// Persistence is a read-through, write-through cache in front of another
// Persistence. Writes go to the backend first and only refresh the cache
// once they succeed; a failed write evicts the entry.
type Persistence struct {
	next     persistence.Persistence
	expenses Cache[[]core.Expense]
	goals    Cache[[]core.Goal]
	users    Cache[core.User]
	closers  []func()
}

var _ persistence.Persistence = (*Persistence)(nil)

// Wrap decorates next with ristretto caches holding up to maxItems entries
// per collection for ttl.
func Wrap(next persistence.Persistence, maxItems int64, ttl time.Duration) (*Persistence, error) {
	expenses, err := NewRistretto[[]core.Expense](maxItems, ttl)
	if err != nil {
		return nil, err
	}
	goals, err := NewRistretto[[]core.Goal](maxItems, ttl)
	if err != nil {
		expenses.Close()
		return nil, err
	}
	users, err := NewRistretto[core.User](maxItems, ttl)
	if err != nil {
		expenses.Close()
		goals.Close()
		return nil, err
	}
	return &Persistence{
		next:     next,
		expenses: expenses,
		goals:    goals,
		users:    users,
		closers:  []func(){expenses.Close, goals.Close, users.Close},
	}, nil
}

func (p *Persistence) GetExpenses(ctx context.Context, userID string) ([]core.Expense, error) {
	if es, ok := p.expenses.Get(userID); ok {
		return cloneExpenses(es), nil
	}
	es, err := p.next.GetExpenses(ctx, userID)
	if err != nil {
		return nil, err
	}
	p.expenses.Set(userID, cloneExpenses(es))
	return es, nil
}

func (p *Persistence) PutExpenses(ctx context.Context, userID string, expenses []core.Expense) error {
	if err := p.next.PutExpenses(ctx, userID, expenses); err != nil {
		p.expenses.Delete(userID)
		return err
	}
	p.expenses.Set(userID, cloneExpenses(expenses))
	return nil
}

func (p *Persistence) GetGoals(ctx context.Context, userID string) ([]core.Goal, error) {
	if gs, ok := p.goals.Get(userID); ok {
		return append([]core.Goal{}, gs...), nil
	}
	gs, err := p.next.GetGoals(ctx, userID)
	if err != nil {
		return nil, err
	}
	p.goals.Set(userID, append([]core.Goal{}, gs...))
	return gs, nil
}

func (p *Persistence) PutGoals(ctx context.Context, userID string, goals []core.Goal) error {
	if err := p.next.PutGoals(ctx, userID, goals); err != nil {
		p.goals.Delete(userID)
		return err
	}
	p.goals.Set(userID, append([]core.Goal{}, goals...))
	return nil
}

// GetUser caches hits only; a missing user is always asked for again.
func (p *Persistence) GetUser(ctx context.Context, email string) (core.User, error) {
	key := userKey(email)
	if u, ok := p.users.Get(key); ok {
		return u, nil
	}
	u, err := p.next.GetUser(ctx, email)
	if err != nil {
		return core.User{}, err
	}
	p.users.Set(key, u)
	return u, nil
}

func (p *Persistence) PutUser(ctx context.Context, u core.User) error {
	key := userKey(u.Email)
	if err := p.next.PutUser(ctx, u); err != nil {
		p.users.Delete(key)
		return err
	}
	p.users.Set(key, u)
	return nil
}

// Close releases the caches. The wrapped Persistence is left open.
func (p *Persistence) Close() error {
	for _, c := range p.closers {
		c()
	}
	return nil
}

func userKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func cloneExpenses(in []core.Expense) []core.Expense {
	out := make([]core.Expense, 0, len(in))
	for _, e := range in {
		out = append(out, e.Clone())
	}
	return out
}
