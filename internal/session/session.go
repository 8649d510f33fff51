// Package session owns the per-user runtime: a ledger store and a
// notification queue opened at login and torn down at logout.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"spendlens/internal/analytics"
	"spendlens/internal/budget"
	"spendlens/internal/core"
	"spendlens/internal/currency"
	"spendlens/internal/export"
	"spendlens/internal/filter"
	"spendlens/internal/goals"
	"spendlens/internal/ledger"
	logx "spendlens/internal/log"
	"spendlens/internal/notify"
	"spendlens/internal/persistence"
)

const (
	MsgLoginSuccess    = "Login successful"
	MsgRegisterSuccess = "Registration successful"
	MsgSettingsSaved   = "Settings saved successfully"
	MsgSettingsFailed  = "Failed to save settings"
)

// Session is one logged-in user. All methods are safe for concurrent use.
type Session struct {
	store   *ledger.Store
	queue   *notify.Queue
	users   persistence.UserRepository
	timeout time.Duration
	logger  *logx.Logger

	mu   sync.RWMutex
	user core.User
}

// Dashboard is every derived view the main screen shows, computed from one
// consistent snapshot of the ledger.
type Dashboard struct {
	User        core.User                 `json:"user"`
	Currency    currency.Currency         `json:"currency"`
	Expenses    []analytics.Row           `json:"expenses"`
	Count       int                       `json:"count"`
	Total       decimal.Decimal           `json:"total"`
	Categories  []analytics.CategoryTotal `json:"categories"`
	TopCategory analytics.CategoryTotal   `json:"topCategory"`
	Trend       []analytics.MonthBucket   `json:"trend"`
	Priorities  []analytics.PriorityTotal `json:"priorities"`
	Budget      budget.Status             `json:"budget"`
	Goals       []goals.Progress          `json:"goals"`
}

func (s *Session) User() core.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user
}

func (s *Session) Store() *ledger.Store {
	return s.store
}

func (s *Session) Notifications() *notify.Queue {
	return s.queue
}

// Dashboard filters the ledger by c and derives the analytics in the
// user's display currency. The budget is measured against the whole
// ledger, not the filtered view.
func (s *Session) Dashboard(c filter.Criteria, now time.Time) Dashboard {
	u := s.User()
	all := s.store.Expenses()
	visible := filter.Apply(all, c)
	rows := analytics.DisplayRows(visible, u.Currency)
	cats := analytics.CategoryTotals(rows)

	return Dashboard{
		User:        u,
		Currency:    currency.Lookup(u.Currency),
		Expenses:    rows,
		Count:       len(rows),
		Total:       analytics.RowsTotal(rows),
		Categories:  cats,
		TopCategory: analytics.TopCategory(cats),
		Trend:       analytics.MonthlyTrend(visible, u.Currency),
		Priorities:  analytics.PriorityBreakdown(rows),
		Budget:      budget.Track(all, u.MonthlyBudget, u.Currency),
		Goals:       goals.TrackAll(s.store.Goals(), now),
	}
}

// Snapshot materializes the filtered view for an exporter.
func (s *Session) Snapshot(c filter.Criteria, now time.Time) export.Snapshot {
	d := s.Dashboard(c, now)
	return export.Snapshot{
		UserName:    d.User.Name,
		Email:       d.User.Email,
		Currency:    d.User.Currency,
		GeneratedAt: now,
		Rows:        d.Expenses,
		Total:       d.Total,
		Categories:  d.Categories,
		Budget:      d.Budget,
	}
}

// Export renders the filtered view with exp.
func (s *Session) Export(ctx context.Context, exp export.Exporter, c filter.Criteria, now time.Time) (export.Artifact, error) {
	snap := s.Snapshot(c, now)
	art, err := exp.Export(ctx, snap)
	if err != nil {
		s.logger.ErrorContext(ctx, "Export failed",
			logx.FieldEmail, snap.Email,
			logx.FieldOperation, logx.OpExport,
			logx.FieldError, err)
		return export.Artifact{}, fmt.Errorf("export: %w", err)
	}
	s.logger.InfoContext(ctx, "Exported expenses",
		logx.FieldEmail, snap.Email,
		logx.FieldFormat, art.ContentType,
		logx.FieldCount, len(snap.Rows))
	return art, nil
}

// SaveSettings changes the monthly budget and display currency. A limit
// below what has already been spent is refused with
// core.ErrBudgetBelowSpend unless confirmed is set.
func (s *Session) SaveSettings(ctx context.Context, limit decimal.Decimal, code currency.Code, confirmed bool) (core.User, error) {
	if !code.Valid() {
		return core.User{}, core.ErrUnknownCurrency
	}
	if err := budget.CheckLimit(limit, s.store.Expenses()); err != nil {
		if !errors.Is(err, core.ErrBudgetBelowSpend) || !confirmed {
			return core.User{}, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u := s.user
	u.MonthlyBudget = limit
	u.Currency = code

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.users.PutUser(ctx, u); err != nil {
		s.queue.Enqueue(notify.Error, MsgSettingsFailed)
		s.logger.ErrorContext(ctx, "Failed to save settings",
			logx.FieldUserID, u.ID,
			logx.FieldError, err)
		return core.User{}, fmt.Errorf("%w: save settings: %w", core.ErrSync, err)
	}
	s.user = u
	s.queue.Enqueue(notify.Success, MsgSettingsSaved)
	s.logger.InfoContext(ctx, "Settings saved",
		logx.FieldUserID, u.ID,
		logx.FieldCurrency, string(code),
		"monthly_budget", limit.String())
	return u, nil
}

// Reset wipes every expense and goal of the user.
func (s *Session) Reset(ctx context.Context) (*ledger.SyncResult, error) {
	return s.store.Clear(ctx)
}

func (s *Session) close() {
	s.store.Close()
	s.queue.Close()
}
