// Package worker mirrors persisted ledgers into an external exporter,
// typically a Google Sheets tab per user, driven by LedgerSynced events.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"spendlens/internal/analytics"
	"spendlens/internal/budget"
	"spendlens/internal/core"
	"spendlens/internal/events"
	"spendlens/internal/export"
	logx "spendlens/internal/log"
	"spendlens/internal/persistence"
)

// DefaultMirrorTimeout bounds one read-and-export round.
const DefaultMirrorTimeout = 30 * time.Second

// ErrUnknownOwner means an event names an account that no longer exists or
// whose id does not match.
var ErrUnknownOwner = errors.New("event owner not found")

type Repository interface {
	persistence.ExpenseRepository
	persistence.UserRepository
}

type Option func(*SyncWorker)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(w *SyncWorker) { w.now = now }
}

// WithMirrorTimeout overrides DefaultMirrorTimeout.
func WithMirrorTimeout(d time.Duration) Option {
	return func(w *SyncWorker) {
		if d > 0 {
			w.timeout = d
		}
	}
}

// SyncWorker runs at most concurrency mirrors at once. Events for a user
// whose mirror is already running collapse into a single follow-up run.
type SyncWorker struct {
	repo     Repository
	exporter export.Exporter
	sem      *semaphore.Weighted
	timeout  time.Duration
	now      func() time.Time
	logger   *logx.Logger

	mu      sync.Mutex
	running map[string]bool
	pending map[string]events.LedgerSynced
	wg      sync.WaitGroup
}

func NewSyncWorker(repo Repository, exporter export.Exporter, concurrency int, opts ...Option) *SyncWorker {
	if concurrency < 1 {
		concurrency = 1
	}
	w := &SyncWorker{
		repo:     repo,
		exporter: exporter,
		sem:      semaphore.NewWeighted(int64(concurrency)),
		timeout:  DefaultMirrorTimeout,
		now:      time.Now,
		logger:   logx.FromContext(context.Background()).WithComponent(logx.ComponentWorker),
		running:  map[string]bool{},
		pending:  map[string]events.LedgerSynced{},
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// HandleLedgerSynced schedules a mirror for the event's user. It blocks
// only while every slot is busy, and returns an error only if ctx ends
// first. Goal events are ignored since the mirror holds expenses only.
func (w *SyncWorker) HandleLedgerSynced(ctx context.Context, e events.LedgerSynced) error {
	if e.Collection != events.Expenses {
		return nil
	}
	if e.Owner == "" {
		w.logger.WarnContext(ctx, "Skipping ledger event without owner",
			logx.FieldUserID, e.UserID)
		return nil
	}

	w.mu.Lock()
	if w.running[e.UserID] {
		w.pending[e.UserID] = e
		w.mu.Unlock()
		return nil
	}
	w.running[e.UserID] = true
	w.mu.Unlock()

	if err := w.sem.Acquire(ctx, 1); err != nil {
		w.mu.Lock()
		delete(w.running, e.UserID)
		delete(w.pending, e.UserID)
		w.mu.Unlock()
		return err
	}

	w.wg.Add(1)
	go w.run(context.WithoutCancel(ctx), e)
	return nil
}

func (w *SyncWorker) run(ctx context.Context, e events.LedgerSynced) {
	defer w.wg.Done()
	defer w.sem.Release(1)

	for {
		if _, err := w.Mirror(ctx, e); err != nil {
			w.logger.ErrorContext(ctx, "Ledger mirror failed",
				logx.FieldUserID, e.UserID,
				logx.FieldOperation, logx.OpExport,
				logx.FieldError, err)
		}

		w.mu.Lock()
		next, ok := w.pending[e.UserID]
		if !ok {
			delete(w.running, e.UserID)
			w.mu.Unlock()
			return
		}
		delete(w.pending, e.UserID)
		w.mu.Unlock()
		e = next
	}
}

// Wait blocks until every scheduled mirror has finished or ctx ends.
func (w *SyncWorker) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Mirror reads the owner's current expenses and exports them in the
// owner's display currency.
func (w *SyncWorker) Mirror(ctx context.Context, e events.LedgerSynced) (export.Artifact, error) {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	u, err := w.repo.GetUser(ctx, e.Owner)
	if errors.Is(err, persistence.ErrUserNotFound) {
		return export.Artifact{}, fmt.Errorf("%w: %s", ErrUnknownOwner, e.Owner)
	}
	if err != nil {
		return export.Artifact{}, fmt.Errorf("get user: %w", err)
	}
	if u.ID != e.UserID {
		return export.Artifact{}, fmt.Errorf("%w: %s is not %s", ErrUnknownOwner, e.Owner, e.UserID)
	}

	expenses, err := w.repo.GetExpenses(ctx, u.ID)
	if err != nil {
		return export.Artifact{}, fmt.Errorf("get expenses: %w", err)
	}

	snap := Snapshot(u, expenses, w.now())
	art, err := w.exporter.Export(ctx, snap)
	if err != nil {
		return export.Artifact{}, fmt.Errorf("export: %w", err)
	}

	w.logger.InfoContext(ctx, "Mirrored ledger",
		logx.FieldUserID, u.ID,
		logx.FieldCount, len(snap.Rows),
		"ref", art.Ref)
	return art, nil
}

// Snapshot is the unfiltered export view of a user's ledger.
func Snapshot(u core.User, expenses []core.Expense, now time.Time) export.Snapshot {
	rows := analytics.DisplayRows(expenses, u.Currency)
	return export.Snapshot{
		UserName:    u.Name,
		Email:       u.Email,
		Currency:    u.Currency,
		GeneratedAt: now,
		Rows:        rows,
		Total:       analytics.RowsTotal(rows),
		Categories:  analytics.CategoryTotals(rows),
		Budget:      budget.Track(expenses, u.MonthlyBudget, u.Currency),
	}
}
