// Package ledger keeps one user's expenses and goals in memory and writes
// every mutation through to the persistence collaborator in the background.
//
// The in-memory state is authoritative for the session: a failed write is
// reported through the notification queue but never rolled back.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"spendlens/internal/core"
	"spendlens/internal/events"
	logx "spendlens/internal/log"
	"spendlens/internal/notify"
	"spendlens/internal/persistence"
)

// DefaultSyncTimeout bounds every collaborator call.
const DefaultSyncTimeout = 5 * time.Second

var (
	// ErrClosed is returned by mutations on a store with no loaded user.
	ErrClosed = errors.New("ledger store is closed")
	// ErrNotFound is returned by updates naming an id the store does not hold.
	ErrNotFound = errors.New("ledger entry not found")
)

// Repository is the slice of persistence the store writes through to.
type Repository interface {
	persistence.ExpenseRepository
	persistence.GoalRepository
}

// Notifier receives user-facing messages.
type Notifier interface {
	Enqueue(kind notify.Kind, message string) notify.Notification
}

// Notification messages.
const (
	MsgExpenseSaved        = "Expense saved"
	MsgExpenseUpdated      = "Expense updated"
	MsgExpenseDeleted      = "Expense deleted"
	MsgGoalSaved           = "Goal saved successfully"
	MsgGoalDeleted         = "Goal deleted"
	MsgReset               = "All data has been reset"
	MsgLoadExpensesFailed  = "Failed to load expenses"
	MsgLoadGoalsFailed     = "Failed to load goals"
	MsgSaveExpenseFailed   = "Failed to save expense"
	MsgDeleteExpenseFailed = "Failed to delete expense"
	MsgSaveGoalFailed      = "Failed to save goal"
	MsgDeleteGoalFailed    = "Failed to delete goal"
	MsgResetFailed         = "Failed to reset data"
)

type Option func(*Store)

// WithPublisher announces every successful write-through on p.
func WithPublisher(p events.Publisher) Option {
	return func(s *Store) { s.publisher = p }
}

// WithOwner stamps published events with the account email so consumers
// can resolve the user without an id lookup.
func WithOwner(email string) Option {
	return func(s *Store) { s.owner = email }
}

// WithSyncTimeout overrides DefaultSyncTimeout.
func WithSyncTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator replaces the UUID generator, for tests.
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) { s.newID = gen }
}

// Store is safe for concurrent use; mutations are serialized.
type Store struct {
	repo      Repository
	notifier  Notifier
	publisher events.Publisher
	owner     string
	timeout   time.Duration
	now       func() time.Time
	newID     func() string
	logger    *logx.Logger

	mu       sync.Mutex
	userID   string
	expenses []core.Expense
	goals    []core.Goal

	// generation changes on Load and Close so late syncs from a previous
	// session stay silent.
	generation atomic.Uint64
	inflight   sync.WaitGroup

	// tail closes when the most recently dispatched sync has finished.
	tail chan struct{}
}

func New(repo Repository, notifier Notifier, opts ...Option) *Store {
	s := &Store{
		repo:      repo,
		notifier:  notifier,
		publisher: events.Nop{},
		timeout:   DefaultSyncTimeout,
		now:       time.Now,
		newID:     uuid.NewString,
		logger:    logx.FromContext(context.Background()).WithComponent(logx.ComponentLedger),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load replaces the in-memory state with userID's persisted ledger. Both
// collections are fetched concurrently; if either fails the store is left
// empty and the error wraps core.ErrLoad.
func (s *Store) Load(ctx context.Context, userID string) ([]core.Expense, []core.Goal, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var (
		expenses []core.Expense
		goals    []core.Goal
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if expenses, err = s.repo.GetExpenses(gctx, userID); err != nil {
			return &loadError{msg: MsgLoadExpensesFailed, err: err}
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if goals, err = s.repo.GetGoals(gctx, userID); err != nil {
			return &loadError{msg: MsgLoadGoalsFailed, err: err}
		}
		return nil
	})
	err := g.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation.Add(1)
	s.userID = userID

	if err != nil {
		s.expenses, s.goals = []core.Expense{}, []core.Goal{}
		msg := MsgLoadExpensesFailed
		var le *loadError
		if errors.As(err, &le) {
			msg = le.msg
		}
		s.notify(notify.Error, msg)
		s.logger.ErrorContext(ctx, "Failed to load ledger",
			logx.FieldUserID, userID,
			logx.FieldOperation, logx.OpLoad,
			logx.FieldError, err)
		return []core.Expense{}, []core.Goal{}, fmt.Errorf("%w: %w", core.ErrLoad, err)
	}

	s.expenses = cloneExpenses(expenses)
	if goals == nil {
		goals = []core.Goal{}
	}
	s.goals = append([]core.Goal{}, goals...)
	s.logger.InfoContext(ctx, "Ledger loaded",
		logx.FieldUserID, userID,
		"expenses", len(s.expenses),
		"goals", len(s.goals))
	return cloneExpenses(s.expenses), append([]core.Goal{}, s.goals...), nil
}

type loadError struct {
	msg string
	err error
}

func (e *loadError) Error() string { return e.err.Error() }
func (e *loadError) Unwrap() error { return e.err }

// UserID returns the loaded user, or "" after Close.
func (s *Store) UserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

// Expenses returns a copy of the current expenses in insertion order.
func (s *Store) Expenses() []core.Expense {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneExpenses(s.expenses)
}

// Goals returns a copy of the current goals in insertion order.
func (s *Store) Goals() []core.Goal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Goal{}, s.goals...)
}

// UpsertExpense validates e and either replaces the expense with the same
// ID, keeping its CreatedAt, or appends it under a fresh ID. Validation
// failures leave the store untouched.
func (s *Store) UpsertExpense(ctx context.Context, e core.Expense) (core.Expense, *SyncResult, error) {
	return s.putExpense(ctx, e, false)
}

// UpdateExpense is UpsertExpense restricted to an existing ID; an unknown
// ID returns ErrNotFound instead of appending.
func (s *Store) UpdateExpense(ctx context.Context, e core.Expense) (core.Expense, *SyncResult, error) {
	return s.putExpense(ctx, e, true)
}

func (s *Store) putExpense(ctx context.Context, e core.Expense, mustExist bool) (core.Expense, *SyncResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.userID == "" {
		return core.Expense{}, nil, ErrClosed
	}
	i := indexOfExpense(s.expenses, e.ID)
	if mustExist && i < 0 {
		return core.Expense{}, nil, fmt.Errorf("%w: expense %s", ErrNotFound, e.ID)
	}

	now := s.now()
	e = e.WithDefaults(core.DateOf(now))
	if err := e.Validate(); err != nil {
		return core.Expense{}, nil, err
	}
	e.UserID = s.userID
	e.UpdatedAt = now

	msg := MsgExpenseSaved
	if i >= 0 {
		e.CreatedAt = s.expenses[i].CreatedAt
		s.expenses[i] = e.Clone()
		msg = MsgExpenseUpdated
	} else {
		e.ID = s.newID()
		e.CreatedAt = now
		s.expenses = append(s.expenses, e.Clone())
	}

	res := s.syncExpensesLocked(ctx, MsgSaveExpenseFailed)
	s.notify(notify.Success, msg)
	return e.Clone(), res, nil
}

// RemoveExpense deletes the expense with id. Unknown ids are a no-op and
// never reach the collaborator.
func (s *Store) RemoveExpense(ctx context.Context, id string) (*SyncResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.userID == "" {
		return nil, ErrClosed
	}

	i := indexOfExpense(s.expenses, id)
	if i < 0 {
		return resolved(nil), nil
	}
	s.expenses = append(s.expenses[:i:i], s.expenses[i+1:]...)

	res := s.syncExpensesLocked(ctx, MsgDeleteExpenseFailed)
	s.notify(notify.Success, MsgExpenseDeleted)
	return res, nil
}

// UpsertGoal is UpsertExpense for goals.
func (s *Store) UpsertGoal(ctx context.Context, g core.Goal) (core.Goal, *SyncResult, error) {
	return s.putGoal(ctx, g, false)
}

// UpdateGoal is UpdateExpense for goals.
func (s *Store) UpdateGoal(ctx context.Context, g core.Goal) (core.Goal, *SyncResult, error) {
	return s.putGoal(ctx, g, true)
}

func (s *Store) putGoal(ctx context.Context, g core.Goal, mustExist bool) (core.Goal, *SyncResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.userID == "" {
		return core.Goal{}, nil, ErrClosed
	}
	i := indexOfGoal(s.goals, g.ID)
	if mustExist && i < 0 {
		return core.Goal{}, nil, fmt.Errorf("%w: goal %s", ErrNotFound, g.ID)
	}
	if err := g.Validate(); err != nil {
		return core.Goal{}, nil, err
	}

	now := s.now()
	g.UserID = s.userID
	g.UpdatedAt = now
	if i >= 0 {
		g.CreatedAt = s.goals[i].CreatedAt
		s.goals[i] = g
	} else {
		g.ID = s.newID()
		g.CreatedAt = now
		s.goals = append(s.goals, g)
	}

	res := s.syncGoalsLocked(ctx, MsgSaveGoalFailed)
	s.notify(notify.Success, MsgGoalSaved)
	return g, res, nil
}

// RemoveGoal is RemoveExpense for goals.
func (s *Store) RemoveGoal(ctx context.Context, id string) (*SyncResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.userID == "" {
		return nil, ErrClosed
	}

	i := indexOfGoal(s.goals, id)
	if i < 0 {
		return resolved(nil), nil
	}
	s.goals = append(s.goals[:i:i], s.goals[i+1:]...)

	res := s.syncGoalsLocked(ctx, MsgDeleteGoalFailed)
	s.notify(notify.Success, MsgGoalDeleted)
	return res, nil
}

// Clear empties both collections in memory and in persistence.
func (s *Store) Clear(ctx context.Context) (*SyncResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.userID == "" {
		return nil, ErrClosed
	}

	s.expenses, s.goals = []core.Expense{}, []core.Goal{}
	userID := s.userID
	res := s.dispatch(ctx, MsgResetFailed, logx.OpClear, func(ctx context.Context) error {
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return s.repo.PutExpenses(gctx, userID, []core.Expense{}) })
		g.Go(func() error { return s.repo.PutGoals(gctx, userID, []core.Goal{}) })
		if err := g.Wait(); err != nil {
			return err
		}
		s.publish(ctx, events.NewLedgerSynced(userID, events.Expenses, 0))
		s.publish(ctx, events.NewLedgerSynced(userID, events.Goals, 0))
		return nil
	})
	s.notify(notify.Success, MsgReset)
	return res, nil
}

// Close discards the user's state. Syncs still in flight complete but no
// longer report to the notifier.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation.Add(1)
	s.userID = ""
	s.expenses, s.goals = nil, nil
}

// Flush waits for every in-flight sync or for ctx to end.
func (s *Store) Flush(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Store) syncExpensesLocked(ctx context.Context, failMsg string) *SyncResult {
	userID, snapshot := s.userID, cloneExpenses(s.expenses)
	return s.dispatch(ctx, failMsg, logx.OpSync, func(ctx context.Context) error {
		if err := s.repo.PutExpenses(ctx, userID, snapshot); err != nil {
			return err
		}
		s.publish(ctx, events.NewLedgerSynced(userID, events.Expenses, len(snapshot)))
		return nil
	})
}

func (s *Store) syncGoalsLocked(ctx context.Context, failMsg string) *SyncResult {
	userID, snapshot := s.userID, append([]core.Goal{}, s.goals...)
	return s.dispatch(ctx, failMsg, logx.OpSync, func(ctx context.Context) error {
		if err := s.repo.PutGoals(ctx, userID, snapshot); err != nil {
			return err
		}
		s.publish(ctx, events.NewLedgerSynced(userID, events.Goals, len(snapshot)))
		return nil
	})
}

// dispatch runs put in the background under the sync timeout. It must be
// called with s.mu held. Each put starts only after the previously
// dispatched one has finished, so snapshots reach the repository in
// mutation order and a stale one never overwrites a newer one.
func (s *Store) dispatch(ctx context.Context, failMsg, op string, put func(context.Context) error) *SyncResult {
	res := newSyncResult()
	gen := s.generation.Load()
	userID := s.userID
	ctx = context.WithoutCancel(ctx)
	prev, done := s.tail, make(chan struct{})
	s.tail = done

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		defer close(done)
		if prev != nil {
			<-prev
		}
		ctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		err := put(ctx)
		if err != nil {
			err = fmt.Errorf("%w: %w", core.ErrSync, err)
			s.logger.ErrorContext(ctx, "Ledger sync failed",
				logx.FieldUserID, userID,
				logx.FieldOperation, op,
				logx.FieldError, err)
			if s.generation.Load() == gen {
				s.notify(notify.Error, failMsg)
			}
		}
		res.resolve(err)
	}()
	return res
}

func (s *Store) publish(ctx context.Context, e events.LedgerSynced) {
	e.Owner = s.owner
	if err := s.publisher.PublishLedgerSynced(ctx, e); err != nil {
		s.logger.WarnContext(ctx, "Failed to publish ledger event",
			logx.FieldUserID, e.UserID,
			logx.FieldCollection, string(e.Collection),
			logx.FieldError, err)
	}
}

func (s *Store) notify(kind notify.Kind, msg string) {
	if s.notifier != nil {
		s.notifier.Enqueue(kind, msg)
	}
}

func indexOfExpense(es []core.Expense, id string) int {
	if id == "" {
		return -1
	}
	for i, e := range es {
		if e.ID == id {
			return i
		}
	}
	return -1
}

func indexOfGoal(gs []core.Goal, id string) int {
	if id == "" {
		return -1
	}
	for i, g := range gs {
		if g.ID == id {
			return i
		}
	}
	return -1
}

func cloneExpenses(in []core.Expense) []core.Expense {
	out := make([]core.Expense, 0, len(in))
	for _, e := range in {
		out = append(out, e.Clone())
	}
	return out
}
