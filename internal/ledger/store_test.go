package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"spendlens/internal/core"
	"spendlens/internal/events"
	"spendlens/internal/notify"
	"spendlens/internal/persistence/memory"
)

var errBackend = errors.New("backend unavailable")

// fakeRepo wraps the in-memory store with failure injection and call counts.
type fakeRepo struct {
	*memory.Store

	mu          sync.Mutex
	failPut     bool
	failGet     bool
	hang        bool
	gate        chan struct{}
	delays      []time.Duration
	putExpenses int
	putGoals    int
	putSizes    []int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{Store: memory.New()}
}

func (f *fakeRepo) setFailPut(v bool) {
	f.mu.Lock()
	f.failPut = v
	f.mu.Unlock()
}

func (f *fakeRepo) GetExpenses(ctx context.Context, userID string) ([]core.Expense, error) {
	f.mu.Lock()
	fail := f.failGet
	f.mu.Unlock()
	if fail {
		return nil, errBackend
	}
	return f.Store.GetExpenses(ctx, userID)
}

func (f *fakeRepo) PutExpenses(ctx context.Context, userID string, es []core.Expense) error {
	f.mu.Lock()
	f.putExpenses++
	f.putSizes = append(f.putSizes, len(es))
	fail, gate, hang := f.failPut, f.gate, f.hang
	var delay time.Duration
	if len(f.delays) > 0 {
		delay, f.delays = f.delays[0], f.delays[1:]
	}
	f.mu.Unlock()
	time.Sleep(delay)
	if gate != nil {
		<-gate
	}
	if hang {
		<-ctx.Done()
		return ctx.Err()
	}
	if fail {
		return errBackend
	}
	return f.Store.PutExpenses(ctx, userID, es)
}

func (f *fakeRepo) PutGoals(ctx context.Context, userID string, gs []core.Goal) error {
	f.mu.Lock()
	f.putGoals++
	fail := f.failPut
	f.mu.Unlock()
	if fail {
		return errBackend
	}
	return f.Store.PutGoals(ctx, userID, gs)
}

func (f *fakeRepo) sizes() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.putSizes...)
}

func (f *fakeRepo) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.putExpenses, f.putGoals
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.LedgerSynced
}

func (p *recordingPublisher) PublishLedgerSynced(_ context.Context, e events.LedgerSynced) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) all() []events.LedgerSynced {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.LedgerSynced(nil), p.events...)
}

type StoreTestSuite struct {
	suite.Suite
	ctx   context.Context
	repo  *fakeRepo
	queue *notify.Queue
	pub   *recordingPublisher
	store *Store
	now   time.Time
	seq   int
}

func (s *StoreTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.repo = newFakeRepo()
	s.queue = notify.New(time.Minute)
	s.pub = &recordingPublisher{}
	s.now = time.Date(2024, 3, 10, 9, 30, 0, 0, time.UTC)
	s.seq = 0
	s.store = New(s.repo, s.queue,
		WithPublisher(s.pub),
		WithOwner("ada@example.com"),
		WithSyncTimeout(time.Second),
		WithClock(func() time.Time { return s.now }),
		WithIDGenerator(func() string {
			s.seq++
			return fmt.Sprintf("id-%d", s.seq)
		}),
	)
	_, _, err := s.store.Load(s.ctx, "user-1")
	require.NoError(s.T(), err)
}

func (s *StoreTestSuite) TearDownTest() {
	s.queue.Close()
}

func (s *StoreTestSuite) wait(res *SyncResult) error {
	s.T().Helper()
	ctx, cancel := context.WithTimeout(s.ctx, 2*time.Second)
	defer cancel()
	return res.Wait(ctx)
}

func coffee() core.Expense {
	return core.Expense{Title: "Coffee", Amount: decimal.RequireFromString("4.50"), Category: core.FoodAndDining}
}

func (s *StoreTestSuite) TestUpsertAppendsWithFreshID() {
	e := coffee()
	e.ID = "client-chosen"

	saved, res, err := s.store.UpsertExpense(s.ctx, e)
	require.NoError(s.T(), err)
	require.NoError(s.T(), s.wait(res))

	assert.Equal(s.T(), "id-1", saved.ID)
	assert.Equal(s.T(), "user-1", saved.UserID)
	assert.Equal(s.T(), s.now, saved.CreatedAt)
	assert.Equal(s.T(), core.Medium, saved.Priority)
	assert.Equal(s.T(), core.OneTime, saved.Frequency)
	assert.Equal(s.T(), core.NewDate(2024, 3, 10), saved.Date)

	persisted, _ := s.repo.Store.GetExpenses(s.ctx, "user-1")
	require.Len(s.T(), persisted, 1)
	assert.Equal(s.T(), "id-1", persisted[0].ID)

	got := s.queue.List()
	require.Len(s.T(), got, 1)
	assert.Equal(s.T(), notify.Success, got[0].Kind)
	assert.Equal(s.T(), MsgExpenseSaved, got[0].Message)
}

func (s *StoreTestSuite) TestUpsertReplacesInPlaceKeepingCreatedAt() {
	first, res, err := s.store.UpsertExpense(s.ctx, coffee())
	require.NoError(s.T(), err)
	require.NoError(s.T(), s.wait(res))
	_, res, _ = s.store.UpsertExpense(s.ctx, core.Expense{Title: "Rent", Amount: decimal.NewFromInt(900)})
	require.NoError(s.T(), s.wait(res))

	s.now = s.now.Add(time.Hour)
	edit := first
	edit.Title = "Latte"
	edit.Amount = decimal.RequireFromString("5.20")
	updated, res, err := s.store.UpsertExpense(s.ctx, edit)
	require.NoError(s.T(), err)
	require.NoError(s.T(), s.wait(res))

	assert.Equal(s.T(), first.ID, updated.ID)
	assert.Equal(s.T(), first.CreatedAt, updated.CreatedAt)
	assert.Equal(s.T(), s.now, updated.UpdatedAt)

	all := s.store.Expenses()
	require.Len(s.T(), all, 2)
	assert.Equal(s.T(), "Latte", all[0].Title, "position must be preserved")
	assert.Equal(s.T(), "Rent", all[1].Title)
}

func (s *StoreTestSuite) TestValidationFailureDoesNotMutate() {
	_, res, err := s.store.UpsertExpense(s.ctx, core.Expense{Title: "  ", Amount: decimal.NewFromInt(1)})
	assert.ErrorIs(s.T(), err, core.ErrValidation)
	assert.Nil(s.T(), res)

	_, _, err = s.store.UpsertExpense(s.ctx, core.Expense{Title: "x", Amount: decimal.Zero})
	assert.ErrorIs(s.T(), err, core.ErrInvalidAmount)

	assert.Empty(s.T(), s.store.Expenses())
	pe, _ := s.repo.counts()
	assert.Zero(s.T(), pe)
	assert.Empty(s.T(), s.queue.List())
}

func (s *StoreTestSuite) TestPersistFailureKeepsLocalState() {
	s.repo.setFailPut(true)

	saved, res, err := s.store.UpsertExpense(s.ctx, coffee())
	require.NoError(s.T(), err)

	syncErr := s.wait(res)
	require.Error(s.T(), syncErr)
	assert.ErrorIs(s.T(), syncErr, core.ErrSync)
	assert.ErrorIs(s.T(), syncErr, errBackend)

	all := s.store.Expenses()
	require.Len(s.T(), all, 1)
	assert.Equal(s.T(), saved.ID, all[0].ID)

	require.Eventually(s.T(), func() bool {
		for _, n := range s.queue.List() {
			if n.Kind == notify.Error && n.Message == MsgSaveExpenseFailed {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)
	assert.Empty(s.T(), s.pub.all(), "failed syncs are not announced")
}

func (s *StoreTestSuite) TestRemove() {
	a, res, _ := s.store.UpsertExpense(s.ctx, coffee())
	require.NoError(s.T(), s.wait(res))
	b, res, _ := s.store.UpsertExpense(s.ctx, core.Expense{Title: "Bus", Amount: decimal.NewFromInt(2)})
	require.NoError(s.T(), s.wait(res))

	res, err := s.store.RemoveExpense(s.ctx, a.ID)
	require.NoError(s.T(), err)
	require.NoError(s.T(), s.wait(res))

	all := s.store.Expenses()
	require.Len(s.T(), all, 1)
	assert.Equal(s.T(), b.ID, all[0].ID)
	persisted, _ := s.repo.Store.GetExpenses(s.ctx, "user-1")
	assert.Len(s.T(), persisted, 1)
}

func (s *StoreTestSuite) TestRemoveUnknownIsNoop() {
	res, err := s.store.RemoveExpense(s.ctx, "missing")
	require.NoError(s.T(), err)

	select {
	case <-res.Done():
	default:
		s.T().Fatal("no-op remove must resolve immediately")
	}
	assert.NoError(s.T(), res.Err())
	pe, _ := s.repo.counts()
	assert.Zero(s.T(), pe)

	res, err = s.store.RemoveGoal(s.ctx, "missing")
	require.NoError(s.T(), err)
	assert.NoError(s.T(), s.wait(res))
	_, pg := s.repo.counts()
	assert.Zero(s.T(), pg)
}

func (s *StoreTestSuite) TestGoals() {
	g, res, err := s.store.UpsertGoal(s.ctx, core.Goal{
		Title:        "Vacation",
		TargetAmount: decimal.NewFromInt(1000),
		TargetDate:   core.NewDate(2024, 12, 1),
	})
	require.NoError(s.T(), err)
	require.NoError(s.T(), s.wait(res))
	assert.Equal(s.T(), "id-1", g.ID)

	g.CurrentAmount = decimal.NewFromInt(1500)
	updated, res, err := s.store.UpsertGoal(s.ctx, g)
	require.NoError(s.T(), err)
	require.NoError(s.T(), s.wait(res))
	assert.True(s.T(), updated.CurrentAmount.Equal(decimal.NewFromInt(1500)), "overshoot is not clamped")

	_, _, err = s.store.UpsertGoal(s.ctx, core.Goal{Title: "x", TargetAmount: decimal.Zero})
	assert.ErrorIs(s.T(), err, core.ErrInvalidTarget)

	res, err = s.store.RemoveGoal(s.ctx, g.ID)
	require.NoError(s.T(), err)
	require.NoError(s.T(), s.wait(res))
	assert.Empty(s.T(), s.store.Goals())
}

func (s *StoreTestSuite) TestClear() {
	_, res, _ := s.store.UpsertExpense(s.ctx, coffee())
	require.NoError(s.T(), s.wait(res))
	_, res, _ = s.store.UpsertGoal(s.ctx, core.Goal{Title: "g", TargetAmount: decimal.NewFromInt(1)})
	require.NoError(s.T(), s.wait(res))

	res, err := s.store.Clear(s.ctx)
	require.NoError(s.T(), err)
	require.NoError(s.T(), s.wait(res))

	assert.Empty(s.T(), s.store.Expenses())
	assert.Empty(s.T(), s.store.Goals())
	es, gs, err := s.store.Load(s.ctx, "user-1")
	require.NoError(s.T(), err)
	assert.Empty(s.T(), es)
	assert.Empty(s.T(), gs)
}

func (s *StoreTestSuite) TestPublishesAfterSuccessfulSync() {
	_, res, _ := s.store.UpsertExpense(s.ctx, coffee())
	require.NoError(s.T(), s.wait(res))

	evs := s.pub.all()
	require.Len(s.T(), evs, 1)
	assert.Equal(s.T(), "user-1", evs[0].UserID)
	assert.Equal(s.T(), "ada@example.com", evs[0].Owner)
	assert.Equal(s.T(), events.Expenses, evs[0].Collection)
	assert.Equal(s.T(), 1, evs[0].Count)
}

func (s *StoreTestSuite) TestLoadFailureLeavesEmptyState() {
	_, res, _ := s.store.UpsertExpense(s.ctx, coffee())
	require.NoError(s.T(), s.wait(res))

	s.repo.mu.Lock()
	s.repo.failGet = true
	s.repo.mu.Unlock()

	es, gs, err := s.store.Load(s.ctx, "user-1")
	require.Error(s.T(), err)
	assert.ErrorIs(s.T(), err, core.ErrLoad)
	assert.Empty(s.T(), es)
	assert.Empty(s.T(), gs)
	assert.Empty(s.T(), s.store.Expenses())

	var found bool
	for _, n := range s.queue.List() {
		if n.Kind == notify.Error && n.Message == MsgLoadExpensesFailed {
			found = true
		}
	}
	assert.True(s.T(), found)
}

func (s *StoreTestSuite) TestClosedStoreRejectsMutations() {
	s.store.Close()

	assert.Equal(s.T(), "", s.store.UserID())
	_, _, err := s.store.UpsertExpense(s.ctx, coffee())
	assert.ErrorIs(s.T(), err, ErrClosed)
	_, err = s.store.RemoveExpense(s.ctx, "x")
	assert.ErrorIs(s.T(), err, ErrClosed)
	_, err = s.store.Clear(s.ctx)
	assert.ErrorIs(s.T(), err, ErrClosed)
}

func (s *StoreTestSuite) TestSyncAfterCloseIsSilent() {
	s.repo.setFailPut(true)
	gate := make(chan struct{})
	s.repo.mu.Lock()
	s.repo.gate = gate
	s.repo.mu.Unlock()

	_, res, err := s.store.UpsertExpense(s.ctx, coffee())
	require.NoError(s.T(), err)
	s.store.Close()
	close(gate)

	assert.Error(s.T(), s.wait(res))
	for _, n := range s.queue.List() {
		assert.NotEqual(s.T(), notify.Error, n.Kind)
	}
}

func (s *StoreTestSuite) TestSnapshotsAreCopies() {
	e := coffee()
	e.Tags = []core.Tag{core.Essential}
	_, res, _ := s.store.UpsertExpense(s.ctx, e)
	require.NoError(s.T(), s.wait(res))

	view := s.store.Expenses()
	view[0].Tags[0] = core.Luxury
	view[0].Title = "mutated"

	again := s.store.Expenses()
	assert.Equal(s.T(), "Coffee", again[0].Title)
	assert.Equal(s.T(), core.Essential, again[0].Tags[0])
}

func (s *StoreTestSuite) TestConcurrentUpsertsAreSerialized() {
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, err := s.store.UpsertExpense(s.ctx, core.Expense{
				Title:  fmt.Sprintf("e%d", i),
				Amount: decimal.NewFromInt(int64(i + 1)),
			})
			assert.NoError(s.T(), err)
		}(i)
	}
	wg.Wait()

	ctx, cancel := context.WithTimeout(s.ctx, 2*time.Second)
	defer cancel()
	require.NoError(s.T(), s.store.Flush(ctx))

	all := s.store.Expenses()
	assert.Len(s.T(), all, 20)
	ids := make(map[string]bool)
	for _, e := range all {
		ids[e.ID] = true
	}
	assert.Len(s.T(), ids, 20)
}

func (s *StoreTestSuite) TestSlowSyncDoesNotLetStaleSnapshotWin() {
	s.repo.mu.Lock()
	s.repo.delays = []time.Duration{100 * time.Millisecond}
	s.repo.mu.Unlock()

	_, first, err := s.store.UpsertExpense(s.ctx, coffee())
	require.NoError(s.T(), err)
	_, second, err := s.store.UpsertExpense(s.ctx, core.Expense{Title: "Rent", Amount: decimal.NewFromInt(900)})
	require.NoError(s.T(), err)

	ctx, cancel := context.WithTimeout(s.ctx, 2*time.Second)
	defer cancel()
	require.NoError(s.T(), s.store.Flush(ctx))
	require.NoError(s.T(), first.Err())
	require.NoError(s.T(), second.Err())

	assert.Equal(s.T(), []int{1, 2}, s.repo.sizes())
	persisted, err := s.repo.Store.GetExpenses(s.ctx, "user-1")
	require.NoError(s.T(), err)
	assert.Len(s.T(), persisted, 2)
	assert.Len(s.T(), s.store.Expenses(), 2)
}

func (s *StoreTestSuite) TestUpdateExpenseRejectsUnknownID() {
	saved, res, err := s.store.UpsertExpense(s.ctx, coffee())
	require.NoError(s.T(), err)
	require.NoError(s.T(), s.wait(res))

	edit := saved
	edit.Title = "Latte"
	updated, res, err := s.store.UpdateExpense(s.ctx, edit)
	require.NoError(s.T(), err)
	require.NoError(s.T(), s.wait(res))
	assert.Equal(s.T(), saved.ID, updated.ID)
	assert.Equal(s.T(), "Latte", updated.Title)

	res, err = s.store.RemoveExpense(s.ctx, saved.ID)
	require.NoError(s.T(), err)
	require.NoError(s.T(), s.wait(res))

	_, res, err = s.store.UpdateExpense(s.ctx, edit)
	assert.ErrorIs(s.T(), err, ErrNotFound)
	assert.Nil(s.T(), res)
	assert.Empty(s.T(), s.store.Expenses())
}

func (s *StoreTestSuite) TestUpdateGoalRejectsUnknownID() {
	g := core.Goal{Title: "Holiday", TargetAmount: decimal.NewFromInt(1000)}
	saved, res, err := s.store.UpsertGoal(s.ctx, g)
	require.NoError(s.T(), err)
	require.NoError(s.T(), s.wait(res))

	saved.CurrentAmount = decimal.NewFromInt(250)
	_, res, err = s.store.UpdateGoal(s.ctx, saved)
	require.NoError(s.T(), err)
	require.NoError(s.T(), s.wait(res))
	require.Len(s.T(), s.store.Goals(), 1)
	assert.Equal(s.T(), "250", s.store.Goals()[0].CurrentAmount.String())

	saved.ID = "missing"
	_, _, err = s.store.UpdateGoal(s.ctx, saved)
	assert.ErrorIs(s.T(), err, ErrNotFound)
	assert.Len(s.T(), s.store.Goals(), 1)
}

func TestStoreTestSuite(t *testing.T) {
	suite.Run(t, new(StoreTestSuite))
}

func TestSyncResultWaitHonoursContext(t *testing.T) {
	res := newSyncResult()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, res.Wait(ctx), context.Canceled)
	assert.NoError(t, res.Err())

	res.resolve(errBackend)
	assert.ErrorIs(t, res.Wait(context.Background()), errBackend)
	assert.ErrorIs(t, res.Err(), errBackend)
}

func TestSyncTimeoutResolvesAsFailure(t *testing.T) {
	repo := newFakeRepo()
	repo.hang = true
	queue := notify.New(time.Minute)
	defer queue.Close()

	store := New(repo, queue, WithSyncTimeout(20*time.Millisecond))
	_, _, err := store.Load(context.Background(), "user-1")
	require.NoError(t, err)

	saved, res, err := store.UpsertExpense(context.Background(), coffee())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err = res.Wait(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrSync)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// local state stays authoritative
	require.Len(t, store.Expenses(), 1)
	assert.Equal(t, saved.ID, store.Expenses()[0].ID)

	var failed bool
	for _, n := range queue.List() {
		if n.Kind == notify.Error && n.Message == MsgSaveExpenseFailed {
			failed = true
		}
	}
	assert.True(t, failed)
}
