package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"spendlens/internal/auth"
	"spendlens/internal/core"
	"spendlens/internal/currency"
	"spendlens/internal/ledger"
	logx "spendlens/internal/log"
	"spendlens/internal/notify"
	"spendlens/internal/persistence"
)

// Profile is a registration request.
type Profile struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

type Option func(*Manager)

// WithLedgerOptions passes opts to every store the manager opens.
func WithLedgerOptions(opts ...ledger.Option) Option {
	return func(m *Manager) { m.ledgerOpts = append(m.ledgerOpts, opts...) }
}

func WithNotificationTTL(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.notifyTTL = d
		}
	}
}

func WithSyncTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.timeout = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// Manager authenticates users and keeps one live Session per user id.
type Manager struct {
	repo       persistence.Persistence
	ledgerOpts []ledger.Option
	notifyTTL  time.Duration
	timeout    time.Duration
	now        func() time.Time
	newID      func() string
	logger     *logx.Logger

	mu       sync.Mutex
	sessions map[string]*Session

	// opening holds a channel per user whose ledger is loading; it closes
	// once the session is published.
	opening     map[string]chan struct{}
	registering map[string]*emailLock
}

type emailLock struct {
	mu   sync.Mutex
	refs int
}

func NewManager(repo persistence.Persistence, opts ...Option) *Manager {
	m := &Manager{
		repo:        repo,
		notifyTTL:   notify.DefaultTTL,
		timeout:     ledger.DefaultSyncTimeout,
		now:         time.Now,
		newID:       uuid.NewString,
		logger:      logx.FromContext(context.Background()).WithComponent(logx.ComponentSession),
		sessions:    make(map[string]*Session),
		opening:     make(map[string]chan struct{}),
		registering: make(map[string]*emailLock),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Register creates a user with the default budget and currency and opens
// a session for it.
func (m *Manager) Register(ctx context.Context, p Profile) (*Session, error) {
	p.Name = strings.TrimSpace(p.Name)
	p.Email = strings.TrimSpace(p.Email)
	switch {
	case p.Name == "":
		return nil, core.ErrEmptyName
	case p.Email == "":
		return nil, core.ErrEmptyEmail
	case len(p.Password) < auth.MinPasswordLength:
		return nil, core.ErrShortPassword
	case p.Password != p.ConfirmPassword:
		return nil, core.ErrPasswordMismatch
	}

	unlock := m.lockEmail(p.Email)
	defer unlock()

	lookupCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	_, err := m.repo.GetUser(lookupCtx, p.Email)
	switch {
	case err == nil:
		return nil, core.ErrDuplicateUser
	case !errors.Is(err, persistence.ErrUserNotFound):
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	hash, err := auth.HashPassword(p.Password)
	if err != nil {
		return nil, err
	}
	u := core.User{
		ID:            m.newID(),
		Name:          p.Name,
		Email:         p.Email,
		PasswordHash:  hash,
		MonthlyBudget: core.DefaultMonthlyBudget,
		Currency:      currency.Base,
		CreatedAt:     m.now().UTC(),
	}
	if err := u.Validate(); err != nil {
		return nil, err
	}
	if err := m.repo.PutUser(lookupCtx, u); errors.Is(err, core.ErrDuplicateUser) {
		return nil, core.ErrDuplicateUser
	} else if err != nil {
		return nil, fmt.Errorf("save user: %w", err)
	}

	m.logger.InfoContext(ctx, "User registered",
		logx.FieldOperation, logx.OpRegister,
		logx.FieldUserID, u.ID,
		logx.FieldEmail, u.Email)
	s := m.open(ctx, u)
	s.queue.Enqueue(notify.Success, MsgRegisterSuccess)
	return s, nil
}

// Login checks the password and opens, or rejoins, the user's session.
// Unknown emails and wrong passwords are indistinguishable.
func (m *Manager) Login(ctx context.Context, email, password string) (*Session, error) {
	lookupCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	u, err := m.repo.GetUser(lookupCtx, strings.TrimSpace(email))
	if errors.Is(err, persistence.ErrUserNotFound) {
		return nil, core.ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if !auth.CheckPassword(u.PasswordHash, password) {
		m.logger.WarnContext(ctx, "Rejected login",
			logx.FieldOperation, logx.OpLogin,
			logx.FieldEmail, u.Email)
		return nil, core.ErrInvalidCredentials
	}

	m.logger.InfoContext(ctx, "User logged in",
		logx.FieldOperation, logx.OpLogin,
		logx.FieldUserID, u.ID)
	s := m.open(ctx, u)
	s.queue.Enqueue(notify.Success, MsgLoginSuccess)
	return s, nil
}

// Resume returns the live session for userID, reopening it from storage
// when the process has restarted since the token was issued.
func (m *Manager) Resume(ctx context.Context, userID, email string) (*Session, error) {
	if s, ok := m.Get(userID); ok {
		return s, nil
	}
	lookupCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	u, err := m.repo.GetUser(lookupCtx, email)
	if errors.Is(err, persistence.ErrUserNotFound) || (err == nil && u.ID != userID) {
		return nil, core.ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	return m.open(ctx, u), nil
}

func (m *Manager) Get(userID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[userID]
	return s, ok
}

// Logout tears down the user's session. It reports whether one was open.
func (m *Manager) Logout(userID string) bool {
	m.mu.Lock()
	s, ok := m.sessions[userID]
	delete(m.sessions, userID)
	m.mu.Unlock()
	if ok {
		s.close()
		m.logger.InfoContext(context.Background(), "User logged out", logx.FieldUserID, userID)
	}
	return ok
}

// Close waits for pending syncs, bounded by ctx, then closes every session.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	open := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	var errs []error
	for _, s := range open {
		if err := s.store.Flush(ctx); err != nil {
			errs = append(errs, err)
		}
		s.close()
	}
	return errors.Join(errs...)
}

func (m *Manager) storeOptions(u core.User) []ledger.Option {
	opts := []ledger.Option{ledger.WithSyncTimeout(m.timeout), ledger.WithOwner(u.Email)}
	return append(opts, m.ledgerOpts...)
}

// lockEmail serializes registrations of one email within this process.
func (m *Manager) lockEmail(email string) (unlock func()) {
	key := strings.ToLower(email)
	m.mu.Lock()
	l, ok := m.registering[key]
	if !ok {
		l = &emailLock{}
		m.registering[key] = l
	}
	l.refs++
	m.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		m.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(m.registering, key)
		}
		m.mu.Unlock()
	}
}

// open loads the ledger for u and only then publishes the session, so Get
// never hands out a store without a user. Concurrent opens for one user
// wait for the first load. A load failure leaves the session usable with
// an empty ledger; the store has already queued the error message.
func (m *Manager) open(ctx context.Context, u core.User) *Session {
	m.mu.Lock()
	for {
		if s, ok := m.sessions[u.ID]; ok {
			m.mu.Unlock()
			return s
		}
		wait, loading := m.opening[u.ID]
		if !loading {
			break
		}
		m.mu.Unlock()
		<-wait
		m.mu.Lock()
	}
	done := make(chan struct{})
	m.opening[u.ID] = done
	m.mu.Unlock()

	queue := notify.New(m.notifyTTL)
	s := &Session{
		store:   ledger.New(m.repo, queue, m.storeOptions(u)...),
		queue:   queue,
		users:   m.repo,
		timeout: m.timeout,
		logger:  m.logger,
		user:    u,
	}
	if _, _, err := s.store.Load(ctx, u.ID); err != nil {
		m.logger.WarnContext(ctx, "Session opened with empty ledger",
			logx.FieldUserID, u.ID,
			logx.FieldError, err)
	}

	m.mu.Lock()
	m.sessions[u.ID] = s
	delete(m.opening, u.ID)
	m.mu.Unlock()
	close(done)
	return s
}
