// Package http exposes a user's ledger, analytics and exports as a JSON API.
package http

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"spendlens/internal/auth"
	"spendlens/internal/export"
	logx "spendlens/internal/log"
	"spendlens/internal/session"
)

// Defaults for the credential endpoint limiter.
const (
	DefaultAuthRateLimit  = 20
	DefaultAuthRateWindow = time.Minute
)

type Deps struct {
	Sessions *session.Manager
	Tokens   *auth.Tokens
	PDF      export.Exporter
	// Sheets is optional; without it the spreadsheet export answers 503.
	Sheets export.Exporter
	Logger *logx.Logger
	// Ready reports backend health for /readyz. Nil means always ready.
	Ready         func(context.Context) error
	Now           func() time.Time
	AuthRateLimit int
}

type Server struct {
	http.Server
	sessions *session.Manager
	tokens   *auth.Tokens
	pdf      export.Exporter
	sheets   export.Exporter
	ready    func(context.Context) error
	now      func() time.Time
	limiter  *rateLimiter

	shutdownOnce sync.Once
}

type ctxKey int

const sessionKey ctxKey = iota

// NewServer configures routes, returning a ready-to-run http.Server.
func NewServer(addr string, d Deps) *Server {
	if d.Logger == nil {
		d.Logger = logx.FromContext(context.Background())
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.PDF == nil {
		d.PDF = export.PDF{}
	}
	if d.AuthRateLimit == 0 {
		d.AuthRateLimit = DefaultAuthRateLimit
	}

	s := &Server{
		sessions: d.Sessions,
		tokens:   d.Tokens,
		pdf:      d.PDF,
		sheets:   d.Sheets,
		ready:    d.Ready,
		now:      d.Now,
		limiter:  newRateLimiter(d.AuthRateLimit, DefaultAuthRateWindow),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(logx.Middleware(d.Logger, func(r *http.Request) string {
		return middleware.GetReqID(r.Context())
	}))
	r.Use(securityHeaders)

	r.Get("/health", handleHealth)
	r.Get("/readyz", s.handleReady)

	r.Route("/api", func(r chi.Router) {
		r.With(s.rateLimited).Post("/register", s.handleRegister)
		r.With(s.rateLimited).Post("/login", s.handleLogin)

		r.With(s.requireSession).Group(func(r chi.Router) {
			r.Post("/logout", s.handleLogout)

			r.Get("/expenses", s.handleListExpenses)
			r.Post("/expenses", s.handleCreateExpense)
			r.Put("/expenses/{id}", s.handleUpdateExpense)
			r.Delete("/expenses/{id}", s.handleDeleteExpense)

			r.Get("/goals", s.handleListGoals)
			r.Post("/goals", s.handleCreateGoal)
			r.Put("/goals/{id}", s.handleUpdateGoal)
			r.Delete("/goals/{id}", s.handleDeleteGoal)

			r.Get("/dashboard", s.handleDashboard)
			r.Put("/settings", s.handleSettings)
			r.Post("/reset", s.handleReset)

			r.Get("/notifications", s.handleNotifications)
			r.Delete("/notifications/{id}", s.handleDismissNotification)

			r.Get("/export/pdf", s.handleExportPDF)
			r.Post("/export/sheets", s.handleExportSheets)
		})
	})

	s.Server = http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.limiter.stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

func (s *Server) rateLimited(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := extractClientIP(r)
		if !s.limiter.allow(ip) {
			logx.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
				logx.FieldClientIP, ip,
				logx.FieldPath, r.URL.Path)
			w.Header().Set("Retry-After", "60")
			writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "rate limit exceeded"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireSession authenticates the bearer token and attaches the user's
// session, reopening it if the process restarted since login.
func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			writeError(w, r, auth.ErrInvalidToken)
			return
		}
		claims, err := s.tokens.Parse(strings.TrimSpace(token))
		if err != nil {
			writeError(w, r, err)
			return
		}
		sess, err := s.sessions.Resume(r.Context(), claims.UserID, claims.Email)
		if err != nil {
			writeError(w, r, err)
			return
		}
		ctx := context.WithValue(r.Context(), sessionKey, sess)
		ctx = logx.WithLogger(ctx, logx.FromContext(ctx).With(logx.FieldUserID, claims.UserID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func sessionFrom(r *http.Request) *session.Session {
	sess, _ := r.Context().Value(sessionKey).(*session.Session)
	return sess
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			logx.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed", logx.FieldError, err)
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
