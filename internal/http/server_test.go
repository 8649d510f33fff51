package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"spendlens/internal/auth"
	"spendlens/internal/budget"
	"spendlens/internal/persistence/memory"
	"spendlens/internal/session"
)

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type ServerSuite struct {
	suite.Suite
	srv   *Server
	mgr   *session.Manager
	token string
}

func (s *ServerSuite) SetupTest() {
	s.mgr = session.NewManager(memory.New(), session.WithNotificationTTL(time.Minute))
	s.srv = NewServer(":0", Deps{
		Sessions: s.mgr,
		Tokens:   auth.NewTokens("test-secret", time.Hour),
		Now:      func() time.Time { return testNow },
	})
	s.token = s.register("ann@example.com")
}

func (s *ServerSuite) TearDownTest() {
	_ = s.srv.Shutdown(context.Background())
	_ = s.mgr.Close(context.Background())
}

func (s *ServerSuite) do(method, path, token string, body any) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		s.Require().NoError(err)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(rr, req)
	return rr
}

func (s *ServerSuite) register(email string) string {
	rr := s.do(http.MethodPost, "/api/register", "", map[string]string{
		"name": "Ann", "email": email, "password": "secret1", "confirmPassword": "secret1",
	})
	s.Require().Equal(http.StatusCreated, rr.Code, rr.Body.String())
	var resp authResponse
	s.Require().NoError(json.Unmarshal(rr.Body.Bytes(), &resp))
	s.Require().NotEmpty(resp.Token)
	return resp.Token
}

func (s *ServerSuite) createExpense(body map[string]any) expenseResponse {
	rr := s.do(http.MethodPost, "/api/expenses", s.token, body)
	s.Require().Equal(http.StatusCreated, rr.Code, rr.Body.String())
	var resp expenseResponse
	s.Require().NoError(json.Unmarshal(rr.Body.Bytes(), &resp))
	return resp
}

func (s *ServerSuite) TestHealth() {
	rr := s.do(http.MethodGet, "/health", "", nil)
	s.Equal(http.StatusOK, rr.Code)
	s.Equal("nosniff", rr.Header().Get("X-Content-Type-Options"))

	rr = s.do(http.MethodGet, "/readyz", "", nil)
	s.Equal(http.StatusOK, rr.Code)
}

func (s *ServerSuite) TestRegisterErrors() {
	rr := s.do(http.MethodPost, "/api/register", "", map[string]string{
		"name": "Ann", "email": "ann@example.com", "password": "secret1", "confirmPassword": "secret1",
	})
	s.Equal(http.StatusConflict, rr.Code)

	rr = s.do(http.MethodPost, "/api/register", "", map[string]string{
		"name": "Bob", "email": "bob@example.com", "password": "123", "confirmPassword": "123",
	})
	s.Equal(http.StatusBadRequest, rr.Code)
	s.Contains(rr.Body.String(), "at least 6 characters")

	req := httptest.NewRequest(http.MethodPost, "/api/register", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(rec, req)
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *ServerSuite) TestLogin() {
	rr := s.do(http.MethodPost, "/api/login", "", map[string]string{"email": "ann@example.com", "password": "nope-nope"})
	s.Equal(http.StatusUnauthorized, rr.Code)

	rr = s.do(http.MethodPost, "/api/login", "", map[string]string{"email": "ann@example.com", "password": "secret1"})
	s.Require().Equal(http.StatusOK, rr.Code)
	var resp authResponse
	s.Require().NoError(json.Unmarshal(rr.Body.Bytes(), &resp))
	s.Equal("ann@example.com", resp.User.Email)
	s.NotContains(rr.Body.String(), "secret1")
}

func (s *ServerSuite) TestRequiresToken() {
	s.Equal(http.StatusUnauthorized, s.do(http.MethodGet, "/api/expenses", "", nil).Code)
	s.Equal(http.StatusUnauthorized, s.do(http.MethodGet, "/api/expenses", "garbage", nil).Code)

	other := auth.NewTokens("other-secret", time.Hour)
	forged, err := other.Issue("x", "ann@example.com")
	s.Require().NoError(err)
	s.Equal(http.StatusUnauthorized, s.do(http.MethodGet, "/api/expenses", forged, nil).Code)
}

func (s *ServerSuite) TestExpenseLifecycle() {
	created := s.createExpense(map[string]any{"title": "Coffee", "amount": "4.50", "date": "2024-02-10", "tags": []string{"Personal"}})
	s.True(created.Synced)
	s.NotEmpty(created.Expense.ID)
	s.Equal("Food & Dining", string(created.Expense.Category))
	s.Equal("Medium", string(created.Expense.Priority))

	s.createExpense(map[string]any{"title": "Rent", "amount": 900, "date": "2024-02-01", "category": "Housing"})

	rr := s.do(http.MethodGet, "/api/expenses?category=Housing", s.token, nil)
	s.Require().Equal(http.StatusOK, rr.Code)
	var list struct {
		Count    int `json:"count"`
		Expenses []struct {
			Title      string `json:"title"`
			DateString string `json:"dateString"`
		} `json:"expenses"`
	}
	s.Require().NoError(json.Unmarshal(rr.Body.Bytes(), &list))
	s.Equal(1, list.Count)
	s.Equal("Rent", list.Expenses[0].Title)
	s.Equal("Feb 1, 2024", list.Expenses[0].DateString)

	rr = s.do(http.MethodPut, "/api/expenses/"+created.Expense.ID, s.token, map[string]any{"title": "Latte", "amount": "5"})
	s.Require().Equal(http.StatusOK, rr.Code)
	var updated expenseResponse
	s.Require().NoError(json.Unmarshal(rr.Body.Bytes(), &updated))
	s.Equal(created.Expense.ID, updated.Expense.ID)
	s.Equal("Latte", updated.Expense.Title)

	s.Equal(http.StatusNotFound, s.do(http.MethodPut, "/api/expenses/missing", s.token, map[string]any{"title": "x", "amount": 1}).Code)
	s.Equal(http.StatusOK, s.do(http.MethodDelete, "/api/expenses/"+created.Expense.ID, s.token, nil).Code)
	s.Equal(http.StatusNotFound, s.do(http.MethodDelete, "/api/expenses/"+created.Expense.ID, s.token, nil).Code)
}

func (s *ServerSuite) TestExpenseValidation() {
	rr := s.do(http.MethodPost, "/api/expenses", s.token, map[string]any{"title": " ", "amount": 5})
	s.Equal(http.StatusBadRequest, rr.Code)
	rr = s.do(http.MethodPost, "/api/expenses", s.token, map[string]any{"title": "x", "amount": -1})
	s.Equal(http.StatusBadRequest, rr.Code)
	rr = s.do(http.MethodGet, "/api/expenses?category=Bogus", s.token, nil)
	s.Equal(http.StatusBadRequest, rr.Code)
	rr = s.do(http.MethodPost, "/api/expenses", s.token, map[string]any{"title": "Coffee", "amount": "4.50", "date": "2024-13-45"})
	s.Equal(http.StatusBadRequest, rr.Code)
	s.Contains(rr.Body.String(), "invalid date")
	rr = s.do(http.MethodPost, "/api/goals", s.token, map[string]any{"title": "Trip", "targetAmount": 1000, "targetDate": "someday"})
	s.Equal(http.StatusBadRequest, rr.Code)

	rr = s.do(http.MethodGet, "/api/expenses", s.token, nil)
	s.Require().Equal(http.StatusOK, rr.Code)
	s.Contains(rr.Body.String(), `"count":0`)
}

func (s *ServerSuite) TestGoals() {
	rr := s.do(http.MethodPost, "/api/goals", s.token, map[string]any{
		"title": "Trip", "targetAmount": 1000, "currentAmount": 250, "targetDate": "2024-03-11",
	})
	s.Require().Equal(http.StatusCreated, rr.Code, rr.Body.String())
	var created struct {
		Goal struct {
			Goal struct {
				ID string `json:"id"`
			} `json:"goal"`
			Percent       decimal.Decimal `json:"percent"`
			DaysRemaining int             `json:"daysRemaining"`
		} `json:"goal"`
		Synced bool `json:"synced"`
	}
	s.Require().NoError(json.Unmarshal(rr.Body.Bytes(), &created))
	s.True(created.Synced)
	s.True(created.Goal.Percent.Equal(decimal.NewFromInt(25)))
	s.Equal(10, created.Goal.DaysRemaining)

	id := created.Goal.Goal.ID
	s.Equal(http.StatusOK, s.do(http.MethodGet, "/api/goals", s.token, nil).Code)
	s.Equal(http.StatusOK, s.do(http.MethodPut, "/api/goals/"+id, s.token, map[string]any{"title": "Trip", "targetAmount": 1000, "currentAmount": 1500}).Code)
	s.Equal(http.StatusBadRequest, s.do(http.MethodPut, "/api/goals/"+id, s.token, map[string]any{"title": "Trip", "targetAmount": 0}).Code)
	s.Equal(http.StatusOK, s.do(http.MethodDelete, "/api/goals/"+id, s.token, nil).Code)
	s.Equal(http.StatusNotFound, s.do(http.MethodDelete, "/api/goals/"+id, s.token, nil).Code)
}

func (s *ServerSuite) TestDashboardAndSettings() {
	s.createExpense(map[string]any{"title": "Rent", "amount": 900, "date": "2024-02-01", "category": "Housing"})

	rr := s.do(http.MethodGet, "/api/dashboard", s.token, nil)
	s.Require().Equal(http.StatusOK, rr.Code)
	var dash struct {
		Count  int           `json:"count"`
		Budget budget.Status `json:"budget"`
	}
	s.Require().NoError(json.Unmarshal(rr.Body.Bytes(), &dash))
	s.Equal(1, dash.Count)
	s.True(dash.Budget.Remaining.Equal(decimal.NewFromInt(100)))
	s.Equal(budget.Warning, dash.Budget.Band)

	rr = s.do(http.MethodPut, "/api/settings", s.token, map[string]any{"monthlyBudget": 500, "currency": "EUR"})
	s.Equal(http.StatusConflict, rr.Code)

	rr = s.do(http.MethodPut, "/api/settings", s.token, map[string]any{"monthlyBudget": 500, "currency": "EUR", "confirm": true})
	s.Require().Equal(http.StatusOK, rr.Code)
	s.Contains(rr.Body.String(), `"currency":"EUR"`)

	rr = s.do(http.MethodPut, "/api/settings", s.token, map[string]any{"monthlyBudget": 500, "currency": "XYZ"})
	s.Equal(http.StatusBadRequest, rr.Code)
}

func (s *ServerSuite) TestNotifications() {
	s.createExpense(map[string]any{"title": "Coffee", "amount": 3})

	rr := s.do(http.MethodGet, "/api/notifications", s.token, nil)
	s.Require().Equal(http.StatusOK, rr.Code)
	var resp struct {
		Notifications []struct {
			ID      string `json:"id"`
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"notifications"`
	}
	s.Require().NoError(json.Unmarshal(rr.Body.Bytes(), &resp))
	s.Require().NotEmpty(resp.Notifications)
	last := resp.Notifications[len(resp.Notifications)-1]
	s.Equal("Expense saved", last.Message)
	s.Equal("success", last.Type)

	s.Equal(http.StatusNoContent, s.do(http.MethodDelete, "/api/notifications/"+last.ID, s.token, nil).Code)
	s.Equal(http.StatusNotFound, s.do(http.MethodDelete, "/api/notifications/"+last.ID, s.token, nil).Code)
}

func (s *ServerSuite) TestExports() {
	s.createExpense(map[string]any{"title": "Coffee", "amount": 3})

	rr := s.do(http.MethodGet, "/api/export/pdf", s.token, nil)
	s.Require().Equal(http.StatusOK, rr.Code)
	s.Equal("application/pdf", rr.Header().Get("Content-Type"))
	s.Contains(rr.Header().Get("Content-Disposition"), "expenses-2024-03-01.pdf")
	s.True(bytes.HasPrefix(rr.Body.Bytes(), []byte("%PDF")))

	s.Equal(http.StatusServiceUnavailable, s.do(http.MethodPost, "/api/export/sheets", s.token, nil).Code)
}

func (s *ServerSuite) TestResetAndLogout() {
	s.createExpense(map[string]any{"title": "Coffee", "amount": 3})

	rr := s.do(http.MethodPost, "/api/reset", s.token, nil)
	s.Require().Equal(http.StatusOK, rr.Code)
	s.Contains(rr.Body.String(), `"synced":true`)

	rr = s.do(http.MethodGet, "/api/expenses", s.token, nil)
	s.Contains(rr.Body.String(), `"count":0`)

	s.Equal(http.StatusNoContent, s.do(http.MethodPost, "/api/logout", s.token, nil).Code)
}

func TestServerSuite(t *testing.T) {
	suite.Run(t, new(ServerSuite))
}

func TestAuthRateLimit(t *testing.T) {
	mgr := session.NewManager(memory.New())
	srv := NewServer(":0", Deps{Sessions: mgr, Tokens: auth.NewTokens("s", time.Hour), AuthRateLimit: 2})
	defer srv.Shutdown(context.Background())

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/login", bytes.NewBufferString(`{"email":"a@b.c","password":"xxxxxx"}`))
		rr := httptest.NewRecorder()
		srv.Handler.ServeHTTP(rr, req)
		codes = append(codes, rr.Code)
	}
	assert.Equal(t, []int{http.StatusUnauthorized, http.StatusUnauthorized, http.StatusTooManyRequests}, codes)
}

func TestReadyzReportsBackendFailure(t *testing.T) {
	srv := NewServer(":0", Deps{
		Sessions: session.NewManager(memory.New()),
		Tokens:   auth.NewTokens("s", time.Hour),
		Ready:    func(context.Context) error { return errors.New("db down") },
	})
	defer srv.Shutdown(context.Background())

	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
