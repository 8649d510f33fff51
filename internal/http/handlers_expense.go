package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"spendlens/internal/analytics"
	"spendlens/internal/core"
	"spendlens/internal/filter"
)

type expenseResponse struct {
	Expense core.Expense `json:"expense"`
	syncStatus
}

type expenseListResponse struct {
	Expenses []analytics.Row `json:"expenses"`
	Count    int             `json:"count"`
}

// handleListExpenses returns the filtered view in the display currency.
func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	c, err := ParseCriteria(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	sess := sessionFrom(r)
	rows := analytics.DisplayRows(filter.Apply(sess.Store().Expenses(), c), sess.User().Currency)
	writeJSON(w, http.StatusOK, expenseListResponse{Expenses: rows, Count: len(rows)})
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	var req expenseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	e, err := req.expense("")
	if err != nil {
		writeError(w, r, err)
		return
	}
	saved, res, err := sessionFrom(r).Store().UpsertExpense(r.Context(), e)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, expenseResponse{Expense: saved, syncStatus: syncStatusOf(r, res)})
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	store := sessionFrom(r).Store()
	if !hasExpense(store.Expenses(), id) {
		writeError(w, r, errNotFound)
		return
	}
	var req expenseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	e, err := req.expense(id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	saved, res, err := store.UpdateExpense(r.Context(), e)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, expenseResponse{Expense: saved, syncStatus: syncStatusOf(r, res)})
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	store := sessionFrom(r).Store()
	if !hasExpense(store.Expenses(), id) {
		writeError(w, r, errNotFound)
		return
	}
	res, err := store.RemoveExpense(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, syncStatusOf(r, res))
}

func hasExpense(es []core.Expense, id string) bool {
	for _, e := range es {
		if e.ID == id {
			return true
		}
	}
	return false
}
