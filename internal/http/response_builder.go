package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"spendlens/internal/auth"
	"spendlens/internal/core"
	"spendlens/internal/ledger"
	logx "spendlens/internal/log"
)

var (
	errNotFound    = errors.New("not found")
	errUnavailable = errors.New("export destination not configured")
)

// errorStatus maps the error taxonomy onto HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, core.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrInvalidCredentials),
		errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, ledger.ErrClosed):
		return http.StatusUnauthorized
	case errors.Is(err, core.ErrDuplicateUser),
		errors.Is(err, core.ErrBudgetBelowSpend):
		return http.StatusConflict
	case errors.Is(err, errNotFound),
		errors.Is(err, ledger.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, core.ErrSync):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error string `json:"error"`
}

// writeError logs server-side failures and writes {"error": ...}. Internal
// errors are not echoed to the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errorStatus(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		logx.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed",
			logx.FieldError, err,
			logx.FieldPath, r.URL.Path)
		if status == http.StatusInternalServerError {
			msg = http.StatusText(status)
		}
	}
	writeJSON(w, status, errorBody{Error: msg})
}

// syncStatus reports the outcome of the write-through that accompanied a
// mutation. Local state is already committed either way.
type syncStatus struct {
	Synced    bool   `json:"synced"`
	SyncError string `json:"syncError,omitempty"`
}

func syncStatusOf(r *http.Request, res *ledger.SyncResult) syncStatus {
	if err := res.Wait(r.Context()); err != nil {
		return syncStatus{SyncError: err.Error()}
	}
	return syncStatus{Synced: true}
}
