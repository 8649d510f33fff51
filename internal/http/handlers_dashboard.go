package http

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"spendlens/internal/export"
	"spendlens/internal/notify"
)

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	c, err := ParseCriteria(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionFrom(r).Dashboard(c, s.now()))
}

// handleSettings applies a new budget and currency. Lowering the budget
// below current spending needs "confirm": true, otherwise 409.
func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	u, err := sessionFrom(r).SaveSettings(r.Context(), req.MonthlyBudget, req.Currency, req.Confirm)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": u})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	res, err := sessionFrom(r).Reset(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, syncStatusOf(r, res))
}

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	list := sessionFrom(r).Notifications().List()
	if list == nil {
		list = []notify.Notification{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": list})
}

func (s *Server) handleDismissNotification(w http.ResponseWriter, r *http.Request) {
	if !sessionFrom(r).Notifications().Dismiss(chi.URLParam(r, "id")) {
		writeError(w, r, errNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleExportPDF(w http.ResponseWriter, r *http.Request) {
	art, ok := s.export(w, r, s.pdf)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", art.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+art.Name+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(art.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(art.Data)
}

func (s *Server) handleExportSheets(w http.ResponseWriter, r *http.Request) {
	if s.sheets == nil {
		writeError(w, r, errUnavailable)
		return
	}
	art, ok := s.export(w, r, s.sheets)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"name": art.Name, "ref": art.Ref})
}

func (s *Server) export(w http.ResponseWriter, r *http.Request, exp export.Exporter) (export.Artifact, bool) {
	c, err := ParseCriteria(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return export.Artifact{}, false
	}
	art, err := sessionFrom(r).Export(r.Context(), exp, c, s.now())
	if err != nil {
		writeError(w, r, err)
		return export.Artifact{}, false
	}
	return art, true
}
