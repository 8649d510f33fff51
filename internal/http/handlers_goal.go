package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"spendlens/internal/core"
	"spendlens/internal/goals"
)

type goalResponse struct {
	Goal goals.Progress `json:"goal"`
	syncStatus
}

func (s *Server) handleListGoals(w http.ResponseWriter, r *http.Request) {
	progress := goals.TrackAll(sessionFrom(r).Store().Goals(), s.now())
	writeJSON(w, http.StatusOK, map[string]any{"goals": progress, "count": len(progress)})
}

func (s *Server) handleCreateGoal(w http.ResponseWriter, r *http.Request) {
	var req goalRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	g, err := req.goal("")
	if err != nil {
		writeError(w, r, err)
		return
	}
	saved, res, err := sessionFrom(r).Store().UpsertGoal(r.Context(), g)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, goalResponse{Goal: goals.Track(saved, s.now()), syncStatus: syncStatusOf(r, res)})
}

func (s *Server) handleUpdateGoal(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	store := sessionFrom(r).Store()
	if !hasGoal(store.Goals(), id) {
		writeError(w, r, errNotFound)
		return
	}
	var req goalRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	g, err := req.goal(id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	saved, res, err := store.UpdateGoal(r.Context(), g)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, goalResponse{Goal: goals.Track(saved, s.now()), syncStatus: syncStatusOf(r, res)})
}

func (s *Server) handleDeleteGoal(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	store := sessionFrom(r).Store()
	if !hasGoal(store.Goals(), id) {
		writeError(w, r, errNotFound)
		return
	}
	res, err := store.RemoveGoal(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, syncStatusOf(r, res))
}

func hasGoal(gs []core.Goal, id string) bool {
	for _, g := range gs {
		if g.ID == id {
			return true
		}
	}
	return false
}
