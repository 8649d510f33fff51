package http

import (
	"net/http"

	"spendlens/internal/core"
	logx "spendlens/internal/log"
	"spendlens/internal/session"
)

type authResponse struct {
	Token string    `json:"token"`
	User  core.User `json:"user"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var p session.Profile
	if err := decodeJSON(w, r, &p); err != nil {
		writeError(w, r, err)
		return
	}
	sess, err := s.sessions.Register(r.Context(), p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.writeToken(w, r, http.StatusCreated, sess.User())
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	sess, err := s.sessions.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.writeToken(w, r, http.StatusOK, sess.User())
}

func (s *Server) writeToken(w http.ResponseWriter, r *http.Request, status int, u core.User) {
	token, err := s.tokens.Issue(u.ID, u.Email)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, status, authResponse{Token: token, User: u})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	u := sessionFrom(r).User()
	s.sessions.Logout(u.ID)
	logx.FromContext(r.Context()).InfoContext(r.Context(), "Logged out", logx.FieldOperation, "logout")
	w.WriteHeader(http.StatusNoContent)
}
