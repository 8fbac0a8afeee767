package api

import (
	"encoding/json"
	"net/http"

	"github.com/cuemby/hazardfeed/pkg/auth"
	"github.com/cuemby/hazardfeed/pkg/types"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// register handles POST /api/auth/register. Official accounts come back
// without a token until approved.
func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req auth.RegisterRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, r, bodyError(err))
		return
	}

	session, err := s.accounts.Register(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

// login handles POST /api/auth/login
func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, r, bodyError(err))
		return
	}

	session, err := s.accounts.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// approve handles PATCH /api/auth/approve/{id}
func (s *Server) approve(w http.ResponseWriter, r *http.Request, claims *types.Claims) {
	user, err := s.accounts.Approve(r.Context(), claims, r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}
