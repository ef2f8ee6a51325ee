package web

import (
	"errors"
	"net/http"

	"github.com/scriptyard/scriptyard/internal/auth"
	"github.com/scriptyard/scriptyard/internal/models"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

// handleLogin verifies username/password against the Store and, on success,
// issues a bearer token good for auth.DefaultTokenTTL.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		encodeError(w, err)
		return
	}
	u, err := s.store.GetByUsername(r.Context(), req.Username)
	if err != nil {
		encodeError(w, auth.ErrInvalidToken)
		return
	}
	if err := auth.VerifyPassword(u.PasswordHash, req.Password); err != nil {
		encodeError(w, auth.ErrInvalidToken)
		return
	}
	token, err := s.tokens.Issue(r.Context(), u)
	if err != nil {
		encodeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{Token: token, User: u})
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// handleRegister creates a new user account. The very first account created
// on a fresh install is promoted to admin, matching the teacher's own
// bootstrap-the-first-operator convention (cmd/root.go's admin seeding).
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		encodeError(w, err)
		return
	}
	if req.Username == "" {
		encodeError(w, errInvalidArgs)
		return
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		encodeError(w, err)
		return
	}
	count, err := s.store.Count(r.Context())
	if err != nil {
		encodeError(w, err)
		return
	}
	u := &models.User{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
		IsAdmin:      count == 0,
		Theme:        "auto",
		Timezone:     "UTC",
	}
	if err := s.store.Create(r.Context(), u); err != nil {
		if errors.Is(err, auth.ErrUserAlreadyExists) {
			encodeError(w, err)
			return
		}
		encodeError(w, err)
		return
	}
	token, err := s.tokens.Issue(r.Context(), u)
	if err != nil {
		encodeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, tokenResponse{Token: token, User: u})
}
