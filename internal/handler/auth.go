package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/snake-arena/internal/domain"
)

type ctxKey int

const (
	userKey ctxKey = iota
	tokenKey
)

// requireUser authenticates the bearer token. A token whose user has been
// removed still passes, with a nil user in the context; handlers decide how
// to report that.
func (h *Handler) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		user, err := h.auth.Authenticate(r.Context(), token)
		if err != nil && !errors.Is(err, domain.ErrUserNotFound) {
			h.writeServiceError(w, r, err)
			return
		}

		ctx := context.WithValue(r.Context(), userKey, user)
		ctx = context.WithValue(ctx, tokenKey, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// currentUser returns the authenticated user, or nil if it no longer exists
func currentUser(ctx context.Context) *domain.User {
	user, _ := ctx.Value(userKey).(*domain.User)
	return user
}

type signupRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type authResponse struct {
	Success bool         `json:"success"`
	User    *domain.User `json:"user,omitempty"`
	Error   string       `json:"error,omitempty"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// Signup handles account creation. Duplicate accounts are reported in the
// body with success=false rather than as an HTTP error.
func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	user, err := h.auth.Signup(r.Context(), req.Email, req.Username, req.Password)
	switch {
	case err == nil:
		h.writeJSON(w, http.StatusCreated, authResponse{Success: true, User: user})
	case errors.Is(err, domain.ErrEmailTaken), errors.Is(err, domain.ErrUsernameTaken):
		h.writeJSON(w, http.StatusCreated, authResponse{Success: false, Error: err.Error()})
	default:
		h.writeServiceError(w, r, err)
	}
}

// Login accepts either a JSON body {email, password} or an OAuth2 password
// form where username carries the email.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded") {
		if err := r.ParseForm(); err != nil {
			h.writeServiceError(w, r, errors.Join(domain.ErrInvalidRequest, err))
			return
		}
		req.Email = r.PostForm.Get("username")
		req.Password = r.PostForm.Get("password")
	} else if err := decodeJSON(r, &req); err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	token, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, tokenResponse{AccessToken: token, TokenType: "bearer"})
}

// Logout ends the caller's session
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	token, _ := r.Context().Value(tokenKey).(string)
	if err := h.auth.Logout(r.Context(), token); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Me returns the authenticated user
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r.Context())
	if user == nil {
		h.writeError(w, http.StatusNotFound, domain.ErrUserNotFound)
		return
	}
	h.writeJSON(w, http.StatusOK, user)
}
