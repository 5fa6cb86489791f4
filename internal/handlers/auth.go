package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/eldtechnologies/chatrelay/internal/api/middleware"
	"github.com/eldtechnologies/chatrelay/internal/crypto"
	"github.com/eldtechnologies/chatrelay/internal/metrics"
	"github.com/eldtechnologies/chatrelay/internal/models"
	"github.com/eldtechnologies/chatrelay/internal/store"
)

// RegisterRequest represents the registration request body.
type RegisterRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

// LoginRequest represents the login request body.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SessionResponse is returned by register and login.
type SessionResponse struct {
	User  models.Identity `json:"user"`
	Token string          `json:"token"`
}

// Register creates a directory entry and signs the new user in.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	email := normalizeEmail(req.Email)
	if !isValidEmail(email) {
		h.Error(w, http.StatusBadRequest, "invalid email format")
		return
	}

	name := sanitizeName(req.Name)
	if name == "" {
		h.Error(w, http.StatusBadRequest, "name is required")
		return
	}

	hash, err := crypto.HashPassword(req.Password)
	if err != nil {
		if errors.Is(err, crypto.ErrPasswordTooShort) || errors.Is(err, crypto.ErrPasswordTooLong) {
			h.Error(w, http.StatusBadRequest, err.Error())
			return
		}
		h.Error(w, http.StatusInternalServerError, "failed to hash password")
		return
	}

	user, err := h.store.CreateUser(r.Context(), email, name, hash)
	if err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			h.Error(w, http.StatusConflict, "email already registered")
			return
		}
		h.logger.Error().Err(err).Msg("creating user")
		h.Error(w, http.StatusInternalServerError, "failed to create user")
		return
	}
	metrics.UsersRegistered.Inc()

	h.startSession(w, r, http.StatusCreated, user)
}

// Login verifies credentials and issues a session token.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	user, err := h.store.GetUserByEmail(r.Context(), normalizeEmail(req.Email))
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if user == nil {
		crypto.RejectPassword(req.Password)
		h.Error(w, http.StatusUnauthorized, "invalid email or password")
		return
	}

	if err := crypto.CheckPassword(user.PasswordHash, req.Password); err != nil {
		h.Error(w, http.StatusUnauthorized, "invalid email or password")
		return
	}

	h.startSession(w, r, http.StatusOK, user)
}

// Logout ends the caller's session.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	token := middleware.TokenFromContext(r.Context())
	if err := h.sessions.DeleteSession(r.Context(), token); err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to end session")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	w.WriteHeader(http.StatusNoContent)
}

// Me returns the caller's identity.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	identity := middleware.IdentityFromContext(r.Context())
	if identity == nil {
		h.Error(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	h.JSON(w, http.StatusOK, identity)
}

func (h *Handler) startSession(w http.ResponseWriter, r *http.Request, status int, user *models.User) {
	identity := user.Identity()
	token, err := h.sessions.CreateSession(r.Context(), identity, store.SessionTTL)
	if err != nil {
		h.logger.Error().Err(err).Msg("creating session")
		h.Error(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(store.SessionTTL.Seconds()),
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})

	h.JSON(w, status, SessionResponse{User: identity, Token: token})
}
