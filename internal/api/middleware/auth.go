package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/eldtechnologies/chatrelay/internal/models"
	"github.com/eldtechnologies/chatrelay/internal/store"
)

type contextKey string

const (
	IdentityContextKey contextKey = "identity"
	TokenContextKey    contextKey = "session_token"
)

// SessionCookieName is the cookie carrying the session token for browsers.
const SessionCookieName = "chat_session"

// AuthMiddleware resolves session tokens to identities.
type AuthMiddleware struct {
	sessions store.SessionStore
}

// NewAuthMiddleware creates a new auth middleware.
func NewAuthMiddleware(sessions store.SessionStore) *AuthMiddleware {
	return &AuthMiddleware{sessions: sessions}
}

// RequireSession rejects requests without a valid session token and
// attaches the session identity to the request context.
func (m *AuthMiddleware) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := SessionToken(r)
		if token == "" {
			jsonError(w, http.StatusUnauthorized, "missing session token")
			return
		}

		identity, err := m.sessions.GetSession(r.Context(), token)
		if err != nil {
			if errors.Is(err, store.ErrSessionNotFound) {
				jsonError(w, http.StatusUnauthorized, "invalid or expired session")
				return
			}
			jsonError(w, http.StatusServiceUnavailable, "session store unavailable")
			return
		}

		ctx := context.WithValue(r.Context(), IdentityContextKey, identity)
		ctx = context.WithValue(ctx, TokenContextKey, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// SessionToken extracts the token from the Authorization header, the
// session cookie or the token query parameter, in that order. Browsers
// cannot set headers on a WebSocket handshake, hence the query fallback.
func SessionToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	if c, err := r.Cookie(SessionCookieName); err == nil && c.Value != "" {
		return c.Value
	}
	return r.URL.Query().Get("token")
}

func sha256Hex(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

func jsonError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// IdentityFromContext retrieves the authenticated identity from the request context.
func IdentityFromContext(ctx context.Context) *models.Identity {
	identity, ok := ctx.Value(IdentityContextKey).(*models.Identity)
	if !ok {
		return nil
	}
	return identity
}

// TokenFromContext retrieves the session token of an authenticated request.
func TokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(TokenContextKey).(string)
	return token
}
