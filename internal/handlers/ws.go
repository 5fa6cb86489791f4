package handlers

import (
	"net/http"

	"github.com/eldtechnologies/chatrelay/internal/api/middleware"
)

// Connect upgrades an authenticated request to a relay connection.
func (h *Handler) Connect(w http.ResponseWriter, r *http.Request) {
	identity := middleware.IdentityFromContext(r.Context())
	if identity == nil {
		h.Error(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	h.hub.ServeWS(w, r, *identity)
}
