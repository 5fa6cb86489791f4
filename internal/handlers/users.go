package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/eldtechnologies/chatrelay/internal/api/middleware"
	"github.com/eldtechnologies/chatrelay/internal/models"
)

// UserResponse represents a directory profile.
type UserResponse struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	JoinedAt string `json:"joined_at"`
}

// ListUsers returns every registered identity except the caller's.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	caller := middleware.IdentityFromContext(r.Context())

	users, err := h.store.ListUsers(r.Context())
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}

	out := make([]models.Identity, 0, len(users))
	for i := range users {
		identity := users[i].Identity()
		if caller != nil && identity.ID == caller.ID {
			continue
		}
		out = append(out, identity)
	}

	h.JSON(w, http.StatusOK, out)
}

// GetUser handles profile lookup.
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid user ID format")
		return
	}

	user, err := h.store.GetUserByID(r.Context(), id)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if user == nil {
		h.Error(w, http.StatusNotFound, "user not found")
		return
	}

	h.JSON(w, http.StatusOK, UserResponse{
		ID:       user.ID.String(),
		Name:     user.Name,
		JoinedAt: user.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
	})
}
