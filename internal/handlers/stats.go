package handlers

import "net/http"

// StatsResponse represents the response from the stats endpoint.
type StatsResponse struct {
	TotalUsers      int64 `json:"total_users"`
	LiveConnections int   `json:"live_connections"`
	TotalAssets     int64 `json:"total_assets"`
}

// Stats returns directory and relay counters.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	totalUsers, err := h.store.CountUsers(ctx)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to count users")
		return
	}

	totalAssets, err := h.store.CountAssets(ctx)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to count assets")
		return
	}

	h.JSON(w, http.StatusOK, StatsResponse{
		TotalUsers:      totalUsers,
		LiveConnections: h.hub.Len(),
		TotalAssets:     totalAssets,
	})
}
