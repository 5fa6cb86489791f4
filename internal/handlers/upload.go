package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/eldtechnologies/chatrelay/internal/api/middleware"
	"github.com/eldtechnologies/chatrelay/internal/media"
	"github.com/eldtechnologies/chatrelay/internal/metrics"
)

// MaxUploadBodySize bounds the JSON upload body. Base64 inflates the
// payload by a third, plus room for the name.
const MaxUploadBodySize = media.MaxUploadBytes*4/3 + 4096

// UploadRequest carries a base64 image, optionally as a data URL, and the
// original file name. Both fields are required.
type UploadRequest struct {
	Image string `json:"image"`
	Name  string `json:"name"`
}

// UploadResponse holds the relative URL of the stored asset.
type UploadResponse struct {
	URL  string `json:"url"`
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// Upload validates and stores an image. Nothing is written when any
// check fails.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	var req UploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			h.reject(w, http.StatusRequestEntityTooLarge, "image exceeds size limit")
			return
		}
		h.reject(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if strings.TrimSpace(req.Name) == "" {
		h.reject(w, http.StatusBadRequest, "name is required")
		return
	}
	if req.Image == "" {
		h.reject(w, http.StatusBadRequest, "image is required")
		return
	}

	data, err := media.DecodePayload(req.Image)
	if err != nil {
		h.reject(w, http.StatusBadRequest, "image must be base64 encoded")
		return
	}

	if _, err := media.Inspect(data, media.DefaultParams()); err != nil {
		switch {
		case errors.Is(err, media.ErrTooLarge):
			h.reject(w, http.StatusRequestEntityTooLarge, "image exceeds size limit")
		case errors.Is(err, media.ErrDimensionsExceeded):
			h.reject(w, http.StatusBadRequest, "image dimensions exceed limit")
		default:
			h.reject(w, http.StatusBadRequest, "file is not a supported image")
		}
		return
	}

	var uploaderID string
	if identity := middleware.IdentityFromContext(r.Context()); identity != nil {
		uploaderID = identity.ID
	}

	asset, err := h.media.Save(r.Context(), uploaderID, req.Name, data)
	if err != nil {
		h.logger.Error().Err(err).Msg("saving upload")
		metrics.Uploads.WithLabelValues("error").Inc()
		h.Error(w, http.StatusInternalServerError, "failed to store image")
		return
	}
	metrics.Uploads.WithLabelValues("stored").Inc()

	// The file is already served; a lost metadata row only affects stats.
	if err := h.store.RecordAsset(r.Context(), asset); err != nil {
		h.logger.Warn().Err(err).Str("asset", asset.Name).Msg("recording asset")
	}

	h.logger.Info().
		Str("asset", asset.Name).
		Int64("size", asset.Size).
		Str("uploader_id", uploaderID).
		Msg("image stored")

	h.JSON(w, http.StatusCreated, UploadResponse{
		URL:  asset.URL,
		Name: asset.Name,
		Size: asset.Size,
	})
}

func (h *Handler) reject(w http.ResponseWriter, status int, message string) {
	metrics.Uploads.WithLabelValues("rejected").Inc()
	h.Error(w, status, message)
}
