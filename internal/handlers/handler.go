package handlers

import (
	"encoding/json"
	"net/http"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/chatrelay/internal/media"
	"github.com/eldtechnologies/chatrelay/internal/relay"
	"github.com/eldtechnologies/chatrelay/internal/store"
)

// emailRegex validates email addresses per RFC 5322 (simplified).
var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// Deps are the collaborators shared by all handlers.
// Redis and Bus are optional and only used for health reporting.
type Deps struct {
	Store    store.DataStore
	Sessions store.SessionStore
	Redis    *store.RedisStore
	Bus      *relay.NATSBus
	Hub      *relay.Hub
	Media    *media.Storage
	Logger   zerolog.Logger
}

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	store    store.DataStore
	sessions store.SessionStore
	redis    *store.RedisStore
	bus      *relay.NATSBus
	hub      *relay.Hub
	media    *media.Storage
	logger   zerolog.Logger
}

// NewHandler creates a new Handler.
func NewHandler(d Deps) *Handler {
	return &Handler{
		store:    d.Store,
		sessions: d.Sessions,
		redis:    d.Redis,
		bus:      d.Bus,
		hub:      d.Hub,
		media:    d.Media,
		logger:   d.Logger,
	}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}

// maxNameRunes bounds display names in characters, not bytes.
const maxNameRunes = 100

// sanitizeName trims and limits name to 100 characters, removing control characters.
func sanitizeName(name string) string {
	name = strings.TrimSpace(name)

	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)

	if utf8.RuneCountInString(name) > maxNameRunes {
		name = strings.TrimSpace(string([]rune(name)[:maxNameRunes]))
	}

	return name
}

// normalizeEmail lower-cases an address so lookups are case-insensitive.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func isValidEmail(email string) bool {
	if email == "" || len(email) > 254 {
		return false
	}
	return emailRegex.MatchString(email)
}
