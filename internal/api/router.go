package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/chatrelay/internal/api/middleware"
	"github.com/eldtechnologies/chatrelay/internal/handlers"
)

// maxJSONBodySize bounds every JSON body except uploads.
const maxJSONBodySize = 64 * 1024

// Options configures the router beyond the handler dependencies.
type Options struct {
	AllowedOrigins  []string
	RateLimit       middleware.RateLimiterConfig
	UploadURLPrefix string
}

// NewRouter creates and configures the HTTP router.
func NewRouter(logger zerolog.Logger, deps handlers.Deps, opts Options) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware (order matters!)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.ValidateRequest)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	// Rate limiting needs Redis; single-node setups run without it
	if deps.Redis != nil {
		limiter := middleware.NewRateLimiter(deps.Redis.Client(), logger, opts.RateLimit)
		r.Use(limiter.Middleware)
	}

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "X-Upload-Budget-Remaining", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	h := handlers.NewHandler(deps)
	auth := middleware.NewAuthMiddleware(deps.Sessions)

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/api", h.Root)
	r.Get("/health", h.Health)
	r.Get("/api/stats", h.Stats)

	if deps.Media != nil {
		prefix := strings.TrimRight(opts.UploadURLPrefix, "/")
		if prefix == "" {
			prefix = "/uploads"
		}
		files := http.StripPrefix(prefix+"/", http.FileServer(http.Dir(deps.Media.Dir())))
		r.Handle(prefix+"/*", noDirectoryListing(files))
	}

	// JSON API
	r.Group(func(r chi.Router) {
		r.Use(middleware.MaxBodySize(maxJSONBodySize))

		r.Post("/api/register", h.Register)
		r.Post("/api/login", h.Login)
		r.Get("/api/users/{id}", h.GetUser)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireSession)

			r.Get("/api/me", h.Me)
			r.Get("/api/users", h.ListUsers)
			r.Post("/api/logout", h.Logout)
		})
	})

	// Uploads carry base64 images and get their own body limit
	r.Group(func(r chi.Router) {
		r.Use(middleware.MaxBodySize(handlers.MaxUploadBodySize))
		r.Use(auth.RequireSession)

		r.Post("/api/upload", h.Upload)
	})

	r.With(auth.RequireSession).Get("/ws", h.Connect)

	return r
}

// noDirectoryListing hides directory indexes of the upload store.
func noDirectoryListing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}
