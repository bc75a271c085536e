package api

import (
	"encoding/json"
	"net/http"

	"github.com/versekeeper/versekeeper/internal/api/handlers"
	"github.com/versekeeper/versekeeper/internal/api/middleware"
	"github.com/versekeeper/versekeeper/internal/config"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates the HTTP router with all API routes.
func NewRouter(cfg *config.Config, h *handlers.Handlers) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Compress(5))
	r.Use(middleware.Logger)
	r.Use(middleware.Telemetry)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id", "X-Trace-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(middleware.NewAPIKeyAuth(cfg.APIKeys).Middleware)

	// Health & info
	r.Get("/health", healthHandler)
	r.Get("/version", versionHandler(cfg))

	r.Route("/api/v1", func(r chi.Router) {
		// Provider orchestration
		r.Post("/configure", h.Configure)
		r.Get("/status", h.Status)
		r.Post("/test", h.TestProvider)
		r.Get("/providers", h.ListProviders)
		r.Get("/providers/health", h.ProviderHealth)

		// AI operations
		r.Post("/scripture", h.FetchScripture)
		r.Post("/takeaway", h.KeyTakeaway)
		r.Post("/takeaway/validate", h.ValidateTakeaway)
		r.Post("/score", h.Score)

		// Verse records
		r.Route("/verses", func(r chi.Router) {
			r.Get("/", h.ListVerses)
			r.Post("/", h.CreateVerse)
			r.Post("/search", h.SearchVerses)
			r.Route("/{verseId}", func(r chi.Router) {
				r.Get("/", h.GetVerse)
				r.Delete("/", h.DeleteVerse)
				r.Post("/score", h.ScoreVerse)
			})
		})
	})

	return r
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"service": "versekeeper",
	})
}

func versionHandler(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"version": cfg.Version,
			"service": "versekeeper",
		})
	}
}
