package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/kestrelworks/sitegen-api/internal/api/middleware"
	"github.com/kestrelworks/sitegen-api/internal/api/shared"
	"github.com/kestrelworks/sitegen-api/internal/cache"
	"github.com/kestrelworks/sitegen-api/internal/hub"
	"github.com/kestrelworks/sitegen-api/internal/pipeline"
)

// NewRouter assembles the HTTP routing tree.
func NewRouter(
	orchestrator *pipeline.Orchestrator,
	progressHub *hub.Hub,
	contentCache *cache.Resilient,
	logger *slog.Logger,
) http.Handler {
	contentHandler := NewContentHandler(orchestrator, progressHub, logger)
	cacheHandler := NewCacheHandler(contentCache, logger)

	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.Trace(logger))

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		current, max := orchestrator.InFlight()
		shared.RespondWithJSON(w, req, http.StatusOK, map[string]any{
			"status":          "ok",
			"jobs_in_flight":  current,
			"jobs_capacity":   max,
			"active_trackers": progressHub.TrackerCount(),
		})
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.RequireUser)

		r.Route("/content", func(r chi.Router) {
			r.Post("/text", contentHandler.SubmitText)
			r.Post("/audio", contentHandler.SubmitAudio)

			r.Route("/jobs", func(r chi.Router) {
				r.Get("/", contentHandler.ListJobs)
				r.Get("/{id}", contentHandler.GetJob)
				r.Delete("/{id}", contentHandler.CancelJob)
				r.Get("/{id}/events", contentHandler.StreamEvents)
			})
		})

		r.Route("/cache", func(r chi.Router) {
			r.Get("/stats", cacheHandler.Stats)
			r.Post("/invalidate", cacheHandler.Invalidate)
		})
	})

	return r
}
