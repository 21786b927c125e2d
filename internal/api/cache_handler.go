package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/kestrelworks/sitegen-api/internal/api/shared"
	"github.com/kestrelworks/sitegen-api/internal/cache"
	"github.com/kestrelworks/sitegen-api/internal/platform/logger"
)

// CacheHandler exposes the cache admin surface.
type CacheHandler struct {
	cache     *cache.Resilient
	validator *validator.Validate
	logger    *slog.Logger
}

// NewCacheHandler creates a new CacheHandler.
func NewCacheHandler(c *cache.Resilient, log *slog.Logger) *CacheHandler {
	if log == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for CacheHandler")
	}
	return &CacheHandler{
		cache:     c,
		validator: validator.New(),
		logger:    log.With(slog.String("component", "cache_handler")),
	}
}

// Stats handles GET /cache/stats.
func (h *CacheHandler) Stats(w http.ResponseWriter, r *http.Request) {
	shared.RespondWithJSON(w, r, http.StatusOK, h.cache.Stats(r.Context()))
}

// Invalidate handles POST /cache/invalidate. It accepts either a glob
// pattern or an explicit full flush; requests with neither are rejected.
func (h *CacheHandler) Invalidate(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	var req InvalidateCacheRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request")
		return
	}
	if req.Pattern == "" && !req.All {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Either pattern or all must be set")
		return
	}

	if req.All {
		h.cache.ClearAll(r.Context())
		log.Info("cache flushed")
		shared.RespondWithJSON(w, r, http.StatusOK, InvalidateCacheResponse{Flushed: true})
		return
	}

	removed := h.cache.InvalidatePattern(r.Context(), req.Pattern)
	log.Info("cache invalidated",
		slog.String("pattern", req.Pattern),
		slog.Int("removed", removed))
	shared.RespondWithJSON(w, r, http.StatusOK, InvalidateCacheResponse{Invalidated: removed})
}
