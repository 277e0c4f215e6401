package handlers

import (
	"net/http"

	"github.com/marmos91/relaystream/internal/logger"
	"github.com/marmos91/relaystream/pkg/cache"
	"github.com/marmos91/relaystream/pkg/pool"
)

// WorkersHandler exposes the upstream worker pool.
type WorkersHandler struct {
	pool *pool.Pool
}

func NewWorkersHandler(p *pool.Pool) *WorkersHandler {
	return &WorkersHandler{pool: p}
}

// List handles GET /api/v1/workers.
func (h *WorkersHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"policy":  h.pool.Policy(),
		"workers": h.pool.Stats(),
	})
}

// CacheHandler exposes chunk cache occupancy and purge.
type CacheHandler struct {
	cache cache.Cache
}

func NewCacheHandler(c cache.Cache) *CacheHandler {
	return &CacheHandler{cache: c}
}

// Stats handles GET /api/v1/cache.
func (h *CacheHandler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.cache.Stats())
}

// Purge handles DELETE /api/v1/cache.
func (h *CacheHandler) Purge(w http.ResponseWriter, r *http.Request) {
	before := h.cache.Stats()
	if err := h.cache.Purge(r.Context()); err != nil {
		logger.ErrorCtx(r.Context(), "Cache purge failed", logger.Err(err))
		InternalServerError(w, "Failed to purge cache")
		return
	}
	logger.InfoCtx(r.Context(), "Cache purged",
		logger.Evicted(before.Entries),
		logger.Bytes(before.Bytes))
	writeJSON(w, http.StatusOK, okResponse(map[string]any{
		"purged_entries": before.Entries,
		"purged_bytes":   before.Bytes,
	}))
}
