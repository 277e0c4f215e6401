package handlers

import (
	"context"
	"net/http"
	"time"
)

// Checker is a dependency probed by the readiness endpoint.
type Checker interface {
	Healthcheck(ctx context.Context) error
}

// CheckFunc adapts a function to Checker.
type CheckFunc func(ctx context.Context) error

func (f CheckFunc) Healthcheck(ctx context.Context) error { return f(ctx) }

// HealthHandler handles health check endpoints.
//
// Health endpoints are unauthenticated:
//   - Liveness probe: Is the server process running?
//   - Readiness probe: Can the cache, metadata store and upstream serve?
type HealthHandler struct {
	checks map[string]Checker
	order  []string
}

// NewHealthHandler creates a health handler with no dependencies. Use
// Register to add components to the readiness probe.
func NewHealthHandler() *HealthHandler {
	return &HealthHandler{checks: make(map[string]Checker)}
}

// Register adds a named readiness check. A nil checker is ignored.
func (h *HealthHandler) Register(name string, c Checker) *HealthHandler {
	if c == nil {
		return h
	}
	if _, exists := h.checks[name]; !exists {
		h.order = append(h.order, name)
	}
	h.checks[name] = c
	return h
}

// Liveness handles GET /health.
//
// Returns 200 OK as long as the HTTP server is responsive.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthyResponse(map[string]string{
		"service": "relaystream",
	}))
}

// ComponentHealth is the status of one readiness dependency.
type ComponentHealth struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Error   string `json:"error,omitempty"`
	Latency string `json:"latency"`
}

// Readiness handles GET /health/ready.
//
// Returns 503 Service Unavailable if any registered component fails its
// check or none is registered.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	if len(h.order) == 0 {
		writeJSON(w, http.StatusServiceUnavailable, Response{
			Status:    "unhealthy",
			Timestamp: time.Now().UTC(),
			Error:     "no components registered",
		})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	components := make([]ComponentHealth, 0, len(h.order))
	allHealthy := true

	for _, name := range h.order {
		start := time.Now()
		err := h.checks[name].Healthcheck(ctx)

		health := ComponentHealth{
			Name:    name,
			Status:  "healthy",
			Latency: time.Since(start).String(),
		}
		if err != nil {
			health.Status = "unhealthy"
			health.Error = err.Error()
			allHealthy = false
		}
		components = append(components, health)
	}

	if allHealthy {
		writeJSON(w, http.StatusOK, healthyResponse(components))
	} else {
		writeJSON(w, http.StatusServiceUnavailable, unhealthyResponseWithData(components))
	}
}
