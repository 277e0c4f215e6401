package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/marmos91/relaystream/internal/logger"
	"github.com/marmos91/relaystream/internal/telemetry"
	"github.com/marmos91/relaystream/pkg/api/auth"
	"github.com/marmos91/relaystream/pkg/api/handlers"
	apimw "github.com/marmos91/relaystream/pkg/api/middleware"
	"github.com/marmos91/relaystream/pkg/cache"
	"github.com/marmos91/relaystream/pkg/metadata"
	"github.com/marmos91/relaystream/pkg/metrics"
	"github.com/marmos91/relaystream/pkg/pool"
	"github.com/marmos91/relaystream/pkg/stream"
)

// Deps are the components the router serves.
type Deps struct {
	Engine *stream.Engine
	Cache  cache.Cache
	Pool   *pool.Pool

	// Metadata backs subtitle lookup and /api/v1/files. Optional.
	Metadata metadata.Store

	// Upstream is probed by /health/ready. Optional.
	Upstream handlers.Checker

	// JWT enables the admin API. Nil leaves /api/v1 unmounted.
	JWT *auth.JWTService

	// HTTPMetrics is optional.
	HTTPMetrics metrics.HTTPMetrics
}

// NewRouter creates and configures the chi router with all middleware and routes.
//
// Routes:
//   - GET /health, GET /health/ready
//   - GET|HEAD /stream/{link}, GET /download/{link}, GET /subtitle/{link}
//   - GET /details/{link}, GET /play/{player}/{link}
//   - /api/v1/... (admin JWT required)
func NewRouter(cfg APIConfig, deps Deps) http.Handler {
	cfg.ApplyDefaults()

	r := chi.NewRouter()

	// Middleware stack - order matters
	r.Use(requestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(deps.HTTPMetrics))
	r.Use(middleware.Recoverer)

	health := handlers.NewHealthHandler().
		Register("cache", deps.Cache).
		Register("upstream", deps.Upstream)
	if deps.Metadata != nil {
		health.Register("metadata", deps.Metadata)
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/", health.Liveness)
		r.Get("/ready", health.Readiness)
	})

	var subtitles handlers.SubtitleFinder
	if deps.Metadata != nil {
		subtitles = deps.Metadata
	}
	media := handlers.NewMediaHandler(deps.Engine, subtitles, cfg.PublicURL)

	// Media routes stream for as long as the client reads; no timeout.
	r.Get("/stream/{link}", media.Stream)
	r.Head("/stream/{link}", media.Stream)
	r.Get("/download/{link}", media.Download)
	r.Get("/subtitle/{link}", media.Subtitle)
	r.Get("/details/{link}", media.Details)
	r.Get("/play/{player}/{link}", media.Play)

	if deps.JWT != nil {
		r.Route("/api/v1", func(r chi.Router) {
			r.Use(middleware.Timeout(cfg.AdminTimeout))
			r.Use(apimw.JWTAuth(deps.JWT))
			r.Use(apimw.RequireAdmin())

			workers := handlers.NewWorkersHandler(deps.Pool)
			r.Get("/workers", workers.List)

			cacheHandler := handlers.NewCacheHandler(deps.Cache)
			r.Get("/cache", cacheHandler.Stats)
			r.Delete("/cache", cacheHandler.Purge)

			if deps.Metadata != nil {
				files := handlers.NewFilesHandler(deps.Metadata, deps.Engine, media)
				r.Route("/files", func(r chi.Router) {
					r.Get("/", files.List)
					r.Post("/", files.Create)
					r.Get("/{id}", files.Get)
					r.Delete("/{id}", files.Delete)
				})
			}
		})
	}

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/health", http.StatusTemporaryRedirect)
	})

	return r
}

// requestID honours an incoming X-Request-ID and otherwise assigns a UUID.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(middleware.RequestIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		w.Header().Set(middleware.RequestIDHeader, id)
		ctx := context.WithValue(r.Context(), middleware.RequestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// routeName labels a request path for logs: "stream", "details", "admin".
func routeName(path string) string {
	seg := strings.TrimPrefix(path, "/")
	if i := strings.IndexByte(seg, '/'); i >= 0 {
		seg = seg[:i]
	}
	switch seg {
	case "stream", "download", "subtitle", "details", "play", "health":
		return seg
	case "api":
		return "admin"
	default:
		return "other"
	}
}

// requestLogger starts the request span, binds a LogContext and logs
// completion. Streaming requests are logged at INFO, probes at DEBUG.
func requestLogger(m metrics.HTTPMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			route := routeName(r.URL.Path)

			ctx := telemetry.Extract(r.Context(), r.Header)
			ctx, span := telemetry.StartSpan(ctx, "http."+route)
			defer span.End()
			telemetry.SetAttributes(ctx, telemetry.Route(route), telemetry.ClientIP(r.RemoteAddr))

			lc := logger.NewLogContext(r.RemoteAddr, middleware.GetReqID(r.Context())).
				WithRoute(route).
				WithTrace(telemetry.TraceID(ctx), telemetry.SpanID(ctx))
			ctx = logger.WithContext(ctx, lc)
			r = r.WithContext(ctx)

			logger.DebugCtx(ctx, "Request started",
				"method", r.Method,
				"path", r.URL.Path,
				"range", r.Header.Get("Range"),
			)

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				status := ww.Status()
				if status == 0 {
					// Aborted before WriteHeader.
					status = http.StatusOK
				}
				if m != nil {
					pattern := route
					if rc := chi.RouteContext(ctx); rc != nil && rc.RoutePattern() != "" {
						pattern = rc.RoutePattern()
					}
					m.ObserveRequest(pattern, r.Method, status, int64(ww.BytesWritten()), time.Since(start))
				}

				args := []any{
					"method", r.Method,
					"path", r.URL.Path,
					"status", status,
					logger.Bytes(int64(ww.BytesWritten())),
					logger.DurationMs(lc.DurationMs()),
				}
				if route == "health" {
					logger.DebugCtx(ctx, "Request completed", args...)
				} else {
					logger.InfoCtx(ctx, "Request completed", args...)
				}
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
