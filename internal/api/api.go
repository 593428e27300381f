// Package api exposes the route lifecycle and the builder gateways over HTTP
// and MCP.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kalambet/routesmith/internal/gateway"
	"github.com/kalambet/routesmith/internal/metrics"
	"github.com/kalambet/routesmith/internal/routes"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Deps holds everything the HTTP handlers need. Schema, Search and Extract
// may be nil; the matching builder endpoint then answers 503.
type Deps struct {
	Routes  *routes.Manager
	Schema  gateway.SchemaGenerator
	Search  gateway.Searcher
	Extract gateway.Extractor

	// Token enables bearer auth on management endpoints when non-empty.
	Token string
	// PublicURL prefixes route URLs in responses, e.g. https://data.example.com.
	PublicURL string

	Metrics *metrics.Metrics // optional
	Logger  *slog.Logger     // optional
}

// NewHandler returns the routesmith HTTP API.
func NewHandler(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(requestLogger(deps.Logger))
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Middleware)
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Get("/health", handleHealth)

	// Published results are public.
	r.Get("/results/{endpoint}", handleGetResult(deps))
	r.Get("/results", handleMissingEndpoint)
	r.Get("/results/", handleMissingEndpoint)

	r.Group(func(r chi.Router) {
		if deps.Token != "" {
			r.Use(BearerAuth(deps.Token))
		}

		r.Get("/routes", handleListRoutes(deps))
		r.Post("/routes", handleRefreshRoute(deps))
		r.Put("/routes/{endpoint}", handleUpdateRoute(deps))
		r.Delete("/routes/{endpoint}", handleDeleteRoute(deps))
		r.Delete("/routes", handleDeleteRoute(deps))
		r.Post("/deploy", handleDeploy(deps))

		r.Post("/schema", handleGenerateSchema(deps))
		r.Post("/search", handleSearch(deps))
		r.Post("/extract", handleExtract(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// requestLogger tags each request with an X-Request-ID (kept from the client
// when present) and logs one line when it completes.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get("X-Request-ID")
			if id == "" {
				id = uuid.New().String()
			}
			w.Header().Set("X-Request-ID", id)

			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			level := slog.LevelDebug
			if status >= http.StatusInternalServerError {
				level = slog.LevelWarn
			}
			logger.Log(r.Context(), level, "http request",
				"request_id", id,
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"duration_ms", time.Since(start).Milliseconds(),
			)
		})
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		httpError(w, http.StatusBadRequest, "invalid request body: %v", err)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, format string, args ...any) {
	writeJSON(w, code, map[string]any{
		"success": false,
		"error":   fmt.Sprintf(format, args...),
	})
}

// writeRouteError maps lifecycle errors to status codes. Gateway messages
// pass through verbatim; storage failures get fixed messages.
func writeRouteError(w http.ResponseWriter, err error) {
	var gwErr *routes.GatewayError
	switch {
	case errors.Is(err, routes.ErrValidation):
		httpError(w, http.StatusBadRequest, "%s", strings.TrimPrefix(err.Error(), routes.ErrValidation.Error()+": "))
	case errors.Is(err, routes.ErrConflict):
		httpError(w, http.StatusConflict, "route already exists; use PUT /routes/{endpoint} to update it")
	case errors.Is(err, routes.ErrNotFound):
		httpError(w, http.StatusNotFound, "route not found")
	case errors.As(err, &gwErr):
		httpError(w, http.StatusInternalServerError, "%s", gwErr.Message)
	case errors.Is(err, routes.ErrCorrupt):
		httpError(w, http.StatusInternalServerError, "stored route data is corrupted")
	case errors.Is(err, routes.ErrIncomplete):
		httpError(w, http.StatusInternalServerError, "%v", err)
	case errors.Is(err, routes.ErrTransport):
		httpError(w, http.StatusInternalServerError, "storage unavailable: %v", err)
	default:
		httpError(w, http.StatusInternalServerError, "internal error: %v", err)
	}
}

// outcome is the metrics label for a lifecycle result.
func outcome(err error) string {
	var gwErr *routes.GatewayError
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, routes.ErrValidation):
		return "invalid"
	case errors.Is(err, routes.ErrConflict):
		return "conflict"
	case errors.Is(err, routes.ErrNotFound):
		return "not_found"
	case errors.As(err, &gwErr):
		return "gateway_error"
	case errors.Is(err, routes.ErrCorrupt):
		return "corrupt"
	case errors.Is(err, routes.ErrIncomplete):
		return "incomplete"
	default:
		return "transport_error"
	}
}

func (d Deps) record(op string, err error) {
	if d.Metrics != nil {
		d.Metrics.RecordRouteOp(op, outcome(err))
	}
}

func (d Deps) publicURL(path string) string {
	return publicURL(d.PublicURL, path)
}

// publicURL joins the configured public base with a route path. Without a
// base the path is returned rooted.
func publicURL(base, path string) string {
	path = strings.TrimLeft(path, "/")
	if base == "" {
		return "/" + path
	}
	return strings.TrimRight(base, "/") + "/" + path
}

// withPublicURLs rewrites each summary's store path into the URL consumers fetch.
func withPublicURLs(base string, list []routes.Summary) []routes.Summary {
	for i := range list {
		list[i].URL = publicURL(base, list[i].URL)
	}
	return list
}
