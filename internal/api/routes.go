package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/routesmith/internal/routekey"
	"github.com/kalambet/routesmith/internal/routes"
)

type refreshRequest struct {
	Endpoint string `json:"endpoint"`
}

type updateRequest struct {
	URLs        []string        `json:"urls"`
	Query       string          `json:"query"`
	Schema      json.RawMessage `json:"schema"`
	SearchQuery string          `json:"searchQuery,omitempty"`
}

type deployRequest struct {
	Key   string          `json:"key"`
	Route string          `json:"route"`
	Data  routes.Envelope `json:"data"`
}

func handleListRoutes(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := deps.Routes.List(r.Context())
		deps.record("list", err)
		if err != nil {
			writeRouteError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"routes":  withPublicURLs(deps.PublicURL, list),
		})
	}
}

func handleRefreshRoute(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req refreshRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Endpoint) == "" {
			httpError(w, http.StatusBadRequest, "endpoint is required")
			return
		}

		env, err := deps.Routes.Refresh(r.Context(), req.Endpoint)
		deps.record("refresh", err)
		if err != nil {
			writeRouteError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"message": "route refreshed",
			"data":    env.Data,
		})
	}
}

func handleUpdateRoute(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		endpoint := chi.URLParam(r, "endpoint")

		var req updateRequest
		if !decodeBody(w, r, &req) {
			return
		}

		env, err := deps.Routes.Update(r.Context(), endpoint, routes.UpdateRequest{
			URLs:        req.URLs,
			Query:       req.Query,
			Schema:      req.Schema,
			SearchQuery: req.SearchQuery,
		})
		deps.record("update", err)
		if err != nil {
			writeRouteError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"message": "route updated",
			"data":    env.Data,
			"url":     deps.publicURL(routes.Path(routekey.Normalize(endpoint))),
		})
	}
}

// handleDeleteRoute serves both DELETE /routes/{endpoint} and DELETE /routes
// with {"endpoint": ...} in the body.
func handleDeleteRoute(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		endpoint := chi.URLParam(r, "endpoint")
		if endpoint == "" && r.ContentLength != 0 {
			var req refreshRequest
			if !decodeBody(w, r, &req) {
				return
			}
			endpoint = req.Endpoint
		}
		if strings.TrimSpace(endpoint) == "" {
			httpError(w, http.StatusBadRequest, "endpoint is required")
			return
		}

		key, err := deps.Routes.Delete(r.Context(), endpoint)
		deps.record("delete", err)
		if err != nil {
			writeRouteError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"message": "route " + key + " deleted",
		})
	}
}

func handleDeploy(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req deployRequest
		if !decodeBody(w, r, &req) {
			return
		}
		key := req.Key
		if strings.TrimSpace(key) == "" {
			key = req.Route
		}

		res, err := deps.Routes.Create(r.Context(), key, req.Data)
		deps.record("create", err)
		if err != nil {
			writeRouteError(w, err)
			return
		}

		url := deps.publicURL(res.Path)
		writeJSON(w, http.StatusOK, map[string]any{
			"success":     true,
			"message":     "route deployed",
			"route":       res.Key,
			"url":         url,
			"curlCommand": "curl " + url,
		})
	}
}

func handleGetResult(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		endpoint := chi.URLParam(r, "endpoint")
		if strings.TrimSpace(endpoint) == "" {
			handleMissingEndpoint(w, r)
			return
		}

		includeSchema := false
		if v := r.URL.Query().Get("schema"); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				httpError(w, http.StatusBadRequest, "schema must be true or false")
				return
			}
			includeSchema = b
		}

		env, err := deps.Routes.Read(r.Context(), endpoint)
		deps.record("read", err)
		if err != nil {
			writeRouteError(w, err)
			return
		}

		if includeSchema {
			writeJSON(w, http.StatusOK, map[string]any{
				"success": true,
				"data":    env,
			})
			return
		}
		res := env.Result()
		writeJSON(w, http.StatusOK, map[string]any{
			"success":     true,
			"data":        res.Data,
			"lastUpdated": res.LastUpdated,
			"sources":     res.Sources,
		})
	}
}

func handleMissingEndpoint(w http.ResponseWriter, r *http.Request) {
	httpError(w, http.StatusBadRequest, "endpoint is required")
}
