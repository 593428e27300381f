package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/kalambet/routesmith/internal/gateway"
)

const (
	defaultSearchLimit = 5
	maxSearchLimit     = 20
)

type schemaRequest struct {
	Query string `json:"query"`
}

type searchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

type extractRequest struct {
	URLs   []string        `json:"urls"`
	Query  string          `json:"query"`
	Schema json.RawMessage `json:"schema"`
}

func handleGenerateSchema(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Schema == nil {
			httpError(w, http.StatusServiceUnavailable, "schema generation is not configured")
			return
		}
		var req schemaRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Query) == "" {
			httpError(w, http.StatusBadRequest, "query is required")
			return
		}

		schema, err := deps.Schema.Generate(r.Context(), req.Query)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "schema generation failed: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"schema":  schema,
		})
	}
}

func handleSearch(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Search == nil {
			httpError(w, http.StatusServiceUnavailable, "search is not configured")
			return
		}
		var req searchRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Query) == "" {
			httpError(w, http.StatusBadRequest, "query is required")
			return
		}
		limit := req.Limit
		if limit <= 0 {
			limit = defaultSearchLimit
		}
		if limit > maxSearchLimit {
			limit = maxSearchLimit
		}

		results, err := deps.Search.Search(r.Context(), req.Query, limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "search failed: %v", err)
			return
		}
		if results == nil {
			results = []gateway.SearchResult{}
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"results": results,
		})
	}
}

// handleExtract runs an extraction without storing anything; the builder
// previews data here before deploying it.
func handleExtract(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Extract == nil {
			httpError(w, http.StatusServiceUnavailable, "extraction is not configured")
			return
		}
		var req extractRequest
		if !decodeBody(w, r, &req) {
			return
		}
		switch {
		case len(req.URLs) == 0:
			httpError(w, http.StatusBadRequest, "urls are required")
			return
		case strings.TrimSpace(req.Query) == "":
			httpError(w, http.StatusBadRequest, "query is required")
			return
		case len(req.Schema) == 0 || string(req.Schema) == "null":
			httpError(w, http.StatusBadRequest, "schema is required")
			return
		}

		res, err := deps.Extract.Extract(r.Context(), gateway.ExtractRequest{
			URLs:   req.URLs,
			Prompt: req.Query,
			Schema: req.Schema,
		})
		if err != nil {
			httpError(w, http.StatusInternalServerError, "%v", err)
			return
		}
		if !res.Success {
			msg := res.Error
			if msg == "" {
				msg = "extraction failed"
			}
			httpError(w, http.StatusInternalServerError, "%s", msg)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"data":    res.Data,
		})
	}
}
