package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/kalambet/routesmith/internal/gateway"
)

type fakeGenerator struct {
	schema json.RawMessage
	err    error
	query  string
}

func (f *fakeGenerator) Generate(ctx context.Context, query string) (json.RawMessage, error) {
	f.query = query
	return f.schema, f.err
}

type fakeSearcher struct {
	results []gateway.SearchResult
	err     error
	limit   int
}

func (f *fakeSearcher) Search(ctx context.Context, query string, limit int) ([]gateway.SearchResult, error) {
	f.limit = limit
	return f.results, f.err
}

func TestBuilder_NotConfigured(t *testing.T) {
	env := setup(t, Deps{})

	for _, path := range []string{"/schema", "/search", "/extract"} {
		rr := env.do(t, http.MethodPost, path, `{"query":"q"}`, "")
		wantError(t, rr, http.StatusServiceUnavailable, "not configured")
	}
}

func TestGenerateSchema(t *testing.T) {
	gen := &fakeGenerator{schema: json.RawMessage(`{"type":"object","properties":{"price":{"type":"number"}}}`)}
	env := setup(t, Deps{Schema: gen})

	rr := env.do(t, http.MethodPost, "/schema", `{"query":"nvidia market cap"}`, "")
	wantStatus(t, rr, http.StatusOK)
	if gen.query != "nvidia market cap" {
		t.Errorf("generator got %q", gen.query)
	}
	if !strings.Contains(rr.Body.String(), `"schema":{"type":"object","properties":{"price":{"type":"number"}}}`) {
		t.Errorf("body = %s", rr.Body.String())
	}

	wantError(t, env.do(t, http.MethodPost, "/schema", `{"query":"  "}`, ""), http.StatusBadRequest, "query is required")

	gen.err = errors.New("model unavailable")
	wantError(t, env.do(t, http.MethodPost, "/schema", `{"query":"x"}`, ""), http.StatusInternalServerError, "schema generation failed: model unavailable")
}

func TestSearch_Limits(t *testing.T) {
	search := &fakeSearcher{}
	env := setup(t, Deps{Search: search})

	tests := []struct {
		body string
		want int
	}{
		{`{"query":"gpu"}`, defaultSearchLimit},
		{`{"query":"gpu","limit":3}`, 3},
		{`{"query":"gpu","limit":500}`, maxSearchLimit},
	}
	for _, tt := range tests {
		rr := env.do(t, http.MethodPost, "/search", tt.body, "")
		wantStatus(t, rr, http.StatusOK)
		if search.limit != tt.want {
			t.Errorf("%s: limit = %d, want %d", tt.body, search.limit, tt.want)
		}
		// A nil slice from the searcher is still an empty array.
		if !strings.Contains(rr.Body.String(), `"results":[]`) {
			t.Errorf("body = %s", rr.Body.String())
		}
	}
}

func TestSearch_ResultsAndFailure(t *testing.T) {
	search := &fakeSearcher{results: []gateway.SearchResult{
		{Title: "NVIDIA", URL: "https://nvidia.com", Snippet: "GPUs"},
	}}
	env := setup(t, Deps{Search: search})

	rr := env.do(t, http.MethodPost, "/search", `{"query":"nvidia"}`, "")
	wantStatus(t, rr, http.StatusOK)

	var resp struct {
		Success bool                   `json:"success"`
		Results []gateway.SearchResult `json:"results"`
	}
	json.Unmarshal(rr.Body.Bytes(), &resp)
	if !resp.Success || len(resp.Results) != 1 || resp.Results[0].URL != "https://nvidia.com" {
		t.Errorf("resp = %+v", resp)
	}

	search.err = errors.New("quota exceeded")
	wantError(t, env.do(t, http.MethodPost, "/search", `{"query":"nvidia"}`, ""), http.StatusInternalServerError, "search failed: quota exceeded")
}

func TestExtract(t *testing.T) {
	ext := &fakeExtractor{result: gateway.ExtractResult{Success: true, Data: json.RawMessage(`{"price":1}`)}}
	env := setup(t, Deps{Extract: ext})

	body := `{"urls":["https://a.com"],"query":"price","schema":{"type":"object"}}`
	rr := env.do(t, http.MethodPost, "/extract", body, "")
	wantStatus(t, rr, http.StatusOK)
	if !strings.Contains(rr.Body.String(), `"data":{"price":1}`) {
		t.Errorf("body = %s", rr.Body.String())
	}
	if ext.last.Prompt != "price" || string(ext.last.Schema) != `{"type":"object"}` {
		t.Errorf("extractor got %+v", ext.last)
	}

	// Previews never store anything.
	keys, _ := env.kv.Keys(context.Background(), "")
	if len(keys) != 0 {
		t.Errorf("extract wrote keys %v", keys)
	}

	ext.result = gateway.ExtractResult{Success: false, Error: "Insufficient credits for extraction"}
	wantError(t, env.do(t, http.MethodPost, "/extract", body, ""), http.StatusInternalServerError, "Insufficient credits for extraction")

	ext.err = errors.New("connection refused")
	wantError(t, env.do(t, http.MethodPost, "/extract", body, ""), http.StatusInternalServerError, "connection refused")
}

func TestExtract_Validation(t *testing.T) {
	ext := &fakeExtractor{}
	env := setup(t, Deps{Extract: ext})

	tests := []struct {
		body string
		msg  string
	}{
		{`{"query":"q","schema":{}}`, "urls are required"},
		{`{"urls":["https://a.com"],"schema":{}}`, "query is required"},
		{`{"urls":["https://a.com"],"query":"q","schema":null}`, "schema is required"},
		{`not json`, "invalid request body"},
	}
	for _, tt := range tests {
		wantError(t, env.do(t, http.MethodPost, "/extract", tt.body, ""), http.StatusBadRequest, tt.msg)
	}
	if ext.calls != 0 {
		t.Errorf("extractor called %d times", ext.calls)
	}
}
