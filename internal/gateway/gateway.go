// Package gateway defines the external services routesmith orchestrates:
// schema generation, web search and structured extraction.
package gateway

import (
	"context"
	"encoding/json"
)

// SearchResult is one candidate source page.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// ExtractRequest asks an extraction provider to pull schema-shaped data out of URLs.
type ExtractRequest struct {
	URLs   []string
	Prompt string
	Schema json.RawMessage
}

// ExtractResult mirrors the provider's reply. Success=false carries the
// provider's own message in Error.
type ExtractResult struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Extractor turns URLs + prompt + schema into structured data.
// A returned error means the call itself failed (network, decoding);
// a provider-level refusal comes back as ExtractResult{Success: false}.
type Extractor interface {
	Extract(ctx context.Context, req ExtractRequest) (ExtractResult, error)
}

// Searcher finds candidate pages for a query. An empty slice is a valid answer.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]SearchResult, error)
}

// SchemaGenerator proposes a JSON Schema for a natural-language request.
type SchemaGenerator interface {
	Generate(ctx context.Context, query string) (json.RawMessage, error)
}

// Completer is a chat-completion backend asked for a JSON answer. A JSON
// Schema object in format constrains the output; empty format asks for any
// JSON object. Both the ollama and openrouter clients satisfy it.
type Completer interface {
	Complete(ctx context.Context, system, user string, format json.RawMessage) (string, error)
}
