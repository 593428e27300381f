// Package scrape is a self-hosted extraction gateway: it fetches the source
// pages itself, reduces them to markdown and asks an LLM for data shaped by
// the route's JSON Schema.
package scrape

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/kalambet/routesmith/internal/gateway"
	"github.com/kalambet/routesmith/internal/schemagen"
)

const (
	maxConcurrentFetches = 4
	// maxPageChars caps each page in the prompt so a handful of sources fit
	// in a small model's context window.
	maxPageChars = 12000
)

// Extractor implements gateway.Extractor.
type Extractor struct {
	fetcher *Fetcher
	llm     gateway.Completer
}

// NewExtractor creates an Extractor.
func NewExtractor(fetcher *Fetcher, llm gateway.Completer) *Extractor {
	return &Extractor{fetcher: fetcher, llm: llm}
}

// Extract fetches every URL concurrently, then makes one LLM call over all
// pages. A page that cannot be fetched, or an answer that does not match the
// schema, is reported as ExtractResult{Success: false}; only a failed LLM call
// is returned as an error.
func (e *Extractor) Extract(ctx context.Context, req gateway.ExtractRequest) (gateway.ExtractResult, error) {
	pages := make([]Page, len(req.URLs))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentFetches)
	for i, u := range req.URLs {
		g.Go(func() error {
			p, err := e.fetcher.Fetch(gCtx, u)
			if err != nil {
				return err
			}
			pages[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return gateway.ExtractResult{}, ctx.Err()
		}
		return gateway.ExtractResult{Success: false, Error: err.Error()}, nil
	}

	system, user := BuildPrompt(req.Prompt, req.Schema, pages)
	raw, err := e.llm.Complete(ctx, system, user, req.Schema)
	if err != nil {
		return gateway.ExtractResult{}, fmt.Errorf("llm: %w", err)
	}

	data := strings.TrimSpace(raw)
	if !json.Valid([]byte(data)) {
		slog.Warn("llm returned non-JSON extraction", "response", raw)
		return gateway.ExtractResult{Success: false, Error: "extraction model returned invalid JSON"}, nil
	}
	if len(req.Schema) > 0 {
		if err := schemagen.ValidateData(req.Schema, json.RawMessage(data)); err != nil {
			return gateway.ExtractResult{Success: false, Error: "extracted data does not match schema: " + err.Error()}, nil
		}
	}

	slog.Debug("local extraction done", "sources", len(pages), "bytes", len(data))
	return gateway.ExtractResult{Success: true, Data: json.RawMessage(data)}, nil
}

var _ gateway.Extractor = (*Extractor)(nil)
