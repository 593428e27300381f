// Package schemagen turns a natural-language extraction request into a JSON
// Schema using an LLM, and checks that what comes back resolves as one.
package schemagen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kalambet/routesmith/internal/gateway"
)

const generationTimeout = 60 * time.Second

// ErrEmptyQuery is returned for a blank request.
var ErrEmptyQuery = errors.New("query is required")

// Generator implements gateway.SchemaGenerator on top of an LLM.
type Generator struct {
	llm     gateway.Completer
	timeout time.Duration
}

// New creates a Generator backed by llm.
func New(llm gateway.Completer) *Generator {
	return &Generator{llm: llm, timeout: generationTimeout}
}

// Generate asks the LLM for a schema and returns it compacted. It fails when
// the LLM errors or its answer does not resolve as a JSON Schema; there is no
// retry.
func (g *Generator) Generate(ctx context.Context, query string) (json.RawMessage, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	system, user := BuildPrompt(query)
	raw, err := g.llm.Complete(ctx, system, user, nil)
	if err != nil {
		return nil, fmt.Errorf("llm: %w", err)
	}

	text := stripFences(raw)
	if _, err := Resolve(json.RawMessage(text)); err != nil {
		slog.Warn("llm returned an unusable schema", "error", err, "response", raw)
		return nil, err
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(text)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}
	return buf.Bytes(), nil
}

// stripFences removes a surrounding ```json fence, which some models add
// despite being told not to.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
