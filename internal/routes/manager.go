// Package routes implements the route lifecycle: deploying extraction results
// under stable keys, serving them back, refreshing them through the extraction
// gateway and deleting them.
//
// Concurrent updates of the same key are last-writer-wins; the manager does no
// locking of its own.
package routes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kalambet/routesmith/internal/gateway"
	"github.com/kalambet/routesmith/internal/routekey"
)

// Manager runs lifecycle operations over a Store.
type Manager struct {
	store     *Store
	extractor gateway.Extractor
	now       func() time.Time
	logger    *slog.Logger
}

// NewManager creates a Manager. extractor may be nil if Update and Refresh are never called.
func NewManager(store *Store, extractor gateway.Extractor) *Manager {
	return &Manager{
		store:     store,
		extractor: extractor,
		now:       func() time.Time { return time.Now().UTC() },
		logger:    slog.Default(),
	}
}

// Path is the public URL path of a route.
func Path(key string) string {
	return routekey.StoreKey(key)
}

func normalizeKey(raw string) (string, error) {
	key := routekey.Normalize(raw)
	if key == "" {
		if strings.TrimSpace(raw) == "" {
			return "", validationf("endpoint is required")
		}
		return "", validationf("endpoint %q has no usable characters", raw)
	}
	if !routekey.Valid(key) {
		return "", validationf("endpoint %q normalizes to %q, which is not a valid route key", raw, key)
	}
	return key, nil
}

// List returns every stored route. Entries that fail to decode are logged and skipped.
func (m *Manager) List(ctx context.Context) ([]Summary, error) {
	keys, err := m.store.ListKeys(ctx)
	if err != nil {
		return nil, err
	}

	summaries := make([]Summary, 0, len(keys))
	for _, key := range keys {
		env, err := m.store.Get(ctx, key)
		switch {
		case errors.Is(err, ErrNotFound):
			// Deleted between listing and reading.
			continue
		case errors.Is(err, ErrCorrupt):
			m.logger.Warn("skipping malformed route", "endpoint", key, "error", err)
			continue
		case err != nil:
			return nil, err
		}
		env.Metadata.Sources = nonNil(env.Metadata.Sources)
		summaries = append(summaries, Summary{
			Endpoint: key,
			URL:      Path(key),
			Config:   env.Metadata,
		})
	}
	return summaries, nil
}

// Create stores env under the normalized form of rawKey. It never overwrites:
// an existing route yields ErrConflict and is left untouched.
func (m *Manager) Create(ctx context.Context, rawKey string, env Envelope) (CreateResult, error) {
	key, err := normalizeKey(rawKey)
	if err != nil {
		return CreateResult{}, err
	}
	if isNull(env.Data) {
		return CreateResult{}, validationf("data is required")
	}

	_, err = m.store.GetRaw(ctx, key)
	switch {
	case err == nil:
		return CreateResult{}, ErrConflict
	case !errors.Is(err, ErrNotFound):
		return CreateResult{}, err
	}

	now := timestamp(m.now())
	if unsetTimestamp(env.Metadata.LastUpdated) {
		env.Metadata.LastUpdated = now
	}
	if unsetTimestamp(env.Metadata.CreatedAt) {
		env.Metadata.CreatedAt = now
	}

	if err := m.store.Set(ctx, key, env); err != nil {
		return CreateResult{}, err
	}
	m.logger.Info("route created", "endpoint", key)
	return CreateResult{Key: key, Path: Path(key)}, nil
}

// Read returns the full envelope at rawKey. Callers that must not expose the
// schema serve env.Result() instead.
func (m *Manager) Read(ctx context.Context, rawKey string) (Envelope, error) {
	key, err := normalizeKey(rawKey)
	if err != nil {
		return Envelope{}, err
	}
	return m.store.Get(ctx, key)
}

// Update re-extracts rawKey from req and overwrites the stored envelope.
// The envelope is only written after the extraction gateway succeeds.
// An absent key is created.
func (m *Manager) Update(ctx context.Context, rawKey string, req UpdateRequest) (Envelope, error) {
	key, err := normalizeKey(rawKey)
	if err != nil {
		return Envelope{}, err
	}
	urls := cleanURLs(req.URLs)
	switch {
	case len(urls) == 0:
		return Envelope{}, validationf("urls are required")
	case strings.TrimSpace(req.Query) == "":
		return Envelope{}, validationf("query is required")
	case isNull(req.Schema):
		return Envelope{}, validationf("schema is required")
	}
	if m.extractor == nil {
		return Envelope{}, &GatewayError{Message: "no extraction gateway configured"}
	}

	res, err := m.extractor.Extract(ctx, gateway.ExtractRequest{
		URLs:   urls,
		Prompt: req.Query,
		Schema: req.Schema,
	})
	if err != nil {
		return Envelope{}, &GatewayError{Message: err.Error()}
	}
	if !res.Success {
		msg := res.Error
		if msg == "" {
			msg = "extraction failed"
		}
		return Envelope{}, &GatewayError{Message: msg}
	}

	now := timestamp(m.now())
	createdAt := now
	prev, err := m.store.Get(ctx, key)
	switch {
	case err == nil:
		if !unsetTimestamp(prev.Metadata.CreatedAt) {
			createdAt = prev.Metadata.CreatedAt
		}
	case errors.Is(err, ErrNotFound):
	case errors.Is(err, ErrCorrupt):
		m.logger.Warn("overwriting malformed route", "endpoint", key, "error", err)
	default:
		return Envelope{}, err
	}

	env := Envelope{
		Data: res.Data,
		Metadata: Metadata{
			Query:       req.Query,
			Schema:      req.Schema,
			Sources:     urls,
			LastUpdated: now,
			CreatedAt:   createdAt,
			SearchQuery: req.SearchQuery,
		},
	}
	if err := m.store.Set(ctx, key, env); err != nil {
		return Envelope{}, err
	}
	m.logger.Info("route updated", "endpoint", key, "sources", len(urls))
	return env, nil
}

// Refresh re-runs extraction for an existing route using its stored
// sources, query and schema.
func (m *Manager) Refresh(ctx context.Context, rawKey string) (Envelope, error) {
	key, err := normalizeKey(rawKey)
	if err != nil {
		return Envelope{}, err
	}
	prev, err := m.store.Get(ctx, key)
	if err != nil {
		return Envelope{}, err
	}
	if missing := incompleteConfig(prev.Metadata); missing != "" {
		return Envelope{}, fmt.Errorf("%w: no stored %s", ErrIncomplete, missing)
	}
	return m.Update(ctx, key, UpdateRequest{
		URLs:        prev.Metadata.Sources,
		Query:       prev.Metadata.Query,
		Schema:      prev.Metadata.Schema,
		SearchQuery: prev.Metadata.SearchQuery,
	})
}

// Delete removes rawKey. Deleting an absent route succeeds.
func (m *Manager) Delete(ctx context.Context, rawKey string) (string, error) {
	key, err := normalizeKey(rawKey)
	if err != nil {
		return "", err
	}
	if err := m.store.Delete(ctx, key); err != nil {
		return "", err
	}
	m.logger.Info("route deleted", "endpoint", key)
	return key, nil
}

// incompleteConfig names the first refresh input missing from md, or "".
func incompleteConfig(md Metadata) string {
	switch {
	case len(cleanURLs(md.Sources)) == 0:
		return "sources"
	case strings.TrimSpace(md.Query) == "":
		return "query"
	case isNull(md.Schema):
		return "schema"
	}
	return ""
}

func cleanURLs(urls []string) []string {
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if u = strings.TrimSpace(u); u != "" {
			out = append(out, u)
		}
	}
	return out
}
