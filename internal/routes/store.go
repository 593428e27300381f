package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kalambet/routesmith/internal/routekey"
	"github.com/kalambet/routesmith/internal/storage"
)

// Store persists envelopes under results/<key> in a KV backend.
// It is the only place that knows the stored byte layout.
type Store struct {
	kv storage.KV
}

// NewStore wraps kv.
func NewStore(kv storage.KV) *Store {
	return &Store{kv: kv}
}

// GetRaw returns the stored bytes for key exactly as the backend holds them.
func (s *Store) GetRaw(ctx context.Context, key string) ([]byte, error) {
	raw, err := s.kv.Get(ctx, routekey.StoreKey(key))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return raw, nil
}

// Get loads and decodes the envelope at key.
func (s *Store) Get(ctx context.Context, key string) (Envelope, error) {
	raw, err := s.GetRaw(ctx, key)
	if err != nil {
		return Envelope{}, err
	}
	return decodeEnvelope(raw)
}

// Set replaces the envelope at key.
func (s *Store) Set(ctx context.Context, key string, env Envelope) error {
	if env.Data == nil {
		env.Data = json.RawMessage("null")
	}
	env.Metadata.Sources = nonNil(env.Metadata.Sources)
	b, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encoding envelope for %s: %w", key, err)
	}
	return s.kv.Set(ctx, routekey.StoreKey(key), b)
}

// Delete removes key. Absent keys are not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	return s.kv.Delete(ctx, routekey.StoreKey(key))
}

// ListKeys returns every route key in backend order.
func (s *Store) ListKeys(ctx context.Context) ([]string, error) {
	storeKeys, err := s.kv.Keys(ctx, routekey.Prefix)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(storeKeys))
	for _, sk := range storeKeys {
		if k, ok := routekey.FromStoreKey(sk); ok && k != "" {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

// decodeEnvelope accepts an envelope object or a JSON string holding one,
// since some writers encode the value twice.
func decodeEnvelope(raw []byte) (Envelope, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var inner string
		if err := json.Unmarshal(trimmed, &inner); err != nil {
			return Envelope{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		trimmed = bytes.TrimSpace([]byte(inner))
	}
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Envelope{}, fmt.Errorf("%w: value is not a JSON object", ErrCorrupt)
	}

	var env Envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return env, nil
}
