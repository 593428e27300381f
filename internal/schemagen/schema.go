package schemagen

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
)

// ErrInvalidSchema marks text that is not a usable object-rooted JSON Schema.
var ErrInvalidSchema = errors.New("invalid JSON schema")

// Resolve parses raw as a JSON Schema and resolves it so it can validate
// instances. The root must be a schema object, not a boolean schema.
func Resolve(raw json.RawMessage) (*jsonschema.Resolved, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("%w: root must be a JSON object", ErrInvalidSchema)
	}

	var s jsonschema.Schema
	if err := json.Unmarshal(trimmed, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}
	resolved, err := s.Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}
	return resolved, nil
}

// ValidateData checks data against schema. data must be JSON.
func ValidateData(schema, data json.RawMessage) error {
	resolved, err := Resolve(schema)
	if err != nil {
		return err
	}
	var instance any
	if err := json.Unmarshal(data, &instance); err != nil {
		return fmt.Errorf("decoding data: %w", err)
	}
	return resolved.Validate(instance)
}
