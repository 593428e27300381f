package routes

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

// Metadata describes how a route's data was produced. It doubles as the
// route's configuration: Sources, Query and Schema are what a refresh re-uses.
//
// Timestamps are kept as the raw JSON the client sent, so whatever was
// deployed is served back byte for byte. Timestamps written by the manager
// are RFC 3339 strings.
type Metadata struct {
	Query       string          `json:"query"`
	Schema      json.RawMessage `json:"schema"`
	Sources     []string        `json:"sources"`
	LastUpdated json.RawMessage `json:"lastUpdated"`
	CreatedAt   json.RawMessage `json:"createdAt,omitempty"`
	SearchQuery string          `json:"searchQuery,omitempty"`
}

// Envelope is the value persisted at results/<key>.
type Envelope struct {
	Data     json.RawMessage `json:"data"`
	Metadata Metadata        `json:"metadata"`
}

// Result is the schema-less shape served to consumers of a route.
type Result struct {
	Data        json.RawMessage `json:"data"`
	LastUpdated json.RawMessage `json:"lastUpdated"`
	Sources     []string        `json:"sources"`
}

// Result strips the envelope down to what a consumer of the route sees.
func (e Envelope) Result() Result {
	return Result{
		Data:        e.Data,
		LastUpdated: e.Metadata.LastUpdated,
		Sources:     nonNil(e.Metadata.Sources),
	}
}

// Summary is one entry of a route listing.
type Summary struct {
	Endpoint string   `json:"endpoint"`
	URL      string   `json:"url"`
	Config   Metadata `json:"config"`
}

// UpdateRequest carries everything needed to re-extract a route.
type UpdateRequest struct {
	URLs        []string
	Query       string
	Schema      json.RawMessage
	SearchQuery string
}

// CreateResult reports where a newly deployed route lives.
type CreateResult struct {
	Key  string
	Path string
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// timestamp encodes t the way the manager stores every time it sets itself.
func timestamp(t time.Time) json.RawMessage {
	b, _ := json.Marshal(t.UTC().Format(time.RFC3339Nano))
	return b
}

// unsetTimestamp reports whether raw carries no usable timestamp: absent,
// null or an empty string.
func unsetTimestamp(raw json.RawMessage) bool {
	if isNull(raw) {
		return true
	}
	var s string
	return json.Unmarshal(raw, &s) == nil && strings.TrimSpace(s) == ""
}

// ParseTimestamp reads an RFC 3339 timestamp. ok is false for anything else,
// including timestamps stored by clients in other formats.
func ParseTimestamp(raw json.RawMessage) (t time.Time, ok bool) {
	var s string
	if isNull(raw) || json.Unmarshal(raw, &s) != nil {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	return t, err == nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
