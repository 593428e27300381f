package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/kalambet/routesmith/internal/gateway"
	"github.com/kalambet/routesmith/internal/storage"
)

// --- fakes ---

type fakeExtractor struct {
	result gateway.ExtractResult
	err    error
	calls  []gateway.ExtractRequest
}

func (f *fakeExtractor) Extract(_ context.Context, req gateway.ExtractRequest) (gateway.ExtractResult, error) {
	f.calls = append(f.calls, req)
	return f.result, f.err
}

// brokenKV fails every call with a transport error.
type brokenKV struct{}

func (brokenKV) Get(context.Context, string) ([]byte, error) {
	return nil, errTransportForTest
}
func (brokenKV) Set(context.Context, string, []byte) error      { return errTransportForTest }
func (brokenKV) Delete(context.Context, string) error           { return errTransportForTest }
func (brokenKV) Keys(context.Context, string) ([]string, error) { return nil, errTransportForTest }
func (brokenKV) Close() error                                   { return nil }

var errTransportForTest = &testTransportErr{}

type testTransportErr struct{}

func (*testTransportErr) Error() string        { return "connection refused" }
func (*testTransportErr) Is(target error) bool { return target == storage.ErrTransport }

// --- helpers ---

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

const fixedNowStamp = `"2025-03-01T12:00:00Z"`

func newTestManager(t *testing.T, ext gateway.Extractor) (*Manager, *Store) {
	t.Helper()
	store := NewStore(openTestKV(t))
	m := NewManager(store, ext)
	m.now = func() time.Time { return fixedNow }
	return m, store
}

func sampleEnvelope() Envelope {
	return Envelope{
		Data: json.RawMessage(`{"price":123}`),
		Metadata: Metadata{
			Query:       "q",
			Schema:      json.RawMessage(`{"type":"object","properties":{}}`),
			Sources:     []string{"https://a.com"},
			LastUpdated: json.RawMessage(`"2024-01-01T00:00:00Z"`),
		},
	}
}

func successExtractor(data string) *fakeExtractor {
	return &fakeExtractor{result: gateway.ExtractResult{Success: true, Data: json.RawMessage(data)}}
}

// --- create / read ---

func TestCreate_ThenRead(t *testing.T) {
	m, _ := newTestManager(t, nil)
	ctx := context.Background()

	res, err := m.Create(ctx, "nvidia-cap", sampleEnvelope())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if res.Key != "nvidia-cap" || res.Path != "results/nvidia-cap" {
		t.Errorf("Create = %+v", res)
	}

	env, err := m.Read(ctx, "nvidia-cap")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(env.Data) != `{"price":123}` {
		t.Errorf("Data = %s, want {\"price\":123}", env.Data)
	}
	if string(env.Metadata.LastUpdated) != `"2024-01-01T00:00:00Z"` {
		t.Errorf("LastUpdated = %s, caller-supplied timestamp must be kept", env.Metadata.LastUpdated)
	}
	if string(env.Metadata.CreatedAt) != fixedNowStamp {
		t.Errorf("CreatedAt = %s, want %s", env.Metadata.CreatedAt, fixedNowStamp)
	}
}

func TestCreate_NormalizesKey(t *testing.T) {
	m, _ := newTestManager(t, nil)

	res, err := m.Create(context.Background(), "Extract Company Info!", sampleEnvelope())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if res.Key != "extract-company-info" {
		t.Errorf("Key = %q, want extract-company-info", res.Key)
	}
}

func TestCreate_ConflictLeavesExistingUntouched(t *testing.T) {
	m, store := newTestManager(t, nil)
	ctx := context.Background()

	if _, err := m.Create(ctx, "extract-company-info", sampleEnvelope()); err != nil {
		t.Fatalf("Create: %v", err)
	}
	before, err := store.GetRaw(ctx, "extract-company-info")
	if err != nil {
		t.Fatal(err)
	}

	other := sampleEnvelope()
	other.Data = json.RawMessage(`{"price":999}`)
	_, err = m.Create(ctx, "Extract Company Info!", other)
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("second Create err = %v, want ErrConflict", err)
	}

	after, err := store.GetRaw(ctx, "extract-company-info")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(before, after) {
		t.Errorf("envelope changed on conflict:\nbefore %s\nafter  %s", before, after)
	}
}

func TestCreate_Validation(t *testing.T) {
	m, _ := newTestManager(t, nil)
	ctx := context.Background()

	if _, err := m.Create(ctx, "", sampleEnvelope()); !errors.Is(err, ErrValidation) {
		t.Errorf("empty key err = %v, want ErrValidation", err)
	}
	if _, err := m.Create(ctx, "!!!", sampleEnvelope()); !errors.Is(err, ErrValidation) {
		t.Errorf("garbage key err = %v, want ErrValidation", err)
	}
	noData := sampleEnvelope()
	noData.Data = nil
	if _, err := m.Create(ctx, "k", noData); !errors.Is(err, ErrValidation) {
		t.Errorf("missing data err = %v, want ErrValidation", err)
	}
	nullData := sampleEnvelope()
	nullData.Data = json.RawMessage("null")
	if _, err := m.Create(ctx, "k", nullData); !errors.Is(err, ErrValidation) {
		t.Errorf("null data err = %v, want ErrValidation", err)
	}
}

func TestCreate_RejectsNonCanonicalKeys(t *testing.T) {
	m, store := newTestManager(t, nil)
	ctx := context.Background()

	for _, raw := range []string{"_leading", "foo_bar", "a_", "Market_Cap today"} {
		_, err := m.Create(ctx, raw, sampleEnvelope())
		if !errors.Is(err, ErrValidation) {
			t.Errorf("Create(%q) err = %v, want ErrValidation", raw, err)
		}
	}
	keys, err := store.ListKeys(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 0 {
		t.Errorf("non-canonical keys were stored: %v", keys)
	}

	// Underscores after the first hyphen are part of a canonical key.
	res, err := m.Create(ctx, "foo-bar_baz", sampleEnvelope())
	if err != nil {
		t.Fatalf("Create(foo-bar_baz): %v", err)
	}
	if res.Key != "foo-bar_baz" {
		t.Errorf("Key = %q", res.Key)
	}
}

func TestCreate_FillsMissingLastUpdated(t *testing.T) {
	m, _ := newTestManager(t, nil)
	ctx := context.Background()

	tests := map[string]json.RawMessage{
		"absent": nil,
		"null":   json.RawMessage(`null`),
		"empty":  json.RawMessage(`""`),
		"blank":  json.RawMessage(`"  "`),
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			env := sampleEnvelope()
			env.Metadata.LastUpdated = raw
			if _, err := m.Create(ctx, name, env); err != nil {
				t.Fatalf("Create: %v", err)
			}
			got, err := m.Read(ctx, name)
			if err != nil {
				t.Fatal(err)
			}
			if string(got.Metadata.LastUpdated) != fixedNowStamp {
				t.Errorf("LastUpdated = %s, want %s", got.Metadata.LastUpdated, fixedNowStamp)
			}
		})
	}
}

func TestCreate_KeepsTimestampVerbatim(t *testing.T) {
	m, _ := newTestManager(t, nil)
	ctx := context.Background()

	tests := map[string]string{
		"millis":       `"2024-01-01T00:00:00.000Z"`,
		"offset":       `"2024-01-01T02:00:00+02:00"`,
		"epoch-millis": `1704067200000`,
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			env := sampleEnvelope()
			env.Metadata.LastUpdated = json.RawMessage(raw)
			if _, err := m.Create(ctx, name, env); err != nil {
				t.Fatalf("Create: %v", err)
			}
			got, err := m.Read(ctx, name)
			if err != nil {
				t.Fatalf("Read: %v", err)
			}
			if string(got.Metadata.LastUpdated) != raw {
				t.Errorf("LastUpdated = %s, want %s", got.Metadata.LastUpdated, raw)
			}
			if string(got.Result().LastUpdated) != raw {
				t.Errorf("Result().LastUpdated = %s, want %s", got.Result().LastUpdated, raw)
			}
		})
	}

	list, err := m.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != len(tests) {
		t.Errorf("List returned %d routes, want %d", len(list), len(tests))
	}
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		raw  string
		ok   bool
		want time.Time
	}{
		{`"2024-01-01T00:00:00Z"`, true, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
		{`"2024-01-01T00:00:00.000Z"`, true, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
		{`1704067200000`, false, time.Time{}},
		{`""`, false, time.Time{}},
		{`null`, false, time.Time{}},
		{``, false, time.Time{}},
	}
	for _, tt := range tests {
		got, ok := ParseTimestamp(json.RawMessage(tt.raw))
		if ok != tt.ok || !got.Equal(tt.want) {
			t.Errorf("ParseTimestamp(%s) = %v, %v; want %v, %v", tt.raw, got, ok, tt.want, tt.ok)
		}
	}
}

func TestRead_NotFound(t *testing.T) {
	m, _ := newTestManager(t, nil)
	if _, err := m.Read(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Read err = %v, want ErrNotFound", err)
	}
}

func TestRead_CorruptIsNotNotFound(t *testing.T) {
	kv := openTestKV(t)
	m := NewManager(NewStore(kv), nil)
	ctx := context.Background()

	if err := kv.Set(ctx, "results/bad", []byte("{{{")); err != nil {
		t.Fatal(err)
	}
	_, err := m.Read(ctx, "bad")
	if !errors.Is(err, ErrCorrupt) {
		t.Fatalf("Read err = %v, want ErrCorrupt", err)
	}
	if errors.Is(err, ErrNotFound) {
		t.Fatal("corrupt value reported as not found")
	}
}

func TestEnvelopeResult_OmitsSchema(t *testing.T) {
	env := sampleEnvelope()

	b, err := json.Marshal(env.Result())
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatal(err)
	}
	if _, ok := m["schema"]; ok {
		t.Errorf("Result JSON contains schema: %s", b)
	}
	if _, ok := m["metadata"]; ok {
		t.Errorf("Result JSON contains metadata: %s", b)
	}
	if string(m["lastUpdated"]) != `"2024-01-01T00:00:00Z"` {
		t.Errorf("lastUpdated = %s", m["lastUpdated"])
	}

	full, err := json.Marshal(env)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(full, []byte(`"schema"`)) {
		t.Errorf("full envelope JSON lacks schema: %s", full)
	}
}

// --- list ---

func TestList_SkipsMalformed(t *testing.T) {
	kv := openTestKV(t)
	m := NewManager(NewStore(kv), nil)
	ctx := context.Background()

	if _, err := m.Create(ctx, "good", sampleEnvelope()); err != nil {
		t.Fatal(err)
	}
	if err := kv.Set(ctx, "results/broken", []byte("not json")); err != nil {
		t.Fatal(err)
	}

	list, err := m.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("List returned %d entries, want 1: %+v", len(list), list)
	}
	if list[0].Endpoint != "good" || list[0].URL != "results/good" {
		t.Errorf("List[0] = %+v", list[0])
	}
	if list[0].Config.Query != "q" {
		t.Errorf("Config.Query = %q, want q", list[0].Config.Query)
	}
}

func TestList_Empty(t *testing.T) {
	m, _ := newTestManager(t, nil)
	list, err := m.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if list == nil || len(list) != 0 {
		t.Errorf("List = %#v, want empty non-nil slice", list)
	}
}

func TestList_Transport(t *testing.T) {
	m := NewManager(NewStore(brokenKV{}), nil)
	if _, err := m.List(context.Background()); !errors.Is(err, ErrTransport) {
		t.Fatalf("List err = %v, want ErrTransport", err)
	}
}

// --- update / refresh ---

func TestUpdate_MissingFieldsNoWrite(t *testing.T) {
	ext := successExtractor(`{"price":1}`)
	m, store := newTestManager(t, ext)
	ctx := context.Background()

	if _, err := m.Create(ctx, "k", sampleEnvelope()); err != nil {
		t.Fatal(err)
	}
	before, _ := store.GetRaw(ctx, "k")

	full := UpdateRequest{
		URLs:   []string{"https://b.com"},
		Query:  "new query",
		Schema: json.RawMessage(`{"type":"object"}`),
	}
	cases := map[string]UpdateRequest{
		"urls":        {Query: full.Query, Schema: full.Schema},
		"blank urls":  {URLs: []string{"  "}, Query: full.Query, Schema: full.Schema},
		"query":       {URLs: full.URLs, Schema: full.Schema},
		"schema":      {URLs: full.URLs, Query: full.Query},
		"null schema": {URLs: full.URLs, Query: full.Query, Schema: json.RawMessage("null")},
	}
	for name, req := range cases {
		if _, err := m.Update(ctx, "k", req); !errors.Is(err, ErrValidation) {
			t.Errorf("missing %s: err = %v, want ErrValidation", name, err)
		}
	}

	if len(ext.calls) != 0 {
		t.Errorf("extractor called %d times on invalid input", len(ext.calls))
	}
	after, _ := store.GetRaw(ctx, "k")
	if !bytes.Equal(before, after) {
		t.Error("store written on validation failure")
	}
	env, _ := m.Read(ctx, "k")
	if string(env.Metadata.LastUpdated) != `"2024-01-01T00:00:00Z"` {
		t.Errorf("LastUpdated moved to %s", env.Metadata.LastUpdated)
	}
}

func TestUpdate_GatewayFailureLeavesEnvelope(t *testing.T) {
	ext := &fakeExtractor{result: gateway.ExtractResult{Success: false, Error: "quota exceeded for plan"}}
	m, store := newTestManager(t, ext)
	ctx := context.Background()

	if _, err := m.Create(ctx, "k", sampleEnvelope()); err != nil {
		t.Fatal(err)
	}
	before, _ := store.GetRaw(ctx, "k")

	_, err := m.Update(ctx, "k", UpdateRequest{
		URLs:   []string{"https://b.com"},
		Query:  "q2",
		Schema: json.RawMessage(`{"type":"object"}`),
	})
	var gwErr *GatewayError
	if !errors.As(err, &gwErr) {
		t.Fatalf("Update err = %v, want *GatewayError", err)
	}
	if gwErr.Message != "quota exceeded for plan" {
		t.Errorf("gateway message = %q, want verbatim provider message", gwErr.Message)
	}

	after, _ := store.GetRaw(ctx, "k")
	if !bytes.Equal(before, after) {
		t.Errorf("envelope changed after gateway failure:\nbefore %s\nafter  %s", before, after)
	}
}

func TestUpdate_GatewayCallError(t *testing.T) {
	ext := &fakeExtractor{err: errors.New("dial tcp: connection refused")}
	m, _ := newTestManager(t, ext)

	_, err := m.Update(context.Background(), "k", UpdateRequest{
		URLs:   []string{"https://b.com"},
		Query:  "q",
		Schema: json.RawMessage(`{}`),
	})
	var gwErr *GatewayError
	if !errors.As(err, &gwErr) {
		t.Fatalf("Update err = %v, want *GatewayError", err)
	}
	if gwErr.Message != "dial tcp: connection refused" {
		t.Errorf("message = %q", gwErr.Message)
	}
	if _, err := m.Read(context.Background(), "k"); !errors.Is(err, ErrNotFound) {
		t.Errorf("route written despite gateway error: %v", err)
	}
}

func TestUpdate_OverwritesAndKeepsCreatedAt(t *testing.T) {
	ext := successExtractor(`{"price":456}`)
	m, _ := newTestManager(t, ext)
	ctx := context.Background()

	created := sampleEnvelope()
	created.Metadata.CreatedAt = json.RawMessage(`"2023-06-01T00:00:00.000Z"`)
	if _, err := m.Create(ctx, "k", created); err != nil {
		t.Fatal(err)
	}

	env, err := m.Update(ctx, "K", UpdateRequest{
		URLs:   []string{"https://b.com", " https://c.com "},
		Query:  "new query",
		Schema: json.RawMessage(`{"type":"object","properties":{"price":{"type":"number"}}}`),
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if string(env.Data) != `{"price":456}` {
		t.Errorf("Data = %s", env.Data)
	}

	got, err := m.Read(ctx, "k")
	if err != nil {
		t.Fatal(err)
	}
	if string(got.Data) != `{"price":456}` {
		t.Errorf("stored Data = %s", got.Data)
	}
	if got.Metadata.Query != "new query" {
		t.Errorf("Query = %q", got.Metadata.Query)
	}
	if len(got.Metadata.Sources) != 2 || got.Metadata.Sources[1] != "https://c.com" {
		t.Errorf("Sources = %v", got.Metadata.Sources)
	}
	if string(got.Metadata.LastUpdated) != fixedNowStamp {
		t.Errorf("LastUpdated = %s, want %s", got.Metadata.LastUpdated, fixedNowStamp)
	}
	if string(got.Metadata.CreatedAt) != string(created.Metadata.CreatedAt) {
		t.Errorf("CreatedAt = %s, want %s", got.Metadata.CreatedAt, created.Metadata.CreatedAt)
	}

	if len(ext.calls) != 1 {
		t.Fatalf("extractor calls = %d, want 1", len(ext.calls))
	}
	if ext.calls[0].Prompt != "new query" || len(ext.calls[0].URLs) != 2 {
		t.Errorf("extract request = %+v", ext.calls[0])
	}
}

func TestUpdate_CreatesAbsentRoute(t *testing.T) {
	m, _ := newTestManager(t, successExtractor(`[1]`))
	ctx := context.Background()

	if _, err := m.Update(ctx, "fresh", UpdateRequest{
		URLs: []string{"https://a.com"}, Query: "q", Schema: json.RawMessage(`{}`),
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	env, err := m.Read(ctx, "fresh")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(env.Metadata.CreatedAt) != fixedNowStamp {
		t.Errorf("CreatedAt = %s, want %s", env.Metadata.CreatedAt, fixedNowStamp)
	}
}

func TestRefresh_ReusesStoredConfig(t *testing.T) {
	ext := successExtractor(`{"price":789}`)
	m, _ := newTestManager(t, ext)
	ctx := context.Background()

	if _, err := m.Create(ctx, "nvidia-cap", sampleEnvelope()); err != nil {
		t.Fatal(err)
	}

	env, err := m.Refresh(ctx, "nvidia-cap")
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if string(env.Data) != `{"price":789}` {
		t.Errorf("Data = %s", env.Data)
	}
	if len(ext.calls) != 1 {
		t.Fatalf("extractor calls = %d, want 1", len(ext.calls))
	}
	call := ext.calls[0]
	if call.Prompt != "q" || len(call.URLs) != 1 || call.URLs[0] != "https://a.com" {
		t.Errorf("refresh used %+v, want stored config", call)
	}
	if string(call.Schema) != `{"type":"object","properties":{}}` {
		t.Errorf("schema = %s", call.Schema)
	}
}

func TestRefresh_NotFound(t *testing.T) {
	ext := successExtractor(`{}`)
	m, _ := newTestManager(t, ext)

	if _, err := m.Refresh(context.Background(), "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Refresh err = %v, want ErrNotFound", err)
	}
	if len(ext.calls) != 0 {
		t.Error("extractor called for missing route")
	}
}

func TestRefresh_IncompleteStoredConfig(t *testing.T) {
	ext := successExtractor(`{}`)
	m, store := newTestManager(t, ext)
	ctx := context.Background()

	tests := map[string]func(*Envelope){
		"no-sources": func(e *Envelope) { e.Metadata.Sources = nil },
		"no-query":   func(e *Envelope) { e.Metadata.Query = " " },
		"no-schema":  func(e *Envelope) { e.Metadata.Schema = nil },
	}
	for key, strip := range tests {
		t.Run(key, func(t *testing.T) {
			env := sampleEnvelope()
			strip(&env)
			if err := store.Set(ctx, key, env); err != nil {
				t.Fatal(err)
			}
			before, _ := store.GetRaw(ctx, key)

			_, err := m.Refresh(ctx, key)
			if !errors.Is(err, ErrIncomplete) {
				t.Fatalf("Refresh err = %v, want ErrIncomplete", err)
			}
			if errors.Is(err, ErrValidation) {
				t.Error("incomplete stored config reported as caller validation error")
			}
			after, _ := store.GetRaw(ctx, key)
			if !bytes.Equal(before, after) {
				t.Error("stored value changed")
			}
		})
	}
	if len(ext.calls) != 0 {
		t.Errorf("extractor called %d times", len(ext.calls))
	}
}

// --- delete ---

func TestDelete_Idempotent(t *testing.T) {
	m, _ := newTestManager(t, nil)
	ctx := context.Background()

	if _, err := m.Create(ctx, "k", sampleEnvelope()); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Delete(ctx, "k"); err != nil {
		t.Fatalf("first Delete: %v", err)
	}
	if _, err := m.Delete(ctx, "k"); err != nil {
		t.Fatalf("second Delete: %v", err)
	}
	if _, err := m.Read(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Read after Delete err = %v, want ErrNotFound", err)
	}

	// The key is free for a new create.
	if _, err := m.Create(ctx, "k", sampleEnvelope()); err != nil {
		t.Fatalf("Create after Delete: %v", err)
	}
}

func TestDelete_Validation(t *testing.T) {
	m, _ := newTestManager(t, nil)
	if _, err := m.Delete(context.Background(), "  "); !errors.Is(err, ErrValidation) {
		t.Fatalf("Delete(blank) err = %v, want ErrValidation", err)
	}
}

func TestDelete_Transport(t *testing.T) {
	m := NewManager(NewStore(brokenKV{}), nil)
	if _, err := m.Delete(context.Background(), "k"); !errors.Is(err, ErrTransport) {
		t.Fatalf("Delete err = %v, want ErrTransport", err)
	}
}
