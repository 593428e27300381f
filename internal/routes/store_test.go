package routes

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/kalambet/routesmith/internal/storage"
)

func openTestKV(t *testing.T) *storage.SQLiteKV {
	t.Helper()
	kv, err := storage.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("OpenSQLite(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { kv.Close() })
	return kv
}

func TestDecodeEnvelope_Object(t *testing.T) {
	raw := []byte(`{"data":{"price":123},"metadata":{"query":"q","schema":{"type":"object"},"sources":["https://a.com"],"lastUpdated":"2024-01-01T00:00:00Z"}}`)
	env, err := decodeEnvelope(raw)
	if err != nil {
		t.Fatalf("decodeEnvelope: %v", err)
	}
	if string(env.Data) != `{"price":123}` {
		t.Errorf("Data = %s", env.Data)
	}
	if env.Metadata.Query != "q" {
		t.Errorf("Query = %q, want q", env.Metadata.Query)
	}
	if len(env.Metadata.Sources) != 1 || env.Metadata.Sources[0] != "https://a.com" {
		t.Errorf("Sources = %v", env.Metadata.Sources)
	}
}

func TestDecodeEnvelope_DoubleEncoded(t *testing.T) {
	inner := `{"data":[1,2,3],"metadata":{"query":"q","schema":{},"sources":[],"lastUpdated":"2024-01-01T00:00:00Z"}}`
	outer, err := json.Marshal(inner)
	if err != nil {
		t.Fatal(err)
	}
	env, err := decodeEnvelope(outer)
	if err != nil {
		t.Fatalf("decodeEnvelope(double encoded): %v", err)
	}
	if string(env.Data) != `[1,2,3]` {
		t.Errorf("Data = %s, want [1,2,3]", env.Data)
	}
}

func TestDecodeEnvelope_Corrupt(t *testing.T) {
	cases := []string{
		`not json`,
		`[1,2]`,
		`"just a string"`,
		`{"data":`,
		`42`,
		``,
	}
	for _, c := range cases {
		if _, err := decodeEnvelope([]byte(c)); !errors.Is(err, ErrCorrupt) {
			t.Errorf("decodeEnvelope(%q) err = %v, want ErrCorrupt", c, err)
		}
	}
}

func TestStore_SetGetDelete(t *testing.T) {
	ctx := context.Background()
	s := NewStore(openTestKV(t))

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get(missing) err = %v, want ErrNotFound", err)
	}

	env := Envelope{Data: json.RawMessage(`{"a":1}`), Metadata: Metadata{Query: "q"}}
	if err := s.Set(ctx, "alpha", env); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, err := s.Get(ctx, "alpha")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got.Data) != `{"a":1}` {
		t.Errorf("Data = %s", got.Data)
	}
	if got.Metadata.Sources == nil {
		t.Error("Sources should be stored as [] rather than null")
	}

	keys, err := s.ListKeys(ctx)
	if err != nil {
		t.Fatalf("ListKeys: %v", err)
	}
	if len(keys) != 1 || keys[0] != "alpha" {
		t.Errorf("ListKeys = %v, want [alpha]", keys)
	}

	if err := s.Delete(ctx, "alpha"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, "alpha"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get after delete err = %v, want ErrNotFound", err)
	}
}

func TestStore_ListKeysIgnoresOtherNamespaces(t *testing.T) {
	ctx := context.Background()
	kv := openTestKV(t)
	s := NewStore(kv)

	if err := kv.Set(ctx, "sessions/x", []byte(`{}`)); err != nil {
		t.Fatal(err)
	}
	if err := s.Set(ctx, "mine", Envelope{Data: json.RawMessage(`1`)}); err != nil {
		t.Fatal(err)
	}

	keys, err := s.ListKeys(ctx)
	if err != nil {
		t.Fatalf("ListKeys: %v", err)
	}
	if len(keys) != 1 || keys[0] != "mine" {
		t.Errorf("ListKeys = %v, want [mine]", keys)
	}
}
