package cache

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

type failingBackend struct{}

func (failingBackend) Get(context.Context, string) ([]byte, error) {
	return nil, errors.New("connection refused")
}

func (failingBackend) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("connection refused")
}

func (failingBackend) DeletePrefix(context.Context, string) error {
	return errors.New("connection refused")
}

func TestCache_RoundTrip(t *testing.T) {
	ctx := context.Background()
	c := NewCache(NewCacheParams{Backend: NewMemoryBackend(), Model: "test-model"})

	c.Set(ctx, NamespaceEmbedding, "some chunk text", []byte("payload"))
	value, ok := c.Get(ctx, NamespaceEmbedding, "some chunk text")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if string(value) != "payload" {
		t.Fatalf("expected payload, got %q", value)
	}
}

func TestCache_MissForUnknownKey(t *testing.T) {
	ctx := context.Background()
	c := NewCache(NewCacheParams{Backend: NewMemoryBackend(), Model: "test-model"})

	if _, ok := c.Get(ctx, NamespaceEmbedding, "never stored"); ok {
		t.Fatal("expected miss for unknown key")
	}
}

func TestCache_TTLExpiry(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	current := time.Now()
	backend.now = func() time.Time { return current }

	c := NewCache(NewCacheParams{
		Backend:         backend,
		Model:           "test-model",
		SearchResultTTL: time.Minute,
	})

	c.Set(ctx, NamespaceSearchResult, "query", []byte("answer"))
	if _, ok := c.Get(ctx, NamespaceSearchResult, "query"); !ok {
		t.Fatal("expected hit before expiry")
	}

	current = current.Add(2 * time.Minute)
	if _, ok := c.Get(ctx, NamespaceSearchResult, "query"); ok {
		t.Fatal("expected miss after TTL elapsed")
	}
}

func TestCache_KeyDerivation(t *testing.T) {
	c := NewCache(NewCacheParams{Backend: NewMemoryBackend(), Model: "m1"})

	key := c.Key(NamespaceEmbedding, "input text")
	if !strings.HasPrefix(key, "embedding:m1:") {
		t.Fatalf("unexpected key prefix: %s", key)
	}
	hash := strings.TrimPrefix(key, "embedding:m1:")
	if len(hash) != 64 {
		t.Fatalf("expected fixed-width 64-char hash, got %d chars", len(hash))
	}

	// Deterministic, and long inputs stay bounded.
	if key != c.Key(NamespaceEmbedding, "input text") {
		t.Fatal("key derivation is not deterministic")
	}
	long := c.Key(NamespaceEmbedding, strings.Repeat("z", 1<<16))
	if len(long) != len("embedding:m1:")+64 {
		t.Fatalf("key length must be independent of input size, got %d", len(long))
	}
}

func TestCache_ModelScopesKeys(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	a := NewCache(NewCacheParams{Backend: backend, Model: "model-a"})
	b := NewCache(NewCacheParams{Backend: backend, Model: "model-b"})

	a.Set(ctx, NamespaceEmbedding, "text", []byte("vector-a"))
	if _, ok := b.Get(ctx, NamespaceEmbedding, "text"); ok {
		t.Fatal("expected miss: different model must not share entries")
	}
}

func TestCache_BackendFailureIsAMiss(t *testing.T) {
	ctx := context.Background()
	c := NewCache(NewCacheParams{Backend: failingBackend{}, Model: "test-model"})

	// Neither call may panic or surface the backend error.
	c.Set(ctx, NamespaceEmbedding, "text", []byte("v"))
	if _, ok := c.Get(ctx, NamespaceEmbedding, "text"); ok {
		t.Fatal("expected miss on backend failure")
	}
}

func TestCache_NilBackendDegradesToNull(t *testing.T) {
	ctx := context.Background()
	c := NewCache(NewCacheParams{Backend: nil, Model: "test-model"})

	c.Set(ctx, NamespaceEmbedding, "text", []byte("v"))
	if _, ok := c.Get(ctx, NamespaceEmbedding, "text"); ok {
		t.Fatal("expected null backend to always miss")
	}
}

func TestCache_ClearNamespace(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	c := NewCache(NewCacheParams{Backend: backend, Model: "test-model"})

	c.Set(ctx, NamespaceEmbedding, "a", []byte("1"))
	c.Set(ctx, NamespaceSearchResult, "b", []byte("2"))

	if err := c.Clear(ctx, NamespaceEmbedding); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if _, ok := c.Get(ctx, NamespaceEmbedding, "a"); ok {
		t.Fatal("expected embedding entry to be cleared")
	}
	if _, ok := c.Get(ctx, NamespaceSearchResult, "b"); !ok {
		t.Fatal("expected search_result entry to survive")
	}

	if err := c.Clear(ctx, ""); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if backend.Len() != 0 {
		t.Fatalf("expected empty backend after full clear, got %d entries", backend.Len())
	}
}

func TestCache_JSONRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := NewCache(NewCacheParams{Backend: NewMemoryBackend(), Model: "test-model"})

	in := []float32{0.25, -1, 3.5}
	c.SetJSON(ctx, NamespaceEmbedding, "text", in)

	var out []float32
	if !c.GetJSON(ctx, NamespaceEmbedding, "text", &out) {
		t.Fatal("expected hit")
	}
	if len(out) != len(in) {
		t.Fatalf("expected %d values, got %d", len(in), len(out))
	}
	for i := range in {
		if in[i] != out[i] {
			t.Fatalf("value %d mismatch: %f != %f", i, in[i], out[i])
		}
	}
}

func TestNormalizeQuery(t *testing.T) {
	if got := NormalizeQuery("  What Is The RULING?  "); got != "what is the ruling?" {
		t.Fatalf("unexpected normalization: %q", got)
	}
}
