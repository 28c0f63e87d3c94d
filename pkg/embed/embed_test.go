package embed

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/lexgraph/lexgraph/pkg/ai"
	"github.com/lexgraph/lexgraph/pkg/cache"
)

type fakeAIClient struct {
	mu         sync.Mutex
	embedCalls int
	batchCalls int
	failBatch  bool
	failTexts  map[string]bool
}

func (f *fakeAIClient) GenerateCompletion(context.Context, string, ...ai.GenerateOption) (string, error) {
	return "", errors.New("not implemented")
}

func (f *fakeAIClient) GenerateCompletionWithFormat(context.Context, string, string, string, any, ...ai.GenerateOption) error {
	return errors.New("not implemented")
}

func (f *fakeAIClient) GenerateEmbedding(_ context.Context, input []byte) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.embedCalls++
	if f.failTexts[string(input)] {
		return nil, errors.New("model unavailable")
	}
	return []float32{float32(len(input)), 1, 2}, nil
}

func (f *fakeAIClient) GenerateEmbeddings(ctx context.Context, inputs [][]byte) ([][]float32, error) {
	f.mu.Lock()
	f.batchCalls++
	fail := f.failBatch
	f.mu.Unlock()
	if fail {
		return nil, errors.New("batch endpoint down")
	}
	out := make([][]float32, len(inputs))
	for i, in := range inputs {
		out[i] = []float32{float32(len(in)), 1, 2}
	}
	return out, nil
}

func (f *fakeAIClient) ResetMetrics()               {}
func (f *fakeAIClient) GetMetrics() ai.ModelMetrics { return ai.ModelMetrics{} }

func newTestGenerator(client ai.GraphAIClient) *Generator {
	return NewGenerator(NewGeneratorParams{
		Client: client,
		Cache: cache.NewCache(cache.NewCacheParams{
			Backend: cache.NewMemoryBackend(),
			Model:   "test-embed",
		}),
		MaxRetries: 1,
	})
}

func TestEmbed_WarmCacheSkipsModelCall(t *testing.T) {
	ctx := context.Background()
	client := &fakeAIClient{}
	g := newTestGenerator(client)

	first, err := g.Embed(ctx, "some chunk text")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	second, err := g.Embed(ctx, "some chunk text")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	if client.embedCalls != 1 {
		t.Fatalf("expected exactly 1 model call, got %d", client.embedCalls)
	}
	if len(first) != len(second) {
		t.Fatalf("vector length mismatch: %d != %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("cached vector differs at %d: %f != %f", i, first[i], second[i])
		}
	}
}

func TestEmbedQuery_NormalizesBeforeKeying(t *testing.T) {
	ctx := context.Background()
	client := &fakeAIClient{}
	g := newTestGenerator(client)

	if _, err := g.EmbedQuery(ctx, "  What Is The Ruling?  "); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if _, err := g.EmbedQuery(ctx, "what is the ruling?"); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if client.embedCalls != 1 {
		t.Fatalf("expected normalized queries to share a cache entry, got %d calls", client.embedCalls)
	}
}

func TestEmbedBatch_PreservesOrderAcrossHitsAndMisses(t *testing.T) {
	ctx := context.Background()
	client := &fakeAIClient{}
	g := newTestGenerator(client)

	// Warm the cache for the middle element only.
	if _, err := g.Embed(ctx, "bb"); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	results := g.EmbedBatch(ctx, []string{"a", "bb", "ccc"})
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	for i, r := range results {
		if r.Err != nil {
			t.Fatalf("result %d: unexpected error %v", i, r.Err)
		}
	}
	// First component encodes input length in the fake.
	if results[0].Embedding[0] != 1 || results[1].Embedding[0] != 2 || results[2].Embedding[0] != 3 {
		t.Fatalf("results out of order: %v %v %v",
			results[0].Embedding[0], results[1].Embedding[0], results[2].Embedding[0])
	}
	if client.batchCalls != 1 {
		t.Fatalf("expected 1 batched call for the misses, got %d", client.batchCalls)
	}
}

func TestEmbedBatch_PerItemFailureMarkers(t *testing.T) {
	ctx := context.Background()
	client := &fakeAIClient{
		failBatch: true,
		failTexts: map[string]bool{"bad": true},
	}
	g := newTestGenerator(client)

	results := g.EmbedBatch(ctx, []string{"good", "bad", "fine"})
	if results[0].Err != nil || results[2].Err != nil {
		t.Fatalf("sibling items must not fail: %v %v", results[0].Err, results[2].Err)
	}
	if results[1].Err == nil {
		t.Fatal("expected failure marker for bad item")
	}
	if results[0].Embedding == nil || results[2].Embedding == nil {
		t.Fatal("expected embeddings for surviving items")
	}
}

func TestEmbedBatch_AllCacheHitsNoModelCalls(t *testing.T) {
	ctx := context.Background()
	client := &fakeAIClient{}
	g := newTestGenerator(client)

	texts := []string{"one", "two"}
	g.EmbedBatch(ctx, texts)
	callsAfterWarmup := client.embedCalls + client.batchCalls

	g.EmbedBatch(ctx, texts)
	if client.embedCalls+client.batchCalls != callsAfterWarmup {
		t.Fatal("expected no model calls on a fully warm cache")
	}
}
