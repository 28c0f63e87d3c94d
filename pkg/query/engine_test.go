package query

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/lexgraph/lexgraph/pkg/ai"
	"github.com/lexgraph/lexgraph/pkg/cache"
	"github.com/lexgraph/lexgraph/pkg/common"
)

type fakeAnswerClient struct {
	mu          sync.Mutex
	completions int
	lastPrompt  string
	failFirst   bool
}

func (f *fakeAnswerClient) GenerateCompletion(ctx context.Context, prompt string, opts ...ai.GenerateOption) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completions++
	f.lastPrompt = prompt
	if f.failFirst && f.completions == 1 {
		return "", errors.New("model overloaded")
	}
	return "the answer", nil
}

func (f *fakeAnswerClient) GenerateCompletionWithFormat(ctx context.Context, name, description, prompt string, out any, opts ...ai.GenerateOption) error {
	return errors.New("not used")
}

func (f *fakeAnswerClient) GenerateEmbedding(ctx context.Context, input []byte) ([]float32, error) {
	return nil, errors.New("not used")
}

func (f *fakeAnswerClient) GenerateEmbeddings(ctx context.Context, inputs [][]byte) ([][]float32, error) {
	return nil, errors.New("not used")
}

func (f *fakeAnswerClient) ResetMetrics()               {}
func (f *fakeAnswerClient) GetMetrics() ai.ModelMetrics { return ai.ModelMetrics{} }

type fakeQueryEmbedder struct {
	calls int
}

func (f *fakeQueryEmbedder) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	f.calls++
	return []float32{1, 0}, nil
}

type fakeVectorStore struct {
	hits  []common.ScoredChunk
	err   error
	calls int
	topK  int
}

func (f *fakeVectorStore) UpsertChunks(ctx context.Context, chunks []common.Chunk, embeddings [][]float32) error {
	return nil
}

func (f *fakeVectorStore) Search(ctx context.Context, embedding []float32, topK int) ([]common.ScoredChunk, error) {
	f.calls++
	f.topK = topK
	if f.err != nil {
		return nil, f.err
	}
	if len(f.hits) > topK {
		return f.hits[:topK], nil
	}
	return f.hits, nil
}

func (f *fakeVectorStore) DeleteAll(ctx context.Context) error { return nil }

type fakeKeywordIndex struct {
	hits []common.ScoredChunk
	err  error
}

func (f *fakeKeywordIndex) Index(ctx context.Context, chunks []common.Chunk) error { return nil }

func (f *fakeKeywordIndex) Search(ctx context.Context, query string, topK int) ([]common.ScoredChunk, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.hits, nil
}

func (f *fakeKeywordIndex) DeleteAll(ctx context.Context) error { return nil }

type fakeGraphStore struct {
	seeds      []common.Entity
	neighbors  []common.Entity
	rels       []common.Relationship
	seenDepth  int
	seenChunks []string
}

func (f *fakeGraphStore) UpsertEntities(ctx context.Context, entities []common.Entity) error {
	return nil
}

func (f *fakeGraphStore) UpsertRelationships(ctx context.Context, relationships []common.Relationship) error {
	return nil
}

func (f *fakeGraphStore) EntitiesForChunks(ctx context.Context, chunkIDs []string) ([]common.Entity, error) {
	f.seenChunks = chunkIDs
	return f.seeds, nil
}

func (f *fakeGraphStore) Neighbors(ctx context.Context, seeds []common.Entity, depth int) ([]common.Entity, []common.Relationship, error) {
	f.seenDepth = depth
	if depth <= 0 {
		return seeds, nil, nil
	}
	return append(append([]common.Entity{}, seeds...), f.neighbors...), f.rels, nil
}

func (f *fakeGraphStore) DeleteAll(ctx context.Context) error { return nil }

func newTestEngine(t *testing.T, client *fakeAnswerClient, vector *fakeVectorStore, keyword *fakeKeywordIndex, graph *fakeGraphStore, defaults Params) (*Engine, *fakeQueryEmbedder) {
	t.Helper()
	embedder := &fakeQueryEmbedder{}
	params := NewEngineParams{
		Client:   client,
		Embedder: embedder,
		Vector:   vector,
		Cache: cache.NewCache(cache.NewCacheParams{
			Backend: cache.NewMemoryBackend(),
			Model:   "test-model",
		}),
		MaxRetries: 3,
		Defaults:   defaults,
	}
	if keyword != nil {
		params.Keyword = keyword
	}
	if graph != nil {
		params.Graph = graph
	}
	engine, err := NewEngine(params)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	return engine, embedder
}

func defaultParams() Params {
	return Params{TopK: 2, MaxDepth: 1, Hybrid: true, VectorWeight: 0.7, KeywordWeight: 0.3}
}

func TestSearchHybridEndToEnd(t *testing.T) {
	client := &fakeAnswerClient{}
	vector := &fakeVectorStore{hits: []common.ScoredChunk{scored("a", 0.9, 0), scored("b", 0.5, 0)}}
	keyword := &fakeKeywordIndex{hits: []common.ScoredChunk{scored("b", 0, 2.0)}}
	graph := &fakeGraphStore{
		seeds: []common.Entity{{Name: "ACME Corp", Type: "Organization"}},
		neighbors: []common.Entity{
			{Name: "Jane Doe", Type: "Person"},
		},
		rels: []common.Relationship{{
			SourceName: "Jane Doe", SourceType: "Person",
			TargetName: "ACME Corp", TargetType: "Organization",
			Type: "REPRESENTS",
		}},
	}
	engine, _ := newTestEngine(t, client, vector, keyword, graph, defaultParams())

	result, err := engine.Search(context.Background(), "Who represents ACME?", Params{})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if result.SearchType != "hybrid" {
		t.Fatalf("expected hybrid search, got %s", result.SearchType)
	}
	if result.Answer != "the answer" {
		t.Fatalf("unexpected answer %q", result.Answer)
	}
	if len(result.Chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(result.Chunks))
	}
	// 2x over-fetch before fusion.
	if vector.topK != 4 {
		t.Fatalf("expected over-fetch of 4, got %d", vector.topK)
	}
	if len(result.Entities) != 2 {
		t.Fatalf("expected seed plus neighbor, got %v", result.Entities)
	}
	if !strings.Contains(result.Context, "=== Relevant Text Chunks ===") ||
		!strings.Contains(result.Context, "Jane Doe -[REPRESENTS]-> ACME Corp") {
		t.Fatalf("context missing expected sections:\n%s", result.Context)
	}
	if !strings.Contains(client.lastPrompt, "Who represents ACME?") {
		t.Fatalf("prompt missing question:\n%s", client.lastPrompt)
	}
}

func TestSearchCacheShortCircuit(t *testing.T) {
	client := &fakeAnswerClient{}
	vector := &fakeVectorStore{hits: []common.ScoredChunk{scored("a", 0.9, 0)}}
	engine, embedder := newTestEngine(t, client, vector, nil, nil, defaultParams())

	first, err := engine.Search(context.Background(), "What is clause 4?", Params{})
	if err != nil {
		t.Fatalf("first Search failed: %v", err)
	}
	// Same query modulo case and whitespace hits the cache.
	second, err := engine.Search(context.Background(), "  WHAT IS CLAUSE 4?  ", Params{})
	if err != nil {
		t.Fatalf("second Search failed: %v", err)
	}
	if embedder.calls != 1 || vector.calls != 1 || client.completions != 1 {
		t.Fatalf("expected single pipeline run, got embed=%d vector=%d completions=%d",
			embedder.calls, vector.calls, client.completions)
	}
	if second.Answer != first.Answer {
		t.Fatalf("cached answer differs: %q vs %q", second.Answer, first.Answer)
	}

	// Different parameters miss the cache.
	if _, err := engine.Search(context.Background(), "What is clause 4?", Params{TopK: 3, Hybrid: false, VectorWeight: 1}); err != nil {
		t.Fatalf("third Search failed: %v", err)
	}
	if vector.calls != 2 {
		t.Fatalf("expected cache miss for changed params, vector calls = %d", vector.calls)
	}
}

func TestSearchTopKZeroSkipsPipeline(t *testing.T) {
	client := &fakeAnswerClient{}
	vector := &fakeVectorStore{}
	engine, embedder := newTestEngine(t, client, vector, nil, nil, Params{TopK: 0, VectorWeight: 1})

	result, err := engine.Search(context.Background(), "anything", Params{})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if result.Answer != "" || len(result.Chunks) != 0 {
		t.Fatalf("expected empty result, got %+v", result)
	}
	if embedder.calls != 0 || vector.calls != 0 || client.completions != 0 {
		t.Fatal("expected no model or store calls for topK 0")
	}
}

func TestSearchDepthZeroReturnsSeedsOnly(t *testing.T) {
	client := &fakeAnswerClient{}
	vector := &fakeVectorStore{hits: []common.ScoredChunk{scored("a", 0.9, 0)}}
	graph := &fakeGraphStore{
		seeds:     []common.Entity{{Name: "ACME Corp", Type: "Organization"}},
		neighbors: []common.Entity{{Name: "Jane Doe", Type: "Person"}},
	}
	params := defaultParams()
	params.MaxDepth = 0
	params.Hybrid = false
	engine, _ := newTestEngine(t, client, vector, nil, graph, params)

	result, err := engine.Search(context.Background(), "query", Params{})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if graph.seenDepth != 0 {
		t.Fatalf("expected depth 0 passed through, got %d", graph.seenDepth)
	}
	if len(result.Entities) != 1 || result.Entities[0].Name != "ACME Corp" {
		t.Fatalf("expected seeds only, got %v", result.Entities)
	}
}

func TestSearchKeywordFailureDegrades(t *testing.T) {
	client := &fakeAnswerClient{}
	vector := &fakeVectorStore{hits: []common.ScoredChunk{scored("a", 0.9, 0)}}
	keyword := &fakeKeywordIndex{err: errors.New("index offline")}
	engine, _ := newTestEngine(t, client, vector, keyword, nil, defaultParams())

	result, err := engine.Search(context.Background(), "query", Params{})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if result.SearchType != "degraded" {
		t.Fatalf("expected degraded search, got %s", result.SearchType)
	}
	if len(result.Chunks) != 1 {
		t.Fatalf("expected vector results to survive, got %d chunks", len(result.Chunks))
	}
}

func TestSearchVectorDimensionMismatchFails(t *testing.T) {
	client := &fakeAnswerClient{}
	vector := &fakeVectorStore{
		err: fmt.Errorf("query dimension 3072 does not match index dimension 1536: %w", common.ErrDimensionMismatch),
	}
	engine, _ := newTestEngine(t, client, vector, nil, nil, defaultParams())

	result, err := engine.Search(context.Background(), "query", Params{})
	if err == nil {
		t.Fatalf("expected error, got result %+v", result)
	}
	if !errors.Is(err, common.ErrDimensionMismatch) {
		t.Fatalf("expected dimension mismatch, got %v", err)
	}
	if client.completions != 0 {
		t.Fatal("expected no answer generation on retrieval failure")
	}
}

func TestSearchRetriesAnswer(t *testing.T) {
	client := &fakeAnswerClient{failFirst: true}
	vector := &fakeVectorStore{hits: []common.ScoredChunk{scored("a", 0.9, 0)}}
	engine, _ := newTestEngine(t, client, vector, nil, nil, defaultParams())

	result, err := engine.Search(context.Background(), "query", Params{})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if client.completions != 2 {
		t.Fatalf("expected one retry, got %d calls", client.completions)
	}
	if result.Answer != "the answer" {
		t.Fatalf("unexpected answer %q", result.Answer)
	}
}

func TestBuildContextDeterministicAndCapped(t *testing.T) {
	chunks := []common.ScoredChunk{scored("c1", 1, 0)}
	var entities []common.Entity
	for _, name := range []string{"Zed", "Alice", "Mallory", "Bob"} {
		entities = append(entities, common.Entity{Name: name, Type: "Person"})
	}
	first := buildContext(chunks, entities, nil)
	second := buildContext(chunks, entities, nil)
	if first != second {
		t.Fatal("context build is not deterministic")
	}
	if strings.Index(first, "Alice") > strings.Index(first, "Bob") {
		t.Fatal("entities are not sorted")
	}

	for i := 0; i < 20; i++ {
		entities = append(entities, common.Entity{Name: strings.Repeat("x", i+1), Type: "Person"})
	}
	capped := buildContext(chunks, entities, nil)
	if got := strings.Count(capped, "(Person)"); got != maxContextEntities {
		t.Fatalf("expected %d entities in context, got %d", maxContextEntities, got)
	}
}
