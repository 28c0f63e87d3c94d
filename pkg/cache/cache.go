package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/lexgraph/lexgraph/pkg/logger"
)

// Namespaces for cached payloads. Embeddings and extractions are long-lived
// because they are pure functions of their input; search results are
// short-lived because the underlying stores may change.
const (
	NamespaceEmbedding    = "embedding"
	NamespaceExtraction   = "extraction"
	NamespaceSearchResult = "search_result"
)

const (
	defaultEmbeddingTTL    = 7 * 24 * time.Hour
	defaultExtractionTTL   = 7 * 24 * time.Hour
	defaultSearchResultTTL = time.Hour
)

// ErrMiss is returned by backends when a key is absent or expired.
var ErrMiss = errors.New("cache miss")

// Backend is the minimal contract a cache store has to fulfill. All methods
// may fail; the Cache layer downgrades every backend failure to a miss.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	DeletePrefix(ctx context.Context, prefix string) error
}

// Cache is a content-addressed, TTL-bound cache for model call results.
// It is safe for concurrent use as long as the backend is; each key's
// get/set pair is independent and last-write-wins is acceptable because
// cached values are reconstructible from source.
type Cache struct {
	backend Backend
	model   string
	ttls    map[string]time.Duration
}

// NewCacheParams contains configuration for creating a Cache.
// Model scopes every key so that switching models never serves stale
// vectors or extractions. TTL overrides of zero keep the defaults.
type NewCacheParams struct {
	Backend Backend
	Model   string

	EmbeddingTTL    time.Duration
	ExtractionTTL   time.Duration
	SearchResultTTL time.Duration
}

// NewCache creates a Cache over the given backend. A nil backend degrades to
// a NullBackend, which always misses.
func NewCache(params NewCacheParams) *Cache {
	backend := params.Backend
	if backend == nil {
		backend = NewNullBackend()
	}

	ttls := map[string]time.Duration{
		NamespaceEmbedding:    defaultEmbeddingTTL,
		NamespaceExtraction:   defaultExtractionTTL,
		NamespaceSearchResult: defaultSearchResultTTL,
	}
	if params.EmbeddingTTL > 0 {
		ttls[NamespaceEmbedding] = params.EmbeddingTTL
	}
	if params.ExtractionTTL > 0 {
		ttls[NamespaceExtraction] = params.ExtractionTTL
	}
	if params.SearchResultTTL > 0 {
		ttls[NamespaceSearchResult] = params.SearchResultTTL
	}

	return &Cache{
		backend: backend,
		model:   params.Model,
		ttls:    ttls,
	}
}

// NormalizeQuery canonicalizes a user query for cache keying. Chunk text is
// keyed by exact bytes and must not go through this.
func NormalizeQuery(query string) string {
	return strings.ToLower(strings.TrimSpace(query))
}

// Key derives the stored key for a raw input: a fixed-width hash under a
// visible namespace:model: prefix. Deterministic across process restarts.
func (c *Cache) Key(namespace, rawKey string) string {
	sum := sha256.Sum256([]byte(rawKey))
	return namespace + ":" + c.model + ":" + hex.EncodeToString(sum[:])
}

// Get returns the cached value for the raw key, or false on miss. Backend
// failures are logged at debug level and reported as a miss.
func (c *Cache) Get(ctx context.Context, namespace, rawKey string) ([]byte, bool) {
	key := c.Key(namespace, rawKey)
	value, err := c.backend.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrMiss) {
			logger.Debug("Cache get failed, treating as miss", "namespace", namespace, "err", err)
		}
		return nil, false
	}
	return value, true
}

// Set stores a value under the raw key with the namespace's TTL. Backend
// failures are logged at debug level and otherwise ignored.
func (c *Cache) Set(ctx context.Context, namespace, rawKey string, value []byte) {
	key := c.Key(namespace, rawKey)
	if err := c.backend.Set(ctx, key, value, c.ttls[namespace]); err != nil {
		logger.Debug("Cache set failed, skipping", "namespace", namespace, "err", err)
	}
}

// GetJSON unmarshals a cached value into out, returning false on miss or on
// a payload that no longer parses.
func (c *Cache) GetJSON(ctx context.Context, namespace, rawKey string, out any) bool {
	value, ok := c.Get(ctx, namespace, rawKey)
	if !ok {
		return false
	}
	if err := json.Unmarshal(value, out); err != nil {
		logger.Debug("Cache payload unmarshal failed, treating as miss", "namespace", namespace, "err", err)
		return false
	}
	return true
}

// SetJSON marshals value and stores it under the raw key.
func (c *Cache) SetJSON(ctx context.Context, namespace, rawKey string, value any) {
	payload, err := json.Marshal(value)
	if err != nil {
		logger.Debug("Cache payload marshal failed, skipping", "namespace", namespace, "err", err)
		return
	}
	c.Set(ctx, namespace, rawKey, payload)
}

// Clear evicts all entries of a namespace. An empty namespace clears every
// namespace. Unlike reads and writes, clear failures are surfaced: the
// caller asked for eviction explicitly.
func (c *Cache) Clear(ctx context.Context, namespace string) error {
	if namespace == "" {
		return c.backend.DeletePrefix(ctx, "")
	}
	return c.backend.DeletePrefix(ctx, namespace+":")
}
