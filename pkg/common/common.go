package common

import "errors"

// Sentinel errors shared across storage and query layers.
var (
	// ErrDimensionMismatch indicates that an embedding's dimension differs from
	// the dimension recorded for the index. This is a configuration error and
	// is never retried.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrNotFound indicates a lookup for a record that does not exist.
	ErrNotFound = errors.New("not found")
)

// Chunk is a contiguous segment of document text with stable character
// offsets. Chunks are immutable once created; they are the unit that gets
// embedded, indexed, and linked to extracted entities.
type Chunk struct {
	ID         string `json:"id"`
	DocumentID string `json:"document_id"`
	Index      int    `json:"index"`
	Start      int    `json:"start"`
	End        int    `json:"end"`
	Text       string `json:"text"`
	TokenCount int    `json:"token_count,omitempty"`
}

// Entity is a node of the knowledge graph. Entities are deduplicated by
// (Name, Type) within one extraction batch; cross-document merging happens in
// the graph store via upsert-by-key.
type Entity struct {
	Name        string         `json:"name"`
	Type        string         `json:"type"`
	Description string         `json:"description,omitempty"`
	Properties  map[string]any `json:"properties,omitempty"`
	ChunkIDs    []string       `json:"chunk_ids,omitempty"`
}

// Key returns the identity key used for entity deduplication and upserts.
func (e Entity) Key() string {
	return e.Name + "\x00" + e.Type
}

// Relationship is a directed edge between two entities, identified by the
// (name, type) keys of its endpoints.
type Relationship struct {
	SourceName  string         `json:"source_name"`
	SourceType  string         `json:"source_type"`
	TargetName  string         `json:"target_name"`
	TargetType  string         `json:"target_type"`
	Type        string         `json:"type"`
	Description string         `json:"description,omitempty"`
	Properties  map[string]any `json:"properties,omitempty"`
	ChunkID     string         `json:"chunk_id,omitempty"`
}

// Extraction is the per-chunk result of entity/relationship extraction.
type Extraction struct {
	Entities      []Entity       `json:"entities"`
	Relationships []Relationship `json:"relationships"`
}

// ScoredChunk is a retrieval candidate with its per-source and fused scores.
// Never persisted except inside a cached search result.
type ScoredChunk struct {
	Chunk         Chunk   `json:"chunk"`
	VectorScore   float64 `json:"vector_score"`
	KeywordScore  float64 `json:"keyword_score"`
	CombinedScore float64 `json:"combined_score"`
}

// SearchResult is the terminal output of a query: the synthesized answer
// together with the fused context it was generated from.
type SearchResult struct {
	Query         string         `json:"query"`
	Answer        string         `json:"answer"`
	Context       string         `json:"context"`
	Chunks        []ScoredChunk  `json:"chunks"`
	Entities      []Entity       `json:"entities"`
	Relationships []Relationship `json:"relationships"`
	SearchType    string         `json:"search_type"`
}

// BatchFailure records a single failed ingestion batch: which batch, which
// stage (chunk, embed, extract, store), and the error message.
type BatchFailure struct {
	Batch int    `json:"batch"`
	Stage string `json:"stage"`
	Error string `json:"error"`
}

// IngestStats aggregates the outcome of one ingestion run. Counts are summed
// across all batches only after every batch has completed or permanently
// failed.
type IngestStats struct {
	DocumentID    string         `json:"document_id"`
	Batches       int            `json:"batches"`
	Chunks        int            `json:"chunks"`
	Tokens        int            `json:"tokens"`
	Entities      int            `json:"entities"`
	Relationships int            `json:"relationships"`
	Failures      []BatchFailure `json:"failures,omitempty"`
}

// Merge folds the stats of one batch into the aggregate.
func (s *IngestStats) Merge(other IngestStats) {
	s.Batches += other.Batches
	s.Chunks += other.Chunks
	s.Tokens += other.Tokens
	s.Entities += other.Entities
	s.Relationships += other.Relationships
	s.Failures = append(s.Failures, other.Failures...)
}
