package extract

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/lexgraph/lexgraph/internal/util"
	"github.com/lexgraph/lexgraph/pkg/ai"
	"github.com/lexgraph/lexgraph/pkg/cache"
	"github.com/lexgraph/lexgraph/pkg/common"
)

const retryBaseDelay = 500 * time.Millisecond

type extractEntity struct {
	Name        string         `json:"name" jsonschema_description:"Canonical name of the entity as used in the document"`
	Type        string         `json:"type" jsonschema_description:"One of the provided entity types"`
	Description string         `json:"description" jsonschema_description:"Concise description of the entity's role and attributes as stated in the text"`
	Properties  map[string]any `json:"properties,omitempty" jsonschema_description:"Additional scalar attributes stated in the text"`
}

type extractRelationship struct {
	Source      string `json:"source" jsonschema_description:"Name of the source entity, as identified in step 1"`
	Target      string `json:"target" jsonschema_description:"Name of the target entity, as identified in step 1"`
	Type        string `json:"type" jsonschema_description:"Short uppercase relationship label"`
	Description string `json:"description" jsonschema_description:"Why the source and target are related, grounded in the text"`
}

type extractResponse struct {
	Entities      []extractEntity       `json:"entities" jsonschema_description:"Entities identified in the text document"`
	Relationships []extractRelationship `json:"relationships" jsonschema_description:"Relationships identified in the text document"`
}

// Extractor produces structured entities and relationships per chunk through
// the AI client, with a write-through cache keyed on the exact chunk text.
type Extractor struct {
	client      ai.GraphAIClient
	cache       *cache.Cache
	maxRetries  int
	entityTypes []string
}

// NewExtractorParams contains configuration for creating an Extractor.
// EntityTypes defaults to DefaultEntityTypes when empty.
type NewExtractorParams struct {
	Client      ai.GraphAIClient
	Cache       *cache.Cache
	MaxRetries  int
	EntityTypes []string
}

// NewExtractor creates an Extractor. A nil cache degrades to an always-miss
// cache.
func NewExtractor(params NewExtractorParams) *Extractor {
	c := params.Cache
	if c == nil {
		c = cache.NewCache(cache.NewCacheParams{})
	}
	maxRetries := params.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 1
	}
	entityTypes := params.EntityTypes
	if len(entityTypes) == 0 {
		entityTypes = DefaultEntityTypes
	}
	return &Extractor{
		client:      params.Client,
		cache:       c,
		maxRetries:  maxRetries,
		entityTypes: entityTypes,
	}
}

// Result is the per-chunk outcome of a batch extraction. Exactly one of
// Extraction and Err is meaningful.
type Result struct {
	Extraction common.Extraction
	Err        error
}

// Extract returns the entities and relationships of one chunk, consulting
// the cache first and writing through on miss. Transient model failures are
// retried with bounded backoff.
func (e *Extractor) Extract(ctx context.Context, chunk common.Chunk) (common.Extraction, error) {
	var cached common.Extraction
	if e.cache.GetJSON(ctx, cache.NamespaceExtraction, chunk.Text, &cached) {
		return rebindChunk(cached, chunk.ID), nil
	}

	types := strings.Join(e.entityTypes, ", ")
	systemPrompt := fmt.Sprintf(ExtractPrompt, types, types, types)

	res, err := util.RetryBackoff(ctx, e.maxRetries, retryBaseDelay, func(ctx context.Context) (extractResponse, error) {
		var out extractResponse
		err := e.client.GenerateCompletionWithFormat(
			ctx,
			"extract_entities_and_relationships",
			"Extract entities and relationships from a provided document.",
			chunk.Text,
			&out,
			ai.WithSystemPrompts(systemPrompt),
		)
		return out, err
	})
	if err != nil {
		return common.Extraction{}, fmt.Errorf("extraction failed for chunk %s: %w", chunk.ID, err)
	}

	extraction := e.validate(res, chunk.ID)
	e.cache.SetJSON(ctx, cache.NamespaceExtraction, chunk.Text, extraction)
	return extraction, nil
}

// ExtractBatch extracts from each chunk concurrently (the AI client bounds
// actual parallelism) and returns per-chunk results in input order. A model
// failure for one chunk does not abort its siblings.
func (e *Extractor) ExtractBatch(ctx context.Context, chunks []common.Chunk) []Result {
	results := make([]Result, len(chunks))

	var wg sync.WaitGroup
	for i := range chunks {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			extraction, err := e.Extract(ctx, chunks[idx])
			if err != nil {
				results[idx] = Result{Err: err}
				return
			}
			results[idx] = Result{Extraction: extraction}
		}(i)
	}
	wg.Wait()

	return results
}

// validate cleans one raw model response: entities get a default type when
// missing, the reserved "id" property is renamed, nameless entities and
// relationships with missing endpoints or type are dropped, and entities are
// deduplicated by (name, type).
func (e *Extractor) validate(res extractResponse, chunkID string) common.Extraction {
	byKey := make(map[string]int)
	entities := make([]common.Entity, 0, len(res.Entities))
	for _, raw := range res.Entities {
		name := strings.TrimSpace(raw.Name)
		if name == "" {
			continue
		}
		entityType := strings.TrimSpace(raw.Type)
		if !e.knownType(entityType) {
			entityType = DefaultEntityType
		}

		properties := raw.Properties
		if id, ok := properties["id"]; ok {
			// "id" is reserved by the graph store.
			delete(properties, "id")
			properties["identifier"] = id
		}

		entity := common.Entity{
			Name:        name,
			Type:        entityType,
			Description: strings.TrimSpace(raw.Description),
			Properties:  properties,
			ChunkIDs:    []string{chunkID},
		}
		if idx, ok := byKey[entity.Key()]; ok {
			entities[idx] = mergeEntity(entities[idx], entity)
			continue
		}
		byKey[entity.Key()] = len(entities)
		entities = append(entities, entity)
	}

	typeByName := make(map[string]string, len(entities))
	for _, entity := range entities {
		if _, ok := typeByName[entity.Name]; !ok {
			typeByName[entity.Name] = entity.Type
		}
	}

	relationships := make([]common.Relationship, 0, len(res.Relationships))
	for _, raw := range res.Relationships {
		source := strings.TrimSpace(raw.Source)
		target := strings.TrimSpace(raw.Target)
		relType := strings.TrimSpace(raw.Type)
		if source == "" || target == "" || relType == "" {
			continue
		}
		sourceType, ok := typeByName[source]
		if !ok {
			continue
		}
		targetType, ok := typeByName[target]
		if !ok {
			continue
		}
		relationships = append(relationships, common.Relationship{
			SourceName:  source,
			SourceType:  sourceType,
			TargetName:  target,
			TargetType:  targetType,
			Type:        strings.ToUpper(strings.ReplaceAll(relType, " ", "_")),
			Description: strings.TrimSpace(raw.Description),
			ChunkID:     chunkID,
		})
	}

	return common.Extraction{Entities: entities, Relationships: relationships}
}

func (e *Extractor) knownType(entityType string) bool {
	for _, t := range e.entityTypes {
		if strings.EqualFold(t, entityType) {
			return true
		}
	}
	return false
}

// rebindChunk rewrites the chunk provenance of a cached extraction. The same
// text can reappear under a different chunk ID (overlap regions, re-uploads).
func rebindChunk(extraction common.Extraction, chunkID string) common.Extraction {
	for i := range extraction.Entities {
		extraction.Entities[i].ChunkIDs = []string{chunkID}
	}
	for i := range extraction.Relationships {
		extraction.Relationships[i].ChunkID = chunkID
	}
	return extraction
}

func mergeEntity(into, from common.Entity) common.Entity {
	if into.Description == "" {
		into.Description = from.Description
	}
	for k, v := range from.Properties {
		if into.Properties == nil {
			into.Properties = make(map[string]any)
		}
		if _, ok := into.Properties[k]; !ok {
			into.Properties[k] = v
		}
	}
	into.ChunkIDs = mergeChunkIDs(into.ChunkIDs, from.ChunkIDs)
	return into
}

func mergeChunkIDs(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, id := range a {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	for _, id := range b {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// DedupeEntities merges entities sharing a (name, type) key across chunk
// extractions, unioning provenance and keeping the first description.
// Order of first appearance is preserved.
func DedupeEntities(entities []common.Entity) []common.Entity {
	byKey := make(map[string]int, len(entities))
	out := make([]common.Entity, 0, len(entities))
	for _, entity := range entities {
		if idx, ok := byKey[entity.Key()]; ok {
			out[idx] = mergeEntity(out[idx], entity)
			continue
		}
		byKey[entity.Key()] = len(out)
		out = append(out, entity)
	}
	return out
}
