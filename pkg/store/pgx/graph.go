package pgx

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lexgraph/lexgraph/pkg/common"
	"github.com/lexgraph/lexgraph/pkg/store"

	"github.com/jackc/pgx/v5"
)

// UpsertEntities merges entities into the graph keyed by (name, type).
// A non-empty incoming description wins; properties are merged with new
// values over old. Entity-to-chunk links come from each entity's ChunkIDs.
func (s *Store) UpsertEntities(ctx context.Context, entities []common.Entity) error {
	for _, entity := range entities {
		props, err := marshalProperties(entity.Properties)
		if err != nil {
			return fmt.Errorf("failed to encode properties of entity %s: %w", entity.Name, err)
		}

		var entityID int64
		err = s.pool.QueryRow(ctx, `
			INSERT INTO entities (name, type, description, properties)
			VALUES ($1, $2, $3, $4::jsonb)
			ON CONFLICT (name, type) DO UPDATE SET
				description = CASE WHEN EXCLUDED.description <> '' THEN EXCLUDED.description ELSE entities.description END,
				properties = entities.properties || EXCLUDED.properties
			RETURNING id
		`, entity.Name, entity.Type, entity.Description, props).Scan(&entityID)
		if err != nil {
			return fmt.Errorf("failed to upsert entity %s: %w", entity.Name, err)
		}

		chunkIDs := store.DedupeStrings(entity.ChunkIDs)
		if len(chunkIDs) == 0 {
			continue
		}
		batch := &pgx.Batch{}
		for _, chunkID := range chunkIDs {
			batch.Queue(`
				INSERT INTO entity_chunks (entity_id, chunk_id)
				VALUES ($1, $2)
				ON CONFLICT DO NOTHING
			`, entityID, chunkID)
		}
		results := s.pool.SendBatch(ctx, batch)
		for range chunkIDs {
			if _, err := results.Exec(); err != nil {
				results.Close()
				return fmt.Errorf("failed to link entity %s to chunks: %w", entity.Name, err)
			}
		}
		results.Close()
	}
	return nil
}

// UpsertRelationships merges directed edges keyed by endpoints and type.
// Relationships whose endpoints are not in the graph are skipped; the
// extractor already dropped dangling references within a batch, so a miss
// here means a sibling write failed.
func (s *Store) UpsertRelationships(ctx context.Context, relationships []common.Relationship) error {
	for _, rel := range relationships {
		props, err := marshalProperties(rel.Properties)
		if err != nil {
			return fmt.Errorf("failed to encode properties of relationship %s: %w", rel.Type, err)
		}

		_, err = s.pool.Exec(ctx, `
			INSERT INTO relationships (source_id, target_id, type, description, properties, chunk_id)
			SELECT src.id, tgt.id, $5, $6, $7::jsonb, $8
			FROM entities src, entities tgt
			WHERE src.name = $1 AND src.type = $2 AND tgt.name = $3 AND tgt.type = $4
			ON CONFLICT (source_id, target_id, type) DO UPDATE SET
				description = CASE WHEN EXCLUDED.description <> '' THEN EXCLUDED.description ELSE relationships.description END,
				properties = relationships.properties || EXCLUDED.properties
		`, rel.SourceName, rel.SourceType, rel.TargetName, rel.TargetType,
			rel.Type, rel.Description, props, rel.ChunkID)
		if err != nil {
			return fmt.Errorf("failed to upsert relationship %s-[%s]->%s: %w",
				rel.SourceName, rel.Type, rel.TargetName, err)
		}
	}
	return nil
}

// EntitiesForChunks returns the entities mentioned in any of the given
// chunks, ordered by (name, type) for deterministic downstream output.
func (s *Store) EntitiesForChunks(ctx context.Context, chunkIDs []string) ([]common.Entity, error) {
	chunkIDs = store.DedupeStrings(chunkIDs)
	if len(chunkIDs) == 0 {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx, `
		SELECT e.name, e.type, e.description, e.properties, array_agg(DISTINCT ec.chunk_id)
		FROM entities e
		JOIN entity_chunks ec ON ec.entity_id = e.id
		WHERE ec.chunk_id = ANY($1)
		GROUP BY e.id
		ORDER BY e.name, e.type
	`, chunkIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load entities for chunks: %w", err)
	}
	defer rows.Close()

	var out []common.Entity
	for rows.Next() {
		var entity common.Entity
		var props []byte
		if err := rows.Scan(&entity.Name, &entity.Type, &entity.Description, &props, &entity.ChunkIDs); err != nil {
			return nil, err
		}
		if entity.Properties, err = unmarshalProperties(props); err != nil {
			return nil, err
		}
		out = append(out, entity)
	}
	return out, rows.Err()
}

// Neighbors expands breadth-first from the seed entities through
// relationships, up to depth levels. Depth is a strict bound: depth 0
// returns only the seeds and no relationships. Entities are deduplicated
// across depths and already-expanded entities are not revisited, so cycles
// terminate.
func (s *Store) Neighbors(ctx context.Context, seeds []common.Entity, depth int) ([]common.Entity, []common.Relationship, error) {
	entities := make([]common.Entity, len(seeds))
	copy(entities, seeds)
	if depth <= 0 || len(seeds) == 0 {
		return entities, nil, nil
	}

	frontier, err := s.entityIDsByKey(ctx, seeds)
	if err != nil {
		return nil, nil, err
	}

	visited := make(map[int64]struct{}, len(frontier))
	for _, id := range frontier {
		visited[id] = struct{}{}
	}
	seenRels := make(map[string]struct{})
	var relationships []common.Relationship

	for level := 0; level < depth && len(frontier) > 0; level++ {
		next, rels, err := s.expandFrontier(ctx, frontier, visited, seenRels)
		if err != nil {
			return nil, nil, err
		}
		relationships = append(relationships, rels...)
		for _, discovered := range next {
			entities = append(entities, discovered.entity)
		}
		frontier = nextIDs(next)
	}

	return entities, relationships, nil
}

type discoveredEntity struct {
	id     int64
	entity common.Entity
}

func nextIDs(discovered []discoveredEntity) []int64 {
	ids := make([]int64, len(discovered))
	for i, d := range discovered {
		ids[i] = d.id
	}
	return ids
}

// expandFrontier loads all relationships touching the frontier and returns
// the newly discovered endpoint entities plus the new edges.
func (s *Store) expandFrontier(
	ctx context.Context,
	frontier []int64,
	visited map[int64]struct{},
	seenRels map[string]struct{},
) ([]discoveredEntity, []common.Relationship, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT r.source_id, r.target_id, r.type, r.description, r.properties, r.chunk_id,
		       src.name, src.type, src.description, src.properties,
		       tgt.name, tgt.type, tgt.description, tgt.properties
		FROM relationships r
		JOIN entities src ON src.id = r.source_id
		JOIN entities tgt ON tgt.id = r.target_id
		WHERE r.source_id = ANY($1) OR r.target_id = ANY($1)
		ORDER BY src.name, tgt.name, r.type
	`, frontier)
	if err != nil {
		return nil, nil, fmt.Errorf("graph expansion failed: %w", err)
	}
	defer rows.Close()

	var discovered []discoveredEntity
	var relationships []common.Relationship
	for rows.Next() {
		var sourceID, targetID int64
		var rel common.Relationship
		var relProps, srcProps, tgtProps []byte
		var src, tgt common.Entity
		err := rows.Scan(
			&sourceID, &targetID, &rel.Type, &rel.Description, &relProps, &rel.ChunkID,
			&src.Name, &src.Type, &src.Description, &srcProps,
			&tgt.Name, &tgt.Type, &tgt.Description, &tgtProps,
		)
		if err != nil {
			return nil, nil, err
		}

		rel.SourceName, rel.SourceType = src.Name, src.Type
		rel.TargetName, rel.TargetType = tgt.Name, tgt.Type
		if rel.Properties, err = unmarshalProperties(relProps); err != nil {
			return nil, nil, err
		}

		relKey := fmt.Sprintf("%d-%d-%s", sourceID, targetID, rel.Type)
		if _, ok := seenRels[relKey]; !ok {
			seenRels[relKey] = struct{}{}
			relationships = append(relationships, rel)
		}

		if _, ok := visited[sourceID]; !ok {
			visited[sourceID] = struct{}{}
			if src.Properties, err = unmarshalProperties(srcProps); err != nil {
				return nil, nil, err
			}
			discovered = append(discovered, discoveredEntity{id: sourceID, entity: src})
		}
		if _, ok := visited[targetID]; !ok {
			visited[targetID] = struct{}{}
			if tgt.Properties, err = unmarshalProperties(tgtProps); err != nil {
				return nil, nil, err
			}
			discovered = append(discovered, discoveredEntity{id: targetID, entity: tgt})
		}
	}
	return discovered, relationships, rows.Err()
}

// entityIDsByKey resolves internal entity IDs by (name, type).
func (s *Store) entityIDsByKey(ctx context.Context, entities []common.Entity) ([]int64, error) {
	names := make([]string, len(entities))
	types := make([]string, len(entities))
	for i, entity := range entities {
		names[i] = entity.Name
		types[i] = entity.Type
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id FROM entities
		WHERE (name, type) IN (SELECT unnest($1::text[]), unnest($2::text[]))
	`, names, types)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve entity IDs: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func marshalProperties(props map[string]any) (string, error) {
	if len(props) == 0 {
		return "{}", nil
	}
	encoded, err := json.Marshal(props)
	if err != nil {
		return "", err
	}
	return string(encoded), nil
}

func unmarshalProperties(raw []byte) (map[string]any, error) {
	if len(raw) == 0 || string(raw) == "{}" {
		return nil, nil
	}
	var props map[string]any
	if err := json.Unmarshal(raw, &props); err != nil {
		return nil, fmt.Errorf("failed to decode stored properties: %w", err)
	}
	return props, nil
}
