package query

import (
	"fmt"
	"sort"
	"strings"

	"github.com/lexgraph/lexgraph/pkg/common"
)

// maxContextEntities caps the entity summary so long expansions cannot crowd
// the text chunks out of the prompt.
const maxContextEntities = 10

// AnswerPrompt is the system prompt for answer synthesis over fused context.
const AnswerPrompt = `You are a careful assistant answering questions about a document collection.

Use only the provided context to answer. The context contains ranked text
chunks and a summary of related entities and their relationships. If the
context does not contain the answer, say so plainly instead of guessing.
Cite facts by referring to the text, not to chunk numbers.`

// buildContext renders the retrieved chunks and graph neighborhood into the
// prompt context. The output is deterministic for a given input: chunks keep
// their fused rank order, entities and relationships are sorted and capped.
func buildContext(chunks []common.ScoredChunk, entities []common.Entity, relationships []common.Relationship) string {
	var b strings.Builder

	b.WriteString("=== Relevant Text Chunks ===\n")
	for i, sc := range chunks {
		fmt.Fprintf(&b, "[%d] %s\n", i+1, strings.TrimSpace(sc.Chunk.Text))
	}

	if len(entities) > 0 {
		sorted := make([]common.Entity, len(entities))
		copy(sorted, entities)
		sort.Slice(sorted, func(i, j int) bool {
			if sorted[i].Name != sorted[j].Name {
				return sorted[i].Name < sorted[j].Name
			}
			return sorted[i].Type < sorted[j].Type
		})
		if len(sorted) > maxContextEntities {
			sorted = sorted[:maxContextEntities]
		}

		b.WriteString("\n=== Related Entities ===\n")
		for _, entity := range sorted {
			fmt.Fprintf(&b, "- %s (%s)", entity.Name, entity.Type)
			if entity.Description != "" {
				fmt.Fprintf(&b, ": %s", entity.Description)
			}
			b.WriteString("\n")
		}

		included := make(map[string]struct{}, len(sorted))
		for _, entity := range sorted {
			included[entity.Key()] = struct{}{}
		}
		var connecting []common.Relationship
		for _, rel := range relationships {
			_, srcOK := included[common.Entity{Name: rel.SourceName, Type: rel.SourceType}.Key()]
			_, tgtOK := included[common.Entity{Name: rel.TargetName, Type: rel.TargetType}.Key()]
			if srcOK && tgtOK {
				connecting = append(connecting, rel)
			}
		}
		sort.Slice(connecting, func(i, j int) bool {
			left, right := connecting[i], connecting[j]
			if left.SourceName != right.SourceName {
				return left.SourceName < right.SourceName
			}
			if left.TargetName != right.TargetName {
				return left.TargetName < right.TargetName
			}
			return left.Type < right.Type
		})
		if len(connecting) > 0 {
			b.WriteString("\n=== Relationships ===\n")
			for _, rel := range connecting {
				fmt.Fprintf(&b, "- %s -[%s]-> %s", rel.SourceName, rel.Type, rel.TargetName)
				if rel.Description != "" {
					fmt.Fprintf(&b, ": %s", rel.Description)
				}
				b.WriteString("\n")
			}
		}
	}

	return b.String()
}
