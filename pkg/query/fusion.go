package query

import (
	"sort"

	"github.com/lexgraph/lexgraph/pkg/common"
)

// fuse merges vector and keyword rankings into one list of at most topK
// chunks. Scores within each source are min-max normalized to [0, 1], then
// combined as vectorWeight*vector + keywordWeight*keyword; a chunk absent
// from one source contributes 0 for that source. Ties on the combined score
// break in favor of the better vector rank.
func fuse(vector, keyword []common.ScoredChunk, vectorWeight, keywordWeight float64, topK int) []common.ScoredChunk {
	if topK <= 0 {
		return nil
	}

	vectorNorm := normalize(scoresOf(vector, func(sc common.ScoredChunk) float64 { return sc.VectorScore }))
	keywordNorm := normalize(scoresOf(keyword, func(sc common.ScoredChunk) float64 { return sc.KeywordScore }))

	merged := make(map[string]*common.ScoredChunk)
	vectorRank := make(map[string]int)
	var order []string

	for i, sc := range vector {
		chunk := sc
		chunk.VectorScore = vectorNorm[i]
		merged[sc.Chunk.ID] = &chunk
		vectorRank[sc.Chunk.ID] = i
		order = append(order, sc.Chunk.ID)
	}
	for i, sc := range keyword {
		if existing, ok := merged[sc.Chunk.ID]; ok {
			existing.KeywordScore = keywordNorm[i]
			continue
		}
		chunk := sc
		chunk.VectorScore = 0
		chunk.KeywordScore = keywordNorm[i]
		merged[sc.Chunk.ID] = &chunk
		order = append(order, sc.Chunk.ID)
	}

	out := make([]common.ScoredChunk, 0, len(order))
	for _, id := range order {
		sc := merged[id]
		sc.CombinedScore = vectorWeight*sc.VectorScore + keywordWeight*sc.KeywordScore
		out = append(out, *sc)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CombinedScore != out[j].CombinedScore {
			return out[i].CombinedScore > out[j].CombinedScore
		}
		return rankOf(vectorRank, out[i].Chunk.ID) < rankOf(vectorRank, out[j].Chunk.ID)
	})

	if len(out) > topK {
		out = out[:topK]
	}
	return out
}

func scoresOf(chunks []common.ScoredChunk, score func(common.ScoredChunk) float64) []float64 {
	out := make([]float64, len(chunks))
	for i, sc := range chunks {
		out[i] = score(sc)
	}
	return out
}

// normalize rescales scores to [0, 1]. When all scores are equal every item
// gets 1, so a single-source result set still ranks above absent chunks.
func normalize(scores []float64) []float64 {
	if len(scores) == 0 {
		return nil
	}
	min, max := scores[0], scores[0]
	for _, s := range scores[1:] {
		if s < min {
			min = s
		}
		if s > max {
			max = s
		}
	}
	out := make([]float64, len(scores))
	if max == min {
		for i := range out {
			out[i] = 1
		}
		return out
	}
	for i, s := range scores {
		out[i] = (s - min) / (max - min)
	}
	return out
}

func rankOf(ranks map[string]int, id string) int {
	if rank, ok := ranks[id]; ok {
		return rank
	}
	return len(ranks) + 1
}
