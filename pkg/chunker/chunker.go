package chunker

import (
	"fmt"

	"github.com/lexgraph/lexgraph/internal/util"
	"github.com/lexgraph/lexgraph/pkg/common"

	"github.com/pkoukk/tiktoken-go"
)

const tokenEncoding = "cl100k_base"

// Chunker splits document text into overlapping, offset-stable chunks.
// Splitting prefers paragraph and sentence boundaries near the target size
// and falls back to a hard character cut when none exist in the tolerance
// window.
type Chunker struct {
	size    int
	overlap int
	encoder *tiktoken.Tiktoken
}

// NewChunkerParams contains configuration for creating a Chunker.
// Size and Overlap are measured in characters and must satisfy
// 0 <= Overlap < Size.
type NewChunkerParams struct {
	Size    int
	Overlap int
}

// NewChunker creates a Chunker with the given size and overlap.
func NewChunker(params NewChunkerParams) (*Chunker, error) {
	if params.Size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", params.Size)
	}
	if params.Overlap < 0 || params.Overlap >= params.Size {
		return nil, fmt.Errorf("chunk overlap must satisfy 0 <= overlap < size, got %d", params.Overlap)
	}

	// Token counts are informational only; chunking works without the encoder.
	encoder, err := tiktoken.GetEncoding(tokenEncoding)
	if err != nil {
		encoder = nil
	}

	return &Chunker{
		size:    params.Size,
		overlap: params.Overlap,
		encoder: encoder,
	}, nil
}

// Chunk splits text into an ordered sequence of chunks. Each chunk after the
// first repeats the trailing overlap characters of the previous chunk's span,
// so concatenating chunks with overlaps removed reconstructs the input
// exactly. Offsets are character positions within text.
func (c *Chunker) Chunk(documentID string, batchIndex int, text string) []common.Chunk {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	chunks := make([]common.Chunk, 0, len(runes)/c.size+1)
	start := 0
	index := 0
	for start < len(runes) {
		end := start + c.size
		if end >= len(runes) {
			end = len(runes)
		} else if cut := c.findBoundary(runes, start, end); cut > start {
			end = cut
		}

		chunkText := string(runes[start:end])
		chunks = append(chunks, common.Chunk{
			ID:         util.ChunkID(documentID, batchIndex, index),
			DocumentID: documentID,
			Index:      index,
			Start:      start,
			End:        end,
			Text:       chunkText,
			TokenCount: c.countTokens(chunkText),
		})
		index++

		if end == len(runes) {
			break
		}
		next := end - c.overlap
		if next <= start {
			// Boundary cuts can produce chunks shorter than the overlap;
			// advance without overlap to guarantee progress.
			next = end
		}
		start = next
	}
	return chunks
}

// findBoundary searches backwards from the hard cut for a paragraph break,
// then a sentence ending. The tolerance window is the second half of the
// chunk; cuts earlier than that fall back to the hard cut. Returns the
// position just after the boundary, or 0 if none was found.
func (c *Chunker) findBoundary(runes []rune, start, end int) int {
	lower := start + c.size/2

	for i := end - 1; i > lower; i-- {
		if runes[i] == '\n' && runes[i-1] == '\n' {
			return i + 1
		}
	}

	for i := end - 1; i > lower; i-- {
		if !isSentenceEnd(runes[i-1]) {
			continue
		}
		if runes[i] == ' ' || runes[i] == '\n' {
			return i + 1
		}
	}

	return 0
}

func isSentenceEnd(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

func (c *Chunker) countTokens(text string) int {
	if c.encoder == nil {
		return 0
	}
	return len(c.encoder.Encode(text, nil, nil))
}
