package util

import (
	"fmt"
	"path/filepath"
	"strings"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// batchOffset spaces chunk indices so that chunk IDs stay unique and ordered
// across batches without coordination between concurrently processed batches.
const batchOffset = 10000

// NewDocumentID derives a document identifier from a file path: the base name
// without extension, sanitized, with a short random suffix to avoid collisions
// between uploads of identically named files.
func NewDocumentID(path string) (string, error) {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = sanitizeID(base)
	if base == "" {
		base = "doc"
	}

	suffix, err := gonanoid.Generate("abcdefghijklmnopqrstuvwxyz0123456789", 8)
	if err != nil {
		return "", fmt.Errorf("failed to generate document ID: %w", err)
	}
	return base + "_" + suffix, nil
}

// ChunkID returns the identifier of the i-th chunk of a batch. Indices are
// offset per batch so IDs remain globally ordered within a document.
func ChunkID(documentID string, batchIndex, chunkIndex int) string {
	return fmt.Sprintf("%s_chunk_%d", documentID, batchIndex*batchOffset+chunkIndex)
}

func sanitizeID(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return strings.Trim(b.String(), "_")
}
