package loader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DocumentLoader reads one document and returns its text split into batches.
// Batches are the unit of ingestion concurrency; an unreadable batch is
// returned as an empty string so sibling batches still ingest.
type DocumentLoader interface {
	LoadBatches(ctx context.Context, path string) ([]string, error)
}

// TextLoader reads a plain-text document as a single batch.
type TextLoader struct{}

func (TextLoader) LoadBatches(ctx context.Context, path string) ([]string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	text := strings.TrimSpace(string(content))
	if text == "" {
		return nil, nil
	}
	return []string{text}, nil
}

// IsPDF reports whether the path looks like a PDF document.
func IsPDF(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".pdf")
}
