package loader

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestTextLoader(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "contract.txt")
	if err := os.WriteFile(path, []byte("  Section 1. Parties.\n"), 0o600); err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}

	batches, err := TextLoader{}.LoadBatches(context.Background(), path)
	if err != nil {
		t.Fatalf("LoadBatches failed: %v", err)
	}
	if len(batches) != 1 || batches[0] != "Section 1. Parties." {
		t.Fatalf("unexpected batches %q", batches)
	}
}

func TestTextLoaderEmptyFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.txt")
	if err := os.WriteFile(path, []byte("   \n"), 0o600); err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}

	batches, err := TextLoader{}.LoadBatches(context.Background(), path)
	if err != nil {
		t.Fatalf("LoadBatches failed: %v", err)
	}
	if len(batches) != 0 {
		t.Fatalf("expected no batches for blank file, got %q", batches)
	}
}

func TestTextLoaderMissingFile(t *testing.T) {
	if _, err := (TextLoader{}).LoadBatches(context.Background(), "/does/not/exist.txt"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestIsPDF(t *testing.T) {
	if !IsPDF("ruling.PDF") || IsPDF("ruling.txt") {
		t.Fatal("PDF detection by extension failed")
	}
}
