package chunker

import (
	"strings"
	"testing"
)

func reconstruct(t *testing.T, chunks []testChunk) string {
	t.Helper()
	var b strings.Builder
	prevEnd := 0
	for i, c := range chunks {
		runes := []rune(c.text)
		skip := prevEnd - c.start
		if skip < 0 {
			t.Fatalf("chunk %d starts at %d after previous end %d (gap)", i, c.start, prevEnd)
		}
		b.WriteString(string(runes[skip:]))
		prevEnd = c.end
	}
	return b.String()
}

type testChunk struct {
	start, end int
	text       string
}

func TestNewChunker_InvalidParams(t *testing.T) {
	if _, err := NewChunker(NewChunkerParams{Size: 0, Overlap: 0}); err == nil {
		t.Fatal("expected error for zero size")
	}
	if _, err := NewChunker(NewChunkerParams{Size: 100, Overlap: 100}); err == nil {
		t.Fatal("expected error for overlap == size")
	}
	if _, err := NewChunker(NewChunkerParams{Size: 100, Overlap: -1}); err == nil {
		t.Fatal("expected error for negative overlap")
	}
}

func TestChunk_EmptyText(t *testing.T) {
	c, err := NewChunker(NewChunkerParams{Size: 100, Overlap: 10})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if chunks := c.Chunk("doc", 0, ""); chunks != nil {
		t.Fatalf("expected nil for empty text, got %d chunks", len(chunks))
	}
}

func TestChunk_SingleChunkForShortText(t *testing.T) {
	c, err := NewChunker(NewChunkerParams{Size: 100, Overlap: 10})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	chunks := c.Chunk("doc", 0, "short text")
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Text != "short text" {
		t.Fatalf("unexpected chunk text: %q", chunks[0].Text)
	}
	if chunks[0].ID != "doc_chunk_0" {
		t.Fatalf("unexpected chunk ID: %s", chunks[0].ID)
	}
}

func TestChunk_Reconstruction(t *testing.T) {
	text := strings.Repeat("The court ruled on the matter. The parties agreed to settle. ", 50)

	cases := []struct {
		size, overlap int
	}{
		{500, 100},
		{500, 0},
		{100, 30},
		{64, 63},
		{1000, 250},
	}
	for _, tc := range cases {
		c, err := NewChunker(NewChunkerParams{Size: tc.size, Overlap: tc.overlap})
		if err != nil {
			t.Fatalf("size=%d overlap=%d: %v", tc.size, tc.overlap, err)
		}
		chunks := c.Chunk("doc", 0, text)
		if len(chunks) == 0 {
			t.Fatalf("size=%d overlap=%d: no chunks", tc.size, tc.overlap)
		}
		tcs := make([]testChunk, len(chunks))
		for i, ch := range chunks {
			tcs[i] = testChunk{start: ch.Start, end: ch.End, text: ch.Text}
		}
		if got := reconstruct(t, tcs); got != text {
			t.Fatalf("size=%d overlap=%d: reconstruction mismatch (got %d chars, want %d)",
				tc.size, tc.overlap, len(got), len(text))
		}
	}
}

func TestChunk_OverlapCarried(t *testing.T) {
	text := strings.Repeat("abcdefghij", 30)
	c, err := NewChunker(NewChunkerParams{Size: 100, Overlap: 20})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	chunks := c.Chunk("doc", 0, text)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i := 1; i < len(chunks); i++ {
		prev := []rune(chunks[i-1].Text)
		cur := []rune(chunks[i].Text)
		carried := chunks[i-1].End - chunks[i].Start
		if carried != 20 {
			t.Fatalf("chunk %d: expected 20 carried chars, got %d", i, carried)
		}
		if string(prev[len(prev)-carried:]) != string(cur[:carried]) {
			t.Fatalf("chunk %d does not start with previous chunk's tail", i)
		}
	}
}

func TestChunk_PrefersSentenceBoundary(t *testing.T) {
	sentence := "This is a sentence that ends cleanly. "
	text := strings.Repeat(sentence, 20)
	c, err := NewChunker(NewChunkerParams{Size: 100, Overlap: 0})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	chunks := c.Chunk("doc", 0, text)
	for i, ch := range chunks[:len(chunks)-1] {
		trimmed := strings.TrimRight(ch.Text, " \n")
		if !strings.HasSuffix(trimmed, ".") {
			t.Fatalf("chunk %d does not end at a sentence boundary: %q", i, ch.Text)
		}
	}
}

func TestChunk_HardCutWithoutBoundaries(t *testing.T) {
	text := strings.Repeat("x", 250)
	c, err := NewChunker(NewChunkerParams{Size: 100, Overlap: 0})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	chunks := c.Chunk("doc", 0, text)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	if len(chunks[0].Text) != 100 || len(chunks[1].Text) != 100 || len(chunks[2].Text) != 50 {
		t.Fatalf("unexpected chunk lengths: %d %d %d",
			len(chunks[0].Text), len(chunks[1].Text), len(chunks[2].Text))
	}
}

func TestChunk_BatchIndexInIDs(t *testing.T) {
	c, err := NewChunker(NewChunkerParams{Size: 50, Overlap: 0})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	chunks := c.Chunk("doc", 2, strings.Repeat("y", 120))
	if chunks[0].ID != "doc_chunk_20000" {
		t.Fatalf("unexpected first chunk ID: %s", chunks[0].ID)
	}
	if chunks[1].ID != "doc_chunk_20001" {
		t.Fatalf("unexpected second chunk ID: %s", chunks[1].ID)
	}
}
