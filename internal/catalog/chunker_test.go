package catalog

import (
	"testing"
)

func TestChunker_Chunk(t *testing.T) {
	c := NewChunker(3, 1)
	chunks := c.Chunk("one two three four five six seven")
	want := []string{"one two three", "three four five", "five six seven"}
	if len(chunks) != len(want) {
		t.Fatalf("got %d chunks %v, want %d", len(chunks), chunks, len(want))
	}
	for i := range want {
		if chunks[i] != want[i] {
			t.Errorf("chunk %d = %q, want %q", i, chunks[i], want[i])
		}
	}
}

func TestChunker_ChunkEmpty(t *testing.T) {
	c := NewChunker(5, 1)
	if chunks := c.Chunk("   \n\t  "); chunks != nil {
		t.Errorf("empty text should return nil, got %v", chunks)
	}
}

func TestChunker_overlapNotSmallerThanSize(t *testing.T) {
	c := NewChunker(2, 5)
	chunks := c.Chunk("a b c")
	if len(chunks) != 2 || chunks[1] != "b c" {
		t.Errorf("step should fall back to one word: %v", chunks)
	}
}

func TestChunkKey(t *testing.T) {
	a := ChunkKey("Vanitas", "The Art Story", 0)
	if a != ChunkKey("Vanitas", "The Art Story", 0) {
		t.Error("chunk key should be deterministic")
	}
	if a == ChunkKey("Vanitas", "The Art Story", 1) {
		t.Error("chunk index should change the key")
	}
	if a == ChunkKey("Vanitas", "Smarthistory", 0) {
		t.Error("source should change the key")
	}
}

func TestPreprocess(t *testing.T) {
	if Preprocess("  a  b \n\t c ") != "a b c" {
		t.Error("expected trimmed and collapsed spaces")
	}
	if got := Preprocess("\ufb01ne\u00a0art \uff21tlas"); got != "fine art Atlas" {
		t.Errorf("compatibility forms not folded: %q", got)
	}
}

func TestTitleFromFilename(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"dutch_golden-age.pdf", "dutch golden age"},
		{"Tenebrism.TXT", "Tenebrism"},
		{"notes", "notes"},
	}
	for _, tt := range tests {
		if got := titleFromFilename(tt.name); got != tt.want {
			t.Errorf("titleFromFilename(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}
