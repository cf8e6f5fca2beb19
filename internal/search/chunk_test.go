package search

import (
	"strings"
	"testing"
)

func TestChunkShortTextSingleChunk(t *testing.T) {
	got := chunk("hello world", 100, 10)
	if len(got) != 1 || got[0] != "hello world" {
		t.Fatalf("expected single passthrough chunk, got %v", got)
	}
}

func TestChunkRespectsBudget(t *testing.T) {
	text := strings.Repeat("word word word. ", 200)
	chunks := chunk(text, 100, 10)

	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if len(c) > 100 {
			t.Errorf("chunk %d exceeds budget: %d chars", i, len(c))
		}
	}
}

func TestChunkPrefersParagraphBreak(t *testing.T) {
	para := strings.Repeat("a", 70)
	text := para + "\n\n" + strings.Repeat("b", 70)
	chunks := chunk(text, 100, 0)

	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if !strings.HasSuffix(chunks[0], "\n\n") {
		t.Errorf("first chunk must end at the paragraph break, got %q tail", chunks[0][len(chunks[0])-5:])
	}
	if strings.Contains(chunks[1], "a") {
		t.Errorf("second chunk leaked first paragraph: %q", chunks[1][:10])
	}
}

func TestChunkOverlap(t *testing.T) {
	text := strings.Repeat("0123456789 ", 40)
	chunks := chunk(text, 100, 20)

	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	// Neighboring chunks share the overlap region.
	tail := chunks[0][len(chunks[0])-10:]
	if !strings.Contains(chunks[1][:30], tail[:5]) {
		t.Errorf("expected overlap between chunks; tail %q, next head %q", tail, chunks[1][:30])
	}
}

func TestChunkCoversAllText(t *testing.T) {
	text := strings.Repeat("x", 95) + " " + strings.Repeat("y", 95)
	chunks := chunk(text, 100, 0)

	joined := strings.Join(chunks, "")
	if !strings.Contains(joined, strings.Repeat("x", 95)) || !strings.Contains(joined, strings.Repeat("y", 95)) {
		t.Error("chunking lost content")
	}
}

func TestHighlightMarksTerms(t *testing.T) {
	got := highlight("Install the Widget library", "widget install")
	if !strings.Contains(got, "**Install**") {
		t.Errorf("missing case-insensitive highlight: %q", got)
	}
	if !strings.Contains(got, "**Widget**") {
		t.Errorf("missing highlight: %q", got)
	}
	if highlight("unchanged", "") != "unchanged" {
		t.Error("empty query must pass body through")
	}
}

func TestFirstMatchingChunk(t *testing.T) {
	chunks := []string{"nothing here", "the NEEDLE is here", "also nothing"}
	if got := firstMatchingChunk(chunks, "needle"); got != 1 {
		t.Errorf("expected chunk 1, got %d", got)
	}
	if got := firstMatchingChunk(chunks, "absent"); got != 0 {
		t.Errorf("no match must fall back to chunk 0, got %d", got)
	}
}
