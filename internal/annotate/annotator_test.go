package annotate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"codedox/internal/model"
)

type fakeClient struct {
	mu      sync.Mutex
	batches [][]Input
	err     error
}

func (f *fakeClient) Annotate(_ context.Context, batch []Input) ([]Annotation, error) {
	f.mu.Lock()
	f.batches = append(f.batches, batch)
	f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}
	anns := make([]Annotation, len(batch))
	for i, in := range batch {
		anns[i] = Annotation{
			Language:    "python",
			Title:       "Annotated " + in.Code,
			Description: "LLM description for " + in.Code,
		}
	}
	return anns, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func makeBlocks(n int) ([]model.CodeSnippet, []model.ExtractedCodeBlock) {
	snippets := make([]model.CodeSnippet, n)
	blocks := make([]model.ExtractedCodeBlock, n)
	for i := range snippets {
		code := fmt.Sprintf("code-%d", i)
		snippets[i] = model.CodeSnippet{Code: code}
		blocks[i] = model.ExtractedCodeBlock{Code: code}
		blocks[i].Context.Title = fmt.Sprintf("Section %d", i)
		blocks[i].Context.Description = fmt.Sprintf("Extracted context %d", i)
	}
	return snippets, blocks
}

func TestAnnotateBlocksBatching(t *testing.T) {
	client := &fakeClient{}
	a := NewWithClient(client, 2, 2, testLogger())

	snippets, blocks := makeBlocks(5)
	a.AnnotateBlocks(context.Background(), snippets, blocks)

	if len(client.batches) != 3 {
		t.Fatalf("expected 3 batches for 5 snippets with batch size 2, got %d", len(client.batches))
	}
	total := 0
	for _, b := range client.batches {
		if len(b) > 2 {
			t.Errorf("batch exceeds size limit: %d", len(b))
		}
		total += len(b)
	}
	if total != 5 {
		t.Errorf("batches cover %d snippets, want 5", total)
	}

	for i, sn := range snippets {
		want := "Annotated " + fmt.Sprintf("code-%d", i)
		if sn.Title != want {
			t.Errorf("snippet %d title = %q, want %q", i, sn.Title, want)
		}
	}
}

func TestAnnotateBlocksCarriesExtractedContext(t *testing.T) {
	client := &fakeClient{}
	a := NewWithClient(client, 10, 1, testLogger())

	snippets, blocks := makeBlocks(2)
	snippets[0].Language = "go"
	a.AnnotateBlocks(context.Background(), snippets, blocks)

	if len(client.batches) != 1 {
		t.Fatalf("expected 1 batch, got %d", len(client.batches))
	}
	in := client.batches[0][0]
	if in.Language != "go" || in.Title != "Section 0" || in.Description != "Extracted context 0" {
		t.Errorf("extracted context not forwarded: %+v", in)
	}
}

func TestAnnotateBlocksFailureKeepsContext(t *testing.T) {
	client := &fakeClient{err: errors.New("endpoint down")}
	a := NewWithClient(client, 10, 1, testLogger())

	snippets, blocks := makeBlocks(2)
	snippets[0].Title = "Extractor title"
	snippets[0].Description = "Extractor description"
	a.AnnotateBlocks(context.Background(), snippets, blocks)

	if snippets[0].Title != "Extractor title" || snippets[0].Description != "Extractor description" {
		t.Errorf("failed batch must keep extracted metadata: %+v", snippets[0])
	}
}

func TestAnnotateBlocksDisabled(t *testing.T) {
	a := NewWithClient(nil, 10, 1, testLogger())
	if a.Enabled() {
		t.Fatal("nil client must disable the annotator")
	}

	snippets, blocks := makeBlocks(1)
	snippets[0].Title = "unchanged"
	a.AnnotateBlocks(context.Background(), snippets, blocks)

	if snippets[0].Title != "unchanged" {
		t.Error("disabled annotator must not touch snippets")
	}
}

func TestApplyAnnotation(t *testing.T) {
	// A language from the source is authoritative.
	sn := model.CodeSnippet{Language: "go", Title: "old", Description: "old desc"}
	applyAnnotation(&sn, Annotation{Language: "python", Title: "new", Description: "new desc"})
	if sn.Language != "go" {
		t.Errorf("source language overwritten: %q", sn.Language)
	}
	if sn.Title != "new" || sn.Description != "new desc" {
		t.Errorf("title/description not applied: %+v", sn)
	}

	// Empty LLM fields never erase existing context.
	sn = model.CodeSnippet{Title: "keep", Description: "keep desc"}
	applyAnnotation(&sn, Annotation{Title: "  ", Description: ""})
	if sn.Title != "keep" || sn.Description != "keep desc" {
		t.Errorf("blank annotation erased context: %+v", sn)
	}

	// Missing language is filled, lowercased and trimmed.
	sn = model.CodeSnippet{}
	applyAnnotation(&sn, Annotation{Language: " Python "})
	if sn.Language != "python" {
		t.Errorf("language = %q, want python", sn.Language)
	}
}
