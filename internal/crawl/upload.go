package crawl

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"codedox/internal/extract"
	"codedox/internal/metrics"
	"codedox/internal/model"
	"codedox/internal/store"
)

// UploadParams describes one uploaded file or markdown body.
type UploadParams struct {
	SourceName  string
	Version     *string
	FileName    string
	ContentType string
	URL         string // optional logical URL; defaults to file://<name>/<file>
	Content     string
	Title       string
}

// UploadResult reports what one upload produced.
type UploadResult struct {
	SourceID   uuid.UUID `json:"source_id"`
	DocumentID uuid.UUID `json:"document_id"`
	Snippets   int       `json:"snippet_count"`
	Changed    bool      `json:"changed"`
}

// IngestUpload runs one uploaded document through the same extract,
// annotate, and persist path a crawled page takes. Uploads share the
// unchanged-content skip: re-uploading an identical file is a no-op.
func (p *Pipeline) IngestUpload(ctx context.Context, up UploadParams) (UploadResult, error) {
	if strings.TrimSpace(up.SourceName) == "" {
		return UploadResult{}, model.E(model.KindValidation, "source name is required")
	}
	if strings.TrimSpace(up.Content) == "" {
		return UploadResult{}, model.E(model.KindValidation, "content is empty")
	}

	src, err := p.store.GetOrCreateSource(ctx, up.SourceName, up.Version, "", model.SourceKindUpload)
	if err != nil {
		return UploadResult{}, err
	}

	docURL := up.URL
	if docURL == "" {
		docURL = "file://" + up.SourceName + "/" + up.FileName
	}

	limits := extract.Limits{
		MaxBlockSize:     p.cfg.Code.MaxCodeBlockSize,
		MinLines:         p.cfg.Code.MinCodeLines,
		MaxContextLength: p.cfg.Code.MaxContextLength,
	}
	extractor := extract.ForContent(up.ContentType, up.FileName, limits)
	blocks, err := extractor.Extract(up.Content, docURL)
	if err != nil {
		return UploadResult{}, err
	}

	snippets := make([]model.CodeSnippet, len(blocks))
	for i, b := range blocks {
		snippets[i] = model.CodeSnippet{
			Language:    b.Language,
			Code:        b.Code,
			Title:       b.Context.Title,
			Description: b.Context.Description,
			Filename:    b.Filename,
			Hierarchy:   b.Context.Hierarchy,
			StartLine:   b.StartLine,
			EndLine:     b.EndLine,
			CodeHash:    store.Hash(b.Code),
		}
	}
	p.annotator.AnnotateBlocks(ctx, snippets, blocks)

	title := up.Title
	if title == "" {
		title = up.FileName
	}

	markdown := up.Content
	if strings.Contains(strings.ToLower(up.ContentType), "html") ||
		strings.HasSuffix(strings.ToLower(up.FileName), ".html") {
		markdown = extract.ToMarkdown(up.Content, docURL)
	}

	result, inserted, err := p.store.IngestDocument(ctx, store.UpsertDocumentParams{
		SourceID:    src.ID,
		URL:         docURL,
		Title:       title,
		ContentHash: store.Hash(normalizeContent(up.Content)),
		Markdown:    markdown,
	}, snippets)
	if err != nil {
		return UploadResult{}, err
	}

	if result.Changed {
		metrics.RecordSnippets(inserted)
	}
	return UploadResult{
		SourceID:   src.ID,
		DocumentID: result.DocumentID,
		Snippets:   inserted,
		Changed:    result.Changed,
	}, nil
}
