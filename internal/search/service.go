package search

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"codedox/internal/config"
	"codedox/internal/metrics"
	"codedox/internal/model"
	"codedox/internal/store"
)

// Service is the query surface behind both the HTTP API and the MCP
// tools. It owns pagination, library resolution, and markdown chunking;
// ranking itself lives in the store.
type Service struct {
	cfg   *config.Config
	store *store.Store
}

func NewService(cfg *config.Config, st *store.Store) *Service {
	return &Service{cfg: cfg, store: st}
}

// Page carries the shared pagination envelope.
type Page struct {
	Total int `json:"total"`
	Page  int `json:"page"`
	Pages int `json:"pages"`
}

func paginate(total, limit, page int) Page {
	pages := 0
	if limit > 0 {
		pages = (total + limit - 1) / limit
	}
	return Page{Total: total, Page: page, Pages: pages}
}

// clampPaging normalizes page and limit against configured bounds.
func (s *Service) clampPaging(limit, page int) (int, int) {
	if limit <= 0 {
		limit = s.cfg.Search.DefaultMaxResults
	}
	if limit > s.cfg.Search.MaxResults {
		limit = s.cfg.Search.MaxResults
	}
	if page < 1 {
		page = 1
	}
	return limit, page
}

// LibrariesResult is the search_libraries response.
type LibrariesResult struct {
	Libraries []model.Source `json:"libraries"`
	Page
}

// SearchLibraries ranks sources against a free-text query.
func (s *Service) SearchLibraries(ctx context.Context, query string, limit, page int) (LibrariesResult, error) {
	limit, page = s.clampPaging(limit, page)
	srcs, total, err := s.store.SearchSources(ctx, query, limit, (page-1)*limit)
	if err != nil {
		return LibrariesResult{}, err
	}
	if srcs == nil {
		srcs = []model.Source{}
	}
	return LibrariesResult{Libraries: srcs, Page: paginate(total, limit, page)}, nil
}

// SnippetsResult is the get_content / search response. Degraded marks
// results produced by the substring fallback instead of ranked FTS.
type SnippetsResult struct {
	Snippets []model.CodeSnippet `json:"snippets"`
	Library  *model.Source       `json:"library,omitempty"`
	Degraded bool                `json:"degraded,omitempty"`
	Page
}

// searchWithFallback runs the ranked search and falls back to the
// degraded substring path when the full-text query cannot execute.
func (s *Service) searchWithFallback(ctx context.Context, f store.SnippetFilter) ([]model.CodeSnippet, int, bool, error) {
	snippets, total, err := s.store.SearchSnippets(ctx, f)
	if err == nil || strings.TrimSpace(f.Query) == "" {
		return snippets, total, false, err
	}
	if !model.IsKind(err, model.KindStorage) {
		return nil, 0, false, err
	}
	snippets, total, likeErr := s.store.SearchSnippetsLike(ctx, f)
	if likeErr != nil {
		return nil, 0, false, err
	}
	return snippets, total, true, nil
}

// GetContent resolves a library by UUID, exact name, or unique prefix,
// then searches its snippets. An empty query returns the most recent
// snippets.
func (s *Service) GetContent(ctx context.Context, libraryID, query, language string, limit, page int) (SnippetsResult, error) {
	if strings.TrimSpace(libraryID) == "" {
		return SnippetsResult{}, model.E(model.KindValidation, "library_id is required")
	}
	src, err := s.store.ResolveSource(ctx, libraryID)
	if err != nil {
		return SnippetsResult{}, err
	}

	limit, page = s.clampPaging(limit, page)
	snippets, total, degraded, err := s.searchWithFallback(ctx, store.SnippetFilter{
		Query:    query,
		SourceID: &src.ID,
		Language: language,
		Limit:    limit,
		Offset:   (page - 1) * limit,
	})
	if err != nil {
		return SnippetsResult{}, err
	}
	if snippets == nil {
		snippets = []model.CodeSnippet{}
	}
	metrics.RecordSearch(len(snippets))
	return SnippetsResult{Snippets: snippets, Library: &src, Degraded: degraded, Page: paginate(total, limit, page)}, nil
}

// SearchSnippets is the cross-library snippet search. The source filter
// accepts the same identifiers as GetContent.
func (s *Service) SearchSnippets(ctx context.Context, query, sourceIDOrName, language string, limit, page int) (SnippetsResult, error) {
	var sourceID *uuid.UUID
	var library *model.Source
	if strings.TrimSpace(sourceIDOrName) != "" {
		src, err := s.store.ResolveSource(ctx, sourceIDOrName)
		if err != nil {
			return SnippetsResult{}, err
		}
		sourceID = &src.ID
		library = &src
	}

	limit, page = s.clampPaging(limit, page)
	snippets, total, degraded, err := s.searchWithFallback(ctx, store.SnippetFilter{
		Query:    query,
		SourceID: sourceID,
		Language: language,
		Limit:    limit,
		Offset:   (page - 1) * limit,
	})
	if err != nil {
		return SnippetsResult{}, err
	}
	if snippets == nil {
		snippets = []model.CodeSnippet{}
	}
	metrics.RecordSearch(len(snippets))
	return SnippetsResult{Snippets: snippets, Library: library, Degraded: degraded, Page: paginate(total, limit, page)}, nil
}

// PageMarkdownResult is the get_page_markdown response. Content holds
// the requested chunk when chunking applies, or the whole body.
type PageMarkdownResult struct {
	Status      string         `json:"status"`
	Content     string         `json:"markdown_content"`
	ChunkIndex  int            `json:"chunk_index"`
	TotalChunks int            `json:"total_chunks"`
	Document    model.Document `json:"document"`
	Source      model.Source   `json:"source"`
}

const defaultMaxTokens = 2048

// GetPageMarkdown returns the stored markdown for a URL, chunked to the
// requested token budget. A query highlights matches and promotes the
// first matching chunk when no explicit chunk is requested.
func (s *Service) GetPageMarkdown(ctx context.Context, pageURL, query string, maxTokens, chunkIndex int) (PageMarkdownResult, error) {
	if strings.TrimSpace(pageURL) == "" {
		return PageMarkdownResult{}, model.E(model.KindValidation, "url is required")
	}

	doc, src, err := s.store.GetPageMarkdown(ctx, pageURL)
	if err != nil {
		return PageMarkdownResult{}, err
	}
	if doc.Markdown == "" {
		return PageMarkdownResult{}, model.E(model.KindNotFound, "no stored markdown for "+pageURL)
	}

	body := doc.Markdown
	if query != "" {
		body = highlight(body, query)
	}

	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	maxChars := maxTokens * s.cfg.Search.CharsPerToken
	chunks := chunk(body, maxChars, s.cfg.Search.ChunkOverlapPercent)

	if query != "" && chunkIndex == 0 {
		chunkIndex = firstMatchingChunk(chunks, query)
	}
	if chunkIndex < 0 || chunkIndex >= len(chunks) {
		return PageMarkdownResult{}, model.E(model.KindValidation, "chunk_index out of range")
	}

	return PageMarkdownResult{
		Status:      "ok",
		Content:     chunks[chunkIndex],
		ChunkIndex:  chunkIndex,
		TotalChunks: len(chunks),
		Document:    doc,
		Source:      src,
	}, nil
}

// highlight wraps case-insensitive query term matches in ** markers.
func highlight(body, query string) string {
	terms := strings.Fields(query)
	if len(terms) == 0 {
		return body
	}

	lower := strings.ToLower(body)
	var b strings.Builder
	i := 0
	for i < len(body) {
		matched := 0
		for _, term := range terms {
			t := strings.ToLower(term)
			if strings.HasPrefix(lower[i:], t) {
				matched = len(term)
				break
			}
		}
		if matched > 0 {
			b.WriteString("**")
			b.WriteString(body[i : i+matched])
			b.WriteString("**")
			i += matched
			continue
		}
		b.WriteByte(body[i])
		i++
	}
	return b.String()
}

func firstMatchingChunk(chunks []string, query string) int {
	terms := strings.Fields(strings.ToLower(query))
	for i, c := range chunks {
		lower := strings.ToLower(c)
		for _, t := range terms {
			if strings.Contains(lower, t) {
				return i
			}
		}
	}
	return 0
}
