package store

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"codedox/internal/model"
)

// SnippetFilter narrows a snippet search. A nil SourceID searches every
// source; an empty Query returns recent snippets instead of ranking.
type SnippetFilter struct {
	Query    string
	SourceID *uuid.UUID
	Language string
	Limit    int
	Offset   int
}

// SearchSnippets runs a weighted full-text search over snippet titles,
// descriptions and code. Results are ordered by rank, then recency, then
// ID so pagination is stable.
func (s *Store) SearchSnippets(ctx context.Context, f SnippetFilter) ([]model.CodeSnippet, int, error) {
	if strings.TrimSpace(f.Query) == "" {
		return s.recentSnippets(ctx, f)
	}

	var sourceID uuid.NullUUID
	if f.SourceID != nil {
		sourceID = uuid.NullUUID{UUID: *f.SourceID, Valid: true}
	}

	const where = `
		cs.search_vector @@ websearch_to_tsquery('english', $1)
		AND ($2::uuid IS NULL OR d.source_id = $2)
		AND ($3 = '' OR lower(cs.language) = lower($3))`

	var total int
	err := s.DB.QueryRowContext(ctx, `
		SELECT count(*)
		FROM code_snippets cs
		JOIN documents d ON d.id = cs.document_id
		WHERE `+where, f.Query, sourceID, f.Language).Scan(&total)
	if err != nil {
		return nil, 0, classify(err, "count search results")
	}

	rows, err := s.DB.QueryContext(ctx, `
		SELECT `+snippetColumns+`, d.url, src.name
		FROM code_snippets cs
		JOIN documents d ON d.id = cs.document_id
		JOIN sources src ON src.id = d.source_id
		WHERE `+where+`
		ORDER BY ts_rank(cs.search_vector, websearch_to_tsquery('english', $1)) DESC,
			cs.updated_at DESC, cs.id
		LIMIT $4 OFFSET $5`,
		f.Query, sourceID, f.Language, f.Limit, f.Offset)
	if err != nil {
		return nil, 0, classify(err, "search snippets")
	}
	defer rows.Close()

	out, err := collectSnippets(rows)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// SearchSnippetsLike is the degraded ranking path: plain substring
// matching over title, description and code, newest first. Used when
// the full-text query cannot be executed.
func (s *Store) SearchSnippetsLike(ctx context.Context, f SnippetFilter) ([]model.CodeSnippet, int, error) {
	var sourceID uuid.NullUUID
	if f.SourceID != nil {
		sourceID = uuid.NullUUID{UUID: *f.SourceID, Valid: true}
	}
	pattern := "%" + f.Query + "%"

	const where = `
		(cs.title ILIKE $1 OR cs.description ILIKE $1 OR cs.code ILIKE $1)
		AND ($2::uuid IS NULL OR d.source_id = $2)
		AND ($3 = '' OR lower(cs.language) = lower($3))`

	var total int
	err := s.DB.QueryRowContext(ctx, `
		SELECT count(*)
		FROM code_snippets cs
		JOIN documents d ON d.id = cs.document_id
		WHERE `+where, pattern, sourceID, f.Language).Scan(&total)
	if err != nil {
		return nil, 0, classify(err, "count degraded search results")
	}

	rows, err := s.DB.QueryContext(ctx, `
		SELECT `+snippetColumns+`, d.url, src.name
		FROM code_snippets cs
		JOIN documents d ON d.id = cs.document_id
		JOIN sources src ON src.id = d.source_id
		WHERE `+where+`
		ORDER BY cs.updated_at DESC, cs.id
		LIMIT $4 OFFSET $5`,
		pattern, sourceID, f.Language, f.Limit, f.Offset)
	if err != nil {
		return nil, 0, classify(err, "degraded search snippets")
	}
	defer rows.Close()

	out, err := collectSnippets(rows)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// recentSnippets is the browse path: no ranking, newest first.
func (s *Store) recentSnippets(ctx context.Context, f SnippetFilter) ([]model.CodeSnippet, int, error) {
	var sourceID uuid.NullUUID
	if f.SourceID != nil {
		sourceID = uuid.NullUUID{UUID: *f.SourceID, Valid: true}
	}

	const where = `
		($1::uuid IS NULL OR d.source_id = $1)
		AND ($2 = '' OR lower(cs.language) = lower($2))`

	var total int
	err := s.DB.QueryRowContext(ctx, `
		SELECT count(*)
		FROM code_snippets cs
		JOIN documents d ON d.id = cs.document_id
		WHERE `+where, sourceID, f.Language).Scan(&total)
	if err != nil {
		return nil, 0, classify(err, "count recent snippets")
	}

	rows, err := s.DB.QueryContext(ctx, `
		SELECT `+snippetColumns+`, d.url, src.name
		FROM code_snippets cs
		JOIN documents d ON d.id = cs.document_id
		JOIN sources src ON src.id = d.source_id
		WHERE `+where+`
		ORDER BY cs.updated_at DESC, cs.id
		LIMIT $3 OFFSET $4`,
		sourceID, f.Language, f.Limit, f.Offset)
	if err != nil {
		return nil, 0, classify(err, "recent snippets")
	}
	defer rows.Close()

	out, err := collectSnippets(rows)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}
