package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"codedox/internal/model"
)

const sourceColumns = `id, name, version, base_url, kind, created_at, updated_at`

func scanSource(row interface{ Scan(...any) error }) (model.Source, error) {
	var s model.Source
	var version sql.NullString
	err := row.Scan(&s.ID, &s.Name, &version, &s.BaseURL, &s.Kind, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return model.Source{}, err
	}
	if version.Valid {
		s.Version = &version.String
	}
	return s, nil
}

// CreateSource inserts a new source row. A (name, version) collision maps
// to a ConflictError.
func (s *Store) CreateSource(ctx context.Context, name string, version *string, baseURL string, kind model.SourceKind) (model.Source, error) {
	var ver sql.NullString
	if version != nil {
		ver = sql.NullString{String: *version, Valid: true}
	}

	row := s.DB.QueryRowContext(ctx, `
		INSERT INTO sources (id, name, version, base_url, kind)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+sourceColumns,
		uuid.New(), name, ver, baseURL, string(kind))

	src, err := scanSource(row)
	if err != nil {
		return model.Source{}, classify(err, "create source")
	}
	return src, nil
}

// GetOrCreateSource returns the source with the given (name, version),
// creating it if absent. Used by the crawl pipeline on first document write.
func (s *Store) GetOrCreateSource(ctx context.Context, name string, version *string, baseURL string, kind model.SourceKind) (model.Source, error) {
	src, err := s.GetSourceByNameVersion(ctx, name, version)
	if err == nil {
		return src, nil
	}
	if !model.IsKind(err, model.KindNotFound) {
		return model.Source{}, err
	}

	src, err = s.CreateSource(ctx, name, version, baseURL, kind)
	if err != nil && model.IsKind(err, model.KindConflict) {
		// Created concurrently; fetch the existing row.
		return s.GetSourceByNameVersion(ctx, name, version)
	}
	return src, err
}

// GetSourceByID fetches one source with its document and snippet counts.
func (s *Store) GetSourceByID(ctx context.Context, id uuid.UUID) (model.Source, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT `+sourceColumns+` FROM sources WHERE id = $1`, id)
	src, err := scanSource(row)
	if err != nil {
		return model.Source{}, classify(err, "get source")
	}
	if err := s.fillSourceCounts(ctx, &src); err != nil {
		return model.Source{}, err
	}
	return src, nil
}

// GetSourceByNameVersion fetches a source by its unique (name, version) key.
func (s *Store) GetSourceByNameVersion(ctx context.Context, name string, version *string) (model.Source, error) {
	var row *sql.Row
	if version == nil {
		row = s.DB.QueryRowContext(ctx, `
			SELECT `+sourceColumns+` FROM sources WHERE name = $1 AND version IS NULL`, name)
	} else {
		row = s.DB.QueryRowContext(ctx, `
			SELECT `+sourceColumns+` FROM sources WHERE name = $1 AND version = $2`, name, *version)
	}
	src, err := scanSource(row)
	if err != nil {
		return model.Source{}, classify(err, "get source by name")
	}
	return src, nil
}

// ResolveSource accepts either a UUID or a library name. Names match
// case-insensitively; an exact match wins, otherwise a unique prefix is
// accepted. An ambiguous prefix maps to a ConflictError.
func (s *Store) ResolveSource(ctx context.Context, idOrName string) (model.Source, error) {
	if id, err := uuid.Parse(idOrName); err == nil {
		return s.GetSourceByID(ctx, id)
	}

	row := s.DB.QueryRowContext(ctx, `
		SELECT `+sourceColumns+` FROM sources WHERE lower(name) = lower($1)
		ORDER BY updated_at DESC LIMIT 1`, idOrName)
	src, err := scanSource(row)
	if err == nil {
		if err := s.fillSourceCounts(ctx, &src); err != nil {
			return model.Source{}, err
		}
		return src, nil
	}
	if err != sql.ErrNoRows {
		return model.Source{}, classify(err, "resolve source")
	}

	// Nearest unique prefix.
	rows, err := s.DB.QueryContext(ctx, `
		SELECT `+sourceColumns+` FROM sources
		WHERE lower(name) LIKE lower($1) || '%' ESCAPE '\'
		LIMIT 2`, likeEscape(idOrName))
	if err != nil {
		return model.Source{}, classify(err, "resolve source prefix")
	}
	defer rows.Close()

	var matches []model.Source
	for rows.Next() {
		m, err := scanSource(rows)
		if err != nil {
			return model.Source{}, classify(err, "resolve source prefix")
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return model.Source{}, classify(err, "resolve source prefix")
	}

	switch len(matches) {
	case 0:
		return model.Source{}, model.E(model.KindNotFound, fmt.Sprintf("no library matches %q", idOrName))
	case 1:
		src := matches[0]
		if err := s.fillSourceCounts(ctx, &src); err != nil {
			return model.Source{}, err
		}
		return src, nil
	default:
		return model.Source{}, model.E(model.KindConflict, fmt.Sprintf("library name %q is ambiguous", idOrName))
	}
}

// SearchSources ranks sources against a free-text query over name and
// version: exact name first, then prefix, then substring.
func (s *Store) SearchSources(ctx context.Context, query string, limit, offset int) ([]model.Source, int, error) {
	query = strings.TrimSpace(query)
	pattern := "%" + likeEscape(query) + "%"

	var total int
	err := s.DB.QueryRowContext(ctx, `
		SELECT count(*) FROM sources
		WHERE $1 = '' OR name ILIKE $2 ESCAPE '\' OR coalesce(version, '') ILIKE $2 ESCAPE '\'`,
		query, pattern).Scan(&total)
	if err != nil {
		return nil, 0, classify(err, "count sources")
	}

	rows, err := s.DB.QueryContext(ctx, `
		SELECT `+sourceColumns+` FROM sources
		WHERE $1 = '' OR name ILIKE $2 ESCAPE '\' OR coalesce(version, '') ILIKE $2 ESCAPE '\'
		ORDER BY
			(lower(name) = lower($1)) DESC,
			(lower(name) LIKE lower($3) || '%' ESCAPE '\') DESC,
			updated_at DESC,
			id
		LIMIT $4 OFFSET $5`,
		query, pattern, likeEscape(query), limit, offset)
	if err != nil {
		return nil, 0, classify(err, "search sources")
	}
	defer rows.Close()

	var out []model.Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, 0, classify(err, "search sources")
		}
		out = append(out, src)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, classify(err, "search sources")
	}

	for i := range out {
		if err := s.fillSourceCounts(ctx, &out[i]); err != nil {
			return nil, 0, err
		}
	}
	return out, total, nil
}

// ListSources returns all sources ordered by most recent update.
func (s *Store) ListSources(ctx context.Context) ([]model.Source, error) {
	srcs, _, err := s.SearchSources(ctx, "", 1000, 0)
	return srcs, err
}

// RenameSource updates the (name, version) pair. On a uniqueness conflict
// the row is left untouched and a ConflictError returned.
func (s *Store) RenameSource(ctx context.Context, id uuid.UUID, name string, version *string) (model.Source, error) {
	var ver sql.NullString
	if version != nil {
		ver = sql.NullString{String: *version, Valid: true}
	}

	row := s.DB.QueryRowContext(ctx, `
		UPDATE sources SET name = $2, version = $3, updated_at = now()
		WHERE id = $1
		RETURNING `+sourceColumns, id, name, ver)
	src, err := scanSource(row)
	if err != nil {
		return model.Source{}, classify(err, "rename source")
	}
	return src, nil
}

// DeleteSource removes a source; documents and snippets cascade.
func (s *Store) DeleteSource(ctx context.Context, id uuid.UUID) error {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM sources WHERE id = $1`, id)
	if err != nil {
		return classify(err, "delete source")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.E(model.KindNotFound, "source not found")
	}
	return nil
}

// BulkDeleteSources removes several sources in bounded chunks so a single
// transaction never grows too large.
func (s *Store) BulkDeleteSources(ctx context.Context, ids []uuid.UUID) (int, error) {
	const chunk = 10
	deleted := 0
	for start := 0; start < len(ids); start += chunk {
		end := start + chunk
		if end > len(ids) {
			end = len(ids)
		}
		for _, id := range ids[start:end] {
			if err := s.DeleteSource(ctx, id); err != nil {
				if model.IsKind(err, model.KindNotFound) {
					continue
				}
				return deleted, err
			}
			deleted++
		}
	}
	return deleted, nil
}

// SourceSnippetCount returns the number of snippets currently stored for
// the source. The job manager snapshots this as base_snippet_count.
func (s *Store) SourceSnippetCount(ctx context.Context, id uuid.UUID) (int, error) {
	var n int
	err := s.DB.QueryRowContext(ctx, `
		SELECT count(*) FROM code_snippets cs
		JOIN documents d ON d.id = cs.document_id
		WHERE d.source_id = $1`, id).Scan(&n)
	if err != nil {
		return 0, classify(err, "source snippet count")
	}
	return n, nil
}

func (s *Store) fillSourceCounts(ctx context.Context, src *model.Source) error {
	err := s.DB.QueryRowContext(ctx, `
		SELECT
			(SELECT count(*) FROM documents WHERE source_id = $1),
			(SELECT count(*) FROM code_snippets cs JOIN documents d ON d.id = cs.document_id WHERE d.source_id = $1)`,
		src.ID).Scan(&src.DocumentCount, &src.SnippetCount)
	if err != nil {
		return classify(err, "source counts")
	}
	return nil
}
