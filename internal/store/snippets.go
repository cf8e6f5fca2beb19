package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"codedox/internal/model"
)

const snippetColumns = `cs.id, cs.document_id, cs.language, cs.code, cs.title, cs.description,
	cs.filename, cs.hierarchy, cs.start_line, cs.end_line, cs.code_hash, cs.created_at, cs.updated_at`

func scanSnippet(row interface{ Scan(...any) error }) (model.CodeSnippet, error) {
	var sn model.CodeSnippet
	var hierarchy []byte
	err := row.Scan(&sn.ID, &sn.DocumentID, &sn.Language, &sn.Code, &sn.Title, &sn.Description,
		&sn.Filename, &hierarchy, &sn.StartLine, &sn.EndLine, &sn.CodeHash, &sn.CreatedAt, &sn.UpdatedAt)
	if err != nil {
		return model.CodeSnippet{}, err
	}
	sn.Hierarchy = unmarshalStrings(hierarchy)
	return sn, nil
}

// ReplaceSnippets atomically replaces a document's snippet set. Incoming
// snippets with the same code hash are collapsed keeping the first
// occurrence, so re-extraction never bloats a page. Returns the number
// of snippets inserted.
func (s *Store) ReplaceSnippets(ctx context.Context, documentID uuid.UUID, snippets []model.CodeSnippet) (int, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, classify(err, "begin replace snippets")
	}
	defer tx.Rollback()

	n, err := replaceSnippetsTx(ctx, tx, documentID, snippets)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, classify(err, "commit replace snippets")
	}
	return n, nil
}

func replaceSnippetsTx(ctx context.Context, tx *sql.Tx, documentID uuid.UUID, snippets []model.CodeSnippet) (int, error) {
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM code_snippets WHERE document_id = $1`, documentID); err != nil {
		return 0, classify(err, "delete old snippets")
	}

	seen := make(map[string]struct{}, len(snippets))
	inserted := 0
	for _, sn := range snippets {
		hash := sn.CodeHash
		if hash == "" {
			hash = Hash(sn.Code)
		}
		if _, dup := seen[hash]; dup {
			continue
		}
		seen[hash] = struct{}{}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO code_snippets
				(id, document_id, language, code, title, description, filename, hierarchy, start_line, end_line, code_hash)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			uuid.New(), documentID, sn.Language, sn.Code, sn.Title, sn.Description,
			sn.Filename, marshalStrings(sn.Hierarchy), sn.StartLine, sn.EndLine, hash)
		if err != nil {
			return 0, classify(err, "insert snippet")
		}
		inserted++
	}
	return inserted, nil
}

// GetSnippetByID fetches one snippet with its source URL and name attached.
func (s *Store) GetSnippetByID(ctx context.Context, id uuid.UUID) (model.CodeSnippet, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT `+snippetColumns+`, d.url, src.name
		FROM code_snippets cs
		JOIN documents d ON d.id = cs.document_id
		JOIN sources src ON src.id = d.source_id
		WHERE cs.id = $1`, id)

	var sn model.CodeSnippet
	var hierarchy []byte
	err := row.Scan(&sn.ID, &sn.DocumentID, &sn.Language, &sn.Code, &sn.Title, &sn.Description,
		&sn.Filename, &hierarchy, &sn.StartLine, &sn.EndLine, &sn.CodeHash, &sn.CreatedAt, &sn.UpdatedAt,
		&sn.SourceURL, &sn.SourceName)
	if err != nil {
		return model.CodeSnippet{}, classify(err, "get snippet")
	}
	sn.Hierarchy = unmarshalStrings(hierarchy)
	return sn, nil
}

// FindDuplicateSnippetInSource looks for another snippet in the same
// source that carries the same code hash, excluding the given document.
// The annotator uses it to reuse an existing title and description
// instead of calling the LLM again.
func (s *Store) FindDuplicateSnippetInSource(ctx context.Context, sourceID, excludeDocumentID uuid.UUID, codeHash string) (model.CodeSnippet, bool, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT `+snippetColumns+`
		FROM code_snippets cs
		JOIN documents d ON d.id = cs.document_id
		WHERE d.source_id = $1 AND cs.code_hash = $2 AND cs.document_id <> $3
			AND cs.title <> ''
		ORDER BY cs.updated_at DESC LIMIT 1`,
		sourceID, codeHash, excludeDocumentID)

	sn, err := scanSnippet(row)
	if err == sql.ErrNoRows {
		return model.CodeSnippet{}, false, nil
	}
	if err != nil {
		return model.CodeSnippet{}, false, classify(err, "find duplicate snippet")
	}
	return sn, true, nil
}

// UpdateSnippetAnnotation replaces a snippet's title, description and
// language. Regeneration calls this after re-annotating stored code.
func (s *Store) UpdateSnippetAnnotation(ctx context.Context, id uuid.UUID, title, description, language string) error {
	res, err := s.DB.ExecContext(ctx, `
		UPDATE code_snippets
		SET title = $2, description = $3, language = $4, updated_at = now()
		WHERE id = $1`, id, title, description, language)
	if err != nil {
		return classify(err, "update snippet annotation")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.E(model.KindNotFound, "snippet not found")
	}
	return nil
}

// ListSnippetsBySource pages through every snippet of a source in stable
// order. Regeneration walks this to re-annotate a whole source.
func (s *Store) ListSnippetsBySource(ctx context.Context, sourceID uuid.UUID, limit, offset int) ([]model.CodeSnippet, int, error) {
	var total int
	err := s.DB.QueryRowContext(ctx, `
		SELECT count(*) FROM code_snippets cs
		JOIN documents d ON d.id = cs.document_id
		WHERE d.source_id = $1`, sourceID).Scan(&total)
	if err != nil {
		return nil, 0, classify(err, "count source snippets")
	}

	rows, err := s.DB.QueryContext(ctx, `
		SELECT `+snippetColumns+`, d.url, src.name
		FROM code_snippets cs
		JOIN documents d ON d.id = cs.document_id
		JOIN sources src ON src.id = d.source_id
		WHERE d.source_id = $1
		ORDER BY cs.created_at, cs.id
		LIMIT $2 OFFSET $3`, sourceID, limit, offset)
	if err != nil {
		return nil, 0, classify(err, "list source snippets")
	}
	defer rows.Close()

	out, err := collectSnippets(rows)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// DeleteSnippetsByQuery removes every snippet matching a full-text
// query, optionally scoped to one source. Returns the number deleted.
func (s *Store) DeleteSnippetsByQuery(ctx context.Context, query string, sourceID *uuid.UUID) (int, error) {
	var sid uuid.NullUUID
	if sourceID != nil {
		sid = uuid.NullUUID{UUID: *sourceID, Valid: true}
	}

	res, err := s.DB.ExecContext(ctx, `
		DELETE FROM code_snippets cs
		USING documents d
		WHERE d.id = cs.document_id
			AND cs.search_vector @@ websearch_to_tsquery('english', $1)
			AND ($2::uuid IS NULL OR d.source_id = $2)`,
		query, sid)
	if err != nil {
		return 0, classify(err, "delete snippets by query")
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func collectSnippets(rows *sql.Rows) ([]model.CodeSnippet, error) {
	var out []model.CodeSnippet
	for rows.Next() {
		var sn model.CodeSnippet
		var hierarchy []byte
		err := rows.Scan(&sn.ID, &sn.DocumentID, &sn.Language, &sn.Code, &sn.Title, &sn.Description,
			&sn.Filename, &hierarchy, &sn.StartLine, &sn.EndLine, &sn.CodeHash, &sn.CreatedAt, &sn.UpdatedAt,
			&sn.SourceURL, &sn.SourceName)
		if err != nil {
			return nil, classify(err, "scan snippet")
		}
		sn.Hierarchy = unmarshalStrings(hierarchy)
		out = append(out, sn)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err, "scan snippets")
	}
	return out, nil
}
