package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"codedox/internal/model"
)

// UpsertDocumentParams identifies one ingested page or file.
type UpsertDocumentParams struct {
	SourceID    uuid.UUID
	URL         string
	Title       string
	Depth       int
	ContentHash string
	Markdown    string
}

// UpsertDocumentResult reports whether the stored content actually changed.
type UpsertDocumentResult struct {
	DocumentID uuid.UUID
	Changed    bool
	// PriorSnippetCount is the snippet count of the unchanged document,
	// used to keep job counters consistent on skip.
	PriorSnippetCount int
}

const documentColumns = `id, source_id, url, title, depth, content_hash, coalesce(markdown, ''), created_at, updated_at`

func scanDocument(row interface{ Scan(...any) error }) (model.Document, error) {
	var d model.Document
	err := row.Scan(&d.ID, &d.SourceID, &d.URL, &d.Title, &d.Depth, &d.ContentHash,
		&d.Markdown, &d.CreatedAt, &d.UpdatedAt)
	return d, err
}

// UpsertDocument inserts or replaces a document row. When the stored
// content hash matches the incoming one the row is left untouched and
// Changed is false; snippets are never modified here.
func (s *Store) UpsertDocument(ctx context.Context, p UpsertDocumentParams) (UpsertDocumentResult, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return UpsertDocumentResult{}, classify(err, "begin upsert document")
	}
	defer tx.Rollback()

	res, err := upsertDocumentTx(ctx, tx, p)
	if err != nil {
		return UpsertDocumentResult{}, err
	}
	if err := tx.Commit(); err != nil {
		return UpsertDocumentResult{}, classify(err, "commit upsert document")
	}
	return res, nil
}

func upsertDocumentTx(ctx context.Context, tx *sql.Tx, p UpsertDocumentParams) (UpsertDocumentResult, error) {
	var existingID uuid.UUID
	var existingHash string
	err := tx.QueryRowContext(ctx, `
		SELECT id, content_hash FROM documents
		WHERE source_id = $1 AND url = $2
		FOR UPDATE`, p.SourceID, p.URL).Scan(&existingID, &existingHash)

	switch {
	case err == sql.ErrNoRows:
		id := uuid.New()
		_, err := tx.ExecContext(ctx, `
			INSERT INTO documents (id, source_id, url, title, depth, content_hash, markdown)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			id, p.SourceID, p.URL, p.Title, p.Depth, p.ContentHash, nullStr(p.Markdown))
		if err != nil {
			return UpsertDocumentResult{}, classify(err, "insert document")
		}
		return UpsertDocumentResult{DocumentID: id, Changed: true}, nil

	case err != nil:
		return UpsertDocumentResult{}, classify(err, "lookup document")

	case existingHash == p.ContentHash:
		var n int
		if err := tx.QueryRowContext(ctx,
			`SELECT count(*) FROM code_snippets WHERE document_id = $1`, existingID).Scan(&n); err != nil {
			return UpsertDocumentResult{}, classify(err, "count document snippets")
		}
		return UpsertDocumentResult{DocumentID: existingID, Changed: false, PriorSnippetCount: n}, nil

	default:
		_, err := tx.ExecContext(ctx, `
			UPDATE documents
			SET title = $2, depth = $3, content_hash = $4, markdown = $5, updated_at = now()
			WHERE id = $1`,
			existingID, p.Title, p.Depth, p.ContentHash, nullStr(p.Markdown))
		if err != nil {
			return UpsertDocumentResult{}, classify(err, "update document")
		}
		return UpsertDocumentResult{DocumentID: existingID, Changed: true}, nil
	}
}

// IngestDocument composes upsert_document and replace_snippets in a single
// transaction. When the content hash is unchanged, snippets are left alone
// and the prior count is reported.
func (s *Store) IngestDocument(ctx context.Context, p UpsertDocumentParams, snippets []model.CodeSnippet) (UpsertDocumentResult, int, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return UpsertDocumentResult{}, 0, classify(err, "begin ingest")
	}
	defer tx.Rollback()

	res, err := upsertDocumentTx(ctx, tx, p)
	if err != nil {
		return UpsertDocumentResult{}, 0, err
	}
	if !res.Changed {
		if err := tx.Commit(); err != nil {
			return UpsertDocumentResult{}, 0, classify(err, "commit ingest")
		}
		return res, res.PriorSnippetCount, nil
	}

	inserted, err := replaceSnippetsTx(ctx, tx, res.DocumentID, snippets)
	if err != nil {
		return UpsertDocumentResult{}, 0, err
	}
	if err := tx.Commit(); err != nil {
		return UpsertDocumentResult{}, 0, classify(err, "commit ingest")
	}
	return res, inserted, nil
}

// GetDocumentByID fetches one document.
func (s *Store) GetDocumentByID(ctx context.Context, id uuid.UUID) (model.Document, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1`, id)
	d, err := scanDocument(row)
	if err != nil {
		return model.Document{}, classify(err, "get document")
	}
	return d, nil
}

// GetDocumentByURL fetches the document for a URL within a source.
func (s *Store) GetDocumentByURL(ctx context.Context, sourceID uuid.UUID, url string) (model.Document, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT `+documentColumns+` FROM documents WHERE source_id = $1 AND url = $2`, sourceID, url)
	d, err := scanDocument(row)
	if err != nil {
		return model.Document{}, classify(err, "get document by url")
	}
	return d, nil
}

// GetPageMarkdown retrieves the stored markdown body for a URL along with
// its document and source, regardless of which source owns the URL.
func (s *Store) GetPageMarkdown(ctx context.Context, url string) (model.Document, model.Source, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT `+documentColumns+` FROM documents WHERE url = $1
		ORDER BY updated_at DESC LIMIT 1`, url)
	d, err := scanDocument(row)
	if err != nil {
		return model.Document{}, model.Source{}, classify(err, "get page markdown")
	}

	srcRow := s.DB.QueryRowContext(ctx, `SELECT `+sourceColumns+` FROM sources WHERE id = $1`, d.SourceID)
	src, err := scanSource(srcRow)
	if err != nil {
		return model.Document{}, model.Source{}, classify(err, "get page markdown source")
	}
	return d, src, nil
}

// ListDocumentsBySource returns a source's documents ordered by URL.
func (s *Store) ListDocumentsBySource(ctx context.Context, sourceID uuid.UUID, limit, offset int) ([]model.Document, int, error) {
	var total int
	if err := s.DB.QueryRowContext(ctx,
		`SELECT count(*) FROM documents WHERE source_id = $1`, sourceID).Scan(&total); err != nil {
		return nil, 0, classify(err, "count documents")
	}

	rows, err := s.DB.QueryContext(ctx, `
		SELECT `+documentColumns+` FROM documents
		WHERE source_id = $1 ORDER BY url LIMIT $2 OFFSET $3`, sourceID, limit, offset)
	if err != nil {
		return nil, 0, classify(err, "list documents")
	}
	defer rows.Close()

	var out []model.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, 0, classify(err, "list documents")
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, classify(err, "list documents")
	}
	return out, total, nil
}

// DocumentSnippetCount returns the number of snippets stored for one
// document.
func (s *Store) DocumentSnippetCount(ctx context.Context, documentID uuid.UUID) (int, error) {
	var n int
	err := s.DB.QueryRowContext(ctx,
		`SELECT count(*) FROM code_snippets WHERE document_id = $1`, documentID).Scan(&n)
	if err != nil {
		return 0, classify(err, "document snippet count")
	}
	return n, nil
}

// ExistingDocumentURLs returns the set of URLs already ingested for a
// source. Resume uses it to recompute the unfinished URL set.
func (s *Store) ExistingDocumentURLs(ctx context.Context, sourceID uuid.UUID) (map[string]struct{}, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT url FROM documents WHERE source_id = $1`, sourceID)
	if err != nil {
		return nil, classify(err, "existing document urls")
	}
	defer rows.Close()

	urls := make(map[string]struct{})
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, classify(err, "existing document urls")
		}
		urls[u] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err, "existing document urls")
	}
	return urls, nil
}
