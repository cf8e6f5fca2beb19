package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"codedox/internal/model"
)

const jobColumns = `id, source_id, name, start_urls, max_depth, include_patterns, exclude_patterns,
	domain_filter, max_concurrent, max_pages, status, phase,
	pages_crawled, pages_skipped_unchanged, snippets_extracted, failed_page_count,
	base_snippet_count, retry_generation, version, heartbeat_at, error, started_at, completed_at, created_at`

func scanJob(row interface{ Scan(...any) error }) (model.CrawlJob, error) {
	var j model.CrawlJob
	var sourceID uuid.NullUUID
	var startURLs, include, exclude []byte
	var phase, errText sql.NullString
	var heartbeat, started, completed sql.NullTime

	err := row.Scan(&j.ID, &sourceID, &j.Name, &startURLs, &j.MaxDepth, &include, &exclude,
		&j.DomainFilter, &j.MaxConcurrentCrawls, &j.MaxPages, &j.Status, &phase,
		&j.PagesCrawled, &j.PagesSkippedUnchanged, &j.SnippetsExtracted, &j.FailedPageCount,
		&j.BaseSnippetCount, &j.RetryGeneration, &j.Version, &heartbeat, &errText, &started, &completed, &j.CreatedAt)
	if err != nil {
		return model.CrawlJob{}, err
	}

	if sourceID.Valid {
		id := sourceID.UUID
		j.SourceID = &id
	}
	j.StartURLs = unmarshalStrings(startURLs)
	j.IncludePatterns = unmarshalStrings(include)
	j.ExcludePatterns = unmarshalStrings(exclude)
	j.Phase = model.JobPhase(phase.String)
	j.Error = errText.String
	if heartbeat.Valid {
		t := heartbeat.Time
		j.HeartbeatAt = &t
	}
	if started.Valid {
		t := started.Time
		j.StartedAt = &t
	}
	if completed.Valid {
		t := completed.Time
		j.CompletedAt = &t
	}
	return j, nil
}

// InsertCrawlJob persists a new job in pending state.
func (s *Store) InsertCrawlJob(ctx context.Context, j model.CrawlJob) error {
	var sourceID uuid.NullUUID
	if j.SourceID != nil {
		sourceID = uuid.NullUUID{UUID: *j.SourceID, Valid: true}
	}

	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO crawl_jobs
			(id, source_id, name, start_urls, max_depth, include_patterns, exclude_patterns,
			 domain_filter, max_concurrent, max_pages, status, base_snippet_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		j.ID, sourceID, j.Name, marshalStrings(j.StartURLs), j.MaxDepth,
		marshalStrings(j.IncludePatterns), marshalStrings(j.ExcludePatterns),
		j.DomainFilter, j.MaxConcurrentCrawls, j.MaxPages, string(model.JobPending), j.BaseSnippetCount)
	if err != nil {
		return classify(err, "insert crawl job")
	}
	return nil
}

// GetCrawlJob fetches one job by ID.
func (s *Store) GetCrawlJob(ctx context.Context, id uuid.UUID) (model.CrawlJob, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM crawl_jobs WHERE id = $1`, id)
	j, err := scanJob(row)
	if err != nil {
		return model.CrawlJob{}, classify(err, "get crawl job")
	}
	return j, nil
}

// ListCrawlJobs returns jobs newest-first, optionally filtered by status.
func (s *Store) ListCrawlJobs(ctx context.Context, status model.JobStatus, limit, offset int) ([]model.CrawlJob, int, error) {
	var total int
	err := s.DB.QueryRowContext(ctx, `
		SELECT count(*) FROM crawl_jobs WHERE $1 = '' OR status = $1`, string(status)).Scan(&total)
	if err != nil {
		return nil, 0, classify(err, "count crawl jobs")
	}

	rows, err := s.DB.QueryContext(ctx, `
		SELECT `+jobColumns+` FROM crawl_jobs
		WHERE $1 = '' OR status = $1
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3`, string(status), limit, offset)
	if err != nil {
		return nil, 0, classify(err, "list crawl jobs")
	}
	defer rows.Close()

	var out []model.CrawlJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, 0, classify(err, "list crawl jobs")
		}
		out = append(out, j)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, classify(err, "list crawl jobs")
	}
	return out, total, nil
}

// ListActiveJobs returns jobs in pending or running state. The health
// monitor scans these for stalled heartbeats.
func (s *Store) ListActiveJobs(ctx context.Context) ([]model.CrawlJob, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT `+jobColumns+` FROM crawl_jobs
		WHERE status IN ('pending', 'running')
		ORDER BY created_at`)
	if err != nil {
		return nil, classify(err, "list active jobs")
	}
	defer rows.Close()

	var out []model.CrawlJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, classify(err, "list active jobs")
		}
		out = append(out, j)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err, "list active jobs")
	}
	return out, nil
}

// TransitionJob performs a compare-and-set status change guarded by the
// row version. The transition must be legal under the job state machine;
// a lost race or illegal transition maps to a ConflictError.
func (s *Store) TransitionJob(ctx context.Context, id uuid.UUID, expectVersion int, next model.JobStatus, errMsg string) (model.CrawlJob, error) {
	cur, err := s.GetCrawlJob(ctx, id)
	if err != nil {
		return model.CrawlJob{}, err
	}
	if !cur.Status.CanTransitionTo(next) {
		return model.CrawlJob{}, model.E(model.KindConflict,
			fmt.Sprintf("job %s cannot go from %s to %s", id, cur.Status, next))
	}

	setStarted := next == model.JobRunning && cur.StartedAt == nil
	setCompleted := next.Terminal()

	row := s.DB.QueryRowContext(ctx, `
		UPDATE crawl_jobs
		SET status = $3,
			error = CASE WHEN $4 = '' THEN error ELSE $4 END,
			started_at = CASE WHEN $5 THEN now() ELSE started_at END,
			completed_at = CASE WHEN $6 THEN now() ELSE completed_at END,
			heartbeat_at = CASE WHEN $3 = 'running' THEN now() ELSE heartbeat_at END,
			version = version + 1
		WHERE id = $1 AND version = $2
		RETURNING `+jobColumns,
		id, expectVersion, string(next), errMsg, setStarted, setCompleted)

	j, err := scanJob(row)
	if err == sql.ErrNoRows {
		return model.CrawlJob{}, model.E(model.KindConflict,
			fmt.Sprintf("job %s was modified concurrently", id))
	}
	if err != nil {
		return model.CrawlJob{}, classify(err, "transition job")
	}
	return j, nil
}

// UpdateJobCounters adds the accumulated deltas to a job's progress
// counters. Deltas compose under concurrency; absolutes would not.
func (s *Store) UpdateJobCounters(ctx context.Context, id uuid.UUID, d model.CounterDelta) (model.CrawlJob, error) {
	row := s.DB.QueryRowContext(ctx, `
		UPDATE crawl_jobs
		SET pages_crawled = pages_crawled + $2,
			pages_skipped_unchanged = pages_skipped_unchanged + $3,
			snippets_extracted = snippets_extracted + $4,
			failed_page_count = failed_page_count + $5,
			heartbeat_at = now()
		WHERE id = $1
		RETURNING `+jobColumns,
		id, d.PagesCrawled, d.PagesSkippedUnchanged, d.SnippetsExtracted, d.FailedPages)

	j, err := scanJob(row)
	if err != nil {
		return model.CrawlJob{}, classify(err, "update job counters")
	}
	return j, nil
}

// Heartbeat refreshes a running job's liveness timestamp and phase.
func (s *Store) Heartbeat(ctx context.Context, id uuid.UUID, phase model.JobPhase) error {
	_, err := s.DB.ExecContext(ctx, `
		UPDATE crawl_jobs SET heartbeat_at = now(), phase = $2
		WHERE id = $1 AND status = 'running'`, id, string(phase))
	if err != nil {
		return classify(err, "job heartbeat")
	}
	return nil
}

// SetJobSource attaches the source created on first document write.
func (s *Store) SetJobSource(ctx context.Context, id, sourceID uuid.UUID) error {
	_, err := s.DB.ExecContext(ctx,
		`UPDATE crawl_jobs SET source_id = $2 WHERE id = $1`, id, sourceID)
	if err != nil {
		return classify(err, "set job source")
	}
	return nil
}

// PrepareResume flips a failed, cancelled or stalled job back to pending,
// bumps the retry generation, clears the error and resets the failed page
// counter for the new attempt.
func (s *Store) PrepareResume(ctx context.Context, id uuid.UUID, expectVersion int) (model.CrawlJob, error) {
	row := s.DB.QueryRowContext(ctx, `
		UPDATE crawl_jobs
		SET status = 'pending', error = NULL, completed_at = NULL,
			retry_generation = retry_generation + 1,
			failed_page_count = 0,
			version = version + 1
		WHERE id = $1 AND version = $2
		RETURNING `+jobColumns, id, expectVersion)

	j, err := scanJob(row)
	if err == sql.ErrNoRows {
		return model.CrawlJob{}, model.E(model.KindConflict,
			fmt.Sprintf("job %s was modified concurrently", id))
	}
	if err != nil {
		return model.CrawlJob{}, classify(err, "prepare resume")
	}
	return j, nil
}

// RecordFailedPage upserts a failure record for (job, url), bumping the
// retry count when the same URL fails again across resume attempts.
func (s *Store) RecordFailedPage(ctx context.Context, jobID uuid.UUID, url, errMsg string) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO failed_pages (id, job_id, url, error)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (job_id, url) DO UPDATE
		SET error = EXCLUDED.error, failed_at = now(), retry_count = failed_pages.retry_count + 1`,
		uuid.New(), jobID, url, errMsg)
	if err != nil {
		return classify(err, "record failed page")
	}
	return nil
}

// ListFailedPages returns the failure records for a job.
func (s *Store) ListFailedPages(ctx context.Context, jobID uuid.UUID) ([]model.FailedPage, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, job_id, url, error, failed_at, retry_count
		FROM failed_pages WHERE job_id = $1 ORDER BY failed_at`, jobID)
	if err != nil {
		return nil, classify(err, "list failed pages")
	}
	defer rows.Close()

	var out []model.FailedPage
	for rows.Next() {
		var fp model.FailedPage
		if err := rows.Scan(&fp.ID, &fp.JobID, &fp.URL, &fp.Error, &fp.FailedAt, &fp.RetryCount); err != nil {
			return nil, classify(err, "list failed pages")
		}
		out = append(out, fp)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err, "list failed pages")
	}
	return out, nil
}

// DeleteFailedPages clears the failure records the pipeline will retry
// on resume.
func (s *Store) DeleteFailedPages(ctx context.Context, jobID uuid.UUID, urls []string) error {
	if len(urls) == 0 {
		return nil
	}
	_, err := s.DB.ExecContext(ctx, `
		DELETE FROM failed_pages
		WHERE job_id = $1 AND url IN (SELECT jsonb_array_elements_text($2::jsonb))`,
		jobID, marshalStrings(urls))
	if err != nil {
		return classify(err, "delete failed pages")
	}
	return nil
}

// StaleRunningJobs returns running jobs whose heartbeat is older than the
// cutoff. Used by the health monitor and the deep health check.
func (s *Store) StaleRunningJobs(ctx context.Context, cutoff time.Time) ([]model.CrawlJob, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT `+jobColumns+` FROM crawl_jobs
		WHERE status = 'running' AND (heartbeat_at IS NULL OR heartbeat_at < $1)
		ORDER BY created_at`, cutoff)
	if err != nil {
		return nil, classify(err, "stale running jobs")
	}
	defer rows.Close()

	var out []model.CrawlJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, classify(err, "stale running jobs")
		}
		out = append(out, j)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err, "stale running jobs")
	}
	return out, nil
}
