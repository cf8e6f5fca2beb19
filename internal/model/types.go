package model

import (
	"time"

	"github.com/google/uuid"
)

// SourceKind tags how a source's documents were ingested.
type SourceKind string

const (
	SourceKindCrawl  SourceKind = "crawl"
	SourceKindUpload SourceKind = "upload"
	SourceKindRepo   SourceKind = "repo"
)

// Source is a named (and optionally versioned) collection of documents.
type Source struct {
	ID           uuid.UUID  `json:"id"`
	Name         string     `json:"name"`
	Version      *string    `json:"version,omitempty"`
	BaseURL      string     `json:"base_url,omitempty"`
	Kind         SourceKind `json:"kind"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	DocumentCount int       `json:"document_count,omitempty"`
	SnippetCount  int       `json:"snippet_count,omitempty"`
}

// Document is one ingested page or file belonging to a source.
type Document struct {
	ID          uuid.UUID `json:"id"`
	SourceID    uuid.UUID `json:"source_id"`
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	Depth       int       `json:"depth"`
	ContentHash string    `json:"content_hash"`
	Markdown    string    `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	SnippetCount int      `json:"snippet_count,omitempty"`
}

// CodeSnippet is one extracted code block belonging to a document.
type CodeSnippet struct {
	ID          uuid.UUID `json:"id"`
	DocumentID  uuid.UUID `json:"document_id"`
	Language    string    `json:"language"`
	Code        string    `json:"code"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Filename    string    `json:"filename,omitempty"`
	Hierarchy   []string  `json:"hierarchy,omitempty"`
	StartLine   int       `json:"start_line,omitempty"`
	EndLine     int       `json:"end_line,omitempty"`
	CodeHash    string    `json:"code_hash"`
	SourceURL   string    `json:"source_url,omitempty"`
	SourceName  string    `json:"source_name,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// FailedPage records a URL that was attempted but not ingested.
type FailedPage struct {
	ID         uuid.UUID `json:"id"`
	JobID      uuid.UUID `json:"job_id"`
	URL        string    `json:"url"`
	Error      string    `json:"error"`
	FailedAt   time.Time `json:"failed_at"`
	RetryCount int       `json:"retry_count"`
}

// ExtractedContext carries the semantic context assembled around a code
// block: the nearest preceding heading, the prose between that heading and
// the block, and the enclosing heading hierarchy.
type ExtractedContext struct {
	Title       string
	Description string
	Hierarchy   []string
	RawLines    []string
}

// ExtractedCodeBlock is the in-flight representation of one code block.
// It is never persisted directly; the crawl pipeline turns it into a
// CodeSnippet row.
type ExtractedCodeBlock struct {
	Language  string
	Code      string
	Context   ExtractedContext
	Filename  string
	StartLine int
	EndLine   int
	Offset    int
}

// CrawlJob is the lifecycle record for one ingest run.
type CrawlJob struct {
	ID                   uuid.UUID  `json:"id"`
	SourceID             *uuid.UUID `json:"source_id,omitempty"`
	Name                 string     `json:"name"`
	StartURLs            []string   `json:"start_urls"`
	MaxDepth             int        `json:"max_depth"`
	IncludePatterns      []string   `json:"include_patterns,omitempty"`
	ExcludePatterns      []string   `json:"exclude_patterns,omitempty"`
	DomainFilter         string     `json:"domain_filter,omitempty"`
	MaxConcurrentCrawls  int        `json:"max_concurrent_crawls"`
	MaxPages             int        `json:"max_pages,omitempty"`
	Status               JobStatus  `json:"status"`
	Phase                JobPhase   `json:"phase,omitempty"`
	PagesCrawled         int        `json:"pages_crawled"`
	PagesSkippedUnchanged int       `json:"pages_skipped_unchanged"`
	SnippetsExtracted    int        `json:"snippets_extracted"`
	FailedPageCount      int        `json:"failed_pages"`
	BaseSnippetCount     int        `json:"base_snippet_count"`
	RetryGeneration      int        `json:"retry_generation"`
	Version              int        `json:"-"`
	HeartbeatAt          *time.Time `json:"heartbeat_at,omitempty"`
	Error                string     `json:"error,omitempty"`
	StartedAt            *time.Time `json:"started_at,omitempty"`
	CompletedAt          *time.Time `json:"completed_at,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
}

// Stalled reports whether a running job's heartbeat is older than the
// given threshold. Stalled is derived, never stored.
func (j *CrawlJob) Stalled(threshold time.Duration, now time.Time) bool {
	if j.Status != JobRunning || j.HeartbeatAt == nil {
		return false
	}
	return now.Sub(*j.HeartbeatAt) > threshold
}

// EffectiveStatus is the status shown to clients, substituting the derived
// stalled state when the heartbeat has gone quiet.
func (j *CrawlJob) EffectiveStatus(threshold time.Duration, now time.Time) JobStatus {
	if j.Stalled(threshold, now) {
		return JobStalled
	}
	return j.Status
}

// CounterDelta is an accumulated progress update applied through the job
// manager. All fields are deltas, never absolutes.
type CounterDelta struct {
	PagesCrawled          int
	PagesSkippedUnchanged int
	SnippetsExtracted     int
	FailedPages           int
}
