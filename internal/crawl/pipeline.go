package crawl

import (
	"context"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"codedox/internal/annotate"
	"codedox/internal/config"
	"codedox/internal/extract"
	"codedox/internal/fetcher"
	"codedox/internal/metrics"
	"codedox/internal/model"
	"codedox/internal/progress"
	"codedox/internal/store"
)

// Pipeline turns a crawl job into documents and snippets. It owns the
// frontier, the admission filters, and the per-page ingest path; all
// durable state changes go through the store.
type Pipeline struct {
	cfg       *config.Config
	store     *store.Store
	fetch     fetcher.Fetcher
	annotator *annotate.Annotator
	broker    *progress.Broker
	logger    *slog.Logger
}

func New(cfg *config.Config, st *store.Store, f fetcher.Fetcher, a *annotate.Annotator,
	broker *progress.Broker, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		cfg:       cfg,
		store:     st,
		fetch:     f,
		annotator: a,
		broker:    broker,
		logger:    logger,
	}
}

type pageItem struct {
	url   string
	depth int
}

// Run executes one job to completion. It satisfies jobs.Executor: the
// final status transition is the manager's, not the pipeline's.
func (p *Pipeline) Run(ctx context.Context, job model.CrawlJob) error {
	adm := newAdmission(job)
	f := newFrontier()
	state := &runState{
		job:   job,
		adm:   adm,
		front: f,
	}

	if job.RetryGeneration > 0 {
		p.seedResume(ctx, state)
	}

	for _, raw := range job.StartURLs {
		if canon, ok := canonicalURL(raw); ok && adm.allow(canon) {
			state.enqueue(pageItem{url: canon, depth: 0})
		}
	}

	hbCtx, stopHB := context.WithCancel(ctx)
	defer stopHB()
	go p.heartbeatLoop(hbCtx, job.ID)

	workers := job.MaxConcurrentCrawls
	if workers < 1 {
		workers = 1
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.worker(ctx, state)
		}()
	}

	// Cancellation closes the frontier so workers drain their current
	// page and exit within the cancellation window.
	watchDone := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			f.close()
		case <-watchDone:
		}
	}()

	wg.Wait()
	close(watchDone)
	stopHB()

	if ctx.Err() != nil {
		return model.Wrap(model.KindCancelled, "crawl cancelled", ctx.Err())
	}

	finCtx, cancelFin := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelFin()
	_ = p.store.Heartbeat(finCtx, job.ID, model.PhaseFinalizing)
	return nil
}

// seedResume recomputes the unfinished URL set for a retry attempt.
// Pages already stored as documents are pre-marked visited so workers
// skip them without a fetch; previously failed pages are re-enqueued
// and their failure records cleared for the new generation.
func (p *Pipeline) seedResume(ctx context.Context, state *runState) {
	job := state.job

	if job.SourceID != nil {
		ingested, err := p.store.ExistingDocumentURLs(ctx, *job.SourceID)
		if err != nil {
			p.logger.Warn("resume: load ingested urls failed", "job_id", job.ID, "error", err)
		} else {
			state.markVisited(ingested)
		}
	}

	failed, err := p.store.ListFailedPages(ctx, job.ID)
	if err != nil {
		p.logger.Warn("resume: load failed pages failed", "job_id", job.ID, "error", err)
		return
	}

	retried := make([]string, 0, len(failed))
	for _, fp := range failed {
		canon, ok := canonicalURL(fp.URL)
		if !ok || !state.adm.allow(canon) {
			continue
		}
		retried = append(retried, fp.URL)
		state.enqueue(pageItem{url: canon, depth: 0})
	}
	if err := p.store.DeleteFailedPages(ctx, job.ID, retried); err != nil {
		p.logger.Warn("resume: clear failed pages failed", "job_id", job.ID, "error", err)
	}
}

// runState is the in-memory coordination shared by a job's workers.
type runState struct {
	job   model.CrawlJob
	adm   *admission
	front *frontier

	mu       sync.Mutex
	visited  map[string]struct{}
	queued   map[string]struct{}
	admitted int // pages popped, bounded by MaxPages

	sourceOnce sync.Once
	sourceID   uuid.UUID
	sourceErr  error
}

func (s *runState) enqueue(it pageItem) {
	s.mu.Lock()
	if s.queued == nil {
		s.queued = make(map[string]struct{})
		s.visited = make(map[string]struct{})
	}
	if _, dup := s.queued[it.url]; dup {
		s.mu.Unlock()
		return
	}
	s.queued[it.url] = struct{}{}
	s.mu.Unlock()
	s.front.push(it)
}

// markVisited pre-marks URLs so reserve rejects them without a fetch.
func (s *runState) markVisited(urls map[string]struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queued == nil {
		s.queued = make(map[string]struct{})
		s.visited = make(map[string]struct{})
	}
	for u := range urls {
		if canon, ok := canonicalURL(u); ok {
			s.visited[canon] = struct{}{}
		} else {
			s.visited[u] = struct{}{}
		}
	}
}

// reserve claims one page slot, enforcing MaxPages. Returns false when
// the cap is exhausted.
func (s *runState) reserve(u string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.job.MaxPages > 0 && s.admitted >= s.job.MaxPages {
		return false
	}
	if _, seen := s.visited[u]; seen {
		return false
	}
	s.visited[u] = struct{}{}
	s.admitted++
	return true
}

func (p *Pipeline) worker(ctx context.Context, state *runState) {
	for {
		it, ok := state.front.pop()
		if !ok {
			return
		}

		if ctx.Err() != nil {
			state.front.taskDone()
			continue // drain remaining queue without work
		}

		if state.reserve(it.url) {
			p.processPage(ctx, state, it)
		}
		state.front.taskDone()
	}
}

func (p *Pipeline) processPage(ctx context.Context, state *runState, it pageItem) {
	job := state.job
	topic := job.ID.String()

	_ = p.store.Heartbeat(ctx, job.ID, model.PhaseCrawling)

	res, err := p.fetch.Fetch(ctx, fetcher.Request{URL: it.url, UserAgent: p.cfg.Crawler.UserAgent})
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		p.recordFailure(ctx, job.ID, it.url, err)
		return
	}

	// A redirect may land outside the admitted domain.
	finalURL := it.url
	if canon, ok := canonicalURL(res.URL); ok {
		finalURL = canon
	}
	if finalURL != it.url && !state.adm.allow(finalURL) {
		return
	}

	sourceID, err := p.sourceFor(ctx, state, finalURL)
	if err != nil {
		p.recordFailure(ctx, job.ID, it.url, err)
		return
	}

	changed, snippetCount, title, ingestErr := p.ingest(ctx, job, sourceID, finalURL, it.depth, res)
	if ingestErr != nil {
		if ctx.Err() != nil {
			return
		}
		p.recordFailure(ctx, job.ID, it.url, ingestErr)
		return
	}

	var delta model.CounterDelta
	if changed {
		delta.PagesCrawled = 1
		delta.SnippetsExtracted = snippetCount
		metrics.RecordPage("crawled")
		metrics.RecordSnippets(snippetCount)
		p.broker.Publish(topic, progress.EventPageCrawled, map[string]any{
			"url": finalURL, "title": title, "snippets": snippetCount, "depth": it.depth,
		})
	} else {
		delta.PagesSkippedUnchanged = 1
		delta.SnippetsExtracted = snippetCount
		metrics.RecordPage("skipped")
		p.broker.Publish(topic, progress.EventPageSkipped, map[string]any{
			"url": finalURL, "snippets": snippetCount,
		})
	}
	if _, err := p.store.UpdateJobCounters(ctx, job.ID, delta); err != nil && ctx.Err() == nil {
		p.logger.Warn("counter update failed", "job_id", job.ID, "error", err)
	}

	if it.depth < job.MaxDepth {
		for _, link := range res.Links {
			canon, ok := canonicalURL(link)
			if !ok || !state.adm.allow(canon) {
				continue
			}
			state.enqueue(pageItem{url: canon, depth: it.depth + 1})
		}
	}
}

// ingest converts one fetched page into a document plus snippets and
// persists them in a single transaction. Returns whether the stored
// content changed and how many snippets the document now carries.
func (p *Pipeline) ingest(ctx context.Context, job model.CrawlJob, sourceID uuid.UUID,
	pageURL string, depth int, res *fetcher.Result) (bool, int, string, error) {

	contentHash := store.Hash(normalizeContent(res.HTML))

	// Unchanged content short-circuits before extraction.
	if doc, err := p.store.GetDocumentByURL(ctx, sourceID, pageURL); err == nil && doc.ContentHash == contentHash {
		n, err := p.store.DocumentSnippetCount(ctx, doc.ID)
		if err != nil {
			return false, 0, "", err
		}
		return false, n, doc.Title, nil
	}

	limits := extract.Limits{
		MaxBlockSize:     p.cfg.Code.MaxCodeBlockSize,
		MinLines:         p.cfg.Code.MinCodeLines,
		MaxContextLength: p.cfg.Code.MaxContextLength,
	}
	extractor := extract.ForContent(res.ContentType, pageURL, limits)
	blocks, err := extractor.Extract(res.HTML, pageURL)
	if err != nil {
		return false, 0, "", err
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

	markdown := res.HTML
	if strings.Contains(strings.ToLower(res.ContentType), "html") {
		markdown = extract.ToMarkdown(res.HTML, pageURL)
	}

	title := res.Title
	if title == "" {
		title = pageURL
	}

	// Cancellation after extraction still persists this page; only the
	// cancellation window bounds it.
	persistCtx := ctx
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		persistCtx, cancel = context.WithTimeout(context.Background(), p.cfg.Crawler.TaskCancellationTimeout())
		defer cancel()
	}

	result, inserted, err := p.store.IngestDocument(persistCtx, store.UpsertDocumentParams{
		SourceID:    sourceID,
		URL:         pageURL,
		Title:       title,
		Depth:       depth,
		ContentHash: contentHash,
		Markdown:    markdown,
	}, snippets)
	if err != nil {
		return false, 0, "", err
	}
	return result.Changed, inserted, title, nil
}

// sourceFor lazily creates the job's source on first successful page.
func (p *Pipeline) sourceFor(ctx context.Context, state *runState, pageURL string) (uuid.UUID, error) {
	state.sourceOnce.Do(func() {
		if state.job.SourceID != nil {
			state.sourceID = *state.job.SourceID
			return
		}
		baseURL := ""
		if u, err := url.Parse(pageURL); err == nil {
			baseURL = u.Scheme + "://" + u.Host
		}
		src, err := p.store.GetOrCreateSource(ctx, state.job.Name, nil, baseURL, model.SourceKindCrawl)
		if err != nil {
			state.sourceErr = err
			return
		}
		state.sourceID = src.ID
		if err := p.store.SetJobSource(ctx, state.job.ID, src.ID); err != nil {
			p.logger.Warn("attach source to job failed", "job_id", state.job.ID, "error", err)
		}
	})
	return state.sourceID, state.sourceErr
}

func (p *Pipeline) recordFailure(ctx context.Context, jobID uuid.UUID, pageURL string, cause error) {
	metrics.RecordPage("failed")
	if err := p.store.RecordFailedPage(ctx, jobID, pageURL, cause.Error()); err != nil {
		p.logger.Warn("record failed page", "job_id", jobID, "url", pageURL, "error", err)
	}
	if _, err := p.store.UpdateJobCounters(ctx, jobID, model.CounterDelta{FailedPages: 1}); err != nil && ctx.Err() == nil {
		p.logger.Warn("counter update failed", "job_id", jobID, "error", err)
	}
	p.broker.Publish(jobID.String(), progress.EventPageFailed, map[string]any{
		"url": pageURL, "error": cause.Error(),
	})
}

// heartbeatLoop keeps the job visibly alive even while every worker is
// blocked on a slow fetch.
func (p *Pipeline) heartbeatLoop(ctx context.Context, jobID uuid.UUID) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = p.store.Heartbeat(ctx, jobID, model.PhaseCrawling)
		}
	}
}

var scriptStyleRe = regexp.MustCompile(`(?is)<(script|style)[^>]*>.*?</(script|style)>`)
var wsRunRe = regexp.MustCompile(`\s+`)

// normalizeContent strips script and style bodies and collapses
// whitespace so cosmetic rebuilds do not defeat the unchanged-page skip.
func normalizeContent(html string) string {
	s := scriptStyleRe.ReplaceAllString(html, "")
	return wsRunRe.ReplaceAllString(strings.TrimSpace(s), " ")
}

// canonicalURL normalizes a URL for frontier identity: lowercase
// scheme and host, no fragment, no trailing slash on non-root paths.
func canonicalURL(raw string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return "", false
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	if u.Path != "/" {
		u.Path = strings.TrimSuffix(u.Path, "/")
	}
	return u.String(), true
}
