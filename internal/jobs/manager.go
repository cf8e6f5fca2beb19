package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"codedox/internal/config"
	"codedox/internal/crawl"
	"codedox/internal/metrics"
	"codedox/internal/model"
	"codedox/internal/store"
)

// Executor runs the work for one job. The context is cancelled when the
// job is cancelled; the executor is expected to drain and return quickly.
type Executor func(ctx context.Context, job model.CrawlJob) error

// Manager owns the crawl job lifecycle: admission, the pending to
// terminal state machine, heartbeats, cancellation, and resume. All
// status changes flow through it so the version-guarded transitions in
// the store stay consistent.
type Manager struct {
	cfg    *config.Config
	store  *store.Store
	logger *slog.Logger

	mu      sync.Mutex
	running map[uuid.UUID]context.CancelFunc
	slots   chan struct{}
}

// NewManager constructs a Manager with a bounded number of concurrent
// crawl sessions.
func NewManager(cfg *config.Config, st *store.Store, logger *slog.Logger) *Manager {
	return &Manager{
		cfg:     cfg,
		store:   st,
		logger:  logger,
		running: make(map[uuid.UUID]context.CancelFunc),
		slots:   make(chan struct{}, cfg.Crawler.MaxConcurrentSessions),
	}
}

// CreateParams is the validated input for a new crawl job.
type CreateParams struct {
	Name            string
	StartURLs       []string
	MaxDepth        int
	IncludePatterns []string
	ExcludePatterns []string
	DomainFilter    string
	MaxConcurrent   int
	MaxPages        int
	Version         *string
}

// Create validates and persists a new job in pending state. When a
// source with the job's name already exists, its current snippet count
// is snapshotted so progress reporting stays delta-based.
func (m *Manager) Create(ctx context.Context, p CreateParams) (model.CrawlJob, error) {
	if len(p.StartURLs) == 0 {
		return model.CrawlJob{}, model.E(model.KindValidation, "at least one start URL is required")
	}
	if p.Name == "" {
		return model.CrawlJob{}, model.E(model.KindValidation, "job name is required")
	}
	if p.MaxDepth < 0 || p.MaxDepth > 3 {
		return model.CrawlJob{}, model.E(model.KindValidation, "max_depth must be between 0 and 3")
	}
	switch {
	case p.MaxConcurrent == 0:
		p.MaxConcurrent = m.cfg.Crawler.MaxConcurrentPages
	case p.MaxConcurrent < 1 || p.MaxConcurrent > 100:
		return model.CrawlJob{}, model.E(model.KindValidation, "max_concurrent_crawls must be between 1 and 100")
	}
	if err := crawl.ValidatePatterns(p.IncludePatterns); err != nil {
		return model.CrawlJob{}, err
	}
	if err := crawl.ValidatePatterns(p.ExcludePatterns); err != nil {
		return model.CrawlJob{}, err
	}

	job := model.CrawlJob{
		ID:                  uuid.New(),
		Name:                p.Name,
		StartURLs:           p.StartURLs,
		MaxDepth:            p.MaxDepth,
		IncludePatterns:     p.IncludePatterns,
		ExcludePatterns:     p.ExcludePatterns,
		DomainFilter:        p.DomainFilter,
		MaxConcurrentCrawls: p.MaxConcurrent,
		MaxPages:            p.MaxPages,
		Status:              model.JobPending,
	}

	if src, err := m.store.GetSourceByNameVersion(ctx, p.Name, p.Version); err == nil {
		id := src.ID
		job.SourceID = &id
		n, err := m.store.SourceSnippetCount(ctx, src.ID)
		if err != nil {
			return model.CrawlJob{}, err
		}
		job.BaseSnippetCount = n
	} else if !model.IsKind(err, model.KindNotFound) {
		return model.CrawlJob{}, err
	}

	if err := m.store.InsertCrawlJob(ctx, job); err != nil {
		return model.CrawlJob{}, err
	}
	m.logger.Info("crawl job created", "job_id", job.ID, "name", job.Name, "urls", len(job.StartURLs))
	return m.store.GetCrawlJob(ctx, job.ID)
}

// Start transitions a pending job to running and executes it on its own
// goroutine. It returns immediately; callers observe progress through
// Get and the progress broker. A full session table rejects the start.
func (m *Manager) Start(job model.CrawlJob, exec Executor) error {
	select {
	case m.slots <- struct{}{}:
	default:
		return model.E(model.KindConflict,
			fmt.Sprintf("crawl session limit (%d) reached", cap(m.slots)))
	}

	ctx, cancel := context.WithCancel(context.Background())

	running, err := m.store.TransitionJob(ctx, job.ID, job.Version, model.JobRunning, "")
	if err != nil {
		cancel()
		<-m.slots
		return err
	}

	m.mu.Lock()
	m.running[job.ID] = cancel
	m.mu.Unlock()
	metrics.RecordJobStarted()

	go func() {
		defer func() {
			cancel()
			m.mu.Lock()
			delete(m.running, job.ID)
			m.mu.Unlock()
			<-m.slots
		}()
		m.runToCompletion(ctx, running, exec)
	}()
	return nil
}

func (m *Manager) runToCompletion(ctx context.Context, job model.CrawlJob, exec Executor) {
	start := time.Now()
	err := exec(ctx, job)

	// The executor mutated counters; reload for the final CAS.
	finalCtx, cancelFinal := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelFinal()

	cur, gerr := m.store.GetCrawlJob(finalCtx, job.ID)
	if gerr != nil {
		m.logger.Error("job finalize load failed", "job_id", job.ID, "error", gerr)
		return
	}
	if cur.Status.Terminal() {
		return
	}

	next := model.JobCompleted
	msg := ""
	switch {
	case err == nil:
		next = model.JobCompleted
	case ctx.Err() != nil || model.IsKind(err, model.KindCancelled):
		next = model.JobCancelled
		msg = "cancelled"
	default:
		next = model.JobFailed
		msg = err.Error()
	}

	if _, terr := m.store.TransitionJob(finalCtx, job.ID, cur.Version, next, msg); terr != nil {
		m.logger.Error("job finalize transition failed", "job_id", job.ID, "error", terr)
		return
	}
	metrics.RecordJobFinished(string(next), time.Since(start))
	m.logger.Info("crawl job finished", "job_id", job.ID, "status", next, "duration", time.Since(start))
}

// Cancel requests cancellation. A pending job is cancelled directly; a
// running one has its context cancelled and is expected to drain within
// the configured cancellation window.
func (m *Manager) Cancel(ctx context.Context, id uuid.UUID) (model.CrawlJob, error) {
	job, err := m.store.GetCrawlJob(ctx, id)
	if err != nil {
		return model.CrawlJob{}, err
	}

	switch job.Status {
	case model.JobPending:
		return m.store.TransitionJob(ctx, id, job.Version, model.JobCancelled, "cancelled before start")
	case model.JobRunning:
		m.mu.Lock()
		cancel, ok := m.running[id]
		m.mu.Unlock()
		if ok {
			cancel()
			return job, nil
		}
		// Running in the database but not in this process: an orphan
		// from a previous run. Cancel it directly.
		return m.store.TransitionJob(ctx, id, job.Version, model.JobCancelled, "cancelled orphaned job")
	default:
		return model.CrawlJob{}, model.E(model.KindConflict,
			fmt.Sprintf("job %s is %s and cannot be cancelled", id, job.Status))
	}
}

// CancelAll cancels every pending or running job. Returns the number of
// jobs it touched.
func (m *Manager) CancelAll(ctx context.Context) (int, error) {
	active, err := m.store.ListActiveJobs(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, job := range active {
		if _, err := m.Cancel(ctx, job.ID); err == nil {
			n++
		}
	}
	return n, nil
}

// Resume flips a failed, cancelled, or stalled job back to pending and
// returns it with a bumped retry generation. The crawl pipeline then
// recomputes the unfinished URL set and the manager starts it again.
func (m *Manager) Resume(ctx context.Context, id uuid.UUID) (model.CrawlJob, error) {
	job, err := m.store.GetCrawlJob(ctx, id)
	if err != nil {
		return model.CrawlJob{}, err
	}

	eff := job.EffectiveStatus(m.cfg.Crawler.HeartbeatStallThreshold(), time.Now())
	switch eff {
	case model.JobFailed, model.JobCancelled, model.JobStalled:
	default:
		return model.CrawlJob{}, model.E(model.KindConflict,
			fmt.Sprintf("job %s is %s and cannot be resumed", id, eff))
	}

	resumed, err := m.store.PrepareResume(ctx, id, job.Version)
	if err != nil {
		return model.CrawlJob{}, err
	}
	m.logger.Info("crawl job resumed", "job_id", id, "generation", resumed.RetryGeneration)
	return resumed, nil
}

// Get fetches a job with the derived stalled state applied.
func (m *Manager) Get(ctx context.Context, id uuid.UUID) (model.CrawlJob, error) {
	job, err := m.store.GetCrawlJob(ctx, id)
	if err != nil {
		return model.CrawlJob{}, err
	}
	job.Status = job.EffectiveStatus(m.cfg.Crawler.HeartbeatStallThreshold(), time.Now())
	return job, nil
}

// List returns jobs newest-first with derived status applied.
func (m *Manager) List(ctx context.Context, status model.JobStatus, limit, offset int) ([]model.CrawlJob, int, error) {
	jobs, total, err := m.store.ListCrawlJobs(ctx, status, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	now := time.Now()
	for i := range jobs {
		jobs[i].Status = jobs[i].EffectiveStatus(m.cfg.Crawler.HeartbeatStallThreshold(), now)
	}
	return jobs, total, nil
}

// ActiveCount reports how many sessions this process is running.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.running)
}
