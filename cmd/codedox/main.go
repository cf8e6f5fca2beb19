package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"codedox/internal/annotate"
	"codedox/internal/config"
	"codedox/internal/crawl"
	"codedox/internal/fetcher"
	server "codedox/internal/http"
	"codedox/internal/jobs"
	"codedox/internal/mcp"
	"codedox/internal/migrate"
	"codedox/internal/model"
	"codedox/internal/progress"
	"codedox/internal/search"
	"codedox/internal/store"
)

const usage = `codedox - documentation code snippet extractor

Usage:
  codedox [--config PATH] <command> [args]

Commands:
  init [--drop] [--force]      create the database schema (--drop recreates)
  serve [--api|--mcp]          run the API server (default), API without MCP, or stdio MCP
  crawl start <name> <urls...> [--depth N] [--domain D] [--include P] [--exclude P]
                               [--concurrent N] [--max-pages N] [--version V]
  crawl status <id>            show one job
  crawl list                   list jobs
  crawl cancel <id>            cancel a job
  crawl resume <id>            resume a failed, cancelled, or stalled job
  crawl health                 show active jobs with heartbeat ages
  upload <path> [--name N] [--source-url URL] [--version V]
  search <query> [--source N] [--language L] [--limit N]
`

// Exit codes: 0 success, 1 usage or validation error, 2 runtime failure,
// 130 cancelled by signal.
const (
	exitOK        = 0
	exitUsage     = 1
	exitError     = 2
	exitInterrupt = 130
)

// exitFor maps a command error onto the exit-code contract: input the
// caller can fix reads as a usage error, everything else as a runtime
// failure.
func exitFor(err error) int {
	if model.IsKind(err, model.KindValidation) {
		return exitUsage
	}
	return exitError
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("codedox", flag.ContinueOnError)
	configPath := fs.String("config", "config/config.yaml", "path to config file")
	fs.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	rest := fs.Args()
	if len(rest) == 0 {
		fs.Usage()
		return exitUsage
	}

	cfg := config.Load(*configPath)
	logger, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger setup failed: %v\n", err)
		return exitError
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch rest[0] {
	case "init":
		return cmdInit(cfg, logger, rest[1:])
	case "serve":
		return cmdServe(ctx, cfg, logger, rest[1:])
	case "crawl":
		return cmdCrawl(ctx, cfg, logger, rest[1:])
	case "upload":
		return cmdUpload(ctx, cfg, logger, rest[1:])
	case "search":
		return cmdSearch(ctx, cfg, rest[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", rest[0])
		fs.Usage()
		return exitUsage
	}
}

func newLogger(cfg *config.Config) (*slog.Logger, error) {
	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	out := os.Stdout
	if cfg.Log.File != "" {
		f, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		out = f
	}
	return slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})), nil
}

func openStore(cfg *config.Config) (*store.Store, *sql.DB, error) {
	db, err := sql.Open("pgx", cfg.Database.DSN())
	if err != nil {
		return nil, nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	return store.New(db), db, nil
}

func cmdInit(cfg *config.Config, logger *slog.Logger, args []string) int {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	drop := fs.Bool("drop", false, "drop all tables before migrating")
	force := fs.Bool("force", false, "skip failing migrations instead of halting")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	dsn := cfg.Database.DSN()
	if *drop {
		if err := migrate.Drop(dsn); err != nil {
			logger.Error("drop failed", "error", err)
			return exitError
		}
		logger.Info("schema dropped")
	}

	var err error
	if *force {
		err = migrate.RunForce(dsn, logger)
	} else {
		err = migrate.Run(dsn)
	}
	if err != nil {
		logger.Error("migrations failed", "error", err)
		return exitError
	}
	logger.Info("schema ready")
	return exitOK
}

// services holds everything serve and the crawl commands share.
type services struct {
	store     *store.Store
	db        *sql.DB
	manager   *jobs.Manager
	pipeline  *crawl.Pipeline
	annotator *annotate.Annotator
	broker    *progress.Broker
	search    *search.Service
}

func buildServices(cfg *config.Config, logger *slog.Logger) (*services, error) {
	st, db, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	var base fetcher.Fetcher
	if cfg.Rod.Enabled {
		base = fetcher.NewRodFetcher(cfg.Rod.BrowserURL, cfg.Crawler.FetchTimeout())
	} else {
		base = fetcher.NewHTTPFetcher(cfg.Crawler.FetchTimeout(), int64(cfg.Crawler.ContentSizeLimit))
	}
	gate := fetcher.NewGate(base, cfg.Crawler.UserAgent, cfg.Crawler.RespectRobotsTxt,
		time.Duration(cfg.Crawler.PoliteDelayMs)*time.Millisecond)

	broker := progress.NewBroker()
	annotator := annotate.New(cfg, logger)
	pipeline := crawl.New(cfg, st, gate, annotator, broker, logger)
	manager := jobs.NewManager(cfg, st, logger)

	return &services{
		store:     st,
		db:        db,
		manager:   manager,
		pipeline:  pipeline,
		annotator: annotator,
		broker:    broker,
		search:    search.NewService(cfg, st),
	}, nil
}

func cmdServe(ctx context.Context, cfg *config.Config, logger *slog.Logger, args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	apiOnly := fs.Bool("api", false, "serve the HTTP API without the MCP mount")
	mcpStdio := fs.Bool("mcp", false, "serve MCP over stdio instead of HTTP")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	// Stdio MCP owns stdout for the protocol; logs must go elsewhere.
	if *mcpStdio {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	}

	if err := migrate.Run(cfg.Database.DSN()); err != nil {
		logger.Error("migrations failed", "error", err)
		return exitError
	}

	svc, err := buildServices(cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		return exitError
	}
	defer svc.db.Close()

	mcpServer := mcp.New(mcp.Deps{
		Manager:  svc.manager,
		Pipeline: svc.pipeline,
		Search:   svc.search,
		Logger:   logger,
	})

	if *mcpStdio {
		if err := mcpServer.ServeStdio(); err != nil {
			logger.Error("mcp server failed", "error", err)
			return exitError
		}
		return exitOK
	}

	if err := svc.manager.RecoverOrphans(ctx); err != nil {
		logger.Warn("orphan recovery failed", "error", err)
	}
	go svc.manager.RunMonitor(ctx)

	deps := server.Deps{
		Config:    cfg,
		Store:     svc.store,
		Manager:   svc.manager,
		Pipeline:  svc.pipeline,
		Annotator: svc.annotator,
		Broker:    svc.broker,
		Search:    svc.search,
		Logger:    logger,
	}
	if !*apiOnly {
		deps.MCPHandler = mcpServer.FiberHandler()
	}
	srv := server.NewServer(deps)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Listen() }()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("server failed", "error", err)
			return exitError
		}
		return exitOK
	case <-ctx.Done():
		logger.Info("shutting down")
		svc.manager.CancelAll(context.Background())
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown failed", "error", err)
			return exitError
		}
		return exitInterrupt
	}
}

func cmdCrawl(ctx context.Context, cfg *config.Config, logger *slog.Logger, args []string) int {
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usage)
		return exitUsage
	}

	svc, err := buildServices(cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		return exitError
	}
	defer svc.db.Close()

	switch args[0] {
	case "start":
		return crawlStart(ctx, svc, logger, args[1:])
	case "status":
		return crawlShow(ctx, svc, args[1:])
	case "list":
		return crawlList(ctx, svc)
	case "cancel":
		return crawlCancel(ctx, svc, args[1:])
	case "resume":
		return crawlResume(ctx, svc, logger, args[1:])
	case "health":
		return crawlHealth(ctx, svc, cfg)
	default:
		fmt.Fprintf(os.Stderr, "unknown crawl subcommand: %s\n", args[0])
		return exitUsage
	}
}

func crawlStart(ctx context.Context, svc *services, logger *slog.Logger, args []string) int {
	fs := flag.NewFlagSet("crawl start", flag.ContinueOnError)
	depth := fs.Int("depth", 1, "link-following depth (0-3)")
	domain := fs.String("domain", "", "restrict to this domain")
	include := fs.String("include", "", "comma-separated URL glob patterns to include")
	urlPatterns := fs.String("url-patterns", "", "alias of --include")
	exclude := fs.String("exclude", "", "comma-separated URL glob patterns to exclude")
	concurrent := fs.Int("concurrent", 0, "concurrent page fetches")
	maxPages := fs.Int("max-pages", 0, "hard cap on pages fetched")
	version := fs.String("version", "", "documentation version label")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	rest := fs.Args()
	if len(rest) < 2 {
		fmt.Fprintln(os.Stderr, "crawl start needs a name and at least one URL")
		return exitUsage
	}

	var ver *string
	if *version != "" {
		ver = version
	}

	job, err := svc.manager.Create(ctx, jobs.CreateParams{
		Name:            rest[0],
		StartURLs:       rest[1:],
		MaxDepth:        *depth,
		DomainFilter:    *domain,
		IncludePatterns: append(splitList(*include), splitList(*urlPatterns)...),
		ExcludePatterns: splitList(*exclude),
		MaxConcurrent:   *concurrent,
		MaxPages:        *maxPages,
		Version:         ver,
	})
	if err != nil {
		logger.Error("create failed", "error", err)
		return exitFor(err)
	}
	if err := svc.manager.Start(job, svc.pipeline.Run); err != nil {
		logger.Error("start failed", "error", err)
		return exitError
	}
	fmt.Printf("job %s started\n", job.ID)
	return waitForJob(ctx, svc, job.ID)
}

// waitForJob polls until the job reaches a terminal state, printing
// progress. Interrupt cancels the job before exiting.
func waitForJob(ctx context.Context, svc *services, jobID uuid.UUID) int {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			cancelCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			svc.manager.Cancel(cancelCtx, jobID)
			cancel()
			fmt.Fprintln(os.Stderr, "interrupted, job cancelled")
			return exitInterrupt
		case <-ticker.C:
			job, err := svc.manager.Get(context.Background(), jobID)
			if err != nil {
				fmt.Fprintf(os.Stderr, "status check failed: %v\n", err)
				return exitError
			}
			fmt.Printf("  %s: %d crawled, %d skipped, %d snippets, %d failed\n",
				job.Status, job.PagesCrawled, job.PagesSkippedUnchanged,
				job.SnippetsExtracted, job.FailedPageCount)
			if job.Status.Terminal() {
				if job.Status == model.JobCompleted {
					return exitOK
				}
				if job.Error != "" {
					fmt.Fprintln(os.Stderr, job.Error)
				}
				return exitError
			}
		}
	}
}

func crawlShow(ctx context.Context, svc *services, args []string) int {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "crawl status needs a job id")
		return exitUsage
	}
	id, err := uuid.Parse(args[0])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitUsage
	}
	job, err := svc.manager.Get(ctx, id)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitError
	}
	return printJSON(job)
}

func crawlList(ctx context.Context, svc *services) int {
	list, total, err := svc.manager.List(ctx, "", 50, 0)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitError
	}
	fmt.Printf("%d jobs\n", total)
	for _, j := range list {
		fmt.Printf("  %s  %-10s  %-20s  %d pages, %d snippets\n",
			j.ID, j.Status, j.Name, j.PagesCrawled, j.SnippetsExtracted)
	}
	return exitOK
}

func crawlCancel(ctx context.Context, svc *services, args []string) int {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "crawl cancel needs a job id")
		return exitUsage
	}
	id, err := uuid.Parse(args[0])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitUsage
	}
	job, err := svc.manager.Cancel(ctx, id)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitError
	}
	fmt.Printf("job %s: %s\n", job.ID, job.Status)
	return exitOK
}

func crawlResume(ctx context.Context, svc *services, logger *slog.Logger, args []string) int {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "crawl resume needs a job id")
		return exitUsage
	}
	id, err := uuid.Parse(args[0])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitUsage
	}
	job, err := svc.manager.Resume(ctx, id)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitError
	}
	if err := svc.manager.Start(job, svc.pipeline.Run); err != nil {
		logger.Error("start failed", "error", err)
		return exitError
	}
	fmt.Printf("job %s resumed (generation %d)\n", job.ID, job.RetryGeneration)
	return waitForJob(ctx, svc, job.ID)
}

func crawlHealth(ctx context.Context, svc *services, cfg *config.Config) int {
	active, err := svc.store.ListActiveJobs(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitError
	}
	if len(active) == 0 {
		fmt.Println("no active jobs")
		return exitOK
	}

	threshold := cfg.Crawler.HeartbeatStallThreshold()
	now := time.Now()
	for _, j := range active {
		age := "never"
		if j.HeartbeatAt != nil {
			age = now.Sub(*j.HeartbeatAt).Round(time.Second).String()
		}
		fmt.Printf("  %s  %-10s  %-20s  heartbeat %s ago",
			j.ID, j.EffectiveStatus(threshold, now), j.Name, age)
		if j.Stalled(threshold, now) {
			fmt.Print("  STALLED")
		}
		fmt.Println()
	}
	return exitOK
}

func cmdUpload(ctx context.Context, cfg *config.Config, logger *slog.Logger, args []string) int {
	fs := flag.NewFlagSet("upload", flag.ContinueOnError)
	name := fs.String("name", "", "source name (defaults to the file name)")
	sourceURL := fs.String("source-url", "", "logical URL for the document")
	version := fs.String("version", "", "documentation version label")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	rest := fs.Args()
	if len(rest) != 1 {
		fmt.Fprintln(os.Stderr, "upload needs a file path")
		return exitUsage
	}

	body, err := os.ReadFile(rest[0])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitError
	}

	svc, err := buildServices(cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		return exitError
	}
	defer svc.db.Close()

	fileName := filepath.Base(rest[0])
	sourceName := *name
	if sourceName == "" {
		sourceName = strings.TrimSuffix(fileName, filepath.Ext(fileName))
	}
	var ver *string
	if *version != "" {
		ver = version
	}

	res, err := svc.pipeline.IngestUpload(ctx, crawl.UploadParams{
		SourceName: sourceName,
		Version:    ver,
		FileName:   fileName,
		URL:        *sourceURL,
		Content:    string(body),
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitFor(err)
	}
	fmt.Printf("uploaded %s: %d snippets (changed=%t)\n", fileName, res.Snippets, res.Changed)
	return exitOK
}

func cmdSearch(ctx context.Context, cfg *config.Config, args []string) int {
	fs := flag.NewFlagSet("search", flag.ContinueOnError)
	source := fs.String("source", "", "restrict to one library (id, name, or prefix)")
	language := fs.String("language", "", "filter by programming language")
	limit := fs.Int("limit", 10, "maximum results")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	rest := fs.Args()
	if len(rest) == 0 {
		fmt.Fprintln(os.Stderr, "search needs a query")
		return exitUsage
	}
	query := strings.Join(rest, " ")

	st, db, err := openStore(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitError
	}
	defer db.Close()

	svc := search.NewService(cfg, st)
	res, err := svc.SearchSnippets(ctx, query, *source, *language, *limit, 1)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitFor(err)
	}

	fmt.Printf("%d results\n", res.Total)
	for _, sn := range res.Snippets {
		title := sn.Title
		if title == "" {
			title = "(untitled)"
		}
		fmt.Printf("\n== %s [%s] %s\n", title, sn.Language, sn.SourceURL)
		fmt.Println(sn.Code)
	}
	return exitOK
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func printJSON(v any) int {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitError
	}
	return exitOK
}
