package http

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"codedox/internal/annotate"
	"codedox/internal/config"
	"codedox/internal/crawl"
	"codedox/internal/jobs"
	"codedox/internal/metrics"
	"codedox/internal/progress"
	"codedox/internal/search"
	"codedox/internal/store"
)

// Server wires the JSON API, the websocket progress stream, and the MCP
// HTTP surface onto one fiber app.
type Server struct {
	app    *fiber.App
	config *config.Config
	logger *slog.Logger
}

// Deps collects everything the handlers reach for.
type Deps struct {
	Config    *config.Config
	Store     *store.Store
	Manager   *jobs.Manager
	Pipeline  *crawl.Pipeline
	Annotator *annotate.Annotator
	Broker    *progress.Broker
	Search    *search.Service
	Logger    *slog.Logger

	// MCPHandler, when set, is mounted at /mcp for streamable HTTP.
	MCPHandler fiber.Handler
}

func NewServer(d Deps) *Server {
	cfg := d.Config
	app := fiber.New(fiber.Config{
		BodyLimit:             cfg.API.MaxRequestSize,
		DisableStartupMessage: true,
	})

	if len(cfg.API.CORSOrigins) > 0 {
		app.Use(corsMiddleware(cfg.API.CORSOrigins))
	}

	// Request logging + metrics middleware
	app.Use(func(c *fiber.Ctx) error {
		start := time.Now()

		reqID := c.Get("X-Request-Id")
		if reqID == "" {
			reqID = uuid.New().String()
		}
		c.Locals("request_id", reqID)

		err := c.Next()

		latency := time.Since(start)
		status := c.Response().StatusCode()
		metrics.RecordRequest(c.Method(), c.Path(), status, latency.Milliseconds())

		if d.Logger != nil {
			d.Logger.Info("request",
				"request_id", reqID,
				"method", c.Method(),
				"path", c.Path(),
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		}
		return err
	})

	// Redis client for rate limiting and deep health checks
	var rdb *redis.Client
	if cfg.Redis.URL != "" {
		if opt, err := redis.ParseURL(cfg.Redis.URL); err == nil {
			rdb = redis.NewClient(opt)
		}
	}

	// Health endpoints
	app.Get("/health", func(c *fiber.Ctx) error {
		if c.Query("deep") != "true" {
			return c.JSON(fiber.Map{"status": "ok"})
		}

		ctx, cancel := context.WithTimeout(c.Context(), 2*time.Second)
		defer cancel()

		dbStatus := "ok"
		if err := d.Store.DB.PingContext(ctx); err != nil {
			dbStatus = "error"
		}

		redisStatus := "disabled"
		if rdb != nil {
			if err := rdb.Ping(ctx).Err(); err != nil {
				redisStatus = "error"
			} else {
				redisStatus = "ok"
			}
		}

		llmStatus := "disabled"
		if d.Annotator.Enabled() {
			llmStatus = "enabled"
		}

		status := "ok"
		if dbStatus != "ok" || redisStatus == "error" {
			status = "error"
		}
		return c.JSON(fiber.Map{
			"status":      status,
			"db":          dbStatus,
			"redis":       redisStatus,
			"llm":         llmStatus,
			"active_jobs": d.Manager.ActiveCount(),
		})
	})

	// Prometheus-style metrics endpoint
	app.Get("/metrics", func(c *fiber.Ctx) error {
		c.Type("text/plain")
		return c.SendString(metrics.Export())
	})

	authMw := authMiddleware(cfg)
	var rateMw fiber.Handler
	if rdb != nil {
		rateMw = rateLimitMiddleware(cfg, rdb)
	} else {
		rateMw = func(c *fiber.Ctx) error { return c.Next() }
	}

	h := &handlers{deps: d}

	api := app.Group("/api", authMw, rateMw)
	h.registerAPIRoutes(api)

	if d.MCPHandler != nil {
		app.All("/mcp", authMw, rateMw, d.MCPHandler)
		app.All("/mcp/*", authMw, rateMw, d.MCPHandler)
	}

	// Websocket progress stream. Auth runs first, then the upgrade check
	// must run before the websocket handler claims the connection.
	app.Use("/ws", authMw, func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/:client_id", websocket.New(h.progressSocket))

	return &Server{app: app, config: cfg, logger: d.Logger}
}

func (s *Server) Listen() error {
	addr := fmt.Sprintf("%s:%d", s.config.API.Host, s.config.API.Port)
	if s.logger != nil {
		s.logger.Info("api listening", "addr", addr)
	}
	return s.app.Listen(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

// App exposes the fiber app for tests.
func (s *Server) App() *fiber.App { return s.app }

type handlers struct {
	deps Deps
}

func (h *handlers) registerAPIRoutes(g fiber.Router) {
	g.Post("/crawl/init", h.crawlInit)
	g.Get("/crawl/status/:id", h.crawlStatus)
	g.Get("/crawl/list", h.crawlList)
	g.Post("/crawl/cancel/:id", h.crawlCancel)
	g.Post("/crawl/cancel-all", h.crawlCancelAll)
	g.Post("/crawl/resume/:id", h.crawlResume)
	g.Post("/crawl/:id/resume", h.crawlResume)
	g.Get("/crawl/failed/:id", h.crawlFailedPages)

	g.Get("/sources", h.sourcesList)
	g.Get("/sources/:id", h.sourceGet)
	g.Patch("/sources/:id", h.sourceRename)
	g.Delete("/sources/:id", h.sourceDelete)
	g.Post("/sources/bulk-delete", h.sourcesBulkDelete)
	g.Get("/sources/:id/snippets", h.sourceSnippets)
	g.Get("/sources/:id/documents", h.sourceDocuments)
	g.Post("/sources/:id/recrawl", h.sourceRecrawl)
	g.Post("/sources/:id/regenerate", h.sourceRegenerate)

	g.Get("/search", h.searchSnippets)
	g.Post("/search", h.searchSnippets)
	g.Get("/search/libraries", h.searchLibraries)
	g.Get("/snippets/:id", h.snippetGet)
	g.Delete("/snippets", h.snippetsDeleteByQuery)
	g.Get("/documents/markdown", h.pageMarkdown)
	g.Get("/documents/:id/markdown", h.pageMarkdownByID)

	g.Post("/upload/file", h.uploadFile)
	g.Post("/upload/files", h.uploadFiles)
	g.Post("/upload/markdown", h.uploadMarkdown)
}

func corsMiddleware(origins []string) fiber.Handler {
	allowed := make(map[string]bool, len(origins))
	wildcard := false
	for _, o := range origins {
		o = strings.TrimSpace(o)
		if o == "*" {
			wildcard = true
		}
		allowed[o] = true
	}

	return func(c *fiber.Ctx) error {
		origin := c.Get("Origin")
		if origin != "" && (wildcard || allowed[origin]) {
			c.Set("Access-Control-Allow-Origin", origin)
			c.Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
			c.Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		}
		if c.Method() == fiber.MethodOptions {
			return c.SendStatus(fiber.StatusNoContent)
		}
		return c.Next()
	}
}
