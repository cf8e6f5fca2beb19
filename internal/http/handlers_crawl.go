package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"codedox/internal/jobs"
	"codedox/internal/model"
)

// CrawlInitRequest is the init_crawl input shared by the API and MCP.
type CrawlInitRequest struct {
	Name            string   `json:"name"`
	StartURLs       []string `json:"start_urls"`
	MaxDepth        int      `json:"max_depth"`
	DomainFilter    string   `json:"domain_filter,omitempty"`
	URLPatterns     []string `json:"url_patterns,omitempty"`
	IncludePatterns []string `json:"include_patterns,omitempty"`
	ExcludePatterns []string `json:"exclude_patterns,omitempty"`
	MaxConcurrent   int      `json:"max_concurrent_crawls,omitempty"`
	MaxPages        int      `json:"max_pages,omitempty"`
	Version         *string  `json:"version,omitempty"`
}

func (h *handlers) crawlInit(c *fiber.Ctx) error {
	var req CrawlInitRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid JSON body")
	}
	// url_patterns is the tool-surface name for include patterns.
	req.IncludePatterns = append(req.IncludePatterns, req.URLPatterns...)

	job, err := h.deps.Manager.Create(c.Context(), jobs.CreateParams{
		Name:            req.Name,
		StartURLs:       req.StartURLs,
		MaxDepth:        req.MaxDepth,
		IncludePatterns: req.IncludePatterns,
		ExcludePatterns: req.ExcludePatterns,
		DomainFilter:    req.DomainFilter,
		MaxConcurrent:   req.MaxConcurrent,
		MaxPages:        req.MaxPages,
		Version:         req.Version,
	})
	if err != nil {
		return fail(c, err)
	}

	if err := h.deps.Manager.Start(job, h.deps.Pipeline.Run); err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"success": true,
		"job_id":  job.ID,
	})
}

func (h *handlers) crawlStatus(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid job id")
	}
	job, err := h.deps.Manager.Get(c.Context(), id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(job)
}

func (h *handlers) crawlList(c *fiber.Ctx) error {
	status := model.JobStatus(c.Query("status"))
	limit := c.QueryInt("limit", 50)
	offset := c.QueryInt("offset", 0)

	list, total, err := h.deps.Manager.List(c.Context(), status, limit, offset)
	if err != nil {
		return fail(c, err)
	}
	if list == nil {
		list = []model.CrawlJob{}
	}
	return c.JSON(fiber.Map{"jobs": list, "total": total})
}

func (h *handlers) crawlCancel(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid job id")
	}
	job, err := h.deps.Manager.Cancel(c.Context(), id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "cancelled": job.Status == model.JobCancelled, "status": job.Status})
}

func (h *handlers) crawlCancelAll(c *fiber.Ctx) error {
	n, err := h.deps.Manager.CancelAll(c.Context())
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "cancelled": n})
}

func (h *handlers) crawlResume(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid job id")
	}

	job, err := h.deps.Manager.Resume(c.Context(), id)
	if err != nil {
		return fail(c, err)
	}
	if err := h.deps.Manager.Start(job, h.deps.Pipeline.Run); err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"success":    true,
		"job_id":     job.ID,
		"generation": job.RetryGeneration,
	})
}

func (h *handlers) crawlFailedPages(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid job id")
	}
	pages, err := h.deps.Store.ListFailedPages(c.Context(), id)
	if err != nil {
		return fail(c, err)
	}
	if pages == nil {
		pages = []model.FailedPage{}
	}
	return c.JSON(fiber.Map{"failed_pages": pages, "total": len(pages)})
}
