package http

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"codedox/internal/jobs"
	"codedox/internal/model"
)

func (h *handlers) sourcesList(c *fiber.Ctx) error {
	q := c.Query("q")
	limit := c.QueryInt("limit", 50)
	offset := c.QueryInt("offset", 0)

	srcs, total, err := h.deps.Store.SearchSources(c.Context(), q, limit, offset)
	if err != nil {
		return fail(c, err)
	}
	if srcs == nil {
		srcs = []model.Source{}
	}
	return c.JSON(fiber.Map{"sources": srcs, "total": total})
}

// sourceGet accepts a UUID, an exact name, or a unique name prefix.
func (h *handlers) sourceGet(c *fiber.Ctx) error {
	src, err := h.deps.Store.ResolveSource(c.Context(), c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(src)
}

func (h *handlers) sourceRename(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid source id")
	}

	var req struct {
		Name    string  `json:"name"`
		Version *string `json:"version,omitempty"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid JSON body")
	}
	if strings.TrimSpace(req.Name) == "" {
		return badRequest(c, "name is required")
	}

	src, err := h.deps.Store.RenameSource(c.Context(), id, req.Name, req.Version)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(src)
}

func (h *handlers) sourceDelete(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid source id")
	}
	if err := h.deps.Store.DeleteSource(c.Context(), id); err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"success": true})
}

func (h *handlers) sourcesBulkDelete(c *fiber.Ctx) error {
	var req struct {
		IDs []string `json:"ids"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid JSON body")
	}
	if len(req.IDs) == 0 {
		return badRequest(c, "ids is empty")
	}

	ids := make([]uuid.UUID, 0, len(req.IDs))
	for _, raw := range req.IDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			return badRequest(c, "invalid source id: "+raw)
		}
		ids = append(ids, id)
	}

	n, err := h.deps.Store.BulkDeleteSources(c.Context(), ids)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "deleted": n})
}

func (h *handlers) sourceSnippets(c *fiber.Ctx) error {
	src, err := h.deps.Store.ResolveSource(c.Context(), c.Params("id"))
	if err != nil {
		return fail(c, err)
	}

	limit := c.QueryInt("limit", 50)
	offset := c.QueryInt("offset", 0)
	snippets, total, err := h.deps.Store.ListSnippetsBySource(c.Context(), src.ID, limit, offset)
	if err != nil {
		return fail(c, err)
	}
	if snippets == nil {
		snippets = []model.CodeSnippet{}
	}
	return c.JSON(fiber.Map{"snippets": snippets, "total": total, "source": src})
}

func (h *handlers) sourceDocuments(c *fiber.Ctx) error {
	src, err := h.deps.Store.ResolveSource(c.Context(), c.Params("id"))
	if err != nil {
		return fail(c, err)
	}

	limit := c.QueryInt("limit", 50)
	offset := c.QueryInt("offset", 0)
	docs, total, err := h.deps.Store.ListDocumentsBySource(c.Context(), src.ID, limit, offset)
	if err != nil {
		return fail(c, err)
	}
	if docs == nil {
		docs = []model.Document{}
	}
	return c.JSON(fiber.Map{"documents": docs, "total": total, "source": src})
}

// sourceRecrawl starts a fresh crawl job seeded from the source's base
// URL. Unchanged pages will be skipped by the content-hash check.
func (h *handlers) sourceRecrawl(c *fiber.Ctx) error {
	src, err := h.deps.Store.ResolveSource(c.Context(), c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	if src.BaseURL == "" {
		return fail(c, model.E(model.KindValidation, "source has no base URL to recrawl"))
	}

	var req struct {
		MaxDepth      *int `json:"max_depth,omitempty"`
		MaxConcurrent int  `json:"max_concurrent_crawls,omitempty"`
		MaxPages      int  `json:"max_pages,omitempty"`
	}
	_ = c.BodyParser(&req)

	depth := 1
	if req.MaxDepth != nil {
		depth = *req.MaxDepth
	}

	job, err := h.deps.Manager.Create(c.Context(), jobs.CreateParams{
		Name:          src.Name,
		StartURLs:     []string{src.BaseURL},
		MaxDepth:      depth,
		MaxConcurrent: req.MaxConcurrent,
		MaxPages:      req.MaxPages,
		Version:       src.Version,
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

// sourceRegenerate re-annotates every snippet of a source in the
// background. Progress streams on the websocket topic of the source ID.
func (h *handlers) sourceRegenerate(c *fiber.Ctx) error {
	src, err := h.deps.Store.ResolveSource(c.Context(), c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	if !h.deps.Annotator.Enabled() {
		return fail(c, model.E(model.KindConflict, "annotation is not configured"))
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Hour)
		defer cancel()
		res, err := h.deps.Annotator.Regenerate(ctx, h.deps.Store, h.deps.Broker, src.ID)
		if err != nil {
			h.deps.Logger.Error("regenerate failed", "source_id", src.ID, "error", err)
			return
		}
		h.deps.Logger.Info("regenerate finished",
			"source_id", src.ID,
			"processed", res.Processed,
			"changed", res.Changed,
			"failed", res.Failed,
		)
	}()

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"success":   true,
		"source_id": src.ID,
		"topic":     src.ID.String(),
	})
}
