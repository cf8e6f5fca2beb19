package http

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"codedox/internal/model"
)

// SearchRequest is accepted both as query parameters (GET) and as a JSON
// body (POST). The MCP get_content tool shares the same shape.
type SearchRequest struct {
	Query      string `json:"query"`
	LibraryID  string `json:"library_id,omitempty"`
	Language   string `json:"language,omitempty"`
	MaxResults int    `json:"max_results,omitempty"`
	Page       int    `json:"page,omitempty"`
}

func parseSearchRequest(c *fiber.Ctx) (SearchRequest, error) {
	var req SearchRequest
	if c.Method() == fiber.MethodPost {
		if err := c.BodyParser(&req); err != nil {
			return req, model.E(model.KindValidation, "invalid JSON body")
		}
		return req, nil
	}
	req.Query = c.Query("query", c.Query("q"))
	req.LibraryID = c.Query("library_id", c.Query("source"))
	if req.LibraryID == "" {
		req.LibraryID = c.Query("source_id")
	}
	req.Language = c.Query("language")
	req.MaxResults = c.QueryInt("max_results", c.QueryInt("limit", 0))
	req.Page = c.QueryInt("page", 1)
	// Offset-style pagination maps onto pages when limit is known.
	if off := c.QueryInt("offset", 0); off > 0 && req.MaxResults > 0 {
		req.Page = off/req.MaxResults + 1
	}
	return req, nil
}

func (h *handlers) searchSnippets(c *fiber.Ctx) error {
	req, err := parseSearchRequest(c)
	if err != nil {
		return fail(c, err)
	}

	res, err := h.deps.Search.SearchSnippets(c.Context(),
		req.Query, req.LibraryID, req.Language, req.MaxResults, req.Page)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(res)
}

func (h *handlers) searchLibraries(c *fiber.Ctx) error {
	query := c.Query("query", c.Query("q"))
	limit := c.QueryInt("max_results", c.QueryInt("limit", 0))
	page := c.QueryInt("page", 1)

	res, err := h.deps.Search.SearchLibraries(c.Context(), query, limit, page)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(res)
}

func (h *handlers) snippetGet(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid snippet id")
	}
	snip, err := h.deps.Store.GetSnippetByID(c.Context(), id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(snip)
}

// snippetsDeleteByQuery removes every snippet matching a full-text
// query, optionally scoped to one source. The query is mandatory; there
// is no delete-everything form.
func (h *handlers) snippetsDeleteByQuery(c *fiber.Ctx) error {
	query := strings.TrimSpace(c.Query("query", c.Query("q")))
	if query == "" {
		return badRequest(c, "query is required")
	}

	var sourceID *uuid.UUID
	if raw := c.Query("source_id"); raw != "" {
		src, err := h.deps.Store.ResolveSource(c.Context(), raw)
		if err != nil {
			return fail(c, err)
		}
		sourceID = &src.ID
	}

	n, err := h.deps.Store.DeleteSnippetsByQuery(c.Context(), query, sourceID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "deleted": n})
}

func (h *handlers) pageMarkdown(c *fiber.Ctx) error {
	pageURL := c.Query("url")
	if pageURL == "" {
		return badRequest(c, "url is required")
	}
	query := c.Query("query")
	maxTokens := c.QueryInt("max_tokens", 0)
	chunkIndex := c.QueryInt("chunk_index", 0)

	res, err := h.deps.Search.GetPageMarkdown(c.Context(), pageURL, query, maxTokens, chunkIndex)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(res)
}

func (h *handlers) pageMarkdownByID(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid document id")
	}
	doc, err := h.deps.Store.GetDocumentByID(c.Context(), id)
	if err != nil {
		return fail(c, err)
	}

	query := c.Query("query")
	maxTokens := c.QueryInt("max_tokens", 0)
	chunkIndex := c.QueryInt("chunk_index", 0)

	res, err := h.deps.Search.GetPageMarkdown(c.Context(), doc.URL, query, maxTokens, chunkIndex)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(res)
}
