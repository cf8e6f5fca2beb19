package http

import (
	"io"
	"mime/multipart"
	"strings"

	"github.com/gofiber/fiber/v2"

	"codedox/internal/crawl"
	"codedox/internal/model"
)

func (h *handlers) uploadEnabled(c *fiber.Ctx) error {
	if !h.deps.Config.Upload.Enabled {
		return fail(c, model.E(model.KindValidation, "uploads are disabled"))
	}
	return nil
}

// uploadFile ingests one multipart file. Fields: file, source_name,
// version (optional), url (optional logical URL), title (optional).
func (h *handlers) uploadFile(c *fiber.Ctx) error {
	if err := h.uploadEnabled(c); err != nil {
		return err
	}

	fh, err := c.FormFile("file")
	if err != nil {
		return badRequest(c, "file field is required")
	}

	res, err := h.ingestMultipartFile(c, fh)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "result": res})
}

// uploadFiles ingests a batch of multipart files under the same source.
// Per-file failures are reported inline without aborting the batch.
func (h *handlers) uploadFiles(c *fiber.Ctx) error {
	if err := h.uploadEnabled(c); err != nil {
		return err
	}

	form, err := c.MultipartForm()
	if err != nil {
		return badRequest(c, "multipart form is required")
	}
	files := form.File["files"]
	if len(files) == 0 {
		files = form.File["file"]
	}
	if len(files) == 0 {
		return badRequest(c, "no files in request")
	}

	type fileOutcome struct {
		File   string              `json:"file"`
		Result *crawl.UploadResult `json:"result,omitempty"`
		Error  string              `json:"error,omitempty"`
	}

	outcomes := make([]fileOutcome, 0, len(files))
	failed := 0
	for _, fh := range files {
		res, err := h.ingestMultipartFile(c, fh)
		if err != nil {
			failed++
			outcomes = append(outcomes, fileOutcome{File: fh.Filename, Error: err.Error()})
			continue
		}
		outcomes = append(outcomes, fileOutcome{File: fh.Filename, Result: &res})
	}

	return c.JSON(fiber.Map{
		"success": failed == 0,
		"files":   outcomes,
		"failed":  failed,
	})
}

func (h *handlers) ingestMultipartFile(c *fiber.Ctx, fh *multipart.FileHeader) (crawl.UploadResult, error) {
	f, err := fh.Open()
	if err != nil {
		return crawl.UploadResult{}, model.Wrap(model.KindValidation, "cannot open uploaded file", err)
	}
	defer f.Close()

	body, err := io.ReadAll(io.LimitReader(f, int64(h.deps.Config.API.MaxRequestSize)))
	if err != nil {
		return crawl.UploadResult{}, model.Wrap(model.KindValidation, "cannot read uploaded file", err)
	}

	contentType := fh.Header.Get("Content-Type")
	// Browsers send application/octet-stream for .md and friends; let the
	// extension decide in that case.
	if strings.Contains(contentType, "octet-stream") {
		contentType = ""
	}

	return h.deps.Pipeline.IngestUpload(c.Context(), crawl.UploadParams{
		SourceName:  c.FormValue("source_name"),
		Version:     optionalFormValue(c, "version"),
		FileName:    fh.Filename,
		ContentType: contentType,
		URL:         c.FormValue("url"),
		Content:     string(body),
		Title:       c.FormValue("title"),
	})
}

func optionalFormValue(c *fiber.Ctx, key string) *string {
	v := strings.TrimSpace(c.FormValue(key))
	if v == "" {
		return nil
	}
	return &v
}

// UploadMarkdownRequest is the JSON upload body.
type UploadMarkdownRequest struct {
	SourceName  string  `json:"source_name"`
	Version     *string `json:"version,omitempty"`
	FileName    string  `json:"file_name,omitempty"`
	ContentType string  `json:"content_type,omitempty"`
	URL         string  `json:"url,omitempty"`
	Title       string  `json:"title,omitempty"`
	Content     string  `json:"content"`
}

func (h *handlers) uploadMarkdown(c *fiber.Ctx) error {
	if err := h.uploadEnabled(c); err != nil {
		return err
	}

	var req UploadMarkdownRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid JSON body")
	}
	if req.FileName == "" {
		req.FileName = "upload.md"
	}
	if req.ContentType == "" {
		req.ContentType = "text/markdown"
	}

	res, err := h.deps.Pipeline.IngestUpload(c.Context(), crawl.UploadParams{
		SourceName:  req.SourceName,
		Version:     req.Version,
		FileName:    req.FileName,
		ContentType: req.ContentType,
		URL:         req.URL,
		Content:     req.Content,
		Title:       req.Title,
	})
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "result": res})
}
