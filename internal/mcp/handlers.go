package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"codedox/internal/jobs"
	"codedox/internal/model"
)

func textResult(v any) *mcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult(model.KindInternal, fmt.Sprintf("encode result: %v", err))
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.NewTextContent(string(data))},
	}
}

// errorResult renders the {status, kind, message} error envelope.
func errorResult(kind model.Kind, msg string) *mcp.CallToolResult {
	data, _ := json.Marshal(map[string]string{
		"status":  "error",
		"kind":    string(kind),
		"message": msg,
	})
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{mcp.NewTextContent(string(data))},
	}
}

func errorFrom(err error) *mcp.CallToolResult {
	return errorResult(model.KindOf(err), err.Error())
}

// handleInitCrawl implements the init_crawl tool.
func (s *Server) handleInitCrawl() server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		name, err := request.RequireString("name")
		if err != nil || name == "" {
			return errorResult(model.KindValidation, "name parameter is required"), nil
		}
		startURLs := request.GetStringSlice("start_urls", nil)
		if len(startURLs) == 0 {
			return errorResult(model.KindValidation, "start_urls parameter is required"), nil
		}

		var version *string
		if v := request.GetString("version", ""); v != "" {
			version = &v
		}

		include := request.GetStringSlice("url_patterns", nil)
		include = append(include, request.GetStringSlice("include_patterns", nil)...)

		job, err := s.manager.Create(ctx, jobs.CreateParams{
			Name:            name,
			StartURLs:       startURLs,
			MaxDepth:        request.GetInt("max_depth", 1),
			DomainFilter:    request.GetString("domain_filter", ""),
			IncludePatterns: include,
			ExcludePatterns: request.GetStringSlice("exclude_patterns", nil),
			MaxPages:        request.GetInt("max_pages", 0),
			Version:         version,
		})
		if err != nil {
			return errorFrom(err), nil
		}
		if err := s.manager.Start(job, s.pipeline.Run); err != nil {
			return errorFrom(err), nil
		}

		s.logger.Info("mcp crawl started", "job_id", job.ID, "name", name)
		return textResult(map[string]any{
			"job_id":  job.ID,
			"status":  "started",
			"message": fmt.Sprintf("Crawl of %q started. Poll crawl status with the job ID.", name),
		}), nil
	}
}

// handleSearchLibraries implements the search_libraries tool.
func (s *Server) handleSearchLibraries() server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := request.RequireString("query")
		if err != nil {
			return errorResult(model.KindValidation, "query parameter is required"), nil
		}

		res, err := s.search.SearchLibraries(ctx, query,
			request.GetInt("max_results", 0), request.GetInt("page", 1))
		if err != nil {
			return errorFrom(err), nil
		}
		return textResult(res), nil
	}
}

// handleGetContent implements the get_content tool.
func (s *Server) handleGetContent() server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		libraryID, err := request.RequireString("library_id")
		if err != nil || libraryID == "" {
			return errorResult(model.KindValidation, "library_id parameter is required"), nil
		}

		res, err := s.search.GetContent(ctx, libraryID,
			request.GetString("query", ""),
			request.GetString("language", ""),
			request.GetInt("max_results", 0),
			request.GetInt("page", 1))
		if err != nil {
			return errorFrom(err), nil
		}
		return textResult(res), nil
	}
}

// handleGetPageMarkdown implements the get_page_markdown tool.
func (s *Server) handleGetPageMarkdown() server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		pageURL, err := request.RequireString("url")
		if err != nil || pageURL == "" {
			return errorResult(model.KindValidation, "url parameter is required"), nil
		}

		res, err := s.search.GetPageMarkdown(ctx, pageURL,
			request.GetString("query", ""),
			request.GetInt("max_tokens", 0),
			request.GetInt("chunk_index", 0))
		if err != nil {
			return errorFrom(err), nil
		}
		return textResult(res), nil
	}
}
