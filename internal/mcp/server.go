// Package mcp exposes the snippet database to AI assistants over the
// Model Context Protocol: stdio for local clients and streamable HTTP
// mounted on the API server, plus a plain REST fallback for clients
// that do not speak MCP.
package mcp

import (
	"encoding/json"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"codedox/internal/crawl"
	"codedox/internal/jobs"
	"codedox/internal/search"
)

const serverVersion = "1.0.0"

// Server owns the MCP tool registry and its transports.
type Server struct {
	manager  *jobs.Manager
	pipeline *crawl.Pipeline
	search   *search.Service
	logger   *slog.Logger

	mcp      *mcpserver.MCPServer
	tools    []mcp.Tool
	handlers map[string]mcpserver.ToolHandlerFunc
}

// Deps are the services the tools delegate to.
type Deps struct {
	Manager  *jobs.Manager
	Pipeline *crawl.Pipeline
	Search   *search.Service
	Logger   *slog.Logger
}

func New(d Deps) *Server {
	s := &Server{
		manager:  d.Manager,
		pipeline: d.Pipeline,
		search:   d.Search,
		logger:   d.Logger,
		handlers: make(map[string]mcpserver.ToolHandlerFunc),
	}

	s.mcp = mcpserver.NewMCPServer(
		"codedox",
		serverVersion,
		mcpserver.WithToolCapabilities(true),
	)

	s.register(createInitCrawlTool(), s.handleInitCrawl())
	s.register(createSearchLibrariesTool(), s.handleSearchLibraries())
	s.register(createGetContentTool(), s.handleGetContent())
	s.register(createGetPageMarkdownTool(), s.handleGetPageMarkdown())

	return s
}

// register adds a tool to both the MCP server and the REST fallback
// registry.
func (s *Server) register(tool mcp.Tool, handler mcpserver.ToolHandlerFunc) {
	s.mcp.AddTool(tool, handler)
	s.tools = append(s.tools, tool)
	s.handlers[tool.Name] = handler
}

// ServeStdio blocks serving MCP over stdin/stdout.
func (s *Server) ServeStdio() error {
	return mcpserver.ServeStdio(s.mcp)
}

// FiberHandler serves three surfaces under /mcp: GET /mcp/tools lists
// tool definitions, POST /mcp/execute/<tool> invokes one with a JSON
// argument object, and everything else goes to the streamable HTTP
// transport.
func (s *Server) FiberHandler() fiber.Handler {
	streamable := adaptor.HTTPHandler(
		mcpserver.NewStreamableHTTPServer(s.mcp, mcpserver.WithStateLess(true)),
	)

	return func(c *fiber.Ctx) error {
		path := c.Path()
		switch {
		case path == "/mcp/tools" && c.Method() == fiber.MethodGet:
			return s.listTools(c)
		case len(path) > len("/mcp/execute/") && path[:len("/mcp/execute/")] == "/mcp/execute/" &&
			c.Method() == fiber.MethodPost:
			return s.executeTool(c, path[len("/mcp/execute/"):])
		default:
			return streamable(c)
		}
	}
}

func (s *Server) listTools(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"tools": s.tools})
}

func (s *Server) executeTool(c *fiber.Ctx, name string) error {
	handler, ok := s.handlers[name]
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"error":   "unknown tool: " + name,
		})
	}

	args := map[string]any{}
	if len(c.Body()) > 0 {
		if err := json.Unmarshal(c.Body(), &args); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"success": false,
				"error":   "invalid JSON body",
			})
		}
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	result, err := handler(c.Context(), req)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   err.Error(),
		})
	}

	text := ""
	if len(result.Content) > 0 {
		if tc, ok := result.Content[0].(mcp.TextContent); ok {
			text = tc.Text
		}
	}

	if result.IsError {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   text,
		})
	}

	// Tool output is already JSON; pass it through untouched.
	return c.JSON(fiber.Map{
		"success": true,
		"result":  json.RawMessage(text),
	})
}
