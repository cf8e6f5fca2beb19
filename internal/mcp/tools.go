package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// createInitCrawlTool returns the init_crawl tool definition.
func createInitCrawlTool() mcp.Tool {
	return mcp.NewTool("init_crawl",
		mcp.WithDescription("Start crawling a documentation site. Returns a job ID for tracking progress."),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Library or framework name (e.g. 'react', 'django')"),
		),
		mcp.WithArray("start_urls",
			mcp.Required(),
			mcp.WithStringItems(),
			mcp.Description("URLs to start crawling from"),
		),
		mcp.WithNumber("max_depth",
			mcp.Description("Link-following depth from the start URLs (0-3, default 1)"),
		),
		mcp.WithString("domain_filter",
			mcp.Description("Restrict crawling to this domain (default: domains of the start URLs)"),
		),
		mcp.WithArray("url_patterns",
			mcp.WithStringItems(),
			mcp.Description("URL glob patterns to include (e.g. '*docs*')"),
		),
		mcp.WithArray("include_patterns",
			mcp.WithStringItems(),
			mcp.Description("Alias of url_patterns"),
		),
		mcp.WithArray("exclude_patterns",
			mcp.WithStringItems(),
			mcp.Description("URL glob patterns to exclude"),
		),
		mcp.WithNumber("max_pages",
			mcp.Description("Hard cap on pages fetched in this run"),
		),
		mcp.WithString("version",
			mcp.Description("Documentation version label (e.g. '18.2')"),
		),
	)
}

// createSearchLibrariesTool returns the search_libraries tool definition.
func createSearchLibrariesTool() mcp.Tool {
	return mcp.NewTool("search_libraries",
		mcp.WithDescription("Find indexed documentation libraries by name."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Library name or fragment to search for"),
		),
		mcp.WithNumber("max_results",
			mcp.Description("Maximum libraries to return"),
		),
		mcp.WithNumber("page",
			mcp.Description("Page number, starting at 1"),
		),
	)
}

// createGetContentTool returns the get_content tool definition.
func createGetContentTool() mcp.Tool {
	return mcp.NewTool("get_content",
		mcp.WithDescription("Get code snippets from a library, optionally filtered by a search query."),
		mcp.WithString("library_id",
			mcp.Required(),
			mcp.Description("Library UUID, exact name, or unique name prefix"),
		),
		mcp.WithString("query",
			mcp.Description("Full-text query over titles, descriptions, and code; empty returns recent snippets"),
		),
		mcp.WithString("language",
			mcp.Description("Filter snippets by programming language"),
		),
		mcp.WithNumber("max_results",
			mcp.Description("Maximum snippets to return"),
		),
		mcp.WithNumber("page",
			mcp.Description("Page number, starting at 1"),
		),
	)
}

// createGetPageMarkdownTool returns the get_page_markdown tool definition.
func createGetPageMarkdownTool() mcp.Tool {
	return mcp.NewTool("get_page_markdown",
		mcp.WithDescription("Fetch the stored markdown of a crawled page, chunked to fit a token budget."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("Exact URL of the crawled page"),
		),
		mcp.WithString("query",
			mcp.Description("Highlight matches and jump to the first matching chunk"),
		),
		mcp.WithNumber("max_tokens",
			mcp.Description("Approximate token budget per chunk (default 2048)"),
		),
		mcp.WithNumber("chunk_index",
			mcp.Description("Zero-based chunk to return"),
		),
	)
}
