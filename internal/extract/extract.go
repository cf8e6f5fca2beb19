package extract

import (
	"path"
	"strings"

	"codedox/internal/model"
)

// Extractor turns one page or file into code blocks with semantic
// context. Extractors are pure: identical input yields identical output.
type Extractor interface {
	Extract(content string, sourceURL string) ([]model.ExtractedCodeBlock, error)
}

// Limits bounds what a single block may contain. Zero values fall back
// to permissive defaults.
type Limits struct {
	MaxBlockSize     int
	MinLines         int
	MaxContextLength int
}

func (l Limits) withDefaults() Limits {
	if l.MaxBlockSize <= 0 {
		l.MaxBlockSize = 50000
	}
	if l.MinLines <= 0 {
		l.MinLines = 1
	}
	if l.MaxContextLength <= 0 {
		l.MaxContextLength = 2000
	}
	return l
}

// ForContent picks an extractor from a content type and, failing that,
// the URL or filename extension. Unknown text flavors fall back to the
// Markdown extractor in fence-only mode.
func ForContent(contentType, urlOrName string, limits Limits) Extractor {
	ct := strings.ToLower(contentType)
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}

	switch ct {
	case "text/html", "application/xhtml+xml":
		return NewHTML(limits)
	case "text/markdown":
		return NewMarkdown(limits)
	case "text/x-rst":
		return NewRST(limits)
	}

	switch strings.ToLower(path.Ext(strings.SplitN(urlOrName, "?", 2)[0])) {
	case ".md", ".mdx", ".markdown":
		return NewMarkdown(limits)
	case ".rst", ".rest", ".restx", ".rtxt", ".rstx":
		return NewRST(limits)
	case ".txt":
		return NewFenceOnly(limits)
	case ".html", ".htm":
		return NewHTML(limits)
	}

	if ct == "text/plain" {
		return NewFenceOnly(limits)
	}
	return NewHTML(limits)
}
