package extract

import (
	"net/url"
	"strings"

	htmlmd "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"codedox/internal/model"
)

// HTML extracts code blocks from rendered pages. Block containers are
// recognized by a fixed selector set; everything else in document order
// feeds the shared context assembly. Inline <code> inside prose is never
// a block, it simply contributes its text to the description.
type HTML struct {
	limits Limits
}

func NewHTML(limits Limits) *HTML {
	return &HTML{limits: limits}
}

// Elements whose subtree carries no documentation prose.
var skipElements = map[string]bool{
	"script": true, "style": true, "noscript": true, "svg": true,
	"nav": true, "header": true, "footer": true, "aside": true,
	"button": true, "form": true, "iframe": true,
}

// Elements treated as one prose unit each.
var proseElements = map[string]bool{
	"p": true, "li": true, "dt": true, "dd": true,
	"blockquote": true, "figcaption": true, "td": true,
}

// Chrome inside code containers that must not leak into the code text.
const chromeSelector = `.copy, .copy-button, [class*="clipboard"], .linenos, .line-numbers, ` +
	`[class*="lineno"], .gutter, [class*="line-number"]`

func (h *HTML) Extract(content string, sourceURL string) ([]model.ExtractedCodeBlock, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return nil, model.Wrap(model.KindExtract, "parse html", err)
	}

	doc.Find(chromeSelector).Remove()

	root := doc.Find("body")
	if root.Length() == 0 {
		root = doc.Selection
	}

	var nodes []node
	root.Each(func(_ int, sel *goquery.Selection) {
		for _, n := range sel.Nodes {
			nodes = h.walk(n, nodes)
		}
	})
	return assemble(nodes, h.limits), nil
}

func (h *HTML) walk(n *html.Node, nodes []node) []node {
	if n.Type != html.ElementNode {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			nodes = h.walk(c, nodes)
		}
		return nodes
	}

	name := n.Data
	if skipElements[name] {
		return nodes
	}

	switch {
	case headingLevel(name) > 0:
		sel := newSelection(n)
		nodes = append(nodes, node{kind: nodeHeading, level: headingLevel(name), text: sel.Text()})
		return nodes

	case name == "pre" || isCodeTextarea(n):
		if block, ok := h.codeBlock(n); ok {
			nodes = append(nodes, node{kind: nodeCode, block: block})
		}
		return nodes

	case proseElements[name]:
		// A pre nested inside li or blockquote is still a block.
		if pre := findDescendant(n, "pre"); pre != nil {
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				nodes = h.walk(c, nodes)
			}
			return nodes
		}
		sel := newSelection(n)
		nodes = append(nodes, node{kind: nodeProse, text: sel.Text()})
		return nodes
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		nodes = h.walk(c, nodes)
	}
	return nodes
}

// codeBlock builds an ExtractedCodeBlock from a pre or textarea node.
func (h *HTML) codeBlock(n *html.Node) (model.ExtractedCodeBlock, bool) {
	sel := newSelection(n)

	code := sel.Find("code").First().Text()
	if code == "" {
		code = sel.Text()
	}
	code = strings.Trim(code, "\n")
	if strings.TrimSpace(code) == "" {
		return model.ExtractedCodeBlock{}, false
	}

	return model.ExtractedCodeBlock{
		Language: languageHint(n),
		Code:     code,
		Filename: filenameHint(n),
	}, true
}

// languageHint inspects the container, its code child, and enclosing
// highlighter wrappers for a language class or data attribute.
func languageHint(n *html.Node) string {
	for cur := n; cur != nil; cur = cur.Parent {
		if cur.Type != html.ElementNode {
			continue
		}
		if lang := classLanguage(cur); lang != "" {
			return lang
		}
	}
	if code := findDescendant(n, "code"); code != nil {
		if lang := classLanguage(code); lang != "" {
			return lang
		}
	}
	return ""
}

func classLanguage(n *html.Node) string {
	for _, attr := range n.Attr {
		switch attr.Key {
		case "data-language", "data-lang":
			if attr.Val != "" {
				return NormalizeLanguage(attr.Val)
			}
		case "class":
			for _, cls := range strings.Fields(attr.Val) {
				lower := strings.ToLower(cls)
				switch {
				case strings.HasPrefix(lower, "language-"):
					return NormalizeLanguage(strings.TrimPrefix(lower, "language-"))
				case strings.HasPrefix(lower, "lang-"):
					return NormalizeLanguage(strings.TrimPrefix(lower, "lang-"))
				case strings.HasPrefix(lower, "highlight-") && lower != "highlight-default":
					return NormalizeLanguage(strings.TrimPrefix(lower, "highlight-"))
				case strings.HasPrefix(lower, "sourcecode-"):
					return NormalizeLanguage(strings.TrimPrefix(lower, "sourcecode-"))
				}
			}
		}
	}
	return ""
}

// filenameHint looks for file-tab chrome near the block: a preceding
// sibling or ancestor caption whose class marks it as a filename label.
func filenameHint(n *html.Node) string {
	isFilenameClass := func(node *html.Node) bool {
		for _, attr := range node.Attr {
			if attr.Key != "class" {
				continue
			}
			lower := strings.ToLower(attr.Val)
			if strings.Contains(lower, "filename") || strings.Contains(lower, "file-name") ||
				strings.Contains(lower, "file-tab") || strings.Contains(lower, "tab-label") {
				return true
			}
		}
		return false
	}

	for cur := n; cur != nil; cur = cur.Parent {
		for sib := cur.PrevSibling; sib != nil; sib = sib.PrevSibling {
			if sib.Type != html.ElementNode {
				continue
			}
			if isFilenameClass(sib) {
				if name := strings.TrimSpace(newSelection(sib).Text()); filenameLikeRe.MatchString(name) {
					return name
				}
			}
			break
		}
		if cur.Parent != nil && cur.Parent.Type == html.ElementNode && cur.Parent.Data == "figure" {
			if caption := findDescendant(cur.Parent, "figcaption"); caption != nil {
				if name := strings.TrimSpace(newSelection(caption).Text()); filenameLikeRe.MatchString(name) {
					return name
				}
			}
		}
	}
	return ""
}

func isCodeTextarea(n *html.Node) bool {
	if n.Data != "textarea" {
		return false
	}
	for _, attr := range n.Attr {
		if attr.Key == "class" {
			lower := strings.ToLower(attr.Val)
			if strings.Contains(lower, "code") || strings.Contains(lower, "editor") {
				return true
			}
		}
	}
	return false
}

func headingLevel(name string) int {
	if len(name) == 2 && name[0] == 'h' && name[1] >= '1' && name[1] <= '6' {
		return int(name[1] - '0')
	}
	return 0
}

func findDescendant(n *html.Node, name string) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.Data == name {
			return c
		}
		if found := findDescendant(c, name); found != nil {
			return found
		}
	}
	return nil
}

func newSelection(n *html.Node) *goquery.Selection {
	doc := goquery.NewDocumentFromNode(n)
	return doc.Selection
}

// ToMarkdown converts a rendered page to markdown for document storage.
// Conversion failures fall back to the page's visible text.
func ToMarkdown(htmlStr, sourceURL string) string {
	host := ""
	if u, err := url.Parse(sourceURL); err == nil {
		host = u.Hostname()
	}

	converter := htmlmd.NewConverter(host, true, nil)
	markdown, err := converter.ConvertString(htmlStr)
	if err == nil {
		return markdown
	}

	doc, derr := goquery.NewDocumentFromReader(strings.NewReader(htmlStr))
	if derr != nil {
		return ""
	}
	return doc.Text()
}
