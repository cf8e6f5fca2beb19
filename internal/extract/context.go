package extract

import (
	"strings"

	"codedox/internal/model"
)

// The extractors reduce every input format to a flat stream of nodes in
// document order. Context assembly is then format-independent: the
// nearest preceding heading becomes the title, the prose between that
// heading and the block becomes the description, and the enclosing
// heading chain becomes the hierarchy. Nothing after a block is ever
// attached to it.

type nodeKind int

const (
	nodeHeading nodeKind = iota
	nodeProse
	nodeCode
)

type node struct {
	kind  nodeKind
	level int    // heading level, 1-6
	text  string // heading or prose text
	block model.ExtractedCodeBlock
}

type headingEntry struct {
	level int
	text  string
}

// assemble walks the node stream and attaches context to each code block.
func assemble(nodes []node, limits Limits) []model.ExtractedCodeBlock {
	limits = limits.withDefaults()

	var stack []headingEntry // enclosing headings, outermost first
	var title string
	var prose []string

	var out []model.ExtractedCodeBlock
	for _, n := range nodes {
		switch n.kind {
		case nodeHeading:
			text := cleanText(n.text)
			if text == "" {
				continue
			}
			// Pop headings at the same or deeper level.
			for len(stack) > 0 && stack[len(stack)-1].level >= n.level {
				stack = stack[:len(stack)-1]
			}
			stack = append(stack, headingEntry{level: n.level, text: text})
			title = text
			prose = prose[:0]

		case nodeProse:
			if text := cleanText(n.text); text != "" {
				prose = append(prose, text)
			}

		case nodeCode:
			block := n.block
			if !includeBlock(block.Code, limits) {
				continue
			}
			block.Code = strings.TrimRight(block.Code, "\n")
			block.Context = model.ExtractedContext{
				Title:       title,
				Description: truncate(strings.Join(prose, " "), limits.MaxContextLength),
				Hierarchy:   headingTexts(stack),
				RawLines:    append([]string(nil), prose...),
			}
			out = append(out, block)
			// Prose before this block belongs to it alone; later
			// blocks under the same heading start fresh.
			prose = prose[:0]
		}
	}
	return out
}

func headingTexts(stack []headingEntry) []string {
	if len(stack) == 0 {
		return nil
	}
	out := make([]string, len(stack))
	for i, h := range stack {
		out[i] = h.text
	}
	return out
}

// includeBlock applies the inclusion rules: multi-line blocks always
// pass, single-line blocks need at least three significant tokens, and
// oversized blocks are dropped.
func includeBlock(code string, limits Limits) bool {
	trimmed := strings.TrimSpace(code)
	if trimmed == "" {
		return false
	}
	if len(trimmed) > limits.MaxBlockSize {
		return false
	}

	lines := nonEmptyLines(trimmed)
	if len(lines) < limits.MinLines {
		return false
	}
	if len(lines) > 1 {
		return true
	}
	return significantTokens(lines[0]) >= 3
}

func nonEmptyLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if strings.TrimSpace(line) != "" {
			out = append(out, line)
		}
	}
	return out
}

// significantTokens counts whitespace-separated tokens that are longer
// than one character and not pure punctuation.
func significantTokens(line string) int {
	n := 0
	for _, tok := range strings.Fields(line) {
		if len(tok) < 2 {
			continue
		}
		if strings.Trim(tok, "!\"#$%&'()*+,-./:;<=>?@[]^_`{|}~\\") == "" {
			continue
		}
		n++
	}
	return n
}

func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := s[:max]
	if i := strings.LastIndexByte(cut, ' '); i > max/2 {
		cut = cut[:i]
	}
	return cut
}
