package extract

import (
	"regexp"
	"strings"

	"codedox/internal/model"
)

// Markdown extracts fenced and indented code blocks from CommonMark-ish
// documents. Fence-only mode (used for .txt uploads) skips indented
// block detection, which misfires badly on plain prose.
type Markdown struct {
	limits    Limits
	fenceOnly bool
}

func NewMarkdown(limits Limits) *Markdown {
	return &Markdown{limits: limits}
}

// NewFenceOnly builds a Markdown extractor that only honors explicit
// fences.
func NewFenceOnly(limits Limits) *Markdown {
	return &Markdown{limits: limits, fenceOnly: true}
}

var (
	atxHeadingRe = regexp.MustCompile(`^(#{1,6})\s+(.*?)\s*#*\s*$`)
	fenceOpenRe  = regexp.MustCompile("^(\\s{0,3})(`{3,}|~{3,})\\s*(.*)$")
	listItemRe   = regexp.MustCompile(`^\s*(?:[-*+]|\d+[.)])\s`)
)

func (m *Markdown) Extract(content string, sourceURL string) ([]model.ExtractedCodeBlock, error) {
	lines := strings.Split(content, "\n")
	var nodes []node
	var prose []string

	flushProse := func() {
		if len(prose) > 0 {
			nodes = append(nodes, node{kind: nodeProse, text: strings.Join(prose, "\n")})
			prose = prose[:0]
		}
	}

	i := 0
	for i < len(lines) {
		line := lines[i]

		if h := atxHeadingRe.FindStringSubmatch(line); h != nil {
			flushProse()
			nodes = append(nodes, node{kind: nodeHeading, level: len(h[1]), text: h[2]})
			i++
			continue
		}

		// Setext headings: a prose line underlined with = or -.
		if len(prose) > 0 && isSetextUnderline(line) {
			text := prose[len(prose)-1]
			prose = prose[:len(prose)-1]
			flushProse()
			level := 1
			if strings.HasPrefix(strings.TrimSpace(line), "-") {
				level = 2
			}
			nodes = append(nodes, node{kind: nodeHeading, level: level, text: text})
			i++
			continue
		}

		if f := fenceOpenRe.FindStringSubmatch(line); f != nil {
			flushProse()
			block, next := m.readFence(lines, i, f[2], f[3])
			nodes = append(nodes, node{kind: nodeCode, block: block})
			i = next
			continue
		}

		if !m.fenceOnly && isIndentedCodeStart(lines, i) {
			flushProse()
			block, next := readIndented(lines, i)
			nodes = append(nodes, node{kind: nodeCode, block: block})
			i = next
			continue
		}

		if strings.TrimSpace(line) != "" {
			prose = append(prose, line)
		}
		i++
	}
	flushProse()

	return assemble(nodes, m.limits), nil
}

// readFence consumes a fenced block starting at open. An unclosed fence
// runs until the next heading or end of input.
func (m *Markdown) readFence(lines []string, open int, marker, info string) (model.ExtractedCodeBlock, int) {
	lang, filename := parseInfoString(info)
	fenceChar := marker[:1]
	minLen := len(marker)

	var body []string
	i := open + 1
	for ; i < len(lines); i++ {
		line := lines[i]
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, fenceChar) && len(trimmed) >= minLen &&
			strings.Trim(trimmed, fenceChar) == "" {
			i++ // consume the closing fence
			break
		}
		if atxHeadingRe.MatchString(line) {
			// Unclosed fence: close at the heading, leave it for the
			// outer loop.
			break
		}
		body = append(body, line)
	}

	return model.ExtractedCodeBlock{
		Language:  lang,
		Code:      strings.Join(body, "\n"),
		Filename:  filename,
		StartLine: open + 2,
		EndLine:   open + 1 + len(body),
	}, i
}

// isIndentedCodeStart reports whether line i opens an indented code
// block: four or more leading spaces, preceded by a blank line, and not
// part of a list.
func isIndentedCodeStart(lines []string, i int) bool {
	if !hasCodeIndent(lines[i]) {
		return false
	}
	if listItemRe.MatchString(lines[i]) {
		return false
	}
	// Require a preceding blank so list continuations do not match.
	if i > 0 && strings.TrimSpace(lines[i-1]) != "" {
		return false
	}
	// A list right above the blank line means this indent is a list
	// body, not code.
	for j := i - 2; j >= 0 && j >= i-6; j-- {
		t := strings.TrimSpace(lines[j])
		if t == "" {
			continue
		}
		return !listItemRe.MatchString(lines[j])
	}
	return true
}

func hasCodeIndent(line string) bool {
	if strings.TrimSpace(line) == "" {
		return false
	}
	return strings.HasPrefix(line, "    ") || strings.HasPrefix(line, "\t")
}

func readIndented(lines []string, start int) (model.ExtractedCodeBlock, int) {
	var body []string
	i := start
	for ; i < len(lines); i++ {
		line := lines[i]
		if strings.TrimSpace(line) == "" {
			body = append(body, "")
			continue
		}
		if !hasCodeIndent(line) {
			break
		}
		body = append(body, strings.TrimPrefix(strings.TrimPrefix(line, "    "), "\t"))
	}
	// Trim trailing blanks kept while looking ahead.
	for len(body) > 0 && body[len(body)-1] == "" {
		body = body[:len(body)-1]
	}
	return model.ExtractedCodeBlock{
		Code:      strings.Join(body, "\n"),
		StartLine: start + 1,
		EndLine:   start + len(body),
	}, i
}

func isSetextUnderline(line string) bool {
	t := strings.TrimSpace(line)
	if len(t) < 2 {
		return false
	}
	return strings.Trim(t, "=") == "" || strings.Trim(t, "-") == ""
}
