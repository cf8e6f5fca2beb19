package extract

import (
	"regexp"
	"strings"

	"codedox/internal/model"
)

// RST extracts code from reStructuredText: code directives with
// indentation-defined bodies and bare `::` literal blocks. Section
// levels follow Sphinx convention, assigned by order of first appearance
// of each underline character.
type RST struct {
	limits Limits
}

func NewRST(limits Limits) *RST {
	return &RST{limits: limits}
}

var (
	rstDirectiveRe = regexp.MustCompile(`^\s*\.\.\s+(code-block|code|sourcecode)::\s*(\S*)\s*$`)
	rstOptionRe    = regexp.MustCompile(`^\s*:[\w-]+:`)
	rstCommentRe   = regexp.MustCompile(`^\s*\.\.\s`)
	rstCaptionRe   = regexp.MustCompile(`^\s*:caption:\s*(\S+)`)
	underlineChars = `=-~^"'` + "`" + `:+_*#<>.`
)

func (r *RST) Extract(content string, sourceURL string) ([]model.ExtractedCodeBlock, error) {
	lines := strings.Split(content, "\n")
	var nodes []node
	var prose []string
	levelOf := map[byte]int{}

	flushProse := func() {
		if len(prose) > 0 {
			nodes = append(nodes, node{kind: nodeProse, text: strings.Join(prose, "\n")})
			prose = prose[:0]
		}
	}

	i := 0
	for i < len(lines) {
		line := lines[i]

		// Section heading: text underlined with punctuation of at least
		// the same length.
		if len(prose) > 0 && isRSTUnderline(line, prose[len(prose)-1]) {
			text := prose[len(prose)-1]
			prose = prose[:len(prose)-1]
			flushProse()

			ch := strings.TrimSpace(line)[0]
			if _, ok := levelOf[ch]; !ok {
				levelOf[ch] = len(levelOf) + 1
			}
			nodes = append(nodes, node{kind: nodeHeading, level: levelOf[ch], text: text})
			i++
			continue
		}

		if d := rstDirectiveRe.FindStringSubmatch(line); d != nil {
			flushProse()
			block, next := readRSTDirective(lines, i, d[2])
			nodes = append(nodes, node{kind: nodeCode, block: block})
			i = next
			continue
		}

		// Paragraph ending in `::` opens a literal block. A bare `::`
		// line is the marker alone; otherwise the prose keeps the text
		// minus the marker.
		if trimmed := strings.TrimRight(line, " "); strings.HasSuffix(trimmed, "::") &&
			!rstCommentRe.MatchString(line) && hasIndentedBody(lines, i) {
			text := strings.TrimSuffix(trimmed, "::")
			text = strings.TrimSuffix(text, ":") // "para.::" keeps one colon
			if strings.TrimSpace(text) != "" {
				prose = append(prose, text)
			}
			flushProse()
			block, next := readRSTLiteral(lines, i+1)
			nodes = append(nodes, node{kind: nodeCode, block: block})
			i = next
			continue
		}

		if strings.TrimSpace(line) != "" && !rstCommentRe.MatchString(line) {
			prose = append(prose, line)
		}
		i++
	}
	flushProse()

	return assemble(nodes, r.limits), nil
}

// readRSTDirective consumes a code directive: option lines first, then
// the indented body until dedent.
func readRSTDirective(lines []string, start int, langHint string) (model.ExtractedCodeBlock, int) {
	i := start + 1

	// Skip directive options like :linenos: and :caption:.
	filename := ""
	for i < len(lines) && rstOptionRe.MatchString(lines[i]) {
		if m := rstCaptionRe.FindStringSubmatch(lines[i]); m != nil {
			if filenameLikeRe.MatchString(m[1]) {
				filename = m[1]
			}
		}
		i++
	}
	// Blank line between directive and body.
	for i < len(lines) && strings.TrimSpace(lines[i]) == "" {
		i++
	}

	body, next := readIndentedBody(lines, i)
	return model.ExtractedCodeBlock{
		Language:  NormalizeLanguage(langHint),
		Code:      strings.Join(body, "\n"),
		Filename:  filename,
		StartLine: i + 1,
		EndLine:   i + len(body),
	}, next
}

func readRSTLiteral(lines []string, start int) (model.ExtractedCodeBlock, int) {
	i := start
	for i < len(lines) && strings.TrimSpace(lines[i]) == "" {
		i++
	}
	body, next := readIndentedBody(lines, i)
	return model.ExtractedCodeBlock{
		Code:      strings.Join(body, "\n"),
		StartLine: i + 1,
		EndLine:   i + len(body),
	}, next
}

// readIndentedBody collects lines indented beyond the first body line's
// indent, preserving relative indentation.
func readIndentedBody(lines []string, start int) ([]string, int) {
	if start >= len(lines) {
		return nil, start
	}
	indent := leadingSpace(lines[start])
	if indent == 0 {
		return nil, start
	}

	var body []string
	i := start
	for ; i < len(lines); i++ {
		line := lines[i]
		if strings.TrimSpace(line) == "" {
			body = append(body, "")
			continue
		}
		if leadingSpace(line) < indent {
			break
		}
		body = append(body, line[indent:])
	}
	for len(body) > 0 && body[len(body)-1] == "" {
		body = body[:len(body)-1]
	}
	return body, i
}

func leadingSpace(line string) int {
	n := 0
	for _, r := range line {
		switch r {
		case ' ':
			n++
		case '\t':
			n += 8
		default:
			return n
		}
	}
	return n
}

func isRSTUnderline(line, title string) bool {
	t := strings.TrimSpace(line)
	if len(t) < 2 || len(t) < len(strings.TrimSpace(title)) {
		return false
	}
	ch := t[0]
	if !strings.ContainsRune(underlineChars, rune(ch)) {
		return false
	}
	for j := 1; j < len(t); j++ {
		if t[j] != ch {
			return false
		}
	}
	return true
}

func hasIndentedBody(lines []string, i int) bool {
	base := leadingSpace(lines[i])
	for j := i + 1; j < len(lines); j++ {
		if strings.TrimSpace(lines[j]) == "" {
			continue
		}
		return leadingSpace(lines[j]) > base
	}
	return false
}
