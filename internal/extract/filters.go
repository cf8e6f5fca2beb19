package extract

import (
	"regexp"
	"strings"
)

// Noise filters shared by every extractor. They keep the description
// prose readable: links collapse to their text, images and badges
// disappear, comments and footnote markers are stripped.

var (
	htmlCommentRe = regexp.MustCompile(`(?s)<!--.*?-->`)
	mdImageRe     = regexp.MustCompile(`!\[[^\]]*\]\([^)]*\)`)
	mdLinkRe      = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	rstRefRe      = regexp.MustCompile("`([^`<]+)\\s*<[^>]*>`_{1,2}")
	footnoteRe    = regexp.MustCompile(`\[\^?\d+\]|\[#[^\]]*\]_`)
	badgeHostRe   = regexp.MustCompile(`(?i)(shields\.io|badge|travis-ci|codecov|circleci)`)
	whitespaceRe  = regexp.MustCompile(`\s+`)
)

// cleanText runs the noise filters over one prose or heading fragment.
func cleanText(s string) string {
	s = htmlCommentRe.ReplaceAllString(s, "")

	var kept []string
	for _, line := range strings.Split(s, "\n") {
		if isNoiseLine(line) {
			continue
		}
		kept = append(kept, line)
	}
	s = strings.Join(kept, " ")

	s = mdImageRe.ReplaceAllString(s, "")
	s = mdLinkRe.ReplaceAllString(s, "$1")
	s = rstRefRe.ReplaceAllString(s, "$1")
	s = footnoteRe.ReplaceAllString(s, "")
	s = whitespaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// isNoiseLine drops lines that carry no prose: image-only lines, badge
// rows, and bare link lists left over from navigation menus.
func isNoiseLine(line string) bool {
	t := strings.TrimSpace(line)
	if t == "" {
		return false
	}

	withoutImages := strings.TrimSpace(mdImageRe.ReplaceAllString(t, ""))
	if withoutImages == "" {
		return true
	}
	if badgeHostRe.MatchString(t) && strings.Contains(t, "![") {
		return true
	}

	// A line that is nothing but links with no surrounding words is a
	// navigation row, not a description.
	withoutLinks := strings.TrimSpace(mdLinkRe.ReplaceAllString(withoutImages, ""))
	if withoutLinks == "" || strings.Trim(withoutLinks, " |·•-") == "" {
		linkCount := len(mdLinkRe.FindAllString(t, -1))
		if linkCount >= 2 {
			return true
		}
	}
	return false
}
