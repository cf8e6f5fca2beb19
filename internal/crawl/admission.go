package crawl

import (
	"fmt"
	"net/url"
	"path"
	"strings"

	"codedox/internal/model"
)

// ValidatePatterns rejects URL globs that do not compile. Each segment
// around a `**` must be a valid path.Match pattern on its own.
func ValidatePatterns(patterns []string) error {
	for _, p := range patterns {
		trimmed := strings.TrimSpace(p)
		if trimmed == "" {
			continue
		}
		for _, part := range strings.Split(trimmed, "**") {
			if _, err := path.Match(strings.Trim(part, "/"), "x"); err != nil {
				return model.E(model.KindValidation, fmt.Sprintf("invalid url pattern %q", p))
			}
		}
	}
	return nil
}

// admission decides which discovered links enter the frontier. The
// domain filter is a suffix match on the host; include and exclude
// patterns are case-insensitive globs tested against the URL path and
// the full URL.
type admission struct {
	domains []string
	include []string
	exclude []string
}

func newAdmission(job model.CrawlJob) *admission {
	a := &admission{}

	if job.DomainFilter != "" {
		a.domains = append(a.domains, strings.ToLower(job.DomainFilter))
	} else {
		for _, raw := range job.StartURLs {
			if u, err := url.Parse(raw); err == nil && u.Host != "" {
				a.domains = append(a.domains, strings.ToLower(u.Hostname()))
			}
		}
	}

	for _, p := range job.IncludePatterns {
		if p = strings.TrimSpace(strings.ToLower(p)); p != "" {
			a.include = append(a.include, p)
		}
	}
	for _, p := range job.ExcludePatterns {
		if p = strings.TrimSpace(strings.ToLower(p)); p != "" {
			a.exclude = append(a.exclude, p)
		}
	}
	return a
}

func (a *admission) allow(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}

	host := strings.ToLower(u.Hostname())
	if !a.hostAllowed(host) {
		return false
	}

	target := strings.ToLower(u.Path)
	if target == "" {
		target = "/"
	}
	full := strings.ToLower(raw)

	for _, p := range a.exclude {
		if globMatch(p, target) || globMatch(p, full) {
			return false
		}
	}
	if len(a.include) == 0 {
		return true
	}
	for _, p := range a.include {
		if globMatch(p, target) || globMatch(p, full) {
			return true
		}
	}
	return false
}

func (a *admission) hostAllowed(host string) bool {
	if len(a.domains) == 0 {
		return true
	}
	for _, d := range a.domains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

// globMatch wraps path.Match with two conveniences: `**` spans path
// separators, and a malformed pattern degrades to a substring test.
func globMatch(pattern, s string) bool {
	if strings.Contains(pattern, "**") {
		return matchDoublestar(pattern, s)
	}
	ok, err := path.Match(pattern, s)
	if err != nil {
		return strings.Contains(s, pattern)
	}
	if ok {
		return true
	}
	// Patterns without a slash also match any single path segment.
	if !strings.Contains(pattern, "/") {
		for _, seg := range strings.Split(strings.Trim(s, "/"), "/") {
			if ok, _ := path.Match(pattern, seg); ok {
				return true
			}
		}
	}
	return false
}

// matchDoublestar handles `a/**/b` style patterns by splitting on the
// first `**` and matching prefix and suffix independently.
func matchDoublestar(pattern, s string) bool {
	parts := strings.SplitN(pattern, "**", 2)
	prefix := strings.TrimSuffix(parts[0], "/")
	suffix := strings.TrimPrefix(parts[1], "/")

	if prefix != "" && !strings.HasPrefix(s, prefix) {
		return false
	}
	if suffix == "" {
		return true
	}
	rest := strings.TrimPrefix(s, prefix)
	if strings.Contains(suffix, "**") {
		return matchDoublestar(suffix, rest)
	}
	// Try the suffix pattern against every tail of the remainder.
	segs := strings.Split(strings.Trim(rest, "/"), "/")
	for i := range segs {
		tail := strings.Join(segs[i:], "/")
		if ok, _ := path.Match(suffix, tail); ok {
			return true
		}
	}
	return false
}
