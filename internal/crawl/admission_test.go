package crawl

import (
	"testing"

	"codedox/internal/model"
)

func TestAdmissionDomainsFromStartURLs(t *testing.T) {
	adm := newAdmission(model.CrawlJob{
		StartURLs: []string{"https://docs.example.com/guide", "https://api.example.org/"},
	})

	cases := map[string]bool{
		"https://docs.example.com/other":       true,
		"https://sub.docs.example.com/deep":    true,
		"https://api.example.org/v2":           true,
		"https://evil.com/docs.example.com":    false,
		"https://notdocs.example.net/":         false,
		"ftp://docs.example.com/file":          false,
		"javascript:alert(1)":                  false,
	}
	for u, want := range cases {
		if got := adm.allow(u); got != want {
			t.Errorf("allow(%q)=%t, want %t", u, got, want)
		}
	}
}

func TestAdmissionDomainFilterOverridesStartURLs(t *testing.T) {
	adm := newAdmission(model.CrawlJob{
		StartURLs:    []string{"https://docs.example.com/"},
		DomainFilter: "example.org",
	})
	if adm.allow("https://docs.example.com/guide") {
		t.Error("start URL host must not be allowed when a domain filter is set")
	}
	if !adm.allow("https://wiki.example.org/page") {
		t.Error("domain filter subdomain must be allowed")
	}
}

func TestAdmissionIncludeExclude(t *testing.T) {
	adm := newAdmission(model.CrawlJob{
		StartURLs:       []string{"https://docs.example.com/"},
		IncludePatterns: []string{"/docs/**"},
		ExcludePatterns: []string{"*.pdf", "/docs/archive/**"},
	})

	cases := map[string]bool{
		"https://docs.example.com/docs/intro":             true,
		"https://docs.example.com/docs/api/auth":          true,
		"https://docs.example.com/blog/post":              false,
		"https://docs.example.com/docs/manual.pdf":        false,
		"https://docs.example.com/docs/archive/old-page":  false,
	}
	for u, want := range cases {
		if got := adm.allow(u); got != want {
			t.Errorf("allow(%q)=%t, want %t", u, got, want)
		}
	}
}

func TestAdmissionExcludeWinsOverInclude(t *testing.T) {
	adm := newAdmission(model.CrawlJob{
		StartURLs:       []string{"https://example.com/"},
		IncludePatterns: []string{"/api/**"},
		ExcludePatterns: []string{"/api/**"},
	})
	if adm.allow("https://example.com/api/users") {
		t.Error("exclude must win when both match")
	}
}

func TestGlobMatch(t *testing.T) {
	cases := []struct {
		pattern, s string
		want       bool
	}{
		{"/docs/*", "/docs/intro", true},
		{"/docs/*", "/docs/api/auth", false}, // single star stops at /
		{"/docs/**", "/docs/api/auth", true},
		{"*.html", "/guide/page.html", true}, // segment match
		{"**/*.md", "/any/depth/readme.md", true},
		{"[invalid", "/path/with/[invalid/inside", true}, // malformed degrades to substring
		{"[invalid", "/clean/path", false},
	}
	for _, tc := range cases {
		if got := globMatch(tc.pattern, tc.s); got != tc.want {
			t.Errorf("globMatch(%q,%q)=%t, want %t", tc.pattern, tc.s, got, tc.want)
		}
	}
}

func TestValidatePatterns(t *testing.T) {
	valid := [][]string{
		nil,
		{"/docs/*"},
		{"/docs/**", "*.html"},
		{"**/*.md"},
		{"  ", "/api/*"},
	}
	for _, ps := range valid {
		if err := ValidatePatterns(ps); err != nil {
			t.Errorf("ValidatePatterns(%v) = %v, want nil", ps, err)
		}
	}

	invalid := [][]string{
		{"[invalid"},
		{"/docs/[a-"},
		{"/docs/**", "[broken"},
	}
	for _, ps := range invalid {
		err := ValidatePatterns(ps)
		if err == nil {
			t.Errorf("ValidatePatterns(%v) must reject a malformed glob", ps)
			continue
		}
		if !model.IsKind(err, model.KindValidation) {
			t.Errorf("ValidatePatterns(%v) kind = %v, want validation", ps, model.KindOf(err))
		}
	}
}

func TestCanonicalURL(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"HTTPS://Docs.Example.COM/Guide/", "https://docs.example.com/Guide", true},
		{"https://example.com/page#section", "https://example.com/page", true},
		{"https://example.com/", "https://example.com/", true},
		{"://bad", "", false},
	}
	for _, tc := range cases {
		got, ok := canonicalURL(tc.in)
		if ok != tc.ok || (ok && got != tc.want) {
			t.Errorf("canonicalURL(%q)=(%q,%t), want (%q,%t)", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestNormalizeContentStability(t *testing.T) {
	a := "<html><head><script>var x=1;</script></head><body><p>Hello   world</p></body></html>"
	b := "<html><head><script>var y=2;</script></head><body><p>Hello world</p></body></html>"
	if normalizeContent(a) != normalizeContent(b) {
		t.Error("script bodies and whitespace runs must not affect normalized content")
	}

	c := "<html><body><p>Hello there</p></body></html>"
	if normalizeContent(a) == normalizeContent(c) {
		t.Error("different visible content must normalize differently")
	}
}
