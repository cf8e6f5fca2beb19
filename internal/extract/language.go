package extract

import (
	"regexp"
	"strings"
)

// languageAliases maps hint spellings to canonical language names.
// Hints from the source are authoritative; the annotator only fills the
// gaps left empty here.
var languageAliases = map[string]string{
	"js":            "javascript",
	"jsx":           "javascript",
	"node":          "javascript",
	"ts":            "typescript",
	"tsx":           "typescript",
	"py":            "python",
	"python3":       "python",
	"rb":            "ruby",
	"sh":            "bash",
	"shell":         "bash",
	"zsh":           "bash",
	"console":       "bash",
	"terminal":      "bash",
	"shell-session": "bash",
	"yml":           "yaml",
	"golang":        "go",
	"c++":           "cpp",
	"c#":            "csharp",
	"cs":            "csharp",
	"dockerfile":    "docker",
	"plaintext":     "text",
	"plain":         "text",
	"md":            "markdown",
	"pgsql":         "sql",
	"postgres":      "sql",
	"postgresql":    "sql",
	"rs":            "rust",
	"kt":            "kotlin",
	"objc":          "objective-c",
	"ps1":           "powershell",
	"htm":           "html",
}

// NormalizeLanguage canonicalizes a language hint. Unknown hints pass
// through lowercased so niche languages survive.
func NormalizeLanguage(hint string) string {
	h := strings.ToLower(strings.TrimSpace(hint))
	h = strings.TrimPrefix(h, "language-")
	h = strings.TrimPrefix(h, "lang-")
	if canon, ok := languageAliases[h]; ok {
		return canon
	}
	return h
}

var (
	infoFilenameRe = regexp.MustCompile(`(?:filename|title|file)=["']?([^"'\s}]+)["']?`)
	filenameLikeRe = regexp.MustCompile(`^[\w./-]+\.\w{1,8}$`)
)

// parseInfoString splits a fence info string like
// "python title=app.py {linenos=true}" into a language and an optional
// filename hint.
func parseInfoString(info string) (lang, filename string) {
	info = strings.TrimSpace(info)
	if info == "" {
		return "", ""
	}

	if m := infoFilenameRe.FindStringSubmatch(info); m != nil {
		filename = m[1]
	}

	first := strings.FieldsFunc(info, func(r rune) bool {
		return r == ' ' || r == '{' || r == ','
	})
	if len(first) > 0 && !strings.ContainsAny(first[0], "={") {
		tok := first[0]
		// Some sites put the filename in the info string directly.
		if filename == "" && filenameLikeRe.MatchString(tok) && strings.Contains(tok, ".") {
			filename = tok
		} else {
			lang = NormalizeLanguage(tok)
		}
	}
	return lang, filename
}
