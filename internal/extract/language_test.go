package extract

import "testing"

func TestNormalizeLanguage(t *testing.T) {
	cases := map[string]string{
		"JS":            "javascript",
		"golang":        "go",
		"language-python": "python",
		"lang-ts":       "typescript",
		"shell":         "bash",
		"console":       "bash",
		"yml":           "yaml",
		"C++":           "cpp",
		"erlang":        "erlang", // unknown passes through
		"  Ruby  ":      "ruby",
	}
	for in, want := range cases {
		if got := NormalizeLanguage(in); got != want {
			t.Errorf("NormalizeLanguage(%q)=%q, want %q", in, got, want)
		}
	}
}

func TestParseInfoString(t *testing.T) {
	cases := []struct {
		info     string
		lang     string
		filename string
	}{
		{"", "", ""},
		{"python", "python", ""},
		{"python title=app.py", "python", "app.py"},
		{`js filename="index.js"`, "javascript", "index.js"},
		{"go {linenos=true}", "go", ""},
		{"config/settings.yaml", "", "config/settings.yaml"},
		{"bash file=run.sh", "bash", "run.sh"},
	}
	for _, tc := range cases {
		lang, filename := parseInfoString(tc.info)
		if lang != tc.lang || filename != tc.filename {
			t.Errorf("parseInfoString(%q)=(%q,%q), want (%q,%q)",
				tc.info, lang, filename, tc.lang, tc.filename)
		}
	}
}
