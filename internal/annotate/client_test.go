package annotate

import (
	"strings"
	"testing"
)

func TestParseAnnotationsWrapperObject(t *testing.T) {
	content := `{"items": [
		{"language": "python", "title": "Connect to DB", "description": "Opens a connection."},
		{"language": "go", "title": "Start server", "description": "Listens on a port."}
	]}`

	got, err := parseAnnotations(content, 2)
	if err != nil {
		t.Fatalf("parseAnnotations: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 annotations, got %d", len(got))
	}
	if got[0].Language != "python" || got[1].Title != "Start server" {
		t.Errorf("unexpected annotations: %+v", got)
	}
}

func TestParseAnnotationsBareArray(t *testing.T) {
	content := `[{"language": "bash", "title": "Install", "description": "Installs the package."}]`

	got, err := parseAnnotations(content, 1)
	if err != nil {
		t.Fatalf("parseAnnotations: %v", err)
	}
	if len(got) != 1 || got[0].Language != "bash" {
		t.Errorf("unexpected annotations: %+v", got)
	}
}

func TestParseAnnotationsSalvagesFromProse(t *testing.T) {
	content := "Here are the annotations you asked for:\n" +
		`{"items": [{"language": "js", "title": "Fetch data", "description": "Calls the API."}]}` +
		"\nLet me know if you need anything else."

	got, err := parseAnnotations(content, 1)
	if err != nil {
		t.Fatalf("parseAnnotations: %v", err)
	}
	if got[0].Language != "js" || got[0].Title != "Fetch data" {
		t.Errorf("unexpected annotation: %+v", got[0])
	}
}

func TestParseAnnotationsNoJSON(t *testing.T) {
	if _, err := parseAnnotations("I cannot help with that.", 2); err == nil {
		t.Fatal("expected an error for content with no JSON value")
	}
}

func TestPadAnnotations(t *testing.T) {
	items := []Annotation{{Title: "one"}, {Title: "two"}}

	got := padAnnotations(items, 3)
	if len(got) != 3 {
		t.Fatalf("expected 3, got %d", len(got))
	}
	if got[0].Title != "one" || got[2].Title != "" {
		t.Errorf("unexpected padding: %+v", got)
	}

	got = padAnnotations(items, 1)
	if len(got) != 1 || got[0].Title != "one" {
		t.Errorf("overlong result must be truncated: %+v", got)
	}
}

func TestBuildPromptIncludesContext(t *testing.T) {
	prompt := buildPrompt([]Input{
		{Code: "print('hi')", Language: "python", Title: "Greeting", Description: "Says hello.", SourceURL: "https://docs.example.com/intro"},
		{Code: "SELECT 1"},
	})

	for _, want := range []string{
		"Annotate these 2 snippets.",
		"--- snippet 1 ---",
		"language hint: python",
		"section: Greeting",
		"context: Says hello.",
		"url: https://docs.example.com/intro",
		"print('hi')",
		"--- snippet 2 ---",
		"SELECT 1",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
	if strings.Contains(prompt, "language hint: \n") {
		t.Error("empty hints must be omitted")
	}
}
