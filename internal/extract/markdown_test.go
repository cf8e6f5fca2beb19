package extract

import (
	"strings"
	"testing"
)

func TestMarkdownFencedBlockContext(t *testing.T) {
	doc := strings.Join([]string{
		"# Getting Started",
		"",
		"## Installation",
		"",
		"Install the package with pip.",
		"",
		"```bash",
		"pip install codedox",
		"pip install codedox[extras]",
		"```",
	}, "\n")

	blocks, err := NewMarkdown(Limits{}).Extract(doc, "https://example.com/docs")
	if err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}
	if len(blocks) != 1 {
		t.Fatalf("expected 1 block, got %d", len(blocks))
	}

	b := blocks[0]
	if b.Language != "bash" {
		t.Errorf("expected language bash, got %q", b.Language)
	}
	if b.Context.Title != "Installation" {
		t.Errorf("expected title Installation, got %q", b.Context.Title)
	}
	if b.Context.Description != "Install the package with pip." {
		t.Errorf("unexpected description %q", b.Context.Description)
	}
	want := []string{"Getting Started", "Installation"}
	if len(b.Context.Hierarchy) != 2 || b.Context.Hierarchy[0] != want[0] || b.Context.Hierarchy[1] != want[1] {
		t.Errorf("expected hierarchy %v, got %v", want, b.Context.Hierarchy)
	}
	if !strings.Contains(b.Code, "pip install codedox") {
		t.Errorf("code body missing: %q", b.Code)
	}
}

func TestMarkdownUnclosedFenceClosesAtHeading(t *testing.T) {
	doc := strings.Join([]string{
		"## Example",
		"```python",
		"print('hello')",
		"print('world')",
		"# Next Section",
		"More prose here.",
	}, "\n")

	blocks, err := NewMarkdown(Limits{}).Extract(doc, "")
	if err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}
	if len(blocks) != 1 {
		t.Fatalf("expected 1 block, got %d", len(blocks))
	}
	if strings.Contains(blocks[0].Code, "Next Section") {
		t.Errorf("heading leaked into code: %q", blocks[0].Code)
	}
	if blocks[0].Context.Title != "Example" {
		t.Errorf("expected title Example, got %q", blocks[0].Context.Title)
	}
}

func TestMarkdownSingleLineInclusion(t *testing.T) {
	doc := strings.Join([]string{
		"```bash",
		"npm install react react-dom",
		"```",
		"",
		"```",
		"ok",
		"```",
	}, "\n")

	blocks, err := NewMarkdown(Limits{}).Extract(doc, "")
	if err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}
	if len(blocks) != 1 {
		t.Fatalf("expected 1 block (short single-liner dropped), got %d", len(blocks))
	}
	if !strings.Contains(blocks[0].Code, "npm install") {
		t.Errorf("wrong block survived: %q", blocks[0].Code)
	}
}

func TestMarkdownProseResetsBetweenBlocks(t *testing.T) {
	doc := strings.Join([]string{
		"## Usage",
		"First explanation.",
		"```go",
		"fmt.Println(1)",
		"fmt.Println(2)",
		"```",
		"Second explanation.",
		"```go",
		"fmt.Println(3)",
		"fmt.Println(4)",
		"```",
	}, "\n")

	blocks, err := NewMarkdown(Limits{}).Extract(doc, "")
	if err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}
	if len(blocks) != 2 {
		t.Fatalf("expected 2 blocks, got %d", len(blocks))
	}
	if blocks[0].Context.Description != "First explanation." {
		t.Errorf("block 1 description: %q", blocks[0].Context.Description)
	}
	if blocks[1].Context.Description != "Second explanation." {
		t.Errorf("block 2 description: %q", blocks[1].Context.Description)
	}
}

func TestMarkdownSetextHeading(t *testing.T) {
	doc := strings.Join([]string{
		"Configuration",
		"=============",
		"",
		"```yaml",
		"port: 8000",
		"host: 0.0.0.0",
		"```",
	}, "\n")

	blocks, err := NewMarkdown(Limits{}).Extract(doc, "")
	if err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}
	if len(blocks) != 1 {
		t.Fatalf("expected 1 block, got %d", len(blocks))
	}
	if blocks[0].Context.Title != "Configuration" {
		t.Errorf("expected setext title, got %q", blocks[0].Context.Title)
	}
}

func TestMarkdownIndentedCodeBlock(t *testing.T) {
	doc := strings.Join([]string{
		"## Shell",
		"Run the server:",
		"",
		"    ./codedox serve",
		"    ./codedox crawl list",
		"",
		"Done.",
	}, "\n")

	blocks, err := NewMarkdown(Limits{}).Extract(doc, "")
	if err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}
	if len(blocks) != 1 {
		t.Fatalf("expected 1 indented block, got %d", len(blocks))
	}
	if blocks[0].Code != "./codedox serve\n./codedox crawl list" {
		t.Errorf("unexpected code %q", blocks[0].Code)
	}
}

func TestFenceOnlySkipsIndented(t *testing.T) {
	doc := strings.Join([]string{
		"Some notes.",
		"",
		"    indented text that is not code",
		"    more indented text",
	}, "\n")

	blocks, err := NewFenceOnly(Limits{}).Extract(doc, "")
	if err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}
	if len(blocks) != 0 {
		t.Fatalf("fence-only mode must ignore indented blocks, got %d", len(blocks))
	}
}

func TestMarkdownFilenameFromInfoString(t *testing.T) {
	doc := strings.Join([]string{
		"```python title=app.py",
		"from flask import Flask",
		"app = Flask(__name__)",
		"```",
	}, "\n")

	blocks, err := NewMarkdown(Limits{}).Extract(doc, "")
	if err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}
	if len(blocks) != 1 {
		t.Fatalf("expected 1 block, got %d", len(blocks))
	}
	if blocks[0].Language != "python" {
		t.Errorf("expected python, got %q", blocks[0].Language)
	}
	if blocks[0].Filename != "app.py" {
		t.Errorf("expected filename app.py, got %q", blocks[0].Filename)
	}
}

func TestMarkdownDeterministic(t *testing.T) {
	doc := "# T\n\nprose\n\n```go\na := 1\nb := 2\n```\n"
	md := NewMarkdown(Limits{})

	first, err := md.Extract(doc, "")
	if err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}
	second, err := md.Extract(doc, "")
	if err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}
	if len(first) != len(second) {
		t.Fatalf("length mismatch: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].Code != second[i].Code || first[i].Context.Title != second[i].Context.Title {
			t.Errorf("block %d differs between runs", i)
		}
	}
}
