package extract

import (
	"strings"
	"testing"
)

func TestRSTCodeBlockDirective(t *testing.T) {
	doc := strings.Join([]string{
		"Installation",
		"============",
		"",
		"Install with pip.",
		"",
		".. code-block:: bash",
		"",
		"   pip install codedox",
		"   pip install codedox[extras]",
		"",
		"Back to prose.",
	}, "\n")

	blocks, err := NewRST(Limits{}).Extract(doc, "")
	if err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}
	if len(blocks) != 1 {
		t.Fatalf("expected 1 block, got %d", len(blocks))
	}

	b := blocks[0]
	if b.Language != "bash" {
		t.Errorf("expected bash, got %q", b.Language)
	}
	if b.Context.Title != "Installation" {
		t.Errorf("expected title Installation, got %q", b.Context.Title)
	}
	if b.Code != "pip install codedox\npip install codedox[extras]" {
		t.Errorf("unexpected code %q", b.Code)
	}
	if strings.Contains(b.Code, "Back to prose") {
		t.Error("dedent must end the directive body")
	}
}

func TestRSTDirectiveOptionsAndCaption(t *testing.T) {
	doc := strings.Join([]string{
		".. code-block:: python",
		"   :linenos:",
		"   :caption: app.py",
		"",
		"   from flask import Flask",
		"   app = Flask(__name__)",
	}, "\n")

	blocks, err := NewRST(Limits{}).Extract(doc, "")
	if err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}
	if len(blocks) != 1 {
		t.Fatalf("expected 1 block, got %d", len(blocks))
	}
	if blocks[0].Filename != "app.py" {
		t.Errorf("expected filename app.py, got %q", blocks[0].Filename)
	}
	if strings.Contains(blocks[0].Code, ":linenos:") {
		t.Errorf("option lines leaked into code: %q", blocks[0].Code)
	}
}

func TestRSTLiteralBlock(t *testing.T) {
	doc := strings.Join([]string{
		"Run the server as follows::",
		"",
		"   ./codedox serve",
		"   ./codedox crawl list",
		"",
		"That is all.",
	}, "\n")

	blocks, err := NewRST(Limits{}).Extract(doc, "")
	if err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}
	if len(blocks) != 1 {
		t.Fatalf("expected 1 block, got %d", len(blocks))
	}
	if blocks[0].Code != "./codedox serve\n./codedox crawl list" {
		t.Errorf("unexpected code %q", blocks[0].Code)
	}
	if !strings.Contains(blocks[0].Context.Description, "Run the server as follows") {
		t.Errorf("marker paragraph must stay as description, got %q", blocks[0].Context.Description)
	}
}

func TestRSTHeadingLevelsByFirstAppearance(t *testing.T) {
	doc := strings.Join([]string{
		"Top",
		"===",
		"",
		"Nested",
		"------",
		"",
		".. code-block:: go",
		"",
		"   a := 1",
		"   b := 2",
	}, "\n")

	blocks, err := NewRST(Limits{}).Extract(doc, "")
	if err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}
	if len(blocks) != 1 {
		t.Fatalf("expected 1 block, got %d", len(blocks))
	}
	h := blocks[0].Context.Hierarchy
	if len(h) != 2 || h[0] != "Top" || h[1] != "Nested" {
		t.Errorf("expected hierarchy [Top Nested], got %v", h)
	}
}

func TestRSTRelativeIndentPreserved(t *testing.T) {
	doc := strings.Join([]string{
		".. code-block:: python",
		"",
		"   def f():",
		"       return 1",
	}, "\n")

	blocks, err := NewRST(Limits{}).Extract(doc, "")
	if err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}
	if len(blocks) != 1 {
		t.Fatalf("expected 1 block, got %d", len(blocks))
	}
	if blocks[0].Code != "def f():\n    return 1" {
		t.Errorf("relative indent lost: %q", blocks[0].Code)
	}
}
