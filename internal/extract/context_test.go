package extract

import (
	"strings"
	"testing"

	"codedox/internal/model"
)

func TestIncludeBlockRules(t *testing.T) {
	limits := Limits{}.withDefaults()

	cases := []struct {
		name string
		code string
		want bool
	}{
		{"empty", "   \n  ", false},
		{"multi-line passes", "a := 1\nb := 2", true},
		{"single line three tokens", "npm install react --save", true},
		{"single line too few tokens", "ls -l", false},
		{"single line punctuation only", "} ); //", false},
	}
	for _, tc := range cases {
		if got := includeBlock(tc.code, limits); got != tc.want {
			t.Errorf("%s: includeBlock=%t, want %t", tc.name, got, tc.want)
		}
	}
}

func TestIncludeBlockOversize(t *testing.T) {
	limits := Limits{MaxBlockSize: 10}.withDefaults()
	if includeBlock("0123456789ABCDEF\nsecond line", limits) {
		t.Error("oversized block must be rejected")
	}
}

func TestIncludeBlockMinLines(t *testing.T) {
	limits := Limits{MinLines: 2}.withDefaults()
	if includeBlock("npm install react --save", limits) {
		t.Error("single line must fail MinLines=2")
	}
	if !includeBlock("a := 1\nb := 2", limits) {
		t.Error("two lines must pass MinLines=2")
	}
}

func TestTruncateWordBoundary(t *testing.T) {
	s := "the quick brown fox jumps over the lazy dog"
	got := truncate(s, 20)
	if len(got) > 20 {
		t.Fatalf("truncate exceeded limit: %d chars", len(got))
	}
	if strings.HasSuffix(got, " ") || strings.Contains(got, "jumps") {
		t.Errorf("unexpected truncation result %q", got)
	}
	if truncate("short", 100) != "short" {
		t.Error("strings under the limit must pass through")
	}
}

func TestAssembleHeadingStack(t *testing.T) {
	nodes := []node{
		{kind: nodeHeading, level: 1, text: "API"},
		{kind: nodeHeading, level: 2, text: "Auth"},
		{kind: nodeHeading, level: 3, text: "Tokens"},
		// Same level pops the previous sibling.
		{kind: nodeHeading, level: 3, text: "Sessions"},
		{kind: nodeCode, block: blockWith("code line one\ncode line two")},
		// Back up to level 2: pops Tokens-level and Auth.
		{kind: nodeHeading, level: 2, text: "Errors"},
		{kind: nodeCode, block: blockWith("x := errors.New(\"boom\")\ny := 2")},
	}

	out := assemble(nodes, Limits{})
	if len(out) != 2 {
		t.Fatalf("expected 2 blocks, got %d", len(out))
	}

	h0 := out[0].Context.Hierarchy
	if len(h0) != 3 || h0[0] != "API" || h0[1] != "Auth" || h0[2] != "Sessions" {
		t.Errorf("block 0 hierarchy: %v", h0)
	}
	h1 := out[1].Context.Hierarchy
	if len(h1) != 2 || h1[0] != "API" || h1[1] != "Errors" {
		t.Errorf("block 1 hierarchy: %v", h1)
	}
	if out[1].Context.Title != "Errors" {
		t.Errorf("block 1 title: %q", out[1].Context.Title)
	}
}

func blockWith(code string) model.ExtractedCodeBlock {
	return model.ExtractedCodeBlock{Code: code}
}
