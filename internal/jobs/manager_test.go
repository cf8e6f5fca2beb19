package jobs

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"codedox/internal/config"
	"codedox/internal/model"
)

func testManager() *Manager {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewManager(config.Default(), nil, logger)
}

func TestCreateRejectsInvalidInput(t *testing.T) {
	m := testManager()
	ctx := context.Background()

	cases := []struct {
		name string
		p    CreateParams
	}{
		{"no start urls", CreateParams{Name: "react"}},
		{"no name", CreateParams{StartURLs: []string{"https://react.dev/"}}},
		{"depth too deep", CreateParams{
			Name: "react", StartURLs: []string{"https://react.dev/"}, MaxDepth: 4,
		}},
		{"negative depth", CreateParams{
			Name: "react", StartURLs: []string{"https://react.dev/"}, MaxDepth: -1,
		}},
		{"concurrency over cap", CreateParams{
			Name: "react", StartURLs: []string{"https://react.dev/"}, MaxConcurrent: 101,
		}},
		{"negative concurrency", CreateParams{
			Name: "react", StartURLs: []string{"https://react.dev/"}, MaxConcurrent: -1,
		}},
		{"malformed include pattern", CreateParams{
			Name: "react", StartURLs: []string{"https://react.dev/"},
			IncludePatterns: []string{"[invalid"},
		}},
		{"malformed exclude pattern", CreateParams{
			Name: "react", StartURLs: []string{"https://react.dev/"},
			ExcludePatterns: []string{"/docs/[a-"},
		}},
	}
	for _, tc := range cases {
		_, err := m.Create(ctx, tc.p)
		if err == nil {
			t.Errorf("%s: expected an error", tc.name)
			continue
		}
		if !model.IsKind(err, model.KindValidation) {
			t.Errorf("%s: kind = %v, want validation", tc.name, model.KindOf(err))
		}
	}
}
