package annotate

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"codedox/internal/config"
	"codedox/internal/metrics"
	"codedox/internal/model"
)

// Annotator batches code blocks and runs them through the LLM client
// with bounded parallelism. Annotation is best-effort: a batch that
// fails permanently keeps its extractor-derived metadata and the job
// moves on.
type Annotator struct {
	client    Client
	modelName string
	batchSize int
	parallel  int
	enabled   bool
	logger    *slog.Logger
}

func New(cfg *config.Config, logger *slog.Logger) *Annotator {
	a := &Annotator{
		batchSize: cfg.LLM.BatchSize,
		parallel:  cfg.LLM.NumParallel,
		enabled:   cfg.LLM.Enabled,
		modelName: cfg.LLM.Model,
		logger:    logger,
	}
	if a.enabled {
		a.client = NewChatClient(cfg.LLM.APIKey, cfg.LLM.BaseURL, cfg.LLM.Model, cfg.LLM.Timeout())
	}
	return a
}

// NewWithClient is the test seam: inject a fake client.
func NewWithClient(client Client, batchSize, parallel int, logger *slog.Logger) *Annotator {
	return &Annotator{
		client:    client,
		batchSize: batchSize,
		parallel:  parallel,
		enabled:   client != nil,
		logger:    logger,
	}
}

// Enabled reports whether an LLM endpoint is configured.
func (a *Annotator) Enabled() bool { return a.enabled }

// AnnotateBlocks fills language, title, and description on the given
// snippets. Snippets keep their extractor-derived context when the
// annotator is disabled or a batch fails.
func (a *Annotator) AnnotateBlocks(ctx context.Context, snippets []model.CodeSnippet, blocks []model.ExtractedCodeBlock) {
	if !a.enabled || len(snippets) == 0 {
		return
	}

	type span struct{ lo, hi int }
	var spans []span
	for lo := 0; lo < len(snippets); lo += a.batchSize {
		hi := lo + a.batchSize
		if hi > len(snippets) {
			hi = len(snippets)
		}
		spans = append(spans, span{lo, hi})
	}

	sem := make(chan struct{}, a.parallel)
	var wg sync.WaitGroup
	for _, sp := range spans {
		wg.Add(1)
		sem <- struct{}{}
		go func(sp span) {
			defer wg.Done()
			defer func() { <-sem }()
			a.annotateSpan(ctx, snippets[sp.lo:sp.hi], blocks[sp.lo:sp.hi])
		}(sp)
	}
	wg.Wait()
}

func (a *Annotator) annotateSpan(ctx context.Context, snippets []model.CodeSnippet, blocks []model.ExtractedCodeBlock) {
	batch := make([]Input, len(snippets))
	for i, sn := range snippets {
		batch[i] = Input{
			Code:        sn.Code,
			Language:    sn.Language,
			Title:       blocks[i].Context.Title,
			Description: blocks[i].Context.Description,
		}
	}

	anns, err := a.client.Annotate(ctx, batch)
	if err != nil {
		metrics.RecordAnnotation(a.modelName, "fallback")
		if ctx.Err() == nil {
			a.logger.Warn("annotation batch failed, keeping extracted context",
				"size", len(batch), "error", err)
		}
		return
	}

	for i := range snippets {
		applyAnnotation(&snippets[i], anns[i])
	}
	metrics.RecordAnnotation(a.modelName, "ok")
}

// applyAnnotation merges LLM output into a snippet. A source language
// hint is authoritative; empty LLM fields never erase existing context.
func applyAnnotation(sn *model.CodeSnippet, ann Annotation) {
	if sn.Language == "" && ann.Language != "" {
		sn.Language = strings.ToLower(strings.TrimSpace(ann.Language))
	}
	if t := strings.TrimSpace(ann.Title); t != "" {
		sn.Title = t
	}
	if d := strings.TrimSpace(ann.Description); d != "" {
		sn.Description = d
	}
}
