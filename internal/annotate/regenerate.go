package annotate

import (
	"context"

	"github.com/google/uuid"

	"codedox/internal/model"
	"codedox/internal/progress"
	"codedox/internal/store"
)

// RegenerateResult summarizes one regeneration run.
type RegenerateResult struct {
	Processed int `json:"processed"`
	Changed   int `json:"changed"`
	Failed    int `json:"failed"`
}

const regenPageSize = 200

// Regenerate re-annotates every snippet of a source in place, without
// re-crawling. Progress events stream under the source ID topic; the
// run stops early on context cancellation and reports what it finished.
func (a *Annotator) Regenerate(ctx context.Context, st *store.Store, broker *progress.Broker, sourceID uuid.UUID) (RegenerateResult, error) {
	var res RegenerateResult
	if !a.enabled {
		return res, model.E(model.KindValidation, "no LLM endpoint configured")
	}

	topic := sourceID.String()
	offset := 0
	for {
		if err := ctx.Err(); err != nil {
			return res, model.Wrap(model.KindCancelled, "regenerate cancelled", err)
		}

		snippets, total, err := st.ListSnippetsBySource(ctx, sourceID, regenPageSize, offset)
		if err != nil {
			return res, err
		}
		if len(snippets) == 0 {
			break
		}

		for lo := 0; lo < len(snippets); lo += a.batchSize {
			hi := lo + a.batchSize
			if hi > len(snippets) {
				hi = len(snippets)
			}
			a.regenerateBatch(ctx, st, broker, topic, snippets[lo:hi], &res, total)
			if ctx.Err() != nil {
				return res, model.Wrap(model.KindCancelled, "regenerate cancelled", ctx.Err())
			}
		}

		offset += len(snippets)
		if offset >= total {
			break
		}
	}

	broker.Publish(topic, progress.EventRegenProgress, map[string]any{
		"processed": res.Processed,
		"changed":   res.Changed,
		"failed":    res.Failed,
		"done":      true,
	})
	return res, nil
}

func (a *Annotator) regenerateBatch(ctx context.Context, st *store.Store, broker *progress.Broker,
	topic string, snippets []model.CodeSnippet, res *RegenerateResult, total int) {

	batch := make([]Input, len(snippets))
	for i, sn := range snippets {
		batch[i] = Input{
			Code:        sn.Code,
			Language:    sn.Language,
			Title:       sn.Title,
			Description: sn.Description,
			SourceURL:   sn.SourceURL,
		}
	}

	anns, err := a.client.Annotate(ctx, batch)
	for i := range snippets {
		sn := &snippets[i]
		res.Processed++

		if err != nil {
			res.Failed++
		} else {
			before := sn.Title + "\x00" + sn.Description + "\x00" + sn.Language
			prevLang := sn.Language
			sn.Language = "" // let the regeneration overwrite the language too
			applyAnnotation(sn, anns[i])
			if sn.Language == "" {
				sn.Language = prevLang
			}

			if before != sn.Title+"\x00"+sn.Description+"\x00"+sn.Language {
				if uerr := st.UpdateSnippetAnnotation(ctx, sn.ID, sn.Title, sn.Description, sn.Language); uerr != nil {
					res.Failed++
				} else {
					res.Changed++
				}
			}
		}

		broker.Publish(topic, progress.EventRegenProgress, map[string]any{
			"processed":       res.Processed,
			"changed":         res.Changed,
			"failed":          res.Failed,
			"total":           total,
			"current_snippet": sn.ID.String(),
		})
	}
}
