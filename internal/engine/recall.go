package engine

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	ramerrors "github.com/agentmem/ram/internal/errors"
	"github.com/agentmem/ram/internal/search"
	"github.com/agentmem/ram/internal/store"
)

// RecallOptions configures a single recall() call.
type RecallOptions struct {
	Limit       int
	RecallLimit int
	Scope       *store.Scope
}

func (o RecallOptions) resolve() RecallOptions {
	if o.Limit <= 0 {
		o.Limit = DefaultRecallLimit
	}
	return o
}

// dynamicRecallWidth implements spec §4.7's width formula: the preferred
// value if given, else a width scaled to corpus size.
func dynamicRecallWidth(preferred, corpusSize int) int {
	if preferred > 0 {
		return preferred
	}
	switch {
	case corpusSize > corpusThreshold50K:
		return recallWidthLarge
	case corpusSize > corpusThreshold5K:
		return recallWidthMedium
	default:
		return recallWidthSmall
	}
}

// Recall runs the full retrieval pipeline: query expansion, ANN+FTS
// union search, scoring, MMR rerank, sibling-chunk expansion, and a
// final rerank — then bumps recall metrics on every returned id.
func (e *Engine) Recall(ctx context.Context, query string, opts RecallOptions) ([]*search.ScoredRecord, error) {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return nil, ramerrors.InputInvalid(ramerrors.ErrCodeEmptyQuery, "query must not be empty")
	}
	opts = opts.resolve()

	corpusSize, err := e.storage.Meta().Count(ctx)
	if err != nil {
		return nil, ramerrors.Storage("failed to read corpus size", err)
	}
	recallLimit := dynamicRecallWidth(opts.RecallLimit, corpusSize)

	expansions := e.expander.Expand(trimmed)
	if len(expansions) == 0 {
		expansions = []string{trimmed}
	}

	annFTSWidth := recallLimit
	if w := opts.Limit * 8; w > annFTSWidth {
		annFTSWidth = w
	}

	var canonicalQueryEmbedding []float32
	candidateIDs := make(map[string]bool)
	ftsHitSet := make(map[string]bool)

	for i, expansion := range expansions {
		emb, embedErr := e.embedder.Embed(ctx, expansion)
		if embedErr != nil {
			return nil, ramerrors.New(ramerrors.ErrCodeStorageFailure, "failed to embed query expansion", embedErr)
		}
		if i == 0 {
			canonicalQueryEmbedding = emb
		}

		if e.storage.Vectors().Enabled() {
			vecHits, searchErr := e.storage.Vectors().Search(ctx, emb, annFTSWidth, opts.Scope)
			if searchErr != nil {
				// IndexDegraded is not a failure mode (spec §7): recall
				// degrades to whichever candidate sources remain healthy.
				e.logger.Warn("ann_search_degraded", slog.String("expansion", expansion), slog.Any("error", searchErr))
			}
			for _, h := range vecHits {
				candidateIDs[h.ID] = true
			}
		}

		if e.storage.FTS().Enabled() {
			ftsHits, searchErr := e.storage.FTS().Search(ctx, expansion, annFTSWidth)
			if searchErr != nil {
				e.logger.Warn("fts_search_degraded", slog.String("expansion", expansion), slog.Any("error", searchErr))
			}
			for _, h := range ftsHits {
				candidateIDs[h.ID] = true
				ftsHitSet[h.ID] = true
			}
		}
	}

	if len(candidateIDs) == 0 {
		return []*search.ScoredRecord{}, nil
	}

	ids := make([]string, 0, len(candidateIDs))
	for id := range candidateIDs {
		ids = append(ids, id)
	}
	records, err := e.storage.Meta().GetByIDs(ctx, ids)
	if err != nil {
		return nil, ramerrors.Storage("failed to load candidate records", err)
	}
	if opts.Scope != nil {
		records = filterByScope(records, *opts.Scope)
	}

	now := nowMillis()
	scored := scoreAll(trimmed, canonicalQueryEmbedding, records, ftsHitSet, now)
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if len(scored) > recallLimit {
		scored = scored[:recallLimit]
	}

	selected := e.reranker.Rerank(ctx, scored, opts.Limit)

	selected, err = e.expandSiblings(ctx, selected, opts.Limit)
	if err != nil {
		return nil, err
	}

	selected = e.reranker.Rerank(ctx, selected, opts.Limit)

	ids = make([]string, len(selected))
	for i, s := range selected {
		ids[i] = s.Record.ID
	}
	if err := e.storage.BumpRecallMetrics(ctx, ids, now); err != nil {
		return nil, ramerrors.Storage("failed to update recall metrics", err)
	}

	return selected, nil
}

func filterByScope(records []*store.MemoryRecord, scope store.Scope) []*store.MemoryRecord {
	out := make([]*store.MemoryRecord, 0, len(records))
	for _, r := range records {
		if r.Scope == scope {
			out = append(out, r)
		}
	}
	return out
}

func scoreAll(rawQuery string, queryEmbedding []float32, records []*store.MemoryRecord, ftsHitSet map[string]bool, now int64) []*search.ScoredRecord {
	out := make([]*search.ScoredRecord, len(records))
	for i, rec := range records {
		out[i] = search.Score(rawQuery, queryEmbedding, rec, ftsHitSet[rec.ID], now)
	}
	return out
}

// expandSiblings fetches chunks adjacent to each surviving item
// (chunkIndex-1..chunkIndex+1) not already present, inserting them with
// decayed scores (spec §4.7).
func (e *Engine) expandSiblings(ctx context.Context, selected []*search.ScoredRecord, limit int) ([]*search.ScoredRecord, error) {
	present := make(map[string]bool, len(selected))
	for _, s := range selected {
		present[s.Record.ID] = true
	}

	out := make([]*search.ScoredRecord, len(selected))
	copy(out, selected)

	for _, s := range selected {
		rec := s.Record
		siblings, err := e.storage.Meta().GetSiblings(ctx, rec.ParentID, rec.ChunkIndex-1, rec.ChunkIndex+1)
		if err != nil {
			return nil, ramerrors.Storage("failed to expand sibling chunks", err)
		}
		for _, sib := range siblings {
			if sib.ID == rec.ID || present[sib.ID] {
				continue
			}
			present[sib.ID] = true

			decayed := &search.ScoredRecord{
				Record:          sib,
				VectorScore:     floorZero(s.VectorScore - siblingVectorDecay),
				LexicalScore:    floorZero(s.LexicalScore - siblingLexicalDecay),
				RecencyScore:    s.RecencyScore,
				ImportanceScore: s.ImportanceScore,
				Score:           floorZero(s.Score - siblingFinalDecay),
			}
			out = append(out, decayed)
		}
	}

	_ = limit // limit is enforced by the caller's subsequent rerank pass
	return out, nil
}

func floorZero(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}
