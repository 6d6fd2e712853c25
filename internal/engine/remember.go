package engine

import (
	"context"
	"strings"

	"github.com/google/uuid"

	ramerrors "github.com/agentmem/ram/internal/errors"
	"github.com/agentmem/ram/internal/store"
)

// RememberOptions configures a single remember() call. Zero values take
// the spec's documented defaults.
type RememberOptions struct {
	// Kind is the classification to store. Empty or "auto" means
	// classify each kept chunk via the classifier.
	Kind          store.Kind
	Scope         store.Scope
	Importance    float64
	ValidityScore float64
	IsNegative    bool

	kindSet          bool
	importanceSet    bool
	validityScoreSet bool
}

// WithKind sets an explicit stored kind, or "auto" to force classification.
func (o RememberOptions) WithKind(k store.Kind) RememberOptions {
	o.Kind = k
	o.kindSet = true
	return o
}

// WithScope sets the retention scope.
func (o RememberOptions) WithScope(s store.Scope) RememberOptions {
	o.Scope = s
	return o
}

// WithImportance sets the initial importance in [0,1].
func (o RememberOptions) WithImportance(v float64) RememberOptions {
	o.Importance = v
	o.importanceSet = true
	return o
}

// WithValidityScore sets the initial validity score in [0,1].
func (o RememberOptions) WithValidityScore(v float64) RememberOptions {
	o.ValidityScore = v
	o.validityScoreSet = true
	return o
}

// WithNegative marks the memory as a negative/contradicting observation.
func (o RememberOptions) WithNegative(v bool) RememberOptions {
	o.IsNegative = v
	return o
}

const autoKind store.Kind = "auto"

func (o RememberOptions) resolve() RememberOptions {
	if !o.kindSet {
		o.Kind = autoKind
	}
	if o.Scope == "" {
		o.Scope = store.ScopeGlobal
	}
	if !o.importanceSet {
		o.Importance = 0.5
	}
	if !o.validityScoreSet {
		o.ValidityScore = 1.0
	}
	return o
}

// Remember chunks, embeds, deduplicates, and (if requested) classifies
// content, then inserts or merges every chunk in one transaction. It
// returns the first newly-inserted row, or else the first merged row.
func (e *Engine) Remember(ctx context.Context, content string, opts RememberOptions) (*store.MemoryRecord, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return nil, ramerrors.InputInvalid(ramerrors.ErrCodeEmptyContent, "content must not be empty")
	}
	opts = opts.resolve()

	chunks := e.chunker.Chunk(trimmed)
	if len(chunks) == 0 {
		return nil, ramerrors.InputInvalid(ramerrors.ErrCodeEmptyChunks, "chunking produced no chunks")
	}

	embeddings, err := e.embedChunksWithContentHashShortCircuit(ctx, chunks, opts.Scope)
	if err != nil {
		return nil, ramerrors.New(ramerrors.ErrCodeStorageFailure, "failed to embed chunks", err)
	}

	parentID := uuid.NewString()
	now := nowMillis()

	candidates := make([]*store.MemoryRecord, len(chunks))
	for i, text := range chunks {
		kind := opts.Kind
		if kind == "" || kind == autoKind {
			classified, _, classifyErr := e.classifier.Classify(ctx, embeddings[i], &opts.Scope)
			if classifyErr != nil {
				return nil, ramerrors.New(ramerrors.ErrCodeStorageFailure, "classification failed", classifyErr)
			}
			kind = classified
		}
		if !store.IsValidKind(kind) {
			return nil, ramerrors.InputInvalid(ramerrors.ErrCodeEmptyContent, "kind is not a valid enum value")
		}

		candidates[i] = &store.MemoryRecord{
			ID:            uuid.NewString(),
			ParentID:      parentID,
			ChunkIndex:    i,
			Content:       text,
			Kind:          kind,
			Scope:         opts.Scope,
			Importance:    clamp01(opts.Importance),
			TokenCount:    len(e.tokenizer.Tokenize(text)),
			ValidityScore: clamp01(opts.ValidityScore),
			IsNegative:    opts.IsNegative,
			CreatedAt:     now,
			UpdatedAt:     now,
			Embedding:     embeddings[i],
		}
	}

	results, err := e.storage.InsertChunks(ctx, candidates)
	if err != nil {
		return nil, ramerrors.Storage("failed to write remembered chunks", err)
	}

	var firstNew, firstMerged *store.MemoryRecord
	for _, r := range results {
		if r.Merged {
			if firstMerged == nil {
				firstMerged = r.Record
			}
		} else if firstNew == nil {
			firstNew = r.Record
		}
	}

	if firstNew != nil {
		return firstNew, nil
	}
	if firstMerged != nil {
		return firstMerged, nil
	}
	return nil, ramerrors.InputInvalid(ramerrors.ErrCodeEmptyChunks, "remember produced neither a new row nor a merge")
}

// embedChunksWithContentHashShortCircuit embeds chunks, reusing the stored
// embedding of any same-scope existing row whose content hash exactly
// matches a chunk rather than calling the embedder again for it. Only
// chunks with no exact match are sent to EmbedBatch.
func (e *Engine) embedChunksWithContentHashShortCircuit(ctx context.Context, chunks []string, scope store.Scope) ([][]float32, error) {
	embeddings := make([][]float32, len(chunks))

	var missIdx []int
	var missChunks []string
	for i, text := range chunks {
		existing, err := e.storage.Meta().FindByContentHash(ctx, scope, text)
		if err != nil {
			return nil, err
		}
		if existing != nil && len(existing.Embedding) > 0 {
			embeddings[i] = existing.Embedding
			continue
		}
		missIdx = append(missIdx, i)
		missChunks = append(missChunks, text)
	}

	if len(missChunks) == 0 {
		return embeddings, nil
	}

	missed, err := e.embedder.EmbedBatch(ctx, missChunks)
	if err != nil {
		return nil, err
	}
	for i, idx := range missIdx {
		embeddings[idx] = missed[i]
	}
	return embeddings, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
