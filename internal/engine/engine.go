// Package engine implements the public operations of the memory engine
// (C8): remember, recall, build-context, forget, list, open,
// count-by-kind, mark-invalid, and status. It orchestrates the chunker,
// storage, query expander, scorer, MMR reranker, and classifier behind
// one facade type.
package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/agentmem/ram/internal/chunk"
	"github.com/agentmem/ram/internal/classify"
	"github.com/agentmem/ram/internal/embed"
	ramerrors "github.com/agentmem/ram/internal/errors"
	"github.com/agentmem/ram/internal/search"
	"github.com/agentmem/ram/internal/store"
)

// Default tuning constants (spec §4.7).
const (
	DefaultRecallLimit = 8

	recallWidthSmall   = 50
	recallWidthMedium  = 100
	recallWidthLarge   = 200
	corpusThreshold5K  = 5000
	corpusThreshold50K = 50000

	siblingVectorDecay  = 0.08
	siblingLexicalDecay = 0.05
	siblingFinalDecay   = 0.10

	defaultBuildContextLimit    = 5
	defaultBuildContextMaxChars = 2400

	defaultMarkInvalidScore = 0.2
)

// Engine is the process-wide facade owning storage, the injected
// capabilities, and every derived in-memory index. Construction is
// explicit: no package-level mutable state backs any Engine method.
type Engine struct {
	storage        *store.Storage
	embedder       embed.Embedder
	tokenizer      embed.Tokenizer
	chunker        chunk.Chunker
	expander       *search.Expander
	reranker       search.Reranker
	classifier     *classify.Classifier
	queryCacheSize int
	path           string
	logger         *slog.Logger
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithChunker overrides the default token-window chunker.
func WithChunker(c chunk.Chunker) Option {
	return func(e *Engine) { e.chunker = c }
}

// WithExpander overrides the default query expander.
func WithExpander(x *search.Expander) Option {
	return func(e *Engine) { e.expander = x }
}

// WithReranker overrides the default MMR reranker.
func WithReranker(r search.Reranker) Option {
	return func(e *Engine) { e.reranker = r }
}

// WithLogger overrides the structured logger used for the engine's
// degraded-mode diagnostics (ANN index unavailable at open, ANN or FTS
// search failures during recall). Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithQueryCacheSize overrides the embedding LRU's capacity that wraps
// the injected Embedder.
func WithQueryCacheSize(n int) Option {
	return func(e *Engine) {
		if n <= 0 {
			n = embed.DefaultQueryCacheSize
		}
		e.queryCacheSize = n
	}
}

// New opens the Storage at storagePath and constructs an Engine over it
// with a required Embedder and a required Tokenizer. Returns
// NotConfigured if embedder or tokenizer is nil, per spec §7.
func New(ctx context.Context, storagePath string, embedder embed.Embedder, tokenizer embed.Tokenizer, opts ...Option) (*Engine, error) {
	if embedder == nil {
		return nil, ramerrors.NotConfigured("an embedder capability is required")
	}
	if tokenizer == nil {
		return nil, ramerrors.NotConfigured("a tokenizer capability is required")
	}

	st, err := store.Open(ctx, storagePath)
	if err != nil {
		return nil, ramerrors.Storage("failed to open storage", err)
	}

	e := &Engine{
		storage:        st,
		tokenizer:      tokenizer,
		chunker:        chunk.NewTokenWindowChunker(tokenizer),
		expander:       search.NewExpander(),
		reranker:       search.NewMMRReranker(search.DefaultMMRLambda),
		queryCacheSize: embed.DefaultQueryCacheSize,
		path:           storagePath,
		logger:         slog.Default(),
	}

	for _, opt := range opts {
		opt(e)
	}

	e.embedder = embed.NewCachedEmbedder(embedder, e.queryCacheSize)
	e.classifier = classify.New(e.embedder, st.Vectors(), st.Meta())

	if ann := st.AnnStatus(); !ann.Enabled {
		e.logger.Warn("ann_index_degraded", slog.String("path", storagePath), slog.String("reason", ann.Message))
	}

	return e, nil
}

// Close releases every owned resource.
func (e *Engine) Close() error {
	if err := e.storage.Close(); err != nil {
		return fmt.Errorf("close engine: %w", err)
	}
	return nil
}

// VectorIndexStats is the supplemental corpus-diagnostics field on
// Status: the ANN graph's live vector count and its estimated orphan
// count (lazy-deleted nodes still resident in the graph).
type VectorIndexStats struct {
	Size           int
	OrphanEstimate int
}

// Status payload (spec §6), plus the supplemental vectorIndex field.
type Status struct {
	Path        string
	Ann         store.AnnStatus
	CorpusSize  int
	VectorIndex VectorIndexStats
}

// Status returns the read-only status payload.
func (e *Engine) Status(ctx context.Context) (*Status, error) {
	count, err := e.storage.Meta().Count(ctx)
	if err != nil {
		return nil, ramerrors.Storage("failed to read corpus size", err)
	}
	vecStats := e.storage.Vectors().Stats()
	return &Status{
		Path:       e.path,
		Ann:        e.storage.AnnStatus(),
		CorpusSize: count,
		VectorIndex: VectorIndexStats{
			Size:           vecStats.ValidIDs,
			OrphanEstimate: vecStats.Orphans,
		},
	}, nil
}
