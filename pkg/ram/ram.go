// Package ram is the public entry point for embedding a local
// retrieval-augmented memory engine into a host application: it wires a
// caller-supplied Embedder and Tokenizer to a durable SQLite-backed
// store and exposes remember/recall/build-context/forget/list/open/
// count-by-kind/mark-invalid/status as a single Memory handle.
package ram

import (
	"context"

	"github.com/agentmem/ram/internal/embed"
	"github.com/agentmem/ram/internal/engine"
	"github.com/agentmem/ram/internal/search"
	"github.com/agentmem/ram/internal/store"
)

// Re-exported domain types so callers never need to import internal
// packages directly.
type (
	Kind               = store.Kind
	Scope              = store.Scope
	MemoryRecord       = store.MemoryRecord
	RecordSummary      = store.RecordSummary
	ListOptions        = store.ListOptions
	CountByKindOptions = store.CountByKindOptions
	ScoredRecord       = search.ScoredRecord
	RememberOptions    = engine.RememberOptions
	RecallOptions      = engine.RecallOptions
	BuildContextOptions = engine.BuildContextOptions
	Status             = engine.Status
	Embedder           = embed.Embedder
	Tokenizer          = embed.Tokenizer
)

const (
	KindIdentity     = store.KindIdentity
	KindTask         = store.KindTask
	KindKnowledge    = store.KindKnowledge
	KindReference    = store.KindReference
	KindNote         = store.KindNote
	KindUnclassified = store.KindUnclassified

	ScopeSession = store.ScopeSession
	ScopeProject = store.ScopeProject
	ScopeGlobal  = store.ScopeGlobal
)

// Option configures a Memory at construction time.
type Option = engine.Option

var (
	WithChunker        = engine.WithChunker
	WithExpander       = engine.WithExpander
	WithReranker       = engine.WithReranker
	WithQueryCacheSize = engine.WithQueryCacheSize
)

// Memory is the embeddable retrieval-augmented memory engine. All methods
// are safe for concurrent use by a single owning process.
type Memory struct {
	e *engine.Engine
}

// Open creates or opens a memory.db at path, wiring embedder and
// tokenizer as the engine's capability providers.
func Open(ctx context.Context, path string, embedder Embedder, tokenizer Tokenizer, opts ...Option) (*Memory, error) {
	e, err := engine.New(ctx, path, embedder, tokenizer, opts...)
	if err != nil {
		return nil, err
	}
	return &Memory{e: e}, nil
}

// Close releases the underlying storage handle.
func (m *Memory) Close() error {
	return m.e.Close()
}

// Remember chunks, embeds, deduplicates, classifies, and stores content.
func (m *Memory) Remember(ctx context.Context, content string, opts RememberOptions) (*MemoryRecord, error) {
	return m.e.Remember(ctx, content, opts)
}

// Recall runs the hybrid retrieval pipeline and returns scored results.
func (m *Memory) Recall(ctx context.Context, query string, opts RecallOptions) ([]*ScoredRecord, error) {
	return m.e.Recall(ctx, query, opts)
}

// BuildContext renders recalled memories as a prompt-ready context block.
func (m *Memory) BuildContext(ctx context.Context, query string, opts BuildContextOptions) (string, error) {
	return m.e.BuildContext(ctx, query, opts)
}

// Forget deletes a memory by id. Idempotent.
func (m *Memory) Forget(ctx context.Context, id string) error {
	return m.e.Forget(ctx, id)
}

// List returns paginated, filtered record summaries.
func (m *Memory) List(ctx context.Context, opts ListOptions) ([]*RecordSummary, error) {
	return m.e.List(ctx, opts)
}

// Open returns the full record for id, or nil if absent.
func (m *Memory) Open(ctx context.Context, id string) (*MemoryRecord, error) {
	return m.e.Open(ctx, id)
}

// CountByKind returns a zero-filled count for every enum kind.
func (m *Memory) CountByKind(ctx context.Context, opts CountByKindOptions) (map[Kind]int, error) {
	return m.e.CountByKind(ctx, opts)
}

// MarkInvalid flags a memory as contradicted. A nil score uses the
// engine's default (0.2).
func (m *Memory) MarkInvalid(ctx context.Context, id string, score *float64) error {
	return m.e.MarkInvalid(ctx, id, score)
}

// Status reports the engine's path, ANN availability, and corpus size.
func (m *Memory) Status(ctx context.Context) (*Status, error) {
	return m.e.Status(ctx)
}
