package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmem/ram/internal/embed"
	"github.com/agentmem/ram/internal/store"
)

// countingEmbedder wraps a real Embedder and counts every text actually
// sent through EmbedBatch, so tests can assert the content-hash
// short-circuit skips re-embedding identical content.
type countingEmbedder struct {
	embed.Embedder
	batchCalls int
	textsSeen  int
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.batchCalls++
	c.textsSeen += len(texts)
	return c.Embedder.EmbedBatch(ctx, texts)
}

func TestRemember_EmptyContent_ReturnsInputInvalid(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Remember(context.Background(), "   ", RememberOptions{})
	require.Error(t, err)
}

func TestRemember_ExplicitKind_StoresAsGiven(t *testing.T) {
	e := newTestEngine(t)
	rec := remember(t, e, "the quarterly report is due on Friday", RememberOptions{}.WithKind(store.KindTask))
	assert.Equal(t, store.KindTask, rec.Kind)
	assert.Equal(t, store.ScopeGlobal, rec.Scope)
	assert.InDelta(t, 0.5, rec.Importance, 1e-9)
	assert.InDelta(t, 1.0, rec.ValidityScore, 1e-9)
}

func TestRemember_AutoKind_Classifies(t *testing.T) {
	e := newTestEngine(t)
	rec := remember(t, e, "See docs at https://example.com/spec", RememberOptions{})
	assert.True(t, store.IsValidKind(rec.Kind))
}

// Scenario S1 (spec §8): submitting the same content twice merges into
// one row rather than creating a duplicate.
func TestRemember_ScenarioS1_DuplicateContentMerges(t *testing.T) {
	e := newTestEngine(t)
	content := "Remember that the staging database uses port 5433 for Postgres"

	first := remember(t, e, content, RememberOptions{}.WithKind(store.KindKnowledge))
	second := remember(t, e, content, RememberOptions{}.WithKind(store.KindKnowledge))

	assert.Equal(t, first.ID, second.ID)

	counts, err := e.CountByKind(context.Background(), store.CountByKindOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, counts[store.KindKnowledge])
}

// Scenario S3 (spec §8): a reference-shaped memory classifies as reference.
func TestRemember_ScenarioS3_ClassifiesReference(t *testing.T) {
	e := newTestEngine(t)
	rec := remember(t, e, "See docs at https://example.com/spec", RememberOptions{})
	assert.Equal(t, store.KindReference, rec.Kind)
}

// Re-remembering identical content reuses the existing row's stored
// embedding instead of calling the embedder again for it.
func TestRemember_DuplicateContent_SkipsReEmbedding(t *testing.T) {
	counting := &countingEmbedder{Embedder: embed.NewStaticEmbedder()}
	e, err := New(context.Background(), ":memory:", counting, embed.NewStaticTokenizer())
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })

	content := "Remember that the CI runner uses 8 vCPUs"
	remember(t, e, content, RememberOptions{}.WithKind(store.KindKnowledge))
	require.Equal(t, 1, counting.batchCalls)
	require.Equal(t, 1, counting.textsSeen)

	remember(t, e, content, RememberOptions{}.WithKind(store.KindKnowledge))
	assert.Equal(t, 1, counting.batchCalls, "second remember of identical content must not call EmbedBatch again")
	assert.Equal(t, 1, counting.textsSeen)
}

func TestRemember_InvalidExplicitKind_RejectsWithInputInvalid(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Remember(context.Background(), "hello there", RememberOptions{}.WithKind(store.Kind("bogus")))
	require.Error(t, err)
}
