package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMetadataStore(t *testing.T) *SQLiteMetadataStore {
	t.Helper()
	db := openTestDB(t)
	meta, err := NewSQLiteMetadataStore(db)
	require.NoError(t, err)
	return meta
}

func sampleRecord(id, parentID string, chunkIndex int, scope Scope, kind Kind) *MemoryRecord {
	return &MemoryRecord{
		ID:            id,
		ParentID:      parentID,
		ChunkIndex:    chunkIndex,
		Content:       "sample content for " + id,
		Kind:          kind,
		Scope:         scope,
		Importance:    0.5,
		TokenCount:    10,
		ValidityScore: 1.0,
		CreatedAt:     1000,
		UpdatedAt:     1000,
		Embedding:     []float32{0.1, 0.2, 0.3},
	}
}

// TS01: insert then get round-trips every field, including embedding.
func TestSQLiteMetadataStore_InsertAndGetByID_RoundTrips(t *testing.T) {
	meta := newTestMetadataStore(t)
	ctx := context.Background()

	rec := sampleRecord("m1", "m1", 0, ScopeProject, KindNote)
	require.NoError(t, meta.InsertRecords(ctx, meta.db, []*MemoryRecord{rec}))

	got, err := meta.GetByID(ctx, "m1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, rec.Content, got.Content)
	assert.Equal(t, rec.Kind, got.Kind)
	assert.Equal(t, rec.Scope, got.Scope)
	assert.Equal(t, rec.Embedding, got.Embedding)
	assert.Nil(t, got.LastRecalledAt)
}

func TestSQLiteMetadataStore_GetByID_NotFoundReturnsNil(t *testing.T) {
	meta := newTestMetadataStore(t)
	got, err := meta.GetByID(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}

// TS02: sibling expansion returns a contiguous chunk-index window.
func TestSQLiteMetadataStore_GetSiblings_ReturnsContiguousWindow(t *testing.T) {
	meta := newTestMetadataStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		rec := sampleRecord(idFor(i), "parent1", i, ScopeProject, KindKnowledge)
		require.NoError(t, meta.InsertRecords(ctx, meta.db, []*MemoryRecord{rec}))
	}

	siblings, err := meta.GetSiblings(ctx, "parent1", 1, 3)
	require.NoError(t, err)
	require.Len(t, siblings, 3)
	assert.Equal(t, 1, siblings[0].ChunkIndex)
	assert.Equal(t, 3, siblings[2].ChunkIndex)
}

func idFor(i int) string {
	return "chunk-" + string(rune('a'+i))
}

// TS03: BumpRecallMetrics applies the boost formula and sets timestamps.
func TestSQLiteMetadataStore_BumpRecallMetrics_AppliesBoostFormula(t *testing.T) {
	meta := newTestMetadataStore(t)
	ctx := context.Background()

	rec := sampleRecord("m1", "m1", 0, ScopeGlobal, KindNote)
	rec.Importance = 0.5
	require.NoError(t, meta.InsertRecords(ctx, meta.db, []*MemoryRecord{rec}))

	require.NoError(t, meta.BumpRecallMetrics(ctx, []string{"m1"}, 0.04, 5000))

	got, err := meta.GetByID(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, 1, got.RecallCount)
	require.NotNil(t, got.LastRecalledAt)
	assert.Equal(t, int64(5000), *got.LastRecalledAt)
	assert.InDelta(t, 0.98*0.5+0.04, got.Importance, 1e-9)
}

// TS04: UpdateMerge overwrites mergeable fields without creating a new row.
func TestSQLiteMetadataStore_UpdateMerge_OverwritesInPlace(t *testing.T) {
	meta := newTestMetadataStore(t)
	ctx := context.Background()

	rec := sampleRecord("m1", "m1", 0, ScopeGlobal, KindNote)
	require.NoError(t, meta.InsertRecords(ctx, meta.db, []*MemoryRecord{rec}))

	newEmbedding := []float32{0.9, 0.8, 0.7}
	require.NoError(t, meta.UpdateMerge(ctx, meta.db, "m1", "merged content", KindTask, newEmbedding, 42, 0.6, 0.99, 9000))

	got, err := meta.GetByID(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "merged content", got.Content)
	assert.Equal(t, KindTask, got.Kind)
	assert.Equal(t, newEmbedding, got.Embedding)
	assert.Equal(t, 42, got.TokenCount)
	assert.InDelta(t, 0.6, got.Importance, 1e-9)
	assert.InDelta(t, 0.99, got.ValidityScore, 1e-9)

	count, err := meta.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

// TS05: Delete is idempotent.
func TestSQLiteMetadataStore_Delete_Idempotent(t *testing.T) {
	meta := newTestMetadataStore(t)
	ctx := context.Background()

	rec := sampleRecord("m1", "m1", 0, ScopeGlobal, KindNote)
	require.NoError(t, meta.InsertRecords(ctx, meta.db, []*MemoryRecord{rec}))

	require.NoError(t, meta.Delete(ctx, "m1"))
	require.NoError(t, meta.Delete(ctx, "m1"))

	got, err := meta.GetByID(ctx, "m1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

// TS06: List filters by scope, kind, and substring query with pagination.
func TestSQLiteMetadataStore_List_FiltersAndPaginates(t *testing.T) {
	meta := newTestMetadataStore(t)
	ctx := context.Background()

	recs := []*MemoryRecord{
		sampleRecord("a", "a", 0, ScopeProject, KindTask),
		sampleRecord("b", "b", 0, ScopeGlobal, KindTask),
		sampleRecord("c", "c", 0, ScopeProject, KindNote),
	}
	for i, r := range recs {
		r.UpdatedAt = int64(1000 + i)
		require.NoError(t, meta.InsertRecords(ctx, meta.db, []*MemoryRecord{r}))
	}

	scope := ScopeProject
	results, err := meta.List(ctx, ListOptions{Scope: &scope})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "c", results[0].ID) // most recently updated first

	kind := KindTask
	results, err = meta.List(ctx, ListOptions{Kind: &kind})
	require.NoError(t, err)
	assert.Len(t, results, 2)

	results, err = meta.List(ctx, ListOptions{Query: "content for a"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ID)
}

// TS07: CountByKind zero-fills every enum kind.
func TestSQLiteMetadataStore_CountByKind_ZeroFillsAllKinds(t *testing.T) {
	meta := newTestMetadataStore(t)
	ctx := context.Background()
	require.NoError(t, meta.InsertRecords(ctx, meta.db, []*MemoryRecord{
		sampleRecord("a", "a", 0, ScopeGlobal, KindTask),
	}))

	counts, err := meta.CountByKind(ctx, CountByKindOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, counts[KindTask])
	assert.Equal(t, 0, counts[KindNote])
	assert.Equal(t, 0, counts[KindUnclassified])
}

// TS08: MarkInvalid sets validity and the negative flag without deleting.
func TestSQLiteMetadataStore_MarkInvalid_SetsNegativeFlag(t *testing.T) {
	meta := newTestMetadataStore(t)
	ctx := context.Background()
	require.NoError(t, meta.InsertRecords(ctx, meta.db, []*MemoryRecord{
		sampleRecord("a", "a", 0, ScopeGlobal, KindTask),
	}))

	require.NoError(t, meta.MarkInvalid(ctx, "a", 0.1, 2000))

	got, err := meta.GetByID(ctx, "a")
	require.NoError(t, err)
	assert.True(t, got.IsNegative)
	assert.InDelta(t, 0.1, got.ValidityScore, 1e-9)
}

// TS09: AllEmbeddings skips rows without an embedding.
func TestSQLiteMetadataStore_AllEmbeddings_SkipsNilEmbeddings(t *testing.T) {
	meta := newTestMetadataStore(t)
	ctx := context.Background()

	withEmbedding := sampleRecord("a", "a", 0, ScopeGlobal, KindTask)
	withoutEmbedding := sampleRecord("b", "b", 0, ScopeGlobal, KindTask)
	withoutEmbedding.Embedding = nil

	require.NoError(t, meta.InsertRecords(ctx, meta.db, []*MemoryRecord{withEmbedding, withoutEmbedding}))

	ids, vecs, scopes, err := meta.AllEmbeddings(ctx)
	require.NoError(t, err)
	require.Len(t, ids, 1)
	assert.Equal(t, "a", ids[0])
	assert.Equal(t, withEmbedding.Embedding, vecs[0])
	assert.Equal(t, ScopeGlobal, scopes[0])
}
