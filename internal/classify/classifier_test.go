package classify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmem/ram/internal/embed"
	"github.com/agentmem/ram/internal/store"
)

type fakeVectorStore struct {
	results []*store.VectorResult
}

func (f *fakeVectorStore) Add(ctx context.Context, ids []string, vectors [][]float32, scopes []store.Scope) error {
	return nil
}
func (f *fakeVectorStore) Search(ctx context.Context, query []float32, k int, scope *store.Scope) ([]*store.VectorResult, error) {
	if k < len(f.results) {
		return f.results[:k], nil
	}
	return f.results, nil
}
func (f *fakeVectorStore) Delete(ctx context.Context, ids []string) error { return nil }
func (f *fakeVectorStore) Contains(id string) bool                       { return false }
func (f *fakeVectorStore) Count() int                                    { return len(f.results) }
func (f *fakeVectorStore) Enabled() bool                                 { return true }
func (f *fakeVectorStore) Stats() store.VectorStats                      { return store.VectorStats{} }
func (f *fakeVectorStore) Close() error                                  { return nil }

type fakeKindLookup struct {
	kinds map[string]store.Kind
}

func (f *fakeKindLookup) KindsByIDs(ctx context.Context, ids []string) (map[string]store.Kind, error) {
	out := make(map[string]store.Kind, len(ids))
	for _, id := range ids {
		if k, ok := f.kinds[id]; ok {
			out[id] = k
		}
	}
	return out, nil
}

func newTestClassifier(t *testing.T, vectors store.VectorStore, kinds KindLookup) *Classifier {
	t.Helper()
	return New(embed.NewStaticEmbedder(), vectors, kinds)
}

func TestClassifier_EmptyEmbedding_ReturnsUnclassifiedImmediately(t *testing.T) {
	c := newTestClassifier(t, &fakeVectorStore{}, &fakeKindLookup{})
	kind, confidence, err := c.Classify(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, store.KindUnclassified, kind)
	assert.Equal(t, 0.0, confidence)
}

func TestClassifier_Classify_ReturnsValueInEnum(t *testing.T) {
	embedder := embed.NewStaticEmbedder()
	c := newTestClassifier(t, &fakeVectorStore{}, &fakeKindLookup{})

	texts := []string{
		"My name is Alex and I live in Berlin",
		"TODO fix the flaky test suite before Friday",
		"Random unrelated sentence about nothing in particular",
	}
	for _, text := range texts {
		vec, err := embedder.Embed(context.Background(), text)
		require.NoError(t, err)

		kind, _, err := c.Classify(context.Background(), vec, nil)
		require.NoError(t, err)
		assert.True(t, store.IsValidKind(kind))
	}
}

func TestClassifier_Classify_CloseToIdentityPrototype_ClassifiesIdentity(t *testing.T) {
	embedder := embed.NewStaticEmbedder()
	c := newTestClassifier(t, &fakeVectorStore{}, &fakeKindLookup{})

	vec, err := embedder.Embed(context.Background(), StaticPrototypes[store.KindIdentity][0])
	require.NoError(t, err)

	kind, confidence, err := c.Classify(context.Background(), vec, nil)
	require.NoError(t, err)
	assert.Equal(t, store.KindIdentity, kind)
	assert.Greater(t, confidence, 0.9)
}

func TestClassifier_OnlineLearning_HighConfidenceGrowsLearnedQueue(t *testing.T) {
	embedder := embed.NewStaticEmbedder()
	c := newTestClassifier(t, &fakeVectorStore{}, &fakeKindLookup{})

	vec, err := embedder.Embed(context.Background(), StaticPrototypes[store.KindTask][0])
	require.NoError(t, err)

	_, confidence, err := c.Classify(context.Background(), vec, nil)
	require.NoError(t, err)
	require.Greater(t, confidence, onlineLearningFloor)

	assert.Positive(t, c.learned[store.KindTask].Len())
}

func TestClassifier_Density_GroupsByNeighborKindAverage(t *testing.T) {
	embedder := embed.NewStaticEmbedder()
	vec, err := embedder.Embed(context.Background(), "an ambiguous sentence with no strong signal")
	require.NoError(t, err)

	vectors := &fakeVectorStore{results: []*store.VectorResult{
		{ID: "n1", Distance: 0.1},
		{ID: "n2", Distance: 0.2},
		{ID: "n3", Distance: 5.0},
	}}
	kinds := &fakeKindLookup{kinds: map[string]store.Kind{
		"n1": store.KindNote,
		"n2": store.KindNote,
		"n3": store.KindTask,
	}}
	c := New(embedder, vectors, kinds)

	density, err := c.densityScores(context.Background(), vec, nil)
	require.NoError(t, err)
	assert.Greater(t, density[store.KindNote], density[store.KindTask])
}

func TestClassifier_DisabledVectorStore_DensityIsZero(t *testing.T) {
	embedder := embed.NewStaticEmbedder()
	c := New(embedder, nil, nil)

	vec, err := embedder.Embed(context.Background(), "x")
	require.NoError(t, err)

	density, err := c.densityScores(context.Background(), vec, nil)
	require.NoError(t, err)
	for _, k := range store.ClassifiableKinds {
		assert.Equal(t, 0.0, density[k])
	}
}
