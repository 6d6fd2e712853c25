package embed

import (
	"context"
	"math"
)

// Dimensions is the fixed embedding width (D) every Embedder must produce.
const Dimensions = 384

// DefaultQueryCacheSize is the capacity of the query-embedding LRU (spec:
// process-local, optional, capacity 512).
const DefaultQueryCacheSize = 512

// Embedder turns text into a unit-norm float32 vector of fixed dimension D.
// It is an injectable capability, not a component the engine implements
// concrete providers for: callers construct one (static, remote, whatever)
// and pass it into the engine.
type Embedder interface {
	// Embed generates the embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts in one call.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns D, the fixed embedding width.
	Dimensions() int

	// ModelName identifies the embedding model, used as part of cache keys.
	ModelName() string

	// Available reports whether the embedder is ready to serve requests.
	Available(ctx context.Context) bool

	// Close releases resources held by the embedder.
	Close() error
}

// Tokenizer converts between text and token-id sequences. The chunker and
// the engine's per-record token counts depend on this capability; the
// lexical scorer tokenizes with search.Tokenize instead.
type Tokenizer interface {
	// Tokenize splits text into token ids, without special tokens.
	Tokenize(text string) []int

	// Decode reconstructs text from token ids, skipping special tokens.
	Decode(ids []int) string
}

// normalizeVector scales v to unit length. The zero vector is returned
// unchanged since it has no direction to normalize to.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}

	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v
	}

	normalized := make([]float32, len(v))
	for i, val := range v {
		normalized[i] = float32(float64(val) / magnitude)
	}
	return normalized
}
