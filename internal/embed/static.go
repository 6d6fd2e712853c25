package embed

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"unicode"
)

// isWordRune reports whether r is part of a token: a Unicode letter or
// digit, or a CJK ideograph in the U+4E00..U+9FA5 range.
func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || (r >= 0x4E00 && r <= 0x9FA5)
}

// splitWords tokenizes s on runs of word runes, discarding everything else.
func splitWords(s string) []string {
	var words []string
	var cur strings.Builder
	for _, r := range s {
		if isWordRune(r) {
			cur.WriteRune(r)
		} else if cur.Len() > 0 {
			words = append(words, cur.String())
			cur.Reset()
		}
	}
	if cur.Len() > 0 {
		words = append(words, cur.String())
	}
	return words
}

// StaticEmbedder produces deterministic, hash-based embeddings with no
// external model or network dependency. It is a test double standing in
// for a real embedding service: same input always yields the same
// unit-norm vector, and related text yields similar vectors because
// hashed token contributions accumulate in shared buckets.
type StaticEmbedder struct {
	mu     sync.RWMutex
	closed bool
}

// NewStaticEmbedder creates a static embedder with the fixed dimension D.
func NewStaticEmbedder() *StaticEmbedder {
	return &StaticEmbedder{}
}

// Embed generates the embedding for a single text.
func (e *StaticEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return nil, fmt.Errorf("static embedder is closed")
	}

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return make([]float32, Dimensions), nil
	}

	vector := make([]float32, Dimensions)
	for _, word := range splitWords(strings.ToLower(trimmed)) {
		vector[hashToIndex(word, Dimensions)] += 1.0
	}
	for _, gram := range trigrams(normalizeForGrams(trimmed)) {
		vector[hashToIndex(gram, Dimensions)] += 0.3
	}

	return normalizeVector(vector), nil
}

// EmbedBatch generates embeddings for multiple texts.
func (e *StaticEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	results := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embed text %d: %w", i, err)
		}
		results[i] = vec
	}
	return results, nil
}

// Dimensions returns D.
func (e *StaticEmbedder) Dimensions() int { return Dimensions }

// ModelName identifies this embedder for cache-key purposes.
func (e *StaticEmbedder) ModelName() string { return "static-hash-v1" }

// Available reports readiness; always true until closed.
func (e *StaticEmbedder) Available(_ context.Context) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return !e.closed
}

// Close marks the embedder unusable. Idempotent.
func (e *StaticEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

func hashToIndex(s string, size int) int {
	h := fnv.New64()
	_, _ = h.Write([]byte(s))
	return int(h.Sum64() % uint64(size))
}

func normalizeForGrams(text string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(text) {
		if isWordRune(r) {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

func trigrams(s string) []string {
	const n = 3
	runes := []rune(s)
	if len(runes) < n {
		return nil
	}
	grams := make([]string, 0, len(runes)-n+1)
	for i := 0; i <= len(runes)-n; i++ {
		grams = append(grams, string(runes[i:i+n]))
	}
	return grams
}

// StaticTokenizer is a word-level Tokenizer with a process-lifetime vocab
// that grows on demand: each distinct word encountered is assigned the
// next integer id, so Decode can exactly reconstruct the words Tokenize
// produced ids for.
type StaticTokenizer struct {
	mu       sync.Mutex
	wordToID map[string]int
	idToWord []string
}

// NewStaticTokenizer creates an empty tokenizer.
func NewStaticTokenizer() *StaticTokenizer {
	return &StaticTokenizer{
		wordToID: make(map[string]int),
	}
}

// Tokenize splits text into word tokens and maps each to a stable id,
// assigning new ids for words not previously seen.
func (t *StaticTokenizer) Tokenize(text string) []int {
	words := splitWords(text)
	if len(words) == 0 {
		return []int{}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	ids := make([]int, len(words))
	for i, w := range words {
		id, ok := t.wordToID[w]
		if !ok {
			id = len(t.idToWord)
			t.wordToID[w] = id
			t.idToWord = append(t.idToWord, w)
		}
		ids[i] = id
	}
	return ids
}

// Decode reconstructs a space-joined string from token ids. Unknown ids
// are skipped.
func (t *StaticTokenizer) Decode(ids []int) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	words := make([]string, 0, len(ids))
	for _, id := range ids {
		if id >= 0 && id < len(t.idToWord) {
			words = append(words, t.idToWord[id])
		}
	}
	return strings.Join(words, " ")
}
