// Package chunk splits normalized text into overlapping token windows so
// long memories can be stored, embedded, and retrieved chunk-by-chunk
// while still being reassembled via sibling expansion at recall time.
package chunk

import (
	"strings"

	"github.com/agentmem/ram/internal/embed"
)

// Default window sizes (spec: chunkTokens=220, overlapTokens=40).
const (
	DefaultChunkTokens   = 220
	DefaultOverlapTokens = 40
)

// Chunker splits text into a sequence of overlapping chunks.
type Chunker interface {
	Chunk(text string) []string
}

// Option configures a TokenWindowChunker.
type Option func(*TokenWindowChunker)

// WithChunkTokens overrides the window size in tokens.
func WithChunkTokens(n int) Option {
	return func(c *TokenWindowChunker) {
		if n > 0 {
			c.chunkTokens = n
		}
	}
}

// WithOverlapTokens overrides the overlap size in tokens.
func WithOverlapTokens(n int) Option {
	return func(c *TokenWindowChunker) {
		if n >= 0 {
			c.overlapTokens = n
		}
	}
}

// TokenWindowChunker implements the sliding-window chunking algorithm
// over a Tokenizer capability: normalize whitespace, tokenize, and if the
// token count exceeds chunkTokens, slide a window of chunkTokens with
// stride max(1, chunkTokens-overlapTokens) across the token sequence.
type TokenWindowChunker struct {
	tokenizer     embed.Tokenizer
	chunkTokens   int
	overlapTokens int
}

// NewTokenWindowChunker creates a chunker backed by tokenizer, with the
// spec's default window sizes unless overridden by opts.
func NewTokenWindowChunker(tokenizer embed.Tokenizer, opts ...Option) *TokenWindowChunker {
	c := &TokenWindowChunker{
		tokenizer:     tokenizer,
		chunkTokens:   DefaultChunkTokens,
		overlapTokens: DefaultOverlapTokens,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// normalizeWhitespace trims text and collapses internal whitespace runs
// to a single space.
func normalizeWhitespace(text string) string {
	fields := strings.Fields(text)
	return strings.Join(fields, " ")
}

// Chunk normalizes text, tokenizes it, and returns the sliding-window
// chunk sequence. Empty input yields an empty sequence. Text that fits
// within a single window is returned as a single normalized chunk.
func (c *TokenWindowChunker) Chunk(text string) []string {
	normalized := normalizeWhitespace(text)
	if normalized == "" {
		return []string{}
	}

	tokens := c.tokenizer.Tokenize(normalized)
	if len(tokens) <= c.chunkTokens {
		return []string{normalized}
	}

	stride := c.chunkTokens - c.overlapTokens
	if stride < 1 {
		stride = 1
	}

	var chunks []string
	for start := 0; start < len(tokens); start += stride {
		end := start + c.chunkTokens
		if end > len(tokens) {
			end = len(tokens)
		}

		window := c.tokenizer.Decode(tokens[start:end])
		window = strings.TrimSpace(window)
		if window != "" {
			chunks = append(chunks, window)
		}

		if end >= len(tokens) {
			break
		}
	}

	return chunks
}
