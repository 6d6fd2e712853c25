package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agentmem/ram/internal/embed"
	"github.com/agentmem/ram/internal/store"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := New(context.Background(), ":memory:", embed.NewStaticEmbedder(), embed.NewStaticTokenizer())
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func remember(t *testing.T, e *Engine, content string, opts RememberOptions) *store.MemoryRecord {
	t.Helper()
	rec, err := e.Remember(context.Background(), content, opts)
	require.NoError(t, err)
	return rec
}
