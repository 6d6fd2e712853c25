package engine

import (
	"context"

	ramerrors "github.com/agentmem/ram/internal/errors"
	"github.com/agentmem/ram/internal/store"
)

// List returns paginated, filtered record summaries (no embeddings).
func (e *Engine) List(ctx context.Context, opts store.ListOptions) ([]*store.RecordSummary, error) {
	summaries, err := e.storage.Meta().List(ctx, opts)
	if err != nil {
		return nil, ramerrors.Storage("failed to list memories", err)
	}
	return summaries, nil
}
