package engine

import (
	"context"

	ramerrors "github.com/agentmem/ram/internal/errors"
	"github.com/agentmem/ram/internal/store"
)

// CountByKind returns a zero-filled count for every enum kind, including
// unclassified, optionally filtered by scope/content substring.
func (e *Engine) CountByKind(ctx context.Context, opts store.CountByKindOptions) (map[store.Kind]int, error) {
	counts, err := e.storage.Meta().CountByKind(ctx, opts)
	if err != nil {
		return nil, ramerrors.Storage("failed to count memories by kind", err)
	}
	return counts, nil
}
