package engine

import (
	"context"

	ramerrors "github.com/agentmem/ram/internal/errors"
)

// Forget deletes a memory by id, from the record table and every
// derived index. Idempotent: forgetting an absent id is a no-op success.
func (e *Engine) Forget(ctx context.Context, id string) error {
	if err := e.storage.Forget(ctx, id); err != nil {
		return ramerrors.Storage("failed to forget memory", err)
	}
	return nil
}
