package engine

import (
	"context"

	ramerrors "github.com/agentmem/ram/internal/errors"
	"github.com/agentmem/ram/internal/store"
)

// Open returns the full record for id, or nil if no such memory exists
// (NotFound is not an error here — spec §7).
func (e *Engine) Open(ctx context.Context, id string) (*store.MemoryRecord, error) {
	rec, err := e.storage.Meta().GetByID(ctx, id)
	if err != nil {
		return nil, ramerrors.Storage("failed to open memory", err)
	}
	return rec, nil
}
