package engine

import (
	"context"

	ramerrors "github.com/agentmem/ram/internal/errors"
)

// MarkInvalid flags a memory as contradicted: sets its validity score
// (default 0.2) and marks it negative so future scoring penalizes it.
func (e *Engine) MarkInvalid(ctx context.Context, id string, score *float64) error {
	v := defaultMarkInvalidScore
	if score != nil {
		v = *score
	}
	if err := e.storage.MarkInvalid(ctx, id, v, nowMillis()); err != nil {
		return ramerrors.Storage("failed to mark memory invalid", err)
	}
	return nil
}
