package search

import (
	"context"
	"sort"
)

// DefaultMMRLambda is the relevance/diversity trade-off factor (spec §4.5).
const DefaultMMRLambda = 0.75

// Reranker reorders scored candidates to trade off relevance against
// diversity. Unlike a cross-encoder reranker, it operates purely on the
// scores and embeddings the candidates already carry — no extra model
// call is involved.
type Reranker interface {
	// Rerank selects up to k candidates from the input, returning them
	// ordered for presentation.
	Rerank(ctx context.Context, candidates []*ScoredRecord, k int) []*ScoredRecord
}

// MMRReranker implements Maximal Marginal Relevance selection (C6).
type MMRReranker struct {
	lambda float64
}

// NewMMRReranker creates an MMRReranker with the given lambda. A
// non-positive lambda falls back to DefaultMMRLambda.
func NewMMRReranker(lambda float64) *MMRReranker {
	if lambda <= 0 {
		lambda = DefaultMMRLambda
	}
	return &MMRReranker{lambda: lambda}
}

var _ Reranker = (*MMRReranker)(nil)

// Rerank greedily selects k candidates maximizing λ·score −
// (1−λ)·maxSim(candidate, alreadySelected), then re-sorts the selection
// by (score desc, updatedAt desc, id asc) for stable presentation. If
// len(candidates) ≤ k, the input order is returned unchanged.
func (m *MMRReranker) Rerank(_ context.Context, candidates []*ScoredRecord, k int) []*ScoredRecord {
	if k <= 0 || len(candidates) == 0 {
		return []*ScoredRecord{}
	}
	if len(candidates) <= k {
		return candidates
	}

	sorted := make([]*ScoredRecord, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Score > sorted[j].Score })

	remaining := make([]*ScoredRecord, len(sorted))
	copy(remaining, sorted)

	selected := make([]*ScoredRecord, 0, k)
	for len(selected) < k && len(remaining) > 0 {
		bestIdx := 0
		bestValue := m.mmrValue(remaining[0], selected)
		for i := 1; i < len(remaining); i++ {
			v := m.mmrValue(remaining[i], selected)
			if v > bestValue {
				bestValue = v
				bestIdx = i
			}
		}
		selected = append(selected, remaining[bestIdx])
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}

	sort.SliceStable(selected, func(i, j int) bool {
		a, b := selected[i], selected[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Record.UpdatedAt != b.Record.UpdatedAt {
			return a.Record.UpdatedAt > b.Record.UpdatedAt
		}
		return a.Record.ID < b.Record.ID
	})

	return selected
}

func (m *MMRReranker) mmrValue(candidate *ScoredRecord, selected []*ScoredRecord) float64 {
	maxSim := 0.0
	for _, s := range selected {
		if sim := cosine64(candidate.Record.Embedding, s.Record.Embedding); sim > maxSim {
			maxSim = sim
		}
	}
	return m.lambda*candidate.Score - (1-m.lambda)*maxSim
}
