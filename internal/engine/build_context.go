package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/agentmem/ram/internal/search"
	"github.com/agentmem/ram/internal/store"
)

// BuildContextOptions configures build-context().
type BuildContextOptions struct {
	Limit    int
	MaxChars int
	Scope    *store.Scope
}

func (o BuildContextOptions) resolve() BuildContextOptions {
	if o.Limit <= 0 {
		o.Limit = defaultBuildContextLimit
	}
	if o.MaxChars <= 0 {
		o.MaxChars = defaultBuildContextMaxChars
	}
	return o
}

type contextGroup struct {
	parentID string
	kind     store.Kind
	scope    store.Scope
	score    float64
	chunks   []*search.ScoredRecord
}

// BuildContext recalls candidates, groups their chunks by parent memory
// (keeping each group's max score and joining its chunks in chunk-index
// order), then renders "- (kind/scope|score=X.XXX) <joined>" lines in
// descending group-score order, greedily filling a character budget.
func (e *Engine) BuildContext(ctx context.Context, query string, opts BuildContextOptions) (string, error) {
	opts = opts.resolve()

	recalled, err := e.Recall(ctx, query, RecallOptions{
		Limit:       opts.Limit,
		RecallLimit: maxInt(30, 6*opts.Limit),
		Scope:       opts.Scope,
	})
	if err != nil {
		return "", err
	}

	groups := make(map[string]*contextGroup)
	order := make([]string, 0, len(recalled))
	for _, sr := range recalled {
		rec := sr.Record
		g, ok := groups[rec.ParentID]
		if !ok {
			g = &contextGroup{parentID: rec.ParentID, kind: rec.Kind, scope: rec.Scope}
			groups[rec.ParentID] = g
			order = append(order, rec.ParentID)
		}
		g.chunks = append(g.chunks, sr)
		if sr.Score > g.score {
			g.score = sr.Score
			g.kind = rec.Kind
			g.scope = rec.Scope
		}
	}

	renderedGroups := make([]*contextGroup, 0, len(order))
	for _, pid := range order {
		renderedGroups = append(renderedGroups, groups[pid])
	}
	sort.SliceStable(renderedGroups, func(i, j int) bool { return renderedGroups[i].score > renderedGroups[j].score })

	var b strings.Builder
	budget := opts.MaxChars
	for _, g := range renderedGroups {
		sort.SliceStable(g.chunks, func(i, j int) bool {
			return g.chunks[i].Record.ChunkIndex < g.chunks[j].Record.ChunkIndex
		})
		texts := make([]string, len(g.chunks))
		for i, c := range g.chunks {
			texts[i] = c.Record.Content
		}
		joined := strings.Join(texts, " ")

		line := fmt.Sprintf("- (%s/%s|score=%.3f) %s", g.kind, g.scope, g.score, joined)
		sep := 0
		if b.Len() > 0 {
			sep = 1
		}
		if len(line)+sep > budget {
			break
		}
		if sep == 1 {
			b.WriteByte('\n')
		}
		b.WriteString(line)
		budget -= len(line) + sep
	}

	return b.String(), nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
