package engine

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmem/ram/internal/store"
)

func TestBuildContext_EmptyCorpus_ReturnsEmptyString(t *testing.T) {
	e := newTestEngine(t)
	out, err := e.BuildContext(context.Background(), "anything", BuildContextOptions{})
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestBuildContext_RendersKindScopeScoreLine(t *testing.T) {
	e := newTestEngine(t)
	remember(t, e, "the on-call rotation is documented in the incident runbook", RememberOptions{}.WithKind(store.KindReference).WithScope(store.ScopeProject))

	out, err := e.BuildContext(context.Background(), "on-call rotation runbook", BuildContextOptions{})
	require.NoError(t, err)
	require.NotEmpty(t, out)

	lines := strings.Split(out, "\n")
	for _, line := range lines {
		assert.True(t, strings.HasPrefix(line, "- ("))
		assert.Contains(t, line, "|score=")
	}
}

func TestBuildContext_RespectsMaxCharsBudget(t *testing.T) {
	e := newTestEngine(t)
	for i := 0; i < 5; i++ {
		remember(t, e, "a fairly long note about deployment pipelines and release gating strategies used across teams", RememberOptions{}.WithKind(store.KindKnowledge))
	}

	out, err := e.BuildContext(context.Background(), "deployment pipelines", BuildContextOptions{MaxChars: 80})
	require.NoError(t, err)
	assert.LessOrEqual(t, len(out), 80)
}
