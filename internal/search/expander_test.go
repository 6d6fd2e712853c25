package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpander_Expand_EmptyQuery_ReturnsEmpty(t *testing.T) {
	e := NewExpander()
	assert.Empty(t, e.Expand(""))
	assert.Empty(t, e.Expand("   "))
}

func TestExpander_Expand_AlwaysIncludesOriginalQuery(t *testing.T) {
	e := NewExpander()
	result := e.Expand("completely novel phrase xyz")
	assert.Contains(t, result, "completely novel phrase xyz")
}

// Scenario S2: expand("db tuning") includes "db tuning", "database",
// "db tuning database".
func TestExpander_Expand_ScenarioS2_DBTuning(t *testing.T) {
	e := NewExpander()
	result := e.Expand("db tuning")

	assert.Contains(t, result, "db tuning")
	assert.Contains(t, result, "database")
	assert.Contains(t, result, "db tuning database")
}

func TestExpander_Expand_DeduplicatesCaseInsensitively(t *testing.T) {
	e := NewExpander(WithAliases(map[string][]string{"db": {"DB"}}))
	result := e.Expand("db")

	seen := make(map[string]int)
	for _, r := range result {
		seen[toLowerSimple(r)]++
	}
	for k, count := range seen {
		assert.Equal(t, 1, count, "duplicate expansion for %q", k)
	}
}

func toLowerSimple(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

func TestExpander_Expand_UnknownTokenYieldsOnlyOriginal(t *testing.T) {
	e := NewExpander()
	result := e.Expand("zzqqxx")
	require.Len(t, result, 1)
	assert.Equal(t, "zzqqxx", result[0])
}

func TestExpander_Expand_PreservesInsertionOrder(t *testing.T) {
	e := NewExpander()
	result := e.Expand("db")
	require.NotEmpty(t, result)
	assert.Equal(t, "db", result[0])
}
