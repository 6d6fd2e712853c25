package search

import "strings"

// Expander implements the query expander (C4): given a trimmed query, it
// produces an ordered, deduplicated set of expansion strings by looking
// up each token in a static alias table.
type Expander struct {
	aliases map[string][]string
}

// ExpanderOption configures an Expander.
type ExpanderOption func(*Expander)

// WithAliases merges additional alias entries on top of the defaults.
func WithAliases(aliases map[string][]string) ExpanderOption {
	return func(e *Expander) {
		for k, v := range aliases {
			e.aliases[k] = append(e.aliases[k], v...)
		}
	}
}

// NewExpander creates a query expander seeded with the default alias table.
func NewExpander(opts ...ExpanderOption) *Expander {
	e := &Expander{aliases: make(map[string][]string, len(Aliases))}
	for k, v := range Aliases {
		e.aliases[k] = v
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Expand tokenizes query (Unicode letter/digit runs plus CJK), looks up
// each token's aliases, and returns Q itself plus every bare alias and
// "Q alias" combination, in insertion order with duplicates removed. An
// empty (or whitespace-only) query yields an empty result.
func (e *Expander) Expand(query string) []string {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return []string{}
	}

	seen := make(map[string]bool)
	var out []string
	add := func(s string) {
		key := strings.ToLower(s)
		if !seen[key] {
			seen[key] = true
			out = append(out, s)
		}
	}

	add(trimmed)

	for _, tok := range Tokenize(trimmed) {
		aliases := e.aliases[strings.ToLower(tok)]
		for _, alias := range aliases {
			add(alias)
			add(trimmed + " " + alias)
		}
	}

	return out
}
