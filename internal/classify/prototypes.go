package classify

import "github.com/agentmem/ram/internal/store"

// StaticPrototypes maps each classifiable kind to a small set of exemplar
// strings (spec: "6–11 short exemplar strings"). Embedded once per
// process and cached for its lifetime.
var StaticPrototypes = map[store.Kind][]string{
	store.KindIdentity: {
		"My name is Alex and I go by that nickname",
		"I am a senior backend engineer",
		"I live in Berlin and work remotely",
		"I prefer dark mode editors and vim keybindings",
		"I am allergic to peanuts",
		"My timezone is PST",
		"I work at Acme Corp on the platform team",
		"I was born in 1990",
	},
	store.KindTask: {
		"Remember to deploy the payments service by Friday",
		"TODO: refactor the authentication middleware",
		"Follow up with legal about the vendor contract",
		"Fix the flaky integration test in the billing suite",
		"Schedule a meeting with the infrastructure team",
		"Next step is to write the database migration script",
		"Need to review the open pull request before standup",
		"Action item: update the incident runbook",
	},
	store.KindKnowledge: {
		"The database uses optimistic locking for concurrent writes",
		"Our retry policy uses exponential backoff with jitter",
		"The cache entries expire every five minutes",
		"Kubernetes reschedules pods when a node drains",
		"The API rate limit is one hundred requests per minute",
		"Our service mesh routes traffic through a sidecar proxy",
		"Postgres indexes speed up range queries on timestamps",
		"The build pipeline runs tests before packaging artifacts",
	},
	store.KindReference: {
		"See docs at https://example.com/spec",
		"Full writeup is at https://wiki.internal/runbook",
		"Reference implementation lives at github.com/acme/service",
		"RFC 7231 defines HTTP semantics in detail",
		"Link to the design doc is attached to the ticket",
		"API reference is published at https://api.acme.com/docs",
		"See the architecture diagram in the shared drive",
		"The specification document covers this in section four",
	},
	store.KindNote: {
		"Quick note: the demo went well today",
		"Just jotting this down before I forget it",
		"Random thought about the onboarding flow",
		"Reminder that the office is closed on Monday",
		"Saw an interesting article about caching strategies",
		"Brainstorm: maybe we should try a different approach",
		"Short note on what came up during standup",
		"Misc thought about reducing test flakiness",
	},
}
