package search

// Aliases is the static alias table driving query expansion (C4). Each
// key is a lowercase token; its values are expansion phrases added
// alongside the original query. Kept small and curated rather than
// learned — the spec calls for "a small static alias table".
var Aliases = map[string][]string{
	"db":      {"database", "sqlite", "storage"},
	"llm":     {"language model", "model", "completion"},
	"ann":     {"approximate nearest neighbor", "vector index", "embedding search"},
	"fts":     {"full text search", "lexical search", "keyword search"},
	"auth":    {"authentication", "authorization", "login"},
	"config":  {"configuration", "settings", "options"},
	"perf":    {"performance", "latency", "throughput"},
	"repo":    {"repository", "codebase", "project"},
	"ctx":     {"context", "deadline", "cancellation"},
	"infra":   {"infrastructure", "deployment", "ops"},
	"bug":     {"defect", "issue", "regression"},
	"prod":    {"production", "live", "deployment"},
	"api":     {"interface", "endpoint", "service"},
	"cache":   {"caching", "lru", "memoization"},
	"sync":    {"synchronization", "concurrency", "locking"},
	"async":   {"asynchronous", "concurrent", "background"},
	"embed":   {"embedding", "vector", "encode"},
	"recall":  {"retrieval", "search", "lookup"},
	"dedup":   {"deduplication", "duplicate", "merge"},
	"kind":    {"category", "classification", "type"},
	"scope":   {"session", "project", "global"},
	"backup":  {"snapshot", "restore", "archive"},
	"runbook": {"playbook", "procedure", "instructions"},
	"meeting": {"standup", "sync", "call"},
	"docs":    {"documentation", "reference", "wiki"},
}

// aliasesFor returns the expansion phrases for a lowercase token, or nil.
func aliasesFor(token string) []string {
	return Aliases[token]
}
