package search

import (
	"math"
	"strings"

	"github.com/agentmem/ram/internal/store"
)

// msPerHour / msPerDay convert epoch-millisecond ages into the hour/day
// units the scoring formula is defined over.
const (
	msPerHour = int64(60 * 60 * 1000)
	msPerDay  = 24 * msPerHour
)

// ScoredRecord augments a MemoryRecord with every partial score computed
// by the scorer (C5), plus the final blended score.
type ScoredRecord struct {
	Record          *store.MemoryRecord
	VectorScore     float64
	LexicalScore    float64
	RecencyScore    float64
	ImportanceScore float64
	Score           float64
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func cosine64(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}

// tokenSet returns Tokenize(s) as a lowercase set.
func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range Tokenize(s) {
		set[strings.ToLower(tok)] = true
	}
	return set
}

// Score computes a candidate's five partial scores and final score per
// the C5 formula. queryEmbedding may be nil (no vector signal). ftsHit
// reports whether rec.ID was present in the lexical index's hit-set for
// this query. now is the reference instant in epoch-ms.
func Score(rawQuery string, queryEmbedding []float32, rec *store.MemoryRecord, ftsHit bool, now int64) *ScoredRecord {
	vectorScore := 0.0
	if len(queryEmbedding) > 0 && len(rec.Embedding) > 0 {
		vectorScore = math.Max(0, cosine64(queryEmbedding, rec.Embedding))
	}

	qTokens := tokenSet(rawQuery)
	cTokens := tokenSet(rec.Content)
	overlap := 0.0
	if len(qTokens) > 0 {
		var hits int
		for t := range qTokens {
			if cTokens[t] {
				hits++
			}
		}
		overlap = float64(hits) / float64(len(qTokens))
	}
	if strings.Contains(strings.ToLower(rec.Content), strings.ToLower(rawQuery)) {
		overlap += 0.3
	}
	overlap = clamp01(overlap)

	lexicalScore := overlap
	if ftsHit {
		lexicalScore = math.Min(1, overlap+0.4)
	}

	ageMS := now - rec.UpdatedAt
	if ageMS < 0 {
		ageMS = 0
	}
	ageHours := float64(ageMS) / float64(msPerHour)
	ageDays := float64(ageMS) / float64(msPerDay)

	recencyScore := math.Min(1, 24/math.Max(1, ageHours))
	importanceScore := clamp01(rec.Importance) * math.Pow(0.99, ageDays)

	base := 0.6*vectorScore + 0.2*lexicalScore + 0.1*importanceScore + 0.1*recencyScore
	score := base * clamp01(rec.ValidityScore)
	if rec.IsNegative {
		score -= 0.25
	}
	score = math.Max(0, score)

	return &ScoredRecord{
		Record:          rec,
		VectorScore:     vectorScore,
		LexicalScore:    lexicalScore,
		RecencyScore:    recencyScore,
		ImportanceScore: importanceScore,
		Score:           score,
	}
}
