// Package classify implements the memory kind classifier (C7): a
// closed-form combination of static+learned prototype similarity and ANN
// neighborhood density, with no LLM call involved.
package classify

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/agentmem/ram/internal/embed"
	"github.com/agentmem/ram/internal/store"
)

// Decision thresholds (spec §4.6), named rather than inlined so the
// decision procedure reads as prose.
const (
	topProtoThreshold    = 0.52
	topMarginThreshold   = 0.045
	densityGateThreshold = 0.35
	densityGateDiscount  = 0.25
	confidenceFloor      = 0.28
	onlineLearningFloor  = 0.93
	learnedPrototypeCap  = 64
	densityNeighborCount = 20
)

// KindLookup resolves the stored kind for a set of record ids, used to
// label ANN neighbors for the density signal.
type KindLookup interface {
	KindsByIDs(ctx context.Context, ids []string) (map[string]store.Kind, error)
}

// Classifier implements C7. It is safe for concurrent use.
type Classifier struct {
	embedder embed.Embedder
	vectors  store.VectorStore
	kinds    KindLookup

	mu          sync.RWMutex
	staticEmbed map[store.Kind][][]float32
	staticReady bool
	learned     map[store.Kind]*lru.Cache[int, []float32]
	learnedSeq  map[store.Kind]int
}

// New creates a Classifier. vectors and kinds may be nil-backed (a
// Disabled VectorStore): density then contributes nothing and the
// decision falls through to the prototype-only path, per the ANN state
// machine in spec §4.2.
func New(embedder embed.Embedder, vectors store.VectorStore, kinds KindLookup) *Classifier {
	c := &Classifier{
		embedder: embedder,
		vectors:  vectors,
		kinds:    kinds,
		learned:  make(map[store.Kind]*lru.Cache[int, []float32], len(store.ClassifiableKinds)),
		learnedSeq: make(map[store.Kind]int, len(store.ClassifiableKinds)),
	}
	for _, k := range store.ClassifiableKinds {
		cache, _ := lru.New[int, []float32](learnedPrototypeCap)
		c.learned[k] = cache
	}
	return c
}

// ensureStaticPrototypes embeds every exemplar on first use and caches
// the result for the classifier's lifetime.
func (c *Classifier) ensureStaticPrototypes(ctx context.Context) error {
	c.mu.RLock()
	ready := c.staticReady
	c.mu.RUnlock()
	if ready {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.staticReady {
		return nil
	}

	embedded := make(map[store.Kind][][]float32, len(StaticPrototypes))
	for kind, exemplars := range StaticPrototypes {
		vecs, err := c.embedder.EmbedBatch(ctx, exemplars)
		if err != nil {
			return fmt.Errorf("embed static prototypes for %s: %w", kind, err)
		}
		embedded[kind] = vecs
	}
	c.staticEmbed = embedded
	c.staticReady = true
	return nil
}

// Classify returns the predicted kind and the decision's confidence for
// a memory embedding, per the two-stage decision procedure in spec §4.6.
func (c *Classifier) Classify(ctx context.Context, memEmbedding []float32, scope *store.Scope) (store.Kind, float64, error) {
	if len(memEmbedding) == 0 {
		return store.KindUnclassified, 0, nil
	}

	if err := c.ensureStaticPrototypes(ctx); err != nil {
		return store.KindUnclassified, 0, err
	}

	protoScores := c.protoScores(memEmbedding)

	type kindScore struct {
		kind  store.Kind
		score float64
	}
	ranked := make([]kindScore, 0, len(store.ClassifiableKinds))
	for _, k := range store.ClassifiableKinds {
		ranked = append(ranked, kindScore{k, protoScores[k]})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	top := ranked[0]
	second := ranked[1]

	if top.score >= topProtoThreshold && top.score-second.score >= topMarginThreshold {
		c.maybeLearn(top.kind, top.score, memEmbedding)
		return top.kind, top.score, nil
	}

	density, err := c.densityScores(ctx, memEmbedding, scope)
	if err != nil {
		return store.KindUnclassified, 0, err
	}

	var winner store.Kind
	var winnerScore float64
	first := true
	for _, k := range store.ClassifiableKinds {
		p := protoScores[k]
		d := density[k]
		gated := d
		if p < densityGateThreshold {
			gated = densityGateDiscount * d
		}
		combined := 0.9*p + 0.1*gated
		if first || combined > winnerScore {
			winner = k
			winnerScore = combined
			first = false
		}
	}

	if winnerScore < confidenceFloor {
		return store.KindUnclassified, winnerScore, nil
	}

	c.maybeLearn(winner, winnerScore, memEmbedding)
	return winner, winnerScore, nil
}

// protoScores computes proto(kind) = max(0, max cosine(memEmb, p)) over
// static and learned prototypes for every classifiable kind.
func (c *Classifier) protoScores(memEmbedding []float32) map[store.Kind]float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	scores := make(map[store.Kind]float64, len(store.ClassifiableKinds))
	for _, k := range store.ClassifiableKinds {
		best := 0.0
		for _, p := range c.staticEmbed[k] {
			if sim := cosine(memEmbedding, p); sim > best {
				best = sim
			}
		}
		if cache, ok := c.learned[k]; ok {
			for _, key := range cache.Keys() {
				if p, ok := cache.Peek(key); ok {
					if sim := cosine(memEmbedding, p); sim > best {
						best = sim
					}
				}
			}
		}
		scores[k] = math.Max(0, best)
	}
	return scores
}

// densityScores fetches up to densityNeighborCount ANN neighbors and
// computes, per classifiable kind, the average of a decreasing function
// of neighbor distance (averaging, not summing, avoids majority-class
// collapse per the spec's note).
func (c *Classifier) densityScores(ctx context.Context, memEmbedding []float32, scope *store.Scope) (map[store.Kind]float64, error) {
	scores := make(map[store.Kind]float64, len(store.ClassifiableKinds))
	for _, k := range store.ClassifiableKinds {
		scores[k] = 0
	}

	if c.vectors == nil || !c.vectors.Enabled() || c.kinds == nil {
		return scores, nil
	}

	neighbors, err := c.vectors.Search(ctx, memEmbedding, densityNeighborCount, scope)
	if err != nil {
		return nil, fmt.Errorf("density neighbor search: %w", err)
	}
	if len(neighbors) == 0 {
		return scores, nil
	}

	ids := make([]string, len(neighbors))
	for i, n := range neighbors {
		ids[i] = n.ID
	}
	neighborKinds, err := c.kinds.KindsByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("resolve neighbor kinds: %w", err)
	}

	sums := make(map[store.Kind]float64, len(store.ClassifiableKinds))
	counts := make(map[store.Kind]int, len(store.ClassifiableKinds))
	for _, n := range neighbors {
		kind, ok := neighborKinds[n.ID]
		if !ok || !isClassifiable(kind) {
			continue
		}
		distance := math.Max(0, float64(n.Distance))
		s := 1.0 / (1.0 + distance)
		sums[kind] += s
		counts[kind]++
	}

	for _, k := range store.ClassifiableKinds {
		if counts[k] > 0 {
			scores[k] = sums[k] / float64(counts[k])
		}
	}
	return scores, nil
}

// maybeLearn pushes memEmbedding into kind's learned-prototype queue
// when confidence exceeds the online-learning floor.
func (c *Classifier) maybeLearn(kind store.Kind, confidence float64, memEmbedding []float32) {
	if confidence <= onlineLearningFloor {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	cache, ok := c.learned[kind]
	if !ok {
		return
	}
	cp := make([]float32, len(memEmbedding))
	copy(cp, memEmbedding)

	seq := c.learnedSeq[kind]
	c.learnedSeq[kind] = seq + 1
	cache.Add(seq, cp)
}

func isClassifiable(k store.Kind) bool {
	for _, c := range store.ClassifiableKinds {
		if c == k {
			return true
		}
	}
	return false
}

func cosine(a, b []float32) float64 {
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
