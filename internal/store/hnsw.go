package store

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/coder/hnsw"
)

// hnswOverfetchFactor controls how many extra neighbors are requested
// from the underlying graph so that, after filtering by scope, at least
// k results typically remain.
const hnswOverfetchFactor = 4

// HNSWStore implements VectorStore using coder/hnsw, a pure-Go HNSW
// implementation requiring no CGO. It is either Enabled (the normal
// case) or permanently Disabled for the life of the process if
// construction failed, per the ANN state machine in spec §4.2.
type HNSWStore struct {
	mu      sync.RWMutex
	graph   *hnsw.Graph[uint64]
	enabled bool
	reason  string

	idMap    map[string]uint64
	keyMap   map[uint64]string
	scopeMap map[uint64]Scope
	nextKey  uint64

	closed bool
}

// NewHNSWStore creates an ANN vector store with cosine distance.
func NewHNSWStore() *HNSWStore {
	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = 16
	graph.EfSearch = 20
	graph.Ml = 0.25

	return &HNSWStore{
		graph:    graph,
		enabled:  true,
		idMap:    make(map[string]uint64),
		keyMap:   make(map[uint64]string),
		scopeMap: make(map[uint64]Scope),
	}
}

// NewDisabledHNSWStore returns a VectorStore permanently Disabled with
// the given human-readable reason — used when ANN construction fails at
// startup so the rest of the engine can still run in degraded mode.
func NewDisabledHNSWStore(reason string) *HNSWStore {
	return &HNSWStore{reason: reason}
}

// Enabled reports whether this store is serving ANN queries.
func (s *HNSWStore) Enabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.enabled && !s.closed
}

// Add inserts vectors with their IDs, normalizing each to unit length.
// If an id already exists it is replaced via lazy deletion: the old
// graph node is orphaned rather than physically removed, since
// coder/hnsw has a known bug deleting a graph's last remaining node.
func (s *HNSWStore) Add(ctx context.Context, ids []string, vectors [][]float32, scopes []Scope) error {
	if len(ids) == 0 {
		return nil
	}
	if len(ids) != len(vectors) || len(ids) != len(scopes) {
		return fmt.Errorf("ids, vectors, and scopes length mismatch")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.enabled || s.closed {
		return nil
	}

	for _, v := range vectors {
		if len(v) != Dimensions {
			return ErrDimensionMismatch{Expected: Dimensions, Got: len(v)}
		}
	}

	for i, id := range ids {
		if existingKey, exists := s.idMap[id]; exists {
			delete(s.keyMap, existingKey)
			delete(s.scopeMap, existingKey)
			delete(s.idMap, id)
		}

		key := s.nextKey
		s.nextKey++

		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		normalizeVectorInPlace(vec)

		s.graph.Add(hnsw.MakeNode(key, vec))

		s.idMap[id] = key
		s.keyMap[key] = id
		s.scopeMap[key] = scopes[i]
	}

	return nil
}

// Search finds up to k nearest neighbors to query, optionally restricted
// to a single scope. Returns an empty result set (never an error) when
// the store is disabled.
func (s *HNSWStore) Search(ctx context.Context, query []float32, k int, scope *Scope) ([]*VectorResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.enabled || s.closed {
		return []*VectorResult{}, nil
	}
	if len(query) != Dimensions {
		return nil, ErrDimensionMismatch{Expected: Dimensions, Got: len(query)}
	}
	if s.graph.Len() == 0 || k <= 0 {
		return []*VectorResult{}, nil
	}

	normalizedQuery := make([]float32, len(query))
	copy(normalizedQuery, query)
	normalizeVectorInPlace(normalizedQuery)

	fetchK := k
	if scope != nil {
		fetchK = k * hnswOverfetchFactor
	}

	nodes := s.graph.Search(normalizedQuery, fetchK)

	results := make([]*VectorResult, 0, len(nodes))
	for _, node := range nodes {
		id, exists := s.keyMap[node.Key]
		if !exists {
			continue // orphaned by lazy deletion
		}
		if scope != nil && s.scopeMap[node.Key] != *scope {
			continue
		}

		distance := s.graph.Distance(normalizedQuery, node.Value)
		results = append(results, &VectorResult{
			ID:       id,
			Distance: distance,
			Score:    distanceToScore(distance),
		})

		if len(results) >= k {
			break
		}
	}

	return results, nil
}

// Delete removes vectors by id via lazy deletion.
func (s *HNSWStore) Delete(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.enabled || s.closed {
		return nil
	}

	for _, id := range ids {
		if key, exists := s.idMap[id]; exists {
			delete(s.keyMap, key)
			delete(s.scopeMap, key)
			delete(s.idMap, id)
		}
	}
	return nil
}

// Contains checks whether id is currently present.
func (s *HNSWStore) Contains(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.enabled || s.closed {
		return false
	}
	_, exists := s.idMap[id]
	return exists
}

// Count returns the number of live (non-orphaned) vectors.
func (s *HNSWStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.enabled || s.closed {
		return 0
	}
	return len(s.idMap)
}

// Stats reports the ANN graph's valid/total node counts for operational
// visibility. Orphans are lazy-deleted nodes (spec.md §4.2's Delete/Add
// replace path) still physically present in the graph.
func (s *HNSWStore) Stats() VectorStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.enabled || s.closed {
		return VectorStats{}
	}

	validIDs := len(s.idMap)
	graphNodes := s.graph.Len()

	return VectorStats{
		ValidIDs:   validIDs,
		GraphNodes: graphNodes,
		Orphans:    graphNodes - validIDs,
	}
}

// Close releases resources. Idempotent.
func (s *HNSWStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.graph = nil
	return nil
}

var _ VectorStore = (*HNSWStore)(nil)

func normalizeVectorInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	invMagnitude := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= invMagnitude
	}
}

// distanceToScore converts cosine distance (range 0..2) to a 0..1 similarity.
func distanceToScore(distance float32) float32 {
	return 1.0 - distance/2.0
}
