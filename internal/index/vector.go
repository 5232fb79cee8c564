package index

import (
	"fmt"
	"sort"
	"sync"

	"github.com/coder/hnsw"
)

// VectorIndex is an in-process HNSW graph over unit vectors, keyed by
// doc id. It backs the semantic half of degraded-mode search.
//
// Deletion is lazy: the graph node stays but its id mapping is
// dropped, so orphaned nodes are skipped at read time. Deleting the
// last live node from the underlying graph is known to corrupt it.
type VectorIndex struct {
	mu        sync.RWMutex
	graph     *hnsw.Graph[uint64]
	dimension int

	ids     map[string]uint64
	keys    map[uint64]string
	nextKey uint64
}

// NewVectorIndex creates an empty cosine-distance HNSW index.
func NewVectorIndex(dimension int) *VectorIndex {
	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	return &VectorIndex{
		graph:     graph,
		dimension: dimension,
		ids:       make(map[string]uint64),
		keys:      make(map[uint64]string),
	}
}

// Dimension returns the configured vector dimension.
func (v *VectorIndex) Dimension() int { return v.dimension }

// Len returns the number of live vectors.
func (v *VectorIndex) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.ids)
}

// Add inserts or replaces the vector for a doc id. The vector must
// already be L2-normalized by the caller.
func (v *VectorIndex) Add(docID string, vec []float32) error {
	if len(vec) != v.dimension {
		return fmt.Errorf("vector dimension %d, index expects %d", len(vec), v.dimension)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if old, ok := v.ids[docID]; ok {
		delete(v.keys, old)
		delete(v.ids, docID)
	}

	key := v.nextKey
	v.nextKey++

	owned := make([]float32, len(vec))
	copy(owned, vec)
	v.graph.Add(hnsw.MakeNode(key, owned))

	v.ids[docID] = key
	v.keys[key] = docID
	return nil
}

// Remove drops a doc id from the index.
func (v *VectorIndex) Remove(docID string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if key, ok := v.ids[docID]; ok {
		delete(v.keys, key)
		delete(v.ids, docID)
	}
}

// Search returns up to k nearest neighbors as cosine similarity
// scores in [0, 1], sorted descending with doc id tie-break.
func (v *VectorIndex) Search(vec []float32, k int) ([]Scored, error) {
	if len(vec) != v.dimension {
		return nil, fmt.Errorf("query dimension %d, index expects %d", len(vec), v.dimension)
	}
	if k <= 0 {
		return nil, nil
	}

	v.mu.RLock()
	defer v.mu.RUnlock()

	if v.graph.Len() == 0 {
		return nil, nil
	}

	// Over-fetch to compensate for lazily deleted nodes.
	nodes := v.graph.Search(vec, k+len(v.keys)-len(v.ids)+1)

	out := make([]Scored, 0, k)
	for _, node := range nodes {
		id, ok := v.keys[node.Key]
		if !ok {
			continue
		}
		dist := float64(v.graph.Distance(vec, node.Value))
		out = append(out, Scored{DocID: id, Score: cosineScore(dist)})
		if len(out) == k {
			break
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].DocID < out[j].DocID
	})
	return out, nil
}

// cosineScore maps cosine distance [0, 2] to similarity [0, 1].
func cosineScore(dist float64) float64 {
	s := 1.0 - dist/2.0
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}
