package tiler

import (
	"sort"
	"sync"

	"gonum.org/v1/gonum/floats"
)

// Example is a stored labeled embedding. Vectors are kept unit-normalized.
type Example struct {
	Label  LabelCode
	Vector []float64
}

// Neighbor is one search hit.
type Neighbor struct {
	Label LabelCode
	Score float64
	Rank  int
}

// ExampleStore is an append-only brute-force index with cosine similarity.
type ExampleStore struct {
	mu    sync.RWMutex
	items []Example
	dim   int
}

// NewExampleStore constructs an empty store.
func NewExampleStore() *ExampleStore {
	return &ExampleStore{}
}

// Add stores vec under label. All vectors must share the first vector's dimension.
func (s *ExampleStore) Add(vec []float32, label LabelCode) error {
	v := toUnit(vec)
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.items) == 0 {
		s.dim = len(v)
	} else if len(v) != s.dim {
		return &DimensionError{Expected: s.dim, Actual: len(v)}
	}
	s.items = append(s.items, Example{Label: label, Vector: v})
	return nil
}

// Size returns the current number of vectors stored.
func (s *ExampleStore) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Labels returns the distinct labels in first-insertion order.
func (s *ExampleStore) Labels() []LabelCode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[LabelCode]struct{})
	var out []LabelCode
	for _, it := range s.items {
		if _, ok := seen[it.Label]; ok {
			continue
		}
		seen[it.Label] = struct{}{}
		out = append(out, it.Label)
	}
	return out
}

// Search returns the k most similar examples, best first. Equal scores keep insertion order.
func (s *ExampleStore) Search(vec []float32, k int) ([]Neighbor, error) {
	s.mu.RLock()
	items := s.items
	dim := s.dim
	s.mu.RUnlock()
	if len(items) == 0 || k <= 0 {
		return nil, nil
	}
	if len(vec) != dim {
		return nil, &DimensionError{Expected: dim, Actual: len(vec)}
	}
	q := toUnit(vec)
	hits := make([]Neighbor, len(items))
	for i, it := range items {
		hits[i] = Neighbor{Label: it.Label, Score: floats.Dot(q, it.Vector)}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	for i := range hits {
		hits[i].Rank = i
	}
	return hits, nil
}

func toUnit(vec []float32) []float64 {
	out := make([]float64, len(vec))
	for i, v := range vec {
		out[i] = float64(v)
	}
	if n := floats.Norm(out, 2); n > 0 {
		floats.Scale(1/n, out)
	}
	return out
}
