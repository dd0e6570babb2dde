package tiler

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"sync"
)

// OverrideStore holds manually chosen labels keyed by catalog tile index.
// Absent keys mean "no override"; entries are never removed.
type OverrideStore struct {
	catalog *Catalog
	labels  *LabelSet

	mu sync.RWMutex
	m  map[int]LabelCode
}

// NewOverrideStore returns an empty store over catalog.
func NewOverrideStore(catalog *Catalog, labels *LabelSet) *OverrideStore {
	return &OverrideStore{catalog: catalog, labels: labels, m: make(map[int]LabelCode)}
}

// Seed applies prior labels by source. Entries whose source is not in the
// catalog, or whose label is not in the set, are dropped and counted.
func (s *OverrideStore) Seed(prior []LabeledRef) (dropped int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range prior {
		i, ok := s.catalog.Index(p.Image)
		if !ok || !s.labels.Contains(p.Label) {
			dropped++
			continue
		}
		s.m[i] = p.Label
	}
	return dropped
}

// Set records label for tile i, replacing any earlier override.
func (s *OverrideStore) Set(i int, label LabelCode) error {
	if !s.labels.Contains(label) {
		return fmt.Errorf("%w: %q", ErrUnknownLabel, label)
	}
	if _, ok := s.catalog.Source(i); !ok {
		return fmt.Errorf("%w: %d", ErrUnknownTile, i)
	}
	s.mu.Lock()
	s.m[i] = label
	s.mu.Unlock()
	return nil
}

// Get returns the override for tile i, if any.
func (s *OverrideStore) Get(i int) (LabelCode, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.m[i]
	return l, ok
}

// Len returns the number of overridden tiles.
func (s *OverrideStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}

// Export returns every override in ascending tile index, resolved to its source.
func (s *OverrideStore) Export() []LabeledRef {
	s.mu.RLock()
	idx := make([]int, 0, len(s.m))
	for i := range s.m {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	out := make([]LabeledRef, 0, len(idx))
	for _, i := range idx {
		src, _ := s.catalog.Source(i)
		out = append(out, LabeledRef{Image: src, Label: s.m[i]})
	}
	s.mu.RUnlock()
	return out
}

// WriteJSON writes Export as a JSON array of {"img","opt"} records.
func (s *OverrideStore) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	if err := enc.Encode(s.Export()); err != nil {
		return fmt.Errorf("encode overrides: %w", err)
	}
	return nil
}
