package tiler

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
)

// Catalog is the static, ordered tile set plus the baked-in labeled lists
// supplied at start-up. Tile sources are stable identities; a tile's index is
// its position in Tiles.
type Catalog struct {
	Tiles     []string     `json:"tiles"`
	Training  []LabeledRef `json:"training"`
	Overrides []LabeledRef `json:"overrides"`
	Verify    []string     `json:"verify,omitempty"`

	// Dir is the directory relative tile sources are resolved against.
	Dir string `json:"-"`

	index map[string]int
}

// NewCatalog builds a catalog from tile sources. Sources must be unique.
func NewCatalog(tiles []string) (*Catalog, error) {
	c := &Catalog{Tiles: slices.Clone(tiles)}
	if err := c.buildIndex(); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadCatalog reads a catalog JSON file and validates its labels against labels.
func LoadCatalog(path string, labels *LabelSet) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}
	var c Catalog
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	c.Dir = filepath.Dir(path)
	if err := c.buildIndex(); err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	if c.Training, err = normalizeRefs(c.Training, labels); err != nil {
		return nil, fmt.Errorf("%s training: %w", filepath.Base(path), err)
	}
	if c.Overrides, err = normalizeRefs(c.Overrides, labels); err != nil {
		return nil, fmt.Errorf("%s overrides: %w", filepath.Base(path), err)
	}
	return &c, nil
}

func (c *Catalog) buildIndex() error {
	c.index = make(map[string]int, len(c.Tiles))
	for i, t := range c.Tiles {
		if t == "" {
			return fmt.Errorf("tile %d has an empty source", i)
		}
		if _, dup := c.index[t]; dup {
			return fmt.Errorf("duplicate tile %q", t)
		}
		c.index[t] = i
	}
	return nil
}

func normalizeRefs(refs []LabeledRef, labels *LabelSet) ([]LabeledRef, error) {
	out := make([]LabeledRef, len(refs))
	for i, r := range refs {
		code, err := labels.Parse(string(r.Label))
		if err != nil {
			return nil, fmt.Errorf("entry %d (%s): %w", i, r.Image, err)
		}
		out[i] = LabeledRef{Image: r.Image, Label: code}
	}
	return out, nil
}

// Len returns the number of catalog tiles.
func (c *Catalog) Len() int { return len(c.Tiles) }

// Index returns the catalog index of source.
func (c *Catalog) Index(source string) (int, bool) {
	i, ok := c.index[source]
	return i, ok
}

// Source returns the tile source at index i.
func (c *Catalog) Source(i int) (string, bool) {
	if i < 0 || i >= len(c.Tiles) {
		return "", false
	}
	return c.Tiles[i], true
}

// Loader returns a file loader rooted at the catalog directory.
func (c *Catalog) Loader() FileLoader {
	return FileLoader{Root: c.Dir}
}
