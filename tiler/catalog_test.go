package tiler

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCatalog(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "catalog.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func defaultLabelSet(t *testing.T) *LabelSet {
	t.Helper()
	var cfg Config
	cfg.ApplyDefaults()
	set, err := cfg.LabelSet()
	require.NoError(t, err)
	return set
}

func TestLoadCatalog(t *testing.T) {
	dir := t.TempDir()
	path := writeCatalog(t, dir, `{
		"tiles": ["a.png", "b.png"],
		"training": [{"img": "a.png", "opt": "7a"}],
		"overrides": [{"img": "b.png", "opt": " bd "}],
		"verify": ["b.png"]
	}`)
	c, err := LoadCatalog(path, defaultLabelSet(t))
	require.NoError(t, err)

	assert.Equal(t, dir, c.Dir)
	assert.Equal(t, 2, c.Len())
	assert.Equal(t, []LabeledRef{{Image: "a.png", Label: "7A"}}, c.Training)
	assert.Equal(t, []LabeledRef{{Image: "b.png", Label: "BD"}}, c.Overrides)
	assert.Equal(t, []string{"b.png"}, c.Verify)

	i, ok := c.Index("b.png")
	assert.True(t, ok)
	assert.Equal(t, 1, i)
	src, ok := c.Source(0)
	assert.True(t, ok)
	assert.Equal(t, "a.png", src)
	_, ok = c.Source(2)
	assert.False(t, ok)
	assert.Equal(t, FileLoader{Root: dir}, c.Loader())
}

func TestLoadCatalogRejects(t *testing.T) {
	labels := defaultLabelSet(t)
	for name, body := range map[string]string{
		"unknown label":  `{"tiles":["a.png"],"training":[{"img":"a.png","opt":"FF"}]}`,
		"duplicate tile": `{"tiles":["a.png","a.png"]}`,
		"empty tile":     `{"tiles":[""]}`,
		"not json":       `tiles: [a.png]`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := LoadCatalog(writeCatalog(t, t.TempDir(), body), labels)
			assert.Error(t, err)
		})
	}
	_, err := LoadCatalog(filepath.Join(t.TempDir(), "missing.json"), labels)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestNewCatalog(t *testing.T) {
	c, err := NewCatalog([]string{"x.png", "y.png"})
	require.NoError(t, err)
	i, ok := c.Index("y.png")
	assert.True(t, ok)
	assert.Equal(t, 1, i)

	_, err = NewCatalog([]string{"x.png", "x.png"})
	assert.Error(t, err)
}
