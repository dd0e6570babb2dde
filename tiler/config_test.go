package tiler

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "config.json"))
	require.NoError(t, err)
	assert.Equal(t, []string{"55", "7A", "BD", "1C", "E9"}, cfg.Labels)
	assert.Equal(t, DefaultColors, cfg.Colors)
	assert.Equal(t, 3, cfg.K)
	assert.Equal(t, 4, cfg.Stride)
	assert.Equal(t, "  ", cfg.Separator)
	assert.Equal(t, EmbedderThumbnail, cfg.Embedder.Kind)
}

func TestConfigRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.json")
	want := Config{
		Labels:   []string{"AA", "BB"},
		Colors:   []string{"#000000", "#ffffff"},
		K:        5,
		Seed:     99,
		Embedder: EmbedderConfig{ModelPath: "model.onnx", CacheDir: filepath.Join(dir, "cache")},
	}
	require.NoError(t, SaveConfig(path, want))
	_, err := os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))

	got, err := LoadConfig(path)
	require.NoError(t, err)
	want.ApplyDefaults()
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, EmbedderONNX, got.Embedder.Kind)
	assert.DirExists(t, got.Embedder.CacheDir)
}

func TestLoadConfigRejects(t *testing.T) {
	for name, body := range map[string]string{
		"duplicate labels": `{"labels":["55","55"]}`,
		"too many colors":  `{"labels":["55"],"colors":["#000","#fff"]}`,
		"unknown kind":     `{"embedder":{"kind":"clip"}}`,
		"onnx no model":    `{"embedder":{"kind":"onnx"}}`,
		"bad layout":       `{"embedder":{"layout":"hwc"}}`,
		"not json":         `labels = 55`,
	} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.json")
			require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
			_, err := LoadConfig(path)
			assert.Error(t, err)
		})
	}
}

func TestConfigCloneAndColors(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()
	clone := cfg.Clone()
	clone.Labels[0] = "XX"
	assert.Equal(t, "55", cfg.Labels[0])

	set, err := cfg.LabelSet()
	require.NoError(t, err)
	assert.Equal(t, "#e74c3c", cfg.ColorFor(set, "BD"))
	assert.Empty(t, cfg.ColorFor(set, "FF"))
}
