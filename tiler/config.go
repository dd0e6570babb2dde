package tiler

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const defaultConfigFile = "config.json"

// LoadConfig reads path (default config.json), fills defaults and validates the
// result. A missing file yields the defaults.
func LoadConfig(path string) (Config, error) {
	if path == "" {
		path = defaultConfigFile
	}
	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		cfg.ApplyDefaults()
		return cfg, nil
	case err != nil:
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	if dir := cfg.Embedder.CacheDir; dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return cfg, fmt.Errorf("create cache dir: %w", err)
		}
	}
	return cfg, nil
}

// Validate checks settings that ApplyDefaults cannot repair.
func (c Config) Validate() error {
	set, err := c.LabelSet()
	if err != nil {
		return fmt.Errorf("labels: %w", err)
	}
	if len(c.Colors) > set.Len() {
		return fmt.Errorf("colors: %d given for %d labels", len(c.Colors), set.Len())
	}
	switch c.Embedder.Kind {
	case EmbedderONNX:
		if c.Embedder.ModelPath == "" {
			return errors.New("embedder: onnx needs modelPath")
		}
	case EmbedderThumbnail:
	default:
		return fmt.Errorf("embedder: unknown kind %q", c.Embedder.Kind)
	}
	if l := c.Embedder.Layout; l != "nhwc" && l != "nchw" {
		return fmt.Errorf("embedder: unknown layout %q", l)
	}
	return nil
}

// SaveConfig writes cfg, with defaults applied, to path (default config.json).
func SaveConfig(path string, cfg Config) error {
	if path == "" {
		path = defaultConfigFile
	}
	cfg.ApplyDefaults()
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := writeFileAtomic(path, data); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	return nil
}

// writeFileAtomic writes data next to path and renames it into place.
func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
