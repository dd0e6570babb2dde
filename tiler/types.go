package tiler

import (
	"encoding/json"
	"slices"
)

// EmbedderKind selects the feature extractor implementation.
type EmbedderKind string

const (
	// EmbedderONNX runs an ONNX image model (MobileNet-style) through ONNX Runtime.
	EmbedderONNX EmbedderKind = "onnx"
	// EmbedderThumbnail uses a downsampled grey-level thumbnail as the feature vector.
	EmbedderThumbnail EmbedderKind = "thumbnail"
)

// Prediction is the outcome of one k-NN vote.
type Prediction struct {
	Label       LabelCode             `json:"label"`
	Confidences map[LabelCode]float64 `json:"confidences"`
}

// LabeledRef names one catalog image and its label. The JSON shape matches the
// dump format used for training lists, prior overrides and exports.
type LabeledRef struct {
	Image string    `json:"img"`
	Label LabelCode `json:"opt"`
}

// EmbedderConfig wraps the configuration for the feature extractor and its cache.
type EmbedderConfig struct {
	Kind       EmbedderKind `json:"kind"`
	OrtLib     string       `json:"ortLib"`
	ModelPath  string       `json:"modelPath"`
	InputName  string       `json:"inputName"`
	OutputName string       `json:"outputName"`
	InputSize  int          `json:"inputSize"`
	OutputSize int          `json:"outputSize"`
	Layout     string       `json:"layout"`
	ThumbSize  int          `json:"thumbSize"`
	CacheDir   string       `json:"cacheDir"`
	ModelID    string       `json:"modelId"`
}

// Config aggregates runtime settings persisted to config.json.
type Config struct {
	Labels      []string       `json:"labels"`
	Colors      []string       `json:"colors"`
	K           int            `json:"k"`
	Workers     int            `json:"workers"`
	Stride      int            `json:"stride"`
	Separator   string         `json:"separator"`
	Seed        int64          `json:"seed"`
	CatalogPath string         `json:"catalogPath"`
	Embedder    EmbedderConfig `json:"embedder"`
}

// Clone creates a deep copy of the configuration so callers can mutate safely.
func (c Config) Clone() Config {
	buf, _ := json.Marshal(c)
	var out Config
	_ = json.Unmarshal(buf, &out)
	return out
}

// ApplyDefaults populates zero values with sensible defaults.
func (c *Config) ApplyDefaults() {
	if len(c.Labels) == 0 {
		c.Labels = make([]string, len(DefaultLabels))
		for i, l := range DefaultLabels {
			c.Labels[i] = string(l)
		}
		if len(c.Colors) == 0 {
			c.Colors = slices.Clone(DefaultColors)
		}
	}
	if c.K <= 0 {
		c.K = 3
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.Stride <= 0 {
		c.Stride = 4
	}
	if c.Separator == "" {
		c.Separator = "  "
	}
	if c.CatalogPath == "" {
		c.CatalogPath = "catalog.json"
	}
	if c.Embedder.Kind == "" {
		if c.Embedder.ModelPath != "" {
			c.Embedder.Kind = EmbedderONNX
		} else {
			c.Embedder.Kind = EmbedderThumbnail
		}
	}
	if c.Embedder.InputSize == 0 {
		c.Embedder.InputSize = 224
	}
	if c.Embedder.OutputSize == 0 {
		c.Embedder.OutputSize = 1024
	}
	if c.Embedder.Layout == "" {
		c.Embedder.Layout = "nhwc"
	}
	if c.Embedder.ThumbSize == 0 {
		c.Embedder.ThumbSize = 16
	}
}

// LabelSet builds the configured label set.
func (c Config) LabelSet() (*LabelSet, error) {
	return NewLabelSet(c.Labels)
}

// ColorFor returns the display colour for code, or "" when none is configured.
func (c Config) ColorFor(set *LabelSet, code LabelCode) string {
	i := set.Index(code)
	if i < 0 || i >= len(c.Colors) {
		return ""
	}
	return c.Colors[i]
}
