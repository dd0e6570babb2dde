package tiler

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// CachedEmbedder memoizes embeddings by model and image digest, in memory and
// optionally on disk. Images without a digest bypass the cache.
type CachedEmbedder struct {
	inner Embedder
	mu    sync.RWMutex
	m     map[string][]float32
	dir   string
}

// NewCachedEmbedder wraps inner. An empty dir keeps the cache in memory only.
func NewCachedEmbedder(inner Embedder, dir string) (*CachedEmbedder, error) {
	if inner == nil {
		return nil, errors.New("embedder is required")
	}
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create cache dir: %w", err)
		}
	}
	return &CachedEmbedder{inner: inner, m: make(map[string][]float32), dir: dir}, nil
}

// ModelID returns the wrapped model identifier.
func (c *CachedEmbedder) ModelID() string { return c.inner.ModelID() }

// Close closes the wrapped embedder.
func (c *CachedEmbedder) Close() error { return c.inner.Close() }

// EmbedImage returns the cached vector for img or computes and stores it.
func (c *CachedEmbedder) EmbedImage(ctx context.Context, img *Image) ([]float32, error) {
	if img == nil || img.Digest == "" {
		return c.inner.EmbedImage(ctx, img)
	}
	key := cacheKey(img.Digest, c.inner.ModelID())
	if v, ok := c.get(key); ok {
		return cloneVector(v), nil
	}
	if v, ok, err := c.load(key); err == nil && ok {
		c.put(key, v)
		return cloneVector(v), nil
	}
	vec, err := c.inner.EmbedImage(ctx, img)
	if err != nil {
		return nil, err
	}
	c.put(key, cloneVector(vec))
	_ = c.save(key, vec)
	return vec, nil
}

func (c *CachedEmbedder) get(key string) ([]float32, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.m[key]
	return v, ok
}

func (c *CachedEmbedder) put(key string, v []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[key] = v
}

func (c *CachedEmbedder) load(key string) ([]float32, bool, error) {
	if c.dir == "" {
		return nil, false, nil
	}
	path := filepath.Join(c.dir, key+".bin")
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}
	if len(data) < 4 {
		return nil, false, fmt.Errorf("cache file broken: %s", path)
	}
	length := binary.LittleEndian.Uint32(data[:4])
	need := int(length) * 4
	if len(data) < 4+need {
		return nil, false, fmt.Errorf("cache truncated: %s", path)
	}
	vec := make([]float32, int(length))
	if err := binary.Read(bytes.NewReader(data[4:4+need]), binary.LittleEndian, vec); err != nil {
		return nil, false, err
	}
	return vec, true, nil
}

func (c *CachedEmbedder) save(key string, v []float32) error {
	if c.dir == "" {
		return nil
	}
	path := filepath.Join(c.dir, key+".bin")
	buf := &bytes.Buffer{}
	_ = binary.Write(buf, binary.LittleEndian, uint32(len(v)))
	if err := binary.Write(buf, binary.LittleEndian, v); err != nil {
		return err
	}
	return writeFileAtomic(path, buf.Bytes())
}

func cacheKey(digest, model string) string {
	h := sha1.Sum([]byte(model + "|" + digest))
	return hex.EncodeToString(h[:])
}
