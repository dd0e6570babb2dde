package tiler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCachedEmbedderMemoizes(t *testing.T) {
	dir := t.TempDir()
	inner := &fakeEmbedder{}
	c, err := NewCachedEmbedder(inner, dir)
	require.NoError(t, err)
	assert.Equal(t, "fake", c.ModelID())

	img := &Image{Source: "a.png", Digest: "abc123", Pixels: solid(red, 1, 1)}
	first, err := c.EmbedImage(context.Background(), img)
	require.NoError(t, err)
	first[0] = -1

	second, err := c.EmbedImage(context.Background(), img)
	require.NoError(t, err)
	assert.Equal(t, []float32{255, 0, 0, 1}, second)
	assert.EqualValues(t, 1, inner.calls.Load())

	reopened, err := NewCachedEmbedder(inner, dir)
	require.NoError(t, err)
	third, err := reopened.EmbedImage(context.Background(), img)
	require.NoError(t, err)
	assert.Equal(t, second, third)
	assert.EqualValues(t, 1, inner.calls.Load())

	require.NoError(t, c.Close())
	assert.True(t, inner.closed.Load())
}

func TestCachedEmbedderBypassesUndigestedImages(t *testing.T) {
	inner := &fakeEmbedder{}
	c, err := NewCachedEmbedder(inner, "")
	require.NoError(t, err)

	img := &Image{Source: "a.png", Pixels: solid(blue, 1, 1)}
	for i := 0; i < 3; i++ {
		_, err := c.EmbedImage(context.Background(), img)
		require.NoError(t, err)
	}
	assert.EqualValues(t, 3, inner.calls.Load())
}

func TestCachedEmbedderKeysByModel(t *testing.T) {
	assert.NotEqual(t, cacheKey("d", "m1"), cacheKey("d", "m2"))
	assert.Equal(t, cacheKey("d", "m1"), cacheKey("d", "m1"))

	_, err := NewCachedEmbedder(nil, "")
	assert.Error(t, err)
}
