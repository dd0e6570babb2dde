package tiler

import (
	"context"
	"fmt"
	"image"

	"golang.org/x/image/draw"
)

// ThumbnailEmbedder uses a size×size grey-level thumbnail, mean-centred, as the
// feature vector. It needs no model files and is deterministic.
type ThumbnailEmbedder struct {
	size int
}

// NewThumbnailEmbedder returns an embedder producing size*size features.
func NewThumbnailEmbedder(size int) *ThumbnailEmbedder {
	if size <= 0 {
		size = 16
	}
	return &ThumbnailEmbedder{size: size}
}

// ModelID identifies the thumbnail resolution for cache keys.
func (t *ThumbnailEmbedder) ModelID() string {
	return fmt.Sprintf("thumbnail-%d", t.size)
}

// Close is a no-op.
func (t *ThumbnailEmbedder) Close() error { return nil }

// EmbedImage resamples img and returns luma values in [0,1] minus their mean.
func (t *ThumbnailEmbedder) EmbedImage(ctx context.Context, img *Image) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if img == nil || img.Pixels == nil {
		return nil, &DecodeError{Source: "<nil>"}
	}
	dst := image.NewGray(image.Rect(0, 0, t.size, t.size))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img.Pixels, img.Pixels.Bounds(), draw.Src, nil)

	out := make([]float32, len(dst.Pix))
	var sum float32
	for i, p := range dst.Pix {
		out[i] = float32(p) / 255
		sum += out[i]
	}
	mean := sum / float32(len(out))
	for i := range out {
		out[i] -= mean
	}
	return out, nil
}
