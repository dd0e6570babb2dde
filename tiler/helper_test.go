package tiler

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

var (
	red   = color.NRGBA{R: 255, A: 255}
	blue  = color.NRGBA{B: 255, A: 255}
	green = color.NRGBA{G: 255, A: 255}
)

// fakeEmbedder maps an image to its top-left colour plus a constant bias term.
type fakeEmbedder struct {
	calls  atomic.Int32
	closed atomic.Bool
	fail   map[string]bool
}

func (f *fakeEmbedder) ModelID() string { return "fake" }

func (f *fakeEmbedder) Close() error {
	f.closed.Store(true)
	return nil
}

func (f *fakeEmbedder) EmbedImage(ctx context.Context, img *Image) ([]float32, error) {
	f.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if img == nil || img.Pixels == nil {
		return nil, &DecodeError{Source: "<nil>"}
	}
	if f.fail[img.Source] {
		return nil, errors.New("embed failed")
	}
	origin := img.Pixels.Bounds().Min
	c := color.NRGBAModel.Convert(img.Pixels.At(origin.X, origin.Y)).(color.NRGBA)
	return []float32{float32(c.R), float32(c.G), float32(c.B), 1}, nil
}

// mapLoader serves in-memory images and counts loads.
type mapLoader struct {
	images map[string]image.Image
	loads  atomic.Int32
}

func (m *mapLoader) Load(ctx context.Context, ref string) (*Image, error) {
	m.loads.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	img, ok := m.images[ref]
	if !ok {
		return nil, &DecodeError{Source: ref, cause: os.ErrNotExist}
	}
	return &Image{Source: ref, Pixels: img}, nil
}

func solid(c color.Color, w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func pngBytes(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func writePNG(t *testing.T, dir, name string, img image.Image) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, pngBytes(t, img), 0o644))
	return path
}

func upload(t *testing.T, name string, c color.Color) Upload {
	t.Helper()
	return Upload{Name: name, Data: pngBytes(t, solid(c, 4, 4))}
}

// trainedPredictor returns a predictor whose classifier knows red as "55" and blue as "7A".
func trainedPredictor(t *testing.T, loader Loader) *Predictor {
	t.Helper()
	c := NewClassifier(1)
	require.NoError(t, c.AddExample([]float32{255, 0, 0, 1}, "55"))
	require.NoError(t, c.AddExample([]float32{0, 0, 255, 1}, "7A"))
	c.MarkReady()
	return &Predictor{Loader: loader, Embedder: &fakeEmbedder{}, Classifier: c, Workers: 2}
}
