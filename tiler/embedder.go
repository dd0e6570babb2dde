package tiler

import (
	"context"
	"errors"
	"fmt"
	"image"
	"path/filepath"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"golang.org/x/image/draw"
)

// Embedder exposes the minimal surface required by the pipelines:
// given an image, return a fixed-length feature vector.
type Embedder interface {
	EmbedImage(ctx context.Context, img *Image) ([]float32, error)
	Close() error
	ModelID() string
}

// NewEmbedder builds the extractor selected by cfg.Kind, wrapped in the embedding cache.
func NewEmbedder(cfg EmbedderConfig) (Embedder, error) {
	var (
		inner Embedder
		err   error
	)
	switch cfg.Kind {
	case EmbedderONNX:
		inner, err = NewOrtEmbedder(cfg)
	case EmbedderThumbnail, "":
		inner = NewThumbnailEmbedder(cfg.ThumbSize)
	default:
		return nil, fmt.Errorf("unknown embedder kind %q", cfg.Kind)
	}
	if err != nil {
		return nil, err
	}
	return NewCachedEmbedder(inner, cfg.CacheDir)
}

var (
	ortInitMu sync.Mutex
	ortUsers  int
)

func acquireOrt(lib string) error {
	ortInitMu.Lock()
	defer ortInitMu.Unlock()
	if ortUsers == 0 && !ort.IsInitialized() {
		if lib != "" {
			ort.SetSharedLibraryPath(lib)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return fmt.Errorf("initialize onnxruntime: %w", err)
		}
	}
	ortUsers++
	return nil
}

func releaseOrt() {
	ortInitMu.Lock()
	defer ortInitMu.Unlock()
	ortUsers--
	if ortUsers == 0 && ort.IsInitialized() {
		_ = ort.DestroyEnvironment()
	}
}

// OrtEmbedder runs a MobileNet-style ONNX model. One session is shared and
// calls are serialized because the input/output tensors are pre-allocated.
type OrtEmbedder struct {
	cfg     EmbedderConfig
	mu      sync.Mutex
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
}

// NewOrtEmbedder initializes ONNX Runtime and loads the model.
func NewOrtEmbedder(cfg EmbedderConfig) (*OrtEmbedder, error) {
	if cfg.ModelPath == "" {
		return nil, errors.New("onnx embedder: modelPath is required")
	}
	if cfg.ModelID == "" {
		cfg.ModelID = filepath.Base(cfg.ModelPath)
	}
	if cfg.InputName == "" {
		cfg.InputName = "input"
	}
	if cfg.OutputName == "" {
		cfg.OutputName = "output"
	}
	size := int64(cfg.InputSize)
	if size <= 0 {
		return nil, fmt.Errorf("onnx embedder: invalid input size %d", cfg.InputSize)
	}
	if cfg.OutputSize <= 0 {
		return nil, fmt.Errorf("onnx embedder: invalid output size %d", cfg.OutputSize)
	}
	var inShape ort.Shape
	switch cfg.Layout {
	case "nchw":
		inShape = ort.NewShape(1, 3, size, size)
	case "nhwc", "":
		cfg.Layout = "nhwc"
		inShape = ort.NewShape(1, size, size, 3)
	default:
		return nil, fmt.Errorf("onnx embedder: unknown layout %q", cfg.Layout)
	}

	if err := acquireOrt(cfg.OrtLib); err != nil {
		return nil, err
	}
	input, err := ort.NewEmptyTensor[float32](inShape)
	if err != nil {
		releaseOrt()
		return nil, fmt.Errorf("allocate input tensor: %w", err)
	}
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(cfg.OutputSize)))
	if err != nil {
		input.Destroy()
		releaseOrt()
		return nil, fmt.Errorf("allocate output tensor: %w", err)
	}
	session, err := ort.NewAdvancedSession(cfg.ModelPath,
		[]string{cfg.InputName}, []string{cfg.OutputName},
		[]ort.Value{input}, []ort.Value{output}, nil)
	if err != nil {
		output.Destroy()
		input.Destroy()
		releaseOrt()
		return nil, fmt.Errorf("load model %s: %w", cfg.ModelPath, err)
	}
	return &OrtEmbedder{
		cfg:     cfg,
		session: session,
		input:   input,
		output:  output,
	}, nil
}

// Close releases ORT resources.
func (o *OrtEmbedder) Close() error {
	if o == nil {
		return nil
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session == nil {
		return nil
	}
	err := o.session.Destroy()
	o.input.Destroy()
	o.output.Destroy()
	o.session = nil
	releaseOrt()
	return err
}

// ModelID returns the identifier used for cache keys.
func (o *OrtEmbedder) ModelID() string {
	return o.cfg.ModelID
}

// EmbedImage runs the model on img and returns a copy of the output vector.
func (o *OrtEmbedder) EmbedImage(ctx context.Context, img *Image) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if img == nil || img.Pixels == nil {
		return nil, &DecodeError{Source: "<nil>"}
	}
	data := tensorFromImage(img.Pixels, o.cfg.InputSize, o.cfg.Layout)

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session == nil {
		return nil, errors.New("embedder is not initialized")
	}
	copy(o.input.GetData(), data)
	if err := o.session.Run(); err != nil {
		return nil, fmt.Errorf("run model on %s: %w", img.Source, err)
	}
	return cloneVector(o.output.GetData()), nil
}

// tensorFromImage resamples src to size×size and lays it out as float32 in [-1, 1].
func tensorFromImage(src image.Image, size int, layout string) []float32 {
	dst := image.NewNRGBA(image.Rect(0, 0, size, size))
	draw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)

	out := make([]float32, 3*size*size)
	plane := size * size
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			off := dst.PixOffset(x, y)
			p := y*size + x
			for c := 0; c < 3; c++ {
				v := float32(dst.Pix[off+c])/127.5 - 1
				if layout == "nchw" {
					out[c*plane+p] = v
				} else {
					out[p*3+c] = v
				}
			}
		}
	}
	return out
}

func cloneVector(vec []float32) []float32 {
	out := make([]float32, len(vec))
	copy(out, vec)
	return out
}
