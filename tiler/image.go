package tiler

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Image is a decoded tile. Pixels are owned by the caller; the engine only reads them.
type Image struct {
	Source string
	Digest string
	Pixels image.Image
}

// Upload is one file handed in by the surrounding UI: its bytes and declared file name.
type Upload struct {
	Name string
	Data []byte
}

// Loader resolves an image reference to a decoded image.
type Loader interface {
	Load(ctx context.Context, ref string) (*Image, error)
}

// DecodeImage decodes data and tags it with source and a content digest.
func DecodeImage(source string, data []byte) (*Image, error) {
	if len(data) == 0 {
		return nil, &DecodeError{Source: source, cause: fmt.Errorf("no data")}
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &DecodeError{Source: source, cause: err}
	}
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, &DecodeError{Source: source, cause: fmt.Errorf("empty image")}
	}
	sum := sha1.Sum(data)
	return &Image{
		Source: source,
		Digest: hex.EncodeToString(sum[:]),
		Pixels: img,
	}, nil
}

// FileLoader loads images from disk. Relative references are resolved against Root.
type FileLoader struct {
	Root string
}

// Load reads and decodes the file named by ref.
func (l FileLoader) Load(ctx context.Context, ref string) (*Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := ref
	if l.Root != "" && !filepath.IsAbs(path) {
		path = filepath.Join(l.Root, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &DecodeError{Source: ref, cause: err}
	}
	return DecodeImage(ref, data)
}

// ReadUploads reads files into uploads named by their base names.
func ReadUploads(paths []string) ([]Upload, error) {
	out := make([]Upload, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read upload %s: %w", filepath.Base(p), err)
		}
		out = append(out, Upload{Name: filepath.Base(p), Data: data})
	}
	return out, nil
}

// ReadUploadDir reads every regular file in dir as an upload, in name order.
func ReadUploadDir(dir string) ([]Upload, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read upload dir: %w", err)
	}
	paths := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	return ReadUploads(paths)
}
