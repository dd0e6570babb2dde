package tiler

import (
	"context"
	"image"
	"image/color"
	"log/slog"
	"slices"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
)

// Profile is a tile's darkness fingerprint: one subsampled ink sum per pixel row.
type Profile []float64

// RenderOrder maps a catalog tile index to its display position. An empty
// order means "not computed yet, use catalog order".
type RenderOrder []int

// DarknessProfile sums 255 minus the red channel over every stride-th pixel
// column of each row. The subsampling trades exactness for speed.
func DarknessProfile(img image.Image, stride int) Profile {
	if stride <= 0 {
		stride = 4
	}
	b := img.Bounds()
	out := make(Profile, 0, b.Dy())
	for y := b.Min.Y; y < b.Max.Y; y++ {
		var sum float64
		for x := b.Min.X; x < b.Max.X; x += stride {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			sum += float64(255 - int(c.R))
		}
		out = append(out, sum)
	}
	return out
}

// CompareProfiles returns Σ(a[y]-b[y]). Negative means a sorts first.
// Profiles of different length compare as equal. The relation is a heuristic
// and is not guaranteed to be transitive.
func CompareProfiles(a, b Profile) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	d := make([]float64, len(a))
	floats.SubTo(d, a, b)
	return floats.Sum(d)
}

// ComputeOrder stable-sorts tile indices with CompareProfiles and returns each
// tile's resulting position.
func ComputeOrder(profiles []Profile) RenderOrder {
	if len(profiles) == 0 {
		return nil
	}
	idx := make([]int, len(profiles))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool {
		return CompareProfiles(profiles[idx[i]], profiles[idx[j]]) < 0
	})
	order := make(RenderOrder, len(profiles))
	for pos, tile := range idx {
		order[tile] = pos
	}
	return order
}

// Sorted returns tile indices 0..n-1 in display order. With an empty or
// mismatched order the catalog order is returned.
func (o RenderOrder) Sorted(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	if len(o) != n {
		return out
	}
	sort.SliceStable(out, func(i, j int) bool { return o[out[i]] < o[out[j]] })
	return out
}

// Orderer computes and caches darkness profiles for the static catalog. It
// never touches the classifier.
type Orderer struct {
	Loader  Loader
	Stride  int
	Workers int
	Logger  *slog.Logger

	mu       sync.RWMutex
	profiles map[string]Profile
	order    RenderOrder
}

// Compute profiles every tile (reusing cached profiles) and derives the render
// order. If any tile fails to load the order stays unavailable.
func (o *Orderer) Compute(ctx context.Context, tiles []string) (RenderOrder, error) {
	log := orDiscard(o.Logger)
	profiles := make([]Profile, len(tiles))
	errs := make([]error, len(tiles))

	workers := o.Workers
	if workers <= 0 {
		workers = 1
	}
	var g errgroup.Group
	g.SetLimit(workers)
	for i, src := range tiles {
		if p, ok := o.Profile(src); ok {
			profiles[i] = p
			continue
		}
		g.Go(func() error {
			img, err := o.Loader.Load(ctx, src)
			if err != nil {
				errs[i] = err
				return nil
			}
			profiles[i] = DarknessProfile(img.Pixels, o.Stride)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var failures []ItemError
	o.mu.Lock()
	if o.profiles == nil {
		o.profiles = make(map[string]Profile, len(tiles))
	}
	for i, src := range tiles {
		if errs[i] != nil {
			failures = append(failures, ItemError{Index: i, Source: src, Err: errs[i]})
			continue
		}
		o.profiles[src] = profiles[i]
	}
	o.mu.Unlock()
	if len(failures) > 0 {
		log.Warn("render order unavailable", "failed", len(failures))
		return nil, &BatchError{Op: "profile", Failures: failures}
	}

	order := ComputeOrder(profiles)
	o.mu.Lock()
	o.order = order
	o.mu.Unlock()
	log.Info("render order computed", "tiles", len(tiles))
	return slices.Clone(order), nil
}

// Profile returns the cached profile for source.
func (o *Orderer) Profile(source string) (Profile, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	p, ok := o.profiles[source]
	return p, ok
}

// RenderOrder returns a copy of the last computed order, or nil.
func (o *Orderer) RenderOrder() RenderOrder {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return slices.Clone(o.order)
}

// Position returns the display position of a tile, or ErrNotReady before Compute succeeded.
func (o *Orderer) Position(tile int) (int, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if len(o.order) == 0 {
		return 0, ErrNotReady
	}
	if tile < 0 || tile >= len(o.order) {
		return 0, ErrUnknownTile
	}
	return o.order[tile], nil
}
