package tiler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Shuffle returns a uniformly permuted copy of items (Fisher–Yates).
func Shuffle[T any](rng *rand.Rand, items []T) []T {
	out := make([]T, len(items))
	copy(out, items)
	for i := len(out) - 1; i > 0; i-- {
		j := rng.IntN(i + 1)
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// NewRand returns a generator for seed, or a time-seeded one when seed is 0.
func NewRand(seed int64) *rand.Rand {
	if seed == 0 {
		return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return rand.New(rand.NewPCG(uint64(seed), uint64(seed)^0x9e3779b97f4a7c15))
}

// TrainReport summarizes one training run.
type TrainReport struct {
	Added  int
	Failed []ItemError
}

// Trainer primes a Classifier from a fixed labeled set, once.
type Trainer struct {
	Loader     Loader
	Embedder   Embedder
	Classifier *Classifier
	Workers    int
	Rand       *rand.Rand
	Logger     *slog.Logger

	mu      sync.Mutex
	running bool
}

// Train shuffles examples, embeds them concurrently and inserts them in
// shuffled order. Examples whose image fails to load are skipped and listed in
// the report. On success the classifier is marked ready.
func (t *Trainer) Train(ctx context.Context, examples []LabeledRef) (TrainReport, error) {
	t.mu.Lock()
	if t.running || t.Classifier.Ready() {
		t.mu.Unlock()
		return TrainReport{}, ErrAlreadyTrained
	}
	t.running = true
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		t.running = false
		t.mu.Unlock()
	}()

	log := orDiscard(t.Logger)
	rng := t.Rand
	if rng == nil {
		rng = NewRand(0)
	}
	order := Shuffle(rng, examples)
	log.Info("training started", "examples", len(order))

	vecs, errs := embedAll(ctx, t.Workers, len(order), func(ctx context.Context, i int) ([]float32, error) {
		img, err := t.Loader.Load(ctx, order[i].Image)
		if err != nil {
			return nil, err
		}
		return t.Embedder.EmbedImage(ctx, img)
	})
	if err := ctx.Err(); err != nil {
		return TrainReport{}, err
	}

	var report TrainReport
	for i, ex := range order {
		if errs[i] != nil {
			report.Failed = append(report.Failed, ItemError{Index: i, Source: ex.Image, Err: errs[i]})
			log.Warn("training example skipped", "image", ex.Image, "err", errs[i])
			continue
		}
		if err := t.Classifier.AddExample(vecs[i], ex.Label); err != nil {
			if errors.Is(err, ErrSealed) {
				return report, ErrAlreadyTrained
			}
			report.Failed = append(report.Failed, ItemError{Index: i, Source: ex.Image, Err: err})
			log.Warn("training example rejected", "image", ex.Image, "err", err)
			continue
		}
		report.Added++
	}
	t.Classifier.MarkReady()
	log.Info("training complete", "added", report.Added, "failed", len(report.Failed))
	if report.Added == 0 && len(order) > 0 {
		return report, fmt.Errorf("no training example could be loaded: %w", ErrNotReady)
	}
	return report, nil
}

// embedAll runs fn for indices [0,n) with at most workers in flight. A failing
// item never cancels its siblings; results are returned in index order.
func embedAll(ctx context.Context, workers, n int, fn func(context.Context, int) ([]float32, error)) ([][]float32, []error) {
	if workers <= 0 {
		workers = 1
	}
	vecs := make([][]float32, n)
	errs := make([]error, n)
	var g errgroup.Group
	g.SetLimit(workers)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return nil
			}
			vecs[i], errs[i] = fn(ctx, i)
			return nil
		})
	}
	_ = g.Wait()
	return vecs, errs
}

func orDiscard(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.New(slog.DiscardHandler)
	}
	return l
}
