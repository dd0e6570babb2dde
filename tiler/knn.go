package tiler

import (
	"context"
	"sync"
)

// Classifier is a k-nearest-neighbour majority-vote classifier over an ExampleStore.
//
// Writes happen only before MarkReady; after that the classifier is sealed and
// safe for concurrent predictions.
type Classifier struct {
	store *ExampleStore
	k     int

	once  sync.Once
	ready chan struct{}
}

// NewClassifier returns an empty classifier voting over k neighbours.
func NewClassifier(k int) *Classifier {
	if k <= 0 {
		k = 3
	}
	return &Classifier{
		store: NewExampleStore(),
		k:     k,
		ready: make(chan struct{}),
	}
}

// K returns the configured neighbour count.
func (c *Classifier) K() int { return c.k }

// Size returns the number of stored examples.
func (c *Classifier) Size() int { return c.store.Size() }

// AddExample stores one labeled embedding.
func (c *Classifier) AddExample(vec []float32, label LabelCode) error {
	if c.Ready() {
		return ErrSealed
	}
	return c.store.Add(vec, label)
}

// MarkReady seals the classifier. It is idempotent.
func (c *Classifier) MarkReady() {
	c.once.Do(func() { close(c.ready) })
}

// Ready reports whether training has completed.
func (c *Classifier) Ready() bool {
	select {
	case <-c.ready:
		return true
	default:
		return false
	}
}

// WaitReady blocks until the classifier is ready or ctx is done.
func (c *Classifier) WaitReady(ctx context.Context) error {
	select {
	case <-c.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PredictClass votes among the k nearest examples. Confidences hold the vote
// fraction of every stored label and sum to 1; Label is their arg-max, with
// ties going to the label of the closer neighbour.
func (c *Classifier) PredictClass(vec []float32) (Prediction, error) {
	if c.store.Size() == 0 {
		return Prediction{}, ErrNotReady
	}
	hits, err := c.store.Search(vec, c.k)
	if err != nil {
		return Prediction{}, err
	}

	votes := make(map[LabelCode]int)
	best := make(map[LabelCode]int)
	for _, h := range hits {
		if _, ok := best[h.Label]; !ok {
			best[h.Label] = h.Rank
		}
		votes[h.Label]++
	}

	conf := make(map[LabelCode]float64)
	for _, l := range c.store.Labels() {
		conf[l] = 0
	}
	var winner LabelCode
	top := -1
	for l, n := range votes {
		conf[l] = float64(n) / float64(len(hits))
		if n > top || (n == top && best[l] < best[winner]) {
			winner, top = l, n
		}
	}
	return Prediction{Label: winner, Confidences: conf}, nil
}
