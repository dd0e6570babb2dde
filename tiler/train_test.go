package tiler

import (
	"context"
	"errors"
	"image"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShufflePermutes(t *testing.T) {
	items := make([]int, 100)
	for i := range items {
		items[i] = i
	}
	out := Shuffle(NewRand(42), items)

	require.Len(t, out, len(items))
	assert.NotEqual(t, items, out)
	sorted := slices.Clone(out)
	slices.Sort(sorted)
	assert.Equal(t, items, sorted)
	for i, v := range items {
		assert.Equal(t, i, v, "input must not be modified")
	}
}

func TestShuffleSeeded(t *testing.T) {
	items := []string{"a", "b", "c", "d", "e", "f", "g"}
	assert.Equal(t, Shuffle(NewRand(7), items), Shuffle(NewRand(7), items))
	assert.Empty(t, Shuffle(NewRand(7), []string{}))
	assert.Equal(t, []string{"x"}, Shuffle(NewRand(0), []string{"x"}))
}

func newTestTrainer(images map[string]image.Image) (*Trainer, *Classifier) {
	c := NewClassifier(1)
	return &Trainer{
		Loader:     &mapLoader{images: images},
		Embedder:   &fakeEmbedder{},
		Classifier: c,
		Workers:    3,
		Rand:       NewRand(1),
	}, c
}

func TestTrainSkipsUnloadableExamples(t *testing.T) {
	tr, c := newTestTrainer(map[string]image.Image{
		"r.png": solid(red, 2, 2),
		"b.png": solid(blue, 2, 2),
	})
	report, err := tr.Train(context.Background(), []LabeledRef{
		{Image: "r.png", Label: "55"},
		{Image: "gone.png", Label: "BD"},
		{Image: "b.png", Label: "7A"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Added)
	require.Len(t, report.Failed, 1)
	assert.Equal(t, "gone.png", report.Failed[0].Source)
	assert.ErrorIs(t, report.Failed[0], ErrDecode)

	assert.True(t, c.Ready())
	p, err := c.PredictClass(vecBlue)
	require.NoError(t, err)
	assert.Equal(t, LabelCode("7A"), p.Label)
	assert.NotContains(t, p.Confidences, LabelCode("BD"))
}

func TestTrainRunsOnce(t *testing.T) {
	tr, _ := newTestTrainer(map[string]image.Image{"r.png": solid(red, 2, 2)})
	examples := []LabeledRef{{Image: "r.png", Label: "55"}}
	_, err := tr.Train(context.Background(), examples)
	require.NoError(t, err)

	_, err = tr.Train(context.Background(), examples)
	assert.ErrorIs(t, err, ErrAlreadyTrained)
}

func TestTrainAllFailed(t *testing.T) {
	tr, c := newTestTrainer(nil)
	report, err := tr.Train(context.Background(), []LabeledRef{{Image: "nope.png", Label: "55"}})
	assert.ErrorIs(t, err, ErrNotReady)
	assert.Zero(t, report.Added)
	assert.True(t, c.Ready())

	_, err = c.PredictClass(vecRed)
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestTrainCancelled(t *testing.T) {
	tr, c := newTestTrainer(map[string]image.Image{"r.png": solid(red, 2, 2)})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := tr.Train(ctx, []LabeledRef{{Image: "r.png", Label: "55"}})
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, c.Ready())
}
