package tiler

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	vecRed   = []float32{255, 0, 0, 1}
	vecBlue  = []float32{0, 0, 255, 1}
	vecGreen = []float32{0, 255, 0, 1}
)

func TestClassifierEmptyIsNotReady(t *testing.T) {
	c := NewClassifier(3)
	_, err := c.PredictClass(vecRed)
	assert.ErrorIs(t, err, ErrNotReady)
	assert.False(t, c.Ready())
}

func TestClassifierMajorityVote(t *testing.T) {
	c := NewClassifier(3)
	require.NoError(t, c.AddExample(vecRed, "55"))
	require.NoError(t, c.AddExample(vecBlue, "7A"))
	require.NoError(t, c.AddExample(vecGreen, "BD"))
	require.NoError(t, c.AddExample([]float32{250, 5, 0, 1}, "55"))
	c.MarkReady()

	p, err := c.PredictClass([]float32{240, 0, 10, 1})
	require.NoError(t, err)
	assert.Equal(t, LabelCode("55"), p.Label)
	assert.InDelta(t, 2.0/3, p.Confidences["55"], 1e-9)
	assert.InDelta(t, 1.0/3, p.Confidences["7A"], 1e-9)
	assert.Contains(t, p.Confidences, LabelCode("BD"))
	assert.Zero(t, p.Confidences["BD"])

	var sum float64
	for _, v := range p.Confidences {
		sum += v
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestClassifierTieGoesToClosestNeighbour(t *testing.T) {
	c := NewClassifier(2)
	require.NoError(t, c.AddExample(vecBlue, "7A"))
	require.NoError(t, c.AddExample(vecRed, "55"))
	c.MarkReady()

	p, err := c.PredictClass([]float32{200, 0, 100, 1})
	require.NoError(t, err)
	assert.Equal(t, LabelCode("55"), p.Label)
	assert.InDelta(t, 0.5, p.Confidences["55"], 1e-9)
	assert.InDelta(t, 0.5, p.Confidences["7A"], 1e-9)
}

func TestClassifierKLargerThanStore(t *testing.T) {
	c := NewClassifier(10)
	require.NoError(t, c.AddExample(vecRed, "55"))
	require.NoError(t, c.AddExample(vecRed, "55"))
	c.MarkReady()

	p, err := c.PredictClass(vecBlue)
	require.NoError(t, err)
	assert.Equal(t, LabelCode("55"), p.Label)
	assert.InDelta(t, 1.0, p.Confidences["55"], 1e-9)
}

func TestClassifierSealedAfterReady(t *testing.T) {
	c := NewClassifier(3)
	require.NoError(t, c.AddExample(vecRed, "55"))
	c.MarkReady()
	c.MarkReady()
	assert.ErrorIs(t, c.AddExample(vecBlue, "7A"), ErrSealed)
	assert.Equal(t, 1, c.Size())
}

func TestClassifierDimensionMismatch(t *testing.T) {
	c := NewClassifier(3)
	require.NoError(t, c.AddExample([]float32{1, 2}, "55"))

	err := c.AddExample([]float32{1, 2, 3}, "7A")
	var dimErr *DimensionError
	require.True(t, errors.As(err, &dimErr))
	assert.Equal(t, 2, dimErr.Expected)
	assert.Equal(t, 3, dimErr.Actual)

	_, err = c.PredictClass([]float32{1})
	assert.True(t, errors.As(err, &dimErr))
}

func TestClassifierWaitReady(t *testing.T) {
	c := NewClassifier(3)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, c.WaitReady(ctx), context.Canceled)

	c.MarkReady()
	assert.NoError(t, c.WaitReady(context.Background()))
}

func TestExampleStoreLabelsInInsertionOrder(t *testing.T) {
	s := NewExampleStore()
	require.NoError(t, s.Add(vecBlue, "7A"))
	require.NoError(t, s.Add(vecRed, "55"))
	require.NoError(t, s.Add(vecBlue, "7A"))
	assert.Equal(t, []LabelCode{"7A", "55"}, s.Labels())

	hits, err := s.Search(vecBlue, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, LabelCode("7A"), hits[0].Label)
	assert.Equal(t, 0, hits[0].Rank)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-9)
}
