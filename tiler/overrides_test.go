package tiler

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOverrides(t *testing.T) *OverrideStore {
	t.Helper()
	catalog, err := NewCatalog([]string{"a.png", "b.png", "c.png"})
	require.NoError(t, err)
	labels, err := NewLabelSet([]string{"55", "7A", "BD", "1C", "E9"})
	require.NoError(t, err)
	return NewOverrideStore(catalog, labels)
}

func TestOverrideSetAndExport(t *testing.T) {
	s := newTestOverrides(t)
	require.NoError(t, s.Set(2, "7A"))
	require.NoError(t, s.Set(0, "55"))
	require.NoError(t, s.Set(2, "BD"))
	require.NoError(t, s.Set(2, "BD"))

	assert.Equal(t, 2, s.Len())
	l, ok := s.Get(2)
	assert.True(t, ok)
	assert.Equal(t, LabelCode("BD"), l)
	_, ok = s.Get(1)
	assert.False(t, ok)

	assert.Equal(t, []LabeledRef{
		{Image: "a.png", Label: "55"},
		{Image: "c.png", Label: "BD"},
	}, s.Export())
}

func TestOverrideRejects(t *testing.T) {
	s := newTestOverrides(t)
	assert.ErrorIs(t, s.Set(0, "FF"), ErrUnknownLabel)
	assert.ErrorIs(t, s.Set(3, "55"), ErrUnknownTile)
	assert.ErrorIs(t, s.Set(-1, "55"), ErrUnknownTile)
	assert.Zero(t, s.Len())
}

func TestOverrideSeed(t *testing.T) {
	s := newTestOverrides(t)
	dropped := s.Seed([]LabeledRef{
		{Image: "b.png", Label: "1C"},
		{Image: "zzz.png", Label: "55"},
		{Image: "a.png", Label: "XX"},
	})
	assert.Equal(t, 2, dropped)
	assert.Equal(t, []LabeledRef{{Image: "b.png", Label: "1C"}}, s.Export())
}

func TestOverrideWriteJSON(t *testing.T) {
	s := newTestOverrides(t)
	var buf bytes.Buffer
	require.NoError(t, s.WriteJSON(&buf))
	assert.Equal(t, "[]\n", buf.String())

	require.NoError(t, s.Set(1, "E9"))
	buf.Reset()
	require.NoError(t, s.WriteJSON(&buf))
	assert.JSONEq(t, `[{"img":"b.png","opt":"E9"}]`, buf.String())
}
