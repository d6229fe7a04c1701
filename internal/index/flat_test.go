package index

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kailas-cloud/manualdex/internal/domain"
)

func TestFlatAddAndSearch(t *testing.T) {
	f := NewFlat(3)

	require.NoError(t, f.Add([][]float32{{1, 0, 0}}))
	require.NoError(t, f.Add([][]float32{{0, 1, 0}}))
	require.NoError(t, f.Add([][]float32{{0.7071, 0.7071, 0}}))
	require.Equal(t, 3, f.Len())

	hits := f.Search([]float32{1, 0, 0}, 2)
	require.Len(t, hits, 2)
	assert.Equal(t, 0, hits[0].Position)
	assert.Equal(t, 2, hits[1].Position)
	assert.Greater(t, hits[0].Score, hits[1].Score)
}

func TestFlatDimMismatch(t *testing.T) {
	f := NewFlat(4)
	err := f.Add([][]float32{{1, 0}})
	assert.ErrorIs(t, err, domain.ErrVectorDimMismatch)
}

func TestFlatAt(t *testing.T) {
	f := NewFlat(2)
	require.NoError(t, f.Add([][]float32{{0.5, 0.25}}))

	row, ok := f.At(0)
	require.True(t, ok)
	assert.Equal(t, []float32{0.5, 0.25}, row)

	_, ok = f.At(1)
	assert.False(t, ok)
	_, ok = f.At(-1)
	assert.False(t, ok)
}

func TestFlatSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "idx.bin")

	f := NewFlat(3)
	require.NoError(t, f.Add([][]float32{{0.1, 0.2, 0.3}}))
	require.NoError(t, f.Add([][]float32{{-1, 0, 1}}))
	require.NoError(t, f.Save(path))

	loaded, err := LoadFlat(path)
	require.NoError(t, err)
	assert.Equal(t, 3, loaded.Dim())
	assert.Equal(t, 2, loaded.Len())

	row, ok := loaded.At(1)
	require.True(t, ok)
	assert.Equal(t, []float32{-1, 0, 1}, row)
}

func TestFlatSearchMoreThanLen(t *testing.T) {
	f := NewFlat(2)
	require.NoError(t, f.Add([][]float32{{1, 0}}))
	hits := f.Search([]float32{1, 0}, 10)
	assert.Len(t, hits, 1)
}
