package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newVectorStore(t *testing.T) *HNSWStore {
	t.Helper()
	vs, err := NewHNSWStore(DefaultVectorStoreConfig(4))
	require.NoError(t, err)
	t.Cleanup(func() { _ = vs.Close() })
	return vs
}

func TestHNSWAddSearch(t *testing.T) {
	ctx := context.Background()
	vs := newVectorStore(t)

	require.NoError(t, vs.Add(ctx,
		[]string{"1", "2"},
		[][]float32{{1, 0, 0, 0}, {0, 1, 0, 0}},
	))
	assert.Equal(t, 2, vs.Count())

	hits, err := vs.Search(ctx, []float32{1, 0, 0, 0}, 2)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "1", hits[0].ID)
	assert.Greater(t, hits[0].Score, hits[len(hits)-1].Score-1e-6)
}

func TestHNSWDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	vs := newVectorStore(t)

	err := vs.Add(ctx, []string{"1"}, [][]float32{{1, 0}})
	require.Error(t, err)
	assert.ErrorAs(t, err, &ErrDimensionMismatch{})
}

func TestHNSWLazyDelete(t *testing.T) {
	ctx := context.Background()
	vs := newVectorStore(t)

	require.NoError(t, vs.Add(ctx, []string{"1"}, [][]float32{{1, 0, 0, 0}}))
	require.NoError(t, vs.Delete(ctx, []string{"1"}))
	assert.Equal(t, 0, vs.Count())

	// The orphaned node never surfaces in results.
	hits, err := vs.Search(ctx, []float32{1, 0, 0, 0}, 1)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestHNSWSaveLoad(t *testing.T) {
	ctx := context.Background()
	vs := newVectorStore(t)

	require.NoError(t, vs.Add(ctx,
		[]string{"7", "8"},
		[][]float32{{1, 0, 0, 0}, {0, 0, 1, 0}},
	))

	path := filepath.Join(t.TempDir(), "vectors.hnsw")
	require.NoError(t, vs.Save(path))

	restored, err := NewHNSWStore(DefaultVectorStoreConfig(4))
	require.NoError(t, err)
	defer restored.Close()
	require.NoError(t, restored.Load(path))

	assert.Equal(t, 2, restored.Count())
	assert.ElementsMatch(t, []string{"7", "8"}, restored.AllIDs())

	hits, err := restored.Search(ctx, []float32{0, 0, 1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "8", hits[0].ID)
}
