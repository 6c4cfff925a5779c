package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tuberag/internal/domain"
	"tuberag/internal/vectorstore/storetest"
)

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) domain.VectorStore {
		s, err := NewStore(t.TempDir(), "test")
		require.NoError(t, err)
		return s
	})
}

func TestNewStore_EmptyCollection(t *testing.T) {
	_, err := NewStore(t.TempDir(), "")
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := NewStore(dir, "talks")
	require.NoError(t, err)
	texts, vecs, metas := storetest.Batch("v1", 3)
	require.NoError(t, s.Add(ctx, texts, vecs, metas, nil))
	_, err = s.DeleteBySource(ctx, "nothing")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = NewStore(dir, "talks")
	require.NoError(t, err)
	defer s.Close()

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	res, err := s.Search(ctx, []float64{0, 0, 1}, 1)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "v1 chunk 2", res[0].Text)
	assert.Equal(t, storetest.Meta("v1"), res[0].Metadata)

	// The sequence continues after reopen instead of restarting at doc_0.
	texts, vecs, metas = storetest.Batch("v2", 2)
	require.NoError(t, s.Add(ctx, texts, vecs, metas, nil))
	n, err = s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}

func TestStore_CollectionsAreIsolated(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	a, err := NewStore(dir, "a")
	require.NoError(t, err)
	defer a.Close()
	b, err := NewStore(dir, "b")
	require.NoError(t, err)
	defer b.Close()

	texts, vecs, metas := storetest.Batch("v1", 2)
	require.NoError(t, a.Add(ctx, texts, vecs, metas, nil))

	n, err := b.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	require.NoError(t, b.DeleteCollection(ctx))
	n, err = a.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestFloat64Blob(t *testing.T) {
	v := []float64{0, -1.5, 3.25, 1e-300}
	assert.Equal(t, v, bytesToFloat64Slice(float64SliceToBytes(v)))
}
