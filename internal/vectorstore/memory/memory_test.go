package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tuberag/internal/domain"
	"tuberag/internal/vectorstore/storetest"
)

func TestStorage(t *testing.T) {
	storetest.Run(t, func(t *testing.T) domain.VectorStore { return NewStorage() })
}

func TestStorage_GeneratedIDsSkipExplicitOnes(t *testing.T) {
	s := NewStorage()
	ctx := context.Background()

	require.NoError(t, s.Add(ctx, []string{"pinned"}, [][]float64{{1, 0}}, []domain.Metadata{storetest.Meta("v1")}, []string{"doc_0"}))
	require.NoError(t, s.Add(ctx, []string{"gen"}, [][]float64{{0, 1}}, []domain.Metadata{storetest.Meta("v1")}, nil))

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	_, ok := s.byID["doc_1"]
	assert.True(t, ok)
}

func TestStorage_StoredVectorsAreCopies(t *testing.T) {
	s := NewStorage()
	ctx := context.Background()

	v := []float64{1, 0}
	require.NoError(t, s.Add(ctx, []string{"a"}, [][]float64{v}, []domain.Metadata{storetest.Meta("v1")}, nil))
	v[0], v[1] = 0, 1

	res, err := s.Search(ctx, []float64{1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.InDelta(t, 1.0, res[0].Score, 1e-9)
}
