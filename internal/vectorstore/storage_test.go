package vectorstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tuberag/internal/domain"
)

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, Cosine([]float64{1, 2}, []float64{2, 4}), 1e-12)
	assert.InDelta(t, 0.0, Cosine([]float64{1, 0}, []float64{0, 1}), 1e-12)
	assert.InDelta(t, -1.0, Cosine([]float64{1, 0}, []float64{-3, 0}), 1e-12)
	assert.Equal(t, 0.0, Cosine([]float64{0, 0}, []float64{1, 1}))
}

func TestIDs(t *testing.T) {
	assert.Equal(t, "doc_12", FormatID(12))
	n, ok := ParseID("doc_12")
	assert.True(t, ok)
	assert.Equal(t, int64(12), n)

	for _, bad := range []string{"doc_", "doc_x", "12", "doc_-1", "other_1"} {
		_, ok := ParseID(bad)
		assert.False(t, ok, bad)
	}
}

func TestValidateBatch(t *testing.T) {
	meta := []domain.Metadata{{VideoID: "a"}, {VideoID: "b"}}

	dim, err := ValidateBatch([]string{"x", "y"}, [][]float64{{1, 2}, {3, 4}}, meta, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, dim)

	dim, err = ValidateBatch(nil, nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, dim)

	_, err = ValidateBatch([]string{"x", "y"}, [][]float64{{1}}, meta, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = ValidateBatch([]string{"x", "y"}, [][]float64{{1}, {2}}, meta, []string{"i", ""})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = ValidateBatch([]string{"x", "y"}, [][]float64{{}, {}}, meta, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestRank(t *testing.T) {
	entries := []Entry{
		{ID: "a", Text: "a", Vector: []float64{0, 1}},
		{ID: "b", Text: "b", Vector: []float64{1, 0}},
		{ID: "c", Text: "c", Vector: []float64{1, 0}},
		{ID: "d", Text: "d", Vector: []float64{1, 1}},
	}
	res := Rank([]float64{1, 0}, entries, 3)
	require.Len(t, res, 3)
	assert.Equal(t, "b", res[0].Text)
	assert.Equal(t, "c", res[1].Text, "ties keep insertion order")
	assert.Equal(t, "d", res[2].Text)

	assert.Len(t, Rank([]float64{1, 0}, entries, 10), 4)
	assert.Empty(t, Rank([]float64{1, 0}, entries, 0))
	assert.Empty(t, Rank([]float64{1, 0}, nil, 3))
}
