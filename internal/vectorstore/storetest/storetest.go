// Package storetest is a behavioural test suite run against every VectorStore backend.
package storetest

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tuberag/internal/domain"
)

// Factory returns a fresh, empty store. The suite closes it.
type Factory func(t *testing.T) domain.VectorStore

// Meta returns metadata for a chunk of the given video.
func Meta(videoID string) domain.Metadata {
	return domain.Metadata{
		VideoID:     videoID,
		VideoTitle:  "Title " + videoID,
		ChannelID:   "UC123",
		ChannelName: "Gophers",
		PublishedAt: "2024-05-01T10:00:00Z",
	}
}

// Batch builds n entries of videoID. Vector i points mostly along axis i%3.
func Batch(videoID string, n int) ([]string, [][]float64, []domain.Metadata) {
	texts := make([]string, n)
	vectors := make([][]float64, n)
	metas := make([]domain.Metadata, n)
	for i := 0; i < n; i++ {
		texts[i] = fmt.Sprintf("%s chunk %d", videoID, i)
		v := []float64{0.1, 0.1, 0.1}
		v[i%3] = 1
		vectors[i] = v
		metas[i] = Meta(videoID)
	}
	return texts, vectors, metas
}

// Run executes the suite.
func Run(t *testing.T, newStore Factory) {
	open := func(t *testing.T) domain.VectorStore {
		s := newStore(t)
		t.Cleanup(func() { _ = s.Close() })
		return s
	}
	ctx := context.Background()

	t.Run("EmptyStore", func(t *testing.T) {
		s := open(t)
		n, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, n)

		res, err := s.Search(ctx, []float64{1, 0, 0}, 5)
		require.NoError(t, err)
		assert.Empty(t, res)
	})

	t.Run("GeneratedIDsAreUniqueAcrossBatches", func(t *testing.T) {
		s := open(t)
		texts, vecs, metas := Batch("v1", 5)
		require.NoError(t, s.Add(ctx, texts, vecs, metas, nil))
		texts, vecs, metas = Batch("v2", 3)
		require.NoError(t, s.Add(ctx, texts, vecs, metas, nil))

		n, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 8, n)

		res, err := s.Search(ctx, []float64{1, 0, 0}, 100)
		require.NoError(t, err)
		assert.Len(t, res, 8)
	})

	t.Run("SearchReturnsAtMostCountOrdered", func(t *testing.T) {
		s := open(t)
		texts, vecs, metas := Batch("v1", 3)
		require.NoError(t, s.Add(ctx, texts, vecs, metas, nil))

		res, err := s.Search(ctx, []float64{0, 1, 0}, 5)
		require.NoError(t, err)
		require.Len(t, res, 3)
		assert.Equal(t, "v1 chunk 1", res[0].Text)
		assert.InDelta(t, 1.0, res[0].Score, 0.05)
		for i := 1; i < len(res); i++ {
			assert.GreaterOrEqual(t, res[i-1].Score, res[i].Score)
		}
		assert.Equal(t, Meta("v1"), res[0].Metadata)

		res, err = s.Search(ctx, []float64{0, 1, 0}, 2)
		require.NoError(t, err)
		assert.Len(t, res, 2)

		res, err = s.Search(ctx, []float64{0, 1, 0}, 0)
		require.NoError(t, err)
		assert.Empty(t, res)
	})

	t.Run("EmptyBatchIsNoop", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.Add(ctx, nil, nil, nil, nil))
		n, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	})

	t.Run("RejectsMalformedBatches", func(t *testing.T) {
		s := open(t)
		texts, vecs, metas := Batch("v1", 2)

		err := s.Add(ctx, texts, vecs[:1], metas, nil)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
		assert.ErrorIs(t, err, domain.ErrVectorStore)

		err = s.Add(ctx, texts, vecs, metas, []string{"a"})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)

		err = s.Add(ctx, texts, vecs, metas, []string{"a", "a"})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)

		err = s.Add(ctx, texts, [][]float64{{1, 0, 0}, {1, 0}}, metas, nil)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)

		n, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	})

	t.Run("RejectsDimensionChange", func(t *testing.T) {
		s := open(t)
		texts, vecs, metas := Batch("v1", 2)
		require.NoError(t, s.Add(ctx, texts, vecs, metas, nil))

		err := s.Add(ctx, []string{"x"}, [][]float64{{1, 2}}, []domain.Metadata{Meta("v2")}, nil)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)

		n, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})

	t.Run("ExplicitIDReplacesEntry", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.Add(ctx, []string{"old"}, [][]float64{{1, 0, 0}}, []domain.Metadata{Meta("v1")}, []string{"a"}))
		require.NoError(t, s.Add(ctx, []string{"new"}, [][]float64{{1, 0, 0}}, []domain.Metadata{Meta("v2")}, []string{"a"}))

		n, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		res, err := s.Search(ctx, []float64{1, 0, 0}, 5)
		require.NoError(t, err)
		require.Len(t, res, 1)
		assert.Equal(t, "new", res[0].Text)
		assert.Equal(t, "v2", res[0].Metadata.VideoID)
	})

	t.Run("DeleteBySourceNeverReusesIDs", func(t *testing.T) {
		s := open(t)
		texts, vecs, metas := Batch("v1", 2)
		require.NoError(t, s.Add(ctx, texts, vecs, metas, nil))
		texts, vecs, metas = Batch("v2", 2)
		require.NoError(t, s.Add(ctx, texts, vecs, metas, nil))

		removed, err := s.DeleteBySource(ctx, "v1")
		require.NoError(t, err)
		assert.Equal(t, 2, removed)

		removed, err = s.DeleteBySource(ctx, "missing")
		require.NoError(t, err)
		assert.Equal(t, 0, removed)

		texts, vecs, metas = Batch("v3", 2)
		require.NoError(t, s.Add(ctx, texts, vecs, metas, nil))

		n, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 4, n, "new entries must not overwrite v2")

		res, err := s.Search(ctx, []float64{1, 1, 1}, 10)
		require.NoError(t, err)
		videos := map[string]int{}
		for _, r := range res {
			videos[r.Metadata.VideoID]++
		}
		assert.Equal(t, map[string]int{"v2": 2, "v3": 2}, videos)
	})

	t.Run("ReplaceBySourceSwapsOnlyThatVideo", func(t *testing.T) {
		s := open(t)
		texts, vecs, metas := Batch("v1", 2)
		require.NoError(t, s.Add(ctx, texts, vecs, metas, nil))
		texts, vecs, metas = Batch("v2", 2)
		require.NoError(t, s.Add(ctx, texts, vecs, metas, nil))

		texts, vecs, metas = Batch("v1", 3)
		removed, err := s.ReplaceBySource(ctx, "v1", texts, vecs, metas)
		require.NoError(t, err)
		assert.Equal(t, 2, removed)

		res, err := s.Search(ctx, []float64{1, 1, 1}, 10)
		require.NoError(t, err)
		videos := map[string]int{}
		for _, r := range res {
			videos[r.Metadata.VideoID]++
		}
		assert.Equal(t, map[string]int{"v1": 3, "v2": 2}, videos)

		removed, err = s.ReplaceBySource(ctx, "v3", texts[:1], vecs[:1], []domain.Metadata{Meta("v3")})
		require.NoError(t, err)
		assert.Equal(t, 0, removed)
		n, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 6, n)
	})

	t.Run("FailedReplaceKeepsPreviousEntries", func(t *testing.T) {
		s := open(t)
		texts, vecs, metas := Batch("v1", 2)
		require.NoError(t, s.Add(ctx, texts, vecs, metas, nil))
		texts, vecs, metas = Batch("v2", 2)
		require.NoError(t, s.Add(ctx, texts, vecs, metas, nil))

		_, err := s.ReplaceBySource(ctx, "v1", []string{"x"}, [][]float64{{1, 2}}, []domain.Metadata{Meta("v1")})
		assert.ErrorIs(t, err, domain.ErrVectorStore)

		n, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 4, n)
		res, err := s.Search(ctx, []float64{1, 1, 1}, 10)
		require.NoError(t, err)
		for _, r := range res {
			assert.NotEqual(t, "x", r.Text)
		}
	})

	t.Run("DeleteCollectionThenReuse", func(t *testing.T) {
		s := open(t)
		texts, vecs, metas := Batch("v1", 4)
		require.NoError(t, s.Add(ctx, texts, vecs, metas, nil))

		require.NoError(t, s.DeleteCollection(ctx))
		n, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, n)

		res, err := s.Search(ctx, []float64{1, 0, 0}, 5)
		require.NoError(t, err)
		assert.Empty(t, res)

		// A fresh collection accepts a different dimension.
		require.NoError(t, s.Add(ctx, []string{"a", "b"}, [][]float64{{1, 0}, {0, 1}}, []domain.Metadata{Meta("v9"), Meta("v9")}, nil))
		n, err = s.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		require.NoError(t, s.DeleteCollection(ctx))
		require.NoError(t, s.DeleteCollection(ctx))
	})
}
