package retriever

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"tuberag/internal/domain"
)

type fakeEmbedder struct {
	calls int
	err   error
}

func (e *fakeEmbedder) Name() string   { return "fake" }
func (e *fakeEmbedder) Dimension() int { return 2 }
func (e *fakeEmbedder) Embed(context.Context, string) ([]float64, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	return []float64{1, 0}, nil
}
func (e *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, text := range texts {
		v, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// fakeStore returns its canned results truncated to k and records the k it saw.
type fakeStore struct {
	results []domain.SearchResult
	gotK    []int
	err     error
}

func (s *fakeStore) Add(context.Context, []string, [][]float64, []domain.Metadata, []string) error {
	return nil
}
func (s *fakeStore) Search(_ context.Context, _ []float64, k int) ([]domain.SearchResult, error) {
	s.gotK = append(s.gotK, k)
	if s.err != nil {
		return nil, s.err
	}
	return s.results[:min(k, len(s.results))], nil
}
func (s *fakeStore) DeleteBySource(context.Context, string) (int, error) { return 0, nil }
func (s *fakeStore) ReplaceBySource(context.Context, string, []string, [][]float64, []domain.Metadata) (int, error) {
	return 0, nil
}
func (s *fakeStore) Count(context.Context) (int, error)                  { return len(s.results), nil }
func (s *fakeStore) DeleteCollection(context.Context) error              { return nil }
func (s *fakeStore) Close() error                                        { return nil }

func result(text string, score float64) domain.SearchResult {
	return domain.SearchResult{Text: text, Score: score, Metadata: domain.Metadata{VideoID: text}}
}

func TestSimple_ReturnsStoreResults(t *testing.T) {
	emb := &fakeEmbedder{}
	store := &fakeStore{results: []domain.SearchResult{result("a", 0.9), result("b", 0.5), result("c", 0.1)}}
	r := NewSimple(emb, store, 2, arbor.NewLogger())

	res, err := r.Retrieve(context.Background(), "q", 0)
	require.NoError(t, err)
	assert.Equal(t, []int{2}, store.gotK, "k <= 0 uses the configured default")
	assert.Equal(t, store.results[:2], res)
	assert.Equal(t, 1, emb.calls)

	res, err = r.Retrieve(context.Background(), "q", 5)
	require.NoError(t, err)
	assert.Len(t, res, 3)
}

func TestSimple_ErrorClasses(t *testing.T) {
	r := NewSimple(&fakeEmbedder{err: errors.New("no model")}, &fakeStore{}, 5, arbor.NewLogger())
	_, err := r.Retrieve(context.Background(), "q", 3)
	assert.ErrorIs(t, err, domain.ErrEmbedding)

	r = NewSimple(&fakeEmbedder{}, &fakeStore{err: errors.New("disk")}, 5, arbor.NewLogger())
	_, err = r.Retrieve(context.Background(), "q", 3)
	assert.ErrorIs(t, err, domain.ErrVectorStore)
}

func TestRerank_LexicalOverlapBeatsRawSimilarity(t *testing.T) {
	a := domain.SearchResult{Text: "My cats and dogs play together", Score: 0.50}
	b := domain.SearchResult{Text: "Completely unrelated gardening tips", Score: 0.90}

	out := Rerank("cats dogs", []domain.SearchResult{b, a}, 2)
	require.Len(t, out, 2)
	assert.Equal(t, a.Text, out[0].Text)
	assert.InDelta(t, 0.65, out[0].Score, 1e-9)
	assert.Equal(t, b.Text, out[1].Text)
	assert.InDelta(t, 0.63, out[1].Score, 1e-9)
}

func TestRerank_EmptyQueryKeepsSimilarityOrder(t *testing.T) {
	out := Rerank("   ", []domain.SearchResult{result("x", 0.2), result("y", 0.8)}, 5)
	require.Len(t, out, 2)
	assert.Equal(t, "y", out[0].Text)
	assert.InDelta(t, 0.56, out[0].Score, 1e-9)
}

func TestRerank_CaseInsensitiveAndTruncates(t *testing.T) {
	cands := []domain.SearchResult{result("nothing here", 0.6), result("GO Channels", 0.5), result("go", 0.5)}
	out := Rerank("Go channels", cands, 2)
	require.Len(t, out, 2)
	assert.Equal(t, "GO Channels", out[0].Text) // 0.35 + 0.3
	assert.Equal(t, "go", out[1].Text)          // 0.35 + 0.15
}

func TestReranking_FetchesWiderPool(t *testing.T) {
	store := &fakeStore{results: []domain.SearchResult{
		result("alpha", 0.9), result("beta", 0.8), result("query term", 0.7),
	}}
	r := NewReranking(&fakeEmbedder{}, store, 5, 20, arbor.NewLogger())

	res, err := r.Retrieve(context.Background(), "query term", 1)
	require.NoError(t, err)
	assert.Equal(t, []int{20}, store.gotK)
	require.Len(t, res, 1)
	assert.Equal(t, "query term", res[0].Text)

	// initial_k is raised to k when smaller
	r = NewReranking(&fakeEmbedder{}, store, 5, 2, arbor.NewLogger())
	_, err = r.Retrieve(context.Background(), "q", 4)
	require.NoError(t, err)
	assert.Equal(t, []int{20, 4}, store.gotK)
}
