package retriever

import (
	"cmp"
	"context"
	"slices"
	"strings"

	"github.com/ternarybob/arbor"

	"tuberag/internal/domain"
)

const (
	// DefaultInitialK is the candidate pool size fetched before reranking.
	DefaultInitialK = 20

	similarityWeight = 0.7
	overlapWeight    = 0.3
)

// Reranking fetches a wider candidate pool and reorders it by a blend of
// vector similarity and lexical overlap with the query.
type Reranking struct {
	embedder domain.Embedder
	store    domain.VectorStore
	defaultK int
	initialK int
	logger   arbor.ILogger
}

func NewReranking(embedder domain.Embedder, store domain.VectorStore, defaultK, initialK int, logger arbor.ILogger) *Reranking {
	if defaultK <= 0 {
		defaultK = DefaultK
	}
	if initialK <= 0 {
		initialK = DefaultInitialK
	}
	return &Reranking{embedder: embedder, store: store, defaultK: defaultK, initialK: initialK, logger: logger}
}

func (r *Reranking) Retrieve(ctx context.Context, query string, k int) ([]domain.SearchResult, error) {
	if k <= 0 {
		k = r.defaultK
	}
	candidates, err := search(ctx, r.embedder, r.store, query, max(r.initialK, k), r.logger)
	if err != nil {
		return nil, err
	}
	return Rerank(query, candidates, k), nil
}

// Rerank scores each candidate as 0.7*similarity + 0.3*overlap and returns the
// best k, best first. The returned Score is the combined score. Candidates
// with equal scores keep their original order.
func Rerank(query string, candidates []domain.SearchResult, k int) []domain.SearchResult {
	qset := toTokenSet(query)
	out := make([]domain.SearchResult, len(candidates))
	for i, c := range candidates {
		c.Score = similarityWeight*c.Score + overlapWeight*overlap(qset, c.Text)
		out[i] = c
	}
	slices.SortStableFunc(out, func(a, b domain.SearchResult) int {
		return cmp.Compare(b.Score, a.Score)
	})
	if k >= 0 && k < len(out) {
		out = out[:k]
	}
	return out
}

// overlap is the share of query terms that occur in text, 0 for an empty query.
func overlap(qset map[string]struct{}, text string) float64 {
	if len(qset) == 0 {
		return 0
	}
	dset := toTokenSet(text)
	inter := 0
	for t := range qset {
		if _, ok := dset[t]; ok {
			inter++
		}
	}
	return float64(inter) / float64(len(qset))
}

func toTokenSet(s string) map[string]struct{} {
	tokens := strings.Fields(strings.ToLower(s))
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}
