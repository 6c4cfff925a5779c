// Package embedding holds helpers shared by the embedder backends.
package embedding

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"tuberag/internal/domain"
)

// Cached wraps an Embedder with an in-memory LRU keyed by text.
// Questions asked repeatedly in chat and re-indexed transcripts hit the cache.
type Cached struct {
	inner domain.Embedder
	cache *lru.Cache[string, []float64]
}

// NewCached wraps inner with a cache of at most size entries.
func NewCached(inner domain.Embedder, size int) (*Cached, error) {
	cache, err := lru.New[string, []float64](size)
	if err != nil {
		return nil, fmt.Errorf("%w: embedding cache: %w", domain.ErrConfiguration, err)
	}
	return &Cached{inner: inner, cache: cache}, nil
}

func (c *Cached) Name() string   { return c.inner.Name() }
func (c *Cached) Dimension() int { return c.inner.Dimension() }

func (c *Cached) Embed(ctx context.Context, text string) ([]float64, error) {
	if v, ok := c.cache.Get(text); ok {
		return clone(v), nil
	}
	v, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(text, clone(v))
	return v, nil
}

// EmbedBatch serves hits from the cache and embeds the distinct misses with a
// single call to the wrapped embedder.
func (c *Cached) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	var misses []string
	missAt := make(map[string][]int)
	for i, text := range texts {
		if v, ok := c.cache.Get(text); ok {
			out[i] = clone(v)
			continue
		}
		if _, seen := missAt[text]; !seen {
			misses = append(misses, text)
		}
		missAt[text] = append(missAt[text], i)
	}
	if len(misses) == 0 {
		return out, nil
	}

	vecs, err := c.inner.EmbedBatch(ctx, misses)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(misses) {
		return nil, fmt.Errorf("%w: %s returned %d vectors for %d texts", domain.ErrEmbedding, c.inner.Name(), len(vecs), len(misses))
	}
	for j, text := range misses {
		c.cache.Add(text, clone(vecs[j]))
		for _, i := range missAt[text] {
			out[i] = clone(vecs[j])
		}
	}
	return out, nil
}

func clone(v []float64) []float64 {
	out := make([]float64, len(v))
	copy(out, v)
	return out
}
