// Package retriever turns a question into the stored chunks most relevant to it.
package retriever

import (
	"context"
	"errors"
	"fmt"

	"github.com/ternarybob/arbor"

	"tuberag/internal/domain"
)

// DefaultK is used when a caller passes k <= 0 and no other default is configured.
const DefaultK = 5

// Simple embeds the query once and returns the store's nearest neighbours as-is.
type Simple struct {
	embedder domain.Embedder
	store    domain.VectorStore
	defaultK int
	logger   arbor.ILogger
}

func NewSimple(embedder domain.Embedder, store domain.VectorStore, defaultK int, logger arbor.ILogger) *Simple {
	if defaultK <= 0 {
		defaultK = DefaultK
	}
	return &Simple{embedder: embedder, store: store, defaultK: defaultK, logger: logger}
}

func (r *Simple) Retrieve(ctx context.Context, query string, k int) ([]domain.SearchResult, error) {
	if k <= 0 {
		k = r.defaultK
	}
	return search(ctx, r.embedder, r.store, query, k, r.logger)
}

func search(ctx context.Context, embedder domain.Embedder, store domain.VectorStore, query string, k int, logger arbor.ILogger) ([]domain.SearchResult, error) {
	vec, err := embedder.Embed(ctx, query)
	if err != nil {
		return nil, wrap(domain.ErrEmbedding, "embedding query", err)
	}
	results, err := store.Search(ctx, vec, k)
	if err != nil {
		return nil, wrap(domain.ErrVectorStore, "searching", err)
	}
	logger.Debug().Int("k", k).Int("results", len(results)).Msg("Vector search complete")
	return results, nil
}

// wrap adds class unless err already carries it.
func wrap(class error, op string, err error) error {
	if errors.Is(err, class) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%w: %s: %w", class, op, err)
}
