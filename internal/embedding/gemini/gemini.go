// Package gemini embeds text with the Gemini embedding models.
package gemini

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"google.golang.org/genai"

	"tuberag/internal/domain"
)

// Config configures the Gemini embedder.
type Config struct {
	APIKey    string
	Model     string
	Dimension int
	BatchSize int
}

// Embedder calls Models.EmbedContent with the configured output dimensionality.
type Embedder struct {
	client    *genai.Client
	model     string
	dimension int
	batchSize int
	logger    arbor.ILogger
}

// NewEmbedder initializes a genai client for the Gemini API backend.
func NewEmbedder(ctx context.Context, cfg Config, logger arbor.ILogger) (*Embedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: gemini embedder: missing API key", domain.ErrConfiguration)
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-embedding-001"
	}
	if cfg.Dimension <= 0 {
		cfg.Dimension = 768
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to initialize genai client: %w", domain.ErrConfiguration, err)
	}

	logger.Debug().
		Str("model", cfg.Model).
		Int("dimension", cfg.Dimension).
		Msg("Gemini embedder initialized")

	return &Embedder{client: client, model: cfg.Model, dimension: cfg.Dimension, batchSize: cfg.BatchSize, logger: logger}, nil
}

func (e *Embedder) Name() string   { return "gemini:" + e.model }
func (e *Embedder) Dimension() int { return e.dimension }

func (e *Embedder) Embed(ctx context.Context, text string) ([]float64, error) {
	out, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// EmbedBatch sends up to batchSize contents per request; embeddings come back in input order.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	outputDim := int32(e.dimension)
	embeddingConfig := &genai.EmbedContentConfig{OutputDimensionality: &outputDim}

	out := make([][]float64, 0, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		end := min(start+e.batchSize, len(texts))
		contents := make([]*genai.Content, 0, end-start)
		for _, text := range texts[start:end] {
			contents = append(contents, genai.NewContentFromText(text, genai.RoleUser))
		}

		result, err := e.client.Models.EmbedContent(ctx, e.model, contents, embeddingConfig)
		if err != nil {
			return nil, fmt.Errorf("%w: gemini: %w", domain.ErrEmbedding, err)
		}
		vecs, err := toVectors(result, end-start, e.dimension)
		if err != nil {
			return nil, fmt.Errorf("%w: gemini: %w", domain.ErrEmbedding, err)
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func toVectors(result *genai.EmbedContentResponse, want, dimension int) ([][]float64, error) {
	if result == nil || len(result.Embeddings) != want {
		got := 0
		if result != nil {
			got = len(result.Embeddings)
		}
		return nil, fmt.Errorf("expected %d embeddings, got %d", want, got)
	}
	out := make([][]float64, want)
	for i, emb := range result.Embeddings {
		if emb == nil || len(emb.Values) != dimension {
			return nil, fmt.Errorf("embedding %d: dimension mismatch, expected %d", i, dimension)
		}
		v := make([]float64, len(emb.Values))
		for j, x := range emb.Values {
			v[j] = float64(x)
		}
		out[i] = v
	}
	return out, nil
}
