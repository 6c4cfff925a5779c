package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ternarybob/arbor"

	"tuberag/internal/domain"
)

// Client is an OpenAI-compatible embeddings client implementing domain.Embedder.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	batchSize  int
	maxRetries int
	dimension  atomic.Int64
	client     *http.Client
	logger     arbor.ILogger

	// initialBackoff is the first retry delay; it doubles up to maxBackoff.
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// Config configures the OpenAI-compatible embeddings client.
type Config struct {
	BaseURL    string
	APIKey     string
	Model      string
	Timeout    time.Duration
	BatchSize  int
	MaxRetries int
}

// NewClient creates a new embeddings client using the provided configuration.
func NewClient(cfg Config, logger arbor.ILogger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: openai embedder: missing API key", domain.ErrConfiguration)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &Client{
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:         cfg.APIKey,
		model:          cfg.Model,
		batchSize:      cfg.BatchSize,
		maxRetries:     cfg.MaxRetries,
		client:         &http.Client{Timeout: cfg.Timeout},
		logger:         logger,
		initialBackoff: 200 * time.Millisecond,
		maxBackoff:     5 * time.Second,
	}, nil
}

// Name returns the identifier of this embedder implementation.
func (c *Client) Name() string { return "openai:" + c.model }

// Dimension returns the dimensionality of the produced vectors, or 0 before the first call.
func (c *Client) Dimension() int { return int(c.dimension.Load()) }

// Embed returns an embedding vector for the given text.
func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	out, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// EmbedBatch embeds texts in requests of at most batchSize inputs each.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, 0, len(texts))
	for start := 0; start < len(texts); start += c.batchSize {
		end := min(start+c.batchSize, len(texts))
		vecs, err := c.embedWithRetry(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("%w: openai: %w", domain.ErrEmbedding, err)
		}
		out = append(out, vecs...)
	}
	return out, nil
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

// statusError is a non-2xx response from the API.
type statusError struct {
	code   int
	status string
	body   string
}

func (e *statusError) Error() string {
	if e.body == "" {
		return "embeddings request failed: " + e.status
	}
	return fmt.Sprintf("embeddings request failed: %s: %s", e.status, e.body)
}

func (c *Client) embedWithRetry(ctx context.Context, batch []string) ([][]float64, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.initialBackoff
	b.MaxInterval = c.maxBackoff
	b.Multiplier = 2
	b.MaxElapsedTime = 0
	b.Reset()
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.maxRetries)), ctx)

	var vecs [][]float64
	operation := func() error {
		v, err := c.embedOnce(ctx, batch)
		if err != nil {
			return err
		}
		vecs = v
		return nil
	}
	notify := func(err error, wait time.Duration) {
		c.logger.Warn().Err(err).Int("batch", len(batch)).Dur("retry_in", wait).Msg("Embedding request failed, retrying")
	}
	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		return nil, err
	}
	return vecs, nil
}

func (c *Client) embedOnce(ctx context.Context, batch []string) ([][]float64, error) {
	data, err := json.Marshal(embeddingRequest{Model: c.model, Input: batch})
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embeddings", bytes.NewReader(data))
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(ctx.Err())
		}
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		// Respect Retry-After if provided
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
			select {
			case <-time.After(time.Duration(secs) * time.Second):
			case <-ctx.Done():
				return nil, backoff.Permanent(ctx.Err())
			}
		}
		return nil, &statusError{code: resp.StatusCode, status: resp.Status}
	}
	if resp.StatusCode >= 300 {
		return nil, backoff.Permanent(&statusError{code: resp.StatusCode, status: resp.Status, body: truncate(string(payload), 200)})
	}

	var out embeddingResponse
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("decode response: %w", err))
	}
	if len(out.Data) != len(batch) {
		return nil, backoff.Permanent(fmt.Errorf("expected %d embeddings, got %d", len(batch), len(out.Data)))
	}

	// The API may return items out of order; index is authoritative.
	vecs := make([][]float64, len(batch))
	for _, item := range out.Data {
		if item.Index < 0 || item.Index >= len(batch) || vecs[item.Index] != nil {
			return nil, backoff.Permanent(fmt.Errorf("invalid embedding index %d", item.Index))
		}
		if len(item.Embedding) == 0 {
			return nil, backoff.Permanent(errors.New("empty embedding returned"))
		}
		vecs[item.Index] = item.Embedding
	}
	c.dimension.CompareAndSwap(0, int64(len(vecs[0])))
	return vecs, nil
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
