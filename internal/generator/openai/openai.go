// Package openai answers questions through an OpenAI-compatible chat completions API.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"tuberag/internal/domain"
	"tuberag/internal/generator"
)

var _ domain.Generator = (*Generator)(nil)

const (
	DefaultBaseURL     = "https://api.openai.com/v1"
	DefaultModel       = "gpt-4"
	DefaultTemperature = 0.7
	DefaultTimeout     = 120 * time.Second
)

type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	// Temperature of 0 sends the API default.
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

type Generator struct {
	client      *http.Client
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	maxTokens   int
	logger      arbor.ILogger
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func NewGenerator(cfg Config, logger arbor.ILogger) (*Generator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: openai generator: API key is required", domain.ErrConfiguration)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Generator{
		client:      &http.Client{Timeout: cfg.Timeout},
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		logger:      logger,
	}, nil
}

func (g *Generator) Name() string { return "openai:" + g.model }

func (g *Generator) Generate(ctx context.Context, query string, contexts []string, systemPrompt string) (string, error) {
	reqBody := chatRequest{
		Model: g.model,
		Messages: []chatMessage{
			{Role: "system", Content: generator.SystemPrompt(systemPrompt)},
			{Role: "user", Content: generator.BuildUserPrompt(query, contexts)},
		},
		Temperature: g.temperature,
		MaxTokens:   g.maxTokens,
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("%w: marshal request: %w", domain.ErrGeneration, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("%w: create request: %w", domain.ErrGeneration, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	start := time.Now()
	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: send request: %w", domain.ErrGeneration, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read response: %w", domain.ErrGeneration, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: openai returned status %d: %s", domain.ErrGeneration, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out chatResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("%w: decode response: %w", domain.ErrGeneration, err)
	}
	if out.Error != nil {
		return "", fmt.Errorf("%w: openai error: %s", domain.ErrGeneration, out.Error.Message)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("%w: openai returned no choices", domain.ErrGeneration)
	}
	g.logger.Debug().Str("model", g.model).Dur("elapsed", time.Since(start)).Msg("Chat completion received")
	return out.Choices[0].Message.Content, nil
}
