// Package anthropic answers questions with Claude models.
package anthropic

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ternarybob/arbor"

	"tuberag/internal/domain"
	"tuberag/internal/generator"
)

var _ domain.Generator = (*Generator)(nil)

const (
	DefaultModel     = "claude-3-5-sonnet-20241022"
	DefaultMaxTokens = 1024
)

type Config struct {
	APIKey string
	// BaseURL overrides the API endpoint, mostly for tests.
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

type Generator struct {
	client      anthropic.Client
	model       string
	maxTokens   int
	temperature float64
	timeout     time.Duration
	logger      arbor.ILogger
}

func NewGenerator(cfg Config, logger arbor.ILogger) (*Generator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: anthropic generator: API key is required", domain.ErrConfiguration)
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	logger.Debug().Str("model", cfg.Model).Int("max_tokens", cfg.MaxTokens).Msg("Anthropic generator initialized")
	return &Generator{
		client:      anthropic.NewClient(opts...),
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		timeout:     cfg.Timeout,
		logger:      logger,
	}, nil
}

func (g *Generator) Name() string { return "anthropic:" + g.model }

func (g *Generator) Generate(ctx context.Context, query string, contexts []string, systemPrompt string) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(g.model),
		MaxTokens: int64(g.maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(generator.BuildUserPrompt(query, contexts))),
		},
		System: []anthropic.TextBlockParam{
			{Text: generator.SystemPrompt(systemPrompt)},
		},
	}
	if g.temperature > 0 {
		params.Temperature = anthropic.Float(g.temperature)
	}

	resp, err := g.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("%w: claude API call failed: %w", domain.ErrGeneration, err)
	}

	var out strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			out.WriteString(block.Text)
		}
	}
	if out.Len() == 0 {
		return "", fmt.Errorf("%w: claude returned no text", domain.ErrGeneration)
	}
	g.logger.Debug().Str("model", g.model).Int("output_tokens", int(resp.Usage.OutputTokens)).Msg("Claude response received")
	return out.String(), nil
}
