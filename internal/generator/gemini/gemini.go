// Package gemini answers questions with Gemini models through google.golang.org/genai.
package gemini

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"
	"google.golang.org/genai"

	"tuberag/internal/domain"
	"tuberag/internal/generator"
)

var _ domain.Generator = (*Generator)(nil)

const (
	DefaultModel       = "gemini-2.0-flash"
	DefaultTemperature = 0.7
)

type Config struct {
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
}

type Generator struct {
	client      *genai.Client
	model       string
	temperature float32
	maxTokens   int32
	logger      arbor.ILogger
}

func NewGenerator(ctx context.Context, cfg Config, logger arbor.ILogger) (*Generator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: gemini generator: missing API key", domain.ErrConfiguration)
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to initialize genai client: %w", domain.ErrConfiguration, err)
	}
	logger.Debug().Str("model", cfg.Model).Msg("Gemini generator initialized")
	return &Generator{
		client:      client,
		model:       cfg.Model,
		temperature: float32(cfg.Temperature),
		maxTokens:   int32(cfg.MaxTokens),
		logger:      logger,
	}, nil
}

func (g *Generator) Name() string { return "gemini:" + g.model }

func (g *Generator) Generate(ctx context.Context, query string, contexts []string, systemPrompt string) (string, error) {
	config := &genai.GenerateContentConfig{
		Temperature:       genai.Ptr(g.temperature),
		SystemInstruction: genai.NewContentFromText(generator.SystemPrompt(systemPrompt), genai.RoleUser),
	}
	if g.maxTokens > 0 {
		config.MaxOutputTokens = g.maxTokens
	}
	contents := []*genai.Content{
		genai.NewContentFromText(generator.BuildUserPrompt(query, contexts), genai.RoleUser),
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		return "", fmt.Errorf("%w: gemini API call failed: %w", domain.ErrGeneration, err)
	}
	text := responseText(resp)
	if text == "" {
		return "", fmt.Errorf("%w: gemini returned no text", domain.ErrGeneration)
	}
	return text, nil
}

// responseText concatenates the text parts of every candidate.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var out strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part != nil && part.Text != "" {
				out.WriteString(part.Text)
			}
		}
	}
	return out.String()
}
