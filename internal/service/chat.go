package service

import (
	"context"

	"github.com/ternarybob/arbor"

	"tuberag/internal/domain"
)

const (
	EmptyQuestionAnswer = "Please provide a question."
	NoResultsAnswer     = "I couldn't find any relevant information to answer your question."
	errorAnswerPrefix   = "An error occurred while processing your question: "
	unknownField        = "Unknown"
)

// AskOptions overrides per-question settings. Zero values use the service defaults.
type AskOptions struct {
	K            int
	SystemPrompt string
}

// ChatService answers questions from the indexed transcripts.
type ChatService struct {
	retriever    domain.Retriever
	generator    domain.Generator
	systemPrompt string
	logger       arbor.ILogger
}

// NewChatService creates the read path. systemPrompt may be empty, in which
// case the generator's default prompt applies.
func NewChatService(retriever domain.Retriever, generator domain.Generator, systemPrompt string, logger arbor.ILogger) *ChatService {
	return &ChatService{retriever: retriever, generator: generator, systemPrompt: systemPrompt, logger: logger}
}

// Ask never fails: problems are reported in the answer text with no sources.
func (s *ChatService) Ask(ctx context.Context, question string, opts AskOptions) domain.Answer {
	if blank(question) {
		return domain.Answer{Answer: EmptyQuestionAnswer, Sources: []domain.Source{}}
	}

	results, err := s.retriever.Retrieve(ctx, question, opts.K)
	if err != nil {
		s.logger.Error().Err(err).Str("question", question).Msg("Retrieval failed")
		return errorAnswer(err)
	}
	if len(results) == 0 {
		s.logger.Info().Str("question", question).Msg("No relevant documents found")
		return domain.Answer{Answer: NoResultsAnswer, Sources: []domain.Source{}}
	}

	contexts := make([]string, len(results))
	for i, r := range results {
		contexts[i] = r.Text
	}
	systemPrompt := opts.SystemPrompt
	if blank(systemPrompt) {
		systemPrompt = s.systemPrompt
	}
	text, err := s.generator.Generate(ctx, question, contexts, systemPrompt)
	if err != nil {
		s.logger.Error().Err(err).Str("generator", s.generator.Name()).Msg("Generation failed")
		return errorAnswer(err)
	}

	sources := collectSources(results)
	s.logger.Debug().Int("documents", len(results)).Int("sources", len(sources)).Msg("Answered question")
	return domain.Answer{Answer: text, Sources: sources}
}

func errorAnswer(err error) domain.Answer {
	return domain.Answer{Answer: errorAnswerPrefix + err.Error(), Sources: []domain.Source{}}
}

// collectSources keeps the first result of each video, in retrieval order.
func collectSources(results []domain.SearchResult) []domain.Source {
	seen := make(map[string]struct{}, len(results))
	sources := make([]domain.Source, 0, len(results))
	for _, r := range results {
		id := r.Metadata.VideoID
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		sources = append(sources, domain.Source{
			VideoTitle:  orUnknown(r.Metadata.VideoTitle),
			VideoID:     id,
			ChannelName: orUnknown(r.Metadata.ChannelName),
			Score:       r.Score,
		})
	}
	return sources
}

func orUnknown(s string) string {
	if s == "" {
		return unknownField
	}
	return s
}
