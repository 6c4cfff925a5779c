// Package extractive answers offline by picking the most salient context sentences.
package extractive

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"

	"tuberag/internal/domain"
)

var _ domain.Generator = (*Generator)(nil)

// DefaultMaxSentences bounds the answer length.
const DefaultMaxSentences = 5

var sentencePattern = regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`)

// Generator ranks context sentences by word frequency (stopwords filtered),
// boosted by the question's terms, and returns the best ones in reading order.
// It ignores the system prompt.
type Generator struct {
	tokenPattern *regexp.Regexp
	stopwords    map[string]struct{}
	maxSentences int
}

func NewGenerator(maxSentences int) *Generator {
	if maxSentences <= 0 {
		maxSentences = DefaultMaxSentences
	}
	return &Generator{
		tokenPattern: regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`),
		stopwords:    defaultStopwords(),
		maxSentences: maxSentences,
	}
}

func (g *Generator) Name() string { return "extractive" }

func (g *Generator) Generate(ctx context.Context, query string, contexts []string, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrGeneration, err)
	}
	text := strings.TrimSpace(strings.Join(contexts, "\n\n"))
	if text == "" {
		return "", fmt.Errorf("%w: no context to answer from", domain.ErrGeneration)
	}
	return g.summarize(query, text), nil
}

func (g *Generator) summarize(query, text string) string {
	sentences := sentencePattern.FindAllString(text, -1)
	if len(sentences) == 0 {
		return text
	}
	freq := map[string]float64{}
	for _, sent := range sentences {
		for _, tok := range g.tokens(sent) {
			if _, ok := g.stopwords[tok]; ok {
				continue
			}
			freq[tok]++
		}
	}
	maxF := 0.0
	for _, v := range freq {
		maxF = math.Max(maxF, v)
	}
	if maxF > 0 {
		for k, v := range freq {
			freq[k] = v / maxF
		}
	}
	queryTerms := map[string]struct{}{}
	for _, tok := range g.tokens(query) {
		if _, ok := g.stopwords[tok]; !ok {
			queryTerms[tok] = struct{}{}
		}
	}

	type pair struct {
		idx   int
		score float64
	}
	scores := make([]pair, len(sentences))
	for i, sent := range sentences {
		toks := g.tokens(sent)
		score := 0.0
		for _, tok := range toks {
			score += freq[tok]
			// A question term counts as a full extra occurrence.
			if _, ok := queryTerms[tok]; ok {
				score++
			}
		}
		if l := float64(len(toks)); l > 0 {
			score /= math.Sqrt(l)
		}
		scores[i] = pair{i, score}
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })

	n := min(g.maxSentences, len(scores))
	selected := make([]int, n)
	for i := range n {
		selected[i] = scores[i].idx
	}
	sort.Ints(selected)
	out := make([]string, 0, n)
	for _, idx := range selected {
		out = append(out, strings.TrimSpace(sentences[idx]))
	}
	return strings.Join(out, " ")
}

func (g *Generator) tokens(text string) []string {
	return g.tokenPattern.FindAllString(strings.ToLower(text), -1)
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those", "from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about", "between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "don", "should", "now",
		"what", "which", "who", "how", "why", "when", "where", "do", "does", "did",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
