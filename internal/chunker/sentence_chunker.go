package chunker

import (
	"fmt"
	"regexp"
	"strings"

	"tuberag/internal/domain"
)

// SentenceChunker splits text into sentence-based chunks with overlap.
type SentenceChunker struct {
	sentencesPerChunk int
	overlapSentences  int
	splitter          *regexp.Regexp
}

// NewSentenceChunker packs sentencesPerChunk sentences into each chunk and
// repeats the last overlapSentences of a chunk at the start of the next one.
func NewSentenceChunker(sentencesPerChunk, overlapSentences int) (*SentenceChunker, error) {
	if sentencesPerChunk <= 0 {
		return nil, fmt.Errorf("%w: sentences per chunk must be positive, got %d", domain.ErrConfiguration, sentencesPerChunk)
	}
	if overlapSentences < 0 || overlapSentences >= sentencesPerChunk {
		return nil, fmt.Errorf("%w: sentence overlap must be in [0, %d), got %d", domain.ErrConfiguration, sentencesPerChunk, overlapSentences)
	}
	return &SentenceChunker{
		sentencesPerChunk: sentencesPerChunk,
		overlapSentences:  overlapSentences,
		splitter:          regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`),
	}, nil
}

func (c *SentenceChunker) Chunk(text string, meta domain.Metadata) ([]domain.Chunk, error) {
	sentences := c.sentences(text)
	if len(sentences) == 0 {
		return nil, nil
	}
	var chunks []domain.Chunk
	i := 0
	idx := 0
	for i < len(sentences) {
		end := min(i+c.sentencesPerChunk, len(sentences))
		chunks = append(chunks, domain.Chunk{
			Text:     strings.Join(sentences[i:end], " "),
			Index:    idx,
			Metadata: meta,
		})
		if end == len(sentences) {
			break
		}
		i = end - c.overlapSentences
		idx++
	}
	return chunks, nil
}

// sentences returns the trimmed, non-empty sentences of text. Text after the
// last terminator (common in auto-generated captions) is kept as a sentence.
func (c *SentenceChunker) sentences(text string) []string {
	var out []string
	consumed := 0
	for _, loc := range c.splitter.FindAllStringIndex(text, -1) {
		if s := strings.TrimSpace(text[loc[0]:loc[1]]); s != "" {
			out = append(out, s)
		}
		consumed = loc[1]
	}
	if rest := strings.TrimSpace(text[consumed:]); rest != "" {
		out = append(out, rest)
	}
	return out
}
