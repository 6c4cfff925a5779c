package chunker

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"tuberag/internal/domain"
)

// DefaultSeparators are tried in order, from paragraph breaks down to single characters.
var DefaultSeparators = []string{"\n\n", "\n", ". ", " ", ""}

// RecursiveChunker splits text on the coarsest separator present and recurses
// into pieces that are still too long. Sizes are measured in runes.
type RecursiveChunker struct {
	chunkSize  int
	overlap    int
	separators []string
}

func NewRecursiveChunker(chunkSize, overlap int) (*RecursiveChunker, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", domain.ErrConfiguration, chunkSize)
	}
	if overlap < 0 || overlap >= chunkSize {
		return nil, fmt.Errorf("%w: chunk overlap must be in [0, %d), got %d", domain.ErrConfiguration, chunkSize, overlap)
	}
	return &RecursiveChunker{chunkSize: chunkSize, overlap: overlap, separators: DefaultSeparators}, nil
}

func (c *RecursiveChunker) Chunk(text string, meta domain.Metadata) ([]domain.Chunk, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	pieces := c.split(text, c.separators)
	chunks := make([]domain.Chunk, 0, len(pieces))
	for _, p := range pieces {
		chunks = append(chunks, domain.Chunk{Text: p, Index: len(chunks), Metadata: meta})
	}
	return chunks, nil
}

// split cuts text after each occurrence of the chosen separator, so every
// piece keeps the separator that ended it and no text is lost.
func (c *RecursiveChunker) split(text string, separators []string) []string {
	separator := separators[len(separators)-1]
	var rest []string
	for i, s := range separators {
		if s == "" {
			separator = s
			break
		}
		if strings.Contains(text, s) {
			separator = s
			rest = separators[i+1:]
			break
		}
	}

	var out, small []string
	for _, piece := range strings.SplitAfter(text, separator) {
		if piece == "" {
			continue
		}
		if utf8.RuneCountInString(piece) < c.chunkSize {
			small = append(small, piece)
			continue
		}
		if len(small) > 0 {
			out = append(out, c.merge(small)...)
			small = nil
		}
		if len(rest) == 0 {
			if s := strings.TrimSpace(piece); s != "" {
				out = append(out, s)
			}
			continue
		}
		out = append(out, c.split(piece, rest)...)
	}
	if len(small) > 0 {
		out = append(out, c.merge(small)...)
	}
	return out
}

// merge packs pieces into chunks of at most chunkSize runes, carrying up to
// overlap runes of trailing pieces into the following chunk.
func (c *RecursiveChunker) merge(pieces []string) []string {
	var (
		out     []string
		current []string
		total   int
	)
	flush := func() {
		if s := strings.TrimSpace(strings.Join(current, "")); s != "" {
			out = append(out, s)
		}
	}

	for _, p := range pieces {
		n := utf8.RuneCountInString(p)
		if total+n > c.chunkSize && len(current) > 0 {
			flush()
			for total > c.overlap || (total > 0 && total+n > c.chunkSize) {
				total -= utf8.RuneCountInString(current[0])
				current = current[1:]
			}
		}
		total += n
		current = append(current, p)
	}
	flush()
	return out
}
