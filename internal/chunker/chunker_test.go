package chunker

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tuberag/internal/domain"
)

var testMeta = domain.Metadata{
	VideoID:     "abc123",
	VideoTitle:  "Intro to Go",
	ChannelID:   "UC1",
	ChannelName: "Gophers",
	PublishedAt: "2024-01-01T00:00:00Z",
}

func longTranscript() string {
	var b strings.Builder
	for i := 0; i < 40; i++ {
		b.WriteString("Goroutines are cheap and channels connect them. ")
		if i%7 == 6 {
			b.WriteString("\n\n")
		}
	}
	return b.String()
}

func TestNewRecursiveChunker_RejectsBadSizes(t *testing.T) {
	for _, tc := range []struct{ size, overlap int }{{0, 0}, {-5, 0}, {100, -1}, {100, 100}, {100, 150}} {
		_, err := NewRecursiveChunker(tc.size, tc.overlap)
		assert.ErrorIs(t, err, domain.ErrConfiguration, "size=%d overlap=%d", tc.size, tc.overlap)
	}
}

func TestRecursiveChunker_EmptyInput(t *testing.T) {
	c, err := NewRecursiveChunker(100, 20)
	require.NoError(t, err)

	for _, in := range []string{"", "   ", "\n\n\t"} {
		chunks, err := c.Chunk(in, testMeta)
		require.NoError(t, err)
		assert.Empty(t, chunks)
	}
}

func TestRecursiveChunker_ShortTextIsSingleChunk(t *testing.T) {
	c, err := NewRecursiveChunker(1000, 200)
	require.NoError(t, err)

	chunks, err := c.Chunk("  hello world  ", testMeta)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "hello world", chunks[0].Text)
	assert.Equal(t, 0, chunks[0].Index)
	assert.Equal(t, testMeta, chunks[0].Metadata)
}

func TestRecursiveChunker_RespectsChunkSize(t *testing.T) {
	sizes := []struct{ size, overlap int }{{1000, 200}, {120, 30}, {50, 10}, {7, 2}, {1, 0}}
	text := longTranscript() + strings.Repeat("x", 300) + " Ünïcødé ✓ text"
	for _, s := range sizes {
		c, err := NewRecursiveChunker(s.size, s.overlap)
		require.NoError(t, err)

		chunks, err := c.Chunk(text, testMeta)
		require.NoError(t, err)
		require.NotEmpty(t, chunks)
		for i, ch := range chunks {
			assert.NotEmpty(t, ch.Text)
			assert.LessOrEqual(t, utf8.RuneCountInString(ch.Text), s.size, "size=%d chunk=%d", s.size, i)
			assert.Equal(t, i, ch.Index)
			assert.Equal(t, testMeta, ch.Metadata)
		}
	}
}

func TestRecursiveChunker_Deterministic(t *testing.T) {
	c, err := NewRecursiveChunker(120, 30)
	require.NoError(t, err)

	a, err := c.Chunk(longTranscript(), testMeta)
	require.NoError(t, err)
	b, err := c.Chunk(longTranscript(), testMeta)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestRecursiveChunker_Overlap(t *testing.T) {
	c, err := NewRecursiveChunker(20, 8)
	require.NoError(t, err)

	chunks, err := c.Chunk("one two three four five six seven eight nine ten", testMeta)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	// Each chunk after the first starts with a word that ended the previous chunk.
	for i := 1; i < len(chunks); i++ {
		first := strings.Fields(chunks[i].Text)[0]
		assert.Contains(t, strings.Fields(chunks[i-1].Text), first, "chunk %d", i)
	}
}

func TestRecursiveChunker_PrefersParagraphs(t *testing.T) {
	c, err := NewRecursiveChunker(30, 0)
	require.NoError(t, err)

	chunks, err := c.Chunk("first paragraph here\n\nsecond paragraph here", testMeta)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "first paragraph here", chunks[0].Text)
	assert.Equal(t, "second paragraph here", chunks[1].Text)
}

func TestRecursiveChunker_KeepsSentencePunctuation(t *testing.T) {
	c, err := NewRecursiveChunker(16, 0)
	require.NoError(t, err)

	chunks, err := c.Chunk("This is one. This is two. This is three.", testMeta)
	require.NoError(t, err)
	var texts []string
	for _, ch := range chunks {
		texts = append(texts, ch.Text)
	}
	assert.Equal(t, []string{"This is one.", "This is two.", "This is three."}, texts)
}

func TestRecursiveChunker_SeparatorOnlyInput(t *testing.T) {
	c, err := NewRecursiveChunker(100, 10)
	require.NoError(t, err)

	chunks, err := c.Chunk(". ", testMeta)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, ".", chunks[0].Text)
}

func TestRecursiveChunker_MetadataIsCopied(t *testing.T) {
	c, err := NewRecursiveChunker(20, 0)
	require.NoError(t, err)

	meta := testMeta
	chunks, err := c.Chunk("alpha beta gamma delta epsilon zeta eta theta", meta)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	chunks[0].Metadata.VideoTitle = "changed"
	assert.Equal(t, "Intro to Go", chunks[1].Metadata.VideoTitle)
	assert.Equal(t, "Intro to Go", meta.VideoTitle)
}

func TestNewSentenceChunker_RejectsBadSizes(t *testing.T) {
	_, err := NewSentenceChunker(0, 0)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
	_, err = NewSentenceChunker(3, 3)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
	_, err = NewSentenceChunker(3, -1)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestSentenceChunker_Overlap(t *testing.T) {
	c, err := NewSentenceChunker(2, 1)
	require.NoError(t, err)

	chunks, err := c.Chunk("One. Two! Three? Four.", testMeta)
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Equal(t, "One. Two!", chunks[0].Text)
	assert.Equal(t, "Two! Three?", chunks[1].Text)
	assert.Equal(t, "Three? Four.", chunks[2].Text)
	for i, ch := range chunks {
		assert.Equal(t, i, ch.Index)
		assert.Equal(t, testMeta, ch.Metadata)
	}
}

func TestSentenceChunker_KeepsTrailingText(t *testing.T) {
	c, err := NewSentenceChunker(5, 0)
	require.NoError(t, err)

	chunks, err := c.Chunk("so today we are talking about channels", testMeta)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "so today we are talking about channels", chunks[0].Text)

	chunks, err = c.Chunk("First sentence. and then no period", testMeta)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "First sentence. and then no period", chunks[0].Text)
}

func TestSentenceChunker_EmptyInput(t *testing.T) {
	c, err := NewSentenceChunker(5, 1)
	require.NoError(t, err)

	chunks, err := c.Chunk("  ", testMeta)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}
