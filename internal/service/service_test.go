package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"tuberag/internal/domain"
	"tuberag/internal/embedding/hashing"
	"tuberag/internal/generator/extractive"
	"tuberag/internal/retriever"
	"tuberag/internal/vectorstore/memory"
)

type fakeLister struct {
	videos  []domain.Video
	err     error
	gotMax  int
	channel domain.Channel
}

func (l *fakeLister) ResolveChannel(_ context.Context, handle string) (domain.Channel, error) {
	if l.err != nil {
		return domain.Channel{}, l.err
	}
	return l.channel, nil
}

func (l *fakeLister) ListVideos(_ context.Context, _ string, maxVideos int) ([]domain.Video, error) {
	l.gotMax = maxVideos
	return l.videos[:min(maxVideos, len(l.videos))], nil
}

// fakeTranscripts serves transcripts by video id; ids absent from the map have none.
type fakeTranscripts struct {
	texts map[string]string
	errs  map[string]error
}

func (f *fakeTranscripts) Fetch(_ context.Context, videoID string) (string, error) {
	if err := f.errs[videoID]; err != nil {
		return "", err
	}
	text, ok := f.texts[videoID]
	if !ok {
		return "", fmt.Errorf("%w: no captions for %s", domain.ErrTranscriptUnavailable, videoID)
	}
	return text, nil
}

// lineChunker makes one chunk per non-blank line.
type lineChunker struct{}

func (lineChunker) Chunk(text string, meta domain.Metadata) ([]domain.Chunk, error) {
	var out []domain.Chunk
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		out = append(out, domain.Chunk{Text: line, Index: len(out), Metadata: meta})
	}
	return out, nil
}

type failingEmbedder struct{ domain.Embedder }

func (failingEmbedder) EmbedBatch(context.Context, []string) ([][]float64, error) {
	return nil, errors.New("embedding backend down")
}

type fixture struct {
	lister      *fakeLister
	transcripts *fakeTranscripts
	embedder    domain.Embedder
	store       *memory.Storage
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	emb, err := hashing.NewEmbedder(64)
	require.NoError(t, err)
	videos := make([]domain.Video, 5)
	for i := range videos {
		videos[i] = domain.Video{ID: fmt.Sprintf("v%d", i+1), Title: fmt.Sprintf("Video %d", i+1), PublishedAt: "2024-05-01T00:00:00Z"}
	}
	return &fixture{
		lister: &fakeLister{channel: domain.Channel{ID: "UC1", Title: "Go Channel"}, videos: videos},
		transcripts: &fakeTranscripts{texts: map[string]string{
			"v1": "goroutines are cheap\nchannels connect goroutines",
			"v2": "interfaces are satisfied implicitly",
			"v3": "slices share arrays\nmaps are hash tables\nstrings are immutable",
			"v5": "  \n ",
		}},
		embedder: emb,
		store:    memory.NewStorage(),
	}
}

func (f *fixture) indexing(opts IndexingOptions) *IndexingService {
	return NewIndexingService(f.lister, f.transcripts, lineChunker{}, f.embedder, f.store, opts, arbor.NewLogger())
}

func TestIndex_CountsIndexedAndSkippedVideos(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	stats, err := f.indexing(IndexingOptions{}).Index(ctx, "@gochannel", 5)
	require.NoError(t, err)
	assert.Equal(t, "Go Channel", stats.ChannelName)
	assert.Equal(t, "UC1", stats.ChannelID)
	assert.Equal(t, 3, stats.VideosIndexed)
	assert.Equal(t, 2, stats.VideosSkipped)
	assert.Equal(t, 6, stats.TotalChunks)
	require.Len(t, stats.Skipped, 2)
	assert.Equal(t, "v4", stats.Skipped[0].VideoID)
	assert.Contains(t, stats.Skipped[0].Reason, "no captions")
	assert.Equal(t, domain.SkippedVideo{VideoID: "v5", Title: "Video 5", Reason: "empty transcript"}, stats.Skipped[1])

	n, err := f.store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 6, n)

	res, err := f.store.Search(ctx, mustEmbed(t, f.embedder, "maps are hash tables"), 1)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, domain.Metadata{
		VideoID:     "v3",
		VideoTitle:  "Video 3",
		ChannelID:   "UC1",
		ChannelName: "Go Channel",
		PublishedAt: "2024-05-01T00:00:00Z",
	}, res[0].Metadata)
}

func TestIndex_UsesDefaultMaxVideos(t *testing.T) {
	f := newFixture(t)
	stats, err := f.indexing(IndexingOptions{MaxVideos: 2}).Index(context.Background(), "@gochannel", 0)
	require.NoError(t, err)
	assert.Equal(t, 2, f.lister.gotMax)
	assert.Equal(t, 2, stats.VideosIndexed)
}

func TestIndex_ReindexReplacesChunksPerVideo(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := f.indexing(IndexingOptions{})

	for range 2 {
		_, err := svc.Index(ctx, "@gochannel", 5)
		require.NoError(t, err)
	}
	n, err := f.store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 6, n)
}

func TestIndex_AppendOnlyKeepsOldChunks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := f.indexing(IndexingOptions{AppendOnly: true})

	for range 2 {
		_, err := svc.Index(ctx, "@gochannel", 5)
		require.NoError(t, err)
	}
	n, err := f.store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 12, n)
}

func TestIndex_ParallelWorkersGiveSameStats(t *testing.T) {
	f := newFixture(t)
	stats, err := f.indexing(IndexingOptions{Workers: 4}).Index(context.Background(), "@gochannel", 5)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.VideosIndexed)
	assert.Equal(t, 2, stats.VideosSkipped)
	assert.Equal(t, 6, stats.TotalChunks)
	assert.Equal(t, "v4", stats.Skipped[0].VideoID)
}

func TestIndex_FatalErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(f *fixture)
		wantErr error
	}{
		{
			name:    "embedding failure",
			mutate:  func(f *fixture) { f.embedder = failingEmbedder{f.embedder} },
			wantErr: domain.ErrEmbedding,
		},
		{
			name: "unclassified transcript failure",
			mutate: func(f *fixture) {
				f.transcripts.errs = map[string]error{"v2": fmt.Errorf("%w: yt-dlp missing", domain.ErrConfiguration)}
			},
			wantErr: domain.ErrConfiguration,
		},
		{
			name:    "channel not found",
			mutate:  func(f *fixture) { f.lister.err = fmt.Errorf("%w: channel not found", domain.ErrContentSource) },
			wantErr: domain.ErrContentSource,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tt.mutate(f)
			stats, err := f.indexing(IndexingOptions{}).Index(context.Background(), "@gochannel", 5)
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrIndexing)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, domain.IndexStats{}, stats)
		})
	}
}

func TestIndex_FailedReindexKeepsPreviousChunks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.indexing(IndexingOptions{}).Index(ctx, "@gochannel", 5)
	require.NoError(t, err)

	// A different embedding size cannot be stored next to the existing vectors.
	f.embedder, err = hashing.NewEmbedder(32)
	require.NoError(t, err)
	_, err = f.indexing(IndexingOptions{}).Index(ctx, "@gochannel", 5)
	assert.ErrorIs(t, err, domain.ErrIndexing)
	assert.ErrorIs(t, err, domain.ErrVectorStore)

	n, err := f.store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 6, n)

	emb64, err := hashing.NewEmbedder(64)
	require.NoError(t, err)
	res, err := f.store.Search(ctx, mustEmbed(t, emb64, "goroutines are cheap"), 6)
	require.NoError(t, err)
	v1 := 0
	for _, r := range res {
		if r.Metadata.VideoID == "v1" {
			v1++
		}
	}
	assert.Equal(t, 2, v1)
}

// cancellingTranscripts cancels the run on the n-th fetch and reports the
// interruption the way a killed subprocess would.
type cancellingTranscripts struct {
	inner  domain.TranscriptSource
	cancel context.CancelFunc
	at     int
	calls  int
}

func (c *cancellingTranscripts) Fetch(ctx context.Context, videoID string) (string, error) {
	c.calls++
	if c.calls == c.at {
		c.cancel()
		return "", fmt.Errorf("%w: yt-dlp failed for %s: %w", domain.ErrTranscriptUnavailable, videoID, context.Canceled)
	}
	return c.inner.Fetch(ctx, videoID)
}

func TestIndex_CancelledMidRunIsFatal(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	transcripts := &cancellingTranscripts{inner: f.transcripts, cancel: cancel, at: 2}
	svc := NewIndexingService(f.lister, transcripts, lineChunker{}, f.embedder, f.store, IndexingOptions{}, arbor.NewLogger())

	stats, err := svc.Index(ctx, "@gochannel", 5)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrIndexing)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, domain.IndexStats{}, stats)
	assert.Equal(t, 2, transcripts.calls, "no video is fetched after cancellation")
}

func TestClearIndex_ThenAskFindsNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.indexing(IndexingOptions{}).Index(ctx, "@gochannel", 5)
	require.NoError(t, err)

	require.NoError(t, f.indexing(IndexingOptions{}).ClearIndex(ctx))
	n, err := f.store.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	gen := &recordingGenerator{answer: "unused"}
	chat := NewChatService(retriever.NewSimple(f.embedder, f.store, 5, arbor.NewLogger()), gen, "", arbor.NewLogger())
	answer := chat.Ask(ctx, "what are goroutines?", AskOptions{})
	assert.Equal(t, NoResultsAnswer, answer.Answer)
	assert.Empty(t, answer.Sources)
	assert.Zero(t, gen.calls)
}

func TestIndexThenAsk_EndToEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.indexing(IndexingOptions{}).Index(ctx, "@gochannel", 5)
	require.NoError(t, err)

	chat := NewChatService(retriever.NewSimple(f.embedder, f.store, 1, arbor.NewLogger()), extractive.NewGenerator(3), "", arbor.NewLogger())
	answer := chat.Ask(ctx, "interfaces are satisfied implicitly", AskOptions{})
	assert.Equal(t, "interfaces are satisfied implicitly", answer.Answer)
	require.Len(t, answer.Sources, 1)
	assert.Equal(t, "v2", answer.Sources[0].VideoID)
	assert.Equal(t, "Video 2", answer.Sources[0].VideoTitle)
	assert.Equal(t, "Go Channel", answer.Sources[0].ChannelName)
}

func mustEmbed(t *testing.T, e domain.Embedder, text string) []float64 {
	t.Helper()
	v, err := e.Embed(context.Background(), text)
	require.NoError(t, err)
	return v
}

type recordingGenerator struct {
	mu       sync.Mutex
	calls    int
	query    string
	contexts []string
	system   string
	answer   string
	err      error
}

func (g *recordingGenerator) Name() string { return "recording" }

func (g *recordingGenerator) Generate(_ context.Context, query string, contexts []string, systemPrompt string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	g.query, g.contexts, g.system = query, contexts, systemPrompt
	return g.answer, g.err
}
