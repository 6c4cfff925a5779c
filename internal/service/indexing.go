// Package service implements the indexing (write) and question answering (read) paths.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/sync/errgroup"

	"tuberag/internal/domain"
)

// DefaultMaxVideos is used when Index is called with maxVideos <= 0 and no other default is set.
const DefaultMaxVideos = 50

// IndexingOptions tunes an IndexingService.
type IndexingOptions struct {
	// MaxVideos is the default for Index calls that pass maxVideos <= 0.
	MaxVideos int
	// Workers > 1 indexes videos concurrently.
	Workers int
	// AppendOnly keeps chunks from earlier runs instead of replacing them per video.
	AppendOnly bool
}

// IndexingService fetches a channel's transcripts and stores their embedded chunks.
type IndexingService struct {
	lister      domain.ContentLister
	transcripts domain.TranscriptSource
	chunker     domain.Chunker
	embedder    domain.Embedder
	store       domain.VectorStore
	opts        IndexingOptions
	logger      arbor.ILogger
}

func NewIndexingService(
	lister domain.ContentLister,
	transcripts domain.TranscriptSource,
	chunker domain.Chunker,
	embedder domain.Embedder,
	store domain.VectorStore,
	opts IndexingOptions,
	logger arbor.ILogger,
) *IndexingService {
	if opts.MaxVideos <= 0 {
		opts.MaxVideos = DefaultMaxVideos
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	return &IndexingService{
		lister:      lister,
		transcripts: transcripts,
		chunker:     chunker,
		embedder:    embedder,
		store:       store,
		opts:        opts,
		logger:      logger,
	}
}

// videoOutcome is what happened to one video: either indexed with chunks, or skipped with a reason.
type videoOutcome struct {
	chunks  int
	skipped bool
	reason  string
}

func indexed(chunks int) videoOutcome { return videoOutcome{chunks: chunks} }

func skipped(reason string) videoOutcome { return videoOutcome{skipped: true, reason: reason} }

// progress counts finished videos for logging.
type progress struct {
	mu        sync.Mutex
	total     int
	processed int
	indexed   int
	skipped   int
	chunks    int
}

func (p *progress) record(o videoOutcome) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.processed++
	if o.skipped {
		p.skipped++
	} else {
		p.indexed++
		p.chunks += o.chunks
	}
}

func (p *progress) snapshot() (processed, indexed, skipped, chunks int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.processed, p.indexed, p.skipped, p.chunks
}

// Index resolves the channel, lists up to maxVideos of its uploads and indexes
// each video's transcript. Videos without a transcript are skipped; any other
// failure aborts the run with an ErrIndexing error and no stats.
func (s *IndexingService) Index(ctx context.Context, channelHandle string, maxVideos int) (domain.IndexStats, error) {
	if maxVideos <= 0 {
		maxVideos = s.opts.MaxVideos
	}
	start := time.Now()

	channel, err := s.lister.ResolveChannel(ctx, channelHandle)
	if err != nil {
		s.logger.Error().Err(err).Str("handle", channelHandle).Msg("Failed to resolve channel")
		return domain.IndexStats{}, fmt.Errorf("%w: resolving channel %s: %w", domain.ErrIndexing, channelHandle, err)
	}
	videos, err := s.lister.ListVideos(ctx, channel.ID, maxVideos)
	if err != nil {
		s.logger.Error().Err(err).Str("channel_id", channel.ID).Msg("Failed to list videos")
		return domain.IndexStats{}, fmt.Errorf("%w: listing videos of %s: %w", domain.ErrIndexing, channel.ID, err)
	}
	s.logger.Info().
		Str("channel", channel.Title).
		Str("channel_id", channel.ID).
		Int("videos", len(videos)).
		Int("workers", s.opts.Workers).
		Msg("Indexing channel")

	prog := &progress{total: len(videos)}
	outcomes := make([]videoOutcome, len(videos))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Workers)
	for i, video := range videos {
		g.Go(func() error {
			out, err := s.indexVideo(gctx, channel, video)
			if err != nil {
				return fmt.Errorf("video %s: %w", video.ID, err)
			}
			outcomes[i] = out
			prog.record(out)
			if out.skipped {
				s.logger.Warn().Str("video_id", video.ID).Str("title", video.Title).Str("reason", out.reason).Msg("Skipped video")
			} else {
				s.logger.Info().Str("video_id", video.ID).Str("title", video.Title).Int("chunks", out.chunks).Msg("Indexed video")
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		processed, nIndexed, nSkipped, chunks := prog.snapshot()
		s.logger.Error().
			Err(err).
			Str("channel_id", channel.ID).
			Int("processed", processed).
			Int("total", prog.total).
			Int("indexed", nIndexed).
			Int("skipped", nSkipped).
			Int("chunks", chunks).
			Msg("Indexing aborted")
		return domain.IndexStats{}, fmt.Errorf("%w: %w", domain.ErrIndexing, err)
	}

	stats := domain.IndexStats{ChannelName: channel.Title, ChannelID: channel.ID}
	for i, out := range outcomes {
		if out.skipped {
			stats.VideosSkipped++
			stats.Skipped = append(stats.Skipped, domain.SkippedVideo{VideoID: videos[i].ID, Title: videos[i].Title, Reason: out.reason})
			continue
		}
		stats.VideosIndexed++
		stats.TotalChunks += out.chunks
	}
	s.logger.Info().
		Str("channel", channel.Title).
		Int("indexed", stats.VideosIndexed).
		Int("skipped", stats.VideosSkipped).
		Int("chunks", stats.TotalChunks).
		Dur("elapsed", time.Since(start)).
		Msg("Indexing complete")
	return stats, nil
}

// indexVideo fetches, chunks, embeds and stores one video. A returned error is fatal for the run.
func (s *IndexingService) indexVideo(ctx context.Context, channel domain.Channel, video domain.Video) (videoOutcome, error) {
	if err := ctx.Err(); err != nil {
		return videoOutcome{}, err
	}
	transcript, err := s.transcripts.Fetch(ctx, video.ID)
	if err != nil && ctx.Err() != nil {
		return videoOutcome{}, fmt.Errorf("fetching transcript: %w", ctx.Err())
	}
	if errors.Is(err, domain.ErrTranscriptUnavailable) {
		return skipped(err.Error()), nil
	}
	if err != nil {
		return videoOutcome{}, fmt.Errorf("fetching transcript: %w", err)
	}

	meta := domain.Metadata{
		VideoID:     video.ID,
		VideoTitle:  video.Title,
		ChannelID:   channel.ID,
		ChannelName: channel.Title,
		PublishedAt: video.PublishedAt,
	}
	chunks, err := s.chunker.Chunk(transcript, meta)
	if err != nil {
		return videoOutcome{}, fmt.Errorf("chunking: %w", err)
	}
	if len(chunks) == 0 {
		return skipped("empty transcript"), nil
	}

	texts := make([]string, len(chunks))
	metas := make([]domain.Metadata, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
		metas[i] = ch.Metadata
	}
	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		if !errors.Is(err, domain.ErrEmbedding) {
			err = fmt.Errorf("%w: %w", domain.ErrEmbedding, err)
		}
		return videoOutcome{}, err
	}
	if s.opts.AppendOnly {
		if err := s.store.Add(ctx, texts, vectors, metas, nil); err != nil {
			return videoOutcome{}, err
		}
		return indexed(len(chunks)), nil
	}
	removed, err := s.store.ReplaceBySource(ctx, video.ID, texts, vectors, metas)
	if err != nil {
		return videoOutcome{}, err
	}
	if removed > 0 {
		s.logger.Debug().Str("video_id", video.ID).Int("removed", removed).Msg("Replaced previously indexed chunks")
	}
	return indexed(len(chunks)), nil
}

// ClearIndex deletes every stored chunk of the collection.
func (s *IndexingService) ClearIndex(ctx context.Context) error {
	if err := s.store.DeleteCollection(ctx); err != nil {
		s.logger.Error().Err(err).Msg("Failed to clear index")
		return err
	}
	s.logger.Info().Msg("Index cleared")
	return nil
}

// blank reports whether s has no visible characters.
func blank(s string) bool { return strings.TrimSpace(s) == "" }
