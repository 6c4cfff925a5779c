// Package youtube resolves channels, lists their uploads and fetches transcripts.
package youtube

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"

	"tuberag/internal/domain"
)

var _ domain.ContentLister = (*Lister)(nil)

// maxPageSize is the largest page the Data API serves.
const maxPageSize = 50

// ListerConfig configures the Data API client.
type ListerConfig struct {
	APIKey string
	// RequestsPerSecond caps API calls; Burst is the token bucket size.
	RequestsPerSecond float64
	Burst             int
}

// Lister talks to the YouTube Data API v3 with an API key.
type Lister struct {
	svc     *yt.Service
	limiter *rate.Limiter
	logger  arbor.ILogger
}

// NewLister builds the API client. Extra options are appended after the API key.
func NewLister(ctx context.Context, cfg ListerConfig, logger arbor.ILogger, opts ...option.ClientOption) (*Lister, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: youtube: API key is required", domain.ErrConfiguration)
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 5
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 10
	}
	svc, err := yt.NewService(ctx, append([]option.ClientOption{option.WithAPIKey(cfg.APIKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("%w: youtube: create service: %w", domain.ErrConfiguration, err)
	}
	return &Lister{
		svc:     svc,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		logger:  logger,
	}, nil
}

// ResolveChannel finds a channel by handle (with or without the leading @),
// falling back to a channel search when the handle lookup returns nothing.
func (l *Lister) ResolveChannel(ctx context.Context, handle string) (domain.Channel, error) {
	handle = strings.TrimSpace(handle)
	if strings.TrimLeft(handle, "@") == "" {
		return domain.Channel{}, fmt.Errorf("%w: empty channel handle", domain.ErrInvalidInput)
	}
	parts := []string{"snippet", "contentDetails", "statistics"}

	if err := l.limiter.Wait(ctx); err != nil {
		return domain.Channel{}, err
	}
	resp, err := l.svc.Channels.List(parts).ForHandle(strings.TrimLeft(handle, "@")).Context(ctx).Do()
	if err != nil {
		return domain.Channel{}, wrapAPIError("looking up channel "+handle, err)
	}
	if len(resp.Items) == 0 {
		id, err := l.searchChannel(ctx, handle)
		if err != nil {
			return domain.Channel{}, err
		}
		if err := l.limiter.Wait(ctx); err != nil {
			return domain.Channel{}, err
		}
		if resp, err = l.svc.Channels.List(parts).Id(id).Context(ctx).Do(); err != nil {
			return domain.Channel{}, wrapAPIError("fetching channel "+id, err)
		}
		if len(resp.Items) == 0 {
			return domain.Channel{}, fmt.Errorf("%w: channel not found: %s", domain.ErrContentSource, handle)
		}
	}

	ch := toChannel(resp.Items[0])
	l.logger.Info().Str("handle", handle).Str("channel_id", ch.ID).Str("title", ch.Title).Msg("Resolved channel")
	return ch, nil
}

func (l *Lister) searchChannel(ctx context.Context, handle string) (string, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return "", err
	}
	resp, err := l.svc.Search.List([]string{"id"}).Q(handle).Type("channel").MaxResults(1).Context(ctx).Do()
	if err != nil {
		return "", wrapAPIError("searching channel "+handle, err)
	}
	if len(resp.Items) == 0 || resp.Items[0].Id == nil || resp.Items[0].Id.ChannelId == "" {
		return "", fmt.Errorf("%w: channel not found: %s", domain.ErrContentSource, handle)
	}
	return resp.Items[0].Id.ChannelId, nil
}

// ListVideos pages through the channel's uploads playlist until maxVideos
// videos are collected or the playlist ends.
func (l *Lister) ListVideos(ctx context.Context, channelID string, maxVideos int) ([]domain.Video, error) {
	if maxVideos <= 0 {
		return []domain.Video{}, nil
	}
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	chResp, err := l.svc.Channels.List([]string{"contentDetails"}).Id(channelID).Context(ctx).Do()
	if err != nil {
		return nil, wrapAPIError("fetching channel "+channelID, err)
	}
	if len(chResp.Items) == 0 {
		return nil, fmt.Errorf("%w: channel not found: %s", domain.ErrContentSource, channelID)
	}
	uploads := uploadsPlaylist(chResp.Items[0])
	if uploads == "" {
		return nil, fmt.Errorf("%w: channel %s has no uploads playlist", domain.ErrContentSource, channelID)
	}

	videos := make([]domain.Video, 0, maxVideos)
	pageToken := ""
	for len(videos) < maxVideos {
		if err := l.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		call := l.svc.PlaylistItems.List([]string{"contentDetails"}).
			PlaylistId(uploads).
			MaxResults(int64(min(maxPageSize, maxVideos-len(videos))))
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		page, err := call.Context(ctx).Do()
		if err != nil {
			return nil, wrapAPIError("listing uploads of "+channelID, err)
		}

		ids := make([]string, 0, len(page.Items))
		for _, item := range page.Items {
			if item.ContentDetails != nil && item.ContentDetails.VideoId != "" {
				ids = append(ids, item.ContentDetails.VideoId)
			}
		}
		if len(ids) > 0 {
			details, err := l.videoDetails(ctx, ids)
			if err != nil {
				return nil, err
			}
			videos = append(videos, details...)
		}

		pageToken = page.NextPageToken
		if pageToken == "" {
			break
		}
	}
	if len(videos) > maxVideos {
		videos = videos[:maxVideos]
	}
	l.logger.Info().Str("channel_id", channelID).Int("videos", len(videos)).Msg("Listed channel videos")
	return videos, nil
}

// videoDetails fetches snippets for ids, keeping playlist order.
func (l *Lister) videoDetails(ctx context.Context, ids []string) ([]domain.Video, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	resp, err := l.svc.Videos.List([]string{"snippet"}).Id(ids...).Context(ctx).Do()
	if err != nil {
		return nil, wrapAPIError("fetching video details", err)
	}
	byID := make(map[string]*yt.Video, len(resp.Items))
	for _, v := range resp.Items {
		byID[v.Id] = v
	}
	out := make([]domain.Video, 0, len(ids))
	for _, id := range ids {
		v, ok := byID[id]
		if !ok {
			// Private or deleted uploads are listed but have no details.
			l.logger.Debug().Str("video_id", id).Msg("No details for playlist item")
			continue
		}
		video := domain.Video{ID: v.Id}
		if v.Snippet != nil {
			video.Title = v.Snippet.Title
			video.Description = v.Snippet.Description
			video.PublishedAt = v.Snippet.PublishedAt
		}
		out = append(out, video)
	}
	return out, nil
}

func toChannel(c *yt.Channel) domain.Channel {
	ch := domain.Channel{ID: c.Id, UploadsPlaylistID: uploadsPlaylist(c)}
	if c.Snippet != nil {
		ch.Title = c.Snippet.Title
		ch.Description = c.Snippet.Description
	}
	if c.Statistics != nil {
		ch.VideoCount = int64(c.Statistics.VideoCount)
	}
	return ch
}

func uploadsPlaylist(c *yt.Channel) string {
	if c.ContentDetails == nil || c.ContentDetails.RelatedPlaylists == nil {
		return ""
	}
	return c.ContentDetails.RelatedPlaylists.Uploads
}

// wrapAPIError classifies Data API failures as content source errors,
// naming the common causes.
func wrapAPIError(op string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch gerr.Code {
		case http.StatusForbidden:
			return fmt.Errorf("%w: %s: forbidden or quota exceeded: %w", domain.ErrContentSource, op, err)
		case http.StatusTooManyRequests:
			return fmt.Errorf("%w: %s: rate limited: %w", domain.ErrContentSource, op, err)
		case http.StatusNotFound:
			return fmt.Errorf("%w: %s: not found: %w", domain.ErrContentSource, op, err)
		}
	}
	return fmt.Errorf("%w: %s: %w", domain.ErrContentSource, op, err)
}
