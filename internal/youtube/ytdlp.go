package youtube

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os/exec"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"tuberag/internal/domain"
)

var _ domain.TranscriptSource = (*YTDLPTranscripts)(nil)

const watchURL = "https://www.youtube.com/watch?v="

// YTDLPConfig configures the yt-dlp transcript source.
type YTDLPConfig struct {
	// Path of the yt-dlp binary, "yt-dlp" when empty.
	Path string
	// Languages in order of preference; ["en"] when empty.
	Languages []string
	Timeout   time.Duration
}

// runFunc runs yt-dlp with args and returns its stdout.
type runFunc func(ctx context.Context, path string, args ...string) ([]byte, error)

// YTDLPTranscripts reads caption tracks through yt-dlp's metadata dump and
// downloads the json3 rendition of the best matching track.
type YTDLPTranscripts struct {
	path      string
	languages []string
	timeout   time.Duration
	client    *http.Client
	run       runFunc
	logger    arbor.ILogger
}

func NewYTDLPTranscripts(cfg YTDLPConfig, logger arbor.ILogger) *YTDLPTranscripts {
	if cfg.Path == "" {
		cfg.Path = "yt-dlp"
	}
	if len(cfg.Languages) == 0 {
		cfg.Languages = []string{"en"}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &YTDLPTranscripts{
		path:      cfg.Path,
		languages: cfg.Languages,
		timeout:   cfg.Timeout,
		client:    &http.Client{Timeout: cfg.Timeout},
		run:       runCommand,
		logger:    logger,
	}
}

func runCommand(ctx context.Context, path string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, path, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%w: %s", err, msg)
		}
		return nil, err
	}
	return out, nil
}

type captionTrack struct {
	Ext string `json:"ext"`
	URL string `json:"url"`
}

type videoInfo struct {
	Subtitles         map[string][]captionTrack `json:"subtitles"`
	AutomaticCaptions map[string][]captionTrack `json:"automatic_captions"`
}

type json3Doc struct {
	Events []struct {
		Segs []struct {
			UTF8 string `json:"utf8"`
		} `json:"segs"`
	} `json:"events"`
}

// Fetch returns the transcript of videoID. Cancellation of ctx is returned as
// is so callers do not mistake an interrupted run for a missing transcript.
func (t *YTDLPTranscripts) Fetch(parent context.Context, videoID string) (string, error) {
	if err := parent.Err(); err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(parent, t.timeout)
	defer cancel()

	out, err := t.run(ctx, t.path, "-J", "--skip-download", "--no-warnings", watchURL+videoID)
	if err != nil {
		if cerr := parent.Err(); cerr != nil {
			return "", fmt.Errorf("yt-dlp for %s: %w", videoID, cerr)
		}
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: yt-dlp binary %q not found: %w", domain.ErrConfiguration, t.path, err)
		}
		return "", fmt.Errorf("%w: yt-dlp failed for %s: %w", domain.ErrTranscriptUnavailable, videoID, err)
	}
	var info videoInfo
	if err := json.Unmarshal(out, &info); err != nil {
		return "", fmt.Errorf("%w: parsing yt-dlp output for %s: %w", domain.ErrTranscriptUnavailable, videoID, err)
	}

	tracks, lang, kind := selectTracks(info, t.languages)
	if tracks == nil {
		return "", fmt.Errorf("%w: no captions found for video %s", domain.ErrTranscriptUnavailable, videoID)
	}
	url := ""
	for _, tr := range tracks {
		if tr.Ext == "json3" {
			url = tr.URL
			break
		}
	}
	if url == "" {
		return "", fmt.Errorf("%w: json3 caption format not available for video %s", domain.ErrTranscriptUnavailable, videoID)
	}

	text, err := t.download(ctx, url)
	if err != nil {
		if cerr := parent.Err(); cerr != nil {
			return "", fmt.Errorf("downloading captions for %s: %w", videoID, cerr)
		}
		return "", fmt.Errorf("%w: downloading captions for %s: %w", domain.ErrTranscriptUnavailable, videoID, err)
	}
	if text == "" {
		return "", fmt.Errorf("%w: transcript is empty for video %s", domain.ErrTranscriptUnavailable, videoID)
	}
	t.logger.Debug().Str("video_id", videoID).Str("language", lang).Str("kind", kind).Int("chars", len(text)).Msg("Fetched transcript")
	return text, nil
}

// selectTracks prefers manual subtitles in the preferred languages, then
// automatic captions in those languages, then automatic English captions.
func selectTracks(info videoInfo, languages []string) ([]captionTrack, string, string) {
	for _, lang := range languages {
		if tracks, ok := info.Subtitles[lang]; ok && len(tracks) > 0 {
			return tracks, lang, "manual"
		}
	}
	for _, lang := range languages {
		if tracks, ok := info.AutomaticCaptions[lang]; ok && len(tracks) > 0 {
			return tracks, lang, "automatic"
		}
	}
	if tracks, ok := info.AutomaticCaptions["en"]; ok && len(tracks) > 0 {
		return tracks, "en", "automatic"
	}
	return nil, "", ""
}

func (t *YTDLPTranscripts) download(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return "", err
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return "", fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return parseJSON3(resp.Body)
}

// parseJSON3 joins the trimmed, non-empty segment texts with single spaces.
func parseJSON3(r io.Reader) (string, error) {
	var doc json3Doc
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return "", fmt.Errorf("decode json3: %w", err)
	}
	var parts []string
	for _, ev := range doc.Events {
		for _, seg := range ev.Segs {
			if text := strings.TrimSpace(seg.UTF8); text != "" {
				parts = append(parts, text)
			}
		}
	}
	return strings.Join(parts, " "), nil
}
