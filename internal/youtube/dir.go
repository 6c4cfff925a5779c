package youtube

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"tuberag/internal/domain"
)

var _ domain.TranscriptSource = (*DirTranscripts)(nil)

// DirTranscripts reads pre-fetched transcripts from <dir>/<videoID>.txt.
type DirTranscripts struct {
	dir string
}

func NewDirTranscripts(dir string) (*DirTranscripts, error) {
	if dir == "" {
		return nil, fmt.Errorf("%w: transcripts dir is required", domain.ErrConfiguration)
	}
	return &DirTranscripts{dir: dir}, nil
}

func (d *DirTranscripts) Fetch(ctx context.Context, videoID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if videoID == "" || strings.ContainsAny(videoID, `/\`) || videoID == "." || videoID == ".." {
		return "", fmt.Errorf("%w: bad video id %q", domain.ErrInvalidInput, videoID)
	}
	data, err := os.ReadFile(filepath.Join(d.dir, videoID+".txt"))
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%w: no transcript file for video %s", domain.ErrTranscriptUnavailable, videoID)
	}
	if err != nil {
		return "", fmt.Errorf("reading transcript of %s: %w", videoID, err)
	}
	return string(data), nil
}
