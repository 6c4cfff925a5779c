package youtube

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tuberag/internal/domain"
)

func TestDirTranscripts(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "vid1.txt"), []byte("Transcript one."), 0o644))

	src, err := NewDirTranscripts(dir)
	require.NoError(t, err)
	ctx := context.Background()

	text, err := src.Fetch(ctx, "vid1")
	require.NoError(t, err)
	assert.Equal(t, "Transcript one.", text)

	_, err = src.Fetch(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrTranscriptUnavailable)

	_, err = src.Fetch(ctx, "../vid1")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestNewDirTranscripts_RequiresDir(t *testing.T) {
	_, err := NewDirTranscripts("")
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}
