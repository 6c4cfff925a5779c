package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"tuberag/internal/config"
	"tuberag/internal/domain"
	"tuberag/internal/embedding"
	"tuberag/internal/embedding/hashing"
	"tuberag/internal/generator"
	"tuberag/internal/generator/extractive"
	"tuberag/internal/retriever"
	"tuberag/internal/service"
)

func loadConfig(t *testing.T, yaml string) *config.AppConfig {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
	cfg, err := config.Load(path)
	require.NoError(t, err)
	return cfg
}

func TestBuild_DefaultsAreOffline(t *testing.T) {
	t.Setenv("YOUTUBE_API_KEY", "")
	cfg := loadConfig(t, "vector_store:\n  path: "+t.TempDir()+"\n")

	a, err := Build(context.Background(), cfg, arbor.NewLogger())
	require.NoError(t, err)
	defer a.Close()

	assert.IsType(t, &hashing.Embedder{}, a.Embedder)
	assert.Equal(t, hashing.DefaultDimension, a.Embedder.Dimension())
	assert.IsType(t, &extractive.Generator{}, a.Generator)
	assert.IsType(t, &retriever.Simple{}, a.Retriever)

	// Without a YouTube key indexing fails on use, not at startup.
	_, err = a.Indexing.Index(context.Background(), "@someone", 1)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
	assert.ErrorIs(t, err, domain.ErrIndexing)

	answer := a.Chat.Ask(context.Background(), "anything?", service.AskOptions{})
	assert.Equal(t, service.NoResultsAnswer, answer.Answer)
}

func TestBuild_SelectsConfiguredVariants(t *testing.T) {
	cfg := loadConfig(t, `
vector_store:
  type: memory
retrieval:
  type: rerank
embedder:
  cache_size: 16
transcripts:
  type: dir
  dir: /tmp/none
`)
	a, err := Build(context.Background(), cfg, arbor.NewLogger())
	require.NoError(t, err)
	defer a.Close()

	assert.IsType(t, &retriever.Reranking{}, a.Retriever)
	assert.IsType(t, &embedding.Cached{}, a.Embedder)
}

func TestBuild_RemoteGeneratorIsWrappedInBreaker(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	cfg := loadConfig(t, "vector_store:\n  type: memory\ngenerator:\n  type: openai\n")

	a, err := Build(context.Background(), cfg, arbor.NewLogger())
	require.NoError(t, err)
	defer a.Close()

	b, ok := a.Generator.(*generator.Breaker)
	require.True(t, ok)
	assert.Equal(t, "openai:gpt-4", b.Name())
}

func TestBuild_RejectsInvalidConfig(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	cfg := loadConfig(t, "vector_store:\n  type: memory\ngenerator:\n  type: anthropic\n")

	a, err := Build(context.Background(), cfg, arbor.NewLogger())
	assert.Nil(t, a)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}
