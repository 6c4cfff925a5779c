// Package app assembles the configured components into the indexing and chat services.
package app

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/ternarybob/arbor"

	"tuberag/internal/chunker"
	"tuberag/internal/config"
	"tuberag/internal/domain"
	"tuberag/internal/embedding"
	"tuberag/internal/embedding/gemini"
	"tuberag/internal/embedding/hashing"
	"tuberag/internal/embedding/ollama"
	"tuberag/internal/embedding/openai"
	"tuberag/internal/generator"
	anthropicgen "tuberag/internal/generator/anthropic"
	"tuberag/internal/generator/extractive"
	geminigen "tuberag/internal/generator/gemini"
	openaigen "tuberag/internal/generator/openai"
	"tuberag/internal/retriever"
	"tuberag/internal/service"
	"tuberag/internal/vectorstore/badger"
	"tuberag/internal/vectorstore/memory"
	"tuberag/internal/vectorstore/qdrant"
	"tuberag/internal/vectorstore/sqlite"
	"tuberag/internal/youtube"
)

// App holds the assembled components. Close releases the vector store.
type App struct {
	Config    *config.AppConfig
	Logger    arbor.ILogger
	Store     domain.VectorStore
	Embedder  domain.Embedder
	Retriever domain.Retriever
	Generator domain.Generator
	Indexing  *service.IndexingService
	Chat      *service.ChatService
}

// Build validates cfg and constructs every component it selects.
// On error nothing is left open.
func Build(ctx context.Context, cfg *config.AppConfig, logger arbor.ILogger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	chk, err := buildChunker(cfg.Chunker)
	if err != nil {
		return nil, err
	}
	emb, err := buildEmbedder(ctx, cfg.Embedder, logger)
	if err != nil {
		return nil, err
	}
	gen, err := buildGenerator(ctx, cfg.Generator, logger)
	if err != nil {
		return nil, err
	}
	lister, err := buildLister(ctx, cfg.YouTube, logger)
	if err != nil {
		return nil, err
	}
	transcripts, err := buildTranscripts(cfg.Transcripts, logger)
	if err != nil {
		return nil, err
	}
	store, err := buildStore(cfg.VectorStore, logger)
	if err != nil {
		return nil, err
	}

	var ret domain.Retriever
	switch cfg.Retrieval.Type {
	case "rerank":
		ret = retriever.NewReranking(emb, store, cfg.Retrieval.K, cfg.Retrieval.InitialK, logger)
	default:
		ret = retriever.NewSimple(emb, store, cfg.Retrieval.K, logger)
	}

	indexing := service.NewIndexingService(lister, transcripts, chk, emb, store, service.IndexingOptions{
		MaxVideos:  cfg.Indexing.MaxVideos,
		Workers:    cfg.Indexing.Workers,
		AppendOnly: cfg.Indexing.AppendOnly,
	}, logger)
	chat := service.NewChatService(ret, gen, cfg.Generator.SystemPrompt, logger)

	logger.Debug().
		Str("chunker", cfg.Chunker.Type).
		Str("embedder", emb.Name()).
		Str("vector_store", cfg.VectorStore.Type).
		Str("collection", cfg.VectorStore.Collection).
		Str("retrieval", cfg.Retrieval.Type).
		Str("generator", gen.Name()).
		Msg("Components assembled")

	return &App{
		Config:    cfg,
		Logger:    logger,
		Store:     store,
		Embedder:  emb,
		Retriever: ret,
		Generator: gen,
		Indexing:  indexing,
		Chat:      chat,
	}, nil
}

// Close releases the vector store.
func (a *App) Close() error {
	if a == nil || a.Store == nil {
		return nil
	}
	return a.Store.Close()
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

func buildChunker(cfg config.ChunkerConfig) (domain.Chunker, error) {
	switch cfg.Type {
	case "sentence":
		return chunker.NewSentenceChunker(cfg.SentencesPerChunk, cfg.OverlapSentences)
	default:
		return chunker.NewRecursiveChunker(cfg.ChunkSize, cfg.ChunkOverlap)
	}
}

func buildEmbedder(ctx context.Context, cfg config.EmbedderConfig, logger arbor.ILogger) (domain.Embedder, error) {
	var emb domain.Embedder
	switch cfg.Type {
	case "openai":
		client, err := openai.NewClient(openai.Config{
			BaseURL:    cfg.OpenAI.BaseURL,
			APIKey:     cfg.OpenAI.APIKey,
			Model:      cfg.OpenAI.Model,
			Timeout:    seconds(cfg.OpenAI.TimeoutSecs),
			BatchSize:  cfg.OpenAI.BatchSize,
			MaxRetries: cfg.OpenAI.MaxRetries,
		}, logger)
		if err != nil {
			return nil, err
		}
		emb = client
	case "ollama":
		emb = ollama.NewEmbedder(ollama.Config{
			BaseURL:   cfg.Ollama.BaseURL,
			Model:     cfg.Ollama.Model,
			Timeout:   seconds(cfg.Ollama.TimeoutSecs),
			Dimension: cfg.Ollama.Dimension,
		})
	case "gemini":
		g, err := gemini.NewEmbedder(ctx, gemini.Config{
			APIKey:    cfg.Gemini.APIKey,
			Model:     cfg.Gemini.Model,
			Dimension: cfg.Gemini.Dimension,
			BatchSize: cfg.Gemini.BatchSize,
		}, logger)
		if err != nil {
			return nil, err
		}
		emb = g
	default:
		dim := hashing.DefaultDimension
		if cfg.Hashing != nil && cfg.Hashing.Dimension > 0 {
			dim = cfg.Hashing.Dimension
		}
		h, err := hashing.NewEmbedder(dim)
		if err != nil {
			return nil, err
		}
		emb = h
	}
	if cfg.CacheSize > 0 {
		return embedding.NewCached(emb, cfg.CacheSize)
	}
	return emb, nil
}

func buildGenerator(ctx context.Context, cfg config.GeneratorConfig, logger arbor.ILogger) (domain.Generator, error) {
	var remote domain.Generator
	switch cfg.Type {
	case "openai":
		g, err := openaigen.NewGenerator(openaigen.Config{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
			Timeout:     seconds(cfg.TimeoutSecs),
		}, logger)
		if err != nil {
			return nil, err
		}
		remote = g
	case "anthropic":
		g, err := anthropicgen.NewGenerator(anthropicgen.Config{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
			Timeout:     seconds(cfg.TimeoutSecs),
		}, logger)
		if err != nil {
			return nil, err
		}
		remote = g
	case "gemini":
		g, err := geminigen.NewGenerator(ctx, geminigen.Config{
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
		}, logger)
		if err != nil {
			return nil, err
		}
		remote = g
	default:
		return extractive.NewGenerator(cfg.MaxSentences), nil
	}
	return generator.NewBreaker(remote, generator.BreakerConfig{}, logger), nil
}

// buildLister returns the Data API lister, or a lister that reports the
// missing key on use so commands that never list videos still work.
func buildLister(ctx context.Context, cfg config.YouTubeConfig, logger arbor.ILogger) (domain.ContentLister, error) {
	if cfg.APIKey == "" {
		return unconfiguredLister{env: cfg.APIKeyEnv}, nil
	}
	return youtube.NewLister(ctx, youtube.ListerConfig{
		APIKey:            cfg.APIKey,
		RequestsPerSecond: cfg.RequestsPerSecond,
		Burst:             cfg.Burst,
	}, logger)
}

type unconfiguredLister struct{ env string }

func (l unconfiguredLister) err() error {
	return fmt.Errorf("%w: YouTube API key missing (set %s)", domain.ErrConfiguration, l.env)
}

func (l unconfiguredLister) ResolveChannel(context.Context, string) (domain.Channel, error) {
	return domain.Channel{}, l.err()
}

func (l unconfiguredLister) ListVideos(context.Context, string, int) ([]domain.Video, error) {
	return nil, l.err()
}

func buildTranscripts(cfg config.TranscriptsConfig, logger arbor.ILogger) (domain.TranscriptSource, error) {
	if cfg.Type == "dir" {
		return youtube.NewDirTranscripts(cfg.Dir)
	}
	return youtube.NewYTDLPTranscripts(youtube.YTDLPConfig{
		Path:      cfg.YTDLPPath,
		Languages: cfg.Languages,
		Timeout:   seconds(cfg.TimeoutSecs),
	}, logger), nil
}

func buildStore(cfg config.VectorStoreConfig, logger arbor.ILogger) (domain.VectorStore, error) {
	switch cfg.Type {
	case "memory":
		return memory.NewStorage(), nil
	case "badger":
		return badger.NewStore(filepath.Join(cfg.Path, "badger"), cfg.Collection, logger)
	case "qdrant":
		if cfg.Qdrant == nil {
			return nil, fmt.Errorf("%w: qdrant config missing", domain.ErrConfiguration)
		}
		return qdrant.NewStorage(qdrant.Config{
			URL:        cfg.Qdrant.URL,
			APIKey:     cfg.Qdrant.APIKey,
			Collection: cfg.Collection,
			Timeout:    seconds(cfg.Qdrant.TimeoutSecs),
		}, logger)
	default:
		return sqlite.NewStore(cfg.Path, cfg.Collection)
	}
}
