package config

import (
	"errors"
	"fmt"
	"slices"

	"tuberag/internal/domain"
)

var (
	chunkerTypes     = []string{"recursive", "sentence"}
	embedderTypes    = []string{"openai", "ollama", "gemini", "hashing"}
	vectorStoreTypes = []string{"memory", "sqlite", "badger", "qdrant"}
	retrievalTypes   = []string{"simple", "rerank"}
	generatorTypes   = []string{"openai", "anthropic", "gemini", "extractive"}
	transcriptTypes  = []string{"ytdlp", "dir"}
)

// Validate reports every invalid setting at once, wrapped in ErrConfiguration.
// Credentials are checked only for the providers that are selected.
func (c *AppConfig) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	oneOf := func(field, value string, allowed []string) {
		if !slices.Contains(allowed, value) {
			bad("%s: unknown type %q (want one of %v)", field, value, allowed)
		}
	}
	oneOf("chunker.type", c.Chunker.Type, chunkerTypes)
	oneOf("embedder.type", c.Embedder.Type, embedderTypes)
	oneOf("vector_store.type", c.VectorStore.Type, vectorStoreTypes)
	oneOf("retrieval.type", c.Retrieval.Type, retrievalTypes)
	oneOf("generator.type", c.Generator.Type, generatorTypes)
	oneOf("transcripts.type", c.Transcripts.Type, transcriptTypes)

	switch c.Chunker.Type {
	case "recursive":
		if c.Chunker.ChunkSize <= 0 {
			bad("chunker.chunk_size must be positive, got %d", c.Chunker.ChunkSize)
		}
		if c.Chunker.ChunkOverlap < 0 || c.Chunker.ChunkOverlap >= c.Chunker.ChunkSize {
			bad("chunker.chunk_overlap must be in [0, chunk_size), got %d", c.Chunker.ChunkOverlap)
		}
	case "sentence":
		if c.Chunker.SentencesPerChunk <= 0 {
			bad("chunker.sentences_per_chunk must be positive, got %d", c.Chunker.SentencesPerChunk)
		}
		if c.Chunker.OverlapSentences < 0 || c.Chunker.OverlapSentences >= c.Chunker.SentencesPerChunk {
			bad("chunker.overlap_sentences must be in [0, sentences_per_chunk), got %d", c.Chunker.OverlapSentences)
		}
	}

	switch c.Embedder.Type {
	case "openai":
		if o := c.Embedder.OpenAI; o == nil || o.APIKey == "" {
			bad("embedder.openai: API key missing")
		}
	case "gemini":
		if g := c.Embedder.Gemini; g == nil || g.APIKey == "" {
			bad("embedder.gemini: API key missing")
		}
	case "hashing":
		if c.Embedder.Hashing != nil && c.Embedder.Hashing.Dimension <= 0 {
			bad("embedder.hashing.dimension must be positive")
		}
	}
	if c.Embedder.CacheSize < 0 {
		bad("embedder.cache_size must not be negative")
	}

	if c.VectorStore.Collection == "" {
		bad("vector_store.collection must not be empty")
	}
	if (c.VectorStore.Type == "sqlite" || c.VectorStore.Type == "badger") && c.VectorStore.Path == "" {
		bad("vector_store.path is required for %s", c.VectorStore.Type)
	}

	if c.Retrieval.K <= 0 {
		bad("retrieval.k must be positive, got %d", c.Retrieval.K)
	}
	if c.Retrieval.InitialK <= 0 {
		bad("retrieval.initial_k must be positive, got %d", c.Retrieval.InitialK)
	}

	switch c.Generator.Type {
	case "openai", "anthropic", "gemini":
		if c.Generator.APIKey == "" {
			bad("generator.%s: API key missing (set %s)", c.Generator.Type, c.Generator.APIKeyEnv)
		}
	}

	if c.Transcripts.Type == "dir" && c.Transcripts.Dir == "" {
		bad("transcripts.dir is required for the dir transcript source")
	}

	if c.Indexing.MaxVideos <= 0 {
		bad("indexing.max_videos must be positive, got %d", c.Indexing.MaxVideos)
	}
	if c.Indexing.Workers <= 0 {
		bad("indexing.workers must be positive, got %d", c.Indexing.Workers)
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", domain.ErrConfiguration, errors.Join(errs...))
}
