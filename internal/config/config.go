package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"tuberag/internal/domain"
)

// ChunkerConfig configures how transcripts are split into chunks.
type ChunkerConfig struct {
	Type              string `yaml:"type" toml:"type"`
	ChunkSize         int    `yaml:"chunk_size" toml:"chunk_size"`
	ChunkOverlap      int    `yaml:"chunk_overlap" toml:"chunk_overlap"`
	SentencesPerChunk int    `yaml:"sentences_per_chunk" toml:"sentences_per_chunk"`
	OverlapSentences  int    `yaml:"overlap_sentences" toml:"overlap_sentences"`
}

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL     string `yaml:"base_url" toml:"base_url"`
	APIKey      string `yaml:"api_key,omitempty" toml:"api_key,omitempty"`
	APIKeyEnv   string `yaml:"api_key_env" toml:"api_key_env"`
	Model       string `yaml:"model" toml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs" toml:"timeout_secs"`
	BatchSize   int    `yaml:"batch_size" toml:"batch_size"`
	MaxRetries  int    `yaml:"max_retries" toml:"max_retries"`
}

// OllamaEmbedderConfig holds configuration for a locally hosted Ollama model.
type OllamaEmbedderConfig struct {
	BaseURL     string `yaml:"base_url" toml:"base_url"`
	Model       string `yaml:"model" toml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs" toml:"timeout_secs"`
	Dimension   int    `yaml:"dimension" toml:"dimension"`
}

// GeminiEmbedderConfig holds configuration for the Gemini embedder.
type GeminiEmbedderConfig struct {
	APIKey    string `yaml:"api_key,omitempty" toml:"api_key,omitempty"`
	APIKeyEnv string `yaml:"api_key_env" toml:"api_key_env"`
	Model     string `yaml:"model" toml:"model"`
	Dimension int    `yaml:"dimension" toml:"dimension"`
	BatchSize int    `yaml:"batch_size" toml:"batch_size"`
}

// HashingEmbedderConfig configures the offline feature-hashing embedder.
type HashingEmbedderConfig struct {
	Dimension int `yaml:"dimension" toml:"dimension"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type      string                 `yaml:"type" toml:"type"`
	CacheSize int                    `yaml:"cache_size" toml:"cache_size"`
	OpenAI    *OpenAIEmbedderConfig  `yaml:"openai,omitempty" toml:"openai,omitempty"`
	Ollama    *OllamaEmbedderConfig  `yaml:"ollama,omitempty" toml:"ollama,omitempty"`
	Gemini    *GeminiEmbedderConfig  `yaml:"gemini,omitempty" toml:"gemini,omitempty"`
	Hashing   *HashingEmbedderConfig `yaml:"hashing,omitempty" toml:"hashing,omitempty"`
}

// VectorStoreConfig selects and configures the vector store implementation.
type VectorStoreConfig struct {
	Type       string        `yaml:"type" toml:"type"`
	Collection string        `yaml:"collection" toml:"collection"`
	Path       string        `yaml:"path" toml:"path"`
	Qdrant     *QdrantConfig `yaml:"qdrant,omitempty" toml:"qdrant,omitempty"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	URL         string `yaml:"url" toml:"url"`
	APIKey      string `yaml:"api_key" toml:"api_key"`
	TimeoutSecs int    `yaml:"timeout_secs" toml:"timeout_secs"`
}

// RetrievalConfig selects the retriever and its result sizes.
type RetrievalConfig struct {
	Type     string `yaml:"type" toml:"type"`
	K        int    `yaml:"k" toml:"k"`
	InitialK int    `yaml:"initial_k" toml:"initial_k"`
}

// GeneratorConfig selects and configures the answer generator.
type GeneratorConfig struct {
	Type         string  `yaml:"type" toml:"type"`
	Model        string  `yaml:"model" toml:"model"`
	BaseURL      string  `yaml:"base_url,omitempty" toml:"base_url,omitempty"`
	APIKey       string  `yaml:"api_key,omitempty" toml:"api_key,omitempty"`
	APIKeyEnv    string  `yaml:"api_key_env,omitempty" toml:"api_key_env,omitempty"`
	TimeoutSecs  int     `yaml:"timeout_secs" toml:"timeout_secs"`
	MaxTokens    int     `yaml:"max_tokens" toml:"max_tokens"`
	Temperature  float64 `yaml:"temperature" toml:"temperature"`
	SystemPrompt string  `yaml:"system_prompt,omitempty" toml:"system_prompt,omitempty"`
	MaxSentences int     `yaml:"max_sentences" toml:"max_sentences"`
}

// YouTubeConfig configures the YouTube Data API client.
type YouTubeConfig struct {
	APIKey            string  `yaml:"api_key,omitempty" toml:"api_key,omitempty"`
	APIKeyEnv         string  `yaml:"api_key_env" toml:"api_key_env"`
	RequestsPerSecond float64 `yaml:"requests_per_second" toml:"requests_per_second"`
	Burst             int     `yaml:"burst" toml:"burst"`
}

// TranscriptsConfig selects where transcripts come from.
type TranscriptsConfig struct {
	Type        string   `yaml:"type" toml:"type"`
	Dir         string   `yaml:"dir,omitempty" toml:"dir,omitempty"`
	YTDLPPath   string   `yaml:"ytdlp_path" toml:"ytdlp_path"`
	Languages   []string `yaml:"languages" toml:"languages"`
	TimeoutSecs int      `yaml:"timeout_secs" toml:"timeout_secs"`
}

// IndexingConfig tunes indexing runs.
type IndexingConfig struct {
	MaxVideos int `yaml:"max_videos" toml:"max_videos"`
	Workers   int `yaml:"workers" toml:"workers"`
	// AppendOnly keeps chunks from earlier runs instead of replacing them per video.
	AppendOnly bool `yaml:"append_only" toml:"append_only"`
}

// LogConfig configures the console logger.
type LogConfig struct {
	Level      string `yaml:"level" toml:"level"`
	TimeFormat string `yaml:"time_format" toml:"time_format"`
	// File, when set, also writes logs to this path.
	File string `yaml:"file,omitempty" toml:"file,omitempty"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Chunker     ChunkerConfig     `yaml:"chunker" toml:"chunker"`
	Embedder    EmbedderConfig    `yaml:"embedder" toml:"embedder"`
	VectorStore VectorStoreConfig `yaml:"vector_store" toml:"vector_store"`
	Retrieval   RetrievalConfig   `yaml:"retrieval" toml:"retrieval"`
	Generator   GeneratorConfig   `yaml:"generator" toml:"generator"`
	YouTube     YouTubeConfig     `yaml:"youtube" toml:"youtube"`
	Transcripts TranscriptsConfig `yaml:"transcripts" toml:"transcripts"`
	Indexing    IndexingConfig    `yaml:"indexing" toml:"indexing"`
	Log         LogConfig         `yaml:"log" toml:"log"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
// Files ending in .toml are parsed as TOML, everything else as YAML.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := defaultConfig()
			applyConfigDefaults(cfg)
			applyEnv(cfg)
			return cfg, nil
		}
		return nil, err
	}
	var cfg AppConfig
	if isTOML(path) {
		err = toml.Unmarshal(data, &cfg)
	} else {
		err = yaml.Unmarshal(data, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: parse %s: %w", domain.ErrConfiguration, path, err)
	}
	applyConfigDefaults(&cfg)
	applyEnv(&cfg)
	return &cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/tuberag/config.yaml.
// If neither exists, it writes defaults to ~/.config/tuberag/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	for _, cwdPath := range []string{"config.yaml", "config.toml"} {
		if _, err := os.Stat(cwdPath); err == nil {
			cfg, err := Load(cwdPath)
			return cfg, cwdPath, err
		}
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	applyConfigDefaults(cfg)
	applyEnv(cfg)
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
// Secrets resolved from the environment are not written.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	out := *cfg
	out.Generator.APIKey = ""
	out.YouTube.APIKey = ""
	if o := out.Embedder.OpenAI; o != nil {
		c := *o
		c.APIKey = ""
		out.Embedder.OpenAI = &c
	}
	if g := out.Embedder.Gemini; g != nil {
		c := *g
		c.APIKey = ""
		out.Embedder.Gemini = &c
	}
	var (
		data []byte
		err  error
	)
	if isTOML(path) {
		data, err = toml.Marshal(&out)
	} else {
		data, err = yaml.Marshal(&out)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "tuberag", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{
		Chunker:     ChunkerConfig{Type: "recursive", ChunkSize: 1000, ChunkOverlap: 200},
		Embedder:    EmbedderConfig{Type: "hashing", CacheSize: 1024},
		VectorStore: VectorStoreConfig{Type: "sqlite", Collection: "youtube_rag", Path: "./data/tuberag"},
		Retrieval:   RetrievalConfig{Type: "simple", K: 5, InitialK: 20},
		Generator:   GeneratorConfig{Type: "extractive", MaxSentences: 5},
		YouTube:     YouTubeConfig{APIKeyEnv: "YOUTUBE_API_KEY"},
		Transcripts: TranscriptsConfig{Type: "ytdlp", YTDLPPath: "yt-dlp", Languages: []string{"en"}},
		Indexing:    IndexingConfig{MaxVideos: 50, Workers: 1},
		Log:         LogConfig{Level: "info", TimeFormat: "15:04:05"},
	}
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Chunker.Type == "" {
		cfg.Chunker.Type = "recursive"
	}
	if cfg.Chunker.ChunkSize == 0 {
		cfg.Chunker.ChunkSize = 1000
	}
	if cfg.Chunker.ChunkOverlap == 0 && cfg.Chunker.ChunkSize > 200 {
		cfg.Chunker.ChunkOverlap = 200
	}
	if cfg.Chunker.SentencesPerChunk == 0 {
		cfg.Chunker.SentencesPerChunk = 5
	}

	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = "hashing"
	}
	switch cfg.Embedder.Type {
	case "openai":
		if cfg.Embedder.OpenAI == nil {
			cfg.Embedder.OpenAI = &OpenAIEmbedderConfig{}
		}
		o := cfg.Embedder.OpenAI
		if o.BaseURL == "" {
			o.BaseURL = "https://api.openai.com/v1"
		}
		if o.APIKeyEnv == "" {
			o.APIKeyEnv = "OPENAI_API_KEY"
		}
		if o.Model == "" {
			o.Model = "text-embedding-3-small"
		}
		if o.TimeoutSecs == 0 {
			o.TimeoutSecs = 30
		}
		if o.BatchSize == 0 {
			o.BatchSize = 32
		}
		if o.MaxRetries == 0 {
			o.MaxRetries = 5
		}
	case "ollama":
		if cfg.Embedder.Ollama == nil {
			cfg.Embedder.Ollama = &OllamaEmbedderConfig{}
		}
		o := cfg.Embedder.Ollama
		if o.BaseURL == "" {
			o.BaseURL = "http://localhost:11434"
		}
		if o.Model == "" {
			o.Model = "nomic-embed-text"
		}
		if o.TimeoutSecs == 0 {
			o.TimeoutSecs = 30
		}
	case "gemini":
		if cfg.Embedder.Gemini == nil {
			cfg.Embedder.Gemini = &GeminiEmbedderConfig{}
		}
		g := cfg.Embedder.Gemini
		if g.APIKeyEnv == "" {
			g.APIKeyEnv = "GEMINI_API_KEY"
		}
		if g.Model == "" {
			g.Model = "gemini-embedding-001"
		}
		if g.Dimension == 0 {
			g.Dimension = 768
		}
		if g.BatchSize == 0 {
			g.BatchSize = 100
		}
	case "hashing":
		if cfg.Embedder.Hashing == nil {
			cfg.Embedder.Hashing = &HashingEmbedderConfig{}
		}
		if cfg.Embedder.Hashing.Dimension == 0 {
			cfg.Embedder.Hashing.Dimension = 384
		}
	}

	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = "sqlite"
	}
	if cfg.VectorStore.Collection == "" {
		cfg.VectorStore.Collection = "youtube_rag"
	}
	if cfg.VectorStore.Path == "" {
		cfg.VectorStore.Path = "./data/tuberag"
	}
	if cfg.VectorStore.Type == "qdrant" {
		if cfg.VectorStore.Qdrant == nil {
			cfg.VectorStore.Qdrant = &QdrantConfig{}
		}
		if cfg.VectorStore.Qdrant.URL == "" {
			cfg.VectorStore.Qdrant.URL = "http://localhost:6333"
		}
		if cfg.VectorStore.Qdrant.TimeoutSecs == 0 {
			cfg.VectorStore.Qdrant.TimeoutSecs = 15
		}
	}

	if cfg.Retrieval.Type == "" {
		cfg.Retrieval.Type = "simple"
	}
	if cfg.Retrieval.K == 0 {
		cfg.Retrieval.K = 5
	}
	if cfg.Retrieval.InitialK == 0 {
		cfg.Retrieval.InitialK = 20
	}

	if cfg.Generator.Type == "" {
		cfg.Generator.Type = "extractive"
	}
	g := &cfg.Generator
	switch g.Type {
	case "openai":
		if g.Model == "" {
			g.Model = "gpt-4"
		}
		if g.BaseURL == "" {
			g.BaseURL = "https://api.openai.com/v1"
		}
		if g.APIKeyEnv == "" {
			g.APIKeyEnv = "OPENAI_API_KEY"
		}
		if g.Temperature == 0 {
			g.Temperature = 0.7
		}
	case "anthropic":
		if g.Model == "" {
			g.Model = "claude-3-5-sonnet-20241022"
		}
		if g.APIKeyEnv == "" {
			g.APIKeyEnv = "ANTHROPIC_API_KEY"
		}
		if g.MaxTokens == 0 {
			g.MaxTokens = 1024
		}
	case "gemini":
		if g.Model == "" {
			g.Model = "gemini-2.0-flash"
		}
		if g.APIKeyEnv == "" {
			g.APIKeyEnv = "GEMINI_API_KEY"
		}
		if g.Temperature == 0 {
			g.Temperature = 0.7
		}
	}
	if g.TimeoutSecs == 0 {
		g.TimeoutSecs = 120
	}
	if g.MaxSentences == 0 {
		g.MaxSentences = 5
	}

	if cfg.YouTube.APIKeyEnv == "" {
		cfg.YouTube.APIKeyEnv = "YOUTUBE_API_KEY"
	}
	if cfg.YouTube.RequestsPerSecond == 0 {
		cfg.YouTube.RequestsPerSecond = 5
	}
	if cfg.YouTube.Burst == 0 {
		cfg.YouTube.Burst = 10
	}

	if cfg.Transcripts.Type == "" {
		cfg.Transcripts.Type = "ytdlp"
	}
	if cfg.Transcripts.YTDLPPath == "" {
		cfg.Transcripts.YTDLPPath = "yt-dlp"
	}
	if len(cfg.Transcripts.Languages) == 0 {
		cfg.Transcripts.Languages = []string{"en"}
	}
	if cfg.Transcripts.TimeoutSecs == 0 {
		cfg.Transcripts.TimeoutSecs = 60
	}

	if cfg.Indexing.MaxVideos == 0 {
		cfg.Indexing.MaxVideos = 50
	}
	if cfg.Indexing.Workers == 0 {
		cfg.Indexing.Workers = 1
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.TimeFormat == "" {
		cfg.Log.TimeFormat = "15:04:05"
	}
}

// applyEnv applies TUBERAG_* overrides and resolves API keys from the
// environment variables named in the config.
func applyEnv(cfg *AppConfig) {
	if v := os.Getenv("TUBERAG_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("TUBERAG_VECTOR_STORE_PATH"); v != "" {
		cfg.VectorStore.Path = v
	}
	if v := os.Getenv("TUBERAG_COLLECTION"); v != "" {
		cfg.VectorStore.Collection = v
	}
	if v := os.Getenv("TUBERAG_GENERATOR_MODEL"); v != "" {
		cfg.Generator.Model = v
	}

	if o := cfg.Embedder.OpenAI; o != nil && o.APIKey == "" && o.APIKeyEnv != "" {
		o.APIKey = os.Getenv(o.APIKeyEnv)
	}
	if g := cfg.Embedder.Gemini; g != nil && g.APIKey == "" && g.APIKeyEnv != "" {
		g.APIKey = os.Getenv(g.APIKeyEnv)
	}
	if cfg.Generator.APIKey == "" && cfg.Generator.APIKeyEnv != "" {
		cfg.Generator.APIKey = os.Getenv(cfg.Generator.APIKeyEnv)
	}
	if cfg.YouTube.APIKey == "" && cfg.YouTube.APIKeyEnv != "" {
		cfg.YouTube.APIKey = os.Getenv(cfg.YouTube.APIKeyEnv)
	}
}
