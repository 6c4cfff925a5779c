package domain

import "context"

// Metadata identifies the content item a chunk was cut from.
type Metadata struct {
	VideoID     string `json:"video_id"`
	VideoTitle  string `json:"video_title"`
	ChannelID   string `json:"channel_id"`
	ChannelName string `json:"channel_name"`
	PublishedAt string `json:"published_at"`
}

// Chunk is a bounded piece of a transcript used for indexing.
type Chunk struct {
	Text     string
	Index    int
	Metadata Metadata
}

// SearchResult is a stored chunk matched by a similarity search.
// Score is a similarity where higher means closer.
type SearchResult struct {
	Text     string
	Score    float64
	Metadata Metadata
}

// Channel is the parent collection of videos.
type Channel struct {
	ID                string
	Title             string
	Description       string
	UploadsPlaylistID string
	VideoCount        int64
}

// Video is a single content item of a channel.
type Video struct {
	ID          string
	Title       string
	Description string
	PublishedAt string
}

// Source is a video referenced by an answer.
type Source struct {
	VideoTitle  string  `json:"video_title"`
	VideoID     string  `json:"video_id"`
	ChannelName string  `json:"channel_name"`
	Score       float64 `json:"score"`
}

// Answer is the result of a question. Sources never repeat a video.
type Answer struct {
	Answer  string   `json:"answer"`
	Sources []Source `json:"sources"`
}

// SkippedVideo records a video that was not indexed and why.
type SkippedVideo struct {
	VideoID string `json:"video_id"`
	Title   string `json:"title"`
	Reason  string `json:"reason"`
}

// IndexStats summarises an indexing run.
type IndexStats struct {
	ChannelName   string         `json:"channel_name"`
	ChannelID     string         `json:"channel_id"`
	VideosIndexed int            `json:"videos_indexed"`
	VideosSkipped int            `json:"videos_skipped"`
	TotalChunks   int            `json:"total_chunks"`
	Skipped       []SkippedVideo `json:"skipped,omitempty"`
}

// Chunker splits text into chunks, copying meta onto each of them.
type Chunker interface {
	Chunk(text string, meta Metadata) ([]Chunk, error)
}

// Embedder converts free text into a numeric vector representation.
// EmbedBatch must return the same vectors as calling Embed per text, in order.
type Embedder interface {
	Name() string
	Dimension() int
	Embed(ctx context.Context, text string) ([]float64, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float64, error)
}

// VectorStore persists vectors in a named collection and supports similarity search.
type VectorStore interface {
	// Add stores the entries. When ids is nil, ids are generated.
	Add(ctx context.Context, texts []string, vectors [][]float64, metadatas []Metadata, ids []string) error
	// Search returns at most min(k, Count) results, best first.
	Search(ctx context.Context, vector []float64, k int) ([]SearchResult, error)
	// DeleteBySource removes every entry of a video and reports how many were removed.
	DeleteBySource(ctx context.Context, videoID string) (int, error)
	// ReplaceBySource swaps every entry of a video for the new batch, with
	// generated ids. A failed call leaves the old entries in place.
	ReplaceBySource(ctx context.Context, videoID string, texts []string, vectors [][]float64, metadatas []Metadata) (int, error)
	Count(ctx context.Context) (int, error)
	// DeleteCollection drops all entries. Later calls work on a fresh, empty collection.
	DeleteCollection(ctx context.Context) error
	Close() error
}

// Retriever finds the chunks most relevant to a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) ([]SearchResult, error)
}

// Generator writes an answer to query grounded in the context texts.
type Generator interface {
	Name() string
	Generate(ctx context.Context, query string, context []string, systemPrompt string) (string, error)
}

// TranscriptSource fetches the transcript of a video.
// A missing transcript is reported with ErrTranscriptUnavailable.
type TranscriptSource interface {
	Fetch(ctx context.Context, videoID string) (string, error)
}

// ContentLister resolves channels and lists their videos.
type ContentLister interface {
	ResolveChannel(ctx context.Context, handle string) (Channel, error)
	ListVideos(ctx context.Context, channelID string, maxVideos int) ([]Video, error)
}
