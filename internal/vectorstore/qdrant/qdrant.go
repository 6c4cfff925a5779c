package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"

	"tuberag/internal/domain"
	"tuberag/internal/vectorstore"
)

// pointNamespace derives stable point UUIDs from entry ids.
var pointNamespace = uuid.MustParse("6f3c8a52-7d0e-4a8f-9b61-2c4d5e7f8a90")

var errNotFound = errors.New("not found")

// Storage is a minimal REST client to Qdrant.
// It assumes cosine distance and creates the collection on first write.
type Storage struct {
	url        string
	apiKey     string
	collection string
	client     *http.Client
	logger     arbor.ILogger

	mu        sync.Mutex
	dimension int
	seq       int64
	seqReady  bool
}

type Config struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

func NewStorage(cfg Config, logger arbor.ILogger) (*Storage, error) {
	if cfg.URL == "" || cfg.Collection == "" {
		return nil, fmt.Errorf("%w: qdrant store needs a URL and a collection", domain.ErrConfiguration)
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Storage{
		url:        strings.TrimRight(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		client:     &http.Client{Timeout: timeout},
		logger:     logger,
	}, nil
}

// PointID maps an entry id to the UUID used as Qdrant point id.
func PointID(entryID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(entryID)).String()
}

type point struct {
	ID      string         `json:"id"`
	Vector  []float64      `json:"vector,omitempty"`
	Payload map[string]any `json:"payload,omitempty"`
}

func (s *Storage) collectionPath(suffix string) string {
	return fmt.Sprintf("%s/collections/%s%s", s.url, s.collection, suffix)
}

func (s *Storage) Add(ctx context.Context, texts []string, vectors [][]float64, metadatas []domain.Metadata, ids []string) error {
	dim, err := vectorstore.ValidateBatch(texts, vectors, metadatas, ids)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrVectorStore, err)
	}
	if len(texts) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureCollection(ctx, dim); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrVectorStore, err)
	}
	if ids == nil {
		if ids, err = s.generateIDs(ctx, len(texts)); err != nil {
			return fmt.Errorf("%w: %w", domain.ErrVectorStore, err)
		}
	}

	points := buildPoints(texts, vectors, metadatas, ids)
	body := map[string]any{"points": points}
	if err := s.doJSON(ctx, http.MethodPut, s.collectionPath("/points?wait=true"), body, nil); err != nil {
		return fmt.Errorf("%w: upserting %d points: %w", domain.ErrVectorStore, len(points), err)
	}
	return nil
}

func buildPoints(texts []string, vectors [][]float64, metadatas []domain.Metadata, ids []string) []point {
	points := make([]point, len(texts))
	for i := range texts {
		m := metadatas[i]
		points[i] = point{
			ID:     PointID(ids[i]),
			Vector: vectors[i],
			Payload: map[string]any{
				"entry_id":     ids[i],
				"text":         texts[i],
				"video_id":     m.VideoID,
				"video_title":  m.VideoTitle,
				"channel_id":   m.ChannelID,
				"channel_name": m.ChannelName,
				"published_at": m.PublishedAt,
			},
		}
	}
	return points
}

// ReplaceBySource upserts the new points first and then deletes the older
// points of videoID, so a failed upsert leaves the previous entries intact.
func (s *Storage) ReplaceBySource(ctx context.Context, videoID string, texts []string, vectors [][]float64, metadatas []domain.Metadata) (int, error) {
	dim, err := vectorstore.ValidateBatch(texts, vectors, metadatas, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", domain.ErrVectorStore, err)
	}
	if len(texts) == 0 {
		return s.DeleteBySource(ctx, videoID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureCollection(ctx, dim); err != nil {
		return 0, fmt.Errorf("%w: %w", domain.ErrVectorStore, err)
	}
	old, err := s.countSource(ctx, videoID)
	if err != nil {
		return 0, fmt.Errorf("%w: counting points of %s: %w", domain.ErrVectorStore, videoID, err)
	}
	ids, err := s.generateIDs(ctx, len(texts))
	if err != nil {
		return 0, fmt.Errorf("%w: %w", domain.ErrVectorStore, err)
	}
	points := buildPoints(texts, vectors, metadatas, ids)
	if err := s.doJSON(ctx, http.MethodPut, s.collectionPath("/points?wait=true"), map[string]any{"points": points}, nil); err != nil {
		return 0, fmt.Errorf("%w: upserting %d points: %w", domain.ErrVectorStore, len(points), err)
	}
	if old == 0 {
		return 0, nil
	}

	keep := make([]string, len(points))
	for i, p := range points {
		keep[i] = p.ID
	}
	filter := videoFilter(videoID)
	filter["must_not"] = []map[string]any{{"has_id": keep}}
	if err := s.doJSON(ctx, http.MethodPost, s.collectionPath("/points/delete?wait=true"), map[string]any{"filter": filter}, nil); err != nil {
		return 0, fmt.Errorf("%w: deleting old points of %s: %w", domain.ErrVectorStore, videoID, err)
	}
	return old, nil
}

// countSource counts the points of videoID. Caller holds s.mu.
func (s *Storage) countSource(ctx context.Context, videoID string) (int, error) {
	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	body := map[string]any{"filter": videoFilter(videoID), "exact": true}
	if err := s.doJSON(ctx, http.MethodPost, s.collectionPath("/points/count"), body, &resp); err != nil {
		if errors.Is(err, errNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return resp.Result.Count, nil
}

// ensureCollection creates the collection when missing and checks the vector size.
// Caller holds s.mu.
func (s *Storage) ensureCollection(ctx context.Context, dim int) error {
	if s.dimension == 0 {
		var info struct {
			Result struct {
				Config struct {
					Params struct {
						Vectors struct {
							Size int `json:"size"`
						} `json:"vectors"`
					} `json:"params"`
				} `json:"config"`
			} `json:"result"`
		}
		err := s.doJSON(ctx, http.MethodGet, s.collectionPath(""), nil, &info)
		switch {
		case err == nil:
			s.dimension = info.Result.Config.Params.Vectors.Size
		case errors.Is(err, errNotFound):
			body := map[string]any{
				"vectors": map[string]any{
					"size":     dim,
					"distance": "Cosine",
				},
			}
			if err := s.doJSON(ctx, http.MethodPut, s.collectionPath(""), body, nil); err != nil {
				return fmt.Errorf("creating collection: %w", err)
			}
			s.logger.Info().Str("collection", s.collection).Int("dimension", dim).Msg("Created Qdrant collection")
			s.dimension = dim
			s.seq, s.seqReady = 0, true
		default:
			return fmt.Errorf("reading collection: %w", err)
		}
	}
	return vectorstore.CheckDimension(s.dimension, dim)
}

// generateIDs hands out the next n unused doc_<n> ids. The sequence starts at
// the collection size the first time it is needed. Caller holds s.mu.
func (s *Storage) generateIDs(ctx context.Context, n int) ([]string, error) {
	if !s.seqReady {
		count, err := s.count(ctx)
		if err != nil {
			return nil, err
		}
		s.seq, s.seqReady = int64(count), true
	}
	out := make([]string, 0, n)
	for len(out) < n {
		candidates := make([]string, 0, n-len(out))
		for len(candidates) < n-len(out) {
			candidates = append(candidates, vectorstore.FormatID(s.seq))
			s.seq++
		}
		taken, err := s.existing(ctx, candidates)
		if err != nil {
			return nil, err
		}
		for _, id := range candidates {
			if !taken[id] {
				out = append(out, id)
			}
		}
	}
	return out, nil
}

// existing reports which of the entry ids are already stored.
func (s *Storage) existing(ctx context.Context, entryIDs []string) (map[string]bool, error) {
	pointIDs := make([]string, len(entryIDs))
	byPoint := make(map[string]string, len(entryIDs))
	for i, id := range entryIDs {
		pointIDs[i] = PointID(id)
		byPoint[pointIDs[i]] = id
	}
	var resp struct {
		Result []point `json:"result"`
	}
	body := map[string]any{"ids": pointIDs, "with_payload": false, "with_vector": false}
	if err := s.doJSON(ctx, http.MethodPost, s.collectionPath("/points"), body, &resp); err != nil {
		if errors.Is(err, errNotFound) {
			return map[string]bool{}, nil
		}
		return nil, fmt.Errorf("retrieving points: %w", err)
	}
	taken := make(map[string]bool, len(resp.Result))
	for _, p := range resp.Result {
		taken[byPoint[p.ID]] = true
	}
	return taken, nil
}

func (s *Storage) Search(ctx context.Context, vector []float64, k int) ([]domain.SearchResult, error) {
	if k <= 0 {
		return []domain.SearchResult{}, nil
	}
	req := map[string]any{
		"vector":       vector,
		"limit":        k,
		"with_payload": true,
	}
	var resp struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := s.doJSON(ctx, http.MethodPost, s.collectionPath("/points/search"), req, &resp); err != nil {
		if errors.Is(err, errNotFound) {
			return []domain.SearchResult{}, nil
		}
		return nil, fmt.Errorf("%w: search: %w", domain.ErrVectorStore, err)
	}
	results := make([]domain.SearchResult, 0, len(resp.Result))
	for _, r := range resp.Result {
		str := func(key string) string {
			v, _ := r.Payload[key].(string)
			return v
		}
		results = append(results, domain.SearchResult{
			Text:  str("text"),
			Score: r.Score,
			Metadata: domain.Metadata{
				VideoID:     str("video_id"),
				VideoTitle:  str("video_title"),
				ChannelID:   str("channel_id"),
				ChannelName: str("channel_name"),
				PublishedAt: str("published_at"),
			},
		})
	}
	return results, nil
}

func videoFilter(videoID string) map[string]any {
	return map[string]any{
		"must": []map[string]any{
			{"key": "video_id", "match": map[string]any{"value": videoID}},
		},
	}
}

func (s *Storage) DeleteBySource(ctx context.Context, videoID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count, err := s.countSource(ctx, videoID)
	if err != nil {
		return 0, fmt.Errorf("%w: counting points of %s: %w", domain.ErrVectorStore, videoID, err)
	}
	if count == 0 {
		return 0, nil
	}
	if !s.seqReady {
		// Fix the sequence before the entries that seed it disappear.
		total, err := s.count(ctx)
		if err != nil {
			return 0, fmt.Errorf("%w: %w", domain.ErrVectorStore, err)
		}
		s.seq, s.seqReady = int64(total), true
	}
	del := map[string]any{"filter": videoFilter(videoID)}
	if err := s.doJSON(ctx, http.MethodPost, s.collectionPath("/points/delete?wait=true"), del, nil); err != nil {
		return 0, fmt.Errorf("%w: deleting points of %s: %w", domain.ErrVectorStore, videoID, err)
	}
	return count, nil
}

func (s *Storage) Count(ctx context.Context) (int, error) {
	n, err := s.count(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", domain.ErrVectorStore, err)
	}
	return n, nil
}

func (s *Storage) count(ctx context.Context) (int, error) {
	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	err := s.doJSON(ctx, http.MethodPost, s.collectionPath("/points/count"), map[string]any{"exact": true}, &resp)
	if errors.Is(err, errNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("counting points: %w", err)
	}
	return resp.Result.Count, nil
}

// DeleteCollection drops the collection. The next Add creates it again.
func (s *Storage) DeleteCollection(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.doJSON(ctx, http.MethodDelete, s.collectionPath(""), nil, nil)
	if err != nil && !errors.Is(err, errNotFound) {
		return fmt.Errorf("%w: dropping collection %s: %w", domain.ErrVectorStore, s.collection, err)
	}
	s.dimension = 0
	s.seq, s.seqReady = 0, false
	return nil
}

func (s *Storage) Close() error { return nil }

func (s *Storage) doJSON(ctx context.Context, method, url string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return errNotFound
	}
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("qdrant %s %s failed: %s: %s", method, url, resp.Status, strings.TrimSpace(string(msg)))
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
