package memory

import (
	"context"
	"fmt"
	"sync"

	"tuberag/internal/domain"
	"tuberag/internal/vectorstore"
)

// Storage is a simple in-memory vector store using brute-force cosine similarity.
type Storage struct {
	mu        sync.RWMutex
	dimension int
	entries   []vectorstore.Entry
	byID      map[string]int
	seq       int64
}

func NewStorage() *Storage { return &Storage{byID: make(map[string]int)} }

func (s *Storage) Add(_ context.Context, texts []string, vectors [][]float64, metadatas []domain.Metadata, ids []string) error {
	dim, err := vectorstore.ValidateBatch(texts, vectors, metadatas, ids)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrVectorStore, err)
	}
	if len(texts) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := vectorstore.CheckDimension(s.dimension, dim); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrVectorStore, err)
	}
	s.add(texts, vectors, metadatas, ids, dim)
	return nil
}

// ReplaceBySource swaps every entry of videoID for the given batch under one
// lock. Nothing changes when the batch is rejected.
func (s *Storage) ReplaceBySource(_ context.Context, videoID string, texts []string, vectors [][]float64, metadatas []domain.Metadata) (int, error) {
	dim, err := vectorstore.ValidateBatch(texts, vectors, metadatas, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", domain.ErrVectorStore, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	others := false
	for _, e := range s.entries {
		if e.Metadata.VideoID != videoID {
			others = true
			break
		}
	}
	if others && len(texts) > 0 {
		if err := vectorstore.CheckDimension(s.dimension, dim); err != nil {
			return 0, fmt.Errorf("%w: %w", domain.ErrVectorStore, err)
		}
	}
	removed := s.deleteSource(videoID)
	if len(texts) > 0 {
		s.add(texts, vectors, metadatas, nil, dim)
	}
	return removed, nil
}

// add stores a validated batch. Caller holds the write lock.
func (s *Storage) add(texts []string, vectors [][]float64, metadatas []domain.Metadata, ids []string, dim int) {
	for i := range texts {
		id := ""
		if ids != nil {
			id = ids[i]
		} else {
			id = s.nextID()
		}
		e := vectorstore.Entry{ID: id, Text: texts[i], Vector: clone(vectors[i]), Metadata: metadatas[i]}
		if j, ok := s.byID[id]; ok {
			s.entries[j] = e
			continue
		}
		s.byID[id] = len(s.entries)
		s.entries = append(s.entries, e)
	}
	s.dimension = dim
}

// nextID returns the next unused generated id. Caller holds the write lock.
func (s *Storage) nextID() string {
	for {
		id := vectorstore.FormatID(s.seq)
		s.seq++
		if _, taken := s.byID[id]; !taken {
			return id
		}
	}
}

func (s *Storage) Search(_ context.Context, vector []float64, k int) ([]domain.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.entries) > 0 {
		if err := vectorstore.CheckDimension(s.dimension, len(vector)); err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrVectorStore, err)
		}
	}
	return vectorstore.Rank(vector, s.entries, k), nil
}

func (s *Storage) DeleteBySource(_ context.Context, videoID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteSource(videoID), nil
}

// deleteSource drops the entries of videoID. Caller holds the write lock.
func (s *Storage) deleteSource(videoID string) int {
	kept := s.entries[:0]
	removed := 0
	for _, e := range s.entries {
		if e.Metadata.VideoID == videoID {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	if removed == 0 {
		return 0
	}
	clear(s.entries[len(kept):])
	s.entries = kept
	s.reindex()
	return removed
}

func (s *Storage) Count(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}

// DeleteCollection drops every entry; the store then behaves as a new, empty collection.
func (s *Storage) DeleteCollection(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
	s.byID = make(map[string]int)
	s.dimension = 0
	s.seq = 0
	return nil
}

func (s *Storage) Close() error { return nil }

func (s *Storage) reindex() {
	s.byID = make(map[string]int, len(s.entries))
	for i, e := range s.entries {
		s.byID[e.ID] = i
	}
	if len(s.entries) == 0 {
		s.dimension = 0
	}
}

func clone(v []float64) []float64 {
	out := make([]float64, len(v))
	copy(out, v)
	return out
}
