// Package vectorstore holds the validation and scoring rules shared by the
// vector store backends.
package vectorstore

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"tuberag/internal/domain"
)

// IDPrefix prefixes generated entry ids.
const IDPrefix = "doc_"

// Entry is one stored chunk.
type Entry struct {
	ID       string
	Text     string
	Vector   []float64
	Metadata domain.Metadata
}

// FormatID returns the generated id for sequence number n.
func FormatID(n int64) string { return IDPrefix + strconv.FormatInt(n, 10) }

// ParseID returns the sequence number of a generated id.
func ParseID(id string) (int64, bool) {
	rest, ok := strings.CutPrefix(id, IDPrefix)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// ValidateBatch checks the arguments of VectorStore.Add and returns the
// common vector dimension of the batch (0 for an empty batch).
func ValidateBatch(texts []string, vectors [][]float64, metadatas []domain.Metadata, ids []string) (int, error) {
	if len(texts) != len(vectors) || len(texts) != len(metadatas) {
		return 0, fmt.Errorf("%w: %d texts, %d vectors, %d metadatas", domain.ErrInvalidInput, len(texts), len(vectors), len(metadatas))
	}
	if ids != nil && len(ids) != len(texts) {
		return 0, fmt.Errorf("%w: %d ids for %d texts", domain.ErrInvalidInput, len(ids), len(texts))
	}
	if len(texts) == 0 {
		return 0, nil
	}
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id == "" {
			return 0, fmt.Errorf("%w: empty id", domain.ErrInvalidInput)
		}
		if _, dup := seen[id]; dup {
			return 0, fmt.Errorf("%w: duplicate id %q in batch", domain.ErrInvalidInput, id)
		}
		seen[id] = struct{}{}
	}
	dim := len(vectors[0])
	if dim == 0 {
		return 0, fmt.Errorf("%w: empty vector", domain.ErrInvalidInput)
	}
	for i, v := range vectors {
		if len(v) != dim {
			return 0, fmt.Errorf("%w: vector %d has dimension %d, want %d", domain.ErrInvalidInput, i, len(v), dim)
		}
	}
	return dim, nil
}

// CheckDimension reports a mismatch between a vector and the collection dimension.
// A collection dimension of 0 means the collection is empty and accepts any size.
func CheckDimension(collection, got int) error {
	if collection != 0 && collection != got {
		return fmt.Errorf("%w: vector dimension %d does not match collection dimension %d", domain.ErrInvalidInput, got, collection)
	}
	return nil
}

// Cosine returns the cosine similarity of a and b, or 0 when either is a zero vector.
func Cosine(a, b []float64) float64 {
	n := min(len(a), len(b))
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Rank scores entries against query and returns the best min(k, len(entries))
// results, best first. Ties keep the order of entries.
func Rank(query []float64, entries []Entry, k int) []domain.SearchResult {
	if k <= 0 || len(entries) == 0 {
		return []domain.SearchResult{}
	}
	results := make([]domain.SearchResult, len(entries))
	for i, e := range entries {
		results[i] = domain.SearchResult{Text: e.Text, Score: Cosine(query, e.Vector), Metadata: e.Metadata}
	}
	slices.SortStableFunc(results, func(a, b domain.SearchResult) int {
		return cmp.Compare(b.Score, a.Score)
	})
	return results[:min(k, len(results))]
}
