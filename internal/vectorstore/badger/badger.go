// Package badger stores vectors in an embedded Badger database through badgerhold.
package badger

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"tuberag/internal/domain"
	"tuberag/internal/vectorstore"
)

// entryRecord is one stored chunk. Order preserves insertion order for ties.
type entryRecord struct {
	Collection string
	ID         string
	VideoID    string
	Order      int64
	Text       string
	Vector     []float64
	Metadata   domain.Metadata
}

// collectionRecord tracks the dimension and id sequence of a collection.
type collectionRecord struct {
	Name      string
	Dimension int
	NextSeq   int64
	NextOrder int64
}

// Store is a VectorStore backed by Badger. Every mutation runs in one Badger transaction.
type Store struct {
	store      *badgerhold.Store
	collection string
	logger     arbor.ILogger
}

// NewStore opens (creating if needed) the Badger database in dir.
func NewStore(dir, collection string, logger arbor.ILogger) (*Store, error) {
	if collection == "" {
		return nil, fmt.Errorf("%w: badger store: empty collection name", domain.ErrConfiguration)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: failed to create database directory: %w", domain.ErrVectorStore, err)
	}

	logger.Debug().Str("path", dir).Str("collection", collection).Msg("Opening Badger vector store")

	options := badgerhold.DefaultOptions
	options.Dir = dir
	options.ValueDir = dir
	options.Logger = nil // Disable default badger logger to use arbor

	store, err := badgerhold.Open(options)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open badger database: %w", domain.ErrVectorStore, err)
	}
	return &Store{store: store, collection: collection, logger: logger}, nil
}

func (s *Store) entryKey(id string) string { return s.collection + "\x00" + id }

func (s *Store) inCollection() *badgerhold.Query {
	return badgerhold.Where("Collection").Eq(s.collection)
}

// loadCollection returns the collection record, creating it when missing.
// A new record continues the sequence after any entries already stored.
func (s *Store) loadCollection(tx *badger.Txn) (collectionRecord, error) {
	var coll collectionRecord
	err := s.store.TxGet(tx, s.collection, &coll)
	if err == nil {
		return coll, nil
	}
	if !errors.Is(err, badgerhold.ErrNotFound) {
		return coll, err
	}
	n, err := s.store.TxCount(tx, &entryRecord{}, s.inCollection())
	if err != nil {
		return coll, err
	}
	return collectionRecord{Name: s.collection, NextSeq: int64(n), NextOrder: int64(n)}, nil
}

func (s *Store) Add(_ context.Context, texts []string, vectors [][]float64, metadatas []domain.Metadata, ids []string) error {
	dim, err := vectorstore.ValidateBatch(texts, vectors, metadatas, ids)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrVectorStore, err)
	}
	if len(texts) == 0 {
		return nil
	}

	err = s.store.Badger().Update(func(tx *badger.Txn) error {
		return s.txAdd(tx, texts, vectors, metadatas, ids, dim)
	})
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrVectorStore, err)
	}
	return nil
}

// ReplaceBySource deletes the entries of videoID and stores the batch in one
// Badger transaction.
func (s *Store) ReplaceBySource(_ context.Context, videoID string, texts []string, vectors [][]float64, metadatas []domain.Metadata) (int, error) {
	dim, err := vectorstore.ValidateBatch(texts, vectors, metadatas, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", domain.ErrVectorStore, err)
	}

	var removed uint64
	err = s.store.Badger().Update(func(tx *badger.Txn) error {
		var err error
		if removed, err = s.txDeleteSource(tx, videoID); err != nil {
			return err
		}
		if len(texts) == 0 {
			return nil
		}
		return s.txAdd(tx, texts, vectors, metadatas, nil, dim)
	})
	if err != nil {
		return 0, fmt.Errorf("%w: replacing entries of %s: %w", domain.ErrVectorStore, videoID, err)
	}
	return int(removed), nil
}

func (s *Store) txAdd(tx *badger.Txn, texts []string, vectors [][]float64, metadatas []domain.Metadata, ids []string, dim int) error {
	coll, err := s.loadCollection(tx)
	if err != nil {
		return err
	}
	if err := vectorstore.CheckDimension(coll.Dimension, dim); err != nil {
		return err
	}
	for i := range texts {
		var id string
		if ids != nil {
			id = ids[i]
		} else if id, err = s.nextID(tx, &coll); err != nil {
			return err
		}
		rec := entryRecord{
			Collection: s.collection,
			ID:         id,
			VideoID:    metadatas[i].VideoID,
			Text:       texts[i],
			Vector:     vectors[i],
			Metadata:   metadatas[i],
		}
		var existing entryRecord
		switch err := s.store.TxGet(tx, s.entryKey(id), &existing); {
		case err == nil:
			rec.Order = existing.Order
		case errors.Is(err, badgerhold.ErrNotFound):
			rec.Order = coll.NextOrder
			coll.NextOrder++
		default:
			return err
		}
		if err := s.store.TxUpsert(tx, s.entryKey(id), &rec); err != nil {
			return fmt.Errorf("saving entry %s: %w", id, err)
		}
	}
	coll.Dimension = dim
	return s.store.TxUpsert(tx, s.collection, &coll)
}

func (s *Store) nextID(tx *badger.Txn, coll *collectionRecord) (string, error) {
	for {
		id := vectorstore.FormatID(coll.NextSeq)
		coll.NextSeq++
		var existing entryRecord
		err := s.store.TxGet(tx, s.entryKey(id), &existing)
		if errors.Is(err, badgerhold.ErrNotFound) {
			return id, nil
		}
		if err != nil {
			return "", err
		}
	}
}

func (s *Store) Search(_ context.Context, vector []float64, k int) ([]domain.SearchResult, error) {
	if k <= 0 {
		return []domain.SearchResult{}, nil
	}
	var records []entryRecord
	if err := s.store.Find(&records, s.inCollection().SortBy("Order")); err != nil {
		return nil, fmt.Errorf("%w: querying entries: %w", domain.ErrVectorStore, err)
	}
	entries := make([]vectorstore.Entry, 0, len(records))
	for _, r := range records {
		if err := vectorstore.CheckDimension(len(r.Vector), len(vector)); err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrVectorStore, err)
		}
		entries = append(entries, vectorstore.Entry{ID: r.ID, Text: r.Text, Vector: r.Vector, Metadata: r.Metadata})
	}
	return vectorstore.Rank(vector, entries, k), nil
}

func (s *Store) DeleteBySource(_ context.Context, videoID string) (int, error) {
	var removed uint64
	err := s.store.Badger().Update(func(tx *badger.Txn) error {
		var err error
		removed, err = s.txDeleteSource(tx, videoID)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("%w: deleting entries of %s: %w", domain.ErrVectorStore, videoID, err)
	}
	if removed > 0 {
		s.logger.Debug().Str("video_id", videoID).Int("removed", int(removed)).Msg("Deleted entries by source")
	}
	return int(removed), nil
}

// txDeleteSource removes the entries of videoID and releases the dimension
// when the collection ends up empty.
func (s *Store) txDeleteSource(tx *badger.Txn, videoID string) (uint64, error) {
	coll, err := s.loadCollection(tx)
	if err != nil {
		return 0, err
	}
	query := s.inCollection().And("VideoID").Eq(videoID)
	removed, err := s.store.TxCount(tx, &entryRecord{}, query)
	if err != nil || removed == 0 {
		return 0, err
	}
	if err := s.store.TxDeleteMatching(tx, &entryRecord{}, s.inCollection().And("VideoID").Eq(videoID)); err != nil {
		return 0, err
	}
	left, err := s.store.TxCount(tx, &entryRecord{}, s.inCollection())
	if err != nil {
		return 0, err
	}
	if left == 0 {
		coll.Dimension = 0
	}
	return removed, s.store.TxUpsert(tx, s.collection, &coll)
}

func (s *Store) Count(context.Context) (int, error) {
	n, err := s.store.Count(&entryRecord{}, s.inCollection())
	if err != nil {
		return 0, fmt.Errorf("%w: counting entries: %w", domain.ErrVectorStore, err)
	}
	return int(n), nil
}

// DeleteCollection removes every entry and the collection record. The next
// write recreates the collection with the id sequence back at zero.
func (s *Store) DeleteCollection(context.Context) error {
	err := s.store.Badger().Update(func(tx *badger.Txn) error {
		if err := s.store.TxDeleteMatching(tx, &entryRecord{}, s.inCollection()); err != nil {
			return err
		}
		err := s.store.TxDelete(tx, s.collection, &collectionRecord{})
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: deleting collection %s: %w", domain.ErrVectorStore, s.collection, err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.store != nil {
		return s.store.Close()
	}
	return nil
}
