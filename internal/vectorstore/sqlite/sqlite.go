// Package sqlite stores vectors in a local SQLite database and searches them
// by brute-force cosine similarity.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite" // SQLite driver

	"tuberag/internal/domain"
	"tuberag/internal/vectorstore"
)

const schema = `
CREATE TABLE IF NOT EXISTS collections (
	name      TEXT PRIMARY KEY,
	dimension INTEGER NOT NULL DEFAULT 0,
	next_seq  INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS entries (
	collection TEXT NOT NULL,
	id         TEXT NOT NULL,
	video_id   TEXT NOT NULL,
	content    TEXT NOT NULL,
	embedding  BLOB NOT NULL,
	metadata   TEXT NOT NULL,
	PRIMARY KEY (collection, id)
);
CREATE INDEX IF NOT EXISTS idx_entries_video ON entries (collection, video_id);
`

// Store is a VectorStore backed by SQLite. One database file can hold several
// collections; a Store works on exactly one of them.
type Store struct {
	db         *sql.DB
	path       string
	collection string
	mu         sync.Mutex
}

// NewStore opens (creating if needed) vectors.db under dataDir.
func NewStore(dataDir, collection string) (*Store, error) {
	if collection == "" {
		return nil, fmt.Errorf("%w: sqlite store: empty collection name", domain.ErrConfiguration)
	}
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("%w: creating data directory: %w", domain.ErrVectorStore, err)
	}
	dbPath := filepath.Join(dataDir, "vectors.db")

	// Open database with WAL mode for better concurrency
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("%w: opening database: %w", domain.ErrVectorStore, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: creating schema: %w", domain.ErrVectorStore, err)
	}
	return &Store{db: db, path: dbPath, collection: collection}, nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

func (s *Store) Add(ctx context.Context, texts []string, vectors [][]float64, metadatas []domain.Metadata, ids []string) error {
	dim, err := vectorstore.ValidateBatch(texts, vectors, metadatas, ids)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrVectorStore, err)
	}
	if len(texts) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: beginning transaction: %w", domain.ErrVectorStore, err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := s.insert(ctx, tx, texts, vectors, metadatas, ids, dim); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: committing transaction: %w", domain.ErrVectorStore, err)
	}
	return nil
}

// ReplaceBySource deletes the entries of videoID and inserts the batch in one
// transaction, so a failure keeps the previous entries.
func (s *Store) ReplaceBySource(ctx context.Context, videoID string, texts []string, vectors [][]float64, metadatas []domain.Metadata) (int, error) {
	dim, err := vectorstore.ValidateBatch(texts, vectors, metadatas, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", domain.ErrVectorStore, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: beginning transaction: %w", domain.ErrVectorStore, err)
	}
	defer tx.Rollback() //nolint:errcheck

	removed, err := s.deleteSource(ctx, tx, videoID)
	if err != nil {
		return 0, err
	}
	if len(texts) > 0 {
		if err := s.insert(ctx, tx, texts, vectors, metadatas, nil, dim); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%w: committing transaction: %w", domain.ErrVectorStore, err)
	}
	return removed, nil
}

// insert writes a validated batch inside tx and advances the collection record.
func (s *Store) insert(ctx context.Context, tx *sql.Tx, texts []string, vectors [][]float64, metadatas []domain.Metadata, ids []string, dim int) error {
	collDim, seq, err := s.ensureCollection(ctx, tx)
	if err != nil {
		return err
	}
	if err := vectorstore.CheckDimension(collDim, dim); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrVectorStore, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO entries (collection, id, video_id, content, embedding, metadata)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(collection, id) DO UPDATE SET
			video_id = excluded.video_id,
			content = excluded.content,
			embedding = excluded.embedding,
			metadata = excluded.metadata
	`)
	if err != nil {
		return fmt.Errorf("%w: preparing statement: %w", domain.ErrVectorStore, err)
	}
	defer stmt.Close()

	for i := range texts {
		var id string
		if ids != nil {
			id = ids[i]
		} else if id, seq, err = s.nextID(ctx, tx, seq); err != nil {
			return err
		}
		metadataJSON, err := json.Marshal(metadatas[i])
		if err != nil {
			return fmt.Errorf("%w: marshalling metadata: %w", domain.ErrVectorStore, err)
		}
		if _, err := stmt.ExecContext(ctx, s.collection, id, metadatas[i].VideoID, texts[i],
			float64SliceToBytes(vectors[i]), string(metadataJSON)); err != nil {
			return fmt.Errorf("%w: saving entry %s: %w", domain.ErrVectorStore, id, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `UPDATE collections SET dimension = ?, next_seq = ? WHERE name = ?`, dim, seq, s.collection); err != nil {
		return fmt.Errorf("%w: updating collection: %w", domain.ErrVectorStore, err)
	}
	return nil
}

// ensureCollection creates the collection row on first use. The id sequence
// starts after the entries already present.
func (s *Store) ensureCollection(ctx context.Context, tx *sql.Tx) (dim int, seq int64, err error) {
	_, err = tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO collections (name, dimension, next_seq)
		VALUES (?, 0, (SELECT COUNT(*) FROM entries WHERE collection = ?))
	`, s.collection, s.collection)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: creating collection: %w", domain.ErrVectorStore, err)
	}
	row := tx.QueryRowContext(ctx, `SELECT dimension, next_seq FROM collections WHERE name = ?`, s.collection)
	if err := row.Scan(&dim, &seq); err != nil {
		return 0, 0, fmt.Errorf("%w: reading collection: %w", domain.ErrVectorStore, err)
	}
	return dim, seq, nil
}

func (s *Store) nextID(ctx context.Context, tx *sql.Tx, seq int64) (string, int64, error) {
	for {
		id := vectorstore.FormatID(seq)
		seq++
		var one int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM entries WHERE collection = ? AND id = ?`, s.collection, id).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return id, seq, nil
		}
		if err != nil {
			return "", seq, fmt.Errorf("%w: checking id: %w", domain.ErrVectorStore, err)
		}
	}
}

func (s *Store) Search(ctx context.Context, vector []float64, k int) ([]domain.SearchResult, error) {
	if k <= 0 {
		return []domain.SearchResult{}, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, content, embedding, metadata FROM entries
		WHERE collection = ? ORDER BY rowid
	`, s.collection)
	if err != nil {
		return nil, fmt.Errorf("%w: querying entries: %w", domain.ErrVectorStore, err)
	}
	defer rows.Close()

	var entries []vectorstore.Entry
	for rows.Next() {
		var (
			e            vectorstore.Entry
			blob         []byte
			metadataJSON string
		)
		if err := rows.Scan(&e.ID, &e.Text, &blob, &metadataJSON); err != nil {
			return nil, fmt.Errorf("%w: scanning entry: %w", domain.ErrVectorStore, err)
		}
		if err := json.Unmarshal([]byte(metadataJSON), &e.Metadata); err != nil {
			return nil, fmt.Errorf("%w: entry %s: decoding metadata: %w", domain.ErrVectorStore, e.ID, err)
		}
		e.Vector = bytesToFloat64Slice(blob)
		if err := vectorstore.CheckDimension(len(e.Vector), len(vector)); err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrVectorStore, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating entries: %w", domain.ErrVectorStore, err)
	}
	return vectorstore.Rank(vector, entries, k), nil
}

func (s *Store) DeleteBySource(ctx context.Context, videoID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: beginning transaction: %w", domain.ErrVectorStore, err)
	}
	defer tx.Rollback() //nolint:errcheck

	n, err := s.deleteSource(ctx, tx, videoID)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%w: committing transaction: %w", domain.ErrVectorStore, err)
	}
	return n, nil
}

// deleteSource removes the entries of videoID inside tx. The dimension is
// released when the collection ends up empty.
func (s *Store) deleteSource(ctx context.Context, tx *sql.Tx, videoID string) (int, error) {
	// Keep the id sequence alive before the entries that seed it disappear.
	if _, _, err := s.ensureCollection(ctx, tx); err != nil {
		return 0, err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM entries WHERE collection = ? AND video_id = ?`, s.collection, videoID)
	if err != nil {
		return 0, fmt.Errorf("%w: deleting entries of %s: %w", domain.ErrVectorStore, videoID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", domain.ErrVectorStore, err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE collections SET dimension = 0
		WHERE name = ? AND NOT EXISTS (SELECT 1 FROM entries WHERE collection = ?)
	`, s.collection, s.collection); err != nil {
		return 0, fmt.Errorf("%w: updating collection: %w", domain.ErrVectorStore, err)
	}
	return int(n), nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entries WHERE collection = ?`, s.collection).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: counting entries: %w", domain.ErrVectorStore, err)
	}
	return n, nil
}

// DeleteCollection removes the collection and its entries. The next write
// recreates it empty, with the id sequence back at zero.
func (s *Store) DeleteCollection(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: beginning transaction: %w", domain.ErrVectorStore, err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM entries WHERE collection = ?`, s.collection); err != nil {
		return fmt.Errorf("%w: deleting entries: %w", domain.ErrVectorStore, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM collections WHERE name = ?`, s.collection); err != nil {
		return fmt.Errorf("%w: deleting collection: %w", domain.ErrVectorStore, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: committing transaction: %w", domain.ErrVectorStore, err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func float64SliceToBytes(v []float64) []byte {
	buf := make([]byte, len(v)*8)
	for i, f := range v {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(f))
	}
	return buf
}

func bytesToFloat64Slice(data []byte) []float64 {
	floats := make([]float64, len(data)/8)
	for i := range floats {
		floats[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[i*8:]))
	}
	return floats
}
