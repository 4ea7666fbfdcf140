package index

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"sync"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3" // Import sqlite3 driver

	"github.com/mark3labs/spec2client/internal/corpus"
)

func init() {
	sqlite_vec.Auto()
}

// SQLiteVecStore keeps documents in an in-memory SQLite database and runs KNN
// queries through a sqlite-vec vec0 table using cosine distance. The
// database lives only as long as the store.
type SQLiteVecStore struct {
	mu   sync.Mutex
	db   *sql.DB
	dim  int
	size int
}

func NewSQLiteVecStore(ctx context.Context) (*SQLiteVecStore, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Every connection to ":memory:" gets its own database.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	const documentsTable = `
	CREATE TABLE documents (
		seq INTEGER PRIMARY KEY,
		id TEXT NOT NULL,
		kind TEXT NOT NULL,
		content TEXT NOT NULL,
		tags TEXT NOT NULL
	);`
	if _, err := db.ExecContext(ctx, documentsTable); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create documents table: %w", err)
	}
	return &SQLiteVecStore{db: db}, nil
}

// serializeFloat32Vector converts a float32 slice to the byte format expected by sqlite-vec
func serializeFloat32Vector(vec []float32) []byte {
	buf := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:(i+1)*4], math.Float32bits(v))
	}
	return buf
}

// ensureVecTable creates the vec0 table on first insert, once the embedding
// dimension is known.
func (s *SQLiteVecStore) ensureVecTable(ctx context.Context, dim int) error {
	if s.dim != 0 {
		if dim != s.dim {
			return fmt.Errorf("vector dimension %d does not match store dimension %d", dim, s.dim)
		}
		return nil
	}
	query := fmt.Sprintf(`CREATE VIRTUAL TABLE vec_documents USING vec0(
		embedding float[%d] distance_metric=cosine
	)`, dim)
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create vec_documents table: %w", err)
	}
	s.dim = dim
	return nil
}

func (s *SQLiteVecStore) Add(ctx context.Context, doc corpus.Document, vec []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(vec) == 0 {
		return fmt.Errorf("empty vector for document %s", doc.ID)
	}
	if err := s.ensureVecTable(ctx, len(vec)); err != nil {
		return err
	}
	tags, err := json.Marshal(doc.Tags)
	if err != nil {
		return fmt.Errorf("failed to encode tags: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	seq := s.size + 1
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO documents (seq, id, kind, content, tags) VALUES (?, ?, ?, ?, ?)`,
		seq, doc.ID, string(doc.Kind), doc.Content, string(tags)); err != nil {
		return fmt.Errorf("failed to insert document metadata: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO vec_documents (rowid, embedding) VALUES (?, ?)`,
		seq, serializeFloat32Vector(vec)); err != nil {
		return fmt.Errorf("failed to insert document vector: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.size = seq
	return nil
}

func (s *SQLiteVecStore) Search(ctx context.Context, vec []float32, k int) ([]corpus.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.size == 0 {
		return []corpus.Document{}, nil
	}
	if len(vec) != s.dim {
		return nil, fmt.Errorf("query dimension %d does not match store dimension %d", len(vec), s.dim)
	}
	if k > s.size {
		k = s.size
	}

	// sqlite-vec requires k inside the MATCH constraint; seq breaks ties so
	// equal distances keep insertion order.
	const query = `
		SELECT d.id, d.kind, d.content, d.tags
		FROM vec_documents v
		JOIN documents d ON d.seq = v.rowid
		WHERE v.embedding MATCH ? AND k = ?
		ORDER BY v.distance, d.seq`

	rows, err := s.db.QueryContext(ctx, query, serializeFloat32Vector(vec), k)
	if err != nil {
		return nil, fmt.Errorf("failed to perform vector search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	results := make([]corpus.Document, 0, k)
	for rows.Next() {
		var doc corpus.Document
		var kind, tags string
		if err := rows.Scan(&doc.ID, &kind, &doc.Content, &tags); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		doc.Kind = corpus.Kind(kind)
		if err := json.Unmarshal([]byte(tags), &doc.Tags); err != nil {
			return nil, fmt.Errorf("failed to decode tags: %w", err)
		}
		results = append(results, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating results: %w", err)
	}
	return results, nil
}

func (s *SQLiteVecStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

func (s *SQLiteVecStore) Close() error {
	return s.db.Close()
}
