package index

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/mark3labs/spec2client/internal/corpus"
)

// Store names accepted by NewStore.
const (
	StoreMemory    = "memory"
	StoreSQLiteVec = "sqlite-vec"
)

// VectorStore holds (vector, document) pairs and answers nearest-neighbour
// queries. Search returns documents by decreasing similarity; documents with
// equal similarity keep insertion order.
type VectorStore interface {
	Add(ctx context.Context, doc corpus.Document, vec []float32) error
	Search(ctx context.Context, vec []float32, k int) ([]corpus.Document, error)
	Len() int
	Close() error
}

// NewStore creates an empty store by name. An empty name selects the
// in-memory store.
func NewStore(ctx context.Context, name string) (VectorStore, error) {
	switch name {
	case "", StoreMemory:
		return NewMemoryStore(), nil
	case StoreSQLiteVec:
		return NewSQLiteVecStore(ctx)
	default:
		return nil, fmt.Errorf("unsupported vector store: %s", name)
	}
}

type memoryEntry struct {
	doc corpus.Document
	vec []float32
}

// MemoryStore is a brute-force cosine similarity store.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []memoryEntry
	dim     int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Add(_ context.Context, doc corpus.Document, vec []float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(vec) == 0 {
		return fmt.Errorf("empty vector for document %s", doc.ID)
	}
	if m.dim == 0 {
		m.dim = len(vec)
	} else if len(vec) != m.dim {
		return fmt.Errorf("vector dimension %d does not match store dimension %d", len(vec), m.dim)
	}
	m.entries = append(m.entries, memoryEntry{doc: doc, vec: append([]float32(nil), vec...)})
	return nil
}

func (m *MemoryStore) Search(ctx context.Context, vec []float32, k int) ([]corpus.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.entries) == 0 {
		return []corpus.Document{}, nil
	}
	if len(vec) != m.dim {
		return nil, fmt.Errorf("query dimension %d does not match store dimension %d", len(vec), m.dim)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	type scoredDoc struct {
		doc   corpus.Document
		score float64
	}
	scores := make([]scoredDoc, 0, len(m.entries))
	for _, e := range m.entries {
		scores = append(scores, scoredDoc{doc: e.doc, score: cosineSimilarity(vec, e.vec)})
	}
	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].score > scores[j].score
	})

	if k > len(scores) {
		k = len(scores)
	}
	results := make([]corpus.Document, k)
	for i := 0; i < k; i++ {
		results[i] = scores[i].doc
	}
	return results, nil
}

func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func (m *MemoryStore) Close() error { return nil }

func cosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
