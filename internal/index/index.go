// Package index embeds a document corpus and answers similarity queries
// against it.
package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mark3labs/spec2client/internal/corpus"
	"github.com/mark3labs/spec2client/internal/llm"
)

// DefaultK is the number of documents retrieved per query.
const DefaultK = 8

// DegradedMessage is the content of the sentinel document returned when
// retrieval fails.
const DegradedMessage = "Error retrieving API documentation. Please try with a simpler query."

// KindDegraded marks the sentinel document.
const KindDegraded corpus.Kind = "retrieval_error"

var ErrInvalidK = errors.New("k must be at least 1")

// Index is built once from a full corpus and never mutated afterwards.
type Index struct {
	embedder llm.Embedder
	store    VectorStore
}

// Build embeds every document and adds it to store. The store is owned by the
// returned Index.
func Build(ctx context.Context, embedder llm.Embedder, docs []corpus.Document, store VectorStore) (*Index, error) {
	if embedder == nil {
		return nil, errors.New("index: nil embedder")
	}
	if store == nil {
		store = NewMemoryStore()
	}

	start := time.Now()
	for _, doc := range docs {
		vec, err := embedder.Embed(ctx, doc.Content)
		if err != nil {
			return nil, fmt.Errorf("embed %s document %s: %w", doc.Kind, doc.ID, err)
		}
		if err := store.Add(ctx, doc, vec); err != nil {
			return nil, fmt.Errorf("store %s document %s: %w", doc.Kind, doc.ID, err)
		}
	}
	slog.DebugContext(ctx, "index built",
		"documents", len(docs),
		"duration_ms", time.Since(start).Milliseconds())
	return &Index{embedder: embedder, store: store}, nil
}

// Len reports the number of indexed documents.
func (idx *Index) Len() int {
	if idx == nil {
		return 0
	}
	return idx.store.Len()
}

func (idx *Index) Close() error {
	if idx == nil {
		return nil
	}
	return idx.store.Close()
}

// Retrieval is the outcome of a query. A degraded retrieval carries only the
// sentinel document and the failure that caused it.
type Retrieval struct {
	Documents []corpus.Document
	Degraded  bool
	Cause     error
}

// Degraded returns the sentinel outcome for cause.
func Degraded(cause error) Retrieval {
	return Retrieval{
		Documents: []corpus.Document{{
			ID:      "retrieval-degraded",
			Kind:    KindDegraded,
			Content: DegradedMessage,
			Tags:    map[string]string{"type": string(KindDegraded)},
		}},
		Degraded: true,
		Cause:    cause,
	}
}

// Retrieve returns the k documents nearest to query, most similar first. If k
// exceeds the corpus size the whole corpus is returned. Failures never
// surface as errors; they produce a degraded Retrieval instead. A nil Index
// always degrades.
func (idx *Index) Retrieve(ctx context.Context, query string, k int) Retrieval {
	if idx == nil {
		return Degraded(errors.New("index not built"))
	}
	if k < 1 {
		return Degraded(ErrInvalidK)
	}

	vec, err := idx.embedder.Embed(ctx, query)
	if err != nil {
		return Degraded(fmt.Errorf("embed query: %w", err))
	}
	docs, err := idx.store.Search(ctx, vec, k)
	if err != nil {
		return Degraded(fmt.Errorf("search: %w", err))
	}
	return Retrieval{Documents: docs}
}
