// Package pipeline runs one end-to-end client generation: load and normalize
// the specification, build and index the corpus, retrieve grounding context,
// assemble the prompt, generate and extract the client code.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mark3labs/spec2client/internal/corpus"
	"github.com/mark3labs/spec2client/internal/extract"
	"github.com/mark3labs/spec2client/internal/index"
	"github.com/mark3labs/spec2client/internal/llm"
	"github.com/mark3labs/spec2client/internal/logger"
	"github.com/mark3labs/spec2client/internal/prompt"
	"github.com/mark3labs/spec2client/internal/spec"
)

// ErrGeneration matches every GenerationError via errors.Is.
var ErrGeneration = errors.New("generation failed")

// GenerationError reports a failed or timed-out generation call.
type GenerationError struct {
	Cause error
}

func (e *GenerationError) Error() string { return fmt.Sprintf("generation failed: %v", e.Cause) }
func (e *GenerationError) Unwrap() error { return e.Cause }
func (e *GenerationError) Is(target error) bool {
	return target == ErrGeneration
}

// StoreFactory creates the vector store for one request.
type StoreFactory func(ctx context.Context) (index.VectorStore, error)

// Config wires the services and limits used by a Generator.
type Config struct {
	Embedder    llm.Embedder
	Generator   llm.Generator
	RetrievalK  int           // documents retrieved per request; defaults to index.DefaultK
	SchemaCap   int           // schema documents kept; defaults to corpus.DefaultSchemaCap
	NewStore    StoreFactory  // defaults to an in-memory store
	Timeout     time.Duration // bounds each embedding and generation call; zero disables
	SpecOptions []spec.Option
}

// Request is one client generation request.
type Request struct {
	SpecLocation    string
	DataDescription string
	OutputShape     string
}

// Result carries the extracted client and what went into producing it.
type Result struct {
	Code      string
	Raw       string
	Prompt    string
	Documents int
	Retrieval index.Retrieval
}

type Generator struct {
	cfg Config
}

// New validates cfg and fills defaults. A zero SchemaCap means the default
// cap; use a negative value to drop schema documents entirely.
func New(cfg Config) (*Generator, error) {
	if cfg.Embedder == nil {
		return nil, errors.New("pipeline: embedder is required")
	}
	if cfg.Generator == nil {
		return nil, errors.New("pipeline: generator is required")
	}
	if cfg.RetrievalK == 0 {
		cfg.RetrievalK = index.DefaultK
	}
	if cfg.RetrievalK < 1 {
		return nil, fmt.Errorf("pipeline: %w (got %d)", index.ErrInvalidK, cfg.RetrievalK)
	}
	if cfg.SchemaCap == 0 {
		cfg.SchemaCap = corpus.DefaultSchemaCap
	}
	if cfg.Timeout < 0 {
		return nil, fmt.Errorf("pipeline: timeout must not be negative")
	}
	if cfg.NewStore == nil {
		cfg.NewStore = func(context.Context) (index.VectorStore, error) { return index.NewMemoryStore(), nil }
	}
	return &Generator{cfg: cfg}, nil
}

// Generate runs the pipeline once. Specification errors and generation
// failures abort the run; embedding and retrieval failures only degrade the
// grounding context.
func (g *Generator) Generate(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.SpecLocation) == "" {
		return nil, errors.New("pipeline: spec location is required")
	}
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		RunID:     uuid.NewString(),
		Spec:      req.SpecLocation,
		Component: "pipeline",
	})

	doc, err := spec.Load(ctx, req.SpecLocation, g.cfg.SpecOptions...)
	if err != nil {
		return nil, err
	}
	model, err := spec.Normalize(doc)
	if err != nil {
		return nil, err
	}
	docs, err := corpus.Build(model, corpus.WithSchemaCap(g.cfg.SchemaCap))
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "corpus built",
		"endpoints", len(model.Endpoints),
		"schemas", len(model.Schemas),
		"documents", len(docs))

	question := prompt.BuildQuestion(req.SpecLocation, req.DataDescription, req.OutputShape)
	retrieval := g.retrieve(ctx, docs, question)

	assembled := prompt.Assemble(retrieval, model.ServerURL, question)

	start := time.Now()
	raw, err := g.generate(ctx, assembled)
	if err != nil {
		return nil, &GenerationError{Cause: err}
	}
	slog.InfoContext(ctx, "generation completed",
		"duration_ms", time.Since(start).Milliseconds(),
		"response_chars", len(raw))

	code, fenced := extract.Client(raw)
	if !fenced {
		slog.DebugContext(ctx, "no fenced code block in response, using full text")
	}
	return &Result{
		Code:      code,
		Raw:       raw,
		Prompt:    assembled,
		Documents: len(docs),
		Retrieval: retrieval,
	}, nil
}

func (g *Generator) retrieve(ctx context.Context, docs []corpus.Document, question string) index.Retrieval {
	embedder := boundEmbedder{Embedder: g.cfg.Embedder, timeout: g.cfg.Timeout}

	var retrieval index.Retrieval
	store, err := g.cfg.NewStore(ctx)
	if err != nil {
		retrieval = index.Degraded(fmt.Errorf("create vector store: %w", err))
	} else {
		idx, err := index.Build(ctx, embedder, docs, store)
		if err != nil {
			_ = store.Close()
			retrieval = index.Degraded(err)
		} else {
			defer func() { _ = idx.Close() }()
			retrieval = idx.Retrieve(ctx, question, g.cfg.RetrievalK)
		}
	}

	if retrieval.Degraded {
		slog.WarnContext(ctx, "retrieval degraded, continuing without grounding context",
			"error", retrieval.Cause)
	} else {
		slog.InfoContext(ctx, "context retrieved",
			"k", g.cfg.RetrievalK,
			"documents", len(retrieval.Documents))
	}
	return retrieval
}

func (g *Generator) generate(ctx context.Context, p string) (string, error) {
	if g.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.cfg.Timeout)
		defer cancel()
	}
	return g.cfg.Generator.Generate(ctx, p)
}

// boundEmbedder applies the service timeout to each embedding call.
type boundEmbedder struct {
	llm.Embedder
	timeout time.Duration
}

func (b boundEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}
	return b.Embedder.Embed(ctx, text)
}
