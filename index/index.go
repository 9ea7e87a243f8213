// Package index builds a property-graph index from documents and answers
// questions over it. Building extracts (subject, relation, object) triplets
// from every chunk with the extraction model and stores chunks, entities and
// relations with their embeddings. Querying combines keyword and vector
// retrieval of entities, expands them to triplets and synthesizes an answer.
package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/c360studio/kbqa/cache"
	"github.com/c360studio/kbqa/embed"
	"github.com/c360studio/kbqa/graph"
	"github.com/c360studio/kbqa/llm"
	"github.com/c360studio/kbqa/model"
	"github.com/c360studio/kbqa/source"
)

var (
	// ErrLoadFailed is returned by FromExisting when the graph cannot be used.
	ErrLoadFailed = errors.New("load property graph")

	// ErrEmptyGraph is wrapped in ErrLoadFailed when the store holds no nodes.
	ErrEmptyGraph = errors.New("property graph is empty")
)

// Deps are the services an index runs on.
type Deps struct {
	Store    graph.Store
	Embedder embed.Embedder
	LLM      llm.Completer
}

func (d Deps) validate() error {
	if d.Store == nil || d.Embedder == nil || d.LLM == nil {
		return fmt.Errorf("index needs a store, an embedder and an LLM")
	}
	return nil
}

// Recorder receives index and query measurements.
type Recorder interface {
	TripletsExtracted(n int)
	QueryCompleted(elapsed time.Duration, err error)
}

type nopRecorder struct{}

func (nopRecorder) TripletsExtracted(int) {}
func (nopRecorder) QueryCompleted(time.Duration, error) {}

// Index is a property graph plus the services used to grow and query it.
type Index struct {
	deps     Deps
	config   Config
	logger   *slog.Logger
	recorder Recorder
	answers  *cache.Cache
}

// Option configures an Index.
type Option func(*Index)

// WithConfig sets the build configuration.
func WithConfig(cfg Config) Option {
	return func(ix *Index) {
		ix.config = cfg
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(ix *Index) {
		ix.logger = logger
	}
}

// WithRecorder sets the measurement sink.
func WithRecorder(r Recorder) Option {
	return func(ix *Index) {
		ix.recorder = r
	}
}

// WithAnswerCache sets the answer cache that Insert invalidates. Answers
// cached before the graph changed no longer describe it.
func WithAnswerCache(c *cache.Cache) Option {
	return func(ix *Index) {
		ix.answers = c
	}
}

func newIndex(deps Deps, opts []Option) (*Index, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	ix := &Index{
		deps:     deps,
		config:   DefaultConfig(),
		logger:   slog.Default(),
		recorder: nopRecorder{},
	}
	for _, opt := range opts {
		opt(ix)
	}
	if err := ix.config.Validate(); err != nil {
		return nil, fmt.Errorf("index config: %w", err)
	}
	return ix, nil
}

// FromExisting opens an index over a graph built earlier. Any failure to reach
// the store, or an empty store, is reported as ErrLoadFailed.
func FromExisting(ctx context.Context, deps Deps, opts ...Option) (*Index, error) {
	ix, err := newIndex(deps, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadFailed, err)
	}

	if err := deps.Store.Ping(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadFailed, err)
	}
	stats, err := deps.Store.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadFailed, err)
	}
	if stats.Empty() {
		return nil, fmt.Errorf("%w: %w", ErrLoadFailed, ErrEmptyGraph)
	}

	ix.logger.Info("Loaded property graph",
		"chunks", stats.Chunks,
		"entities", stats.Entities,
		"relations", stats.Relations)
	return ix, nil
}

// FromDocuments builds the graph from docs and returns the index with the
// time the build took.
func FromDocuments(ctx context.Context, docs []source.Document, deps Deps, opts ...Option) (*Index, time.Duration, error) {
	ix, err := newIndex(deps, opts)
	if err != nil {
		return nil, 0, err
	}

	start := time.Now()
	if err := ix.Insert(ctx, docs); err != nil {
		return nil, time.Since(start), err
	}
	return ix, time.Since(start), nil
}

// Insert adds documents to the graph, one at a time in order.
func (ix *Index) Insert(ctx context.Context, docs []source.Document) error {
	if len(docs) == 0 {
		ix.logger.Warn("No documents to index")
		return nil
	}

	// Entities are keyed by normalized name so casing variants within one
	// build collapse onto the first spelling seen.
	seen := make(map[string]string)
	total := 0
	for i, doc := range docs {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := ix.insertOne(ctx, doc, seen)
		if err != nil {
			return fmt.Errorf("index document %s: %w", doc.ID, err)
		}
		total += n
		ix.logger.Debug("Indexed document",
			"id", doc.ID,
			"source", doc.Metadata[source.MetaSource],
			"triplets", n,
			"progress", fmt.Sprintf("%d/%d", i+1, len(docs)))
	}

	ix.logger.Info("Built property graph",
		"documents", len(docs),
		"entities", len(seen),
		"triplets", total)
	return ix.invalidateAnswers(ctx)
}

func (ix *Index) invalidateAnswers(ctx context.Context) error {
	if ix.answers == nil {
		return nil
	}
	n, err := ix.answers.DeletePrefix(ctx, cache.AnswerPrefix)
	if err != nil {
		return fmt.Errorf("invalidate cached answers: %w", err)
	}
	ix.logger.Debug("Invalidated cached answers", "count", n)
	return nil
}

func (ix *Index) insertOne(ctx context.Context, doc source.Document, seen map[string]string) (int, error) {
	paths, err := ix.extract(ctx, doc.Text)
	if err != nil {
		return 0, err
	}
	ix.recorder.TripletsExtracted(len(paths))

	// Resolve names and collect the entities first seen in this chunk.
	var fresh []string
	canonical := func(name string) string {
		key := graph.NormalizeName(name)
		if c, ok := seen[key]; ok {
			return c
		}
		seen[key] = name
		fresh = append(fresh, name)
		return name
	}
	relations := make([]graph.Relation, 0, len(paths))
	mentioned := make(map[string]bool)
	var mentions []graph.Relation
	for _, p := range paths {
		subj, obj := canonical(p.Subject), canonical(p.Object)
		relations = append(relations, graph.Relation{
			Label:    p.Relation,
			SourceID: subj,
			TargetID: obj,
			ChunkID:  doc.ID,
		})
		for _, name := range []string{subj, obj} {
			if !mentioned[name] {
				mentioned[name] = true
				mentions = append(mentions, graph.Relation{
					Label:    graph.RelationMentions,
					SourceID: doc.ID,
					TargetID: name,
				})
			}
		}
	}

	vectors, err := ix.deps.Embedder.Embed(ctx, append([]string{doc.Text}, fresh...))
	if err != nil {
		return 0, fmt.Errorf("embed: %w", err)
	}

	chunk := graph.ChunkNode{
		ID:         doc.ID,
		Text:       doc.Text,
		Properties: doc.Metadata,
		Embedding:  vectors[0],
	}
	if err := ix.deps.Store.UpsertChunks(ctx, []graph.ChunkNode{chunk}); err != nil {
		return 0, fmt.Errorf("upsert chunk: %w", err)
	}

	if len(fresh) > 0 {
		entities := make([]graph.EntityNode, len(fresh))
		for i, name := range fresh {
			entities[i] = graph.EntityNode{
				Name:      name,
				Label:     graph.DefaultEntityLabel,
				Embedding: vectors[i+1],
			}
		}
		if err := ix.deps.Store.UpsertEntities(ctx, entities); err != nil {
			return 0, fmt.Errorf("upsert entities: %w", err)
		}
	}

	if len(relations) > 0 {
		if err := ix.deps.Store.UpsertRelations(ctx, append(relations, mentions...)); err != nil {
			return 0, fmt.Errorf("upsert relations: %w", err)
		}
	}
	return len(paths), nil
}

func (ix *Index) extract(ctx context.Context, text string) ([]Path, error) {
	resp, err := ix.deps.LLM.Complete(ctx, llm.Request{
		Capability: model.CapabilityExtraction,
		Messages: []llm.Message{
			{Role: "user", Content: buildExtractionPrompt(text, ix.config.MaxPathsPerChunk)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("extract triplets: %w", err)
	}
	return ParsePaths(resp.Content, ix.config.MaxPathsPerChunk), nil
}

// Stats returns the current graph counts.
func (ix *Index) Stats(ctx context.Context) (graph.Stats, error) {
	return ix.deps.Store.Count(ctx)
}
