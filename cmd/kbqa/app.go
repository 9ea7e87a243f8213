package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/c360studio/kbqa/cache"
	"github.com/c360studio/kbqa/config"
	"github.com/c360studio/kbqa/embed"
	"github.com/c360studio/kbqa/graph"
	"github.com/c360studio/kbqa/graph/memory"
	"github.com/c360studio/kbqa/graph/natskv"
	"github.com/c360studio/kbqa/graph/neo4j"
	"github.com/c360studio/kbqa/index"
	"github.com/c360studio/kbqa/llm"
	"github.com/c360studio/kbqa/metrics"
	"github.com/c360studio/kbqa/model"
	"github.com/c360studio/kbqa/report"
	"github.com/c360studio/kbqa/source/chunker"
	"github.com/c360studio/kbqa/source/kb"
)

// App wires the configured services together for one command run.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	stdout  io.Writer
	metrics *metrics.Metrics

	registry *model.Registry
	cache    *cache.Cache
	llm      llm.Completer
	embedder embed.Embedder

	// openStore connects the graph store. Tests replace it.
	openStore func(ctx context.Context) (graph.Store, error)

	// kbOptions are passed to the KB client. Tests point it at a fake site.
	kbOptions []kb.ClientOption
}

// NewApp creates the services the config describes. Nothing that needs the
// graph is connected yet.
func NewApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, stdout io.Writer) (*App, error) {
	a := &App{
		cfg:      cfg,
		logger:   logger,
		stdout:   stdout,
		metrics:  metrics.New(),
		registry: model.NewFromConfig(cfg.Model),
	}
	a.openStore = a.connectStore

	if cfg.Cache.Enabled() {
		c, err := cache.New(ctx, cfg.Cache, cache.WithLogger(logger))
		if err != nil {
			// The cache only saves work; run without it.
			logger.Warn("Cache unavailable, continuing without it", "error", err)
		} else {
			a.cache = c
		}
	}

	a.llm = llm.NewClient(a.registry,
		llm.WithRetryConfig(cfg.Retry),
		llm.WithObserver(a.metrics),
		llm.WithLogger(logger))

	embedder, err := a.newEmbedder()
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	a.embedder = embedder

	return a, nil
}

func (a *App) newEmbedder() (embed.Embedder, error) {
	var e embed.Embedder
	switch a.cfg.Embedding.Provider {
	case config.EmbeddingHash:
		e = embed.HashEmbedder{Dims: a.cfg.Embedding.Dims}
	default:
		oe, err := embed.NewOpenAIEmbedder(a.cfg.Embedding.Config, embed.WithLogger(a.logger))
		if err != nil {
			return nil, fmt.Errorf("create embedder: %w", err)
		}
		e = oe
	}
	if a.cache != nil {
		e = embed.NewCachedEmbedder(e, a.cache, a.logger)
	}
	return e, nil
}

func (a *App) connectStore(ctx context.Context) (graph.Store, error) {
	switch a.cfg.Graph.Backend {
	case config.BackendNATS:
		s, err := natskv.Open(ctx, a.cfg.NATS, a.logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.BackendMemory:
		return memory.New(), nil
	default:
		s, err := neo4j.Open(ctx, a.cfg.Graph.Neo4j, a.logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

// deps connects the store and returns the index dependencies. The caller
// closes the store.
func (a *App) deps(ctx context.Context) (index.Deps, error) {
	store, err := a.openStore(ctx)
	if err != nil {
		return index.Deps{}, fmt.Errorf("open %s graph store: %w", a.cfg.Graph.Backend, err)
	}
	return index.Deps{Store: store, Embedder: a.embedder, LLM: a.llm}, nil
}

func (a *App) indexOptions() []index.Option {
	opts := []index.Option{
		index.WithConfig(a.cfg.Index),
		index.WithLogger(a.logger),
		index.WithRecorder(a.metrics),
	}
	if a.cache != nil {
		opts = append(opts, index.WithAnswerCache(a.cache))
	}
	return opts
}

// queryEngine returns an engine over ix. An unset context window is taken
// from the endpoint that answers questions.
func (a *App) queryEngine(ix *index.Index) (*index.QueryEngine, error) {
	qcfg := a.cfg.Query
	if qcfg.ContextWindow == 0 {
		if ep := a.registry.GetEndpoint(a.registry.Resolve(model.CapabilityAnswering)); ep != nil {
			qcfg.ContextWindow = ep.ContextWindow
		}
	}

	tok, err := chunker.NewTokenizer(a.cfg.Chunk.Tokenizer)
	if err != nil {
		return nil, err
	}
	opts := []index.QueryOption{index.WithTokenizer(tok)}
	if a.cache != nil {
		opts = append(opts, index.WithCache(a.cache))
	}
	return ix.QueryEngine(qcfg, opts...), nil
}

// answerAll prints the banner and one block per question, in order. A
// question that fails is reported in its block and the batch continues.
func (a *App) answerAll(ctx context.Context, engine *index.QueryEngine, qs []string) error {
	p := report.New(a.stdout)
	p.Banner()
	for _, q := range qs {
		if err := ctx.Err(); err != nil {
			return err
		}
		start := time.Now()
		resp, err := engine.Query(ctx, q)
		elapsed := time.Since(start)
		if err != nil {
			a.logger.Error("Query failed", "question", q, "error", err)
			p.Failed(q, err, elapsed)
			continue
		}
		p.Answer(q, resp, elapsed)
	}
	return p.Err()
}

// serveMetrics starts the metrics listener when configured. It stops with ctx.
func (a *App) serveMetrics(ctx context.Context) {
	if a.cfg.Metrics.Addr == "" {
		return
	}
	go func() {
		if err := a.metrics.Serve(ctx, a.cfg.Metrics.Addr, a.logger); err != nil {
			a.logger.Error("Metrics listener failed", "error", err)
		}
	}()
}

// Close reports LLM endpoints that failed during the run and releases the
// cache connection.
func (a *App) Close(context.Context) {
	a.logEndpointHealth()
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.logger.Warn("Close cache", "error", err)
		}
	}
}

func (a *App) logEndpointHealth() {
	for _, name := range a.registry.ListEndpoints() {
		h := a.registry.GetEndpointHealth(name)
		if h == nil || h.FailureCount == 0 {
			continue
		}
		a.logger.Warn("LLM endpoint failing",
			"endpoint", name,
			"failures", h.FailureCount,
			"circuit_open", h.CircuitOpen,
			"last_failure", h.LastFailure)
	}
}

func closeStore(ctx context.Context, store graph.Store, logger *slog.Logger) {
	if err := store.Close(ctx); err != nil {
		logger.Warn("Close graph store", "error", err)
	}
}
