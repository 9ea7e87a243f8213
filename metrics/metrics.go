// Package metrics exposes scrape, index, query and LLM counters to Prometheus.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/c360studio/kbqa/index"
	"github.com/c360studio/kbqa/llm"
	"github.com/c360studio/kbqa/model"
	"github.com/c360studio/kbqa/source/kb"
)

const namespace = "kbqa"

// Config configures the metrics listener.
type Config struct {
	// Addr is the listen address of the /metrics endpoint. Empty disables it.
	Addr string `yaml:"addr"`
}

// Metrics holds every collector on its own registry.
type Metrics struct {
	registry *prometheus.Registry

	articlesScraped   prometheus.Counter
	chunksProduced    prometheus.Counter
	tripletsExtracted prometheus.Counter
	queryDuration     prometheus.Histogram
	queryErrors       prometheus.Counter
	llmDuration       *prometheus.HistogramVec
	llmErrors         *prometheus.CounterVec
}

var (
	_ kb.Recorder    = (*Metrics)(nil)
	_ index.Recorder = (*Metrics)(nil)
	_ llm.Observer   = (*Metrics)(nil)
)

// New creates the collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		articlesScraped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "articles_scraped_total",
			Help:      "KB articles fetched and parsed.",
		}),
		chunksProduced: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_produced_total",
			Help:      "Document chunks produced from scraped articles.",
		}),
		tripletsExtracted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "triplets_extracted_total",
			Help:      "Knowledge triplets extracted while building the graph.",
		}),
		queryDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "Time to answer one question.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
		queryErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "query_errors_total",
			Help:      "Questions that failed to be answered.",
		}),
		llmDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_request_duration_seconds",
			Help:      "LLM completion time including retries and fallback.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 12),
		}, []string{"capability", "model"}),
		llmErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_request_errors_total",
			Help:      "LLM completions that failed, by error class.",
		}, []string{"capability", "class"}),
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ArticleScraped implements kb.Recorder.
func (m *Metrics) ArticleScraped() {
	m.articlesScraped.Inc()
}

// ChunksProduced implements kb.Recorder.
func (m *Metrics) ChunksProduced(n int) {
	m.chunksProduced.Add(float64(n))
}

// TripletsExtracted implements index.Recorder.
func (m *Metrics) TripletsExtracted(n int) {
	m.tripletsExtracted.Add(float64(n))
}

// QueryCompleted implements index.Recorder.
func (m *Metrics) QueryCompleted(elapsed time.Duration, err error) {
	m.queryDuration.Observe(elapsed.Seconds())
	if err != nil {
		m.queryErrors.Inc()
	}
}

// ObserveCompletion implements llm.Observer.
func (m *Metrics) ObserveCompletion(capability model.Capability, modelName string, elapsed time.Duration, err error) {
	if err != nil {
		m.llmErrors.WithLabelValues(capability.String(), errorClass(err)).Inc()
		return
	}
	m.llmDuration.WithLabelValues(capability.String(), modelName).Observe(elapsed.Seconds())
}

func errorClass(err error) string {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	case llm.IsFatal(err):
		return "fatal"
	case llm.IsTransient(err):
		return "transient"
	}
	return "other"
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Serve listens on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	logger.Info("Metrics listener started", "addr", addr)

	select {
	case err := <-errCh:
		return fmt.Errorf("metrics listener: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown metrics listener: %w", err)
		}
		return nil
	}
}
