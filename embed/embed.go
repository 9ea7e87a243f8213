// Package embed turns text into vectors through an OpenAI-compatible
// embeddings endpoint.
package embed

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// Embedder maps texts to vectors, one per text, in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
}

// Config configures the embeddings endpoint.
type Config struct {
	// URL is the OpenAI-compatible API base URL.
	URL string `yaml:"url"`

	// Model is the embedding model name sent with every request.
	Model string `yaml:"model"`

	// APIKeyEnv names the environment variable holding the API key.
	APIKeyEnv string `yaml:"api_key_env"`

	// BatchSize bounds the texts sent per request.
	BatchSize int `yaml:"batch_size"`

	Timeout time.Duration `yaml:"timeout"`
}

// DefaultConfig targets a local text-embeddings-inference server with the
// bge-small model.
func DefaultConfig() Config {
	return Config{
		URL:       "http://localhost:8081/v1",
		Model:     "BAAI/bge-small-en-v1.5",
		APIKeyEnv: "EMBEDDING_API_KEY",
		BatchSize: 32,
		Timeout:   60 * time.Second,
	}
}

// Validate checks the config.
func (c Config) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("embedding url is required")
	}
	if c.Model == "" {
		return fmt.Errorf("embedding model is required")
	}
	if c.BatchSize < 0 {
		return fmt.Errorf("embedding batch_size must not be negative")
	}
	return nil
}

// OpenAIEmbedder calls /embeddings with go-openai.
type OpenAIEmbedder struct {
	client    *openai.Client
	model     string
	batchSize int
	logger    *slog.Logger
}

// Option configures an OpenAIEmbedder.
type Option func(*options)

type options struct {
	httpClient *http.Client
	logger     *slog.Logger
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		o.httpClient = c
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// NewOpenAIEmbedder creates an embedder for cfg.
func NewOpenAIEmbedder(cfg Config, opts ...Option) (*OpenAIEmbedder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	var apiKey string
	if cfg.APIKeyEnv != "" {
		apiKey = os.Getenv(cfg.APIKeyEnv)
	}
	clientCfg := openai.DefaultConfig(apiKey)
	clientCfg.BaseURL = cfg.URL
	if o.httpClient != nil {
		clientCfg.HTTPClient = o.httpClient
	} else if cfg.Timeout > 0 {
		clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}

	batch := cfg.BatchSize
	if batch == 0 {
		batch = DefaultConfig().BatchSize
	}

	return &OpenAIEmbedder{
		client:    openai.NewClientWithConfig(clientCfg),
		model:     cfg.Model,
		batchSize: batch,
		logger:    o.logger,
	}, nil
}

// Model returns the embedding model name.
func (e *OpenAIEmbedder) Model() string {
	return e.model
}

// Embed embeds texts in batches.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		end := min(start+e.batchSize, len(texts))
		batch := texts[start:end]

		resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input: batch,
			Model: openai.EmbeddingModel(e.model),
		})
		if err != nil {
			return nil, fmt.Errorf("embed batch %d-%d: %w", start, end, err)
		}
		if len(resp.Data) != len(batch) {
			return nil, fmt.Errorf("embed batch %d-%d: got %d vectors for %d texts",
				start, end, len(resp.Data), len(batch))
		}

		vectors := make([][]float32, len(batch))
		for _, d := range resp.Data {
			if d.Index < 0 || d.Index >= len(batch) {
				return nil, fmt.Errorf("embed batch %d-%d: index %d out of range", start, end, d.Index)
			}
			vectors[d.Index] = d.Embedding
		}
		out = append(out, vectors...)

		e.logger.Debug("Embedded batch", "model", e.model, "texts", len(batch))
	}
	return out, nil
}

// EmbedOne embeds a single text.
func EmbedOne(ctx context.Context, e Embedder, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 || len(vectors[0]) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}
	return vectors[0], nil
}
