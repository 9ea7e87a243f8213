// Package config loads the kbqa configuration from layered YAML files.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/c360studio/kbqa/cache"
	"github.com/c360studio/kbqa/embed"
	"github.com/c360studio/kbqa/graph/natskv"
	"github.com/c360studio/kbqa/graph/neo4j"
	"github.com/c360studio/kbqa/index"
	"github.com/c360studio/kbqa/llm"
	"github.com/c360studio/kbqa/metrics"
	"github.com/c360studio/kbqa/model"
	"github.com/c360studio/kbqa/questions"
	"github.com/c360studio/kbqa/source/chunker"
	"github.com/c360studio/kbqa/source/kb"
)

// Graph backends.
const (
	BackendNeo4j  = "neo4j"
	BackendNATS   = "nats"
	BackendMemory = "memory"
)

// Embedding providers.
const (
	EmbeddingOpenAI = "openai"
	EmbeddingHash   = "hash"
)

// Config represents the complete kbqa configuration.
type Config struct {
	KB        kb.Config             `yaml:"kb"`
	Chunk     chunker.Config        `yaml:"chunk"`
	Graph     GraphConfig           `yaml:"graph"`
	NATS      natskv.Config         `yaml:"nats"`
	Model     *model.RegistryConfig `yaml:"model"`
	Retry     llm.RetryConfig       `yaml:"retry"`
	Embedding EmbeddingConfig       `yaml:"embedding"`
	Index     index.Config          `yaml:"index"`
	Query     index.QueryConfig     `yaml:"query"`
	Questions QuestionsConfig       `yaml:"questions"`
	Cache     cache.Config          `yaml:"cache"`
	Metrics   metrics.Config        `yaml:"metrics"`
}

// GraphConfig selects the graph store.
type GraphConfig struct {
	// Backend is "neo4j", "nats" or "memory".
	Backend string       `yaml:"backend"`
	Neo4j   neo4j.Config `yaml:"neo4j"`
}

// EmbeddingConfig selects the embedding model.
type EmbeddingConfig struct {
	// Provider is "openai" for an OpenAI-compatible server or "hash" for the
	// offline hashing embedder.
	Provider     string `yaml:"provider"`
	embed.Config `yaml:",inline"`

	// Dims is the vector size of the hash embedder.
	Dims int `yaml:"dims,omitempty"`
}

// QuestionsConfig configures the question batch.
type QuestionsConfig struct {
	// File is a question file path or doublestar pattern.
	File string `yaml:"file"`

	// Debounce is the quiet period before a watched batch reruns.
	Debounce time.Duration `yaml:"debounce"`
}

// DefaultConfig returns a Config for a local Neo4j, llama.cpp and
// embeddings server.
func DefaultConfig() *Config {
	return &Config{
		KB:    kb.DefaultConfig(),
		Chunk: chunker.DefaultConfig(),
		Graph: GraphConfig{
			Backend: BackendNeo4j,
			Neo4j:   neo4j.DefaultConfig(),
		},
		NATS:  natskv.DefaultConfig(),
		Model: model.DefaultConfig(),
		Retry: llm.DefaultRetryConfig(),
		Embedding: EmbeddingConfig{
			Provider: EmbeddingOpenAI,
			Config:   embed.DefaultConfig(),
		},
		Index: index.DefaultConfig(),
		Query: index.DefaultQueryConfig(),
		Questions: QuestionsConfig{
			File:     questions.DefaultFile,
			Debounce: questions.DefaultDebounce,
		},
		Cache: cache.DefaultConfig(),
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if err := c.KB.Validate(); err != nil {
		return fmt.Errorf("kb: %w", err)
	}
	if err := c.Chunk.Validate(); err != nil {
		return fmt.Errorf("chunk: %w", err)
	}

	switch c.Graph.Backend {
	case BackendNeo4j:
		if err := c.Graph.Neo4j.Validate(); err != nil {
			return fmt.Errorf("graph: %w", err)
		}
	case BackendNATS:
		if err := c.NATS.Validate(); err != nil {
			return fmt.Errorf("nats: %w", err)
		}
	case BackendMemory:
	default:
		return fmt.Errorf("graph.backend must be %s, %s or %s, got %q", BackendNeo4j, BackendNATS, BackendMemory, c.Graph.Backend)
	}

	if c.Model == nil {
		return fmt.Errorf("model is required")
	}
	if err := c.Model.Validate(); err != nil {
		return fmt.Errorf("model: %w", err)
	}
	if c.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("retry.max_attempts must be positive")
	}

	switch c.Embedding.Provider {
	case EmbeddingOpenAI:
		if err := c.Embedding.Config.Validate(); err != nil {
			return err
		}
	case EmbeddingHash:
	default:
		return fmt.Errorf("embedding.provider must be %s or %s, got %q", EmbeddingOpenAI, EmbeddingHash, c.Embedding.Provider)
	}

	if err := c.Index.Validate(); err != nil {
		return fmt.Errorf("index: %w", err)
	}
	if err := c.Query.Validate(); err != nil {
		return fmt.Errorf("query: %w", err)
	}
	if c.Questions.File == "" {
		return fmt.Errorf("questions.file is required")
	}
	if err := c.Cache.Validate(); err != nil {
		return err
	}
	return nil
}

// loadFile loads one configuration file over the defaults.
func loadFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	if err := cfg.mergeFile(path); err != nil {
		return nil, err
	}
	return cfg, nil
}

// mergeFile decodes a YAML file over c. Only keys present in the file
// change; environment references are expanded first.
func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal([]byte(ExpandEnv(string(data))), c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// SaveToFile saves configuration to a YAML file.
func (c *Config) SaveToFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	// The file may hold the KB session and graph password.
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}
