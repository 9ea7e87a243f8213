// Package chunker splits article text into overlapping token-bounded documents.
package chunker

import (
	"fmt"

	"github.com/c360studio/kbqa/source"
)

// Config holds chunking configuration. Sizes are measured in tokens.
type Config struct {
	// ChunkSize is the maximum number of tokens per chunk.
	ChunkSize int `yaml:"chunk_size"`

	// ChunkOverlap is the number of tokens consecutive chunks share.
	ChunkOverlap int `yaml:"chunk_overlap"`

	// Tokenizer selects the token boundaries: "word" (default) or "cl100k_base".
	Tokenizer string `yaml:"tokenizer"`
}

// DefaultConfig returns the defaults used for KB articles.
func DefaultConfig() Config {
	return Config{
		ChunkSize:    1024,
		ChunkOverlap: 20,
		Tokenizer:    TokenizerWord,
	}
}

// Validate checks if the configuration is valid.
func (c Config) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk_size must be positive, got %d", c.ChunkSize)
	}
	if c.ChunkOverlap < 0 {
		return fmt.Errorf("chunk_overlap must not be negative, got %d", c.ChunkOverlap)
	}
	if c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("chunk_overlap (%d) must be less than chunk_size (%d)", c.ChunkOverlap, c.ChunkSize)
	}
	return nil
}

// Chunker splits text into token windows.
type Chunker struct {
	config    Config
	tokenizer Tokenizer
}

// Option configures a Chunker.
type Option func(*Chunker)

// WithTokenizer overrides the tokenizer selected by Config.Tokenizer.
func WithTokenizer(t Tokenizer) Option {
	return func(c *Chunker) {
		c.tokenizer = t
	}
}

// New creates a new Chunker with the given configuration.
// Returns an error if the configuration is invalid.
func New(cfg Config, opts ...Option) (*Chunker, error) {
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = DefaultConfig().ChunkSize
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Chunker{config: cfg}
	for _, opt := range opts {
		opt(c)
	}

	if c.tokenizer == nil {
		tok, err := NewTokenizer(cfg.Tokenizer)
		if err != nil {
			return nil, err
		}
		c.tokenizer = tok
	}
	return c, nil
}

// MustNew creates a new Chunker, panicking on invalid config.
// Use for known-good configurations.
func MustNew(cfg Config, opts ...Option) *Chunker {
	c, err := New(cfg, opts...)
	if err != nil {
		panic(err)
	}
	return c
}

// NewDefault creates a Chunker with default configuration.
func NewDefault() *Chunker {
	return MustNew(DefaultConfig())
}

// Config returns the chunker configuration.
func (c *Chunker) Config() Config {
	return c.config
}

// Split returns the chunk texts for content.
//
// Content that fits in one chunk is returned verbatim, including empty content.
// Longer content is cut into windows of ChunkSize tokens; each window starts
// ChunkSize-ChunkOverlap tokens after the previous one.
func (c *Chunker) Split(content string) []string {
	spans := c.tokenizer.Tokenize(content)
	if len(spans) <= c.config.ChunkSize {
		return []string{content}
	}

	stride := c.config.ChunkSize - c.config.ChunkOverlap
	var chunks []string
	for start := 0; start < len(spans); start += stride {
		end := min(start+c.config.ChunkSize, len(spans))
		chunks = append(chunks, content[spans[start].Start:spans[end-1].End])
		if end == len(spans) {
			break
		}
	}
	return chunks
}

// Documents splits text and wraps each chunk as a document carrying metadata.
func (c *Chunker) Documents(text string, metadata map[string]string) []source.Document {
	chunks := c.Split(text)
	docs := make([]source.Document, 0, len(chunks))
	for _, chunk := range chunks {
		docs = append(docs, source.NewDocument(chunk, metadata))
	}
	return docs
}
