package index

import "fmt"

// Config controls graph construction.
type Config struct {
	// MaxPathsPerChunk bounds the triplets kept from one extraction call.
	MaxPathsPerChunk int `yaml:"max_paths_per_chunk"`
}

// DefaultConfig returns the build defaults.
func DefaultConfig() Config {
	return Config{MaxPathsPerChunk: 10}
}

// Validate checks the config.
func (c Config) Validate() error {
	if c.MaxPathsPerChunk <= 0 {
		return fmt.Errorf("max_paths_per_chunk must be positive")
	}
	return nil
}

// QueryConfig controls retrieval and answer synthesis.
type QueryConfig struct {
	// IncludeText attaches the source chunk text to the triplets of each source.
	IncludeText bool `yaml:"include_text"`

	// SimilarityTopK is the number of entities taken from the vector retriever.
	SimilarityTopK int `yaml:"similarity_top_k"`

	// MaxKeywords bounds the keywords taken from the keyword retriever.
	MaxKeywords int `yaml:"max_keywords"`

	// PathDepth is the number of relation hops followed from matched entities.
	PathDepth int `yaml:"path_depth"`

	// TripletLimit bounds the triplets retrieved per question.
	TripletLimit int `yaml:"triplet_limit"`

	// ContextWindow is the answering model's context size in tokens.
	// 0 uses DefaultContextBudget as the context budget.
	ContextWindow int `yaml:"context_window"`

	// Headroom is reserved out of ContextWindow for the prompt frame and the answer.
	Headroom int `yaml:"headroom"`

	// DefaultContextBudget is the context budget when ContextWindow is unknown.
	DefaultContextBudget int `yaml:"default_context_budget"`
}

// DefaultQueryConfig returns the query defaults.
func DefaultQueryConfig() QueryConfig {
	return QueryConfig{
		IncludeText:          true,
		SimilarityTopK:       2,
		MaxKeywords:          10,
		PathDepth:            1,
		TripletLimit:         30,
		Headroom:             1024,
		DefaultContextBudget: 3000,
	}
}

// Validate checks the config.
func (c QueryConfig) Validate() error {
	if c.SimilarityTopK <= 0 {
		return fmt.Errorf("similarity_top_k must be positive")
	}
	if c.PathDepth <= 0 {
		return fmt.Errorf("path_depth must be positive")
	}
	if c.TripletLimit <= 0 {
		return fmt.Errorf("triplet_limit must be positive")
	}
	if c.MaxKeywords < 0 || c.ContextWindow < 0 || c.Headroom < 0 || c.DefaultContextBudget < 0 {
		return fmt.Errorf("max_keywords, context_window, headroom and default_context_budget must not be negative")
	}
	return nil
}

// ContextBudget returns the tokens available for retrieved context.
// An explicit window minus headroom wins, then the default budget.
func (c QueryConfig) ContextBudget() int {
	if c.ContextWindow > 0 {
		if b := c.ContextWindow - c.Headroom; b > 0 {
			return b
		}
	}
	return c.DefaultContextBudget
}

// CacheScope names the settings that shape an answer. Cached answers are
// only shared between engines with the same scope.
func (c QueryConfig) CacheScope() string {
	return fmt.Sprintf("text=%t,top_k=%d,keywords=%d,depth=%d,triplets=%d,budget=%d",
		c.IncludeText, c.SimilarityTopK, c.MaxKeywords, c.PathDepth, c.TripletLimit, c.ContextBudget())
}
