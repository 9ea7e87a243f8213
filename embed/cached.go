package embed

import (
	"context"
	"log/slog"

	"github.com/c360studio/kbqa/cache"
)

// CachedEmbedder serves repeated texts from the Redis cache.
type CachedEmbedder struct {
	next   Embedder
	cache  *cache.Cache
	logger *slog.Logger
}

// NewCachedEmbedder wraps next with c. Cache errors are logged and fall
// through to next.
func NewCachedEmbedder(next Embedder, c *cache.Cache, logger *slog.Logger) *CachedEmbedder {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedEmbedder{next: next, cache: c, logger: logger}
}

// Model returns the wrapped model name.
func (c *CachedEmbedder) Model() string {
	return c.next.Model()
}

// Embed returns cached vectors and embeds only the misses.
func (c *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string

	for i, text := range texts {
		var v []float32
		hit, err := c.cache.Get(ctx, cache.EmbeddingKey(c.Model(), text), &v)
		if err != nil {
			c.logger.Warn("Embedding cache read failed", "error", err)
		}
		if hit {
			out[i] = v
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}

	if len(missTexts) == 0 {
		return out, nil
	}

	vectors, err := c.next.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	for j, i := range missIdx {
		out[i] = vectors[j]
		if err := c.cache.Set(ctx, cache.EmbeddingKey(c.Model(), missTexts[j]), vectors[j]); err != nil {
			c.logger.Warn("Failed to cache embedding", "error", err)
		}
	}
	return out, nil
}
