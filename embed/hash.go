package embed

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// HashEmbedder is an offline embedder for dry runs and tests. Each lowercase
// word is hashed into one of Dims buckets and the vector is L2-normalized, so
// texts sharing words have positive cosine similarity.
type HashEmbedder struct {
	Dims int
}

// Model returns "hash".
func (h HashEmbedder) Model() string {
	return "hash"
}

// Embed hashes every text.
func (h HashEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	dims := h.Dims
	if dims <= 0 {
		dims = 64
	}

	out := make([][]float32, len(texts))
	for i, text := range texts {
		v := make([]float32, dims)
		words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsNumber(r)
		})
		for _, w := range words {
			f := fnv.New32a()
			f.Write([]byte(w))
			v[f.Sum32()%uint32(dims)]++
		}
		normalize(v)
		out[i] = v
	}
	return out, nil
}

func normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	norm := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= norm
	}
}
