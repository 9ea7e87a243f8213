package index

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/c360studio/kbqa/cache"
	"github.com/c360studio/kbqa/embed"
	"github.com/c360studio/kbqa/graph"
	"github.com/c360studio/kbqa/llm"
	"github.com/c360studio/kbqa/model"
	"github.com/c360studio/kbqa/source/chunker"
)

// EmptyResponse is the answer when retrieval finds nothing.
const EmptyResponse = "Empty Response"

// keywordScore is the score of an entity matched by keyword.
const keywordScore = 1.0

// SourceNode is one retrieved passage backing an answer.
type SourceNode struct {
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata"`
	Score    float64           `json:"score"`
}

// Response is an answer with its sources, best first.
type Response struct {
	Answer  string       `json:"answer"`
	Sources []SourceNode `json:"sources"`
}

// QueryEngine answers questions over an Index.
type QueryEngine struct {
	ix        *Index
	config    QueryConfig
	cache     *cache.Cache
	tokenizer chunker.Tokenizer
	logger    *slog.Logger
}

// QueryOption configures a QueryEngine.
type QueryOption func(*QueryEngine)

// WithCache serves repeated questions from the answer cache.
func WithCache(c *cache.Cache) QueryOption {
	return func(q *QueryEngine) {
		q.cache = c
	}
}

// WithTokenizer sets the tokenizer the context budget is counted with.
func WithTokenizer(t chunker.Tokenizer) QueryOption {
	return func(q *QueryEngine) {
		q.tokenizer = t
	}
}

// QueryEngine returns an engine over the index.
func (ix *Index) QueryEngine(cfg QueryConfig, opts ...QueryOption) *QueryEngine {
	q := &QueryEngine{
		ix:        ix,
		config:    cfg,
		tokenizer: chunker.WordTokenizer{},
		logger:    ix.logger,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Query answers one question.
func (q *QueryEngine) Query(ctx context.Context, question string) (*Response, error) {
	start := time.Now()
	resp, err := q.query(ctx, question)
	q.ix.recorder.QueryCompleted(time.Since(start), err)
	return resp, err
}

func (q *QueryEngine) query(ctx context.Context, question string) (*Response, error) {
	key := cache.AnswerKey(q.config.CacheScope(), question)
	if q.cache != nil {
		var cached Response
		hit, err := q.cache.Get(ctx, key, &cached)
		if err != nil {
			q.logger.Warn("Answer cache read failed", "error", err)
		} else if hit {
			q.logger.Debug("Answer cache hit", "question", question)
			return &cached, nil
		}
	}

	sources, err := q.Retrieve(ctx, question)
	if err != nil {
		return nil, err
	}

	resp := &Response{Answer: EmptyResponse, Sources: sources}
	if len(sources) > 0 {
		answer, err := q.synthesize(ctx, question, sources)
		if err != nil {
			return nil, err
		}
		resp.Answer = answer
	}

	if q.cache != nil {
		if err := q.cache.Set(ctx, key, resp); err != nil {
			q.logger.Warn("Answer cache write failed", "error", err)
		}
	}
	return resp, nil
}

// Retrieve returns the sources for a question without synthesizing an answer.
func (q *QueryEngine) Retrieve(ctx context.Context, question string) ([]SourceNode, error) {
	scores, err := q.seedEntities(ctx, question)
	if err != nil {
		return nil, err
	}
	if len(scores) == 0 {
		return nil, nil
	}

	names := make([]string, 0, len(scores))
	for name := range scores {
		names = append(names, name)
	}
	sort.Strings(names)

	triplets, err := q.ix.deps.Store.Triplets(ctx, names, q.config.PathDepth, q.config.TripletLimit)
	if err != nil {
		return nil, fmt.Errorf("retrieve triplets: %w", err)
	}
	q.logger.Debug("Retrieved triplets",
		"question", question,
		"entities", len(names),
		"triplets", len(triplets))
	if len(triplets) == 0 {
		return nil, nil
	}

	return q.assemble(ctx, triplets, scores)
}

// seedEntities unions the keyword and vector retrievers, keeping the best
// score per entity name.
func (q *QueryEngine) seedEntities(ctx context.Context, question string) (map[string]float64, error) {
	scores := make(map[string]float64)

	keywords, err := q.keywords(ctx, question)
	if err != nil {
		return nil, err
	}
	if len(keywords) > 0 {
		matched, err := q.ix.deps.Store.EntitiesByName(ctx, keywords)
		if err != nil {
			return nil, fmt.Errorf("match keywords: %w", err)
		}
		for _, e := range matched {
			scores[e.Name] = keywordScore
		}
	}
	keywordMatches := len(scores)

	vec, err := embed.EmbedOne(ctx, q.ix.deps.Embedder, question)
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}
	similar, err := q.ix.deps.Store.VectorQuery(ctx, vec, q.config.SimilarityTopK)
	if err != nil {
		return nil, fmt.Errorf("vector query: %w", err)
	}
	for _, s := range similar {
		if s.Score > scores[s.Entity.Name] {
			scores[s.Entity.Name] = s.Score
		}
	}

	q.logger.Debug("Seed entities",
		"keywords", keywords,
		"keyword_matches", keywordMatches,
		"vector_matches", len(similar))
	return scores, nil
}

func (q *QueryEngine) keywords(ctx context.Context, question string) ([]string, error) {
	resp, err := q.ix.deps.LLM.Complete(ctx, llm.Request{
		Capability: model.CapabilityKeywords,
		Messages: []llm.Message{
			{Role: "user", Content: buildKeywordPrompt(question, q.config.MaxKeywords)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("expand keywords: %w", err)
	}
	return ParseKeywords(resp.Content, q.config.MaxKeywords), nil
}

// assemble groups triplets by the chunk they came from. With IncludeText each
// chunk becomes one source carrying its facts and text; otherwise every
// triplet is its own source.
func (q *QueryEngine) assemble(ctx context.Context, triplets []graph.Triplet, scores map[string]float64) ([]SourceNode, error) {
	score := func(t graph.Triplet) float64 {
		return max(scores[t.Subject.Name], scores[t.Object.Name])
	}

	var order []string
	byChunk := make(map[string][]graph.Triplet)
	for _, t := range triplets {
		id := t.Relation.ChunkID
		if _, ok := byChunk[id]; !ok {
			order = append(order, id)
		}
		byChunk[id] = append(byChunk[id], t)
	}

	chunks, err := q.ix.deps.Store.SourceChunks(ctx, order)
	if err != nil {
		return nil, fmt.Errorf("load source chunks: %w", err)
	}
	chunkByID := make(map[string]graph.ChunkNode, len(chunks))
	for _, c := range chunks {
		chunkByID[c.ID] = c
	}

	var sources []SourceNode
	for _, id := range order {
		group := byChunk[id]
		chunk := chunkByID[id]

		if !q.config.IncludeText {
			for _, t := range group {
				sources = append(sources, SourceNode{
					Text:     t.String(),
					Metadata: chunk.Properties,
					Score:    score(t),
				})
			}
			continue
		}

		best := 0.0
		lines := make([]string, len(group))
		for i, t := range group {
			lines[i] = t.String()
			best = max(best, score(t))
		}
		text := factsHeader + strings.Join(lines, "\n")
		if chunk.Text != "" {
			text += "\n\n" + chunk.Text
		}
		sources = append(sources, SourceNode{
			Text:     text,
			Metadata: chunk.Properties,
			Score:    best,
		})
	}

	sort.SliceStable(sources, func(i, j int) bool {
		return sources[i].Score > sources[j].Score
	})
	return sources, nil
}

// synthesize asks the answering model, packing sources best first into the
// context budget. The best source is always sent.
func (q *QueryEngine) synthesize(ctx context.Context, question string, sources []SourceNode) (string, error) {
	budget := q.config.ContextBudget()
	used := 0
	var contexts []string
	for _, s := range sources {
		n := len(q.tokenizer.Tokenize(s.Text))
		if len(contexts) > 0 && used+n > budget {
			q.logger.Debug("Context budget reached",
				"budget", budget,
				"used", used,
				"dropped", len(sources)-len(contexts))
			break
		}
		used += n
		contexts = append(contexts, s.Text)
	}

	resp, err := q.ix.deps.LLM.Complete(ctx, llm.Request{
		Capability: model.CapabilityAnswering,
		Messages: []llm.Message{
			{Role: "system", Content: answerSystemPrompt},
			{Role: "user", Content: buildAnswerPrompt(contexts, question)},
		},
	})
	if err != nil {
		return "", fmt.Errorf("synthesize answer: %w", err)
	}
	return strings.TrimSpace(resp.Content), nil
}
