// Package neo4j stores the property graph in Neo4j. Every node carries the
// __Node__ label and an id property; entities add __Entity__ and chunks add
// Chunk. Relation types are the sanitized relation labels.
package neo4j

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/c360studio/kbqa/graph"
)

// runner executes one Cypher statement and returns all records.
type runner interface {
	run(ctx context.Context, cypher string, params map[string]any) ([]*neo4j.Record, error)
}

type driverRunner struct {
	driver   neo4j.DriverWithContext
	database string
}

func (d driverRunner) run(ctx context.Context, cypher string, params map[string]any) ([]*neo4j.Record, error) {
	result, err := neo4j.ExecuteQuery(ctx, d.driver, cypher, params,
		neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithDatabase(d.database))
	if err != nil {
		return nil, err
	}
	return result.Records, nil
}

// Store is a graph.Store on Neo4j.
type Store struct {
	runner runner
	closer func(context.Context) error
	logger *slog.Logger
}

var _ graph.Store = (*Store)(nil)

// Open connects to Neo4j, verifies connectivity and ensures the id constraint.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	driver, err := neo4j.NewDriverWithContext(cfg.URL, neo4j.BasicAuth(cfg.Username, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("connect to neo4j at %s: %w", cfg.URL, err)
	}

	s := &Store{
		runner: driverRunner{driver: driver, database: cfg.Database},
		closer: driver.Close,
		logger: logger,
	}
	if err := s.ensureSchema(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, err
	}
	logger.Debug("Connected to neo4j", "url", cfg.URL, "database", cfg.Database)
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.runner.run(ctx, `CREATE CONSTRAINT kbqa_node_id IF NOT EXISTS FOR (n:__Node__) REQUIRE n.id IS UNIQUE`, nil)
	if err != nil {
		return fmt.Errorf("create node id constraint: %w", err)
	}
	return nil
}

// Ping runs a trivial query.
func (s *Store) Ping(ctx context.Context) error {
	if _, err := s.runner.run(ctx, "RETURN 1 AS ok", nil); err != nil {
		return fmt.Errorf("ping neo4j: %w", err)
	}
	return nil
}

const countCypher = `
OPTIONAL MATCH (c:Chunk)
WITH count(c) AS chunks
OPTIONAL MATCH (e:__Entity__)
WITH chunks, count(e) AS entities
OPTIONAL MATCH (:__Entity__)-[r]->(:__Entity__)
RETURN chunks, entities, count(r) AS relations`

// Count returns node and relation counts.
func (s *Store) Count(ctx context.Context) (graph.Stats, error) {
	records, err := s.runner.run(ctx, countCypher, nil)
	if err != nil {
		return graph.Stats{}, fmt.Errorf("count graph: %w", err)
	}
	if len(records) == 0 {
		return graph.Stats{}, nil
	}
	r := records[0]
	return graph.Stats{
		Chunks:    int(intValue(r, "chunks")),
		Entities:  int(intValue(r, "entities")),
		Relations: int(intValue(r, "relations")),
	}, nil
}

const upsertChunksCypher = `
UNWIND $rows AS row
MERGE (c:__Node__ {id: row.id})
SET c:Chunk, c.text = row.text, c.embedding = row.embedding
SET c += row.props`

// UpsertChunks merges chunk nodes by id.
func (s *Store) UpsertChunks(ctx context.Context, chunks []graph.ChunkNode) error {
	if len(chunks) == 0 {
		return nil
	}
	rows := make([]map[string]any, len(chunks))
	for i, c := range chunks {
		rows[i] = map[string]any{
			"id":        c.ID,
			"text":      c.Text,
			"embedding": vector(c.Embedding),
			"props":     props(c.Properties),
		}
	}
	if _, err := s.runner.run(ctx, upsertChunksCypher, map[string]any{"rows": rows}); err != nil {
		return fmt.Errorf("upsert chunks: %w", err)
	}
	return nil
}

const upsertEntitiesCypher = `
UNWIND $rows AS row
MERGE (e:__Node__ {id: row.name})
SET e:__Entity__, e.name = row.name, e.label = row.label,
    e.embedding = coalesce(row.embedding, e.embedding)
SET e += row.props`

// UpsertEntities merges entity nodes by name.
func (s *Store) UpsertEntities(ctx context.Context, entities []graph.EntityNode) error {
	if len(entities) == 0 {
		return nil
	}
	rows := make([]map[string]any, len(entities))
	for i, e := range entities {
		rows[i] = map[string]any{
			"name":      e.Name,
			"label":     e.Label,
			"embedding": vector(e.Embedding),
			"props":     props(e.Properties),
		}
	}
	if _, err := s.runner.run(ctx, upsertEntitiesCypher, map[string]any{"rows": rows}); err != nil {
		return fmt.Errorf("upsert entities: %w", err)
	}
	return nil
}

const upsertRelationsCypher = `
UNWIND $rows AS row
MATCH (s:__Node__ {id: row.source})
MATCH (t:__Node__ {id: row.target})
MERGE (s)-[r:%s]->(t)
SET r.label = row.label, r.chunk_id = row.chunk_id
SET r += row.props
RETURN count(r) AS merged`

// UpsertRelations merges relations, one statement per relation type.
func (s *Store) UpsertRelations(ctx context.Context, relations []graph.Relation) error {
	byType := make(map[string][]map[string]any)
	for _, r := range relations {
		relType := RelationType(r.Label)
		byType[relType] = append(byType[relType], map[string]any{
			"source":   r.SourceID,
			"target":   r.TargetID,
			"label":    r.Label,
			"chunk_id": r.ChunkID,
			"props":    props(r.Properties),
		})
	}

	types := make([]string, 0, len(byType))
	for t := range byType {
		types = append(types, t)
	}
	sort.Strings(types)

	for _, relType := range types {
		rows := byType[relType]
		records, err := s.runner.run(ctx, fmt.Sprintf(upsertRelationsCypher, relType), map[string]any{"rows": rows})
		if err != nil {
			return fmt.Errorf("upsert %s relations: %w", relType, err)
		}
		if len(records) > 0 {
			if merged := intValue(records[0], "merged"); merged < int64(len(rows)) {
				return fmt.Errorf("upsert %s relations: %d of %d merged: %w", relType, merged, len(rows), graph.ErrNotFound)
			}
		}
	}
	return nil
}

const vectorQueryCypher = `
MATCH (e:__Entity__)
WHERE e.embedding IS NOT NULL
WITH e, vector.similarity.cosine(e.embedding, $embedding) AS score
ORDER BY score DESC, e.name ASC
LIMIT $topK
RETURN e.name AS name, e.label AS label, properties(e) AS props, score`

// VectorQuery ranks entities with vector.similarity.cosine.
func (s *Store) VectorQuery(ctx context.Context, embedding []float32, topK int) ([]graph.ScoredNode, error) {
	records, err := s.runner.run(ctx, vectorQueryCypher, map[string]any{
		"embedding": vector(embedding),
		"topK":      int64(topK),
	})
	if err != nil {
		return nil, fmt.Errorf("vector query: %w", err)
	}

	out := make([]graph.ScoredNode, 0, len(records))
	for _, r := range records {
		out = append(out, graph.ScoredNode{Entity: entity(r), Score: floatValue(r, "score")})
	}
	return out, nil
}

const entitiesByNameCypher = `
MATCH (e:__Entity__)
WHERE toLower(e.name) IN $names
RETURN e.name AS name, e.label AS label, properties(e) AS props
ORDER BY e.name`

// EntitiesByName matches names case-insensitively.
func (s *Store) EntitiesByName(ctx context.Context, names []string) ([]graph.EntityNode, error) {
	lowered := make([]string, len(names))
	for i, n := range names {
		lowered[i] = graph.NormalizeName(n)
	}

	records, err := s.runner.run(ctx, entitiesByNameCypher, map[string]any{"names": lowered})
	if err != nil {
		return nil, fmt.Errorf("entities by name: %w", err)
	}
	out := make([]graph.EntityNode, 0, len(records))
	for _, r := range records {
		out = append(out, entity(r))
	}
	return out, nil
}

// Variable-length bounds cannot be parameters, so depth is formatted in.
const tripletsCypher = `
MATCH p = (e:__Entity__)-[*1..%d]-(:__Entity__)
WHERE e.name IN $names AND all(n IN nodes(p) WHERE n:__Entity__)
UNWIND relationships(p) AS r
WITH DISTINCT r
WITH startNode(r) AS s, r, endNode(r) AS t
RETURN s.name AS subject, s.label AS subject_label,
       r.label AS label, r.chunk_id AS chunk_id,
       t.name AS object, t.label AS object_label
LIMIT $limit`

// Triplets expands entity relations up to depth hops.
func (s *Store) Triplets(ctx context.Context, names []string, depth, limit int) ([]graph.Triplet, error) {
	if depth <= 0 {
		depth = 1
	}
	records, err := s.runner.run(ctx, fmt.Sprintf(tripletsCypher, depth), map[string]any{
		"names": names,
		"limit": int64(limit),
	})
	if err != nil {
		return nil, fmt.Errorf("triplets: %w", err)
	}

	out := make([]graph.Triplet, 0, len(records))
	for _, r := range records {
		subject := stringValue(r, "subject")
		object := stringValue(r, "object")
		out = append(out, graph.Triplet{
			Subject: graph.EntityNode{Name: subject, Label: stringValue(r, "subject_label")},
			Relation: graph.Relation{
				Label:    stringValue(r, "label"),
				SourceID: subject,
				TargetID: object,
				ChunkID:  stringValue(r, "chunk_id"),
			},
			Object: graph.EntityNode{Name: object, Label: stringValue(r, "object_label")},
		})
	}
	return out, nil
}

const sourceChunksCypher = `
UNWIND range(0, size($ids) - 1) AS i
MATCH (c:Chunk {id: $ids[i]})
RETURN c.id AS id, c.text AS text, properties(c) AS props
ORDER BY i`

// SourceChunks returns chunks in ids order.
func (s *Store) SourceChunks(ctx context.Context, ids []string) ([]graph.ChunkNode, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	records, err := s.runner.run(ctx, sourceChunksCypher, map[string]any{"ids": ids})
	if err != nil {
		return nil, fmt.Errorf("source chunks: %w", err)
	}

	out := make([]graph.ChunkNode, 0, len(records))
	for _, r := range records {
		out = append(out, graph.ChunkNode{
			ID:         stringValue(r, "id"),
			Text:       stringValue(r, "text"),
			Properties: userProps(r, "id", "text", "embedding"),
		})
	}
	return out, nil
}

// Close closes the driver.
func (s *Store) Close(ctx context.Context) error {
	if s.closer == nil {
		return nil
	}
	err := s.closer(ctx)
	s.closer = nil
	return err
}

var relationTypeUnsafe = regexp.MustCompile(`[^A-Z0-9_]+`)

// RelationType turns a free-text relation label into a Cypher relationship
// type: upper case, runs of other characters replaced by one underscore.
func RelationType(label string) string {
	t := relationTypeUnsafe.ReplaceAllString(strings.ToUpper(strings.TrimSpace(label)), "_")
	t = strings.Trim(t, "_")
	if t == "" {
		return "RELATED_TO"
	}
	if t[0] >= '0' && t[0] <= '9' {
		t = "R_" + t
	}
	return t
}

func entity(r *neo4j.Record) graph.EntityNode {
	return graph.EntityNode{
		Name:       stringValue(r, "name"),
		Label:      stringValue(r, "label"),
		Properties: userProps(r, "id", "name", "label", "embedding"),
	}
}

// vector converts to the float list type Cypher stores. An empty vector is
// sent as null so coalesce keeps an existing embedding.
func vector(v []float32) any {
	if len(v) == 0 {
		return nil
	}
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}

func props(m map[string]string) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// userProps reads the "props" column without the reserved keys.
func userProps(r *neo4j.Record, reserved ...string) map[string]string {
	raw, ok := r.Get("props")
	if !ok {
		return nil
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return nil
	}

	skip := make(map[string]bool, len(reserved))
	for _, k := range reserved {
		skip[k] = true
	}
	out := make(map[string]string)
	for k, v := range m {
		if skip[k] {
			continue
		}
		if s, ok := v.(string); ok {
			out[k] = s
		} else {
			out[k] = fmt.Sprint(v)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func stringValue(r *neo4j.Record, key string) string {
	v, _ := r.Get(key)
	s, _ := v.(string)
	return s
}

func intValue(r *neo4j.Record, key string) int64 {
	v, _ := r.Get(key)
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	}
	return 0
}

func floatValue(r *neo4j.Record, key string) float64 {
	v, _ := r.Get(key)
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	}
	return 0
}
